package models

import (
	"fmt"
	"strings"
)

// Strategy is the per-collection policy for resolving divergent updates.
type Strategy string

const (
	StrategyServerWins Strategy = "server-wins"
	StrategyClientWins Strategy = "client-wins"
	StrategyMerge      Strategy = "merge"
	StrategyManual     Strategy = "manual"
)

// ParseStrategy converts a configuration value into a Strategy
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case StrategyServerWins, StrategyClientWins, StrategyMerge, StrategyManual:
		return st, nil
	default:
		return "", fmt.Errorf("unknown conflict strategy %q", s)
	}
}

// Precedence decides which side wins a key present in both versions during merge.
type Precedence string

const (
	PrecedenceLocal  Precedence = "local"
	PrecedenceRemote Precedence = "remote"
)

// ParsePrecedence converts a configuration value into a Precedence.
// An empty value means local precedence.
func ParsePrecedence(s string) (Precedence, error) {
	switch p := Precedence(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PrecedenceLocal, nil
	case PrecedenceLocal, PrecedenceRemote:
		return p, nil
	default:
		return "", fmt.Errorf("unknown merge precedence %q", s)
	}
}
