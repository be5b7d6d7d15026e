package sync

import (
	"fmt"
	"maps"
	"slices"

	"github.com/iudanet/runsync/internal/models"
)

// Policy is the conflict handling configured for one collection.
type Policy struct {
	Strategy   models.Strategy
	Precedence models.Precedence // Precedence используется только стратегией merge
}

// Policies maps collections to their policy. Collections without an entry
// use Default with local merge precedence.
type Policies struct {
	Collections map[string]Policy
	Default     models.Strategy
}

// ReferencePolicies is the configuration of the registration app:
// user intent wins for registrations, organizers own events, profiles are
// edited concurrently and merged.
func ReferencePolicies() Policies {
	return Policies{
		Default: models.StrategyClientWins,
		Collections: map[string]Policy{
			"registrations": {Strategy: models.StrategyClientWins},
			"events":        {Strategy: models.StrategyServerWins},
			"profiles":      {Strategy: models.StrategyMerge, Precedence: models.PrecedenceLocal},
		},
	}
}

// For returns the policy of collection
func (p Policies) For(collection string) Policy {
	if pol, ok := p.Collections[collection]; ok {
		if pol.Strategy == "" {
			pol.Strategy = p.defaultStrategy()
		}
		if pol.Precedence == "" {
			pol.Precedence = models.PrecedenceLocal
		}
		return pol
	}
	return Policy{Strategy: p.defaultStrategy(), Precedence: models.PrecedenceLocal}
}

func (p Policies) defaultStrategy() models.Strategy {
	if p.Default == "" {
		return models.StrategyClientWins
	}
	return p.Default
}

// Validate checks every configured strategy and precedence
func (p Policies) Validate() error {
	if p.Default != "" {
		if _, err := models.ParseStrategy(string(p.Default)); err != nil {
			return fmt.Errorf("default strategy: %w", err)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(p.Collections)) {
		pol := p.Collections[name]
		if pol.Strategy != "" {
			if _, err := models.ParseStrategy(string(pol.Strategy)); err != nil {
				return fmt.Errorf("collection %s: %w", name, err)
			}
		}
		if _, err := models.ParsePrecedence(string(pol.Precedence)); err != nil {
			return fmt.Errorf("collection %s: %w", name, err)
		}
	}
	return nil
}

// Divergence describes an update whose record was changed on the remote
// since the client last saw it.
type Divergence struct {
	Local   *models.Record // Local версия из очереди
	Remote  *models.Record // Remote текущая версия на сервере
	Shadow  *models.Record // Shadow последняя известная клиенту версия сервера, может быть nil
	Changed []string       // Changed поля, изменённые локально; пусто - все поля
}

// Decision is the outcome of a ConflictResolver.
type Decision struct {
	Record *models.Record // Record версия, которая станет актуальной
	Push   bool           // Push нужно отправить Record на сервер
	Manual bool           // Manual требуется ручное разрешение
}

// ConflictResolver decides which version of a diverged record survives.
// Implementations must be deterministic.
type ConflictResolver interface {
	Resolve(d Divergence) Decision
}

// ResolverFor returns the resolver implementing the policy
func ResolverFor(p Policy) ConflictResolver {
	switch p.Strategy {
	case models.StrategyServerWins:
		return ServerWins{}
	case models.StrategyMerge:
		return Merge{Precedence: p.Precedence}
	case models.StrategyManual:
		return Manual{}
	default:
		return ClientWins{}
	}
}

// ServerWins keeps the remote version and drops the local edit.
type ServerWins struct{}

func (ServerWins) Resolve(d Divergence) Decision {
	return Decision{Record: d.Remote.Clone()}
}

// ClientWins overwrites the remote with the local version.
type ClientWins struct{}

func (ClientWins) Resolve(d Divergence) Decision {
	out := d.Local.Clone()
	out.SetID(d.Remote.ID())
	return Decision{Record: out, Push: true}
}

// Merge overlays the locally changed fields onto a copy of the remote.
// With local precedence a field changed on both sides takes the local value.
// With remote precedence it keeps the remote value; local changes survive
// only for fields the remote left as they were.
type Merge struct {
	Precedence models.Precedence
}

func (m Merge) Resolve(d Divergence) Decision {
	fields := d.Changed
	if len(fields) == 0 {
		fields = d.Local.Keys()
	}

	if m.Precedence == models.PrecedenceRemote {
		kept := make([]string, 0, len(fields))
		for _, f := range fields {
			if f == models.FieldID {
				continue
			}
			if !remoteChanged(d.Remote, d.Shadow, f) {
				kept = append(kept, f)
			}
		}
		fields = kept
		if len(fields) == 0 {
			return Decision{Record: d.Remote.Clone()}
		}
	}

	return Decision{Record: d.Remote.Overlay(d.Local, fields), Push: true}
}

// remoteChanged reports whether field differs between remote and shadow.
// Without a shadow only fields absent on the remote count as untouched.
func remoteChanged(remote, shadow *models.Record, field string) bool {
	rv, inRemote := remote.Get(field)
	if !inRemote {
		return false
	}
	if shadow == nil {
		return true
	}
	sv, inShadow := shadow.Get(field)
	if !inShadow {
		return true
	}
	a := models.NewRecord()
	a.Set(field, rv)
	b := models.NewRecord()
	b.Set(field, sv)
	return !a.Equal(b)
}

// Manual never decides; the collision becomes a Conflict record.
type Manual struct{}

func (Manual) Resolve(Divergence) Decision {
	return Decision{Manual: true}
}
