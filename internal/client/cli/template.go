package cli

import (
	"strings"
	"text/template"
	"time"
)

const statusTemplate = `
=== Sync Status ===

Server:     {{.Server}}
Online:     {{yesno .Online}}
Syncing:    {{yesno .Syncing}}
Last sync:  {{when .LastSyncTime}}
Pending:    {{.PendingCount}}
Failed:     {{.FailedCount}}
Conflicts:  {{if .ConflictCollections}}{{join .ConflictCollections ", "}}{{else}}none{{end}}
`

const passTemplate = `
✓ Sync completed

Applied:     {{.Applied}}
Retried:     {{.Retried}}
Conflicted:  {{.Conflicted}}
Failed:      {{.Failed}}
Skipped:     {{.Skipped}}
`

const conflictTemplate = `
=== Conflict {{.Collection}}/{{.ID}} ===

Detected:  {{when .DetectedAt}}
Local:     {{.Local}}
Server:    {{.Remote}}
`

var templateFuncs = template.FuncMap{
	"join": strings.Join,
	"yesno": func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	},
	"when": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format(time.RFC3339)
	},
}

var (
	statusTmpl   = template.Must(template.New("status").Funcs(templateFuncs).Parse(statusTemplate))
	passTmpl     = template.Must(template.New("pass").Funcs(templateFuncs).Parse(passTemplate))
	conflictTmpl = template.Must(template.New("conflict").Funcs(templateFuncs).Parse(conflictTemplate))
)
