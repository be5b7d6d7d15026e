package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"text/template"

	"github.com/iudanet/runsync/internal/models"
)

func (a *app) text() bool {
	return a.format == FormatText
}

// printJSON writes v as indented JSON
func (a *app) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	a.io.Println(string(data))
	return nil
}

func (a *app) render(t *template.Template, v any) error {
	if err := t.Execute(a.io, v); err != nil {
		return fmt.Errorf("failed to render output: %w", err)
	}
	return nil
}

// table returns a writer aligning tab-separated cells; call Flush when done
func (a *app) table() *tabwriter.Writer {
	return tabwriter.NewWriter(a.io, 0, 0, 2, ' ', 0)
}

func (a *app) printRecord(collection string, r *models.Record) error {
	if !a.text() {
		return a.printJSON(r)
	}

	a.io.Printf("\n=== %s/%s ===\n\n", collection, r.ID())
	w := a.table()
	for _, key := range r.Keys() {
		v, _ := r.Get(key)
		_, _ = fmt.Fprintf(w, "%s:\t%s\n", key, formatValue(v))
	}
	return w.Flush()
}

func (a *app) printRecords(collection string, records []*models.Record) error {
	if !a.text() {
		return a.printJSON(records)
	}

	if len(records) == 0 {
		a.io.Printf("No records in %s.\n", collection)
		return nil
	}

	a.io.Printf("\n=== %s: %d record(s) ===\n\n", collection, len(records))
	w := a.table()
	for _, r := range records {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", r.ID(), r)
	}
	return w.Flush()
}

func (a *app) printQueue(entries []*models.Mutation, failed bool) error {
	if !a.text() {
		return a.printJSON(entries)
	}

	if len(entries) == 0 {
		if failed {
			a.io.Println("No failed changes.")
		} else {
			a.io.Println("Queue is empty.")
		}
		return nil
	}

	w := a.table()
	if failed {
		_, _ = fmt.Fprintln(w, "SEQ\tACTION\tRECORD\tATTEMPTS\tERROR")
		for _, m := range entries {
			_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", m.Seq, m.Action, m.Key(), m.Attempts, m.LastError)
		}
	} else {
		_, _ = fmt.Fprintln(w, "SEQ\tACTION\tRECORD\tATTEMPTS\tSTATE")
		for _, m := range entries {
			_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", m.Seq, m.Action, m.Key(), m.Attempts, m.State)
		}
	}
	return w.Flush()
}

func (a *app) printConflicts(conflicts []*models.Conflict) error {
	if !a.text() {
		return a.printJSON(conflicts)
	}

	if len(conflicts) == 0 {
		a.io.Println("No conflicts.")
		return nil
	}
	for _, c := range conflicts {
		if err := a.render(conflictTmpl, c); err != nil {
			return err
		}
	}
	return nil
}

// formatValue renders a field value: strings and numbers as is, anything
// else as JSON
func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	}
}
