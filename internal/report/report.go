// Package report renders applied change records: a Markdown table for
// humans and an NDJSON stream for tooling.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"intcorrect/internal/rewrite"
)

// Writer renders one batch of change records.
type Writer interface {
	Write(records []rewrite.ChangeRecord) error
}

// Markdown renders the summary table.
type Markdown struct {
	Out io.Writer
}

func (m *Markdown) Write(records []rewrite.ChangeRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(m.Out, "No type changes.")
		return err
	}
	if _, err := fmt.Fprintln(m.Out, "| File | Line | Symbol | Old Type | New Type |"); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(m.Out, "|------|------|--------|----------|----------|"); err != nil {
		return err
	}
	for _, r := range records {
		if _, err := fmt.Fprintf(m.Out, "| %s | %d | %s | %s | %s |\n",
			r.File, r.Line, r.Symbol, r.OldType, r.NewType); err != nil {
			return err
		}
	}
	return nil
}

// NDJSON appends one JSON object per record to a file, creating it on
// first use. Append mode lets iterative runs accumulate a full audit
// trail.
type NDJSON struct {
	Path string
}

func (n *NDJSON) Write(records []rewrite.ChangeRecord) error {
	f, err := os.OpenFile(n.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open report file %s: %w", n.Path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	return nil
}

// Manager fans records out to every configured writer. A failing writer is
// reported and skipped; reporting never aborts a rewrite run.
type Manager struct {
	writers []Writer
}

func NewManager(writers ...Writer) *Manager {
	return &Manager{writers: writers}
}

func (m *Manager) Add(w Writer) {
	m.writers = append(m.writers, w)
}

func (m *Manager) Emit(records []rewrite.ChangeRecord) {
	for _, w := range m.writers {
		if err := w.Write(records); err != nil {
			log.Printf("report writer failed: %v", err)
		}
	}
}
