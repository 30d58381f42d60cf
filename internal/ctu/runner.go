package ctu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"intcorrect/internal/facts"
	"intcorrect/internal/rewrite"
)

// GlobalFactsFile is the reduce output inside the facts directory.
const GlobalFactsFile = "global.facts"

// RunnerOptions configures a multi-unit run.
type RunnerOptions struct {
	Session       SessionOptions
	FactsDir      string
	MaxIterations int
	InPlace       bool
	// Out receives each unit's rewritten main buffer when InPlace is off.
	// Nil suppresses source output (audit mode).
	Out io.Writer
}

// Runner drives the phases over a set of translation units.
type Runner struct {
	opts RunnerOptions
}

func NewRunner(opts RunnerOptions) *Runner {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 10
	}
	return &Runner{opts: opts}
}

var sourceExtensions = map[string]bool{
	".c": true, ".cpp": true, ".cc": true, ".cxx": true, ".c++": true,
}

var ignoredDirs = map[string]bool{
	".git": true, "vendor": true, "node_modules": true,
	"third_party": true, "build": true, "testdata": true,
}

// DiscoverUnits walks the root and returns every translation unit,
// skipping directories the boundary analysis would refuse anyway.
func DiscoverUnits(root string) ([]string, error) {
	var units []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if ignoredDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if sourceExtensions[strings.ToLower(filepath.Ext(d.Name()))] {
			units = append(units, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	return units, nil
}

// Standalone analyzes and rewrites each unit independently. Returns the
// records of every applied change. In-place runs flush changed buffers to
// disk; otherwise each rewritten main buffer goes to Out, unchanged units
// passing through verbatim.
func (r *Runner) Standalone(ctx context.Context, units []string) ([]rewrite.ChangeRecord, error) {
	var all []rewrite.ChangeRecord
	for _, unit := range units {
		sr, err := RunSession(ctx, unit, r.opts.Session)
		if err != nil {
			return all, err
		}
		if r.opts.InPlace {
			if _, err := sr.Buffer.WriteChanged(); err != nil {
				return all, err
			}
		} else if r.opts.Out != nil {
			content, ok := sr.Buffer.Content(unit)
			if !ok {
				if content, err = os.ReadFile(unit); err != nil {
					return all, err
				}
			}
			if _, err := r.opts.Out.Write(content); err != nil {
				return all, fmt.Errorf("failed to emit %s: %w", unit, err)
			}
		}
		all = append(all, sr.Records...)
	}
	return all, nil
}

// Map analyzes each unit and writes its facts file; no rewriting happens.
func (r *Runner) Map(ctx context.Context, units []string) error {
	if err := os.MkdirAll(r.opts.FactsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create facts dir: %w", err)
	}
	opts := r.opts.Session
	opts.GlobalFacts = r.loadGlobalFacts()
	for _, unit := range units {
		sr, err := RunSession(ctx, unit, opts)
		if err != nil {
			return err
		}
		m := facts.Merge(sr.Facts)
		if err := facts.Write(r.factsPathFor(unit), m); err != nil {
			return err
		}
	}
	return nil
}

// Reduce merges every per-unit facts file into the global map. The changed
// result is true when the merge moved the global map, meaning another
// map round could still learn something.
func (r *Runner) Reduce() (bool, error) {
	entries, err := os.ReadDir(r.opts.FactsDir)
	if err != nil {
		return false, fmt.Errorf("failed to read facts dir: %w", err)
	}
	var raw []facts.SymbolFact
	for _, e := range entries {
		if e.IsDir() || e.Name() == GlobalFactsFile || !strings.HasSuffix(e.Name(), ".facts") {
			continue
		}
		recs, err := facts.Read(filepath.Join(r.opts.FactsDir, e.Name()))
		if err != nil {
			return false, err
		}
		raw = append(raw, recs...)
	}
	merged := facts.Merge(raw)

	globalPath := filepath.Join(r.opts.FactsDir, GlobalFactsFile)
	converged := facts.IsConverged(globalPath, merged)
	if err := facts.Write(globalPath, merged); err != nil {
		// An unwritable global map must not be reported as converged.
		return true, err
	}
	return !converged, nil
}

// Apply rewrites every unit with the global fact map pre-seeded.
func (r *Runner) Apply(ctx context.Context, units []string) ([]rewrite.ChangeRecord, error) {
	opts := r.opts
	opts.Session.GlobalFacts = r.loadGlobalFacts()
	runner := &Runner{opts: opts}
	return runner.Standalone(ctx, units)
}

// Iterative loops map and reduce until the global facts stop moving, then
// applies. Exceeding the iteration budget is reported but still applies
// what converged so far.
func (r *Runner) Iterative(ctx context.Context, units []string) ([]rewrite.ChangeRecord, error) {
	for i := 0; i < r.opts.MaxIterations; i++ {
		if err := r.Map(ctx, units); err != nil {
			return nil, err
		}
		changed, err := r.Reduce()
		if err != nil {
			return nil, err
		}
		if !changed {
			return r.Apply(ctx, units)
		}
	}
	log.Printf("fact propagation did not converge within %d iterations", r.opts.MaxIterations)
	return r.Apply(ctx, units)
}

// loadGlobalFacts reads the reduce output; a missing file means an empty
// map, any other failure is logged and degrades to standalone behavior.
func (r *Runner) loadGlobalFacts() map[string]facts.SymbolFact {
	path := filepath.Join(r.opts.FactsDir, GlobalFactsFile)
	raw, err := facts.Read(path)
	if err != nil {
		if !errors.Is(err, facts.ErrNotFound) {
			log.Printf("failed to read global facts: %v", err)
		}
		return nil
	}
	return facts.Merge(raw)
}

// factsPathFor flattens a unit path into a facts file name.
func (r *Runner) factsPathFor(unit string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(unit)
	return filepath.Join(r.opts.FactsDir, name+".facts")
}
