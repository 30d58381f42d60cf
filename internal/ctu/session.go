// Package ctu orchestrates the per-unit pipeline and the cross-TU
// map/reduce rounds that let resolved types flow between files.
package ctu

import (
	"context"
	"fmt"
	"regexp"

	"intcorrect/internal/boundary"
	"intcorrect/internal/collector"
	"intcorrect/internal/ctype"
	"intcorrect/internal/facts"
	"intcorrect/internal/frontend"
	"intcorrect/internal/rewrite"
	"intcorrect/internal/solver"
)

// Phase selects how a run participates in cross-TU analysis.
type Phase int

const (
	// PhaseStandalone analyzes and rewrites one unit with no fact files.
	PhaseStandalone Phase = iota
	// PhaseMap analyzes without rewriting and emits per-unit facts.
	PhaseMap
	// PhaseReduce merges per-unit facts into the global fact map.
	PhaseReduce
	// PhaseApply rewrites with the global fact map pre-seeded.
	PhaseApply
	// PhaseIterative loops map and reduce to a fixed point, then applies.
	PhaseIterative
)

func (p Phase) String() string {
	switch p {
	case PhaseStandalone:
		return "standalone"
	case PhaseMap:
		return "map"
	case PhaseReduce:
		return "reduce"
	case PhaseApply:
		return "apply"
	case PhaseIterative:
		return "iterative"
	}
	return "unknown"
}

// SessionOptions configures one translation-unit pipeline.
type SessionOptions struct {
	ProjectRoot string
	IncludeDirs []string
	Exclude     *regexp.Regexp

	AllowABIChanges bool
	ForceRewrite    bool
	UseDecltype     bool
	ExpandAuto      bool

	// GlobalFacts pre-seeds the graph during the apply phase.
	GlobalFacts map[string]facts.SymbolFact
}

// SessionResult carries everything a phase driver needs from one unit.
type SessionResult struct {
	MainFile string
	Records  []rewrite.ChangeRecord
	// Facts holds the resolved types of file-scope symbols, for the map
	// phase.
	Facts []facts.SymbolFact
	// Buffer holds the staged rewrites; the driver decides whether they
	// reach disk.
	Buffer *rewrite.Buffer
}

// RunSession runs parse, boundary analysis, collection, solving, and
// rewriting for one main file. Project headers reachable through the
// include graph are collected into the same symbol table and graph, so a
// prototype in a header widens together with its definition.
func RunSession(ctx context.Context, mainFile string, opts SessionOptions) (*SessionResult, error) {
	includes := frontend.ScanIncludes(mainFile, opts.IncludeDirs)
	bounds := boundary.NewAnalyzer(boundary.Options{
		AllowABIChanges: opts.AllowABIChanges,
		ForceRewrite:    opts.ForceRewrite,
		ProjectRoot:     opts.ProjectRoot,
		Exclude:         opts.Exclude,
	}, includes)
	oracle := ctype.NewOracle()

	mainUnit, err := frontend.ParseFile(ctx, mainFile)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", mainFile, err)
	}

	res := &collector.Result{
		Unit:       mainUnit,
		Decls:      frontend.NewTable(),
		Symbols:    frontend.NewSymbolTable(),
		Graph:      solver.New(oracle),
		TypeMacros: make(map[string]collector.TypeMacro),
	}
	copts := collector.Options{ExpandAuto: opts.ExpandAuto}

	// Headers first, so the main file sees their declarations.
	for _, header := range projectHeaders(includes, bounds) {
		hu, err := frontend.ParseFile(ctx, header)
		if err != nil {
			// A header the grammar cannot load stays unanalyzed but does
			// not sink the unit.
			continue
		}
		if _, err := collector.NewWithResult(res, hu, oracle, bounds, opts.GlobalFacts, copts).Run(ctx); err != nil {
			return nil, err
		}
	}
	if _, err := collector.NewWithResult(res, mainUnit, oracle, bounds, opts.GlobalFacts, copts).Run(ctx); err != nil {
		return nil, err
	}

	updates := res.Graph.Solve()

	buf := rewrite.NewBuffer()
	engine := rewrite.NewEngine(buf, oracle, rewrite.Options{UseDecltype: opts.UseDecltype})
	records := engine.Apply(res, updates)

	return &SessionResult{
		MainFile: mainFile,
		Records:  records,
		Facts:    exportFacts(res, updates),
		Buffer:   buf,
	}, nil
}

// projectHeaders lists the modifiable headers the unit pulls in, walking
// the include graph away from system provenance.
func projectHeaders(includes *frontend.IncludeGraph, bounds *boundary.Analyzer) []string {
	var out []string
	seen := map[string]bool{includes.Main(): true}
	var visit func(path string)
	visit = func(path string) {
		if seen[path] {
			return
		}
		seen[path] = true
		if includes.IsSystem(path) {
			return
		}
		if bounds.ClassifyFile(path) != boundary.Modifiable {
			return
		}
		out = append(out, path)
	}
	for _, path := range includes.All() {
		visit(path)
	}
	return out
}

// exportFacts turns this unit's resolved file-scope types into mergeable
// facts.
func exportFacts(res *collector.Result, updates map[int]solver.Update) []facts.SymbolFact {
	var out []facts.SymbolFact
	for _, d := range res.Decls.All() {
		if !d.FileScope || d.USR == "" {
			continue
		}
		u, ok := updates[d.ID]
		if !ok {
			continue
		}
		out = append(out, facts.SymbolFact{
			USR:       d.USR,
			TypeName:  u.NewType.Spelling,
			IsField:   d.Kind == frontend.KindField,
			IsTypedef: d.Kind == frontend.KindTypedef,
		})
	}
	return out
}
