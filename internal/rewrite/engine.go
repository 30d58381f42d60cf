package rewrite

import (
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"intcorrect/internal/collector"
	"intcorrect/internal/ctype"
	"intcorrect/internal/frontend"
	"intcorrect/internal/solver"
)

// Options tunes how updates are spelled out.
type Options struct {
	// UseDecltype spells container-derived widths as
	// decltype(expr)::size_type in C++ units.
	UseDecltype bool
}

// ChangeRecord is one applied retyping, for the report and the audit log.
type ChangeRecord struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Symbol  string `json:"symbol"`
	OldType string `json:"old"`
	NewType string `json:"new"`
}

// Engine translates solver updates into staged source edits. It never
// writes files itself; the Rewriter owns the buffers.
type Engine struct {
	rw     Rewriter
	oracle *ctype.Oracle
	opts   Options
}

// NewEngine wires an engine onto a rewriter.
func NewEngine(rw Rewriter, oracle *ctype.Oracle, opts Options) *Engine {
	return &Engine{rw: rw, oracle: oracle, opts: opts}
}

// Apply stages every edit implied by the updates and returns the applied
// change records sorted by file and line. Edit classes are staged in a
// fixed order so overlap resolution is deterministic: macro bodies, then
// declarations, template arguments, format specifiers, and casts.
func (e *Engine) Apply(res *collector.Result, updates map[int]solver.Update) []ChangeRecord {
	units := e.loadBuffers(res)
	handled := make(map[int]bool)
	var records []ChangeRecord

	e.applyMacroUpdates(res, updates, handled, &records)
	e.applyGroups(res, updates, units, handled, &records)
	e.applyLooseDecls(res, updates, units, handled, &records)
	e.applyTemplateArgs(res, updates)
	e.applyFormatSpecs(res, updates)
	e.removeRedundantCasts(res, updates)
	e.injectCasts(res, updates)
	e.ensureHeaders(units, records)

	sort.Slice(records, func(i, j int) bool {
		if records[i].File != records[j].File {
			return records[i].File < records[j].File
		}
		if records[i].Line != records[j].Line {
			return records[i].Line < records[j].Line
		}
		return records[i].Symbol < records[j].Symbol
	})
	return records
}

func (e *Engine) loadBuffers(res *collector.Result) map[string]*frontend.Unit {
	units := make(map[string]*frontend.Unit)
	for _, u := range res.Units {
		units[u.FilePath] = u
		e.rw.Load(u.FilePath, u.Source)
	}
	return units
}

// applyMacroUpdates rewrites the body of a type-alias macro once, with the
// widest type demanded across the declarations spelled through it.
func (e *Engine) applyMacroUpdates(res *collector.Result, updates map[int]solver.Update, handled map[int]bool, records *[]ChangeRecord) {
	widest := make(map[string]ctype.Type)
	for _, u := range sortedUpdates(updates) {
		if u.Decl.MacroType == "" {
			continue
		}
		handled[u.Decl.ID] = true
		widest[u.Decl.MacroType] = ctype.WiderInteger(widest[u.Decl.MacroType], u.NewType)
		*records = append(*records, ChangeRecord{
			File:    u.Decl.File,
			Line:    u.Decl.Line,
			Symbol:  u.Decl.Name,
			OldType: u.Decl.TypeText,
			NewType: u.NewType.Spelling,
		})
	}
	for name, t := range widest {
		m, ok := res.TypeMacros[name]
		if !ok || m.ValueNode == nil {
			continue
		}
		e.rw.Replace(m.Unit.FilePath, m.ValueNode.StartByte(), m.ValueEnd, t.Spelling)
	}
}

// applyGroups handles declarations carved from one written statement. When
// every changed member lands on the same spelling and no member stays
// behind, the shared type node is replaced in place; otherwise the whole
// statement is split into one declaration per resulting type.
func (e *Engine) applyGroups(res *collector.Result, updates map[int]solver.Update, units map[string]*frontend.Unit, handled map[int]bool, records *[]ChangeRecord) {
	for _, g := range res.Groups {
		if g.TypeNode == nil {
			continue
		}
		originalSpelling := g.Unit.Text(g.TypeNode)
		spellings := make([]string, len(g.Members))
		changed := 0
		for i, m := range g.Members {
			if m.MacroType != "" || handled[m.ID] {
				continue
			}
			u, ok := updates[m.ID]
			if !ok {
				continue
			}
			handled[m.ID] = true
			spellings[i] = e.spellingFor(g.Unit, u)
			changed++
			*records = append(*records, ChangeRecord{
				File:    m.File,
				Line:    m.Line,
				Symbol:  m.Name,
				OldType: m.TypeText,
				NewType: spellings[i],
			})
		}
		if changed == 0 {
			continue
		}

		uniform := changed == len(g.Members)
		for _, sp := range spellings {
			if sp != "" && sp != spellings[0] {
				uniform = false
			}
		}
		if uniform {
			e.rw.Replace(g.Unit.FilePath, g.TypeNode.StartByte(), g.TypeNode.EndByte(), spellings[0])
			continue
		}
		e.splitGroup(g, originalSpelling, spellings)
	}
}

// splitGroup rebuilds a multi-declarator statement as one statement per
// resulting type, preserving declarator text and initializers.
func (e *Engine) splitGroup(g collector.DeclGroup, originalSpelling string, spellings []string) {
	type part struct {
		spelling string
		decls    []string
	}
	var parts []part
	for i, dr := range g.Declarators {
		sp := spellings[i]
		if sp == "" {
			sp = originalSpelling
		}
		text := g.Unit.Text(dr.Node)
		placed := false
		for pi := range parts {
			if parts[pi].spelling == sp {
				parts[pi].decls = append(parts[pi].decls, text)
				placed = true
				break
			}
		}
		if !placed {
			parts = append(parts, part{spelling: sp, decls: []string{text}})
		}
	}

	indent := strings.Repeat(" ", int(g.Node.StartPoint().Column))
	lines := make([]string, 0, len(parts))
	for _, p := range parts {
		lines = append(lines, p.spelling+" "+strings.Join(p.decls, ", ")+";")
	}
	e.rw.Replace(g.Unit.FilePath, g.Node.StartByte(), g.Node.EndByte(), strings.Join(lines, "\n"+indent))
}

// applyLooseDecls covers updates outside declaration groups: parameters,
// fields, typedef underlying types, and function return types.
func (e *Engine) applyLooseDecls(res *collector.Result, updates map[int]solver.Update, units map[string]*frontend.Unit, handled map[int]bool, records *[]ChangeRecord) {
	for _, u := range sortedUpdates(updates) {
		d := u.Decl
		if handled[d.ID] || d.MacroType != "" || d.TypeNode == nil {
			continue
		}
		unit, ok := units[d.File]
		if !ok {
			continue
		}
		handled[d.ID] = true
		sp := e.spellingFor(unit, u)
		e.rw.Replace(d.File, d.TypeNode.StartByte(), d.TypeNode.EndByte(), sp)
		*records = append(*records, ChangeRecord{
			File:    d.File,
			Line:    d.Line,
			Symbol:  d.Name,
			OldType: d.TypeText,
			NewType: sp,
		})
	}
}

// applyTemplateArgs substitutes widened element types into container
// template arguments.
func (e *Engine) applyTemplateArgs(res *collector.Result, updates map[int]solver.Update) {
	for _, tu := range res.TemplateUses {
		if tu.ArgNode == nil {
			continue
		}
		newType := e.oracle.Parse(tu.Source.TypeText)
		if u, ok := updates[tu.Source.ID]; ok {
			newType = u.NewType
		}
		current := e.oracle.Parse(tu.Unit.Text(tu.ArgNode))
		if !newType.Scalar || !current.Scalar || newType.Width <= current.Width {
			continue
		}
		sub := ctype.SubstituteType(current, newType)
		if sub.Equal(current) {
			continue
		}
		e.rw.Replace(tu.Unit.FilePath, tu.ArgNode.StartByte(), tu.ArgNode.EndByte(), sub.Spelling)
	}
}

// applyFormatSpecs updates printf/scanf conversions whose argument changed
// type, e.g. %d to %zu.
func (e *Engine) applyFormatSpecs(res *collector.Result, updates map[int]solver.Update) {
	for _, fc := range res.FormatCalls {
		for _, spec := range fc.Specs {
			u, ok := updates[spec.Arg.ID]
			if !ok {
				continue
			}
			newSpec := ctype.FormatSpecifier(u.NewType)
			if newSpec == "" || newSpec == spec.Text {
				continue
			}
			e.rw.Replace(fc.Unit.FilePath, spec.Start, spec.End, newSpec)
		}
	}
}

// removeRedundantCasts drops explicit casts whose written type now matches
// the casted declaration's resolved type.
func (e *Engine) removeRedundantCasts(res *collector.Result, updates map[int]solver.Update) {
	for _, c := range res.Casts {
		u, ok := updates[c.Source.ID]
		if !ok {
			continue
		}
		written := e.oracle.Parse(c.Unit.Text(c.TypeNode))
		if !written.Equal(u.NewType) {
			continue
		}
		e.rw.Replace(c.Unit.FilePath, c.Node.StartByte(), c.Node.EndByte(), c.Unit.Text(c.Value))
	}
}

// injectCasts guards assignments where one side could not be rewritten. A
// fixed target receiving a value that widened gets a narrowing cast; a
// fixed signed source flowing into an unsigned target gets a widening
// cast, since the source declaration itself can never change.
func (e *Engine) injectCasts(res *collector.Result, updates map[int]solver.Update) {
	for _, a := range res.Assignments {
		if a.Target == nil || a.Value == nil {
			continue
		}
		if e.wrapFixedSource(res, a, updates) {
			continue
		}
		if _, ok := updates[a.Target.ID]; ok {
			continue
		}
		n, ok := res.Graph.NodeFor(a.Target)
		if !ok || !n.IsFixed {
			continue
		}
		vType := a.ValueType
		valueWidened := false
		if a.ValueDecl != nil {
			if u, ok := updates[a.ValueDecl.ID]; ok {
				vType = u.NewType
				valueWidened = true
			}
		}
		if !valueWidened && !a.Target.FromMacroDecl {
			continue
		}
		tType := e.oracle.Parse(a.Target.TypeText)
		if !tType.Scalar || !vType.Scalar || vType.Width <= tType.Width {
			continue
		}
		e.castEdit(a, tType)
	}
}

// wrapFixedSource handles the unmovable-source direction: the value
// declaration stays fixed while the target is (or becomes) a wider
// unsigned type, so the expression is wrapped at the use site.
func (e *Engine) wrapFixedSource(res *collector.Result, a collector.Assignment, updates map[int]solver.Update) bool {
	if a.ValueDecl == nil {
		return false
	}
	if _, ok := updates[a.ValueDecl.ID]; ok {
		return false
	}
	node, found := res.Graph.NodeFor(a.ValueDecl)
	if !found || !node.IsFixed {
		return false
	}
	tType := e.oracle.Parse(a.Target.TypeText)
	if u, updated := updates[a.Target.ID]; updated {
		tType = u.NewType
	}
	vType := a.ValueType
	if !tType.Scalar || !vType.Scalar {
		return false
	}
	if tType.Signed || !vType.Signed || tType.Width < vType.Width {
		return false
	}
	e.castEdit(a, tType)
	return true
}

func (e *Engine) castEdit(a collector.Assignment, target ctype.Type) {
	exprText := a.Unit.Text(a.Value)
	var cast string
	if a.Unit.IsCpp() {
		cast = "static_cast<" + target.Spelling + ">(" + exprText + ")"
	} else if isPrimaryExpr(a.Value) {
		cast = "(" + target.Spelling + ")" + exprText
	} else {
		cast = "(" + target.Spelling + ")(" + exprText + ")"
	}
	e.rw.Replace(a.Unit.FilePath, a.Value.StartByte(), a.Value.EndByte(), cast)
}

func isPrimaryExpr(n *sitter.Node) bool {
	switch n.Type() {
	case "identifier", "call_expression", "number_literal",
		"parenthesized_expression", "field_expression", "subscript_expression":
		return true
	}
	return false
}

// ensureHeaders inserts <stddef.h> into C units that gained size_t or
// ptrdiff_t spellings without any include that provides them.
func (e *Engine) ensureHeaders(units map[string]*frontend.Unit, records []ChangeRecord) {
	needs := make(map[string]bool)
	for _, r := range records {
		switch ctype.Normalize(r.NewType) {
		case "size_t", "ptrdiff_t":
			needs[r.File] = true
		}
	}
	for file := range needs {
		unit, ok := units[file]
		if !ok || unit.IsCpp() {
			continue
		}
		src := string(unit.Source)
		if strings.Contains(src, "stddef.h") || strings.Contains(src, "stdlib.h") ||
			strings.Contains(src, "stdio.h") || strings.Contains(src, "string.h") {
			continue
		}
		e.rw.InsertBefore(file, 0, "#include <stddef.h>\n")
	}
}

// spellingFor resolves how an update is written out. The decltype strategy
// only fires for C++ and only when the driving expression is a container
// size query.
func (e *Engine) spellingFor(unit *frontend.Unit, u solver.Update) string {
	if e.opts.UseDecltype && unit.IsCpp() && u.Node != nil && u.Node.BaseExpr != nil {
		if sp, ok := decltypeSpelling(unit, u.Node.BaseExpr); ok {
			return sp
		}
	}
	return u.NewType.Spelling
}

func decltypeSpelling(unit *frontend.Unit, expr *sitter.Node) (string, bool) {
	if expr == nil || expr.Type() != "call_expression" {
		return "", false
	}
	fn := expr.ChildByFieldName("function")
	if fn == nil || fn.Type() != "field_expression" {
		return "", false
	}
	switch unit.Text(fn.ChildByFieldName("field")) {
	case "size", "length", "capacity":
	default:
		return "", false
	}
	obj := fn.ChildByFieldName("argument")
	if obj == nil {
		return "", false
	}
	return "decltype(" + unit.Text(obj) + ")::size_type", true
}

func sortedUpdates(updates map[int]solver.Update) []solver.Update {
	out := make([]solver.Update, 0, len(updates))
	for _, u := range updates {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Decl.ID < out[j].Decl.ID })
	return out
}
