// Package collector walks a parsed translation unit once, builds the
// declaration table and symbol table, and feeds the constraint graph.
// Everything the rewriter later needs (declaration groups, format calls,
// assignment sites, template uses) is staged here as plain records so the
// rewrite phase never re-walks the tree.
package collector

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"intcorrect/internal/boundary"
	"intcorrect/internal/ctype"
	"intcorrect/internal/facts"
	"intcorrect/internal/frontend"
	"intcorrect/internal/solver"
)

// Options tunes collection behavior.
type Options struct {
	// ExpandAuto makes call-initialized `auto` declarations eligible for
	// spelling out the deduced type. Off, `auto` is preserved.
	ExpandAuto bool
}

// DeclGroup is one written declaration and the declarations carved from it.
// Groups with more than one member may need splitting when only some
// members change type.
type DeclGroup struct {
	Unit     *frontend.Unit
	Node     *sitter.Node
	TypeNode *sitter.Node
	Members  []*frontend.Decl
	// Declarators is aligned with Members.
	Declarators []frontend.Declarator
}

// Assignment is one `target = value` site, kept for cast injection when the
// target stays fixed while the value widens.
type Assignment struct {
	Unit   *frontend.Unit
	Target *frontend.Decl
	Value  *sitter.Node
	Node   *sitter.Node
	// ValueType and ValueDecl are the typer's verdict on the right side at
	// collection time.
	ValueType ctype.Type
	ValueDecl *frontend.Decl
}

// TemplateUse records a container element that receives values of a
// tracked declaration, e.g. `v.push_back(n)`.
type TemplateUse struct {
	Unit      *frontend.Unit
	Container *frontend.Decl
	// ArgNode is the written template argument to substitute.
	ArgNode *sitter.Node
	// Source is the declaration flowing into the container.
	Source *frontend.Decl
}

// ExplicitCast is one written cast applied to a tracked declaration, kept
// so a cast made redundant by a retyping can be dropped.
type ExplicitCast struct {
	Unit     *frontend.Unit
	Node     *sitter.Node
	TypeNode *sitter.Node
	Value    *sitter.Node
	// Source is the declaration the casted expression resolves to.
	Source *frontend.Decl
}

// TypeMacro is an object-like macro acting as a type alias, with the unit
// that defines it.
type TypeMacro struct {
	frontend.ObjectMacro
	Unit *frontend.Unit
}

// Result is everything one collection pass produces.
type Result struct {
	Unit *frontend.Unit
	// Units lists every unit collected into this result, headers included.
	Units   []*frontend.Unit
	Decls   *frontend.Table
	Symbols *frontend.SymbolTable
	Graph   *solver.Graph

	Groups       []DeclGroup
	Assignments  []Assignment
	FormatCalls  []FormatCall
	TemplateUses []TemplateUse
	Casts        []ExplicitCast
	// TypeMacros maps macro name to its definition for macro-routed
	// rewrites.
	TypeMacros map[string]TypeMacro
}

// Collector drives one pass over a unit.
type Collector struct {
	unit     *frontend.Unit
	oracle   *ctype.Oracle
	bounds   *boundary.Analyzer
	global   map[string]facts.SymbolFact
	opts     Options
	result   *Result
	currFunc *frontend.Decl
}

// New wires a collector. global may be nil for standalone runs.
func New(unit *frontend.Unit, oracle *ctype.Oracle, bounds *boundary.Analyzer, global map[string]facts.SymbolFact, opts Options) *Collector {
	return NewWithResult(&Result{
		Unit:       unit,
		Decls:      frontend.NewTable(),
		Symbols:    frontend.NewSymbolTable(),
		Graph:      solver.New(oracle),
		TypeMacros: make(map[string]TypeMacro),
	}, unit, oracle, bounds, global, opts)
}

// NewWithResult continues collection into an existing result, so a session
// can merge a main file and its project headers into one graph and one
// symbol table. Headers go first; later units see their declarations.
func NewWithResult(res *Result, unit *frontend.Unit, oracle *ctype.Oracle, bounds *boundary.Analyzer, global map[string]facts.SymbolFact, opts Options) *Collector {
	res.Units = append(res.Units, unit)
	return &Collector{
		unit:   unit,
		oracle: oracle,
		bounds: bounds,
		global: global,
		opts:   opts,
		result: res,
	}
}

// Run performs the traversal and returns the staged result.
func (c *Collector) Run(ctx context.Context) (*Result, error) {
	c.collectMacros(ctx)
	c.walk(c.unit.Root)
	c.seedGlobalFacts()
	return c.result, nil
}

// collectMacros registers `#define NAME type` macros as type aliases and
// recovers pseudo-declarations from `#define NAME type name = value`
// macro bodies. Pseudo-declarations are never rewritable themselves.
func (c *Collector) collectMacros(ctx context.Context) {
	for _, m := range c.unit.ObjectMacros() {
		if m.Value == "" {
			continue
		}
		if t := c.oracle.Parse(m.Value); t.Scalar {
			// Type alias macro. Route rewrites through the macro body.
			c.oracle.AddTypedef(m.Name, m.Value)
			c.result.TypeMacros[m.Name] = TypeMacro{ObjectMacro: m, Unit: c.unit}
			continue
		}
		c.collectMacroDecl(ctx, m)
	}
}

func (c *Collector) collectMacroDecl(ctx context.Context, m frontend.ObjectMacro) {
	body := m.Value
	if !strings.HasSuffix(body, ";") {
		body += ";"
	}
	mu, err := frontend.ParseSource(ctx, c.unit.FilePath, []byte(body))
	if err != nil || mu.Root.NamedChildCount() == 0 {
		return
	}
	declNode := mu.Root.NamedChild(0)
	if declNode.Type() != "declaration" {
		return
	}
	typeNode, declarators := mu.SplitDeclaration(declNode)
	for _, dr := range declarators {
		if dr.Name == "" || dr.Pointer || dr.Function {
			continue
		}
		d := c.result.Decls.Add(&frontend.Decl{
			Kind:          frontend.KindVar,
			Name:          dr.Name,
			File:          c.unit.FilePath,
			Line:          c.unit.Line(m.Node),
			TypeText:      mu.Text(typeNode),
			FromMacroDecl: true,
			FileScope:     true,
		})
		d.USR = frontend.BuildUSR(d, "")
		c.result.Symbols.Declare(d)
		c.result.Graph.AddNode(d, c.oracle.Parse(d.TypeText), true, false)
	}
}

// seedGlobalFacts applies cross-TU facts to every declaration whose USR the
// fact map knows.
func (c *Collector) seedGlobalFacts() {
	if len(c.global) == 0 {
		return
	}
	for _, d := range c.result.Decls.All() {
		f, ok := c.global[d.USR]
		if !ok {
			continue
		}
		t := c.oracle.Parse(f.TypeName)
		if t.IsNull() {
			continue
		}
		c.result.Graph.AddGlobalConstraint(d, t)
	}
}

func (c *Collector) walk(n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "function_definition":
		c.enterFunction(n)
		return
	case "declaration":
		c.collectDeclaration(n)
		return
	case "type_definition":
		c.collectTypedef(n)
		return
	case "struct_specifier", "union_specifier", "class_specifier":
		if n.ChildByFieldName("body") != nil {
			c.collectRecord(n)
			return
		}
	case "assignment_expression":
		c.collectAssignment(n)
	case "for_statement":
		c.collectFor(n)
		return
	case "return_statement":
		c.collectReturn(n)
	case "call_expression":
		c.collectCall(n)
	case "binary_expression":
		c.collectPointerArithmetic(n)
	case "subscript_expression":
		c.collectSubscript(n)
	case "cast_expression":
		c.collectCast(n)
	case "field_expression":
		c.collectFieldAccess(n)
	case "compound_statement":
		c.result.Symbols.Push()
		for _, child := range frontend.NamedChildren(n) {
			c.walk(child)
		}
		c.result.Symbols.Pop()
		return
	}
	for _, child := range frontend.NamedChildren(n) {
		c.walk(child)
	}
}

func (c *Collector) enterFunction(n *sitter.Node) {
	info, ok := c.unit.FunctionDefinition(n)
	if !ok {
		for _, child := range frontend.NamedChildren(n) {
			c.walk(child)
		}
		return
	}
	fn := c.result.Decls.Add(&frontend.Decl{
		Kind:      frontend.KindFunction,
		Name:      info.Name,
		File:      c.unit.FilePath,
		Line:      c.unit.Line(info.NameNode),
		TypeText:  info.ReturnText,
		TypeNode:  info.ReturnNode,
		DeclNode:  info.NameNode,
		Body:      info.Body,
		FileScope: true,
	})
	fn.USR = frontend.BuildUSR(fn, "")
	prior := c.result.Symbols.Function(fn.Name)
	c.result.Symbols.Declare(fn)
	c.result.Graph.AddNode(fn, c.oracle.Parse(fn.TypeText), c.bounds.IsBoundaryFixed(fn), false)
	c.linkRedeclaration(prior, fn)

	prevFunc := c.currFunc
	c.currFunc = fn
	c.result.Symbols.Push()
	for _, p := range info.Params {
		if p.Name == "" {
			continue
		}
		pd := c.result.Decls.Add(&frontend.Decl{
			Kind:     frontend.KindParam,
			Name:     p.Name,
			File:     c.unit.FilePath,
			Line:     c.unit.Line(p.NameNode),
			TypeText: p.TypeText,
			TypeNode: p.TypeNode,
			DeclNode: p.NameNode,
		})
		pd.USR = frontend.BuildUSR(pd, fn.Name)
		fn.ParamTypes = append(fn.ParamTypes, p.TypeText)
		fn.ParamDecls = append(fn.ParamDecls, pd)
		c.result.Symbols.Declare(pd)
		fixed := p.Pointer || c.bounds.IsBoundaryFixed(pd)
		c.result.Graph.AddNode(pd, c.oracle.Parse(pd.TypeText), fixed, false)
	}
	if info.Body != nil {
		for _, child := range frontend.NamedChildren(info.Body) {
			c.walk(child)
		}
	}
	c.result.Symbols.Pop()
	c.currFunc = prevFunc
}

func (c *Collector) collectDeclaration(n *sitter.Node) {
	typeNode, declarators := c.unit.SplitDeclaration(n)
	typeText := c.unit.Text(typeNode)
	if typeNode != nil && typeNode.ChildByFieldName("body") != nil {
		switch typeNode.Type() {
		case "struct_specifier", "union_specifier", "class_specifier":
			c.collectRecord(typeNode)
		}
	}
	group := DeclGroup{Unit: c.unit, Node: n, TypeNode: typeNode}

	for _, dr := range declarators {
		if dr.Name == "" {
			continue
		}
		kind := frontend.KindVar
		if dr.Function {
			kind = frontend.KindFunction
		}
		text := typeText
		if dr.Pointer {
			text += " *"
		}
		d := c.result.Decls.Add(&frontend.Decl{
			Kind:      kind,
			Name:      dr.Name,
			File:      c.unit.FilePath,
			Line:      c.unit.Line(dr.NameNode),
			TypeText:  text,
			TypeNode:  typeNode,
			DeclNode:  dr.NameNode,
			Init:      dr.Init,
			FileScope: c.result.Symbols.AtFileScope() || kind == frontend.KindFunction,
		})
		enclosing := ""
		if c.currFunc != nil {
			enclosing = c.currFunc.Name
		}
		d.USR = frontend.BuildUSR(d, enclosing)
		if m, ok := c.result.TypeMacros[strings.TrimSpace(typeText)]; ok {
			d.MacroType = m.Name
		}
		var prior *frontend.Decl
		if d.FileScope {
			prior = c.result.Symbols.Lookup(d.Name)
		}
		c.result.Symbols.Declare(d)

		if kind == frontend.KindFunction {
			// Prototype. Register parameters so call sites can constrain
			// against them later in this unit.
			d.Body = nil
			for _, p := range c.unit.Params(dr.Params) {
				d.ParamTypes = append(d.ParamTypes, p.TypeText)
				pd := c.result.Decls.Add(&frontend.Decl{
					Kind:     frontend.KindParam,
					Name:     p.Name,
					File:     c.unit.FilePath,
					Line:     c.unit.Line(p.NameNode),
					TypeText: p.TypeText,
					TypeNode: p.TypeNode,
					DeclNode: p.NameNode,
				})
				pd.USR = frontend.BuildUSR(pd, d.Name)
				d.ParamDecls = append(d.ParamDecls, pd)
				fixed := p.Pointer || c.bounds.IsBoundaryFixed(pd)
				c.result.Graph.AddNode(pd, c.oracle.Parse(pd.TypeText), fixed, false)
			}
			c.result.Graph.AddNode(d, c.oracle.Parse(typeText), c.bounds.IsBoundaryFixed(d), false)
			c.linkRedeclaration(prior, d)
			group.Members = append(group.Members, d)
			group.Declarators = append(group.Declarators, dr)
			continue
		}

		fixed := c.bounds.IsBoundaryFixed(d) || dr.Pointer
		declared := c.oracle.Parse(d.TypeText)
		if c.isPreservedAuto(typeText, dr) {
			fixed = true
		}
		c.result.Graph.AddNode(d, declared, fixed, false)
		c.linkRedeclaration(prior, d)
		c.puntToTypedef(d, typeText)
		c.collectInitializer(d, dr)
		group.Members = append(group.Members, d)
		group.Declarators = append(group.Declarators, dr)
	}
	if len(group.Members) > 0 {
		c.result.Groups = append(c.result.Groups, group)
	}
}

// isPreservedAuto reports whether an `auto` declaration keeps its deduced
// type untouched. Call-initialized auto already tracks its source.
func (c *Collector) isPreservedAuto(typeText string, dr frontend.Declarator) bool {
	if strings.TrimSpace(typeText) != "auto" || c.opts.ExpandAuto {
		return false
	}
	return dr.Init != nil && dr.Init.Type() == "call_expression"
}

// linkRedeclaration ties a redeclaration of a file-scope symbol to its
// earlier declaration, so a header prototype and the definition widen
// together.
func (c *Collector) linkRedeclaration(prior, d *frontend.Decl) {
	if prior == nil || d == nil || prior.ID == d.ID {
		return
	}
	if prior.Kind != d.Kind || prior.USR != d.USR {
		return
	}
	c.result.Graph.AddEdge(prior, d)
	c.result.Graph.AddEdge(d, prior)
}

// puntToTypedef redirects widening from a variable declared via a
// modifiable typedef onto the typedef itself, so the alias spelling in the
// declaration survives and only the underlying type changes.
func (c *Collector) puntToTypedef(d *frontend.Decl, typeText string) {
	alias := ctype.Normalize(typeText)
	td := c.result.Symbols.TypedefByName(alias)
	if td == nil || !c.bounds.CanRewriteTypedef(td) {
		return
	}
	c.result.Graph.AddEdge(td, d)
	if n, ok := c.result.Graph.NodeFor(d); ok {
		n.IsFixed = true
	}
}

func (c *Collector) collectInitializer(d *frontend.Decl, dr frontend.Declarator) {
	if dr.Init == nil {
		return
	}
	v := c.typeOf(dr.Init)
	if !v.Type.IsNull() {
		c.result.Graph.AddConstraint(d, v.Type, dr.Init)
	}
	if v.Decl != nil {
		c.result.Graph.AddEdge(d, v.Decl)
	}
	if v.HasConst {
		c.result.Graph.AddRangeConstraint(d, solver.ValueRange{
			HasMin: true, Min: v.Const, HasMax: true, Max: v.Const,
		})
		if v.Const < 0 {
			c.result.Graph.MarkNegative(d)
		}
	}
	c.collectSymbolic(d, dr.Init)
	c.result.Assignments = append(c.result.Assignments, Assignment{
		Unit: c.unit, Target: d, Value: dr.Init, Node: dr.Node,
		ValueType: v.Type, ValueDecl: v.Decl,
	})
	// Initializers can nest calls that carry their own constraints.
	c.walk(dr.Init)
}

func (c *Collector) collectTypedef(n *sitter.Node) {
	info, ok := c.unit.Typedef(n)
	if !ok || info.Function {
		return
	}
	c.oracle.AddTypedef(info.Name, info.Underlying)
	d := c.result.Decls.Add(&frontend.Decl{
		Kind:       frontend.KindTypedef,
		Name:       info.Name,
		File:       c.unit.FilePath,
		Line:       c.unit.Line(info.NameNode),
		TypeText:   info.Underlying,
		TypeNode:   info.TypeNode,
		DeclNode:   info.NameNode,
		Underlying: info.Underlying,
		FileScope:  true,
	})
	d.USR = frontend.BuildUSR(d, "")
	c.result.Symbols.Declare(d)
	fixed := info.Pointer || !c.bounds.CanRewriteTypedef(d)
	c.result.Graph.AddNode(d, c.oracle.Parse(info.Underlying), fixed, true)
}

func (c *Collector) collectRecord(n *sitter.Node) {
	info, fields := c.unit.RecordFields(n)
	for _, f := range fields {
		rec := info
		d := c.result.Decls.Add(&frontend.Decl{
			Kind:       frontend.KindField,
			Name:       f.Name,
			File:       c.unit.FilePath,
			Line:       c.unit.Line(f.NameNode),
			TypeText:   f.TypeText,
			TypeNode:   f.TypeNode,
			DeclNode:   f.NameNode,
			Record:     &rec,
			IsBitfield: f.IsBitfield,
			FileScope:  true,
		})
		d.USR = frontend.BuildUSR(d, "")
		c.result.Symbols.Declare(d)
		fixed := !c.bounds.CanRewriteField(d)
		c.result.Graph.AddNode(d, c.oracle.Parse(f.TypeText), fixed, false)
	}
	// A record specifier can carry declarators (`struct S { ... } s;`).
	for _, child := range frontend.NamedChildren(n) {
		if child.Type() != "field_declaration_list" {
			c.walk(child)
		}
	}
}

func (c *Collector) collectAssignment(n *sitter.Node) {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	target := c.resolveDecl(left)
	if target == nil || right == nil {
		return
	}

	v := c.typeOf(right)
	if !v.Type.IsNull() {
		c.result.Graph.AddConstraint(target, v.Type, right)
	}
	if v.Decl != nil {
		c.result.Graph.AddEdge(target, v.Decl)
	}
	if v.HasConst {
		c.result.Graph.AddRangeConstraint(target, solver.ValueRange{
			HasMin: true, Min: v.Const, HasMax: true, Max: v.Const,
		})
		if v.Const < 0 {
			c.result.Graph.MarkNegative(target)
		}
	}
	c.collectSymbolic(target, right)
	c.result.Assignments = append(c.result.Assignments, Assignment{
		Unit: c.unit, Target: target, Value: right, Node: n,
		ValueType: v.Type, ValueDecl: v.Decl,
	})
}

// collectSymbolic defers `target = a op b` to the solver's fixpoint when
// both operands are tracked declarations.
func (c *Collector) collectSymbolic(target *frontend.Decl, right *sitter.Node) {
	expr := stripParens(right)
	if expr == nil || expr.Type() != "binary_expression" {
		return
	}
	op, ok := symbolicOp(operatorText(c.unit, expr))
	if !ok {
		return
	}
	lhs := c.resolveDecl(expr.ChildByFieldName("left"))
	rhs := c.resolveDecl(expr.ChildByFieldName("right"))
	if lhs == nil || rhs == nil {
		return
	}
	c.result.Graph.AddSymbolicConstraint(target, op, lhs, rhs)
}

func symbolicOp(op string) (solver.OpKind, bool) {
	switch op {
	case "+":
		return solver.OpAdd, true
	case "-":
		return solver.OpSub, true
	case "*":
		return solver.OpMul, true
	case "/":
		return solver.OpDiv, true
	}
	return 0, false
}

func (c *Collector) collectFor(n *sitter.Node) {
	c.result.Symbols.Push()
	defer c.result.Symbols.Pop()

	var induction *frontend.Decl
	if init := n.ChildByFieldName("initializer"); init != nil {
		if init.Type() == "declaration" {
			c.collectDeclaration(init)
			if gs := c.result.Groups; len(gs) > 0 {
				last := gs[len(gs)-1]
				if len(last.Members) == 1 && last.Node.Equal(init) {
					induction = last.Members[0]
				}
			}
		} else {
			c.walk(init)
		}
	}
	if cond := n.ChildByFieldName("condition"); cond != nil {
		c.collectLoopCondition(induction, cond)
		c.walk(cond)
	}
	if upd := n.ChildByFieldName("update"); upd != nil {
		c.walk(upd)
	}
	if body := n.ChildByFieldName("body"); body != nil {
		c.walk(body)
	}
}

// collectLoopCondition ties the induction variable to its bound so both
// land in one component and adopt the bound's width.
func (c *Collector) collectLoopCondition(induction *frontend.Decl, cond *sitter.Node) {
	cond = stripParens(cond)
	if cond == nil || cond.Type() != "binary_expression" {
		return
	}
	switch operatorText(c.unit, cond) {
	case "<", "<=", ">", ">=", "!=", "==":
	default:
		return
	}
	left := cond.ChildByFieldName("left")
	right := cond.ChildByFieldName("right")

	variable := induction
	boundSide := right
	if variable == nil {
		variable = c.resolveDecl(left)
	} else if ld := c.resolveDecl(left); ld == nil || ld.ID != variable.ID {
		// Condition written bound-first.
		if rd := c.resolveDecl(right); rd != nil && rd.ID == variable.ID {
			boundSide = left
		}
	}
	if variable == nil {
		return
	}
	v := c.typeOf(boundSide)
	if v.Type.IsNull() {
		return
	}
	c.result.Graph.AddLoopComparisonConstraint(variable, v.Type, v.Decl, boundSide)
}

func (c *Collector) collectReturn(n *sitter.Node) {
	if c.currFunc == nil || n.NamedChildCount() == 0 {
		return
	}
	expr := n.NamedChild(0)
	v := c.typeOf(expr)
	if !v.Type.IsNull() {
		c.result.Graph.AddConstraint(c.currFunc, v.Type, expr)
	}
	if v.Decl != nil {
		c.result.Graph.AddEdge(c.currFunc, v.Decl)
	}
}

func (c *Collector) collectCall(n *sitter.Node) {
	fn := n.ChildByFieldName("function")
	args := n.ChildByFieldName("arguments")
	if fn == nil {
		return
	}

	if fn.Type() == "field_expression" {
		c.collectMethodCall(n, fn, args)
		return
	}
	name := c.unit.Text(fn)
	if formatStringIndex(name) >= 0 {
		c.collectFormatCall(n, name, args)
		return
	}
	callee := c.result.Symbols.Function(name)
	if callee == nil || args == nil {
		return
	}
	// Each argument constrains its parameter, as an assignment param = arg.
	for i, arg := range frontend.NamedChildren(args) {
		if i >= len(callee.ParamDecls) {
			break
		}
		param := callee.ParamDecls[i]
		v := c.typeOf(arg)
		if !v.Type.IsNull() {
			c.result.Graph.AddConstraint(param, v.Type, arg)
		}
		if v.Decl != nil {
			c.result.Graph.AddEdge(param, v.Decl)
			// The declared parameter type flows back as well: a variable
			// passed where size_t is expected must hold size_t.
			if pType := c.oracle.Parse(param.TypeText); pType.Scalar {
				c.result.Graph.AddConstraint(v.Decl, pType, arg)
			}
		}
		c.result.Assignments = append(c.result.Assignments, Assignment{
			Unit: c.unit, Target: param, Value: arg, Node: n,
			ValueType: v.Type, ValueDecl: v.Decl,
		})
	}
}

// collectMethodCall handles container mutation calls: the element flowing
// in constrains the container's template argument.
func (c *Collector) collectMethodCall(call, fieldExpr, args *sitter.Node) {
	method := c.unit.Text(fieldExpr.ChildByFieldName("field"))
	switch method {
	case "push_back", "emplace_back", "insert", "push_front", "emplace":
	default:
		return
	}
	container := c.resolveDecl(fieldExpr.ChildByFieldName("argument"))
	if container == nil || args == nil || args.NamedChildCount() == 0 {
		return
	}
	src := c.resolveDecl(args.NamedChild(0))
	if src == nil {
		return
	}
	argNode := templateArgNode(container.TypeNode)
	if argNode == nil {
		return
	}
	c.result.TemplateUses = append(c.result.TemplateUses, TemplateUse{
		Unit:      c.unit,
		Container: container,
		ArgNode:   argNode,
		Source:    src,
	})
}

// templateArgNode digs the first written template argument out of a
// template_type type node.
func templateArgNode(typeNode *sitter.Node) *sitter.Node {
	for typeNode != nil && typeNode.Type() == "qualified_identifier" {
		typeNode = typeNode.ChildByFieldName("name")
	}
	if typeNode == nil || typeNode.Type() != "template_type" {
		return nil
	}
	argsNode := typeNode.ChildByFieldName("arguments")
	if argsNode == nil || argsNode.NamedChildCount() == 0 {
		return nil
	}
	return argsNode.NamedChild(0)
}

// collectPointerArithmetic marks declarations used as pointer offsets.
func (c *Collector) collectPointerArithmetic(n *sitter.Node) {
	switch operatorText(c.unit, n) {
	case "+", "-":
	default:
		return
	}
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	ld := c.resolveDecl(left)
	rd := c.resolveDecl(right)
	if c.isPointer(ld) && rd != nil && !c.isPointer(rd) {
		c.result.Graph.MarkPointerOffset(rd)
	}
	if c.isPointer(rd) && ld != nil && !c.isPointer(ld) {
		c.result.Graph.MarkPointerOffset(ld)
	}
}

// collectSubscript marks p[i] indexes on pointer bases as pointer offsets.
func (c *Collector) collectSubscript(n *sitter.Node) {
	base := c.resolveDecl(n.ChildByFieldName("argument"))
	idx := c.resolveDecl(n.ChildByFieldName("index"))
	if idx == nil || !c.isPointer(base) {
		return
	}
	c.result.Graph.MarkPointerOffset(idx)
}

// collectFieldAccess runs the truncation scan for struct fields touched
// inside the current function.
// collectCast records `(T)expr` sites where expr resolves to a tracked
// declaration. If the declaration later resolves to T, the cast is dropped.
func (c *Collector) collectCast(n *sitter.Node) {
	typeNode := n.ChildByFieldName("type")
	value := n.ChildByFieldName("value")
	if typeNode == nil || value == nil {
		return
	}
	src := c.resolveDecl(stripParens(value))
	if src == nil || src.FromMacroDecl {
		return
	}
	if !c.oracle.Parse(c.unit.Text(typeNode)).Scalar {
		return
	}
	c.result.Casts = append(c.result.Casts, ExplicitCast{
		Unit:     c.unit,
		Node:     n,
		TypeNode: typeNode,
		Value:    value,
		Source:   src,
	})
}

func (c *Collector) collectFieldAccess(n *sitter.Node) {
	if c.currFunc == nil {
		return
	}
	field := c.resolveDecl(n)
	if field == nil || field.Kind != frontend.KindField {
		return
	}
	c.bounds.AnalyzeTruncationSafety(field, c.currFunc, c.unit, c.oracle)
}

func (c *Collector) isPointer(d *frontend.Decl) bool {
	return d != nil && strings.Contains(d.TypeText, "*")
}

func operatorText(u *frontend.Unit, binary *sitter.Node) string {
	if op := binary.ChildByFieldName("operator"); op != nil {
		return u.Text(op)
	}
	if binary.ChildCount() >= 3 {
		return u.Text(binary.Child(1))
	}
	return ""
}

func stripParens(n *sitter.Node) *sitter.Node {
	for n != nil && n.Type() == "parenthesized_expression" {
		if n.NamedChildCount() == 0 {
			return nil
		}
		n = n.NamedChild(0)
	}
	return n
}
