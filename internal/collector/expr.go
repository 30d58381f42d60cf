package collector

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"intcorrect/internal/ctype"
	"intcorrect/internal/frontend"
)

// exprValue is the typer's verdict on one expression.
type exprValue struct {
	Type ctype.Type
	// Decl is set when the expression reduces to a tracked declaration.
	Decl *frontend.Decl
	// Const carries a compile-time integer value when one is known.
	HasConst bool
	Const    int64
}

// sizeReturning maps well-known library calls to size_t without needing
// their prototypes in scope.
var sizeReturning = map[string]bool{
	"strlen":  true,
	"strnlen": true,
	"wcslen":  true,
	"fread":   true,
	"fwrite":  true,
}

// sizeMethods are container members returning size_type.
var sizeMethods = map[string]bool{
	"size":     true,
	"length":   true,
	"capacity": true,
	"max_size": true,
}

// typeOf computes the static type of an expression from declared types and
// literal values. Unknown shapes yield a null type; the caller degrades.
func (c *Collector) typeOf(n *sitter.Node) exprValue {
	n = stripParens(n)
	if n == nil {
		return exprValue{}
	}
	switch n.Type() {
	case "number_literal":
		return literalValue(c.unit.Text(n))
	case "char_literal":
		return exprValue{Type: c.oracle.Parse("char")}
	case "identifier", "field_expression", "qualified_identifier":
		if d := c.resolveDecl(n); d != nil {
			return exprValue{Type: c.oracle.Parse(d.TypeText), Decl: d}
		}
		return exprValue{}
	case "call_expression":
		return c.typeOfCall(n)
	case "binary_expression":
		return c.typeOfBinary(n)
	case "unary_expression":
		return c.typeOfUnary(n)
	case "update_expression":
		return c.typeOf(n.ChildByFieldName("argument"))
	case "cast_expression":
		// An explicit cast caps the expression at the written type.
		return exprValue{Type: c.oracle.Parse(c.unit.Text(n.ChildByFieldName("type")))}
	case "sizeof_expression":
		return exprValue{Type: ctype.SizeT}
	case "conditional_expression":
		a := c.typeOf(n.ChildByFieldName("consequence"))
		b := c.typeOf(n.ChildByFieldName("alternative"))
		return exprValue{Type: ctype.WiderInteger(a.Type, b.Type)}
	case "subscript_expression":
		// Element type is unknown without full array typing.
		return exprValue{}
	}
	return exprValue{}
}

func (c *Collector) typeOfCall(n *sitter.Node) exprValue {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return exprValue{}
	}
	switch fn.Type() {
	case "identifier", "qualified_identifier":
		name := c.unit.Text(fn)
		if sizeReturning[name] {
			return exprValue{Type: ctype.SizeT}
		}
		if callee := c.result.Symbols.Function(name); callee != nil {
			return exprValue{Type: c.oracle.Parse(callee.TypeText), Decl: callee}
		}
	case "field_expression":
		method := c.unit.Text(fn.ChildByFieldName("field"))
		if sizeMethods[method] {
			return exprValue{Type: ctype.SizeT}
		}
	case "template_function":
		// static_cast<T>(x) parses as a call of a template_function.
		name := fn.ChildByFieldName("name")
		if name != nil && isCastKeyword(c.unit.Text(name)) {
			if args := fn.ChildByFieldName("arguments"); args != nil && args.NamedChildCount() > 0 {
				return exprValue{Type: c.oracle.Parse(c.unit.Text(args.NamedChild(0)))}
			}
		}
	}
	return exprValue{}
}

func isCastKeyword(name string) bool {
	switch name {
	case "static_cast", "reinterpret_cast", "const_cast":
		return true
	}
	return false
}

func (c *Collector) typeOfBinary(n *sitter.Node) exprValue {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	lv := c.typeOf(left)
	rv := c.typeOf(right)

	// Pointer difference is ptrdiff_t regardless of operand spellings.
	if operatorText(c.unit, n) == "-" && c.isPointer(lv.Decl) && c.isPointer(rv.Decl) {
		return exprValue{Type: ctype.PtrdiffT}
	}
	out := exprValue{Type: ctype.WiderInteger(lv.Type, rv.Type)}
	if lv.HasConst && rv.HasConst {
		if v, ok := foldConst(operatorText(c.unit, n), lv.Const, rv.Const); ok {
			out.HasConst = true
			out.Const = v
		}
	}
	return out
}

func foldConst(op string, a, b int64) (int64, bool) {
	switch op {
	case "+":
		return a + b, true
	case "-":
		return a - b, true
	case "*":
		return a * b, true
	case "/":
		if b != 0 {
			return a / b, true
		}
	}
	return 0, false
}

func (c *Collector) typeOfUnary(n *sitter.Node) exprValue {
	arg := n.ChildByFieldName("argument")
	v := c.typeOf(arg)
	if op := n.ChildByFieldName("operator"); op != nil && c.unit.Text(op) == "-" {
		if v.HasConst {
			return exprValue{Type: v.Type, HasConst: true, Const: -v.Const}
		}
		// Negation of an unknown value still rules out unsigned results.
		return exprValue{Type: v.Type, HasConst: true, Const: -1}
	}
	v.Decl = nil
	return v
}

// literalValue types an integer literal from its text, honoring suffixes.
func literalValue(text string) exprValue {
	t := strings.TrimSpace(text)
	lower := strings.ToLower(t)
	unsigned := strings.Contains(lower, "u")
	longs := strings.Count(lower, "l")
	trimmed := strings.TrimRight(lower, "ul")

	val, err := strconv.ParseInt(trimmed, 0, 64)
	if err != nil {
		if uval, uerr := strconv.ParseUint(trimmed, 0, 64); uerr == nil {
			return exprValue{Type: ctype.SizeT, HasConst: false, Const: int64(uval)}
		}
		// Floating literal or unparsable; no integer verdict.
		return exprValue{}
	}

	var typ ctype.Type
	switch {
	case unsigned && longs >= 1:
		typ = ctype.ULong
	case unsigned:
		typ = ctype.UInt
	case longs >= 2:
		typ = ctype.LongLong
	case longs == 1:
		typ = ctype.Long
	case val > 0x7FFFFFFF || val < -0x80000000:
		typ = ctype.LongLong
	default:
		typ = ctype.Int
	}
	return exprValue{Type: typ, HasConst: true, Const: val}
}

// resolveDecl reduces an lvalue-ish expression to its declaration: plain
// identifiers through the scope stack, field expressions through the record
// index, subscripts and dereferences to their base.
func (c *Collector) resolveDecl(n *sitter.Node) *frontend.Decl {
	n = stripParens(n)
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "identifier":
		return c.result.Symbols.Lookup(c.unit.Text(n))
	case "field_expression":
		return c.resolveFieldExpr(n)
	case "pointer_expression":
		return c.resolveDecl(n.ChildByFieldName("argument"))
	case "qualified_identifier":
		if name := n.ChildByFieldName("name"); name != nil {
			return c.result.Symbols.Lookup(c.unit.Text(name))
		}
	}
	return nil
}

// resolveFieldExpr maps `obj.field` / `p->field` to the field declaration
// via the object's record type.
func (c *Collector) resolveFieldExpr(n *sitter.Node) *frontend.Decl {
	fieldName := c.unit.Text(n.ChildByFieldName("field"))
	obj := c.resolveDecl(n.ChildByFieldName("argument"))
	if obj == nil || fieldName == "" {
		return nil
	}
	record := recordName(obj.TypeText)
	if record == "" {
		return nil
	}
	return c.result.Symbols.Field(record, fieldName)
}

// recordName strips struct/union keywords, qualifiers, and pointer marks
// from a type spelling to recover the record name.
func recordName(typeText string) string {
	s := strings.ReplaceAll(typeText, "*", " ")
	fields := strings.Fields(s)
	out := ""
	for _, f := range fields {
		switch f {
		case "struct", "union", "class", "const", "volatile":
			continue
		}
		out = f
	}
	return out
}
