package boundary

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"intcorrect/internal/ctype"
	"intcorrect/internal/frontend"
)

// AnalyzeTruncationSafety inspects how a field is consumed inside one
// function and flags the field when widening it would silently truncate at
// an existing narrowing site (an explicit cast of the field to a narrower
// integer). Each field/function pair is analyzed once per session.
func (a *Analyzer) AnalyzeTruncationSafety(field, fn *frontend.Decl, u *frontend.Unit, oracle *ctype.Oracle) {
	if field == nil || fn == nil || fn.Body == nil {
		return
	}
	pair := [2]int{field.ID, fn.ID}
	if a.analyzedPairs[pair] {
		return
	}
	a.analyzedPairs[pair] = true

	fieldType := oracle.Parse(field.TypeText)
	if !fieldType.Scalar {
		return
	}

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.Type() == "cast_expression" {
			castType := oracle.Parse(u.Text(n.ChildByFieldName("type")))
			value := n.ChildByFieldName("value")
			if castType.Scalar && castType.Width < fieldType.Width &&
				value != nil && mentionsField(u, value, field.Name) {
				a.truncationUnsafe[field.ID] = true
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(fn.Body)
}

// IsTruncationUnsafe reports whether a field was flagged by analysis.
func (a *Analyzer) IsTruncationUnsafe(field *frontend.Decl) bool {
	return field != nil && a.truncationUnsafe[field.ID]
}

func mentionsField(u *frontend.Unit, expr *sitter.Node, name string) bool {
	if expr.Type() == "field_expression" {
		if f := expr.ChildByFieldName("field"); f != nil && u.Text(f) == name {
			return true
		}
	}
	if expr.Type() == "identifier" {
		return u.Text(expr) == name
	}
	for i := 0; i < int(expr.NamedChildCount()); i++ {
		if mentionsField(u, expr.NamedChild(i), name) {
			return true
		}
	}
	return strings.Contains(u.Text(expr), "."+name) || strings.Contains(u.Text(expr), "->"+name)
}
