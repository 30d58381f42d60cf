package frontend

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Declarator is one name carved out of a (possibly multi-name) declaration.
type Declarator struct {
	NameNode *sitter.Node
	Name     string
	Init     *sitter.Node
	// Node is the outermost declarator node (init_declarator or the bare
	// declarator), used for multi-declarator splitting.
	Node *sitter.Node
	// Pointer is true when the declared entity is a pointer.
	Pointer bool
	// Function is true for prototypes (`size_t strlen(const char*);`).
	Function bool
	// Params is the parameter_list when Function is set.
	Params *sitter.Node
}

// SplitDeclaration breaks a `declaration` node into its written type node
// and the individual declarators.
func (u *Unit) SplitDeclaration(decl *sitter.Node) (*sitter.Node, []Declarator) {
	if decl == nil {
		return nil, nil
	}
	typeNode := decl.ChildByFieldName("type")
	var out []Declarator
	for _, child := range NamedChildren(decl) {
		if typeNode != nil && child.Equal(typeNode) {
			continue
		}
		switch child.Type() {
		case "init_declarator", "identifier", "pointer_declarator",
			"array_declarator", "function_declarator", "parenthesized_declarator",
			"reference_declarator":
			if d, ok := u.unwrapDeclarator(child); ok {
				out = append(out, d)
			}
		}
	}
	return typeNode, out
}

// unwrapDeclarator drills through declarator wrappers to the name.
func (u *Unit) unwrapDeclarator(node *sitter.Node) (Declarator, bool) {
	d := Declarator{Node: node}
	cur := node
	if cur.Type() == "init_declarator" {
		d.Init = cur.ChildByFieldName("value")
		cur = cur.ChildByFieldName("declarator")
	}
	for cur != nil {
		switch cur.Type() {
		case "pointer_declarator", "reference_declarator":
			d.Pointer = true
			cur = declaratorChild(cur)
		case "array_declarator", "parenthesized_declarator":
			cur = declaratorChild(cur)
		case "function_declarator":
			d.Function = true
			d.Params = cur.ChildByFieldName("parameters")
			cur = cur.ChildByFieldName("declarator")
		case "identifier", "field_identifier", "type_identifier", "operator_name":
			d.NameNode = cur
			d.Name = u.Text(cur)
			return d, true
		default:
			return d, false
		}
	}
	return d, false
}

func declaratorChild(node *sitter.Node) *sitter.Node {
	if c := node.ChildByFieldName("declarator"); c != nil {
		return c
	}
	// parenthesized_declarator has no field; take the first named child.
	for _, c := range NamedChildren(node) {
		return c
	}
	return nil
}

// Param is one parameter of a function declarator.
type Param struct {
	Name     string
	NameNode *sitter.Node
	TypeText string
	TypeNode *sitter.Node
	Pointer  bool
}

// Params extracts the parameters from a parameter_list node.
func (u *Unit) Params(paramList *sitter.Node) []Param {
	if paramList == nil {
		return nil
	}
	var out []Param
	for _, child := range NamedChildren(paramList) {
		if child.Type() != "parameter_declaration" && child.Type() != "optional_parameter_declaration" {
			continue
		}
		p := Param{}
		if tn := child.ChildByFieldName("type"); tn != nil {
			p.TypeNode = tn
			p.TypeText = u.Text(tn)
		}
		if dn := child.ChildByFieldName("declarator"); dn != nil {
			if d, ok := u.unwrapDeclarator(dn); ok {
				p.Name = d.Name
				p.NameNode = d.NameNode
				p.Pointer = d.Pointer
			}
		}
		if p.Pointer {
			p.TypeText = p.TypeText + " *"
		}
		out = append(out, p)
	}
	return out
}

// FunctionInfo is the structural view of a function definition or prototype.
type FunctionInfo struct {
	Name       string
	NameNode   *sitter.Node
	ReturnNode *sitter.Node
	ReturnText string
	Params     []Param
	Body       *sitter.Node
}

// FunctionDefinition pulls apart a function_definition node. Returns false
// when the declarator cannot be resolved to a plain name.
func (u *Unit) FunctionDefinition(node *sitter.Node) (FunctionInfo, bool) {
	if node == nil || node.Type() != "function_definition" {
		return FunctionInfo{}, false
	}
	info := FunctionInfo{Body: node.ChildByFieldName("body")}
	if tn := node.ChildByFieldName("type"); tn != nil {
		info.ReturnNode = tn
		info.ReturnText = u.Text(tn)
	}
	declarator := node.ChildByFieldName("declarator")
	if declarator == nil {
		return info, false
	}
	d, ok := u.unwrapDeclarator(declarator)
	if !ok || !d.Function {
		return info, false
	}
	info.Name = d.Name
	info.NameNode = d.NameNode
	info.Params = u.Params(d.Params)
	return info, true
}

// FieldInfo is one field of a record.
type FieldInfo struct {
	Name       string
	NameNode   *sitter.Node
	TypeNode   *sitter.Node
	TypeText   string
	IsBitfield bool
}

// RecordFields extracts the record name, attributes, and fields from a
// struct/union/class specifier node.
func (u *Unit) RecordFields(node *sitter.Node) (RecordInfo, []FieldInfo) {
	info := RecordInfo{IsUnion: node.Type() == "union_specifier"}
	if nn := node.ChildByFieldName("name"); nn != nil {
		info.Name = u.Text(nn)
	}
	for _, child := range Children(node) {
		t := child.Type()
		if t == "attribute_specifier" || t == "attribute_declaration" || t == "ms_declspec_modifier" {
			if strings.Contains(u.Text(child), "packed") {
				info.Packed = true
			}
		}
	}

	body := node.ChildByFieldName("body")
	if body == nil {
		return info, nil
	}
	var fields []FieldInfo
	for _, child := range NamedChildren(body) {
		if child.Type() != "field_declaration" {
			continue
		}
		typeNode := child.ChildByFieldName("type")
		bitfield := false
		for _, fc := range NamedChildren(child) {
			if fc.Type() == "bitfield_clause" {
				bitfield = true
			}
		}
		for _, fc := range NamedChildren(child) {
			switch fc.Type() {
			case "field_identifier":
				fields = append(fields, FieldInfo{
					Name:       u.Text(fc),
					NameNode:   fc,
					TypeNode:   typeNode,
					TypeText:   u.Text(typeNode),
					IsBitfield: bitfield,
				})
			case "pointer_declarator", "array_declarator":
				if d, ok := u.unwrapDeclarator(fc); ok {
					text := u.Text(typeNode)
					if d.Pointer {
						text += " *"
					}
					fields = append(fields, FieldInfo{
						Name:       d.Name,
						NameNode:   d.NameNode,
						TypeNode:   typeNode,
						TypeText:   text,
						IsBitfield: bitfield,
					})
				}
			}
		}
	}
	return info, fields
}

// TypedefInfo is the structural view of a type_definition node.
type TypedefInfo struct {
	Name       string
	NameNode   *sitter.Node
	Underlying string
	TypeNode   *sitter.Node
	// Function is true for function-pointer typedefs, which the solver
	// leaves alone.
	Function bool
	Pointer  bool
}

// Typedef pulls apart `typedef <underlying> <name>;`.
func (u *Unit) Typedef(node *sitter.Node) (TypedefInfo, bool) {
	if node == nil || node.Type() != "type_definition" {
		return TypedefInfo{}, false
	}
	info := TypedefInfo{}
	if tn := node.ChildByFieldName("type"); tn != nil {
		info.TypeNode = tn
		info.Underlying = u.Text(tn)
	}
	dn := node.ChildByFieldName("declarator")
	if dn == nil {
		return info, false
	}
	d, ok := u.unwrapDeclarator(dn)
	if !ok {
		return info, false
	}
	info.Name = d.Name
	info.NameNode = d.NameNode
	info.Function = d.Function
	info.Pointer = d.Pointer
	return info, true
}

// ObjectMacro is a simple `#define NAME TEXT` definition. A trailing
// comment on the define line is not part of the value.
type ObjectMacro struct {
	Name      string
	Value     string
	ValueNode *sitter.Node
	// ValueEnd is the byte offset where the meaningful body ends; a body
	// rewrite must stop there so a trailing comment survives.
	ValueEnd uint32
	Node     *sitter.Node
}

// ObjectMacros collects all object-like macro definitions in the unit.
// Function-like macros parse as preproc_function_def and are skipped.
func (u *Unit) ObjectMacros() []ObjectMacro {
	var out []ObjectMacro
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.Type() == "preproc_def" {
			name := n.ChildByFieldName("name")
			value := n.ChildByFieldName("value")
			if name != nil && value != nil {
				body, end := macroBody(u.Text(value), value.StartByte())
				out = append(out, ObjectMacro{
					Name:      u.Text(name),
					Value:     body,
					ValueNode: value,
					ValueEnd:  end,
					Node:      n,
				})
			}
			return
		}
		// Macros sit at the top level or inside conditional preproc blocks.
		for _, c := range NamedChildren(n) {
			switch c.Type() {
			case "preproc_def", "preproc_ifdef", "preproc_if", "preproc_else", "preproc_elif":
				walk(c)
			}
		}
	}
	walk(u.Root)
	return out
}

// macroBody strips a trailing line or block comment from a macro value and
// reports where the remaining body ends in the source.
func macroBody(raw string, start uint32) (string, uint32) {
	body := raw
	if i := strings.Index(body, "//"); i >= 0 {
		body = body[:i]
	}
	if i := strings.Index(body, "/*"); i >= 0 {
		body = body[:i]
	}
	body = strings.TrimRight(body, " \t")
	return strings.TrimSpace(body), start + uint32(len(body))
}
