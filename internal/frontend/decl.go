package frontend

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// DeclKind tags the variant of a declaration handle.
type DeclKind int

const (
	KindVar DeclKind = iota
	KindParam
	KindField
	KindFunction
	KindTypedef
)

func (k DeclKind) String() string {
	switch k {
	case KindVar:
		return "var"
	case KindParam:
		return "param"
	case KindField:
		return "field"
	case KindFunction:
		return "function"
	case KindTypedef:
		return "typedef"
	}
	return "unknown"
}

// RecordInfo describes the record a field belongs to.
type RecordInfo struct {
	Name    string
	IsUnion bool
	Packed  bool
}

// Decl is the stable handle for a named declaration. The solver keys its
// graph on Decl.ID, never on tree-sitter node addresses.
type Decl struct {
	ID   int
	Kind DeclKind
	Name string
	USR  string
	File string
	Line int

	// TypeText is the written type spelling; TypeNode its source node.
	TypeText string
	TypeNode *sitter.Node
	// DeclNode is the declarator (name) node.
	DeclNode *sitter.Node
	// Init is the initializer expression, when present.
	Init *sitter.Node

	// Function-only.
	Body       *sitter.Node
	ParamTypes []string
	ParamDecls []*Decl

	// Field-only.
	Record     *RecordInfo
	IsBitfield bool

	// Typedef-only: the underlying written type.
	Underlying string

	// MacroType names the object-like macro the type spelling came from, if
	// any. Rewrites for such declarations route to the macro body.
	MacroType string

	// FromMacroDecl marks pseudo-declarations recovered from a #define body
	// that expands to a whole declaration. Never rewritable.
	FromMacroDecl bool

	// FileScope is true for globals, functions, fields, and typedefs, the
	// declarations whose facts are shared across translation units.
	FileScope bool
}

// Table assigns stable integer IDs to declarations within a session.
type Table struct {
	decls []*Decl
}

// NewTable creates an empty declaration table.
func NewTable() *Table {
	return &Table{}
}

// Add registers a declaration and assigns its ID.
func (t *Table) Add(d *Decl) *Decl {
	d.ID = len(t.decls)
	t.decls = append(t.decls, d)
	return d
}

// All returns every registered declaration in insertion order.
func (t *Table) All() []*Decl {
	return t.decls
}

// Get returns the declaration with the given ID.
func (t *Table) Get(id int) *Decl {
	if id < 0 || id >= len(t.decls) {
		return nil
	}
	return t.decls[id]
}

// BuildUSR produces the cross-TU identifier for a declaration. File-scope
// symbols get location-independent USRs so facts merge across units; locals
// embed the file and enclosing function.
func BuildUSR(d *Decl, enclosingFunc string) string {
	switch d.Kind {
	case KindFunction:
		return "c:@F@" + d.Name
	case KindTypedef:
		return "c:@T@" + d.Name
	case KindField:
		record := ""
		if d.Record != nil {
			record = d.Record.Name
		}
		return fmt.Sprintf("c:@S@%s@FI@%s", record, d.Name)
	default:
		if d.FileScope {
			return "c:@V@" + d.Name
		}
		if enclosingFunc != "" {
			return fmt.Sprintf("c:%s@F@%s@%s", d.File, enclosingFunc, d.Name)
		}
		return fmt.Sprintf("c:%s@%s", d.File, d.Name)
	}
}
