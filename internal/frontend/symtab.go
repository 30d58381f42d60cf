package frontend

// SymbolTable is a lexically scoped name table built during the collector's
// single traversal. Lookups walk from the innermost scope outward.
type SymbolTable struct {
	scopes []map[string]*Decl

	// Flat indexes over file-scope entities, independent of scoping.
	functions map[string]*Decl
	typedefs  map[string]*Decl
	fields    map[string]*Decl // record.field -> decl
}

// NewSymbolTable creates a table with the file scope already open.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		scopes:    []map[string]*Decl{make(map[string]*Decl)},
		functions: make(map[string]*Decl),
		typedefs:  make(map[string]*Decl),
		fields:    make(map[string]*Decl),
	}
}

// Push opens a nested scope.
func (s *SymbolTable) Push() {
	s.scopes = append(s.scopes, make(map[string]*Decl))
}

// Pop closes the innermost scope. The file scope is never popped.
func (s *SymbolTable) Pop() {
	if len(s.scopes) > 1 {
		s.scopes = s.scopes[:len(s.scopes)-1]
	}
}

// Declare binds a name in the innermost scope and updates the flat indexes.
func (s *SymbolTable) Declare(d *Decl) {
	if d == nil || d.Name == "" {
		return
	}
	s.scopes[len(s.scopes)-1][d.Name] = d
	switch d.Kind {
	case KindFunction:
		s.functions[d.Name] = d
	case KindTypedef:
		s.typedefs[d.Name] = d
	case KindField:
		if d.Record != nil {
			s.fields[d.Record.Name+"."+d.Name] = d
		}
	}
}

// Lookup resolves a name through the scope stack.
func (s *SymbolTable) Lookup(name string) *Decl {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if d, ok := s.scopes[i][name]; ok {
			return d
		}
	}
	return nil
}

// Function resolves a function by name regardless of scope.
func (s *SymbolTable) Function(name string) *Decl {
	return s.functions[name]
}

// TypedefByName resolves a typedef declaration by alias name.
func (s *SymbolTable) TypedefByName(name string) *Decl {
	return s.typedefs[name]
}

// Field resolves record.field.
func (s *SymbolTable) Field(record, name string) *Decl {
	return s.fields[record+"."+name]
}

// AtFileScope reports whether only the file scope is open.
func (s *SymbolTable) AtFileScope() bool {
	return len(s.scopes) == 1
}
