package frontend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, filename, src string) *Unit {
	t.Helper()
	u, err := ParseSource(context.Background(), filename, []byte(src))
	require.NoError(t, err)
	return u
}

func findNode(n *sitter.Node, typ string) *sitter.Node {
	if n == nil {
		return nil
	}
	if n.Type() == typ {
		return n
	}
	for _, c := range NamedChildren(n) {
		if found := findNode(c, typ); found != nil {
			return found
		}
	}
	return nil
}

func TestLanguageForExtensions(t *testing.T) {
	_, name, err := LanguageFor("main.c")
	require.NoError(t, err)
	assert.Equal(t, "c", name)

	_, name, err = LanguageFor("main.cpp")
	require.NoError(t, err)
	assert.Equal(t, "cpp", name)

	// Headers parse as C++ so templates survive.
	_, name, err = LanguageFor("util.h")
	require.NoError(t, err)
	assert.Equal(t, "cpp", name)

	_, _, err = LanguageFor("notes.txt")
	assert.Error(t, err)
}

func TestParseSourceTextAndLine(t *testing.T) {
	u := parse(t, "a.c", "int x = 1;\nint y = 2;\n")
	assert.False(t, u.IsCpp())
	require.NotNil(t, u.Root)

	decls := NamedChildren(u.Root)
	require.Len(t, decls, 2)
	assert.Equal(t, "int x = 1;", u.Text(decls[0]))
	assert.Equal(t, 2, u.Line(decls[1]))
	assert.Equal(t, "", u.Text(nil))
}

func TestSplitDeclarationMultipleDeclarators(t *testing.T) {
	u := parse(t, "a.c", "unsigned long a = 1, *p, b[4];\n")
	decl := NamedChildren(u.Root)[0]
	require.Equal(t, "declaration", decl.Type())

	typeNode, drs := u.SplitDeclaration(decl)
	require.NotNil(t, typeNode)
	assert.Equal(t, "unsigned long", u.Text(typeNode))
	require.Len(t, drs, 3)

	assert.Equal(t, "a", drs[0].Name)
	require.NotNil(t, drs[0].Init)
	assert.Equal(t, "1", u.Text(drs[0].Init))

	assert.Equal(t, "p", drs[1].Name)
	assert.True(t, drs[1].Pointer)

	assert.Equal(t, "b", drs[2].Name)
	assert.False(t, drs[2].Pointer)
}

func TestSplitDeclarationPrototype(t *testing.T) {
	u := parse(t, "a.c", "long count_bytes(const char *s, int limit);\n")
	decl := NamedChildren(u.Root)[0]

	_, drs := u.SplitDeclaration(decl)
	require.Len(t, drs, 1)
	assert.True(t, drs[0].Function)
	assert.Equal(t, "count_bytes", drs[0].Name)

	params := u.Params(drs[0].Params)
	require.Len(t, params, 2)
	assert.Equal(t, "s", params[0].Name)
	assert.True(t, params[0].Pointer)
	assert.Equal(t, "char *", params[0].TypeText)
	assert.Equal(t, "limit", params[1].Name)
	assert.Equal(t, "int", params[1].TypeText)
}

func TestFunctionDefinition(t *testing.T) {
	u := parse(t, "a.c", "static int sum(int *vals, int n) { return 0; }\n")
	var fn FunctionInfo
	for _, n := range NamedChildren(u.Root) {
		if n.Type() == "function_definition" {
			info, ok := u.FunctionDefinition(n)
			require.True(t, ok)
			fn = info
		}
	}
	assert.Equal(t, "sum", fn.Name)
	assert.Equal(t, "int", fn.ReturnText)
	require.NotNil(t, fn.Body)
	require.Len(t, fn.Params, 2)
	assert.True(t, fn.Params[0].Pointer)
}

func TestRecordFields(t *testing.T) {
	u := parse(t, "a.c", `
struct packet {
	int length;
	char *name;
	unsigned flags : 3;
};
`)
	spec := findNode(u.Root, "struct_specifier")
	require.NotNil(t, spec)
	info, fields := u.RecordFields(spec)
	assert.Equal(t, "packet", info.Name)
	assert.False(t, info.IsUnion)
	require.Len(t, fields, 3)
	assert.Equal(t, "length", fields[0].Name)
	assert.Equal(t, "int", fields[0].TypeText)
	assert.Equal(t, "name", fields[1].Name)
	assert.Equal(t, "char *", fields[1].TypeText)
	assert.Equal(t, "flags", fields[2].Name)
	assert.True(t, fields[2].IsBitfield)
}

func TestTypedef(t *testing.T) {
	u := parse(t, "a.c", "typedef unsigned short port_t;\ntypedef void (*cb_t)(int);\n")
	var infos []TypedefInfo
	for _, n := range NamedChildren(u.Root) {
		if n.Type() == "type_definition" {
			info, ok := u.Typedef(n)
			require.True(t, ok)
			infos = append(infos, info)
		}
	}
	require.Len(t, infos, 2)
	assert.Equal(t, "port_t", infos[0].Name)
	assert.Equal(t, "unsigned short", infos[0].Underlying)
	assert.False(t, infos[0].Function)
	assert.Equal(t, "cb_t", infos[1].Name)
	assert.True(t, infos[1].Function)
}

func TestObjectMacros(t *testing.T) {
	u := parse(t, "a.c", `
#define MAX_LEN 128
#define COUNT_T unsigned int
#ifdef DEBUG
#define VERBOSE 1
#endif
#define SQUARE(x) ((x) * (x))
`)
	macros := u.ObjectMacros()
	names := make([]string, 0, len(macros))
	for _, m := range macros {
		names = append(names, m.Name)
	}
	assert.Contains(t, names, "MAX_LEN")
	assert.Contains(t, names, "COUNT_T")
	assert.Contains(t, names, "VERBOSE")
	assert.NotContains(t, names, "SQUARE")

	for _, m := range macros {
		if m.Name == "COUNT_T" {
			assert.Equal(t, "unsigned int", m.Value)
		}
	}
}

func TestSymbolTableScoping(t *testing.T) {
	tab := NewSymbolTable()
	outer := &Decl{ID: 0, Kind: KindVar, Name: "x"}
	tab.Declare(outer)
	assert.True(t, tab.AtFileScope())

	tab.Push()
	assert.False(t, tab.AtFileScope())
	inner := &Decl{ID: 1, Kind: KindVar, Name: "x"}
	tab.Declare(inner)
	assert.Same(t, inner, tab.Lookup("x"))

	tab.Pop()
	assert.Same(t, outer, tab.Lookup("x"))
	assert.Nil(t, tab.Lookup("y"))

	fn := &Decl{ID: 2, Kind: KindFunction, Name: "f"}
	tab.Declare(fn)
	assert.Same(t, fn, tab.Function("f"))

	fld := &Decl{ID: 3, Kind: KindField, Name: "len", Record: &RecordInfo{Name: "buf"}}
	tab.Declare(fld)
	assert.Same(t, fld, tab.Field("buf", "len"))
}

func TestBuildUSR(t *testing.T) {
	assert.Equal(t, "c:@F@main", BuildUSR(&Decl{Kind: KindFunction, Name: "main"}, ""))
	assert.Equal(t, "c:@T@off_t", BuildUSR(&Decl{Kind: KindTypedef, Name: "off_t"}, ""))
	assert.Equal(t, "c:@S@buf@FI@len",
		BuildUSR(&Decl{Kind: KindField, Name: "len", Record: &RecordInfo{Name: "buf"}}, ""))
	assert.Equal(t, "c:@V@total", BuildUSR(&Decl{Kind: KindVar, Name: "total", FileScope: true}, ""))

	local := BuildUSR(&Decl{Kind: KindVar, Name: "i", File: "a.c"}, "main")
	assert.Equal(t, "c:a.c@F@main@i", local)
}

func TestScanIncludes(t *testing.T) {
	dir := t.TempDir()
	write := func(name, src string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(src), 0o644))
		return p
	}
	util := write("util.h", "#include <stddef.h>\nsize_t count(void);\n")
	inner := write("inner.h", "#include \"util.h\"\n")
	main := write("main.c", "#include \"inner.h\"\n#include <stdio.h>\nint main(void) { return 0; }\n")

	g := ScanIncludes(main, nil)
	assert.Equal(t, main, g.Main())

	utilAbs, _ := filepath.Abs(util)
	innerAbs, _ := filepath.Abs(inner)

	inc, ok := g.IncluderOf(innerAbs)
	require.True(t, ok)
	assert.Equal(t, main, inc)

	inc, ok = g.IncluderOf(utilAbs)
	require.True(t, ok)
	assert.Equal(t, innerAbs, inc)

	assert.True(t, g.IsSystem("stdio.h"))
	assert.True(t, g.IsSystem("stddef.h"))
	assert.False(t, g.IsSystem(utilAbs))

	all := g.All()
	assert.Contains(t, all, utilAbs)
	assert.Contains(t, all, innerAbs)
	assert.True(t, g.Known(main))
	assert.False(t, g.Known(filepath.Join(dir, "ghost.h")))
}

func TestScanIncludesCycle(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.h")
	b := filepath.Join(dir, "b.h")
	require.NoError(t, os.WriteFile(a, []byte("#include \"b.h\"\n"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("#include \"a.h\"\n"), 0o644))

	g := ScanIncludes(a, nil)
	bAbs, _ := filepath.Abs(b)
	_, ok := g.IncluderOf(bAbs)
	assert.True(t, ok)
}

func TestObjectMacroTrailingComment(t *testing.T) {
	u := parse(t, "a.c", `
#define COUNT_T unsigned int // element count
#define MAX_LEN 128 /* bytes */
`)
	macros := u.ObjectMacros()
	require.Len(t, macros, 2)

	assert.Equal(t, "COUNT_T", macros[0].Name)
	assert.Equal(t, "unsigned int", macros[0].Value)
	end := macros[0].ValueNode.StartByte() + uint32(len("unsigned int"))
	assert.Equal(t, end, macros[0].ValueEnd)

	assert.Equal(t, "MAX_LEN", macros[1].Name)
	assert.Equal(t, "128", macros[1].Value)
}
