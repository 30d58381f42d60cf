package collector

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intcorrect/internal/boundary"
	"intcorrect/internal/ctype"
	"intcorrect/internal/frontend"
	"intcorrect/internal/solver"
)

func collect(t *testing.T, filename, src string) *Result {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, filename)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	unit, err := frontend.ParseFile(context.Background(), path)
	require.NoError(t, err)
	includes := frontend.ScanIncludes(path, nil)
	bounds := boundary.NewAnalyzer(boundary.Options{AllowABIChanges: true, ProjectRoot: dir}, includes)

	res, err := New(unit, ctype.NewOracle(), bounds, nil, Options{}).Run(context.Background())
	require.NoError(t, err)
	return res
}

func declByName(t *testing.T, res *Result, name string) *frontend.Decl {
	t.Helper()
	for _, d := range res.Decls.All() {
		if d.Name == name {
			return d
		}
	}
	t.Fatalf("declaration %q not collected", name)
	return nil
}

func solve(res *Result) map[int]solver.Update {
	return res.Graph.Solve()
}

func TestLoopIndexWidensToBound(t *testing.T) {
	res := collect(t, "main.c", `
void f(const char *s) {
    for (int i = 0; i < strlen(s); i++) {
    }
}
`)
	i := declByName(t, res, "i")
	updates := solve(res)
	require.Contains(t, updates, i.ID)
	assert.Equal(t, "size_t", updates[i.ID].NewType.Spelling)
}

func TestAssignmentWidensTarget(t *testing.T) {
	res := collect(t, "main.c", `
void f(const char *s) {
    int total;
    total = strlen(s);
}
`)
	total := declByName(t, res, "total")
	updates := solve(res)
	require.Contains(t, updates, total.ID)
	assert.Equal(t, "size_t", updates[total.ID].NewType.Spelling)
}

func TestNegativeValueKeepsSignedType(t *testing.T) {
	res := collect(t, "main.c", `
void f(const char *s) {
    int x = -5;
    x = strlen(s);
}
`)
	x := declByName(t, res, "x")
	updates := solve(res)
	assert.NotContains(t, updates, x.ID)
}

func TestFormatCallSpecifiersTracked(t *testing.T) {
	res := collect(t, "main.c", `
void f(const char *s) {
    int n = 0;
    printf("len=%d\n", n);
}
`)
	require.Len(t, res.FormatCalls, 1)
	require.Len(t, res.FormatCalls[0].Specs, 1)
	spec := res.FormatCalls[0].Specs[0]
	assert.Equal(t, "d", spec.Text)
	assert.Equal(t, "n", spec.Arg.Name)
}

func TestTypedefPuntReceivesWidening(t *testing.T) {
	res := collect(t, "main.c", `
typedef int myint;
myint v;
void f(const char *s) {
    v = strlen(s);
}
`)
	td := declByName(t, res, "myint")
	v := declByName(t, res, "v")
	updates := solve(res)
	require.Contains(t, updates, td.ID, "widening must land on the typedef")
	assert.Equal(t, "size_t", updates[td.ID].NewType.Spelling)
	assert.NotContains(t, updates, v.ID, "alias spelling at the use site stays")
}

func TestPointerDifferenceFloorsAtPtrdiff(t *testing.T) {
	res := collect(t, "main.c", `
void f(char *p, char *q) {
    int d;
    d = p - q;
}
`)
	d := declByName(t, res, "d")
	updates := solve(res)
	require.Contains(t, updates, d.ID)
	assert.Equal(t, "ptrdiff_t", updates[d.ID].NewType.Spelling)
}

func TestSubscriptIndexMarkedPointerOffset(t *testing.T) {
	res := collect(t, "main.c", `
void f(char *p) {
    int i = 0;
    char c = p[i];
}
`)
	i := declByName(t, res, "i")
	updates := solve(res)
	require.Contains(t, updates, i.ID)
	assert.Equal(t, "ptrdiff_t", updates[i.ID].NewType.Spelling)
}

func TestCallArgumentConstrainsParameter(t *testing.T) {
	res := collect(t, "main.c", `
void use(int n) {
}
void caller(const char *s) {
    use(strlen(s));
}
`)
	n := declByName(t, res, "n")
	updates := solve(res)
	require.Contains(t, updates, n.ID)
	assert.Equal(t, "size_t", updates[n.ID].NewType.Spelling)
}

func TestContainerPushRecordsTemplateUse(t *testing.T) {
	res := collect(t, "main.cpp", `
void f(const char *s) {
    std::vector<int> v;
    size_t n = strlen(s);
    v.push_back(n);
}
`)
	require.Len(t, res.TemplateUses, 1)
	use := res.TemplateUses[0]
	assert.Equal(t, "v", use.Container.Name)
	assert.Equal(t, "n", use.Source.Name)
	assert.Equal(t, "int", res.Unit.Text(use.ArgNode))
}

func TestMacroTypeAliasRoutesToMacro(t *testing.T) {
	res := collect(t, "main.c", `
#define COUNT_T int
COUNT_T c;
void f(const char *s) {
    c = strlen(s);
}
`)
	c := declByName(t, res, "c")
	assert.Equal(t, "COUNT_T", c.MacroType)
	updates := solve(res)
	require.Contains(t, updates, c.ID)
	assert.Equal(t, "size_t", updates[c.ID].NewType.Spelling)
}

func TestMacroDeclarationStaysFixed(t *testing.T) {
	res := collect(t, "main.c", `
#define DEF_COUNTER int counter = 0
void f(const char *s) {
    counter = strlen(s);
}
`)
	counter := declByName(t, res, "counter")
	assert.True(t, counter.FromMacroDecl)
	updates := solve(res)
	assert.NotContains(t, updates, counter.ID)

	found := false
	for _, a := range res.Assignments {
		if a.Target.ID == counter.ID {
			found = true
		}
	}
	assert.True(t, found, "assignment site must be staged for cast injection")
}

func TestFunctionReturnWidens(t *testing.T) {
	res := collect(t, "main.c", `
int count(const char *s) {
    return strlen(s);
}
`)
	fn := declByName(t, res, "count")
	updates := solve(res)
	require.Contains(t, updates, fn.ID)
	assert.Equal(t, "size_t", updates[fn.ID].NewType.Spelling)
}

func TestStructFieldCollected(t *testing.T) {
	res := collect(t, "main.c", `
struct buf {
    int len;
};
void f(struct buf *b, const char *s) {
    b->len = strlen(s);
}
`)
	field := declByName(t, res, "len")
	assert.Equal(t, frontend.KindField, field.Kind)
	updates := solve(res)
	require.Contains(t, updates, field.ID)
	assert.Equal(t, "size_t", updates[field.ID].NewType.Spelling)
}

func TestExplicitCastRecorded(t *testing.T) {
	res := collect(t, "main.c", `
void f(const char *s) {
    for (int i = 0; i < strlen(s); i++) {
        size_t j = (size_t)i;
        use(j);
    }
}
`)
	require.Len(t, res.Casts, 1)
	assert.Equal(t, "i", res.Casts[0].Source.Name)
	assert.Equal(t, "size_t", res.Casts[0].Unit.Text(res.Casts[0].TypeNode))
}

func TestArgumentWidenedByParameterType(t *testing.T) {
	res := collect(t, "main.c", `
void my_memset(char *b, int v, size_t count);
void f(char *buf) {
    int n = 10;
    my_memset(buf, 0, n);
}
`)
	n := declByName(t, res, "n")
	updates := solve(res)
	require.Contains(t, updates, n.ID)
	assert.Equal(t, "size_t", updates[n.ID].NewType.Spelling)
}
