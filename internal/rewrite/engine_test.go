package rewrite

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intcorrect/internal/boundary"
	"intcorrect/internal/collector"
	"intcorrect/internal/ctype"
	"intcorrect/internal/frontend"
)

// rewriteSource runs collect, solve, and apply on one file and returns the
// rewritten text.
func rewriteSource(t *testing.T, filename, src string, opts Options) (string, []ChangeRecord) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, filename)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	unit, err := frontend.ParseFile(context.Background(), path)
	require.NoError(t, err)
	includes := frontend.ScanIncludes(path, nil)
	bounds := boundary.NewAnalyzer(boundary.Options{AllowABIChanges: true, ProjectRoot: dir}, includes)
	oracle := ctype.NewOracle()

	res, err := collector.New(unit, oracle, bounds, nil, collector.Options{}).Run(context.Background())
	require.NoError(t, err)
	updates := res.Graph.Solve()

	buf := NewBuffer()
	records := NewEngine(buf, oracle, opts).Apply(res, updates)
	content, ok := buf.Content(path)
	if !ok {
		return src, records
	}
	return string(content), records
}

func TestLoopAndFormatRewrite(t *testing.T) {
	out, records := rewriteSource(t, "main.c", `
void f(const char *s) {
    for (int i = 0; i < strlen(s); i++) {
        printf("%d\n", i);
    }
}
`, Options{})
	assert.Contains(t, out, "for (size_t i = 0;")
	assert.Contains(t, out, `"%zu\n"`)
	assert.True(t, strings.HasPrefix(out, "#include <stddef.h>\n"))
	require.Len(t, records, 1)
	assert.Equal(t, "i", records[0].Symbol)
	assert.Equal(t, "size_t", records[0].NewType)
}

func TestMacroTargetGetsCast(t *testing.T) {
	out, records := rewriteSource(t, "main.c", `
#define DEF_COUNTER int counter = 0
void f(const char *s) {
    counter = strlen(s);
}
`, Options{})
	assert.Contains(t, out, "counter = (int)strlen(s);")
	assert.Contains(t, out, "#define DEF_COUNTER int counter = 0")
	assert.Empty(t, records)
}

func TestMultiDeclaratorSplit(t *testing.T) {
	out, _ := rewriteSource(t, "main.c", `
void f(const char *s) {
    int a, b;
    a = strlen(s);
    b = 1;
}
`, Options{})
	assert.Contains(t, out, "size_t a;")
	assert.Contains(t, out, "int b;")
	assert.NotContains(t, out, "int a, b;")
}

func TestTypedefUnderlyingRewrite(t *testing.T) {
	out, records := rewriteSource(t, "main.c", `
typedef int myint;
myint v;
void f(const char *s) {
    v = strlen(s);
}
`, Options{})
	assert.Contains(t, out, "typedef size_t myint;")
	assert.Contains(t, out, "myint v;")
	require.Len(t, records, 1)
	assert.Equal(t, "myint", records[0].Symbol)
}

func TestTemplateArgumentSubstitution(t *testing.T) {
	out, _ := rewriteSource(t, "main.cpp", `
void f(const char *s) {
    std::vector<int> v;
    size_t n = strlen(s);
    v.push_back(n);
}
`, Options{})
	assert.Contains(t, out, "std::vector<size_t> v;")
}

func TestMacroTypeAliasBodyRewrite(t *testing.T) {
	out, _ := rewriteSource(t, "main.c", `
#define COUNT_T int
COUNT_T c;
void f(const char *s) {
    c = strlen(s);
}
`, Options{})
	assert.Contains(t, out, "#define COUNT_T size_t")
	assert.Contains(t, out, "COUNT_T c;")
}

func TestDecltypeSpelling(t *testing.T) {
	out, _ := rewriteSource(t, "main.cpp", `
void f(const std::vector<int> &v) {
    for (int i = 0; i < v.size(); i++) {
    }
}
`, Options{UseDecltype: true})
	assert.Contains(t, out, "decltype(v)::size_type i = 0")
}

func TestCppCastUsesStaticCast(t *testing.T) {
	out, _ := rewriteSource(t, "main.cpp", `
#define DEF_COUNTER int counter = 0
void f(const char *s) {
    counter = strlen(s);
}
`, Options{})
	assert.Contains(t, out, "counter = static_cast<int>(strlen(s));")
}

func TestBufferOverlapFirstWriterWins(t *testing.T) {
	buf := NewBuffer()
	buf.Load("f.c", []byte("abcdef"))
	buf.Replace("f.c", 1, 3, "XY")
	buf.Replace("f.c", 2, 4, "ZZ")
	out, ok := buf.Content("f.c")
	require.True(t, ok)
	assert.Equal(t, "aXYdef", string(out))
}

func TestBufferInsertBefore(t *testing.T) {
	buf := NewBuffer()
	buf.Load("f.c", []byte("int x;"))
	buf.InsertBefore("f.c", 0, "// banner\n")
	out, ok := buf.Content("f.c")
	require.True(t, ok)
	assert.Equal(t, "// banner\nint x;", string(out))
}

func TestRedundantCastRemoved(t *testing.T) {
	out, _ := rewriteSource(t, "main.c", `
void f(const char *s) {
    for (int i = 0; i < strlen(s); i++) {
        size_t j = (size_t)i;
        use(j);
    }
}
`, Options{})
	assert.Contains(t, out, "for (size_t i = 0;")
	assert.Contains(t, out, "size_t j = i;")
	assert.NotContains(t, out, "(size_t)i")
}

func TestCastToDifferentWidthKept(t *testing.T) {
	out, _ := rewriteSource(t, "main.c", `
void f(const char *s) {
    for (int i = 0; i < strlen(s); i++) {
        unsigned int j = (unsigned int)i;
        use(j);
    }
}
`, Options{})
	// i widens to size_t; the narrowing cast is not redundant and stays.
	assert.Contains(t, out, "(unsigned int)i")
}

func TestFixedMacroValueWrappedAtCallSite(t *testing.T) {
	out, records := rewriteSource(t, "main.cpp", `
#define DEF_COUNT int n = 10;
void take(size_t count);
void f() {
    take(n);
}
`, Options{})
	assert.Contains(t, out, "take(static_cast<size_t>(n))")
	// The macro body itself stays untouched.
	assert.Contains(t, out, "#define DEF_COUNT int n = 10;")
	assert.Empty(t, records)
}

func TestReturnTypeWidened(t *testing.T) {
	out, records := rewriteSource(t, "main.c", `
int f(long b) {
    return b;
}
`, Options{})
	assert.Contains(t, out, "long f(long b)")
	assert.NotContains(t, out, "int f(")
	require.Len(t, records, 1)
	assert.Equal(t, "f", records[0].Symbol)
	assert.Equal(t, "long", records[0].NewType)
}

func TestArgumentFollowsParameterType(t *testing.T) {
	out, records := rewriteSource(t, "main.c", `
void my_memset(char *b, int v, size_t count);
void f(char *buf) {
    int n = 10;
    my_memset(buf, 0, n);
}
`, Options{})
	assert.Contains(t, out, "size_t n = 10;")
	assert.NotContains(t, out, "int n = 10;")
	require.Len(t, records, 1)
	assert.Equal(t, "n", records[0].Symbol)
	assert.Equal(t, "size_t", records[0].NewType)
}

func TestMacroBodyRewritePreservesTrailingComment(t *testing.T) {
	out, _ := rewriteSource(t, "main.c", `
#define COUNT_T int // element count
COUNT_T c;
void f(const char *s) {
    c = strlen(s);
}
`, Options{})
	assert.Contains(t, out, "#define COUNT_T size_t // element count")
}
