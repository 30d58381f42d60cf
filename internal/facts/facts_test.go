package facts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tu.facts")

	in := map[string]SymbolFact{
		"c:@F@strlen":     {USR: "c:@F@strlen", TypeName: "size_t"},
		"c:@V@counter":    {USR: "c:@V@counter", TypeName: "unsigned long"},
		"c:@S@Buf@FI@len": {USR: "c:@S@Buf@FI@len", TypeName: "size_t", IsField: true},
		"c:@T@len_t":      {USR: "c:@T@len_t", TypeName: "size_t", IsTypedef: true},
	}
	require.NoError(t, Write(path, in))

	got, err := Read(path)
	require.NoError(t, err)
	require.Len(t, got, len(in))
	for _, fact := range got {
		assert.Equal(t, in[fact.USR], fact)
	}
}

func TestRead(t *testing.T) {
	t.Run("Missing file", func(t *testing.T) {
		_, err := Read(filepath.Join(t.TempDir(), "nope.facts"))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Comments, blanks, and legacy records", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "legacy.facts")
		content := "# comment\n" +
			"\n" +
			"c:@F@f\tsize_t\t0\n" + // legacy 3-column
			"c:@V@g\tlong\t0\t1\n" +
			"short-record\n" // skipped
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		got, err := Read(path)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.False(t, got[0].IsTypedef, "3-column record defaults IsTypedef to false")
		assert.True(t, got[1].IsTypedef)
	})
}

func TestMerge(t *testing.T) {
	t.Run("Wider rank wins", func(t *testing.T) {
		merged := Merge([]SymbolFact{
			{USR: "u", TypeName: "int"},
			{USR: "u", TypeName: "size_t"},
			{USR: "u", TypeName: "short"},
		})
		assert.Equal(t, "size_t", merged["u"].TypeName)
	})

	t.Run("Tie keeps first write", func(t *testing.T) {
		merged := Merge([]SymbolFact{
			{USR: "u", TypeName: "size_t"},
			{USR: "u", TypeName: "ptrdiff_t"},
		})
		assert.Equal(t, "size_t", merged["u"].TypeName)
	})

	t.Run("IsTypedef sticky", func(t *testing.T) {
		merged := Merge([]SymbolFact{
			{USR: "u", TypeName: "size_t", IsTypedef: true},
			{USR: "u", TypeName: "long long"},
		})
		assert.True(t, merged["u"].IsTypedef)
		assert.Equal(t, "long long", merged["u"].TypeName)
	})

	t.Run("Order independence", func(t *testing.T) {
		a := []SymbolFact{
			{USR: "x", TypeName: "int"},
			{USR: "x", TypeName: "long"},
			{USR: "y", TypeName: "size_t", IsField: true},
		}
		b := []SymbolFact{a[2], a[1], a[0]}
		assert.Equal(t, Merge(a), Merge(b))
	})
}

func TestIsConverged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "global.facts")
	m := map[string]SymbolFact{
		"c:@F@f": {USR: "c:@F@f", TypeName: "size_t"},
	}

	t.Run("Absent file is pre-convergence", func(t *testing.T) {
		assert.False(t, IsConverged(path, m))
	})

	require.NoError(t, Write(path, m))

	t.Run("Identical map converges", func(t *testing.T) {
		assert.True(t, IsConverged(path, m))
	})

	t.Run("Any field difference breaks convergence", func(t *testing.T) {
		changed := map[string]SymbolFact{
			"c:@F@f": {USR: "c:@F@f", TypeName: "size_t", IsField: true},
		}
		assert.False(t, IsConverged(path, changed))

		extra := map[string]SymbolFact{
			"c:@F@f": m["c:@F@f"],
			"c:@F@g": {USR: "c:@F@g", TypeName: "long"},
		}
		assert.False(t, IsConverged(path, extra))
	})
}
