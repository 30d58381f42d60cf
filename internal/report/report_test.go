package report

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intcorrect/internal/rewrite"
)

var sample = []rewrite.ChangeRecord{
	{File: "src/main.c", Line: 12, Symbol: "i", OldType: "int", NewType: "size_t"},
	{File: "src/util.c", Line: 3, Symbol: "len", OldType: "int", NewType: "ptrdiff_t"},
}

func TestMarkdownTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&Markdown{Out: &buf}).Write(sample))

	out := buf.String()
	assert.Contains(t, out, "| File | Line | Symbol | Old Type | New Type |")
	assert.Contains(t, out, "| src/main.c | 12 | i | int | size_t |")
	assert.Contains(t, out, "| src/util.c | 3 | len | int | ptrdiff_t |")
}

func TestMarkdownEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&Markdown{Out: &buf}).Write(nil))
	assert.Contains(t, buf.String(), "No type changes.")
}

func TestNDJSONAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.ndjson")
	w := &NDJSON{Path: path}
	require.NoError(t, w.Write(sample[:1]))
	require.NoError(t, w.Write(sample[1:]))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []rewrite.ChangeRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r rewrite.ChangeRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		lines = append(lines, r)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "i", lines[0].Symbol)
	assert.Equal(t, "ptrdiff_t", lines[1].NewType)
}

func TestRecordsMatchSchema(t *testing.T) {
	schema, err := jsonschema.Compile(filepath.Join("..", "..", "docs", "change_record.schema.json"))
	require.NoError(t, err)

	for _, r := range sample {
		raw, err := json.Marshal(r)
		require.NoError(t, err)
		var doc any
		require.NoError(t, json.Unmarshal(raw, &doc))
		assert.NoError(t, schema.Validate(doc))
	}
}

func TestManagerSurvivesFailingWriter(t *testing.T) {
	var buf bytes.Buffer
	m := NewManager(&NDJSON{Path: filepath.Join(t.TempDir(), "missing", "audit.ndjson")})
	m.Add(&Markdown{Out: &buf})

	// The NDJSON writer fails on the missing directory; the table must
	// still be produced.
	m.Emit(sample)
	assert.Contains(t, buf.String(), "src/main.c")
}
