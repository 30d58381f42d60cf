// Package rewrite applies resolved type updates to source buffers. Edits
// are staged against byte offsets and applied in one pass per file, so the
// tree is never reparsed mid-rewrite.
package rewrite

import (
	"fmt"
	"os"
	"sort"
)

// Edit is one staged replacement. Insertions have Start == End.
type Edit struct {
	Start uint32
	End   uint32
	Text  string
}

// Rewriter stages edits against named buffers. The engine depends on this
// interface only; tests swap in the buffer implementation and inspect the
// result without touching disk.
type Rewriter interface {
	Load(file string, src []byte)
	Replace(file string, start, end uint32, text string)
	InsertBefore(file string, offset uint32, text string)
	Content(file string) ([]byte, bool)
	ChangedFiles() []string
}

// Buffer is the in-memory Rewriter.
type Buffer struct {
	sources map[string][]byte
	edits   map[string][]Edit
}

// NewBuffer creates an empty buffer rewriter.
func NewBuffer() *Buffer {
	return &Buffer{
		sources: make(map[string][]byte),
		edits:   make(map[string][]Edit),
	}
}

// Load registers a file's source. Re-loading is a no-op so multiple
// collection passes over the same file stay consistent.
func (b *Buffer) Load(file string, src []byte) {
	if _, ok := b.sources[file]; ok {
		return
	}
	b.sources[file] = src
}

// Replace stages one replacement. Exact duplicates collapse; a later edit
// overlapping an earlier one is dropped at apply time.
func (b *Buffer) Replace(file string, start, end uint32, text string) {
	for _, e := range b.edits[file] {
		if e.Start == start && e.End == end && e.Text == text {
			return
		}
	}
	b.edits[file] = append(b.edits[file], Edit{Start: start, End: end, Text: text})
}

// InsertBefore stages an insertion at offset.
func (b *Buffer) InsertBefore(file string, offset uint32, text string) {
	b.edits[file] = append(b.edits[file], Edit{Start: offset, End: offset, Text: text})
}

// Content returns the rewritten file, or (nil, false) when the file has no
// staged edits.
func (b *Buffer) Content(file string) ([]byte, bool) {
	edits, ok := b.edits[file]
	src, loaded := b.sources[file]
	if !ok || len(edits) == 0 || !loaded {
		return nil, false
	}

	ordered := make([]Edit, len(edits))
	copy(ordered, edits)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Start != ordered[j].Start {
			return ordered[i].Start < ordered[j].Start
		}
		return ordered[i].End < ordered[j].End
	})

	var out []byte
	var cursor uint32
	for _, e := range ordered {
		if e.Start < cursor || e.End > uint32(len(src)) {
			// Overlap with an already applied edit; first writer wins.
			continue
		}
		out = append(out, src[cursor:e.Start]...)
		out = append(out, e.Text...)
		cursor = e.End
	}
	out = append(out, src[cursor:]...)
	return out, true
}

// ChangedFiles lists files with at least one staged edit, sorted.
func (b *Buffer) ChangedFiles() []string {
	var files []string
	for f, edits := range b.edits {
		if len(edits) > 0 {
			files = append(files, f)
		}
	}
	sort.Strings(files)
	return files
}

// WriteChanged flushes every edited buffer back to its path.
func (b *Buffer) WriteChanged() ([]string, error) {
	var written []string
	for _, f := range b.ChangedFiles() {
		content, ok := b.Content(f)
		if !ok {
			continue
		}
		info, err := os.Stat(f)
		mode := os.FileMode(0o644)
		if err == nil {
			mode = info.Mode()
		}
		if err := os.WriteFile(f, content, mode); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", f, err)
		}
		written = append(written, f)
	}
	return written, nil
}
