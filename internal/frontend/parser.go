// Package frontend wraps the tree-sitter C/C++ parser and presents the
// analysis core with parsed units, declaration handles, and source text
// helpers. The core never talks to tree-sitter node internals directly for
// anything it needs to keep stable across grammar versions.
package frontend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
)

// Unit is one parsed translation unit.
type Unit struct {
	FilePath string
	Source   []byte
	Root     *sitter.Node
	Tree     *sitter.Tree
	Language string // "c" or "cpp"
}

// IsCpp reports whether the unit parses under C++ rules. Cast injection and
// template handling depend on it.
func (u *Unit) IsCpp() bool {
	return u.Language == "cpp"
}

// Text returns the source text of a node with bounds clamping.
func (u *Unit) Text(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	start := node.StartByte()
	end := node.EndByte()
	if end > uint32(len(u.Source)) {
		end = uint32(len(u.Source))
	}
	if start >= end {
		return ""
	}
	return string(u.Source[start:end])
}

// Line returns the 1-based line of a node.
func (u *Unit) Line(node *sitter.Node) int {
	if node == nil {
		return 0
	}
	return int(node.StartPoint().Row) + 1
}

// LanguageFor maps a filename to the tree-sitter grammar. Headers default to
// C++ so templates in .h files still parse.
func LanguageFor(filename string) (*sitter.Language, string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".c":
		return c.GetLanguage(), "c", nil
	case ".cpp", ".cxx", ".cc", ".c++", ".hpp", ".hxx", ".hh", ".h++", ".h":
		return cpp.GetLanguage(), "cpp", nil
	default:
		return nil, "", fmt.Errorf("unsupported file extension: %s", filepath.Ext(filename))
	}
}

// ParseFile reads and parses a source file.
func ParseFile(ctx context.Context, path string) (*Unit, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return ParseSource(ctx, path, source)
}

// ParseSource parses an in-memory buffer, choosing the grammar from the
// file name. Unit tests feed synthetic buffers through here.
func ParseSource(ctx context.Context, path string, source []byte) (*Unit, error) {
	lang, name, err := LanguageFor(path)
	if err != nil {
		return nil, err
	}

	parser := sitter.NewParser()
	parser.SetLanguage(lang)
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return &Unit{
		FilePath: path,
		Source:   source,
		Root:     tree.RootNode(),
		Tree:     tree,
		Language: name,
	}, nil
}

// Query runs a tree-sitter query over the unit and returns the first capture
// node of every match.
func (u *Unit) Query(pattern string) ([]*sitter.Node, error) {
	var lang *sitter.Language
	if u.Language == "c" {
		lang = c.GetLanguage()
	} else {
		lang = cpp.GetLanguage()
	}
	query, err := sitter.NewQuery([]byte(pattern), lang)
	if err != nil {
		return nil, fmt.Errorf("failed to create query: %w", err)
	}
	defer query.Close()

	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(query, u.Root)

	var nodes []*sitter.Node
	for {
		match, ok := cursor.NextMatch()
		if !ok {
			break
		}
		for _, capture := range match.Captures {
			nodes = append(nodes, capture.Node)
		}
	}
	return nodes, nil
}

// Children returns all direct children of a node.
func Children(node *sitter.Node) []*sitter.Node {
	if node == nil {
		return nil
	}
	count := int(node.ChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, node.Child(i))
	}
	return out
}

// NamedChildren returns all named children of a node.
func NamedChildren(node *sitter.Node) []*sitter.Node {
	if node == nil {
		return nil
	}
	count := int(node.NamedChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, node.NamedChild(i))
	}
	return out
}
