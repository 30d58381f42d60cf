package collector

import (
	"regexp"

	sitter "github.com/smacker/go-tree-sitter"

	"intcorrect/internal/frontend"
)

// SpecArg ties one conversion specifier to the declaration printed through
// it. Start and End are absolute byte offsets of the length modifier plus
// conversion character, so a rewrite swaps exactly that slice.
type SpecArg struct {
	Start uint32
	End   uint32
	// Text is the original modifier+conversion slice, e.g. "d" or "lu".
	Text string
	Arg  *frontend.Decl
}

// FormatCall is one printf/scanf-family call with its tracked specifiers.
type FormatCall struct {
	Unit       *frontend.Unit
	Node       *sitter.Node
	FormatNode *sitter.Node
	Specs      []SpecArg
}

// formatArgIndex is the position of the format string per function.
var formatArgIndex = map[string]int{
	"printf":   0,
	"fprintf":  1,
	"dprintf":  1,
	"sprintf":  1,
	"snprintf": 2,
	"scanf":    0,
	"fscanf":   1,
	"sscanf":   1,
}

func formatStringIndex(name string) int {
	if idx, ok := formatArgIndex[name]; ok {
		return idx
	}
	return -1
}

// specRe matches one conversion: flags, width, precision, then a captured
// length modifier and conversion character.
var specRe = regexp.MustCompile(`%[-+ #0]*[0-9*]*(?:\.[0-9*]*)?((?:hh|h|ll|l|z|t|j)?[diuoxXcspn])`)

// collectFormatCall maps each integer conversion in the format string to
// the declaration supplying that argument.
func (c *Collector) collectFormatCall(call *sitter.Node, name string, args *sitter.Node) {
	if args == nil {
		return
	}
	fmtIdx := formatStringIndex(name)
	if fmtIdx < 0 || int(args.NamedChildCount()) <= fmtIdx {
		return
	}
	fmtNode := args.NamedChild(fmtIdx)
	if fmtNode.Type() != "string_literal" {
		return
	}
	text := c.unit.Text(fmtNode)
	base := fmtNode.StartByte()

	fc := FormatCall{Unit: c.unit, Node: call, FormatNode: fmtNode}
	argPos := fmtIdx + 1
	for _, loc := range specRe.FindAllStringSubmatchIndex(text, -1) {
		spec := text[loc[2]:loc[3]]
		conv := spec[len(spec)-1]
		if int(args.NamedChildCount()) <= argPos {
			break
		}
		argNode := args.NamedChild(argPos)
		argPos++
		// Scanf arguments arrive by address.
		d := c.resolveDecl(stripAddressOf(argNode))
		if d == nil {
			continue
		}
		switch conv {
		case 'd', 'i', 'u', 'o', 'x', 'X':
			fc.Specs = append(fc.Specs, SpecArg{
				Start: base + uint32(loc[2]),
				End:   base + uint32(loc[3]),
				Text:  spec,
				Arg:   d,
			})
		}
	}
	if len(fc.Specs) > 0 {
		c.result.FormatCalls = append(c.result.FormatCalls, fc)
	}
}

func stripAddressOf(n *sitter.Node) *sitter.Node {
	n = stripParens(n)
	if n != nil && n.Type() == "pointer_expression" {
		return n.ChildByFieldName("argument")
	}
	return n
}
