// Package ctype models the C/C++ integer type system the solver reasons
// about. Widths follow the LP64 data model; the Oracle can be extended with
// typedefs discovered in a translation unit so sugar like `size_t` or a
// user alias resolves to a sized type.
package ctype

import (
	"strings"
)

// Type describes one C type as the solver sees it.
type Type struct {
	// Spelling is the canonical source spelling ("unsigned long", "size_t").
	Spelling string
	// Width is the bit width; 0 means the width is unknown.
	Width int
	// Signed is meaningful only when Scalar is true.
	Signed bool
	// Scalar is false for records, templates, pointers and anything else
	// the integer solver should not order by width.
	Scalar bool
	// Complete is false for forward declarations and unresolved names.
	Complete bool
}

// IsNull reports whether t is the zero "no type" value.
func (t Type) IsNull() bool {
	return t.Spelling == "" && t.Width == 0 && !t.Scalar
}

// Equal compares canonical spellings.
func (t Type) Equal(other Type) bool {
	return t.Spelling == other.Spelling
}

func (t Type) String() string {
	if t.IsNull() {
		return "<null>"
	}
	return t.Spelling
}

func scalar(spelling string, width int, signed bool) Type {
	return Type{Spelling: spelling, Width: width, Signed: signed, Scalar: true, Complete: true}
}

// Builtin LP64 types.
var (
	Bool      = scalar("bool", 8, false)
	Char      = scalar("char", 8, true)
	SChar     = scalar("signed char", 8, true)
	UChar     = scalar("unsigned char", 8, false)
	Short     = scalar("short", 16, true)
	UShort    = scalar("unsigned short", 16, false)
	Int       = scalar("int", 32, true)
	UInt      = scalar("unsigned int", 32, false)
	Long      = scalar("long", 64, true)
	ULong     = scalar("unsigned long", 64, false)
	LongLong  = scalar("long long", 64, true)
	ULongLong = scalar("unsigned long long", 64, false)
	SizeT     = scalar("size_t", 64, false)
	PtrdiffT  = scalar("ptrdiff_t", 64, true)
)

var builtins = map[string]Type{
	"bool":                   Bool,
	"_Bool":                  Bool,
	"char":                   Char,
	"signed char":            SChar,
	"unsigned char":          UChar,
	"short":                  Short,
	"short int":              Short,
	"signed short":           Short,
	"unsigned short":         UShort,
	"unsigned short int":     UShort,
	"int":                    Int,
	"signed":                 Int,
	"signed int":             Int,
	"unsigned":               UInt,
	"unsigned int":           UInt,
	"long":                   Long,
	"long int":               Long,
	"signed long":            Long,
	"unsigned long":          ULong,
	"unsigned long int":      ULong,
	"long long":              LongLong,
	"long long int":          LongLong,
	"signed long long":       LongLong,
	"unsigned long long":     ULongLong,
	"unsigned long long int": ULongLong,
	"size_t":                 SizeT,
	"std::size_t":            SizeT,
	"ptrdiff_t":              PtrdiffT,
	"std::ptrdiff_t":         PtrdiffT,
	"ssize_t":                scalar("ssize_t", 64, true),
	"intptr_t":               scalar("intptr_t", 64, true),
	"uintptr_t":              scalar("uintptr_t", 64, false),
	"int8_t":                 scalar("int8_t", 8, true),
	"uint8_t":                scalar("uint8_t", 8, false),
	"int16_t":                scalar("int16_t", 16, true),
	"uint16_t":               scalar("uint16_t", 16, false),
	"int32_t":                scalar("int32_t", 32, true),
	"uint32_t":               scalar("uint32_t", 32, false),
	"int64_t":                scalar("int64_t", 64, true),
	"uint64_t":               scalar("uint64_t", 64, false),
}

// Oracle resolves type spellings to sized types. Typedefs registered from a
// translation unit shadow nothing; builtins always win so a hostile
// `typedef float size_t` cannot confuse the solver.
type Oracle struct {
	typedefs map[string]Type
}

// NewOracle creates an oracle with only the builtin LP64 table.
func NewOracle() *Oracle {
	return &Oracle{typedefs: make(map[string]Type)}
}

// AddTypedef registers `typedef <underlying> <name>`. The alias keeps its own
// spelling but inherits width and signedness from the underlying type.
func (o *Oracle) AddTypedef(name, underlying string) {
	if name == "" {
		return
	}
	u := o.Parse(underlying)
	if !u.Scalar {
		o.typedefs[name] = Type{Spelling: name, Complete: u.Complete}
		return
	}
	o.typedefs[name] = Type{
		Spelling: name,
		Width:    u.Width,
		Signed:   u.Signed,
		Scalar:   true,
		Complete: true,
	}
}

// Underlying returns the registered underlying properties for a typedef
// name, or false when the name is not a known alias.
func (o *Oracle) Underlying(name string) (Type, bool) {
	t, ok := o.typedefs[name]
	return t, ok
}

// Parse resolves a written type spelling to a Type. Qualifiers are stripped;
// unknown names come back as incomplete non-scalars carrying their spelling
// so the caller can still print them.
func (o *Oracle) Parse(spelling string) Type {
	clean := Normalize(spelling)
	if clean == "" {
		return Type{}
	}
	if t, ok := builtins[clean]; ok {
		return t
	}
	if t, ok := o.typedefs[clean]; ok {
		return t
	}
	if strings.ContainsAny(clean, "*&") {
		return Type{Spelling: clean, Scalar: false, Complete: true}
	}
	if strings.Contains(clean, "<") || strings.HasPrefix(clean, "struct ") ||
		strings.HasPrefix(clean, "union ") || strings.HasPrefix(clean, "class ") ||
		strings.HasPrefix(clean, "enum ") {
		return Type{Spelling: clean, Scalar: false, Complete: true}
	}
	// Unknown identifier: likely a typedef we have not seen. Incomplete so
	// WiderInteger prefers the other operand.
	return Type{Spelling: clean, Scalar: false, Complete: false}
}

// Normalize strips qualifiers and collapses whitespace in a type spelling.
func Normalize(spelling string) string {
	fields := strings.Fields(spelling)
	kept := fields[:0]
	for _, f := range fields {
		switch f {
		case "const", "volatile", "restrict", "register", "static", "extern", "typedef":
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

// WiderInteger is the partial order used by the solver.
//
//  1. A null operand loses.
//  2. Identical spellings return a.
//  3. An incomplete type loses to the other operand.
//  4. If either side is non-scalar, b wins (callers wanting template
//     substitution should use SubstituteType; the solver only ever feeds
//     scalars here once sugar is resolved).
//  5. Wider bit width wins; on a width tie, unsigned beats signed.
func WiderInteger(a, b Type) Type {
	if a.IsNull() {
		return b
	}
	if b.IsNull() {
		return a
	}
	if a.Equal(b) {
		return a
	}
	if !a.Complete {
		return b
	}
	if !b.Complete {
		return a
	}
	if !a.Scalar {
		return b
	}
	if !b.Scalar {
		return a
	}
	if b.Width > a.Width {
		return b
	}
	if a.Width > b.Width {
		return a
	}
	if !b.Signed && a.Signed {
		return b
	}
	return a
}

// SubstituteType is the container-synthesis variant of the old "wider"
// helper: a non-scalar candidate simply replaces the slot.
func SubstituteType(current, candidate Type) Type {
	if candidate.IsNull() {
		return current
	}
	return candidate
}

// ForRange picks the smallest standard integer type representing the range
// [min, max]. A range with no usable bound returns original unchanged.
// Signed ranges size by the larger-magnitude bound.
func ForRange(hasMin bool, min int64, hasMax bool, max int64, original Type) Type {
	if !hasMin && !hasMax {
		return original
	}
	needsSigned := hasMin && min < 0
	if !needsSigned {
		if !hasMax {
			return original
		}
		switch {
		case max <= 0xFF:
			return UChar
		case max <= 0xFFFF:
			return UShort
		case max <= 0xFFFFFFFF:
			return UInt
		default:
			return SizeT
		}
	}
	absMax := max
	if absMax < 0 {
		absMax = -absMax
	}
	if -min > absMax {
		absMax = -min
	}
	switch {
	case absMax <= 0x7F:
		return SChar
	case absMax <= 0x7FFF:
		return Short
	case absMax <= 0x7FFFFFFF:
		return Int
	default:
		return LongLong
	}
}
