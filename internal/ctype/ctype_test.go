package ctype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOracle_Parse(t *testing.T) {
	o := NewOracle()

	t.Run("Builtins", func(t *testing.T) {
		assert.Equal(t, Int, o.Parse("int"))
		assert.Equal(t, ULong, o.Parse("unsigned long"))
		assert.Equal(t, SizeT, o.Parse("std::size_t"))
	})

	t.Run("Qualifiers stripped", func(t *testing.T) {
		assert.Equal(t, Int, o.Parse("const int"))
		assert.Equal(t, SizeT, o.Parse("const size_t"))
		assert.Equal(t, ULong, o.Parse("volatile unsigned long"))
	})

	t.Run("Unknown names are incomplete", func(t *testing.T) {
		got := o.Parse("mystery_t")
		assert.False(t, got.Complete)
		assert.False(t, got.Scalar)
		assert.Equal(t, "mystery_t", got.Spelling)
	})

	t.Run("Pointers and records are non-scalar", func(t *testing.T) {
		assert.False(t, o.Parse("char *").Scalar)
		assert.False(t, o.Parse("struct foo").Scalar)
		assert.False(t, o.Parse("std::vector<int>").Scalar)
	})
}

func TestOracle_AddTypedef(t *testing.T) {
	o := NewOracle()
	o.AddTypedef("my_len_t", "unsigned long")

	got := o.Parse("my_len_t")
	require.True(t, got.Scalar)
	assert.Equal(t, 64, got.Width)
	assert.False(t, got.Signed)
	// The alias keeps its own spelling.
	assert.Equal(t, "my_len_t", got.Spelling)

	t.Run("Chained typedefs", func(t *testing.T) {
		o.AddTypedef("my_other_t", "my_len_t")
		chained := o.Parse("my_other_t")
		assert.Equal(t, 64, chained.Width)
		assert.False(t, chained.Signed)
	})
}

func TestWiderInteger(t *testing.T) {
	t.Run("Null loses", func(t *testing.T) {
		assert.Equal(t, Int, WiderInteger(Type{}, Int))
		assert.Equal(t, Int, WiderInteger(Int, Type{}))
	})

	t.Run("Wider width wins", func(t *testing.T) {
		assert.Equal(t, Long, WiderInteger(Int, Long))
		assert.Equal(t, SizeT, WiderInteger(Int, SizeT))
		assert.Equal(t, SizeT, WiderInteger(SizeT, UShort))
	})

	t.Run("Tie prefers unsigned", func(t *testing.T) {
		assert.Equal(t, SizeT, WiderInteger(Long, SizeT))
		assert.Equal(t, UInt, WiderInteger(Int, UInt))
		assert.Equal(t, ULongLong, WiderInteger(LongLong, ULongLong))
	})

	t.Run("Identical returns first operand", func(t *testing.T) {
		a := SizeT
		assert.Equal(t, a, WiderInteger(a, SizeT))
	})

	t.Run("Incomplete loses", func(t *testing.T) {
		unknown := Type{Spelling: "mystery_t"}
		assert.Equal(t, Int, WiderInteger(unknown, Int))
		assert.Equal(t, Int, WiderInteger(Int, unknown))
	})
}

func TestForRange(t *testing.T) {
	tests := []struct {
		name   string
		hasMin bool
		min    int64
		hasMax bool
		max    int64
		want   Type
	}{
		{"Small unsigned", true, 0, true, 200, UChar},
		{"Medium unsigned", true, 0, true, 40000, UShort},
		{"Large unsigned", true, 0, true, 1 << 33, SizeT},
		{"Uint32 boundary", true, 0, true, 0xFFFFFFFF, UInt},
		{"Small signed", true, -100, true, 100, SChar},
		{"Signed int range", true, -1, true, 1 << 20, Int},
		{"Huge signed", true, -1, true, 1 << 40, LongLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ForRange(tt.hasMin, tt.min, tt.hasMax, tt.max, Int)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("No bounds keeps original", func(t *testing.T) {
		assert.Equal(t, Long, ForRange(false, 0, false, 0, Long))
	})
}

func TestFormatSpecifier(t *testing.T) {
	assert.Equal(t, "d", FormatSpecifier(Int))
	assert.Equal(t, "u", FormatSpecifier(UInt))
	assert.Equal(t, "ld", FormatSpecifier(Long))
	assert.Equal(t, "lu", FormatSpecifier(ULong))
	assert.Equal(t, "lld", FormatSpecifier(LongLong))
	assert.Equal(t, "llu", FormatSpecifier(ULongLong))
	assert.Equal(t, "zu", FormatSpecifier(SizeT))
	assert.Equal(t, "td", FormatSpecifier(PtrdiffT))
	assert.Equal(t, "", FormatSpecifier(Type{Spelling: "struct foo"}))
}
