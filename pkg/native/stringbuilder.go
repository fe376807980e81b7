package native

import (
	"unicode/utf16"
)

// StringBuilder represents a java.lang.StringBuilder. Like Java it indexes
// UTF-16 code units.
type StringBuilder struct {
	units []uint16
}

// NewStringBuilder creates a builder holding s.
func NewStringBuilder(s string) *StringBuilder {
	return &StringBuilder{units: utf16.Encode([]rune(s))}
}

// Append appends s.
func (sb *StringBuilder) Append(s string) {
	sb.units = append(sb.units, utf16.Encode([]rune(s))...)
}

// AppendChar appends one UTF-16 code unit.
func (sb *StringBuilder) AppendChar(c uint16) {
	sb.units = append(sb.units, c)
}

// Len returns the length in code units.
func (sb *StringBuilder) Len() int { return len(sb.units) }

// CharAt returns the code unit at i.
func (sb *StringBuilder) CharAt(i int) (uint16, bool) {
	if i < 0 || i >= len(sb.units) {
		return 0, false
	}
	return sb.units[i], true
}

// SetCharAt replaces the code unit at i.
func (sb *StringBuilder) SetCharAt(i int, c uint16) bool {
	if i < 0 || i >= len(sb.units) {
		return false
	}
	sb.units[i] = c
	return true
}

// Reverse reverses the contents, keeping surrogate pairs in order.
func (sb *StringBuilder) Reverse() {
	u := sb.units
	for i, j := 0, len(u)-1; i < j; i, j = i+1, j-1 {
		u[i], u[j] = u[j], u[i]
	}
	for i := 0; i < len(u)-1; i++ {
		if utf16.IsSurrogate(rune(u[i])) && u[i] >= 0xDC00 && u[i+1] >= 0xD800 && u[i+1] < 0xDC00 {
			u[i], u[i+1] = u[i+1], u[i]
			i++
		}
	}
}

// String returns the contents as a Go string.
func (sb *StringBuilder) String() string {
	return string(utf16.Decode(sb.units))
}

// UTF16 converts a Go string to Java char units.
func UTF16(s string) []uint16 {
	return utf16.Encode([]rune(s))
}

// FromUTF16 converts Java char units to a Go string.
func FromUTF16(units []uint16) string {
	return string(utf16.Decode(units))
}
