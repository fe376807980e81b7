package native

import (
	"fmt"
	"strconv"
)

// NativeInteger represents a java.lang.Integer.
type NativeInteger struct {
	Value int32
}

// IntegerValueOf creates a NativeInteger (boxing).
func IntegerValueOf(v int32) *NativeInteger {
	return &NativeInteger{Value: v}
}

// IntegerIntValue returns the int32 value of a NativeInteger (unboxing).
func IntegerIntValue(ni *NativeInteger) int32 {
	return ni.Value
}

// ParseInt parses a decimal int the way Integer.parseInt does: an optional
// sign followed by ASCII digits, no surrounding whitespace.
func ParseInt(s string, radix int) (int32, error) {
	if s == "" {
		return 0, fmt.Errorf("For input string: \"\"")
	}
	if radix < 2 || radix > 36 {
		return 0, fmt.Errorf("radix %d out of range", radix)
	}
	body := s
	if body[0] == '+' || body[0] == '-' {
		body = body[1:]
	}
	if body == "" {
		return 0, fmt.Errorf("For input string: %q", s)
	}
	v, err := strconv.ParseInt(s, radix, 32)
	if err != nil {
		return 0, fmt.Errorf("For input string: %q", s)
	}
	return int32(v), nil
}
