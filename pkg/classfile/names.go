package classfile

import "strings"

// InternalName converts a class name in dot or slash notation to the
// slash-separated internal form used in class files.
func InternalName(name string) string {
	name = strings.TrimSpace(name)
	return strings.ReplaceAll(name, ".", "/")
}

// DotName converts an internal name to dot notation.
func DotName(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), "/", ".")
}
