// Package classfixture assembles class files for tests: a minimal core
// library that stands in for java.base and a set of sample classes that
// exercise the sandbox. Everything is built with classfile.Builder, so no
// JDK is needed.
package classfixture

import (
	"fmt"
	"sort"

	"github.com/daimatz/jvmsandbox/pkg/classfile"
)

// Library maps internal class names to class file bytes.
type Library map[string][]byte

func (l Library) put(name string, b *classfile.Builder) {
	l[name] = b.Bytes()
}

// Names returns the class names in sorted order.
func (l Library) Names() []string {
	names := make([]string, 0, len(l))
	for name := range l {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Parse parses the named class.
func (l Library) Parse(name string) (*classfile.ClassFile, error) {
	data, ok := l[name]
	if !ok {
		return nil, fmt.Errorf("classfixture: %s: not in library", name)
	}
	return classfile.ParseBytes(data)
}

// Merge returns a library holding the classes of l and others. Later
// libraries win on name clashes.
func (l Library) Merge(others ...Library) Library {
	out := Library{}
	for name, data := range l {
		out[name] = data
	}
	for _, o := range others {
		for name, data := range o {
			out[name] = data
		}
	}
	return out
}

// body wraps assembled bytecode in a Code attribute.
func body(maxStack, maxLocals uint16, parts ...[]byte) *classfile.CodeAttribute {
	var code []byte
	for _, p := range parts {
		code = append(code, p...)
	}
	return &classfile.CodeAttribute{MaxStack: maxStack, MaxLocals: maxLocals, Code: code}
}

func ops(b ...byte) []byte { return b }

// ref emits an instruction with a two-byte constant pool operand.
func ref(op byte, index uint16) []byte {
	return []byte{op, byte(index >> 8), byte(index)}
}

// natives declares native methods given as "name(desc)ret" signatures.
func natives(b *classfile.Builder, access uint16, sigs ...string) {
	for _, sig := range sigs {
		for i := 0; i < len(sig); i++ {
			if sig[i] == '(' {
				b.AddMethod(access|classfile.AccNative, sig[:i], sig[i:], nil)
				break
			}
		}
	}
}
