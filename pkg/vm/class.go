package vm

import (
	"fmt"

	"github.com/daimatz/jvmsandbox/pkg/classfile"
)

// ClassState tracks a class through loading, linking and initialization.
type ClassState int

const (
	ClassLoaded ClassState = iota
	ClassLinked
	ClassInitializing
	ClassInitialized
	ClassFailed
)

func (s ClassState) String() string {
	switch s {
	case ClassLoaded:
		return "loaded"
	case ClassLinked:
		return "linked"
	case ClassInitializing:
		return "initializing"
	case ClassInitialized:
		return "initialized"
	case ClassFailed:
		return "failed"
	}
	return fmt.Sprintf("ClassState(%d)", int(s))
}

// Class is a loaded class. Array classes have a nil File and a descriptor
// name such as "[I".
type Class struct {
	Name         string
	File         *classfile.ClassFile
	Super        *Class
	Interfaces   []*Class
	Origin       Origin
	SourceFile   string
	StaticFields map[string]Value
	State        ClassState

	methods []*Method
	fields  []*Field
	mirror  *JObject
	initErr error
}

// Method is a method declared by a loaded class.
type Method struct {
	Class       *Class
	Name        string
	Descriptor  string
	AccessFlags uint16
	Code        *classfile.CodeAttribute
	Desc        *classfile.MethodDescriptor
}

// IsStatic reports whether ACC_STATIC is set.
func (m *Method) IsStatic() bool { return m.AccessFlags&classfile.AccStatic != 0 }

// IsNative reports whether ACC_NATIVE is set.
func (m *Method) IsNative() bool { return m.AccessFlags&classfile.AccNative != 0 }

// IsAbstract reports whether ACC_ABSTRACT is set.
func (m *Method) IsAbstract() bool { return m.AccessFlags&classfile.AccAbstract != 0 }

func (m *Method) String() string {
	return m.Class.Name + "." + m.Name + m.Descriptor
}

// Field is a field declared by a loaded class.
type Field struct {
	Class         *Class
	Name          string
	Descriptor    string
	AccessFlags   uint16
	ConstantValue uint16
}

// IsStatic reports whether ACC_STATIC is set.
func (f *Field) IsStatic() bool { return f.AccessFlags&classfile.AccStatic != 0 }

func fieldKey(name, desc string) string {
	return name + ":" + desc
}

func newClass(name string, cf *classfile.ClassFile, origin Origin) (*Class, error) {
	c := &Class{
		Name:         name,
		File:         cf,
		Origin:       origin,
		SourceFile:   cf.SourceFile,
		StaticFields: make(map[string]Value),
	}
	for i := range cf.Methods {
		mi := &cf.Methods[i]
		md, err := classfile.ParseMethodDescriptor(mi.Descriptor)
		if err != nil {
			return nil, fmt.Errorf("class %s: method %s: %w", name, mi.Name, err)
		}
		c.methods = append(c.methods, &Method{
			Class:       c,
			Name:        mi.Name,
			Descriptor:  mi.Descriptor,
			AccessFlags: mi.AccessFlags,
			Code:        mi.Code,
			Desc:        md,
		})
	}
	for i := range cf.Fields {
		fi := &cf.Fields[i]
		c.fields = append(c.fields, &Field{
			Class:         c,
			Name:          fi.Name,
			Descriptor:    fi.Descriptor,
			AccessFlags:   fi.AccessFlags,
			ConstantValue: fi.ConstantValue,
		})
	}
	return c, nil
}

// IsArray reports whether c is an array class.
func (c *Class) IsArray() bool { return len(c.Name) > 0 && c.Name[0] == '[' }

// IsInterface reports whether c is an interface.
func (c *Class) IsInterface() bool { return c.File != nil && c.File.IsInterface() }

// Methods returns the methods declared by c.
func (c *Class) Methods() []*Method { return c.methods }

// Fields returns the fields declared by c.
func (c *Class) Fields() []*Field { return c.fields }

// Method returns the method declared by c with the given name and descriptor.
func (c *Class) Method(name, desc string) *Method {
	for _, m := range c.methods {
		if m.Name == name && m.Descriptor == desc {
			return m
		}
	}
	return nil
}

// MethodsNamed returns every declared method called name.
func (c *Class) MethodsNamed(name string) []*Method {
	var out []*Method
	for _, m := range c.methods {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out
}

// Field returns the field declared by c with the given name and descriptor.
func (c *Class) Field(name, desc string) *Field {
	for _, f := range c.fields {
		if f.Name == name && f.Descriptor == desc {
			return f
		}
	}
	return nil
}

// FieldsNamed returns every declared field called name.
func (c *Class) FieldsNamed(name string) []*Field {
	var out []*Field
	for _, f := range c.fields {
		if f.Name == name {
			out = append(out, f)
		}
	}
	return out
}

// lookupMethod resolves a method through the superclass chain and then the
// superinterfaces.
func (c *Class) lookupMethod(name, desc string) *Method {
	for k := c; k != nil; k = k.Super {
		if m := k.Method(name, desc); m != nil {
			return m
		}
	}
	return c.lookupInterfaceMethod(name, desc, map[*Class]bool{})
}

func (c *Class) lookupInterfaceMethod(name, desc string, seen map[*Class]bool) *Method {
	for k := c; k != nil; k = k.Super {
		for _, iface := range k.Interfaces {
			if seen[iface] {
				continue
			}
			seen[iface] = true
			if m := iface.Method(name, desc); m != nil && !m.IsAbstract() {
				return m
			}
			if m := iface.lookupInterfaceMethod(name, desc, seen); m != nil {
				return m
			}
		}
	}
	return nil
}

// lookupField resolves a field through superinterfaces and superclasses.
func (c *Class) lookupField(name, desc string) *Field {
	for k := c; k != nil; k = k.Super {
		if f := k.Field(name, desc); f != nil {
			return f
		}
		for _, iface := range k.Interfaces {
			if f := iface.lookupField(name, desc); f != nil {
				return f
			}
		}
	}
	return nil
}

// IsSubclassOf reports whether c is other or inherits from it through
// superclasses or interfaces.
func (c *Class) IsSubclassOf(other *Class) bool {
	if c == nil || other == nil {
		return false
	}
	if c == other {
		return true
	}
	if c.Super != nil && c.Super.IsSubclassOf(other) {
		return true
	}
	for _, iface := range c.Interfaces {
		if iface.IsSubclassOf(other) {
			return true
		}
	}
	return false
}

// DotName is the class name as Class.getName reports it.
func (c *Class) DotName() string {
	return classfile.DotName(c.Name)
}
