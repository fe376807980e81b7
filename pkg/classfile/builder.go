package classfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Builder assembles class files. It deduplicates constant pool entries and
// emits a structure Parse accepts, which lets tests and tooling create
// classes without a compiler.
type Builder struct {
	major      uint16
	access     uint16
	pool       []ConstantPoolEntry
	index      map[string]uint16
	this       uint16
	super      uint16
	interfaces []uint16
	fields     []builtField
	methods    []builtMethod
	sourceFile string
	bootstrap  []BootstrapMethod
}

type builtField struct {
	access     uint16
	name, desc uint16
	constant   uint16
}

type builtMethod struct {
	access     uint16
	name, desc uint16
	code       *CodeAttribute
}

// NewBuilder starts a public class named name extending super. An empty
// super produces a root class (only java/lang/Object should be one).
func NewBuilder(name, super string) *Builder {
	b := &Builder{
		major:  55,
		access: AccPublic | AccSuper,
		pool:   []ConstantPoolEntry{nil},
		index:  make(map[string]uint16),
	}
	b.this = b.Class(name)
	if super != "" {
		b.super = b.Class(super)
	}
	return b
}

// SetMajorVersion overrides the default class file version (55, Java 11).
func (b *Builder) SetMajorVersion(v uint16) *Builder {
	b.major = v
	return b
}

// SetAccess replaces the class access flags.
func (b *Builder) SetAccess(flags uint16) *Builder {
	b.access = flags
	return b
}

// SetSourceFile records a SourceFile attribute.
func (b *Builder) SetSourceFile(name string) *Builder {
	b.sourceFile = name
	b.Utf8("SourceFile")
	b.Utf8(name)
	return b
}

// AddInterface declares a direct superinterface.
func (b *Builder) AddInterface(name string) *Builder {
	b.interfaces = append(b.interfaces, b.Class(name))
	return b
}

func (b *Builder) add(key string, e ConstantPoolEntry, wide bool) uint16 {
	if idx, ok := b.index[key]; ok {
		return idx
	}
	idx := uint16(len(b.pool))
	b.pool = append(b.pool, e)
	if wide {
		b.pool = append(b.pool, nil)
	}
	b.index[key] = idx
	return idx
}

// Utf8 interns a CONSTANT_Utf8.
func (b *Builder) Utf8(s string) uint16 {
	return b.add("u:"+s, &ConstantUtf8{Value: s}, false)
}

// Class interns a CONSTANT_Class.
func (b *Builder) Class(name string) uint16 {
	n := b.Utf8(name)
	return b.add("c:"+name, &ConstantClass{NameIndex: n}, false)
}

// Str interns a CONSTANT_String.
func (b *Builder) Str(s string) uint16 {
	n := b.Utf8(s)
	return b.add("s:"+s, &ConstantString{StringIndex: n}, false)
}

// Integer interns a CONSTANT_Integer.
func (b *Builder) Integer(v int32) uint16 {
	return b.add(fmt.Sprintf("i:%d", v), &ConstantInteger{Value: v}, false)
}

// Float interns a CONSTANT_Float.
func (b *Builder) Float(v float32) uint16 {
	return b.add(fmt.Sprintf("f:%x", math.Float32bits(v)), &ConstantFloat{Value: v}, false)
}

// Long interns a CONSTANT_Long (two slots).
func (b *Builder) Long(v int64) uint16 {
	return b.add(fmt.Sprintf("j:%d", v), &ConstantLong{Value: v}, true)
}

// Double interns a CONSTANT_Double (two slots).
func (b *Builder) Double(v float64) uint16 {
	return b.add(fmt.Sprintf("d:%x", math.Float64bits(v)), &ConstantDouble{Value: v}, true)
}

// NameAndType interns a CONSTANT_NameAndType.
func (b *Builder) NameAndType(name, desc string) uint16 {
	n, d := b.Utf8(name), b.Utf8(desc)
	return b.add("nt:"+name+":"+desc, &ConstantNameAndType{NameIndex: n, DescriptorIndex: d}, false)
}

// Fieldref interns a CONSTANT_Fieldref.
func (b *Builder) Fieldref(owner, name, desc string) uint16 {
	c, nt := b.Class(owner), b.NameAndType(name, desc)
	return b.add("fr:"+owner+"."+name+":"+desc, &ConstantFieldref{ClassIndex: c, NameAndTypeIndex: nt}, false)
}

// Methodref interns a CONSTANT_Methodref.
func (b *Builder) Methodref(owner, name, desc string) uint16 {
	c, nt := b.Class(owner), b.NameAndType(name, desc)
	return b.add("mr:"+owner+"."+name+desc, &ConstantMethodref{ClassIndex: c, NameAndTypeIndex: nt}, false)
}

// InterfaceMethodref interns a CONSTANT_InterfaceMethodref.
func (b *Builder) InterfaceMethodref(owner, name, desc string) uint16 {
	c, nt := b.Class(owner), b.NameAndType(name, desc)
	return b.add("imr:"+owner+"."+name+desc, &ConstantInterfaceMethodref{ClassIndex: c, NameAndTypeIndex: nt}, false)
}

// MethodHandle interns a CONSTANT_MethodHandle pointing at ref.
func (b *Builder) MethodHandle(kind uint8, ref uint16) uint16 {
	return b.add(fmt.Sprintf("mh:%d:%d", kind, ref), &ConstantMethodHandle{ReferenceKind: kind, ReferenceIndex: ref}, false)
}

// InvokeDynamic adds a bootstrap method entry and a call site using it.
func (b *Builder) InvokeDynamic(bootstrap uint16, bootstrapArgs []uint16, name, desc string) uint16 {
	b.Utf8("BootstrapMethods")
	bsm := uint16(len(b.bootstrap))
	b.bootstrap = append(b.bootstrap, BootstrapMethod{MethodRef: bootstrap, BootstrapArguments: bootstrapArgs})
	nt := b.NameAndType(name, desc)
	return b.add(fmt.Sprintf("indy:%d:%s%s", bsm, name, desc),
		&ConstantInvokeDynamic{tag: TagInvokeDynamic, BootstrapMethodAttrIndex: bsm, NameAndTypeIndex: nt}, false)
}

// AddField declares a field.
func (b *Builder) AddField(access uint16, name, desc string) *Builder {
	b.fields = append(b.fields, builtField{access: access, name: b.Utf8(name), desc: b.Utf8(desc)})
	return b
}

// AddConstantField declares a static field with a ConstantValue attribute.
func (b *Builder) AddConstantField(access uint16, name, desc string, constant uint16) *Builder {
	b.Utf8("ConstantValue")
	b.fields = append(b.fields, builtField{access: access, name: b.Utf8(name), desc: b.Utf8(desc), constant: constant})
	return b
}

// AddMethod declares a method. code is nil for abstract and native methods.
func (b *Builder) AddMethod(access uint16, name, desc string, code *CodeAttribute) *Builder {
	if code != nil {
		b.Utf8("Code")
		if len(code.LineNumbers) > 0 {
			b.Utf8("LineNumberTable")
		}
	}
	b.methods = append(b.methods, builtMethod{access: access, name: b.Utf8(name), desc: b.Utf8(desc), code: code})
	return b
}

// Bytes serializes the class file.
func (b *Builder) Bytes() []byte {
	var buf bytes.Buffer
	w := func(v any) { _ = binary.Write(&buf, binary.BigEndian, v) }

	w(uint32(classMagic))
	w(uint16(0))
	w(b.major)
	w(uint16(len(b.pool)))
	for _, e := range b.pool[1:] {
		if e == nil {
			continue
		}
		writeConstant(&buf, e)
	}
	w(b.access)
	w(b.this)
	w(b.super)
	w(uint16(len(b.interfaces)))
	for _, i := range b.interfaces {
		w(i)
	}

	w(uint16(len(b.fields)))
	for _, f := range b.fields {
		w(f.access)
		w(f.name)
		w(f.desc)
		if f.constant == 0 {
			w(uint16(0))
			continue
		}
		w(uint16(1))
		w(b.index["u:ConstantValue"])
		w(uint32(2))
		w(f.constant)
	}

	w(uint16(len(b.methods)))
	for _, m := range b.methods {
		w(m.access)
		w(m.name)
		w(m.desc)
		if m.code == nil {
			w(uint16(0))
			continue
		}
		w(uint16(1))
		w(b.index["u:Code"])
		body := b.codeBody(m.code)
		w(uint32(len(body)))
		buf.Write(body)
	}

	var attrs [][]byte
	if b.sourceFile != "" {
		var a bytes.Buffer
		_ = binary.Write(&a, binary.BigEndian, b.index["u:SourceFile"])
		_ = binary.Write(&a, binary.BigEndian, uint32(2))
		_ = binary.Write(&a, binary.BigEndian, b.index["u:"+b.sourceFile])
		attrs = append(attrs, a.Bytes())
	}
	if len(b.bootstrap) > 0 {
		var body bytes.Buffer
		_ = binary.Write(&body, binary.BigEndian, uint16(len(b.bootstrap)))
		for _, bm := range b.bootstrap {
			_ = binary.Write(&body, binary.BigEndian, bm.MethodRef)
			_ = binary.Write(&body, binary.BigEndian, uint16(len(bm.BootstrapArguments)))
			for _, arg := range bm.BootstrapArguments {
				_ = binary.Write(&body, binary.BigEndian, arg)
			}
		}
		var a bytes.Buffer
		_ = binary.Write(&a, binary.BigEndian, b.index["u:BootstrapMethods"])
		_ = binary.Write(&a, binary.BigEndian, uint32(body.Len()))
		a.Write(body.Bytes())
		attrs = append(attrs, a.Bytes())
	}
	w(uint16(len(attrs)))
	for _, a := range attrs {
		buf.Write(a)
	}
	return buf.Bytes()
}

func (b *Builder) codeBody(c *CodeAttribute) []byte {
	var buf bytes.Buffer
	w := func(v any) { _ = binary.Write(&buf, binary.BigEndian, v) }
	w(c.MaxStack)
	w(c.MaxLocals)
	w(uint32(len(c.Code)))
	buf.Write(c.Code)
	w(uint16(len(c.ExceptionHandlers)))
	for _, h := range c.ExceptionHandlers {
		w(h)
	}
	if len(c.LineNumbers) == 0 {
		w(uint16(0))
		return buf.Bytes()
	}
	w(uint16(1))
	w(b.index["u:LineNumberTable"])
	w(uint32(2 + 4*len(c.LineNumbers)))
	w(uint16(len(c.LineNumbers)))
	for _, ln := range c.LineNumbers {
		w(ln)
	}
	return buf.Bytes()
}

func writeConstant(buf *bytes.Buffer, e ConstantPoolEntry) {
	w := func(v any) { _ = binary.Write(buf, binary.BigEndian, v) }
	w(e.Tag())
	switch c := e.(type) {
	case *ConstantUtf8:
		enc := encodeModifiedUTF8(c.Value)
		w(uint16(len(enc)))
		buf.Write(enc)
	case *ConstantInteger:
		w(c.Value)
	case *ConstantFloat:
		w(math.Float32bits(c.Value))
	case *ConstantLong:
		w(c.Value)
	case *ConstantDouble:
		w(math.Float64bits(c.Value))
	case *ConstantClass:
		w(c.NameIndex)
	case *ConstantString:
		w(c.StringIndex)
	case *ConstantFieldref:
		w(c.ClassIndex)
		w(c.NameAndTypeIndex)
	case *ConstantMethodref:
		w(c.ClassIndex)
		w(c.NameAndTypeIndex)
	case *ConstantInterfaceMethodref:
		w(c.ClassIndex)
		w(c.NameAndTypeIndex)
	case *ConstantNameAndType:
		w(c.NameIndex)
		w(c.DescriptorIndex)
	case *ConstantMethodHandle:
		w(c.ReferenceKind)
		w(c.ReferenceIndex)
	case *ConstantMethodType:
		w(c.DescriptorIndex)
	case *ConstantInvokeDynamic:
		w(c.BootstrapMethodAttrIndex)
		w(c.NameAndTypeIndex)
	case *ConstantModule:
		w(c.NameIndex)
	}
}
