package classfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const classMagic = 0xCAFEBABE

// decoder walks a class file held in memory. The first short read sets err
// and every later read returns zero, so callers check err once per
// structure instead of once per field.
type decoder struct {
	buf []byte
	off int
	err error
	// what is being read, for error messages
	what string
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.off+n > len(d.buf) {
		d.err = fmt.Errorf("%s: truncated at offset %d (need %d bytes, have %d)", d.what, d.off, n, len(d.buf)-d.off)
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) u1() uint8 {
	if b := d.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) u2() uint16 {
	if b := d.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (d *decoder) u4() uint32 {
	if b := d.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (d *decoder) u8() uint64 {
	if b := d.take(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

func (d *decoder) u2s(n int) []uint16 {
	out := make([]uint16, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		out = append(out, d.u2())
	}
	return out
}

func (d *decoder) at(what string) *decoder {
	d.what = what
	return d
}

// ParseFile opens and parses a .class file from the given path.
func ParseFile(path string) (*ClassFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a .class file from the given reader and returns a ClassFile.
func Parse(r io.Reader) (*ClassFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading class file: %w", err)
	}
	return ParseBytes(data)
}

// ParseBytes parses an in-memory .class file.
func ParseBytes(data []byte) (*ClassFile, error) {
	d := &decoder{buf: data}

	if magic := d.at("magic").u4(); d.err == nil && magic != classMagic {
		return nil, fmt.Errorf("invalid magic number: 0x%X (expected 0xCAFEBABE)", magic)
	}
	cf := &ClassFile{
		MinorVersion: d.at("version").u2(),
		MajorVersion: d.u2(),
	}
	if d.err != nil {
		return nil, d.err
	}

	pool, err := parseConstantPool(d.at("constant pool"), d.u2())
	if err != nil {
		return nil, fmt.Errorf("parsing constant pool: %w", err)
	}
	cf.ConstantPool = pool

	d.at("class header")
	cf.AccessFlags = d.u2()
	cf.ThisClass = d.u2()
	cf.SuperClass = d.u2()
	cf.Interfaces = d.u2s(int(d.u2()))
	if d.err != nil {
		return nil, d.err
	}

	if cf.Fields, err = parseFields(d, pool); err != nil {
		return nil, fmt.Errorf("parsing fields: %w", err)
	}
	if cf.Methods, err = parseMethods(d, pool); err != nil {
		return nil, fmt.Errorf("parsing methods: %w", err)
	}
	attrs, err := parseAttributes(d.at("class attributes"), pool)
	if err != nil {
		return nil, fmt.Errorf("parsing class attributes: %w", err)
	}
	if err := cf.applyClassAttributes(attrs); err != nil {
		return nil, err
	}
	return cf, nil
}

// member is the common head of field_info and method_info.
type member struct {
	flags      uint16
	name, desc string
	attrs      []AttributeInfo
}

func parseMembers(d *decoder, pool []ConstantPoolEntry, kind string) ([]member, error) {
	count := int(d.at(kind + " count").u2())
	out := make([]member, count)
	for i := range out {
		d.at(fmt.Sprintf("%s %d", kind, i))
		flags, nameIndex, descIndex := d.u2(), d.u2(), d.u2()
		if d.err != nil {
			return nil, d.err
		}
		name, err := GetUtf8(pool, nameIndex)
		if err != nil {
			return nil, fmt.Errorf("%s %d name: %w", kind, i, err)
		}
		desc, err := GetUtf8(pool, descIndex)
		if err != nil {
			return nil, fmt.Errorf("%s %s descriptor: %w", kind, name, err)
		}
		attrs, err := parseAttributes(d, pool)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", kind, name, err)
		}
		out[i] = member{flags: flags, name: name, desc: desc, attrs: attrs}
	}
	return out, nil
}

func parseFields(d *decoder, pool []ConstantPoolEntry) ([]FieldInfo, error) {
	members, err := parseMembers(d, pool, "field")
	if err != nil {
		return nil, err
	}
	fields := make([]FieldInfo, len(members))
	for i, m := range members {
		f := FieldInfo{AccessFlags: m.flags, Name: m.name, Descriptor: m.desc, Attributes: m.attrs}
		if a := findAttribute(m.attrs, "ConstantValue"); a != nil && len(a.Data) >= 2 {
			f.ConstantValue = binary.BigEndian.Uint16(a.Data)
		}
		fields[i] = f
	}
	return fields, nil
}

func parseMethods(d *decoder, pool []ConstantPoolEntry) ([]MethodInfo, error) {
	members, err := parseMembers(d, pool, "method")
	if err != nil {
		return nil, err
	}
	methods := make([]MethodInfo, len(members))
	for i, m := range members {
		mi := MethodInfo{AccessFlags: m.flags, Name: m.name, Descriptor: m.desc, Attributes: m.attrs}
		if a := findAttribute(m.attrs, "Code"); a != nil {
			if mi.Code, err = parseCode(a.Data, pool); err != nil {
				return nil, fmt.Errorf("method %s%s: %w", m.name, m.desc, err)
			}
		}
		methods[i] = mi
	}
	return methods, nil
}

// parseAttributes reads an attributes_count followed by that many
// attribute_info structures. Bodies are kept raw.
func parseAttributes(d *decoder, pool []ConstantPoolEntry) ([]AttributeInfo, error) {
	count := int(d.u2())
	attrs := make([]AttributeInfo, 0, count)
	for i := 0; i < count; i++ {
		nameIndex := d.u2()
		body := d.take(int(d.u4()))
		if d.err != nil {
			return nil, d.err
		}
		name, err := GetUtf8(pool, nameIndex)
		if err != nil {
			return nil, fmt.Errorf("attribute %d name: %w", i, err)
		}
		attrs = append(attrs, AttributeInfo{Name: name, Data: append([]byte(nil), body...)})
	}
	return attrs, nil
}

func findAttribute(attrs []AttributeInfo, name string) *AttributeInfo {
	for i := range attrs {
		if attrs[i].Name == name {
			return &attrs[i]
		}
	}
	return nil
}

func parseCode(data []byte, pool []ConstantPoolEntry) (*CodeAttribute, error) {
	d := &decoder{buf: data, what: "Code attribute"}
	ca := &CodeAttribute{MaxStack: d.u2(), MaxLocals: d.u2()}
	ca.Code = d.take(int(d.u4()))

	d.at("exception table")
	n := int(d.u2())
	for i := 0; i < n && d.err == nil; i++ {
		ca.ExceptionHandlers = append(ca.ExceptionHandlers, ExceptionHandler{
			StartPC:   d.u2(),
			EndPC:     d.u2(),
			HandlerPC: d.u2(),
			CatchType: d.u2(),
		})
	}
	if d.err != nil {
		return nil, d.err
	}

	attrs, err := parseAttributes(d.at("Code attributes"), pool)
	if err != nil {
		return nil, err
	}
	for _, a := range attrs {
		if a.Name == "LineNumberTable" {
			ca.LineNumbers = append(ca.LineNumbers, parseLineNumbers(a.Data)...)
		}
	}
	return ca, nil
}

// parseLineNumbers is lenient: a damaged table only loses line information.
func parseLineNumbers(data []byte) []LineNumber {
	d := &decoder{buf: data, what: "LineNumberTable"}
	n := int(d.u2())
	var lines []LineNumber
	for i := 0; i < n; i++ {
		ln := LineNumber{StartPC: d.u2(), Line: d.u2()}
		if d.err != nil {
			break
		}
		lines = append(lines, ln)
	}
	return lines
}

func (cf *ClassFile) applyClassAttributes(attrs []AttributeInfo) error {
	for _, a := range attrs {
		switch a.Name {
		case "BootstrapMethods":
			bsms, err := parseBootstrapMethods(a.Data)
			if err != nil {
				return err
			}
			cf.BootstrapMethods = bsms
		case "SourceFile":
			if len(a.Data) >= 2 {
				cf.SourceFile, _ = GetUtf8(cf.ConstantPool, binary.BigEndian.Uint16(a.Data))
			}
		}
	}
	return nil
}

func parseBootstrapMethods(data []byte) ([]BootstrapMethod, error) {
	d := &decoder{buf: data, what: "BootstrapMethods"}
	methods := make([]BootstrapMethod, d.u2())
	for i := range methods {
		ref := d.u2()
		methods[i] = BootstrapMethod{MethodRef: ref, BootstrapArguments: d.u2s(int(d.u2()))}
	}
	if d.err != nil {
		return nil, d.err
	}
	return methods, nil
}

// ClassName returns the fully qualified name of this class.
func (cf *ClassFile) ClassName() (string, error) {
	return GetClassName(cf.ConstantPool, cf.ThisClass)
}

// FindMethod finds a method by name and descriptor.
func (cf *ClassFile) FindMethod(name, descriptor string) *MethodInfo {
	for i := range cf.Methods {
		if cf.Methods[i].Name == name && cf.Methods[i].Descriptor == descriptor {
			return &cf.Methods[i]
		}
	}
	return nil
}

// FindField finds a field by name and descriptor.
func (cf *ClassFile) FindField(name, descriptor string) *FieldInfo {
	for i := range cf.Fields {
		if cf.Fields[i].Name == name && cf.Fields[i].Descriptor == descriptor {
			return &cf.Fields[i]
		}
	}
	return nil
}
