package classfile

import (
	"fmt"
	"math"
)

// Constant pool tags
const (
	TagUtf8               = 1
	TagInteger            = 3
	TagFloat              = 4
	TagLong               = 5
	TagDouble             = 6
	TagClass              = 7
	TagString             = 8
	TagFieldref           = 9
	TagMethodref          = 10
	TagInterfaceMethodref = 11
	TagNameAndType        = 12
	TagMethodHandle       = 15
	TagMethodType         = 16
	TagDynamic            = 17
	TagInvokeDynamic      = 18
	TagModule             = 19
	TagPackage            = 20
)

// Method handle reference kinds.
const (
	RefGetField         = 1
	RefGetStatic        = 2
	RefPutField         = 3
	RefPutStatic        = 4
	RefInvokeVirtual    = 5
	RefInvokeStatic     = 6
	RefInvokeSpecial    = 7
	RefNewInvokeSpecial = 8
	RefInvokeInterface  = 9
)

// parseConstantPool reads count-1 entries. The returned slice is
// 1-indexed: index 0 is nil, as is the slot after each long and double.
func parseConstantPool(d *decoder, count uint16) ([]ConstantPoolEntry, error) {
	pool := make([]ConstantPoolEntry, count)
	for i := 1; i < int(count); i++ {
		tag := d.u1()
		var e ConstantPoolEntry
		switch tag {
		case TagUtf8:
			e = &ConstantUtf8{Value: decodeModifiedUTF8(d.take(int(d.u2())))}
		case TagInteger:
			e = &ConstantInteger{Value: int32(d.u4())}
		case TagFloat:
			e = &ConstantFloat{Value: math.Float32frombits(d.u4())}
		case TagLong:
			e = &ConstantLong{Value: int64(d.u8())}
		case TagDouble:
			e = &ConstantDouble{Value: math.Float64frombits(d.u8())}
		case TagClass:
			e = &ConstantClass{NameIndex: d.u2()}
		case TagString:
			e = &ConstantString{StringIndex: d.u2()}
		case TagFieldref:
			e = &ConstantFieldref{ClassIndex: d.u2(), NameAndTypeIndex: d.u2()}
		case TagMethodref:
			e = &ConstantMethodref{ClassIndex: d.u2(), NameAndTypeIndex: d.u2()}
		case TagInterfaceMethodref:
			e = &ConstantInterfaceMethodref{ClassIndex: d.u2(), NameAndTypeIndex: d.u2()}
		case TagNameAndType:
			e = &ConstantNameAndType{NameIndex: d.u2(), DescriptorIndex: d.u2()}
		case TagMethodHandle:
			e = &ConstantMethodHandle{ReferenceKind: d.u1(), ReferenceIndex: d.u2()}
		case TagMethodType:
			e = &ConstantMethodType{DescriptorIndex: d.u2()}
		case TagDynamic, TagInvokeDynamic:
			e = &ConstantInvokeDynamic{tag: tag, BootstrapMethodAttrIndex: d.u2(), NameAndTypeIndex: d.u2()}
		case TagModule, TagPackage:
			e = &ConstantModule{tag: tag, NameIndex: d.u2()}
		default:
			if d.err == nil {
				return nil, fmt.Errorf("unknown constant pool tag %d at index %d", tag, i)
			}
		}
		if d.err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, d.err)
		}
		pool[i] = e
		if tag == TagLong || tag == TagDouble {
			i++
		}
	}
	return pool, nil
}

// GetUtf8 returns the Utf8 string at the given constant pool index.
func GetUtf8(pool []ConstantPoolEntry, index uint16) (string, error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return "", fmt.Errorf("invalid constant pool index %d", index)
	}
	utf8, ok := pool[index].(*ConstantUtf8)
	if !ok {
		return "", fmt.Errorf("constant pool index %d is not Utf8 (tag=%d)", index, pool[index].Tag())
	}
	return utf8.Value, nil
}

// GetClassName returns the class name referenced by a CONSTANT_Class entry.
func GetClassName(pool []ConstantPoolEntry, classIndex uint16) (string, error) {
	if int(classIndex) >= len(pool) || pool[classIndex] == nil {
		return "", fmt.Errorf("invalid constant pool index %d", classIndex)
	}
	class, ok := pool[classIndex].(*ConstantClass)
	if !ok {
		return "", fmt.Errorf("constant pool index %d is not Class", classIndex)
	}
	return GetUtf8(pool, class.NameIndex)
}

// GetString returns the text of a CONSTANT_String entry.
func GetString(pool []ConstantPoolEntry, index uint16) (string, error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return "", fmt.Errorf("invalid constant pool index %d", index)
	}
	str, ok := pool[index].(*ConstantString)
	if !ok {
		return "", fmt.Errorf("constant pool index %d is not String", index)
	}
	return GetUtf8(pool, str.StringIndex)
}

// ResolveNameAndType returns the name and descriptor of a CONSTANT_NameAndType entry.
func ResolveNameAndType(pool []ConstantPoolEntry, index uint16) (string, string, error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return "", "", fmt.Errorf("invalid NameAndType index %d", index)
	}
	nat, ok := pool[index].(*ConstantNameAndType)
	if !ok {
		return "", "", fmt.Errorf("constant pool index %d is not NameAndType", index)
	}
	name, err := GetUtf8(pool, nat.NameIndex)
	if err != nil {
		return "", "", fmt.Errorf("resolving name: %w", err)
	}
	desc, err := GetUtf8(pool, nat.DescriptorIndex)
	if err != nil {
		return "", "", fmt.Errorf("resolving descriptor: %w", err)
	}
	return name, desc, nil
}

// MethodRefInfo holds resolved method reference info.
type MethodRefInfo struct {
	ClassName  string
	MethodName string
	Descriptor string
	Interface  bool
}

// ResolveMethodref resolves a CONSTANT_Methodref entry. Since class file
// version 52 invokestatic and invokespecial may also name an
// InterfaceMethodref, so both are accepted here.
func ResolveMethodref(pool []ConstantPoolEntry, index uint16) (*MethodRefInfo, error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return nil, fmt.Errorf("invalid constant pool index %d", index)
	}
	switch ref := pool[index].(type) {
	case *ConstantMethodref:
		return resolveMethodMember(pool, ref.ClassIndex, ref.NameAndTypeIndex, false)
	case *ConstantInterfaceMethodref:
		return resolveMethodMember(pool, ref.ClassIndex, ref.NameAndTypeIndex, true)
	default:
		return nil, fmt.Errorf("constant pool index %d is not Methodref", index)
	}
}

// ResolveInterfaceMethodref resolves a CONSTANT_InterfaceMethodref entry.
func ResolveInterfaceMethodref(pool []ConstantPoolEntry, index uint16) (*MethodRefInfo, error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return nil, fmt.Errorf("invalid constant pool index %d", index)
	}
	mref, ok := pool[index].(*ConstantInterfaceMethodref)
	if !ok {
		return nil, fmt.Errorf("constant pool index %d is not InterfaceMethodref", index)
	}
	return resolveMethodMember(pool, mref.ClassIndex, mref.NameAndTypeIndex, true)
}

func resolveMethodMember(pool []ConstantPoolEntry, classIndex, natIndex uint16, iface bool) (*MethodRefInfo, error) {
	className, err := GetClassName(pool, classIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving Methodref class: %w", err)
	}
	name, desc, err := ResolveNameAndType(pool, natIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving method %s: %w", className, err)
	}
	return &MethodRefInfo{
		ClassName:  className,
		MethodName: name,
		Descriptor: desc,
		Interface:  iface,
	}, nil
}

// FieldRefInfo holds resolved field reference info.
type FieldRefInfo struct {
	ClassName  string
	FieldName  string
	Descriptor string
}

// ResolveFieldref resolves a CONSTANT_Fieldref entry.
func ResolveFieldref(pool []ConstantPoolEntry, index uint16) (*FieldRefInfo, error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return nil, fmt.Errorf("invalid constant pool index %d", index)
	}
	fref, ok := pool[index].(*ConstantFieldref)
	if !ok {
		return nil, fmt.Errorf("constant pool index %d is not Fieldref", index)
	}

	className, err := GetClassName(pool, fref.ClassIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving Fieldref class: %w", err)
	}
	fieldName, descriptor, err := ResolveNameAndType(pool, fref.NameAndTypeIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving field %s: %w", className, err)
	}

	return &FieldRefInfo{
		ClassName:  className,
		FieldName:  fieldName,
		Descriptor: descriptor,
	}, nil
}

// InvokeDynamicInfo is a resolved CONSTANT_InvokeDynamic together with its
// bootstrap method.
type InvokeDynamicInfo struct {
	Name       string
	Descriptor string
	Bootstrap  *MethodRefInfo
	Arguments  []ConstantPoolEntry
}

// ResolveInvokeDynamic resolves an invokedynamic call site of cf.
func (cf *ClassFile) ResolveInvokeDynamic(index uint16) (*InvokeDynamicInfo, error) {
	pool := cf.ConstantPool
	if int(index) >= len(pool) || pool[index] == nil {
		return nil, fmt.Errorf("invalid constant pool index %d", index)
	}
	indy, ok := pool[index].(*ConstantInvokeDynamic)
	if !ok || indy.Tag() != TagInvokeDynamic {
		return nil, fmt.Errorf("constant pool index %d is not InvokeDynamic", index)
	}
	name, desc, err := ResolveNameAndType(pool, indy.NameAndTypeIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving call site: %w", err)
	}
	if int(indy.BootstrapMethodAttrIndex) >= len(cf.BootstrapMethods) {
		return nil, fmt.Errorf("bootstrap method %d out of range", indy.BootstrapMethodAttrIndex)
	}
	bsm := cf.BootstrapMethods[indy.BootstrapMethodAttrIndex]
	if int(bsm.MethodRef) >= len(pool) || pool[bsm.MethodRef] == nil {
		return nil, fmt.Errorf("invalid bootstrap method handle %d", bsm.MethodRef)
	}
	mh, ok := pool[bsm.MethodRef].(*ConstantMethodHandle)
	if !ok {
		return nil, fmt.Errorf("constant pool index %d is not MethodHandle", bsm.MethodRef)
	}
	target, err := ResolveMethodref(pool, mh.ReferenceIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving bootstrap method: %w", err)
	}
	args := make([]ConstantPoolEntry, 0, len(bsm.BootstrapArguments))
	for _, a := range bsm.BootstrapArguments {
		if int(a) >= len(pool) {
			return nil, fmt.Errorf("invalid bootstrap argument index %d", a)
		}
		args = append(args, pool[a])
	}
	return &InvokeDynamicInfo{Name: name, Descriptor: desc, Bootstrap: target, Arguments: args}, nil
}
