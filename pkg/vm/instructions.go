package vm

import (
	"fmt"
	"math"

	"github.com/daimatz/jvmsandbox/pkg/classfile"
)

// Opcodes
const (
	OpNop        = 0x00
	OpAconstNull = 0x01
	OpIconstM1   = 0x02
	OpIconst0    = 0x03
	OpIconst1    = 0x04
	OpIconst2    = 0x05
	OpIconst3    = 0x06
	OpIconst4    = 0x07
	OpIconst5    = 0x08
	OpLconst0    = 0x09
	OpLconst1    = 0x0A
	OpFconst0    = 0x0B
	OpFconst1    = 0x0C
	OpFconst2    = 0x0D
	OpDconst0    = 0x0E
	OpDconst1    = 0x0F
	OpBipush     = 0x10
	OpSipush     = 0x11
	OpLdc        = 0x12
	OpLdcW       = 0x13
	OpLdc2W      = 0x14

	OpIload  = 0x15
	OpLload  = 0x16
	OpFload  = 0x17
	OpDload  = 0x18
	OpAload  = 0x19
	OpIload0 = 0x1A
	OpIload1 = 0x1B
	OpIload2 = 0x1C
	OpIload3 = 0x1D
	OpLload0 = 0x1E
	OpLload1 = 0x1F
	OpLload2 = 0x20
	OpLload3 = 0x21
	OpFload0 = 0x22
	OpFload1 = 0x23
	OpFload2 = 0x24
	OpFload3 = 0x25
	OpDload0 = 0x26
	OpDload1 = 0x27
	OpDload2 = 0x28
	OpDload3 = 0x29
	OpAload0 = 0x2A
	OpAload1 = 0x2B
	OpAload2 = 0x2C
	OpAload3 = 0x2D
	OpIaload = 0x2E
	OpLaload = 0x2F
	OpFaload = 0x30
	OpDaload = 0x31
	OpAaload = 0x32
	OpBaload = 0x33
	OpCaload = 0x34
	OpSaload = 0x35

	OpIstore  = 0x36
	OpLstore  = 0x37
	OpFstore  = 0x38
	OpDstore  = 0x39
	OpAstore  = 0x3A
	OpIstore0 = 0x3B
	OpIstore1 = 0x3C
	OpIstore2 = 0x3D
	OpIstore3 = 0x3E
	OpLstore0 = 0x3F
	OpLstore1 = 0x40
	OpLstore2 = 0x41
	OpLstore3 = 0x42
	OpFstore0 = 0x43
	OpFstore1 = 0x44
	OpFstore2 = 0x45
	OpFstore3 = 0x46
	OpDstore0 = 0x47
	OpDstore1 = 0x48
	OpDstore2 = 0x49
	OpDstore3 = 0x4A
	OpAstore0 = 0x4B
	OpAstore1 = 0x4C
	OpAstore2 = 0x4D
	OpAstore3 = 0x4E
	OpIastore = 0x4F
	OpLastore = 0x50
	OpFastore = 0x51
	OpDastore = 0x52
	OpAastore = 0x53
	OpBastore = 0x54
	OpCastore = 0x55
	OpSastore = 0x56

	OpPop    = 0x57
	OpPop2   = 0x58
	OpDup    = 0x59
	OpDupX1  = 0x5A
	OpDupX2  = 0x5B
	OpDup2   = 0x5C
	OpDup2X1 = 0x5D
	OpDup2X2 = 0x5E
	OpSwap   = 0x5F

	OpIadd  = 0x60
	OpLadd  = 0x61
	OpFadd  = 0x62
	OpDadd  = 0x63
	OpIsub  = 0x64
	OpLsub  = 0x65
	OpFsub  = 0x66
	OpDsub  = 0x67
	OpImul  = 0x68
	OpLmul  = 0x69
	OpFmul  = 0x6A
	OpDmul  = 0x6B
	OpIdiv  = 0x6C
	OpLdiv  = 0x6D
	OpFdiv  = 0x6E
	OpDdiv  = 0x6F
	OpIrem  = 0x70
	OpLrem  = 0x71
	OpFrem  = 0x72
	OpDrem  = 0x73
	OpIneg  = 0x74
	OpLneg  = 0x75
	OpFneg  = 0x76
	OpDneg  = 0x77
	OpIshl  = 0x78
	OpLshl  = 0x79
	OpIshr  = 0x7A
	OpLshr  = 0x7B
	OpIushr = 0x7C
	OpLushr = 0x7D
	OpIand  = 0x7E
	OpLand  = 0x7F
	OpIor   = 0x80
	OpLor   = 0x81
	OpIxor  = 0x82
	OpLxor  = 0x83
	OpIinc  = 0x84

	OpI2l = 0x85
	OpI2f = 0x86
	OpI2d = 0x87
	OpL2i = 0x88
	OpL2f = 0x89
	OpL2d = 0x8A
	OpF2i = 0x8B
	OpF2l = 0x8C
	OpF2d = 0x8D
	OpD2i = 0x8E
	OpD2l = 0x8F
	OpD2f = 0x90
	OpI2b = 0x91
	OpI2c = 0x92
	OpI2s = 0x93

	OpLcmp         = 0x94
	OpFcmpl        = 0x95
	OpFcmpg        = 0x96
	OpDcmpl        = 0x97
	OpDcmpg        = 0x98
	OpIfeq         = 0x99
	OpIfne         = 0x9A
	OpIflt         = 0x9B
	OpIfge         = 0x9C
	OpIfgt         = 0x9D
	OpIfle         = 0x9E
	OpIfIcmpeq     = 0x9F
	OpIfIcmpne     = 0xA0
	OpIfIcmplt     = 0xA1
	OpIfIcmpge     = 0xA2
	OpIfIcmpgt     = 0xA3
	OpIfIcmple     = 0xA4
	OpIfAcmpeq     = 0xA5
	OpIfAcmpne     = 0xA6
	OpGoto         = 0xA7
	OpJsr          = 0xA8
	OpRet          = 0xA9
	OpTableswitch  = 0xAA
	OpLookupswitch = 0xAB

	OpIreturn = 0xAC
	OpLreturn = 0xAD
	OpFreturn = 0xAE
	OpDreturn = 0xAF
	OpAreturn = 0xB0
	OpReturn  = 0xB1

	OpGetstatic       = 0xB2
	OpPutstatic       = 0xB3
	OpGetfield        = 0xB4
	OpPutfield        = 0xB5
	OpInvokevirtual   = 0xB6
	OpInvokespecial   = 0xB7
	OpInvokestatic    = 0xB8
	OpInvokeinterface = 0xB9
	OpInvokedynamic   = 0xBA
	OpNew             = 0xBB
	OpNewarray        = 0xBC
	OpAnewarray       = 0xBD
	OpArraylength     = 0xBE
	OpAthrow          = 0xBF
	OpCheckcast       = 0xC0
	OpInstanceof      = 0xC1
	OpMonitorenter    = 0xC2
	OpMonitorexit     = 0xC3
	OpWide            = 0xC4
	OpMultianewarray  = 0xC5
	OpIfnull          = 0xC6
	OpIfnonnull       = 0xC7
	OpGotoW           = 0xC8
	OpJsrW            = 0xC9
)

// executeInstruction executes a single bytecode instruction.
// Returns (returnValue, hasReturn, error).
func (vm *VM) executeInstruction(frame *Frame, opcode byte) (Value, bool, error) {
	switch opcode {
	case OpNop:
		// do nothing

	// --- Constant load instructions ---
	case OpAconstNull:
		frame.Push(NullValue())

	case OpIconstM1, OpIconst0, OpIconst1, OpIconst2, OpIconst3, OpIconst4, OpIconst5:
		frame.Push(IntValue(int32(opcode) - OpIconst0))

	case OpLconst0:
		frame.Push(LongValue(0))
	case OpLconst1:
		frame.Push(LongValue(1))

	case OpFconst0:
		frame.Push(FloatValue(0.0))
	case OpFconst1:
		frame.Push(FloatValue(1.0))
	case OpFconst2:
		frame.Push(FloatValue(2.0))

	case OpDconst0:
		frame.Push(DoubleValue(0.0))
	case OpDconst1:
		frame.Push(DoubleValue(1.0))

	case OpBipush:
		val := frame.ReadI8()
		frame.Push(IntValue(int32(val)))

	case OpSipush:
		val := frame.ReadI16()
		frame.Push(IntValue(int32(val)))

	case OpLdc:
		index := frame.ReadU8()
		return Value{}, false, vm.executeLdc(frame, uint16(index))

	case OpLdcW:
		index := frame.ReadU16()
		return Value{}, false, vm.executeLdc(frame, index)

	case OpLdc2W:
		index := frame.ReadU16()
		return Value{}, false, vm.executeLdc2(frame, index)

	// --- Local variable load instructions ---
	case OpIload, OpLload, OpFload, OpDload, OpAload:
		index := frame.ReadU8()
		frame.Push(frame.GetLocal(int(index)))

	case OpIload0, OpLload0, OpFload0, OpDload0, OpAload0:
		frame.Push(frame.GetLocal(0))
	case OpIload1, OpLload1, OpFload1, OpDload1, OpAload1:
		frame.Push(frame.GetLocal(1))
	case OpIload2, OpLload2, OpFload2, OpDload2, OpAload2:
		frame.Push(frame.GetLocal(2))
	case OpIload3, OpLload3, OpFload3, OpDload3, OpAload3:
		frame.Push(frame.GetLocal(3))

	// --- Array load ---
	case OpIaload, OpLaload, OpFaload, OpDaload, OpAaload, OpBaload, OpCaload, OpSaload:
		index := frame.Pop().Int
		arr, err := vm.arrayOperand(frame.Pop(), index)
		if err != nil {
			return Value{}, false, err
		}
		frame.Push(arr.Elements[index])

	// --- Local variable store instructions ---
	case OpIstore, OpLstore, OpFstore, OpDstore, OpAstore:
		index := frame.ReadU8()
		frame.SetLocal(int(index), frame.Pop())

	case OpIstore0, OpLstore0, OpFstore0, OpDstore0, OpAstore0:
		frame.SetLocal(0, frame.Pop())
	case OpIstore1, OpLstore1, OpFstore1, OpDstore1, OpAstore1:
		frame.SetLocal(1, frame.Pop())
	case OpIstore2, OpLstore2, OpFstore2, OpDstore2, OpAstore2:
		frame.SetLocal(2, frame.Pop())
	case OpIstore3, OpLstore3, OpFstore3, OpDstore3, OpAstore3:
		frame.SetLocal(3, frame.Pop())

	// --- Array store ---
	case OpIastore, OpLastore, OpFastore, OpDastore, OpBastore, OpCastore, OpSastore:
		value := frame.Pop()
		index := frame.Pop().Int
		arr, err := vm.arrayOperand(frame.Pop(), index)
		if err != nil {
			return Value{}, false, err
		}
		arr.Elements[index] = coerce(arr.ElementType(), value)

	case OpAastore:
		value := frame.Pop()
		index := frame.Pop().Int
		arr, err := vm.arrayOperand(frame.Pop(), index)
		if err != nil {
			return Value{}, false, err
		}
		if !value.IsNull() && !vm.isInstanceOf(value.Ref, refName(arr.ElementType())) {
			return Value{}, false, vm.throwNew("java/lang/ArrayStoreException", "%s", classfile.DotName(className(value)))
		}
		arr.Elements[index] = value

	// --- Stack manipulation ---
	// long and double occupy one entry here, so the category 2 forms of
	// pop2 and the dup2 family act on a single value.
	case OpPop:
		frame.Pop()

	case OpPop2:
		if v := frame.Pop(); !v.IsWide() {
			frame.Pop()
		}

	case OpDup:
		v := frame.Pop()
		frame.Push(v)
		frame.Push(v)

	case OpDupX1:
		v1 := frame.Pop()
		v2 := frame.Pop()
		frame.Push(v1)
		frame.Push(v2)
		frame.Push(v1)

	case OpDupX2:
		v1 := frame.Pop()
		v2 := frame.Pop()
		if v2.IsWide() {
			frame.Push(v1)
			frame.Push(v2)
			frame.Push(v1)
			break
		}
		v3 := frame.Pop()
		frame.Push(v1)
		frame.Push(v3)
		frame.Push(v2)
		frame.Push(v1)

	case OpDup2:
		v1 := frame.Pop()
		if v1.IsWide() {
			frame.Push(v1)
			frame.Push(v1)
			break
		}
		v2 := frame.Pop()
		frame.Push(v2)
		frame.Push(v1)
		frame.Push(v2)
		frame.Push(v1)

	case OpDup2X1:
		v1 := frame.Pop()
		if v1.IsWide() {
			v2 := frame.Pop()
			frame.Push(v1)
			frame.Push(v2)
			frame.Push(v1)
			break
		}
		v2 := frame.Pop()
		v3 := frame.Pop()
		frame.Push(v2)
		frame.Push(v1)
		frame.Push(v3)
		frame.Push(v2)
		frame.Push(v1)

	case OpDup2X2:
		vm.dup2x2(frame)

	case OpSwap:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(v2)
		frame.Push(v1)

	// --- Arithmetic ---
	case OpIadd:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(IntValue(v1.Int + v2.Int))

	case OpLadd:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(LongValue(v1.Long + v2.Long))

	case OpFadd:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(FloatValue(v1.Float + v2.Float))

	case OpDadd:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(DoubleValue(v1.Double + v2.Double))

	case OpIsub:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(IntValue(v1.Int - v2.Int))

	case OpLsub:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(LongValue(v1.Long - v2.Long))

	case OpFsub:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(FloatValue(v1.Float - v2.Float))

	case OpDsub:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(DoubleValue(v1.Double - v2.Double))

	case OpImul:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(IntValue(v1.Int * v2.Int))

	case OpLmul:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(LongValue(v1.Long * v2.Long))

	case OpFmul:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(FloatValue(v1.Float * v2.Float))

	case OpDmul:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(DoubleValue(v1.Double * v2.Double))

	// Go defines MinInt32 / -1 as MinInt32 and MinInt32 % -1 as 0, which
	// matches the JVM.
	case OpIdiv:
		v2 := frame.Pop()
		v1 := frame.Pop()
		if v2.Int == 0 {
			return Value{}, false, vm.throwNew("java/lang/ArithmeticException", "/ by zero")
		}
		frame.Push(IntValue(v1.Int / v2.Int))

	case OpLdiv:
		v2 := frame.Pop()
		v1 := frame.Pop()
		if v2.Long == 0 {
			return Value{}, false, vm.throwNew("java/lang/ArithmeticException", "/ by zero")
		}
		frame.Push(LongValue(v1.Long / v2.Long))

	case OpFdiv:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(FloatValue(v1.Float / v2.Float))

	case OpDdiv:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(DoubleValue(v1.Double / v2.Double))

	case OpIrem:
		v2 := frame.Pop()
		v1 := frame.Pop()
		if v2.Int == 0 {
			return Value{}, false, vm.throwNew("java/lang/ArithmeticException", "/ by zero")
		}
		frame.Push(IntValue(v1.Int % v2.Int))

	case OpLrem:
		v2 := frame.Pop()
		v1 := frame.Pop()
		if v2.Long == 0 {
			return Value{}, false, vm.throwNew("java/lang/ArithmeticException", "/ by zero")
		}
		frame.Push(LongValue(v1.Long % v2.Long))

	case OpFrem:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(FloatValue(float32(math.Mod(float64(v1.Float), float64(v2.Float)))))

	case OpDrem:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(DoubleValue(math.Mod(v1.Double, v2.Double)))

	case OpIneg:
		v := frame.Pop()
		frame.Push(IntValue(-v.Int))

	case OpLneg:
		v := frame.Pop()
		frame.Push(LongValue(-v.Long))

	case OpFneg:
		v := frame.Pop()
		frame.Push(FloatValue(-v.Float))

	case OpDneg:
		v := frame.Pop()
		frame.Push(DoubleValue(-v.Double))

	// --- Bit operations ---
	case OpIshl:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(IntValue(v1.Int << uint(v2.Int&0x1f)))

	case OpLshl:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(LongValue(v1.Long << uint(v2.Int&0x3f)))

	case OpIshr:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(IntValue(v1.Int >> uint(v2.Int&0x1f)))

	case OpLshr:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(LongValue(v1.Long >> uint(v2.Int&0x3f)))

	case OpIushr:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(IntValue(int32(uint32(v1.Int) >> uint(v2.Int&0x1f))))

	case OpLushr:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(LongValue(int64(uint64(v1.Long) >> uint(v2.Int&0x3f))))

	case OpIand:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(IntValue(v1.Int & v2.Int))

	case OpLand:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(LongValue(v1.Long & v2.Long))

	case OpIor:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(IntValue(v1.Int | v2.Int))

	case OpLor:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(LongValue(v1.Long | v2.Long))

	case OpIxor:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(IntValue(v1.Int ^ v2.Int))

	case OpLxor:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(LongValue(v1.Long ^ v2.Long))

	case OpIinc:
		index := frame.ReadU8()
		delta := frame.ReadI8()
		v := frame.GetLocal(int(index))
		frame.SetLocal(int(index), IntValue(v.Int+int32(delta)))

	// --- Type conversions ---
	case OpI2l:
		v := frame.Pop()
		frame.Push(LongValue(int64(v.Int)))
	case OpI2f:
		v := frame.Pop()
		frame.Push(FloatValue(float32(v.Int)))
	case OpI2d:
		v := frame.Pop()
		frame.Push(DoubleValue(float64(v.Int)))
	case OpL2i:
		v := frame.Pop()
		frame.Push(IntValue(int32(v.Long)))
	case OpL2f:
		v := frame.Pop()
		frame.Push(FloatValue(float32(v.Long)))
	case OpL2d:
		v := frame.Pop()
		frame.Push(DoubleValue(float64(v.Long)))
	case OpF2i:
		v := frame.Pop()
		frame.Push(IntValue(f2i(float64(v.Float))))
	case OpF2l:
		v := frame.Pop()
		frame.Push(LongValue(f2l(float64(v.Float))))
	case OpF2d:
		v := frame.Pop()
		frame.Push(DoubleValue(float64(v.Float)))
	case OpD2i:
		v := frame.Pop()
		frame.Push(IntValue(f2i(v.Double)))
	case OpD2l:
		v := frame.Pop()
		frame.Push(LongValue(f2l(v.Double)))
	case OpD2f:
		v := frame.Pop()
		frame.Push(FloatValue(float32(v.Double)))
	case OpI2b:
		v := frame.Pop()
		frame.Push(IntValue(int32(int8(v.Int))))
	case OpI2c:
		v := frame.Pop()
		frame.Push(IntValue(int32(uint16(v.Int))))
	case OpI2s:
		v := frame.Pop()
		frame.Push(IntValue(int32(int16(v.Int))))

	// --- Comparisons ---
	case OpLcmp:
		v2 := frame.Pop()
		v1 := frame.Pop()
		if v1.Long > v2.Long {
			frame.Push(IntValue(1))
		} else if v1.Long < v2.Long {
			frame.Push(IntValue(-1))
		} else {
			frame.Push(IntValue(0))
		}

	case OpFcmpl, OpFcmpg:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(IntValue(fcmp(float64(v1.Float), float64(v2.Float), opcode == OpFcmpg)))

	case OpDcmpl, OpDcmpg:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(IntValue(fcmp(v1.Double, v2.Double, opcode == OpDcmpg)))

	// --- Comparison and branch ---
	case OpIfeq:
		return vm.executeBranchUnary(frame, func(v int32) bool { return v == 0 })
	case OpIfne:
		return vm.executeBranchUnary(frame, func(v int32) bool { return v != 0 })
	case OpIflt:
		return vm.executeBranchUnary(frame, func(v int32) bool { return v < 0 })
	case OpIfge:
		return vm.executeBranchUnary(frame, func(v int32) bool { return v >= 0 })
	case OpIfgt:
		return vm.executeBranchUnary(frame, func(v int32) bool { return v > 0 })
	case OpIfle:
		return vm.executeBranchUnary(frame, func(v int32) bool { return v <= 0 })

	case OpIfIcmpeq:
		return vm.executeBranchBinary(frame, func(v1, v2 int32) bool { return v1 == v2 })
	case OpIfIcmpne:
		return vm.executeBranchBinary(frame, func(v1, v2 int32) bool { return v1 != v2 })
	case OpIfIcmplt:
		return vm.executeBranchBinary(frame, func(v1, v2 int32) bool { return v1 < v2 })
	case OpIfIcmpge:
		return vm.executeBranchBinary(frame, func(v1, v2 int32) bool { return v1 >= v2 })
	case OpIfIcmpgt:
		return vm.executeBranchBinary(frame, func(v1, v2 int32) bool { return v1 > v2 })
	case OpIfIcmple:
		return vm.executeBranchBinary(frame, func(v1, v2 int32) bool { return v1 <= v2 })

	case OpIfAcmpeq:
		branchPC := frame.PC - 1
		offset := frame.ReadI16()
		v2 := frame.Pop()
		v1 := frame.Pop()
		if sameRef(v1, v2) {
			frame.PC = branchPC + int(offset)
		}

	case OpIfAcmpne:
		branchPC := frame.PC - 1
		offset := frame.ReadI16()
		v2 := frame.Pop()
		v1 := frame.Pop()
		if !sameRef(v1, v2) {
			frame.PC = branchPC + int(offset)
		}

	case OpGoto:
		branchPC := frame.PC - 1
		offset := frame.ReadI16()
		frame.PC = branchPC + int(offset)

	case OpGotoW:
		branchPC := frame.PC - 1
		offset := frame.ReadI32()
		frame.PC = branchPC + int(offset)

	// jsr pushes the returnAddress as an int; ret jumps back to it.
	case OpJsr:
		branchPC := frame.PC - 1
		offset := frame.ReadI16()
		frame.Push(IntValue(int32(frame.PC)))
		frame.PC = branchPC + int(offset)

	case OpJsrW:
		branchPC := frame.PC - 1
		offset := frame.ReadI32()
		frame.Push(IntValue(int32(frame.PC)))
		frame.PC = branchPC + int(offset)

	case OpRet:
		index := frame.ReadU8()
		frame.PC = int(frame.GetLocal(int(index)).Int)

	case OpTableswitch:
		// PC of the tableswitch opcode
		opcodePC := frame.PC - 1
		// Padding to align to 4-byte boundary
		for frame.PC%4 != 0 {
			frame.PC++
		}
		defaultOffset := frame.ReadI32()
		low := frame.ReadI32()
		high := frame.ReadI32()
		numOffsets := int(high - low + 1)
		offsets := make([]int32, numOffsets)
		for i := 0; i < numOffsets; i++ {
			offsets[i] = frame.ReadI32()
		}
		index := frame.Pop().Int
		if index >= low && index <= high {
			frame.PC = opcodePC + int(offsets[index-low])
		} else {
			frame.PC = opcodePC + int(defaultOffset)
		}

	case OpLookupswitch:
		opcodePC := frame.PC - 1
		for frame.PC%4 != 0 {
			frame.PC++
		}
		defaultOffset := frame.ReadI32()
		npairs := frame.ReadI32()
		key := frame.Pop().Int
		target := opcodePC + int(defaultOffset)
		for i := int32(0); i < npairs; i++ {
			matchVal := frame.ReadI32()
			offset := frame.ReadI32()
			if key == matchVal {
				target = opcodePC + int(offset)
			}
		}
		frame.PC = target

	// --- Return ---
	case OpIreturn, OpLreturn, OpFreturn, OpDreturn, OpAreturn:
		return frame.Pop(), true, nil

	case OpReturn:
		return Value{}, true, nil

	// --- Method invocation and field access ---
	case OpGetstatic:
		return Value{}, false, vm.executeGetstatic(frame)

	case OpPutstatic:
		return Value{}, false, vm.executePutstatic(frame)

	case OpGetfield:
		return Value{}, false, vm.executeGetfield(frame)

	case OpPutfield:
		return Value{}, false, vm.executePutfield(frame)

	case OpInvokevirtual:
		return Value{}, false, vm.executeInvokevirtual(frame, false)

	case OpInvokespecial:
		return Value{}, false, vm.executeInvokespecial(frame)

	case OpInvokestatic:
		return Value{}, false, vm.executeInvokestatic(frame)

	case OpInvokeinterface:
		return Value{}, false, vm.executeInvokevirtual(frame, true)

	case OpInvokedynamic:
		return Value{}, false, vm.executeInvokedynamic(frame)

	// --- Objects and arrays ---
	case OpNew:
		return Value{}, false, vm.executeNew(frame)

	case OpNewarray:
		atype := frame.ReadU8()
		count := frame.Pop().Int
		desc, ok := primitiveArrayTypes[atype]
		if !ok {
			return Value{}, false, fmt.Errorf("newarray: invalid atype %d", atype)
		}
		if count < 0 {
			return Value{}, false, vm.throwNew("java/lang/NegativeArraySizeException", "%d", count)
		}
		frame.Push(RefValue(newArray(desc, int(count))))

	case OpAnewarray:
		return Value{}, false, vm.executeAnewarray(frame)

	case OpMultianewarray:
		return Value{}, false, vm.executeMultianewarray(frame)

	case OpArraylength:
		arrRef := frame.Pop()
		if arrRef.IsNull() {
			return Value{}, false, vm.throwNPE("Cannot read the array length because value is null")
		}
		arr := arrRef.Array()
		if arr == nil {
			return Value{}, false, fmt.Errorf("arraylength: reference is not an array")
		}
		frame.Push(IntValue(int32(len(arr.Elements))))

	case OpAthrow:
		excRef := frame.Pop()
		if excRef.IsNull() {
			return Value{}, false, vm.throwNPE("Cannot throw exception because value is null")
		}
		if obj := excRef.Object(); obj != nil {
			return Value{}, false, &JavaException{Object: obj}
		}
		return Value{}, false, fmt.Errorf("athrow: non-object on stack")

	case OpCheckcast:
		return Value{}, false, vm.executeCheckcast(frame)

	case OpInstanceof:
		return Value{}, false, vm.executeInstanceof(frame)

	// One thread runs at a time, so monitors only check for null.
	case OpMonitorenter, OpMonitorexit:
		if frame.Pop().IsNull() {
			return Value{}, false, vm.throwNPE("Cannot enter synchronized block because value is null")
		}

	case OpWide:
		return vm.executeWide(frame)

	case OpIfnull:
		branchPC := frame.PC - 1
		offset := frame.ReadI16()
		if frame.Pop().IsNull() {
			frame.PC = branchPC + int(offset)
		}

	case OpIfnonnull:
		branchPC := frame.PC - 1
		offset := frame.ReadI16()
		if !frame.Pop().IsNull() {
			frame.PC = branchPC + int(offset)
		}

	default:
		return Value{}, false, fmt.Errorf("unknown opcode: 0x%02X at PC=%d", opcode, frame.PC-1)
	}

	return Value{}, false, nil
}

// executeBranchUnary handles unary branch instructions (ifeq, ifne, etc.)
func (vm *VM) executeBranchUnary(frame *Frame, cond func(int32) bool) (Value, bool, error) {
	branchPC := frame.PC - 1 // PC of the branch instruction
	offset := frame.ReadI16()
	val := frame.Pop()
	if cond(val.Int) {
		frame.PC = branchPC + int(offset)
	}
	return Value{}, false, nil
}

// executeBranchBinary handles binary branch instructions (if_icmpeq, etc.)
func (vm *VM) executeBranchBinary(frame *Frame, cond func(int32, int32) bool) (Value, bool, error) {
	branchPC := frame.PC - 1 // PC of the branch instruction
	offset := frame.ReadI16()
	v2 := frame.Pop()
	v1 := frame.Pop()
	if cond(v1.Int, v2.Int) {
		frame.PC = branchPC + int(offset)
	}
	return Value{}, false, nil
}

// executeWide handles the wide prefix: a 16-bit local index, plus a 16-bit
// increment for iinc.
func (vm *VM) executeWide(frame *Frame) (Value, bool, error) {
	opcode := frame.ReadU8()
	index := int(frame.ReadU16())
	switch opcode {
	case OpIload, OpLload, OpFload, OpDload, OpAload:
		frame.Push(frame.GetLocal(index))
	case OpIstore, OpLstore, OpFstore, OpDstore, OpAstore:
		frame.SetLocal(index, frame.Pop())
	case OpIinc:
		delta := frame.ReadI16()
		frame.SetLocal(index, IntValue(frame.GetLocal(index).Int+int32(delta)))
	case OpRet:
		frame.PC = int(frame.GetLocal(index).Int)
	default:
		return Value{}, false, fmt.Errorf("wide: invalid opcode 0x%02X", opcode)
	}
	return Value{}, false, nil
}

func (vm *VM) dup2x2(frame *Frame) {
	v1 := frame.Pop()
	v2 := frame.Pop()
	switch {
	case v1.IsWide() && v2.IsWide():
		// ..., v2, v1 -> ..., v1, v2, v1
		frame.Push(v1)
		frame.Push(v2)
		frame.Push(v1)
	case v1.IsWide():
		// ..., v3, v2, v1 -> ..., v1, v3, v2, v1
		v3 := frame.Pop()
		frame.Push(v1)
		frame.Push(v3)
		frame.Push(v2)
		frame.Push(v1)
	default:
		v3 := frame.Pop()
		if v3.IsWide() {
			// ..., v3, v2, v1 -> ..., v2, v1, v3, v2, v1
			frame.Push(v2)
			frame.Push(v1)
			frame.Push(v3)
			frame.Push(v2)
			frame.Push(v1)
			return
		}
		v4 := frame.Pop()
		frame.Push(v2)
		frame.Push(v1)
		frame.Push(v4)
		frame.Push(v3)
		frame.Push(v2)
		frame.Push(v1)
	}
}

// arrayOperand checks an array reference and index for an array load or
// store.
func (vm *VM) arrayOperand(ref Value, index int32) (*JArray, error) {
	if ref.IsNull() {
		return nil, vm.throwNPE("Cannot load from array because value is null")
	}
	arr := ref.Array()
	if arr == nil {
		return nil, fmt.Errorf("array access: reference is not an array")
	}
	if index < 0 || int(index) >= len(arr.Elements) {
		return nil, vm.throwNew("java/lang/ArrayIndexOutOfBoundsException",
			"Index %d out of bounds for length %d", index, len(arr.Elements))
	}
	return arr, nil
}

func sameRef(v1, v2 Value) bool {
	if v1.IsNull() || v2.IsNull() {
		return v1.IsNull() && v2.IsNull()
	}
	return v1.Ref == v2.Ref
}

// fcmp implements fcmpl/fcmpg and dcmpl/dcmpg; NaN compares as 1 for the g
// forms and -1 for the l forms.
func fcmp(v1, v2 float64, nanIsGreater bool) int32 {
	switch {
	case math.IsNaN(v1) || math.IsNaN(v2):
		if nanIsGreater {
			return 1
		}
		return -1
	case v1 > v2:
		return 1
	case v1 < v2:
		return -1
	}
	return 0
}

// f2i converts like d2i: NaN becomes 0 and out-of-range values saturate.
func f2i(f float64) int32 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	}
	return int32(f)
}

func f2l(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}

// primitiveArrayTypes maps newarray atype codes to array descriptors.
var primitiveArrayTypes = map[uint8]string{
	4:  "[Z",
	5:  "[C",
	6:  "[F",
	7:  "[D",
	8:  "[B",
	9:  "[S",
	10: "[I",
	11: "[J",
}
