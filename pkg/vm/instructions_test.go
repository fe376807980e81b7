package vm

import (
	"math"
	"testing"

	"github.com/daimatz/jvmsandbox/pkg/classfile"
)

// executeAndGetInt creates a Frame with the given bytecodes, runs it on a VM
// without a class path, and returns the int result. The bytecodes must end
// with ireturn (0xAC). Optional locals are set as int32 values starting at
// index 0.
func executeAndGetInt(t *testing.T, code []byte, locals ...int32) int32 {
	t.Helper()

	maxLocals := uint16(len(locals))
	if maxLocals < 4 {
		maxLocals = 4
	}
	frame := NewFrame(maxLocals, 10, code, nil)
	for i, val := range locals {
		frame.SetLocal(i, IntValue(val))
	}
	return mustStep(t, New(nil), frame).Int
}

// be32 encodes a tableswitch/lookupswitch operand.
func be32(v int32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func TestIntConstants(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want int32
	}{
		{"iconst_m1", []byte{0x02, 0xAC}, -1},
		{"iconst_0", []byte{0x03, 0xAC}, 0},
		{"iconst_5", []byte{0x08, 0xAC}, 5},
		{"bipush 127", []byte{0x10, 0x7F, 0xAC}, 127},
		{"bipush -128", []byte{0x10, 0x80, 0xAC}, -128},
		{"sipush 1000", []byte{0x11, 0x03, 0xE8, 0xAC}, 1000},
		{"sipush -32768", []byte{0x11, 0x80, 0x00, 0xAC}, -32768},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := executeAndGetInt(t, tt.code); got != tt.want {
				t.Errorf("%s: got %d, want %d", tt.name, got, tt.want)
			}
		})
	}
}

func TestIntArithmetic(t *testing.T) {
	tests := []struct {
		name   string
		code   []byte
		locals []int32
		want   int32
	}{
		{"iadd", []byte{0x1A, 0x1B, 0x60, 0xAC}, []int32{3, 4}, 7},  // iload_0, iload_1, iadd
		{"isub", []byte{0x1A, 0x1B, 0x64, 0xAC}, []int32{5, 3}, 2},  // isub
		{"imul", []byte{0x1A, 0x1B, 0x68, 0xAC}, []int32{3, 4}, 12}, // imul
		{"idiv truncates", []byte{0x1A, 0x1B, 0x6C, 0xAC}, []int32{-7, 2}, -3},
		{"irem sign follows dividend", []byte{0x1A, 0x1B, 0x70, 0xAC}, []int32{-7, 2}, -1},
		{"ineg", []byte{0x1A, 0x74, 0xAC}, []int32{5}, -5},
		{"ishl masks shift", []byte{0x1A, 0x1B, 0x78, 0xAC}, []int32{1, 33}, 2},
		{"ishr keeps sign", []byte{0x1A, 0x1B, 0x7A, 0xAC}, []int32{-16, 2}, -4},
		{"iushr", []byte{0x1A, 0x1B, 0x7C, 0xAC}, []int32{-1, 28}, 15},
		{"iand", []byte{0x1A, 0x1B, 0x7E, 0xAC}, []int32{0x0F, 0x3C}, 0x0C},
		{"ior", []byte{0x1A, 0x1B, 0x80, 0xAC}, []int32{0x0F, 0x30}, 0x3F},
		{"ixor", []byte{0x1A, 0x1B, 0x82, 0xAC}, []int32{0x0F, 0x3C}, 0x33},
		// Java の int はラップアラウンドする
		{"iadd overflow", []byte{0x1A, 0x04, 0x60, 0xAC}, []int32{math.MaxInt32}, math.MinInt32},
		{"idiv MIN/-1", []byte{0x1A, 0x02, 0x6C, 0xAC}, []int32{math.MinInt32}, math.MinInt32},
		{"irem MIN%-1", []byte{0x1A, 0x02, 0x70, 0xAC}, []int32{math.MinInt32}, 0},
		{"ineg MIN", []byte{0x1A, 0x74, 0xAC}, []int32{math.MinInt32}, math.MinInt32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := executeAndGetInt(t, tt.code, tt.locals...); got != tt.want {
				t.Errorf("%s%v: got %d, want %d", tt.name, tt.locals, got, tt.want)
			}
		})
	}
}

func TestConversions(t *testing.T) {
	tests := []struct {
		name   string
		code   []byte
		locals []int32
		want   int32
	}{
		{"i2b", []byte{0x1A, 0x91, 0xAC}, []int32{200}, -56},
		{"i2c", []byte{0x1A, 0x92, 0xAC}, []int32{-1}, 0xFFFF},
		{"i2s", []byte{0x1A, 0x93, 0xAC}, []int32{40000}, -25536},
		{"i2l l2i", []byte{0x1A, 0x85, 0x88, 0xAC}, []int32{-9}, -9},
		{"i2f f2i", []byte{0x1A, 0x86, 0x8B, 0xAC}, []int32{123}, 123},
		{"i2d d2i", []byte{0x1A, 0x87, 0x8E, 0xAC}, []int32{-77}, -77},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := executeAndGetInt(t, tt.code, tt.locals...); got != tt.want {
				t.Errorf("%s(%d): got %d, want %d", tt.name, tt.locals[0], got, tt.want)
			}
		})
	}
}

func TestFloatToIntSaturates(t *testing.T) {
	v := New(nil)
	tests := []struct {
		name string
		in   Value
		op   byte
		want int32
	}{
		{"f2i NaN", FloatValue(float32(math.NaN())), 0x8B, 0},
		{"f2i +Inf", FloatValue(float32(math.Inf(1))), 0x8B, math.MaxInt32},
		{"d2i -Inf", DoubleValue(math.Inf(-1)), 0x8E, math.MinInt32},
		{"d2i 1e20", DoubleValue(1e20), 0x8E, math.MaxInt32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// aload_0 (any category 1 load works), <op>, ireturn
			frame := NewFrame(4, 4, []byte{0x19, 0x00, tt.op, 0xAC}, nil)
			frame.SetLocal(0, tt.in)
			if got := mustStep(t, v, frame).Int; got != tt.want {
				t.Errorf("%s: got %d, want %d", tt.name, got, tt.want)
			}
		})
	}
}

func TestLongAndDouble(t *testing.T) {
	v := New(nil)

	t.Run("ladd lmul lreturn", func(t *testing.T) {
		code := []byte{
			0x1E, // lload_0
			0x20, // lload_2
			0x61, // ladd
			0x0A, // lconst_1
			0x69, // lmul
			0xAD, // lreturn
		}
		frame := NewFrame(4, 4, code, nil)
		frame.SetLocal(0, LongValue(1<<40))
		frame.SetLocal(2, LongValue(5))
		got := mustStep(t, v, frame)
		if got.Type != TypeLong || got.Long != 1<<40+5 {
			t.Errorf("ladd: got %v, want long %d", got, int64(1<<40+5))
		}
	})

	t.Run("lcmp", func(t *testing.T) {
		tests := []struct {
			a, b int64
			want int32
		}{
			{1, 2, -1},
			{2, 2, 0},
			{math.MaxInt64, math.MinInt64, 1},
		}
		for _, tt := range tests {
			// lload_0, lload_2, lcmp, ireturn
			frame := NewFrame(4, 4, []byte{0x1E, 0x20, 0x94, 0xAC}, nil)
			frame.SetLocal(0, LongValue(tt.a))
			frame.SetLocal(2, LongValue(tt.b))
			if got := mustStep(t, v, frame).Int; got != tt.want {
				t.Errorf("lcmp(%d, %d): got %d, want %d", tt.a, tt.b, got, tt.want)
			}
		}
	})

	t.Run("fcmpl and fcmpg differ on NaN", func(t *testing.T) {
		nan := FloatValue(float32(math.NaN()))
		for _, tt := range []struct {
			op   byte
			want int32
		}{{0x95, -1}, {0x96, 1}} {
			// fload_0, fload_1, fcmp<op>, ireturn
			frame := NewFrame(4, 4, []byte{0x22, 0x23, tt.op, 0xAC}, nil)
			frame.SetLocal(0, nan)
			frame.SetLocal(1, FloatValue(1))
			if got := mustStep(t, v, frame).Int; got != tt.want {
				t.Errorf("fcmp 0x%02X with NaN: got %d, want %d", tt.op, got, tt.want)
			}
		}
	})

	t.Run("ddiv by zero is infinite", func(t *testing.T) {
		// dconst_1, dconst_0, ddiv, dreturn
		frame := NewFrame(4, 4, []byte{0x0F, 0x0E, 0x6F, 0xAF}, nil)
		got := mustStep(t, v, frame)
		if !math.IsInf(got.Double, 1) {
			t.Errorf("1.0/0.0: got %v, want +Inf", got.Double)
		}
	})

	t.Run("ldiv by zero throws", func(t *testing.T) {
		// lconst_1, lconst_0, ldiv, lreturn
		frame := NewFrame(4, 4, []byte{0x0A, 0x09, 0x6D, 0xAD}, nil)
		_, err := step(v, frame)
		javaException(t, err, "java/lang/ArithmeticException")
	})
}

func TestDivisionByZero(t *testing.T) {
	v := New(nil)
	tests := []struct {
		name string
		code []byte
	}{
		{"idiv", []byte{0x08, 0x03, 0x6C, 0xAC}}, // iconst_5, iconst_0, idiv, ireturn
		{"irem", []byte{0x08, 0x03, 0x70, 0xAC}}, // iconst_5, iconst_0, irem, ireturn
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := step(v, NewFrame(4, 10, tt.code, nil))
			jex := javaException(t, err, "java/lang/ArithmeticException")
			want := "JavaException: java.lang.ArithmeticException: / by zero"
			if got := jex.Error(); got != want {
				t.Errorf("error message: got %q, want %q", got, want)
			}
		})
	}
}

func TestStackOps(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want int32
	}{
		{"dup", []byte{0x08, 0x59, 0x60, 0xAC}, 10},               // iconst_5, dup, iadd
		{"swap", []byte{0x08, 0x04, 0x5F, 0x64, 0xAC}, -4},        // iconst_5, iconst_1, swap, isub -> 1-5
		{"pop", []byte{0x08, 0x04, 0x57, 0xAC}, 5},                // iconst_5, iconst_1, pop
		{"dup_x1", []byte{0x05, 0x06, 0x5A, 0x64, 0x60, 0xAC}, 2}, // 2,3 -> 3,2,3 -> 3,-1 -> 2
		{"pop2 of two ints", []byte{0x08, 0x04, 0x04, 0x58, 0xAC}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := executeAndGetInt(t, tt.code); got != tt.want {
				t.Errorf("%s: got %d, want %d", tt.name, got, tt.want)
			}
		})
	}
}

func TestBranches(t *testing.T) {
	// iload_0, <if> +5, iconst_0, ireturn, iconst_1, ireturn
	branch := func(op byte) []byte { return []byte{0x1A, op, 0x00, 0x05, 0x03, 0xAC, 0x04, 0xAC} }
	// iload_0, iload_1, <if_icmp> +5, iconst_0, ireturn, iconst_1, ireturn
	cmp := func(op byte) []byte { return []byte{0x1A, 0x1B, op, 0x00, 0x05, 0x03, 0xAC, 0x04, 0xAC} }

	tests := []struct {
		name   string
		code   []byte
		locals []int32
		want   int32
	}{
		{"ifeq taken", branch(0x99), []int32{0}, 1},
		{"ifeq not taken", branch(0x99), []int32{3}, 0},
		{"ifne", branch(0x9A), []int32{3}, 1},
		{"iflt", branch(0x9B), []int32{-1}, 1},
		{"ifge", branch(0x9C), []int32{0}, 1},
		{"ifgt", branch(0x9D), []int32{0}, 0},
		{"ifle", branch(0x9E), []int32{0}, 1},
		{"if_icmpeq", cmp(0x9F), []int32{4, 4}, 1},
		{"if_icmpne", cmp(0xA0), []int32{4, 4}, 0},
		{"if_icmplt", cmp(0xA1), []int32{3, 4}, 1},
		{"if_icmpge", cmp(0xA2), []int32{3, 4}, 0},
		{"if_icmpgt", cmp(0xA3), []int32{5, 4}, 1},
		{"if_icmple", cmp(0xA4), []int32{5, 4}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := executeAndGetInt(t, tt.code, tt.locals...); got != tt.want {
				t.Errorf("%s%v: got %d, want %d", tt.name, tt.locals, got, tt.want)
			}
		})
	}

	t.Run("backward goto loop", func(t *testing.T) {
		// sum = 0; for i = n; i > 0; i-- { sum += i }
		code := []byte{
			0x03,             // 0: iconst_0
			0x3C,             // 1: istore_1
			0x1A,             // 2: iload_0
			0x9E, 0x00, 0x0D, // 3: ifle +13 -> 16
			0x1B,             // 6: iload_1
			0x1A,             // 7: iload_0
			0x60,             // 8: iadd
			0x3C,             // 9: istore_1
			0x84, 0x00, 0xFF, // 10: iinc 0 -1
			0xA7, 0xFF, 0xF5, // 13: goto -11 -> 2
			0x1B,             // 16: iload_1
			0xAC,             // 17: ireturn
		}
		if got := executeAndGetInt(t, code, 10); got != 55 {
			t.Errorf("sum 1..10: got %d, want 55", got)
		}
	})
}

func TestTableswitch(t *testing.T) {
	code := []byte{0x1A, 0xAA, 0x00, 0x00} // iload_0, tableswitch, 2 bytes padding
	code = append(code, be32(36)...)       // default -> 37
	code = append(code, be32(0)...)        // low
	code = append(code, be32(2)...)        // high
	code = append(code, be32(27)...)       // 0 -> 28
	code = append(code, be32(30)...)       // 1 -> 31
	code = append(code, be32(33)...)       // 2 -> 34
	code = append(code,
		0x10, 10, 0xAC, // 28: bipush 10, ireturn
		0x10, 20, 0xAC, // 31: bipush 20, ireturn
		0x10, 30, 0xAC, // 34: bipush 30, ireturn
		0x02, 0xAC,     // 37: iconst_m1, ireturn
	)
	for key, want := range map[int32]int32{0: 10, 1: 20, 2: 30, 3: -1, -5: -1} {
		if got := executeAndGetInt(t, code, key); got != want {
			t.Errorf("tableswitch(%d): got %d, want %d", key, got, want)
		}
	}
}

func TestLookupswitch(t *testing.T) {
	code := []byte{0x1A, 0xAB, 0x00, 0x00} // iload_0, lookupswitch, 2 bytes padding
	code = append(code, be32(31)...)       // default -> 32
	code = append(code, be32(2)...)        // npairs
	code = append(code, be32(10)...)
	code = append(code, be32(27)...) // 10 -> 28
	code = append(code, be32(100)...)
	code = append(code, be32(29)...) // 100 -> 30
	code = append(code,
		0x04, 0xAC, // 28: iconst_1, ireturn
		0x05, 0xAC, // 30: iconst_2, ireturn
		0x03, 0xAC, // 32: iconst_0, ireturn
	)
	for key, want := range map[int32]int32{10: 1, 100: 2, 7: 0} {
		if got := executeAndGetInt(t, code, key); got != want {
			t.Errorf("lookupswitch(%d): got %d, want %d", key, got, want)
		}
	}
}

func TestIinc(t *testing.T) {
	tests := []struct {
		initial int32
		inc     int8
		want    int32
	}{
		{10, 5, 15},
		{10, -3, 7},
		{100, -128, -28},
		{0, 127, 127},
	}
	for _, tt := range tests {
		// iinc 0 <const>, iload_0, ireturn
		code := []byte{OpIinc, 0x00, byte(tt.inc), 0x1A, 0xAC}
		if got := executeAndGetInt(t, code, tt.initial); got != tt.want {
			t.Errorf("iinc(%d, %d): got %d, want %d", tt.initial, tt.inc, got, tt.want)
		}
	}

	t.Run("wide iinc", func(t *testing.T) {
		// wide iinc 0 +1000, iload_0, ireturn
		code := []byte{OpWide, OpIinc, 0x00, 0x00, 0x03, 0xE8, 0x1A, 0xAC}
		if got := executeAndGetInt(t, code, 1); got != 1001 {
			t.Errorf("wide iinc: got %d, want 1001", got)
		}
	})
}

func TestLdc(t *testing.T) {
	v := New(nil)
	b := classfile.NewBuilder("test/Consts", "")
	strIdx := b.Str("hello")
	intIdx := b.Integer(1 << 20)
	longIdx := b.Long(-1 << 40)
	c := testClass(t, b)

	t.Run("string constants are interned", func(t *testing.T) {
		// ldc #s, ldc #s, if_acmpne +5, iconst_1, ireturn, iconst_0, ireturn
		code := []byte{OpLdc, byte(strIdx), OpLdc, byte(strIdx), OpIfAcmpne, 0x00, 0x05, 0x04, 0xAC, 0x03, 0xAC}
		if got := mustStep(t, v, NewFrame(0, 4, code, c)).Int; got != 1 {
			t.Error("two ldc of the same string produced different objects")
		}
		if s, _ := GoString(RefValue(v.InternString("hello"))); s != "hello" {
			t.Errorf("interned string: got %q", s)
		}
	})

	t.Run("ldc_w int", func(t *testing.T) {
		code := append(ref(OpLdcW, intIdx), 0xAC)
		if got := mustStep(t, v, NewFrame(0, 4, code, c)).Int; got != 1<<20 {
			t.Errorf("ldc_w: got %d, want %d", got, 1<<20)
		}
	})

	t.Run("ldc2_w long", func(t *testing.T) {
		code := append(ref(OpLdc2W, longIdx), 0xAD)
		if got := mustStep(t, v, NewFrame(0, 4, code, c)).Long; got != -1<<40 {
			t.Errorf("ldc2_w: got %d, want %d", got, int64(-1<<40))
		}
	})
}

// ref emits an instruction with a two-byte operand.
func ref(op byte, index uint16) []byte {
	return []byte{op, byte(index >> 8), byte(index)}
}

func TestFieldAccess(t *testing.T) {
	v := bootTestVM(t)
	b := classfile.NewBuilder("test/Holder", "java/lang/Object")
	x := b.Fieldref("test/Holder", "x", "I")
	version := b.Fieldref("sample/Config", "VERSION", "I")
	c := testClass(t, b)

	t.Run("putfield then getfield returns stored value", func(t *testing.T) {
		code := [][]byte{
			{0x2A},             // aload_0
			{0x10, 0x37},       // bipush 55
			ref(OpPutfield, x), // putfield x
			{0x2A},             // aload_0
			ref(OpGetfield, x), // getfield x
			{0xAC},             // ireturn
		}
		var flat []byte
		for _, p := range code {
			flat = append(flat, p...)
		}
		frame := NewFrame(1, 4, flat, c)
		obj := &JObject{ClassName: "test/Holder", Fields: make(map[string]Value)}
		frame.SetLocal(0, RefValue(obj))
		if got := mustStep(t, v, frame).Int; got != 55 {
			t.Errorf("getfield after putfield: got %d, want 55", got)
		}
	})

	t.Run("getfield on unset int field returns zero", func(t *testing.T) {
		code := append(append([]byte{0x2A}, ref(OpGetfield, x)...), 0xAC)
		frame := NewFrame(1, 4, code, c)
		frame.SetLocal(0, RefValue(&JObject{ClassName: "test/Holder", Fields: make(map[string]Value)}))
		got := mustStep(t, v, frame)
		if got.Type != TypeInt || got.Int != 0 {
			t.Errorf("getfield on unset int field: got %v, want int 0", got)
		}
	})

	t.Run("getfield on null throws NPE", func(t *testing.T) {
		code := append(append([]byte{0x01}, ref(OpGetfield, x)...), 0xAC) // aconst_null
		_, err := step(v, NewFrame(1, 4, code, c))
		jex := javaException(t, err, "java/lang/NullPointerException")
		if got := jex.Error(); got != `JavaException: java.lang.NullPointerException: Cannot read field "x" because value is null` {
			t.Errorf("NPE message: got %q", got)
		}
	})

	t.Run("getstatic initializes the declaring class", func(t *testing.T) {
		code := append(ref(OpGetstatic, version), 0xAC)
		if got := mustStep(t, v, NewFrame(0, 4, code, c)).Int; got != 3 {
			t.Errorf("Config.VERSION: got %d, want 3", got)
		}
		config, _ := v.FindClass("sample/Config")
		if config.State != ClassInitialized {
			t.Errorf("Config state: got %v, want initialized", config.State)
		}
		if out := v.Files().DrainStdout(); out != "Config initialized\n" {
			t.Errorf("stdout: got %q", out)
		}
	})
}

func TestObjectInstructions(t *testing.T) {
	v := newTestVM(t)
	b := classfile.NewBuilder("test/Objects", "java/lang/Object")
	objInit := b.Methodref("java/lang/Object", "<init>", "()V")
	objectClass := b.Class("java/lang/Object")
	stringClass := b.Class("java/lang/String")
	pointClass := b.Class("sample/Point")
	abstractClass := b.Class("java/lang/Number")
	c := testClass(t, b)

	t.Run("new and Object.<init>", func(t *testing.T) {
		code := [][]byte{
			ref(OpNew, pointClass),        // new sample/Point
			{0x59},                        // dup
			ref(OpInvokespecial, objInit), // invokespecial Object.<init>
			{0xB0},                        // areturn
		}
		var flat []byte
		for _, p := range code {
			flat = append(flat, p...)
		}
		got := mustStep(t, v, NewFrame(0, 4, flat, c))
		obj := got.Object()
		if obj == nil || obj.ClassName != "sample/Point" {
			t.Fatalf("new: got %v, want a sample/Point", got)
		}
		if x := obj.GetField("x", "I"); x.Type != TypeInt || x.Int != 0 {
			t.Errorf("fresh field x: got %v, want int 0", x)
		}
	})

	t.Run("new of an abstract class", func(t *testing.T) {
		code := append(ref(OpNew, abstractClass), 0xB0)
		_, err := step(v, NewFrame(0, 4, code, c))
		javaException(t, err, "java/lang/InstantiationError")
	})

	t.Run("checkcast passes through reference", func(t *testing.T) {
		s := v.NewString("x")
		code := append(append([]byte{0x2A}, ref(OpCheckcast, objectClass)...), 0xB0)
		frame := NewFrame(1, 4, code, c)
		frame.SetLocal(0, RefValue(s))
		if got := mustStep(t, v, frame); got.Ref != s {
			t.Errorf("checkcast: reference not preserved")
		}
	})

	t.Run("checkcast failure", func(t *testing.T) {
		code := append(append([]byte{0x2A}, ref(OpCheckcast, stringClass)...), 0xB0)
		frame := NewFrame(1, 4, code, c)
		frame.SetLocal(0, RefValue(newArray("[I", 1)))
		_, err := step(v, frame)
		jex := javaException(t, err, "java/lang/ClassCastException")
		want := "JavaException: java.lang.ClassCastException: class [I cannot be cast to class java.lang.String"
		if got := jex.Error(); got != want {
			t.Errorf("message: got %q, want %q", got, want)
		}
	})

	t.Run("instanceof", func(t *testing.T) {
		tests := []struct {
			name  string
			value Value
			class uint16
			want  int32
		}{
			{"string is Object", RefValue(v.NewString("a")), objectClass, 1},
			{"string is String", RefValue(v.NewString("a")), stringClass, 1},
			{"array is not String", RefValue(newArray("[I", 0)), stringClass, 0},
			{"array is Object", RefValue(newArray("[I", 0)), objectClass, 1},
			{"null", NullValue(), objectClass, 0},
		}
		for _, tt := range tests {
			// aload_0, instanceof #n, ireturn
			code := append(append([]byte{0x2A}, ref(OpInstanceof, tt.class)...), 0xAC)
			frame := NewFrame(1, 4, code, c)
			frame.SetLocal(0, tt.value)
			if got := mustStep(t, v, frame).Int; got != tt.want {
				t.Errorf("instanceof %s: got %d, want %d", tt.name, got, tt.want)
			}
		}
	})
}

func TestArrayInstructions(t *testing.T) {
	v := newTestVM(t)
	b := classfile.NewBuilder("test/Arrays", "java/lang/Object")
	stringClass := b.Class("java/lang/String")
	grid := b.Class("[[I")
	c := testClass(t, b)

	t.Run("anewarray", func(t *testing.T) {
		for _, n := range []byte{0, 5} {
			code := append(append([]byte{0x10, n}, ref(OpAnewarray, stringClass)...), 0xB0)
			arr := mustStep(t, v, NewFrame(0, 4, code, c)).Array()
			if arr == nil {
				t.Fatalf("anewarray %d: not an array", n)
			}
			if arr.Type != "[Ljava/lang/String;" || len(arr.Elements) != int(n) {
				t.Errorf("anewarray %d: got %s of %d", n, arr.Type, len(arr.Elements))
			}
			for i, e := range arr.Elements {
				if !e.IsNull() {
					t.Errorf("element %d: got %v, want null", i, e)
				}
			}
		}
	})

	t.Run("negative size", func(t *testing.T) {
		code := append(append([]byte{0x02}, ref(OpAnewarray, stringClass)...), 0xB0) // iconst_m1
		_, err := step(v, NewFrame(0, 4, code, c))
		javaException(t, err, "java/lang/NegativeArraySizeException")
	})

	t.Run("newarray int store and load", func(t *testing.T) {
		code := []byte{
			0x06,       // iconst_3
			0xBC, 10,   // newarray int
			0x4B,       // astore_0
			0x2A,       // aload_0
			0x04,       // iconst_1
			0x10, 0x63, // bipush 99
			0x4F,       // iastore
			0x2A,       // aload_0
			0x04,       // iconst_1
			0x2E,       // iaload
			0xAC,       // ireturn
		}
		if got := mustStep(t, v, NewFrame(1, 4, code, c)).Int; got != 99 {
			t.Errorf("iaload after iastore: got %d, want 99", got)
		}
	})

	t.Run("bastore truncates", func(t *testing.T) {
		code := []byte{
			0x04,             // iconst_1
			0xBC, 8,          // newarray byte
			0x4B,             // astore_0
			0x2A,             // aload_0
			0x03,             // iconst_0
			0x11, 0x01, 0x2C, // sipush 300
			0x54,             // bastore
			0x2A,             // aload_0
			0x03,             // iconst_0
			0x33,             // baload
			0xAC,             // ireturn
		}
		if got := mustStep(t, v, NewFrame(1, 4, code, c)).Int; got != 44 {
			t.Errorf("byte array element: got %d, want 44", got)
		}
	})

	t.Run("aastore checks element type", func(t *testing.T) {
		arr := newArray("[Ljava/lang/String;", 1)
		code := []byte{
			0x2A,      // aload_0
			0x03,      // iconst_0
			0x2B,      // aload_1
			OpAastore, // aastore
			0x03,      // iconst_0
			0xAC,      // ireturn
		}
		frame := NewFrame(2, 4, code, c)
		frame.SetLocal(0, RefValue(arr))
		frame.SetLocal(1, RefValue(newArray("[I", 0)))
		_, err := step(v, frame)
		javaException(t, err, "java/lang/ArrayStoreException")

		frame = NewFrame(2, 4, code, c)
		frame.SetLocal(0, RefValue(arr))
		frame.SetLocal(1, RefValue(v.NewString("ok")))
		mustStep(t, v, frame)
		if s, _ := GoString(arr.Elements[0]); s != "ok" {
			t.Errorf("stored element: got %v", arr.Elements[0])
		}
	})

	t.Run("index out of bounds", func(t *testing.T) {
		code := []byte{0x2A, 0x05, 0x2E, 0xAC} // aload_0, iconst_2, iaload, ireturn
		frame := NewFrame(1, 4, code, c)
		frame.SetLocal(0, RefValue(newArray("[I", 2)))
		_, err := step(v, frame)
		jex := javaException(t, err, "java/lang/ArrayIndexOutOfBoundsException")
		if got := jex.Error(); got != "JavaException: java.lang.ArrayIndexOutOfBoundsException: Index 2 out of bounds for length 2" {
			t.Errorf("message: got %q", got)
		}
	})

	t.Run("arraylength of null", func(t *testing.T) {
		code := []byte{0x01, OpArraylength, 0xAC} // aconst_null, arraylength, ireturn
		_, err := step(v, NewFrame(0, 4, code, c))
		javaException(t, err, "java/lang/NullPointerException")
	})

	t.Run("multianewarray", func(t *testing.T) {
		code := []byte{0x05, 0x06} // iconst_2, iconst_3
		code = append(code, ref(OpMultianewarray, grid)...)
		code = append(code, 0x02, 0xB0) // 2 dimensions, areturn
		arr := mustStep(t, v, NewFrame(0, 4, code, c)).Array()
		if arr == nil || arr.Type != "[[I" || len(arr.Elements) != 2 {
			t.Fatalf("multianewarray: got %+v", arr)
		}
		inner := arr.Elements[1].Array()
		if inner == nil || inner.Type != "[I" || len(inner.Elements) != 3 {
			t.Fatalf("inner array: got %+v", inner)
		}
		if inner.Elements[2].Type != TypeInt {
			t.Errorf("inner element: got %v, want int 0", inner.Elements[2])
		}
	})
}

func TestReferenceCompare(t *testing.T) {
	v := New(nil)
	obj1 := &JObject{ClassName: "Test", Fields: make(map[string]Value)}
	obj2 := &JObject{ClassName: "Test", Fields: make(map[string]Value)}

	// aload_0, aload_1, if_acmpne +5, iconst_0, ireturn, iconst_1, ireturn
	acmpne := []byte{0x2A, 0x2B, OpIfAcmpne, 0x00, 0x05, 0x03, 0xAC, 0x04, 0xAC}
	// aload_0, ifnull +5, iconst_1, ireturn, iconst_2, ireturn
	ifnull := []byte{0x2A, OpIfnull, 0x00, 0x05, 0x04, 0xAC, 0x05, 0xAC}

	tests := []struct {
		name string
		code []byte
		a, b Value
		want int32
	}{
		{"if_acmpne same", acmpne, RefValue(obj1), RefValue(obj1), 0},
		{"if_acmpne different", acmpne, RefValue(obj1), RefValue(obj2), 1},
		{"if_acmpne both null", acmpne, NullValue(), NullValue(), 0},
		{"ifnull on object", ifnull, RefValue(obj1), NullValue(), 1},
		{"ifnull on null", ifnull, NullValue(), NullValue(), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := NewFrame(2, 4, tt.code, nil)
			frame.SetLocal(0, tt.a)
			frame.SetLocal(1, tt.b)
			if got := mustStep(t, v, frame).Int; got != tt.want {
				t.Errorf("%s: got %d, want %d", tt.name, got, tt.want)
			}
		})
	}
}

func TestAthrowNull(t *testing.T) {
	_, err := step(New(nil), NewFrame(0, 4, []byte{0x01, OpAthrow}, nil)) // aconst_null, athrow
	javaException(t, err, "java/lang/NullPointerException")
}

func TestUnknownOpcode(t *testing.T) {
	_, err := step(New(nil), NewFrame(0, 4, []byte{0xCB}, nil))
	if err == nil {
		t.Fatal("expected an error for opcode 0xCB")
	}
	if _, ok := err.(*JavaException); ok {
		t.Errorf("unknown opcode surfaced as a Java exception: %v", err)
	}
}

func TestLocalVarInstructions(t *testing.T) {
	tests := []struct {
		name   string
		code   []byte
		locals []int32
		want   int32
	}{
		{"istore_0/iload_0", []byte{0x08, 0x3B, 0x1A, 0xAC}, nil, 5},
		{"istore/iload index 2", []byte{0x10, 0x2A, 0x36, 0x02, 0x15, 0x02, 0xAC}, nil, 42},
		{"preset locals", []byte{0x1A, 0x1B, 0x60, 0xAC}, []int32{10, 20}, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := executeAndGetInt(t, tt.code, tt.locals...); got != tt.want {
				t.Errorf("%s: got %d, want %d", tt.name, got, tt.want)
			}
		})
	}
}
