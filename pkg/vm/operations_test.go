package vm

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestOperationsStatics(t *testing.T) {
	v := bootTestVM(t)
	ops := v.Operations()
	c, err := v.FindClass("sample/Config")
	if err != nil {
		t.Fatalf("FindClass: %v", err)
	}

	// Operations never initialize: only the ConstantValue field is set yet.
	if n, _ := ops.GetInt(c, "VERSION"); n != 0 {
		t.Errorf("VERSION before <clinit>: got %d, want 0", n)
	}
	if n, _ := ops.GetInt(c, "LIMIT"); n != 100 {
		t.Errorf("LIMIT: got %d, want 100", n)
	}
	if out := v.Files().DrainStdout(); out != "" {
		t.Errorf("reads ran bytecode: %q", out)
	}

	if _, err := v.InvocationUtil().Initialize(c); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if n, err := ops.GetInt(c, "VERSION"); err != nil || n != 3 {
		t.Errorf("VERSION: got %d, %v", n, err)
	}
	if n, _ := ops.GetInt(c, "dup"); n != 5 {
		t.Errorf("dup:I: got %d, want 5", n)
	}
	if n, _ := ops.GetLong(c, "dup"); n != 9 {
		t.Errorf("dup:J: got %d, want 9", n)
	}
	name, err := ops.GetReference(c, "NAME", "Ljava/lang/String;")
	if err != nil {
		t.Fatalf("NAME: %v", err)
	}
	if s, err := ops.ReadUTF8(name); err != nil || s != "cfg" {
		t.Errorf("NAME: got %q, %v", s, err)
	}
	data, _ := ops.GetReference(c, "DATA", "[I")
	if n, _ := ops.ArrayLength(data); n != 2 {
		t.Errorf("DATA length: got %d", n)
	}
	if e, _ := ops.ArrayLoadInt(data, 0); e != 9 {
		t.Errorf("DATA[0]: got %d, want 9", e)
	}

	tests := []struct {
		name    string
		read    func() error
		wantErr string
	}{
		{"missing", func() error { _, err := ops.GetInt(c, "nope"); return err }, "ops: sample/Config.nope:I: no such field"},
		{"wrong type", func() error { _, err := ops.GetDouble(c, "VERSION"); return err }, "ops: sample/Config.VERSION:D: no such field"},
		{"instance field", func() error { _, err := ops.GetInt(c, "count"); return err }, "ops: sample/Config.count is not static"},
		{"primitive descriptor", func() error { _, err := ops.GetReference(c, "VERSION", "I"); return err }, `ops: "I" is not a reference descriptor`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.read()
			if err == nil || err.Error() != tt.wantErr {
				t.Errorf("got %v, want %q", err, tt.wantErr)
			}
		})
	}
	if _, err := ops.GetInt(c, "nope"); !errors.Is(err, ErrNoSuchField) {
		t.Errorf("missing field does not match ErrNoSuchField: %v", err)
	}
}

func TestOperationsInheritedStatic(t *testing.T) {
	v := bootTestVM(t)
	system, _ := v.FindClass("java/lang/System")
	out, err := v.Operations().GetReference(system, "out", "Ljava/io/PrintStream;")
	if err != nil || out.IsNull() {
		t.Fatalf("System.out: got %v, %v", out, err)
	}
	if got := v.Operations().ClassNameOf(out); got != "java.io.PrintStream" {
		t.Errorf("ClassNameOf: got %q", got)
	}
}

func TestOperationsArrays(t *testing.T) {
	v := bootTestVM(t)
	ops := v.Operations()
	get := func(name, desc string) Value {
		t.Helper()
		ret, err := v.Invoke(method(t, v, "sample/Arrays", name, desc))
		if err != nil {
			t.Fatalf("Arrays.%s: %v", name, err)
		}
		return ret
	}

	ints := get("ints", "()[I")
	var got []int32
	n, _ := ops.ArrayLength(ints)
	for i := 0; i < n; i++ {
		e, err := ops.ArrayLoadInt(ints, i)
		if err != nil {
			t.Fatalf("ArrayLoadInt(%d): %v", i, err)
		}
		got = append(got, e)
	}
	if diff := cmp.Diff([]int32{1, 2, 3}, got); diff != "" {
		t.Errorf("ints mismatch (-want +got):\n%s", diff)
	}
	if _, err := ops.ArrayLoadInt(ints, 3); err == nil || err.Error() != "ops: index 3 out of bounds for length 3" {
		t.Errorf("out of bounds: got %v", err)
	}
	if _, err := ops.ArrayLength(IntValue(1)); err == nil {
		t.Error("ArrayLength accepted an int")
	}

	names := get("names", "()[Ljava/lang/String;")
	first, _ := ops.ArrayLoadReference(names, 0)
	if s, _ := ops.ReadUTF8(first); s != "a" {
		t.Errorf("names[0]: got %q", s)
	}
	second, _ := ops.ArrayLoadReference(names, 1)
	if _, err := ops.ReadUTF8(second); err == nil || err.Error() != "ops: null string" {
		t.Errorf("ReadUTF8(null): got %v", err)
	}
	if _, err := ops.ReadUTF8(names); err == nil || err.Error() != "ops: [Ljava.lang.String; is not a string" {
		t.Errorf("ReadUTF8(array): got %v", err)
	}

	if b, _ := ops.ArrayLoadBoolean(get("flags", "()[Z"), 1); !b {
		t.Error("flags[1]: got false")
	}
	if c, _ := ops.ArrayLoadChar(get("letters", "()[C"), 1); c != 'i' {
		t.Errorf("letters[1]: got %q", rune(c))
	}
	if l, _ := ops.ArrayLoadLong(get("longs", "()[J"), 0); l != 1<<40 {
		t.Errorf("longs[0]: got %d", l)
	}
	grid := get("grid", "()[[I")
	row, _ := ops.ArrayLoadReference(grid, 1)
	if got := ops.ClassNameOf(row); got != "[I" {
		t.Errorf("grid row class: got %q", got)
	}
	if got := ops.ClassNameOf(NullValue()); got != "null" {
		t.Errorf("ClassNameOf(null): got %q", got)
	}
}

func TestOperationsNewArray(t *testing.T) {
	v := newTestVM(t)
	ops := v.Operations()

	arr, err := ops.NewArray("[B", []Value{IntValue(1), IntValue(300)})
	if err != nil {
		t.Fatalf("NewArray: %v", err)
	}
	if b, _ := ops.ArrayLoadByte(arr, 1); b != 44 {
		t.Errorf("byte element: got %d, want 44", b)
	}
	if s, _ := ops.ArrayLoadShort(arr, 0); s != 1 {
		t.Errorf("short read: got %d", s)
	}

	strs, err := ops.NewArray("[Ljava/lang/String;", []Value{ops.NewUTF8("x")})
	if err != nil {
		t.Fatalf("NewArray: %v", err)
	}
	if got := ops.ClassNameOf(strs); got != "[Ljava/lang/String;" {
		t.Errorf("ClassNameOf: got %q", got)
	}
	for _, desc := range []string{"I", "", "[Q"} {
		if _, err := ops.NewArray(desc, nil); err == nil {
			t.Errorf("NewArray(%q) succeeded", desc)
		}
	}
}
