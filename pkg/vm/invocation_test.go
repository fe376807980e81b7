package vm

import (
	"errors"
	"strings"
	"testing"
)

func TestInvocationUtilTyped(t *testing.T) {
	v := bootTestVM(t)
	u := v.InvocationUtil()

	if n, err := u.InvokeInt(method(t, v, "sample/Calc", "add", "(II)I"), IntValue(2), IntValue(3)); err != nil || n != 5 {
		t.Errorf("InvokeInt: got %d, %v", n, err)
	}
	if n, err := u.InvokeInt(method(t, v, "sample/Calc", "upper", "(C)C"), IntValue('q')); err != nil || n != 'Q' {
		t.Errorf("InvokeInt on char: got %d, %v", n, err)
	}
	if n, err := u.InvokeLong(method(t, v, "sample/Calc", "twice", "(J)J"), LongValue(4)); err != nil || n != 8 {
		t.Errorf("InvokeLong: got %d, %v", n, err)
	}
	if f, err := u.InvokeFloat(method(t, v, "sample/Calc", "negate", "(F)F"), FloatValue(2)); err != nil || f != -2 {
		t.Errorf("InvokeFloat: got %v, %v", f, err)
	}
	if d, err := u.InvokeDouble(method(t, v, "sample/Calc", "half", "(D)D"), DoubleValue(1)); err != nil || d != 0.5 {
		t.Errorf("InvokeDouble: got %v, %v", d, err)
	}
	arr, err := u.InvokeReference(method(t, v, "sample/Arrays", "ints", "()[I"))
	if err != nil || arr.Array() == nil {
		t.Errorf("InvokeReference on an array: got %v, %v", arr, err)
	}
	if err := u.InvokeVoid(method(t, v, "sample/Printer", "hello", "()V")); err != nil {
		t.Errorf("InvokeVoid: %v", err)
	}
	v.Files().DrainStdout()
	v.Files().DrainStderr()
}

func TestInvocationUtilChecks(t *testing.T) {
	v := bootTestVM(t)
	u := v.InvocationUtil()
	add := method(t, v, "sample/Calc", "add", "(II)I")

	tests := []struct {
		name    string
		call    func() error
		wantErr string
	}{
		{"return mismatch", func() error { _, err := u.InvokeLong(add, IntValue(1), IntValue(2)); return err }, "does not match"},
		{"too few", func() error { _, err := u.InvokeInt(add, IntValue(1)); return err }, "expected 2 arguments, got 1"},
		{"receiver counts", func() error {
			_, err := u.InvokeInt(method(t, v, "sample/Calc", "value", "()I"))
			return err
		}, "expected 1 arguments, got 0"},
		{"void as int", func() error { _, err := u.InvokeInt(method(t, v, "sample/Spin", "loop", "()V")); return err }, "does not match"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("got %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestInvocationUtilToString(t *testing.T) {
	v := bootTestVM(t)
	u := v.InvocationUtil()

	if s, _ := u.ToString(NullValue()); s != "null" {
		t.Errorf("ToString(null): got %q", s)
	}
	if s, _ := u.ToString(RefValue(v.NewString("plain"))); s != "plain" {
		t.Errorf("ToString(string): got %q", s)
	}
	broken, err := v.Invoke(method(t, v, "sample/Broken", "make", "()Lsample/Broken;"))
	if err != nil {
		t.Fatalf("Broken.make: %v", err)
	}
	_, err = u.ToString(broken)
	jex := javaException(t, err, "java/lang/IllegalStateException")
	if !strings.HasSuffix(jex.Error(), ": no text") {
		t.Errorf("toString failure: got %v", jex)
	}
}

func TestInvocationUtilInitialize(t *testing.T) {
	v := bootTestVM(t)
	u := v.InvocationUtil()

	keys, _ := v.FindClass("sample/Keys")
	ran, err := u.Initialize(keys)
	if err != nil || !ran {
		t.Fatalf("first Initialize: ran=%v err=%v", ran, err)
	}
	if ran, _ := u.Initialize(keys); ran {
		t.Error("second Initialize reported running <clinit>")
	}
	if n, err := u.InvokeInt(method(t, v, "sample/Decoder", "decode", "(I)I"), IntValue(42^7)); err != nil || n != 7 {
		t.Errorf("decode: got %d, %v", n, err)
	}

	bad, _ := v.FindClass("sample/BadInit")
	if ran, err := u.Initialize(bad); ran || err == nil {
		t.Errorf("BadInit: ran=%v err=%v", ran, err)
	}
	var jex *JavaException
	if _, err := u.Initialize(bad); !errors.As(err, &jex) || jex.ClassName() != "java/lang/NoClassDefFoundError" {
		t.Errorf("retry: got %v", err)
	}
}
