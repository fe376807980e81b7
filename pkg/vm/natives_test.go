package vm

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStringNatives(t *testing.T) {
	v := bootTestVM(t)
	u := v.InvocationUtil()
	s := RefValue(v.NewString("hello world"))

	tests := []struct {
		name, desc string
		args       []Value
		want       interface{}
	}{
		{"length", "()I", nil, int32(11)},
		{"isEmpty", "()Z", nil, int32(0)},
		{"charAt", "(I)C", []Value{IntValue(4)}, int32('o')},
		{"indexOf", "(I)I", []Value{IntValue('w')}, int32(6)},
		{"indexOf", "(Ljava/lang/String;)I", []Value{RefValue(v.NewString("world"))}, int32(6)},
		{"indexOf", "(Ljava/lang/String;)I", []Value{RefValue(v.NewString("xyz"))}, int32(-1)},
		{"startsWith", "(Ljava/lang/String;)Z", []Value{RefValue(v.NewString("hell"))}, int32(1)},
		{"equals", "(Ljava/lang/Object;)Z", []Value{RefValue(v.NewString("hello world"))}, int32(1)},
		{"equals", "(Ljava/lang/Object;)Z", []Value{NullValue()}, int32(0)},
		{"hashCode", "()I", nil, javaHashCode("hello world")},
		{"substring", "(I)Ljava/lang/String;", []Value{IntValue(6)}, "world"},
		{"substring", "(II)Ljava/lang/String;", []Value{IntValue(0), IntValue(5)}, "hello"},
		{"concat", "(Ljava/lang/String;)Ljava/lang/String;", []Value{RefValue(v.NewString("!"))}, "hello world!"},
	}
	for _, tt := range tests {
		t.Run(tt.name+tt.desc, func(t *testing.T) {
			ret, err := u.InvokeVirtual(s, tt.name, tt.desc, tt.args...)
			if err != nil {
				t.Fatalf("%s: %v", tt.name, err)
			}
			var got interface{} = ret.Int
			if str, ok := GoString(ret); ok {
				got = str
			}
			if got != tt.want {
				t.Errorf("%s%s: got %v, want %v", tt.name, tt.desc, got, tt.want)
			}
		})
	}

	_, err := u.InvokeVirtual(s, "charAt", "(I)C", IntValue(11))
	jex := javaException(t, err, "java/lang/StringIndexOutOfBoundsException")
	if got := jex.Error(); got != "JavaException: java.lang.StringIndexOutOfBoundsException: Index 11 out of bounds for length 11" {
		t.Errorf("charAt message: got %q", got)
	}
	_, err = u.InvokeVirtual(s, "substring", "(II)Ljava/lang/String;", IntValue(3), IntValue(2))
	javaException(t, err, "java/lang/StringIndexOutOfBoundsException")

	if v.InternString("k") != v.InternString("k") {
		t.Error("InternString returned distinct objects")
	}
	if v.NewString("k") == v.NewString("k") {
		t.Error("NewString returned a shared object")
	}
}

func TestThreadStackTrace(t *testing.T) {
	v := bootTestVM(t)
	thread := RefValue(v.CurrentThread().javaObject())
	ret, err := v.InvocationUtil().InvokeVirtual(thread, "getStackTrace", "()[Ljava/lang/StackTraceElement;")
	if err != nil {
		t.Fatalf("getStackTrace: %v", err)
	}
	arr := ret.Array()
	if arr == nil || len(arr.Elements) != 1 {
		t.Fatalf("getStackTrace: got %v, want one frame", ret)
	}
	e := StackTraceEntryOf(arr.Elements[0].Object())
	if e.ClassName != "java.lang.Thread" || e.MethodName != "getStackTrace" || e.Line != -2 {
		t.Errorf("frame 0: got %+v", e)
	}
}

func TestThrowableNatives(t *testing.T) {
	v := bootTestVM(t)
	u := v.InvocationUtil()

	_, err := v.Invoke(method(t, v, "sample/Thrower", "fail", "()V"))
	jex := javaException(t, err, "java/lang/IllegalStateException")
	ex := RefValue(jex.Object)

	msg, err := u.InvokeVirtual(ex, "getMessage", "()Ljava/lang/String;")
	if s, _ := GoString(msg); err != nil || s != "boom" {
		t.Errorf("getMessage: got %q, %v", s, err)
	}
	if s, err := u.ToString(ex); err != nil || s != "java.lang.IllegalStateException: boom" {
		t.Errorf("toString: got %q, %v", s, err)
	}
	if cause, _ := u.InvokeVirtual(ex, "getCause", "()Ljava/lang/Throwable;"); !cause.IsNull() {
		t.Errorf("getCause: got %v, want null", cause)
	}

	trace, err := u.InvokeVirtual(ex, "getStackTrace", "()[Ljava/lang/StackTraceElement;")
	if err != nil {
		t.Fatalf("getStackTrace: %v", err)
	}
	var entries []StackTraceEntry
	for _, e := range trace.Array().Elements {
		entries = append(entries, StackTraceEntryOf(e.Object()))
	}
	if diff := cmp.Diff(jex.Backtrace(), entries); diff != "" {
		t.Errorf("getStackTrace mismatch (-backtrace +elements):\n%s", diff)
	}
	if s, _ := u.ToString(trace.Array().Elements[0]); s != "sample.Thrower.fail(Thrower.java:5)" {
		t.Errorf("StackTraceElement.toString: got %q", s)
	}

	if _, err := u.InvokeVirtual(ex, "printStackTrace", "()V"); err != nil {
		t.Fatalf("printStackTrace: %v", err)
	}
	want := "java.lang.IllegalStateException: boom\n\tat sample.Thrower.fail(Thrower.java:5)\n"
	if got := v.Files().DrainStderr(); got != want {
		t.Errorf("printStackTrace:\ngot  %q\nwant %q", got, want)
	}

	_, err = u.InvokeVirtual(ex, "initCause", "(Ljava/lang/Throwable;)Ljava/lang/Throwable;", ex)
	javaException(t, err, "java/lang/IllegalArgumentException")

	cause := v.NewThrowable("java/lang/RuntimeException", "root")
	if _, err := u.InvokeVirtual(ex, "initCause", "(Ljava/lang/Throwable;)Ljava/lang/Throwable;", RefValue(cause.Object)); err != nil {
		t.Fatalf("initCause: %v", err)
	}
	s, err := v.formatStackTrace(ex)
	if err != nil {
		t.Fatalf("formatStackTrace: %v", err)
	}
	if want := want + "Caused by: java.lang.RuntimeException: root\n"; s != want {
		t.Errorf("formatStackTrace with cause:\ngot  %q\nwant %q", s, want)
	}
}

func TestInitializerErrorCause(t *testing.T) {
	v := bootTestVM(t)
	c, err := v.FindClass("sample/BadInit")
	if err != nil {
		t.Fatalf("FindClass: %v", err)
	}
	jex := javaException(t, v.InitializeClass(c), "java/lang/ExceptionInInitializerError")
	s, err := v.formatStackTrace(RefValue(jex.Object))
	if err != nil {
		t.Fatalf("formatStackTrace: %v", err)
	}
	want := "java.lang.ExceptionInInitializerError\nCaused by: java.lang.RuntimeException: bad init\n\tat sample.BadInit.<clinit>(BadInit.java)\n"
	if s != want {
		t.Errorf("trace:\ngot  %q\nwant %q", s, want)
	}
}

func TestStackTraceEntryString(t *testing.T) {
	tests := []struct {
		entry StackTraceEntry
		want  string
	}{
		{StackTraceEntry{"a.B", "run", "B.java", 12}, "a.B.run(B.java:12)"},
		{StackTraceEntry{"a.B", "run", "B.java", 0}, "a.B.run(B.java:0)"},
		{StackTraceEntry{"a.B", "run", "B.java", -1}, "a.B.run(B.java)"},
		{StackTraceEntry{"a.B", "run", "", 12}, "a.B.run(Unknown Source)"},
		{StackTraceEntry{"a.B", "run", "", -2}, "a.B.run(Native Method)"},
		{StackTraceEntry{"a.B", "run", "B.java", -2}, "a.B.run(Native Method)"},
	}
	for _, tt := range tests {
		if got := tt.entry.String(); got != tt.want {
			t.Errorf("%+v: got %q, want %q", tt.entry, got, tt.want)
		}
	}
}

func TestRuntimeExec(t *testing.T) {
	t.Run("no spawner", func(t *testing.T) {
		v := bootTestVM(t)
		_, err := v.Invoke(method(t, v, "sample/Exec", "run", "()V"))
		jex := javaException(t, err, "java/io/IOException")
		if got := jex.Error(); got != `JavaException: java.io.IOException: Cannot run program "id": process execution is not supported` {
			t.Errorf("message: got %q", got)
		}
	})

	t.Run("spawner", func(t *testing.T) {
		var argv []string
		v := bootTestVM(t, WithProcessSpawner(func(a []string) error {
			argv = a
			return nil
		}))
		if _, err := v.Invoke(method(t, v, "sample/Exec", "run", "()V")); err != nil {
			t.Fatalf("Exec.run: %v", err)
		}
		if diff := cmp.Diff([]string{"id"}, argv); diff != "" {
			t.Errorf("argv mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("spawner refuses", func(t *testing.T) {
		denied := errors.New("denied")
		v := bootTestVM(t, WithProcessSpawner(func([]string) error { return denied }))
		_, err := v.Invoke(method(t, v, "sample/Exec", "run", "()V"))
		jex := javaException(t, err, "java/io/IOException")
		if got := jex.Error(); got != `JavaException: java.io.IOException: Cannot run program "id": denied` {
			t.Errorf("message: got %q", got)
		}
	})

	if got := len(ExecOverloads()); got != 6 {
		t.Errorf("ExecOverloads: got %d, want 6", got)
	}
}

func TestObjectNatives(t *testing.T) {
	v := bootTestVM(t)
	u := v.InvocationUtil()
	p, err := v.Invoke(method(t, v, "sample/Point", "plain", "()Ljava/lang/Object;"))
	if err != nil {
		t.Fatalf("plain: %v", err)
	}
	h1, _ := u.InvokeVirtual(p, "hashCode", "()I")
	h2, _ := u.InvokeVirtual(p, "hashCode", "()I")
	if h1.Int == 0 || h1.Int != h2.Int {
		t.Errorf("identity hash not stable: %d, %d", h1.Int, h2.Int)
	}
	eq, _ := u.InvokeVirtual(p, "equals", "(Ljava/lang/Object;)Z", p)
	if eq.Int != 1 {
		t.Error("object not equal to itself")
	}
	cls, err := u.InvokeVirtual(p, "getClass", "()Ljava/lang/Class;")
	if err != nil {
		t.Fatalf("getClass: %v", err)
	}
	name, _ := u.InvokeVirtual(cls, "getName", "()Ljava/lang/String;")
	if s, _ := GoString(name); s != "java.lang.Object" {
		t.Errorf("getName: got %q", s)
	}
}
