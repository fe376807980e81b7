package sandbox

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/daimatz/jvmsandbox/pkg/vm"
)

func TestMarshalArgsErrors(t *testing.T) {
	m := newTestManager(t)
	ops, err := m.Operations()
	if err != nil {
		t.Fatalf("Operations: %v", err)
	}
	tests := []struct {
		name string
		desc string
		args []any
		want string
	}{
		{"too few", "(II)I", []any{1}, "Expected 2 arguments for descriptor (II)I, but got 1"},
		{"too many", "()V", []any{1}, "Expected 0 arguments for descriptor ()V, but got 1"},
		{"null int", "(JI)V", []any{1, nil}, "Argument 1 is null but descriptor expects primitive type 'I'"},
		{"null double", "(D)V", []any{nil}, "Argument 0 is null but descriptor expects primitive type 'D'"},
		{"string int", "(I)V", []any{"7"}, "Argument 0 must be a number or boolean for type 'I', got: string"},
		{"long string", "(J)V", []any{"7"}, "Argument 0 must be a number for type 'J' (long), got: string"},
		{"float bool", "(F)V", []any{true}, "Argument 0 must be a number for type 'F' (float), got: boolean"},
		{"double list", "(D)V", []any{[]any{}}, "Argument 0 must be a number for type 'D' (double), got: array"},
		{"number for string", "(Ljava/lang/String;)V", []any{1}, "Argument 0 expects an object reference (String), got: number"},
		{"long char string", "(C)V", []any{"ab"}, "Argument 0 must be a number or boolean for type 'C', got: string"},
		{"nested array", "([[I)V", []any{[]any{}}, "nested array parameters ([[I) are not supported"},
		{"object array", "([Ljava/lang/Object;)V", []any{[]any{}}, "only primitive and String arrays"},
		{"bad element", "([I)V", []any{[]any{1, "x"}}, "must be a number or boolean for type 'I'"},
		{"bad descriptor", "(Q)V", nil, "Invalid method descriptor: (Q)V"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MarshalArgs(ops, tt.desc, tt.args)
			f := asFailure(t, err, KindValidation)
			if !strings.Contains(f.Message, tt.want) {
				t.Errorf("message: got %q, want it to contain %q", f.Message, tt.want)
			}
		})
	}
}

func TestMarshalArgs(t *testing.T) {
	m := newTestManager(t)
	ops, err := m.Operations()
	if err != nil {
		t.Fatalf("Operations: %v", err)
	}

	t.Run("primitives", func(t *testing.T) {
		got, err := MarshalArgs(ops, "(IJFDZBSC)V", []any{
			json.Number("7"), 1 << 40, 1.5, 2, true, 300, 70000, "A",
		})
		if err != nil {
			t.Fatalf("MarshalArgs: %v", err)
		}
		want := []vm.Value{
			vm.IntValue(7), vm.LongValue(1 << 40), vm.FloatValue(1.5), vm.DoubleValue(2),
			vm.IntValue(1), vm.IntValue(44), vm.IntValue(4464), vm.IntValue('A'),
		}
		if len(got) != len(want) {
			t.Fatalf("len: got %d, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i].Int != want[i].Int || got[i].Long != want[i].Long ||
				got[i].Float != want[i].Float || got[i].Double != want[i].Double {
				t.Errorf("arg %d: got %+v, want %+v", i, got[i], want[i])
			}
		}
	})

	t.Run("booleans as ints", func(t *testing.T) {
		got, err := MarshalArgs(ops, "(IZ)V", []any{false, 5})
		if err != nil {
			t.Fatalf("MarshalArgs: %v", err)
		}
		if got[0].Int != 0 || got[1].Int != 1 {
			t.Errorf("got %d, %d; want 0, 1", got[0].Int, got[1].Int)
		}
	})

	t.Run("references", func(t *testing.T) {
		got, err := MarshalArgs(ops, "(Ljava/lang/String;Ljava/lang/Object;[I)V", []any{"hé", nil, nil})
		if err != nil {
			t.Fatalf("MarshalArgs: %v", err)
		}
		if s, err := ops.ReadUTF8(got[0]); err != nil || s != "hé" {
			t.Errorf("string: got %q, %v", s, err)
		}
		if !got[1].IsNull() || !got[2].IsNull() {
			t.Error("null references were not kept")
		}
	})

	t.Run("arrays", func(t *testing.T) {
		got, err := MarshalArgs(ops, "([I[Ljava/lang/String;)V", []any{[]any{1, 2, 3}, []any{"a", nil}})
		if err != nil {
			t.Fatalf("MarshalArgs: %v", err)
		}
		ints := got[0].Array()
		if ints == nil || ints.Type != "[I" {
			t.Fatalf("int array: got %+v", got[0])
		}
		var elems []int32
		for _, e := range ints.Elements {
			elems = append(elems, e.Int)
		}
		if diff := cmp.Diff([]int32{1, 2, 3}, elems); diff != "" {
			t.Errorf("int elements (-want +got):\n%s", diff)
		}
		strs := got[1].Array()
		if strs == nil || len(strs.Elements) != 2 {
			t.Fatalf("string array: got %+v", got[1])
		}
		if s, _ := vm.GoString(strs.Elements[0]); s != "a" {
			t.Errorf("string element 0: got %q", s)
		}
		if !strs.Elements[1].IsNull() {
			t.Error("string element 1: want null")
		}
	})
}
