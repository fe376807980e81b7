package vm

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestJObjectFields(t *testing.T) {
	obj := &JObject{ClassName: "sample/Point"}

	t.Run("unset fields read as zero values", func(t *testing.T) {
		tests := []struct {
			desc string
			want Value
		}{
			{"I", IntValue(0)},
			{"Z", IntValue(0)},
			{"J", LongValue(0)},
			{"F", FloatValue(0)},
			{"D", DoubleValue(0)},
			{"Ljava/lang/String;", NullValue()},
			{"[I", NullValue()},
		}
		for _, tt := range tests {
			if diff := cmp.Diff(tt.want, obj.GetField("f", tt.desc)); diff != "" {
				t.Errorf("GetField(f, %s) mismatch (-want +got):\n%s", tt.desc, diff)
			}
		}
	})

	t.Run("fields are keyed by name and descriptor", func(t *testing.T) {
		obj.SetField("v", "I", IntValue(1))
		obj.SetField("v", "J", LongValue(2))
		if got := obj.GetField("v", "I"); got.Int != 1 {
			t.Errorf("v:I: got %d, want 1", got.Int)
		}
		if got := obj.GetField("v", "J"); got.Long != 2 {
			t.Errorf("v:J: got %d, want 2", got.Long)
		}
	})

	t.Run("narrow fields truncate", func(t *testing.T) {
		tests := []struct {
			desc string
			in   int32
			want int32
		}{
			{"B", 0x1FF, -1},
			{"C", -1, 0xFFFF},
			{"S", 0x18000, -32768},
			{"Z", 3, 1},
		}
		for _, tt := range tests {
			obj.SetField("n", tt.desc, IntValue(tt.in))
			if got := obj.GetField("n", tt.desc).Int; got != tt.want {
				t.Errorf("SetField(%s, %d): got %d, want %d", tt.desc, tt.in, got, tt.want)
			}
		}
	})

	t.Run("reference field", func(t *testing.T) {
		inner := &JObject{ClassName: "Inner"}
		obj.SetField("child", "Ljava/lang/Object;", RefValue(inner))
		got := obj.GetField("child", "Ljava/lang/Object;")
		if got.Type != TypeRef || got.Ref != inner {
			t.Errorf("field child: got %+v, want reference to inner", got)
		}
	})

	t.Run("nil field map", func(t *testing.T) {
		var bare JObject
		bare.SetField("x", "I", IntValue(5))
		if got := bare.GetField("x", "I").Int; got != 5 {
			t.Errorf("x: got %d, want 5", got)
		}
	})
}

func TestNewArray(t *testing.T) {
	tests := []struct {
		desc string
		want Value
	}{
		{"[I", IntValue(0)},
		{"[J", LongValue(0)},
		{"[D", DoubleValue(0)},
		{"[Ljava/lang/String;", NullValue()},
		{"[[I", NullValue()},
	}
	for _, tt := range tests {
		arr := newArray(tt.desc, 2)
		if len(arr.Elements) != 2 {
			t.Fatalf("%s: length %d, want 2", tt.desc, len(arr.Elements))
		}
		if diff := cmp.Diff(tt.want, arr.Elements[1]); diff != "" {
			t.Errorf("%s element mismatch (-want +got):\n%s", tt.desc, diff)
		}
		if got := arr.ElementType(); got != tt.desc[1:] {
			t.Errorf("%s ElementType: got %s, want %s", tt.desc, got, tt.desc[1:])
		}
	}
	if got := (&JArray{}).ElementType(); got != "Ljava/lang/Object;" {
		t.Errorf("untyped array ElementType: got %s", got)
	}
}
