package classfile

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFieldTypeRoundTrip(t *testing.T) {
	tests := []struct {
		desc  string
		want  FieldType
		label string
		kind  byte
	}{
		{"I", FieldType{Base: 'I'}, "int", 'I'},
		{"J", FieldType{Base: 'J'}, "long", 'J'},
		{"Z", FieldType{Base: 'Z'}, "boolean", 'Z'},
		{"C", FieldType{Base: 'C'}, "char", 'C'},
		{"Ljava/lang/String;", FieldType{Base: 'L', ClassName: "java/lang/String"}, "java.lang.String", 'L'},
		{"[B", FieldType{Dims: 1, Base: 'B'}, "[B", '['},
		{"[[D", FieldType{Dims: 2, Base: 'D'}, "[[D", '['},
		{"[[[Lcom/x/Y;", FieldType{Dims: 3, Base: 'L', ClassName: "com/x/Y"}, "[[[Lcom/x/Y;", '['},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			got, err := ParseFieldType(tt.desc)
			if err != nil {
				t.Fatalf("ParseFieldType(%q): %v", tt.desc, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseFieldType(%q) mismatch (-want +got):\n%s", tt.desc, diff)
			}
			if got.Descriptor() != tt.desc {
				t.Errorf("Descriptor(): got %q, want %q", got.Descriptor(), tt.desc)
			}
			if got.Label() != tt.label {
				t.Errorf("Label(): got %q, want %q", got.Label(), tt.label)
			}
			if got.Kind() != tt.kind {
				t.Errorf("Kind(): got %c, want %c", got.Kind(), tt.kind)
			}
		})
	}
}

// Every combination of parameter lists and return types must survive
// construction -> String() -> ParseMethodDescriptor unchanged.
func TestMethodDescriptorRoundTrip(t *testing.T) {
	types := []FieldType{
		{Base: 'B'}, {Base: 'C'}, {Base: 'D'}, {Base: 'F'}, {Base: 'I'}, {Base: 'J'}, {Base: 'S'}, {Base: 'Z'},
		{Base: 'L', ClassName: "java/lang/String"},
		{Dims: 1, Base: 'I'},
		{Dims: 2, Base: 'L', ClassName: "a/B"},
		{Dims: 4, Base: 'J'},
	}
	returns := append([]FieldType{{Base: 'V'}}, types...)

	for _, ret := range returns {
		for n := 0; n <= 3; n++ {
			var params []FieldType
			for i := 0; i < n; i++ {
				params = append(params, types[(i*5+len(ret.Descriptor()))%len(types)])
			}
			md := &MethodDescriptor{Params: params, Return: ret}
			desc := md.String()
			t.Run(desc, func(t *testing.T) {
				got, err := ParseMethodDescriptor(desc)
				if err != nil {
					t.Fatalf("ParseMethodDescriptor(%q): %v", desc, err)
				}
				if diff := cmp.Diff(md, got); diff != "" {
					t.Errorf("round trip mismatch (-want +got):\n%s", diff)
				}
			})
		}
	}
}

func TestParseMethodDescriptor(t *testing.T) {
	md, err := ParseMethodDescriptor("(ILjava/lang/String;[[JD)V")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := string(md.ParamKinds()); got != "IL[D" {
		t.Errorf("ParamKinds: got %q, want %q", got, "IL[D")
	}
	if !md.Return.IsVoid() {
		t.Errorf("Return: got %v, want void", md.Return)
	}
	// I=1, String=1, long[][]=1, double=2
	if got := md.ArgSlots(); got != 5 {
		t.Errorf("ArgSlots: got %d, want 5", got)
	}
}

func TestParseMethodDescriptorInvalid(t *testing.T) {
	tests := []struct {
		desc string
		want string
	}{
		{"", "invalid method descriptor"},
		{"I", "invalid method descriptor"},
		{"(II", "missing ')'"},
		{"(X)V", "invalid character 'X'"},
		{"(Ljava/lang/String)V", "unterminated class name"},
		{"(I)", "missing element type"},
		{"(I)VV", "trailing characters"},
		{"([)V", "invalid character ')'"},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			_, err := ParseMethodDescriptor(tt.desc)
			if err == nil {
				t.Fatalf("ParseMethodDescriptor(%q): expected error", tt.desc)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error: got %q, want substring %q", err.Error(), tt.want)
			}
		})
	}
}

func TestDescribeFieldType(t *testing.T) {
	tests := map[string]string{
		"":                    "<unknown>",
		"V":                   "void",
		"S":                   "short",
		"Lcom/a/B;":           "com.a.B",
		"[Ljava/lang/String;": "[Ljava/lang/String;",
		"Q":                   "Q",
	}
	for in, want := range tests {
		if got := DescribeFieldType(in); got != want {
			t.Errorf("DescribeFieldType(%q): got %q, want %q", in, got, want)
		}
	}
}

func TestClassNames(t *testing.T) {
	tests := []struct {
		in, internal, dot string
	}{
		{"com.example.Foo", "com/example/Foo", "com.example.Foo"},
		{"com/example/Foo", "com/example/Foo", "com.example.Foo"},
		{" Foo ", "Foo", "Foo"},
		{"a.b$C", "a/b$C", "a.b$C"},
	}
	for _, tt := range tests {
		if got := InternalName(tt.in); got != tt.internal {
			t.Errorf("InternalName(%q): got %q, want %q", tt.in, got, tt.internal)
		}
		if got := DotName(InternalName(tt.in)); got != tt.dot {
			t.Errorf("DotName(%q): got %q, want %q", tt.in, got, tt.dot)
		}
	}
}
