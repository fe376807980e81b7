package vm

// JObject represents a JVM object instance. Fields are keyed by
// "name:descriptor" so same-named fields of different types stay apart.
// Native holds host-side state of intrinsic classes: the Go string of a
// java/lang/String, the builder behind a StringBuilder, the *Class behind a
// java/lang/Class mirror, the backtrace of a Throwable.
type JObject struct {
	ClassName string
	Class     *Class
	Fields    map[string]Value
	Native    interface{}

	hash int32
}

// JArray represents a JVM array. Type is the array descriptor, e.g. "[I".
type JArray struct {
	Type     string
	Elements []Value

	hash int32
}

// ElementType is the descriptor of the array's components.
func (a *JArray) ElementType() string {
	if len(a.Type) < 2 {
		return "Ljava/lang/Object;"
	}
	return a.Type[1:]
}

func newObject(c *Class) *JObject {
	return &JObject{ClassName: c.Name, Class: c, Fields: make(map[string]Value)}
}

// GetField returns an instance field, or the descriptor's zero value when it
// was never written.
func (o *JObject) GetField(name, desc string) Value {
	if v, ok := o.Fields[fieldKey(name, desc)]; ok {
		return v
	}
	return zeroValue(desc)
}

// SetField writes an instance field.
func (o *JObject) SetField(name, desc string, v Value) {
	if o.Fields == nil {
		o.Fields = make(map[string]Value)
	}
	o.Fields[fieldKey(name, desc)] = coerce(desc, v)
}

func newArray(desc string, length int) *JArray {
	elems := make([]Value, length)
	zero := zeroValue(desc[1:])
	for i := range elems {
		elems[i] = zero
	}
	return &JArray{Type: desc, Elements: elems}
}
