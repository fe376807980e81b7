package native

// NativeHashMap represents a java.util.HashMap. Callers normalise keys so
// that equal Java keys map to equal Go values: strings to their contents,
// boxed integers to int32 and other objects to their identity.
type NativeHashMap struct {
	Data map[interface{}]interface{}
}

// NewNativeHashMap creates a new NativeHashMap.
func NewNativeHashMap() *NativeHashMap {
	return &NativeHashMap{Data: make(map[interface{}]interface{})}
}

// Get returns the value for the given key.
// If key is a *NativeInteger, its Value (int32) is used as the map key.
func (m *NativeHashMap) Get(key interface{}) interface{} {
	return m.Data[mapKey(key)]
}

// Put stores a key-value pair and returns the previous value.
func (m *NativeHashMap) Put(key, value interface{}) interface{} {
	k := mapKey(key)
	old := m.Data[k]
	m.Data[k] = value
	return old
}

// ContainsKey reports whether key has a mapping.
func (m *NativeHashMap) ContainsKey(key interface{}) bool {
	_, ok := m.Data[mapKey(key)]
	return ok
}

// Remove deletes the mapping for key and returns the previous value.
func (m *NativeHashMap) Remove(key interface{}) interface{} {
	k := mapKey(key)
	old := m.Data[k]
	delete(m.Data, k)
	return old
}

// Size returns the number of mappings.
func (m *NativeHashMap) Size() int {
	return len(m.Data)
}

func mapKey(key interface{}) interface{} {
	if ni, ok := key.(*NativeInteger); ok {
		return ni.Value
	}
	return key
}
