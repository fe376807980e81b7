package vm

import "errors"

// ErrThreadAttached is returned by AttachCurrentThread when a thread is
// already attached. The interpreter runs one thread at a time.
var ErrThreadAttached = errors.New("vm: a thread is already attached")

// Thread is the interpreter-side state of the attached host thread.
type Thread struct {
	vm     *VM
	frames []*Frame
	object *JObject
}

// AttachCurrentThread makes the caller the thread that executes bytecode.
func (vm *VM) AttachCurrentThread() (*Thread, error) {
	if vm.thread != nil {
		return nil, ErrThreadAttached
	}
	vm.thread = &Thread{vm: vm}
	return vm.thread, nil
}

// DetachCurrentThread releases the attached thread. Detaching with no thread
// attached is a no-op.
func (vm *VM) DetachCurrentThread() {
	vm.thread = nil
}

// CurrentThread returns the attached thread or nil.
func (vm *VM) CurrentThread() *Thread { return vm.thread }

// Depth is the number of frames on the thread's stack.
func (t *Thread) Depth() int { return len(t.frames) }

// Frames returns the thread's frames, outermost first.
func (t *Thread) Frames() []*Frame { return t.frames }

func (t *Thread) push(f *Frame) { t.frames = append(t.frames, f) }

func (t *Thread) pop() {
	if len(t.frames) > 0 {
		t.frames[len(t.frames)-1] = nil
		t.frames = t.frames[:len(t.frames)-1]
	}
}

// javaObject returns the java/lang/Thread instance representing t.
func (t *Thread) javaObject() *JObject {
	if t.object != nil {
		return t.object
	}
	if c, err := t.vm.FindClass("java/lang/Thread"); err == nil {
		t.object = newObject(c)
	} else {
		t.object = &JObject{ClassName: "java/lang/Thread", Fields: make(map[string]Value)}
	}
	t.object.SetField("name", "Ljava/lang/String;", RefValue(t.vm.NewString("main")))
	t.object.SetField("priority", "I", IntValue(5))
	return t.object
}
