package vm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/daimatz/jvmsandbox/pkg/classfile"
)

// ErrNoThread is returned when bytecode would run without an attached thread.
var ErrNoThread = errors.New("vm: no thread attached")

// JavaException represents a JVM exception being thrown. It travels through
// the interpreter as a Go error until an exception table entry catches it.
type JavaException struct {
	Object *JObject
}

func (e *JavaException) Error() string {
	name := classfile.DotName(e.Object.ClassName)
	if msg, ok := GoString(e.Object.GetField("detailMessage", "Ljava/lang/String;")); ok {
		return fmt.Sprintf("JavaException: %s: %s", name, msg)
	}
	return fmt.Sprintf("JavaException: %s", name)
}

// ClassName is the internal name of the thrown object's class.
func (e *JavaException) ClassName() string { return e.Object.ClassName }

// StackTraceEntry is one captured frame of a throwable's backtrace.
type StackTraceEntry struct {
	ClassName  string
	MethodName string
	FileName   string
	Line       int
}

// String formats the entry like StackTraceElement.toString.
func (e StackTraceEntry) String() string {
	var sb strings.Builder
	sb.WriteString(e.ClassName)
	sb.WriteByte('.')
	sb.WriteString(e.MethodName)
	sb.WriteByte('(')
	switch {
	case e.Line == -2:
		sb.WriteString("Native Method")
	case e.FileName == "":
		sb.WriteString("Unknown Source")
	case e.Line >= 0:
		fmt.Fprintf(&sb, "%s:%d", e.FileName, e.Line)
	default:
		sb.WriteString(e.FileName)
	}
	sb.WriteByte(')')
	return sb.String()
}

// Backtrace returns the frames captured when the throwable was created.
func (e *JavaException) Backtrace() []StackTraceEntry {
	bt, _ := e.Object.Native.([]StackTraceEntry)
	return bt
}

// Superclasses of the throwables the interpreter raises itself, used when the
// class is missing from the boot class path.
var builtinSuper = map[string]string{
	"java/lang/Throwable":                            "java/lang/Object",
	"java/lang/Exception":                            "java/lang/Throwable",
	"java/lang/Error":                                "java/lang/Throwable",
	"java/lang/RuntimeException":                     "java/lang/Exception",
	"java/lang/ArithmeticException":                  "java/lang/RuntimeException",
	"java/lang/ArrayStoreException":                  "java/lang/RuntimeException",
	"java/lang/ClassCastException":                   "java/lang/RuntimeException",
	"java/lang/IllegalArgumentException":             "java/lang/RuntimeException",
	"java/lang/NumberFormatException":                "java/lang/IllegalArgumentException",
	"java/lang/IllegalStateException":                "java/lang/RuntimeException",
	"java/lang/IndexOutOfBoundsException":            "java/lang/RuntimeException",
	"java/lang/ArrayIndexOutOfBoundsException":       "java/lang/IndexOutOfBoundsException",
	"java/lang/StringIndexOutOfBoundsException":      "java/lang/IndexOutOfBoundsException",
	"java/lang/NegativeArraySizeException":           "java/lang/RuntimeException",
	"java/lang/NullPointerException":                 "java/lang/RuntimeException",
	"java/lang/SecurityException":                    "java/lang/RuntimeException",
	"java/lang/UnsupportedOperationException":        "java/lang/RuntimeException",
	"java/io/IOException":                            "java/lang/Exception",
	"java/lang/LinkageError":                         "java/lang/Error",
	"java/lang/NoClassDefFoundError":                 "java/lang/LinkageError",
	"java/lang/ClassCircularityError":                "java/lang/LinkageError",
	"java/lang/ExceptionInInitializerError":          "java/lang/LinkageError",
	"java/lang/UnsatisfiedLinkError":                 "java/lang/LinkageError",
	"java/lang/BootstrapMethodError":                 "java/lang/LinkageError",
	"java/lang/IncompatibleClassChangeError":         "java/lang/LinkageError",
	"java/lang/AbstractMethodError":                  "java/lang/IncompatibleClassChangeError",
	"java/lang/InstantiationError":                   "java/lang/IncompatibleClassChangeError",
	"java/lang/NoSuchFieldError":                     "java/lang/IncompatibleClassChangeError",
	"java/lang/NoSuchMethodError":                    "java/lang/IncompatibleClassChangeError",
	"java/lang/VirtualMachineError":                  "java/lang/Error",
	"java/lang/InternalError":                        "java/lang/VirtualMachineError",
	"java/lang/StackOverflowError":                   "java/lang/VirtualMachineError",
	"java/lang/OutOfMemoryError":                     "java/lang/VirtualMachineError",
	"java/lang/ReflectiveOperationException":         "java/lang/Exception",
	"java/lang/ClassNotFoundException":               "java/lang/ReflectiveOperationException",
	"java/lang/CloneNotSupportedException":           "java/lang/Exception",
	"java/lang/InterruptedException":                 "java/lang/Exception",
	"java/lang/invoke/WrongMethodTypeException":      "java/lang/RuntimeException",
	"java/lang/reflect/UndeclaredThrowableException": "java/lang/RuntimeException",
}

// NewThrowable allocates a throwable of the named class without running a
// constructor. The backtrace is taken from the current thread. When the class
// cannot be loaded the object still carries the name so it can be reported.
func (vm *VM) NewThrowable(className, msg string) *JavaException {
	var obj *JObject
	if c, err := vm.FindClass(className); err == nil {
		obj = newObject(c)
	} else {
		obj = &JObject{ClassName: className, Fields: make(map[string]Value)}
	}
	if msg != "" {
		obj.SetField("detailMessage", "Ljava/lang/String;", RefValue(vm.NewString(msg)))
	}
	obj.Native = vm.captureBacktrace(nil)
	return &JavaException{Object: obj}
}

func (vm *VM) throwNew(className, format string, args ...interface{}) error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return vm.NewThrowable(className, msg)
}

func (vm *VM) throwNPE(what string) error {
	return vm.throwNew("java/lang/NullPointerException", "%s", what)
}

// asThrowable converts a class loading failure into the throwable bytecode
// observes. Other errors pass through.
func (vm *VM) asThrowable(err error) error {
	if err == nil {
		return nil
	}
	var jex *JavaException
	if errors.As(err, &jex) {
		return jex
	}
	var nf *ClassNotFoundError
	if errors.As(err, &nf) {
		return vm.throwNew("java/lang/NoClassDefFoundError", "%s", classfile.InternalName(nf.Name))
	}
	return err
}

// captureBacktrace snapshots the thread's frames, innermost first. When
// throwable is non-nil the frames of its own constructor chain are skipped.
func (vm *VM) captureBacktrace(throwable *JObject) []StackTraceEntry {
	t := vm.thread
	if t == nil {
		return nil
	}
	var tc *Class
	if throwable != nil {
		tc = throwable.Class
	}
	skipping := tc != nil
	var out []StackTraceEntry
	for i := len(t.frames) - 1; i >= 0; i-- {
		f := t.frames[i]
		if f.Method == nil {
			continue
		}
		if skipping {
			name := f.Method.Name
			if (name == "<init>" || name == "fillInStackTrace") && tc.IsSubclassOf(f.Method.Class) {
				continue
			}
			skipping = false
		}
		out = append(out, frameEntry(f))
	}
	return out
}

func frameEntry(f *Frame) StackTraceEntry {
	return StackTraceEntry{
		ClassName:  f.Method.Class.DotName(),
		MethodName: f.Method.Name,
		FileName:   f.Method.Class.SourceFile,
		Line:       f.Line(),
	}
}
