package vm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/daimatz/jvmsandbox/pkg/classfile"
)

// ErrClassNotFound signals that no tier of the boot class path has the class.
var ErrClassNotFound = errors.New("class not found")

// ClassNotFoundError names the class a lookup failed for. It matches
// ErrClassNotFound with errors.Is.
type ClassNotFoundError struct {
	Name string
}

func (e *ClassNotFoundError) Error() string {
	return fmt.Sprintf("class %s not found", e.Name)
}

func (e *ClassNotFoundError) Is(target error) bool { return target == ErrClassNotFound }

// Origin records where a class came from.
type Origin int

const (
	// OriginSnapshot classes come from the standard library snapshot and are
	// owned by the environment.
	OriginSnapshot Origin = iota
	// OriginWorkspace classes come from the analysed workspace.
	OriginWorkspace
	// OriginSynthetic classes are created by the VM itself (array classes).
	OriginSynthetic
)

func (o Origin) String() string {
	switch o {
	case OriginSnapshot:
		return "snapshot"
	case OriginWorkspace:
		return "workspace"
	case OriginSynthetic:
		return "synthetic"
	}
	return fmt.Sprintf("Origin(%d)", int(o))
}

// ClassSource is a parsed class handed to the VM by a BootClassFinder.
type ClassSource struct {
	File   *classfile.ClassFile
	Origin Origin
}

// BootClassFinder resolves internal class names to parsed class files. It
// returns an error matching ErrClassNotFound when the class does not exist.
type BootClassFinder interface {
	FindBootClass(name string) (*ClassSource, error)
}

// BootClassFinderFunc adapts a function to BootClassFinder.
type BootClassFinderFunc func(name string) (*ClassSource, error)

func (f BootClassFinderFunc) FindBootClass(name string) (*ClassSource, error) { return f(name) }

// FindClass loads and links the named class. Linking prepares static fields
// and notifies class-link observers; it never runs <clinit>.
func (vm *VM) FindClass(name string) (*Class, error) {
	if c, ok := vm.classes[name]; ok {
		if c.State == ClassLoaded {
			return nil, vm.throwNew("java/lang/ClassCircularityError", "%s", classfile.DotName(name))
		}
		return c, nil
	}
	if strings.HasPrefix(name, "[") {
		return vm.arrayClass(name)
	}
	if vm.finder == nil {
		return nil, &ClassNotFoundError{Name: name}
	}
	src, err := vm.finder.FindBootClass(name)
	if err != nil {
		if errors.Is(err, ErrClassNotFound) {
			return nil, &ClassNotFoundError{Name: name}
		}
		return nil, fmt.Errorf("loading %s: %w", name, err)
	}
	declared, err := src.File.ClassName()
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", name, err)
	}
	if declared != name {
		return nil, vm.throwNew("java/lang/NoClassDefFoundError", "%s (wrong name: %s)", name, declared)
	}
	c, err := newClass(name, src.File, src.Origin)
	if err != nil {
		return nil, err
	}

	vm.classes[name] = c
	if err := vm.link(c); err != nil {
		delete(vm.classes, name)
		return nil, err
	}
	return c, nil
}

func (vm *VM) link(c *Class) error {
	if superName := c.File.SuperClassName(); superName != "" {
		sup, err := vm.FindClass(superName)
		if err != nil {
			return err
		}
		c.Super = sup
	}
	ifaces, err := c.File.InterfaceNames()
	if err != nil {
		return fmt.Errorf("linking %s: %w", c.Name, err)
	}
	for _, name := range ifaces {
		iface, err := vm.FindClass(name)
		if err != nil {
			return err
		}
		c.Interfaces = append(c.Interfaces, iface)
	}
	if err := vm.prepare(c); err != nil {
		return err
	}
	c.State = ClassLinked
	vm.fireClassLink(c)
	return nil
}

// prepare assigns default values, or ConstantValue attributes, to statics.
func (vm *VM) prepare(c *Class) error {
	pool := c.File.ConstantPool
	for _, f := range c.fields {
		if !f.IsStatic() {
			continue
		}
		v := zeroValue(f.Descriptor)
		if f.ConstantValue != 0 && int(f.ConstantValue) < len(pool) {
			switch cv := pool[f.ConstantValue].(type) {
			case *classfile.ConstantInteger:
				v = coerce(f.Descriptor, IntValue(cv.Value))
			case *classfile.ConstantLong:
				v = LongValue(cv.Value)
			case *classfile.ConstantFloat:
				v = FloatValue(cv.Value)
			case *classfile.ConstantDouble:
				v = DoubleValue(cv.Value)
			case *classfile.ConstantString:
				s, err := classfile.GetUtf8(pool, cv.StringIndex)
				if err != nil {
					return fmt.Errorf("preparing %s.%s: %w", c.Name, f.Name, err)
				}
				v = RefValue(vm.InternString(s))
			}
		}
		c.StaticFields[fieldKey(f.Name, f.Descriptor)] = v
	}
	return nil
}

func (vm *VM) arrayClass(name string) (*Class, error) {
	if _, err := classfile.ParseFieldType(name); err != nil {
		return nil, vm.throwNew("java/lang/NoClassDefFoundError", "%s", name)
	}
	c := &Class{
		Name:         name,
		Origin:       OriginSynthetic,
		StaticFields: make(map[string]Value),
		State:        ClassInitialized,
	}
	if obj, err := vm.FindClass("java/lang/Object"); err == nil {
		c.Super = obj
	}
	vm.classes[name] = c
	return c, nil
}

// InitializeClass runs the static initializers of c and its superclasses if
// that has not happened yet. The calling thread must be attached.
func (vm *VM) InitializeClass(c *Class) error {
	return vm.guard(c.Name+".<clinit>", func() error {
		return vm.initializeClass(c)
	})
}

func (vm *VM) initializeClass(c *Class) error {
	switch c.State {
	case ClassInitialized, ClassInitializing:
		return nil
	case ClassFailed:
		return vm.throwNew("java/lang/NoClassDefFoundError", "Could not initialize class %s", c.DotName())
	}
	c.State = ClassInitializing
	if c.Super != nil && !c.IsInterface() {
		if err := vm.initializeClass(c.Super); err != nil {
			c.State = ClassFailed
			c.initErr = err
			return err
		}
	}
	if clinit := c.Method("<clinit>", "()V"); clinit != nil {
		if _, err := vm.invoke(clinit, nil); err != nil {
			c.State = ClassFailed
			c.initErr = err
			var jex *JavaException
			if errors.As(err, &jex) && !vm.isInstanceOf(jex.Object, "java/lang/Error") {
				wrapped := vm.NewThrowable("java/lang/ExceptionInInitializerError", "")
				wrapped.Object.SetField("cause", "Ljava/lang/Throwable;", RefValue(jex.Object))
				wrapped.Object.SetField("exception", "Ljava/lang/Throwable;", RefValue(jex.Object))
				return wrapped
			}
			return err
		}
	}
	c.State = ClassInitialized
	return nil
}

// LoadedClasses returns the names of every class in the VM's class table.
func (vm *VM) LoadedClasses() []string {
	names := make([]string, 0, len(vm.classes))
	for name := range vm.classes {
		names = append(names, name)
	}
	return names
}
