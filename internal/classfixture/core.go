package classfixture

import (
	cf "github.com/daimatz/jvmsandbox/pkg/classfile"
)

const (
	pub      = cf.AccPublic
	pubStat  = cf.AccPublic | cf.AccStatic
	privStat = cf.AccPrivate | cf.AccStatic
)

// Superclasses of the throwables in the core library.
var exceptions = []struct{ name, super string }{
	{"java/lang/Exception", "java/lang/Throwable"},
	{"java/lang/Error", "java/lang/Throwable"},
	{"java/lang/RuntimeException", "java/lang/Exception"},
	{"java/lang/IllegalStateException", "java/lang/RuntimeException"},
	{"java/lang/IllegalArgumentException", "java/lang/RuntimeException"},
	{"java/lang/NumberFormatException", "java/lang/IllegalArgumentException"},
	{"java/lang/ArithmeticException", "java/lang/RuntimeException"},
	{"java/lang/NullPointerException", "java/lang/RuntimeException"},
	{"java/lang/ClassCastException", "java/lang/RuntimeException"},
	{"java/lang/ArrayStoreException", "java/lang/RuntimeException"},
	{"java/lang/NegativeArraySizeException", "java/lang/RuntimeException"},
	{"java/lang/SecurityException", "java/lang/RuntimeException"},
	{"java/lang/UnsupportedOperationException", "java/lang/RuntimeException"},
	{"java/lang/IndexOutOfBoundsException", "java/lang/RuntimeException"},
	{"java/lang/ArrayIndexOutOfBoundsException", "java/lang/IndexOutOfBoundsException"},
	{"java/lang/StringIndexOutOfBoundsException", "java/lang/IndexOutOfBoundsException"},
	{"java/lang/CloneNotSupportedException", "java/lang/Exception"},
	{"java/io/IOException", "java/lang/Exception"},
	{"java/lang/LinkageError", "java/lang/Error"},
	{"java/lang/NoClassDefFoundError", "java/lang/LinkageError"},
	{"java/lang/ExceptionInInitializerError", "java/lang/LinkageError"},
	{"java/lang/UnsatisfiedLinkError", "java/lang/LinkageError"},
	{"java/lang/IncompatibleClassChangeError", "java/lang/LinkageError"},
	{"java/lang/NoSuchFieldError", "java/lang/IncompatibleClassChangeError"},
	{"java/lang/NoSuchMethodError", "java/lang/IncompatibleClassChangeError"},
	{"java/lang/AbstractMethodError", "java/lang/IncompatibleClassChangeError"},
	{"java/lang/VirtualMachineError", "java/lang/Error"},
	{"java/lang/InternalError", "java/lang/VirtualMachineError"},
	{"java/lang/StackOverflowError", "java/lang/VirtualMachineError"},
}

// Runtime.exec overloads, matching the JDK.
var execDescs = []string{
	"(Ljava/lang/String;)Ljava/lang/Process;",
	"(Ljava/lang/String;[Ljava/lang/String;)Ljava/lang/Process;",
	"(Ljava/lang/String;[Ljava/lang/String;Ljava/io/File;)Ljava/lang/Process;",
	"([Ljava/lang/String;)Ljava/lang/Process;",
	"([Ljava/lang/String;[Ljava/lang/String;)Ljava/lang/Process;",
	"([Ljava/lang/String;[Ljava/lang/String;Ljava/io/File;)Ljava/lang/Process;",
}

// Core returns the minimal core library. Method bodies the interpreter
// implements itself are declared native.
func Core() Library {
	lib := Library{}

	obj := cf.NewBuilder("java/lang/Object", "").SetSourceFile("Object.java")
	obj.AddMethod(pub, "<init>", "()V", body(0, 1, ops(0xB1))) // return
	natives(obj, pub, "hashCode()I", "equals(Ljava/lang/Object;)Z", "toString()Ljava/lang/String;",
		"getClass()Ljava/lang/Class;")
	natives(obj, cf.AccProtected, "clone()Ljava/lang/Object;")
	lib.put("java/lang/Object", obj)

	for _, name := range []string{"java/lang/Cloneable", "java/io/Serializable", "java/lang/CharSequence", "java/util/Map"} {
		iface := cf.NewBuilder(name, "java/lang/Object").SetAccess(cf.AccPublic | cf.AccInterface | cf.AccAbstract)
		lib.put(name, iface)
	}

	str := cf.NewBuilder("java/lang/String", "java/lang/Object").SetSourceFile("String.java")
	str.SetAccess(cf.AccPublic | cf.AccFinal | cf.AccSuper)
	str.AddInterface("java/io/Serializable").AddInterface("java/lang/CharSequence")
	natives(str, pub, "<init>()V", "<init>([C)V", "<init>([B)V", "<init>(Ljava/lang/String;)V",
		"length()I", "charAt(I)C", "equals(Ljava/lang/Object;)Z", "hashCode()I",
		"toString()Ljava/lang/String;", "concat(Ljava/lang/String;)Ljava/lang/String;",
		"toCharArray()[C", "intern()Ljava/lang/String;")
	natives(str, pubStat, "valueOf(I)Ljava/lang/String;", "valueOf(Ljava/lang/Object;)Ljava/lang/String;")
	lib.put("java/lang/String", str)

	sys := cf.NewBuilder("java/lang/System", "java/lang/Object").SetSourceFile("System.java")
	sys.AddField(pubStat|cf.AccFinal, "out", "Ljava/io/PrintStream;")
	sys.AddField(pubStat|cf.AccFinal, "err", "Ljava/io/PrintStream;")
	sys.AddMethod(cf.AccStatic, "<clinit>", "()V", body(0, 0,
		ref(0xB8, sys.Methodref("java/lang/System", "registerNatives", "()V")), // invokestatic registerNatives
		ops(0xB1),                                                              // return
	))
	natives(sys, privStat, "registerNatives()V", "initPhase1()V", "initPhase2(ZZ)I", "initPhase3()V")
	natives(sys, pubStat, "currentTimeMillis()J", "nanoTime()J",
		"arraycopy(Ljava/lang/Object;ILjava/lang/Object;II)V", "identityHashCode(Ljava/lang/Object;)I",
		"lineSeparator()Ljava/lang/String;")
	lib.put("java/lang/System", sys)

	thread := cf.NewBuilder("java/lang/Thread", "java/lang/Object").SetSourceFile("Thread.java")
	thread.AddField(cf.AccPrivate, "name", "Ljava/lang/String;")
	thread.AddField(cf.AccPrivate, "priority", "I")
	thread.AddMethod(cf.AccStatic, "<clinit>", "()V", body(0, 0,
		ref(0xB8, thread.Methodref("java/lang/Thread", "registerNatives", "()V")), // invokestatic registerNatives
		ops(0xB1),                                                                 // return
	))
	natives(thread, privStat, "registerNatives()V")
	natives(thread, pubStat, "currentThread()Ljava/lang/Thread;")
	natives(thread, pub, "getName()Ljava/lang/String;", "getStackTrace()[Ljava/lang/StackTraceElement;")
	lib.put("java/lang/Thread", thread)

	th := cf.NewBuilder("java/lang/Throwable", "java/lang/Object").SetSourceFile("Throwable.java")
	th.AddInterface("java/io/Serializable")
	th.AddField(cf.AccPrivate, "detailMessage", "Ljava/lang/String;")
	th.AddField(cf.AccPrivate, "cause", "Ljava/lang/Throwable;")
	natives(th, pub, "<init>()V", "<init>(Ljava/lang/String;)V",
		"<init>(Ljava/lang/String;Ljava/lang/Throwable;)V", "<init>(Ljava/lang/Throwable;)V",
		"getMessage()Ljava/lang/String;", "getLocalizedMessage()Ljava/lang/String;",
		"getCause()Ljava/lang/Throwable;", "initCause(Ljava/lang/Throwable;)Ljava/lang/Throwable;",
		"toString()Ljava/lang/String;", "getStackTrace()[Ljava/lang/StackTraceElement;",
		"fillInStackTrace()Ljava/lang/Throwable;", "printStackTrace()V")
	lib.put("java/lang/Throwable", th)

	for _, e := range exceptions {
		lib.put(e.name, exception(e.name, e.super))
	}

	ste := cf.NewBuilder("java/lang/StackTraceElement", "java/lang/Object").SetSourceFile("StackTraceElement.java")
	ste.SetAccess(cf.AccPublic | cf.AccFinal | cf.AccSuper)
	ste.AddField(cf.AccPrivate, "declaringClass", "Ljava/lang/String;")
	ste.AddField(cf.AccPrivate, "methodName", "Ljava/lang/String;")
	ste.AddField(cf.AccPrivate, "fileName", "Ljava/lang/String;")
	ste.AddField(cf.AccPrivate, "lineNumber", "I")
	natives(ste, pub, "<init>(Ljava/lang/String;Ljava/lang/String;Ljava/lang/String;I)V",
		"getClassName()Ljava/lang/String;", "getMethodName()Ljava/lang/String;",
		"getFileName()Ljava/lang/String;", "getLineNumber()I", "toString()Ljava/lang/String;")
	lib.put("java/lang/StackTraceElement", ste)

	class := cf.NewBuilder("java/lang/Class", "java/lang/Object").SetSourceFile("Class.java")
	class.SetAccess(cf.AccPublic | cf.AccFinal | cf.AccSuper)
	class.AddMethod(cf.AccStatic, "<clinit>", "()V", body(0, 0,
		ref(0xB8, class.Methodref("java/lang/Class", "registerNatives", "()V")), // invokestatic registerNatives
		ops(0xB1),                                                               // return
	))
	natives(class, privStat, "registerNatives()V")
	natives(class, pub, "getName()Ljava/lang/String;", "desiredAssertionStatus()Z")
	lib.put("java/lang/Class", class)

	ps := cf.NewBuilder("java/io/PrintStream", "java/lang/Object").SetSourceFile("PrintStream.java")
	natives(ps, pub, "println()V", "println(Ljava/lang/String;)V", "println(I)V", "println(Ljava/lang/Object;)V",
		"print(Ljava/lang/String;)V", "print(I)V", "flush()V")
	lib.put("java/io/PrintStream", ps)

	rt := cf.NewBuilder("java/lang/Runtime", "java/lang/Object").SetSourceFile("Runtime.java")
	natives(rt, pubStat, "getRuntime()Ljava/lang/Runtime;")
	natives(rt, pub, "availableProcessors()I")
	for _, desc := range execDescs {
		natives(rt, pub, "exec"+desc)
	}
	lib.put("java/lang/Runtime", rt)
	lib.put("java/lang/Process", cf.NewBuilder("java/lang/Process", "java/lang/Object").
		SetAccess(cf.AccPublic|cf.AccAbstract|cf.AccSuper))

	num := cf.NewBuilder("java/lang/Number", "java/lang/Object").SetAccess(cf.AccPublic | cf.AccAbstract | cf.AccSuper)
	lib.put("java/lang/Number", num)
	integer := cf.NewBuilder("java/lang/Integer", "java/lang/Number").SetSourceFile("Integer.java")
	integer.AddField(cf.AccPrivate|cf.AccFinal, "value", "I")
	integer.AddConstantField(pubStat|cf.AccFinal, "MAX_VALUE", "I", integer.Integer(0x7fffffff))
	natives(integer, pub, "<init>(I)V", "intValue()I", "hashCode()I", "equals(Ljava/lang/Object;)Z",
		"toString()Ljava/lang/String;")
	natives(integer, pubStat, "valueOf(I)Ljava/lang/Integer;", "parseInt(Ljava/lang/String;)I",
		"toString(I)Ljava/lang/String;", "toHexString(I)Ljava/lang/String;")
	lib.put("java/lang/Integer", integer)

	sb := cf.NewBuilder("java/lang/StringBuilder", "java/lang/Object").SetSourceFile("StringBuilder.java")
	sb.AddInterface("java/lang/CharSequence")
	natives(sb, pub, "<init>()V", "<init>(Ljava/lang/String;)V",
		"append(Ljava/lang/String;)Ljava/lang/StringBuilder;", "append(I)Ljava/lang/StringBuilder;",
		"append(C)Ljava/lang/StringBuilder;", "toString()Ljava/lang/String;", "length()I",
		"reverse()Ljava/lang/StringBuilder;")
	lib.put("java/lang/StringBuilder", sb)

	math := cf.NewBuilder("java/lang/Math", "java/lang/Object").SetSourceFile("Math.java")
	natives(math, pubStat, "abs(I)I", "min(II)I", "max(II)I")
	lib.put("java/lang/Math", math)

	hm := cf.NewBuilder("java/util/HashMap", "java/lang/Object").SetSourceFile("HashMap.java")
	hm.AddInterface("java/util/Map")
	natives(hm, pub, "<init>()V", "get(Ljava/lang/Object;)Ljava/lang/Object;",
		"put(Ljava/lang/Object;Ljava/lang/Object;)Ljava/lang/Object;",
		"containsKey(Ljava/lang/Object;)Z", "size()I")
	lib.put("java/util/HashMap", hm)

	return lib
}

// exception builds a throwable class whose constructors delegate to super.
func exception(name, super string) *cf.Builder {
	b := cf.NewBuilder(name, super)
	b.AddMethod(pub, "<init>", "()V", body(1, 1,
		ops(0x2A),                                      // aload_0
		ref(0xB7, b.Methodref(super, "<init>", "()V")), // invokespecial super.<init>()V
		ops(0xB1),                                      // return
	))
	b.AddMethod(pub, "<init>", "(Ljava/lang/String;)V", body(2, 2,
		ops(0x2A, 0x2B),                                                  // aload_0, aload_1
		ref(0xB7, b.Methodref(super, "<init>", "(Ljava/lang/String;)V")), // invokespecial super.<init>(String)V
		ops(0xB1),                                                        // return
	))
	return b
}
