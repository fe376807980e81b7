package classfixture

import (
	cf "github.com/daimatz/jvmsandbox/pkg/classfile"
)

const (
	printStream   = "Ljava/io/PrintStream;"
	printlnString = "(Ljava/lang/String;)V"
)

// Samples returns the workspace classes used by the sandbox tests. They all
// live in the "sample" package.
func Samples() Library {
	lib := Library{}
	lib.put("sample/Calc", calc())
	lib.put("sample/Arrays", arrays())
	lib.put("sample/Point", point())
	lib.put("sample/Broken", broken())
	lib.put("sample/Config", config())
	lib.put("sample/Caller", caller())
	lib.put("sample/Guarded", guarded())
	lib.put("sample/A", initA())
	lib.put("sample/B", initLeaf("sample/B", 10))
	lib.put("sample/C", initLeaf("sample/C", 20))
	lib.put("sample/Spin", spin())
	lib.put("sample/Heavy", heavy())
	lib.put("sample/Thrower", thrower())
	lib.put("sample/BadInit", badInit())
	lib.put("sample/Exec", execer())
	lib.put("sample/Printer", printer())
	lib.put("sample/Keys", keys())
	lib.put("sample/Decoder", decoder())
	return lib
}

// All returns the core library together with the samples.
func All() Library {
	return Core().Merge(Samples())
}

func calc() *cf.Builder {
	b := cf.NewBuilder("sample/Calc", "java/lang/Object").SetSourceFile("Calc.java")
	b.AddField(privStat, "calls", "I")
	b.AddMethod(cf.AccStatic, "<clinit>", "()V", body(1, 0,
		ops(0x03),                                          // iconst_0
		ref(0xB3, b.Fieldref("sample/Calc", "calls", "I")), // putstatic calls
		ops(0xB1),                                          // return
	))
	b.AddMethod(pubStat, "seven", "()I", &cf.CodeAttribute{
		MaxStack:    1,
		Code:        []byte{0x10, 0x07, 0xAC}, // bipush 7, ireturn
		LineNumbers: []cf.LineNumber{{StartPC: 0, Line: 3}},
	})
	b.AddMethod(pubStat, "add", "(II)I", body(2, 2, ops(0x1A, 0x1B, 0x60, 0xAC)))              // iload_0, iload_1, iadd, ireturn
	b.AddMethod(pubStat, "add", "(JJ)J", body(4, 4, ops(0x1E, 0x20, 0x61, 0xAD)))              // lload_0, lload_2, ladd, lreturn
	b.AddMethod(pubStat, "twice", "(J)J", body(4, 2, ops(0x1E, 0x1E, 0x61, 0xAD)))             // lload_0, lload_0, ladd, lreturn
	b.AddMethod(pubStat, "negate", "(F)F", body(1, 1, ops(0x22, 0x76, 0xAE)))                  // fload_0, fneg, freturn
	b.AddMethod(pubStat, "not", "(Z)Z", body(2, 1, ops(0x1A, 0x04, 0x82, 0xAC)))               // iload_0, iconst_1, ixor, ireturn
	b.AddMethod(pubStat, "widen", "(BS)I", body(2, 2, ops(0x1A, 0x1B, 0x60, 0xAC)))            // iload_0, iload_1, iadd, ireturn
	b.AddMethod(pubStat, "upper", "(C)C", body(2, 1, ops(0x1A, 0x10, 0x20, 0x64, 0x92, 0xAC))) // iload_0, bipush 32, isub, i2c, ireturn
	b.AddMethod(pubStat, "half", "(D)D", body(4, 2,
		ops(0x26),                // dload_0
		ref(0x14, b.Double(0.5)), // ldc2_w 0.5
		ops(0x6B, 0xAF),          // dmul, dreturn
	))
	b.AddMethod(pubStat, "length", "(Ljava/lang/String;)I", body(1, 1,
		ops(0x2A),                                                   // aload_0
		ref(0xB6, b.Methodref("java/lang/String", "length", "()I")), // invokevirtual String.length
		ops(0xAC),                                                   // ireturn
	))
	b.AddMethod(pubStat, "greet", "(Ljava/lang/String;)Ljava/lang/String;", body(2, 1,
		ref(0xB2, b.Fieldref("java/lang/System", "out", printStream)),                                  // getstatic System.out
		ref(0x13, b.Str("greeting")),                                                                   // ldc_w "greeting"
		ref(0xB6, b.Methodref("java/io/PrintStream", "println", printlnString)),                        // invokevirtual println
		ref(0x13, b.Str("Hello, ")),                                                                    // ldc_w "Hello, "
		ops(0x2A),                                                                                      // aload_0
		ref(0xB6, b.Methodref("java/lang/String", "concat", "(Ljava/lang/String;)Ljava/lang/String;")), // invokevirtual concat
		ops(0xB0),                                                                                      // areturn
	))
	// int sum(int[] a) { int s = 0; for (int i = 0; i < a.length; i++) s += a[i]; return s; }
	b.AddMethod(pubStat, "sum", "([I)I", body(3, 3, ops(
		0x03, 0x3C,                         // 0: iconst_0, istore_1
		0x03, 0x3D,                         // 2: iconst_0, istore_2
		0x1C, 0x2A, 0xBE,                   // 4: iload_2, aload_0, arraylength
		0xA2, 0x00, 0x0F,                   // 7: if_icmpge +15 (-> 22)
		0x1B, 0x2A, 0x1C, 0x2E, 0x60, 0x3C, // 10: iload_1, aload_0, iload_2, iaload, iadd, istore_1
		0x84, 0x02, 0x01,                   // 16: iinc 2, 1
		0xA7, 0xFF, 0xF1,                   // 19: goto -15 (-> 4)
		0x1B, 0xAC,                         // 22: iload_1, ireturn
	)))
	b.AddMethod(pubStat, "first", "([Ljava/lang/String;)Ljava/lang/String;", body(2, 1,
		ops(0x2A, 0x03, 0x32, 0xB0))) // aload_0, iconst_0, aaload, areturn
	b.AddMethod(pub, "value", "()I", body(1, 1, ops(0x04, 0xAC))) // iconst_1, ireturn
	return b
}

func arrays() *cf.Builder {
	b := cf.NewBuilder("sample/Arrays", "java/lang/Object").SetSourceFile("Arrays.java")
	b.AddMethod(pubStat, "ints", "()[I", body(4, 0, ops(
		0x06, 0xBC, 0x0A,       // iconst_3, newarray int
		0x59, 0x03, 0x04, 0x4F, // dup, iconst_0, iconst_1, iastore
		0x59, 0x04, 0x05, 0x4F, // dup, iconst_1, iconst_2, iastore
		0x59, 0x05, 0x06, 0x4F, // dup, iconst_2, iconst_3, iastore
		0xB0,                   // areturn
	)))
	b.AddMethod(pubStat, "big", "()[I", body(1, 0, ops(
		0x11, 0x05, 0xDC, // sipush 1500
		0xBC, 0x0A,       // newarray int
		0xB0,             // areturn
	)))
	b.AddMethod(pubStat, "names", "()[Ljava/lang/String;", body(4, 0,
		ops(0x05),                              // iconst_2
		ref(0xBD, b.Class("java/lang/String")), // anewarray String
		ops(0x59, 0x03),                        // dup, iconst_0
		ref(0x13, b.Str("a")),                  // ldc_w "a"
		ops(0x53),                              // aastore
		ops(0x59, 0x04, 0x01, 0x53),            // dup, iconst_1, aconst_null, aastore
		ops(0xB0),                              // areturn
	))
	b.AddMethod(pubStat, "grid", "()[[I", body(2, 0,
		ops(0x05, 0x05),                      // iconst_2, iconst_2
		ref(0xC5, b.Class("[[I")), ops(0x02), // multianewarray [[I, 2
		ops(0xB0),                            // areturn
	))
	b.AddMethod(pubStat, "flags", "()[Z", body(4, 0, ops(
		0x05, 0xBC, 0x04,       // iconst_2, newarray boolean
		0x59, 0x04, 0x04, 0x54, // dup, iconst_1, iconst_1, bastore
		0xB0,                   // areturn
	)))
	b.AddMethod(pubStat, "letters", "()[C", body(1, 0,
		ref(0x13, b.Str("hi")),                                            // ldc_w "hi"
		ref(0xB6, b.Methodref("java/lang/String", "toCharArray", "()[C")), // invokevirtual toCharArray
		ops(0xB0),                                                         // areturn
	))
	b.AddMethod(pubStat, "longs", "()[J", body(5, 0,
		ops(0x04, 0xBC, 0x0B),    // iconst_1, newarray long
		ops(0x59, 0x03),          // dup, iconst_0
		ref(0x14, b.Long(1<<40)), // ldc2_w 1<<40
		ops(0x50, 0xB0),          // lastore, areturn
	))
	return b
}

func point() *cf.Builder {
	b := cf.NewBuilder("sample/Point", "java/lang/Object").SetSourceFile("Point.java")
	b.AddField(cf.AccPrivate, "x", "I")
	b.AddField(cf.AccPrivate, "y", "I")
	x, y := b.Fieldref("sample/Point", "x", "I"), b.Fieldref("sample/Point", "y", "I")
	b.AddMethod(pub, "<init>", "(II)V", body(2, 3,
		ops(0x2A),                                                   // aload_0
		ref(0xB7, b.Methodref("java/lang/Object", "<init>", "()V")), // invokespecial Object.<init>
		ops(0x2A, 0x1B), ref(0xB5, x),                               // aload_0, iload_1, putfield x
		ops(0x2A, 0x1C), ref(0xB5, y),                               // aload_0, iload_2, putfield y
		ops(0xB1),                                                   // return
	))
	bsm := b.MethodHandle(cf.RefInvokeStatic, b.Methodref(
		"java/lang/invoke/StringConcatFactory", "makeConcatWithConstants",
		"(Ljava/lang/invoke/MethodHandles$Lookup;Ljava/lang/String;Ljava/lang/invoke/MethodType;Ljava/lang/String;[Ljava/lang/Object;)Ljava/lang/invoke/CallSite;"))
	indy := b.InvokeDynamic(bsm, []uint16{b.Str("Point(\u0001, \u0001)")}, "makeConcatWithConstants", "(II)Ljava/lang/String;")
	b.AddMethod(pub, "toString", "()Ljava/lang/String;", body(2, 1,
		ops(0x2A), ref(0xB4, x),          // aload_0, getfield x
		ops(0x2A), ref(0xB4, y),          // aload_0, getfield y
		ref(0xBA, indy), ops(0x00, 0x00), // invokedynamic makeConcatWithConstants
		ops(0xB0),                        // areturn
	))
	b.AddMethod(pubStat, "make", "()Lsample/Point;", body(4, 0,
		ref(0xBB, b.Class("sample/Point")),                        // new Point
		ops(0x59, 0x04, 0x05),                                     // dup, iconst_1, iconst_2
		ref(0xB7, b.Methodref("sample/Point", "<init>", "(II)V")), // invokespecial <init>
		ops(0xB0),                                                 // areturn
	))
	b.AddMethod(pubStat, "plain", "()Ljava/lang/Object;", body(2, 0,
		ref(0xBB, b.Class("java/lang/Object")),                      // new Object
		ops(0x59),                                                   // dup
		ref(0xB7, b.Methodref("java/lang/Object", "<init>", "()V")), // invokespecial <init>
		ops(0xB0),                                                   // areturn
	))
	return b
}

func broken() *cf.Builder {
	b := cf.NewBuilder("sample/Broken", "java/lang/Object").SetSourceFile("Broken.java")
	b.AddMethod(pub, "<init>", "()V", body(1, 1,
		ops(0x2A),                                                   // aload_0
		ref(0xB7, b.Methodref("java/lang/Object", "<init>", "()V")), // invokespecial Object.<init>
		ops(0xB1),                                                   // return
	))
	b.AddMethod(pub, "toString", "()Ljava/lang/String;", body(3, 1, throwNew(b, "java/lang/IllegalStateException", "no text")...))
	b.AddMethod(pubStat, "make", "()Lsample/Broken;", body(2, 0,
		ref(0xBB, b.Class("sample/Broken")),                      // new Broken
		ops(0x59),                                                // dup
		ref(0xB7, b.Methodref("sample/Broken", "<init>", "()V")), // invokespecial <init>
		ops(0xB0),                                                // areturn
	))
	return b
}

// throwNew emits "throw new cls(msg)".
func throwNew(b *cf.Builder, cls, msg string) [][]byte {
	return [][]byte{
		ref(0xBB, b.Class(cls)), // new
		ops(0x59),               // dup
		ref(0x13, b.Str(msg)),   // ldc_w msg
		ref(0xB7, b.Methodref(cls, "<init>", "(Ljava/lang/String;)V")),
		ops(0xBF), // athrow
	}
}

func config() *cf.Builder {
	const owner = "sample/Config"
	b := cf.NewBuilder(owner, "java/lang/Object").SetSourceFile("Config.java")
	b.AddField(pubStat, "VERSION", "I")
	b.AddField(pubStat, "NAME", "Ljava/lang/String;")
	b.AddField(pubStat, "DATA", "[I")
	b.AddField(pubStat, "dup", "I")
	b.AddField(pubStat, "dup", "J")
	b.AddField(pub, "count", "I")
	b.AddConstantField(pubStat|cf.AccFinal, "LIMIT", "I", b.Integer(100))
	b.AddMethod(cf.AccStatic, "<clinit>", "()V", body(4, 0,
		ref(0xB2, b.Fieldref("java/lang/System", "out", printStream)),                       // getstatic System.out
		ref(0x13, b.Str("Config initialized")),                                              // ldc_w
		ref(0xB6, b.Methodref("java/io/PrintStream", "println", printlnString)),             // invokevirtual println
		ops(0x06), ref(0xB3, b.Fieldref(owner, "VERSION", "I")),                             // iconst_3, putstatic VERSION
		ref(0x13, b.Str("cfg")), ref(0xB3, b.Fieldref(owner, "NAME", "Ljava/lang/String;")), // ldc_w "cfg", putstatic NAME
		ops(0x05, 0xBC, 0x0A),                                                               // iconst_2, newarray int
		ops(0x59, 0x03, 0x10, 0x09, 0x4F),                                                   // dup, iconst_0, bipush 9, iastore
		ref(0xB3, b.Fieldref(owner, "DATA", "[I")),                                          // putstatic DATA
		ops(0x08), ref(0xB3, b.Fieldref(owner, "dup", "I")),                                 // iconst_5, putstatic dup:I
		ref(0x14, b.Long(9)), ref(0xB3, b.Fieldref(owner, "dup", "J")),                      // ldc2_w 9, putstatic dup:J
		ops(0xB1),                                                                           // return
	))
	return b
}

// stackCaller emits Thread.currentThread().getStackTrace()[i].getClassName().
func stackCaller(b *cf.Builder, i byte) [][]byte {
	return [][]byte{
		ref(0xB8, b.Methodref("java/lang/Thread", "currentThread", "()Ljava/lang/Thread;")),
		ref(0xB6, b.Methodref("java/lang/Thread", "getStackTrace", "()[Ljava/lang/StackTraceElement;")),
		ops(0x03 + i, 0x32), // iconst_i, aaload
		ref(0xB6, b.Methodref("java/lang/StackTraceElement", "getClassName", "()Ljava/lang/String;")),
	}
}

func caller() *cf.Builder {
	const owner = "sample/Caller"
	b := cf.NewBuilder(owner, "java/lang/Object").SetSourceFile("Caller.java")
	// callerName -> depth1 -> depth2, which reads frame 3 of the stack.
	b.AddMethod(pubStat, "callerName", "()Ljava/lang/String;", body(1, 0,
		ref(0xB8, b.Methodref(owner, "depth1", "()Ljava/lang/String;")), ops(0xB0)))
	b.AddMethod(privStat, "depth1", "()Ljava/lang/String;", body(1, 0,
		ref(0xB8, b.Methodref(owner, "depth2", "()Ljava/lang/String;")), ops(0xB0)))
	b.AddMethod(privStat, "depth2", "()Ljava/lang/String;", body(2, 0,
		append(stackCaller(b, 3), ops(0xB0))...))
	return b
}

func guarded() *cf.Builder {
	const owner = "sample/Guarded"
	b := cf.NewBuilder(owner, "java/lang/Object").SetSourceFile("Guarded.java")
	b.AddField(pubStat, "owner", "Ljava/lang/String;")
	b.AddMethod(cf.AccStatic, "<clinit>", "()V", body(2, 0,
		append(stackCaller(b, 1),
			ref(0xB3, b.Fieldref(owner, "owner", "Ljava/lang/String;")), // putstatic owner
			ops(0xB1),                                                   // return
		)...))
	return b
}

// initA builds A, whose initializer sums B.value and C.value.
func initA() *cf.Builder {
	b := cf.NewBuilder("sample/A", "java/lang/Object").SetSourceFile("A.java")
	b.AddField(pubStat, "sum", "I")
	b.AddMethod(cf.AccStatic, "<clinit>", "()V", body(2, 0,
		ref(0xB2, b.Fieldref("sample/B", "value", "I")), // getstatic B.value
		ref(0xB2, b.Fieldref("sample/C", "value", "I")), // getstatic C.value
		ops(0x60),                                       // iadd
		ref(0xB3, b.Fieldref("sample/A", "sum", "I")),   // putstatic A.sum
		ops(0xB1),                                       // return
	))
	return b
}

func initLeaf(name string, v byte) *cf.Builder {
	b := cf.NewBuilder(name, "java/lang/Object")
	b.AddField(pubStat, "value", "I")
	b.AddMethod(cf.AccStatic, "<clinit>", "()V", body(1, 0,
		ops(0x10, v),                              // bipush v
		ref(0xB3, b.Fieldref(name, "value", "I")), // putstatic value
		ops(0xB1),                                 // return
	))
	return b
}

func spin() *cf.Builder {
	b := cf.NewBuilder("sample/Spin", "java/lang/Object").SetSourceFile("Spin.java")
	b.AddMethod(pubStat, "loop", "()V", body(0, 0, ops(0xA7, 0x00, 0x00))) // goto +0
	return b
}

// countTo leaves local 0 at n after 2+4n instructions.
func countTo(n byte) []byte {
	return ops(
		0x03, 0x3B, // iconst_0, istore_0
		0x84, 0x00, 0x01, // iinc 0 1
		0x1A,             // iload_0
		0x10, n, // bipush n
		0xA1, 0xFF, 0xFA, // if_icmplt -6
	)
}

// Heavy's initializer runs 403 instructions and run 404.
func heavy() *cf.Builder {
	b := cf.NewBuilder("sample/Heavy", "java/lang/Object").SetSourceFile("Heavy.java")
	b.AddMethod(cf.AccStatic, "<clinit>", "()V", body(2, 1, countTo(100), ops(0xB1))) // return
	b.AddMethod(pubStat, "run", "()I", body(2, 1, countTo(100), ops(0x1A, 0xAC)))     // iload_0, ireturn
	return b
}

func thrower() *cf.Builder {
	const owner = "sample/Thrower"
	b := cf.NewBuilder(owner, "java/lang/Object").SetSourceFile("Thrower.java")
	b.AddMethod(pubStat, "fail", "()V", &cf.CodeAttribute{
		MaxStack:    3,
		Code:        body(0, 0, throwNew(b, "java/lang/IllegalStateException", "boom")...).Code,
		LineNumbers: []cf.LineNumber{{StartPC: 0, Line: 5}},
	})
	b.AddMethod(pubStat, "divide", "(II)I", body(2, 2, ops(0x1A, 0x1B, 0x6C, 0xAC))) // iload_0, iload_1, idiv, ireturn
	handler := body(1, 1,
		ref(0xB8, b.Methodref(owner, "fail", "()V")), // 0: invokestatic fail
		ops(0x03, 0xAC),                              // 3: iconst_0, ireturn
		ops(0x4B, 0x04, 0xAC),                        // 5: astore_0, iconst_1, ireturn
	)
	handler.ExceptionHandlers = []cf.ExceptionHandler{
		{StartPC: 0, EndPC: 3, HandlerPC: 5, CatchType: b.Class("java/lang/IllegalStateException")},
	}
	b.AddMethod(pubStat, "recover", "()I", handler)
	b.AddMethod(pubStat, "noisy", "()V", body(2, 0,
		ref(0xB2, b.Fieldref("java/lang/System", "out", printStream)),           // getstatic System.out
		ref(0x13, b.Str("before crash")),                                        // ldc_w
		ref(0xB6, b.Methodref("java/io/PrintStream", "println", printlnString)), // invokevirtual println
		ref(0xB8, b.Methodref(owner, "fail", "()V")),                            // invokestatic fail
		ops(0xB1),                                                               // return
	))
	return b
}

func badInit() *cf.Builder {
	b := cf.NewBuilder("sample/BadInit", "java/lang/Object").SetSourceFile("BadInit.java")
	b.AddField(pubStat, "X", "I")
	b.AddMethod(cf.AccStatic, "<clinit>", "()V", body(3, 0, throwNew(b, "java/lang/RuntimeException", "bad init")...))
	b.AddMethod(pubStat, "value", "()I", body(1, 0, ops(0x04, 0xAC))) // iconst_1, ireturn
	return b
}

func execer() *cf.Builder {
	b := cf.NewBuilder("sample/Exec", "java/lang/Object").SetSourceFile("Exec.java")
	b.AddMethod(pubStat, "run", "()V", body(2, 0,
		ref(0xB8, b.Methodref("java/lang/Runtime", "getRuntime", "()Ljava/lang/Runtime;")),             // invokestatic getRuntime
		ref(0x13, b.Str("id")),                                                                         // ldc_w "id"
		ref(0xB6, b.Methodref("java/lang/Runtime", "exec", "(Ljava/lang/String;)Ljava/lang/Process;")), // invokevirtual exec
		ops(0x57, 0xB1),                                                                                // pop, return
	))
	return b
}

func printer() *cf.Builder {
	b := cf.NewBuilder("sample/Printer", "java/lang/Object").SetSourceFile("Printer.java")
	printlnRef := b.Methodref("java/io/PrintStream", "println", printlnString)
	b.AddMethod(pubStat, "hello", "()V", body(2, 0,
		ref(0xB2, b.Fieldref("java/lang/System", "out", printStream)), // getstatic System.out
		ref(0x13, b.Str("hello")), ref(0xB6, printlnRef),              // ldc_w "hello", invokevirtual println
		ref(0xB2, b.Fieldref("java/lang/System", "err", printStream)), // getstatic System.err
		ref(0x13, b.Str("warn")), ref(0xB6, printlnRef),               // ldc_w "warn", invokevirtual println
		ops(0xB1),                                                     // return
	))
	return b
}

// keys holds state a later call depends on, like the lookup tables of an
// obfuscator's string decryptor.
func keys() *cf.Builder {
	b := cf.NewBuilder("sample/Keys", "java/lang/Object").SetSourceFile("Keys.java")
	b.AddField(pubStat, "KEY", "I")
	b.AddMethod(cf.AccStatic, "<clinit>", "()V", body(1, 0,
		ops(0x10, 0x2A),                                  // bipush 42
		ref(0xB3, b.Fieldref("sample/Keys", "KEY", "I")), // putstatic KEY
		ops(0xB1),                                        // return
	))
	return b
}

func decoder() *cf.Builder {
	b := cf.NewBuilder("sample/Decoder", "java/lang/Object").SetSourceFile("Decoder.java")
	b.AddMethod(pubStat, "decode", "(I)I", body(2, 1,
		ops(0x1A),                                        // iload_0
		ref(0xB2, b.Fieldref("sample/Keys", "KEY", "I")), // getstatic Keys.KEY
		ops(0x82, 0xAC),                                  // ixor, ireturn
	))
	return b
}
