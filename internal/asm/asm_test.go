package asm_test

import (
	"bytes"
	"strings"
	"testing"

	"classbuilder/internal/asm"
	"classbuilder/internal/classfile"
	"classbuilder/internal/diag"
	"classbuilder/internal/jtype"
	"classbuilder/internal/testkit"
)

const pubStatic = classfile.AccPublic | classfile.AccStatic

var (
	system      = jtype.Class("java/lang/System")
	printStream = "java/io/PrintStream"
)

func newClass(t *testing.T, name string, opts asm.Options) *asm.Class {
	t.Helper()
	c, err := asm.NewClass(classfile.AccPublic, name, "", nil, opts)
	if err != nil {
		t.Fatalf("NewClass(%s): %v", name, err)
	}
	return c
}

func method(t *testing.T, c *asm.Class, ret jtype.Type, name string, params ...asm.Param) *asm.Method {
	t.Helper()
	m, err := c.Method(pubStatic, ret, name, params...)
	if err != nil {
		t.Fatalf("Method(%s): %v", name, err)
	}
	return m
}

// builder returns a helper that fails the test on a builder error.
func builder(t *testing.T) func(*asm.Expr, error) *asm.Expr {
	return func(e *asm.Expr, err error) *asm.Expr {
		t.Helper()
		if err != nil {
			t.Fatalf("build expression: %v", err)
		}
		return e
	}
}

func ok(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func wantCode(t *testing.T, err error, code diag.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", code.ID())
	}
	if got := diag.RootCode(err); got != code {
		t.Fatalf("expected %s, got %v", code.ID(), err)
	}
}

func local(t *testing.T, m *asm.Method, typ jtype.Type, name string) *asm.Local {
	t.Helper()
	l, err := m.Declare(typ, name)
	if err != nil {
		t.Fatalf("Declare(%s): %v", name, err)
	}
	return l
}

// finish serializes c and runs the structural checks on the bytes.
func finish(t *testing.T, c *asm.Class) *testkit.ClassFile {
	t.Helper()
	data, err := c.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	cf, err := testkit.CheckClass(data)
	if err != nil {
		t.Fatalf("CheckClass: %v", err)
	}
	return cf
}

func codeOf(t *testing.T, cf *testkit.ClassFile, name, desc string) *testkit.Code {
	t.Helper()
	m := cf.Method(name, desc)
	if m == nil {
		t.Fatalf("no method %s%s", name, desc)
	}
	code, err := cf.DecodeCode(m)
	if err != nil {
		t.Fatalf("DecodeCode: %v", err)
	}
	return code
}

func insns(t *testing.T, code *testkit.Code) []testkit.Insn {
	t.Helper()
	ins, err := testkit.Instructions(code.Bytes)
	if err != nil {
		t.Fatalf("Instructions: %v", err)
	}
	return ins
}

func wantOps(t *testing.T, code *testkit.Code, want ...classfile.Opcode) {
	t.Helper()
	ops, err := testkit.Ops(code.Bytes)
	if err != nil {
		t.Fatalf("Ops: %v", err)
	}
	if len(ops) != len(want) {
		t.Fatalf("ops = % x, want % x", ops, want)
	}
	for i := range ops {
		if ops[i] != want[i] {
			t.Fatalf("op %d = %#x, want %#x (all: % x)", i, byte(ops[i]), byte(want[i]), ops)
		}
	}
}

func TestIfElseAssignsOnBothArms(t *testing.T) {
	c := newClass(t, "demo/Branch", asm.Options{})
	m := method(t, c, jtype.Int, "pick")
	e := builder(t)
	x := local(t, m, jtype.Int, "x")

	ok(t, m.If(e(m.Bool(true))))
	ok(t, m.Assign(x, e(m.Int(3))))
	ok(t, m.Else())
	ok(t, m.Assign(x, e(m.Int(2))))
	ok(t, m.End())
	ok(t, m.Return(e(m.Get(x))))
	ok(t, m.End())

	cf := finish(t, c)
	code := codeOf(t, cf, "pick", "()I")
	wantOps(t, code,
		classfile.OpIconst0+1, classfile.OpIfeq,
		classfile.OpIconst0+3, classfile.OpIstore0, classfile.OpGoto,
		classfile.OpIconst0+2, classfile.OpIstore0,
		classfile.OpIload0, classfile.OpIreturn)
	ins := insns(t, code)
	if ins[1].Target != ins[5].PC {
		t.Fatalf("ifeq lands at %d, want the else arm at %d", ins[1].Target, ins[5].PC)
	}
	if ins[4].Target != ins[7].PC {
		t.Fatalf("goto lands at %d, want the join at %d", ins[4].Target, ins[7].PC)
	}

	text := c.Render()
	for _, want := range []string{"if (true) {", "x = 3;", "} else {", "return x;"} {
		if !strings.Contains(text, want) {
			t.Errorf("render lacks %q:\n%s", want, text)
		}
	}
}

func TestIfWithoutElseLeavesUnassigned(t *testing.T) {
	c := newClass(t, "demo/Half", asm.Options{})
	m := method(t, c, jtype.Int, "pick", asm.P("flag", jtype.Boolean))
	e := builder(t)
	x := local(t, m, jtype.Int, "x")

	ok(t, m.If(e(m.Get(m.Arg("flag")))))
	ok(t, m.Assign(x, e(m.Int(3))))
	ok(t, m.End())
	_, err := m.Get(x)
	wantCode(t, err, diag.AccUnassignedLocal)

	// the assembler is poisoned from here on
	_, err = c.AddField(classfile.AccPrivate, jtype.Int, "late")
	if diag.CodeOf(err) != diag.AsmUnusable || diag.RootCode(err) != diag.AccUnassignedLocal {
		t.Fatalf("expected unusable wrapping the first failure, got %v", err)
	}
	if c.Err() == nil {
		t.Fatalf("Err() should report the first failure")
	}
}

func TestElseIfChainDefiniteAssignment(t *testing.T) {
	build := func(withElse bool) error {
		c := newClass(t, "demo/Chain", asm.Options{})
		m := method(t, c, jtype.Int, "pick", asm.P("a", jtype.Boolean), asm.P("b", jtype.Boolean))
		e := builder(t)
		x := local(t, m, jtype.Int, "x")
		ok(t, m.If(e(m.Get(m.Arg("a")))))
		ok(t, m.Assign(x, e(m.Int(1))))
		ok(t, m.ElseIf(e(m.Get(m.Arg("b")))))
		ok(t, m.Assign(x, e(m.Int(2))))
		if withElse {
			ok(t, m.Else())
			ok(t, m.Assign(x, e(m.Int(3))))
		}
		ok(t, m.End())
		v, err := m.Get(x)
		if err != nil {
			return err
		}
		ok(t, m.Return(v))
		ok(t, m.End())
		finish(t, c)
		return nil
	}
	if err := build(true); err != nil {
		t.Fatalf("complete chain: %v", err)
	}
	wantCode(t, build(false), diag.AccUnassignedLocal)
}

func TestArmThatReturnsDoesNotBlockAssignment(t *testing.T) {
	c := newClass(t, "demo/Early", asm.Options{})
	m := method(t, c, jtype.Int, "pick", asm.P("flag", jtype.Boolean))
	e := builder(t)
	x := local(t, m, jtype.Int, "x")
	ok(t, m.If(e(m.Get(m.Arg("flag")))))
	ok(t, m.Return(e(m.Int(0))))
	ok(t, m.Else())
	ok(t, m.Assign(x, e(m.Int(7))))
	ok(t, m.End())
	ok(t, m.Return(e(m.Get(x))))
	ok(t, m.End())
	finish(t, c)
}

func TestWhileLoopBranchesBackToTest(t *testing.T) {
	c := newClass(t, "demo/Loop", asm.Options{})
	m := method(t, c, jtype.Int, "count")
	e := builder(t)
	x := local(t, m, jtype.Int, "x")

	ok(t, m.Assign(x, e(m.Int(0))))
	ok(t, m.While(e(m.Ne(e(m.Get(x)), e(m.Int(3))))))
	ok(t, m.Assign(x, e(m.Add(e(m.Get(x)), e(m.Int(1))))))
	ok(t, m.End())
	ok(t, m.Return(e(m.Get(x))))
	ok(t, m.End())

	code := codeOf(t, finish(t, c), "count", "()I")
	wantOps(t, code,
		classfile.OpIconst0, classfile.OpIstore0,
		classfile.OpIload0, classfile.OpIconst0+3, classfile.OpIfIcmpeq,
		classfile.OpIload0, classfile.OpIconst0+1, classfile.OpIadd, classfile.OpIstore0,
		classfile.OpGoto,
		classfile.OpIload0, classfile.OpIreturn)
	ins := insns(t, code)
	if ins[9].Target != ins[2].PC {
		t.Fatalf("back edge lands at %d, want the test at %d", ins[9].Target, ins[2].PC)
	}
	if ins[4].Target != ins[10].PC {
		t.Fatalf("exit lands at %d, want %d", ins[4].Target, ins[10].PC)
	}
}

func TestBreakAndContinue(t *testing.T) {
	c := newClass(t, "demo/Jumps", asm.Options{})
	m := method(t, c, jtype.Int, "spin", asm.P("n", jtype.Int))
	e := builder(t)

	ok(t, m.While(e(m.Bool(true))))
	ok(t, m.If(e(m.Gt(e(m.Get(m.Arg("n"))), e(m.Int(10))))))
	ok(t, m.Break())
	ok(t, m.End())
	ok(t, m.Increment(m.Arg("n"), 1))
	ok(t, m.Continue())
	ok(t, m.End())
	ok(t, m.Return(e(m.Get(m.Arg("n")))))
	ok(t, m.End())
	finish(t, c)
}

func TestLoopWithoutBreakEndsMethod(t *testing.T) {
	c := newClass(t, "demo/Forever", asm.Options{})
	m := method(t, c, jtype.Int, "never")
	e := builder(t)
	ok(t, m.While(e(m.Bool(true))))
	ok(t, m.End())
	// nothing follows an infinite loop, so no return is needed
	ok(t, m.End())
	finish(t, c)
}

func TestStructuralErrors(t *testing.T) {
	cases := []struct {
		name string
		code diag.Code
		run  func(t *testing.T, c *asm.Class) error
	}{
		{"break outside loop", diag.SynBreakOutsideLoop, func(t *testing.T, c *asm.Class) error {
			return method(t, c, jtype.Void, "m").Break()
		}},
		{"continue outside loop", diag.SynContinueOutsideLoop, func(t *testing.T, c *asm.Class) error {
			return method(t, c, jtype.Void, "m").Continue()
		}},
		{"else outside if", diag.SynElseOutsideIf, func(t *testing.T, c *asm.Class) error {
			return method(t, c, jtype.Void, "m").Else()
		}},
		{"catch outside try", diag.SynCatchOutsideTry, func(t *testing.T, c *asm.Class) error {
			_, err := method(t, c, jtype.Void, "m").Catch(jtype.Class("java/lang/Exception"), "e")
			return err
		}},
		{"statement after return", diag.SynScopeClosed, func(t *testing.T, c *asm.Class) error {
			m := method(t, c, jtype.Void, "m")
			ok(t, m.Return(nil))
			return m.Return(nil)
		}},
		{"node reused in one call", diag.SynNodeReused, func(t *testing.T, c *asm.Class) error {
			m := method(t, c, jtype.Int, "m")
			one := builder(t)(m.Int(1))
			_, err := m.Add(one, one)
			return err
		}},
		{"node reused across statements", diag.SynNodeReused, func(t *testing.T, c *asm.Class) error {
			m := method(t, c, jtype.Void, "m")
			x := local(t, m, jtype.Int, "x")
			one := builder(t)(m.Int(1))
			ok(t, m.Assign(x, one))
			return m.Assign(x, one)
		}},
		{"dangling expression", diag.SynDanglingExpr, func(t *testing.T, c *asm.Class) error {
			m := method(t, c, jtype.Void, "m")
			builder(t)(m.Int(1))
			return m.End()
		}},
		{"foreign node", diag.SynForeignNode, func(t *testing.T, c *asm.Class) error {
			m1 := method(t, c, jtype.Int, "a")
			m2 := method(t, c, jtype.Int, "b")
			return m2.Return(builder(t)(m1.Int(1)))
		}},
		{"missing return", diag.TypMissingReturn, func(t *testing.T, c *asm.Class) error {
			return method(t, c, jtype.Int, "m").End()
		}},
		{"extraneous return", diag.TypExtraneousReturn, func(t *testing.T, c *asm.Class) error {
			m := method(t, c, jtype.Void, "m")
			return m.Return(builder(t)(m.Int(1)))
		}},
		{"this in static", diag.AccNoThis, func(t *testing.T, c *asm.Class) error {
			_, err := method(t, c, jtype.Void, "m").This()
			return err
		}},
		{"unknown method", diag.TypArgumentMismatch, func(t *testing.T, c *asm.Class) error {
			m := method(t, c, jtype.Void, "m")
			_, err := m.CallStatic(jtype.Class("java/lang/Math"), "abs")
			return err
		}},
		{"boolean arithmetic", diag.TypOperandMismatch, func(t *testing.T, c *asm.Class) error {
			m := method(t, c, jtype.Void, "m")
			e := builder(t)
			_, err := m.Add(e(m.Bool(true)), e(m.Int(1)))
			return err
		}},
		{"non-boolean condition", diag.TypNotBoolean, func(t *testing.T, c *asm.Class) error {
			m := method(t, c, jtype.Void, "m")
			return m.If(builder(t)(m.Int(1)))
		}},
		{"throw non-throwable", diag.TypNotThrowable, func(t *testing.T, c *asm.Class) error {
			m := method(t, c, jtype.Void, "m")
			return m.Throw(builder(t)(m.Str("boom")))
		}},
		{"method left open", diag.AsmMethodOpen, func(t *testing.T, c *asm.Class) error {
			method(t, c, jtype.Void, "m")
			_, err := c.Bytes()
			return err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newClass(t, "demo/Errors", asm.Options{})
			err := tc.run(t, c)
			wantCode(t, err, tc.code)
			if c.Err() == nil {
				t.Fatalf("failure did not poison the class")
			}
		})
	}
}

func TestSlotLimit(t *testing.T) {
	c := newClass(t, "demo/Slots", asm.Options{MaxLocals: 3})
	m := method(t, c, jtype.Void, "m")
	local(t, m, jtype.Int, "a")
	local(t, m, jtype.Int, "b")
	_, err := m.Declare(jtype.Long, "c")
	wantCode(t, err, diag.SynTooManyLocals)
	if got := m.MaxLocals(); got != 2 {
		t.Fatalf("failed declaration allocated slots: MaxLocals = %d", got)
	}
}

func TestPromotion(t *testing.T) {
	cases := []struct {
		a, b, want jtype.Type
	}{
		{jtype.Byte, jtype.Byte, jtype.Int},
		{jtype.Short, jtype.Char, jtype.Int},
		{jtype.Int, jtype.Long, jtype.Long},
		{jtype.Long, jtype.Float, jtype.Float},
		{jtype.Float, jtype.Double, jtype.Double},
		{jtype.Class("java/lang/Integer"), jtype.Int, jtype.Int},
	}
	for _, tc := range cases {
		c := newClass(t, "demo/Promote", asm.Options{})
		m := method(t, c, tc.want, "m", asm.P("a", tc.a), asm.P("b", tc.b))
		e := builder(t)
		sum := e(m.Add(e(m.Get(m.Arg("a"))), e(m.Get(m.Arg("b")))))
		if sum.Type() != tc.want {
			t.Errorf("%s + %s = %s, want %s", tc.a, tc.b, sum.Type(), tc.want)
		}
		ok(t, m.Return(sum))
		ok(t, m.End())
		finish(t, c)
	}
}

func TestStringConcatenation(t *testing.T) {
	c := newClass(t, "demo/Concat", asm.Options{})
	m := method(t, c, jtype.String, "label", asm.P("n", jtype.Int))
	e := builder(t)
	ok(t, m.Return(e(m.Add(e(m.Str("n=")), e(m.Get(m.Arg("n")))))))
	ok(t, m.End())

	cf := finish(t, c)
	wantOps(t, codeOf(t, cf, "label", "(I)Ljava/lang/String;"),
		classfile.OpNew, classfile.OpDup, classfile.OpInvokespecial,
		classfile.OpLdc, classfile.OpInvokevirtual,
		classfile.OpIload0, classfile.OpInvokevirtual,
		classfile.OpInvokevirtual, classfile.OpAreturn)
	sb := "java/lang/StringBuilder"
	if testkit.CountRefs(cf, classfile.TagMethodref, sb, "append", "(I)Ljava/lang/StringBuilder;") != 1 {
		t.Fatalf("int append overload not referenced")
	}
}

func TestArrayElementOpcodes(t *testing.T) {
	cases := []struct {
		elem        jtype.Type
		load, store classfile.Opcode
		ret         classfile.Opcode
		arg         classfile.Opcode
	}{
		{jtype.Boolean, classfile.OpBaload, classfile.OpBastore, classfile.OpIreturn, classfile.OpIload0 + 1},
		{jtype.Byte, classfile.OpBaload, classfile.OpBastore, classfile.OpIreturn, classfile.OpIload0 + 1},
		{jtype.Char, classfile.OpCaload, classfile.OpCastore, classfile.OpIreturn, classfile.OpIload0 + 1},
		{jtype.Short, classfile.OpSaload, classfile.OpSastore, classfile.OpIreturn, classfile.OpIload0 + 1},
		{jtype.Int, classfile.OpIaload, classfile.OpIastore, classfile.OpIreturn, classfile.OpIload0 + 1},
		{jtype.Long, classfile.OpLaload, classfile.OpLastore, classfile.OpLreturn, classfile.OpLload0 + 1},
		{jtype.Float, classfile.OpFaload, classfile.OpFastore, classfile.OpFreturn, classfile.OpFload0 + 1},
		{jtype.Double, classfile.OpDaload, classfile.OpDastore, classfile.OpDreturn, classfile.OpDload0 + 1},
		{jtype.String, classfile.OpAaload, classfile.OpAastore, classfile.OpAreturn, classfile.OpAload0 + 1},
	}
	for _, tc := range cases {
		t.Run(tc.elem.String(), func(t *testing.T) {
			c := newClass(t, "demo/Arrays", asm.Options{})
			e := builder(t)
			arr := jtype.ArrayOf(tc.elem)

			get := method(t, c, tc.elem, "get", asm.P("a", arr))
			ok(t, get.Return(e(get.Index(e(get.Get(get.Arg("a"))), e(get.Int(0))))))
			ok(t, get.End())

			set := method(t, c, jtype.Void, "set", asm.P("a", arr), asm.P("v", tc.elem))
			ok(t, set.SetIndex(e(set.Get(set.Arg("a"))), e(set.Int(0)), e(set.Get(set.Arg("v")))))
			ok(t, set.End())

			mk := method(t, c, arr, "make")
			ok(t, mk.Return(e(mk.NewArray(tc.elem, e(mk.Int(3))))))
			ok(t, mk.End())

			cf := finish(t, c)
			wantOps(t, codeOf(t, cf, "get", jtype.MethodDescriptor(tc.elem, arr)),
				classfile.OpAload0, classfile.OpIconst0, tc.load, tc.ret)
			wantOps(t, codeOf(t, cf, "set", jtype.MethodDescriptor(jtype.Void, arr, tc.elem)),
				classfile.OpAload0, classfile.OpIconst0, tc.arg, tc.store, classfile.OpReturn)
			mkOps := insns(t, codeOf(t, cf, "make", jtype.MethodDescriptor(arr)))
			if tc.elem.IsPrimitive() && mkOps[1].Op != classfile.OpNewarray {
				t.Fatalf("make uses %#x, want newarray", byte(mkOps[1].Op))
			}
			if !tc.elem.IsPrimitive() && mkOps[1].Op != classfile.OpAnewarray {
				t.Fatalf("make uses %#x, want anewarray", byte(mkOps[1].Op))
			}
		})
	}
}

func TestNewarrayTypeCodes(t *testing.T) {
	codes := map[jtype.Type]int{
		jtype.Boolean: 4, jtype.Char: 5, jtype.Float: 6, jtype.Double: 7,
		jtype.Byte: 8, jtype.Short: 9, jtype.Int: 10, jtype.Long: 11,
	}
	for elem, want := range codes {
		c := newClass(t, "demo/NewArray", asm.Options{})
		e := builder(t)
		m := method(t, c, jtype.ArrayOf(elem), "make")
		ok(t, m.Return(e(m.NewArray(elem, e(m.Int(1))))))
		ok(t, m.End())
		ins := insns(t, codeOf(t, finish(t, c), "make", jtype.MethodDescriptor(jtype.ArrayOf(elem))))
		if ins[1].Index != want {
			t.Errorf("newarray %s atype = %d, want %d", elem, ins[1].Index, want)
		}
	}
}

func TestTryCatch(t *testing.T) {
	c := newClass(t, "demo/Guard", asm.Options{})
	m := method(t, c, jtype.Void, "run")
	e := builder(t)
	out := func() *asm.Expr { return e(m.Static(system, "out")) }

	ok(t, m.Try())
	ok(t, m.Do(e(m.Call(out(), "println", e(m.Str("body"))))))
	_, err := m.Catch(jtype.Class("java/lang/RuntimeException"), "ex")
	ok(t, err)
	ok(t, m.End())
	ok(t, m.End())

	cf := finish(t, c)
	code := codeOf(t, cf, "run", "()V")
	if len(code.Handlers) != 1 {
		t.Fatalf("handlers = %+v", code.Handlers)
	}
	h := code.Handlers[0]
	name, err := cf.ClassName(h.CatchType)
	ok(t, err)
	if name != "java/lang/RuntimeException" || h.Start != 0 {
		t.Fatalf("handler = %+v catching %s", h, name)
	}
	wantOps(t, code,
		classfile.OpGetstatic, classfile.OpLdc, classfile.OpInvokevirtual, classfile.OpGoto,
		classfile.OpAstore0, classfile.OpReturn)
}

func TestCatchOverlap(t *testing.T) {
	c := newClass(t, "demo/Overlap", asm.Options{})
	m := method(t, c, jtype.Void, "run")
	ok(t, m.Try())
	_, err := m.Catch(jtype.Class("java/lang/Exception"), "a")
	ok(t, err)
	_, err = m.Catch(jtype.Class("java/lang/IllegalStateException"), "b")
	wantCode(t, err, diag.SynOverlappingCatch)
}

func TestTryCatchDefiniteAssignment(t *testing.T) {
	build := func(inCatch bool) error {
		c := newClass(t, "demo/Recover", asm.Options{})
		m := method(t, c, jtype.Int, "parse", asm.P("s", jtype.String))
		e := builder(t)
		x := local(t, m, jtype.Int, "x")
		ok(t, m.Try())
		ok(t, m.Assign(x, e(m.Call(e(m.Get(m.Arg("s"))), "length"))))
		_, err := m.Catch(jtype.Class("java/lang/RuntimeException"), "ex")
		ok(t, err)
		if inCatch {
			ok(t, m.Assign(x, e(m.Int(-1))))
		}
		ok(t, m.End())
		v, err := m.Get(x)
		if err != nil {
			return err
		}
		ok(t, m.Return(v))
		ok(t, m.End())
		cf := finish(t, c)
		if code := codeOf(t, cf, "parse", "(Ljava/lang/String;)I"); len(code.Handlers) != 1 {
			t.Fatalf("handlers = %+v", code.Handlers)
		}
		return nil
	}
	if err := build(true); err != nil {
		t.Fatalf("assigned in both arms: %v", err)
	}
	wantCode(t, build(false), diag.AccUnassignedLocal)
}

func TestForEachWidensAndContinues(t *testing.T) {
	c := newClass(t, "demo/Wide", asm.Options{})
	m := method(t, c, jtype.Long, "sumOdd", asm.P("xs", jtype.ArrayOf(jtype.Int)))
	e := builder(t)
	total := local(t, m, jtype.Long, "total")
	ok(t, m.Assign(total, e(m.Long(0))))
	v, err := m.ForEach(jtype.Long, "v", e(m.Get(m.Arg("xs"))))
	ok(t, err)
	if v.Type() != jtype.Long {
		t.Fatalf("loop variable type = %s", v.Type())
	}
	ok(t, m.If(e(m.Eq(e(m.Rem(e(m.Get(v)), e(m.Long(2)))), e(m.Long(0))))))
	ok(t, m.Continue())
	ok(t, m.End())
	ok(t, m.Assign(total, e(m.Add(e(m.Get(total)), e(m.Get(v))))))
	ok(t, m.End())
	ok(t, m.Return(e(m.Get(total))))
	ok(t, m.End())

	code := codeOf(t, finish(t, c), "sumOdd", "([I)J")
	var sawI2l bool
	for _, in := range insns(t, code) {
		sawI2l = sawI2l || in.Op == classfile.OpI2l
	}
	if !sawI2l {
		t.Fatalf("int elements are not widened to long")
	}
}

func TestDanglingNodeReportedAtScopeEnd(t *testing.T) {
	c := newClass(t, "demo/Leak", asm.Options{})
	m := method(t, c, jtype.Void, "m", asm.P("flag", jtype.Boolean))
	e := builder(t)
	ok(t, m.If(e(m.Get(m.Arg("flag")))))
	e(m.Int(1))
	wantCode(t, m.End(), diag.SynDanglingExpr)
}

func TestForEach(t *testing.T) {
	c := newClass(t, "demo/Each", asm.Options{})
	e := builder(t)

	sum := method(t, c, jtype.Int, "sum", asm.P("xs", jtype.ArrayOf(jtype.Int)))
	total := local(t, sum, jtype.Int, "total")
	ok(t, sum.Assign(total, e(sum.Int(0))))
	v, err := sum.ForEach(jtype.Int, "v", e(sum.Get(sum.Arg("xs"))))
	ok(t, err)
	ok(t, sum.Assign(total, e(sum.Add(e(sum.Get(total)), e(sum.Get(v))))))
	ok(t, sum.End())
	ok(t, sum.Return(e(sum.Get(total))))
	ok(t, sum.End())

	show := method(t, c, jtype.Void, "show", asm.P("items", jtype.Class("java/util/List")))
	item, err := show.ForEach(jtype.String, "s", e(show.Get(show.Arg("items"))))
	ok(t, err)
	ok(t, show.Do(e(show.Call(e(show.Static(system, "out")), "println", e(show.Get(item))))))
	ok(t, show.End())
	ok(t, show.End())

	cf := finish(t, c)
	if testkit.CountRefs(cf, classfile.TagInterfaceMethodref, "java/util/Iterator", "hasNext", "()Z") != 1 {
		t.Fatalf("iterable loop does not call hasNext")
	}
	code := codeOf(t, cf, "sum", "([I)I")
	var sawIinc bool
	for _, in := range insns(t, code) {
		sawIinc = sawIinc || in.Op == classfile.OpIinc
	}
	if !sawIinc {
		t.Fatalf("array loop never increments its index")
	}
}

func TestConstructorPrefix(t *testing.T) {
	c := newClass(t, "demo/Counter", asm.Options{})
	f, err := c.AddField(classfile.AccPrivate, jtype.Int, "count")
	ok(t, err)
	ok(t, f.Init(5))
	ctor, err := c.Constructor(classfile.AccPublic)
	ok(t, err)
	ok(t, ctor.End())

	cf := finish(t, c)
	code := codeOf(t, cf, "<init>", "()V")
	wantOps(t, code,
		classfile.OpAload0, classfile.OpInvokespecial,
		classfile.OpAload0, classfile.OpIconst0+5, classfile.OpPutfield,
		classfile.OpReturn)
	ins := insns(t, code)
	owner, name, desc, err := cf.MemberRef(uint16(ins[1].Index))
	ok(t, err)
	if owner != "java/lang/Object" || name != "<init>" || desc != "()V" {
		t.Fatalf("super call = %s.%s%s", owner, name, desc)
	}
}

func TestExplicitSuperConstructor(t *testing.T) {
	c, err := asm.NewClass(classfile.AccPublic, "demo/Failure", "java/lang/RuntimeException", nil, asm.Options{})
	ok(t, err)
	ctor, err := c.Constructor(classfile.AccPublic, asm.P("msg", jtype.String))
	ok(t, err)
	e := builder(t)
	ok(t, ctor.SuperConstructor(e(ctor.Get(ctor.Arg("msg")))))
	ok(t, ctor.End())

	other, err := c.Constructor(classfile.AccPublic)
	ok(t, err)
	ok(t, other.Do(e(other.Call(e(other.This()), "hashCode"))))
	wantCode(t, other.SuperConstructor(), diag.SynMisplacedSuperCall)
}

func TestStaticFieldInitializers(t *testing.T) {
	c := newClass(t, "demo/Consts", asm.Options{})
	limit, err := c.AddField(pubStatic|classfile.AccFinal, jtype.Int, "LIMIT")
	ok(t, err)
	ok(t, limit.Init(70000))
	name, err := c.AddField(pubStatic|classfile.AccFinal, jtype.String, "NAME")
	ok(t, err)
	ok(t, name.Init("consts"))
	hits, err := c.AddField(pubStatic, jtype.Int, "hits")
	ok(t, err)
	ok(t, hits.Init(9))

	cf := finish(t, c)
	cv := cf.Field("LIMIT").Attr(classfile.AttrConstantValue)
	if len(cv) != 2 {
		t.Fatalf("LIMIT has no ConstantValue")
	}
	if entry := cf.Pool[int(cv[0])<<8|int(cv[1])]; entry.Tag != classfile.TagInteger || entry.Int != 70000 {
		t.Fatalf("LIMIT constant = %+v", entry)
	}
	if cf.Field("NAME").Attr(classfile.AttrConstantValue) == nil {
		t.Fatalf("NAME has no ConstantValue")
	}
	if cf.Field("hits").Attr(classfile.AttrConstantValue) != nil {
		t.Fatalf("non-final static must not carry ConstantValue")
	}
	wantOps(t, codeOf(t, cf, "<clinit>", "()V"),
		classfile.OpBipush, classfile.OpPutstatic, classfile.OpReturn)
}

func TestMethodrefInternedOnce(t *testing.T) {
	c := newClass(t, "demo/Twice", asm.Options{})
	e := builder(t)
	desc := "(Ljava/lang/String;)V"
	first, err := c.Pool().Methodref(printStream, "println", desc)
	ok(t, err)
	second, err := c.Pool().Methodref(printStream, "println", desc)
	ok(t, err)
	if first != second {
		t.Fatalf("interning twice gave %d and %d", first, second)
	}
	for _, name := range []string{"a", "b"} {
		m := method(t, c, jtype.Void, name)
		for range 2 {
			ok(t, m.Do(e(m.Call(e(m.Static(system, "out")), "println", e(m.Str(name))))))
		}
		ok(t, m.End())
	}
	cf := finish(t, c)
	if n := testkit.CountRefs(cf, classfile.TagMethodref, printStream, "println", desc); n != 1 {
		t.Fatalf("pool holds %d println entries", n)
	}
}

func TestAbstractMembersMustBeImplemented(t *testing.T) {
	c, err := asm.NewClass(classfile.AccPublic, "demo/Task", "", []string{"java/lang/Runnable"}, asm.Options{})
	ok(t, err)
	_, err = c.Bytes()
	wantCode(t, err, diag.AsmAbstractNotImplemented)

	c, err = asm.NewClass(classfile.AccPublic, "demo/Task", "", []string{"java/lang/Runnable"}, asm.Options{})
	ok(t, err)
	run, err := c.Method(classfile.AccPublic, jtype.Void, "run")
	ok(t, err)
	ok(t, run.End())
	finish(t, c)
}

func TestFinalizedClassRejectsChanges(t *testing.T) {
	c := newClass(t, "demo/Done", asm.Options{})
	first, err := c.Bytes()
	ok(t, err)
	second, err := c.Bytes()
	ok(t, err)
	if !bytes.Equal(first, second) {
		t.Fatalf("Bytes is not stable")
	}
	_, err = c.AddField(classfile.AccPublic, jtype.Int, "x")
	wantCode(t, err, diag.AsmFinalized)
}

func TestDebugTables(t *testing.T) {
	c := newClass(t, "demo/Debug", asm.Options{Debug: true})
	m := method(t, c, jtype.Int, "copy", asm.P("n", jtype.Int))
	e := builder(t)
	y := local(t, m, jtype.Int, "y")
	ok(t, m.Assign(y, e(m.Get(m.Arg("n")))))
	ok(t, m.Return(e(m.Get(y))))
	ok(t, m.End())

	cf := finish(t, c)
	if src := cf.Attr(classfile.AttrSourceFile); len(src) != 2 {
		t.Fatalf("missing SourceFile")
	}
	code := codeOf(t, cf, "copy", "(I)I")
	lines := code.Lines()
	if len(lines) != 2 || lines[0] != (testkit.LineEntry{PC: 0, Line: 1}) || lines[1] != (testkit.LineEntry{PC: 2, Line: 2}) {
		t.Fatalf("lines = %+v", lines)
	}
	vars, err := cf.Locals(code)
	ok(t, err)
	names := map[string]int{}
	for _, v := range vars {
		names[v.Name] = v.Slot
	}
	if names["n"] != 0 || names["y"] != 1 || len(vars) != 2 {
		t.Fatalf("locals = %+v", vars)
	}
}

func TestAnnotations(t *testing.T) {
	c := newClass(t, "demo/Tagged", asm.Options{})
	ok(t, c.Annotate(asm.Annotation{
		Type:    jtype.Class("demo/Marker"),
		Visible: true,
		Elements: []asm.Element{
			{Name: "value", Value: "hello"},
			{Name: "count", Value: int32(3)},
			{Name: "kinds", Value: []any{jtype.String, jtype.Int}},
		},
	}))
	cf := finish(t, c)
	data := cf.Attr(classfile.AttrRuntimeVisibleAnnotations)
	if len(data) < 4 || data[0] != 0 || data[1] != 1 {
		t.Fatalf("annotation attribute = % x", data)
	}
	typ, err := cf.Utf8(uint16(data[2])<<8 | uint16(data[3]))
	ok(t, err)
	if typ != "Ldemo/Marker;" {
		t.Fatalf("annotation type = %s", typ)
	}
}

func TestRoundTripOnJVM(t *testing.T) {
	c := newClass(t, "demo/Answer", asm.Options{})
	e := builder(t)
	answer := method(t, c, jtype.Int, "answer")
	ok(t, answer.Return(e(answer.Int(42))))
	ok(t, answer.End())

	main := method(t, c, jtype.Void, "main", asm.P("args", jtype.ArrayOf(jtype.String)))
	ok(t, main.Do(e(main.Call(e(main.Static(system, "out")), "println", e(main.CallStatic(c.Type(), "answer"))))))
	ok(t, main.End())

	data, err := c.Bytes()
	ok(t, err)
	out := testkit.RunJava(t, map[string][]byte{"demo/Answer": data}, "demo.Answer")
	if strings.TrimSpace(out) != "42" {
		t.Fatalf("answer() printed %q", out)
	}
}

// scenarios builds one class whose main prints the result of every
// control shape the assembler supports, one per line.
func scenarios(t *testing.T) []byte {
	t.Helper()
	c := newClass(t, "demo/Shapes", asm.Options{})
	e := builder(t)

	pick := method(t, c, jtype.Int, "pick")
	x := local(t, pick, jtype.Int, "x")
	ok(t, pick.If(e(pick.Bool(true))))
	ok(t, pick.Assign(x, e(pick.Int(3))))
	ok(t, pick.Else())
	ok(t, pick.Assign(x, e(pick.Int(2))))
	ok(t, pick.End())
	ok(t, pick.Return(e(pick.Get(x))))
	ok(t, pick.End())

	count := method(t, c, jtype.Int, "count")
	n := local(t, count, jtype.Int, "x")
	ok(t, count.Assign(n, e(count.Int(0))))
	ok(t, count.While(e(count.Ne(e(count.Get(n)), e(count.Int(3))))))
	ok(t, count.Assign(n, e(count.Add(e(count.Get(n)), e(count.Int(1))))))
	ok(t, count.End())
	ok(t, count.Return(e(count.Get(n))))
	ok(t, count.End())

	guard := method(t, c, jtype.Int, "guard")
	r := local(t, guard, jtype.Int, "r")
	ok(t, guard.Try())
	ok(t, guard.Throw(e(guard.New(jtype.Class("java/lang/IllegalStateException"), e(guard.Str("boom"))))))
	_, err := guard.Catch(jtype.Class("java/lang/RuntimeException"), "ex")
	ok(t, err)
	ok(t, guard.Assign(r, e(guard.Int(7))))
	ok(t, guard.End())
	ok(t, guard.Return(e(guard.Get(r))))
	ok(t, guard.End())

	sum := method(t, c, jtype.Long, "sum")
	xs := local(t, sum, jtype.ArrayOf(jtype.Int), "xs")
	ok(t, sum.Assign(xs, e(sum.NewArray(jtype.Int, e(sum.Int(3))))))
	for i, v := range []int{4, 5, 6} {
		ok(t, sum.SetIndex(e(sum.Get(xs)), e(sum.Int(int32(i))), e(sum.Int(int32(v)))))
	}
	total := local(t, sum, jtype.Long, "total")
	ok(t, sum.Assign(total, e(sum.Long(0))))
	v, err := sum.ForEach(jtype.Long, "v", e(sum.Get(xs)))
	ok(t, err)
	ok(t, sum.Assign(total, e(sum.Add(e(sum.Get(total)), e(sum.Get(v))))))
	ok(t, sum.End())
	ok(t, sum.Return(e(sum.Get(total))))
	ok(t, sum.End())

	main := method(t, c, jtype.Void, "main", asm.P("args", jtype.ArrayOf(jtype.String)))
	for _, name := range []string{"pick", "count", "guard", "sum"} {
		ok(t, main.Do(e(main.Call(e(main.Static(system, "out")), "println", e(main.CallStatic(c.Type(), name))))))
	}
	ok(t, main.End())

	data, err := c.Bytes()
	ok(t, err)
	if _, err := testkit.CheckClass(data); err != nil {
		t.Fatalf("CheckClass: %v", err)
	}
	return data
}

func TestControlShapesOnJVM(t *testing.T) {
	data := scenarios(t)
	out := testkit.RunJava(t, map[string][]byte{"demo/Shapes": data}, "demo.Shapes")
	got := strings.Fields(out)
	want := []string{"3", "3", "7", "15"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("main printed %q, want %v", out, want)
	}
}
