package typeinfo

import (
	"bytes"
	"path/filepath"
	"sync"
	"testing"

	"classbuilder/internal/classfile"
	"classbuilder/internal/diag"
	"classbuilder/internal/jtype"
)

func TestBootstrapHierarchy(t *testing.T) {
	r := Bootstrap()
	cases := []struct {
		sub, sup string
		want     bool
	}{
		{"java/lang/Integer", "java/lang/Number", true},
		{"java/lang/Integer", "java/lang/Comparable", true},
		{"java/lang/RuntimeException", "java/lang/Throwable", true},
		{"java/util/ArrayList", "java/lang/Iterable", true},
		{"java/lang/String", "java/lang/Number", false},
		{"java/lang/Object", "java/lang/String", false},
	}
	for _, tc := range cases {
		if got := IsSubclass(r, tc.sub, tc.sup); got != tc.want {
			t.Errorf("IsSubclass(%s, %s) = %v, want %v", tc.sub, tc.sup, got, tc.want)
		}
	}
}

func TestAssignability(t *testing.T) {
	r := Bootstrap()
	intArr := jtype.ArrayOf(jtype.Int)
	strArr := jtype.ArrayOf(jtype.String)
	objArr := jtype.ArrayOf(jtype.Object)
	cases := []struct {
		from, to jtype.Type
		want     bool
	}{
		{jtype.Null, jtype.String, true},
		{jtype.String, jtype.Object, true},
		{intArr, jtype.Object, true},
		{intArr, jtype.Class("java/lang/Cloneable"), true},
		{strArr, objArr, true},
		{intArr, objArr, false},
		{jtype.Int, jtype.Long, false},
		{jtype.Object, jtype.String, false},
	}
	for _, tc := range cases {
		if got := IsAssignable(r, tc.from, tc.to); got != tc.want {
			t.Errorf("IsAssignable(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestFindMembers(t *testing.T) {
	r := Bootstrap()
	f, err := FindField(r, "java/lang/System", "out")
	if err != nil {
		t.Fatalf("FindField: %v", err)
	}
	if f.Descriptor() != "Ljava/io/PrintStream;" || !f.IsStatic() {
		t.Fatalf("System.out = %s static=%v", f.Descriptor(), f.IsStatic())
	}
	ms, err := FindMethods(r, "java/io/PrintStream", "println")
	if err != nil {
		t.Fatalf("FindMethods: %v", err)
	}
	if len(ms) != 9 {
		t.Fatalf("println overloads = %d, want 9", len(ms))
	}
	// inherited through the superclass chain
	if _, err := FindMethods(r, "java/lang/Integer", "hashCode"); err != nil {
		t.Fatalf("Integer.hashCode: %v", err)
	}
	_, err = FindMethods(r, "java/lang/String", "nope")
	if !diag.Is(err, diag.AccNoSuchMethod) {
		t.Fatalf("missing method error = %v", err)
	}
	_, err = FindField(r, "com/example/Missing", "x")
	if !diag.Is(err, diag.AccNoSuchClass) {
		t.Fatalf("missing class error = %v", err)
	}
}

func TestConstructorsNotInherited(t *testing.T) {
	r := Bootstrap()
	ms, err := FindMethods(r, "java/lang/RuntimeException", "<init>")
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range ms {
		if m.Owner != "java/lang/RuntimeException" {
			t.Fatalf("constructor from %s leaked", m.Owner)
		}
	}
}

func TestUnimplementedAbstract(t *testing.T) {
	r := Bootstrap()
	c, err := Define("com/example/Task", "java/lang/Object", classfile.AccPublic, []string{"java/lang/Runnable"})
	if err != nil {
		t.Fatal(err)
	}
	o := Overlay{Self: c, Base: r}
	missing, err := UnimplementedAbstract(o, c.Name)
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 1 || missing[0].Name != "run" {
		t.Fatalf("missing = %v", missing)
	}
	c.Methods = append(c.Methods, &Method{Owner: c.Name, Name: "run", Return: jtype.Void, Flags: classfile.AccPublic})
	missing, err = UnimplementedAbstract(o, c.Name)
	if err != nil || len(missing) != 0 {
		t.Fatalf("after run(): %v %v", missing, err)
	}
	if abs, _ := UnimplementedAbstract(r, "java/util/ArrayList"); len(abs) != 0 {
		t.Fatalf("ArrayList reported abstract %v", abs)
	}
}

func TestSessionConcurrentDefine(t *testing.T) {
	s := NewSession(Bootstrap())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := "com/example/C" + string(rune('A'+i))
			s.Define(&Class{Name: name, Super: "java/lang/Object", Flags: classfile.AccPublic})
			if _, ok := s.Class("java/lang/String"); !ok {
				t.Errorf("base lookup failed")
			}
		}(i)
	}
	wg.Wait()
	if n := len(s.Defined()); n != 8 {
		t.Fatalf("defined = %d", n)
	}
	if !IsSubclass(s, "com/example/CA", "java/lang/Object") {
		t.Fatalf("session class not visible")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	r := Bootstrap()
	for _, format := range []Format{FormatMsgpack, FormatCBOR} {
		var buf bytes.Buffer
		if err := Encode(&buf, r, format); err != nil {
			t.Fatalf("%s encode: %v", format, err)
		}
		back, err := Decode(&buf, format)
		if err != nil {
			t.Fatalf("%s decode: %v", format, err)
		}
		if back.Len() != r.Len() {
			t.Fatalf("%s: %d classes, want %d", format, back.Len(), r.Len())
		}
		sb, _ := back.Class("java/lang/StringBuilder")
		so, _ := r.Class("java/lang/StringBuilder")
		if len(sb.Methods) != len(so.Methods) || sb.Methods[2].Descriptor() != so.Methods[2].Descriptor() {
			t.Fatalf("%s: StringBuilder methods differ", format)
		}
	}
}

func TestSnapshotFile(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"jdk.mp", "jdk.cbor"} {
		path := filepath.Join(dir, name)
		if err := SaveFile(path, Bootstrap()); err != nil {
			t.Fatalf("SaveFile(%s): %v", name, err)
		}
		r, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile(%s): %v", name, err)
		}
		if _, ok := r.Class("java/util/Iterator"); !ok {
			t.Fatalf("%s: Iterator missing", name)
		}
	}
}
