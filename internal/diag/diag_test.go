package diag

import (
	"errors"
	"testing"
)

func TestCodeCategories(t *testing.T) {
	cases := map[Code]Category{
		AccUnassignedLocal: CatAccess,
		SynTooManyLocals:   CatSyntax,
		TypInvalidCast:     CatType,
		AsmMethodOpen:      CatAssembly,
		RecInvalid:         CatRecipe,
		UnknownCode:        CatUnknown,
	}
	for code, want := range cases {
		if got := code.Category(); got != want {
			t.Errorf("%s category = %s, want %s", code.ID(), got, want)
		}
	}
	if SynTooManyLocals.ID() != "SYN2008" {
		t.Fatalf("unexpected id %s", SynTooManyLocals.ID())
	}
}

func TestUnusableWrapsCause(t *testing.T) {
	first := Errorf(TypInvalidCast, "cannot cast").At("demo/A.m")
	wrapped := &Error{Code: AsmUnusable, Message: "assembler failed earlier", Cause: first}
	if !Is(wrapped, TypInvalidCast) || !Is(wrapped, AsmUnusable) {
		t.Fatalf("Is should see both codes")
	}
	if RootCode(wrapped) != TypInvalidCast {
		t.Fatalf("RootCode = %v", RootCode(wrapped))
	}
	var de *Error
	if !errors.As(wrapped, &de) || de.Code != AsmUnusable {
		t.Fatalf("errors.As should find the outer error")
	}
	if first.Error() != "TYP3002: demo/A.m: cannot cast" {
		t.Fatalf("Error() = %q", first.Error())
	}
}

func TestBagSortAndDedup(t *testing.T) {
	b := NewBag(10)
	b.AddError("b.toml", Errorf(RecInvalid, "x"))
	b.AddError("a.toml", Errorf(RecInvalid, "y"))
	b.AddError("a.toml", Errorf(RecInvalid, "y"))
	b.AddError("c.toml", errors.New("plain"))
	b.Dedup()
	b.Sort()
	items := b.Items()
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0].Source != "a.toml" || items[2].Code != UnknownCode {
		t.Fatalf("unexpected order: %+v", items)
	}
}

func TestBagLimit(t *testing.T) {
	b := NewBag(1)
	if !b.Add(Diagnostic{Code: RecInvalid}) {
		t.Fatalf("first add must succeed")
	}
	if b.Add(Diagnostic{Code: RecInvalid}) {
		t.Fatalf("limit not enforced")
	}
}
