package diagfmt

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"classbuilder/internal/diag"
)

func sampleBag() *diag.Bag {
	bag := diag.NewBag(10)
	bag.AddError("recipes/shapes.toml", diag.Errorf(diag.AsmBadDeclaration, "cannot extend java/lang/String").At("demo/Circle"))
	bag.AddError("recipes/a.yaml", diag.Errorf(diag.RecDecode, "failed to parse YAML"))
	bag.Sort()
	return bag
}

func TestPrettyPlain(t *testing.T) {
	var buf bytes.Buffer
	if err := Pretty(&buf, sampleBag(), PrettyOpts{PathMode: PathModeBasename, ShowTitle: true}); err != nil {
		t.Fatalf("Pretty: %v", err)
	}
	want := "a.yaml: error REC5002: failed to parse YAML (Recipe decode failed)\n" +
		"shapes.toml: error ASM4005 [demo/Circle]: cannot extend java/lang/String (Bad declaration)\n"
	if buf.String() != want {
		t.Fatalf("Pretty =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestPrettyColor(t *testing.T) {
	var buf bytes.Buffer
	if err := Pretty(&buf, sampleBag(), PrettyOpts{Color: true}); err != nil {
		t.Fatalf("Pretty: %v", err)
	}
	if !strings.Contains(buf.String(), "\x1b[") {
		t.Fatalf("expected ANSI sequences: %q", buf.String())
	}
}

func TestJSONTruncates(t *testing.T) {
	var buf bytes.Buffer
	if err := JSON(&buf, sampleBag(), JSONOpts{Max: 1}); err != nil {
		t.Fatalf("JSON: %v", err)
	}
	var out DiagnosticsOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Count != 2 || len(out.Diagnostics) != 1 || !out.Truncated {
		t.Fatalf("output = %+v", out)
	}
	d := out.Diagnostics[0]
	if d.Code != "REC5002" || d.Category != "recipe" || d.Source != "recipes/a.yaml" {
		t.Fatalf("first diagnostic = %+v", d)
	}
}

func TestParsePathMode(t *testing.T) {
	for in, want := range map[string]PathMode{"": PathModeAuto, "Relative": PathModeRelative, "basename": PathModeBasename} {
		got, ok := ParsePathMode(in)
		if !ok || got != want {
			t.Errorf("ParsePathMode(%q) = %v, %v", in, got, ok)
		}
	}
	if _, ok := ParsePathMode("weird"); ok {
		t.Errorf("weird should be rejected")
	}
}
