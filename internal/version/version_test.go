package version

import (
	"testing"

	"github.com/fatih/color"
)

func TestVersion_DefaultValues(t *testing.T) {
	if Version == "" {
		t.Error("Version should have a default value")
	}
}

func TestPretty_PlainWhenColorDisabled(t *testing.T) {
	orig, origNoColor := Version, color.NoColor
	defer func() { Version, color.NoColor = orig, origNoColor }()
	color.NoColor = true

	cases := map[string]string{
		"0.1.0-dev":            "0.1.0-dev",
		"1.2.3":                "1.2.3",
		"1.2.3-rc.1+build.123": "1.2.3-rc.1+build.123",
		"nightly":              "nightly",
		"":                     "dev",
	}
	for in, want := range cases {
		Version = in
		if got := Pretty(); got != want {
			t.Errorf("Pretty(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPretty_ColorsCoreOnly(t *testing.T) {
	orig, origNoColor := Version, color.NoColor
	defer func() { Version, color.NoColor = orig, origNoColor }()
	color.NoColor = false
	Version = "2.0.0-alpha"

	got := Pretty()
	if got == Version {
		t.Fatalf("expected escape sequences in %q", got)
	}
	if got[len(got)-len("-alpha"):] != "-alpha" {
		t.Fatalf("suffix should stay plain: %q", got)
	}
}
