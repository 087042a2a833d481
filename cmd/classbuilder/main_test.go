package main

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, src string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestFindConfigWalksUp(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, configName), "[output]\ndir = \"out\"\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	path, ok, err := findConfig(nested)
	if err != nil || !ok {
		t.Fatalf("findConfig: ok=%v err=%v", ok, err)
	}
	if path != filepath.Join(root, configName) {
		t.Fatalf("path = %s", path)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.toml")
	writeFile(t, good, `
[output]
dir = "classes"
render = true

[class]
major = 50
debug = true
max_locals = 32

[registry]
snapshot = "types.mp"

[build]
recipes = ["recipes"]
jobs = 2
`)
	cfg, err := loadConfig(good)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Output.Dir != "classes" || !cfg.Output.Render || cfg.Class.Major != 50 || !cfg.Class.Debug ||
		cfg.Class.MaxLocals != 32 || cfg.Registry.Snapshot != "types.mp" || cfg.Build.Jobs != 2 {
		t.Fatalf("cfg = %+v", cfg)
	}

	for name, src := range map[string]string{
		"unknown": "[output]\nfolder = \"x\"\n",
		"major":   "[class]\nmajor = 12\n",
		"locals":  "[class]\nmax_locals = -1\n",
		"syntax":  "[output\n",
	} {
		path := filepath.Join(dir, name+".toml")
		writeFile(t, path, src)
		if _, err := loadConfig(path); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestManifestResolve(t *testing.T) {
	m := &manifest{Path: "/proj/classbuilder.toml", Root: "/proj"}
	if got := m.resolve("out"); got != filepath.Join("/proj", "out") {
		t.Fatalf("resolve(out) = %s", got)
	}
	if got := m.resolve("/abs"); got != "/abs" {
		t.Fatalf("resolve(/abs) = %s", got)
	}
	if got := (&manifest{Root: "."}).resolve("out"); got != "out" {
		t.Fatalf("resolve without manifest = %s", got)
	}
}

func TestExpandRecipes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.yaml"), "")
	writeFile(t, filepath.Join(dir, "sub", "a.toml"), "")
	writeFile(t, filepath.Join(dir, "sub", "c.yml"), "")
	writeFile(t, filepath.Join(dir, "notes.txt"), "")
	writeFile(t, filepath.Join(dir, configName), "")
	writeFile(t, filepath.Join(dir, ".git", "x.toml"), "")

	got, err := expandRecipes([]string{dir, filepath.Join(dir, "b.yaml")})
	if err != nil {
		t.Fatalf("expandRecipes: %v", err)
	}
	want := []string{
		filepath.Join(dir, "b.yaml"),
		filepath.Join(dir, "sub", "a.toml"),
		filepath.Join(dir, "sub", "c.yml"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v\nwant %v", got, want)
	}
	if _, err := expandRecipes([]string{filepath.Join(dir, "missing.toml")}); err == nil {
		t.Fatalf("expected error for a missing recipe")
	}
}

func TestPrintTableAlignsWideRunes(t *testing.T) {
	var buf bytes.Buffer
	printTable(&buf, [][]string{{"CLASS", "BYTES"}, {"demo/点", "12"}, {"demo/Point", "345"}})
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	// "demo/点" is 7 columns wide, so it gets three spaces of padding plus the gap
	if lines[1] != "demo/点     12" || lines[2] != "demo/Point  345" {
		t.Fatalf("table:\n%s", buf.String())
	}
}

func TestReadUIMode(t *testing.T) {
	for in, want := range map[string]uiMode{"": uiModeAuto, "AUTO": uiModeAuto, "on": uiModeOn, " off ": uiModeOff} {
		got, err := readUIMode(in)
		if err != nil || got != want {
			t.Errorf("readUIMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := readUIMode("sometimes"); err == nil {
		t.Fatalf("expected error")
	}
	if shouldUseTUI(uiModeOff, 5) || !shouldUseTUI(uiModeOn, 1) {
		t.Fatalf("explicit ui modes ignored")
	}
}

func TestBuildCommand(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	writeFile(t, filepath.Join(src, "point.toml"), `
package = "demo"
[[class]]
name = "Point"
constructor = true
getters = true
  [[class.field]]
  name = "x"
  type = "int"
`)
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{"--color", "off", "build", "--ui", "off", "--render", "-o", out, src})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("build: %v\n%s", err, stderr.String())
	}
	if _, err := os.Stat(filepath.Join(out, "demo", "Point.class")); err != nil {
		t.Fatalf("class not written: %v", err)
	}
	if !strings.Contains(stdout.String(), "demo/Point") || !strings.Contains(stdout.String(), "1 class(es) from 1 recipe(s)") {
		t.Fatalf("stdout:\n%s", stdout.String())
	}
}
