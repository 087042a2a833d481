package testkit

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// RunJava writes classes (internal name to bytes) into a temporary class
// path, runs main with the local JVM and returns its standard output.
// The test is skipped when no java binary is on PATH.
func RunJava(t testing.TB, classes map[string][]byte, main string) string {
	t.Helper()
	java, err := exec.LookPath("java")
	if err != nil {
		t.Skip("java not installed")
	}
	dir := t.TempDir()
	for name, data := range classes {
		path := filepath.Join(dir, filepath.FromSlash(name)+".class")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, data, 0o600); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.Command(java, "-Xverify:all", "-cp", dir, main)
	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	if err := cmd.Run(); err != nil {
		t.Fatalf("java %s: %v\n%s", main, err, stderr.String())
	}
	return stdout.String()
}
