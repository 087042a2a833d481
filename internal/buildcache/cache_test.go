package buildcache

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPutGet(t *testing.T) {
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	key := Key([]byte("recipe"), "major=49")
	if _, ok, err := c.Get(key); ok || err != nil {
		t.Fatalf("empty cache: ok=%v err=%v", ok, err)
	}
	in := &Entry{Recipe: "a.toml", Classes: []CachedClass{{Name: "demo/A", Data: []byte{0xCA, 0xFE}, Rendered: "class A {}"}}}
	if err := c.Put(key, in); err != nil {
		t.Fatalf("Put: %v", err)
	}
	out, ok, err := c.Get(key)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if out.Recipe != "a.toml" || len(out.Classes) != 1 || out.Classes[0].Name != "demo/A" ||
		string(out.Classes[0].Data) != "\xCA\xFE" || out.Classes[0].Rendered != "class A {}" {
		t.Fatalf("entry = %+v", out)
	}
	if out.Schema != schemaVersion || out.Created.IsZero() {
		t.Fatalf("schema/created not stamped: %+v", out)
	}
	if in.Schema != 0 {
		t.Fatalf("Put modified its argument")
	}
}

func TestKeySeparatesParts(t *testing.T) {
	if Key([]byte("ab"), "c") == Key([]byte("a"), "bc") {
		t.Fatalf("length prefix missing")
	}
	if Key([]byte("x"), "debug=true") == Key([]byte("x"), "debug=false") {
		t.Fatalf("fingerprint ignored")
	}
	if Key([]byte("x"), "f") != Key([]byte("x"), "f") {
		t.Fatalf("key not deterministic")
	}
}

func TestCorruptEntryIsError(t *testing.T) {
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	key := Key([]byte("r"))
	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte{0xC1}, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := c.Get(key); ok || err == nil {
		t.Fatalf("corrupt entry: ok=%v err=%v", ok, err)
	}
}

func TestDropAll(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatal(err)
	}
	key := Key([]byte("r"))
	if err := c.Put(key, &Entry{Recipe: "r.toml"}); err != nil {
		t.Fatal(err)
	}
	if err := c.DropAll(); err != nil {
		t.Fatalf("DropAll: %v", err)
	}
	if _, ok, _ := c.Get(key); ok {
		t.Fatalf("entry survived DropAll")
	}
	if err := c.Put(key, &Entry{}); err != nil {
		t.Fatalf("cache unusable after DropAll: %v", err)
	}
}

func TestNilCache(t *testing.T) {
	var c *Cache
	if err := c.Put(Digest{}, &Entry{}); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := c.Get(Digest{}); ok || err != nil {
		t.Fatalf("nil cache hit: %v %v", ok, err)
	}
}

func TestOpenUserHonoursXDG(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", base)
	c, err := OpenUser("classbuilder")
	if err != nil {
		t.Fatal(err)
	}
	if c.Dir() != filepath.Join(base, "classbuilder") {
		t.Fatalf("dir = %s", c.Dir())
	}
}
