package dryrun

import (
	"path/filepath"
	"testing"
)

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(s.All()) != 0 {
		t.Error("expected empty store for missing file")
	}
}

func TestSetGetAll(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatal(err)
	}
	s.Set("hash1", 4096)
	v, ok := s.Get("hash1")
	if !ok || v != 4096 {
		t.Fatalf("expected 4096, got %d ok=%v", v, ok)
	}
	if _, ok := s.Get("missing"); ok {
		t.Error("expected miss for unknown hash")
	}
	all := s.All()
	if len(all) != 1 || all["hash1"] != 4096 {
		t.Errorf("unexpected All() result: %+v", all)
	}
}

func TestFlushPersistsAcrossLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.json")
	s, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	s.Set("hashA", 1024)
	s.Set("hashB", -1)
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	all := reloaded.All()
	if all["hashA"] != 1024 || all["hashB"] != -1 {
		t.Fatalf("unexpected reloaded state: %+v", all)
	}
}
