package hconfig

import (
	"os"
	"testing"
)

func TestDefaultConfigChunkerParams(t *testing.T) {
	cfg := DefaultConfig()
	p := cfg.ChunkerParams()
	if p.ChunkSize <= 0 || p.MaxLinks <= 0 {
		t.Fatalf("expected positive chunk defaults, got %+v", p)
	}
}

func TestMergeRepoOverridesGlobal(t *testing.T) {
	dst := DefaultConfig()
	dst.Store.MaxSizeBytes = 111
	src := &Config{Store: StoreConfig{MaxSizeBytes: 222}}
	merge(dst, src)
	if dst.Store.MaxSizeBytes != 222 {
		t.Fatalf("expected repo value to win, got %d", dst.Store.MaxSizeBytes)
	}
}

func TestMergeLeavesZeroFieldsAlone(t *testing.T) {
	dst := DefaultConfig()
	dst.Chunk.ChunkSize = 999
	src := &Config{}
	merge(dst, src)
	if dst.Chunk.ChunkSize != 999 {
		t.Fatalf("expected zero-valued src field to leave dst untouched, got %d", dst.Chunk.ChunkSize)
	}
}

func TestSetValueRepoPersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	oldwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(oldwd) })

	cfg := DefaultConfig()
	if err := cfg.SetValue("chunk.max_links", "42", false); err != nil {
		t.Fatalf("SetValue: %v", err)
	}

	reloaded, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.Chunk.MaxLinks != 42 {
		t.Fatalf("expected reloaded max_links=42, got %d", reloaded.Chunk.MaxLinks)
	}
}

func TestGetValueUnknownKey(t *testing.T) {
	cfg := DefaultConfig()
	if _, err := cfg.GetValue("nope.nope"); err == nil {
		t.Fatalf("expected error for unknown section")
	}
}

func TestGetValueKnownKeys(t *testing.T) {
	cfg := DefaultConfig()
	v, err := cfg.GetValue("crypto.encrypt_by_default")
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if v != "false" {
		t.Fatalf("expected false, got %s", v)
	}
}
