package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/htreeio/hashtree/internal/hconfig"
	"github.com/htreeio/hashtree/internal/herrors"
	"github.com/htreeio/hashtree/internal/htypes"
)

func openTestEngine(t *testing.T, maxSizeBytes uint64) *HashTree {
	t.Helper()
	cfg := hconfig.DefaultConfig()
	cfg.Store.IndexPath = filepath.Join(t.TempDir(), "index.bolt")
	cfg.Store.MaxSizeBytes = maxSizeBytes
	h, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestPutGetRoundtrip(t *testing.T) {
	ctx := context.Background()
	h := openTestEngine(t, 0)

	data := []byte("hello from the engine facade")
	cid, err := h.Put(ctx, "alice", "note", htypes.PriorityOwn, data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := h.Get(ctx, cid)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("got %q, want %q", got, data)
	}
}

func TestPermalinkRoundtrip(t *testing.T) {
	ctx := context.Background()
	h := openTestEngine(t, 0)

	cid, err := h.Put(ctx, "alice", "note", htypes.PriorityOwn, []byte("permalink me"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	link, err := h.Permalink(cid)
	if err != nil {
		t.Fatalf("Permalink: %v", err)
	}
	back, err := h.ParsePermalink(link)
	if err != nil {
		t.Fatalf("ParsePermalink: %v", err)
	}
	if back.Hash != cid.Hash {
		t.Fatalf("permalink roundtrip hash mismatch")
	}
}

func TestPinSurvivesGC(t *testing.T) {
	ctx := context.Background()
	h := openTestEngine(t, 0)

	cid, err := h.Put(ctx, "alice", "note", htypes.PriorityOwn, []byte("pinned content"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := h.Pin(ctx, cid); err != nil {
		t.Fatalf("Pin: %v", err)
	}
	if _, err := h.GC(ctx); err != nil {
		t.Fatalf("GC: %v", err)
	}
	if _, err := h.Get(ctx, cid); err != nil {
		t.Fatalf("expected pinned content to survive GC: %v", err)
	}
}

func TestPutExceedsQuotaReturnsQuotaExceeded(t *testing.T) {
	ctx := context.Background()
	h := openTestEngine(t, 1024) // tiny quota, nothing evictable since it's the only tree

	data := make([]byte, 64*1024)
	for i := range data {
		data[i] = byte(i)
	}
	_, err := h.Put(ctx, "alice", "big", htypes.PriorityOwn, data)
	if !herrors.Is(err, herrors.QuotaExceeded) {
		t.Fatalf("expected QuotaExceeded, got %v", err)
	}
}

func TestDiffReportsReuse(t *testing.T) {
	ctx := context.Background()
	h := openTestEngine(t, 0)

	base := make([]byte, 512*1024)
	for i := range base {
		base[i] = byte(i)
	}
	oldCid, err := h.Put(ctx, "alice", "v1", htypes.PriorityOwn, base)
	if err != nil {
		t.Fatalf("Put v1: %v", err)
	}
	appended := append(append([]byte(nil), base...), []byte("more")...)
	newCid, err := h.Put(ctx, "alice", "v2", htypes.PriorityOwn, appended)
	if err != nil {
		t.Fatalf("Put v2: %v", err)
	}

	stats, err := h.Diff(ctx, oldCid, newCid)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if stats.ReusedBytes == 0 {
		t.Fatalf("expected nonzero reused bytes across an append, got %+v", stats)
	}
}

func TestChunkMetaRecordsOrderedChunkList(t *testing.T) {
	ctx := context.Background()
	h := openTestEngine(t, 0)

	data := make([]byte, 3*h.Config.Chunk.ChunkSize+17)
	for i := range data {
		data[i] = byte(i)
	}
	cid, err := h.Put(ctx, "alice", "multi", htypes.PriorityOwn, data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	meta, err := h.Index.GetChunkMeta(ctx, cid.Hash)
	if err != nil {
		t.Fatalf("GetChunkMeta: %v", err)
	}
	if len(meta.ChunkHashes) == 0 || len(meta.ChunkHashes) != len(meta.ChunkSizes) {
		t.Fatalf("expected populated, matching-length chunk lists, got %d hashes, %d sizes",
			len(meta.ChunkHashes), len(meta.ChunkSizes))
	}
	var total uint64
	for _, s := range meta.ChunkSizes {
		total += s
	}
	if total != meta.TotalSize {
		t.Fatalf("chunk sizes should sum to TotalSize: got %d, want %d", total, meta.TotalSize)
	}
}

func TestGetWithStrippedKeyReturnsInvalidContent(t *testing.T) {
	ctx := context.Background()
	h := openTestEngine(t, 0)
	h.Builder.Encrypt = true

	cid, err := h.Put(ctx, "alice", "secret", htypes.PriorityOwn, []byte("a secret note"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if cid.Key == nil {
		t.Fatalf("expected an encrypted root to carry a key")
	}

	stripped := cid
	stripped.Key = nil
	if _, err := h.Get(ctx, stripped); !herrors.Is(err, herrors.InvalidContent) {
		t.Fatalf("expected InvalidContent reading a key-stripped encrypted root, got %v", err)
	}
}

func TestPublishResolveViaEngine(t *testing.T) {
	ctx := context.Background()
	h := openTestEngine(t, 0)

	cid, err := h.Put(ctx, "alice", "note", htypes.PriorityOwn, []byte("published content"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := h.Publish(ctx, "alice/latest", cid); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	got, err := h.Resolve(ctx, "alice/latest")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Hash != cid.Hash {
		t.Fatalf("resolved hash mismatch")
	}
}
