package priority

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/htreeio/hashtree/internal/boltstore"
	"github.com/htreeio/hashtree/internal/chunker"
	"github.com/htreeio/hashtree/internal/htypes"
)

func openTestIndex(t *testing.T) *boltstore.Index {
	t.Helper()
	idx, err := boltstore.Open(filepath.Join(t.TempDir(), "index.bolt"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func indexTree(t *testing.T, ctx context.Context, idx *boltstore.Index, owner, name string, prio htypes.Priority, syncedAt int64, content []byte) htypes.Cid {
	t.Helper()
	b := &chunker.Builder{Store: idx, Params: chunker.DefaultParams()}
	result, err := b.BuildBytes(ctx, content)
	if err != nil {
		t.Fatalf("BuildBytes: %v", err)
	}
	rec := htypes.IndexedTree{
		Owner: owner, Name: name, Priority: prio,
		TotalSize: uint64(len(content)), SyncedAt: syncedAt,
	}
	if err := idx.PutIndexedTree(ctx, result.Cid.Hash, rec); err != nil {
		t.Fatalf("PutIndexedTree: %v", err)
	}
	return result.Cid
}

func TestEvictIfNeededNoopUnderQuota(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)
	indexTree(t, ctx, idx, "alice", "t1", htypes.PriorityOwn, 1, []byte("small"))

	m := New(idx, 1<<20)
	res, err := m.EvictIfNeeded(ctx)
	if err != nil {
		t.Fatalf("EvictIfNeeded: %v", err)
	}
	if res.TreesEvicted != 0 {
		t.Fatalf("expected no eviction under quota, got %+v", res)
	}
}

func TestEvictIfNeededReleasesLowestPriorityFirst(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)

	ownData := make([]byte, 600*1024)
	otherData := make([]byte, 600*1024)
	for i := range ownData {
		ownData[i] = byte(i)
	}
	for i := range otherData {
		otherData[i] = byte(255 - i)
	}

	ownCid := indexTree(t, ctx, idx, "alice", "mine", htypes.PriorityOwn, 2, ownData)
	indexTree(t, ctx, idx, "bob", "theirs", htypes.PriorityOther, 1, otherData)

	m := New(idx, 1<<20) // 1 MiB quota, tracked = 1.2 MiB
	res, err := m.EvictIfNeeded(ctx)
	if err != nil {
		t.Fatalf("EvictIfNeeded: %v", err)
	}
	if res.TreesEvicted != 1 {
		t.Fatalf("expected exactly 1 tree evicted, got %+v", res)
	}

	has, err := idx.Has(ctx, ownCid.Hash)
	if err != nil || !has {
		t.Fatalf("expected OWN-priority tree to survive eviction: has=%v err=%v", has, err)
	}

	totals, err := m.StorageByPriority(ctx)
	if err != nil {
		t.Fatalf("StorageByPriority: %v", err)
	}
	if _, ok := totals[htypes.PriorityOther]; ok {
		t.Fatalf("expected OTHER tier fully evicted, still present: %+v", totals)
	}
}

func TestEvictIfNeededRespectsPins(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)

	data := make([]byte, 600*1024)
	cid := indexTree(t, ctx, idx, "bob", "theirs", htypes.PriorityOther, 1, data)
	if err := idx.Pin(ctx, cid.Hash); err != nil {
		t.Fatalf("Pin: %v", err)
	}

	other := make([]byte, 600*1024)
	for i := range other {
		other[i] = byte(i % 7)
	}
	indexTree(t, ctx, idx, "carol", "theirs2", htypes.PriorityOther, 2, other)

	m := New(idx, 1<<20)
	if _, err := m.EvictIfNeeded(ctx); err != nil {
		t.Fatalf("EvictIfNeeded: %v", err)
	}

	has, err := idx.Has(ctx, cid.Hash)
	if err != nil || !has {
		t.Fatalf("expected pinned root to survive eviction: has=%v err=%v", has, err)
	}
}
