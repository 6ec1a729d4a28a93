package resolver

import (
	"context"
	"crypto/rand"
	"path/filepath"
	"testing"

	"github.com/htreeio/hashtree/internal/boltstore"
	"github.com/htreeio/hashtree/internal/herrors"
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

func TestPublishResolve(t *testing.T) {
	ctx := context.Background()
	r := New(openTestIndex(t))

	var hash htypes.Hash
	hash[0] = 0xab
	cid := htypes.Cid{Hash: hash}

	if err := r.Publish(ctx, "alice/notes", cid); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	got, err := r.Resolve(ctx, "alice/notes")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Hash != hash {
		t.Fatalf("resolved hash mismatch")
	}
}

func TestResolveMissing(t *testing.T) {
	ctx := context.Background()
	r := New(openTestIndex(t))
	_, err := r.Resolve(ctx, "alice/nope")
	if !herrors.Is(err, herrors.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestPublishSharedDerivesDistinctKey(t *testing.T) {
	ctx := context.Background()
	r := New(openTestIndex(t))

	var rootKey [32]byte
	rand.Read(rootKey[:])
	var hash htypes.Hash
	hash[0] = 0xcd
	cid := htypes.Cid{Hash: hash, Key: &rootKey}

	var recipient htypes.Hash
	rand.Read(recipient[:])

	if err := r.PublishShared(ctx, "alice/shared-doc", cid, recipient); err != nil {
		t.Fatalf("PublishShared: %v", err)
	}
	got, err := r.Resolve(ctx, "alice/shared-doc")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Key == nil || *got.Key == rootKey {
		t.Fatalf("expected a derived shared key distinct from the root key")
	}
}

func TestListByOwner(t *testing.T) {
	ctx := context.Background()
	r := New(openTestIndex(t))

	var h1, h2 htypes.Hash
	h1[0], h2[0] = 1, 2
	if err := r.Publish(ctx, "alice/a", htypes.Cid{Hash: h1}); err != nil {
		t.Fatalf("Publish a: %v", err)
	}
	if err := r.Publish(ctx, "alice/b", htypes.Cid{Hash: h2}); err != nil {
		t.Fatalf("Publish b: %v", err)
	}
	if err := r.Publish(ctx, "bob/c", htypes.Cid{Hash: h2}); err != nil {
		t.Fatalf("Publish c: %v", err)
	}

	entries, err := r.List(ctx, "alice")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries for alice, got %d: %+v", len(entries), entries)
	}
}

func TestMalformedKeyRejected(t *testing.T) {
	ctx := context.Background()
	r := New(openTestIndex(t))
	_, err := r.Resolve(ctx, "no-slash-here")
	if !herrors.Is(err, herrors.InvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}
