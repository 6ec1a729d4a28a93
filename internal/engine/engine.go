// Package engine wires the storage, chunking, reading, priority, and
// resolver packages into the single facade spec §2's core API describes:
// one entry point a CLI or embedding application opens once and calls for
// every operation.
//
// The shape is grounded on the teacher's cmd/ivaldi wiring in main.go/cli.go,
// where a single *store.DB opened once at startup is threaded through every
// command's handler; here that single handle is HashTree, and it owns the
// index plus every package built on top of it instead of a bare *bbolt.DB.
package engine

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/htreeio/hashtree/internal/boltstore"
	"github.com/htreeio/hashtree/internal/chunker"
	"github.com/htreeio/hashtree/internal/hconfig"
	"github.com/htreeio/hashtree/internal/herrors"
	"github.com/htreeio/hashtree/internal/htypes"
	"github.com/htreeio/hashtree/internal/nhash"
	"github.com/htreeio/hashtree/internal/priority"
	"github.com/htreeio/hashtree/internal/resolver"
	"github.com/htreeio/hashtree/internal/treediff"
	"github.com/htreeio/hashtree/internal/treereader"
)

// HashTree is the unified handle over one local index: build, read,
// pin, evict, resolve, and diff all go through it.
type HashTree struct {
	Index    *boltstore.Index
	Config   *hconfig.Config
	Builder  *chunker.Builder
	Reader   *treereader.Reader
	Priority *priority.Manager
	Resolver *resolver.LocalResolver
}

// Open opens the bbolt index at cfg.Store.IndexPath and assembles every
// dependent package over it.
func Open(cfg *hconfig.Config) (*HashTree, error) {
	idx, err := boltstore.Open(cfg.Store.IndexPath)
	if err != nil {
		return nil, err
	}
	return &HashTree{
		Index:    idx,
		Config:   cfg,
		Builder:  &chunker.Builder{Store: idx, Params: cfg.ChunkerParams(), Encrypt: cfg.Crypto.EncryptByDefault},
		Reader:   treereader.New(idx),
		Priority: priority.New(idx, cfg.Store.MaxSizeBytes),
		Resolver: resolver.New(idx),
	}, nil
}

// Close releases the underlying index.
func (h *HashTree) Close() error {
	return h.Index.Close()
}

// Put chunks, stores, and indexes data as owner/name under priority p,
// enforcing the configured quota per spec §7.
func (h *HashTree) Put(ctx context.Context, owner, name string, p htypes.Priority, data []byte) (htypes.Cid, error) {
	result, err := h.Builder.BuildBytes(ctx, data)
	if err != nil {
		return htypes.Cid{}, err
	}
	if err := h.index(ctx, owner, name, p, result); err != nil {
		return htypes.Cid{}, err
	}
	return result.Cid, nil
}

// PutStreaming is Put's streaming counterpart, reading from r instead of
// an in-memory buffer.
func (h *HashTree) PutStreaming(ctx context.Context, owner, name string, p htypes.Priority, r io.Reader) (htypes.Cid, error) {
	result, err := h.Builder.BuildStreaming(ctx, r)
	if err != nil {
		return htypes.Cid{}, err
	}
	if err := h.index(ctx, owner, name, p, result); err != nil {
		return htypes.Cid{}, err
	}
	return result.Cid, nil
}

// PutDir builds and stores a directory node; directories are not
// separately quota-tracked, only the file trees they reference are.
func (h *HashTree) PutDir(ctx context.Context, entries []htypes.DirEntry) (htypes.Cid, error) {
	return h.Builder.BuildDir(ctx, entries)
}

// index records result as an indexed tree and enforces the storage quota.
// The new tree is never itself a candidate for the eviction that's meant
// to make room for it: existing trees are evicted lowest-priority-first
// first, and only if that still can't bring existing usage plus the new
// tree's size under the cap is QuotaExceeded surfaced — with the new tree
// left unindexed (its blobs remain stored, content-addressed, until GC).
func (h *HashTree) index(ctx context.Context, owner, name string, p htypes.Priority, result chunker.PutResult) error {
	if h.Priority.MaxSizeBytes > 0 {
		existing, err := h.existingTracked(ctx)
		if err != nil {
			return err
		}
		if existing+result.Size > h.Priority.MaxSizeBytes {
			if result.Size < h.Priority.MaxSizeBytes {
				// Evict down to the room the new tree needs, not just to the quota.
				room := priority.New(h.Index, h.Priority.MaxSizeBytes-result.Size)
				if _, err := room.EvictIfNeeded(ctx); err != nil {
					return err
				}
			}
			existing, err = h.existingTracked(ctx)
			if err != nil {
				return err
			}
			if existing+result.Size > h.Priority.MaxSizeBytes {
				return herrors.New("engine.index", herrors.QuotaExceeded,
					fmt.Errorf("write of %d bytes would leave tracked size at %d, over quota %d",
						result.Size, existing+result.Size, h.Priority.MaxSizeBytes))
			}
		}
	}

	if err := h.Index.PutChunkMeta(ctx, result.Cid.Hash, htypes.ChunkMeta{
		TotalSize:   result.Size,
		IsChunked:   result.ChunkCount > 1,
		ChunkHashes: result.ChunkHashes,
		ChunkSizes:  result.ChunkSizes,
		Key:         result.Cid.Key,
	}); err != nil {
		return err
	}

	rec := htypes.IndexedTree{
		Owner:     owner,
		Name:      name,
		Priority:  p,
		RefKey:    owner + "/" + name,
		TotalSize: result.Size,
		SyncedAt:  time.Now().Unix(),
	}
	return h.Index.PutIndexedTree(ctx, result.Cid.Hash, rec)
}

func (h *HashTree) existingTracked(ctx context.Context) (uint64, error) {
	totals, err := h.Priority.StorageByPriority(ctx)
	if err != nil {
		return 0, err
	}
	var tracked uint64
	for _, v := range totals {
		tracked += v
	}
	return tracked, nil
}

// Get reassembles and returns the full plaintext content named by cid.
func (h *HashTree) Get(ctx context.Context, cid htypes.Cid) ([]byte, error) {
	if err := h.rejectStrippedKey(ctx, cid); err != nil {
		return nil, err
	}
	return h.Reader.Get(ctx, cid)
}

// GetStream returns a reader over the plaintext content named by cid.
func (h *HashTree) GetStream(ctx context.Context, cid htypes.Cid) (io.Reader, error) {
	if err := h.rejectStrippedKey(ctx, cid); err != nil {
		return nil, err
	}
	return h.Reader.GetStream(ctx, cid)
}

// GetRange returns the plaintext bytes [offset, offset+length) of cid.
func (h *HashTree) GetRange(ctx context.Context, cid htypes.Cid, offset, length uint64) ([]byte, error) {
	if err := h.rejectStrippedKey(ctx, cid); err != nil {
		return nil, err
	}
	return h.Reader.ReadFileRange(ctx, cid, offset, length)
}

// rejectStrippedKey implements spec scenario S2: reading a permalink that's
// had its decrypt key stripped must fail with InvalidContent, not silently
// serve raw ciphertext. chunk_meta.Key (written once, at index time) is the
// authoritative record of whether cid's root was originally encrypted;
// treereader itself never sees chunk_meta and can't tell on its own, so the
// check is made here, at the one boundary that has both the caller's cid
// and access to the index.
func (h *HashTree) rejectStrippedKey(ctx context.Context, cid htypes.Cid) error {
	if cid.Key != nil {
		return nil
	}
	meta, err := h.Index.GetChunkMeta(ctx, cid.Hash)
	if err != nil {
		if herrors.Is(err, herrors.NotFound) {
			return nil
		}
		return err
	}
	if meta.Key != nil {
		return herrors.New("engine.rejectStrippedKey", herrors.InvalidContent,
			fmt.Errorf("root %s was stored encrypted but no decrypt key was supplied", cid.Hash))
	}
	return nil
}

// ListDir returns the immediate entries of the directory named by cid.
func (h *HashTree) ListDir(ctx context.Context, cid htypes.Cid) ([]htypes.DirEntry, error) {
	return h.Reader.ListDirectory(ctx, cid)
}

// ResolvePath walks a "/"-separated path from root.
func (h *HashTree) ResolvePath(ctx context.Context, root htypes.Cid, path string) (htypes.Cid, error) {
	return h.Reader.ResolvePath(ctx, root, path)
}

// Verify walks every node reachable from cid, confirming hash integrity.
func (h *HashTree) Verify(ctx context.Context, cid htypes.Cid) treereader.VerifyResult {
	return h.Reader.VerifyTree(ctx, cid)
}

// Pin marks cid's root as pinned, protecting its whole closure from
// eviction and GC.
func (h *HashTree) Pin(ctx context.Context, cid htypes.Cid) error {
	return h.Index.Pin(ctx, cid.Hash)
}

// Unpin removes cid's root from the pin set.
func (h *HashTree) Unpin(ctx context.Context, cid htypes.Cid) error {
	return h.Index.Unpin(ctx, cid.Hash)
}

// Pins lists every currently pinned hash.
func (h *HashTree) Pins(ctx context.Context) ([]htypes.Hash, error) {
	return h.Index.ListPins(ctx)
}

// GC deletes every blob unreachable from any pinned root.
func (h *HashTree) GC(ctx context.Context) (boltstore.GCResult, error) {
	return h.Index.GC(ctx)
}

// VerifyIntegrity walks every stored blob confirming it still hashes to
// its own key, optionally deleting any that don't.
func (h *HashTree) VerifyIntegrity(ctx context.Context, deleteCorrupt bool) (boltstore.VerifyResult, error) {
	return h.Index.VerifyIntegrity(ctx, deleteCorrupt)
}

// StorageStats reports tracked bytes per priority tier.
func (h *HashTree) StorageStats(ctx context.Context) (map[htypes.Priority]uint64, error) {
	return h.Priority.StorageByPriority(ctx)
}

// Diff reports how much of newRoot's content is already reachable from
// oldRoot, for a client deciding how much to transfer.
func (h *HashTree) Diff(ctx context.Context, oldRoot, newRoot htypes.Cid) (treediff.DiffStats, error) {
	return treediff.TreeDiff(ctx, h.Index, oldRoot, newRoot)
}

// Permalink renders cid as an "nhash1..." string.
func (h *HashTree) Permalink(cid htypes.Cid) (string, error) {
	return nhash.Encode(nhash.Data{Hash: cid.Hash, DecryptKey: cid.Key})
}

// ParsePermalink recovers a Cid from an "nhash1..." string.
func (h *HashTree) ParsePermalink(s string) (htypes.Cid, error) {
	d, err := nhash.Decode(s)
	if err != nil {
		return htypes.Cid{}, err
	}
	return htypes.Cid{Hash: d.Hash, Key: d.DecryptKey}, nil
}

// Publish records cid as the current root for key, publicly.
func (h *HashTree) Publish(ctx context.Context, key string, cid htypes.Cid) error {
	return h.Resolver.Publish(ctx, key, cid)
}

// PublishPrivate records cid as the current root for key, carrying cid's
// own decryption key forward unchanged.
func (h *HashTree) PublishPrivate(ctx context.Context, key string, cid htypes.Cid) error {
	return h.Resolver.PublishPrivate(ctx, key, cid)
}

// PublishShared records cid under a key derived for one recipient, without
// re-encrypting any chunk.
func (h *HashTree) PublishShared(ctx context.Context, key string, cid htypes.Cid, recipientSecret htypes.Hash) error {
	return h.Resolver.PublishShared(ctx, key, cid, recipientSecret)
}

// Resolve returns the currently published Cid for key.
func (h *HashTree) Resolve(ctx context.Context, key string) (htypes.Cid, error) {
	return h.Resolver.Resolve(ctx, key)
}

// ResolveShared returns key's Cid using linkKey as the decryption key
// directly, bypassing whatever key the cached record itself carries.
func (h *HashTree) ResolveShared(ctx context.Context, key string, linkKey [32]byte) (htypes.Cid, error) {
	return h.Resolver.ResolveShared(ctx, key, linkKey)
}

// ListPublished returns every key currently published under owner.
func (h *HashTree) ListPublished(ctx context.Context, owner string) ([]resolver.Entry, error) {
	return h.Resolver.List(ctx, owner)
}
