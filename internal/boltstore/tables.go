package boltstore

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/htreeio/hashtree/internal/codec"
	"github.com/htreeio/hashtree/internal/herrors"
	"github.com/htreeio/hashtree/internal/htypes"
)

// indexTreeNode is called from Put when data carries the TreeNode magic
// prefix (codec.IsTreeNode; the node is not fully decoded), mirroring it
// into tree_nodes for node-only scans (§4.7.2's stated redundancy with blobs).
func (idx *Index) indexTreeNode(tx *bbolt.Tx, hash htypes.Hash, data []byte) error {
	if !codec.IsTreeNode(data) {
		return nil
	}
	return tx.Bucket(bucketTreeNodes).Put(hash[:], data)
}

// PutChunkMeta stores the chunk-metadata record for a file root.
func (idx *Index) PutChunkMeta(_ context.Context, root htypes.Hash, meta htypes.ChunkMeta) error {
	b, err := json.Marshal(meta)
	if err != nil {
		return herrors.New("boltstore.PutChunkMeta", herrors.InvalidArgument, err)
	}
	return idx.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketChunkMeta).Put(root[:], b)
	})
}

// GetChunkMeta retrieves the chunk-metadata record for a file root.
func (idx *Index) GetChunkMeta(_ context.Context, root htypes.Hash) (htypes.ChunkMeta, error) {
	var meta htypes.ChunkMeta
	err := idx.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketChunkMeta).Get(root[:])
		if v == nil {
			return errNotFound
		}
		return json.Unmarshal(v, &meta)
	})
	if err == errNotFound {
		return htypes.ChunkMeta{}, herrors.New("boltstore.GetChunkMeta", herrors.NotFound,
			fmt.Errorf("no chunk metadata for %s", root))
	}
	if err != nil {
		return htypes.ChunkMeta{}, herrors.New("boltstore.GetChunkMeta", herrors.Io, err)
	}
	return meta, nil
}

// Pin marks hash as pinned: it and its closure are never evicted.
func (idx *Index) Pin(_ context.Context, hash htypes.Hash) error {
	return idx.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPins).Put(hash[:], []byte{1})
	})
}

// Unpin removes hash from the pin set.
func (idx *Index) Unpin(_ context.Context, hash htypes.Hash) error {
	return idx.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPins).Delete(hash[:])
	})
}

// IsPinned reports whether hash is currently pinned.
func (idx *Index) IsPinned(_ context.Context, hash htypes.Hash) (bool, error) {
	var pinned bool
	err := idx.db.View(func(tx *bbolt.Tx) error {
		pinned = tx.Bucket(bucketPins).Get(hash[:]) != nil
		return nil
	})
	return pinned, err
}

// ListPins returns every currently pinned hash.
func (idx *Index) ListPins(_ context.Context) ([]htypes.Hash, error) {
	var hashes []htypes.Hash
	err := idx.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPins).ForEach(func(k, _ []byte) error {
			var h htypes.Hash
			copy(h[:], k)
			hashes = append(hashes, h)
			return nil
		})
	})
	return hashes, err
}

// PutIndexedTree upserts an indexed-tree record, keyed by its root hash.
func (idx *Index) PutIndexedTree(_ context.Context, root htypes.Hash, rec htypes.IndexedTree) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return herrors.New("boltstore.PutIndexedTree", herrors.InvalidArgument, err)
	}
	return idx.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketIndexedTrees).Put(root[:], b)
	})
}

// GetIndexedTree retrieves the indexed-tree record for root.
func (idx *Index) GetIndexedTree(_ context.Context, root htypes.Hash) (htypes.IndexedTree, error) {
	var rec htypes.IndexedTree
	err := idx.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketIndexedTrees).Get(root[:])
		if v == nil {
			return errNotFound
		}
		return json.Unmarshal(v, &rec)
	})
	if err == errNotFound {
		return htypes.IndexedTree{}, herrors.New("boltstore.GetIndexedTree", herrors.NotFound,
			fmt.Errorf("no indexed tree for %s", root))
	}
	if err != nil {
		return htypes.IndexedTree{}, herrors.New("boltstore.GetIndexedTree", herrors.Io, err)
	}
	return rec, nil
}

// DeleteIndexedTree removes the indexed-tree record for root.
func (idx *Index) DeleteIndexedTree(_ context.Context, root htypes.Hash) error {
	return idx.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketIndexedTrees).Delete(root[:])
	})
}

// ListIndexedTrees returns every indexed-tree record, keyed by root hash.
func (idx *Index) ListIndexedTrees(_ context.Context) (map[htypes.Hash]htypes.IndexedTree, error) {
	out := make(map[htypes.Hash]htypes.IndexedTree)
	err := idx.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketIndexedTrees).ForEach(func(k, v []byte) error {
			var rec htypes.IndexedTree
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			var h htypes.Hash
			copy(h[:], k)
			out[h] = rec
			return nil
		})
	})
	return out, err
}

func cachedRootKey(owner, name string) []byte {
	return []byte(owner + "/" + name)
}

// PutCachedRoot upserts a cached-root record for owner/name.
func (idx *Index) PutCachedRoot(_ context.Context, owner, name string, rec htypes.CachedRoot) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return herrors.New("boltstore.PutCachedRoot", herrors.InvalidArgument, err)
	}
	return idx.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCachedRoots).Put(cachedRootKey(owner, name), b)
	})
}

// GetCachedRoot retrieves the cached-root record for owner/name.
func (idx *Index) GetCachedRoot(_ context.Context, owner, name string) (htypes.CachedRoot, error) {
	var rec htypes.CachedRoot
	err := idx.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketCachedRoots).Get(cachedRootKey(owner, name))
		if v == nil {
			return errNotFound
		}
		return json.Unmarshal(v, &rec)
	})
	if err == errNotFound {
		return htypes.CachedRoot{}, herrors.New("boltstore.GetCachedRoot", herrors.NotFound,
			fmt.Errorf("no cached root for %s/%s", owner, name))
	}
	if err != nil {
		return htypes.CachedRoot{}, herrors.New("boltstore.GetCachedRoot", herrors.Io, err)
	}
	return rec, nil
}

// ListCachedRoots returns every cached-root record, keyed by "<owner>/<name>".
func (idx *Index) ListCachedRoots(_ context.Context) (map[string]htypes.CachedRoot, error) {
	out := make(map[string]htypes.CachedRoot)
	err := idx.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCachedRoots).ForEach(func(k, v []byte) error {
			var rec htypes.CachedRoot
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out[string(k)] = rec
			return nil
		})
	})
	return out, err
}

// blobSize returns the on-disk (compressed) size of a blob without
// decompressing it.
func (idx *Index) blobSize(tx *bbolt.Tx, hash htypes.Hash) (uint64, bool) {
	v := tx.Bucket(bucketBlobs).Get(hash[:])
	if v == nil {
		return 0, false
	}
	// Stored value is the zstd frame; report its compressed length here,
	// cheap and conservative for quota accounting purposes.
	return uint64(len(v)), true
}
