// Package boltstore is the production Store implementation: a single
// bbolt file holding one bucket per logical table of spec §4.7.2, with
// blob bytes zstd-compressed on write and decompressed-and-rehash-verified
// on read.
//
// Bucket layout and the open-and-create-all-buckets shape are carried
// directly from the teacher's internal/store/kv.go, generalized from its
// five VCS-specific mapping buckets to the six content-addressed-storage
// tables this spec needs. Blob compression follows
// internal/objects/object.go's zstd.NewWriter/zstd.NewReader usage, which
// is the only place in the teacher repo that already compresses object
// bytes before persisting them.
package boltstore

import (
	"context"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"go.etcd.io/bbolt"

	"github.com/htreeio/hashtree/internal/codec"
	"github.com/htreeio/hashtree/internal/herrors"
	"github.com/htreeio/hashtree/internal/htypes"
)

var (
	bucketBlobs        = []byte("blobs")
	bucketTreeNodes    = []byte("tree_nodes")
	bucketChunkMeta    = []byte("chunk_meta")
	bucketPins         = []byte("pins")
	bucketIndexedTrees = []byte("indexed_trees")
	bucketCachedRoots  = []byte("cached_roots")

	allBuckets = [][]byte{
		bucketBlobs, bucketTreeNodes, bucketChunkMeta,
		bucketPins, bucketIndexedTrees, bucketCachedRoots,
	}
)

// Index is the local bbolt-backed Store and metadata index.
type Index struct {
	db      *bbolt.DB
	encoder *zstd.Encoder
}

// Open opens (creating if necessary) a bbolt index at path, with every
// logical table's bucket present.
func Open(path string) (*Index, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, herrors.New("boltstore.Open", herrors.Io, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, herrors.New("boltstore.Open", herrors.Io, err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = db.Close()
		return nil, herrors.New("boltstore.Open", herrors.Io, err)
	}
	return &Index{db: db, encoder: enc}, nil
}

// Close releases the underlying bbolt file.
func (idx *Index) Close() error {
	idx.encoder.Close()
	return idx.db.Close()
}

// Put implements store.Store: data is zstd-compressed and written keyed by
// its SHA-256 hash. Writing an already-present hash is a cheap no-op.
func (idx *Index) Put(_ context.Context, data []byte) (htypes.Hash, error) {
	hash := codec.Sha256(data)
	err := idx.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketBlobs)
		if b.Get(hash[:]) == nil {
			compressed := idx.encoder.EncodeAll(data, nil)
			if err := b.Put(hash[:], compressed); err != nil {
				return err
			}
		}
		return idx.indexTreeNode(tx, hash, data)
	})
	if err != nil {
		return htypes.Hash{}, herrors.New("boltstore.Put", herrors.Io, err)
	}
	return hash, nil
}

// Get implements store.Store: the compressed blob for hash is decompressed
// and its content rehashed to confirm it still matches hash before
// returning it.
func (idx *Index) Get(_ context.Context, hash htypes.Hash) ([]byte, error) {
	var compressed []byte
	err := idx.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketBlobs).Get(hash[:])
		if v == nil {
			return errNotFound
		}
		compressed = append([]byte(nil), v...)
		return nil
	})
	if err == errNotFound {
		return nil, herrors.New("boltstore.Get", herrors.NotFound,
			fmt.Errorf("hash not found: %s", hash))
	}
	if err != nil {
		return nil, herrors.New("boltstore.Get", herrors.Io, err)
	}

	dec, err := idx.newDecoder()
	if err != nil {
		return nil, herrors.New("boltstore.Get", herrors.Io, err)
	}
	defer dec.Close()
	data, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, herrors.New("boltstore.Get", herrors.Corrupt, err)
	}
	if codec.Sha256(data) != hash {
		return nil, herrors.New("boltstore.Get", herrors.Corrupt,
			fmt.Errorf("stored content does not hash to its own key: %s", hash))
	}
	return data, nil
}

// Has implements store.Store.
func (idx *Index) Has(_ context.Context, hash htypes.Hash) (bool, error) {
	var found bool
	err := idx.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(bucketBlobs).Get(hash[:]) != nil
		return nil
	})
	if err != nil {
		return false, herrors.New("boltstore.Has", herrors.Io, err)
	}
	return found, nil
}

func (idx *Index) newDecoder() (*zstd.Decoder, error) {
	return zstd.NewReader(nil)
}

// DeleteBlob removes hash from both the blobs and tree_nodes tables. Used
// by eviction and corruption cleanup; callers are responsible for having
// already confirmed hash is safe to remove (not pinned, not reachable from
// a retained tree).
func (idx *Index) DeleteBlob(_ context.Context, hash htypes.Hash) error {
	err := idx.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketBlobs).Delete(hash[:]); err != nil {
			return err
		}
		return tx.Bucket(bucketTreeNodes).Delete(hash[:])
	})
	if err != nil {
		return herrors.New("boltstore.DeleteBlob", herrors.Io, err)
	}
	return nil
}

var errNotFound = fmt.Errorf("boltstore: not found")
