// Package htypes holds the value types shared by every hashtree component:
// the address (Hash), the in-memory content identifier (Cid), the on-disk
// tree node shape (TreeNode/Link), and the small records the local index
// keeps alongside blobs (ChunkMeta, IndexedTree, CachedRoot).
package htypes

import (
	"encoding/hex"
	"fmt"
)

// Hash is the SHA-256 digest of a blob's on-disk bytes. It is always the
// hash of what is actually stored — ciphertext for encrypted leaves, never
// of plaintext.
type Hash [32]byte

// String returns the lowercase hex representation of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the zero hash, used as a sentinel for
// "no node" in diff/tree algorithms.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// HashFromHex parses a lowercase hex string into a Hash.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("htypes: invalid hash length %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

// LinkType discriminates the interpretation of a TreeNode or Link.
type LinkType uint8

const (
	// LinkBlob tags a raw leaf chunk (no children, no directory semantics).
	LinkBlob LinkType = 1
	// LinkFile tags an interior file link-node (or a Link pointing at a file root).
	LinkFile LinkType = 2
	// LinkDir tags a directory node (or a Link pointing at a subdirectory).
	LinkDir LinkType = 3
)

// String renders the link type for logs and CLI output.
func (k LinkType) String() string {
	switch k {
	case LinkBlob:
		return "blob"
	case LinkFile:
		return "file"
	case LinkDir:
		return "dir"
	default:
		return "unknown"
	}
}

// Cid is the in-memory content identifier: a hash plus the optional key
// needed to decrypt it. Two Cids with the same hash but different keys
// decrypt to different plaintexts — callers must carry the right key.
type Cid struct {
	Hash Hash
	Key  *[32]byte
}

// Link is a single entry inside a TreeNode: a reference to a child blob or
// node, with directory-entry metadata (Name, Key) populated only when
// applicable.
type Link struct {
	Hash     Hash
	Name     string // populated for directory entries, empty otherwise
	Size     uint64 // plaintext size of the subtree rooted at this link
	LinkType LinkType
	Key      *[32]byte // populated iff the child is independently decryptable
}

// TreeNode is the canonical structural record stored for File and Dir
// nodes. Link order is significant and preserved exactly as built.
type TreeNode struct {
	LinkType LinkType
	Size     uint64
	Links    []Link
}

// DirEntry is the builder-facing input for constructing a directory node:
// one named child plus the Cid/size/kind needed to build its Link.
type DirEntry struct {
	Name     string
	Cid      Cid
	Size     uint64
	LinkType LinkType
}

// TreeEntry has the shape of a directory-listing entry (the same fields as
// Link); Reader.ListDirectory itself returns DirEntry values, not TreeEntry.
type TreeEntry struct {
	Name     string
	Hash     Hash
	Key      *[32]byte
	Size     uint64
	LinkType LinkType
}

// ChunkMeta is the per-file-root record the builder writes once chunking
// completes, keyed by the file's root hash in the local index.
type ChunkMeta struct {
	TotalSize   uint64
	IsChunked   bool
	ChunkHashes []Hash
	ChunkSizes  []uint64 // ciphertext byte counts when encrypted
	Key         *[32]byte
}

// Priority tiers, in eviction order (lowest evicted first).
type Priority uint8

const (
	PriorityOther    Priority = 64
	PriorityFollowed Priority = 128
	PriorityOwn      Priority = 255
)

// Valid reports whether p is one of the three named tiers.
func (p Priority) Valid() bool {
	return p == PriorityOther || p == PriorityFollowed || p == PriorityOwn
}

func (p Priority) String() string {
	switch p {
	case PriorityOwn:
		return "own"
	case PriorityFollowed:
		return "followed"
	case PriorityOther:
		return "other"
	default:
		return "invalid"
	}
}

// IndexedTree is the per-root bookkeeping record used by the priority and
// eviction engine.
type IndexedTree struct {
	Owner      string
	Name       string
	Priority   Priority
	RefKey     string // "<owner>/<name>", stable human-readable ref
	TotalSize  uint64
	SyncedAt   int64 // unix seconds
}

// CachedRoot is the record the (external) root resolver keeps for a
// "<owner>/<name>" key.
type CachedRoot struct {
	Hash       Hash
	Key        *[32]byte
	Visibility string
	UpdatedAt  int64
}
