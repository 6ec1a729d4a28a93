package treereader

import (
	"context"
	"fmt"

	"github.com/htreeio/hashtree/internal/codec"
	"github.com/htreeio/hashtree/internal/herrors"
	"github.com/htreeio/hashtree/internal/htypes"
)

// VerifyResult reports the outcome of a structural tree walk, the Go
// counterpart of the original Rust hashtree-core's VerifyResult.
type VerifyResult struct {
	Valid        bool
	NodesVisited int
	BytesVisited uint64
	MissingHash  *htypes.Hash
	Err          error
}

// VerifyTree walks every node and leaf reachable from cid, confirming each
// is present and, for blobs, that its content actually hashes to its own
// address. It stops at the first problem found.
func (r *Reader) VerifyTree(ctx context.Context, cid htypes.Cid) VerifyResult {
	res := VerifyResult{Valid: true}
	r.verifyWalk(ctx, cid.Hash, &res)
	return res
}

func (r *Reader) verifyWalk(ctx context.Context, hash htypes.Hash, res *VerifyResult) {
	if !res.Valid {
		return
	}
	data, err := r.Store.Get(ctx, hash)
	if err != nil {
		res.Valid = false
		h := hash
		res.MissingHash = &h
		res.Err = err
		return
	}
	if codec.Sha256(data) != hash {
		res.Valid = false
		res.Err = herrors.New("treereader.VerifyTree", herrors.Corrupt,
			fmt.Errorf("content hash mismatch at %s", hash))
		return
	}
	res.NodesVisited++
	res.BytesVisited += uint64(len(data))

	node, ok := codec.TryDecodeTreeNode(data)
	if !ok {
		return
	}
	for _, l := range node.Links {
		r.verifyWalk(ctx, l.Hash, res)
		if !res.Valid {
			return
		}
	}
}

// WalkEntry is one node passed to a Walk callback.
type WalkEntry struct {
	Path     string
	Cid      htypes.Cid
	LinkType htypes.LinkType
	Size     uint64
}

// WalkFunc is called once per node visited by Walk, in depth-first,
// directory-then-children order. Returning an error aborts the walk.
type WalkFunc func(entry WalkEntry) error

// Walk performs a depth-first traversal of the tree rooted at cid, calling
// fn for the root and every descendant. This is the supplemented
// counterpart of the original Rust hashtree-core's tree-walk helper.
func (r *Reader) Walk(ctx context.Context, cid htypes.Cid, fn WalkFunc) error {
	return r.walk(ctx, "", cid, fn)
}

func (r *Reader) walk(ctx context.Context, path string, cid htypes.Cid, fn WalkFunc) error {
	data, err := r.Store.Get(ctx, cid.Hash)
	if err != nil {
		return err
	}
	node, ok := codec.TryDecodeTreeNode(data)
	if !ok {
		return fn(WalkEntry{Path: path, Cid: cid, LinkType: htypes.LinkBlob, Size: uint64(len(data))})
	}
	if err := fn(WalkEntry{Path: path, Cid: cid, LinkType: node.LinkType, Size: node.Size}); err != nil {
		return err
	}
	for _, l := range node.Links {
		childPath := l.Name
		if path != "" {
			childPath = path + "/" + l.Name
		}
		if err := r.walk(ctx, childPath, htypes.Cid{Hash: l.Hash, Key: l.Key}, fn); err != nil {
			return err
		}
	}
	return nil
}
