package chunker

import (
	"context"

	"github.com/htreeio/hashtree/internal/codec"
	"github.com/htreeio/hashtree/internal/htypes"
)

// BuildDir stores a directory node over entries, preserving insertion
// order, and returns its CID. Directory nodes are never encrypted at this
// layer: confidentiality for a shared subtree is the DeriveSharedKey
// rewrap described in spec §4.3's supplemented TreeVisibility feature, not
// per-directory-node encryption.
func (b *Builder) BuildDir(ctx context.Context, entries []htypes.DirEntry) (htypes.Cid, error) {
	var total uint64
	links := make([]htypes.Link, 0, len(entries))
	for _, e := range entries {
		total += e.Size
		links = append(links, htypes.Link{
			Hash:     e.Cid.Hash,
			Name:     e.Name,
			Size:     e.Size,
			LinkType: e.LinkType,
			Key:      e.Cid.Key,
		})
	}

	node := htypes.TreeNode{LinkType: htypes.LinkDir, Size: total, Links: links}
	encoded, hash := codec.EncodeAndHash(node)
	if _, err := b.Store.Put(ctx, encoded); err != nil {
		return htypes.Cid{}, err
	}
	return htypes.Cid{Hash: hash}, nil
}
