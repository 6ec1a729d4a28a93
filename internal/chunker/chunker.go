// Package chunker builds and reconstructs the chunk tree of a file's bytes
// (spec §4.4), and builds directory nodes from a set of named entries.
//
// The fan-out tree shape generalizes the teacher's filechunk.go Builder,
// which only ever paired two children per interior node; here the group
// size is the configurable Params.MaxLinks, and the odd-one-out-at-the-end
// promotion rule (skip wrapping a trailing single child in its own interior
// node) is kept from the teacher verbatim because it's still correct for
// any group size, not just two.
package chunker

import (
	"bytes"
	"context"
	"io"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/htreeio/hashtree/internal/codec"
	"github.com/htreeio/hashtree/internal/hcrypto"
	"github.com/htreeio/hashtree/internal/herrors"
	"github.com/htreeio/hashtree/internal/htypes"
	"github.com/htreeio/hashtree/internal/store"
)

const (
	// DefaultChunkSize is used when Params.ChunkSize is zero.
	DefaultChunkSize = 256 * 1024
	// Bep52ChunkSize matches BitTorrent v2's fixed leaf size, offered as an
	// alternative profile for callers that want cross-protocol-comparable
	// chunk boundaries.
	Bep52ChunkSize = 16 * 1024
	// DefaultMaxLinks bounds how many children an interior node may hold.
	DefaultMaxLinks = 174
)

// Params configures chunk boundaries and tree fan-out.
type Params struct {
	ChunkSize int
	MaxLinks  int
}

// DefaultParams returns the standard (256 KiB chunk, 174-way fan-out) profile.
func DefaultParams() Params {
	return Params{ChunkSize: DefaultChunkSize, MaxLinks: DefaultMaxLinks}
}

func (p Params) withDefaults() Params {
	if p.ChunkSize <= 0 {
		p.ChunkSize = DefaultChunkSize
	}
	if p.MaxLinks <= 0 {
		p.MaxLinks = DefaultMaxLinks
	}
	return p
}

// PutResult reports what a build produced, the supplemented counterpart to
// the original Rust hashtree-core's PutResult. ChunkHashes and ChunkSizes
// are parallel, ordered slices — one entry per leaf chunk, in build order —
// ready to persist verbatim into a htypes.ChunkMeta record (spec §4.4).
// ChunkSizes holds ciphertext byte counts when the build is encrypted,
// plaintext byte counts otherwise, matching ChunkMeta.ChunkSizes.
type PutResult struct {
	Cid         htypes.Cid
	Size        uint64
	ChunkCount  int
	ChunkHashes []htypes.Hash
	ChunkSizes  []uint64
}

// Builder turns plaintext bytes into a stored, content-addressed tree.
type Builder struct {
	Store   store.Store
	Params  Params
	Encrypt bool
}

// NewBuilder constructs a Builder with the default chunking profile.
func NewBuilder(s store.Store, encrypt bool) *Builder {
	return &Builder{Store: s, Params: DefaultParams(), Encrypt: encrypt}
}

// BuildBytes chunks, optionally encrypts, and stores data, returning the
// root CID. Single-chunk input collapses to a bare leaf with no interior
// wrapper, per spec §4.4.
func (b *Builder) BuildBytes(ctx context.Context, data []byte) (PutResult, error) {
	params := b.Params.withDefaults()
	open := func() (io.Reader, error) { return bytes.NewReader(data), nil }
	return b.build(ctx, open, uint64(len(data)), params)
}

// BuildStreaming builds a tree from r. In unencrypted mode this is a true
// single pass that never buffers more than one chunk. Encrypted mode needs
// the whole-file content fingerprint before it can derive the first chunk
// key (spec §4.3's root-key scheme is deliberately not chunk-local), so it
// spools r to a temporary file first and re-reads it from disk. The
// encrypting pass (see build) then reads every plaintext chunk into memory
// before encrypting them, so an encrypted build holds the whole file's
// plaintext in memory at once; it is not limited to one chunk.
func (b *Builder) BuildStreaming(ctx context.Context, r io.Reader) (PutResult, error) {
	params := b.Params.withDefaults()
	if !b.Encrypt {
		return b.buildUnencryptedStream(ctx, r, params)
	}

	tmp, err := os.CreateTemp("", "htree-spool-*")
	if err != nil {
		return PutResult{}, herrors.New("chunker.BuildStreaming", herrors.Io, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	size, err := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if err != nil {
		return PutResult{}, herrors.New("chunker.BuildStreaming", herrors.Io, err)
	}
	if closeErr != nil {
		return PutResult{}, herrors.New("chunker.BuildStreaming", herrors.Io, closeErr)
	}

	open := func() (io.Reader, error) { return os.Open(tmpPath) }
	return b.build(ctx, open, uint64(size), params)
}

// buildUnencryptedStream never spools: raw chunk bytes are their own
// storage hash, so no full-file property needs to be known up front.
func (b *Builder) buildUnencryptedStream(ctx context.Context, r io.Reader, params Params) (PutResult, error) {
	var links []htypes.Link
	var total uint64
	buf := make([]byte, params.ChunkSize)
	for {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			chunk := buf[:n]
			hash, err := b.Store.Put(ctx, chunk)
			if err != nil {
				return PutResult{}, err
			}
			links = append(links, htypes.Link{Hash: hash, Size: uint64(n), LinkType: htypes.LinkBlob})
			total += uint64(n)
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return PutResult{}, herrors.New("chunker.buildUnencryptedStream", herrors.Io, readErr)
		}
	}
	result, err := b.assemble(ctx, links, total, len(links))
	if err != nil {
		return PutResult{}, err
	}
	result.ChunkHashes, result.ChunkSizes = chunkMetaFromLinks(links)
	return result, nil
}

// chunkMetaFromLinks extracts the ordered (hash, size) pairs chunk_meta
// needs directly from a build's leaf links, before they're wrapped into
// higher fan-out levels by assemble.
func chunkMetaFromLinks(links []htypes.Link) ([]htypes.Hash, []uint64) {
	if len(links) == 0 {
		return nil, nil
	}
	hashes := make([]htypes.Hash, len(links))
	sizes := make([]uint64, len(links))
	for i, l := range links {
		hashes[i] = l.Hash
		sizes[i] = l.Size
	}
	return hashes, sizes
}

// build runs the two-pass convergent-encryption path (or, when Encrypt is
// false, a single pass) against a rewindable source. open must return a
// fresh reader over the same bytes each time it's called.
func (b *Builder) build(ctx context.Context, open func() (io.Reader, error), totalSize uint64, params Params) (PutResult, error) {
	if !b.Encrypt {
		r, err := open()
		if err != nil {
			return PutResult{}, herrors.New("chunker.build", herrors.Io, err)
		}
		return b.buildUnencryptedStream(ctx, r, params)
	}

	plainSizes, err := readChunkSizes(open, params.ChunkSize)
	if err != nil {
		return PutResult{}, err
	}
	if len(plainSizes) == 0 {
		plainSizes = []int{0}
	}

	fp := hcrypto.NewFingerprintHasher()
	r, err := open()
	if err != nil {
		return PutResult{}, herrors.New("chunker.build", herrors.Io, err)
	}
	buf := make([]byte, params.ChunkSize)
	for {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			digest := hcrypto.PlainDigest(buf[:n])
			fp.AddChunk(digest)
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return PutResult{}, herrors.New("chunker.build", herrors.Io, readErr)
		}
	}
	rootKey := hcrypto.DeriveRootKey(fp.Finish())

	r2, err := open()
	if err != nil {
		return PutResult{}, herrors.New("chunker.build", herrors.Io, err)
	}
	chunks := make([][]byte, len(plainSizes))
	{
		buf := make([]byte, params.ChunkSize)
		for i := range plainSizes {
			n, readErr := io.ReadFull(r2, buf)
			if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
				return PutResult{}, herrors.New("chunker.build", herrors.Io, readErr)
			}
			cp := make([]byte, n)
			copy(cp, buf[:n])
			chunks[i] = cp
		}
	}

	links := make([]htypes.Link, len(chunks))
	cipherSizes := make([]uint64, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, plaintext := range chunks {
		i, plaintext := i, plaintext
		g.Go(func() error {
			key := hcrypto.DeriveChunkKey(rootKey, uint64(i))
			nonce := hcrypto.DeriveChunkNonce(rootKey, uint64(i))
			ciphertext, err := hcrypto.EncryptChunk(key, nonce, plaintext)
			if err != nil {
				return err
			}
			hash, err := b.Store.Put(gctx, ciphertext)
			if err != nil {
				return err
			}
			links[i] = htypes.Link{Hash: hash, Size: uint64(len(plaintext)), LinkType: htypes.LinkBlob}
			cipherSizes[i] = uint64(len(ciphertext))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return PutResult{}, err
	}

	result, err := b.assemble(ctx, links, totalSize, len(links))
	if err != nil {
		return PutResult{}, err
	}
	if result.ChunkCount > 0 {
		rk := rootKey
		result.Cid.Key = &rk
		hashes, _ := chunkMetaFromLinks(links)
		result.ChunkHashes = hashes
		result.ChunkSizes = cipherSizes
	}
	return result, nil
}

// assemble wraps leaf links into a fan-out tree bottom-up, per
// Params.MaxLinks, collapsing to a bare leaf when there's exactly one.
func (b *Builder) assemble(ctx context.Context, links []htypes.Link, totalSize uint64, chunkCount int) (PutResult, error) {
	if len(links) == 0 {
		hash, err := b.Store.Put(ctx, nil)
		if err != nil {
			return PutResult{}, err
		}
		return PutResult{Cid: htypes.Cid{Hash: hash}, Size: 0, ChunkCount: 0}, nil
	}
	if len(links) == 1 {
		return PutResult{
			Cid:        htypes.Cid{Hash: links[0].Hash, Key: links[0].Key},
			Size:       totalSize,
			ChunkCount: chunkCount,
		}, nil
	}

	params := b.Params.withDefaults()
	level := links
	for len(level) > 1 {
		var next []htypes.Link
		for i := 0; i < len(level); i += params.MaxLinks {
			end := i + params.MaxLinks
			if end > len(level) {
				end = len(level)
			}
			group := level[i:end]
			if len(group) == 1 && end == len(level) {
				// Trailing odd one out: promote without a redundant wrapper.
				next = append(next, group[0])
				continue
			}
			var groupSize uint64
			for _, l := range group {
				groupSize += l.Size
			}
			node := htypes.TreeNode{LinkType: htypes.LinkFile, Size: groupSize, Links: append([]htypes.Link(nil), group...)}
			encoded, hash := codec.EncodeAndHash(node)
			if _, err := b.Store.Put(ctx, encoded); err != nil {
				return PutResult{}, err
			}
			next = append(next, htypes.Link{Hash: hash, Size: groupSize, LinkType: htypes.LinkFile})
		}
		level = next
	}

	return PutResult{
		Cid:        htypes.Cid{Hash: level[0].Hash, Key: level[0].Key},
		Size:       totalSize,
		ChunkCount: chunkCount,
	}, nil
}

// readChunkSizes walks a rewindable source once, recording only each
// chunk's byte count, to learn the chunk count before the encrypting pass.
func readChunkSizes(open func() (io.Reader, error), chunkSize int) ([]int, error) {
	r, err := open()
	if err != nil {
		return nil, herrors.New("chunker.readChunkSizes", herrors.Io, err)
	}
	var sizes []int
	buf := make([]byte, chunkSize)
	for {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			sizes = append(sizes, n)
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return nil, herrors.New("chunker.readChunkSizes", herrors.Io, readErr)
		}
	}
	return sizes, nil
}
