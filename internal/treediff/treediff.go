// Package treediff computes the structural difference between two trees:
// which nodes of a new tree are already present (by hash) in an old tree,
// and which are genuinely new — spec §4.6's generalization of the
// teacher's fsmerkle.DiffTrees, which did the same structural-sharing
// short-circuit (skip a subtree entirely once its hash is known to match)
// but only ever compared two filesystem-mirroring Merkle trees. Here either
// side of the diff is any stored hashtree, not necessarily rooted in a
// working directory.
package treediff

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/htreeio/hashtree/internal/codec"
	"github.com/htreeio/hashtree/internal/htypes"
	"github.com/htreeio/hashtree/internal/store"
)

// DiffStats summarizes a diff of the new tree against the old tree's hash
// set. A shared subtree is counted once in Reused/ReusedBytes, by its
// topmost hash and that hash's stored size; its descendants are not visited.
type DiffStats struct {
	Added       int
	Reused      int
	AddedBytes  uint64
	ReusedBytes uint64
}

// HashSizes maps each hash reachable from a tree to its stored byte
// length, letting a later diff account for reused bytes without
// refetching a subtree it's about to skip.
type HashSizes map[htypes.Hash]uint64

// CollectHashes walks every node and leaf reachable from root and returns
// the set of hashes seen (with their stored sizes), fanning out across
// sibling links via errgroup, one goroutine per link with no bound on
// their number.
func CollectHashes(ctx context.Context, s store.Store, root htypes.Cid) (HashSizes, error) {
	return CollectHashesWithProgress(ctx, s, root, nil)
}

// CollectHashesWithProgress is CollectHashes with an optional callback
// invoked once per node visited, for progress reporting on large trees.
func CollectHashesWithProgress(ctx context.Context, s store.Store, root htypes.Cid, progress func(int)) (HashSizes, error) {
	var mu sync.Mutex
	seen := make(HashSizes)
	var visited int

	var walk func(ctx context.Context, hash htypes.Hash) error
	walk = func(ctx context.Context, hash htypes.Hash) error {
		mu.Lock()
		if _, ok := seen[hash]; ok {
			mu.Unlock()
			return nil
		}
		mu.Unlock()

		data, err := s.Get(ctx, hash)
		if err != nil {
			return err
		}

		mu.Lock()
		seen[hash] = uint64(len(data))
		visited++
		if progress != nil {
			progress(visited)
		}
		mu.Unlock()

		node, ok := codec.TryDecodeTreeNode(data)
		if !ok {
			return nil
		}
		g, gctx := errgroup.WithContext(ctx)
		for _, l := range node.Links {
			l := l
			g.Go(func() error { return walk(gctx, l.Hash) })
		}
		return g.Wait()
	}

	if err := walk(ctx, root.Hash); err != nil {
		return nil, err
	}
	return seen, nil
}

// TreeDiff reports how much of newRoot is already covered by oldRoot's
// hash set.
func TreeDiff(ctx context.Context, s store.Store, oldRoot, newRoot htypes.Cid) (DiffStats, error) {
	oldHashes, err := CollectHashes(ctx, s, oldRoot)
	if err != nil {
		return DiffStats{}, err
	}
	return TreeDiffWithOldHashes(ctx, s, oldHashes, newRoot)
}

// TreeDiffWithOldHashes diffs newRoot against a precomputed old-hash set,
// letting callers amortize CollectHashes across many diffs against the
// same baseline.
func TreeDiffWithOldHashes(ctx context.Context, s store.Store, oldHashes HashSizes, newRoot htypes.Cid) (DiffStats, error) {
	return treeDiffStreaming(ctx, s, oldHashes, newRoot, nil)
}

// DiffEvent is reported once per node during TreeDiffStreaming.
type DiffEvent struct {
	Hash  htypes.Hash
	Bytes uint64
	New   bool
}

// TreeDiffStreaming is TreeDiff but reports each node as it's classified,
// for callers that want incremental progress rather than a final total.
func TreeDiffStreaming(ctx context.Context, s store.Store, oldRoot, newRoot htypes.Cid, onEvent func(DiffEvent)) (DiffStats, error) {
	oldHashes, err := CollectHashes(ctx, s, oldRoot)
	if err != nil {
		return DiffStats{}, err
	}
	return treeDiffStreaming(ctx, s, oldHashes, newRoot, onEvent)
}

func treeDiffStreaming(ctx context.Context, s store.Store, oldHashes HashSizes, newRoot htypes.Cid, onEvent func(DiffEvent)) (DiffStats, error) {
	var mu sync.Mutex
	stats := DiffStats{}
	visitedNew := make(map[htypes.Hash]bool)

	var walk func(ctx context.Context, hash htypes.Hash) error
	walk = func(ctx context.Context, hash htypes.Hash) error {
		mu.Lock()
		if visitedNew[hash] {
			mu.Unlock()
			return nil
		}
		visitedNew[hash] = true
		if size, ok := oldHashes[hash]; ok {
			stats.Reused++
			stats.ReusedBytes += size
			mu.Unlock()
			if onEvent != nil {
				onEvent(DiffEvent{Hash: hash, Bytes: size, New: false})
			}
			return nil
		}
		mu.Unlock()

		data, err := s.Get(ctx, hash)
		if err != nil {
			return err
		}
		mu.Lock()
		stats.Added++
		stats.AddedBytes += uint64(len(data))
		mu.Unlock()
		if onEvent != nil {
			onEvent(DiffEvent{Hash: hash, Bytes: uint64(len(data)), New: true})
		}

		node, ok := codec.TryDecodeTreeNode(data)
		if !ok {
			return nil
		}
		g, gctx := errgroup.WithContext(ctx)
		for _, l := range node.Links {
			l := l
			g.Go(func() error { return walk(gctx, l.Hash) })
		}
		return g.Wait()
	}

	if err := walk(ctx, newRoot.Hash); err != nil {
		return DiffStats{}, err
	}
	return stats, nil
}
