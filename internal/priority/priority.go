// Package priority implements spec §4.8: per-tree priority tiers, a single
// quota over tracked indexed-tree bytes, and tree-granularity eviction that
// never touches a pinned hash or a blob still reachable from a
// higher-priority retained tree.
//
// There's no teacher analogue for quota/eviction — the teacher repo has no
// storage budget concept at all — so this is built directly from
// spec.md §4.8's policy description, over internal/boltstore's
// indexed_trees/pins tables, in the same small-package, typed-constants
// style the teacher uses for its own domain enums (refs.RefType, the shape
// htypes.Priority follows).
package priority

import (
	"context"
	"sort"
	"strconv"

	"github.com/htreeio/hashtree/internal/boltstore"
	"github.com/htreeio/hashtree/internal/htypes"
	"github.com/htreeio/hashtree/internal/metrics"
	"github.com/htreeio/hashtree/internal/treediff"
)

// Manager tracks a single quota over an Index's indexed trees.
type Manager struct {
	Index        *boltstore.Index
	MaxSizeBytes uint64
}

// New constructs a Manager with the given quota.
func New(idx *boltstore.Index, maxSizeBytes uint64) *Manager {
	return &Manager{Index: idx, MaxSizeBytes: maxSizeBytes}
}

// StorageByPriority reports per-tier tracked byte totals, summing each
// indexed tree's recorded TotalSize within its priority tier.
func (m *Manager) StorageByPriority(ctx context.Context) (map[htypes.Priority]uint64, error) {
	trees, err := m.Index.ListIndexedTrees(ctx)
	if err != nil {
		return nil, err
	}
	totals := make(map[htypes.Priority]uint64)
	for _, rec := range trees {
		totals[rec.Priority] += rec.TotalSize
	}
	metrics.SetStorageByPriority(totals)
	return totals, nil
}

// trackedTotal sums TotalSize across every indexed tree.
func trackedTotal(trees map[htypes.Hash]htypes.IndexedTree) uint64 {
	var total uint64
	for _, rec := range trees {
		total += rec.TotalSize
	}
	return total
}

// EvictResult reports what EvictIfNeeded did.
type EvictResult struct {
	TreesEvicted int
	BytesFreed   uint64
}

// EvictIfNeeded releases blobs from the lowest-priority indexed trees,
// oldest-synced first, until tracked size is at or under the quota, never
// touching a pinned hash or a blob still reachable from a surviving tree.
func (m *Manager) EvictIfNeeded(ctx context.Context) (EvictResult, error) {
	trees, err := m.Index.ListIndexedTrees(ctx)
	if err != nil {
		return EvictResult{}, err
	}
	tracked := trackedTotal(trees)
	if tracked <= m.MaxSizeBytes {
		metrics.EvictionRuns.WithLabelValues("false").Inc()
		return EvictResult{}, nil
	}

	type candidate struct {
		hash htypes.Hash
		rec  htypes.IndexedTree
	}
	order := make([]candidate, 0, len(trees))
	for h, rec := range trees {
		order = append(order, candidate{hash: h, rec: rec})
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].rec.Priority != order[j].rec.Priority {
			return order[i].rec.Priority < order[j].rec.Priority
		}
		return order[i].rec.SyncedAt < order[j].rec.SyncedAt
	})

	remaining := make(map[htypes.Hash]htypes.IndexedTree, len(trees))
	for h, rec := range trees {
		remaining[h] = rec
	}

	pins, err := m.Index.ListPins(ctx)
	if err != nil {
		return EvictResult{}, err
	}
	pinned := make(map[htypes.Hash]bool, len(pins))
	for _, h := range pins {
		pinClosure, err := treediff.CollectHashes(ctx, m.Index, htypes.Cid{Hash: h})
		if err != nil {
			return EvictResult{}, err
		}
		for ph := range pinClosure {
			pinned[ph] = true
		}
	}

	var result EvictResult
	for _, c := range order {
		if tracked <= m.MaxSizeBytes {
			break
		}
		if _, ok := remaining[c.hash]; !ok {
			continue
		}

		closure, err := treediff.CollectHashes(ctx, m.Index, htypes.Cid{Hash: c.hash})
		if err != nil {
			return EvictResult{}, err
		}

		delete(remaining, c.hash)
		retained, err := m.reachableFrom(ctx, remaining)
		if err != nil {
			return EvictResult{}, err
		}

		var freed uint64
		for h, size := range closure {
			if pinned[h] || retained[h] {
				continue
			}
			if err := m.Index.DeleteBlob(ctx, h); err != nil {
				return EvictResult{}, err
			}
			freed += size
		}

		if err := m.Index.DeleteIndexedTree(ctx, c.hash); err != nil {
			return EvictResult{}, err
		}
		tracked -= c.rec.TotalSize
		result.TreesEvicted++
		result.BytesFreed += freed
	}

	metrics.EvictionRuns.WithLabelValues(strconv.FormatBool(result.BytesFreed > 0)).Inc()
	metrics.EvictedBytes.Add(float64(result.BytesFreed))
	return result, nil
}

// reachableFrom unions the closures of every still-indexed tree in trees.
func (m *Manager) reachableFrom(ctx context.Context, trees map[htypes.Hash]htypes.IndexedTree) (map[htypes.Hash]bool, error) {
	reachable := make(map[htypes.Hash]bool)
	for h := range trees {
		closure, err := treediff.CollectHashes(ctx, m.Index, htypes.Cid{Hash: h})
		if err != nil {
			return nil, err
		}
		for ch := range closure {
			reachable[ch] = true
		}
	}
	return reachable, nil
}
