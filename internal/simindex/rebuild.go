package simindex

import (
	"context"
	"fmt"
	"sort"
	"time"

	"aria/internal/logging"
)

// Entry is one track's vector as supplied to Rebuild.
type Entry struct {
	TrackID int64
	Vector  []float32
}

const kmeansIterations = 12

// Rebuild replaces the index contents from scratch. The new snapshot is
// assembled off to the side and swapped in atomically, so concurrent queries
// keep answering against the old one until the swap. Only one rebuild may run
// at a time.
func (idx *Index) Rebuild(ctx context.Context, entries []Entry) error {
	if !idx.rebuilding.CompareAndSwap(false, true) {
		return ErrRebuildInProgress
	}
	defer idx.rebuilding.Store(false)

	// Cycle the mutation lock once so every mutation from here on observes
	// the rebuilding flag and lands in the journal.
	idx.mu.Lock()
	idx.pending = nil
	idx.mu.Unlock()

	started := time.Now()
	snap, err := idx.buildSnapshot(ctx, entries)
	if err != nil {
		idx.mu.Lock()
		idx.pending = nil
		idx.mu.Unlock()
		return err
	}
	snap.buildElapsed = time.Since(started)
	idx.publishRebuilt(snap)

	idx.logger.Info("index rebuilt",
		logging.Int("vectors", snap.live),
		logging.Bool("clustered", snap.clustered),
		logging.Int("clusters", len(snap.members)),
		logging.Duration("elapsed", snap.buildElapsed),
	)
	return nil
}

// publishRebuilt swaps the rebuilt snapshot in. Mutations journaled while the
// snapshot was being assembled are replayed first so they survive the swap.
func (idx *Index) publishRebuilt(snap *snapshot) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, m := range idx.pending {
		m.apply(snap)
	}
	idx.pending = nil
	idx.current.Store(snap)
}

// buildSnapshot assembles a compact snapshot from entries. Duplicate track
// IDs keep the last entry. Input order does not affect the result: entries
// are sorted by track ID before layout so rebuilds are deterministic.
func (idx *Index) buildSnapshot(ctx context.Context, entries []Entry) (*snapshot, error) {
	dim := idx.opts.Dimension
	latest := make(map[int64][]float32, len(entries))
	for _, entry := range entries {
		if len(entry.Vector) != dim {
			return nil, fmt.Errorf("%w: track %d has %d, index wants %d", ErrDimensionMismatch, entry.TrackID, len(entry.Vector), dim)
		}
		latest[entry.TrackID] = entry.Vector
	}

	ids := make([]int64, 0, len(latest))
	for id := range latest {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	snap := &snapshot{
		dimension: dim,
		ids:       ids,
		vectors:   make([]float32, 0, len(ids)*dim),
		deleted:   make([]bool, len(ids)),
		byID:      make(map[int64]int, len(ids)),
		live:      len(ids),
		rebuiltAt: time.Now().UTC(),
	}
	for ordinal, id := range ids {
		snap.vectors = append(snap.vectors, normalize(latest[id])...)
		snap.byID[id] = ordinal
	}

	if idx.opts.ExactMaxVectors > 0 && snap.live > idx.opts.ExactMaxVectors && idx.opts.Clusters > 1 {
		if err := cluster(ctx, snap, idx.opts.Clusters); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

// cluster partitions the snapshot with spherical k-means. Initial centroids
// are evenly spaced over the ID-sorted vectors, so clustering is
// deterministic for a given input set.
func cluster(ctx context.Context, snap *snapshot, clusters int) error {
	count := len(snap.ids)
	if clusters > count {
		clusters = count
	}
	dim := snap.dimension

	centroids := make([]float32, clusters*dim)
	for c := 0; c < clusters; c++ {
		seed := c * count / clusters
		copy(centroids[c*dim:(c+1)*dim], snap.vectorAt(seed))
	}

	assignment := make([]int, count)
	for iteration := 0; iteration < kmeansIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		changed := false
		for ordinal := 0; ordinal < count; ordinal++ {
			vector := snap.vectorAt(ordinal)
			best, bestScore := 0, dot(vector, centroids[:dim])
			for c := 1; c < clusters; c++ {
				if score := dot(vector, centroids[c*dim:(c+1)*dim]); score > bestScore {
					best, bestScore = c, score
				}
			}
			if assignment[ordinal] != best {
				assignment[ordinal] = best
				changed = true
			}
		}
		if iteration > 0 && !changed {
			break
		}

		sums := make([]float64, clusters*dim)
		counts := make([]int, clusters)
		for ordinal := 0; ordinal < count; ordinal++ {
			c := assignment[ordinal]
			counts[c]++
			vector := snap.vectorAt(ordinal)
			for d := 0; d < dim; d++ {
				sums[c*dim+d] += float64(vector[d])
			}
		}
		for c := 0; c < clusters; c++ {
			if counts[c] == 0 {
				// Empty cluster keeps its previous centroid.
				continue
			}
			mean := make([]float32, dim)
			for d := 0; d < dim; d++ {
				mean[d] = float32(sums[c*dim+d] / float64(counts[c]))
			}
			copy(centroids[c*dim:(c+1)*dim], normalize(mean))
		}
	}

	members := make([][]int32, clusters)
	for ordinal := 0; ordinal < count; ordinal++ {
		c := assignment[ordinal]
		members[c] = append(members[c], int32(ordinal))
	}

	snap.clustered = true
	snap.centroids = centroids
	snap.members = members
	return nil
}
