// Package simindex maintains the in-memory similarity index over track
// feature vectors. Readers always see an immutable snapshot through an atomic
// pointer, so queries never block behind rebuilds or mutations.
package simindex

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"aria/internal/config"
	"aria/internal/logging"
)

var (
	// ErrIndexNotReady is returned before any vectors have been indexed.
	ErrIndexNotReady = errors.New("similarity index not ready")
	// ErrDimensionMismatch is returned when a vector does not match the
	// configured dimensionality.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrRebuildInProgress is returned when a rebuild is already running.
	ErrRebuildInProgress = errors.New("index rebuild in progress")
	// ErrNotIndexed is returned for tracks absent from the index.
	ErrNotIndexed = errors.New("track not indexed")
)

// Options tunes index behavior.
type Options struct {
	Dimension           int
	ExactMaxVectors     int
	Clusters            int
	ClusterProbes       int
	PlaylistMinDistance float64
	Logger              *slog.Logger
}

// OptionsFromConfig maps the index configuration block onto Options.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	return Options{
		Dimension:           cfg.Index.Dimension,
		ExactMaxVectors:     cfg.Index.ExactMaxVectors,
		Clusters:            cfg.Index.Clusters,
		ClusterProbes:       cfg.Index.ClusterProbes,
		PlaylistMinDistance: cfg.Index.PlaylistMinDistance,
		Logger:              logger,
	}
}

// Neighbor is one similarity query hit. Score is cosine similarity in [-1, 1].
type Neighbor struct {
	TrackID int64
	Score   float64
}

// Stats summarizes the current snapshot. BuildDuration is how long the last
// Rebuild took; it is zero for snapshots restored by Load.
type Stats struct {
	Vectors       int
	Tombstones    int
	Dimension     int
	Clustered     bool
	Clusters      int
	RebuiltAt     time.Time
	BuildDuration time.Duration
}

// Index is the similarity index. All methods are safe for concurrent use;
// mutations serialize on an internal lock while reads go straight to the
// current snapshot.
type Index struct {
	opts       Options
	logger     *slog.Logger
	current    atomic.Pointer[snapshot]
	mu         sync.Mutex
	rebuilding atomic.Bool
	// pending journals mutations that commit while a rebuild is in flight,
	// guarded by mu. The rebuild replays them onto the fresh snapshot before
	// publishing it, so a racing AddOrUpdate or Remove is never lost.
	pending []mutation
}

// mutation is one journaled AddOrUpdate or Remove. A nil vector means remove.
type mutation struct {
	trackID int64
	vector  []float32
}

// apply replays the mutation onto an unpublished snapshot.
func (m mutation) apply(snap *snapshot) {
	if ordinal, ok := snap.byID[m.trackID]; ok && !snap.deleted[ordinal] {
		snap.deleted[ordinal] = true
		snap.live--
	}
	if m.vector == nil {
		delete(snap.byID, m.trackID)
		return
	}
	ordinal := len(snap.ids)
	snap.ids = append(snap.ids, m.trackID)
	snap.vectors = append(snap.vectors, m.vector...)
	snap.deleted = append(snap.deleted, false)
	snap.byID[m.trackID] = ordinal
	snap.live++
	if snap.clustered {
		cluster := nearestCentroid(snap, m.vector)
		snap.members[cluster] = append(snap.members[cluster], int32(ordinal))
	}
}

// New constructs an empty index.
func New(opts Options) *Index {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Index{
		opts:   opts,
		logger: logger.With(logging.String(logging.FieldComponent, "simindex")),
	}
}

// snapshot is an immutable view of the index. Vectors are stored
// unit-normalized and flat, ordinal i occupying [i*dim, (i+1)*dim).
type snapshot struct {
	dimension    int
	ids          []int64
	vectors      []float32
	deleted      []bool
	byID         map[int64]int
	live         int
	clustered    bool
	centroids    []float32
	members      [][]int32
	rebuiltAt    time.Time
	buildElapsed time.Duration
}

func (s *snapshot) vectorAt(ordinal int) []float32 {
	return s.vectors[ordinal*s.dimension : (ordinal+1)*s.dimension]
}

// AddOrUpdate inserts or replaces one track's vector without waiting for a
// rebuild. It returns a fresh membership token identifying this insertion.
func (idx *Index) AddOrUpdate(trackID int64, vector []float32) (string, error) {
	if len(vector) != idx.opts.Dimension {
		return "", fmt.Errorf("%w: got %d, index wants %d", ErrDimensionMismatch, len(vector), idx.opts.Dimension)
	}
	normalized := normalize(vector)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	prev := idx.current.Load()
	next := cloneForMutation(prev, idx.opts.Dimension)

	if ordinal, ok := next.byID[trackID]; ok && !next.deleted[ordinal] {
		next.deleted[ordinal] = true
		next.live--
	}

	ordinal := len(next.ids)
	next.ids = append(next.ids, trackID)
	next.vectors = append(next.vectors, normalized...)
	next.deleted = append(next.deleted, false)
	next.byID[trackID] = ordinal
	next.live++

	if next.clustered {
		cluster := nearestCentroid(next, normalized)
		next.members[cluster] = append(next.members[cluster], int32(ordinal))
	}

	idx.current.Store(next)
	if idx.rebuilding.Load() {
		idx.pending = append(idx.pending, mutation{trackID: trackID, vector: normalized})
	}
	return uuid.NewString(), nil
}

// Remove tombstones one track. The vector stays allocated until the next
// rebuild compacts the snapshot.
func (idx *Index) Remove(trackID int64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	prev := idx.current.Load()
	if prev == nil {
		return ErrNotIndexed
	}
	ordinal, ok := prev.byID[trackID]
	if !ok || prev.deleted[ordinal] {
		return ErrNotIndexed
	}

	next := cloneForMutation(prev, idx.opts.Dimension)
	next.deleted[ordinal] = true
	next.live--
	delete(next.byID, trackID)
	idx.current.Store(next)
	if idx.rebuilding.Load() {
		idx.pending = append(idx.pending, mutation{trackID: trackID})
	}
	return nil
}

// Query returns the k nearest tracks to the given vector, best first. Ties
// break on ascending track ID so results are deterministic.
func (idx *Index) Query(vector []float32, k int) ([]Neighbor, error) {
	snap := idx.current.Load()
	if snap == nil || snap.live == 0 {
		return nil, ErrIndexNotReady
	}
	if len(vector) != snap.dimension {
		return nil, fmt.Errorf("%w: got %d, index wants %d", ErrDimensionMismatch, len(vector), snap.dimension)
	}
	if k < 1 {
		return nil, nil
	}
	return snap.search(normalize(vector), k, -1, idx.opts.ClusterProbes), nil
}

// FindSimilar returns the k tracks most similar to an indexed track, best
// first. The track itself ranks first with a score of 1, which doubles as an
// end-to-end sanity check on vector assembly.
func (idx *Index) FindSimilar(trackID int64, k int) ([]Neighbor, error) {
	snap := idx.current.Load()
	if snap == nil || snap.live == 0 {
		return nil, ErrIndexNotReady
	}
	ordinal, ok := snap.byID[trackID]
	if !ok || snap.deleted[ordinal] {
		return nil, fmt.Errorf("%w: track %d", ErrNotIndexed, trackID)
	}
	if k < 1 {
		return nil, nil
	}
	return snap.search(snap.vectorAt(ordinal), k, -1, idx.opts.ClusterProbes), nil
}

// Contains reports whether a track currently has a live vector.
func (idx *Index) Contains(trackID int64) bool {
	snap := idx.current.Load()
	if snap == nil {
		return false
	}
	ordinal, ok := snap.byID[trackID]
	return ok && !snap.deleted[ordinal]
}

// Stats reports the shape of the current snapshot.
func (idx *Index) Stats() Stats {
	snap := idx.current.Load()
	if snap == nil {
		return Stats{Dimension: idx.opts.Dimension}
	}
	return Stats{
		Vectors:       snap.live,
		Tombstones:    len(snap.ids) - snap.live,
		Dimension:     snap.dimension,
		Clustered:     snap.clustered,
		Clusters:      len(snap.members),
		RebuiltAt:     snap.rebuiltAt,
		BuildDuration: snap.buildElapsed,
	}
}

// search scans either the whole snapshot or the probed clusters and keeps the
// top k live hits. exclude filters out one track ID (the query track itself).
func (s *snapshot) search(query []float32, k int, exclude int64, probes int) []Neighbor {
	scan := func(hits []Neighbor, ordinal int) []Neighbor {
		if s.deleted[ordinal] {
			return hits
		}
		id := s.ids[ordinal]
		if id == exclude {
			return hits
		}
		// Superseded ordinal for a re-added track.
		if current, ok := s.byID[id]; !ok || current != ordinal {
			return hits
		}
		return append(hits, Neighbor{TrackID: id, Score: dot(query, s.vectorAt(ordinal))})
	}

	var hits []Neighbor
	if s.clustered {
		for _, cluster := range s.rankClusters(query, probes) {
			for _, ordinal := range s.members[cluster] {
				hits = scan(hits, int(ordinal))
			}
		}
	} else {
		for ordinal := range s.ids {
			hits = scan(hits, ordinal)
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].TrackID < hits[j].TrackID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// rankClusters orders centroids by similarity to the query and returns the
// closest probe count of them.
func (s *snapshot) rankClusters(query []float32, probes int) []int {
	count := len(s.members)
	if probes < 1 {
		probes = 1
	}
	if probes > count {
		probes = count
	}
	order := make([]int, count)
	scores := make([]float64, count)
	for i := 0; i < count; i++ {
		order[i] = i
		scores[i] = dot(query, s.centroids[i*s.dimension:(i+1)*s.dimension])
	}
	sort.Slice(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })
	return order[:probes]
}

func nearestCentroid(s *snapshot, vector []float32) int {
	best, bestScore := 0, math.Inf(-1)
	for i := 0; i < len(s.members); i++ {
		score := dot(vector, s.centroids[i*s.dimension:(i+1)*s.dimension])
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

// cloneForMutation copies the previous snapshot so readers holding it never
// observe the mutation.
func cloneForMutation(prev *snapshot, dimension int) *snapshot {
	if prev == nil {
		return &snapshot{
			dimension: dimension,
			byID:      make(map[int64]int),
			rebuiltAt: time.Now().UTC(),
		}
	}
	next := &snapshot{
		dimension:    prev.dimension,
		ids:          append([]int64(nil), prev.ids...),
		vectors:      append([]float32(nil), prev.vectors...),
		deleted:      append([]bool(nil), prev.deleted...),
		byID:         make(map[int64]int, len(prev.byID)+1),
		live:         prev.live,
		clustered:    prev.clustered,
		centroids:    prev.centroids,
		rebuiltAt:    prev.rebuiltAt,
		buildElapsed: prev.buildElapsed,
	}
	for id, ordinal := range prev.byID {
		next.byID[id] = ordinal
	}
	if prev.clustered {
		next.members = make([][]int32, len(prev.members))
		for i, members := range prev.members {
			next.members[i] = append([]int32(nil), members...)
		}
	}
	return next
}

func normalize(vector []float32) []float32 {
	var sum float64
	for _, v := range vector {
		sum += float64(v) * float64(v)
	}
	out := make([]float32, len(vector))
	if sum == 0 {
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, v := range vector {
		out[i] = float32(float64(v) * inv)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
