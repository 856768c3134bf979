package simindex

import "fmt"

// GeneratePlaylist builds an ordered playlist of up to length tracks starting
// from seed. Each step picks the track most similar to the previous pick,
// skipping tracks already chosen and tracks closer than the configured
// minimum distance (near-duplicates of the previous pick). Every entry
// carries its similarity to the pick before it; the seed scores 1. The walk
// is deterministic for a fixed snapshot.
func (idx *Index) GeneratePlaylist(seedTrackID int64, length int) ([]Neighbor, error) {
	snap := idx.current.Load()
	if snap == nil || snap.live == 0 {
		return nil, ErrIndexNotReady
	}
	ordinal, ok := snap.byID[seedTrackID]
	if !ok || snap.deleted[ordinal] {
		return nil, fmt.Errorf("%w: track %d", ErrNotIndexed, seedTrackID)
	}
	if length < 1 {
		return nil, nil
	}

	playlist := []Neighbor{{TrackID: seedTrackID, Score: 1}}
	picked := map[int64]bool{seedTrackID: true}
	current := seedTrackID

	for len(playlist) < length {
		ordinal := snap.byID[current]
		neighbors := snap.search(snap.vectorAt(ordinal), snap.live, current, idx.opts.ClusterProbes)

		found := false
		for _, neighbor := range neighbors {
			if picked[neighbor.TrackID] {
				continue
			}
			// Cosine distance below the floor means the candidate is
			// effectively the same recording; keep looking.
			if 1-neighbor.Score < idx.opts.PlaylistMinDistance {
				continue
			}
			playlist = append(playlist, neighbor)
			picked[neighbor.TrackID] = true
			current = neighbor.TrackID
			found = true
			break
		}
		if !found {
			break
		}
	}
	return playlist, nil
}
