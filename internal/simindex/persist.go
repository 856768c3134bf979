package simindex

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"aria/internal/fileutil"
)

// File layout, little-endian: magic, format version, dimension, entry count,
// then count records of (track ID int64, dimension float32s). Tombstoned
// vectors are compacted away on save, and clustering is recomputed on load,
// so the ID mapping and the vector data can never drift apart.
var indexMagic = [4]byte{'A', 'R', 'I', 'X'}

const indexFormatVersion uint32 = 1

// ErrCorruptIndex is returned when the persisted file fails validation.
var ErrCorruptIndex = errors.New("corrupt index file")

// Save writes the current snapshot to path atomically.
func (idx *Index) Save(path string) error {
	snap := idx.current.Load()
	if snap == nil {
		snap = &snapshot{dimension: idx.opts.Dimension, byID: map[int64]int{}}
	}

	err := fileutil.WriteAtomic(path, func(w io.Writer) error {
		return writeSnapshot(w, snap)
	})
	if err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

// Load replaces the index contents from a file written by Save. Clustering is
// rebuilt with the current configuration rather than trusted from disk.
func (idx *Index) Load(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer file.Close()

	entries, dimension, err := readEntries(bufio.NewReader(file))
	if err != nil {
		return fmt.Errorf("read index %s: %w", path, err)
	}
	if dimension != uint32(idx.opts.Dimension) {
		return fmt.Errorf("%w: file dimension %d, index wants %d", ErrDimensionMismatch, dimension, idx.opts.Dimension)
	}

	snap, err := idx.buildSnapshot(ctx, entries)
	if err != nil {
		return err
	}
	idx.mu.Lock()
	idx.current.Store(snap)
	idx.mu.Unlock()
	return nil
}

func writeSnapshot(w io.Writer, snap *snapshot) error {
	if _, err := w.Write(indexMagic[:]); err != nil {
		return err
	}
	header := []uint32{indexFormatVersion, uint32(snap.dimension), uint32(snap.live)}
	for _, value := range header {
		if err := binary.Write(w, binary.LittleEndian, value); err != nil {
			return err
		}
	}
	for ordinal, id := range snap.ids {
		if snap.deleted[ordinal] {
			continue
		}
		if current, ok := snap.byID[id]; !ok || current != ordinal {
			continue
		}
		if err := binary.Write(w, binary.LittleEndian, id); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, snap.vectorAt(ordinal)); err != nil {
			return err
		}
	}
	return nil
}

func readEntries(r io.Reader) ([]Entry, uint32, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, 0, fmt.Errorf("%w: short header", ErrCorruptIndex)
	}
	if magic != indexMagic {
		return nil, 0, fmt.Errorf("%w: bad magic", ErrCorruptIndex)
	}

	var version, dimension, count uint32
	for _, target := range []*uint32{&version, &dimension, &count} {
		if err := binary.Read(r, binary.LittleEndian, target); err != nil {
			return nil, 0, fmt.Errorf("%w: short header", ErrCorruptIndex)
		}
	}
	if version != indexFormatVersion {
		return nil, 0, fmt.Errorf("%w: unsupported format version %d", ErrCorruptIndex, version)
	}
	if dimension == 0 || dimension > 1<<16 || count > 1<<28 {
		return nil, 0, fmt.Errorf("%w: implausible header", ErrCorruptIndex)
	}

	entries := make([]Entry, 0, count)
	for i := uint32(0); i < count; i++ {
		var id int64
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return nil, 0, fmt.Errorf("%w: truncated at entry %d", ErrCorruptIndex, i)
		}
		vector := make([]float32, dimension)
		if err := binary.Read(r, binary.LittleEndian, vector); err != nil {
			return nil, 0, fmt.Errorf("%w: truncated at entry %d", ErrCorruptIndex, i)
		}
		entries = append(entries, Entry{TrackID: id, Vector: vector})
	}
	return entries, dimension, nil
}
