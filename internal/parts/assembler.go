package parts

import (
	"context"
	"errors"
	"fmt"
	"log"
	"maps"
	"slices"
	"time"

	"github.com/go-while/go-pugbin/internal/database"
	"github.com/go-while/go-pugbin/internal/models"
)

// ErrPartUnresolved means a part that must exist after the part insert has
// no row. It signals a bug or a store consistency failure, never a
// transient condition.
var ErrPartUnresolved = errors.New("part unresolved after insert")

// Store opens the transactional session one SaveAll call runs in.
type Store interface {
	WithPartSession(ctx context.Context, fn func(database.PartSession) error) error
}

// SaveStats summarizes one SaveAll call.
type SaveStats struct {
	Parts      int           `json:"parts"`      // new part rows
	Segments   int           `json:"segments"`   // new segment rows
	Duplicates int           `json:"duplicates"` // segments already stored
	Collisions int           `json:"collisions"` // keys matching more than one stored part
	Took       time.Duration `json:"took"`
}

// Assembler reconciles batches against the store.
type Assembler struct {
	store Store
	stats *Stats
}

func NewAssembler(store Store, stats *Stats) *Assembler {
	if stats == nil {
		stats = NewStats()
	}
	return &Assembler{store: store, stats: stats}
}

// Stats returns the counters shared by all SaveAll calls.
func (a *Assembler) Stats() *Stats {
	return a.stats
}

// SaveAll persists a batch in one transaction:
// stage new parts, bulk-insert them, resolve ids, stage new segments,
// bulk-insert them. Either everything is committed or nothing is.
func (a *Assembler) SaveAll(ctx context.Context, groupName string, batch Batch) (SaveStats, error) {
	var st SaveStats
	if len(batch) == 0 {
		return st, nil
	}
	start := time.Now()
	hashes := batch.Hashes()

	err := a.store.WithPartSession(ctx, func(s database.PartSession) error {
		existing, err := s.FindParts(ctx, groupName, hashes)
		if err != nil {
			return err
		}
		current, _ := resolveCurrent(existing)

		partInserts := planPartInserts(batch, current)
		if err := s.CopyParts(ctx, partInserts); err != nil {
			return err
		}

		resolved, err := s.FindParts(ctx, groupName, hashes)
		if err != nil {
			return err
		}
		if err := s.LoadSegments(ctx, resolved); err != nil {
			return err
		}
		current, collisions := resolveCurrent(resolved)

		segmentInserts, duplicates, err := planSegmentInserts(batch, current)
		if err != nil {
			return err
		}
		if err := s.CopySegments(ctx, segmentInserts); err != nil {
			return err
		}

		st = SaveStats{
			Parts:      len(partInserts),
			Segments:   len(segmentInserts),
			Duplicates: duplicates,
			Collisions: collisions,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPartUnresolved) {
			log.Printf("[PARTS] %s: FATAL %v", groupName, err)
			return SaveStats{}, err
		}
		return SaveStats{}, fmt.Errorf("save parts %s: %w", groupName, err)
	}
	st.Took = time.Since(start)

	a.stats.Parts.Add(groupName, int64(st.Parts))
	a.stats.Segments.Add(groupName, int64(st.Segments))
	a.stats.Duplicates.Add(groupName, int64(st.Duplicates))
	a.stats.Collisions.Add(groupName, int64(st.Collisions))
	log.Printf("[PARTS] %s: saved %d parts and %d segments (%d duplicate segments, %d key collisions) in %v",
		groupName, st.Parts, st.Segments, st.Duplicates, st.Collisions, st.Took)
	return st, nil
}

// resolveCurrent maps each hash to its merge target. Stored parts arrive
// oldest first, so for colliding keys the most recently posted part ends up
// in the map. collisions counts keys that matched more than one part.
func resolveCurrent(stored []*models.Part) (map[int64]*models.Part, int) {
	current := make(map[int64]*models.Part, len(stored))
	seen := make(map[int64]int, len(stored))
	for _, p := range stored {
		current[p.Hash] = p
		seen[p.Hash]++
	}
	collisions := 0
	for _, n := range seen {
		if n > 1 {
			collisions++
		}
	}
	return current, collisions
}

// planPartInserts returns row copies of the batch parts that have no
// merge target. Segments are left off the copies.
func planPartInserts(batch Batch, current map[int64]*models.Part) []*models.Part {
	var inserts []*models.Part
	for _, hash := range batch.Hashes() {
		if _, ok := current[hash]; ok {
			continue
		}
		row := *batch[hash]
		row.Segments = nil
		inserts = append(inserts, &row)
	}
	return inserts
}

// planSegmentInserts attaches every batch segment to its resolved part and
// drops those whose slot is already stored.
func planSegmentInserts(batch Batch, current map[int64]*models.Part) ([]*models.Segment, int, error) {
	var inserts []*models.Segment
	duplicates := 0
	for _, hash := range batch.Hashes() {
		part := batch[hash]
		target, ok := current[hash]
		if !ok {
			return nil, 0, fmt.Errorf("%w: hash %d subject %q", ErrPartUnresolved, hash, part.Subject)
		}
		for _, num := range sortedSegmentNumbers(part.Segments) {
			if _, taken := target.Segments[num]; taken {
				duplicates++
				continue
			}
			seg := *part.Segments[num]
			seg.PartID = target.ID
			inserts = append(inserts, &seg)
		}
	}
	return inserts, duplicates, nil
}

func sortedSegmentNumbers(segs map[int]*models.Segment) []int {
	return slices.Sorted(maps.Keys(segs))
}
