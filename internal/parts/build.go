package parts

import (
	"slices"

	"github.com/go-while/go-pugbin/internal/models"
)

// Batch holds the logical parts of one scan keyed by dedup hash.
type Batch map[int64]*models.Part

// Hashes returns the batch keys in ascending order.
func (b Batch) Hashes() []int64 {
	hashes := make([]int64, 0, len(b))
	for h := range b {
		hashes = append(hashes, h)
	}
	slices.Sort(hashes)
	return hashes
}

// SegmentCount returns the number of segments held by the batch.
func (b Batch) SegmentCount() int {
	n := 0
	for _, p := range b {
		n += len(p.Segments)
	}
	return n
}

// BuildStats counts what Build did with the scanned messages.
type BuildStats struct {
	Received    int `json:"received"`
	Blacklisted int `json:"blacklisted"`
	Ignored     int `json:"ignored"` // no usable (n/N) marker
	Reposts     int `json:"reposts"` // same segment seen twice in one scan
}

// Build folds scanned messages into logical parts. Messages without a
// segment marker and blacklisted messages are dropped. The first message
// of a part sets its attributes; when one scan carries the same segment
// twice the later-posted article wins the slot.
func Build(groupName string, msgs []*models.RawMessage, rules []models.BlacklistRule) (Batch, BuildStats) {
	batch := make(Batch)
	stats := BuildStats{Received: len(msgs)}

	for _, m := range msgs {
		if m.Segment < 1 || m.TotalSegments < 1 || m.Segment > m.TotalSegments {
			stats.Ignored++
			continue
		}
		if IsBlacklisted(m.Subject, groupName, rules) {
			stats.Blacklisted++
			continue
		}

		hash := GenerateHash(m.Subject, m.From, groupName, m.TotalSegments)
		part, ok := batch[hash]
		if !ok {
			part = &models.Part{
				Hash:          hash,
				Subject:       m.Subject,
				GroupName:     groupName,
				Posted:        m.Posted,
				PostedBy:      m.From,
				TotalSegments: m.TotalSegments,
				Xref:          m.Xref,
				Segments:      make(map[int]*models.Segment),
			}
			batch[hash] = part
		}

		seg := &models.Segment{
			Segment:   m.Segment,
			Size:      m.Bytes,
			MessageID: m.MessageID,
			Posted:    m.Posted,
		}
		if prev, dup := part.Segments[m.Segment]; dup {
			stats.Reposts++
			if seg.Posted.Before(prev.Posted) {
				continue
			}
		}
		part.Segments[m.Segment] = seg
	}
	return batch, stats
}
