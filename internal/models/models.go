// Package models defines core data structures for go-pugbin
package models

import (
	"time"
)

// Group represents a newsgroup whose binary posts are ingested.
// First and Last are the durable watermark cursor; both are nil until the
// first successful update.
type Group struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	First     *int64    `json:"first" db:"first_article"`
	Last      *int64    `json:"last" db:"last_article"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HasWatermarks reports whether both ends of the cursor are established.
func (g *Group) HasWatermarks() bool {
	return g != nil && g.First != nil && g.Last != nil
}

// Part is one logical multi-segment posting as observed in a group.
type Part struct {
	ID            int64     `json:"id" db:"id"`
	Hash          int64     `json:"hash" db:"hash"`
	Subject       string    `json:"subject" db:"subject"`
	GroupName     string    `json:"group_name" db:"group_name"`
	Posted        time.Time `json:"posted" db:"posted"`
	PostedBy      string    `json:"posted_by" db:"posted_by"`
	TotalSegments int       `json:"total_segments" db:"total_segments"`
	Xref          string    `json:"xref" db:"xref"`

	// Segments keyed by segment number. Only populated when loaded or built.
	Segments map[int]*Segment `json:"segments,omitempty" db:"-"`
}

// Segment is one physical article contributing to a Part.
type Segment struct {
	ID        int64  `json:"id" db:"id"`
	PartID    int64  `json:"part_id" db:"part_id"`
	Segment   int    `json:"segment" db:"segment"`
	Size      int64  `json:"size" db:"size"`
	MessageID string `json:"message_id" db:"message_id"`

	Posted time.Time `json:"-" db:"-"` // not persisted; picks between reposts in one batch
}

// RawMessage is one overview record returned by a scan, already split
// into the base subject and its (n/N) segment marker.
type RawMessage struct {
	ArticleNum    int64
	Subject       string // subject with the segment marker removed
	From          string
	Group         string
	Posted        time.Time
	Segment       int // 0 when the subject carries no marker
	TotalSegments int
	Bytes         int64
	Lines         int64
	MessageID     string // without angle brackets
	Xref          string
}

// BlacklistRule drops messages whose group matches GroupName and whose
// subject matches Regex. Both are regular expressions.
type BlacklistRule struct {
	ID          int64  `json:"id" db:"id"`
	GroupName   string `json:"group_name" db:"group_name"`
	Regex       string `json:"regex" db:"regex"`
	Description string `json:"description" db:"description"`
	Active      bool   `json:"active" db:"active"`
}

// GroupStats summarizes what has been stored for one group.
type GroupStats struct {
	Name     string `json:"name"`
	Parts    int64  `json:"parts"`
	Segments int64  `json:"segments"`
}
