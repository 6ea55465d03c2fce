package parts

import (
	"maps"
	"sync"
)

// Counter counts events per group.
type Counter struct {
	mux sync.Mutex       // Mutex to protect map access
	Map map[string]int64 // Map to count events per group
}

func NewCounter() *Counter {
	return &Counter{
		Map: make(map[string]int64, 256),
	}
}

func (c *Counter) Get(group string) int64 {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.Map[group]
}

// Snapshot returns a copy of all counts.
func (c *Counter) Snapshot() map[string]int64 {
	c.mux.Lock()
	defer c.mux.Unlock()
	return maps.Clone(c.Map)
}

func (c *Counter) Add(group string, value int64) {
	if value == 0 {
		return
	}
	c.mux.Lock()
	defer c.mux.Unlock()
	c.Map[group] += value
}

// Stats are the operator-facing counters of an Assembler.
type Stats struct {
	Parts       *Counter // new part rows
	Segments    *Counter // new segment rows
	Duplicates  *Counter // segments discarded because the slot was taken
	Collisions  *Counter // dedup keys that matched more than one stored part
	Blacklisted *Counter
	Ignored     *Counter // messages without a segment marker
}

func NewStats() *Stats {
	return &Stats{
		Parts:       NewCounter(),
		Segments:    NewCounter(),
		Duplicates:  NewCounter(),
		Collisions:  NewCounter(),
		Blacklisted: NewCounter(),
		Ignored:     NewCounter(),
	}
}

// Snapshot returns all counters keyed by name, then group.
func (s *Stats) Snapshot() map[string]map[string]int64 {
	return map[string]map[string]int64{
		"parts":       s.Parts.Snapshot(),
		"segments":    s.Segments.Snapshot(),
		"duplicates":  s.Duplicates.Snapshot(),
		"collisions":  s.Collisions.Snapshot(),
		"blacklisted": s.Blacklisted.Snapshot(),
		"ignored":     s.Ignored.Snapshot(),
	}
}

// RecordBuild adds the filter counts of one Build call.
func (s *Stats) RecordBuild(group string, bs BuildStats) {
	s.Blacklisted.Add(group, int64(bs.Blacklisted))
	s.Ignored.Add(group, int64(bs.Ignored))
}
