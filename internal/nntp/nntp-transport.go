package nntp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-while/go-pugbin/internal/models"
)

// DateProbeWindow is how many article numbers PostDate looks at on each
// side of the requested id to step over expired or cancelled articles.
const DateProbeWindow int64 = 10

// ErrNoPostDate is returned when no dated article exists near an id.
var ErrNoPostDate = errors.New("no dated article near requested id")

// Transport exposes the range and metadata queries the group scanner
// runs against one NNTP provider.
type Transport struct {
	pool *Pool
	now  func() time.Time
}

// NewTransport wraps a connection pool.
func NewTransport(pool *Pool) *Transport {
	return &Transport{pool: pool, now: time.Now}
}

// Group returns the server's view of a newsgroup.
func (t *Transport) Group(ctx context.Context, name string) (*GroupInfo, error) {
	gi, err := t.pool.SelectGroup(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("group %s: %w", name, err)
	}
	return gi, nil
}

// PostDate returns the Date of article id, or of the nearest dated article
// when id itself is gone. Newer neighbours are tried before older ones.
func (t *Transport) PostDate(ctx context.Context, name string, id int64) (time.Time, error) {
	lines, err := t.pool.XOver(ctx, name, id, id+DateProbeWindow-1)
	if err != nil && !errors.Is(err, ErrNoArticles) {
		return time.Time{}, err
	}
	for i := range lines {
		if d := ParseNNTPDate(lines[i].Date); !d.IsZero() {
			return d, nil
		}
	}

	lo := max(1, id-DateProbeWindow+1)
	lines, err = t.pool.XOver(ctx, name, lo, id)
	if err != nil && !errors.Is(err, ErrNoArticles) {
		return time.Time{}, err
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if d := ParseNNTPDate(lines[i].Date); !d.IsZero() {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("%s article %d: %w", name, id, ErrNoPostDate)
}

// DaysOld returns the number of whole days between ts and now.
func (t *Transport) DaysOld(ts time.Time) int {
	d := t.now().Sub(ts)
	if d < 0 {
		return 0
	}
	return int(d.Hours() / 24)
}

// DayToPost returns the oldest article that is at most days old.
// It returns the group's first article when everything is younger and
// 0 when even the newest article is older than the cutoff.
func (t *Transport) DayToPost(ctx context.Context, name string, days int) (int64, error) {
	gi, err := t.Group(ctx, name)
	if err != nil {
		return 0, err
	}
	if gi.Count == 0 || gi.Last < gi.First || gi.Last == 0 {
		return 0, nil
	}
	target := t.now().Add(-time.Duration(days) * 24 * time.Hour)

	lastDate, err := t.PostDate(ctx, name, gi.Last)
	if err != nil {
		return 0, err
	}
	if lastDate.Before(target) {
		return 0, nil
	}
	firstDate, err := t.PostDate(ctx, name, gi.First)
	if err != nil {
		return 0, err
	}
	if !firstDate.Before(target) {
		return gi.First, nil
	}

	// date(lo) < target <= date(hi)
	lo, hi := gi.First, gi.Last
	for hi-lo > 1 {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		mid := lo + (hi-lo)/2
		d, err := t.PostDate(ctx, name, mid)
		if err != nil {
			return 0, err
		}
		if d.Before(target) {
			lo = mid
		} else {
			hi = mid
		}
	}
	log.Printf("[NNTP] %s: %d days back is article %d (server %d-%d)", name, days, hi, gi.First, gi.Last)
	return hi, nil
}

// Scan fetches the overview of the inclusive window start-end. An empty
// result is returned as-is; the caller decides whether that is an error.
func (t *Transport) Scan(ctx context.Context, name string, start, end int64) ([]*models.RawMessage, error) {
	lines, err := t.pool.XOver(ctx, name, start, end)
	if err != nil {
		if errors.Is(err, ErrNoArticles) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan %s %d-%d: %w", name, start, end, err)
	}
	msgs := make([]*models.RawMessage, 0, len(lines))
	for i := range lines {
		if lines[i].ArticleNum < start || lines[i].ArticleNum > end {
			continue
		}
		msgs = append(msgs, toRawMessage(name, &lines[i]))
	}
	return msgs, nil
}
