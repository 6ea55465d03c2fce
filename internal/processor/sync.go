package processor

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Update scans forward from the stored last article to the newest article
// on the server. A group without watermarks is bootstrapped from the
// article NewGroupScanDays old, and its first article is stored before
// any scanning happens. A group with only a first article resumes there.
func (proc *Processor) Update(ctx context.Context, name string) (res *SyncResult, err error) {
	release, err := proc.acquire(name)
	if err != nil {
		return nil, err
	}
	defer release()
	started := time.Now()

	g, err := proc.store.GetGroup(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", name, err)
	}
	if g == nil {
		return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, name)
	}
	res = newResult(name, DirectionUpdate, g.First, g.Last)
	defer func() { res.Took = time.Since(started) }()

	gi, err := proc.transport.Group(ctx, name)
	if err != nil {
		return res.abort(fmt.Errorf("update %s: %w", name, err))
	}

	var start int64
	switch {
	case g.Last != nil:
		if gi.Last < *g.Last {
			return res.abort(fmt.Errorf("%w: %s server last %d, stored last %d", ErrInconsistentSource, name, gi.Last, *g.Last))
		}
		start = *g.Last + 1
	case g.First != nil:
		// bootstrapped earlier but no forward batch committed yet
		start = *g.First
		log.Printf("[SYNC] update %s: resuming bootstrap at article %d", name, start)
	default:
		start, err = proc.transport.DayToPost(ctx, name, proc.cfg.NewGroupScanDays)
		if err != nil {
			return res.abort(fmt.Errorf("%w: %s: %w", ErrBootstrap, name, err))
		}
		if start <= 0 {
			return res.abort(fmt.Errorf("%w: %s has no article within %d days", ErrBootstrap, name, proc.cfg.NewGroupScanDays))
		}
		if err := proc.store.SetGroupFirst(context.WithoutCancel(ctx), name, start); err != nil {
			return res.abort(fmt.Errorf("%w: %s first: %w", ErrPersist, name, err))
		}
		res.First = copyInt64(&start)
		log.Printf("[SYNC] update %s: new group starts at article %d (%d days back)", name, start, proc.cfg.NewGroupScanDays)
	}

	if start > gi.Last {
		log.Printf("[SYNC] update %s: up to date at %d", name, gi.Last)
		res.State = StateDone.String()
		return res, nil
	}

	rules, err := proc.loadRules(ctx)
	if err != nil {
		return res.abort(fmt.Errorf("update %s: %w", name, err))
	}
	if err := proc.newScanLoop(name, DirectionUpdate, start, gi.Last, rules, res).run(ctx); err != nil {
		return res, err
	}
	log.Printf("[SYNC] update %s: done, %d batches %d articles, %d new parts %d new segments, last=%d",
		name, res.Batches, res.Articles, res.Parts, res.Segments, gi.Last)
	return res, nil
}

// BackfillTarget selects how far back Backfill goes. Date wins over Days;
// when both are empty ScanConfig.BackfillDays is used.
type BackfillTarget struct {
	Date *time.Time
	Days int
}

// Backfill scans backward from the stored first article to the article
// matching target. Targets older than the server's retention are clamped
// to its oldest article.
func (proc *Processor) Backfill(ctx context.Context, name string, target BackfillTarget) (res *SyncResult, err error) {
	release, err := proc.acquire(name)
	if err != nil {
		return nil, err
	}
	defer release()
	started := time.Now()

	g, err := proc.store.GetGroup(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("backfill %s: %w", name, err)
	}
	if g == nil {
		return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, name)
	}
	if g.First == nil {
		return nil, fmt.Errorf("%w: %s", ErrPrerequisite, name)
	}
	res = newResult(name, DirectionBackfill, g.First, g.Last)
	defer func() { res.Took = time.Since(started) }()
	first := *g.First

	days := target.Days
	switch {
	case target.Date != nil:
		days = proc.transport.DaysOld(*target.Date)
	case days <= 0:
		days = proc.cfg.BackfillDays
	}
	targetID, err := proc.transport.DayToPost(ctx, name, days)
	if err != nil {
		return res.abort(fmt.Errorf("backfill %s: resolve target %d days: %w", name, days, err))
	}
	if targetID <= 0 || targetID >= first {
		log.Printf("[SYNC] backfill %s: nothing older to fetch (target %d, first %d)", name, targetID, first)
		res.State = StateDone.String()
		return res, nil
	}

	gi, err := proc.transport.Group(ctx, name)
	if err != nil {
		return res.abort(fmt.Errorf("backfill %s: %w", name, err))
	}
	if targetID < gi.First {
		log.Printf("[SYNC] backfill %s: WARN target %d is past server retention, clamping to %d", name, targetID, gi.First)
		targetID = gi.First
		if targetID >= first {
			res.State = StateDone.String()
			return res, nil
		}
	}

	rules, err := proc.loadRules(ctx)
	if err != nil {
		return res.abort(fmt.Errorf("backfill %s: %w", name, err))
	}
	if err := proc.newScanLoop(name, DirectionBackfill, first-1, targetID, rules, res).run(ctx); err != nil {
		return res, err
	}
	log.Printf("[SYNC] backfill %s: done, %d batches %d articles, %d new parts %d new segments, first=%d",
		name, res.Batches, res.Articles, res.Parts, res.Segments, targetID)
	return res, nil
}
