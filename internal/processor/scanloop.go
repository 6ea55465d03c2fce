package processor

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/go-while/go-pugbin/internal/models"
	"github.com/go-while/go-pugbin/internal/parts"
)

// scanLoop walks one group in bounded windows from cursor toward target,
// both inclusive. The stored watermark moves only after a window's parts
// are committed, so an aborted loop can always be resumed by calling the
// same operation again.
type scanLoop struct {
	proc   *Processor
	group  string
	dir    Direction
	limit  int64
	cursor int64 // update: next window start, backfill: next window end
	target int64
	rules  []models.BlacklistRule
	res    *SyncResult

	state      State
	start, end int64
	msgs       []*models.RawMessage
	batch      parts.Batch
	err        error
}

func (proc *Processor) newScanLoop(group string, dir Direction, cursor, target int64, rules []models.BlacklistRule, res *SyncResult) *scanLoop {
	return &scanLoop{
		proc:   proc,
		group:  group,
		dir:    dir,
		limit:  proc.cfg.MessageScanLimit,
		cursor: cursor,
		target: target,
		rules:  rules,
		res:    res,
		state:  StateInit,
	}
}

func (l *scanLoop) run(ctx context.Context) error {
	for {
		switch l.state {
		case StateInit:
			log.Printf("[SYNC] %s %s: scanning %d toward %d in windows of %d", l.dir, l.group, l.cursor, l.target, l.limit)
			l.state = StateComputeWindow

		case StateComputeWindow:
			// batches are the only cancellation checkpoint
			if err := ctx.Err(); err != nil {
				l.abort(fmt.Errorf("%s %s stopped before %d: %w", l.dir, l.group, l.cursor, err))
				continue
			}
			l.computeWindow()
			l.state = StateScan

		case StateScan:
			msgs, err := l.proc.transport.Scan(ctx, l.group, l.start, l.end)
			if err != nil {
				l.abort(fmt.Errorf("%s %s: %w", l.dir, l.group, err))
				continue
			}
			if len(msgs) == 0 {
				l.abort(fmt.Errorf("%w: %s %d-%d", ErrScanEmpty, l.group, l.start, l.end))
				continue
			}
			l.msgs = msgs
			l.state = StateFilter

		case StateFilter:
			batch, bs := parts.Build(l.group, l.msgs, l.rules)
			l.proc.saver.Stats().RecordBuild(l.group, bs)
			l.res.Articles += len(l.msgs)
			l.res.Missed += (l.end - l.start + 1) - int64(len(l.msgs))
			l.res.Blacklisted += bs.Blacklisted
			l.res.Ignored += bs.Ignored
			l.batch = batch
			l.msgs = nil
			l.state = StatePersist

		case StatePersist:
			// a batch that reached this point runs to the end
			pctx := context.WithoutCancel(ctx)
			st, err := l.proc.saver.SaveAll(pctx, l.group, l.batch)
			if err != nil {
				if errors.Is(err, parts.ErrPartUnresolved) {
					l.abort(fmt.Errorf("%s %s %d-%d: %w", l.dir, l.group, l.start, l.end, err))
				} else {
					l.abort(fmt.Errorf("%w: %s %d-%d: %w", ErrPersist, l.group, l.start, l.end, err))
				}
				continue
			}
			l.res.Parts += st.Parts
			l.res.Segments += st.Segments
			l.res.Duplicates += st.Duplicates
			l.res.Collisions += st.Collisions
			l.batch = nil
			l.state = StateAdvance

		case StateAdvance:
			if err := l.commitWatermark(context.WithoutCancel(ctx)); err != nil {
				l.abort(fmt.Errorf("%w: %s watermark: %w", ErrPersist, l.group, err))
				continue
			}
			l.res.Batches++
			if l.finished() {
				l.state = StateDone
				continue
			}
			l.step()
			l.state = StateComputeWindow

		case StateDone:
			l.res.State = StateDone.String()
			return nil

		case StateAborted:
			l.res.State = StateAborted.String()
			return l.err

		default:
			return fmt.Errorf("scan loop in unknown state %v", l.state)
		}
	}
}

func (l *scanLoop) abort(err error) {
	log.Printf("[SYNC] %s %s: aborted in %v: %v", l.dir, l.group, l.state, err)
	l.err = err
	l.state = StateAborted
}

func (l *scanLoop) computeWindow() {
	if l.dir == DirectionUpdate {
		l.start = l.cursor
		l.end = min(l.cursor+l.limit-1, l.target)
		return
	}
	l.start = max(l.target, l.cursor-l.limit+1)
	l.end = l.cursor
}

func (l *scanLoop) commitWatermark(ctx context.Context) error {
	if l.dir == DirectionUpdate {
		if err := l.proc.store.SetGroupLast(ctx, l.group, l.end); err != nil {
			return err
		}
		l.res.Last = copyInt64(&l.end)
		return nil
	}
	if err := l.proc.store.SetGroupFirst(ctx, l.group, l.start); err != nil {
		return err
	}
	l.res.First = copyInt64(&l.start)
	return nil
}

func (l *scanLoop) finished() bool {
	if l.dir == DirectionUpdate {
		return l.end >= l.target
	}
	return l.start <= l.target
}

func (l *scanLoop) step() {
	if l.dir == DirectionUpdate {
		l.cursor = l.end + 1
		return
	}
	l.cursor = l.start - 1
}
