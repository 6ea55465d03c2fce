package processor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

// GroupOp is Update or Backfill bound to its arguments.
type GroupOp func(ctx context.Context, group string) (*SyncResult, error)

// GroupOutcome is the result of one group in RunGroups.
type GroupOutcome struct {
	Group  string
	Result *SyncResult
	Err    error
}

// RunGroups runs op for every group with at most parallel groups at a
// time. Each group runs its own sequential loop. Outcomes keep the order
// of names. Groups not started before ctx is done report ctx.Err().
func (proc *Processor) RunGroups(ctx context.Context, names []string, parallel int, op GroupOp) []GroupOutcome {
	if parallel < 1 {
		parallel = 1
	}
	out := make([]GroupOutcome, len(names))
	parChan := make(chan struct{}, parallel)
	var wg sync.WaitGroup

	for i, name := range names {
		out[i].Group = name
		select {
		case parChan <- struct{}{}:
		case <-ctx.Done():
			out[i].Err = ctx.Err()
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-parChan }()
			res, err := op(ctx, name)
			out[i].Result = res
			out[i].Err = err
			if err != nil {
				log.Printf("[SYNC] %s failed: %v", name, err)
			}
		}()
	}
	wg.Wait()
	return out
}

// FailedGroups joins the errors of all failed outcomes, or returns nil.
func FailedGroups(outcomes []GroupOutcome) error {
	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Group, o.Err))
		}
	}
	return errors.Join(errs...)
}
