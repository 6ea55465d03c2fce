package processor

// Package processor keeps the per-group article watermarks of the binary
// index moving: Update scans forward toward the newest article on the
// server, Backfill scans backward toward an older target.

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-while/go-pugbin/internal/config"
	"github.com/go-while/go-pugbin/internal/models"
	"github.com/go-while/go-pugbin/internal/nntp"
	"github.com/go-while/go-pugbin/internal/parts"
)

// GroupStore is the group and blacklist surface of the database.
type GroupStore interface {
	GetGroup(ctx context.Context, name string) (*models.Group, error)
	SetGroupFirst(ctx context.Context, name string, first int64) error
	SetGroupLast(ctx context.Context, name string, last int64) error
	ListBlacklists(ctx context.Context, activeOnly bool) ([]models.BlacklistRule, error)
}

// Transport is what the scan loop asks the news server.
type Transport interface {
	Group(ctx context.Context, name string) (*nntp.GroupInfo, error)
	DayToPost(ctx context.Context, name string, days int) (int64, error)
	PostDate(ctx context.Context, name string, id int64) (time.Time, error)
	DaysOld(ts time.Time) int
	Scan(ctx context.Context, name string, start, end int64) ([]*models.RawMessage, error)
}

// Saver persists one batch of assembled parts.
type Saver interface {
	SaveAll(ctx context.Context, groupName string, batch parts.Batch) (parts.SaveStats, error)
	Stats() *parts.Stats
}

type Processor struct {
	store     GroupStore
	transport Transport
	saver     Saver
	cfg       config.ScanConfig

	mux      sync.Mutex
	inflight map[string]struct{} // groups with a running Update or Backfill
}

func NewProcessor(store GroupStore, transport Transport, saver Saver, cfg config.ScanConfig) *Processor {
	if cfg.MessageScanLimit < 1 {
		cfg.MessageScanLimit = config.DefaultMessageScanLimit
	}
	return &Processor{
		store:     store,
		transport: transport,
		saver:     saver,
		cfg:       cfg,
		inflight:  make(map[string]struct{}),
	}
}

// acquire marks group as in flight. The returned func releases it.
func (proc *Processor) acquire(group string) (func(), error) {
	proc.mux.Lock()
	defer proc.mux.Unlock()
	if _, busy := proc.inflight[group]; busy {
		return nil, fmt.Errorf("%w: %s", ErrGroupBusy, group)
	}
	proc.inflight[group] = struct{}{}
	return func() {
		proc.mux.Lock()
		delete(proc.inflight, group)
		proc.mux.Unlock()
	}, nil
}

// loadRules fetches the active blacklist once per invocation.
func (proc *Processor) loadRules(ctx context.Context) ([]models.BlacklistRule, error) {
	rules, err := proc.store.ListBlacklists(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("load blacklist: %w", err)
	}
	return rules, nil
}
