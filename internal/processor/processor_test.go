package processor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/go-while/go-pugbin/internal/config"
	"github.com/go-while/go-pugbin/internal/database"
	"github.com/go-while/go-pugbin/internal/models"
	"github.com/go-while/go-pugbin/internal/nntp"
	"github.com/go-while/go-pugbin/internal/parts"
)

const testGroup = "alt.test"

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeTransport serves one single-segment posting per article id.
type fakeTransport struct {
	mux       sync.Mutex
	first     int64
	last      int64
	dayToPost map[int]int64
	dayErr    error
	groupErr  error
	empty     map[int64]bool // window starts answered with nothing
	gaps      map[int64]bool // article ids missing on the server
	windows   [][2]int64
	days      []int
	onScan    func(start, end int64)
}

func (f *fakeTransport) Group(_ context.Context, name string) (*nntp.GroupInfo, error) {
	f.mux.Lock()
	defer f.mux.Unlock()
	if f.groupErr != nil {
		return nil, f.groupErr
	}
	return &nntp.GroupInfo{Name: name, Count: f.last - f.first + 1, First: f.first, Last: f.last}, nil
}

func (f *fakeTransport) DayToPost(_ context.Context, _ string, days int) (int64, error) {
	f.mux.Lock()
	defer f.mux.Unlock()
	f.days = append(f.days, days)
	if f.dayErr != nil {
		return 0, f.dayErr
	}
	return f.dayToPost[days], nil
}

func (f *fakeTransport) PostDate(_ context.Context, _ string, id int64) (time.Time, error) {
	return baseTime.Add(time.Duration(id) * time.Minute), nil
}

func (f *fakeTransport) DaysOld(ts time.Time) int {
	return int(baseTime.Add(30*24*time.Hour).Sub(ts).Hours() / 24)
}

func (f *fakeTransport) Scan(_ context.Context, name string, start, end int64) ([]*models.RawMessage, error) {
	f.mux.Lock()
	f.windows = append(f.windows, [2]int64{start, end})
	empty := f.empty[start]
	hook := f.onScan
	f.mux.Unlock()
	if hook != nil {
		hook(start, end)
	}
	if empty {
		return nil, nil
	}
	var msgs []*models.RawMessage
	for id := start; id <= end; id++ {
		if f.gaps[id] {
			continue
		}
		msgs = append(msgs, &models.RawMessage{
			ArticleNum:    id,
			Subject:       fmt.Sprintf(`"file%d.bin" yEnc`, id),
			From:          "poster@example.com",
			Group:         name,
			Posted:        baseTime.Add(time.Duration(id) * time.Minute),
			Segment:       1,
			TotalSegments: 1,
			Bytes:         1000,
			MessageID:     fmt.Sprintf("%d@test", id),
		})
	}
	return msgs, nil
}

func (f *fakeTransport) scanned() [][2]int64 {
	f.mux.Lock()
	defer f.mux.Unlock()
	return append([][2]int64(nil), f.windows...)
}

// failingSaver fails every SaveAll with err.
type failingSaver struct {
	stats *parts.Stats
	err   error
}

func (f *failingSaver) SaveAll(context.Context, string, parts.Batch) (parts.SaveStats, error) {
	return parts.SaveStats{}, f.err
}
func (f *failingSaver) Stats() *parts.Stats { return f.stats }

type fixture struct {
	db        *database.Database
	transport *fakeTransport
	proc      *Processor
}

func newFixture(t *testing.T, limit int64) *fixture {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Driver: database.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "sync.db"),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	tr := &fakeTransport{dayToPost: map[int]int64{}, empty: map[int64]bool{}, gaps: map[int64]bool{}}
	cfg := config.ScanConfig{MessageScanLimit: limit, BackfillDays: 10, NewGroupScanDays: 5, Parallel: 2}
	return &fixture{
		db:        db,
		transport: tr,
		proc:      NewProcessor(db, tr, parts.NewAssembler(db, nil), cfg),
	}
}

// addGroup creates testGroup with the given watermarks; 0 leaves one unset.
func (fx *fixture) addGroup(t *testing.T, name string, first, last int64) {
	t.Helper()
	ctx := context.Background()
	if _, err := fx.db.CreateGroup(ctx, name, true); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if first > 0 {
		if err := fx.db.SetGroupFirst(ctx, name, first); err != nil {
			t.Fatalf("SetGroupFirst: %v", err)
		}
	}
	if last > 0 {
		if err := fx.db.SetGroupLast(ctx, name, last); err != nil {
			t.Fatalf("SetGroupLast: %v", err)
		}
	}
}

// watermarks returns first and last, 0 for unset.
func (fx *fixture) watermarks(t *testing.T, name string) (int64, int64) {
	t.Helper()
	g, err := fx.db.GetGroup(context.Background(), name)
	if err != nil || g == nil {
		t.Fatalf("GetGroup(%s) = %v, %v", name, g, err)
	}
	var first, last int64
	if g.First != nil {
		first = *g.First
	}
	if g.Last != nil {
		last = *g.Last
	}
	return first, last
}

func TestUpdateBootstrapsNewGroup(t *testing.T) {
	fx := newFixture(t, 1000)
	fx.addGroup(t, testGroup, 0, 0)
	fx.transport.first, fx.transport.last = 4000, 5050
	fx.transport.dayToPost[5] = 5000

	res, err := fx.proc.Update(context.Background(), testGroup)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if diff := cmp.Diff([][2]int64{{5000, 5050}}, fx.transport.scanned()); diff != "" {
		t.Errorf("windows mismatch (-want +got):\n%s", diff)
	}
	first, last := fx.watermarks(t, testGroup)
	if first != 5000 || last != 5050 {
		t.Errorf("watermarks = %d-%d, want 5000-5050", first, last)
	}
	if res.Batches != 1 || res.Articles != 51 || res.Parts != 51 || res.Segments != 51 {
		t.Errorf("result = %+v", res)
	}
	if res.State != StateDone.String() {
		t.Errorf("state = %s, want DONE", res.State)
	}
	if diff := cmp.Diff([]int{5}, fx.transport.days); diff != "" {
		t.Errorf("lookback days mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateScansInWindows(t *testing.T) {
	fx := newFixture(t, 100)
	fx.addGroup(t, testGroup, 900, 1000)
	fx.transport.first, fx.transport.last = 1, 1250
	fx.transport.gaps[1005] = true

	res, err := fx.proc.Update(context.Background(), testGroup)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	want := [][2]int64{{1001, 1100}, {1101, 1200}, {1201, 1250}}
	if diff := cmp.Diff(want, fx.transport.scanned()); diff != "" {
		t.Errorf("windows mismatch (-want +got):\n%s", diff)
	}
	first, last := fx.watermarks(t, testGroup)
	if first != 900 || last != 1250 {
		t.Errorf("watermarks = %d-%d, want 900-1250", first, last)
	}
	if res.Missed != 1 || res.Articles != 249 {
		t.Errorf("missed = %d articles = %d, want 1 and 249", res.Missed, res.Articles)
	}
	if res.Last == nil || *res.Last != 1250 {
		t.Errorf("result last = %v, want 1250", res.Last)
	}
}

func TestUpdateUpToDate(t *testing.T) {
	fx := newFixture(t, 100)
	fx.addGroup(t, testGroup, 900, 1000)
	fx.transport.first, fx.transport.last = 1, 1000

	if _, err := fx.proc.Update(context.Background(), testGroup); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if n := len(fx.transport.scanned()); n != 0 {
		t.Errorf("scanned %d windows, want none", n)
	}
}

func TestUpdateErrors(t *testing.T) {
	t.Run("group not found", func(t *testing.T) {
		fx := newFixture(t, 100)
		_, err := fx.proc.Update(context.Background(), "alt.missing")
		if !errors.Is(err, ErrGroupNotFound) {
			t.Errorf("err = %v, want ErrGroupNotFound", err)
		}
	})
	t.Run("inconsistent source", func(t *testing.T) {
		fx := newFixture(t, 100)
		fx.addGroup(t, testGroup, 1000, 2000)
		fx.transport.first, fx.transport.last = 1, 1500
		res, err := fx.proc.Update(context.Background(), testGroup)
		if !errors.Is(err, ErrInconsistentSource) {
			t.Errorf("err = %v, want ErrInconsistentSource", err)
		}
		if res.State != StateAborted.String() {
			t.Errorf("state = %s, want ABORTED", res.State)
		}
		if first, last := fx.watermarks(t, testGroup); first != 1000 || last != 2000 {
			t.Errorf("watermarks changed to %d-%d", first, last)
		}
	})
	t.Run("bootstrap without start", func(t *testing.T) {
		fx := newFixture(t, 100)
		fx.addGroup(t, testGroup, 0, 0)
		fx.transport.first, fx.transport.last = 1, 500
		res, err := fx.proc.Update(context.Background(), testGroup)
		if !errors.Is(err, ErrBootstrap) {
			t.Errorf("err = %v, want ErrBootstrap", err)
		}
		if res.State != StateAborted.String() {
			t.Errorf("state = %s, want ABORTED", res.State)
		}
		if first, last := fx.watermarks(t, testGroup); first != 0 || last != 0 {
			t.Errorf("watermarks set to %d-%d", first, last)
		}
	})
	t.Run("bootstrap lookup error", func(t *testing.T) {
		fx := newFixture(t, 100)
		fx.addGroup(t, testGroup, 0, 0)
		fx.transport.first, fx.transport.last = 1, 500
		fx.transport.dayErr = errors.New("connection reset")
		res, err := fx.proc.Update(context.Background(), testGroup)
		if !errors.Is(err, ErrBootstrap) {
			t.Errorf("err = %v, want ErrBootstrap", err)
		}
		if res.State != StateAborted.String() {
			t.Errorf("state = %s, want ABORTED", res.State)
		}
	})
	t.Run("server group error", func(t *testing.T) {
		fx := newFixture(t, 100)
		fx.addGroup(t, testGroup, 1000, 2000)
		fx.transport.groupErr = errors.New("411 no such group")
		res, err := fx.proc.Update(context.Background(), testGroup)
		if err == nil || res == nil || res.State != StateAborted.String() {
			t.Errorf("Update = %+v, %v, want ABORTED with error", res, err)
		}
	})
}

func TestUpdateResumesBootstrapAfterBackfill(t *testing.T) {
	fx := newFixture(t, 1000)
	fx.addGroup(t, testGroup, 0, 0)
	fx.transport.first, fx.transport.last = 1, 6000
	fx.transport.dayToPost[5] = 5000
	fx.transport.dayToPost[7] = 4000
	fx.transport.empty[5000] = true

	if _, err := fx.proc.Update(context.Background(), testGroup); !errors.Is(err, ErrScanEmpty) {
		t.Fatalf("first Update err = %v, want ErrScanEmpty", err)
	}
	if first, last := fx.watermarks(t, testGroup); first != 5000 || last != 0 {
		t.Fatalf("after failed update watermarks = %d-%d, want 5000-unset", first, last)
	}

	if _, err := fx.proc.Backfill(context.Background(), testGroup, BackfillTarget{Days: 7}); err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if first, _ := fx.watermarks(t, testGroup); first != 4000 {
		t.Fatalf("after backfill first = %d, want 4000", first)
	}

	delete(fx.transport.empty, 5000)
	res, err := fx.proc.Update(context.Background(), testGroup)
	if err != nil {
		t.Fatalf("second Update: %v", err)
	}
	if first, last := fx.watermarks(t, testGroup); first != 4000 || last != 6000 {
		t.Errorf("watermarks = %d-%d, want 4000-6000", first, last)
	}
	if res.First == nil || *res.First != 4000 {
		t.Errorf("result first = %v, want 4000", res.First)
	}
	// update #2 resumes at the stored first article
	want := [][2]int64{{5000, 5999}, {4000, 4999}, {4000, 4999}, {5000, 5999}, {6000, 6000}}
	if diff := cmp.Diff(want, fx.transport.scanned()); diff != "" {
		t.Errorf("windows mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{5, 7}, fx.transport.days); diff != "" {
		t.Errorf("lookback days mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateEmptyScanKeepsCommittedWatermark(t *testing.T) {
	fx := newFixture(t, 100)
	fx.addGroup(t, testGroup, 1, 1000)
	fx.transport.first, fx.transport.last = 1, 1300
	fx.transport.empty[1101] = true

	res, err := fx.proc.Update(context.Background(), testGroup)
	if !errors.Is(err, ErrScanEmpty) {
		t.Fatalf("err = %v, want ErrScanEmpty", err)
	}
	if _, last := fx.watermarks(t, testGroup); last != 1100 {
		t.Errorf("last = %d, want 1100 from the one committed batch", last)
	}
	if res.State != StateAborted.String() || res.Batches != 1 {
		t.Errorf("result state %s batches %d, want ABORTED after 1", res.State, res.Batches)
	}

	// retry resumes at the failed window
	delete(fx.transport.empty, 1101)
	if _, err := fx.proc.Update(context.Background(), testGroup); err != nil {
		t.Fatalf("retry Update: %v", err)
	}
	windows := fx.transport.scanned()
	if got := windows[len(windows)-2]; got != [2]int64{1101, 1200} {
		t.Errorf("retry started at %v, want [1101 1200]", got)
	}
	if _, last := fx.watermarks(t, testGroup); last != 1300 {
		t.Errorf("last = %d, want 1300", last)
	}
}

func TestPersistFailureDoesNotAdvance(t *testing.T) {
	fx := newFixture(t, 100)
	fx.addGroup(t, testGroup, 1000, 2000)
	fx.transport.first, fx.transport.last = 1, 2100
	fx.transport.dayToPost[10] = 800
	fx.proc.saver = &failingSaver{stats: parts.NewStats(), err: errors.New("disk full")}

	_, err := fx.proc.Update(context.Background(), testGroup)
	if !errors.Is(err, ErrPersist) || errors.Is(err, ErrPartUnresolved) {
		t.Errorf("update err = %v, want ErrPersist", err)
	}
	_, err = fx.proc.Backfill(context.Background(), testGroup, BackfillTarget{})
	if !errors.Is(err, ErrPersist) {
		t.Errorf("backfill err = %v, want ErrPersist", err)
	}
	if first, last := fx.watermarks(t, testGroup); first != 1000 || last != 2000 {
		t.Errorf("watermarks moved to %d-%d", first, last)
	}
}

func TestPartUnresolvedIsNotPersistError(t *testing.T) {
	fx := newFixture(t, 100)
	fx.addGroup(t, testGroup, 1000, 2000)
	fx.transport.first, fx.transport.last = 1, 2100
	fx.proc.saver = &failingSaver{stats: parts.NewStats(), err: fmt.Errorf("hash 1: %w", parts.ErrPartUnresolved)}

	_, err := fx.proc.Update(context.Background(), testGroup)
	if !errors.Is(err, ErrPartUnresolved) {
		t.Fatalf("err = %v, want ErrPartUnresolved", err)
	}
	if errors.Is(err, ErrPersist) {
		t.Errorf("invariant violation labelled as persist error: %v", err)
	}
	if _, last := fx.watermarks(t, testGroup); last != 2000 {
		t.Errorf("last moved to %d", last)
	}
}

func TestBackfillWindows(t *testing.T) {
	tests := []struct {
		name  string
		limit int64
		want  [][2]int64
	}{
		{"one window", 100, [][2]int64{{900, 999}}},
		{"split", 40, [][2]int64{{960, 999}, {920, 959}, {900, 919}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, tt.limit)
			fx.addGroup(t, testGroup, 1000, 2000)
			fx.transport.first, fx.transport.last = 1, 2000
			fx.transport.dayToPost[7] = 900

			res, err := fx.proc.Backfill(context.Background(), testGroup, BackfillTarget{Days: 7})
			if err != nil {
				t.Fatalf("Backfill: %v", err)
			}
			if diff := cmp.Diff(tt.want, fx.transport.scanned()); diff != "" {
				t.Errorf("windows mismatch (-want +got):\n%s", diff)
			}
			if first, last := fx.watermarks(t, testGroup); first != 900 || last != 2000 {
				t.Errorf("watermarks = %d-%d, want 900-2000", first, last)
			}
			if res.First == nil || *res.First != 900 {
				t.Errorf("result first = %v, want 900", res.First)
			}
		})
	}
}

func TestBackfillTargets(t *testing.T) {
	t.Run("date converts to days", func(t *testing.T) {
		fx := newFixture(t, 100)
		fx.addGroup(t, testGroup, 1000, 2000)
		fx.transport.first, fx.transport.last = 1, 2000
		fx.transport.dayToPost[20] = 950
		date := baseTime.Add(10 * 24 * time.Hour)

		if _, err := fx.proc.Backfill(context.Background(), testGroup, BackfillTarget{Date: &date, Days: 3}); err != nil {
			t.Fatalf("Backfill: %v", err)
		}
		if diff := cmp.Diff([]int{20}, fx.transport.days); diff != "" {
			t.Errorf("days mismatch (-want +got):\n%s", diff)
		}
		if first, _ := fx.watermarks(t, testGroup); first != 950 {
			t.Errorf("first = %d, want 950", first)
		}
	})
	t.Run("default depth", func(t *testing.T) {
		fx := newFixture(t, 100)
		fx.addGroup(t, testGroup, 1000, 2000)
		fx.transport.first, fx.transport.last = 1, 2000
		if _, err := fx.proc.Backfill(context.Background(), testGroup, BackfillTarget{}); err != nil {
			t.Fatalf("Backfill: %v", err)
		}
		if diff := cmp.Diff([]int{10}, fx.transport.days); diff != "" {
			t.Errorf("days mismatch (-want +got):\n%s", diff)
		}
	})
	t.Run("target not older is a no-op", func(t *testing.T) {
		fx := newFixture(t, 100)
		fx.addGroup(t, testGroup, 1000, 2000)
		fx.transport.first, fx.transport.last = 1, 2000
		fx.transport.dayToPost[10] = 1000
		res, err := fx.proc.Backfill(context.Background(), testGroup, BackfillTarget{})
		if err != nil {
			t.Fatalf("Backfill: %v", err)
		}
		if len(fx.transport.scanned()) != 0 || res.State != StateDone.String() {
			t.Errorf("no-op backfill scanned %v, state %s", fx.transport.scanned(), res.State)
		}
	})
	t.Run("clamped to retention", func(t *testing.T) {
		fx := newFixture(t, 100)
		fx.addGroup(t, testGroup, 1000, 2000)
		fx.transport.first, fx.transport.last = 950, 2000
		fx.transport.dayToPost[10] = 900
		if _, err := fx.proc.Backfill(context.Background(), testGroup, BackfillTarget{}); err != nil {
			t.Fatalf("Backfill: %v", err)
		}
		if diff := cmp.Diff([][2]int64{{950, 999}}, fx.transport.scanned()); diff != "" {
			t.Errorf("windows mismatch (-want +got):\n%s", diff)
		}
		if first, _ := fx.watermarks(t, testGroup); first != 950 {
			t.Errorf("first = %d, want 950", first)
		}
	})
}

func TestBackfillAbortsOnLookupError(t *testing.T) {
	fx := newFixture(t, 100)
	fx.addGroup(t, testGroup, 1000, 2000)
	fx.transport.first, fx.transport.last = 1, 2000
	fx.transport.dayErr = errors.New("connection reset")

	res, err := fx.proc.Backfill(context.Background(), testGroup, BackfillTarget{})
	if err == nil {
		t.Fatal("Backfill succeeded, want lookup error")
	}
	if res.State != StateAborted.String() {
		t.Errorf("state = %s, want ABORTED", res.State)
	}
	if first, _ := fx.watermarks(t, testGroup); first != 1000 {
		t.Errorf("first moved to %d", first)
	}
}

func TestBackfillPrerequisites(t *testing.T) {
	fx := newFixture(t, 100)
	fx.addGroup(t, testGroup, 0, 0)
	if _, err := fx.proc.Backfill(context.Background(), testGroup, BackfillTarget{}); !errors.Is(err, ErrPrerequisite) {
		t.Errorf("err = %v, want ErrPrerequisite", err)
	}
	if _, err := fx.proc.Backfill(context.Background(), "alt.missing", BackfillTarget{}); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("err = %v, want ErrGroupNotFound", err)
	}
}

func TestWatermarksAreMonotonic(t *testing.T) {
	fx := newFixture(t, 50)
	fx.addGroup(t, testGroup, 0, 0)
	fx.transport.first, fx.transport.last = 1, 1000
	fx.transport.dayToPost[5] = 900

	prevLast := int64(0)
	for _, serverLast := range []int64{1000, 1000, 1075, 1200} {
		fx.transport.last = serverLast
		if _, err := fx.proc.Update(context.Background(), testGroup); err != nil {
			t.Fatalf("Update at %d: %v", serverLast, err)
		}
		_, last := fx.watermarks(t, testGroup)
		if last < prevLast || last != serverLast {
			t.Fatalf("last = %d after %d, server at %d", last, prevLast, serverLast)
		}
		prevLast = last
	}

	prevFirst, _ := fx.watermarks(t, testGroup)
	for _, target := range []int64{800, 850, 700} {
		fx.transport.dayToPost[10] = target
		if _, err := fx.proc.Backfill(context.Background(), testGroup, BackfillTarget{}); err != nil {
			t.Fatalf("Backfill to %d: %v", target, err)
		}
		first, _ := fx.watermarks(t, testGroup)
		if first > prevFirst {
			t.Fatalf("first grew from %d to %d", prevFirst, first)
		}
		prevFirst = first
	}
	if prevFirst != 700 {
		t.Errorf("first = %d, want 700", prevFirst)
	}
}

func TestCancelStopsBetweenBatches(t *testing.T) {
	fx := newFixture(t, 100)
	fx.addGroup(t, testGroup, 1, 1000)
	fx.transport.first, fx.transport.last = 1, 1500

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx.transport.onScan = func(start, end int64) { cancel() }

	_, err := fx.proc.Update(ctx, testGroup)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if n := len(fx.transport.scanned()); n != 1 {
		t.Errorf("scanned %d windows, want 1", n)
	}
	if _, last := fx.watermarks(t, testGroup); last != 1100 {
		t.Errorf("last = %d, want 1100 from the batch in flight", last)
	}
}

func TestGroupBusy(t *testing.T) {
	fx := newFixture(t, 100)
	fx.addGroup(t, testGroup, 1, 1000)
	release, err := fx.proc.acquire(testGroup)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := fx.proc.Update(context.Background(), testGroup); !errors.Is(err, ErrGroupBusy) {
		t.Errorf("Update err = %v, want ErrGroupBusy", err)
	}
	if _, err := fx.proc.Backfill(context.Background(), testGroup, BackfillTarget{}); !errors.Is(err, ErrGroupBusy) {
		t.Errorf("Backfill err = %v, want ErrGroupBusy", err)
	}
	release()
	fx.transport.first, fx.transport.last = 1, 1000
	if _, err := fx.proc.Update(context.Background(), testGroup); err != nil {
		t.Errorf("Update after release: %v", err)
	}
}

func TestUpdateAppliesBlacklist(t *testing.T) {
	fx := newFixture(t, 100)
	fx.addGroup(t, testGroup, 1, 1000)
	fx.transport.first, fx.transport.last = 1, 1010
	_, err := fx.db.AddBlacklist(context.Background(), models.BlacklistRule{
		GroupName: `^alt\.test$`,
		Regex:     `file100[1-3]\.bin`,
		Active:    true,
	})
	if err != nil {
		t.Fatalf("AddBlacklist: %v", err)
	}

	res, err := fx.proc.Update(context.Background(), testGroup)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if res.Blacklisted != 3 || res.Parts != 7 {
		t.Errorf("blacklisted %d parts %d, want 3 and 7", res.Blacklisted, res.Parts)
	}
	stats, err := fx.db.GroupPartStats(context.Background(), testGroup)
	if err != nil {
		t.Fatalf("GroupPartStats: %v", err)
	}
	if stats.Parts != 7 {
		t.Errorf("stored parts = %d, want 7", stats.Parts)
	}
}

func TestRunGroups(t *testing.T) {
	fx := newFixture(t, 100)
	fx.addGroup(t, testGroup, 1, 1000)
	fx.addGroup(t, "alt.test.two", 1, 1000)
	fx.transport.first, fx.transport.last = 1, 1050

	names := []string{testGroup, "alt.missing", "alt.test.two"}
	outcomes := fx.proc.RunGroups(context.Background(), names, 2, fx.proc.Update)
	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes", len(outcomes))
	}
	for i, o := range outcomes {
		if o.Group != names[i] {
			t.Errorf("outcome %d is %s, want %s", i, o.Group, names[i])
		}
	}
	if outcomes[0].Err != nil || outcomes[2].Err != nil {
		t.Errorf("unexpected errors: %v, %v", outcomes[0].Err, outcomes[2].Err)
	}
	if !errors.Is(outcomes[1].Err, ErrGroupNotFound) {
		t.Errorf("missing group err = %v", outcomes[1].Err)
	}
	err := FailedGroups(outcomes)
	if err == nil || !strings.Contains(err.Error(), "alt.missing") {
		t.Errorf("FailedGroups = %v", err)
	}
	if FailedGroups(outcomes[:1]) != nil {
		t.Error("FailedGroups reported a successful run")
	}
}

func TestStateString(t *testing.T) {
	if StateAdvance.String() != "ADVANCE_WATERMARK" || State(42).String() != "State(42)" {
		t.Errorf("unexpected state names %s %s", StateAdvance, State(42))
	}
}

func TestIsValidGroupName(t *testing.T) {
	tests := []struct {
		name  string
		lazy  bool
		valid bool
	}{
		{"alt.binaries.test", false, true},
		{"alt.binaries.e-book", false, true},
		{"comp.lang.c++", false, true},
		{"Alt.Binaries", false, false},
		{"alt..binaries", false, false},
		{"alt.binaries.", false, false},
		{"nodots", false, false},
		{"", false, false},
		{"alt.binaries.with space", false, false},
		{"Alt.Binaries", true, true},
		{"nodots", true, true},
		{"alt.sex&drugs", true, true},
		{"", true, false},
		{".leading.dot", true, false},
		{"alt.binaries.with space", true, false},
	}
	for _, tt := range tests {
		if got := IsValidGroupName(tt.name, tt.lazy); got != tt.valid {
			t.Errorf("IsValidGroupName(%q, %v) = %v, want %v", tt.name, tt.lazy, got, tt.valid)
		}
	}
}
