package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/go-while/go-pugbin/internal/config"
	"github.com/go-while/go-pugbin/internal/models"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(config.DatabaseConfig{
		Driver: DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "pugbin.db"),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

func TestGroupWatermarks(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	g, err := db.GetGroup(ctx, "alt.binaries.test")
	if err != nil || g != nil {
		t.Fatalf("GetGroup(missing) = %v, %v; want nil, nil", g, err)
	}

	g, err = db.CreateGroup(ctx, "alt.binaries.test", true)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if g.First != nil || g.Last != nil || !g.Active {
		t.Fatalf("new group = %+v, want active with unset watermarks", g)
	}

	if err := db.SetGroupFirst(ctx, "alt.binaries.test", 1000); err != nil {
		t.Fatalf("SetGroupFirst: %v", err)
	}
	if err := db.SetGroupLast(ctx, "alt.binaries.test", 2000); err != nil {
		t.Fatalf("SetGroupLast: %v", err)
	}
	g, err = db.GetGroup(ctx, "alt.binaries.test")
	if err != nil {
		t.Fatalf("GetGroup: %v", err)
	}
	if g.First == nil || *g.First != 1000 || g.Last == nil || *g.Last != 2000 {
		t.Errorf("watermarks = %v/%v, want 1000/2000", g.First, g.Last)
	}

	if err := db.SetGroupLast(ctx, "alt.missing", 1); !errors.Is(err, ErrNoSuchGroup) {
		t.Errorf("SetGroupLast(missing) error = %v, want ErrNoSuchGroup", err)
	}
}

func TestListGroupsActiveOnly(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	for _, name := range []string{"alt.b", "alt.a", "alt.c"} {
		if _, err := db.CreateGroup(ctx, name, true); err != nil {
			t.Fatalf("CreateGroup(%s): %v", name, err)
		}
	}
	if err := db.SetGroupActive(ctx, "alt.b", false); err != nil {
		t.Fatalf("SetGroupActive: %v", err)
	}

	names := func(groups []*models.Group) []string {
		var out []string
		for _, g := range groups {
			out = append(out, g.Name)
		}
		return out
	}

	all, err := db.ListGroups(ctx, false)
	if err != nil {
		t.Fatalf("ListGroups: %v", err)
	}
	if diff := cmp.Diff([]string{"alt.a", "alt.b", "alt.c"}, names(all)); diff != "" {
		t.Errorf("all groups mismatch (-want +got):\n%s", diff)
	}
	active, err := db.ListGroups(ctx, true)
	if err != nil {
		t.Fatalf("ListGroups(active): %v", err)
	}
	if diff := cmp.Diff([]string{"alt.a", "alt.c"}, names(active)); diff != "" {
		t.Errorf("active groups mismatch (-want +got):\n%s", diff)
	}
}

func TestBlacklists(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	rules := []models.BlacklistRule{
		{GroupName: `^alt\.binaries\.`, Regex: `(?i)password`, Description: "passworded", Active: true},
		{GroupName: `.*`, Regex: `spam`, Active: false},
	}
	for i := range rules {
		id, err := db.AddBlacklist(ctx, rules[i])
		if err != nil {
			t.Fatalf("AddBlacklist: %v", err)
		}
		rules[i].ID = id
	}
	got, err := db.ListBlacklists(ctx, true)
	if err != nil {
		t.Fatalf("ListBlacklists: %v", err)
	}
	if diff := cmp.Diff(rules[:1], got); diff != "" {
		t.Errorf("active rules mismatch (-want +got):\n%s", diff)
	}
}

func TestPartSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	parts := []*models.Part{
		{Hash: 42, Subject: "newer", GroupName: "alt.test", Posted: base.Add(time.Hour), PostedBy: "a", TotalSegments: 2},
		{Hash: 42, Subject: "older", GroupName: "alt.test", Posted: base, PostedBy: "a", TotalSegments: 2},
		{Hash: 7, Subject: "other", GroupName: "alt.test", Posted: base, PostedBy: "b", TotalSegments: 1},
		{Hash: 42, Subject: "elsewhere", GroupName: "alt.other", Posted: base, PostedBy: "a", TotalSegments: 2},
	}

	err := db.WithPartSession(ctx, func(s PartSession) error {
		if err := s.CopyParts(ctx, parts); err != nil {
			return err
		}
		found, err := s.FindParts(ctx, "alt.test", []int64{42})
		if err != nil {
			return err
		}
		if len(found) != 2 || found[0].Subject != "older" || found[1].Subject != "newer" {
			t.Errorf("FindParts order = %+v, want older then newer", found)
		}
		return s.CopySegments(ctx, []*models.Segment{
			{PartID: found[1].ID, Segment: 1, Size: 100, MessageID: "a@x"},
			{PartID: found[1].ID, Segment: 2, Size: 200, MessageID: "b@x"},
		})
	})
	if err != nil {
		t.Fatalf("WithPartSession: %v", err)
	}

	err = db.WithPartSession(ctx, func(s PartSession) error {
		found, err := s.FindParts(ctx, "alt.test", []int64{42, 7, 99})
		if err != nil {
			return err
		}
		if len(found) != 3 {
			t.Fatalf("FindParts found %d parts, want 3", len(found))
		}
		if err := s.LoadSegments(ctx, found); err != nil {
			return err
		}
		newest := found[len(found)-1]
		got := map[int]string{}
		for n, seg := range newest.Segments {
			got[n] = seg.MessageID
		}
		if diff := cmp.Diff(map[int]string{1: "a@x", 2: "b@x"}, got); diff != "" {
			t.Errorf("segments mismatch (-want +got):\n%s", diff)
		}
		if !newest.Posted.Equal(base.Add(time.Hour)) {
			t.Errorf("posted = %v, want %v", newest.Posted, base.Add(time.Hour))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithPartSession: %v", err)
	}

	stats, err := db.GroupPartStats(ctx, "alt.test")
	if err != nil {
		t.Fatalf("GroupPartStats: %v", err)
	}
	if diff := cmp.Diff(&models.GroupStats{Name: "alt.test", Parts: 3, Segments: 2}, stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestPartSessionRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	boom := errors.New("boom")

	err := db.WithPartSession(ctx, func(s PartSession) error {
		if err := s.CopyParts(ctx, []*models.Part{{Hash: 1, Subject: "x", GroupName: "alt.test", Posted: time.Now(), PostedBy: "p", TotalSegments: 1}}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithPartSession error = %v, want boom", err)
	}

	stats, err := db.GroupPartStats(ctx, "alt.test")
	if err != nil {
		t.Fatalf("GroupPartStats: %v", err)
	}
	if stats.Parts != 0 {
		t.Errorf("parts after rollback = %d, want 0", stats.Parts)
	}
}

func TestSegmentUniqueness(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	err := db.WithPartSession(ctx, func(s PartSession) error {
		if err := s.CopyParts(ctx, []*models.Part{{Hash: 1, Subject: "x", GroupName: "alt.test", Posted: time.Now(), PostedBy: "p", TotalSegments: 1}}); err != nil {
			return err
		}
		found, err := s.FindParts(ctx, "alt.test", []int64{1})
		if err != nil {
			return err
		}
		return s.CopySegments(ctx, []*models.Segment{
			{PartID: found[0].ID, Segment: 1, MessageID: "a@x"},
			{PartID: found[0].ID, Segment: 1, MessageID: "b@x"},
		})
	})
	if err == nil {
		t.Fatal("expected unique constraint violation for duplicate (part_id, segment)")
	}
}

func TestChunkOf(t *testing.T) {
	got := chunkOf([]int64{1, 2, 3, 4, 5}, 2)
	want := [][]int64{{1, 2}, {3, 4}, {5}}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("chunkOf mismatch (-want +got):\n%s", diff)
	}
}
