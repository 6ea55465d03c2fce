package database

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/go-while/go-pugbin/internal/models"
)

// MaxLookupChunk bounds the number of values bound into one IN (...) list.
var MaxLookupChunk = 500

var (
	partColumns    = []string{"hash", "subject", "group_name", "posted", "posted_by", "total_segments", "xref"}
	segmentColumns = []string{"segment", "size", "message_id", "part_id"}
)

// Cache for placeholder strings to avoid rebuilding them repeatedly
var placeholderCache sync.Map // map[int]string

// getPlaceholders returns a comma-separated string of SQL placeholders (?) for the given count
func getPlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	if v, ok := placeholderCache.Load(count); ok {
		return v.(string)
	}
	s := strings.Repeat("?, ", count-1) + "?"
	placeholderCache.Store(count, s)
	return s
}

// PartSession is the store surface one reconciliation call works against.
// All calls share a single transaction.
type PartSession interface {
	// FindParts returns the parts of group whose hash is in hashes,
	// ordered by posted then id, oldest first.
	FindParts(ctx context.Context, group string, hashes []int64) ([]*models.Part, error)
	// LoadSegments fills the Segments map of every given part.
	LoadSegments(ctx context.Context, parts []*models.Part) error
	// CopyParts bulk-loads new part rows. IDs are not assigned back.
	CopyParts(ctx context.Context, parts []*models.Part) error
	// CopySegments bulk-loads new segment rows.
	CopySegments(ctx context.Context, segments []*models.Segment) error
}

type partSession struct {
	d  *Database
	tx *sql.Tx
}

// WithPartSession runs fn inside one transaction. The transaction is rolled
// back on every error path and committed only when fn returns nil.
func (d *Database) WithPartSession(ctx context.Context, fn func(PartSession) error) (err error) {
	tx, err := retryableBeginTx(ctx, d.db)
	if err != nil {
		return fmt.Errorf("begin part session: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				log.Printf("[DB] rollback part session: %v", rbErr)
			}
		}
	}()

	if err = fn(&partSession{d: d, tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit part session: %w", err)
	}
	return nil
}

func chunkOf[T any](s []T, size int) [][]T {
	var out [][]T
	for len(s) > size {
		out = append(out, s[:size])
		s = s[size:]
	}
	if len(s) > 0 {
		out = append(out, s)
	}
	return out
}

func (s *partSession) FindParts(ctx context.Context, group string, hashes []int64) ([]*models.Part, error) {
	var parts []*models.Part
	for _, chunk := range chunkOf(hashes, MaxLookupChunk) {
		query, args, err := s.d.sb.Select("id", "hash", "subject", "group_name", "posted", "posted_by", "total_segments", "xref").
			From("parts").
			Where(sq.Eq{"group_name": group, "hash": chunk}).
			OrderBy("posted ASC", "id ASC").
			ToSql()
		if err != nil {
			return nil, err
		}
		rows, err := retryableQuery(ctx, s.tx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("find parts: %w", err)
		}
		for rows.Next() {
			p := &models.Part{}
			if err := rows.Scan(&p.ID, &p.Hash, &p.Subject, &p.GroupName, &p.Posted, &p.PostedBy, &p.TotalSegments, &p.Xref); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan part: %w", err)
			}
			parts = append(parts, p)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("find parts: %w", err)
		}
		rows.Close()
	}
	// chunks are each ordered; restore the global order
	slices.SortStableFunc(parts, func(a, b *models.Part) int {
		if c := a.Posted.Compare(b.Posted); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return parts, nil
}

func (s *partSession) LoadSegments(ctx context.Context, parts []*models.Part) error {
	byID := make(map[int64]*models.Part, len(parts))
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p.Segments = make(map[int]*models.Segment)
		if _, dup := byID[p.ID]; !dup {
			byID[p.ID] = p
			ids = append(ids, p.ID)
		}
	}
	for _, chunk := range chunkOf(ids, MaxLookupChunk) {
		query, args, err := s.d.sb.Select("id", "part_id", "segment", "size", "message_id").
			From("segments").
			Where(sq.Eq{"part_id": chunk}).
			ToSql()
		if err != nil {
			return err
		}
		rows, err := retryableQuery(ctx, s.tx, query, args...)
		if err != nil {
			return fmt.Errorf("load segments: %w", err)
		}
		for rows.Next() {
			seg := &models.Segment{}
			if err := rows.Scan(&seg.ID, &seg.PartID, &seg.Segment, &seg.Size, &seg.MessageID); err != nil {
				rows.Close()
				return fmt.Errorf("scan segment: %w", err)
			}
			if p := byID[seg.PartID]; p != nil {
				p.Segments[seg.Segment] = seg
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("load segments: %w", err)
		}
		rows.Close()
	}
	return nil
}

func (s *partSession) CopyParts(ctx context.Context, parts []*models.Part) error {
	if len(parts) == 0 {
		return nil
	}
	return s.bulkLoad(ctx, "parts", partColumns, len(parts), func(i int) []any {
		p := parts[i]
		return []any{p.Hash, p.Subject, p.GroupName, p.Posted.UTC(), p.PostedBy, p.TotalSegments, p.Xref}
	})
}

func (s *partSession) CopySegments(ctx context.Context, segments []*models.Segment) error {
	if len(segments) == 0 {
		return nil
	}
	return s.bulkLoad(ctx, "segments", segmentColumns, len(segments), func(i int) []any {
		seg := segments[i]
		return []any{seg.Segment, seg.Size, seg.MessageID, seg.PartID}
	})
}

// bulkLoad streams n rows into table. PostgreSQL uses COPY FROM STDIN,
// SQLite re-executes one prepared INSERT inside the session transaction.
func (s *partSession) bulkLoad(ctx context.Context, table string, columns []string, n int, row func(i int) []any) error {
	var query string
	switch s.d.driver {
	case DriverPostgres:
		query = pq.CopyIn(table, columns...)
	default:
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), getPlaceholders(len(columns)))
	}

	stmt, err := s.tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare bulk load %s: %w", table, err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
			return fmt.Errorf("bulk load %s row %d: %w", table, i, err)
		}
	}
	if s.d.driver == DriverPostgres {
		// flush the COPY buffer
		if _, err := stmt.ExecContext(ctx); err != nil {
			return fmt.Errorf("bulk load %s flush: %w", table, err)
		}
	}
	return nil
}
