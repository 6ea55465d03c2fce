package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/go-while/go-pugbin/internal/models"
)

// ErrNoSuchGroup is returned by writes that address a group row that does not exist.
var ErrNoSuchGroup = errors.New("no such newsgroup")

var groupColumns = []string{"id", "name", "first_article", "last_article", "active", "created_at", "updated_at"}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row rowScanner) (*models.Group, error) {
	var g models.Group
	var first, last sql.NullInt64
	if err := row.Scan(&g.ID, &g.Name, &first, &last, &g.Active, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	if first.Valid {
		g.First = &first.Int64
	}
	if last.Valid {
		g.Last = &last.Int64
	}
	return &g, nil
}

// CreateGroup inserts a group row with unset watermarks.
func (d *Database) CreateGroup(ctx context.Context, name string, active bool) (*models.Group, error) {
	now := time.Now().UTC()
	query, args, err := d.sb.Insert("newsgroups").
		Columns("name", "active", "created_at", "updated_at").
		Values(name, active, now, now).
		ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := retryableExec(ctx, d.db, query, args...); err != nil {
		return nil, fmt.Errorf("create group %s: %w", name, err)
	}
	return d.GetGroup(ctx, name)
}

// GetGroup returns the named group, or nil and no error when it does not exist.
func (d *Database) GetGroup(ctx context.Context, name string) (*models.Group, error) {
	query, args, err := d.sb.Select(groupColumns...).
		From("newsgroups").
		Where(sq.Eq{"name": name}).
		ToSql()
	if err != nil {
		return nil, err
	}
	var g *models.Group
	for attempt := 0; attempt < maxRetries; attempt++ {
		g, err = scanGroup(d.db.QueryRowContext(ctx, query, args...))
		if !isRetryableError(err) || !backoff(ctx, attempt) {
			break
		}
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get group %s: %w", name, err)
	}
	return g, nil
}

// ListGroups returns all groups ordered by name.
func (d *Database) ListGroups(ctx context.Context, activeOnly bool) ([]*models.Group, error) {
	qb := d.sb.Select(groupColumns...).From("newsgroups").OrderBy("name")
	if activeOnly {
		qb = qb.Where(sq.Eq{"active": true})
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := retryableQuery(ctx, d.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []*models.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (d *Database) updateGroup(ctx context.Context, name string, set map[string]any) error {
	set["updated_at"] = time.Now().UTC()
	query, args, err := d.sb.Update("newsgroups").
		SetMap(set).
		Where(sq.Eq{"name": name}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := retryableExec(ctx, d.db, query, args...)
	if err != nil {
		return fmt.Errorf("update group %s: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update group %s: %w", name, ErrNoSuchGroup)
	}
	return nil
}

// SetGroupActive enables or disables a group for scheduled scans.
func (d *Database) SetGroupActive(ctx context.Context, name string, active bool) error {
	return d.updateGroup(ctx, name, map[string]any{"active": active})
}

// SetGroupFirst persists the oldest ingested article id.
func (d *Database) SetGroupFirst(ctx context.Context, name string, first int64) error {
	return d.updateGroup(ctx, name, map[string]any{"first_article": first})
}

// SetGroupLast persists the newest ingested article id.
func (d *Database) SetGroupLast(ctx context.Context, name string, last int64) error {
	return d.updateGroup(ctx, name, map[string]any{"last_article": last})
}

// GroupPartStats counts stored parts and segments of a group.
func (d *Database) GroupPartStats(ctx context.Context, name string) (*models.GroupStats, error) {
	stats := &models.GroupStats{Name: name}

	query, args, err := d.sb.Select("COUNT(*)").From("parts").Where(sq.Eq{"group_name": name}).ToSql()
	if err != nil {
		return nil, err
	}
	if err := retryableQueryRowScan(ctx, d.db, query, args, &stats.Parts); err != nil {
		return nil, fmt.Errorf("count parts %s: %w", name, err)
	}

	query, args, err = d.sb.Select("COUNT(*)").
		From("segments s").
		Join("parts p ON p.id = s.part_id").
		Where(sq.Eq{"p.group_name": name}).
		ToSql()
	if err != nil {
		return nil, err
	}
	if err := retryableQueryRowScan(ctx, d.db, query, args, &stats.Segments); err != nil {
		return nil, fmt.Errorf("count segments %s: %w", name, err)
	}
	return stats, nil
}
