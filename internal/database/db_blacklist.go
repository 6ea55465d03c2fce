package database

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/go-while/go-pugbin/internal/models"
)

// AddBlacklist stores a rule and returns its id.
func (d *Database) AddBlacklist(ctx context.Context, rule models.BlacklistRule) (int64, error) {
	query, args, err := d.sb.Insert("blacklists").
		Columns("group_name", "regex", "description", "active").
		Values(rule.GroupName, rule.Regex, rule.Description, rule.Active).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, err
	}
	var id int64
	if err := retryableQueryRowScan(ctx, d.db, query, args, &id); err != nil {
		return 0, fmt.Errorf("add blacklist: %w", err)
	}
	return id, nil
}

// ListBlacklists returns blacklist rules ordered by id.
func (d *Database) ListBlacklists(ctx context.Context, activeOnly bool) ([]models.BlacklistRule, error) {
	qb := d.sb.Select("id", "group_name", "regex", "description", "active").
		From("blacklists").
		OrderBy("id")
	if activeOnly {
		qb = qb.Where(sq.Eq{"active": true})
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := retryableQuery(ctx, d.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list blacklists: %w", err)
	}
	defer rows.Close()

	var rules []models.BlacklistRule
	for rows.Next() {
		var r models.BlacklistRule
		if err := rows.Scan(&r.ID, &r.GroupName, &r.Regex, &r.Description, &r.Active); err != nil {
			return nil, fmt.Errorf("scan blacklist: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}
