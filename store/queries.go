package store

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/mevdschee/tqloader/metrics"
)

var setupStatements = []string{
	`DROP TABLE IF EXISTS facility`,
	`DROP TABLE IF EXISTS organization`,
	`CREATE TABLE facility (
		id INTEGER PRIMARY KEY,
		organizationId INTEGER NOT NULL,
		name TEXT NOT NULL,
		location TEXT NOT NULL,
		capacity INTEGER
	)`,
	`CREATE TABLE organization (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		address TEXT NOT NULL
	)`,
	`INSERT INTO organization (id, name, address) VALUES
		(1, 'Organization One', '123 Main St'),
		(2, 'Organization Two', '456 Elm St')`,
	`INSERT INTO facility (id, organizationId, name, location, capacity) VALUES
		(1, 1, 'Facility A', 'Location A', 100),
		(2, 1, 'Facility B', 'Location B', 200),
		(3, 2, 'Facility C', 'Location C', 150)`,
}

// Setup recreates the facility and organization tables and inserts the
// sample rows, all in one transaction on the primary
func (s *Store) Setup(ctx context.Context) error {
	primary := s.pool.GetPrimary()
	metrics.DatabaseQueries.WithLabelValues(primary.Name).Inc()

	tx, err := primary.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, stmt := range setupStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("setup failed: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit setup: %w", err)
	}
	s.logger.Debug("store seeded", zap.Int("statements", len(setupStatements)))
	return nil
}

// Facilities returns every facility ordered by id
func (s *Store) Facilities(ctx context.Context) ([]Facility, error) {
	rows, err := s.query(ctx, `SELECT id, organizationId, name, location, capacity FROM facility ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query facilities: %w", err)
	}
	defer rows.Close()

	var facilities []Facility
	for rows.Next() {
		var f Facility
		var capacity sql.NullInt64
		if err := rows.Scan(&f.ID, &f.OrganizationID, &f.Name, &f.Location, &capacity); err != nil {
			return nil, &DecodeError{Table: "facility", Err: err}
		}
		f.Capacity = capacity.Int64
		facilities = append(facilities, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query facilities: %w", err)
	}
	return facilities, nil
}

// OrganizationsByID loads all organizations with the given ids in a single
// query. Ids without a row are absent from the result. A row that fails to
// decode fails the whole call.
func (s *Store) OrganizationsByID(ctx context.Context, ids []int64) (map[int64]Organization, error) {
	found := make(map[int64]Organization, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT id, name, address FROM organization WHERE id IN ` + s.dialect.In(len(ids), 1)

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query organizations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var o Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.Address); err != nil {
			return nil, &DecodeError{Table: "organization", Err: err}
		}
		found[o.ID] = o
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query organizations: %w", err)
	}
	return found, nil
}

// query runs a read on the next healthy replica, or the primary
func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	member := s.pool.GetReplica()
	metrics.DatabaseQueries.WithLabelValues(member.Name).Inc()
	return member.DB.QueryContext(ctx, query, args...)
}
