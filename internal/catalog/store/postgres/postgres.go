// Package postgres provides the PostgreSQL-backed catalog store. Counter
// bumps and record inserts share one transaction, which is what makes the
// spawn protocol's commit step atomic.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bxhive/internal/catalog/models"
	id "bxhive/pkg/domain"
	"bxhive/pkg/platform/sentinel"
)

// Schema creates the catalog tables. Applied by deployments and the
// integration tests; idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS catalog_counters (
    singleton   smallint PRIMARY KEY DEFAULT 1 CHECK (singleton = 1),
    group_count bigint   NOT NULL DEFAULT 0
);
INSERT INTO catalog_counters (singleton) VALUES (1) ON CONFLICT DO NOTHING;

CREATE TABLE IF NOT EXISTS experiment_groups (
    group_id        bigint PRIMARY KEY,
    owner           uuid        NOT NULL,
    name            text        NOT NULL,
    variation_count bigint      NOT NULL DEFAULT 0,
    created_at      timestamptz NOT NULL
);

CREATE TABLE IF NOT EXISTS variation_records (
    group_id     bigint      NOT NULL REFERENCES experiment_groups (group_id),
    variation_id bigint      NOT NULL,
    address      uuid        NOT NULL UNIQUE,
    label        text        NOT NULL,
    escrow       bigint      NOT NULL,
    created_at   timestamptz NOT NULL,
    PRIMARY KEY (group_id, variation_id)
);
`

// Store persists the catalog in PostgreSQL.
type Store struct {
	db *sql.DB
}

// New constructs a PostgreSQL-backed catalog store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema applies the catalog schema.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply catalog schema: %w", err)
	}
	return nil
}

func (s *Store) NextGroupID(ctx context.Context) (id.GroupID, error) {
	var count uint32
	err := s.db.QueryRowContext(ctx,
		`SELECT group_count FROM catalog_counters WHERE singleton = 1`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("read group counter: %w", err)
	}
	return id.GroupID(count), nil
}

func (s *Store) CreateGroup(ctx context.Context, group *models.ExperimentGroup) error {
	return s.runInTx(ctx, func(tx *sql.Tx) error {
		return createGroupTx(ctx, tx, group)
	})
}

func (s *Store) GetGroup(ctx context.Context, groupID id.GroupID) (*models.ExperimentGroup, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT group_id, owner, name, variation_count, created_at
		   FROM experiment_groups WHERE group_id = $1`,
		int64(groupID),
	)
	return scanGroup(row)
}

func (s *Store) ListGroups(ctx context.Context) ([]*models.ExperimentGroup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT group_id, owner, name, variation_count, created_at
		   FROM experiment_groups ORDER BY group_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var out []*models.ExperimentGroup
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, group)
	}
	return out, rows.Err()
}

func (s *Store) CreateVariation(ctx context.Context, rec *models.VariationRecord) error {
	return s.runInTx(ctx, func(tx *sql.Tx) error {
		return createVariationTx(ctx, tx, rec)
	})
}

func (s *Store) CreateGroupWithVariation(ctx context.Context, group *models.ExperimentGroup, rec *models.VariationRecord) error {
	return s.runInTx(ctx, func(tx *sql.Tx) error {
		if err := createGroupTx(ctx, tx, group); err != nil {
			return err
		}
		return createVariationTx(ctx, tx, rec)
	})
}

func (s *Store) GetVariation(ctx context.Context, key id.VariationKey) (*models.VariationRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT group_id, variation_id, address, label, escrow, created_at
		   FROM variation_records WHERE group_id = $1 AND variation_id = $2`,
		int64(key.Group), int64(key.Variation),
	)
	return scanVariation(row)
}

func (s *Store) ListVariations(ctx context.Context, groupID id.GroupID) ([]*models.VariationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT group_id, variation_id, address, label, escrow, created_at
		   FROM variation_records WHERE group_id = $1 ORDER BY variation_id`,
		int64(groupID),
	)
	if err != nil {
		return nil, fmt.Errorf("list variations: %w", err)
	}
	defer rows.Close()

	var out []*models.VariationRecord
	for rows.Next() {
		rec, err := scanVariation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) runInTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func createGroupTx(ctx context.Context, tx *sql.Tx, group *models.ExperimentGroup) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE catalog_counters SET group_count = group_count + 1
		  WHERE singleton = 1 AND group_count = $1`,
		int64(group.ID),
	)
	if err != nil {
		return fmt.Errorf("bump group counter: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrConflict
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO experiment_groups (group_id, owner, name, variation_count, created_at)
		 VALUES ($1, $2, $3, 0, $4)`,
		int64(group.ID), group.Owner.String(), group.Name, group.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

func createVariationTx(ctx context.Context, tx *sql.Tx, rec *models.VariationRecord) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE experiment_groups SET variation_count = variation_count + 1
		  WHERE group_id = $1 AND variation_count = $2`,
		int64(rec.Key.Group), int64(rec.Key.Variation),
	)
	if err != nil {
		return fmt.Errorf("bump variation counter: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM experiment_groups WHERE group_id = $1)`,
			int64(rec.Key.Group),
		).Scan(&exists); err != nil {
			return fmt.Errorf("check group: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO variation_records (group_id, variation_id, address, label, escrow, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		int64(rec.Key.Group), int64(rec.Key.Variation), rec.Address.String(),
		rec.Label, int64(rec.Escrow), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert variation record: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row rowScanner) (*models.ExperimentGroup, error) {
	var (
		group   models.ExperimentGroup
		rowID   int64
		owner   string
		varsNum int64
	)
	err := row.Scan(&rowID, &owner, &group.Name, &varsNum, &group.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan group: %w", err)
	}
	group.ID = id.GroupID(rowID)
	group.Owner = id.Address(owner)
	group.VariationCount = uint32(varsNum)
	return &group, nil
}

func scanVariation(row rowScanner) (*models.VariationRecord, error) {
	var (
		rec     models.VariationRecord
		groupID int64
		varID   int64
		addr    string
		escrow  int64
	)
	err := row.Scan(&groupID, &varID, &addr, &rec.Label, &escrow, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan variation record: %w", err)
	}
	rec.Key = id.VariationKey{Group: id.GroupID(groupID), Variation: id.VariationID(varID)}
	rec.Address = id.Address(addr)
	rec.Escrow = uint64(escrow)
	return &rec, nil
}
