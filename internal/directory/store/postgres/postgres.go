// Package postgres provides the pgx-backed directory store.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bxhive/internal/directory/models"
	id "bxhive/pkg/domain"
	"bxhive/pkg/platform/sentinel"
)

// Schema creates the directory tables. Idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS directory_counters (
    singleton  smallint PRIMARY KEY DEFAULT 1 CHECK (singleton = 1),
    user_count bigint   NOT NULL DEFAULT 0
);
INSERT INTO directory_counters (singleton) VALUES (1) ON CONFLICT DO NOTHING;

CREATE TABLE IF NOT EXISTS users (
    user_id    bigint PRIMARY KEY,
    address    uuid        NOT NULL UNIQUE,
    role       text        NOT NULL,
    name       text        NOT NULL,
    created_at timestamptz NOT NULL
);

CREATE TABLE IF NOT EXISTS admins (
    address  uuid PRIMARY KEY,
    role     text        NOT NULL,
    added_at timestamptz NOT NULL
);

CREATE TABLE IF NOT EXISTS templates (
    template_id  smallint PRIMARY KEY,
    kind         text        NOT NULL,
    name         text        NOT NULL,
    player_count smallint    NOT NULL,
    enabled      boolean     NOT NULL,
    created_at   timestamptz NOT NULL
);
`

// Store persists the directory in PostgreSQL through a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs a pgx-backed directory store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema applies the directory schema.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply directory schema: %w", err)
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE address = $1)`, user.Address.String(),
	).Scan(&exists); err != nil {
		return fmt.Errorf("check address: %w", err)
	}
	if exists {
		return sentinel.ErrAlreadyUsed
	}

	var assigned int64
	if err := tx.QueryRow(ctx,
		`UPDATE directory_counters SET user_count = user_count + 1
		  WHERE singleton = 1 RETURNING user_count - 1`,
	).Scan(&assigned); err != nil {
		return fmt.Errorf("bump user counter: %w", err)
	}
	user.ID = id.UserID(assigned)

	if _, err := tx.Exec(ctx,
		`INSERT INTO users (user_id, address, role, name, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		int64(user.ID), user.Address.String(), string(user.Role), user.Name, user.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) GetUserByAddress(ctx context.Context, addr id.Address) (*models.User, error) {
	return s.queryUser(ctx,
		`SELECT user_id, address, role, name, created_at FROM users WHERE address = $1`,
		addr.String(),
	)
}

func (s *Store) GetUserByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	return s.queryUser(ctx,
		`SELECT user_id, address, role, name, created_at FROM users WHERE user_id = $1`,
		int64(userID),
	)
}

func (s *Store) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, address, role, name, created_at FROM users ORDER BY user_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, user)
	}
	return out, rows.Err()
}

func (s *Store) PutAdmin(ctx context.Context, admin *models.Admin) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO admins (address, role, added_at) VALUES ($1, $2, $3)
		 ON CONFLICT (address) DO UPDATE SET role = EXCLUDED.role`,
		admin.Address.String(), string(admin.Role), admin.AddedAt,
	)
	if err != nil {
		return fmt.Errorf("put admin: %w", err)
	}
	return nil
}

func (s *Store) GetAdmin(ctx context.Context, addr id.Address) (*models.Admin, error) {
	var (
		admin   models.Admin
		address string
		role    string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT address, role, added_at FROM admins WHERE address = $1`, addr.String(),
	).Scan(&address, &role, &admin.AddedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get admin: %w", err)
	}
	admin.Address = id.Address(address)
	admin.Role = models.AdminRole(role)
	return &admin, nil
}

func (s *Store) RemoveAdmin(ctx context.Context, addr id.Address) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM admins WHERE address = $1`, addr.String())
	if err != nil {
		return fmt.Errorf("remove admin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Store) PutTemplate(ctx context.Context, tmpl *models.Template) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO templates (template_id, kind, name, player_count, enabled, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (template_id) DO UPDATE
		    SET kind = EXCLUDED.kind, name = EXCLUDED.name,
		        player_count = EXCLUDED.player_count, enabled = EXCLUDED.enabled`,
		int16(tmpl.ID), tmpl.Kind, tmpl.Name, int16(tmpl.PlayerCount), tmpl.Enabled, tmpl.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("put template: %w", err)
	}
	return nil
}

func (s *Store) GetTemplate(ctx context.Context, templateID id.TemplateID) (*models.Template, error) {
	var (
		tmpl    models.Template
		rowID   int16
		players int16
	)
	err := s.pool.QueryRow(ctx,
		`SELECT template_id, kind, name, player_count, enabled, created_at
		   FROM templates WHERE template_id = $1`, int16(templateID),
	).Scan(&rowID, &tmpl.Kind, &tmpl.Name, &players, &tmpl.Enabled, &tmpl.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get template: %w", err)
	}
	tmpl.ID = id.TemplateID(rowID)
	tmpl.PlayerCount = uint8(players)
	return &tmpl, nil
}

func (s *Store) ListTemplates(ctx context.Context) ([]*models.Template, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT template_id, kind, name, player_count, enabled, created_at
		   FROM templates ORDER BY template_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []*models.Template
	for rows.Next() {
		var (
			tmpl    models.Template
			rowID   int16
			players int16
		)
		if err := rows.Scan(&rowID, &tmpl.Kind, &tmpl.Name, &players, &tmpl.Enabled, &tmpl.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		tmpl.ID = id.TemplateID(rowID)
		tmpl.PlayerCount = uint8(players)
		out = append(out, &tmpl)
	}
	return out, rows.Err()
}

func (s *Store) queryUser(ctx context.Context, query string, arg any) (*models.User, error) {
	row := s.pool.QueryRow(ctx, query, arg)
	user, err := scanUserRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

func scanUserRow(row pgx.Row) (*models.User, error) {
	var (
		user    models.User
		rowID   int64
		address string
		role    string
	)
	if err := row.Scan(&rowID, &address, &role, &user.Name, &user.CreatedAt); err != nil {
		return nil, err
	}
	user.ID = id.UserID(rowID)
	user.Address = id.Address(address)
	user.Role = models.Role(role)
	return &user, nil
}
