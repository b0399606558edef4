package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"whitelist/internal/admission/models"
	id "whitelist/pkg/domain"
	"whitelist/pkg/platform/sentinel"
)

// PostgresStore persists the registry in PostgreSQL. The singleton
// whitelist_registry row is locked FOR UPDATE for the length of an admission,
// which serializes Admit across every server instance sharing the database.
type PostgresStore struct {
	db *sql.DB
}

// New constructs a PostgreSQL-backed registry store. Schema comes from
// internal/platform/postgres.Migrate.
func New(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Init(ctx context.Context, capacity int, now time.Time) (models.Registry, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO whitelist_registry (id, capacity, member_count, created_at)
		VALUES (1, $1, 0, $2)
		ON CONFLICT (id) DO NOTHING
	`, capacity, now)
	if err != nil {
		return models.Registry{}, false, fmt.Errorf("init registry: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return models.Registry{}, false, fmt.Errorf("init registry: %w", err)
	}

	reg, err := s.Registry(ctx)
	if err != nil {
		return models.Registry{}, false, err
	}
	if reg.Capacity != capacity {
		return reg, false, sentinel.ErrConflict
	}
	return reg, inserted == 1, nil
}

func (s *PostgresStore) Registry(ctx context.Context) (models.Registry, error) {
	var reg models.Registry
	err := s.db.QueryRowContext(ctx, `
		SELECT capacity, member_count, created_at FROM whitelist_registry WHERE id = 1
	`).Scan(&reg.Capacity, &reg.Count, &reg.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Registry{}, sentinel.ErrNotFound
		}
		return models.Registry{}, fmt.Errorf("get registry: %w", err)
	}
	return reg, nil
}

func (s *PostgresStore) Admit(ctx context.Context, identity id.Identity, now time.Time) (adm models.Admission, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Admission{}, fmt.Errorf("begin admit: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var reg models.Registry
	err = tx.QueryRowContext(ctx, `
		SELECT capacity, member_count FROM whitelist_registry WHERE id = 1 FOR UPDATE
	`).Scan(&reg.Capacity, &reg.Count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Admission{}, sentinel.ErrNotFound
		}
		return models.Admission{}, fmt.Errorf("lock registry: %w", err)
	}

	existing := models.Member{Identity: identity}
	err = tx.QueryRowContext(ctx, `
		SELECT seq, admitted_at FROM whitelist_members WHERE identity = $1
	`, identity.String()).Scan(&existing.Seq, &existing.AdmittedAt)
	switch {
	case err == nil:
		if err = tx.Commit(); err != nil {
			return models.Admission{}, fmt.Errorf("commit admit: %w", err)
		}
		return models.Admission{Member: existing, Created: false, Count: reg.Count}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return models.Admission{}, fmt.Errorf("check member: %w", err)
	}

	if reg.Full() {
		return models.Admission{}, sentinel.ErrCapacityReached
	}

	member := models.Member{Identity: identity, Seq: reg.Count + 1, AdmittedAt: now}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO whitelist_members (identity, seq, admitted_at) VALUES ($1, $2, $3)
	`, identity.String(), member.Seq, now); err != nil {
		return models.Admission{}, fmt.Errorf("insert member: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `
		UPDATE whitelist_registry SET member_count = member_count + 1 WHERE id = 1
	`); err != nil {
		return models.Admission{}, fmt.Errorf("increment member count: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return models.Admission{}, fmt.Errorf("commit admit: %w", err)
	}
	return models.Admission{Member: member, Created: true, Count: member.Seq}, nil
}

func (s *PostgresStore) IsMember(ctx context.Context, identity id.Identity) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM whitelist_members WHERE identity = $1)
	`, identity.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check member: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	reg, err := s.Registry(ctx)
	if err != nil {
		return 0, err
	}
	return reg.Count, nil
}

func (s *PostgresStore) Members(ctx context.Context, identities []id.Identity) (map[id.Identity]bool, error) {
	out := make(map[id.Identity]bool, len(identities))
	if len(identities) == 0 {
		return out, nil
	}
	keys := make([]string, len(identities))
	for i, identity := range identities {
		keys[i] = identity.String()
		out[identity] = false
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT identity FROM whitelist_members WHERE identity = ANY($1)
	`, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var identity string
		if err := rows.Scan(&identity); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out[id.Identity(identity)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return out, nil
}
