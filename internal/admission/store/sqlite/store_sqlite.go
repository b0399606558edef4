package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"whitelist/internal/admission/models"
	id "whitelist/pkg/domain"
	"whitelist/pkg/platform/sentinel"
)

// SQLiteStore persists the registry in an embedded SQLite file. The pool opened
// by internal/platform/sqlite holds a single connection, so each Admit
// transaction runs alone. Times are stored as Unix nanoseconds.
type SQLiteStore struct {
	db *sql.DB
}

func New(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Init(ctx context.Context, capacity int, now time.Time) (models.Registry, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO whitelist_registry (id, capacity, member_count, created_at)
		VALUES (1, ?, 0, ?)
	`, capacity, now.UnixNano())
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

func (s *SQLiteStore) Registry(ctx context.Context) (models.Registry, error) {
	return scanRegistry(s.db.QueryRowContext(ctx, `
		SELECT capacity, member_count, created_at FROM whitelist_registry WHERE id = 1
	`))
}

func scanRegistry(row *sql.Row) (models.Registry, error) {
	var (
		reg     models.Registry
		created int64
	)
	if err := row.Scan(&reg.Capacity, &reg.Count, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Registry{}, sentinel.ErrNotFound
		}
		return models.Registry{}, fmt.Errorf("get registry: %w", err)
	}
	reg.CreatedAt = time.Unix(0, created).UTC()
	return reg, nil
}

func (s *SQLiteStore) Admit(ctx context.Context, identity id.Identity, now time.Time) (adm models.Admission, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Admission{}, fmt.Errorf("begin admit: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	reg, err := scanRegistry(tx.QueryRowContext(ctx, `
		SELECT capacity, member_count, created_at FROM whitelist_registry WHERE id = 1
	`))
	if err != nil {
		return models.Admission{}, err
	}

	var (
		seq      int
		admitted int64
	)
	err = tx.QueryRowContext(ctx, `
		SELECT seq, admitted_at FROM whitelist_members WHERE identity = ?
	`, identity.String()).Scan(&seq, &admitted)
	switch {
	case err == nil:
		if err = tx.Commit(); err != nil {
			return models.Admission{}, fmt.Errorf("commit admit: %w", err)
		}
		member := models.Member{Identity: identity, Seq: seq, AdmittedAt: time.Unix(0, admitted).UTC()}
		return models.Admission{Member: member, Created: false, Count: reg.Count}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return models.Admission{}, fmt.Errorf("check member: %w", err)
	}

	if reg.Full() {
		return models.Admission{}, sentinel.ErrCapacityReached
	}

	member := models.Member{Identity: identity, Seq: reg.Count + 1, AdmittedAt: now}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO whitelist_members (identity, seq, admitted_at) VALUES (?, ?, ?)
	`, identity.String(), member.Seq, now.UnixNano()); err != nil {
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

func (s *SQLiteStore) IsMember(ctx context.Context, identity id.Identity) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM whitelist_members WHERE identity = ?)
	`, identity.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check member: %w", err)
	}
	return exists, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	reg, err := s.Registry(ctx)
	if err != nil {
		return 0, err
	}
	return reg.Count, nil
}

// Members looks identities up in one query. SQLite has no array parameters, so
// the IN list is built from placeholders.
func (s *SQLiteStore) Members(ctx context.Context, identities []id.Identity) (map[id.Identity]bool, error) {
	out := make(map[id.Identity]bool, len(identities))
	if len(identities) == 0 {
		return out, nil
	}
	args := make([]any, len(identities))
	for i, identity := range identities {
		args[i] = identity.String()
		out[identity] = false
	}

	query := `SELECT identity FROM whitelist_members WHERE identity IN (` +
		strings.TrimSuffix(strings.Repeat("?,", len(identities)), ",") + `)`
	rows, err := s.db.QueryContext(ctx, query, args...)
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
