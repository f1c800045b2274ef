// Package sqlstore persists the registration document in two SQL tables.
// It works with postgres (lib/pq) and sqlite3 (go-sqlite3) through sqlx.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/pocketreg/internal/registration"
)

type userRow struct {
	UserID    string         `db:"user_id"`
	Status    string         `db:"status"`
	EnteredID sql.NullString `db:"entered_id"`
}

type registeredRow struct {
	UserID   string `db:"user_id"`
	TraderID string `db:"trader_id"`
}

// Store maps Load/Save of the whole document onto the users and registered tables.
type Store struct {
	db      *sqlx.DB
	backend string
}

// New wraps an open, migrated database. backend labels errors ("postgres", "sqlite").
func New(db *sqlx.DB, backend string) *Store {
	return &Store{db: db, backend: backend}
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load reads both tables in insertion order.
func (s *Store) Load(ctx context.Context) (*registration.Document, error) {
	var users []userRow
	if err := s.db.SelectContext(ctx, &users,
		`SELECT user_id, status, entered_id FROM users ORDER BY seq`); err != nil {
		return nil, registration.ReadError(s.backend, fmt.Errorf("select users: %w", err))
	}
	var regs []registeredRow
	if err := s.db.SelectContext(ctx, &regs,
		`SELECT user_id, trader_id FROM registered ORDER BY seq`); err != nil {
		return nil, registration.ReadError(s.backend, fmt.Errorf("select registered: %w", err))
	}

	doc := registration.NewDocument()
	for _, u := range users {
		status := registration.Status(u.Status)
		if !status.Valid() {
			return nil, registration.ReadError(s.backend, fmt.Errorf("user %s: unknown status %q", u.UserID, u.Status))
		}
		doc.SetUser(u.UserID, registration.UserRecord{Status: status, EnteredID: u.EnteredID.String})
	}
	for _, r := range regs {
		registration.Confirm(doc, r.UserID, r.TraderID)
	}
	return doc, nil
}

// Save makes the tables mirror doc inside one transaction. Existing rows keep
// their sequence number so insertion order is stable.
func (s *Store) Save(ctx context.Context, doc *registration.Document) error {
	doc = doc.Normalize()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return registration.WriteError(s.backend, fmt.Errorf("begin: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	upsertUser := tx.Rebind(`
		INSERT INTO users (user_id, status, entered_id, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id) DO UPDATE SET
			status = excluded.status,
			entered_id = excluded.entered_id,
			updated_at = CURRENT_TIMESTAMP`)
	upsertRegistered := tx.Rebind(`
		INSERT INTO registered (user_id, trader_id, confirmed_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id) DO UPDATE SET
			trader_id = excluded.trader_id`)

	var (
		userIDs []string
		regIDs  []string
		execErr error
	)
	doc.EachUser(func(userID string, rec registration.UserRecord) bool {
		entered := sql.NullString{String: rec.EnteredID, Valid: rec.EnteredID != ""}
		if _, execErr = tx.ExecContext(ctx, upsertUser, userID, string(rec.Status), entered); execErr != nil {
			execErr = fmt.Errorf("upsert user %s: %w", userID, execErr)
			return false
		}
		userIDs = append(userIDs, userID)
		return true
	})
	if execErr != nil {
		return registration.WriteError(s.backend, execErr)
	}
	doc.EachRegistered(func(userID, traderID string) bool {
		if _, execErr = tx.ExecContext(ctx, upsertRegistered, userID, traderID); execErr != nil {
			execErr = fmt.Errorf("upsert registered %s: %w", userID, execErr)
			return false
		}
		regIDs = append(regIDs, userID)
		return true
	})
	if execErr != nil {
		return registration.WriteError(s.backend, execErr)
	}

	if err := pruneMissing(ctx, tx, "users", userIDs); err != nil {
		return registration.WriteError(s.backend, err)
	}
	if err := pruneMissing(ctx, tx, "registered", regIDs); err != nil {
		return registration.WriteError(s.backend, err)
	}

	if err := tx.Commit(); err != nil {
		return registration.WriteError(s.backend, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// pruneChunk bounds the bind parameters of one DELETE well below the
// SQLite (32766) and Postgres (65535) limits.
const pruneChunk = 500

// pruneMissing deletes rows of table whose user_id is not in keep. Only the
// stale ids are bound, in chunks of pruneChunk.
func pruneMissing(ctx context.Context, tx *sqlx.Tx, table string, keep []string) error {
	var stored []string
	if err := tx.SelectContext(ctx, &stored, "SELECT user_id FROM "+table); err != nil {
		return fmt.Errorf("prune %s: %w", table, err)
	}
	wanted := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		wanted[id] = struct{}{}
	}
	var stale []string
	for _, id := range stored {
		if _, ok := wanted[id]; !ok {
			stale = append(stale, id)
		}
	}

	for len(stale) > 0 {
		n := min(len(stale), pruneChunk)
		query, args, err := sqlx.In("DELETE FROM "+table+" WHERE user_id IN (?)", stale[:n])
		if err != nil {
			return fmt.Errorf("prune %s: %w", table, err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return fmt.Errorf("prune %s: %w", table, err)
		}
		stale = stale[n:]
	}
	return nil
}
