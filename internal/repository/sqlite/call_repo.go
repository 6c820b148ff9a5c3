// Package sqlite provides an embedded call store for single node deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"webconf-backend/internal/repository"
	"webconf-backend/pkg/database"
)

const schema = `
CREATE TABLE IF NOT EXISTS calls (
    id            TEXT    PRIMARY KEY,
    title         TEXT,
    owner_id      TEXT    NOT NULL,
    owner_type    TEXT    NOT NULL,
    provider_type TEXT    NOT NULL,
    state         TEXT,
    last_date     INTEGER NOT NULL,
    is_group      INTEGER NOT NULL DEFAULT 0,
    is_user       INTEGER NOT NULL DEFAULT 0,
    settings      TEXT
);
CREATE INDEX IF NOT EXISTS idx_calls_owner ON calls (owner_id);
CREATE TABLE IF NOT EXISTS call_participants (
    id        TEXT    NOT NULL,
    call_id   TEXT    NOT NULL REFERENCES calls (id) ON DELETE CASCADE,
    type      TEXT    NOT NULL,
    state     TEXT,
    client_id TEXT,
    seq       INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (id, call_id)
);
CREATE INDEX IF NOT EXISTS idx_call_participants_call ON call_participants (call_id);
`

const callColumns = `c.id, c.title, c.owner_id, c.owner_type, c.provider_type, c.state, c.last_date, c.is_group, c.is_user, c.settings`

// Store persists calls in SQLite
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite call store and creates its tables
func Open(path string) (*Store, error) {
	sqlDB, err := database.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// WithinTx runs fn in a single immediate transaction
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.CallTx) error) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, &callTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapError("commit transaction", err)
	}
	return nil
}

type callTx struct {
	tx *sql.Tx
}

func (t *callTx) Create(ctx context.Context, call *repository.CallRecord, parts []*repository.ParticipantRecord) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO calls (
		   id, title, owner_id, owner_type, provider_type, state, last_date, is_group, is_user, settings
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		call.ID,
		nullString(call.Title),
		call.OwnerID,
		call.OwnerType,
		call.ProviderType,
		nullString(call.State),
		toMillis(call.LastDate),
		call.IsGroup,
		call.IsUser,
		nullString(call.Settings),
	)
	if err != nil {
		return mapError("insert call", err)
	}

	for i, p := range parts {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO call_participants (id, call_id, type, state, client_id, seq)
			VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID, p.CallID, p.Type, nullString(p.State), nullString(p.ClientID), i,
		)
		if err != nil {
			return mapError("insert participant", err)
		}
	}
	return nil
}

func (t *callTx) Find(ctx context.Context, id string) (*repository.CallRecord, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+callColumns+` FROM calls c WHERE c.id = ?`, id)
	rec, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get call: %w", err)
	}
	return rec, nil
}

func (t *callTx) FindParticipants(ctx context.Context, callID string) ([]*repository.ParticipantRecord, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, call_id, type, state, client_id
		FROM call_participants
		WHERE call_id = ?
		ORDER BY seq`, callID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var parts []*repository.ParticipantRecord
	for rows.Next() {
		var p repository.ParticipantRecord
		var state, clientID sql.NullString
		if err := rows.Scan(&p.ID, &p.CallID, &p.Type, &state, &clientID); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		p.State = state.String
		p.ClientID = clientID.String
		parts = append(parts, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	return parts, nil
}

func (t *callTx) Update(ctx context.Context, call *repository.CallRecord) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE calls
		SET title = ?, owner_id = ?, owner_type = ?, provider_type = ?,
		    state = ?, last_date = ?, is_group = ?, is_user = ?, settings = ?
		WHERE id = ?`,
		nullString(call.Title),
		call.OwnerID,
		call.OwnerType,
		call.ProviderType,
		nullString(call.State),
		toMillis(call.LastDate),
		call.IsGroup,
		call.IsUser,
		nullString(call.Settings),
		call.ID,
	)
	if err != nil {
		return mapError("update call", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrCallNotFound
	}
	return nil
}

func (t *callTx) UpdateParticipant(ctx context.Context, p *repository.ParticipantRecord) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE call_participants
		SET state = ?, client_id = ?
		WHERE id = ? AND call_id = ?`,
		nullString(p.State), nullString(p.ClientID), p.ID, p.CallID,
	)
	if err != nil {
		return mapError("update participant", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrParticipantNotFound
	}
	return nil
}

func (t *callTx) Delete(ctx context.Context, id string) (bool, error) {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM call_participants WHERE call_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete participants: %w", err)
	}
	res, err := t.tx.ExecContext(ctx, `DELETE FROM calls WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete call: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (t *callTx) FindByGroupOwner(ctx context.Context, ownerID string) (*repository.CallRecord, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+callColumns+`
		FROM calls c
		WHERE c.owner_id = ? AND c.is_group = 1
		ORDER BY c.last_date DESC
		LIMIT 1`, ownerID)
	rec, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get group call: %w", err)
	}
	return rec, nil
}

func (t *callTx) FindGroupCallsForUser(ctx context.Context, userID string) ([]*repository.CallRecord, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+callColumns+`
		FROM calls c
		JOIN call_participants p ON p.call_id = c.id
		WHERE p.id = ? AND c.is_group = 1
		ORDER BY c.last_date DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user calls: %w", err)
	}
	defer rows.Close()

	var calls []*repository.CallRecord
	for rows.Next() {
		rec, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		calls = append(calls, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calls: %w", err)
	}
	return calls, nil
}

func (t *callTx) PurgeExpiredUserCalls(ctx context.Context, maxAgeDays int) (int, error) {
	cutoff := repository.ExpiryCutoff(time.Now(), maxAgeDays)
	if _, err := t.tx.ExecContext(ctx, `
		DELETE FROM call_participants
		WHERE call_id IN (SELECT id FROM calls WHERE is_user = 1 AND last_date < ?)`, toMillis(cutoff)); err != nil {
		return 0, fmt.Errorf("purge participants: %w", err)
	}
	res, err := t.tx.ExecContext(ctx, `DELETE FROM calls WHERE is_user = 1 AND last_date < ?`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge user calls: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (*repository.CallRecord, error) {
	var rec repository.CallRecord
	var title, state, settings sql.NullString
	var lastDate int64
	err := row.Scan(
		&rec.ID,
		&title,
		&rec.OwnerID,
		&rec.OwnerType,
		&rec.ProviderType,
		&state,
		&lastDate,
		&rec.IsGroup,
		&rec.IsUser,
		&settings,
	)
	if err != nil {
		return nil, err
	}
	rec.Title = title.String
	rec.State = state.String
	rec.Settings = settings.String
	rec.LastDate = fromMillis(lastDate)
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func mapError(msg string, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", msg, repository.ErrDuplicateCall)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ repository.CallStore = (*Store)(nil)
