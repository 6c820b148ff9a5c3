package cockroach

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"webconf-backend/internal/repository"
)

//go:embed schema/*.sql
var schemaFS embed.FS

const uniqueViolation = "23505"

const callColumns = `c.id, c.title, c.owner_id, c.owner_type, c.provider_type, c.state, c.last_date, c.is_group, c.is_user, c.settings`

// CallStore keeps calls and their participants in CockroachDB
type CallStore struct {
	pool *pgxpool.Pool
}

// NewCallStore creates a new call store
func NewCallStore(pool *pgxpool.Pool) *CallStore {
	return &CallStore{pool: pool}
}

// EnsureSchema creates the call tables when missing
func (s *CallStore) EnsureSchema(ctx context.Context) error {
	ddl, err := schemaFS.ReadFile("schema/calls.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}
	for _, stmt := range strings.Split(string(ddl), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// WithinTx runs fn in a single transaction
func (s *CallStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.CallTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &callTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError("failed to commit transaction", err)
	}
	return nil
}

// Close is a no-op: the pool is owned by the caller
func (s *CallStore) Close() error {
	return nil
}

type callTx struct {
	tx pgx.Tx
}

// Create inserts the call and its participants
func (t *callTx) Create(ctx context.Context, call *repository.CallRecord, parts []*repository.ParticipantRecord) error {
	query := `
		INSERT INTO calls (
			id, title, owner_id, owner_type, provider_type, state, last_date, is_group, is_user, settings
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := t.tx.Exec(ctx, query,
		call.ID,
		nullable(call.Title),
		call.OwnerID,
		call.OwnerType,
		call.ProviderType,
		nullable(call.State),
		call.LastDate.UTC(),
		call.IsGroup,
		call.IsUser,
		nullable(call.Settings),
	)
	if err != nil {
		return mapError("failed to create call", err)
	}

	for i, p := range parts {
		if err := t.insertParticipant(ctx, p, i); err != nil {
			return err
		}
	}
	return nil
}

func (t *callTx) insertParticipant(ctx context.Context, p *repository.ParticipantRecord, seq int) error {
	query := `
		INSERT INTO call_participants (id, call_id, type, state, client_id, seq)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := t.tx.Exec(ctx, query, p.ID, p.CallID, p.Type, nullable(p.State), nullable(p.ClientID), seq)
	if err != nil {
		return mapError("failed to add participant", err)
	}
	return nil
}

// Find retrieves a call by id
func (t *callTx) Find(ctx context.Context, id string) (*repository.CallRecord, error) {
	query := `SELECT ` + callColumns + ` FROM calls c WHERE c.id = $1`

	rec, err := scanCall(t.tx.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get call: %w", err)
	}
	return rec, nil
}

// FindParticipants lists the participants of a call in insertion order
func (t *callTx) FindParticipants(ctx context.Context, callID string) ([]*repository.ParticipantRecord, error) {
	query := `
		SELECT id, call_id, type, state, client_id
		FROM call_participants
		WHERE call_id = $1
		ORDER BY seq
	`
	rows, err := t.tx.Query(ctx, query, callID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	defer rows.Close()

	var parts []*repository.ParticipantRecord
	for rows.Next() {
		var p repository.ParticipantRecord
		var state, clientID *string
		if err := rows.Scan(&p.ID, &p.CallID, &p.Type, &state, &clientID); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		p.State = deref(state)
		p.ClientID = deref(clientID)
		parts = append(parts, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}
	return parts, nil
}

// Update saves every mutable column of a call
func (t *callTx) Update(ctx context.Context, call *repository.CallRecord) error {
	query := `
		UPDATE calls
		SET title = $2, owner_id = $3, owner_type = $4, provider_type = $5,
		    state = $6, last_date = $7, is_group = $8, is_user = $9, settings = $10
		WHERE id = $1
	`
	tag, err := t.tx.Exec(ctx, query,
		call.ID,
		nullable(call.Title),
		call.OwnerID,
		call.OwnerType,
		call.ProviderType,
		nullable(call.State),
		call.LastDate.UTC(),
		call.IsGroup,
		call.IsUser,
		nullable(call.Settings),
	)
	if err != nil {
		return mapError("failed to update call", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrCallNotFound
	}
	return nil
}

// UpdateParticipant saves the state and client of a participant
func (t *callTx) UpdateParticipant(ctx context.Context, p *repository.ParticipantRecord) error {
	query := `
		UPDATE call_participants
		SET state = $3, client_id = $4
		WHERE id = $1 AND call_id = $2
	`
	tag, err := t.tx.Exec(ctx, query, p.ID, p.CallID, nullable(p.State), nullable(p.ClientID))
	if err != nil {
		return mapError("failed to update participant", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrParticipantNotFound
	}
	return nil
}

// Delete removes a call and its participants
func (t *callTx) Delete(ctx context.Context, id string) (bool, error) {
	if _, err := t.tx.Exec(ctx, `DELETE FROM call_participants WHERE call_id = $1`, id); err != nil {
		return false, fmt.Errorf("failed to delete participants: %w", err)
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM calls WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete call: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FindByGroupOwner returns the latest group call of an owner
func (t *callTx) FindByGroupOwner(ctx context.Context, ownerID string) (*repository.CallRecord, error) {
	query := `
		SELECT ` + callColumns + `
		FROM calls c
		WHERE c.owner_id = $1 AND c.is_group
		ORDER BY c.last_date DESC
		LIMIT 1
	`
	rec, err := scanCall(t.tx.QueryRow(ctx, query, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group call: %w", err)
	}
	return rec, nil
}

// FindGroupCallsForUser lists group calls having the user as participant
func (t *callTx) FindGroupCallsForUser(ctx context.Context, userID string) ([]*repository.CallRecord, error) {
	query := `
		SELECT ` + callColumns + `
		FROM calls c
		JOIN call_participants p ON p.call_id = c.id
		WHERE p.id = $1 AND c.is_group
		ORDER BY c.last_date DESC
	`
	rows, err := t.tx.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user calls: %w", err)
	}
	defer rows.Close()

	var calls []*repository.CallRecord
	for rows.Next() {
		rec, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}
		calls = append(calls, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate calls: %w", err)
	}
	return calls, nil
}

// PurgeExpiredUserCalls removes user owned calls older than the retention window
func (t *callTx) PurgeExpiredUserCalls(ctx context.Context, maxAgeDays int) (int, error) {
	cutoff := repository.ExpiryCutoff(time.Now(), maxAgeDays)
	tag, err := t.tx.Exec(ctx, `DELETE FROM calls WHERE is_user AND last_date < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge user calls: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanCall(row pgx.Row) (*repository.CallRecord, error) {
	var rec repository.CallRecord
	var title, state, settings *string
	err := row.Scan(
		&rec.ID,
		&title,
		&rec.OwnerID,
		&rec.OwnerType,
		&rec.ProviderType,
		&state,
		&rec.LastDate,
		&rec.IsGroup,
		&rec.IsUser,
		&settings,
	)
	if err != nil {
		return nil, err
	}
	rec.Title = deref(title)
	rec.State = deref(state)
	rec.Settings = deref(settings)
	return &rec, nil
}

func mapError(msg string, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", msg, repository.ErrDuplicateCall)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ repository.CallStore = (*CallStore)(nil)
