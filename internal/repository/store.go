// Package repository defines the persistence contracts of the call service.
// Backends live in sub-packages: cockroach and sqlite for calls, redis for the directory and settings.
package repository

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDuplicateCall is returned when a call with the same id is already stored
	ErrDuplicateCall = errors.New("call already exists")
	// ErrCallNotFound is returned by updates of a call that is not stored
	ErrCallNotFound = errors.New("call not found")
	// ErrParticipantNotFound is returned by updates of a participant that is not stored
	ErrParticipantNotFound = errors.New("participant not found")
)

// CallRecord is the persisted form of a call
type CallRecord struct {
	ID           string
	Title        string
	OwnerID      string
	OwnerType    string
	ProviderType string
	State        string // empty when never set
	LastDate     time.Time
	IsGroup      bool
	IsUser       bool
	Settings     string // JSON, empty when absent
}

// ParticipantRecord is the persisted form of a call participant
type ParticipantRecord struct {
	ID       string
	CallID   string
	Type     string
	State    string
	ClientID string
}

// CallTx is the set of call store operations available inside a transaction
type CallTx interface {
	// Create inserts the call and its participants. A taken id yields ErrDuplicateCall.
	Create(ctx context.Context, call *CallRecord, parts []*ParticipantRecord) error
	// Find returns nil, nil when the call does not exist
	Find(ctx context.Context, id string) (*CallRecord, error)
	FindParticipants(ctx context.Context, callID string) ([]*ParticipantRecord, error)
	Update(ctx context.Context, call *CallRecord) error
	// UpdateParticipant saves state and client id only, the participant type never changes
	UpdateParticipant(ctx context.Context, part *ParticipantRecord) error
	// Delete removes the call with its participants and reports whether it existed
	Delete(ctx context.Context, id string) (bool, error)
	// FindByGroupOwner returns the group call of an owner, or nil, nil
	FindByGroupOwner(ctx context.Context, ownerID string) (*CallRecord, error)
	FindGroupCallsForUser(ctx context.Context, userID string) ([]*CallRecord, error)
	// PurgeExpiredUserCalls deletes user owned calls last changed before local midnight minus maxAgeDays
	PurgeExpiredUserCalls(ctx context.Context, maxAgeDays int) (int, error)
}

// CallStore opens units of work over the call tables
type CallStore interface {
	// WithinTx runs fn in one transaction, committed when fn returns nil and rolled back otherwise
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx CallTx) error) error
	Close() error
}

// ExpiryCutoff returns the instant before which user calls are purged
func ExpiryCutoff(now time.Time, maxAgeDays int) time.Time {
	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return midnight.AddDate(0, 0, -maxAgeDays)
}
