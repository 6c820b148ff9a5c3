// Package call owns the call lifecycle: creation with conflict detection, state and
// participant transitions, and the notifications they trigger.
package call

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"webconf-backend/internal/domain"
	"webconf-backend/internal/repository"
	"webconf-backend/pkg/constants"
	pkgcontext "webconf-backend/pkg/context"
	apperrors "webconf-backend/pkg/errors"
	"webconf-backend/pkg/logger"
	"webconf-backend/pkg/metrics"
)

// IdentityResolver looks up users and spaces. Unknown ids resolve to nil, nil.
type IdentityResolver interface {
	ResolveUser(ctx context.Context, id string) (*domain.Identity, error)
	ResolveSpace(ctx context.Context, prettyName string) (*domain.Identity, error)
}

// Notifier delivers call events to the listeners of a user
type Notifier interface {
	Dispatch(userID string, event domain.CallEvent)
	HasClient(userID, clientID string) bool
}

// Service handles call business logic
type Service struct {
	store      repository.CallStore
	identities IdentityResolver
	notifier   Notifier
	metrics    *metrics.Metrics
	validate   *validator.Validate
	maxAgeDays int
	now        func() time.Time
}

// NewService creates a new call service
func NewService(store repository.CallStore, identities IdentityResolver, notifier Notifier, m *metrics.Metrics) *Service {
	return &Service{
		store:      store,
		identities: identities,
		notifier:   notifier,
		metrics:    m,
		validate:   newValidator(),
		maxAgeDays: constants.DefaultUserCallMaxAgeDays,
		now:        time.Now,
	}
}

// WithUserCallMaxAge sets how many days user calls survive the startup sweep
func (s *Service) WithUserCallMaxAge(days int) *Service {
	s.maxAgeDays = days
	return s
}

// AddCallInput contains call creation data
type AddCallInput struct {
	ID           string   `json:"id" validate:"required,max=255"`
	OwnerID      string   `json:"owner_id" validate:"required,max=255"`
	OwnerType    string   `json:"owner_type" validate:"required,max=32,oneof=user space chat_room"`
	ProviderType string   `json:"provider_type" validate:"required,max=32"`
	Title        string   `json:"title" validate:"max=255"`
	Participants []string `json:"participants" validate:"dive,required,max=255"`
}

// AddCall creates a started call. The acting user, if any, is taken from ctx and is not notified.
func (s *Service) AddCall(ctx context.Context, input *AddCallInput) (*domain.Call, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}
	isGroup := input.OwnerType != domain.IdentityUser

	if isGroup {
		s.dropStaleGroupCall(ctx, input.OwnerID, input.ID)
	}
	if err := s.invalidate(ctx, input.ID, isGroup); err != nil {
		return nil, err
	}

	owner, err := s.resolveOwner(ctx, input)
	if err != nil {
		return nil, err
	}
	call := &domain.Call{
		ID:           input.ID,
		Title:        input.Title,
		Owner:        owner,
		ProviderType: input.ProviderType,
		State:        domain.CallStarted,
		LastDate:     s.now(),
	}
	for _, id := range input.Participants {
		part, err := s.resolveParticipant(ctx, id, input.ProviderType)
		if err != nil {
			return nil, err
		}
		call.AddParticipant(&domain.Participant{Identity: part})
	}

	rec, parts, err := toRecords(call)
	if err != nil {
		return nil, err
	}
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.CallTx) error {
		return tx.Create(ctx, rec, parts)
	})
	if errors.Is(err, repository.ErrDuplicateCall) {
		return nil, s.conflictOnCreate(ctx, input.ID, err)
	}
	if err != nil {
		return nil, apperrors.StorageError(err)
	}

	s.metrics.RecordCallCreated(call.ProviderType, call.IsGroup())
	logger.Info("Call created",
		zap.String("call_id", call.ID),
		zap.String("owner_id", call.Owner.ID),
		zap.String("owner_type", call.Owner.Type),
		zap.Int("participants", len(call.Participants)))

	actor := pkgcontext.UserID(ctx)
	event := domain.NewStateEvent(call, domain.CallStarted)
	for _, part := range call.UserParticipants() {
		if actor == "" || part.ID != actor {
			s.notifier.Dispatch(part.ID, event)
		}
	}
	return call, nil
}

// GetCall returns the call or a CALL_NOT_FOUND error. Any failure to read or rebuild
// the stored call is reported as INVALID_CALL wrapping the cause.
func (s *Service) GetCall(ctx context.Context, id string) (*domain.Call, error) {
	if err := s.validateID(id); err != nil {
		return nil, err
	}
	call, err := s.loadCall(ctx, id)
	if err != nil {
		return nil, apperrors.InvalidCallError("Error reading call", err)
	}
	if call == nil {
		return nil, apperrors.CallNotFoundError()
	}
	return call, nil
}

// GetUserCalls lists the group calls the user takes part in. Calls that cannot be
// rebuilt are skipped.
func (s *Service) GetUserCalls(ctx context.Context, userID string) ([]domain.CallSummary, error) {
	if err := s.validateID(userID); err != nil {
		return nil, err
	}

	type stored struct {
		rec   *repository.CallRecord
		parts []*repository.ParticipantRecord
	}
	var found []stored
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.CallTx) error {
		recs, err := tx.FindGroupCallsForUser(ctx, userID)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			parts, err := tx.FindParticipants(ctx, rec.ID)
			if err != nil {
				return err
			}
			found = append(found, stored{rec: rec, parts: parts})
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.StorageError(err)
	}

	summaries := make([]domain.CallSummary, 0, len(found))
	for _, f := range found {
		call, err := s.hydrate(ctx, f.rec, f.parts)
		if err != nil {
			logger.Warn("Error reading user group call",
				zap.String("call_id", f.rec.ID),
				zap.String("user_id", userID),
				zap.Error(err))
			continue
		}
		state := call.State
		if state == "" {
			state = domain.CallStopped
		}
		summaries = append(summaries, domain.CallSummary{ID: call.ID, State: state})
	}
	return summaries, nil
}

// StartupSweep deletes user calls left over by a previous process
func (s *Service) StartupSweep(ctx context.Context) {
	var purged int
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.CallTx) error {
		var err error
		purged, err = tx.PurgeExpiredUserCalls(ctx, s.maxAgeDays)
		return err
	})
	if err != nil {
		logger.Error("Failed to purge expired user calls", zap.Error(err))
		return
	}
	s.metrics.RecordCallCleanup("expired", purged)
	logger.Info("Purged expired user calls",
		zap.Int("count", purged),
		zap.Int("max_age_days", s.maxAgeDays))
}

// dropStaleGroupCall deletes the previous call of a group owner when its id differs.
// Failures are logged and creation goes on.
func (s *Service) dropStaleGroupCall(ctx context.Context, ownerID, callID string) {
	var staleID string
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.CallTx) error {
		prev, err := tx.FindByGroupOwner(ctx, ownerID)
		if err != nil || prev == nil || prev.ID == callID {
			return err
		}
		staleID = prev.ID
		_, err = tx.Delete(ctx, prev.ID)
		return err
	})
	if err != nil {
		logger.Warn("Failed to delete outdated group call",
			zap.String("owner_id", ownerID),
			zap.String("call_id", staleID),
			zap.Error(err))
		return
	}
	if staleID != "" {
		s.metrics.RecordCallCleanup("stale_group", 1)
		logger.Info("Deleted outdated group call",
			zap.String("owner_id", ownerID),
			zap.String("call_id", staleID))
	}
}

// invalidate checks a call already stored under id. Group calls always conflict.
// A P2P call conflicts only while one of its clients is live, otherwise it is deleted.
func (s *Service) invalidate(ctx context.Context, id string, isGroup bool) error {
	rec, parts, err := s.readRecords(ctx, id)
	if err != nil {
		logger.Warn("Error reading call by id", zap.String("call_id", id), zap.Error(err))
		return nil
	}
	if rec == nil {
		return nil
	}

	if isGroup {
		return s.conflict(classifyConflict(rec, parts, s.notifier), nil)
	}

	reason := "not active"
	if _, err := s.hydrate(ctx, rec, parts); err != nil {
		reason = "erroneous"
		logger.Warn("Stored call cannot be read", zap.String("call_id", id), zap.Error(err))
	} else if classifyConflict(rec, parts, s.notifier) == apperrors.ReasonAlreadyRunning {
		return s.conflict(apperrors.ReasonAlreadyRunning, nil)
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.CallTx) error {
		_, err := tx.Delete(ctx, id)
		return err
	})
	if err != nil {
		logger.Warn("Failed to delete outdated call", zap.String("call_id", id), zap.Error(err))
		return nil
	}
	s.metrics.RecordCallCleanup("stale_p2p", 1)
	logger.Info("Deleted outdated call", zap.String("call_id", id), zap.String("reason", reason))
	return nil
}

// conflictOnCreate turns a lost creation race into a conflict classified on the winner's record
func (s *Service) conflictOnCreate(ctx context.Context, id string, cause error) error {
	rec, parts, err := s.readRecords(ctx, id)
	if err != nil || rec == nil {
		logger.Warn("Cannot read conflicting call", zap.String("call_id", id), zap.Error(err))
		return s.conflict(apperrors.ReasonAlreadyCreated, cause)
	}
	return s.conflict(classifyConflict(rec, parts, s.notifier), cause)
}

func (s *Service) conflict(reason apperrors.ConflictReason, cause error) error {
	s.metrics.RecordCallConflict(string(reason))
	return apperrors.CallConflictError(reason, cause)
}

// readRecords loads a call and its participants, nil when absent
func (s *Service) readRecords(ctx context.Context, id string) (*repository.CallRecord, []*repository.ParticipantRecord, error) {
	var rec *repository.CallRecord
	var parts []*repository.ParticipantRecord
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.CallTx) error {
		var err error
		rec, err = tx.Find(ctx, id)
		if err != nil || rec == nil {
			return err
		}
		parts, err = tx.FindParticipants(ctx, id)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return rec, parts, nil
}

// loadCall reads and rebuilds a call, nil when absent
func (s *Service) loadCall(ctx context.Context, id string) (*domain.Call, error) {
	rec, parts, err := s.readRecords(ctx, id)
	if err != nil {
		return nil, apperrors.StorageError(err)
	}
	if rec == nil {
		return nil, nil
	}
	return s.hydrate(ctx, rec, parts)
}

// requireCall is loadCall with absence reported as CALL_NOT_FOUND
func (s *Service) requireCall(ctx context.Context, id string) (*domain.Call, error) {
	if err := s.validateID(id); err != nil {
		return nil, err
	}
	call, err := s.loadCall(ctx, id)
	if err != nil {
		return nil, err
	}
	if call == nil {
		return nil, apperrors.CallNotFoundError()
	}
	return call, nil
}
