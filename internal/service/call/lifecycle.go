package call

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"webconf-backend/internal/domain"
	"webconf-backend/internal/repository"
	pkgcontext "webconf-backend/pkg/context"
	apperrors "webconf-backend/pkg/errors"
	"webconf-backend/pkg/logger"
)

// StopCall ends the call. With remove the record is deleted, otherwise its state becomes stopped.
func (s *Service) StopCall(ctx context.Context, id string, remove bool) (*domain.Call, error) {
	call, err := s.requireCall(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.stop(ctx, call, remove, pkgcontext.UserID(ctx)); err != nil {
		return nil, err
	}
	return call, nil
}

// stop persists the end of the call and notifies its users. initiator may be empty.
func (s *Service) stop(ctx context.Context, call *domain.Call, remove bool, initiator string) error {
	if remove {
		err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.CallTx) error {
			_, err := tx.Delete(ctx, call.ID)
			return err
		})
		if err != nil {
			return apperrors.InvalidCallError("Error deleting call", apperrors.StorageError(err))
		}
		s.metrics.RecordCallTransition("delete")
	} else {
		call.State = domain.CallStopped
		call.LastDate = s.now()
		rec, _, err := toRecords(call)
		if err == nil {
			err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.CallTx) error {
				return tx.Update(ctx, rec)
			})
		}
		switch {
		case err == nil:
		case errors.Is(err, repository.ErrCallNotFound), apperrors.HasCode(err, apperrors.ErrCodeCallSettings):
			logger.Warn("Failed to save stopped call",
				zap.String("call_id", call.ID),
				zap.Error(err))
		default:
			return apperrors.InvalidCallError("Error stopping call", apperrors.StorageError(err))
		}
		s.metrics.RecordCallTransition("stop")
	}

	event := domain.NewStateEvent(call, domain.CallStopped)
	for _, part := range call.UserParticipants() {
		if call.IsGroup() && remove && initiator != "" && part.ID == initiator {
			continue
		}
		s.notifier.Dispatch(part.ID, event)
	}
	return nil
}

// StartCall opens a fresh session: the acting user joins with clientID, everyone else is marked leaved.
func (s *Service) StartCall(ctx context.Context, id, clientID string) (*domain.Call, error) {
	call, err := s.requireCall(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.start(ctx, call, pkgcontext.UserID(ctx), clientID); err != nil {
		return nil, err
	}
	return call, nil
}

func (s *Service) start(ctx context.Context, call *domain.Call, joinerID, clientID string) error {
	call.State = domain.CallStarted
	call.LastDate = s.now()
	for _, part := range call.Participants {
		if part.IsUser() && part.ID == joinerID {
			part.State = domain.ParticipantJoined
			part.ClientID = clientID
		} else {
			part.State = domain.ParticipantLeaved
			part.ClientID = ""
		}
	}

	rec, parts, err := toRecords(call)
	if err != nil {
		return err
	}
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.CallTx) error {
		if err := tx.Update(ctx, rec); err != nil {
			return err
		}
		for _, p := range parts {
			if err := tx.UpdateParticipant(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return persistError(err)
	}
	s.metrics.RecordCallTransition("start")

	event := domain.NewStateEvent(call, domain.CallStarted)
	for _, part := range call.Participants {
		s.notifier.Dispatch(part.ID, event)
	}
	return nil
}

// JoinCall marks the participant joined with clientID. Joining a call that is not started starts it.
func (s *Service) JoinCall(ctx context.Context, id, partID, clientID string) (*domain.Call, error) {
	call, err := s.requireCall(ctx, id)
	if err != nil {
		return nil, err
	}
	if call.State != domain.CallStarted {
		if err := s.start(ctx, call, partID, clientID); err != nil {
			return nil, err
		}
		return call, nil
	}

	part := call.UserParticipant(partID)
	if part == nil {
		return nil, apperrors.ParticipantNotFoundError()
	}
	part.State = domain.ParticipantJoined
	part.ClientID = clientID
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.CallTx) error {
		return tx.UpdateParticipant(ctx, participantRecord(call.ID, part))
	})
	if err != nil {
		return nil, persistError(err)
	}
	s.metrics.RecordCallTransition("join")

	event := domain.NewPartEvent(domain.EventPartJoined, call, partID)
	for _, p := range call.Participants {
		s.notifier.Dispatch(p.ID, event)
	}
	return call, nil
}

// LeaveCall marks the participant leaved when clientID is the one it joined with.
// A leave from another client is ignored. A missing call yields nil, nil.
// Once enough participants are gone the call is stopped: group calls when nobody is
// left, P2P calls (deleted) when at most one participant remains.
func (s *Service) LeaveCall(ctx context.Context, id, partID, clientID string) (*domain.Call, error) {
	if err := s.validateID(id); err != nil {
		return nil, err
	}
	call, err := s.loadCall(ctx, id)
	if err != nil {
		return nil, err
	}
	if call == nil {
		logger.Warn("Leaving not existing call",
			zap.String("call_id", id),
			zap.String("part_id", partID))
		return nil, nil
	}
	if call.State != domain.CallStarted && call.State != domain.CallPaused {
		return call, nil
	}

	part := call.UserParticipant(partID)
	if part == nil || !part.HasSameClientID(clientID) {
		logger.Debug("Ignored leave of another client",
			zap.String("call_id", id),
			zap.String("part_id", partID),
			zap.String("client_id", clientID))
		return call, nil
	}
	part.State = domain.ParticipantLeaved
	part.ClientID = ""
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.CallTx) error {
		return tx.UpdateParticipant(ctx, participantRecord(call.ID, part))
	})
	if err != nil {
		return nil, persistError(err)
	}
	s.metrics.RecordCallTransition("leave")

	event := domain.NewPartEvent(domain.EventPartLeaved, call, partID)
	for _, p := range call.Participants {
		s.notifier.Dispatch(p.ID, event)
	}

	notJoined := 0
	for _, p := range call.Participants {
		if p.NotJoined() {
			notJoined++
		}
	}
	total := len(call.Participants)
	switch {
	case call.IsGroup() && notJoined == total:
		err = s.stop(ctx, call, false, partID)
	case !call.IsGroup() && total-notJoined <= 1:
		err = s.stop(ctx, call, true, partID)
	}
	if err != nil {
		return nil, err
	}
	return call, nil
}

func persistError(err error) error {
	switch {
	case apperrors.IsAppError(err):
		return err
	case errors.Is(err, repository.ErrCallNotFound):
		return apperrors.CallNotFoundError()
	case errors.Is(err, repository.ErrParticipantNotFound):
		return apperrors.ParticipantNotFoundError()
	default:
		return apperrors.StorageError(err)
	}
}
