package call

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"webconf-backend/internal/domain"
	"webconf-backend/internal/repository"
	"webconf-backend/pkg/constants"
	apperrors "webconf-backend/pkg/errors"
	"webconf-backend/pkg/logger"
)

// roomSettings is the settings blob stored with chat room calls
type roomSettings struct {
	RoomTitle string `json:"roomTitle"`
}

func (s *Service) resolveOwner(ctx context.Context, input *AddCallInput) (domain.Identity, error) {
	switch input.OwnerType {
	case domain.IdentityUser:
		user, err := s.identities.ResolveUser(ctx, input.OwnerID)
		if err != nil {
			return domain.Identity{}, apperrors.IdentityError(input.OwnerID, err)
		}
		if user == nil {
			logger.Warn("Call owner user not found", zap.String("owner_id", input.OwnerID))
			return domain.NewUnresolvedUser(input.OwnerID), nil
		}
		return *user, nil
	case domain.IdentitySpace:
		space, err := s.identities.ResolveSpace(ctx, input.OwnerID)
		if err != nil {
			return domain.Identity{}, apperrors.IdentityError(input.OwnerID, err)
		}
		if space == nil {
			logger.Warn("Call owner space not found, using chat room",
				zap.String("owner_id", input.OwnerID))
			return domain.NewChatRoom(input.OwnerID, input.Title, nil), nil
		}
		return *space, nil
	default:
		return domain.NewChatRoom(input.OwnerID, input.Title, nil), nil
	}
}

// resolveParticipant returns the directory user, or an external identity tagged with providerType
func (s *Service) resolveParticipant(ctx context.Context, id, providerType string) (domain.Identity, error) {
	user, err := s.identities.ResolveUser(ctx, id)
	if err != nil {
		return domain.Identity{}, apperrors.IdentityError(id, err)
	}
	if user == nil {
		return domain.NewExternal(providerType, id), nil
	}
	return *user, nil
}

func toRecords(call *domain.Call) (*repository.CallRecord, []*repository.ParticipantRecord, error) {
	rec := &repository.CallRecord{
		ID:           call.ID,
		Title:        call.Title,
		OwnerID:      call.Owner.ID,
		OwnerType:    call.Owner.Type,
		ProviderType: call.ProviderType,
		State:        string(call.State),
		LastDate:     call.LastDate,
		IsGroup:      call.Owner.IsGroup(),
		IsUser:       call.Owner.IsUser(),
	}
	if call.Owner.Type == domain.IdentityChatRoom {
		settings, err := json.Marshal(roomSettings{RoomTitle: call.Owner.Title})
		if err != nil {
			return nil, nil, apperrors.CallSettingsError("Error serializing call settings", err)
		}
		if len(settings) > constants.MaxDataBytes {
			return nil, nil, apperrors.CallSettingsError(
				fmt.Sprintf("Call settings exceed %d bytes", constants.MaxDataBytes), nil)
		}
		rec.Settings = string(settings)
	}

	parts := lo.Map(call.Participants, func(p *domain.Participant, _ int) *repository.ParticipantRecord {
		return participantRecord(call.ID, p)
	})
	return rec, parts, nil
}

func participantRecord(callID string, p *domain.Participant) *repository.ParticipantRecord {
	return &repository.ParticipantRecord{
		ID:       p.ID,
		CallID:   callID,
		Type:     p.Type,
		State:    string(p.State),
		ClientID: p.ClientID,
	}
}

// hydrate rebuilds a call from its records, resolving owner and user participants again
func (s *Service) hydrate(ctx context.Context, rec *repository.CallRecord, parts []*repository.ParticipantRecord) (*domain.Call, error) {
	owner, err := s.hydrateOwner(ctx, rec)
	if err != nil {
		return nil, err
	}
	call := &domain.Call{
		ID:           rec.ID,
		Title:        rec.Title,
		Owner:        owner,
		ProviderType: rec.ProviderType,
		State:        domain.CallState(rec.State),
		LastDate:     rec.LastDate,
	}

	for _, p := range parts {
		var identity domain.Identity
		if p.Type == domain.IdentityUser {
			identity, err = s.resolveParticipant(ctx, p.ID, rec.ProviderType)
			if err != nil {
				return nil, err
			}
		} else {
			identity = domain.NewExternal(p.Type, p.ID)
		}
		call.AddParticipant(&domain.Participant{
			Identity: identity,
			State:    domain.ParticipantState(p.State),
			ClientID: p.ClientID,
		})
	}
	return call, nil
}

func (s *Service) hydrateOwner(ctx context.Context, rec *repository.CallRecord) (domain.Identity, error) {
	switch rec.OwnerType {
	case domain.IdentityChatRoom:
		if rec.Settings == "" {
			return domain.Identity{}, apperrors.CallSettingsError("Room call settings missing", nil)
		}
		var settings roomSettings
		if err := json.Unmarshal([]byte(rec.Settings), &settings); err != nil {
			return domain.Identity{}, apperrors.CallSettingsError("Error parsing room call settings", err)
		}
		if settings.RoomTitle == "" {
			return domain.Identity{}, apperrors.CallSettingsError("Room call settings missing title", nil)
		}
		return domain.NewChatRoom(rec.OwnerID, settings.RoomTitle, nil), nil
	case domain.IdentitySpace:
		space, err := s.identities.ResolveSpace(ctx, rec.OwnerID)
		if err != nil {
			return domain.Identity{}, apperrors.IdentityError(rec.OwnerID, err)
		}
		if space == nil {
			return domain.Identity{}, apperrors.CallSettingsError(
				fmt.Sprintf("Call space not found: %s", rec.OwnerID), nil)
		}
		return *space, nil
	case domain.IdentityUser:
		user, err := s.identities.ResolveUser(ctx, rec.OwnerID)
		if err != nil {
			return domain.Identity{}, apperrors.IdentityError(rec.OwnerID, err)
		}
		if user == nil {
			return domain.NewUnresolvedUser(rec.OwnerID), nil
		}
		return *user, nil
	default:
		return domain.Identity{}, apperrors.CallSettingsError(
			fmt.Sprintf("Unexpected call owner type: %s", rec.OwnerType), nil)
	}
}
