package call

import (
	"webconf-backend/internal/domain"
	"webconf-backend/internal/repository"
	apperrors "webconf-backend/pkg/errors"
)

// classifyConflict tells why a call id is taken. A started call with a live client is
// running, a started one without is merely started, anything else was only created.
// Listener bindings can change right after the check, the result is a hint.
func classifyConflict(rec *repository.CallRecord, parts []*repository.ParticipantRecord, notifier Notifier) apperrors.ConflictReason {
	if rec == nil || domain.CallState(rec.State) != domain.CallStarted {
		return apperrors.ReasonAlreadyCreated
	}
	for _, p := range parts {
		if p.Type == domain.IdentityUser && p.ClientID != "" && notifier.HasClient(p.ID, p.ClientID) {
			return apperrors.ReasonAlreadyRunning
		}
	}
	return apperrors.ReasonAlreadyStarted
}
