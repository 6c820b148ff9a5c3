package domain

// CallEventType names a notification sent to call listeners
type CallEventType string

const (
	EventCallState  CallEventType = "call_state"
	EventPartJoined CallEventType = "part_joined"
	EventPartLeaved CallEventType = "part_leaved"
)

// CallEvent is delivered to the listeners of a user
type CallEvent struct {
	Type         CallEventType `json:"type"`
	CallID       string        `json:"call_id"`
	ProviderType string        `json:"provider_type"`
	State        CallState     `json:"state,omitempty"`
	OwnerID      string        `json:"owner_id"`
	OwnerType    string        `json:"owner_type"`
	PartID       string        `json:"part_id,omitempty"`
}

// NewStateEvent builds a call state change event
func NewStateEvent(call *Call, state CallState) CallEvent {
	return CallEvent{
		Type:         EventCallState,
		CallID:       call.ID,
		ProviderType: call.ProviderType,
		State:        state,
		OwnerID:      call.Owner.ID,
		OwnerType:    call.Owner.Type,
	}
}

// NewPartEvent builds a participant joined or leaved event
func NewPartEvent(eventType CallEventType, call *Call, partID string) CallEvent {
	return CallEvent{
		Type:         eventType,
		CallID:       call.ID,
		ProviderType: call.ProviderType,
		OwnerID:      call.Owner.ID,
		OwnerType:    call.Owner.Type,
		PartID:       partID,
	}
}
