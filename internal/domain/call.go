package domain

import (
	"time"

	"github.com/samber/lo"
)

// CallState is the lifecycle state of a call
type CallState string

const (
	CallStarted CallState = "started"
	// CallPaused is reserved for provider extensions; leave accepts it like started.
	CallPaused  CallState = "paused"
	CallStopped CallState = "stopped"
)

// ParticipantState tracks a participant inside the current call session
type ParticipantState string

const (
	ParticipantNone   ParticipantState = ""
	ParticipantJoined ParticipantState = "joined"
	ParticipantLeaved ParticipantState = "leaved"
)

// Participant is an identity taking part in a call
type Participant struct {
	Identity
	State    ParticipantState `json:"state,omitempty"`
	ClientID string           `json:"client_id,omitempty"`
}

// HasSameClientID reports whether the participant is currently represented by clientID.
// An unset client id never matches.
func (p *Participant) HasSameClientID(clientID string) bool {
	return p.ClientID != "" && clientID != "" && p.ClientID == clientID
}

// NotJoined reports whether the participant is absent from the current session
func (p *Participant) NotJoined() bool {
	return p.State == ParticipantNone || p.State == ParticipantLeaved
}

// Call represents a voice/video call session
type Call struct {
	ID           string         `json:"id"`
	Title        string         `json:"title,omitempty"`
	Owner        Identity       `json:"owner"`
	ProviderType string         `json:"provider_type"`
	Participants []*Participant `json:"participants"`
	State        CallState      `json:"state"`
	LastDate     time.Time      `json:"last_date"`
}

// IsGroup reports whether the call belongs to a space or a chat room
func (c *Call) IsGroup() bool {
	return c.Owner.IsGroup()
}

// AddParticipant appends p unless a participant with the same id is already there
func (c *Call) AddParticipant(p *Participant) bool {
	if c.Participant(p.ID) != nil {
		return false
	}
	c.Participants = append(c.Participants, p)
	return true
}

// Participant returns the participant with the given id, or nil
func (c *Call) Participant(id string) *Participant {
	p, ok := lo.Find(c.Participants, func(p *Participant) bool { return p.ID == id })
	if !ok {
		return nil
	}
	return p
}

// UserParticipant returns the user-typed participant with the given id, or nil
func (c *Call) UserParticipant(id string) *Participant {
	p := c.Participant(id)
	if p == nil || !p.IsUser() {
		return nil
	}
	return p
}

// UserParticipants returns the participants that are users
func (c *Call) UserParticipants() []*Participant {
	return lo.Filter(c.Participants, func(p *Participant, _ int) bool { return p.IsUser() })
}

// CallSummary is the id and state of a call, as listed for a user
type CallSummary struct {
	ID    string    `json:"id"`
	State CallState `json:"state"`
}
