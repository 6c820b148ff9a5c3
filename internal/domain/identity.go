package domain

import (
	"strings"

	"webconf-backend/pkg/constants"
)

// Identity types
const (
	IdentityUser     = "user"
	IdentitySpace    = "space"
	IdentityChatRoom = "chat_room"
)

// Identity is a call owner or participant.
// Type selects the variant: user, space, chat_room, or a provider type for external participants.
type Identity struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	AvatarLink  string `json:"avatar_link,omitempty"`
	ProfileLink string `json:"profile_link,omitempty"`

	// user
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`

	// space
	GroupID string `json:"group_id,omitempty"`

	// space, chat_room
	Members []Identity `json:"members,omitempty"`
}

// IsGroup reports whether calls owned by this identity are group calls
func (i Identity) IsGroup() bool {
	return i.Type == IdentitySpace || i.Type == IdentityChatRoom
}

// IsUser reports whether the identity is a registered (or user-typed external) user
func (i Identity) IsUser() bool {
	return i.Type == IdentityUser
}

// NewUser builds a user identity. The title falls back to the id when no name is known.
func NewUser(id, firstName, lastName string) Identity {
	title := strings.TrimSpace(firstName + " " + lastName)
	if title == "" {
		title = id
	}
	return Identity{
		ID:         id,
		Type:       IdentityUser,
		Title:      title,
		FirstName:  firstName,
		LastName:   lastName,
		AvatarLink: constants.ProfileDefaultAvatarURL,
	}
}

// NewUnresolvedUser stands for a user owner the directory does not know.
func NewUnresolvedUser(id string) Identity {
	return Identity{
		ID:         id,
		Type:       IdentityUser,
		Title:      id,
		AvatarLink: constants.ProfileDefaultAvatarURL,
	}
}

// NewSpace builds a space identity keyed by its pretty name
func NewSpace(prettyName, displayName, groupID string, members []Identity) Identity {
	if displayName == "" {
		displayName = prettyName
	}
	return Identity{
		ID:         prettyName,
		Type:       IdentitySpace,
		Title:      displayName,
		GroupID:    groupID,
		AvatarLink: constants.SpaceDefaultAvatarURL,
		Members:    members,
	}
}

// NewChatRoom builds a chat room identity
func NewChatRoom(id, title string, members []Identity) Identity {
	if title == "" {
		title = id
	}
	return Identity{
		ID:         id,
		Type:       IdentityChatRoom,
		Title:      title,
		AvatarLink: constants.SpaceDefaultAvatarURL,
		Members:    members,
	}
}

// NewExternal builds a participant unknown to the directory, tagged with the provider type.
func NewExternal(providerType, id string) Identity {
	return Identity{
		ID:         id,
		Type:       providerType,
		Title:      id,
		AvatarLink: constants.ProfileDefaultAvatarURL,
	}
}
