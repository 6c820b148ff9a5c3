// Package webrtc is the built-in browser-to-browser call provider.
package webrtc

import (
	"context"
	"sync/atomic"

	"golang.org/x/text/language"

	"webconf-backend/internal/domain"
)

// Type is the provider type of built-in WebRTC calls
const Type = "webrtc"

var descriptions = map[language.Tag]string{
	language.English: "Peer-to-peer and group calls in the browser over WebRTC.",
	language.French:  "Appels pair-à-pair et de groupe dans le navigateur via WebRTC.",
}

var matcher = language.NewMatcher([]language.Tag{language.English, language.French})

// Provider serves the webrtc call type
type Provider struct {
	iceServers []string
	logEnabled bool
	active     atomic.Bool
}

// NewProvider creates the WebRTC provider, active until configured otherwise
func NewProvider(iceServers []string, logEnabled bool) *Provider {
	p := &Provider{
		iceServers: iceServers,
		logEnabled: logEnabled,
	}
	p.active.Store(true)
	return p
}

func (p *Provider) Type() string {
	return Type
}

func (p *Provider) SupportedTypes() []string {
	return []string{Type}
}

func (p *Provider) Title() string {
	return "WebRTC"
}

// Description returns the description in the closest supported language, English by default
func (p *Provider) Description(locale language.Tag) string {
	_, idx, _ := matcher.Match(locale)
	switch idx {
	case 1:
		return descriptions[language.French]
	default:
		return descriptions[language.English]
	}
}

func (p *Provider) IsActive() bool {
	return p.active.Load()
}

func (p *Provider) SetActive(active bool) {
	p.active.Store(active)
}

func (p *Provider) IsLogEnabled() bool {
	return p.logEnabled
}

// IMInfo returns nil: WebRTC calls have no separate IM account
func (p *Provider) IMInfo(ctx context.Context, userID string) (*domain.IMInfo, error) {
	return nil, nil
}

// ICEServers returns the STUN/TURN urls handed to clients
func (p *Provider) ICEServers() []string {
	return append([]string(nil), p.iceServers...)
}
