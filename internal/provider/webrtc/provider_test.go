package webrtc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestProvider_Description(t *testing.T) {
	p := NewProvider(nil, false)

	assert.Contains(t, p.Description(language.English), "WebRTC")
	assert.Equal(t, descriptions[language.French], p.Description(language.MustParse("fr-CA")))
	assert.Equal(t, descriptions[language.English], p.Description(language.Japanese))
}

func TestProvider_ActiveFlag(t *testing.T) {
	p := NewProvider([]string{"stun:stun.example:3478"}, true)

	assert.True(t, p.IsActive())
	p.SetActive(false)
	assert.False(t, p.IsActive())
	assert.True(t, p.IsLogEnabled())
	assert.Equal(t, []string{Type}, p.SupportedTypes())
	assert.Equal(t, []string{"stun:stun.example:3478"}, p.ICEServers())

	info, err := p.IMInfo(context.Background(), "mary")
	assert.NoError(t, err)
	assert.Nil(t, info)
}
