// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Time-related constants
const (
	// WebSocketPingInterval is the interval for WebSocket ping/pong
	WebSocketPingInterval = 60 * time.Second

	// WebSocketWriteWait is the write deadline for a single WebSocket frame
	WebSocketWriteWait = 10 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second

	// DefaultDispatchTimeout bounds a single listener invocation
	DefaultDispatchTimeout = 2 * time.Second
)

// JWT-related constants
const (
	// AccessTokenExpiry is the default access token lifetime
	AccessTokenExpiry = 15 * time.Minute

	// DefaultAudience is the audience expected in API tokens
	DefaultAudience = "webconf-api"
)

// Database connection constants
const (
	// MaxConnLifetime is the maximum lifetime of a database connection
	MaxConnLifetime = 1 * time.Hour

	// MaxConnIdleTime is the maximum idle time for a database connection
	MaxConnIdleTime = 30 * time.Minute

	// HealthCheckPeriod is the interval between database health checks
	HealthCheckPeriod = 1 * time.Minute

	// SQLiteBusyTimeoutMillis is how long SQLite waits on a locked database
	SQLiteBusyTimeoutMillis = 5000
)

// Call validation constants
const (
	// MaxIDLength bounds call, owner and participant ids
	MaxIDLength = 255

	// MaxTextLength bounds call titles
	MaxTextLength = 255

	// MaxArgLength bounds owner and provider types
	MaxArgLength = 32

	// MaxDataBytes bounds the persisted call settings, in UTF-8 bytes
	MaxDataBytes = 2000

	// DefaultUserCallMaxAgeDays is how long a P2P call record survives a restart
	DefaultUserCallMaxAgeDays = 14
)

// Settings scopes
const (
	// ProviderSettingsScope holds provider configuration overlays
	ProviderSettingsScope = "webconferencing.provider"
)

// Default avatars for identities without one
const (
	ProfileDefaultAvatarURL = "/images/avatar/default-user.png"
	SpaceDefaultAvatarURL   = "/images/avatar/default-space.png"
)

// WebSocket limits
const (
	// ListenerSendBuffer is the outbound queue size of a WebSocket listener
	ListenerSendBuffer = 256

	// DefaultMaxListenerConnections caps concurrent WebSocket listeners
	DefaultMaxListenerConnections = 1000
)
