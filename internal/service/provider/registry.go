package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"webconf-backend/internal/domain"
	"webconf-backend/pkg/constants"
	apperrors "webconf-backend/pkg/errors"
	"webconf-backend/pkg/logger"
)

// Provider is a pluggable call provider
type Provider interface {
	// Type is the primary type, used as the configuration key
	Type() string
	// SupportedTypes lists every type string the provider serves, the primary one included
	SupportedTypes() []string
	Title() string
	Description(locale language.Tag) string
	IsActive() bool
	SetActive(active bool)
	IsLogEnabled() bool
	// IMInfo returns the user's account on the provider network, or nil
	IMInfo(ctx context.Context, userID string) (*domain.IMInfo, error)
}

// SettingsStore is a scoped key/value settings storage
type SettingsStore interface {
	Get(ctx context.Context, scope, key string) (string, bool, error)
	Set(ctx context.Context, scope, key, value string) error
}

// PluginError rejects a value that cannot be registered as a provider
type PluginError struct {
	Plugin any
	Reason string
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("invalid provider plugin %T: %s", e.Plugin, e.Reason)
}

// Registry maps provider types to providers. The first registration of a type wins.
type Registry struct {
	mu        sync.RWMutex
	byType    map[string]Provider
	providers []Provider
	settings  SettingsStore
}

// NewRegistry creates a provider registry reading overlays from settings
func NewRegistry(settings SettingsStore) *Registry {
	return &Registry{
		byType:   make(map[string]Provider),
		settings: settings,
	}
}

// RegisterPlugin registers plugin when it implements Provider
func (r *Registry) RegisterPlugin(plugin any) error {
	p, ok := plugin.(Provider)
	if !ok {
		logger.Warn("Skipped call provider plugin", zap.String("plugin", fmt.Sprintf("%T", plugin)))
		return &PluginError{Plugin: plugin, Reason: "does not implement Provider"}
	}
	return r.Register(p)
}

// Register binds every supported type of p that is not bound yet
func (r *Registry) Register(p Provider) error {
	if strings.TrimSpace(p.Type()) == "" {
		return &PluginError{Plugin: p, Reason: "empty provider type"}
	}
	types := p.SupportedTypes()
	if len(types) == 0 {
		return &PluginError{Plugin: p, Reason: "no supported types"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	bound := false
	for _, t := range types {
		if existing, ok := r.byType[t]; ok {
			logger.Warn("Call provider type already registered",
				zap.String("type", t),
				zap.String("registered_by", existing.Type()),
				zap.String("skipped", p.Type()))
			continue
		}
		r.byType[t] = p
		bound = true
	}
	if bound {
		r.providers = append(r.providers, p)
	}
	return nil
}

// Resolve returns the provider bound to providerType with its saved active flag applied
func (r *Registry) Resolve(ctx context.Context, providerType string) (Provider, error) {
	r.mu.RLock()
	p, ok := r.byType[providerType]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.ProviderNotFoundError(providerType)
	}

	if conf := r.readConfig(ctx, p.Type()); conf != nil {
		p.SetActive(conf.Active)
	} else {
		p.SetActive(true)
	}
	return p, nil
}

// ListConfigurations returns one configuration per registered provider.
// Missing or unreadable overlays yield the default configuration.
func (r *Registry) ListConfigurations(ctx context.Context, locale language.Tag) []domain.ProviderConfiguration {
	r.mu.RLock()
	providers := make([]Provider, len(r.providers))
	copy(providers, r.providers)
	r.mu.RUnlock()

	confs := make([]domain.ProviderConfiguration, 0, len(providers))
	for _, p := range providers {
		confs = append(confs, r.configurationOf(ctx, p, locale))
	}
	return confs
}

// Configuration returns the configuration of the provider bound to providerType
func (r *Registry) Configuration(ctx context.Context, providerType string, locale language.Tag) (*domain.ProviderConfiguration, error) {
	p, err := r.Resolve(ctx, providerType)
	if err != nil {
		return nil, err
	}
	conf := r.configurationOf(ctx, p, locale)
	return &conf, nil
}

// SaveConfiguration stores the active flag of a provider
func (r *Registry) SaveConfiguration(ctx context.Context, conf domain.ProviderConfiguration) error {
	if strings.TrimSpace(conf.Type) == "" {
		return apperrors.ArgumentError("type", "must not be empty")
	}
	raw, err := json.Marshal(savedConfiguration{Type: &conf.Type, Active: &conf.Active})
	if err != nil {
		return fmt.Errorf("failed to encode provider configuration: %w", err)
	}
	if err := r.settings.Set(ctx, constants.ProviderSettingsScope, url.QueryEscape(conf.Type), string(raw)); err != nil {
		return apperrors.StorageError(err)
	}
	return nil
}

func (r *Registry) configurationOf(ctx context.Context, p Provider, locale language.Tag) domain.ProviderConfiguration {
	conf := domain.ProviderConfiguration{
		Type:   p.Type(),
		Active: true,
	}
	if saved := r.readConfig(ctx, p.Type()); saved != nil {
		conf.Type = saved.Type
		conf.Active = saved.Active
	}
	conf.Title = p.Title()
	conf.Description = p.Description(locale)
	conf.LogEnabled = p.IsLogEnabled()
	return conf
}

type savedConfiguration struct {
	Type   *string `json:"type"`
	Active *bool   `json:"active"`
}

// readConfig loads the saved overlay. Anything unreadable is logged and reported as absent.
func (r *Registry) readConfig(ctx context.Context, providerType string) *domain.ProviderConfiguration {
	value, ok, err := r.settings.Get(ctx, constants.ProviderSettingsScope, url.QueryEscape(providerType))
	if err != nil {
		logger.Warn("Error reading provider configuration", zap.String("type", providerType), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	if !strings.HasPrefix(value, "{") {
		logger.Warn("Cannot parse saved provider configuration", zap.String("type", providerType), zap.String("value", value))
		return nil
	}

	var saved savedConfiguration
	if err := json.Unmarshal([]byte(value), &saved); err != nil {
		logger.Warn("Error reading provider configuration", zap.String("type", providerType), zap.Error(err))
		return nil
	}
	if saved.Type == nil || saved.Active == nil {
		logger.Warn("Incomplete provider configuration", zap.String("type", providerType), zap.String("value", value))
		return nil
	}
	return &domain.ProviderConfiguration{Type: *saved.Type, Active: *saved.Active}
}
