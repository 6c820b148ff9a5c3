package redis

import (
	"context"
	"time"

	"webconf-backend/internal/domain"
	"webconf-backend/pkg/cache"
)

// IdentityResolver is what the cached directory wraps
type IdentityResolver interface {
	ResolveUser(ctx context.Context, id string) (*domain.Identity, error)
	ResolveSpace(ctx context.Context, name string) (*domain.Identity, error)
}

// CachedDirectory keeps directory lookups in memory for a short TTL.
// Unknown ids are cached too. Errors are never cached.
type CachedDirectory struct {
	next   IdentityResolver
	users  *cache.MemoryCache[*domain.Identity]
	spaces *cache.MemoryCache[*domain.Identity]
}

// NewCachedDirectory wraps next with a cache of at most maxSize entries per kind
func NewCachedDirectory(next IdentityResolver, ttl time.Duration, maxSize int) *CachedDirectory {
	return &CachedDirectory{
		next:   next,
		users:  cache.NewMemoryCache[*domain.Identity](ttl, maxSize),
		spaces: cache.NewMemoryCache[*domain.Identity](ttl, maxSize),
	}
}

// ResolveUser returns the cached user, asking the wrapped directory on a miss
func (d *CachedDirectory) ResolveUser(ctx context.Context, id string) (*domain.Identity, error) {
	return lookup(ctx, d.users, id, d.next.ResolveUser)
}

// ResolveSpace returns the cached space, asking the wrapped directory on a miss
func (d *CachedDirectory) ResolveSpace(ctx context.Context, name string) (*domain.Identity, error) {
	return lookup(ctx, d.spaces, name, d.next.ResolveSpace)
}

// StartCleanup drops expired entries every interval until the returned func is called
func (d *CachedDirectory) StartCleanup(interval time.Duration) func() {
	stopUsers := d.users.StartCleanup(interval)
	stopSpaces := d.spaces.StartCleanup(interval)
	return func() {
		stopUsers()
		stopSpaces()
	}
}

func lookup(ctx context.Context, c *cache.MemoryCache[*domain.Identity], key string,
	load func(context.Context, string) (*domain.Identity, error)) (*domain.Identity, error) {
	if identity, ok := c.Get(key); ok {
		return copyIdentity(identity), nil
	}
	identity, err := load(ctx, key)
	if err != nil {
		return nil, err
	}
	c.Set(key, identity, 0)
	return copyIdentity(identity), nil
}

// copyIdentity hands out a copy so callers cannot mutate the cached value
func copyIdentity(identity *domain.Identity) *domain.Identity {
	if identity == nil {
		return nil
	}
	dup := *identity
	dup.Members = append([]domain.Identity(nil), identity.Members...)
	return &dup
}
