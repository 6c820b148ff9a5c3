package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"webconf-backend/internal/domain"
)

// DirectoryRepository resolves users and spaces from the Redis directory.
//
// Layout:
//
//	directory:user:<id>            hash first_name, last_name, avatar, profile
//	directory:space:<name>         hash display_name, group_id, avatar, profile
//	directory:space:<name>:members set of user ids
type DirectoryRepository struct {
	client *redis.Client
}

// NewDirectoryRepository creates a new DirectoryRepository
func NewDirectoryRepository(client *redis.Client) *DirectoryRepository {
	return &DirectoryRepository{client: client}
}

func userKey(id string) string {
	return fmt.Sprintf("directory:user:%s", id)
}

func spaceKey(name string) string {
	return fmt.Sprintf("directory:space:%s", name)
}

func spaceMembersKey(name string) string {
	return fmt.Sprintf("directory:space:%s:members", name)
}

// ResolveUser returns the user identity, or nil when the directory does not know the id
func (r *DirectoryRepository) ResolveUser(ctx context.Context, id string) (*domain.Identity, error) {
	fields, err := r.client.HGetAll(ctx, userKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	user := userFromHash(id, fields)
	return &user, nil
}

// ResolveSpace returns the space identity with its members, or nil when the space does not exist
func (r *DirectoryRepository) ResolveSpace(ctx context.Context, name string) (*domain.Identity, error) {
	fields, err := r.client.HGetAll(ctx, spaceKey(name)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get space %s: %w", name, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	memberIDs, err := r.client.SMembers(ctx, spaceMembersKey(name)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get members of space %s: %w", name, err)
	}

	members, err := r.resolveUsers(ctx, memberIDs)
	if err != nil {
		return nil, err
	}

	space := domain.NewSpace(name, fields["display_name"], fields["group_id"], members)
	if avatar := fields["avatar"]; avatar != "" {
		space.AvatarLink = avatar
	}
	space.ProfileLink = fields["profile"]
	return &space, nil
}

// resolveUsers loads several users in one round trip. Unknown ids are skipped.
func (r *DirectoryRepository) resolveUsers(ctx context.Context, ids []string) ([]domain.Identity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, userKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get space members: %w", err)
	}

	members := make([]domain.Identity, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		members = append(members, userFromHash(ids[i], fields))
	}
	return members, nil
}

func userFromHash(id string, fields map[string]string) domain.Identity {
	user := domain.NewUser(id, fields["first_name"], fields["last_name"])
	if avatar := fields["avatar"]; avatar != "" {
		user.AvatarLink = avatar
	}
	user.ProfileLink = fields["profile"]
	return user
}
