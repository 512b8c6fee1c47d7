package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/courierchat/courier/internal/model"
)

// Cache key prefixes and TTLs.
const (
	userKeyPrefix     = "user:"
	negCacheKeySuffix = ":neg"

	// DefaultUserTTL is the TTL for cached user profiles.
	DefaultUserTTL = 1 * time.Hour

	// NegativeCacheTTL is the TTL for negative cache entries.
	NegativeCacheTTL = 5 * time.Minute
)

// Common cache errors.
var (
	ErrCacheMiss = errors.New("cache miss")
)

// GetUser retrieves a user profile from cache by email.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetUser(ctx context.Context, email string) (*model.CachedUser, error) {
	key := userKeyPrefix + email

	result, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}

	if len(result) == 0 {
		return nil, ErrCacheMiss
	}

	cached := &model.CachedUser{
		ID:        result["id"],
		Handle:    result["handle"],
		PublicKey: result["public_key"],
		Bio:       result["bio"],
		CreatedAt: result["created_at"],
		UpdatedAt: result["updated_at"],
	}

	return cached, nil
}

// SetUser stores a user profile in cache. The password hash never enters
// Redis; only public profile fields are written.
func (c *Cache) SetUser(ctx context.Context, user *model.User) error {
	key := userKeyPrefix + user.Email
	cached := user.ToCachedUser()

	fields := map[string]any{
		"id":         cached.ID,
		"handle":     cached.Handle,
		"public_key": cached.PublicKey,
		"created_at": cached.CreatedAt,
		"updated_at": cached.UpdatedAt,
	}

	// Only set optional fields if they have values
	if cached.Bio != "" {
		fields["bio"] = cached.Bio
	}

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, DefaultUserTTL)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to cache user: %w", err)
	}

	// Remove negative cache if exists
	c.client.Del(ctx, key+negCacheKeySuffix)

	return nil
}

// DeleteUser removes a user profile from cache.
func (c *Cache) DeleteUser(ctx context.Context, email string) error {
	key := userKeyPrefix + email

	pipe := c.client.Pipeline()
	pipe.Del(ctx, key)
	pipe.Del(ctx, key+negCacheKeySuffix)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete user from cache: %w", err)
	}

	return nil
}

// IsNegativelyCached checks if an email is in negative cache.
func (c *Cache) IsNegativelyCached(ctx context.Context, email string) (bool, error) {
	key := userKeyPrefix + email + negCacheKeySuffix

	exists, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check negative cache: %w", err)
	}

	return exists > 0, nil
}

// SetNegativeCache marks an email as not registered.
func (c *Cache) SetNegativeCache(ctx context.Context, email string) error {
	key := userKeyPrefix + email + negCacheKeySuffix

	err := c.client.SetEx(ctx, key, "", NegativeCacheTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to set negative cache: %w", err)
	}

	return nil
}
