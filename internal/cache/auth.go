package cache

import (
	"context"
	"time"
)

const (
	// fingerprintCachePrefix is the Redis key prefix for credential fingerprints.
	fingerprintCachePrefix = "auth:fp:"
	// fingerprintCacheTTL is the time-to-live for cached fingerprints.
	fingerprintCacheTTL = 5 * time.Minute
)

// GetCredentialFingerprint retrieves the cached password hash for an email.
// Bearer-token middleware uses it to check credential freshness without a
// database round trip on every request. Returns "" on cache miss.
func (c *Cache) GetCredentialFingerprint(ctx context.Context, email string) (string, error) {
	key := fingerprintCachePrefix + email

	fingerprint, err := c.client.Get(ctx, key).Result()
	if err != nil {
		// Cache miss is not an error
		return "", nil //nolint:nilerr
	}

	return fingerprint, nil
}

// SetCredentialFingerprint caches the current password hash for an email.
func (c *Cache) SetCredentialFingerprint(ctx context.Context, email, fingerprint string) error {
	key := fingerprintCachePrefix + email
	return c.client.Set(ctx, key, fingerprint, fingerprintCacheTTL).Err()
}

// DeleteCredentialFingerprint removes a cached fingerprint.
// Used when the password changes or the account is deleted, so stale
// tokens die immediately rather than at TTL expiry.
func (c *Cache) DeleteCredentialFingerprint(ctx context.Context, email string) error {
	key := fingerprintCachePrefix + email
	return c.client.Del(ctx, key).Err()
}
