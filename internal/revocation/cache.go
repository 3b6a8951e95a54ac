package revocation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"connectivity/internal/constants"
	"connectivity/pkg/metrics"
)

// RevokedCredential is the value stored under a revoked credential's key.
type RevokedCredential struct {
	CredentialID string    `json:"credential_id"`
	RevokedAt    time.Time `json:"revoked_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Cache is the shared revocation list. An entry lives exactly as long as
// the credential it revokes would have been valid.
type Cache struct {
	client        redis.UniversalClient
	lookupTimeout time.Duration
	now           func() time.Time
}

func NewCache(client redis.UniversalClient, lookupTimeout time.Duration) *Cache {
	if lookupTimeout <= 0 {
		lookupTimeout = constants.DefaultLookupTimeout
	}
	return &Cache{
		client:        client,
		lookupTimeout: lookupTimeout,
		now:           time.Now,
	}
}

func key(credentialID string) string {
	return constants.RevocationKeyPrefix + credentialID
}

// Revoke marks credentialID revoked for ttl. A non-positive ttl means the
// credential has already expired and nothing is written.
func (c *Cache) Revoke(ctx context.Context, credentialID string, ttl time.Duration) error {
	if credentialID == "" {
		return fmt.Errorf("credential id is required")
	}
	if ttl <= 0 {
		return nil
	}

	now := c.now().UTC()
	value, err := json.Marshal(RevokedCredential{
		CredentialID: credentialID,
		RevokedAt:    now,
		ExpiresAt:    now.Add(ttl),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal revoked credential: %w", err)
	}

	if err := c.client.Set(ctx, key(credentialID), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke credential: %w", err)
	}
	return nil
}

// IsRevoked reports whether credentialID is on the revocation list. The
// lookup is bounded by the configured timeout; callers decide how to treat
// an error.
func (c *Cache) IsRevoked(ctx context.Context, credentialID string) (revoked bool, err error) {
	start := time.Now()
	defer func() {
		result := "active"
		switch {
		case err != nil:
			result = "error"
		case revoked:
			result = "revoked"
		}
		metrics.ObserveRevocationCheck(result, time.Since(start))
	}()

	if credentialID == "" {
		return false, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, c.lookupTimeout)
	defer cancel()

	n, err := c.client.Exists(lookupCtx, key(credentialID)).Result()
	if err != nil {
		return false, fmt.Errorf("revocation lookup failed: %w", err)
	}
	return n > 0, nil
}

// lookup returns the stored revocation record, or nil when the credential is
// not revoked.
func (c *Cache) lookup(ctx context.Context, credentialID string) (*RevokedCredential, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, c.lookupTimeout)
	defer cancel()

	raw, err := c.client.Get(lookupCtx, key(credentialID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("revocation lookup failed: %w", err)
	}

	var rc RevokedCredential
	if err := json.Unmarshal(raw, &rc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal revoked credential: %w", err)
	}
	return &rc, nil
}
