package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gurubase/gurubase-go/internal/models"
	"github.com/sirupsen/logrus"
)

// Cache implementation
type Cache struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewCache(client *redis.Client, logger *logrus.Logger) *Cache {
	return &Cache{
		client: client,
		logger: logger,
	}
}

// Cache key constants
const (
	IntegrationKey = "integration:%s:%s" // type, external id
)

// Integration cache TTLs. Lookups are stored nearly-expired on purpose:
// channel policy edits must be reflected on the very next inbound event,
// so the cache is a memoization hint, never a source of truth. After a
// token refresh the fresh record is kept a little longer so the retried
// send does not race a stale read.
const (
	IntegrationLookupTTL  = time.Second
	IntegrationRefreshTTL = 5 * time.Minute
)

// ErrCacheMiss is returned when a key is absent; callers fall back to the
// store of record.
var ErrCacheMiss = errors.New("cache miss")

// cachedIntegration re-attaches the token fields the model hides from
// its API JSON. The cache is trusted storage, API responses are not.
type cachedIntegration struct {
	models.Integration
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// SetIntegration overwrites the cached integration wholesale.
func (c *Cache) SetIntegration(ctx context.Context, integration *models.Integration, ttl time.Duration) error {
	key := fmt.Sprintf(IntegrationKey, integration.Type, integration.ExternalID)

	data, err := json.Marshal(cachedIntegration{
		Integration:  *integration,
		AccessToken:  integration.AccessToken,
		RefreshToken: integration.RefreshToken,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal integration: %w", err)
	}

	return c.client.Set(ctx, key, data, ttl).Err()
}

// GetIntegration retrieves a cached integration, or ErrCacheMiss.
func (c *Cache) GetIntegration(ctx context.Context, t models.IntegrationType, externalID string) (*models.Integration, error) {
	key := fmt.Sprintf(IntegrationKey, t, externalID)

	data, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}

	var cached cachedIntegration
	if err := json.Unmarshal([]byte(data), &cached); err != nil {
		return nil, err
	}
	integration := cached.Integration
	integration.AccessToken = cached.AccessToken
	integration.RefreshToken = cached.RefreshToken
	return &integration, nil
}

// InvalidateIntegration removes a cached integration.
func (c *Cache) InvalidateIntegration(ctx context.Context, t models.IntegrationType, externalID string) error {
	key := fmt.Sprintf(IntegrationKey, t, externalID)
	return c.client.Del(ctx, key).Err()
}
