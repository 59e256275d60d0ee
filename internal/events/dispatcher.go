package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gurubase/gurubase-go/internal/config"
	"github.com/gurubase/gurubase-go/internal/database"
	"github.com/gurubase/gurubase-go/internal/integrations"
	"github.com/gurubase/gurubase-go/internal/models"
	"github.com/gurubase/gurubase-go/internal/services"
	"github.com/sirupsen/logrus"
)

// IntegrationCache is the advisory integration cache surface the
// dispatcher needs. database.Cache implements it.
type IntegrationCache interface {
	GetIntegration(ctx context.Context, t models.IntegrationType, externalID string) (*models.Integration, error)
	SetIntegration(ctx context.Context, integration *models.Integration, ttl time.Duration) error
}

// Dispatcher turns vendor webhook payloads into answer turns.
type Dispatcher struct {
	cfg          *config.Config
	logger       *logrus.Logger
	cache        IntegrationCache
	integrations models.IntegrationRepository
	guruTypes    models.GuruTypeRepository
	registry     *integrations.Registry
	graph        *services.GraphService
	ask          *services.AskService
}

func NewDispatcher(
	cfg *config.Config,
	cache IntegrationCache,
	integrationRepo models.IntegrationRepository,
	guruTypes models.GuruTypeRepository,
	registry *integrations.Registry,
	graph *services.GraphService,
	ask *services.AskService,
	logger *logrus.Logger,
) *Dispatcher {
	return &Dispatcher{
		cfg:          cfg,
		logger:       logger,
		cache:        cache,
		integrations: integrationRepo,
		guruTypes:    guruTypes,
		registry:     registry,
		graph:        graph,
		ask:          ask,
	}
}

// resolveIntegration looks the integration up through the advisory
// cache, falling back to the store of record on a miss. The entry is
// cached nearly-expired so channel policy edits show up on the next
// event.
func (d *Dispatcher) resolveIntegration(ctx context.Context, t models.IntegrationType, externalID string) (*models.Integration, error) {
	cached, err := d.cache.GetIntegration(ctx, t, externalID)
	if err == nil && cached != nil {
		return cached, nil
	}
	if err != nil && !errors.Is(err, database.ErrCacheMiss) {
		d.logger.WithError(err).Warn("Integration cache read failed, falling back to database")
	}

	integration, err := d.integrations.GetByExternalID(t, externalID)
	if err != nil {
		return nil, err
	}
	if integration == nil {
		return nil, nil
	}
	if err := d.cache.SetIntegration(ctx, integration, database.IntegrationLookupTTL); err != nil {
		d.logger.WithError(err).Warn("Failed to cache integration")
	}
	return integration, nil
}

// questionURL builds the public page link shown under answers. Empty in
// selfhosted installs with no public frontend configured.
func (d *Dispatcher) questionURL(guruSlug string) func(*models.Question) string {
	base := d.cfg.Server.BaseURL
	return func(q *models.Question) string {
		if base == "" {
			return ""
		}
		return fmt.Sprintf("%s/g/%s/%s", base, guruSlug, q.Slug)
	}
}

// tokenRefresher implements the single refresh-and-retry path: refresh
// the vendor token, persist and re-cache the integration with the
// longer post-refresh TTL, rebuild the messenger from the new token.
type tokenRefresher struct {
	d           *Dispatcher
	integration *models.Integration
}

func (r *tokenRefresher) RefreshMessenger(ctx context.Context) (integrations.Messenger, error) {
	// Re-read the persisted row in case another worker refreshed first.
	fresh, err := r.d.integrations.GetByID(r.integration.ID)
	if err != nil {
		return nil, err
	}
	if fresh != nil {
		r.integration = fresh
	}

	strategy, err := r.d.registry.Strategy(r.integration.Type, r.integration)
	if err != nil {
		return nil, err
	}
	tr, err := strategy.RefreshAccessToken(ctx, r.integration.RefreshToken)
	if err != nil {
		return nil, err
	}

	r.integration.AccessToken = tr.AccessToken
	if tr.RefreshToken != "" {
		r.integration.RefreshToken = tr.RefreshToken
	}
	if err := r.d.integrations.Update(r.integration); err != nil {
		return nil, err
	}
	if err := r.d.cache.SetIntegration(ctx, r.integration, database.IntegrationRefreshTTL); err != nil {
		r.d.logger.WithError(err).Warn("Failed to re-cache refreshed integration")
	}

	return r.d.registry.Messenger(r.integration)
}
