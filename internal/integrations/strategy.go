package integrations

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gurubase/gurubase-go/internal/config"
	"github.com/gurubase/gurubase-go/internal/models"
	"github.com/sirupsen/logrus"
)

// TokenResponse is what a vendor's token endpoint returned. AccessToken
// and RefreshToken are extracted for persistence; Raw keeps the full
// vendor payload so strategies can pull vendor-specific fields out of it.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	Raw          json.RawMessage
}

// Strategy is the capability surface every vendor implements. Strategies
// that need a live token or channel list are bound to a persisted
// Integration at construction time; token-exchange-only calls work
// unbound.
type Strategy interface {
	Type() models.IntegrationType
	ExchangeToken(ctx context.Context, code string) (*TokenResponse, error)
	GetExternalID(tr *TokenResponse) (string, error)
	GetWorkspaceName(ctx context.Context, tr *TokenResponse) (string, error)
	ListChannels(ctx context.Context) (models.Channels, error)
	SendTestMessage(ctx context.Context, channelID string) bool
	RevokeAccessToken(ctx context.Context) error
	RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenResponse, error)
}

// Messenger is the message post/edit capability the streaming updater
// needs. Slack and Discord implement it; single-shot vendors (GitHub)
// do not.
type Messenger interface {
	// PostMessage creates a message in channelID, threaded under threadID
	// when the vendor supports threading. Returns a reference usable for
	// later edits.
	PostMessage(ctx context.Context, channelID, threadID, text string) (*MessageRef, error)
	UpdateMessage(ctx context.Context, ref *MessageRef, text string) error
}

// MessageRef identifies a previously posted message for edits.
type MessageRef struct {
	ChannelID string
	ID        string
}

// Registry maps vendor types to concrete strategies.
type Registry struct {
	cfg    *config.Config
	logger *logrus.Logger
}

func NewRegistry(cfg *config.Config, logger *logrus.Logger) *Registry {
	return &Registry{cfg: cfg, logger: logger}
}

// Strategy returns the vendor strategy, bound to integration when one is
// given. Calls that need a live token fail without a bound integration.
func (r *Registry) Strategy(t models.IntegrationType, integration *models.Integration) (Strategy, error) {
	switch t {
	case models.IntegrationSlack:
		return newSlackStrategy(r.cfg, integration, r.logger), nil
	case models.IntegrationDiscord:
		return newDiscordStrategy(r.cfg, integration, r.logger), nil
	case models.IntegrationGithub:
		return newGithubStrategy(r.cfg, integration, r.logger), nil
	case models.IntegrationJira:
		return newAtlassianStrategy(models.IntegrationJira, r.cfg, integration, r.logger), nil
	case models.IntegrationConfluence:
		return newAtlassianStrategy(models.IntegrationConfluence, r.cfg, integration, r.logger), nil
	case models.IntegrationZendesk:
		return newZendeskStrategy(r.cfg, integration, r.logger), nil
	default:
		return nil, fmt.Errorf("unknown integration type: %s", t)
	}
}

// Messenger returns the message-editing capability for integration, or
// an error for vendors that only support single-shot replies.
func (r *Registry) Messenger(integration *models.Integration) (Messenger, error) {
	switch integration.Type {
	case models.IntegrationSlack:
		return newSlackStrategy(r.cfg, integration, r.logger), nil
	case models.IntegrationDiscord:
		return newDiscordStrategy(r.cfg, integration, r.logger), nil
	default:
		return nil, fmt.Errorf("integration type %s does not support message editing", integration.Type)
	}
}

// errNoIntegration is returned by strategy calls that need a bound
// integration when none was supplied.
func errNoIntegration(t models.IntegrationType) error {
	return fmt.Errorf("%s strategy requires a bound integration", t)
}
