package integrations

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/gurubase/gurubase-go/internal/config"
	"github.com/gurubase/gurubase-go/internal/models"
	"github.com/sirupsen/logrus"
)

// ZendeskStrategy authenticates with a subdomain plus email/API-token
// pair, the same shape as the Atlassian vendors. Zendesk basic auth
// expects the username as "email/token".
type ZendeskStrategy struct {
	cfg         *config.Config
	integration *models.Integration
	api         *apiClient
	apiBase     string
}

func newZendeskStrategy(cfg *config.Config, integration *models.Integration, logger *logrus.Logger) *ZendeskStrategy {
	return &ZendeskStrategy{
		cfg:         cfg,
		integration: integration,
		api:         newAPIClient(models.IntegrationZendesk, logger),
	}
}

func (z *ZendeskStrategy) Type() models.IntegrationType { return models.IntegrationZendesk }

type zendeskCredentials struct {
	Subdomain string `json:"subdomain"`
	Email     string `json:"email"`
	Token     string `json:"token"`
}

func (z *ZendeskStrategy) baseURL(subdomain string) string {
	if z.apiBase != "" {
		return z.apiBase
	}
	return fmt.Sprintf("https://%s.zendesk.com", subdomain)
}

func zendeskAuth(email, token string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(email+"/token:"+token))
}

func (z *ZendeskStrategy) ExchangeToken(ctx context.Context, code string) (*TokenResponse, error) {
	var creds zendeskCredentials
	if err := json.Unmarshal([]byte(code), &creds); err != nil {
		return nil, fmt.Errorf("invalid Zendesk credentials payload: %w", err)
	}
	if creds.Subdomain == "" || creds.Email == "" || creds.Token == "" {
		return nil, fmt.Errorf("Zendesk credentials require subdomain, email and token")
	}

	headers := map[string]string{"Authorization": zendeskAuth(creds.Email, creds.Token)}
	if err := z.api.callJSON(ctx, "GET", z.baseURL(creds.Subdomain)+"/api/v2/users/me.json", headers, nil, nil); err != nil {
		return nil, err
	}

	raw, _ := json.Marshal(creds)
	return &TokenResponse{
		AccessToken: creds.Email + "/token:" + creds.Token,
		Raw:         raw,
	}, nil
}

func (z *ZendeskStrategy) GetExternalID(tr *TokenResponse) (string, error) {
	var creds zendeskCredentials
	if err := json.Unmarshal(tr.Raw, &creds); err != nil {
		return "", err
	}
	if creds.Subdomain == "" {
		return "", fmt.Errorf("no subdomain found in the credentials")
	}
	return creds.Subdomain, nil
}

func (z *ZendeskStrategy) GetWorkspaceName(ctx context.Context, tr *TokenResponse) (string, error) {
	return z.GetExternalID(tr)
}

// ListChannels is empty for Zendesk: tickets are ingested as data
// sources, there is no channel policy surface.
func (z *ZendeskStrategy) ListChannels(ctx context.Context) (models.Channels, error) {
	if z.integration == nil {
		return nil, errNoIntegration(models.IntegrationZendesk)
	}
	return models.Channels{}, nil
}

func (z *ZendeskStrategy) SendTestMessage(ctx context.Context, channelID string) bool {
	z.api.logger.Warn("Zendesk integrations do not support test messages")
	return false
}

// RevokeAccessToken is a no-op, Zendesk API tokens are managed in the
// admin console.
func (z *ZendeskStrategy) RevokeAccessToken(ctx context.Context) error {
	return nil
}

func (z *ZendeskStrategy) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return nil, fmt.Errorf("Zendesk API tokens cannot be refreshed")
}
