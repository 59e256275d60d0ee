package integrations

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"

	"github.com/gurubase/gurubase-go/internal/config"
	"github.com/gurubase/gurubase-go/internal/models"
	"github.com/sirupsen/logrus"
)

// AtlassianStrategy covers Jira and Confluence. Both authenticate with a
// site domain plus an email/API-token pair instead of an OAuth grant, so
// ExchangeToken receives the credentials JSON-encoded in place of a code
// and validates them with a probe call before accepting them.
type AtlassianStrategy struct {
	vendor      models.IntegrationType
	cfg         *config.Config
	integration *models.Integration
	api         *apiClient
	// apiBase overrides the https://{domain} base, tests point it at a
	// local server.
	apiBase string
}

func newAtlassianStrategy(vendor models.IntegrationType, cfg *config.Config, integration *models.Integration, logger *logrus.Logger) *AtlassianStrategy {
	return &AtlassianStrategy{
		vendor:      vendor,
		cfg:         cfg,
		integration: integration,
		api:         newAPIClient(vendor, logger),
	}
}

func (a *AtlassianStrategy) Type() models.IntegrationType { return a.vendor }

type atlassianCredentials struct {
	Domain string `json:"domain"`
	Email  string `json:"email"`
	Token  string `json:"token"`
}

func (a *AtlassianStrategy) baseURL(domain string) string {
	if a.apiBase != "" {
		return a.apiBase
	}
	return "https://" + domain
}

func basicAuth(email, token string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(email+":"+token))
}

func (a *AtlassianStrategy) probePath() string {
	if a.vendor == models.IntegrationConfluence {
		return "/wiki/rest/api/space?limit=1"
	}
	return "/rest/api/2/myself"
}

// ExchangeToken validates the supplied credentials against the site and
// returns them as the stored token. The access token persisted on the
// integration is the "email:token" pair.
func (a *AtlassianStrategy) ExchangeToken(ctx context.Context, code string) (*TokenResponse, error) {
	var creds atlassianCredentials
	if err := json.Unmarshal([]byte(code), &creds); err != nil {
		return nil, fmt.Errorf("invalid %s credentials payload: %w", a.vendor, err)
	}
	if creds.Domain == "" || creds.Email == "" || creds.Token == "" {
		return nil, fmt.Errorf("%s credentials require domain, email and token", a.vendor)
	}

	headers := map[string]string{"Authorization": basicAuth(creds.Email, creds.Token)}
	if err := a.api.callJSON(ctx, "GET", a.baseURL(creds.Domain)+a.probePath(), headers, nil, nil); err != nil {
		return nil, err
	}

	raw, _ := json.Marshal(creds)
	return &TokenResponse{
		AccessToken: creds.Email + ":" + creds.Token,
		Raw:         raw,
	}, nil
}

func (a *AtlassianStrategy) GetExternalID(tr *TokenResponse) (string, error) {
	var creds atlassianCredentials
	if err := json.Unmarshal(tr.Raw, &creds); err != nil {
		return "", err
	}
	if creds.Domain == "" {
		return "", fmt.Errorf("no domain found in the credentials")
	}
	return creds.Domain, nil
}

func (a *AtlassianStrategy) GetWorkspaceName(ctx context.Context, tr *TokenResponse) (string, error) {
	return a.GetExternalID(tr)
}

func (a *AtlassianStrategy) boundAuth() (base string, headers map[string]string, err error) {
	if a.integration == nil {
		return "", nil, errNoIntegration(a.vendor)
	}
	return a.baseURL(a.integration.ExternalID), map[string]string{
		"Authorization": "Basic " + base64.StdEncoding.EncodeToString([]byte(a.integration.AccessToken)),
	}, nil
}

// ListChannels lists Jira projects or Confluence spaces. These carry no
// answering policy; they exist so the management UI can show what the
// credentials can reach.
func (a *AtlassianStrategy) ListChannels(ctx context.Context) (models.Channels, error) {
	base, headers, err := a.boundAuth()
	if err != nil {
		return nil, err
	}

	var channels models.Channels
	if a.vendor == models.IntegrationConfluence {
		var payload struct {
			Results []struct {
				Key  string `json:"key"`
				Name string `json:"name"`
			} `json:"results"`
		}
		if err := a.api.callJSON(ctx, "GET", base+"/wiki/rest/api/space?limit=100", headers, nil, &payload); err != nil {
			return nil, err
		}
		for _, s := range payload.Results {
			channels = append(channels, models.Channel{ID: s.Key, Name: s.Name, Kind: "space"})
		}
	} else {
		var projects []struct {
			Key  string `json:"key"`
			Name string `json:"name"`
		}
		if err := a.api.callJSON(ctx, "GET", base+"/rest/api/2/project", headers, nil, &projects); err != nil {
			return nil, err
		}
		for _, p := range projects {
			channels = append(channels, models.Channel{ID: p.Key, Name: p.Name, Kind: "project"})
		}
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].Name < channels[j].Name })
	return channels, nil
}

func (a *AtlassianStrategy) SendTestMessage(ctx context.Context, channelID string) bool {
	a.api.logger.WithField("vendor", a.vendor).Warn("test messages are not supported for this vendor")
	return false
}

// RevokeAccessToken is a no-op: API tokens are revoked from the
// Atlassian account settings, there is no remote revocation endpoint.
func (a *AtlassianStrategy) RevokeAccessToken(ctx context.Context) error {
	return nil
}

func (a *AtlassianStrategy) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return nil, fmt.Errorf("%s API tokens cannot be refreshed", a.vendor)
}

// SearchIssues runs a JQL query. Jira only; used by the data source
// management endpoints.
func (a *AtlassianStrategy) SearchIssues(ctx context.Context, jql string) ([]string, error) {
	if a.vendor != models.IntegrationJira {
		return nil, fmt.Errorf("issue search is only available for Jira")
	}
	base, headers, err := a.boundAuth()
	if err != nil {
		return nil, err
	}

	var payload struct {
		Issues []struct {
			Key string `json:"key"`
		} `json:"issues"`
	}
	endpoint := fmt.Sprintf("%s/rest/api/2/search?jql=%s", base, url.QueryEscape(jql))
	if err := a.api.callJSON(ctx, "GET", endpoint, headers, nil, &payload); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(payload.Issues))
	for _, issue := range payload.Issues {
		keys = append(keys, issue.Key)
	}
	return keys, nil
}
