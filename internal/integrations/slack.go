package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"

	"github.com/gurubase/gurubase-go/internal/config"
	"github.com/gurubase/gurubase-go/internal/models"
	"github.com/sirupsen/logrus"
)

const defaultSlackAPIBase = "https://slack.com/api"

type SlackStrategy struct {
	cfg         *config.Config
	integration *models.Integration
	api         *apiClient
	apiBase     string
}

func newSlackStrategy(cfg *config.Config, integration *models.Integration, logger *logrus.Logger) *SlackStrategy {
	return &SlackStrategy{
		cfg:         cfg,
		integration: integration,
		api:         newAPIClient(models.IntegrationSlack, logger),
		apiBase:     defaultSlackAPIBase,
	}
}

func (s *SlackStrategy) Type() models.IntegrationType { return models.IntegrationSlack }

// slackEnvelope is the common wrapper of every Slack Web API response.
// Slack reports failures with HTTP 200 and ok=false.
type slackEnvelope struct {
	Ok    bool   `json:"ok"`
	Error string `json:"error"`
}

func (s *SlackStrategy) check(env slackEnvelope) error {
	if env.Ok {
		return nil
	}
	return &IntegrationError{Vendor: models.IntegrationSlack, Msg: env.Error}
}

func (s *SlackStrategy) token() (string, error) {
	if s.integration == nil {
		return "", errNoIntegration(models.IntegrationSlack)
	}
	return s.integration.AccessToken, nil
}

func (s *SlackStrategy) authHeader() (map[string]string, error) {
	token, err := s.token()
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Bearer " + token}, nil
}

type slackTokenPayload struct {
	slackEnvelope
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Team         struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"team"`
}

func (s *SlackStrategy) exchangeForm(ctx context.Context, form url.Values) (*TokenResponse, error) {
	var payload slackTokenPayload
	err := s.api.callForm(ctx, "POST", s.apiBase+"/oauth.v2.access", nil, form, &payload)
	if err != nil {
		return nil, err
	}
	if err := s.check(payload.slackEnvelope); err != nil {
		return nil, err
	}
	raw, _ := json.Marshal(payload)
	return &TokenResponse{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		Raw:          raw,
	}, nil
}

func (s *SlackStrategy) ExchangeToken(ctx context.Context, code string) (*TokenResponse, error) {
	return s.exchangeForm(ctx, url.Values{
		"client_id":     {s.cfg.Slack.ClientID},
		"client_secret": {s.cfg.Slack.ClientSecret},
		"code":          {code},
		"redirect_uri":  {s.cfg.Slack.RedirectURI},
	})
}

func (s *SlackStrategy) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return s.exchangeForm(ctx, url.Values{
		"client_id":     {s.cfg.Slack.ClientID},
		"client_secret": {s.cfg.Slack.ClientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
}

func (s *SlackStrategy) GetExternalID(tr *TokenResponse) (string, error) {
	var payload slackTokenPayload
	if err := json.Unmarshal(tr.Raw, &payload); err != nil {
		return "", err
	}
	if payload.Team.ID == "" {
		return "", fmt.Errorf("no team ID found in the OAuth response")
	}
	return payload.Team.ID, nil
}

func (s *SlackStrategy) GetWorkspaceName(ctx context.Context, tr *TokenResponse) (string, error) {
	var payload slackTokenPayload
	if err := json.Unmarshal(tr.Raw, &payload); err != nil {
		return "", err
	}
	return payload.Team.Name, nil
}

func (s *SlackStrategy) ListChannels(ctx context.Context) (models.Channels, error) {
	headers, err := s.authHeader()
	if err != nil {
		return nil, err
	}

	var payload struct {
		slackEnvelope
		Channels []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"channels"`
	}
	endpoint := s.apiBase + "/conversations.list?types=public_channel,private_channel&limit=1000"
	if err := s.api.callJSON(ctx, "GET", endpoint, headers, nil, &payload); err != nil {
		return nil, err
	}
	if err := s.check(payload.slackEnvelope); err != nil {
		return nil, err
	}

	channels := make(models.Channels, 0, len(payload.Channels))
	for _, c := range payload.Channels {
		channels = append(channels, models.Channel{ID: c.ID, Name: c.Name, Allowed: false})
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].Name < channels[j].Name })
	return channels, nil
}

func (s *SlackStrategy) SendTestMessage(ctx context.Context, channelID string) bool {
	_, err := s.PostMessage(ctx, channelID, "", "👋 Hello! This is a test message from your Guru. I am working correctly!")
	if err != nil {
		s.api.logger.WithError(err).Error("Error sending Slack test message")
		return false
	}
	return true
}

func (s *SlackStrategy) RevokeAccessToken(ctx context.Context) error {
	headers, err := s.authHeader()
	if err != nil {
		return err
	}
	var payload slackEnvelope
	if err := s.api.callJSON(ctx, "POST", s.apiBase+"/auth.revoke", headers, nil, &payload); err != nil {
		return err
	}
	return s.check(payload)
}

// PostMessage posts into a channel, threaded when threadID is set.
func (s *SlackStrategy) PostMessage(ctx context.Context, channelID, threadID, text string) (*MessageRef, error) {
	headers, err := s.authHeader()
	if err != nil {
		return nil, err
	}

	body := map[string]string{"channel": channelID, "text": text}
	if threadID != "" {
		body["thread_ts"] = threadID
	}

	var payload struct {
		slackEnvelope
		TS string `json:"ts"`
	}
	if err := s.api.callJSON(ctx, "POST", s.apiBase+"/chat.postMessage", headers, body, &payload); err != nil {
		return nil, err
	}
	if err := s.check(payload.slackEnvelope); err != nil {
		return nil, err
	}
	return &MessageRef{ChannelID: channelID, ID: payload.TS}, nil
}

func (s *SlackStrategy) UpdateMessage(ctx context.Context, ref *MessageRef, text string) error {
	headers, err := s.authHeader()
	if err != nil {
		return err
	}

	body := map[string]string{"channel": ref.ChannelID, "ts": ref.ID, "text": text}
	var payload slackEnvelope
	if err := s.api.callJSON(ctx, "POST", s.apiBase+"/chat.update", headers, body, &payload); err != nil {
		return err
	}
	return s.check(payload)
}
