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

const defaultDiscordAPIBase = "https://discord.com/api"

type DiscordStrategy struct {
	cfg         *config.Config
	integration *models.Integration
	api         *apiClient
	apiBase     string
}

func newDiscordStrategy(cfg *config.Config, integration *models.Integration, logger *logrus.Logger) *DiscordStrategy {
	return &DiscordStrategy{
		cfg:         cfg,
		integration: integration,
		api:         newAPIClient(models.IntegrationDiscord, logger),
		apiBase:     defaultDiscordAPIBase,
	}
}

func (d *DiscordStrategy) Type() models.IntegrationType { return models.IntegrationDiscord }

// botToken picks the token for bot API calls. Selfhosted installs carry
// their own bot token on the integration, cloud uses the shared bot.
func (d *DiscordStrategy) botToken() (string, error) {
	if d.cfg.SelfHosted() {
		if d.integration == nil {
			return "", errNoIntegration(models.IntegrationDiscord)
		}
		return d.integration.AccessToken, nil
	}
	return d.cfg.Discord.BotToken, nil
}

func (d *DiscordStrategy) botHeader() (map[string]string, error) {
	token, err := d.botToken()
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Bot " + token}, nil
}

type discordTokenPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Guild        struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"guild"`
}

func (d *DiscordStrategy) exchangeForm(ctx context.Context, form url.Values) (*TokenResponse, error) {
	var payload discordTokenPayload
	err := d.api.callForm(ctx, "POST", d.apiBase+"/oauth2/token", nil, form, &payload)
	if err != nil {
		return nil, err
	}
	raw, _ := json.Marshal(payload)
	return &TokenResponse{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		Raw:          raw,
	}, nil
}

func (d *DiscordStrategy) ExchangeToken(ctx context.Context, code string) (*TokenResponse, error) {
	return d.exchangeForm(ctx, url.Values{
		"client_id":     {d.cfg.Discord.ClientID},
		"client_secret": {d.cfg.Discord.ClientSecret},
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {d.cfg.Discord.RedirectURI},
	})
}

func (d *DiscordStrategy) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return d.exchangeForm(ctx, url.Values{
		"client_id":     {d.cfg.Discord.ClientID},
		"client_secret": {d.cfg.Discord.ClientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
}

func (d *DiscordStrategy) GetExternalID(tr *TokenResponse) (string, error) {
	var payload discordTokenPayload
	if err := json.Unmarshal(tr.Raw, &payload); err != nil {
		return "", err
	}
	if payload.Guild.ID == "" {
		return "", fmt.Errorf("no guild ID found in the OAuth response")
	}
	return payload.Guild.ID, nil
}

func (d *DiscordStrategy) GetWorkspaceName(ctx context.Context, tr *TokenResponse) (string, error) {
	var payload discordTokenPayload
	if err := json.Unmarshal(tr.Raw, &payload); err != nil {
		return "", err
	}
	return payload.Guild.Name, nil
}

// Discord channel type values
const (
	discordChannelText  = 0
	discordChannelForum = 15
)

func (d *DiscordStrategy) ListChannels(ctx context.Context) (models.Channels, error) {
	if d.integration == nil {
		return nil, errNoIntegration(models.IntegrationDiscord)
	}
	headers, err := d.botHeader()
	if err != nil {
		return nil, err
	}

	var guildChannels []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Type int    `json:"type"`
	}
	endpoint := fmt.Sprintf("%s/guilds/%s/channels", d.apiBase, d.integration.ExternalID)
	if err := d.api.callJSON(ctx, "GET", endpoint, headers, nil, &guildChannels); err != nil {
		return nil, err
	}

	var channels models.Channels
	for _, c := range guildChannels {
		kind := ""
		switch c.Type {
		case discordChannelText:
			kind = "text"
		case discordChannelForum:
			kind = "forum"
		default:
			continue
		}
		channels = append(channels, models.Channel{ID: c.ID, Name: c.Name, Kind: kind, Allowed: false})
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].Name < channels[j].Name })
	return channels, nil
}

func (d *DiscordStrategy) SendTestMessage(ctx context.Context, channelID string) bool {
	if d.integration == nil {
		return false
	}
	headers, err := d.botHeader()
	if err != nil {
		d.api.logger.WithError(err).Error("Error sending Discord test message")
		return false
	}

	const testText = "👋 Hello! This is a test message from your Guru. I am working correctly!"

	kind := "text"
	if channel, ok := d.integration.ChannelByID(channelID); ok && channel.Kind != "" {
		kind = channel.Kind
	}

	var endpoint string
	var body interface{}
	if kind == "forum" {
		endpoint = fmt.Sprintf("%s/channels/%s/threads", d.apiBase, channelID)
		body = map[string]interface{}{
			"name":    "Test Message from Gurubase",
			"message": map[string]string{"content": testText},
		}
	} else {
		endpoint = fmt.Sprintf("%s/channels/%s/messages", d.apiBase, channelID)
		body = map[string]string{"content": testText}
	}

	if err := d.api.callJSON(ctx, "POST", endpoint, headers, body, nil); err != nil {
		d.api.logger.WithError(err).Error("Error sending Discord test message")
		return false
	}
	return true
}

func (d *DiscordStrategy) RevokeAccessToken(ctx context.Context) error {
	if d.integration == nil {
		return errNoIntegration(models.IntegrationDiscord)
	}
	return d.api.callForm(ctx, "POST", d.apiBase+"/oauth2/token/revoke", nil, url.Values{
		"client_id":     {d.cfg.Discord.ClientID},
		"client_secret": {d.cfg.Discord.ClientSecret},
		"token":         {d.integration.AccessToken},
	}, nil)
}

// PostMessage posts into a channel or thread. Discord threads are
// channels themselves, so a threadID simply replaces the channel.
func (d *DiscordStrategy) PostMessage(ctx context.Context, channelID, threadID, text string) (*MessageRef, error) {
	headers, err := d.botHeader()
	if err != nil {
		return nil, err
	}

	target := channelID
	if threadID != "" {
		target = threadID
	}

	var payload struct {
		ID string `json:"id"`
	}
	endpoint := fmt.Sprintf("%s/channels/%s/messages", d.apiBase, target)
	if err := d.api.callJSON(ctx, "POST", endpoint, headers, map[string]string{"content": text}, &payload); err != nil {
		return nil, err
	}
	return &MessageRef{ChannelID: target, ID: payload.ID}, nil
}

func (d *DiscordStrategy) UpdateMessage(ctx context.Context, ref *MessageRef, text string) error {
	headers, err := d.botHeader()
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/channels/%s/messages/%s", d.apiBase, ref.ChannelID, ref.ID)
	return d.api.callJSON(ctx, "PATCH", endpoint, headers, map[string]string{"content": text}, nil)
}
