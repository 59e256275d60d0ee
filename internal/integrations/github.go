package integrations

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gurubase/gurubase-go/internal/config"
	"github.com/gurubase/gurubase-go/internal/models"
	"github.com/sirupsen/logrus"
)

const defaultGithubAPIBase = "https://api.github.com"

// GithubStrategy authenticates as a GitHub App installation. The
// integration's external id is the installation id; access tokens are
// short-lived installation tokens minted from the app's signing key.
type GithubStrategy struct {
	cfg         *config.Config
	integration *models.Integration
	api         *apiClient
	apiBase     string
}

func newGithubStrategy(cfg *config.Config, integration *models.Integration, logger *logrus.Logger) *GithubStrategy {
	return &GithubStrategy{
		cfg:         cfg,
		integration: integration,
		api:         newAPIClient(models.IntegrationGithub, logger),
		apiBase:     defaultGithubAPIBase,
	}
}

func (g *GithubStrategy) Type() models.IntegrationType { return models.IntegrationGithub }

// appJWT mints the short-lived app-level JWT GitHub requires for
// installation token requests.
func (g *GithubStrategy) appJWT() (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(g.cfg.Github.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("failed to parse GitHub app key: %w", err)
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
		Issuer:    g.cfg.Github.AppID,
	})
	return token.SignedString(key)
}

type githubTokenPayload struct {
	Token          string `json:"token"`
	ExpiresAt      string `json:"expires_at"`
	InstallationID string `json:"installation_id"`
}

func (g *GithubStrategy) mintInstallationToken(ctx context.Context, installationID string) (*TokenResponse, error) {
	appJWT, err := g.appJWT()
	if err != nil {
		return nil, err
	}

	var payload githubTokenPayload
	endpoint := fmt.Sprintf("%s/app/installations/%s/access_tokens", g.apiBase, installationID)
	headers := map[string]string{
		"Authorization": "Bearer " + appJWT,
		"Accept":        "application/vnd.github+json",
	}
	if err := g.api.callJSON(ctx, "POST", endpoint, headers, struct{}{}, &payload); err != nil {
		return nil, err
	}
	payload.InstallationID = installationID

	raw, _ := json.Marshal(payload)
	return &TokenResponse{AccessToken: payload.Token, Raw: raw}, nil
}

// ExchangeToken treats code as the installation id delivered by the app
// installation callback. There is no OAuth code grant for app installs.
func (g *GithubStrategy) ExchangeToken(ctx context.Context, code string) (*TokenResponse, error) {
	return g.mintInstallationToken(ctx, code)
}

// RefreshAccessToken mints a fresh installation token. Installation
// tokens are not refreshed, they are re-minted; refreshToken is unused.
func (g *GithubStrategy) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if g.integration == nil {
		return nil, errNoIntegration(models.IntegrationGithub)
	}
	return g.mintInstallationToken(ctx, g.integration.ExternalID)
}

func (g *GithubStrategy) GetExternalID(tr *TokenResponse) (string, error) {
	var payload githubTokenPayload
	if err := json.Unmarshal(tr.Raw, &payload); err != nil {
		return "", err
	}
	if payload.InstallationID == "" {
		return "", fmt.Errorf("no installation ID found in the token response")
	}
	return payload.InstallationID, nil
}

func (g *GithubStrategy) GetWorkspaceName(ctx context.Context, tr *TokenResponse) (string, error) {
	installationID, err := g.GetExternalID(tr)
	if err != nil {
		return "", err
	}

	appJWT, err := g.appJWT()
	if err != nil {
		return "", err
	}

	var payload struct {
		Account struct {
			Login string `json:"login"`
		} `json:"account"`
	}
	endpoint := fmt.Sprintf("%s/app/installations/%s", g.apiBase, installationID)
	headers := map[string]string{
		"Authorization": "Bearer " + appJWT,
		"Accept":        "application/vnd.github+json",
	}
	if err := g.api.callJSON(ctx, "GET", endpoint, headers, nil, &payload); err != nil {
		return "", err
	}
	return payload.Account.Login, nil
}

func (g *GithubStrategy) tokenHeader() (map[string]string, error) {
	if g.integration == nil {
		return nil, errNoIntegration(models.IntegrationGithub)
	}
	return map[string]string{
		"Authorization": "Bearer " + g.integration.AccessToken,
		"Accept":        "application/vnd.github+json",
	}, nil
}

// ListChannels lists the repositories the installation can reach. Repos
// play the role channels do for chat vendors; new entries default to
// auto mode.
func (g *GithubStrategy) ListChannels(ctx context.Context) (models.Channels, error) {
	headers, err := g.tokenHeader()
	if err != nil {
		return nil, err
	}

	var payload struct {
		Repositories []struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"repositories"`
	}
	if err := g.api.callJSON(ctx, "GET", g.apiBase+"/installation/repositories?per_page=100", headers, nil, &payload); err != nil {
		return nil, err
	}

	channels := make(models.Channels, 0, len(payload.Repositories))
	for _, repo := range payload.Repositories {
		channels = append(channels, models.Channel{
			ID:   fmt.Sprintf("%d", repo.ID),
			Name: repo.Name,
			Kind: "repo",
			Mode: models.ChannelModeAuto,
		})
	}
	return channels, nil
}

// SendTestMessage is unsupported: the bot only speaks inside issues, and
// there is no issue to comment on during setup.
func (g *GithubStrategy) SendTestMessage(ctx context.Context, channelID string) bool {
	g.api.logger.Warn("GitHub integrations do not support test messages")
	return false
}

func (g *GithubStrategy) RevokeAccessToken(ctx context.Context) error {
	headers, err := g.tokenHeader()
	if err != nil {
		return err
	}
	return g.api.callJSON(ctx, "DELETE", g.apiBase+"/installation/token", headers, nil, nil)
}

// CreateIssueComment posts a single-shot comment under the issue whose
// API URL is given (GitHub includes it in webhook payloads).
func (g *GithubStrategy) CreateIssueComment(ctx context.Context, issueAPIURL, body string) error {
	headers, err := g.tokenHeader()
	if err != nil {
		return err
	}
	return g.api.callJSON(ctx, "POST", issueAPIURL+"/comments", headers, map[string]string{"body": body}, nil)
}

// IssueComment is a stripped-down issue or comment body used as answer
// context.
type IssueComment struct {
	User string `json:"user"`
	Body string `json:"body"`
}

// GetIssueWithComments fetches the issue body plus all its comments,
// oldest first, issue last. The dispatcher feeds these to the answer
// pipeline as conversation context.
func (g *GithubStrategy) GetIssueWithComments(ctx context.Context, issueAPIURL string) ([]IssueComment, error) {
	headers, err := g.tokenHeader()
	if err != nil {
		return nil, err
	}

	type ghComment struct {
		Body string `json:"body"`
		User struct {
			Login string `json:"login"`
		} `json:"user"`
	}

	var rawComments []ghComment
	if err := g.api.callJSON(ctx, "GET", issueAPIURL+"/comments", headers, nil, &rawComments); err != nil {
		return nil, err
	}

	var issue ghComment
	if err := g.api.callJSON(ctx, "GET", issueAPIURL, headers, nil, &issue); err != nil {
		return nil, err
	}

	comments := make([]IssueComment, 0, len(rawComments)+1)
	for _, c := range rawComments {
		comments = append(comments, IssueComment{User: c.User.Login, Body: c.Body})
	}
	comments = append(comments, IssueComment{User: issue.User.Login, Body: issue.Body})
	return comments, nil
}

// VerifySignature checks the X-Hub-Signature-256 header against the
// webhook secret.
func (g *GithubStrategy) VerifySignature(body []byte, signatureHeader string) error {
	if signatureHeader == "" {
		return &IntegrationError{Vendor: models.IntegrationGithub, Msg: "missing signature header"}
	}
	mac := hmac.New(sha256.New, []byte(g.cfg.Github.WebhookSecret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signatureHeader)) {
		return &IntegrationError{Vendor: models.IntegrationGithub, Msg: "signature mismatch"}
	}
	return nil
}

// WillAnswer decides whether an event warrants an automatic answer. An
// explicit bot mention always wins; otherwise only freshly opened issues
// in auto mode are answered.
func WillAnswer(body, botName, eventType, mode string) bool {
	if botName != "" && strings.Contains(body, "@"+botName) {
		return true
	}
	return eventType == GithubEventIssueOpened && mode == models.ChannelModeAuto
}

// GitHub event type tags used by the dispatcher.
const (
	GithubEventIssueOpened  = "issue_opened"
	GithubEventIssueComment = "issue_comment"
)
