package events

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gurubase/gurubase-go/internal/answers"
	"github.com/gurubase/gurubase-go/internal/integrations"
	"github.com/gurubase/gurubase-go/internal/markdown"
	"github.com/gurubase/gurubase-go/internal/models"
	"github.com/gurubase/gurubase-go/internal/services"
)

// GithubPayload is the subset of the webhook body the dispatcher reads.
type GithubPayload struct {
	Action       string `json:"action"`
	Installation struct {
		ID int64 `json:"id"`
	} `json:"installation"`
	Issue struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		Body   string `json:"body"`
		URL    string `json:"url"` // API URL, used for comment posting
		User   struct {
			Login string `json:"login"`
			Type  string `json:"type"`
		} `json:"user"`
	} `json:"issue"`
	Comment *struct {
		Body string `json:"body"`
		User struct {
			Login string `json:"login"`
			Type  string `json:"type"`
		} `json:"user"`
	} `json:"comment"`
	Repository struct {
		Name string `json:"name"`
	} `json:"repository"`
}

// classifyGithubEvent maps a payload onto the supported event tags.
// Empty means unsupported.
func classifyGithubEvent(p *GithubPayload) string {
	switch {
	case p.Comment != nil && p.Action == "created":
		return integrations.GithubEventIssueComment
	case p.Comment == nil && p.Issue.URL != "" && p.Action == "opened":
		return integrations.GithubEventIssueOpened
	default:
		return ""
	}
}

// githubQuestionText derives the raw question from the event.
func githubQuestionText(p *GithubPayload, eventType string) string {
	if eventType == integrations.GithubEventIssueComment {
		return p.Comment.Body
	}
	if p.Issue.Title != "" {
		return p.Issue.Title + "\n" + p.Issue.Body
	}
	return p.Issue.Body
}

// cleanupBotMention strips "@botname" tokens from a question.
func cleanupBotMention(text, botName string) string {
	if botName == "" {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(strings.ReplaceAll(text, "@"+botName, ""))
}

// maxIssueContextChars bounds how much conversation history is sent to
// the answer pipeline.
const maxIssueContextChars = 10000

// formatIssueContext renders issue comments as answer context, newest
// last, skipping the bot's own comments and trimming oldest entries
// past the length budget.
func formatIssueContext(comments []integrations.IssueComment, botName string) []string {
	var lines []string
	for _, c := range comments {
		if c.User == botName || c.User == botName+"[bot]" {
			continue
		}
		body := cleanupBotMention(c.Body, botName)
		if body == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", c.User, body))
	}

	total := 0
	for i := len(lines) - 1; i >= 0; i-- {
		total += len(lines[i])
		if total > maxIssueContextChars {
			lines = lines[i+1:]
			break
		}
	}
	return lines
}

// GithubResult carries the webhook HTTP outcome. Business failures past
// signature verification still acknowledge with 200; GitHub cannot act
// on anything else.
type GithubResult struct {
	Status  int
	Message string
}

// HandleGithub processes one GitHub webhook delivery synchronously: the
// single-shot comment reply has no streaming SLA to race.
func (d *Dispatcher) HandleGithub(ctx context.Context, body []byte, signature string, payload *GithubPayload) GithubResult {
	if payload.Installation.ID == 0 {
		return GithubResult{http.StatusBadRequest, "No installation ID found"}
	}
	installationID := fmt.Sprintf("%d", payload.Installation.ID)
	log := d.logger.WithField("installation_id", installationID)

	integration, err := d.resolveIntegration(ctx, models.IntegrationGithub, installationID)
	if err != nil {
		log.WithError(err).Error("Integration lookup failed")
		return GithubResult{http.StatusInternalServerError, "Internal error"}
	}
	if integration == nil {
		log.Error("No integration found for installation")
		return GithubResult{http.StatusBadRequest, "No integration found"}
	}

	strategy, err := d.registry.Strategy(models.IntegrationGithub, integration)
	if err != nil {
		log.WithError(err).Error("Failed to build GitHub strategy")
		return GithubResult{http.StatusInternalServerError, "Internal error"}
	}
	github := strategy.(*integrations.GithubStrategy)

	if err := github.VerifySignature(body, signature); err != nil {
		log.WithError(err).Error("GitHub webhook signature verification failed")
		return GithubResult{http.StatusForbidden, "Invalid signature"}
	}

	eventType := classifyGithubEvent(payload)
	if eventType == "" {
		return GithubResult{http.StatusOK, "Webhook received"}
	}
	if payload.Comment != nil && payload.Comment.User.Type == "Bot" {
		return GithubResult{http.StatusOK, "Webhook received"}
	}

	channel, ok := integration.ChannelByName(payload.Repository.Name)
	if !ok {
		log.WithField("repository", payload.Repository.Name).Error("No channel found for repository")
		return GithubResult{http.StatusBadRequest, "No channel found"}
	}

	rawQuestion := githubQuestionText(payload, eventType)
	if !integrations.WillAnswer(rawQuestion, integration.BotName, eventType, channel.Mode) {
		return GithubResult{http.StatusOK, "Webhook received"}
	}

	if err := d.answerGithubIssue(ctx, integration, github, payload, eventType, rawQuestion); err != nil {
		log.WithError(err).Error("Error processing GitHub webhook")
		// Acknowledge anyway: GitHub retries would only repeat the failure.
	}
	return GithubResult{http.StatusOK, "Webhook received"}
}

func (d *Dispatcher) answerGithubIssue(ctx context.Context, integration *models.Integration, github *integrations.GithubStrategy, payload *GithubPayload, eventType, rawQuestion string) error {
	guruType, err := d.guruTypes.GetByID(integration.GuruTypeID)
	if err != nil {
		return fmt.Errorf("failed to load guru type: %w", err)
	}

	var extraContext []string
	if eventType == integrations.GithubEventIssueComment {
		comments, err := github.GetIssueWithComments(ctx, payload.Issue.URL)
		if err != nil {
			d.logger.WithError(err).Warn("Failed to fetch issue context, answering without it")
		} else {
			extraContext = formatIssueContext(comments, integration.BotName)
		}
	}

	// Each issue turn gets its own fresh binge; GitHub has no editable
	// thread to attach follow-ups to.
	binge, err := d.graph.CreateBinge(integration.GuruTypeID, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to create binge: %w", err)
	}

	result, err := d.ask.Ask(ctx, services.AskRequest{
		Question:     cleanupBotMention(rawQuestion, integration.BotName),
		GuruType:     guruType,
		Binge:        binge,
		ShortAnswer:  true,
		Source:       models.SourceGithub,
		ExtraContext: extraContext,
	})
	if err != nil {
		d.postGithubComment(ctx, github, payload.Issue.URL, "❌ Sorry, I could not answer this. Please try again later.")
		return err
	}

	urlFor := d.questionURL(guruType.Slug)
	switch {
	case result.ErrorMsg != "":
		d.postGithubComment(ctx, github, payload.Issue.URL, "❌ "+result.ErrorMsg)
		return nil
	case result.Existing != nil:
		text := markdown.FormatGitHubAnswer(result.Existing.Content, result.Existing.TrustScore, result.Existing.References, urlFor(result.Existing))
		d.postGithubComment(ctx, github, payload.Issue.URL, text)
		return nil
	default:
		for {
			if _, ok := result.Stream.Next(); !ok {
				break
			}
		}
		question, err := result.Stream.Finalize(ctx)
		if err != nil {
			d.postGithubComment(ctx, github, payload.Issue.URL, streamFailureComment(err))
			return err
		}
		if err := d.graph.SetRootQuestion(binge, question); err != nil {
			d.logger.WithError(err).Warn("Failed to set binge root question")
		}
		text := markdown.FormatGitHubAnswer(question.Content, question.TrustScore, question.References, urlFor(question))
		d.postGithubComment(ctx, github, payload.Issue.URL, text)
		return nil
	}
}

func (d *Dispatcher) postGithubComment(ctx context.Context, github *integrations.GithubStrategy, issueAPIURL, body string) {
	if err := github.CreateIssueComment(ctx, issueAPIURL, body); err != nil {
		d.logger.WithError(err).Error("Failed to post GitHub comment")
	}
}

func streamFailureComment(err error) string {
	var rej *answers.RejectionError
	if errors.As(err, &rej) {
		return "❌ " + rej.Msg
	}
	return "❌ Sorry, I could not answer this. Please try again later."
}
