package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gurubase/gurubase-go/internal/models"
	"github.com/gurubase/gurubase-go/internal/services"
	"github.com/gurubase/gurubase-go/internal/streamer"
)

// SlackPayload is the envelope Slack posts to the events endpoint.
type SlackPayload struct {
	Type           string `json:"type"`
	Challenge      string `json:"challenge"`
	TeamID         string `json:"team_id"`
	Authorizations []struct {
		UserID string `json:"user_id"`
	} `json:"authorizations"`
	Event struct {
		Type     string `json:"type"`
		Subtype  string `json:"subtype"`
		User     string `json:"user"`
		BotID    string `json:"bot_id"`
		Text     string `json:"text"`
		Channel  string `json:"channel"`
		TS       string `json:"ts"`
		ThreadTS string `json:"thread_ts"`
	} `json:"event"`
}

func (p *SlackPayload) botUserID() string {
	if len(p.Authorizations) == 0 {
		return ""
	}
	return p.Authorizations[0].UserID
}

// slackMention is the literal mention token for a bot user id.
func slackMention(botUserID string) string {
	return "<@" + botUserID + ">"
}

// shouldProcessSlackEvent filters to user-authored message events that
// mention the bot. Everything else is acknowledged and dropped.
func shouldProcessSlackEvent(p *SlackPayload) bool {
	if p.Event.Type != "message" || p.Event.Subtype != "" || p.Event.BotID != "" {
		return false
	}
	bot := p.botUserID()
	if bot == "" || p.TeamID == "" {
		return false
	}
	return strings.Contains(p.Event.Text, slackMention(bot))
}

// stripSlackMention removes the bot mention from the message text.
func stripSlackMention(text, botUserID string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, slackMention(botUserID), ""))
}

// HandleSlack processes one Slack events-API delivery. The returned
// challenge (when set) must be echoed back; everything else happens in a
// detached background task so Slack gets its 200 inside the SLA.
func (d *Dispatcher) HandleSlack(payload *SlackPayload) (challenge string) {
	if payload.Challenge != "" {
		return payload.Challenge
	}
	if !shouldProcessSlackEvent(payload) {
		return ""
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.WithField("panic", r).Error("Panic in Slack event processing")
			}
		}()
		d.processSlackEvent(context.Background(), payload)
	}()
	return ""
}

func (d *Dispatcher) processSlackEvent(ctx context.Context, payload *SlackPayload) {
	log := d.logger.WithField("team_id", payload.TeamID)

	integration, err := d.resolveIntegration(ctx, models.IntegrationSlack, payload.TeamID)
	if err != nil {
		log.WithError(err).Error("Failed to resolve Slack integration")
		return
	}
	if integration == nil {
		log.Error("No integration found for team")
		return
	}

	messenger, err := d.registry.Messenger(integration)
	if err != nil {
		log.WithError(err).Error("Failed to build Slack messenger")
		return
	}

	threadTS := payload.Event.ThreadTS
	if threadTS == "" {
		threadTS = payload.Event.TS
	}
	target := streamer.Target{ChannelID: payload.Event.Channel, ThreadID: threadTS}

	guruType, err := d.guruTypes.GetByID(integration.GuruTypeID)
	if err != nil {
		log.WithError(err).Error("Failed to load guru type for integration")
		return
	}

	interval := time.Duration(d.cfg.Stream.UpdateIntervalMs) * time.Millisecond
	updater := streamer.New(messenger, &tokenRefresher{d: d, integration: integration}, interval, d.logger)

	// Mentions opt the human in, but only in channels the maintainer
	// allowed. Elsewhere the bot explains itself instead of answering.
	if channel, ok := integration.ChannelByID(payload.Event.Channel); !ok || !channel.Allowed {
		updater.PostError(ctx, target, fmt.Sprintf(
			"This channel is not authorized for automatic answers. A maintainer can allow it from the %s integration settings on Gurubase.",
			guruType.Slug,
		))
		return
	}

	question := stripSlackMention(payload.Event.Text, payload.botUserID())
	if question == "" {
		return
	}

	_, binge, err := d.graph.GetOrCreateThreadBinge(threadTS, integration)
	if err != nil {
		log.WithError(err).Error("Failed to resolve thread binge")
		updater.PostError(ctx, target, "Sorry, something went wrong. Please try again later.")
		return
	}

	parent, err := d.graph.LastQuestion(binge.ID)
	if err != nil {
		log.WithError(err).Error("Failed to load binge parent question")
		return
	}

	result, err := d.ask.Ask(ctx, services.AskRequest{
		Question: question,
		GuruType: guruType,
		Binge:    binge,
		Parent:   parent,
		Source:   models.SourceSlack,
	})
	if err != nil {
		log.WithError(err).Error("Ask failed for Slack event")
		updater.PostError(ctx, target, "Sorry, something went wrong. Please try again later.")
		return
	}

	urlFor := d.questionURL(guruType.Slug)
	switch {
	case result.ErrorMsg != "":
		updater.PostError(ctx, target, result.ErrorMsg)
	case result.Existing != nil:
		if err := updater.PostFinal(ctx, target, result.Existing, urlFor); err != nil {
			log.WithError(err).Error("Failed to post existing answer")
		}
	default:
		answered, err := updater.Run(ctx, result.Stream, target, urlFor)
		if err != nil {
			log.WithError(err).Error("Streaming answer failed")
			return
		}
		if err := d.graph.SetRootQuestion(binge, answered); err != nil {
			log.WithError(err).Warn("Failed to set binge root question")
		}
	}
}
