package streamer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gurubase/gurubase-go/internal/answers"
	"github.com/gurubase/gurubase-go/internal/integrations"
	"github.com/gurubase/gurubase-go/internal/markdown"
	"github.com/gurubase/gurubase-go/internal/models"
	"github.com/sirupsen/logrus"
)

// AnswerSource is the stream the updater projects onto a remote message.
// services.AnswerStream implements it.
type AnswerSource interface {
	Next() (string, bool)
	Finalize(ctx context.Context) (*models.Question, error)
}

// Refresher restores a messenger whose credentials expired. It refreshes
// the integration token and returns a messenger bound to the new token.
type Refresher interface {
	RefreshMessenger(ctx context.Context) (integrations.Messenger, error)
}

// Target addresses one conversation turn.
type Target struct {
	ChannelID string
	ThreadID  string
}

const (
	placeholderText = "Thinking... :thinking_face:"
	genericFailure  = "❌ Sorry, I could not answer this. Please try again later."
)

// Updater projects a forward-only answer stream onto one editable remote
// message: placeholder post, throttled partial edits while chunks
// arrive, one authoritative formatted edit at the end, and a visible
// "❌" edit on any failure. All edits for a turn are issued from this
// one goroutine, never concurrently.
type Updater struct {
	messenger integrations.Messenger
	refresher Refresher
	interval  time.Duration
	now       func() time.Time
	logger    *logrus.Logger

	refreshed bool
}

func New(messenger integrations.Messenger, refresher Refresher, interval time.Duration, logger *logrus.Logger) *Updater {
	return &Updater{
		messenger: messenger,
		refresher: refresher,
		interval:  interval,
		now:       time.Now,
		logger:    logger,
	}
}

// post sends with a single refresh-and-retry on expired credentials.
func (u *Updater) post(ctx context.Context, target Target, text string) (*integrations.MessageRef, error) {
	ref, err := u.messenger.PostMessage(ctx, target.ChannelID, target.ThreadID, text)
	if err != nil && u.tryRefresh(ctx, err) {
		ref, err = u.messenger.PostMessage(ctx, target.ChannelID, target.ThreadID, text)
	}
	return ref, err
}

func (u *Updater) edit(ctx context.Context, ref *integrations.MessageRef, text string) error {
	err := u.messenger.UpdateMessage(ctx, ref, text)
	if err != nil && u.tryRefresh(ctx, err) {
		err = u.messenger.UpdateMessage(ctx, ref, text)
	}
	return err
}

// tryRefresh swaps in a fresh messenger when the error is a recoverable
// credential failure. At most one refresh per updater lifetime.
func (u *Updater) tryRefresh(ctx context.Context, err error) bool {
	if u.refreshed || u.refresher == nil || !integrations.IsCredentialExpired(err) {
		return false
	}
	u.refreshed = true
	fresh, refreshErr := u.refresher.RefreshMessenger(ctx)
	if refreshErr != nil {
		u.logger.WithError(refreshErr).Error("Failed to refresh integration token")
		return false
	}
	u.messenger = fresh
	return true
}

// Run drives the full turn. On success it returns the persisted
// question; every failure path ends in a user-visible message (or a log
// line when even that is impossible) and never panics past this
// boundary.
func (u *Updater) Run(ctx context.Context, stream AnswerSource, target Target, urlFor func(*models.Question) string) (*models.Question, error) {
	// Posting
	ref, err := u.post(ctx, target, placeholderText)
	if err != nil {
		u.logger.WithError(err).WithField("channel", target.ChannelID).Error("Failed to post placeholder message")
		return nil, err
	}

	// Streaming
	var buffer strings.Builder
	var lineBuffer string
	var lastUpdate time.Time

	for {
		chunk, ok := stream.Next()
		if !ok {
			break
		}
		lineBuffer += chunk

		for {
			idx := strings.IndexByte(lineBuffer, '\n')
			if idx == -1 {
				break
			}
			line := lineBuffer[:idx+1]
			lineBuffer = lineBuffer[idx+1:]
			if strings.TrimSpace(line) == "" {
				buffer.WriteString(line)
				continue
			}
			buffer.WriteString(line)

			formatted := markdown.FormatPartial(buffer.String())
			if formatted == "" {
				continue
			}
			if u.now().Sub(lastUpdate) < u.interval {
				continue
			}
			if err := u.edit(ctx, ref, formatted+markdown.StreamingSuffix); err != nil {
				u.fail(ctx, target, ref, genericFailure, err)
				return nil, err
			}
			lastUpdate = u.now()
		}
	}
	buffer.WriteString(lineBuffer)

	// Finalizing
	question, err := stream.Finalize(ctx)
	if err != nil {
		u.fail(ctx, target, ref, failureText(err), err)
		return nil, err
	}

	final := markdown.FormatSlackAnswer(question.Content, question.TrustScore, question.References, urlFor(question))
	if err := u.edit(ctx, ref, final); err != nil {
		u.fail(ctx, target, ref, genericFailure, err)
		return nil, err
	}
	return question, nil
}

// PostFinal sends an already-stored answer as a single formatted
// message, used when the orchestrator returned an existing question.
func (u *Updater) PostFinal(ctx context.Context, target Target, question *models.Question, urlFor func(*models.Question) string) error {
	text := markdown.FormatSlackAnswer(question.Content, question.TrustScore, question.References, urlFor(question))
	_, err := u.post(ctx, target, text)
	return err
}

// PostError surfaces a user-facing error message as a plain post.
func (u *Updater) PostError(ctx context.Context, target Target, msg string) {
	if _, err := u.post(ctx, target, "❌ "+msg); err != nil {
		u.logger.WithError(err).Error("Failed to post error message")
	}
}

// fail edits the placeholder to a visible failure text. When the edit
// itself fails a fresh post is attempted; past that we only log.
func (u *Updater) fail(ctx context.Context, target Target, ref *integrations.MessageRef, text string, cause error) {
	u.logger.WithError(cause).WithField("channel", target.ChannelID).Error("Answer turn failed")

	if ref != nil {
		if err := u.edit(ctx, ref, text); err == nil {
			return
		}
	}
	if _, err := u.post(ctx, target, text); err != nil {
		u.logger.WithError(err).Error("Failed to deliver failure message, giving up")
	}
}

// failureText renders semantic answer errors verbatim and hides
// everything else behind a generic message.
func failureText(err error) string {
	var rejection *answers.RejectionError
	if errors.As(err, &rejection) {
		return "❌ " + rejection.Msg
	}
	return genericFailure
}
