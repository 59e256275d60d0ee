package streamer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gurubase/gurubase-go/internal/answers"
	"github.com/gurubase/gurubase-go/internal/integrations"
	"github.com/gurubase/gurubase-go/internal/markdown"
	"github.com/gurubase/gurubase-go/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

type fakeMessenger struct {
	posts     []string
	edits     []string
	postErr   error
	editErrs  []error // popped per edit call; nil entry means success
	failPosts bool
}

func (m *fakeMessenger) PostMessage(ctx context.Context, channelID, threadID, text string) (*integrations.MessageRef, error) {
	if m.postErr != nil || m.failPosts {
		if m.postErr != nil {
			return nil, m.postErr
		}
		return nil, &integrations.IntegrationError{Vendor: models.IntegrationSlack, Msg: "channel_not_found"}
	}
	m.posts = append(m.posts, text)
	return &integrations.MessageRef{ChannelID: channelID, ID: "msg-1"}, nil
}

func (m *fakeMessenger) UpdateMessage(ctx context.Context, ref *integrations.MessageRef, text string) error {
	if len(m.editErrs) > 0 {
		err := m.editErrs[0]
		m.editErrs = m.editErrs[1:]
		if err != nil {
			return err
		}
	}
	m.edits = append(m.edits, text)
	return nil
}

type fakeStream struct {
	chunks   []string
	question *models.Question
	finalErr error
}

func (s *fakeStream) Next() (string, bool) {
	if len(s.chunks) == 0 {
		return "", false
	}
	chunk := s.chunks[0]
	s.chunks = s.chunks[1:]
	return chunk, true
}

func (s *fakeStream) Finalize(ctx context.Context) (*models.Question, error) {
	if s.finalErr != nil {
		return nil, s.finalErr
	}
	return s.question, nil
}

type fakeRefresher struct {
	calls     int
	messenger integrations.Messenger
	err       error
}

func (r *fakeRefresher) RefreshMessenger(ctx context.Context) (integrations.Messenger, error) {
	r.calls++
	return r.messenger, r.err
}

func noURL(q *models.Question) string { return "" }

func TestRunThrottledScenario(t *testing.T) {
	messenger := &fakeMessenger{}
	u := New(messenger, nil, 500*time.Millisecond, testLogger())

	// Frozen clock: the first complete line edits (lastUpdate is zero),
	// later lines inside the window are throttled away.
	frozen := time.Now()
	u.now = func() time.Time { return frozen }

	stream := &fakeStream{
		chunks:   []string{"Hello ", "world\n", "more text"},
		question: &models.Question{Content: "Hello world\nmore text", TrustScore: 90},
	}

	question, err := u.Run(context.Background(), stream, Target{ChannelID: "C1", ThreadID: "171.001"}, noURL)
	require.NoError(t, err)
	require.NotNil(t, question)

	require.Len(t, messenger.posts, 1)
	assert.Equal(t, placeholderText, messenger.posts[0])

	require.Len(t, messenger.edits, 2)
	assert.Contains(t, messenger.edits[0], "Hello world")
	assert.NotContains(t, messenger.edits[0], "more text")
	assert.True(t, strings.HasSuffix(messenger.edits[0], markdown.StreamingSuffix))

	final := messenger.edits[1]
	assert.Contains(t, final, "Hello world")
	assert.Contains(t, final, "more text")
	assert.Contains(t, final, "Trust Score")
	assert.NotContains(t, final, markdown.StreamingSuffix)
}

func TestRunThrottleSuppressesRapidLines(t *testing.T) {
	messenger := &fakeMessenger{}
	u := New(messenger, nil, 500*time.Millisecond, testLogger())
	frozen := time.Now()
	u.now = func() time.Time { return frozen }

	stream := &fakeStream{
		chunks:   []string{"line one\n", "line two\n", "line three\n"},
		question: &models.Question{Content: "line one\nline two\nline three"},
	}

	_, err := u.Run(context.Background(), stream, Target{ChannelID: "C1"}, noURL)
	require.NoError(t, err)

	// One throttled intermediate edit plus the final authoritative one.
	require.Len(t, messenger.edits, 2)
	assert.Contains(t, messenger.edits[0], "line one")
	assert.NotContains(t, messenger.edits[0], "line two")
}

func TestRunPlaceholderFailureStopsEverything(t *testing.T) {
	messenger := &fakeMessenger{postErr: &integrations.IntegrationError{Vendor: models.IntegrationSlack, Msg: "channel_not_found"}}
	u := New(messenger, nil, 0, testLogger())

	stream := &fakeStream{chunks: []string{"never sent\n"}}
	_, err := u.Run(context.Background(), stream, Target{ChannelID: "C1"}, noURL)
	require.Error(t, err)
	assert.Empty(t, messenger.edits)
	assert.Empty(t, messenger.posts)
}

func TestRunCredentialRefreshRetry(t *testing.T) {
	freshMessenger := &fakeMessenger{}
	staleMessenger := &fakeMessenger{
		editErrs: []error{&integrations.IntegrationError{Vendor: models.IntegrationSlack, Msg: "token_expired"}},
	}
	refresher := &fakeRefresher{messenger: freshMessenger}

	u := New(staleMessenger, refresher, 0, testLogger())
	stream := &fakeStream{
		chunks:   []string{"answer line\n"},
		question: &models.Question{Content: "answer line"},
	}

	question, err := u.Run(context.Background(), stream, Target{ChannelID: "C1"}, noURL)
	require.NoError(t, err)
	require.NotNil(t, question)

	assert.Equal(t, 1, refresher.calls)
	// Placeholder went through the stale messenger, the retried edit and
	// everything after through the fresh one.
	assert.Len(t, staleMessenger.posts, 1)
	assert.Len(t, freshMessenger.edits, 2)
}

func TestRunSecondCredentialFailureIsTerminal(t *testing.T) {
	failingMessenger := &fakeMessenger{
		editErrs: []error{
			&integrations.IntegrationError{Vendor: models.IntegrationSlack, Msg: "token_expired"},
			&integrations.IntegrationError{Vendor: models.IntegrationSlack, Msg: "token_expired"},
		},
	}
	refresher := &fakeRefresher{messenger: failingMessenger}

	u := New(failingMessenger, refresher, 0, testLogger())
	stream := &fakeStream{
		chunks:   []string{"answer line\n"},
		question: &models.Question{Content: "answer line"},
	}

	_, err := u.Run(context.Background(), stream, Target{ChannelID: "C1"}, noURL)
	require.Error(t, err)
	assert.Equal(t, 1, refresher.calls, "only one refresh attempt")

	// The failure edit went out as the terminal ❌ message.
	require.NotEmpty(t, failingMessenger.edits)
	assert.Contains(t, failingMessenger.edits[len(failingMessenger.edits)-1], "❌")
}

func TestRunRejectionRenderedVerbatim(t *testing.T) {
	messenger := &fakeMessenger{}
	u := New(messenger, nil, 0, testLogger())

	stream := &fakeStream{
		finalErr: &answers.RejectionError{Reason: answers.ErrNotRelated, Msg: "This question is not related to Kubernetes."},
	}

	_, err := u.Run(context.Background(), stream, Target{ChannelID: "C1"}, noURL)
	require.Error(t, err)

	require.Len(t, messenger.edits, 1)
	assert.Equal(t, "❌ This question is not related to Kubernetes.", messenger.edits[0])
}

func TestPostFinalAndPostError(t *testing.T) {
	messenger := &fakeMessenger{}
	u := New(messenger, nil, 0, testLogger())

	q := &models.Question{Content: "stored answer", TrustScore: 75}
	require.NoError(t, u.PostFinal(context.Background(), Target{ChannelID: "C1"}, q, func(*models.Question) string {
		return "https://gurubase.io/g/k8s/stored"
	}))

	u.PostError(context.Background(), Target{ChannelID: "C1"}, "Something broke.")

	require.Len(t, messenger.posts, 2)
	assert.Contains(t, messenger.posts[0], "stored answer")
	assert.Contains(t, messenger.posts[0], "View on Gurubase")
	assert.Equal(t, "❌ Something broke.", messenger.posts[1])
}
