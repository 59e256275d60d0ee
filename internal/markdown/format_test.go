package markdown

import (
	"strings"
	"testing"

	"github.com/gurubase/gurubase-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToSlackBoldAndItalic(t *testing.T) {
	assert.Equal(t, "this is *bold* and _italic_", ToSlack("this is **bold** and *italic*"))
}

func TestToSlackLinks(t *testing.T) {
	assert.Equal(t, "see <https://example.com/docs|the docs> here", ToSlack("see [the docs](https://example.com/docs) here"))
}

func TestToSlackPlainTextUnchanged(t *testing.T) {
	plain := "no markup here, just text with numbers 123 and punctuation."
	assert.Equal(t, plain, ToSlack(plain))
}

func TestToSlackIdempotentOnConvertedText(t *testing.T) {
	converted := ToSlack("**bold** [docs](https://example.com)")
	// Converted text has no markdown-specific characters left except the
	// single asterisks Slack itself uses; running it through again only
	// re-maps those, so check the pure-plain case strictly.
	plain := ToSlack("already plain text")
	assert.Equal(t, plain, ToSlack(plain))
	assert.Equal(t, "*bold* <https://example.com|docs>", converted)
}

func TestToSlackCodeFence(t *testing.T) {
	in := "```go\n\nfunc main() {}\n\n```"
	assert.Equal(t, "```\nfunc main() {}\n```", ToSlack(in))
}

func TestToSlackInlineCodeUntouched(t *testing.T) {
	assert.Equal(t, "run `kubectl get *pods*` now", ToSlack("run `kubectl get *pods*` now"))
}

func TestToSlackAsteriskInsideFenceUntouched(t *testing.T) {
	in := "```\nSELECT * FROM users\n```"
	assert.Equal(t, in, ToSlack(in))
}

func TestToSlackUnterminatedFence(t *testing.T) {
	in := "```go\nfunc main()"
	assert.Equal(t, in, ToSlack(in))
}

func TestStripFirstHeader(t *testing.T) {
	assert.Equal(t, "body text", StripFirstHeader("# Title\nbody text"))
	assert.Equal(t, "body text", StripFirstHeader("## Title\n\nbody text"))
	assert.Equal(t, "no header here", StripFirstHeader("no header here"))
	assert.Equal(t, "# only a header", StripFirstHeader("# only a header"))
}

func TestTrustScoreEmoji(t *testing.T) {
	assert.Equal(t, ":large_green_circle:", TrustScoreEmoji(92))
	assert.Equal(t, ":large_yellow_circle:", TrustScoreEmoji(65))
	assert.Equal(t, ":large_orange_circle:", TrustScoreEmoji(45))
	assert.Equal(t, ":red_circle:", TrustScoreEmoji(10))
}

func TestCleanTitle(t *testing.T) {
	assert.Equal(t, "Deployment Guide", CleanTitle(":rocket: Deployment Guide"))
	assert.Equal(t, "Plain Title", CleanTitle("Plain Title"))
}

func TestFormatSlackAnswerRoundTrip(t *testing.T) {
	refs := models.References{
		{Title: "Weird *title* with _underscores_", Link: "https://example.com/a"},
		{Title: "Unicode başlık `code`", Link: "https://example.com/b?q=1&r=2"},
	}

	msg := FormatSlackAnswer("# Header\nAnswer body", 85, refs, "https://gurubase.io/g/k8s/slug")

	parsed := ParseSlackReferences(msg)
	require.Len(t, parsed, len(refs))
	for i := range refs {
		assert.Equal(t, refs[i].Title, parsed[i].Title)
		assert.Equal(t, refs[i].Link, parsed[i].Link)
	}

	assert.Contains(t, msg, "Trust Score")
	assert.Contains(t, msg, ":large_green_circle:")
	assert.Contains(t, msg, "View on Gurubase")
	assert.NotContains(t, msg, "# Header")
}

func TestFormatSlackAnswerWithoutReferences(t *testing.T) {
	msg := FormatSlackAnswer("body", 50, nil, "")
	assert.NotContains(t, msg, "Sources")
	assert.NotContains(t, msg, "View on Gurubase")
}

func TestFormatGitHubAnswer(t *testing.T) {
	refs := models.References{{Title: "Docs", Link: "https://example.com"}}
	msg := FormatGitHubAnswer("# Q\nanswer", 70, refs, "https://gurubase.io/g/k8s/q")

	assert.True(t, strings.HasPrefix(msg, "answer"))
	assert.Contains(t, msg, "- _[Docs](https://example.com)_")
	assert.Contains(t, msg, "[View on Gurubase for a better UX](https://gurubase.io/g/k8s/q)")
}

func TestFormatPartial(t *testing.T) {
	assert.Equal(t, "", FormatPartial("# Title\n"))
	assert.Equal(t, "hello *world*", FormatPartial("# Title\nhello **world**"))
}
