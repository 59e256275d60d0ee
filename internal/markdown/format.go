package markdown

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gurubase/gurubase-go/internal/models"
)

// StripFirstHeader removes a leading markdown title line. Generated
// answers open with a restated question header that reads redundant
// inside a chat thread.
func StripFirstHeader(content string) string {
	if !strings.HasPrefix(content, "#") {
		return content
	}
	idx := strings.IndexByte(content, '\n')
	if idx == -1 {
		return content
	}
	return strings.TrimLeft(content[idx+1:], " \t\n")
}

// TrustScoreEmoji maps a trust score onto a Slack emoji code.
func TrustScoreEmoji(score int) string {
	switch {
	case score >= 80:
		return ":large_green_circle:"
	case score >= 60:
		return ":large_yellow_circle:"
	case score >= 40:
		return ":large_orange_circle:"
	default:
		return ":red_circle:"
	}
}

var emojiCode = regexp.MustCompile(` ?:[a-z0-9_+-]+: ?`)

// CleanTitle strips Slack emoji codes and their adjacent spaces from a
// reference title so links stay on one line.
func CleanTitle(title string) string {
	return strings.TrimSpace(emojiCode.ReplaceAllString(title, " "))
}

// FormatSlackAnswer renders the final authoritative message: converted
// answer body, trust score line, bulleted sources, and an optional link
// back to the web UI.
func FormatSlackAnswer(content string, trustScore int, references models.References, questionURL string) string {
	content = StripFirstHeader(content)
	content = ToSlack(content)

	parts := []string{content}

	parts = append(parts, fmt.Sprintf("\n---------\n_*Trust Score*: %s %d_%%", TrustScoreEmoji(trustScore), trustScore))

	if len(references) > 0 {
		parts = append(parts, "\n_*Sources*_:")
		for _, ref := range references {
			parts = append(parts, fmt.Sprintf("\n• _<%s|%s>_", ref.Link, CleanTitle(ref.Title)))
		}
	}

	if questionURL != "" {
		parts = append(parts, fmt.Sprintf("\n:eyes: _<%s|View on Gurubase for a better UX>_", questionURL))
	}

	return strings.Join(parts, "\n")
}

// FormatGitHubAnswer renders a single-shot issue comment. GitHub speaks
// markdown natively, so only the footer is added.
func FormatGitHubAnswer(content string, trustScore int, references models.References, questionURL string) string {
	content = StripFirstHeader(content)

	parts := []string{content}

	parts = append(parts, fmt.Sprintf("\n---------\n_**Trust Score**: %s %d%%_", TrustScoreEmoji(trustScore), trustScore))

	if len(references) > 0 {
		parts = append(parts, "\n_**Sources**_:")
		for _, ref := range references {
			parts = append(parts, fmt.Sprintf("- _[%s](%s)_", CleanTitle(ref.Title), ref.Link))
		}
	}

	if questionURL != "" {
		parts = append(parts, fmt.Sprintf("\n_[View on Gurubase for a better UX](%s)_", questionURL))
	}

	return strings.Join(parts, "\n")
}

var slackReference = regexp.MustCompile(`• _<([^|>]+)\|([^>]*)>_`)

// ParseSlackReferences recovers (title, link) pairs from a message
// rendered by FormatSlackAnswer.
func ParseSlackReferences(message string) models.References {
	var refs models.References
	for _, m := range slackReference.FindAllStringSubmatch(message, -1) {
		refs = append(refs, models.Reference{Link: m[1], Title: m[2]})
	}
	return refs
}

// StreamingSuffix is appended to throttled partial edits so readers can
// tell the answer is still being generated.
const StreamingSuffix = "\n\n:clock1: _streaming..._"

// FormatPartial renders an in-progress buffer for a throttled edit.
// Returns "" when there is nothing worth showing yet.
func FormatPartial(buffer string) string {
	cleaned := StripFirstHeader(buffer)
	if strings.TrimSpace(cleaned) == "" {
		return ""
	}
	return ToSlack(cleaned)
}
