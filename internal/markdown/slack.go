package markdown

import "strings"

// ToSlack converts lightweight markdown to Slack mrkdwn. It runs a small
// tokenizer over the text so that code spans and fenced blocks are never
// touched by the bold/italic/link rules. Plain text with no markup passes
// through unchanged.
func ToSlack(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	i := 0
	for i < len(content) {
		rest := content[i:]
		switch {
		case strings.HasPrefix(rest, "```"):
			end := strings.Index(rest[3:], "```")
			if end == -1 {
				// unterminated fence, emit as-is
				out.WriteString(rest)
				i = len(content)
				continue
			}
			out.WriteString(renderCodeFence(rest[3 : 3+end]))
			i += 3 + end + 3

		case rest[0] == '`':
			end := strings.IndexByte(rest[1:], '`')
			if end == -1 {
				out.WriteByte('`')
				i++
				continue
			}
			out.WriteString(rest[:end+2])
			i += end + 2

		case rest[0] == '[':
			text, url, n, ok := parseLink(rest)
			if !ok {
				out.WriteByte('[')
				i++
				continue
			}
			out.WriteString("<")
			out.WriteString(url)
			out.WriteString("|")
			out.WriteString(text)
			out.WriteString(">")
			i += n

		case strings.HasPrefix(rest, "**"):
			out.WriteByte('*')
			i += 2

		case rest[0] == '*':
			out.WriteByte('_')
			i++

		default:
			out.WriteByte(rest[0])
			i++
		}
	}

	return out.String()
}

// renderCodeFence re-emits a fenced block without its language specifier
// and without blank lines hugging the fences. Slack has no syntax
// highlighting, so the language token would render as literal text.
func renderCodeFence(body string) string {
	lines := strings.Split(body, "\n")

	// The language specifier sits on the opening fence line.
	if len(lines) > 0 && isLanguageToken(lines[0]) {
		lines = lines[1:]
	}

	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	end := len(lines)
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}

	return "```\n" + strings.Join(lines[start:end], "\n") + "\n```"
}

func isLanguageToken(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true
	}
	for _, r := range trimmed {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '+' || r == '#' || r == '-') {
			return false
		}
	}
	return true
}

// parseLink matches a [text](url) link at the start of s. Returns the
// consumed byte count so the caller can advance past it.
func parseLink(s string) (text, url string, n int, ok bool) {
	closeBracket := strings.IndexByte(s, ']')
	if closeBracket == -1 || closeBracket+1 >= len(s) || s[closeBracket+1] != '(' {
		return "", "", 0, false
	}
	closeParen := strings.IndexByte(s[closeBracket+2:], ')')
	if closeParen == -1 {
		return "", "", 0, false
	}
	text = s[1:closeBracket]
	url = s[closeBracket+2 : closeBracket+2+closeParen]
	if text == "" || url == "" {
		return "", "", 0, false
	}
	return text, url, closeBracket + 2 + closeParen + 1, true
}
