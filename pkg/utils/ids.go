package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var slugCleaner = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns a question into a URL-safe slug with a short random
// suffix so repeated questions get distinct slugs.
func Slugify(text string) string {
	slug := strings.ToLower(strings.TrimSpace(text))
	slug = slugCleaner.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 80 {
		slug = slug[:80]
		if idx := strings.LastIndex(slug, "-"); idx > 40 {
			slug = slug[:idx]
		}
	}
	if slug == "" {
		slug = "question"
	}
	return slug + "-" + GenerateRandomID(6)
}

// GenerateAPIKey produces a "gb-" prefixed key of 30 random characters.
func GenerateAPIKey() string {
	return "gb-" + GenerateRandomID(30)
}

// GenerateRandomID generates a random hex ID
func GenerateRandomID(length int) string {
	bytes := make([]byte, (length+1)/2)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)[:length]
}
