package news

import (
	"regexp"
	"strings"
	"time"
)

var (
	clanImageRegex = regexp.MustCompile(`(?i)\{STEAM_CLAN_IMAGE\}/(\d+)/([a-f0-9]+)\.(\w+)`)
	imgTagRegex    = regexp.MustCompile(`(?i)<img[^>]+src="([^"]+)"`)
	htmlTagRegex   = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
)

// FormatDate renders a Steam news Unix timestamp as a readable date.
func FormatDate(timestamp int64) string {
	return time.Unix(timestamp, 0).UTC().Format("January 2, 2006")
}

// TruncateContent shortens article text for card display.
func TruncateContent(content string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = 600
	}
	if len(content) <= maxLength {
		return content
	}
	return strings.TrimSpace(content[:maxLength]) + "..."
}

// ExtractImage pulls the first usable image URL out of article content:
// Steam clan image placeholders first, then plain img tags. Returns "" when
// no image is found.
func ExtractImage(content string) string {
	if m := clanImageRegex.FindStringSubmatch(content); m != nil {
		return "https://clan.akamai.steamstatic.com/images/" + m[1] + "/" + m[2] + "." + m[3]
	}
	if m := imgTagRegex.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	return ""
}

// CleanContent strips clan-image placeholders, HTML tags, and extra
// whitespace for plain-text display.
func CleanContent(content string) string {
	cleaned := clanImageRegex.ReplaceAllString(content, "")
	cleaned = htmlTagRegex.ReplaceAllString(cleaned, "")
	cleaned = whitespaceRe.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}
