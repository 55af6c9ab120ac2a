// Package sanitize provides text sanitization for stored user input and for
// user data embedded in model prompts.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	htmlTagRegex    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRegex = regexp.MustCompile(`[ \t]+`)
)

// StripHTML removes all HTML tags from a string, making it safe for text-only display.
func StripHTML(s string) string {
	result := htmlTagRegex.ReplaceAllString(s, "")
	result = strings.ReplaceAll(result, "&lt;", "<")
	result = strings.ReplaceAll(result, "&gt;", ">")
	result = strings.ReplaceAll(result, "&amp;", "&")
	result = strings.ReplaceAll(result, "&quot;", "\"")
	result = strings.ReplaceAll(result, "&#39;", "'")
	// Re-strip after entity decode to catch encoded tags
	result = htmlTagRegex.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}

// Text sanitizes job titles, descriptions, reasons and review notes:
// HTML is stripped and runs of spaces collapse to one.
func Text(s string) string {
	return whitespaceRegex.ReplaceAllString(StripHTML(s), " ")
}

// TextPtr is a helper for optional string pointers
func TextPtr(s *string) *string {
	if s == nil {
		return nil
	}
	result := Text(*s)
	return &result
}

// Prompt prepares user-provided text for inclusion in a model prompt:
// control characters other than newline and tab are dropped and the result
// is truncated to maxLen bytes on a rune boundary.
func Prompt(s string, maxLen int) string {
	var sb strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sb.WriteRune(r)
	}
	result := sb.String()
	if maxLen <= 0 || len(result) <= maxLen {
		return result
	}
	cut := maxLen
	for cut > 0 && !utf8RuneStart(result[cut]) {
		cut--
	}
	return result[:cut] + "... [truncated]"
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }
