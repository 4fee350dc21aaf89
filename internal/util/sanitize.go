package util

import (
	"regexp"
	"strings"
)

// maxLogValueLen caps user-supplied values in log output. Attack payloads
// can be arbitrarily long; the log line should not be.
const maxLogValueLen = 200

var controlChars = regexp.MustCompile(`[\x00-\x1F\x7F]+`)

// SanitizeForLog removes control characters and newlines from user content
// before logging, and truncates it to a bounded length.
func SanitizeForLog(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = controlChars.ReplaceAllString(s, " ")
	return Truncate(s, maxLogValueLen)
}

// Truncate bounds s to at most n bytes.
func Truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
