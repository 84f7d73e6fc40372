package logging

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxErrorLogLength is the maximum length of an error message written to the run error log
	MaxErrorLogLength = 500
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// Matches: password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Connection string credentials (user:pass@host format)
	connStringPattern = regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`)
)

// SanitizeConnectionString removes sensitive data from connection strings.
// Use this before logging any connection string.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// SanitizeError renders err for a log file with connection secrets and any of
// the given literal secrets (portal password, database password) removed.
func SanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	sanitized := SanitizeConnectionString(err.Error())
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		sanitized = strings.ReplaceAll(sanitized, secret, RedactedText)
	}

	// One error per log line
	sanitized = strings.ReplaceAll(sanitized, "\n", " ")

	return TruncateString(sanitized, MaxErrorLogLength)
}

// TruncateString truncates a string to at most maxLen bytes and adds ellipsis
// if needed. The cut never splits a multi-byte character.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
