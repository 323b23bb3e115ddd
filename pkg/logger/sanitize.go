package logger

import (
	"log/slog"
	"strings"
)

// SanitizedIdentity masks an identity for logging. Email-shaped identities
// come back as "u***@***.com"; anything else keeps its first character.
func SanitizedIdentity(identity string) string {
	parts := strings.Split(identity, "@")
	if len(parts) != 2 {
		if len(identity) > 1 {
			return string(identity[0]) + strings.Repeat("*", len(identity)-1)
		}
		return identity
	}

	username := parts[0]
	domain := parts[1]

	if len(username) > 1 {
		username = string(username[0]) + strings.Repeat("*", len(username)-1)
	}

	domainParts := strings.Split(domain, ".")
	if len(domainParts) > 1 {
		for i := 0; i < len(domainParts)-1; i++ {
			domainParts[i] = strings.Repeat("*", len(domainParts[i]))
		}
		domain = strings.Join(domainParts, ".")
	}

	return username + "@" + domain
}

// RedactedAttr returns a redacted slog attribute for sensitive values.
// In production, returns "[REDACTED]"; in development, the actual value.
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}
