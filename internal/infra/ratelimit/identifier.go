package ratelimit

import (
	"net/http"
	"strings"
)

// UnknownIdentifier is shared by every client that sends no forwarding
// headers, so they draw on a single budget.
const UnknownIdentifier = "unknown"

// ClientIdentifier derives the budget key for a request.
func ClientIdentifier(r *http.Request) string {
	// Check X-Forwarded-For header first (for proxies)
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	return UnknownIdentifier
}
