package redact

import (
	"strings"

	"github.com/sniaff-suite/sniaff-mitmdump-mcp/internal/domain"
)

const mask = "***"

var sensitiveNames = []string{"authorization", "proxy-authorization", "cookie", "set-cookie", "x-api-key"}

var sensitiveSubstrings = []string{"token", "secret", "apikey", "api-key"}

// Headers returns a copy of pairs with values of sensitive headers masked.
// Order and duplicates are preserved; the input slice is never mutated.
func Headers(pairs []domain.Header) []domain.Header {
	if len(pairs) == 0 {
		return pairs
	}
	out := make([]domain.Header, len(pairs))
	copy(out, pairs)
	for i := range out {
		if IsSensitive(out[i].Name) {
			out[i].Value = mask
		}
	}
	return out
}

// IsSensitive reports whether a header name is credential-bearing.
func IsSensitive(name string) bool {
	n := strings.ToLower(name)
	for _, s := range sensitiveNames {
		if n == s {
			return true
		}
	}
	for _, s := range sensitiveSubstrings {
		if strings.Contains(n, s) {
			return true
		}
	}
	return false
}
