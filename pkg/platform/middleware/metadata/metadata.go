package metadata

import (
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"kycflow/pkg/requestcontext"
)

// ClientMetadata extracts the client IP address and a compact User-Agent
// summary and stores them in the context for the approval log.
// This middleware should be applied early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), Summarize(r.Header.Get("User-Agent")))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Summarize reduces a raw User-Agent to "browser version (os)". Unparseable
// agents are kept verbatim, truncated.
func Summarize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name == "" {
		return truncate(raw, 256)
	}
	summary := name
	if version != "" {
		summary += " " + version
	}
	if osName := ua.OS(); osName != "" {
		summary += " (" + osName + ")"
	}
	if ua.Bot() {
		summary += " [bot]"
	}
	return truncate(summary, 256)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// ClientIPFromRequest extracts the real client IP from the request, handling proxies and load balancers.
func ClientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs (client, proxy1, proxy2, ...)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
