package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"kycflow/pkg/requestcontext"
)

func TestClientIPFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.2:443", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": " 198.51.100.4 "}, "10.0.0.2:443", "198.51.100.4"},
		{"remote ipv4", nil, "192.0.2.1:5555", "192.0.2.1"},
		{"remote ipv6", nil, "[::1]:5555", "::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIPFromRequest(r))
		})
	}
}

func TestSummarize(t *testing.T) {
	ua := "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	got := Summarize(ua)
	assert.Contains(t, got, "Chrome 120.0.0.0")
	assert.Contains(t, got, "Linux")
	assert.Empty(t, Summarize("  "))
}

func TestClientMetadata(t *testing.T) {
	var ip, agent string
	h := ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip = requestcontext.ClientIP(r.Context())
		agent = requestcontext.UserAgent(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.9:1234"
	r.Header.Set("User-Agent", "curl/8.5.0")
	h.ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, "192.0.2.9", ip)
	assert.NotEmpty(t, agent)
}
