package requesttime

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"kycflow/pkg/requestcontext"
)

func TestStamp(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	in := time.Date(2026, 3, 1, 12, 0, 0, 123456789, loc)

	got := Stamp(in)
	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, 123456000, got.Nanosecond())
	assert.True(t, got.Equal(in.Truncate(time.Microsecond)))
}

func TestWithClock(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 9, 30, 0, 999, time.UTC)
	var seen []time.Time
	h := WithClock(func() time.Time { return fixed })(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = append(seen, requestcontext.Now(r.Context()), requestcontext.Now(r.Context()))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Len(t, seen, 2)
	assert.Equal(t, seen[0], seen[1])
	assert.Equal(t, Stamp(fixed), seen[0])
}
