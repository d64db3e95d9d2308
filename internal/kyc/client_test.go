package kyc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	"kycflow/pkg/platform/circuit"
)

func TestClient_GetKycRecord(t *testing.T) {
	recordID := id.KycRecordID(uuid.New())
	applicant := id.UserID(uuid.New())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/records/"+recordID.String(), r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(Record{ID: recordID, ApplicantUserID: applicant, FullName: "Sita Sharma"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", time.Second)
	rec, err := c.GetKycRecord(context.Background(), recordID)
	require.NoError(t, err)
	assert.Equal(t, applicant, rec.ApplicantUserID)
	assert.Equal(t, "Sita Sharma", rec.FullName)
}

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   dErrors.Code
	}{
		{"not found", http.StatusNotFound, dErrors.CodeNotFound},
		{"rejected patch", http.StatusUnprocessableEntity, dErrors.CodeValidation},
		{"server error", http.StatusBadGateway, dErrors.CodeUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := NewClient(srv.URL, "", time.Second).ApplyPatch(context.Background(), id.KycRecordID(uuid.New()), Patch{"email": "a@b.c"})
			assert.True(t, dErrors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestClient_BreakerFailsFast(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	breaker := circuit.New("kyc-test", circuit.WithFailureThreshold(2), circuit.WithCoolDown(time.Hour))
	c := NewClient(srv.URL, "", time.Second, WithBreaker(breaker))

	for i := 0; i < 2; i++ {
		_, err := c.SearchRecords(context.Background(), "sita")
		require.Error(t, err)
	}
	require.True(t, breaker.IsOpen())

	_, err := c.SearchRecords(context.Background(), "sita")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	assert.Equal(t, int32(2), hits.Load(), "open breaker short-circuits")
}

func TestClient_SearchRecordsEscapesQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sita sharma&x", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`{"records":[{"full_name":"Sita Sharma"}]}`))
	}))
	defer srv.Close()

	recs, err := NewClient(srv.URL, "", time.Second).SearchRecords(context.Background(), "sita sharma&x")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Sita Sharma", recs[0].FullName)
}

func TestInMemory(t *testing.T) {
	m := NewInMemory()
	recordID := id.KycRecordID(uuid.New())
	m.Put(Record{ID: recordID, FullName: "Ram Thapa", Email: "ram@example.com"})

	require.NoError(t, m.ApplyPatch(context.Background(), recordID, Patch{"full_name": "Ram B. Thapa"}))
	rec, err := m.GetKycRecord(context.Background(), recordID)
	require.NoError(t, err)
	assert.Equal(t, "Ram B. Thapa", rec.FullName)
	assert.Len(t, m.Patches(recordID), 1)

	err = m.ApplyPatch(context.Background(), recordID, Patch{})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	found, err := m.SearchRecords(context.Background(), "EXAMPLE.com")
	require.NoError(t, err)
	assert.Len(t, found, 1)
}
