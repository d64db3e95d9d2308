package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordLifecycle(t *testing.T) {
	srv := httptest.NewServer(newRouter(newStore(), "secret"))
	defer srv.Close()

	call := func(method, path string, body any) *http.Response {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req, err := http.NewRequest(method, srv.URL+path, &buf)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer secret")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp := call(http.MethodPost, "/records", map[string]string{
		"applicant_user_id": uuid.NewString(),
		"full_name":         "Jane Doe",
		"email":             "jane@example.com",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	resp = call(http.MethodPatch, "/records/"+created.ID, map[string]string{"email": "jd@example.com"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = call(http.MethodPatch, "/records/"+created.ID, map[string]string{"applicant_user_id": uuid.NewString()})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()

	resp = call(http.MethodGet, "/records?q=doe", nil)
	var found struct {
		Records []record `json:"records"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&found))
	resp.Body.Close()
	require.Len(t, found.Records, 1)
	assert.Equal(t, "jd@example.com", found.Records[0].Email)

	resp = call(http.MethodGet, "/records/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestRequiresAPIKey(t *testing.T) {
	rr := httptest.NewRecorder()
	newRouter(newStore(), "secret").ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/records?q=x", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
