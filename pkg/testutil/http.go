// Package testutil provides the request builders and response assertions
// shared by handler tests and the in-process API tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewJSONRequest creates a request whose body is body marshaled to JSON. A nil
// body sends no payload.
func NewJSONRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()

	var bodyReader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err, "failed to marshal request body")
		bodyReader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, bodyReader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// NewRequest creates a request without a body.
func NewRequest(t *testing.T, method, path string) *http.Request {
	t.Helper()
	return httptest.NewRequest(method, path, nil)
}

// NewAuthedRequest is NewJSONRequest carrying a bearer token.
func NewAuthedRequest(t *testing.T, method, path, token string, body any) *http.Request {
	t.Helper()
	req := NewJSONRequest(t, method, path, body)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// DoRequest executes a request against a handler and returns the recorder.
func DoRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// UnmarshalResponse decodes the response body into T. The recorder body is
// left intact so several assertions can inspect the same response.
func UnmarshalResponse[T any](t *testing.T, rr *httptest.ResponseRecorder) *T {
	t.Helper()
	var result T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result), "failed to unmarshal response: %s", rr.Body.String())
	return &result
}

// UnmarshalErrorResponse decodes an error body of the form
// {"error": code, "error_description": ..., "retryable": ..., "details": {...}}.
func UnmarshalErrorResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	return *UnmarshalResponse[map[string]any](t, rr)
}

func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	assert.Equal(t, expected, rr.Code, "unexpected status code, body: %s", rr.Body.String())
}

func AssertStatusOK(t *testing.T, rr *httptest.ResponseRecorder) {
	t.Helper()
	AssertStatus(t, rr, http.StatusOK)
}

// AssertStatusAndError asserts both the status and the error code.
func AssertStatusAndError(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus int, expectedCode string) {
	t.Helper()
	AssertStatus(t, rr, expectedStatus)
	assert.Equal(t, expectedCode, UnmarshalErrorResponse(t, rr)["error"], "unexpected error code")
}

// AssertRetryable asserts the error is one a client may retry after reloading,
// such as a stale expected_version.
func AssertRetryable(t *testing.T, rr *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, true, UnmarshalErrorResponse(t, rr)["retryable"], "expected a retryable error")
}

// AssertErrorDetail asserts a key in the error's details object. JSON numbers
// decode as float64.
func AssertErrorDetail(t *testing.T, rr *httptest.ResponseRecorder, key string, expected any) {
	t.Helper()
	details, ok := UnmarshalErrorResponse(t, rr)["details"].(map[string]any)
	require.True(t, ok, "error response has no details: %s", rr.Body.String())
	assert.Equal(t, expected, details[key], "unexpected detail %q", key)
}

// AssertJSONContains asserts a top-level key of a JSON object response.
func AssertJSONContains(t *testing.T, rr *httptest.ResponseRecorder, key string, expectedValue any) {
	t.Helper()
	result := UnmarshalResponse[map[string]any](t, rr)
	assert.Equal(t, expectedValue, (*result)[key], "unexpected value for key %q", key)
}
