package kyc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	"kycflow/pkg/platform/circuit"
	"kycflow/pkg/requestcontext"
)

const maxResponseBytes = 1 << 20

// Client calls the data subsystem over HTTP/JSON. A circuit breaker fails
// fast with CodeUnavailable while the subsystem is down.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *circuit.Breaker
	logger     *slog.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithBreaker(b *circuit.Breaker) ClientOption {
	return func(c *Client) {
		c.breaker = b
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(baseURL, apiKey string, timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    circuit.New("kyc-records"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) GetKycRecord(ctx context.Context, recordID id.KycRecordID) (*Record, error) {
	var rec Record
	if err := c.do(ctx, http.MethodGet, "/records/"+recordID.String(), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) ApplyPatch(ctx context.Context, recordID id.KycRecordID, patch Patch) error {
	return c.do(ctx, http.MethodPatch, "/records/"+recordID.String(), patch, nil)
}

func (c *Client) SearchRecords(ctx context.Context, query string) ([]Record, error) {
	var out struct {
		Records []Record `json:"records"`
	}
	if err := c.do(ctx, http.MethodGet, "/records?q="+url.QueryEscape(query), nil, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, into any) error {
	if !c.breaker.Allow() {
		return dErrors.New(dErrors.CodeUnavailable, "kyc data subsystem unavailable").
			With("breaker", c.breaker.Name())
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode request")
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if rid := requestcontext.RequestID(ctx); rid != "" {
		req.Header.Set("X-Request-ID", rid)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordFailure(ctx)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "kyc data subsystem timed out")
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "kyc data subsystem unreachable")
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.recordFailure(ctx)
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read kyc response")
	}

	if resp.StatusCode >= 500 {
		c.recordFailure(ctx)
		return dErrors.Newf(dErrors.CodeUnavailable, "kyc data subsystem returned %d", resp.StatusCode)
	}
	c.recordSuccess(ctx)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return dErrors.New(dErrors.CodeNotFound, "kyc record not found")
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("kyc data subsystem rejected request: %s", strings.TrimSpace(string(payload))))
	case resp.StatusCode >= 300:
		return dErrors.Newf(dErrors.CodeInternal, "unexpected kyc response status %d", resp.StatusCode)
	}

	if into == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, into); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "malformed kyc response")
	}
	return nil
}

func (c *Client) recordFailure(ctx context.Context) {
	if _, change := c.breaker.RecordFailure(); change.Opened && c.logger != nil {
		c.logger.WarnContext(ctx, "circuit opened",
			"breaker", c.breaker.Name(),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

func (c *Client) recordSuccess(ctx context.Context) {
	if _, change := c.breaker.RecordSuccess(); change.Closed && c.logger != nil {
		c.logger.InfoContext(ctx, "circuit closed",
			"breaker", c.breaker.Name(),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}
