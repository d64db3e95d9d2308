package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Persona is a named test actor with its minted token.
type Persona struct {
	UserID   string
	Roles    []string
	BranchID string
	Token    string
}

// TestContext holds per-scenario state: personas, remembered IDs and the last
// HTTP response.
type TestContext struct {
	BaseURL    string
	RecordsURL string
	signingKey []byte
	issuer     string
	audience   string
	client     *http.Client

	personas map[string]*Persona
	vars     map[string]string

	lastStatus int
	lastBody   []byte
}

func NewTestContext() *TestContext {
	return &TestContext{
		BaseURL:    envOr("E2E_BASE_URL", "http://localhost:8080"),
		RecordsURL: envOr("E2E_RECORDS_URL", "http://localhost:8090"),
		signingKey: []byte(envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production")),
		issuer:     envOr("JWT_ISSUER", "kycflow-identity"),
		audience:   envOr("JWT_AUDIENCE", "kycflow"),
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Reset clears scenario state.
func (tc *TestContext) Reset() {
	tc.personas = map[string]*Persona{}
	tc.vars = map[string]string{}
	tc.lastStatus = 0
	tc.lastBody = nil
}

// AddPersona mints a token for a new user holding roles at branchID.
func (tc *TestContext) AddPersona(name string, roles []string, branchID string) (*Persona, error) {
	p := &Persona{UserID: uuid.NewString(), Roles: roles, BranchID: branchID}
	claims := jwt.MapClaims{
		"sub":   p.UserID,
		"roles": roles,
		"iss":   tc.issuer,
		"aud":   tc.audience,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	if branchID != "" {
		claims["branch_id"] = branchID
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tc.signingKey)
	if err != nil {
		return nil, err
	}
	p.Token = token
	tc.personas[name] = p
	return p, nil
}

// AddPersonaID is AddPersona returning only the user ID, for step packages
// that cannot import this one.
func (tc *TestContext) AddPersonaID(name string, roles []string, branchID string) (string, error) {
	p, err := tc.AddPersona(name, roles, branchID)
	if err != nil {
		return "", err
	}
	return p.UserID, nil
}

func (tc *TestContext) Persona(name string) (*Persona, error) {
	p, ok := tc.personas[name]
	if !ok {
		return nil, fmt.Errorf("unknown persona %q", name)
	}
	return p, nil
}

func (tc *TestContext) Remember(key, value string) { tc.vars[key] = value }

func (tc *TestContext) Recall(key string) (string, error) {
	v, ok := tc.vars[key]
	if !ok {
		return "", fmt.Errorf("nothing remembered as %q", key)
	}
	return v, nil
}

// Request calls the service as persona (anonymous when empty) and records
// the response.
func (tc *TestContext) Request(method, path, persona string, body any) error {
	token := ""
	if persona != "" {
		p, err := tc.Persona(persona)
		if err != nil {
			return err
		}
		token = p.Token
	}
	return tc.send(method, tc.BaseURL+path, token, body)
}

// SeedRecord creates an applicant record in the data subsystem stand-in.
func (tc *TestContext) SeedRecord(applicantUserID, fullName string) (string, error) {
	if err := tc.send(http.MethodPost, tc.RecordsURL+"/records", os.Getenv("KYC_RECORDS_API_KEY"), map[string]string{
		"applicant_user_id": applicantUserID,
		"full_name":         fullName,
	}); err != nil {
		return "", err
	}
	if tc.lastStatus != http.StatusCreated {
		return "", fmt.Errorf("seeding record failed with %d: %s", tc.lastStatus, tc.lastBody)
	}
	return tc.StringField("id")
}

func (tc *TestContext) send(method, url, token string, body any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := tc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) Status() int { return tc.lastStatus }

func (tc *TestContext) Body() string { return string(tc.lastBody) }

// Field resolves a dotted path ("chain.0.role_name") in the last JSON body.
func (tc *TestContext) Field(path string) (any, error) {
	var cur any
	if err := json.Unmarshal(tc.lastBody, &cur); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}
	for _, part := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, fmt.Errorf("field %q missing in %s", path, tc.lastBody)
			}
			cur = v
		case []any:
			var idx int
			if _, err := fmt.Sscanf(part, "%d", &idx); err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("index %q out of range in %q", part, path)
			}
			cur = node[idx]
		default:
			return nil, fmt.Errorf("cannot descend into %q", path)
		}
	}
	return cur, nil
}

func (tc *TestContext) StringField(path string) (string, error) {
	v, err := tc.Field(path)
	if err != nil {
		return "", err
	}
	return fmt.Sprint(v), nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
