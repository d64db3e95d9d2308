package main

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type record struct {
	ID              string    `json:"id"`
	ApplicantUserID string    `json:"applicant_user_id"`
	FullName        string    `json:"full_name"`
	NationalID      string    `json:"national_id,omitempty"`
	Email           string    `json:"email,omitempty"`
	Phone           string    `json:"phone,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// patchable lists the fields a PATCH may change.
var patchable = map[string]bool{"full_name": true, "national_id": true, "email": true, "phone": true}

type store struct {
	mu      sync.RWMutex
	records map[string]*record
}

func newStore() *store {
	return &store{records: map[string]*record{}}
}

func newRouter(s *store, apiKey string) http.Handler {
	r := chi.NewRouter()
	if apiKey != "" {
		r.Use(requireKey(apiKey))
	}
	r.Post("/records", s.create)
	r.Get("/records", s.search)
	r.Get("/records/{id}", s.get)
	r.Patch("/records/{id}", s.patch)
	return r
}

func requireKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+key {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *store) create(w http.ResponseWriter, r *http.Request) {
	var rec record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if _, err := uuid.Parse(rec.ApplicantUserID); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "applicant_user_id must be a uuid"})
		return
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	s.records[rec.ID] = &rec
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, rec)
}

func (s *store) get(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	rec, ok := s.records[chi.URLParam(r, "id")]
	var out record
	if ok {
		out = *rec
	}
	s.mu.RUnlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *store) patch(w http.ResponseWriter, r *http.Request) {
	var changes map[string]any
	if err := json.NewDecoder(r.Body).Decode(&changes); err != nil || len(changes) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid patch"})
		return
	}
	for k, v := range changes {
		if _, isString := v.(string); !patchable[k] || !isString {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "field " + k + " cannot be changed"})
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[chi.URLParam(r, "id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	for k, v := range changes {
		val := v.(string)
		switch k {
		case "full_name":
			rec.FullName = val
		case "national_id":
			rec.NationalID = val
		case "email":
			rec.Email = val
		case "phone":
			rec.Phone = val
		}
	}
	rec.UpdatedAt = time.Now().UTC()
	w.WriteHeader(http.StatusNoContent)
}

func (s *store) search(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
	out := []record{}
	s.mu.RLock()
	for _, rec := range s.records {
		if q == "" {
			continue
		}
		if strings.Contains(strings.ToLower(rec.FullName), q) ||
			strings.Contains(strings.ToLower(rec.Email), q) ||
			rec.NationalID == q || rec.Phone == q {
			out = append(out, *rec)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	writeJSON(w, http.StatusOK, map[string]any{"records": out})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
