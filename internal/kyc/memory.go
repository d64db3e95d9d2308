package kyc

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
)

// InMemory is a Records implementation for tests and single-process
// deployments without a data subsystem.
type InMemory struct {
	mu      sync.RWMutex
	records map[id.KycRecordID]*Record
	patches map[id.KycRecordID][]Patch
}

func NewInMemory() *InMemory {
	return &InMemory{
		records: make(map[id.KycRecordID]*Record),
		patches: make(map[id.KycRecordID][]Patch),
	}
}

// Put adds or replaces a record.
func (m *InMemory) Put(rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := rec
	m.records[rec.ID] = &cp
}

func (m *InMemory) GetKycRecord(_ context.Context, recordID id.KycRecordID) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[recordID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "kyc record not found")
	}
	cp := *rec
	return &cp, nil
}

// ApplyPatch records the patch and applies the well-known identity fields.
func (m *InMemory) ApplyPatch(_ context.Context, recordID id.KycRecordID, patch Patch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recordID]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "kyc record not found")
	}
	for k, v := range patch {
		s, _ := v.(string)
		switch k {
		case "full_name":
			rec.FullName = s
		case "national_id":
			rec.NationalID = s
		case "email":
			rec.Email = s
		case "phone":
			rec.Phone = s
		}
	}
	rec.UpdatedAt = time.Now()
	m.patches[recordID] = append(m.patches[recordID], patch)
	return nil
}

// Patches returns the patches applied to a record, oldest first.
func (m *InMemory) Patches(recordID id.KycRecordID) []Patch {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Patch(nil), m.patches[recordID]...)
}

// SearchRecords matches name, national ID, email or phone case-insensitively.
func (m *InMemory) SearchRecords(_ context.Context, query string) ([]Record, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, rec := range m.records {
		if q == "" || matches(rec, q) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func matches(rec *Record, q string) bool {
	for _, field := range []string{rec.FullName, rec.NationalID, rec.Email, rec.Phone} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}
