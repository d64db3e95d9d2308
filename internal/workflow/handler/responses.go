package handler

import (
	"kycflow/internal/workflow/models"
	"kycflow/internal/workflow/service"
)

// WorkflowResponse is returned by every command endpoint.
type WorkflowResponse struct {
	*models.Instance
	PendingRole string `json:"pending_role,omitempty"`
}

func FromInstance(inst *models.Instance) *WorkflowResponse {
	role, _ := inst.PendingRole()
	return &WorkflowResponse{Instance: inst, PendingRole: role}
}

// PendingResponse is the HTTP response for GET /workflows/pending.
type PendingResponse struct {
	Items []models.Summary `json:"items"`
	Count int              `json:"count"`
}

// SearchResponse is the HTTP response for GET /workflows/search.
type SearchResponse struct {
	Items []service.SearchResult `json:"items"`
	Count int                    `json:"count"`
}

func toPendingResponse(items []models.Summary) *PendingResponse {
	if items == nil {
		items = []models.Summary{}
	}
	return &PendingResponse{Items: items, Count: len(items)}
}

func toSearchResponse(items []service.SearchResult) *SearchResponse {
	if items == nil {
		items = []service.SearchResult{}
	}
	return &SearchResponse{Items: items, Count: len(items)}
}
