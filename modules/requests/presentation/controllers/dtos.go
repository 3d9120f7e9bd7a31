package controllers

import "github.com/jciecuador/workspace-console/modules/requests/domain/request"

// APIError is the uniform error body for every API surface.
type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Meta    map[string]string `json:"meta,omitempty"`
}

type createRequestDTO struct {
	Type               string          `json:"type"`
	OrganizationalUnit string          `json:"organizational_unit"`
	Payload            request.Payload `json:"payload"`
	DryRun             bool            `json:"dry_run"`
}

// patchRequestDTO carries a lifecycle action: submit, approve or reject.
type patchRequestDTO struct {
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
}

type processBatchDTO struct {
	DryRun bool `json:"dry_run"`
}

type rollbackBatchDTO struct {
	BatchID string `json:"batch_id"`
}

type requestListResponse struct {
	Total    int                         `json:"total"`
	Requests []*request.WorkspaceRequest `json:"requests"`
}

type auditListResponse struct {
	Total  int                   `json:"total"`
	Events []*request.AuditEvent `json:"events"`
}
