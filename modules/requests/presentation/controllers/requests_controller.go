package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/jciecuador/workspace-console/modules/requests/domain/request"
	"github.com/jciecuador/workspace-console/modules/requests/domain/session"
	"github.com/jciecuador/workspace-console/modules/requests/services"
)

// RequestsAPIController exposes the request workflow over HTTP. Handlers
// stay thin: parse, gate on role, delegate to the workflow service.
type RequestsAPIController struct {
	workflow  *services.WorkflowService
	resolver  session.Resolver
	apiPrefix string
}

func NewRequestsAPIController(workflow *services.WorkflowService, resolver session.Resolver) *RequestsAPIController {
	return &RequestsAPIController{
		workflow:  workflow,
		resolver:  resolver,
		apiPrefix: "/api/requests",
	}
}

func (c *RequestsAPIController) Key() string {
	return c.apiPrefix
}

func (c *RequestsAPIController) Register(r *mux.Router) {
	api := r.PathPrefix(c.apiPrefix).Subrouter()

	api.HandleFunc("", c.ListRequests).Methods(http.MethodGet)
	api.HandleFunc("", c.CreateRequest).Methods(http.MethodPost)
	api.HandleFunc("/process", c.ProcessBatch).Methods(http.MethodPost)
	api.HandleFunc("/rollback", c.RollbackBatch).Methods(http.MethodPost)
	api.HandleFunc("/metrics", c.Metrics).Methods(http.MethodGet)
	api.HandleFunc("/audit", c.AuditTrail).Methods(http.MethodGet)
	api.HandleFunc("/{id}", c.GetRequest).Methods(http.MethodGet)
	api.HandleFunc("/{id}", c.PatchRequest).Methods(http.MethodPatch)
	api.HandleFunc("/{id}", c.DeleteRequest).Methods(http.MethodDelete)
}

// canSee applies the listing visibility rule: local presidents see their
// own requests only, national officers and administrators see everything.
func canSee(user *session.User, item *request.WorkspaceRequest) bool {
	if session.AtLeast(user.Role, session.RoleNationalOffice) {
		return true
	}
	return item.RequestorEmail == user.Email
}

func (c *RequestsAPIController) ListRequests(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	user, ok := requireSession(w, r, c.resolver, requestID)
	if !ok {
		return
	}
	if !requireRole(w, user, session.RoleLocalPresident, requestID) {
		return
	}

	all, err := c.workflow.ListRequests(r.Context())
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	visible := make([]*request.WorkspaceRequest, 0, len(all))
	for _, item := range all {
		if canSee(user, item) {
			visible = append(visible, item)
		}
	}
	writeJSON(w, http.StatusOK, requestListResponse{Total: len(visible), Requests: visible})
}

func (c *RequestsAPIController) CreateRequest(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	user, ok := requireSession(w, r, c.resolver, requestID)
	if !ok {
		return
	}
	if !requireRole(w, user, session.RoleLocalPresident, requestID) {
		return
	}

	var dto createRequestDTO
	if err := decodeJSON(r.Body, &dto); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "REQUEST_INVALID_BODY", "invalid request body")
		return
	}

	created, err := c.workflow.CreateRequest(r.Context(), services.CreateRequestParams{
		Type:               dto.Type,
		OrganizationalUnit: dto.OrganizationalUnit,
		RequestorEmail:     user.Email,
		RequestorRole:      user.Role,
		Payload:            dto.Payload,
		DryRun:             dto.DryRun,
	})
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (c *RequestsAPIController) GetRequest(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	user, ok := requireSession(w, r, c.resolver, requestID)
	if !ok {
		return
	}
	if !requireRole(w, user, session.RoleLocalPresident, requestID) {
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "REQUEST_INVALID_BODY", "invalid request id")
		return
	}

	item, err := c.workflow.GetRequest(r.Context(), id)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	if !canSee(user, item) {
		writeAPIError(w, http.StatusForbidden, requestID, "REQUEST_FORBIDDEN", "not your request")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (c *RequestsAPIController) PatchRequest(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	user, ok := requireSession(w, r, c.resolver, requestID)
	if !ok {
		return
	}
	if !requireRole(w, user, session.RoleLocalPresident, requestID) {
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "REQUEST_INVALID_BODY", "invalid request id")
		return
	}

	var dto patchRequestDTO
	if err := decodeJSON(r.Body, &dto); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "REQUEST_INVALID_BODY", "invalid request body")
		return
	}

	switch dto.Action {
	case "submit":
		updated, err := c.workflow.SubmitRequest(r.Context(), id, user.Email)
		if err != nil {
			writeServiceError(w, requestID, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	case "approve":
		if !requireRole(w, user, session.RoleAdministrator, requestID) {
			return
		}
		updated, err := c.workflow.ApproveRequest(r.Context(), id, user.Email, user.AccessToken)
		if err != nil {
			writeServiceError(w, requestID, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	case "reject":
		if !requireRole(w, user, session.RoleAdministrator, requestID) {
			return
		}
		updated, err := c.workflow.RejectRequest(r.Context(), id, user.Email, dto.Reason)
		if err != nil {
			writeServiceError(w, requestID, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	default:
		writeAPIError(w, http.StatusBadRequest, requestID, "REQUEST_INVALID_BODY", "unsupported action")
	}
}

func (c *RequestsAPIController) DeleteRequest(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	user, ok := requireSession(w, r, c.resolver, requestID)
	if !ok {
		return
	}
	if !requireRole(w, user, session.RoleAdministrator, requestID) {
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "REQUEST_INVALID_BODY", "invalid request id")
		return
	}

	deleted, err := c.workflow.DeleteRequest(r.Context(), id, user.Email)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, deleted)
}

func (c *RequestsAPIController) ProcessBatch(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	user, ok := requireSession(w, r, c.resolver, requestID)
	if !ok {
		return
	}
	if !requireRole(w, user, session.RoleAdministrator, requestID) {
		return
	}

	var dto processBatchDTO
	if r.ContentLength > 0 {
		if err := decodeJSON(r.Body, &dto); err != nil {
			writeAPIError(w, http.StatusBadRequest, requestID, "REQUEST_INVALID_BODY", "invalid request body")
			return
		}
	}

	result, err := c.workflow.ProcessPendingBatch(r.Context(), user.AccessToken, user.Email, dto.DryRun)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (c *RequestsAPIController) RollbackBatch(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	user, ok := requireSession(w, r, c.resolver, requestID)
	if !ok {
		return
	}
	if !requireRole(w, user, session.RoleAdministrator, requestID) {
		return
	}

	var dto rollbackBatchDTO
	if err := decodeJSON(r.Body, &dto); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "REQUEST_INVALID_BODY", "invalid request body")
		return
	}

	result, err := c.workflow.RollbackBatch(r.Context(), dto.BatchID, user.Email)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (c *RequestsAPIController) Metrics(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	user, ok := requireSession(w, r, c.resolver, requestID)
	if !ok {
		return
	}
	if !requireRole(w, user, session.RoleNationalOffice, requestID) {
		return
	}

	metrics, err := c.workflow.ComputeMetrics(r.Context())
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (c *RequestsAPIController) AuditTrail(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	user, ok := requireSession(w, r, c.resolver, requestID)
	if !ok {
		return
	}
	if !requireRole(w, user, session.RoleNationalOffice, requestID) {
		return
	}

	events, err := c.workflow.ListAuditEvents(r.Context())
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, auditListResponse{Total: len(events), Events: events})
}
