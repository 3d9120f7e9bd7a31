package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jciecuador/workspace-console/modules/requests/domain/request"
	"github.com/jciecuador/workspace-console/pkg/eventbus"
)

const DefaultBatchSize = 20

// WorkflowOptions tunes the engine; zero values fall back to the defaults
// matching AUTO_EXECUTE_ACTIONS and REQUEST_BATCH_SIZE.
type WorkflowOptions struct {
	BatchSize        int
	AutoExecuteTypes []string
}

// WorkflowService owns the request state machine: creation, submission,
// approval, rejection, execution (single and batch), rollback marking and
// metrics aggregation. All directory side effects go through the gateway
// under the store's execution lock.
type WorkflowService struct {
	store       request.Store
	gateway     DirectoryGateway
	bus         eventbus.EventBus
	log         *logrus.Logger
	batchSize   int
	autoExecute map[string]bool
}

func NewWorkflowService(
	store request.Store,
	gateway DirectoryGateway,
	bus eventbus.EventBus,
	log *logrus.Logger,
	opts WorkflowOptions,
) *WorkflowService {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	autoTypes := opts.AutoExecuteTypes
	if autoTypes == nil {
		autoTypes = []string{request.TypeUpdatePhone, request.TypeResetPassword}
	}
	auto := make(map[string]bool, len(autoTypes))
	for _, t := range autoTypes {
		auto[t] = true
	}
	return &WorkflowService{
		store:       store,
		gateway:     gateway,
		bus:         bus,
		log:         log,
		batchSize:   batchSize,
		autoExecute: auto,
	}
}

// ResolveExecutionMode fixes the execution mode for a request type. The
// mode never changes after creation.
func (s *WorkflowService) ResolveExecutionMode(requestType string) string {
	if s.autoExecute[requestType] {
		return request.ModeAutomatic
	}
	return request.ModeManualApproval
}

func (s *WorkflowService) audit(ctx context.Context, event *request.AuditEvent) {
	if _, err := s.store.AppendAuditEvent(ctx, event); err != nil && s.log != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"request_id": event.RequestID,
			"action":     event.Action,
		}).Error("failed to append audit event")
	}
}

func (s *WorkflowService) publish(event any) {
	if s.bus != nil {
		s.bus.Publish(event)
	}
}

type CreateRequestParams struct {
	Type               string
	OrganizationalUnit string
	RequestorEmail     string
	RequestorRole      string
	Payload            request.Payload
	DryRun             bool
}

// CreateRequest registers a new change request. Automatic types start in
// pending; manual-approval types start in draft and must be submitted.
func (s *WorkflowService) CreateRequest(ctx context.Context, params CreateRequestParams) (*request.WorkspaceRequest, error) {
	if !request.ValidType(params.Type) {
		return nil, errInvalidBody(fmt.Sprintf("invalid request type %q", params.Type))
	}
	if strings.TrimSpace(params.RequestorEmail) == "" {
		return nil, errInvalidBody("requestor email is required")
	}

	mode := s.ResolveExecutionMode(params.Type)
	status := request.StatusDraft
	if mode == request.ModeAutomatic {
		status = request.StatusPending
	}

	payload := params.Payload
	if payload.Reason == "" {
		payload.Reason = "no reason given"
	}
	payload.SubjectDisplay = payload.Subject()

	orgUnit := params.OrganizationalUnit
	if orgUnit == "" {
		orgUnit = payload.OrgUnitPath
	}

	now := time.Now().UTC()
	created, err := s.store.CreateRequest(ctx, &request.WorkspaceRequest{
		ID:                 uuid.New(),
		Type:               params.Type,
		Status:             status,
		OrganizationalUnit: orgUnit,
		RequestorEmail:     params.RequestorEmail,
		RequestorRole:      params.RequestorRole,
		ExecutionMode:      mode,
		DryRun:             params.DryRun,
		Payload:            payload,
		CreatedAt:          now,
		UpdatedAt:          now,
	})
	if err != nil {
		return nil, mapStoreError(err)
	}

	s.audit(ctx, &request.AuditEvent{
		RequestID: created.ID,
		Actor:     params.RequestorEmail,
		Action:    request.ActionCreateRequest,
		Message:   fmt.Sprintf("request created: %s", created.Type),
	})
	s.publish(RequestCreated{Request: created, Actor: params.RequestorEmail})
	return created, nil
}

// SubmitRequest moves a draft to pending. Only the requestor may submit
// their own request.
func (s *WorkflowService) SubmitRequest(ctx context.Context, id uuid.UUID, actor string) (*request.WorkspaceRequest, error) {
	current, err := s.store.GetRequestByID(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if current.RequestorEmail != actor {
		return nil, errForbidden("only the requestor can submit this request")
	}
	if current.Status != request.StatusDraft {
		return nil, errInvalidState("only draft requests can be submitted")
	}

	updated, err := s.store.UpdateRequestByID(ctx, id, func(cur request.WorkspaceRequest) request.WorkspaceRequest {
		cur.Status = request.StatusPending
		cur.UpdatedAt = time.Now().UTC()
		return cur
	})
	if err != nil {
		return nil, mapStoreError(err)
	}

	s.audit(ctx, &request.AuditEvent{
		RequestID: id,
		Actor:     actor,
		Action:    request.ActionSubmitRequest,
		Message:   "request submitted for review",
	})
	return updated, nil
}

// ApproveRequest moves a pending request to approved and immediately
// attempts execution with the approver's credential. An execution refusal
// (lock held, remote outage already marked) never undoes the approval.
func (s *WorkflowService) ApproveRequest(ctx context.Context, id uuid.UUID, actor, credential string) (*request.WorkspaceRequest, error) {
	current, err := s.store.GetRequestByID(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if current.Status != request.StatusPending {
		return nil, errInvalidState("only pending requests can be approved")
	}

	approved, err := s.store.UpdateRequestByID(ctx, id, func(cur request.WorkspaceRequest) request.WorkspaceRequest {
		cur.Status = request.StatusApproved
		cur.ApprovedBy = actor
		cur.UpdatedAt = time.Now().UTC()
		return cur
	})
	if err != nil {
		return nil, mapStoreError(err)
	}

	s.audit(ctx, &request.AuditEvent{
		RequestID: id,
		Actor:     actor,
		Action:    request.ActionApprove,
		Message:   "request approved",
	})
	s.publish(RequestApproved{Request: approved, Actor: actor})

	executed, err := s.ExecuteRequest(ctx, id, credential, actor, approved.DryRun)
	if err != nil {
		if s.log != nil {
			s.log.WithError(err).WithField("request_id", id).Warn("post-approval execution did not run")
		}
		return approved, nil
	}
	return executed, nil
}

// RejectRequest moves a pending or approved request to rejected, storing
// the reason in the error field.
func (s *WorkflowService) RejectRequest(ctx context.Context, id uuid.UUID, actor, reason string) (*request.WorkspaceRequest, error) {
	current, err := s.store.GetRequestByID(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if current.Status != request.StatusPending && current.Status != request.StatusApproved {
		return nil, errInvalidState("only pending or approved requests can be rejected")
	}
	if reason == "" {
		reason = "no detail given"
	}

	updated, err := s.store.UpdateRequestByID(ctx, id, func(cur request.WorkspaceRequest) request.WorkspaceRequest {
		cur.Status = request.StatusRejected
		cur.RejectedBy = actor
		cur.Error = reason
		cur.UpdatedAt = time.Now().UTC()
		return cur
	})
	if err != nil {
		return nil, mapStoreError(err)
	}

	s.audit(ctx, &request.AuditEvent{
		RequestID: id,
		Actor:     actor,
		Action:    request.ActionReject,
		Message:   reason,
	})
	s.publish(RequestRejected{Request: updated, Actor: actor, Reason: reason})
	return updated, nil
}

// ensureFullNamePolicy enforces the account-creation naming rule: at least
// two space-separated tokens in both the given and the family name.
func ensureFullNamePolicy(givenName, familyName string) error {
	if len(strings.Fields(givenName)) < 2 || len(strings.Fields(familyName)) < 2 {
		return errNamePolicy()
	}
	return nil
}

func newBatchID() string {
	return fmt.Sprintf("batch-%d", time.Now().UnixMilli())
}

// ExecuteRequest runs one request against the directory under the global
// execution lock. Remote failures are crash-forward: the request lands in
// the error status with an execute_error audit event, and the now-error
// record is returned without a hard failure. Validation failures happen
// before any mutation and leave the request untouched.
func (s *WorkflowService) ExecuteRequest(ctx context.Context, id uuid.UUID, credential, actor string, dryRun bool) (*request.WorkspaceRequest, error) {
	req, err := s.store.GetRequestByID(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if !req.Executable() {
		return nil, errInvalidState("only approved or pending requests can be executed")
	}
	if req.ExecutionMode == request.ModeManualApproval && req.Status != request.StatusApproved {
		return nil, errApprovalRequired()
	}

	var final *request.WorkspaceRequest
	err = s.store.WithExecutionLock(ctx, func(ctx context.Context) error {
		final = s.executeLocked(ctx, req, credential, actor, dryRun)
		return nil
	})
	if err != nil {
		mapped := mapStoreError(err)
		if IsCode(mapped, "EXECUTION_LOCK_HELD") {
			recordLockContention("execute")
		}
		return nil, mapped
	}
	return final, nil
}

// executeLocked performs the in-lock portion of ExecuteRequest. It always
// returns the request's final persisted state.
func (s *WorkflowService) executeLocked(ctx context.Context, req *request.WorkspaceRequest, credential, actor string, dryRun bool) *request.WorkspaceRequest {
	// Best-effort pre-state snapshot; a failed lookup never blocks execution.
	var before map[string]any
	if req.Payload.TargetEmail != "" {
		if user, err := s.gateway.FindUserByEmail(ctx, credential, req.Payload.TargetEmail); err == nil {
			before = user.Snapshot()
		}
	}

	marked, err := s.store.UpdateRequestByID(ctx, req.ID, func(cur request.WorkspaceRequest) request.WorkspaceRequest {
		cur.Status = request.StatusExecuting
		cur.ExecutorEmail = actor
		cur.DryRun = dryRun
		cur.UpdatedAt = time.Now().UTC()
		return cur
	})
	if err != nil {
		return req
	}
	req = marked

	result, execErr := s.dispatch(ctx, req, credential, dryRun)
	if execErr != nil {
		message := execErr.Error()
		failed, _ := s.store.UpdateRequestByID(ctx, req.ID, func(cur request.WorkspaceRequest) request.WorkspaceRequest {
			cur.Status = request.StatusError
			cur.Error = message
			cur.UpdatedAt = time.Now().UTC()
			return cur
		})
		s.audit(ctx, &request.AuditEvent{
			RequestID: req.ID,
			Actor:     actor,
			Action:    request.ActionExecuteError,
			Before:    before,
			Message:   message,
		})
		recordExecution(req.Type, "error")
		if failed != nil {
			return failed
		}
		return req
	}

	now := time.Now().UTC()
	executed, err := s.store.UpdateRequestByID(ctx, req.ID, func(cur request.WorkspaceRequest) request.WorkspaceRequest {
		cur.Status = request.StatusExecuted
		cur.Result = result
		cur.Error = ""
		if cur.BatchID == "" {
			cur.BatchID = newBatchID()
		}
		cur.ExecutedAt = &now
		cur.UpdatedAt = now
		return cur
	})
	if err != nil {
		return req
	}

	action := request.ActionExecute
	message := "execution completed"
	outcome := "executed"
	if dryRun {
		action = request.ActionDryRunExecute
		message = "execution simulated"
		outcome = "simulated"
	}
	s.audit(ctx, &request.AuditEvent{
		RequestID: req.ID,
		BatchID:   executed.BatchID,
		Actor:     actor,
		Action:    action,
		Before:    before,
		After:     result,
		Message:   message,
	})
	recordExecution(req.Type, outcome)
	return executed
}

// dispatch performs the type-specific directory mutation, or synthesizes a
// simulated result on dry runs without touching the gateway.
func (s *WorkflowService) dispatch(ctx context.Context, req *request.WorkspaceRequest, credential string, dryRun bool) (map[string]any, error) {
	if dryRun {
		return map[string]any{"simulated": true, "action": req.Type}, nil
	}

	switch req.Type {
	case request.TypeCreateAccount:
		if err := ensureFullNamePolicy(req.Payload.GivenName, req.Payload.FamilyName); err != nil {
			return nil, err
		}
		email := req.Payload.TargetEmail
		if email == "" {
			generated, err := s.gateway.GenerateEmailAlias(ctx, credential, req.Payload.GivenName, req.Payload.FamilyName)
			if err != nil {
				return nil, err
			}
			email = generated
		}
		orgUnit := req.Payload.OrgUnitPath
		if orgUnit == "" {
			orgUnit = req.OrganizationalUnit
		}
		created, err := s.gateway.CreateUser(ctx, credential, CreateUserInput{
			GivenName:    req.Payload.GivenName,
			FamilyName:   req.Payload.FamilyName,
			OrgUnitPath:  orgUnit,
			PrimaryEmail: email,
			Phone:        req.Payload.Phone,
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"created_user":       created.Email,
			"temporary_password": "set by monthly policy",
		}, nil

	case request.TypeUpdatePhone:
		updated, err := s.gateway.UpdateUserPhone(ctx, credential, req.Payload.TargetEmail, req.Payload.Phone)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"updated_user": updated.Email,
			"phone":        updated.RecoveryPhone,
		}, nil

	case request.TypeResetPassword:
		reset, err := s.gateway.ResetUserPassword(ctx, credential, req.Payload.TargetEmail)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"updated_user":       req.Payload.TargetEmail,
			"temporary_password": reset.TemporaryPassword,
		}, nil

	case request.TypeDeleteAccount:
		if err := s.gateway.DeleteUser(ctx, credential, req.Payload.TargetEmail); err != nil {
			return nil, err
		}
		return map[string]any{"deleted_user": req.Payload.TargetEmail}, nil

	default:
		return nil, errInvalidBody(fmt.Sprintf("invalid request type %q", req.Type))
	}
}

// BatchResult reports the outcome of a batch run: the shared batch id and
// every request that reached a terminal state.
type BatchResult struct {
	BatchID  string                      `json:"batch_id"`
	Total    int                         `json:"total"`
	Requests []*request.WorkspaceRequest `json:"requests"`
}

// ProcessPendingBatch sweeps up to the configured batch size of eligible
// requests into one batch and executes them sequentially. Manual-approval
// requests that are not yet approved are skipped, not failed.
func (s *WorkflowService) ProcessPendingBatch(ctx context.Context, credential, actor string, dryRun bool) (*BatchResult, error) {
	all, err := s.store.ListRequests(ctx)
	if err != nil {
		return nil, err
	}

	eligible := make([]*request.WorkspaceRequest, 0, s.batchSize)
	for _, item := range all {
		if item.Status == request.StatusPending ||
			(item.Status == request.StatusApproved && item.ExecutionMode == request.ModeManualApproval) {
			eligible = append(eligible, item)
			if len(eligible) == s.batchSize {
				break
			}
		}
	}

	batchRuns.Inc()
	batchID := newBatchID()
	executed := make([]*request.WorkspaceRequest, 0, len(eligible))
	for _, item := range eligible {
		if item.ExecutionMode == request.ModeManualApproval && item.Status != request.StatusApproved {
			continue
		}
		if _, err := s.store.UpdateRequestByID(ctx, item.ID, func(cur request.WorkspaceRequest) request.WorkspaceRequest {
			cur.BatchID = batchID
			cur.UpdatedAt = time.Now().UTC()
			return cur
		}); err != nil {
			return nil, mapStoreError(err)
		}
		result, err := s.ExecuteRequest(ctx, item.ID, credential, actor, dryRun)
		if err != nil {
			return nil, err
		}
		executed = append(executed, result)
	}

	return &BatchResult{BatchID: batchID, Total: len(executed), Requests: executed}, nil
}

// RollbackBatch marks every executed request of a batch as rolled back. It
// records intent only: the remote directory action is never reversed here
// and must be verified manually.
func (s *WorkflowService) RollbackBatch(ctx context.Context, batchID, actor string) (*BatchResult, error) {
	if batchID == "" {
		return nil, errInvalidBody("batch id is required")
	}
	all, err := s.store.ListRequests(ctx)
	if err != nil {
		return nil, err
	}

	rolledBack := make([]*request.WorkspaceRequest, 0)
	for _, item := range all {
		if item.BatchID != batchID || item.Status != request.StatusExecuted {
			continue
		}
		updated, err := s.store.UpdateRequestByID(ctx, item.ID, func(cur request.WorkspaceRequest) request.WorkspaceRequest {
			cur.Status = request.StatusRolledBack
			cur.UpdatedAt = time.Now().UTC()
			return cur
		})
		if err != nil {
			return nil, mapStoreError(err)
		}
		rolledBack = append(rolledBack, updated)
		s.audit(ctx, &request.AuditEvent{
			RequestID: item.ID,
			BatchID:   batchID,
			Actor:     actor,
			Action:    request.ActionRollbackMark,
			Message:   "marked as rolled back; the remote directory change must be verified manually",
		})
	}

	return &BatchResult{BatchID: batchID, Total: len(rolledBack), Requests: rolledBack}, nil
}

// DeleteRequest removes a request record entirely. Administrative surface
// only; the audit trail keeps the deletion event.
func (s *WorkflowService) DeleteRequest(ctx context.Context, id uuid.UUID, actor string) (*request.WorkspaceRequest, error) {
	deleted, err := s.store.DeleteRequestByID(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	s.audit(ctx, &request.AuditEvent{
		RequestID: id,
		Actor:     actor,
		Action:    request.ActionDeleteRequest,
		Message:   fmt.Sprintf("request deleted: %s", deleted.Type),
	})
	return deleted, nil
}

// ListRequests exposes the store listing to the API layer.
func (s *WorkflowService) ListRequests(ctx context.Context) ([]*request.WorkspaceRequest, error) {
	return s.store.ListRequests(ctx)
}

// ListAuditEvents exposes the audit trail to the API layer.
func (s *WorkflowService) ListAuditEvents(ctx context.Context) ([]*request.AuditEvent, error) {
	return s.store.ListAuditEvents(ctx)
}

// GetRequest loads one request by id.
func (s *WorkflowService) GetRequest(ctx context.Context, id uuid.UUID) (*request.WorkspaceRequest, error) {
	item, err := s.store.GetRequestByID(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return item, nil
}
