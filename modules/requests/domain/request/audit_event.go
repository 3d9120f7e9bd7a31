package request

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions recorded by the workflow. The column is free-form text;
// these are the tags the engine itself writes.
const (
	ActionCreateRequest = "create_request"
	ActionSubmitRequest = "submit_request"
	ActionApprove       = "approve"
	ActionReject        = "reject"
	ActionExecute       = "execute"
	ActionDryRunExecute = "dry_run_execute"
	ActionExecuteError  = "execute_error"
	ActionRollbackMark  = "rollback_mark"
	ActionDeleteRequest = "delete_request"
	ActionNotifySummary = "notify_summary"
)

// AuditEvent is an immutable record of one workflow transition. Events are
// append-only; nothing in this codebase updates or deletes them.
type AuditEvent struct {
	ID        uuid.UUID      `json:"id"`
	RequestID uuid.UUID      `json:"request_id"`
	BatchID   string         `json:"batch_id,omitempty"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	Before    map[string]any `json:"before,omitempty"`
	After     map[string]any `json:"after,omitempty"`
	Message   string         `json:"message,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
