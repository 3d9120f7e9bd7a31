package request

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	StatusDraft      = "draft"
	StatusPending    = "pending"
	StatusApproved   = "approved"
	StatusRejected   = "rejected"
	StatusExecuting  = "executing"
	StatusExecuted   = "executed"
	StatusError      = "error"
	StatusRolledBack = "rolled_back"
)

const (
	TypeCreateAccount = "create_account"
	TypeUpdatePhone   = "update_phone"
	TypeResetPassword = "reset_password"
	TypeDeleteAccount = "delete_account"
)

const (
	ModeAutomatic      = "automatic"
	ModeManualApproval = "manual_approval"
)

// Statuses and Types list every legal value in a stable order, used by
// metrics aggregation and by the postgres enum types in migrations.
var (
	Statuses = []string{
		StatusDraft,
		StatusPending,
		StatusApproved,
		StatusRejected,
		StatusExecuting,
		StatusExecuted,
		StatusError,
		StatusRolledBack,
	}
	Types = []string{
		TypeCreateAccount,
		TypeUpdatePhone,
		TypeResetPassword,
		TypeDeleteAccount,
	}
)

func ValidType(t string) bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Payload carries the free-form fields a request type needs. SubjectDisplay
// is derived at creation and kept for listings and exports.
type Payload struct {
	TargetEmail    string `json:"target_email,omitempty"`
	GivenName      string `json:"given_name,omitempty"`
	FamilyName     string `json:"family_name,omitempty"`
	OrgUnitPath    string `json:"org_unit_path,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Reason         string `json:"reason,omitempty"`
	SubjectDisplay string `json:"subject_display,omitempty"`
}

// Subject returns a human-readable handle for the account this payload
// targets: the full name for account creation, the target email otherwise.
func (p Payload) Subject() string {
	name := strings.TrimSpace(p.GivenName + " " + p.FamilyName)
	if name != "" {
		return name
	}
	return p.TargetEmail
}

// WorkspaceRequest is the unit of work: one requested change against the
// Workspace directory, moving through the status state machine.
type WorkspaceRequest struct {
	ID                 uuid.UUID      `json:"id"`
	Type               string         `json:"type"`
	Status             string         `json:"status"`
	OrganizationalUnit string         `json:"organizational_unit"`
	RequestorEmail     string         `json:"requestor_email"`
	RequestorRole      string         `json:"requestor_role"`
	ApprovedBy         string         `json:"approved_by,omitempty"`
	RejectedBy         string         `json:"rejected_by,omitempty"`
	ExecutorEmail      string         `json:"executor_email,omitempty"`
	ExecutionMode      string         `json:"execution_mode"`
	BatchID            string         `json:"batch_id,omitempty"`
	DryRun             bool           `json:"dry_run"`
	Payload            Payload        `json:"payload"`
	Result             map[string]any `json:"result,omitempty"`
	Error              string         `json:"error,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	ExecutedAt         *time.Time     `json:"executed_at,omitempty"`
}

// Executable reports whether the request may enter execution at all.
// Manual-approval requests additionally need StatusApproved.
func (r *WorkspaceRequest) Executable() bool {
	return r.Status == StatusApproved || r.Status == StatusPending
}
