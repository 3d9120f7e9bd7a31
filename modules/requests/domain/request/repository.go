package request

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrRequestNotFound is returned by lookups and updates for unknown ids.
	ErrRequestNotFound = errors.New("workspace request not found")
	// ErrDuplicateRequest is returned by the file backend when a request id
	// already exists. The postgres backend treats re-insertion as a no-op.
	ErrDuplicateRequest = errors.New("workspace request id already exists")
	// ErrLockHeld is returned when the execution lock is held by another
	// run and has not expired.
	ErrLockHeld = errors.New("execution lock is already held")
)

// UpdateFn is a pure transformation from the current record to its next
// state. The store applies it atomically; callers must not rely on side
// effects inside the function.
type UpdateFn func(current WorkspaceRequest) WorkspaceRequest

// Store is the persistence seam shared by the file and postgres backends,
// selected at startup by DATA_STORE.
type Store interface {
	ListRequests(ctx context.Context) ([]*WorkspaceRequest, error)
	ListAuditEvents(ctx context.Context) ([]*AuditEvent, error)
	GetRequestByID(ctx context.Context, id uuid.UUID) (*WorkspaceRequest, error)
	CreateRequest(ctx context.Context, req *WorkspaceRequest) (*WorkspaceRequest, error)
	UpdateRequestByID(ctx context.Context, id uuid.UUID, update UpdateFn) (*WorkspaceRequest, error)
	DeleteRequestByID(ctx context.Context, id uuid.UUID) (*WorkspaceRequest, error)
	// AppendAuditEvent assigns the event id and creation time, persists the
	// event and returns it.
	AppendAuditEvent(ctx context.Context, event *AuditEvent) (*AuditEvent, error)
	// WithExecutionLock acquires the global execution lock, runs task and
	// releases the lock on every exit path. It fails with ErrLockHeld,
	// without running task, when the lock is held and not expired.
	WithExecutionLock(ctx context.Context, task func(ctx context.Context) error) error
}
