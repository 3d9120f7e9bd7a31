package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jciecuador/workspace-console/modules/requests/domain/request"
)

// ServiceError is the workflow-facing error shape: an HTTP-ish status, a
// stable machine code and a human message, optionally wrapping a cause.
type ServiceError struct {
	Status  int
	Code    string
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

func newServiceError(status int, code, message string, cause error) *ServiceError {
	return &ServiceError{Status: status, Code: code, Message: message, Cause: cause}
}

func errNotFound(cause error) *ServiceError {
	return newServiceError(http.StatusNotFound, "REQUEST_NOT_FOUND", "request not found", cause)
}

func errInvalidState(message string) *ServiceError {
	return newServiceError(http.StatusConflict, "REQUEST_INVALID_STATE", message, nil)
}

func errApprovalRequired() *ServiceError {
	return newServiceError(http.StatusConflict, "APPROVAL_REQUIRED", "request requires prior approval", nil)
}

func errLockHeld(cause error) *ServiceError {
	return newServiceError(http.StatusLocked, "EXECUTION_LOCK_HELD", "an execution is already in progress", cause)
}

func errForbidden(message string) *ServiceError {
	return newServiceError(http.StatusForbidden, "REQUEST_FORBIDDEN", message, nil)
}

func errInvalidBody(message string) *ServiceError {
	return newServiceError(http.StatusBadRequest, "REQUEST_INVALID_BODY", message, nil)
}

func errNamePolicy() *ServiceError {
	return newServiceError(
		http.StatusUnprocessableEntity,
		"NAME_POLICY_VIOLATION",
		"at least 2 given names and 2 family names are required",
		nil,
	)
}

// mapStoreError converts domain sentinel errors into service errors; other
// errors pass through untouched.
func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, request.ErrRequestNotFound):
		return errNotFound(err)
	case errors.Is(err, request.ErrLockHeld):
		return errLockHeld(err)
	case errors.Is(err, request.ErrDuplicateRequest):
		return newServiceError(http.StatusConflict, "REQUEST_DUPLICATE", "request id already exists", err)
	default:
		return err
	}
}

// IsCode reports whether err is a ServiceError with the given code.
func IsCode(err error, code string) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.Code == code
}
