package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/jciecuador/workspace-console/modules/requests/domain/session"
	"github.com/jciecuador/workspace-console/modules/requests/services"
	"github.com/jciecuador/workspace-console/pkg/configuration"
)

func ensureRequestID(r *http.Request) string {
	conf := configuration.Use()
	v := strings.TrimSpace(r.Header.Get(conf.RequestIDHeader))
	if v != "" {
		return v
	}
	v = uuid.NewString()
	r.Header.Set(conf.RequestIDHeader, v)
	return v
}

func decodeJSON(body io.ReadCloser, out any) error {
	defer func() { _ = body.Close() }()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func writeJSON[T any](w http.ResponseWriter, status int, payload T) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeAPIError(w http.ResponseWriter, status int, requestID, code, message string) {
	meta := map[string]string{}
	if requestID != "" {
		meta["request_id"] = requestID
	}
	writeJSON(w, status, APIError{
		Code:    code,
		Message: message,
		Meta:    meta,
	})
}

func writeServiceError(w http.ResponseWriter, requestID string, err error) {
	var svcErr *services.ServiceError
	if errors.As(err, &svcErr) {
		writeAPIError(w, svcErr.Status, requestID, svcErr.Code, svcErr.Message)
		return
	}
	writeAPIError(w, http.StatusInternalServerError, requestID, "REQUEST_INTERNAL", err.Error())
}

// requireSession resolves the caller or writes a 401. The bool reports
// whether the handler may continue.
func requireSession(w http.ResponseWriter, r *http.Request, resolver session.Resolver, requestID string) (*session.User, bool) {
	user, err := resolver.Resolve(r)
	if err != nil || user == nil {
		writeAPIError(w, http.StatusUnauthorized, requestID, "REQUEST_NO_SESSION", "authentication required")
		return nil, false
	}
	return user, true
}

// requireRole enforces the rank gate, writing a 403 when the caller sits
// below the required role.
func requireRole(w http.ResponseWriter, user *session.User, required, requestID string) bool {
	if session.AtLeast(user.Role, required) {
		return true
	}
	writeAPIError(w, http.StatusForbidden, requestID, "REQUEST_FORBIDDEN", "insufficient role")
	return false
}
