package httpsession

import (
	"net/http"
	"strings"

	"github.com/jciecuador/workspace-console/modules/requests/domain/session"
)

const (
	emailHeader = "X-User-Email"
	roleHeader  = "X-User-Role"
	nameHeader  = "X-User-Name"
)

// HeaderResolver trusts identity headers injected by the authenticating
// reverse proxy in front of this service. The bearer token, when present,
// is carried through as the execution credential.
type HeaderResolver struct{}

var _ session.Resolver = HeaderResolver{}

func (HeaderResolver) Resolve(r *http.Request) (*session.User, error) {
	email := strings.TrimSpace(r.Header.Get(emailHeader))
	if email == "" {
		return nil, nil
	}
	role := strings.TrimSpace(r.Header.Get(roleHeader))
	if role == "" {
		role = session.RoleMember
	}
	token := ""
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		token = strings.TrimPrefix(auth, "Bearer ")
	}
	return &session.User{
		Email:       email,
		Role:        role,
		DisplayName: strings.TrimSpace(r.Header.Get(nameHeader)),
		AccessToken: token,
	}, nil
}
