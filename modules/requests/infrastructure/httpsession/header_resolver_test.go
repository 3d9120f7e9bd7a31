package httpsession

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jciecuador/workspace-console/modules/requests/domain/session"
)

func TestHeaderResolver_ResolvesIdentity(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/requests", nil)
	r.Header.Set("X-User-Email", "president@jciecuador.com")
	r.Header.Set("X-User-Role", session.RoleLocalPresident)
	r.Header.Set("X-User-Name", "Juan Perez")
	r.Header.Set("Authorization", "Bearer token-123")

	user, err := HeaderResolver{}.Resolve(r)
	require.NoError(t, err)
	require.NotNil(t, user)
	require.Equal(t, "president@jciecuador.com", user.Email)
	require.Equal(t, session.RoleLocalPresident, user.Role)
	require.Equal(t, "Juan Perez", user.DisplayName)
	require.Equal(t, "token-123", user.AccessToken)
}

func TestHeaderResolver_NoEmailMeansNoSession(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/requests", nil)

	user, err := HeaderResolver{}.Resolve(r)
	require.NoError(t, err)
	require.Nil(t, user)
}

func TestHeaderResolver_MissingRoleDefaultsToMember(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/requests", nil)
	r.Header.Set("X-User-Email", "someone@jciecuador.com")

	user, err := HeaderResolver{}.Resolve(r)
	require.NoError(t, err)
	require.Equal(t, session.RoleMember, user.Role)
}
