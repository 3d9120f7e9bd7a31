package request

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidType(t *testing.T) {
	for _, known := range Types {
		require.True(t, ValidType(known))
	}
	require.False(t, ValidType("suspend_account"))
	require.False(t, ValidType(""))
}

func TestPayloadSubject(t *testing.T) {
	require.Equal(t, "Juan Perez", Payload{GivenName: "Juan", FamilyName: "Perez"}.Subject())
	require.Equal(t, "Perez", Payload{FamilyName: "Perez"}.Subject())
	require.Equal(t, "target@jciecuador.com", Payload{TargetEmail: "target@jciecuador.com"}.Subject())
	require.Equal(t, "", Payload{}.Subject())
}

func TestExecutable(t *testing.T) {
	require.True(t, (&WorkspaceRequest{Status: StatusPending}).Executable())
	require.True(t, (&WorkspaceRequest{Status: StatusApproved}).Executable())
	for _, status := range []string{StatusDraft, StatusRejected, StatusExecuting, StatusExecuted, StatusError, StatusRolledBack} {
		require.False(t, (&WorkspaceRequest{Status: status}).Executable(), "status %s", status)
	}
}
