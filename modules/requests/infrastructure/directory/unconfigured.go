package directory

import (
	"context"
	"net/http"

	"github.com/jciecuador/workspace-console/modules/requests/services"
)

// Unconfigured stands in when no service account is configured. Every call
// fails with a remote error naming the missing variables, so dry runs and
// the rest of the workflow keep working.
type Unconfigured struct{}

var _ services.DirectoryGateway = Unconfigured{}

func unconfiguredError() error {
	return &services.RemoteError{
		StatusCode: http.StatusServiceUnavailable,
		Message:    "directory credentials missing: set SERVICE_ACCOUNT_CLIENT_EMAIL, SERVICE_ACCOUNT_PRIVATE_KEY and WORKSPACE_ADMIN_EMAIL",
	}
}

func (Unconfigured) FindUserByEmail(context.Context, string, string) (*services.DirectoryUser, error) {
	return nil, unconfiguredError()
}

func (Unconfigured) CreateUser(context.Context, string, services.CreateUserInput) (*services.DirectoryUser, error) {
	return nil, unconfiguredError()
}

func (Unconfigured) GenerateEmailAlias(context.Context, string, string, string) (string, error) {
	return "", unconfiguredError()
}

func (Unconfigured) UpdateUserPhone(context.Context, string, string, string) (*services.DirectoryUser, error) {
	return nil, unconfiguredError()
}

func (Unconfigured) ResetUserPassword(context.Context, string, string) (services.PasswordReset, error) {
	return services.PasswordReset{}, unconfiguredError()
}

func (Unconfigured) DeleteUser(context.Context, string, string) error {
	return unconfiguredError()
}
