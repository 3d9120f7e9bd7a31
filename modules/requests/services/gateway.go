package services

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoAliasAvailable is returned by GenerateEmailAlias when every candidate
// local part up to the suffix bound is taken.
var ErrNoAliasAvailable = errors.New("no email alias available for the given names")

// RemoteError preserves the upstream status and message of a failed
// directory call. The workflow treats every remote failure identically.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("directory error (status %d): %s", e.StatusCode, e.Message)
}

// DirectoryUser is the normalized account record returned by the gateway.
type DirectoryUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	OrgUnitPath   string `json:"org_unit_path"`
	Phone         string `json:"phone"`
	RecoveryPhone string `json:"recovery_phone"`
	Suspended     bool   `json:"suspended"`
}

// Snapshot renders the user as an audit before/after map.
func (u *DirectoryUser) Snapshot() map[string]any {
	if u == nil {
		return nil
	}
	return map[string]any{
		"email":          u.Email,
		"given_name":     u.GivenName,
		"family_name":    u.FamilyName,
		"org_unit_path":  u.OrgUnitPath,
		"phone":          u.Phone,
		"recovery_phone": u.RecoveryPhone,
		"suspended":      u.Suspended,
	}
}

type CreateUserInput struct {
	GivenName    string
	FamilyName   string
	OrgUnitPath  string
	PrimaryEmail string
	Phone        string
}

type PasswordReset struct {
	TemporaryPassword string
}

// DirectoryGateway is the seam to the remote Workspace directory. The
// credential is the acting session's access token; implementations may
// ignore it when operating with a delegated service account. Every call
// can fail with *RemoteError.
type DirectoryGateway interface {
	FindUserByEmail(ctx context.Context, credential, email string) (*DirectoryUser, error)
	CreateUser(ctx context.Context, credential string, in CreateUserInput) (*DirectoryUser, error)
	GenerateEmailAlias(ctx context.Context, credential, givenName, familyName string) (string, error)
	UpdateUserPhone(ctx context.Context, credential, email, phone string) (*DirectoryUser, error)
	ResetUserPassword(ctx context.Context, credential, email string) (PasswordReset, error)
	DeleteUser(ctx context.Context, credential, email string) error
}
