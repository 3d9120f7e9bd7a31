package directory

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/jciecuador/workspace-console/modules/requests/services"
	"github.com/jciecuador/workspace-console/pkg/configuration"
)

const aliasSuffixLimit = 200

var directoryScopes = []string{
	admin.AdminDirectoryUserScope,
	admin.AdminDirectoryUserReadonlyScope,
	admin.AdminDirectoryOrgunitReadonlyScope,
	admin.AdminDirectoryGroupMemberReadonlyScope,
}

// GoogleDirectory talks to the Admin SDK Directory API through a delegated
// service account. The per-session credential is accepted to satisfy the
// gateway contract but the service account performs every mutation; the
// session credential only proves who asked.
type GoogleDirectory struct {
	svc    *admin.Service
	domain string
}

var _ services.DirectoryGateway = (*GoogleDirectory)(nil)

func NewGoogleDirectory(ctx context.Context, opts configuration.DirectoryOptions) (*GoogleDirectory, error) {
	if !opts.Configured() {
		return nil, errors.New(
			"directory credentials missing: set SERVICE_ACCOUNT_CLIENT_EMAIL, SERVICE_ACCOUNT_PRIVATE_KEY and WORKSPACE_ADMIN_EMAIL",
		)
	}
	cfg := &jwt.Config{
		Email:      opts.ServiceAccountEmail,
		PrivateKey: []byte(strings.ReplaceAll(opts.ServiceAccountKey, `\n`, "\n")),
		Scopes:     directoryScopes,
		Subject:    opts.AdminEmail,
		TokenURL:   google.JWTTokenURL,
	}
	svc, err := admin.NewService(ctx, option.WithTokenSource(cfg.TokenSource(ctx)))
	if err != nil {
		return nil, err
	}
	return &GoogleDirectory{svc: svc, domain: opts.Domain}, nil
}

func mapRemoteError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &services.RemoteError{StatusCode: apiErr.Code, Message: apiErr.Message}
	}
	return &services.RemoteError{StatusCode: 0, Message: err.Error()}
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

func mapUser(user *admin.User) *services.DirectoryUser {
	out := &services.DirectoryUser{
		ID:            user.Id,
		Email:         user.PrimaryEmail,
		OrgUnitPath:   user.OrgUnitPath,
		RecoveryPhone: user.RecoveryPhone,
		Suspended:     user.Suspended,
	}
	if user.Name != nil {
		out.GivenName = user.Name.GivenName
		out.FamilyName = user.Name.FamilyName
	}
	// Phones is schemaless in the generated client.
	if phones, ok := user.Phones.([]any); ok {
		for _, raw := range phones {
			phone, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if phone["type"] == "mobile" {
				if value, ok := phone["value"].(string); ok {
					out.Phone = value
				}
				break
			}
		}
	}
	return out
}

func (g *GoogleDirectory) FindUserByEmail(ctx context.Context, _ string, email string) (*services.DirectoryUser, error) {
	user, err := g.svc.Users.Get(email).Projection("full").Context(ctx).Do()
	if err != nil {
		return nil, mapRemoteError(err)
	}
	return mapUser(user), nil
}

func (g *GoogleDirectory) CreateUser(ctx context.Context, _ string, in services.CreateUserInput) (*services.DirectoryUser, error) {
	phone := SanitizePhoneEcuador(in.Phone)
	newUser := &admin.User{
		PrimaryEmail: strings.ToLower(in.PrimaryEmail),
		Name: &admin.UserName{
			GivenName:  CapitalizeWords(in.GivenName),
			FamilyName: CapitalizeWords(in.FamilyName),
		},
		OrgUnitPath:               in.OrgUnitPath,
		Password:                  TemporaryPassword(time.Now()),
		ChangePasswordAtNextLogin: true,
		RecoveryPhone:             phone,
	}
	if phone != "" {
		newUser.Phones = []admin.UserPhone{{Type: "mobile", Value: phone, Primary: true}}
	}
	created, err := g.svc.Users.Insert(newUser).Context(ctx).Do()
	if err != nil {
		return nil, mapRemoteError(err)
	}
	return mapUser(created), nil
}

// GenerateEmailAlias probes <initial><family>@domain, then numeric suffixes,
// until a free address is found.
func (g *GoogleDirectory) GenerateEmailAlias(ctx context.Context, _ string, givenName, familyName string) (string, error) {
	base := AliasBase(givenName, familyName)
	if base == "" {
		return "", errors.New("cannot build an email address from the given names")
	}
	for suffix := 0; suffix < aliasSuffixLimit; suffix++ {
		localPart := base
		if suffix > 0 {
			localPart += strconv.Itoa(suffix)
		}
		email := localPart + "@" + g.domain
		_, err := g.svc.Users.Get(email).Context(ctx).Do()
		if err == nil {
			continue
		}
		if isNotFound(err) {
			return email, nil
		}
		return "", mapRemoteError(err)
	}
	return "", services.ErrNoAliasAvailable
}

func (g *GoogleDirectory) UpdateUserPhone(ctx context.Context, _ string, email, phone string) (*services.DirectoryUser, error) {
	normalized := SanitizePhoneEcuador(phone)
	updated, err := g.svc.Users.Patch(email, &admin.User{
		RecoveryPhone: normalized,
		Phones:        []admin.UserPhone{{Type: "mobile", Value: normalized, Primary: true}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, mapRemoteError(err)
	}
	return mapUser(updated), nil
}

func (g *GoogleDirectory) ResetUserPassword(ctx context.Context, _ string, email string) (services.PasswordReset, error) {
	password := TemporaryPassword(time.Now())
	_, err := g.svc.Users.Patch(email, &admin.User{
		Password:                  password,
		ChangePasswordAtNextLogin: true,
	}).Context(ctx).Do()
	if err != nil {
		return services.PasswordReset{}, mapRemoteError(err)
	}
	return services.PasswordReset{TemporaryPassword: password}, nil
}

func (g *GoogleDirectory) DeleteUser(ctx context.Context, _ string, email string) error {
	if err := g.svc.Users.Delete(email).Context(ctx).Do(); err != nil {
		return mapRemoteError(err)
	}
	return nil
}
