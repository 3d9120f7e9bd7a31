package services

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/jciecuador/workspace-console/modules/requests/domain/request"
	"github.com/jciecuador/workspace-console/modules/requests/infrastructure/persistence"
	"github.com/jciecuador/workspace-console/pkg/eventbus"
)

type gatewayStub struct {
	findCalls   int
	createCalls int
	aliasCalls  int
	phoneCalls  int
	resetCalls  int
	deleteCalls int

	failWith error
	found    *DirectoryUser
}

func (g *gatewayStub) mutatingCalls() int {
	return g.createCalls + g.aliasCalls + g.phoneCalls + g.resetCalls + g.deleteCalls
}

func (g *gatewayStub) FindUserByEmail(_ context.Context, _, _ string) (*DirectoryUser, error) {
	g.findCalls++
	if g.found == nil {
		return nil, &RemoteError{StatusCode: http.StatusNotFound, Message: "not found"}
	}
	return g.found, nil
}

func (g *gatewayStub) CreateUser(_ context.Context, _ string, in CreateUserInput) (*DirectoryUser, error) {
	g.createCalls++
	if g.failWith != nil {
		return nil, g.failWith
	}
	return &DirectoryUser{Email: in.PrimaryEmail, GivenName: in.GivenName, FamilyName: in.FamilyName}, nil
}

func (g *gatewayStub) GenerateEmailAlias(_ context.Context, _, _, _ string) (string, error) {
	g.aliasCalls++
	if g.failWith != nil {
		return "", g.failWith
	}
	return "jperez@jciecuador.com", nil
}

func (g *gatewayStub) UpdateUserPhone(_ context.Context, _, email, phone string) (*DirectoryUser, error) {
	g.phoneCalls++
	if g.failWith != nil {
		return nil, g.failWith
	}
	return &DirectoryUser{Email: email, RecoveryPhone: phone}, nil
}

func (g *gatewayStub) ResetUserPassword(_ context.Context, _, _ string) (PasswordReset, error) {
	g.resetCalls++
	if g.failWith != nil {
		return PasswordReset{}, g.failWith
	}
	return PasswordReset{TemporaryPassword: "ClaveEnero2026"}, nil
}

func (g *gatewayStub) DeleteUser(_ context.Context, _, _ string) error {
	g.deleteCalls++
	return g.failWith
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func newTestWorkflow(t *testing.T) (*WorkflowService, *persistence.FileStore, *gatewayStub, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "requests.json")
	store := persistence.NewFileStore(path)
	gateway := &gatewayStub{}
	bus := eventbus.NewEventPublisher(testLogger())
	svc := NewWorkflowService(store, gateway, bus, testLogger(), WorkflowOptions{})
	return svc, store, gateway, path
}

func createPhoneRequest(t *testing.T, svc *WorkflowService) *request.WorkspaceRequest {
	t.Helper()
	created, err := svc.CreateRequest(context.Background(), CreateRequestParams{
		Type:           request.TypeUpdatePhone,
		RequestorEmail: "president@jciecuador.com",
		RequestorRole:  "local_president",
		Payload: request.Payload{
			TargetEmail: "target@jciecuador.com",
			Phone:       "0991234567",
			Reason:      "number changed",
		},
	})
	require.NoError(t, err)
	return created
}

func TestCreateRequest_AutomaticTypeStartsPending(t *testing.T) {
	svc, _, _, _ := newTestWorkflow(t)

	created := createPhoneRequest(t, svc)
	require.Equal(t, request.StatusPending, created.Status)
	require.Equal(t, request.ModeAutomatic, created.ExecutionMode)
	require.Equal(t, "target@jciecuador.com", created.Payload.SubjectDisplay)
}

func TestCreateRequest_ManualTypeStartsDraft(t *testing.T) {
	svc, _, _, _ := newTestWorkflow(t)

	created, err := svc.CreateRequest(context.Background(), CreateRequestParams{
		Type:           request.TypeCreateAccount,
		RequestorEmail: "president@jciecuador.com",
		Payload: request.Payload{
			GivenName:  "Juan Carlos",
			FamilyName: "Perez Gomez",
		},
	})
	require.NoError(t, err)
	require.Equal(t, request.StatusDraft, created.Status)
	require.Equal(t, request.ModeManualApproval, created.ExecutionMode)
	require.Equal(t, "Juan Carlos Perez Gomez", created.Payload.SubjectDisplay)
}

func TestCreateRequest_RejectsUnknownType(t *testing.T) {
	svc, _, _, _ := newTestWorkflow(t)

	_, err := svc.CreateRequest(context.Background(), CreateRequestParams{
		Type:           "suspend_account",
		RequestorEmail: "president@jciecuador.com",
	})
	require.True(t, IsCode(err, "REQUEST_INVALID_BODY"))
}

func TestSubmitRequest_OnlyRequestorAndOnlyDraft(t *testing.T) {
	svc, _, _, _ := newTestWorkflow(t)
	ctx := context.Background()

	created, err := svc.CreateRequest(ctx, CreateRequestParams{
		Type:           request.TypeCreateAccount,
		RequestorEmail: "president@jciecuador.com",
		Payload:        request.Payload{GivenName: "Juan Carlos", FamilyName: "Perez Gomez"},
	})
	require.NoError(t, err)

	_, err = svc.SubmitRequest(ctx, created.ID, "someone-else@jciecuador.com")
	require.True(t, IsCode(err, "REQUEST_FORBIDDEN"))

	submitted, err := svc.SubmitRequest(ctx, created.ID, "president@jciecuador.com")
	require.NoError(t, err)
	require.Equal(t, request.StatusPending, submitted.Status)

	_, err = svc.SubmitRequest(ctx, created.ID, "president@jciecuador.com")
	require.True(t, IsCode(err, "REQUEST_INVALID_STATE"))
}

func TestExecuteRequest_UpdatePhoneSucceeds(t *testing.T) {
	svc, store, gateway, _ := newTestWorkflow(t)
	ctx := context.Background()

	created := createPhoneRequest(t, svc)
	executed, err := svc.ExecuteRequest(ctx, created.ID, "token", "admin@jciecuador.com", false)
	require.NoError(t, err)
	require.Equal(t, request.StatusExecuted, executed.Status)
	require.Equal(t, 1, gateway.phoneCalls)
	require.NotNil(t, executed.ExecutedAt)
	require.NotEmpty(t, executed.BatchID)
	require.Equal(t, "admin@jciecuador.com", executed.ExecutorEmail)

	events, err := store.ListAuditEvents(ctx)
	require.NoError(t, err)
	var actions []string
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	require.Contains(t, actions, request.ActionExecute)
}

func TestExecuteRequest_SecondExecutionRejected(t *testing.T) {
	svc, _, _, _ := newTestWorkflow(t)
	ctx := context.Background()

	created := createPhoneRequest(t, svc)
	_, err := svc.ExecuteRequest(ctx, created.ID, "token", "admin@jciecuador.com", false)
	require.NoError(t, err)

	_, err = svc.ExecuteRequest(ctx, created.ID, "token", "admin@jciecuador.com", false)
	require.True(t, IsCode(err, "REQUEST_INVALID_STATE"))
}

func TestExecuteRequest_ManualWithoutApprovalRefused(t *testing.T) {
	svc, _, gateway, _ := newTestWorkflow(t)
	ctx := context.Background()

	created, err := svc.CreateRequest(ctx, CreateRequestParams{
		Type:           request.TypeCreateAccount,
		RequestorEmail: "president@jciecuador.com",
		Payload:        request.Payload{GivenName: "Juan Carlos", FamilyName: "Perez Gomez"},
	})
	require.NoError(t, err)
	_, err = svc.SubmitRequest(ctx, created.ID, "president@jciecuador.com")
	require.NoError(t, err)

	_, err = svc.ExecuteRequest(ctx, created.ID, "token", "admin@jciecuador.com", false)
	require.True(t, IsCode(err, "APPROVAL_REQUIRED"))
	require.Zero(t, gateway.mutatingCalls())
}

func TestExecuteRequest_LockHeldRefused(t *testing.T) {
	svc, _, _, path := newTestWorkflow(t)
	ctx := context.Background()

	created := createPhoneRequest(t, svc)

	lockPath := path + ".lock"
	require.NoError(t, os.WriteFile(lockPath, []byte("held"), 0o600))
	defer func() { _ = os.Remove(lockPath) }()

	_, err := svc.ExecuteRequest(ctx, created.ID, "token", "admin@jciecuador.com", false)
	require.True(t, IsCode(err, "EXECUTION_LOCK_HELD"))

	unchanged, err := svc.GetRequest(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, request.StatusPending, unchanged.Status)
}

func TestExecuteRequest_DryRunSkipsGatewayMutations(t *testing.T) {
	svc, _, gateway, _ := newTestWorkflow(t)
	ctx := context.Background()

	created := createPhoneRequest(t, svc)
	executed, err := svc.ExecuteRequest(ctx, created.ID, "token", "admin@jciecuador.com", true)
	require.NoError(t, err)
	require.Equal(t, request.StatusExecuted, executed.Status)
	require.True(t, executed.DryRun)
	require.Equal(t, true, executed.Result["simulated"])
	require.Equal(t, request.TypeUpdatePhone, executed.Result["action"])
	require.Zero(t, gateway.mutatingCalls())
}

func TestExecuteRequest_GatewayFailureMarksError(t *testing.T) {
	svc, store, gateway, _ := newTestWorkflow(t)
	ctx := context.Background()
	gateway.failWith = &RemoteError{StatusCode: 503, Message: "backend unavailable"}

	created := createPhoneRequest(t, svc)
	failed, err := svc.ExecuteRequest(ctx, created.ID, "token", "admin@jciecuador.com", false)
	require.NoError(t, err)
	require.Equal(t, request.StatusError, failed.Status)
	require.Contains(t, failed.Error, "backend unavailable")

	events, err := store.ListAuditEvents(ctx)
	require.NoError(t, err)
	var sawError bool
	for _, e := range events {
		if e.Action == request.ActionExecuteError {
			sawError = true
		}
	}
	require.True(t, sawError)
}

func TestExecuteRequest_SingleTokenNamesViolatePolicy(t *testing.T) {
	svc, _, gateway, _ := newTestWorkflow(t)
	ctx := context.Background()

	created, err := svc.CreateRequest(ctx, CreateRequestParams{
		Type:           request.TypeCreateAccount,
		RequestorEmail: "president@jciecuador.com",
		Payload:        request.Payload{GivenName: "Juan", FamilyName: "Perez"},
	})
	require.NoError(t, err)
	_, err = svc.SubmitRequest(ctx, created.ID, "president@jciecuador.com")
	require.NoError(t, err)
	approved, err := svc.ApproveRequest(ctx, created.ID, "admin@jciecuador.com", "token")
	require.NoError(t, err)

	// Approval triggers execution, which lands in error with the policy message.
	require.Equal(t, request.StatusError, approved.Status)
	require.Contains(t, approved.Error, "2 given names")
	require.Zero(t, gateway.createCalls)
}

func TestApproveRequest_ExecutesImmediately(t *testing.T) {
	svc, _, gateway, _ := newTestWorkflow(t)
	ctx := context.Background()

	created, err := svc.CreateRequest(ctx, CreateRequestParams{
		Type:           request.TypeCreateAccount,
		RequestorEmail: "president@jciecuador.com",
		Payload:        request.Payload{GivenName: "Juan Carlos", FamilyName: "Perez Gomez"},
	})
	require.NoError(t, err)
	_, err = svc.SubmitRequest(ctx, created.ID, "president@jciecuador.com")
	require.NoError(t, err)

	result, err := svc.ApproveRequest(ctx, created.ID, "admin@jciecuador.com", "token")
	require.NoError(t, err)
	require.Equal(t, request.StatusExecuted, result.Status)
	require.Equal(t, "admin@jciecuador.com", result.ApprovedBy)
	require.Equal(t, 1, gateway.aliasCalls)
	require.Equal(t, 1, gateway.createCalls)
}

func TestApproveRequest_OnlyPending(t *testing.T) {
	svc, _, _, _ := newTestWorkflow(t)
	ctx := context.Background()

	created := createPhoneRequest(t, svc)
	_, err := svc.ExecuteRequest(ctx, created.ID, "token", "admin@jciecuador.com", false)
	require.NoError(t, err)

	_, err = svc.ApproveRequest(ctx, created.ID, "admin@jciecuador.com", "token")
	require.True(t, IsCode(err, "REQUEST_INVALID_STATE"))
}

func TestRejectRequest_StoresReason(t *testing.T) {
	svc, _, _, _ := newTestWorkflow(t)
	ctx := context.Background()

	created := createPhoneRequest(t, svc)
	rejected, err := svc.RejectRequest(ctx, created.ID, "admin@jciecuador.com", "duplicate of an earlier request")
	require.NoError(t, err)
	require.Equal(t, request.StatusRejected, rejected.Status)
	require.Equal(t, "admin@jciecuador.com", rejected.RejectedBy)
	require.Equal(t, "duplicate of an earlier request", rejected.Error)

	_, err = svc.RejectRequest(ctx, created.ID, "admin@jciecuador.com", "again")
	require.True(t, IsCode(err, "REQUEST_INVALID_STATE"))
}

func TestProcessPendingBatch_SharedBatchID(t *testing.T) {
	svc, _, _, _ := newTestWorkflow(t)
	ctx := context.Background()

	for range 3 {
		createPhoneRequest(t, svc)
	}

	result, err := svc.ProcessPendingBatch(ctx, "token", "admin@jciecuador.com", false)
	require.NoError(t, err)
	require.Equal(t, 3, result.Total)
	for _, item := range result.Requests {
		require.Equal(t, request.StatusExecuted, item.Status)
		require.Equal(t, result.BatchID, item.BatchID)
	}
}

func TestProcessPendingBatch_SkipsUnapprovedManual(t *testing.T) {
	svc, _, gateway, _ := newTestWorkflow(t)
	ctx := context.Background()

	created, err := svc.CreateRequest(ctx, CreateRequestParams{
		Type:           request.TypeDeleteAccount,
		RequestorEmail: "president@jciecuador.com",
		Payload:        request.Payload{TargetEmail: "target@jciecuador.com"},
	})
	require.NoError(t, err)
	_, err = svc.SubmitRequest(ctx, created.ID, "president@jciecuador.com")
	require.NoError(t, err)

	result, err := svc.ProcessPendingBatch(ctx, "token", "admin@jciecuador.com", false)
	require.NoError(t, err)
	require.Equal(t, 0, result.Total)
	require.Zero(t, gateway.deleteCalls)
}

func TestRollbackBatch_MarksExecutedOnly(t *testing.T) {
	svc, store, gateway, _ := newTestWorkflow(t)
	ctx := context.Background()

	for range 2 {
		createPhoneRequest(t, svc)
	}
	batch, err := svc.ProcessPendingBatch(ctx, "token", "admin@jciecuador.com", false)
	require.NoError(t, err)
	require.Equal(t, 2, batch.Total)

	callsBefore := gateway.mutatingCalls()
	rolled, err := svc.RollbackBatch(ctx, batch.BatchID, "admin@jciecuador.com")
	require.NoError(t, err)
	require.Equal(t, 2, rolled.Total)
	for _, item := range rolled.Requests {
		require.Equal(t, request.StatusRolledBack, item.Status)
	}
	require.Equal(t, callsBefore, gateway.mutatingCalls())

	events, err := store.ListAuditEvents(ctx)
	require.NoError(t, err)
	var marks int
	for _, e := range events {
		if e.Action == request.ActionRollbackMark {
			marks++
		}
	}
	require.Equal(t, 2, marks)
}

func TestDeleteRequest_RemovesAndAudits(t *testing.T) {
	svc, store, _, _ := newTestWorkflow(t)
	ctx := context.Background()

	created := createPhoneRequest(t, svc)
	_, err := svc.ExecuteRequest(ctx, created.ID, "token", "admin@jciecuador.com", false)
	require.NoError(t, err)

	deleted, err := svc.DeleteRequest(ctx, created.ID, "admin@jciecuador.com")
	require.NoError(t, err)
	require.Equal(t, created.ID, deleted.ID)

	_, err = svc.GetRequest(ctx, created.ID)
	require.True(t, IsCode(err, "REQUEST_NOT_FOUND"))

	// The trail is append-only: the request's earlier events outlive the
	// request record, and the deletion itself lands on the trail.
	events, err := store.ListAuditEvents(ctx)
	require.NoError(t, err)
	byAction := make(map[string]int)
	for _, e := range events {
		if e.RequestID == created.ID {
			byAction[e.Action]++
		}
	}
	require.Equal(t, 1, byAction[request.ActionCreateRequest])
	require.Equal(t, 1, byAction[request.ActionExecute])
	require.Equal(t, 1, byAction[request.ActionDeleteRequest])
}
