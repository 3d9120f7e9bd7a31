package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jciecuador/workspace-console/modules/requests/domain/request"
)

func TestComputeMetrics_EmptyStore(t *testing.T) {
	svc, _, _, _ := newTestWorkflow(t)

	metrics, err := svc.ComputeMetrics(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, metrics.Total)
	require.Zero(t, metrics.AverageResolutionHours)
	require.Len(t, metrics.ByStatus, len(request.Statuses))
	require.Len(t, metrics.ByType, len(request.Types))
	for status, count := range metrics.ByStatus {
		require.Zero(t, count, "status %s", status)
	}
}

func TestComputeMetrics_CountsAndResolution(t *testing.T) {
	svc, _, _, _ := newTestWorkflow(t)
	ctx := context.Background()

	first := createPhoneRequest(t, svc)
	createPhoneRequest(t, svc)
	_, err := svc.ExecuteRequest(ctx, first.ID, "token", "admin@jciecuador.com", false)
	require.NoError(t, err)

	metrics, err := svc.ComputeMetrics(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, metrics.Total)
	require.Equal(t, 1, metrics.ByStatus[request.StatusExecuted])
	require.Equal(t, 1, metrics.ByStatus[request.StatusPending])
	require.Equal(t, 2, metrics.ByType[request.TypeUpdatePhone])
	// Creation to execution happens within the test run, which rounds to 0.00.
	require.GreaterOrEqual(t, metrics.AverageResolutionHours, 0.0)
}

func TestNotificationService_AppendsSummaryOnDecision(t *testing.T) {
	svc, store, _, _ := newTestWorkflow(t)
	ctx := context.Background()

	// The workflow in newTestWorkflow carries its own bus; wire a fresh pair
	// so the notification handler observes the published events.
	created := createPhoneRequest(t, svc)
	NewNotificationService(store, svc.bus, testLogger())

	_, err := svc.RejectRequest(ctx, created.ID, "admin@jciecuador.com", "not needed")
	require.NoError(t, err)

	events, err := store.ListAuditEvents(ctx)
	require.NoError(t, err)
	var summaries int
	for _, e := range events {
		if e.Action == request.ActionNotifySummary {
			summaries++
			require.Equal(t, "system", e.Actor)
			require.Contains(t, e.Message, "rejected")
		}
	}
	require.Equal(t, 1, summaries)
}
