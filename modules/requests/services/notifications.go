package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jciecuador/workspace-console/modules/requests/domain/request"
	"github.com/jciecuador/workspace-console/pkg/eventbus"
)

// NotificationService listens for workflow decisions and records a summary
// line on the audit trail so reviewers see the outcome without opening the
// request. It stands in for the outbound mail channel.
type NotificationService struct {
	store request.Store
	log   *logrus.Logger
}

func NewNotificationService(store request.Store, bus eventbus.EventBus, log *logrus.Logger) *NotificationService {
	svc := &NotificationService{store: store, log: log}
	bus.Subscribe(svc.onApproved)
	bus.Subscribe(svc.onRejected)
	return svc
}

func (s *NotificationService) onApproved(event RequestApproved) {
	s.notify(event.Request, fmt.Sprintf(
		"request %s (%s) approved by %s; requestor %s notified",
		event.Request.ID, event.Request.Type, event.Actor, event.Request.RequestorEmail,
	))
}

func (s *NotificationService) onRejected(event RequestRejected) {
	s.notify(event.Request, fmt.Sprintf(
		"request %s (%s) rejected by %s: %s; requestor %s notified",
		event.Request.ID, event.Request.Type, event.Actor, event.Reason, event.Request.RequestorEmail,
	))
}

func (s *NotificationService) notify(req *request.WorkspaceRequest, message string) {
	_, err := s.store.AppendAuditEvent(context.Background(), &request.AuditEvent{
		RequestID: req.ID,
		Actor:     "system",
		Action:    request.ActionNotifySummary,
		Message:   message,
	})
	if err != nil && s.log != nil {
		s.log.WithError(err).WithField("request_id", req.ID).Error("failed to record notification summary")
	}
}
