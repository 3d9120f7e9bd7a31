package services

import "github.com/jciecuador/workspace-console/modules/requests/domain/request"

// Events published on the bus after a durable transition. Handlers must not
// mutate the embedded request.

type RequestCreated struct {
	Request *request.WorkspaceRequest
	Actor   string
}

type RequestApproved struct {
	Request *request.WorkspaceRequest
	Actor   string
}

type RequestRejected struct {
	Request *request.WorkspaceRequest
	Actor   string
	Reason  string
}
