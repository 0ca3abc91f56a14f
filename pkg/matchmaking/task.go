// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package matchmaking

import (
	"github.com/AccelByte/extend-session-orchestrator/pkg/asynctask"
	"github.com/AccelByte/extend-session-orchestrator/pkg/envelope"
	"github.com/AccelByte/extend-session-orchestrator/pkg/models"
)

// ticketTaskSpec describes one remote matchmaking operation: run executes
// on a background goroutine, finalize and delegates run back on the
// consumer goroutine.
type ticketTaskSpec struct {
	name        string
	sessionName string
	ticketID    string
	run         func(tt *ticketTask, scope *envelope.Scope)
	finalize    func(tt *ticketTask, scope *envelope.Scope)
	delegates   func(tt *ticketTask)
}

type ticketTask struct {
	asynctask.State
	spec  ticketTaskSpec
	scope *envelope.Scope

	// Background-to-consumer payload slots, published before the
	// completion flag.
	doc      *models.SessionDocument
	ticketID string
}

func newTicketTask(spec ticketTaskSpec) *ticketTask {
	return &ticketTask{spec: spec}
}

func (t *ticketTask) Initialize(scope *envelope.Scope) {
	t.scope = scope
	taskScope := scope.NewChildScope(t.spec.name)
	if t.spec.sessionName != "" {
		taskScope.SetAttributes(envelope.SessionNameTag, t.spec.sessionName)
	}
	if t.spec.ticketID != "" {
		taskScope.SetAttributes(envelope.TicketIdTag, t.spec.ticketID)
	}

	go func() {
		defer taskScope.Finish()
		t.spec.run(t, taskScope)
	}()
}

func (t *ticketTask) Finalize() {
	if t.spec.finalize != nil {
		t.spec.finalize(t, t.scope)
	}
}

func (t *ticketTask) TriggerDelegates() {
	if t.spec.delegates != nil {
		t.spec.delegates(t)
	}
}
