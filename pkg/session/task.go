// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package session

import (
	"github.com/AccelByte/extend-session-orchestrator/pkg/asynctask"
	"github.com/AccelByte/extend-session-orchestrator/pkg/common"
	"github.com/AccelByte/extend-session-orchestrator/pkg/envelope"
	"github.com/AccelByte/extend-session-orchestrator/pkg/models"
)

// remoteTaskSpec describes one remote operation: run executes on a task
// background goroutine, finalize and delegates run back on the consumer
// goroutine once the completion flag is observed.
type remoteTaskSpec struct {
	name        string
	sessionName string
	run         func(rt *remoteTask, scope *envelope.Scope)
	finalize    func(rt *remoteTask, scope *envelope.Scope)
	delegates   func(rt *remoteTask)
}

// remoteTask adapts a spec closure to the queue's Task interface. Operation
// state that must cross from the background goroutine to the consumer
// goroutine is published on the task before the completion flag and read
// only after it.
type remoteTask struct {
	asynctask.State
	spec remoteTaskSpec

	// scope is the queue scope captured at Initialize, reused for the
	// consumer-side phases.
	scope *envelope.Scope

	// Background-to-consumer payload slots.
	doc        *models.SessionDocument
	joinResult models.JoinResultCode
	results    []models.SessionSearchResult
}

func newRemoteTask(spec remoteTaskSpec) *remoteTask {
	return &remoteTask{spec: spec}
}

func (t *remoteTask) Initialize(scope *envelope.Scope) {
	t.scope = scope
	taskScope := scope.NewChildScope(t.spec.name)
	if t.spec.sessionName != "" {
		taskScope.SetAttributes(envelope.SessionNameTag, t.spec.sessionName)
	}

	go func() {
		defer taskScope.Finish()
		t.spec.run(t, taskScope)
	}()
}

func (t *remoteTask) Finalize() {
	if t.spec.finalize != nil {
		t.spec.finalize(t, t.scope)
	}
}

func (t *remoteTask) TriggerDelegates() {
	if t.spec.delegates != nil {
		t.spec.delegates(t)
	}
}

// localTask completes synchronously inside Initialize; it exists so purely
// local steps can still sequence behind remote work on the serial lane.
type localTask struct {
	asynctask.State
	finalize  func()
	delegates func()
}

func newLocalTask(finalize, delegates func()) *localTask {
	t := &localTask{finalize: finalize, delegates: delegates}
	t.MarkSucceeded()

	return t
}

func (t *localTask) Initialize(*envelope.Scope) {}

func (t *localTask) Finalize() {
	if t.finalize != nil {
		t.finalize()
	}
}

func (t *localTask) TriggerDelegates() {
	if t.delegates != nil {
		t.delegates()
	}
}

func newRoundID() string {
	return common.GenerateUUID()
}
