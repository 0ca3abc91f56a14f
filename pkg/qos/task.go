// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package qos

import (
	"github.com/AccelByte/extend-session-orchestrator/pkg/asynctask"
	"github.com/AccelByte/extend-session-orchestrator/pkg/constants"
	"github.com/AccelByte/extend-session-orchestrator/pkg/envelope"
	"github.com/AccelByte/extend-session-orchestrator/pkg/models"
)

type measureTaskSpec struct {
	sessionName string
	run         func(mt *measureTask, scope *envelope.Scope)
	finalize    func(mt *measureTask, scope *envelope.Scope)
	delegates   func(mt *measureTask)
}

// measureTask runs one measure-and-upload batch on a background goroutine
// and reports back on the consumer goroutine.
type measureTask struct {
	asynctask.State
	spec  measureTaskSpec
	scope *envelope.Scope

	// doc is the latest document after the uploads, published before the
	// completion flag.
	doc *models.SessionDocument
}

func newMeasureTask(spec measureTaskSpec) *measureTask {
	return &measureTask{spec: spec}
}

func (t *measureTask) Initialize(scope *envelope.Scope) {
	t.scope = scope
	taskScope := scope.NewChildScope(constants.TaskMeasureQos)
	taskScope.SetAttributes(envelope.SessionNameTag, t.spec.sessionName)

	go func() {
		defer taskScope.Finish()
		t.spec.run(t, taskScope)
	}()
}

func (t *measureTask) Finalize() {
	if t.spec.finalize != nil {
		t.spec.finalize(t, t.scope)
	}
}

func (t *measureTask) TriggerDelegates() {
	if t.spec.delegates != nil {
		t.spec.delegates(t)
	}
}
