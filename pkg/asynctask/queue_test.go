// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package asynctask

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AccelByte/extend-session-orchestrator/pkg/envelope"
	"github.com/AccelByte/extend-session-orchestrator/pkg/metrics"
)

type scriptedTask struct {
	State

	initCount int
	finalized bool
	delegated bool

	onDelegates func()
}

func (t *scriptedTask) Initialize(*envelope.Scope) {
	t.initCount++
}

func (t *scriptedTask) Finalize() {
	t.finalized = true
}

func (t *scriptedTask) TriggerDelegates() {
	t.delegated = true
	if t.onDelegates != nil {
		t.onDelegates()
	}
}

func newTestQueue() (*Queue, *envelope.Scope) {
	queue := NewQueue(metrics.NewMetrics(prometheus.NewRegistry()))
	scope := envelope.NewRootScope(context.Background(), "test", "")

	return queue, scope
}

func TestSerialTasksStartOneAtATime(t *testing.T) {
	t.Parallel()
	queue, scope := newTestQueue()

	first := &scriptedTask{}
	second := &scriptedTask{}
	queue.EnqueueSerial(first)
	queue.EnqueueSerial(second)

	queue.Tick(scope)
	require.Equal(t, 1, first.initCount)
	assert.Equal(t, 0, second.initCount, "second serial task must wait for the first to complete")

	queue.Tick(scope)
	assert.Equal(t, 1, first.initCount, "tasks initialize exactly once")
	assert.Equal(t, 0, second.initCount)

	first.MarkSucceeded()
	queue.Tick(scope)
	assert.True(t, first.finalized)
	assert.True(t, first.delegated)
	assert.Equal(t, 1, second.initCount, "second serial task starts on the tick the first finalizes")
}

func TestSerialTaskCompletionOrder(t *testing.T) {
	t.Parallel()
	queue, scope := newTestQueue()

	var order []string
	first := &scriptedTask{onDelegates: func() { order = append(order, "first") }}
	second := &scriptedTask{onDelegates: func() { order = append(order, "second") }}
	queue.EnqueueSerial(first)
	queue.EnqueueSerial(second)

	// Both complete before the tick; the drain still runs them in order.
	first.MarkSucceeded()
	second.MarkSucceeded()
	queue.Tick(scope)

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestSerialTaskFailureStillAdvancesTheLane(t *testing.T) {
	t.Parallel()
	queue, scope := newTestQueue()

	failing := &scriptedTask{}
	next := &scriptedTask{}
	queue.EnqueueSerial(failing)
	queue.EnqueueSerial(next)

	queue.Tick(scope)
	failing.MarkFailed()
	queue.Tick(scope)

	assert.True(t, failing.finalized, "failed tasks still finalize")
	assert.True(t, failing.delegated, "failed tasks still fire delegates")
	assert.False(t, failing.WasSuccessful())
	assert.Equal(t, 1, next.initCount)
}

func TestParallelTasksStartTogether(t *testing.T) {
	t.Parallel()
	queue, scope := newTestQueue()

	first := &scriptedTask{}
	second := &scriptedTask{}
	queue.EnqueueParallel(first)
	queue.EnqueueParallel(second)

	queue.Tick(scope)
	assert.Equal(t, 1, first.initCount)
	assert.Equal(t, 1, second.initCount)

	second.MarkSucceeded()
	queue.Tick(scope)
	assert.False(t, first.finalized)
	assert.True(t, second.finalized, "parallel tasks finalize independently of enqueue order")

	first.MarkSucceeded()
	queue.Tick(scope)
	assert.True(t, first.finalized)
}

func TestParallelTaskCompletingInsideInitializeFinalizesSameTick(t *testing.T) {
	t.Parallel()
	queue, scope := newTestQueue()

	task := &scriptedTask{}
	task.MarkFailed()
	queue.EnqueueParallel(task)

	queue.Tick(scope)
	assert.True(t, task.finalized)
	assert.True(t, task.delegated)
}

func TestRunOnNextTickRunsExactlyOnce(t *testing.T) {
	t.Parallel()
	queue, scope := newTestQueue()

	calls := 0
	queue.RunOnNextTick(func() { calls++ })

	queue.Tick(scope)
	queue.Tick(scope)

	assert.Equal(t, 1, calls)
}
