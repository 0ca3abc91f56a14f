// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package asynctask

import (
	"sync"

	"github.com/AccelByte/extend-session-orchestrator/pkg/envelope"
	"github.com/AccelByte/extend-session-orchestrator/pkg/metrics"
)

const (
	laneSerial   = "serial"
	laneParallel = "parallel"
)

// Queue owns the two lanes of in-flight tasks. EnqueueSerial,
// EnqueueParallel and RunOnNextTick are safe to call from any goroutine;
// Tick must only ever be called from the single consumer goroutine.
type Queue struct {
	mu sync.Mutex

	serial        []Task
	serialStarted bool
	parallel      []Task
	nextTick      []func()

	metrics metrics.SessionMetrics
}

func NewQueue(sessionMetrics metrics.SessionMetrics) *Queue {
	return &Queue{metrics: sessionMetrics}
}

// EnqueueSerial adds a task to the serial lane. Serial tasks start strictly
// one at a time, each only after its predecessor has completed and been
// finalized.
func (q *Queue) EnqueueSerial(task Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.serial = append(q.serial, task)
}

// EnqueueParallel adds a task to the parallel lane; it is started on the
// next tick regardless of other in-flight tasks.
func (q *Queue) EnqueueParallel(task Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.parallel = append(q.parallel, &startedTask{Task: task})
}

// RunOnNextTick schedules fn to run on the consumer goroutine during the
// next Tick. Immediate-failure paths use this so completion delegates still
// fire on the consumer goroutine rather than inline in the caller.
func (q *Queue) RunOnNextTick(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextTick = append(q.nextTick, fn)
}

// Tick drives the queue for one turn of the consumer goroutine: drains
// next-tick callbacks, starts whatever may start, and finalizes every
// newly-completed task.
func (q *Queue) Tick(scope *envelope.Scope) {
	for _, fn := range q.takeNextTick() {
		fn()
	}

	q.tickParallel(scope)
	q.tickSerial(scope)

	q.mu.Lock()
	serialDepth, parallelDepth := len(q.serial), len(q.parallel)
	q.mu.Unlock()
	q.metrics.SetTaskQueueDepth(laneSerial, serialDepth)
	q.metrics.SetTaskQueueDepth(laneParallel, parallelDepth)
}

func (q *Queue) takeNextTick() []func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	pending := q.nextTick
	q.nextTick = nil

	return pending
}

func (q *Queue) tickParallel(scope *envelope.Scope) {
	q.mu.Lock()
	inFlight := make([]Task, len(q.parallel))
	copy(inFlight, q.parallel)
	q.mu.Unlock()

	for _, task := range inFlight {
		wrapped := task.(*startedTask)
		if !wrapped.started {
			wrapped.started = true
			wrapped.Initialize(scope)
		}
	}

	// A second pass picks up tasks that completed synchronously inside
	// Initialize (precondition failures).
	var finished []Task
	q.mu.Lock()
	remaining := q.parallel[:0]
	for _, task := range q.parallel {
		wrapped := task.(*startedTask)
		if wrapped.started && task.IsComplete() {
			finished = append(finished, task)
		} else {
			remaining = append(remaining, task)
		}
	}
	q.parallel = remaining
	q.mu.Unlock()

	for _, task := range finished {
		task.Finalize()
		task.TriggerDelegates()
	}
}

func (q *Queue) tickSerial(scope *envelope.Scope) {
	for {
		q.mu.Lock()
		if len(q.serial) == 0 {
			q.mu.Unlock()

			return
		}
		head := q.serial[0]
		started := q.serialStarted
		q.serialStarted = true
		q.mu.Unlock()

		if !started {
			head.Initialize(scope)
		}

		if !head.IsComplete() {
			return
		}

		head.Finalize()
		head.TriggerDelegates()

		q.mu.Lock()
		q.serial = q.serial[1:]
		q.serialStarted = false
		q.mu.Unlock()
	}
}

// startedTask tracks whether a parallel task's Initialize has run. Only
// the consumer goroutine touches the started flag.
type startedTask struct {
	Task
	started bool
}
