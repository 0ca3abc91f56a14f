// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package asynctask provides the work queue that serializes asynchronous
// session operations. Background goroutines perform the remote I/O and
// publish completion through an atomic flag; finalization and delegate
// invocation always happen on the single consumer goroutine that calls
// Tick, which is the only place shared session state may be mutated.
package asynctask

import (
	"sync/atomic"

	"github.com/AccelByte/extend-session-orchestrator/pkg/envelope"
)

// Task is one asynchronous operation tracked by the queue.
//
// Initialize kicks off the task's background work and must not block.
// Finalize and TriggerDelegates are invoked exactly once each, in that
// order, on the consumer goroutine after the task reports completion. They
// must not suspend.
type Task interface {
	Initialize(scope *envelope.Scope)
	IsComplete() bool
	WasSuccessful() bool
	Finalize()
	TriggerDelegates()
}

// State is the completion handshake embedded by every task. The background
// goroutine is the single writer; the consumer goroutine observes the
// result through the complete flag, which is the memory-ordering handoff.
type State struct {
	successful atomic.Bool
	complete   atomic.Bool
}

// MarkSucceeded publishes successful completion.
func (s *State) MarkSucceeded() {
	s.successful.Store(true)
	s.complete.Store(true)
}

// MarkFailed publishes failed completion.
func (s *State) MarkFailed() {
	s.successful.Store(false)
	s.complete.Store(true)
}

func (s *State) IsComplete() bool {
	return s.complete.Load()
}

func (s *State) WasSuccessful() bool {
	return s.successful.Load()
}
