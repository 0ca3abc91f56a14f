// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package session

import (
	"context"
	"time"

	"github.com/AccelByte/extend-session-orchestrator/pkg/asynctask"
	"github.com/AccelByte/extend-session-orchestrator/pkg/constants"
	"github.com/AccelByte/extend-session-orchestrator/pkg/document"
	"github.com/AccelByte/extend-session-orchestrator/pkg/envelope"
	"github.com/AccelByte/extend-session-orchestrator/pkg/metrics"
	"github.com/AccelByte/extend-session-orchestrator/pkg/models"
)

// MutateFunc applies a caller-supplied mutation to an owned copy of the
// document. Returning false means no change is needed and the operation
// succeeds without issuing a write.
type MutateFunc func(doc *models.SessionDocument) bool

// SafeWriteTask is the single conflict-resolution primitive: fetch the
// latest document, apply the mutation, attempt a synchronized write, and on
// OutOfSync reapply the mutation to the server-returned latest document and
// retry, bounded by the retry budget. Every mutation of a remote session
// document goes through this task; nothing writes unconditionally.
type SafeWriteTask struct {
	asynctask.State

	sessionName string
	ref         models.SessionReference
	client      document.Client
	mutate      MutateFunc
	retries     int
	operation   string

	registry *Registry
	metrics  metrics.SessionMetrics

	// result is published before the completion flag and read only after
	// it, on the consumer goroutine.
	result *models.SessionDocument
	// wroteDocument records whether a write was issued at all, for the
	// no-change-needed short circuit.
	wroteDocument bool

	onComplete func(success bool, doc *models.SessionDocument)
}

// NewSafeWriteTask builds a safe write against a pre-resolved document
// reference. The reference must be resolved before the task leaves the
// consumer goroutine, since registry lookups are only safe there.
func NewSafeWriteTask(
	sessionName string,
	ref models.SessionReference,
	client document.Client,
	registry *Registry,
	sessionMetrics metrics.SessionMetrics,
	operation string,
	retries int,
	mutate MutateFunc,
	onComplete func(success bool, doc *models.SessionDocument),
) *SafeWriteTask {
	return &SafeWriteTask{
		sessionName: sessionName,
		ref:         ref,
		client:      client,
		registry:    registry,
		metrics:     sessionMetrics,
		operation:   operation,
		retries:     retries,
		mutate:      mutate,
		onComplete:  onComplete,
	}
}

func (t *SafeWriteTask) Initialize(scope *envelope.Scope) {
	taskScope := scope.NewChildScope(constants.TaskSafeWrite)

	go func() {
		defer taskScope.Finish()
		t.run(taskScope)
	}()
}

func (t *SafeWriteTask) run(scope *envelope.Scope) {
	ctx := scope.Ctx
	log := scope.Log.WithField("session", t.sessionName).WithField("operation", t.operation)

	doc, ok := t.fetchWithRetry(ctx, scope)
	if !ok {
		t.metrics.AddOperationFailure(t.sessionName, t.operation, constants.FailReasonNotFound)
		t.MarkFailed()

		return
	}

	remaining := t.retries
	for {
		if !t.mutate(doc) {
			// Mutator declared no change needed.
			t.result = doc
			t.MarkSucceeded()

			return
		}

		t.metrics.AddSessionWriteAttempt(t.sessionName, t.operation)
		t.wroteDocument = true
		result := t.client.TryWrite(ctx, doc, document.WriteModeSynchronizedUpdate)

		switch result.Outcome {
		case document.OutcomeSucceeded:
			t.result = result.Document
			t.MarkSucceeded()

			return

		case document.OutcomeOutOfSync:
			t.metrics.AddSessionWriteConflict(t.sessionName, t.operation)
			if remaining <= 0 {
				log.Warn("safe write: retry budget exhausted")
				t.metrics.AddOperationFailure(t.sessionName, t.operation, constants.FailReasonOutOfSyncExhausted)
				t.MarkFailed()

				return
			}
			remaining--
			// The conflict response carries the latest document; no
			// extra fetch is needed.
			doc = result.Document

		case document.OutcomeNotFound:
			t.metrics.AddOperationFailure(t.sessionName, t.operation, constants.FailReasonNotFound)
			t.MarkFailed()

			return

		default:
			log.Warn("safe write: remote write failed")
			t.metrics.AddOperationFailure(t.sessionName, t.operation, constants.FailReasonRemoteFatal)
			t.MarkFailed()

			return
		}
	}
}

// fetchWithRetry fetches the current document, retrying NotFound within the
// retry budget: a concurrently removed-then-recreated session can
// transiently 404.
func (t *SafeWriteTask) fetchWithRetry(ctx context.Context, scope *envelope.Scope) (*models.SessionDocument, bool) {
	remaining := t.retries
	for {
		result := t.client.FetchByReference(ctx, t.ref)
		switch result.Outcome {
		case document.OutcomeSucceeded:
			return result.Document, true
		case document.OutcomeNotFound:
			if remaining <= 0 {
				scope.Log.WithField("session", t.sessionName).Warn("safe write: document not found after retries")

				return nil, false
			}
			remaining--
			time.Sleep(constants.NotFoundFetchRetryDelay)
		default:
			return nil, false
		}
	}
}

// Finalize stores the written document as the session's new snapshot. The
// session may have been removed concurrently, which is a recoverable no-op.
func (t *SafeWriteTask) Finalize() {
	if t.WasSuccessful() && t.result != nil {
		t.registry.ApplyDocument(t.sessionName, t.result)
	}
}

func (t *SafeWriteTask) TriggerDelegates() {
	if t.onComplete != nil {
		t.onComplete(t.WasSuccessful(), t.result)
	}
}

// WroteDocument reports whether any write attempt was issued.
func (t *SafeWriteTask) WroteDocument() bool {
	return t.wroteDocument
}
