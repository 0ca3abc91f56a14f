// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package session

import (
	"github.com/AccelByte/extend-session-orchestrator/pkg/constants"
	"github.com/AccelByte/extend-session-orchestrator/pkg/document"
	"github.com/AccelByte/extend-session-orchestrator/pkg/envelope"
	"github.com/AccelByte/extend-session-orchestrator/pkg/models"
)

// DestroySession tears the named session down: unsubscribe from change
// notifications, withdraw any matchmaking ticket, remove every
// locally-signed-in member from the remote document, and finally drop the
// registry entry. A destroy that races the session disappearing remotely
// still succeeds; a destroy while another destroy is in flight fails
// immediately and the in-flight one fires the single completion.
func (c *Controller) DestroySession(name string) error {
	session := c.registry.Get(name)
	if session == nil {
		c.fireDestroyComplete(name, false)

		return ErrSessionDoesNotExist
	}
	if session.State == models.SessionStateDestroying {
		c.fireDestroyComplete(name, false)

		return ErrAlreadyDestroying
	}

	session.State = models.SessionStateDestroying
	if session.Document != nil {
		c.unsubscribeSession(name, session.Document.Ref)
	}
	if c.tickets != nil {
		c.tickets.RemoveTicketForSession(name)
	}

	if session.Document == nil {
		// Nothing was ever written remotely; the teardown is purely local.
		c.registry.Remove(name)
		c.fireDestroyComplete(name, true)

		return nil
	}

	ref := session.Document.Ref
	task := newRemoteTask(remoteTaskSpec{
		name:        constants.TaskDestroySession,
		sessionName: name,
		run: func(rt *remoteTask, scope *envelope.Scope) {
			c.runLeaveChain(rt, scope, name, ref)
		},
		finalize: func(rt *remoteTask, scope *envelope.Scope) {
			c.registry.Remove(name)
		},
		delegates: func(rt *remoteTask) {
			if c.delegates.OnDestroySessionComplete != nil {
				c.delegates.OnDestroySessionComplete(name, rt.WasSuccessful())
			}
		},
	})
	c.queue.EnqueueSerial(task)

	return nil
}

// runLeaveChain removes locally-signed-in members from the document one
// synchronized write at a time until none remain. The session already being
// gone counts as success at every step.
func (c *Controller) runLeaveChain(rt *remoteTask, scope *envelope.Scope, name string, ref models.SessionReference) {
	fetched := c.client.FetchByReference(scope.Ctx, ref)
	switch fetched.Outcome {
	case document.OutcomeSucceeded:
	case document.OutcomeNotFound:
		rt.MarkSucceeded()

		return
	default:
		c.metrics.AddOperationFailure(name, constants.TaskDestroySession, constants.FailReasonRemoteFatal)
		rt.MarkFailed()

		return
	}

	doc := fetched.Document
	remaining := c.cfg.JoinSessionMaxRetry
	for {
		member := c.firstLocalMember(doc)
		if member == nil {
			rt.MarkSucceeded()

			return
		}

		doc.RemoveMember(member.UserID)
		c.metrics.AddSessionWriteAttempt(name, constants.TaskDestroySession)
		result := c.client.TryWrite(scope.Ctx, doc, document.WriteModeSynchronizedUpdate)
		switch result.Outcome {
		case document.OutcomeSucceeded:
			doc = result.Document
		case document.OutcomeOutOfSync:
			c.metrics.AddSessionWriteConflict(name, constants.TaskDestroySession)
			if remaining <= 0 {
				scope.Log.WithField("session", name).Warn("destroy session: retry budget exhausted")
				c.metrics.AddOperationFailure(name, constants.TaskDestroySession, constants.FailReasonOutOfSyncExhausted)
				rt.MarkFailed()

				return
			}
			remaining--
			doc = result.Document
		case document.OutcomeNotFound:
			rt.MarkSucceeded()

			return
		default:
			c.metrics.AddOperationFailure(name, constants.TaskDestroySession, constants.FailReasonRemoteFatal)
			rt.MarkFailed()

			return
		}
	}
}

func (c *Controller) firstLocalMember(doc *models.SessionDocument) *models.SessionMember {
	for i := range doc.Members {
		if c.identity.IsLocalPlayer(doc.Members[i].UserID) {
			return &doc.Members[i]
		}
	}

	return nil
}
