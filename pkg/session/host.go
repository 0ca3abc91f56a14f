// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package session

import (
	"context"
	"strings"
	"time"

	"github.com/AccelByte/extend-session-orchestrator/pkg/constants"
	"github.com/AccelByte/extend-session-orchestrator/pkg/document"
	"github.com/AccelByte/extend-session-orchestrator/pkg/envelope"
	"github.com/AccelByte/extend-session-orchestrator/pkg/models"
)

// DetermineSessionHost re-derives host bookkeeping from the document's host
// device token. It runs after every successful write and every push
// notification that could change the token, the member list, or custom
// properties; host state is never cached longer than one such event.
// Running it twice against an unchanged document is idempotent.
func (c *Controller) DetermineSessionHost(name string, doc *models.SessionDocument) {
	session := c.registry.Get(name)
	if session == nil || doc == nil {
		return
	}

	hostMember := doc.HostMember()
	if hostMember == nil {
		// Host not set yet; keep the previous bookkeeping until someone
		// claims the token.
		return
	}

	if strings.EqualFold(hostMember.DeviceToken, c.transport.LocalDeviceToken()) {
		session.IsHosting = true
		session.HostingPlayerIndex = c.identity.PlatformIndexForUser(hostMember.UserID)
	} else {
		session.IsHosting = false
	}
	session.OwningUserID = hostMember.UserID
}

// electHostSynchronously performs the greedy host election: while the
// document has no host device token, claim it for this console with a
// synchronized write, and on conflict take the returned latest document and
// try again. Another console winning the race ends the loop, as does the
// local member disappearing from the document. This loop deliberately
// blocks, and is therefore confined to task background goroutines — it must
// never run on the consumer goroutine. The attempt bound keeps a
// misbehaving service from pinning the goroutine forever.
func (c *Controller) electHostSynchronously(ctx context.Context, scope *envelope.Scope, doc *models.SessionDocument, localUserID string) *models.SessionDocument {
	attempts := c.cfg.HostElectionMaxAttempts

	for doc != nil && doc.HostDeviceToken == "" {
		if attempts <= 0 {
			scope.Log.Warn("host election: attempt budget exhausted")

			return nil
		}
		attempts--

		member := doc.MemberForUser(localUserID)
		if member == nil {
			scope.Log.Info("host election: local user no longer in session, not claiming host")

			break
		}

		doc.HostDeviceToken = c.transport.LocalDeviceToken()
		member.IsActive = true

		result := c.client.TryWrite(ctx, doc, document.WriteModeSynchronizedUpdate)
		switch result.Outcome {
		case document.OutcomeSucceeded, document.OutcomeOutOfSync:
			// Either we claimed the token or another console did and we
			// now hold the latest document.
			doc = result.Document
		default:
			scope.Log.Warn("host election: synchronized write failed")

			return nil
		}

		if doc != nil && doc.HostDeviceToken == "" {
			time.Sleep(constants.HostElectionPollDelay)
		}
	}

	return doc
}
