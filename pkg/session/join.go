// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package session

import (
	"strings"

	"github.com/AccelByte/extend-session-orchestrator/pkg/constants"
	"github.com/AccelByte/extend-session-orchestrator/pkg/document"
	"github.com/AccelByte/extend-session-orchestrator/pkg/envelope"
	"github.com/AccelByte/extend-session-orchestrator/pkg/models"
)

// JoinSession joins the session described by a search result. When the
// result is a party session advertising a joinable game session, the
// embedded game-session reference is joined instead (join-in-progress via a
// friend's presence).
func (c *Controller) JoinSession(userID, name string, search models.SessionSearchResult) error {
	ref := search.Ref
	if uri, ok := search.Settings.GetString(models.SettingGameSessionURI); ok && uri != "" {
		if parsed, err := models.ParseSessionReferenceURI(uri); err == nil {
			ref = parsed
		}
	}

	return c.joinByReference(userID, name, ref, search.Settings, false, nil)
}

// JoinSessionByReference joins a known document reference directly. The
// matchmaking controller uses it to join the matched game session, passing
// its own completion callback alongside the public delegate.
func (c *Controller) JoinSessionByReference(
	userID, name string,
	ref models.SessionReference,
	settings models.SessionSettings,
	isMatchmakingResult bool,
	onComplete func(result models.JoinResultCode),
) error {
	return c.joinByReference(userID, name, ref, settings, isMatchmakingResult, onComplete)
}

func (c *Controller) joinByReference(
	userID, name string,
	ref models.SessionReference,
	settings models.SessionSettings,
	isMatchmakingResult bool,
	onComplete func(result models.JoinResultCode),
) error {
	failNow := func(code models.JoinResultCode) {
		c.queue.RunOnNextTick(func() {
			if c.delegates.OnJoinSessionComplete != nil {
				c.delegates.OnJoinSessionComplete(name, code)
			}
			if onComplete != nil {
				onComplete(code)
			}
		})
	}

	if c.registry.Get(name) != nil {
		failNow(models.JoinAlreadyInSession)

		return ErrAlreadyInSession
	}
	if ref.IsZero() {
		failNow(models.JoinSessionDoesNotExist)

		return ErrSessionDoesNotExist
	}
	cred, ok := c.identity.ResolveLocalUser(userID)
	if !ok {
		failNow(models.JoinUnknownError)

		return ErrNoLocalUser
	}

	session := &NamedSession{
		Name:                name,
		State:               models.SessionStateCreating,
		Settings:            settings.Clone(),
		LocalOwnerID:        userID,
		HostingPlayerIndex:  cred.PlatformIndex,
		IsMatchmakingResult: isMatchmakingResult,
		RegisteredPlayers:   []string{userID},
	}
	c.registry.Add(session)

	task := newRemoteTask(remoteTaskSpec{
		name:        constants.TaskJoinSession,
		sessionName: name,
		run: func(rt *remoteTask, scope *envelope.Scope) {
			c.runJoinSession(rt, scope, userID, name, ref, settings, isMatchmakingResult)
		},
		finalize: func(rt *remoteTask, scope *envelope.Scope) {
			if !rt.WasSuccessful() {
				c.registry.Remove(name)

				return
			}
			c.registry.ApplyDocument(name, rt.doc)
			if current := c.registry.Get(name); current != nil {
				current.State = models.SessionStatePending
			}
			c.subscribeSession(name, rt.doc.Ref)
			c.DetermineSessionHost(name, rt.doc)
		},
		delegates: func(rt *remoteTask) {
			if c.delegates.OnJoinSessionComplete != nil {
				c.delegates.OnJoinSessionComplete(name, rt.joinResult)
			}
			if onComplete != nil {
				onComplete(rt.joinResult)
			}
		},
	})
	c.queue.EnqueueSerial(task)

	return nil
}

func (c *Controller) runJoinSession(
	rt *remoteTask,
	scope *envelope.Scope,
	userID, name string,
	ref models.SessionReference,
	settings models.SessionSettings,
	isMatchmakingResult bool,
) {
	fail := func(code models.JoinResultCode, reason string) {
		rt.joinResult = code
		c.metrics.AddOperationFailure(name, constants.TaskJoinSession, reason)
		rt.MarkFailed()
	}

	fetched := c.client.FetchByReference(scope.Ctx, ref)
	switch fetched.Outcome {
	case document.OutcomeSucceeded:
	case document.OutcomeNotFound:
		fail(models.JoinSessionDoesNotExist, constants.FailReasonNotFound)

		return
	default:
		fail(models.JoinUnknownError, constants.FailReasonRemoteFatal)

		return
	}

	doc := fetched.Document
	remaining := c.cfg.JoinSessionMaxRetry
	var joined *models.SessionDocument
	for joined == nil {
		if !canJoin(doc, settings, userID) {
			fail(models.JoinSessionIsFull, constants.FailReasonRemoteFatal)

			return
		}

		doc.AddOrActivateMember(userID, c.transport.LocalDeviceToken(), c.transport.LocalAddressBase64())
		c.metrics.AddSessionWriteAttempt(name, constants.TaskJoinSession)
		result := c.client.TryWrite(scope.Ctx, doc, document.WriteModeSynchronizedUpdate)
		switch result.Outcome {
		case document.OutcomeSucceeded:
			joined = result.Document
		case document.OutcomeOutOfSync:
			c.metrics.AddSessionWriteConflict(name, constants.TaskJoinSession)
			if remaining <= 0 {
				scope.Log.WithField("session", name).Warn("join session: retry budget exhausted")
				fail(models.JoinUnknownError, constants.FailReasonOutOfSyncExhausted)

				return
			}
			remaining--
			doc = result.Document
		case document.OutcomeNotFound:
			fail(models.JoinSessionDoesNotExist, constants.FailReasonNotFound)

			return
		default:
			fail(models.JoinUnknownError, constants.FailReasonRemoteFatal)

			return
		}
	}

	// Connection phase. Matchmade sessions defer connectivity to the
	// initialization handshake, dedicated sessions have no peer host to
	// reach, and peer-hosted sessions need a secure channel to the host
	// before the join counts as complete.
	if !isMatchmakingResult && !settings.IsDedicated {
		host := joined.HostMember()
		if host == nil || host.SecureDeviceAddress == "" {
			c.leaveBestEffort(scope, ref, userID)
			fail(models.JoinCouldNotRetrieveAddress, constants.FailReasonNoSecureChannel)

			return
		}
		if !strings.EqualFold(host.DeviceToken, c.transport.LocalDeviceToken()) {
			if _, err := c.transport.EstablishChannel(scope.Ctx, host.SecureDeviceAddress); err != nil {
				scope.Log.WithField("session", name).WithError(err).Warn("join session: secure channel to host failed")
				c.leaveBestEffort(scope, ref, userID)
				fail(models.JoinCouldNotRetrieveAddress, constants.FailReasonNoSecureChannel)

				return
			}
		}
	}

	rt.joinResult = models.JoinSuccess
	rt.doc = joined
	rt.MarkSucceeded()
}

// canJoin checks admission: a reservation always admits the user, otherwise
// there must be a free slot against the advertised member cap.
func canJoin(doc *models.SessionDocument, settings models.SessionSettings, userID string) bool {
	if doc.HasReservationFor(userID) || doc.MemberForUser(userID) != nil {
		return true
	}
	max := settings.MaxMembers()
	if max <= 0 {
		return true
	}

	return doc.ActiveMemberCount() < max
}
