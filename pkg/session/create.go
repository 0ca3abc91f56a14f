// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package session

import (
	"github.com/AccelByte/extend-session-orchestrator/pkg/common"
	"github.com/AccelByte/extend-session-orchestrator/pkg/constants"
	"github.com/AccelByte/extend-session-orchestrator/pkg/document"
	"github.com/AccelByte/extend-session-orchestrator/pkg/envelope"
	"github.com/AccelByte/extend-session-orchestrator/pkg/models"
)

const defaultTemplateName = "default"

// CreateSession creates a new named session backed by a fresh remote
// document and claims the host role for the creating console. The name is
// reserved in the registry before any remote work starts, so a second
// create with the same name fails immediately.
func (c *Controller) CreateSession(userID, name string, settings models.SessionSettings) error {
	if c.registry.Get(name) != nil {
		c.fireCreateComplete(name, false)

		return ErrSessionAlreadyExists
	}
	cred, ok := c.identity.ResolveLocalUser(userID)
	if !ok {
		c.fireCreateComplete(name, false)

		return ErrNoLocalUser
	}

	session := &NamedSession{
		Name:               name,
		State:              models.SessionStateCreating,
		Settings:           settings.Clone(),
		LocalOwnerID:       userID,
		OwningUserID:       userID,
		HostingPlayerIndex: cred.PlatformIndex,
		IsHosting:          true,
		RegisteredPlayers:  []string{userID},
	}
	c.registry.Add(session)

	task := newRemoteTask(remoteTaskSpec{
		name:        constants.TaskCreateSession,
		sessionName: name,
		run: func(rt *remoteTask, scope *envelope.Scope) {
			c.runCreateSession(rt, scope, userID, name, settings)
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
			if c.delegates.OnCreateSessionComplete != nil {
				c.delegates.OnCreateSessionComplete(name, rt.WasSuccessful())
			}
		},
	})
	c.queue.EnqueueSerial(task)

	return nil
}

func (c *Controller) runCreateSession(rt *remoteTask, scope *envelope.Scope, userID, name string, settings models.SessionSettings) {
	template, ok := settings.GetString(models.SettingSessionTemplateName)
	if !ok || template == "" {
		template = defaultTemplateName
	}

	doc := &models.SessionDocument{
		Ref: models.SessionReference{
			ServiceConfigID: c.cfg.ServiceConfigID,
			TemplateName:    template,
			SessionID:       common.GenerateUUID(),
		},
		CorrelationID: common.GenerateUUID(),
		Properties:    advertisedProperties(settings),
		Constants:     sessionConstants(settings),
	}
	doc.AddOrActivateMember(userID, c.transport.LocalDeviceToken(), c.transport.LocalAddressBase64())

	c.metrics.AddSessionWriteAttempt(name, constants.TaskCreateSession)
	result := c.client.TryWrite(scope.Ctx, doc, document.WriteModeCreateNew)
	if result.Outcome != document.OutcomeSucceeded {
		scope.Log.WithField("session", name).Warn("create session: initial write failed")
		c.metrics.AddOperationFailure(name, constants.TaskCreateSession, constants.FailReasonRemoteFatal)
		rt.MarkFailed()

		return
	}

	final := c.electHostSynchronously(scope.Ctx, scope, result.Document, userID)
	if final == nil {
		// Could not settle the host claim; back out of the document so no
		// ghost member lingers, then report failure.
		c.leaveBestEffort(scope, result.Document.Ref, userID)
		rt.MarkFailed()

		return
	}

	rt.doc = final
	rt.MarkSucceeded()
}

// leaveBestEffort removes the user from the document without caring about
// the outcome; it is the cleanup half of a failed create or join.
func (c *Controller) leaveBestEffort(scope *envelope.Scope, ref models.SessionReference, userID string) {
	for attempt := 0; attempt <= c.cfg.SessionWriteMaxRetry; attempt++ {
		fetched := c.client.FetchByReference(scope.Ctx, ref)
		if fetched.Outcome != document.OutcomeSucceeded {
			return
		}
		if !fetched.Document.RemoveMember(userID) {
			return
		}
		result := c.client.TryWrite(scope.Ctx, fetched.Document, document.WriteModeSynchronizedUpdate)
		if result.Outcome != document.OutcomeOutOfSync {
			return
		}
	}
}

// advertisedProperties projects the searchable settings onto the document's
// property bag.
func advertisedProperties(settings models.SessionSettings) map[string]interface{} {
	props := map[string]interface{}{}
	if keyword, ok := settings.GetString(models.SettingKeywords); ok && keyword != "" {
		props[models.SettingKeywords] = keyword
	}
	if uri, ok := settings.GetString(models.SettingGameSessionURI); ok && uri != "" {
		props[models.SettingGameSessionURI] = uri
	}

	return props
}

// sessionConstants projects the immutable creation-time settings onto the
// document's constant bag.
func sessionConstants(settings models.SessionSettings) map[string]interface{} {
	return map[string]interface{}{
		"maxMembersCount":     settings.MaxMembers(),
		"joinInProgress":      settings.AllowJoinInProgress,
		"dedicated":           settings.IsDedicated,
		"antiCheatProtected":  settings.AntiCheatProtected,
		"visibilityAdvertise": settings.ShouldAdvertise,
	}
}
