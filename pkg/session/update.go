// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package session

import (
	"reflect"

	"github.com/AccelByte/extend-session-orchestrator/pkg/constants"
	"github.com/AccelByte/extend-session-orchestrator/pkg/models"
)

// UpdateSession replaces the session's local settings and optionally pushes
// them to the remote document. With refreshOnline the session-scoped
// property bag is rewritten by the permitted writer; without it the update
// fans out into one member-scoped write per locally-signed-in member, and
// the single completion delegate fires after the last of them reports.
func (c *Controller) UpdateSession(name string, settings models.SessionSettings, refreshOnline bool) error {
	session := c.registry.Get(name)
	if session == nil {
		c.fireUpdateComplete(name, false)

		return ErrSessionDoesNotExist
	}

	session.Settings = settings.Clone()

	if session.Document == nil {
		// Not backed by a remote document yet; the local update is all
		// there is.
		c.fireUpdateComplete(name, true)

		return nil
	}
	ref := session.Document.Ref

	if refreshOnline {
		if _, permitted := c.sessionWriter(session); !permitted {
			c.fireUpdateComplete(name, false)

			return ErrUpdateNotPermitted
		}

		desired := advertisedProperties(settings)
		for key, value := range settings.Settings {
			desired[key] = value
		}
		task := NewSafeWriteTask(
			name, ref, c.client, c.registry, c.metrics,
			constants.TaskUpdateSession, c.cfg.SessionWriteMaxRetry,
			func(doc *models.SessionDocument) bool {
				if reflect.DeepEqual(doc.Properties, desired) {
					return false
				}
				doc.Properties = desired

				return true
			},
			func(success bool, _ *models.SessionDocument) {
				c.fireUpdateComplete(name, success)
			},
		)
		c.queue.EnqueueParallel(task)

		return nil
	}

	// Member-scoped fan-out: each locally-signed-in member pushes its own
	// property bag. Counters live on the consumer goroutine only.
	var localUsers []string
	for i := range session.Document.Members {
		if c.identity.IsLocalPlayer(session.Document.Members[i].UserID) {
			localUsers = append(localUsers, session.Document.Members[i].UserID)
		}
	}
	if len(localUsers) == 0 {
		c.fireUpdateComplete(name, false)

		return ErrNoWritableMembers
	}

	// The fan-out fails only when no write could be initiated at all; once
	// the writes are in flight the operation reports success after the last
	// one, whatever its individual outcome (the write task already logs and
	// counts its own failure).
	pending := len(localUsers)
	for _, userID := range localUsers {
		memberUserID := userID
		task := NewSafeWriteTask(
			name, ref, c.client, c.registry, c.metrics,
			constants.TaskUpdateSession, c.cfg.MemberUpdateMaxRetry,
			func(doc *models.SessionDocument) bool {
				member := doc.MemberForUser(memberUserID)
				if member == nil {
					return false
				}
				if reflect.DeepEqual(member.Properties, settings.Settings) {
					return false
				}
				member.Properties = models.SessionSettings{Settings: settings.Settings}.Clone().Settings

				return true
			},
			func(_ bool, _ *models.SessionDocument) {
				pending--
				if pending == 0 {
					c.fireUpdateComplete(name, true)
				}
			},
		)
		c.queue.EnqueueParallel(task)
	}

	return nil
}

// AdvertiseGameSessionURI publishes (or clears, with an empty uri) the
// joinable game session on the named session's document, so friends
// browsing the advertiser's presence can join the game in progress.
func (c *Controller) AdvertiseGameSessionURI(name, uri string) error {
	session := c.registry.Get(name)
	if session == nil {
		return ErrSessionDoesNotExist
	}
	session.Settings.Set(models.SettingGameSessionURI, uri)
	if session.Document == nil {
		return nil
	}

	task := NewSafeWriteTask(
		name, session.Document.Ref, c.client, c.registry, c.metrics,
		constants.TaskUpdateSession, c.cfg.SessionWriteMaxRetry,
		func(doc *models.SessionDocument) bool {
			if doc.Properties == nil {
				doc.Properties = map[string]interface{}{}
			}
			if existing, ok := doc.Properties[models.SettingGameSessionURI].(string); ok && existing == uri {
				return false
			}
			if uri == "" {
				if _, ok := doc.Properties[models.SettingGameSessionURI]; !ok {
					return false
				}
				delete(doc.Properties, models.SettingGameSessionURI)

				return true
			}
			doc.Properties[models.SettingGameSessionURI] = uri

			return true
		},
		nil,
	)
	c.queue.EnqueueParallel(task)

	return nil
}

// sessionWriter picks the local user allowed to push session-scoped
// settings: the owning user when signed in here, or the session's local
// owner when the owner-only policy is relaxed.
func (c *Controller) sessionWriter(session *NamedSession) (string, bool) {
	if session.OwningUserID != "" && c.identity.IsLocalPlayer(session.OwningUserID) {
		return session.OwningUserID, true
	}
	if !c.cfg.OnlyHostUpdateSession && c.identity.IsLocalPlayer(session.LocalOwnerID) {
		return session.LocalOwnerID, true
	}

	return "", false
}
