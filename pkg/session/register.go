// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package session

import (
	"gopkg.in/typ.v4/slices"

	"github.com/AccelByte/extend-session-orchestrator/pkg/constants"
	"github.com/AccelByte/extend-session-orchestrator/pkg/models"
)

// RegisterPlayers records the players on the local roster and reserves
// slots for them on the remote document, so they can join even once the
// session fills up. Players already rostered are skipped.
func (c *Controller) RegisterPlayers(name string, players []string) error {
	session := c.registry.Get(name)
	if session == nil {
		c.fireRegisterComplete(name, players, false)

		return ErrSessionDoesNotExist
	}

	added := make([]string, 0, len(players))
	for _, player := range players {
		if !session.HasRegisteredPlayer(player) {
			session.RegisteredPlayers = append(session.RegisteredPlayers, player)
			added = append(added, player)
		}
	}

	if session.Document == nil || len(added) == 0 {
		c.fireRegisterComplete(name, players, true)

		return nil
	}

	task := NewSafeWriteTask(
		name, session.Document.Ref, c.client, c.registry, c.metrics,
		constants.TaskRegisterPlayer, c.cfg.SessionWriteMaxRetry,
		func(doc *models.SessionDocument) bool {
			changed := false
			for _, player := range added {
				if doc.MemberForUser(player) != nil {
					continue
				}
				doc.Members = append(doc.Members, models.SessionMember{
					UserID:              player,
					IsActive:            false,
					InitializationStage: models.StageUnknown,
				})
				changed = true
			}

			return changed
		},
		func(success bool, _ *models.SessionDocument) {
			c.fireRegisterComplete(name, players, success)
		},
	)
	c.queue.EnqueueParallel(task)

	return nil
}

// UnregisterPlayers removes the players from the local roster and drops
// their reservations (or memberships) from the remote document.
func (c *Controller) UnregisterPlayers(name string, players []string) error {
	session := c.registry.Get(name)
	if session == nil {
		c.fireUnregisterComplete(name, players, false)

		return ErrSessionDoesNotExist
	}

	session.RegisteredPlayers = slices.Filter(session.RegisteredPlayers, func(id string) bool {
		return !slices.Contains(players, id)
	})

	if session.Document == nil {
		c.fireUnregisterComplete(name, players, true)

		return nil
	}

	task := NewSafeWriteTask(
		name, session.Document.Ref, c.client, c.registry, c.metrics,
		constants.TaskRegisterPlayer, c.cfg.SessionWriteMaxRetry,
		func(doc *models.SessionDocument) bool {
			changed := false
			for _, player := range players {
				if doc.RemoveMember(player) {
					changed = true
				}
			}

			return changed
		},
		func(success bool, _ *models.SessionDocument) {
			c.fireUnregisterComplete(name, players, success)
		},
	)
	c.queue.EnqueueParallel(task)

	return nil
}

func (c *Controller) fireRegisterComplete(name string, players []string, success bool) {
	c.queue.RunOnNextTick(func() {
		if c.delegates.OnRegisterPlayersComplete != nil {
			c.delegates.OnRegisterPlayersComplete(name, players, success)
		}
	})
}

func (c *Controller) fireUnregisterComplete(name string, players []string, success bool) {
	c.queue.RunOnNextTick(func() {
		if c.delegates.OnUnregisterPlayersComplete != nil {
			c.delegates.OnUnregisterPlayersComplete(name, players, success)
		}
	})
}
