// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package matchmaking

import (
	"time"

	"github.com/AccelByte/extend-session-orchestrator/pkg/common"
	"github.com/AccelByte/extend-session-orchestrator/pkg/constants"
	"github.com/AccelByte/extend-session-orchestrator/pkg/document"
	"github.com/AccelByte/extend-session-orchestrator/pkg/envelope"
	"github.com/AccelByte/extend-session-orchestrator/pkg/models"
)

// SubmitMatchingTicket submits (or resubmits) the hopper ticket for the
// session's current match-session membership. A stale ticket is deleted
// from the hopper before the replacement goes in, so the service never
// holds two tickets for one match session.
func (c *Controller) SubmitMatchingTicket(sessionName string) {
	ticket := c.tickets[sessionName]
	if ticket == nil || ticket.IsTerminal() {
		return
	}
	if !ticket.Settings.ShouldAdvertise {
		// The caller asked for an unadvertised session; never place it in
		// the hopper.
		return
	}
	doc := ticket.MatchDoc
	if doc == nil {
		return
	}
	if ticket.State == TicketStateActive {
		// A game session was already found; nothing left to advertise.
		return
	}
	if doc.HostDeviceToken != "" && doc.MemberForDeviceToken(doc.HostDeviceToken) != nil &&
		doc.HostDeviceToken != c.transport.LocalDeviceToken() {
		// Another console owns the match session and its ticket.
		return
	}
	if max, ok := doc.Constants["maxMembersCount"].(int); ok && max > 0 && doc.ActiveMemberCount() >= max {
		// Full sessions wait for the service rather than re-advertise.
		return
	}

	attributes, _ := ticket.Search.GetQueryString(models.SettingMatchingAttributes)
	timeout := time.Duration(ticket.Search.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(c.cfg.MatchTicketTimeoutSec) * time.Second
	}

	hopper := ticket.Hopper
	previousTicketID := ticket.TicketID
	matchRef := ticket.MatchRef
	preserve := ticket.PreserveMode
	search := ticket.Search

	task := newTicketTask(ticketTaskSpec{
		name:        constants.TaskSubmitTicket,
		sessionName: sessionName,
		ticketID:    previousTicketID,
		run: func(tt *ticketTask, scope *envelope.Scope) {
			if previousTicketID != "" {
				c.client.DeleteTicket(scope.Ctx, hopper, previousTicketID)
			}
			result := c.client.CreateTicket(scope.Ctx, matchRef, hopper, attributes, timeout, preserve)
			if result.Outcome != document.OutcomeSucceeded {
				scope.Log.WithField("hopper", hopper).Warn("submit ticket: create failed")
				tt.MarkFailed()

				return
			}
			scope.Log.WithField("hopper", hopper).
				Debugf("submitted matching ticket %s for search %s", result.TicketID, common.LogJSONFormatter(search))
			tt.ticketID = result.TicketID
			tt.MarkSucceeded()
		},
		finalize: func(tt *ticketTask, scope *envelope.Scope) {
			current := c.tickets[sessionName]
			if current != ticket || ticket.State == TicketStateUserCancelled {
				// Cancelled while the submit was in flight; the fresh
				// ticket is an orphan and gets deleted.
				if tt.WasSuccessful() {
					c.deleteTicketAsync(sessionName, hopper, tt.ticketID)
				}

				return
			}
			if !tt.WasSuccessful() {
				return
			}
			ticket.TicketID = tt.ticketID
			ticket.SubmittedAt = time.Now()
			if ticket.State == TicketStateSubmittingInitialTicket {
				ticket.State = TicketStateWaitingForGameSession
			}
		},
		delegates: func(tt *ticketTask) {
			if tt.WasSuccessful() {
				return
			}
			if c.tickets[sessionName] == ticket && ticket.State != TicketStateUserCancelled {
				c.failMatchmaking(sessionName, constants.FailReasonRemoteFatal)
			}
		},
	})
	c.queue.EnqueueSerial(task)
}

func (c *Controller) deleteTicketAsync(sessionName, hopper, ticketID string) {
	task := newTicketTask(ticketTaskSpec{
		name:        constants.TaskCancelTicket,
		sessionName: sessionName,
		ticketID:    ticketID,
		run: func(tt *ticketTask, scope *envelope.Scope) {
			c.client.DeleteTicket(scope.Ctx, hopper, ticketID)
			tt.MarkSucceeded()
		},
	})
	c.queue.EnqueueParallel(task)
}
