// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package matchmaking

import (
	"time"

	"github.com/AccelByte/extend-session-orchestrator/pkg/constants"
	"github.com/AccelByte/extend-session-orchestrator/pkg/document"
	"github.com/AccelByte/extend-session-orchestrator/pkg/envelope"
	"github.com/AccelByte/extend-session-orchestrator/pkg/models"
)

// handleMatchSessionChanged reacts to change pushes on the hidden match
// session: refresh the snapshot, then act on whatever changed.
func (c *Controller) handleMatchSessionChanged(sessionName string, ref models.SessionReference, change models.SessionChangeTypes) {
	ticket := c.tickets[sessionName]
	if ticket == nil || ticket.IsTerminal() {
		return
	}

	task := newTicketTask(ticketTaskSpec{
		name:        constants.TaskRefreshSession,
		sessionName: sessionName,
		run: func(tt *ticketTask, scope *envelope.Scope) {
			fetched := c.client.FetchByReference(scope.Ctx, ref)
			if fetched.Outcome != document.OutcomeSucceeded {
				tt.MarkFailed()

				return
			}
			tt.doc = fetched.Document
			tt.MarkSucceeded()
		},
		finalize: func(tt *ticketTask, scope *envelope.Scope) {
			if !tt.WasSuccessful() {
				return
			}
			if c.tickets[sessionName] != ticket || ticket.IsTerminal() {
				return
			}
			ticket.MatchDoc = tt.doc

			if change.Has(models.ChangeMatchmakingStatus) {
				c.onMatchmakingStatusChanged(scope, ticket)
			}
			if change.Has(models.ChangeMemberList) && c.tickets[sessionName] == ticket &&
				ticket.State == TicketStateWaitingForGameSession && ticket.Settings.AllowJoinInProgress {
				// The party composition changed while the ticket is in the
				// hopper; a join-in-progress session resubmits with the
				// updated member set. Others keep the ticket they have.
				c.SubmitMatchingTicket(sessionName)
			}
		},
	})
	c.queue.EnqueueParallel(task)
}

func (c *Controller) onMatchmakingStatusChanged(scope *envelope.Scope, ticket *Ticket) {
	info := ticket.MatchDoc.MatchmakingServer
	if info == nil {
		return
	}

	log := scope.Log.WithField("session", ticket.SessionName).WithField("status", info.Status.String())
	switch info.Status {
	case models.MatchStatusSearching:
		log.Debug("matchmaking status: still searching")

	case models.MatchStatusExpired:
		// An expired ticket is not a terminal failure; the attempt goes
		// back into the hopper with a fresh ticket.
		log.Info("matchmaking status: ticket expired, resubmitting")
		c.metrics.AddOperationFailure(ticket.SessionName, constants.TaskSubmitTicket, constants.FailReasonTicketExpired)
		c.SubmitMatchingTicket(ticket.SessionName)

	case models.MatchStatusCanceled:
		// A service-side cancel gets the same retry; a user cancel is
		// already terminal and keeps the ticket out of the hopper.
		if ticket.State != TicketStateUserCancelled {
			log.Info("matchmaking status: ticket cancelled by the service, resubmitting")
			c.metrics.AddOperationFailure(ticket.SessionName, constants.TaskSubmitTicket, constants.FailReasonTicketCancelled)
			c.SubmitMatchingTicket(ticket.SessionName)
		}

	case models.MatchStatusFound:
		c.handleMatchFound(scope, ticket, info)

	default:
	}
}

// handleMatchFound reparents the attempt onto the matched game session:
// stop following the match session, join the game session under the name
// matchmaking was started for, and advertise it on the party so friends can
// follow. Matchmaking reports success only after the game session's
// initialization handshake completes.
func (c *Controller) handleMatchFound(scope *envelope.Scope, ticket *Ticket, info *models.MatchmakingServerInfo) {
	gameRef := info.TargetSessionRef
	if gameRef.IsZero() {
		scope.Log.WithField("session", ticket.SessionName).Warn("match found without a target session")
		c.failMatchmaking(ticket.SessionName, constants.FailReasonRemoteFatal)

		return
	}

	ticket.State = TicketStateActive
	c.unsubscribeMatch(ticket)
	if !ticket.SubmittedAt.IsZero() {
		c.metrics.AddTicketLifetimeMs(ticket.Hopper, time.Since(ticket.SubmittedAt))
	}

	sessionName := ticket.SessionName
	settings := ticket.Settings.Clone()
	settings.UsesPresence = true
	if settings.Settings == nil {
		settings.Settings = map[string]interface{}{}
	}
	for key, value := range ticket.Search.QuerySettings {
		settings.Settings[key] = value
	}

	err := c.sessions.JoinSessionByReference(
		ticket.LocalUserID, sessionName, gameRef, settings, true,
		func(code models.JoinResultCode) {
			if code != models.JoinSuccess {
				c.failMatchmaking(sessionName, constants.FailReasonRemoteFatal)

				return
			}
			// Member added; success now rides on the initialization
			// handshake driven by the QoS negotiator.
			if c.sessions.GetNamedSession(constants.SessionNameParty) != nil {
				c.sessions.AdvertiseGameSessionURI(constants.SessionNameParty, gameRef.URIPath())
			}
		},
	)
	if err != nil {
		c.failMatchmaking(sessionName, constants.FailReasonRemoteFatal)
	}
}
