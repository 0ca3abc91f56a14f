// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package matchmaking drives the client side of ticket-based matchmaking:
// it creates the hidden match session, submits and resubmits the ticket,
// follows the service's status transitions, and hands the matched game
// session over to the session controller.
package matchmaking

import (
	"time"

	"github.com/AccelByte/extend-session-orchestrator/pkg/document"
	"github.com/AccelByte/extend-session-orchestrator/pkg/events"
	"github.com/AccelByte/extend-session-orchestrator/pkg/models"
)

// TicketState is the local matchmaking state machine. UserCancelled is
// terminal; a cancelled ticket never resubmits even if remote callbacks
// race in afterwards.
type TicketState int

const (
	TicketStateNone TicketState = iota
	TicketStateCreatingMatchSession
	TicketStateSubmittingInitialTicket
	TicketStateWaitingForGameSession
	TicketStateActive
	TicketStateUserCancelled
)

func (s TicketState) String() string {
	switch s {
	case TicketStateNone:
		return "None"
	case TicketStateCreatingMatchSession:
		return "CreatingMatchSession"
	case TicketStateSubmittingInitialTicket:
		return "SubmittingInitialTicket"
	case TicketStateWaitingForGameSession:
		return "WaitingForGameSession"
	case TicketStateActive:
		return "Active"
	case TicketStateUserCancelled:
		return "UserCancelled"
	}

	return "Invalid"
}

// Ticket is the bookkeeping for one matchmaking attempt, keyed by the
// session name it was started for. Mutated only on the consumer goroutine.
type Ticket struct {
	SessionName string
	State       TicketState

	LocalUserID string
	Players     []string

	// Search and Settings are copies of the caller's original request;
	// resubmits are driven from them, not from live session state.
	Search   models.SessionSearch
	Settings models.SessionSettings

	// CorrelationID stitches together the log and trace records of one
	// attempt across resubmits.
	CorrelationID string

	Hopper       string
	TicketID     string
	PreserveMode document.PreserveSessionMode
	SubmittedAt  time.Time

	// MatchRef and MatchDoc track the hidden match session the ticket is
	// attached to.
	MatchRef models.SessionReference
	MatchDoc *models.SessionDocument

	changeHandle    events.Handle
	hasChangeHandle bool
}

// IsTerminal reports whether the ticket can no longer produce a match.
func (t *Ticket) IsTerminal() bool {
	return t.State == TicketStateNone || t.State == TicketStateUserCancelled
}
