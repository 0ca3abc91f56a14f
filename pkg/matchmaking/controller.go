// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package matchmaking

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/elliotchance/pie/v2"
	"github.com/go-openapi/swag"
	"github.com/oklog/ulid/v2"

	"github.com/AccelByte/extend-session-orchestrator/pkg/asynctask"
	"github.com/AccelByte/extend-session-orchestrator/pkg/common"
	"github.com/AccelByte/extend-session-orchestrator/pkg/config"
	"github.com/AccelByte/extend-session-orchestrator/pkg/constants"
	"github.com/AccelByte/extend-session-orchestrator/pkg/document"
	"github.com/AccelByte/extend-session-orchestrator/pkg/envelope"
	"github.com/AccelByte/extend-session-orchestrator/pkg/events"
	"github.com/AccelByte/extend-session-orchestrator/pkg/identity"
	"github.com/AccelByte/extend-session-orchestrator/pkg/metrics"
	"github.com/AccelByte/extend-session-orchestrator/pkg/models"
	"github.com/AccelByte/extend-session-orchestrator/pkg/session"
	"github.com/AccelByte/extend-session-orchestrator/pkg/transport"
)

var (
	ErrNoPlayers          = errors.New("matchmaking needs at least one player")
	ErrAlreadyMatchmaking = errors.New("matchmaking already in flight for this session name")
	ErrNoHopper           = errors.New("search settings carry no match hopper name")
)

const matchTemplateName = "matchmaking"

// Delegates are the matchmaking completion callbacks. OnMatchmakingComplete
// fires exactly once per StartMatchmaking: with success once the matched
// game session finishes its initialization handshake, or with failure on
// any terminal error or cancellation.
type Delegates struct {
	OnMatchmakingComplete       func(sessionName string, success bool)
	OnCancelMatchmakingComplete func(sessionName string, success bool)
}

// Controller owns the ticket table. All public entry points must be called
// from the consumer goroutine.
type Controller struct {
	cfg       *config.Config
	client    document.Client
	identity  identity.Resolver
	transport transport.SecureChannels
	sessions  *session.Controller
	queue     *asynctask.Queue
	router    *events.Router
	metrics   metrics.SessionMetrics

	delegates Delegates
	tickets   map[string]*Ticket
}

func NewController(
	cfg *config.Config,
	client document.Client,
	resolver identity.Resolver,
	channels transport.SecureChannels,
	sessions *session.Controller,
	queue *asynctask.Queue,
	router *events.Router,
	sessionMetrics metrics.SessionMetrics,
) *Controller {
	c := &Controller{
		cfg:       cfg,
		client:    client,
		identity:  resolver,
		transport: channels,
		sessions:  sessions,
		queue:     queue,
		router:    router,
		metrics:   sessionMetrics,
		tickets:   map[string]*Ticket{},
	}
	sessions.BindTicketRemover(c)

	return c
}

// SetDelegates installs the completion callbacks.
func (c *Controller) SetDelegates(delegates Delegates) {
	c.delegates = delegates
}

// TicketForSession returns the ticket bookkeeping for a session name, or
// nil.
func (c *Controller) TicketForSession(name string) *Ticket {
	return c.tickets[name]
}

// StartMatchmaking creates the hidden match session carrying the given
// players and submits the initial ticket. The session name is the name the
// matched game session will eventually be registered under. Settings and
// search are copied onto the ticket so later resubmits reflect the original
// request.
func (c *Controller) StartMatchmaking(localUserID, sessionName string, players []string, settings models.SessionSettings, search models.SessionSearch) error {
	if len(players) == 0 {
		c.fireMatchmakingComplete(sessionName, false)

		return ErrNoPlayers
	}
	if existing := c.tickets[sessionName]; existing != nil && !existing.IsTerminal() {
		c.fireMatchmakingComplete(sessionName, false)

		return ErrAlreadyMatchmaking
	}
	hopper, ok := search.GetQueryString(models.SearchHopperName)
	if !ok || hopper == "" {
		c.fireMatchmakingComplete(sessionName, false)

		return ErrNoHopper
	}
	if !swag.ContainsStrings(players, localUserID) {
		players = append([]string{localUserID}, players...)
	}

	ticket := &Ticket{
		SessionName:   sessionName,
		State:         TicketStateCreatingMatchSession,
		LocalUserID:   localUserID,
		Players:       players,
		Search:        search,
		Settings:      settings.Clone(),
		CorrelationID: ulid.Make().String(),
		Hopper:        hopper,
	}
	if preserve, ok := search.QuerySettings[models.SettingPreserveSession].(bool); ok && preserve {
		ticket.PreserveMode = document.PreserveSessionAlways
	}
	c.tickets[sessionName] = ticket

	template, ok := search.GetQueryString(models.SettingSessionTemplateName)
	if !ok || template == "" {
		template = matchTemplateName
	}
	ref := models.SessionReference{
		ServiceConfigID: c.cfg.ServiceConfigID,
		TemplateName:    template,
		SessionID:       common.GenerateUUID(),
	}

	task := newTicketTask(ticketTaskSpec{
		name:        constants.TaskCreateMatch,
		sessionName: sessionName,
		run: func(tt *ticketTask, scope *envelope.Scope) {
			c.runCreateMatchSession(tt, scope, ref, localUserID, players, ticket.CorrelationID, ticket.Settings.MaxMembers())
		},
		finalize: func(tt *ticketTask, scope *envelope.Scope) {
			current := c.tickets[sessionName]
			if current != ticket || ticket.State == TicketStateUserCancelled {
				// Cancelled while the create was in flight; abandon the
				// document we just created.
				c.abandonMatchSession(ref, localUserID)
				if current == ticket {
					delete(c.tickets, sessionName)
				}

				return
			}
			if !tt.WasSuccessful() {
				delete(c.tickets, sessionName)

				return
			}
			ticket.MatchRef = tt.doc.Ref
			ticket.MatchDoc = tt.doc
			ticket.State = TicketStateSubmittingInitialTicket
			c.subscribeMatch(ticket)
			c.SubmitMatchingTicket(sessionName)
		},
		delegates: func(tt *ticketTask) {
			if !tt.WasSuccessful() && c.delegates.OnMatchmakingComplete != nil {
				c.delegates.OnMatchmakingComplete(sessionName, false)
			}
		},
	})
	c.queue.EnqueueSerial(task)

	return nil
}

// runCreateMatchSession writes the match session document and reserves
// slots for the extra players concurrently. Any reservation failure
// abandons the attempt.
func (c *Controller) runCreateMatchSession(
	tt *ticketTask,
	scope *envelope.Scope,
	ref models.SessionReference,
	localUserID string,
	players []string,
	correlationID string,
	maxMembers int,
) {
	doc := &models.SessionDocument{
		Ref:           ref,
		CorrelationID: correlationID,
		Properties:    map[string]interface{}{},
		Constants:     map[string]interface{}{},
	}
	if maxMembers > 0 {
		doc.Constants["maxMembersCount"] = maxMembers
	}
	doc.AddOrActivateMember(localUserID, c.transport.LocalDeviceToken(), c.transport.LocalAddressBase64())

	c.metrics.AddSessionWriteAttempt(tt.spec.sessionName, constants.TaskCreateMatch)
	result := c.client.TryWrite(scope.Ctx, doc, document.WriteModeCreateNew)
	if result.Outcome != document.OutcomeSucceeded {
		scope.Log.Warn("create match session: initial write failed")
		c.metrics.AddOperationFailure(tt.spec.sessionName, constants.TaskCreateMatch, constants.FailReasonRemoteFatal)
		tt.MarkFailed()

		return
	}

	extras := pie.FilterNot(players, func(player string) bool {
		return player == localUserID
	})

	var anyFailed atomic.Bool
	var wg sync.WaitGroup
	for _, player := range extras {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			if !c.reservePlayer(scope, ref, userID) {
				anyFailed.Store(true)
			}
		}(player)
	}
	wg.Wait()

	if anyFailed.Load() {
		scope.Log.Warn("create match session: could not reserve all players")
		c.metrics.AddOperationFailure(tt.spec.sessionName, constants.TaskCreateMatch, constants.FailReasonRemoteFatal)
		c.leaveMatchSession(scope, ref, localUserID)
		tt.MarkFailed()

		return
	}

	final := c.client.FetchByReference(scope.Ctx, ref)
	if final.Outcome != document.OutcomeSucceeded {
		tt.MarkFailed()

		return
	}
	tt.doc = final.Document
	tt.MarkSucceeded()
}

// reservePlayer adds an inactive member entry for the user via a
// synchronized write loop.
func (c *Controller) reservePlayer(scope *envelope.Scope, ref models.SessionReference, userID string) bool {
	for attempt := 0; attempt <= c.cfg.SessionWriteMaxRetry; attempt++ {
		fetched := c.client.FetchByReference(scope.Ctx, ref)
		if fetched.Outcome != document.OutcomeSucceeded {
			return false
		}
		doc := fetched.Document
		if doc.MemberForUser(userID) != nil {
			return true
		}
		doc.Members = append(doc.Members, models.SessionMember{
			UserID:              userID,
			IsActive:            false,
			InitializationStage: models.StageUnknown,
		})
		result := c.client.TryWrite(scope.Ctx, doc, document.WriteModeSynchronizedUpdate)
		switch result.Outcome {
		case document.OutcomeSucceeded:
			return true
		case document.OutcomeOutOfSync:
			continue
		default:
			return false
		}
	}

	return false
}

// leaveMatchSession removes the user from the match session without caring
// about the outcome.
func (c *Controller) leaveMatchSession(scope *envelope.Scope, ref models.SessionReference, userID string) {
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

// abandonMatchSession is the consumer-side variant used when a cancel races
// a completed create; the actual writes happen fire-and-forget.
func (c *Controller) abandonMatchSession(ref models.SessionReference, userID string) {
	task := newTicketTask(ticketTaskSpec{
		name: constants.TaskDestroySession,
		run: func(tt *ticketTask, scope *envelope.Scope) {
			c.leaveMatchSession(scope, ref, userID)
			tt.MarkSucceeded()
		},
	})
	c.queue.EnqueueParallel(task)
}

// CancelMatchmaking withdraws the ticket. Cancelling when nothing is in
// flight succeeds immediately; cancelling an active remote ticket deletes
// it from the hopper first. The matchmaking completion also fires, with
// failure, so callers waiting on a match are released.
func (c *Controller) CancelMatchmaking(sessionName string) error {
	ticket := c.tickets[sessionName]
	if ticket == nil || ticket.State == TicketStateNone {
		c.fireCancelComplete(sessionName, true)

		return nil
	}
	if ticket.State == TicketStateUserCancelled {
		c.fireCancelComplete(sessionName, true)

		return nil
	}

	ticket.State = TicketStateUserCancelled
	c.unsubscribeMatch(ticket)
	c.metrics.AddOperationFailure(sessionName, constants.TaskCancelTicket, constants.FailReasonTicketCancelled)

	if ticket.TicketID == "" {
		// Nothing submitted yet, so cancellation is purely local. A create
		// still in flight sees that its ticket is no longer the table entry
		// and abandons the document it just wrote; a create that already
		// completed left us a member entry to walk back here.
		delete(c.tickets, sessionName)
		if !ticket.MatchRef.IsZero() {
			c.abandonMatchSession(ticket.MatchRef, ticket.LocalUserID)
		}
		c.fireCancelComplete(sessionName, true)
		c.fireMatchmakingComplete(sessionName, false)

		return nil
	}

	hopper, ticketID := ticket.Hopper, ticket.TicketID
	matchRef, localUserID := ticket.MatchRef, ticket.LocalUserID
	task := newTicketTask(ticketTaskSpec{
		name:        constants.TaskCancelTicket,
		sessionName: sessionName,
		ticketID:    ticketID,
		run: func(tt *ticketTask, scope *envelope.Scope) {
			outcome := c.client.DeleteTicket(scope.Ctx, hopper, ticketID)
			c.leaveMatchSession(scope, matchRef, localUserID)
			if outcome == document.OutcomeSucceeded {
				tt.MarkSucceeded()
			} else {
				tt.MarkFailed()
			}
		},
		finalize: func(tt *ticketTask, scope *envelope.Scope) {
			if c.tickets[sessionName] == ticket {
				delete(c.tickets, sessionName)
			}
		},
		delegates: func(tt *ticketTask) {
			if c.delegates.OnCancelMatchmakingComplete != nil {
				c.delegates.OnCancelMatchmakingComplete(sessionName, tt.WasSuccessful())
			}
			if c.delegates.OnMatchmakingComplete != nil {
				c.delegates.OnMatchmakingComplete(sessionName, false)
			}
		},
	})
	c.queue.EnqueueSerial(task)

	return nil
}

// RemoveTicketForSession is the session controller's teardown hook: drop
// the ticket silently, deleting it from the hopper fire-and-forget. No
// delegates fire.
func (c *Controller) RemoveTicketForSession(name string) {
	ticket := c.tickets[name]
	if ticket == nil {
		return
	}
	c.unsubscribeMatch(ticket)
	delete(c.tickets, name)

	if ticket.TicketID != "" {
		c.deleteTicketAsync(name, ticket.Hopper, ticket.TicketID)
	}
}

// NotifyGameSessionReady completes matchmaking successfully once the
// matched game session finishes its initialization handshake.
func (c *Controller) NotifyGameSessionReady(sessionName string) {
	ticket := c.tickets[sessionName]
	if ticket != nil {
		c.unsubscribeMatch(ticket)
		delete(c.tickets, sessionName)
	}
	c.fireMatchmakingComplete(sessionName, true)
}

// NotifyMatchmakingFailed resets the attempt after a failed initialization
// handshake: the ticket is withdrawn, the matched game session is torn
// down, and the completion fires with failure.
func (c *Controller) NotifyMatchmakingFailed(sessionName string) {
	c.failMatchmaking(sessionName, constants.FailReasonRemoteFatal)
}

func (c *Controller) failMatchmaking(sessionName, reason string) {
	ticket := c.tickets[sessionName]
	if ticket != nil {
		c.unsubscribeMatch(ticket)
		delete(c.tickets, sessionName)
		c.metrics.AddOperationFailure(sessionName, constants.TaskSubmitTicket, reason)
		if ticket.TicketID != "" {
			c.deleteTicketAsync(sessionName, ticket.Hopper, ticket.TicketID)
		}
	}

	if c.sessions.GetNamedSession(sessionName) != nil {
		c.sessions.DestroySession(sessionName)
	}
	c.fireMatchmakingComplete(sessionName, false)
}

func (c *Controller) subscribeMatch(ticket *Ticket) {
	name := ticket.SessionName
	ticket.changeHandle = c.router.SubscribeSessionChanged(ticket.MatchRef, func(ref models.SessionReference, change models.SessionChangeTypes) {
		c.handleMatchSessionChanged(name, ref, change)
	})
	ticket.hasChangeHandle = true
}

func (c *Controller) unsubscribeMatch(ticket *Ticket) {
	if !ticket.hasChangeHandle {
		return
	}
	c.router.UnsubscribeSessionChanged(ticket.MatchRef, ticket.changeHandle)
	ticket.hasChangeHandle = false
}

func (c *Controller) fireMatchmakingComplete(sessionName string, success bool) {
	c.queue.RunOnNextTick(func() {
		if c.delegates.OnMatchmakingComplete != nil {
			c.delegates.OnMatchmakingComplete(sessionName, success)
		}
	})
}

func (c *Controller) fireCancelComplete(sessionName string, success bool) {
	c.queue.RunOnNextTick(func() {
		if c.delegates.OnCancelMatchmakingComplete != nil {
			c.delegates.OnCancelMatchmakingComplete(sessionName, success)
		}
	})
}
