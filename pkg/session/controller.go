// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package session

import (
	"errors"
	"sync"

	"github.com/AccelByte/extend-session-orchestrator/pkg/asynctask"
	"github.com/AccelByte/extend-session-orchestrator/pkg/config"
	"github.com/AccelByte/extend-session-orchestrator/pkg/constants"
	"github.com/AccelByte/extend-session-orchestrator/pkg/document"
	"github.com/AccelByte/extend-session-orchestrator/pkg/envelope"
	"github.com/AccelByte/extend-session-orchestrator/pkg/events"
	"github.com/AccelByte/extend-session-orchestrator/pkg/identity"
	"github.com/AccelByte/extend-session-orchestrator/pkg/metrics"
	"github.com/AccelByte/extend-session-orchestrator/pkg/models"
	"github.com/AccelByte/extend-session-orchestrator/pkg/transport"
)

// Precondition failures detectable without a remote call. These are the
// only errors the controller entry points return synchronously; everything
// else surfaces through the completion delegates.
var (
	ErrSessionAlreadyExists = errors.New("session already exists")
	ErrSessionDoesNotExist  = errors.New("session does not exist")
	ErrAlreadyInSession     = errors.New("already in a session of this name")
	ErrAlreadyDestroying    = errors.New("session teardown already in flight")
	ErrNoLocalUser          = errors.New("user is not signed in locally")
	ErrInvalidSessionState  = errors.New("session is not in a valid state for this operation")
	ErrSearchInFlight       = errors.New("a session search is already in flight")
	ErrNoWritableMembers    = errors.New("no members with a local identity to update")
	ErrNoUsersToQuery       = errors.New("no user ids to query activity for")
	ErrUpdateNotPermitted   = errors.New("local user may not update the remote session")
)

// Delegates are the completion callbacks exposed to the UI/game layer.
// They always fire on the consumer goroutine, never inline in the caller.
type Delegates struct {
	OnCreateSessionComplete     func(name string, success bool)
	OnStartSessionComplete      func(name string, success bool)
	OnEndSessionComplete        func(name string, success bool)
	OnUpdateSessionComplete     func(name string, success bool)
	OnDestroySessionComplete    func(name string, success bool)
	OnJoinSessionComplete       func(name string, result models.JoinResultCode)
	OnRegisterPlayersComplete   func(name string, players []string, success bool)
	OnUnregisterPlayersComplete func(name string, players []string, success bool)
	OnFindSessionsComplete      func(success bool)
	OnFindFriendSessionComplete func(localUserIndex int, success bool, results []models.SessionSearchResult)
}

// TicketRemover is the slice of the matchmaking controller the session
// controller needs during teardown.
type TicketRemover interface {
	RemoveTicketForSession(name string)
}

// InitializationObserver receives initialization-stage change events after
// the session snapshot has been refreshed; the QoS negotiator implements
// it.
type InitializationObserver interface {
	HandleInitializationStateChange(scope *envelope.Scope, name string)
}

// Controller orchestrates the session lifecycle. All public entry points
// must be called from the consumer goroutine; remote work is delegated to
// tasks on the queue.
type Controller struct {
	cfg       *config.Config
	registry  *Registry
	client    document.Client
	identity  identity.Resolver
	transport transport.SecureChannels
	queue     *asynctask.Queue
	router    *events.Router
	metrics   metrics.SessionMetrics

	delegates Delegates

	tickets      TicketRemover
	initObserver InitializationObserver

	mu                sync.Mutex
	changeHandles     map[string]events.Handle
	searchInFlight    bool
	lastSearchResults []models.SessionSearchResult
}

func NewController(
	cfg *config.Config,
	client document.Client,
	resolver identity.Resolver,
	channels transport.SecureChannels,
	queue *asynctask.Queue,
	router *events.Router,
	sessionMetrics metrics.SessionMetrics,
) *Controller {
	c := &Controller{
		cfg:           cfg,
		registry:      NewRegistry(),
		client:        client,
		identity:      resolver,
		transport:     channels,
		queue:         queue,
		router:        router,
		metrics:       sessionMetrics,
		changeHandles: map[string]events.Handle{},
	}
	router.SubscribeSubscriptionLost(c.onSubscriptionLost)

	return c
}

// SetDelegates installs the UI-facing completion callbacks.
func (c *Controller) SetDelegates(delegates Delegates) {
	c.delegates = delegates
}

// BindTicketRemover wires the matchmaking controller's teardown hook.
func (c *Controller) BindTicketRemover(tickets TicketRemover) {
	c.tickets = tickets
}

// BindInitializationObserver wires the QoS negotiator.
func (c *Controller) BindInitializationObserver(observer InitializationObserver) {
	c.initObserver = observer
}

// Registry exposes the session table. Read it only from the consumer
// goroutine.
func (c *Controller) Registry() *Registry {
	return c.registry
}

// GetNamedSession returns the local bookkeeping for a session name, or nil.
func (c *Controller) GetNamedSession(name string) *NamedSession {
	return c.registry.Get(name)
}

// GetSessionState returns the session's lifecycle state, or NoSession.
func (c *Controller) GetSessionState(name string) models.SessionState {
	if session := c.registry.Get(name); session != nil {
		return session.State
	}

	return models.SessionStateNoSession
}

// GetSessionSettings returns a copy of the session's settings.
func (c *Controller) GetSessionSettings(name string) (models.SessionSettings, bool) {
	session := c.registry.Get(name)
	if session == nil {
		return models.SessionSettings{}, false
	}

	return session.Settings.Clone(), true
}

// GetNumSessions returns the number of locally-known sessions.
func (c *Controller) GetNumSessions() int {
	return c.registry.Count()
}

// StartSession moves a Pending or Ended session to InProgress and mints a
// new round id. Purely local; the delegate fires on the next tick.
func (c *Controller) StartSession(name string) error {
	session := c.registry.Get(name)
	if session == nil {
		c.fireStartComplete(name, false)

		return ErrSessionDoesNotExist
	}
	if session.State != models.SessionStatePending && session.State != models.SessionStateEnded {
		c.fireStartComplete(name, false)

		return ErrInvalidSessionState
	}

	session.State = models.SessionStateInProgress
	session.RoundID = newRoundID()
	c.fireStartComplete(name, true)

	return nil
}

// EndSession moves an InProgress session to Ended.
func (c *Controller) EndSession(name string) error {
	session := c.registry.Get(name)
	if session == nil {
		c.fireEndComplete(name, false)

		return ErrSessionDoesNotExist
	}
	if session.State != models.SessionStateInProgress {
		c.fireEndComplete(name, false)

		return ErrInvalidSessionState
	}

	session.State = models.SessionStateEnded
	c.fireEndComplete(name, true)

	return nil
}

// subscribeSession registers the controller's change handler for the
// session's document reference.
func (c *Controller) subscribeSession(name string, ref models.SessionReference) {
	handle := c.router.SubscribeSessionChanged(ref, func(ref models.SessionReference, change models.SessionChangeTypes) {
		c.handleSessionChanged(name, ref, change)
	})

	c.mu.Lock()
	c.changeHandles[name] = handle
	c.mu.Unlock()
}

func (c *Controller) unsubscribeSession(name string, ref models.SessionReference) {
	c.mu.Lock()
	handle, ok := c.changeHandles[name]
	delete(c.changeHandles, name)
	c.mu.Unlock()

	if ok {
		c.router.UnsubscribeSessionChanged(ref, handle)
	}
}

// handleSessionChanged reacts to a session-changed push notification:
// refresh the snapshot, re-derive host bookkeeping, and forward
// initialization-stage changes once the fresh document is installed.
func (c *Controller) handleSessionChanged(name string, ref models.SessionReference, change models.SessionChangeTypes) {
	if c.registry.Get(name) == nil {
		return
	}

	task := newRemoteTask(remoteTaskSpec{
		name:        constants.TaskRefreshSession,
		sessionName: name,
		run: func(rt *remoteTask, scope *envelope.Scope) {
			result := c.client.FetchByReference(scope.Ctx, ref)
			if result.Outcome != document.OutcomeSucceeded {
				rt.MarkFailed()

				return
			}
			rt.doc = result.Document
			rt.MarkSucceeded()
		},
		finalize: func(rt *remoteTask, scope *envelope.Scope) {
			if !rt.WasSuccessful() {
				return
			}
			c.registry.ApplyDocument(name, rt.doc)
			c.DetermineSessionHost(name, rt.doc)
			if change.Has(models.ChangeInitializationState) && c.initObserver != nil {
				c.initObserver.HandleInitializationStateChange(scope, name)
			}
		},
	})
	c.queue.EnqueueParallel(task)
}

func (c *Controller) onSubscriptionLost() {
	// Snapshots are refreshed lazily on the next notification after the
	// channel is re-established; nothing to do eagerly.
}

func (c *Controller) fireStartComplete(name string, success bool) {
	c.queue.RunOnNextTick(func() {
		if c.delegates.OnStartSessionComplete != nil {
			c.delegates.OnStartSessionComplete(name, success)
		}
	})
}

func (c *Controller) fireEndComplete(name string, success bool) {
	c.queue.RunOnNextTick(func() {
		if c.delegates.OnEndSessionComplete != nil {
			c.delegates.OnEndSessionComplete(name, success)
		}
	})
}

func (c *Controller) fireCreateComplete(name string, success bool) {
	c.queue.RunOnNextTick(func() {
		if c.delegates.OnCreateSessionComplete != nil {
			c.delegates.OnCreateSessionComplete(name, success)
		}
	})
}

func (c *Controller) fireJoinComplete(name string, result models.JoinResultCode) {
	c.queue.RunOnNextTick(func() {
		if c.delegates.OnJoinSessionComplete != nil {
			c.delegates.OnJoinSessionComplete(name, result)
		}
	})
}

func (c *Controller) fireUpdateComplete(name string, success bool) {
	c.queue.RunOnNextTick(func() {
		if c.delegates.OnUpdateSessionComplete != nil {
			c.delegates.OnUpdateSessionComplete(name, success)
		}
	})
}

func (c *Controller) fireDestroyComplete(name string, success bool) {
	c.queue.RunOnNextTick(func() {
		if c.delegates.OnDestroySessionComplete != nil {
			c.delegates.OnDestroySessionComplete(name, success)
		}
	})
}
