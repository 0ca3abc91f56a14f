// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package events routes session-changed push notifications from the remote
// service to per-session subscribers. Publishing enqueues a dispatch onto
// the task queue's next tick, so handlers always run on the consumer
// goroutine and never on the notification transport's goroutine.
package events

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/AccelByte/extend-session-orchestrator/pkg/asynctask"
	"github.com/AccelByte/extend-session-orchestrator/pkg/models"
)

// Handle identifies one subscription.
type Handle int64

// ChangeHandler receives a session-changed notification for a subscribed
// reference.
type ChangeHandler func(ref models.SessionReference, change models.SessionChangeTypes)

// SubscriptionLostHandler is invoked when the push channel drops and every
// session subscription must be considered stale.
type SubscriptionLostHandler func()

// Router is the session message router.
type Router struct {
	mu         sync.Mutex
	queue      *asynctask.Queue
	nextHandle Handle
	changeSubs map[string]map[Handle]ChangeHandler
	lostSubs   map[Handle]SubscriptionLostHandler
}

func NewRouter(queue *asynctask.Queue) *Router {
	return &Router{
		queue:      queue,
		changeSubs: map[string]map[Handle]ChangeHandler{},
		lostSubs:   map[Handle]SubscriptionLostHandler{},
	}
}

// SubscribeSessionChanged registers handler for notifications about ref.
func (r *Router) SubscribeSessionChanged(ref models.SessionReference, handler ChangeHandler) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextHandle++
	handle := r.nextHandle
	key := ref.URIPath()
	if r.changeSubs[key] == nil {
		r.changeSubs[key] = map[Handle]ChangeHandler{}
	}
	r.changeSubs[key][handle] = handler

	return handle
}

// UnsubscribeSessionChanged removes a subscription. Unknown handles are
// ignored, because teardown paths race notification delivery.
func (r *Router) UnsubscribeSessionChanged(ref models.SessionReference, handle Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := ref.URIPath()
	delete(r.changeSubs[key], handle)
	if len(r.changeSubs[key]) == 0 {
		delete(r.changeSubs, key)
	}
}

// SubscribeSubscriptionLost registers a handler for channel loss.
func (r *Router) SubscribeSubscriptionLost(handler SubscriptionLostHandler) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextHandle++
	handle := r.nextHandle
	r.lostSubs[handle] = handler

	return handle
}

// UnsubscribeSubscriptionLost removes a channel-loss handler.
func (r *Router) UnsubscribeSubscriptionLost(handle Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.lostSubs, handle)
}

// PublishSessionChanged delivers a session-changed notification. Safe to
// call from any goroutine; handlers run during the next Tick.
func (r *Router) PublishSessionChanged(ref models.SessionReference, change models.SessionChangeTypes) {
	r.queue.RunOnNextTick(func() {
		for _, handler := range r.handlersFor(ref) {
			handler(ref, change)
		}
	})
}

// PublishSubscriptionLost delivers a channel-loss notification.
func (r *Router) PublishSubscriptionLost() {
	r.queue.RunOnNextTick(func() {
		r.mu.Lock()
		handlers := make([]SubscriptionLostHandler, 0, len(r.lostSubs))
		for _, handler := range r.lostSubs {
			handlers = append(handlers, handler)
		}
		r.mu.Unlock()

		logrus.Warn("session message router: multiplayer subscriptions lost")
		for _, handler := range handlers {
			handler()
		}
	})
}

func (r *Router) handlersFor(ref models.SessionReference) []ChangeHandler {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.changeSubs[ref.URIPath()]
	handlers := make([]ChangeHandler, 0, len(subs))
	for _, handler := range subs {
		handlers = append(handlers, handler)
	}

	return handlers
}
