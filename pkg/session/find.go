// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package session

import (
	"github.com/AccelByte/extend-session-orchestrator/pkg/constants"
	"github.com/AccelByte/extend-session-orchestrator/pkg/document"
	"github.com/AccelByte/extend-session-orchestrator/pkg/envelope"
	"github.com/AccelByte/extend-session-orchestrator/pkg/models"
)

// FindSessions queries the service for advertised sessions matching the
// search keywords. Only one search may be in flight at a time.
func (c *Controller) FindSessions(search models.SessionSearch) error {
	c.mu.Lock()
	if c.searchInFlight {
		c.mu.Unlock()
		c.fireFindComplete(false)

		return ErrSearchInFlight
	}
	c.searchInFlight = true
	c.mu.Unlock()

	keyword, _ := search.GetQueryString(models.SettingKeywords)
	filter := document.SearchFilter{Keyword: keyword, MaxResults: search.MaxResults}

	task := newRemoteTask(remoteTaskSpec{
		name: constants.TaskFindSessions,
		run: func(rt *remoteTask, scope *envelope.Scope) {
			results, outcome := c.client.GetSessionsMatching(scope.Ctx, filter)
			if outcome != document.OutcomeSucceeded {
				rt.MarkFailed()

				return
			}
			rt.results = results
			rt.MarkSucceeded()
		},
		finalize: func(rt *remoteTask, scope *envelope.Scope) {
			c.mu.Lock()
			c.searchInFlight = false
			if rt.WasSuccessful() {
				c.lastSearchResults = rt.results
			}
			c.mu.Unlock()
		},
		delegates: func(rt *remoteTask) {
			if c.delegates.OnFindSessionsComplete != nil {
				c.delegates.OnFindSessionsComplete(rt.WasSuccessful())
			}
		},
	})
	c.queue.EnqueueParallel(task)

	return nil
}

// FindSessionByID resolves a single session document by its share handle
// and delivers it through the callback on the consumer goroutine.
func (c *Controller) FindSessionByID(handle string, onComplete func(found bool, result models.SessionSearchResult)) {
	task := newRemoteTask(remoteTaskSpec{
		name: constants.TaskFindSessions,
		run: func(rt *remoteTask, scope *envelope.Scope) {
			fetched := c.client.FetchByHandle(scope.Ctx, handle)
			if fetched.Outcome != document.OutcomeSucceeded {
				rt.MarkFailed()

				return
			}
			rt.doc = fetched.Document
			rt.MarkSucceeded()
		},
		delegates: func(rt *remoteTask) {
			if onComplete == nil {
				return
			}
			if !rt.WasSuccessful() {
				onComplete(false, models.SessionSearchResult{})

				return
			}
			onComplete(true, models.SessionSearchResult{
				Ref:      rt.doc.Ref,
				Document: rt.doc,
			})
		},
	})
	c.queue.EnqueueParallel(task)
}

// FindFriendSessions queries the activity feed for the sessions the given
// users are currently playing in.
func (c *Controller) FindFriendSessions(localUserIndex int, userIDs []string) error {
	if len(userIDs) == 0 {
		c.queue.RunOnNextTick(func() {
			if c.delegates.OnFindFriendSessionComplete != nil {
				c.delegates.OnFindFriendSessionComplete(localUserIndex, false, nil)
			}
		})

		return ErrNoUsersToQuery
	}

	task := newRemoteTask(remoteTaskSpec{
		name: constants.TaskFindSessions,
		run: func(rt *remoteTask, scope *envelope.Scope) {
			results, outcome := c.client.GetActivityForUsers(scope.Ctx, c.cfg.ServiceConfigID, userIDs)
			if outcome != document.OutcomeSucceeded {
				rt.MarkFailed()

				return
			}
			rt.results = results
			rt.MarkSucceeded()
		},
		delegates: func(rt *remoteTask) {
			if c.delegates.OnFindFriendSessionComplete != nil {
				c.delegates.OnFindFriendSessionComplete(localUserIndex, rt.WasSuccessful(), rt.results)
			}
		},
	})
	c.queue.EnqueueParallel(task)

	return nil
}

// LastSearchResults returns the results of the most recent completed
// FindSessions call.
func (c *Controller) LastSearchResults() []models.SessionSearchResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	results := make([]models.SessionSearchResult, len(c.lastSearchResults))
	copy(results, c.lastSearchResults)

	return results
}

func (c *Controller) fireFindComplete(success bool) {
	c.queue.RunOnNextTick(func() {
		if c.delegates.OnFindSessionsComplete != nil {
			c.delegates.OnFindSessionsComplete(success)
		}
	})
}
