// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package events

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AccelByte/extend-session-orchestrator/pkg/asynctask"
	"github.com/AccelByte/extend-session-orchestrator/pkg/models"
	"github.com/AccelByte/extend-session-orchestrator/pkg/testsetup"
)

type delivery struct {
	Ref    models.SessionReference
	Change models.SessionChangeTypes
}

func routerFixture() (*Router, *asynctask.Queue) {
	queue := asynctask.NewQueue(testsetup.NewMetrics())

	return NewRouter(queue), queue
}

func TestHandlersRunOnTheNextTickOnly(t *testing.T) {
	t.Parallel()
	router, queue := routerFixture()
	scope := testsetup.NewTestScope()
	defer scope.Finish()
	ref := models.SessionReference{ServiceConfigID: "local", TemplateName: "default", SessionID: "s1"}

	var received []delivery
	router.SubscribeSessionChanged(ref, func(ref models.SessionReference, change models.SessionChangeTypes) {
		received = append(received, delivery{Ref: ref, Change: change})
	})

	router.PublishSessionChanged(ref, models.ChangeMemberList)
	assert.Empty(t, received, "publishing must not dispatch on the caller's goroutine")

	testsetup.Pump(scope, queue, 1)
	require.Len(t, received, 1, "received: %s", spew.Sdump(received))
	assert.Equal(t, ref, received[0].Ref)
	assert.Equal(t, models.ChangeMemberList, received[0].Change)
}

func TestNotificationsTargetTheirSessionOnly(t *testing.T) {
	t.Parallel()
	router, queue := routerFixture()
	scope := testsetup.NewTestScope()
	defer scope.Finish()
	game := models.SessionReference{ServiceConfigID: "local", TemplateName: "default", SessionID: "game"}
	party := models.SessionReference{ServiceConfigID: "local", TemplateName: "default", SessionID: "party"}

	var gameHits, partyHits int
	router.SubscribeSessionChanged(game, func(models.SessionReference, models.SessionChangeTypes) { gameHits++ })
	router.SubscribeSessionChanged(party, func(models.SessionReference, models.SessionChangeTypes) { partyHits++ })

	router.PublishSessionChanged(game, models.ChangeMemberList)
	testsetup.Pump(scope, queue, 1)

	assert.Equal(t, 1, gameHits)
	assert.Equal(t, 0, partyHits)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()
	router, queue := routerFixture()
	scope := testsetup.NewTestScope()
	defer scope.Finish()
	ref := models.SessionReference{ServiceConfigID: "local", TemplateName: "default", SessionID: "s1"}

	var hits int
	handle := router.SubscribeSessionChanged(ref, func(models.SessionReference, models.SessionChangeTypes) { hits++ })

	router.PublishSessionChanged(ref, models.ChangeMemberList)
	testsetup.Pump(scope, queue, 1)
	require.Equal(t, 1, hits)

	router.UnsubscribeSessionChanged(ref, handle)
	router.PublishSessionChanged(ref, models.ChangeMemberList)
	testsetup.Pump(scope, queue, 1)
	assert.Equal(t, 1, hits)

	// Teardown races delivery, so a second unsubscribe must be harmless.
	router.UnsubscribeSessionChanged(ref, handle)
}

func TestMultipleSubscribersEachReceiveTheNotification(t *testing.T) {
	t.Parallel()
	router, queue := routerFixture()
	scope := testsetup.NewTestScope()
	defer scope.Finish()
	ref := models.SessionReference{ServiceConfigID: "local", TemplateName: "default", SessionID: "s1"}

	var first, second int
	router.SubscribeSessionChanged(ref, func(models.SessionReference, models.SessionChangeTypes) { first++ })
	router.SubscribeSessionChanged(ref, func(models.SessionReference, models.SessionChangeTypes) { second++ })

	router.PublishSessionChanged(ref, models.ChangeHostDeviceToken)
	testsetup.Pump(scope, queue, 1)

	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
}

func TestSubscriptionLostFansOutToEveryHandler(t *testing.T) {
	t.Parallel()
	router, queue := routerFixture()
	scope := testsetup.NewTestScope()
	defer scope.Finish()

	var first, second int
	router.SubscribeSubscriptionLost(func() { first++ })
	removable := router.SubscribeSubscriptionLost(func() { second++ })

	router.PublishSubscriptionLost()
	testsetup.Pump(scope, queue, 1)
	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)

	router.UnsubscribeSubscriptionLost(removable)
	router.PublishSubscriptionLost()
	testsetup.Pump(scope, queue, 1)
	assert.Equal(t, 2, first)
	assert.Equal(t, 1, second)
}
