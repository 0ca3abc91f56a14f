// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AccelByte/extend-session-orchestrator/pkg/asynctask"
	"github.com/AccelByte/extend-session-orchestrator/pkg/config"
	"github.com/AccelByte/extend-session-orchestrator/pkg/document"
	"github.com/AccelByte/extend-session-orchestrator/pkg/envelope"
	"github.com/AccelByte/extend-session-orchestrator/pkg/events"
	"github.com/AccelByte/extend-session-orchestrator/pkg/identity"
	"github.com/AccelByte/extend-session-orchestrator/pkg/models"
	"github.com/AccelByte/extend-session-orchestrator/pkg/testsetup"
	"github.com/AccelByte/extend-session-orchestrator/pkg/transport"
)

type fixture struct {
	cfg      *config.Config
	client   *document.MemoryClient
	resolver *identity.StaticResolver
	channels *transport.Loopback
	queue    *asynctask.Queue
	router   *events.Router
	ctrl     *Controller
	scope    *envelope.Scope
}

func testConfig() *config.Config {
	return &config.Config{
		ServiceConfigID:         "local",
		SessionWriteMaxRetry:    5,
		JoinSessionMaxRetry:     20,
		MemberUpdateMaxRetry:    10,
		HostElectionMaxAttempts: 30,
		QosTimeoutMs:            10000,
		QosProbeCount:           8,
		MatchTicketTimeoutSec:   300,
		OnlyHostUpdateSession:   true,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		cfg:      testConfig(),
		client:   document.NewMemoryClient(),
		resolver: identity.NewStaticResolver(identity.Credential{UserID: "user-a", Gamertag: "PlayerA", PlatformIndex: 0}),
		channels: transport.NewLoopback(),
		scope:    testsetup.NewTestScope(),
	}
	f.queue = asynctask.NewQueue(testsetup.NewMetrics())
	f.router = events.NewRouter(f.queue)
	f.ctrl = NewController(f.cfg, f.client, f.resolver, f.channels, f.queue, f.router, testsetup.NewMetrics())
	t.Cleanup(f.scope.Finish)

	return f
}

func (f *fixture) pumpUntil(t *testing.T, condition func() bool) {
	t.Helper()
	require.True(t, testsetup.PumpUntil(f.scope, f.queue, condition), "condition never held")
}

// createSession drives a full CreateSession through the queue and returns
// the created document reference.
func (f *fixture) createSession(t *testing.T, userID, name string, settings models.SessionSettings) models.SessionReference {
	t.Helper()
	var done, ok bool
	f.ctrl.SetDelegates(Delegates{OnCreateSessionComplete: func(_ string, success bool) { done, ok = true, success }})
	require.NoError(t, f.ctrl.CreateSession(userID, name, settings))
	f.pumpUntil(t, func() bool { return done })
	require.True(t, ok, "create session failed")
	ref, found := f.ctrl.Registry().RefForName(name)
	require.True(t, found)

	return ref
}

func TestCreateSessionClaimsHostAndStoresDocument(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	ref := f.createSession(t, "user-a", "Game", models.SessionSettings{NumPublicConnections: 4})

	stored := f.client.Stored(ref)
	require.NotNil(t, stored)
	assert.Equal(t, f.channels.LocalDeviceToken(), stored.HostDeviceToken, "creator claims the host token")
	member := stored.MemberForUser("user-a")
	require.NotNil(t, member)
	assert.True(t, member.IsActive)
	assert.Equal(t, f.channels.LocalAddressBase64(), member.SecureDeviceAddress)

	named := f.ctrl.GetNamedSession("Game")
	require.NotNil(t, named)
	assert.Equal(t, models.SessionStatePending, named.State)
	assert.True(t, named.IsHosting)
	assert.Equal(t, "user-a", named.OwningUserID)
	assert.Equal(t, 0, named.HostingPlayerIndex)
}

func TestCreateSessionDuplicateNameFails(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.createSession(t, "user-a", "Game", models.SessionSettings{})

	var done, ok bool
	f.ctrl.SetDelegates(Delegates{OnCreateSessionComplete: func(_ string, success bool) { done, ok = true, success }})
	assert.ErrorIs(t, f.ctrl.CreateSession("user-a", "Game", models.SessionSettings{}), ErrSessionAlreadyExists)
	f.pumpUntil(t, func() bool { return done })
	assert.False(t, ok)
	assert.Equal(t, 1, f.ctrl.GetNumSessions())
}

func TestCreateSessionRemoteFailureRemovesTheSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.client.InjectFault(document.OpWrite, document.OutcomeFatal)

	var done, ok bool
	f.ctrl.SetDelegates(Delegates{OnCreateSessionComplete: func(_ string, success bool) { done, ok = true, success }})
	require.NoError(t, f.ctrl.CreateSession("user-a", "Game", models.SessionSettings{}))
	f.pumpUntil(t, func() bool { return done })

	assert.False(t, ok)
	assert.Nil(t, f.ctrl.GetNamedSession("Game"), "failed creates leave no registry entry")
}

// seedRemoteSession stores a peer-hosted session on the service.
func seedRemoteSession(f *fixture, sessionID string) models.SessionReference {
	ref := models.SessionReference{ServiceConfigID: "local", TemplateName: "default", SessionID: sessionID}
	doc := &models.SessionDocument{Ref: ref, HostDeviceToken: "device-host"}
	doc.AddOrActivateMember("host-user", "device-host", "addr-host")
	f.client.Seed(doc)

	return ref
}

func TestJoinSessionEstablishesChannelToHost(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ref := seedRemoteSession(f, "remote-1")

	var done bool
	var code models.JoinResultCode
	f.ctrl.SetDelegates(Delegates{OnJoinSessionComplete: func(_ string, result models.JoinResultCode) { done, code = true, result }})
	settings := models.SessionSettings{NumPublicConnections: 4}
	require.NoError(t, f.ctrl.JoinSession("user-a", "Game", models.SessionSearchResult{Ref: ref, Settings: settings}))
	f.pumpUntil(t, func() bool { return done })

	require.Equal(t, models.JoinSuccess, code)
	assert.Contains(t, f.channels.EstablishedChannels(), "addr-host")

	stored := f.client.Stored(ref)
	member := stored.MemberForUser("user-a")
	require.NotNil(t, member)
	assert.True(t, member.IsActive)

	named := f.ctrl.GetNamedSession("Game")
	require.NotNil(t, named)
	assert.Equal(t, models.SessionStatePending, named.State)
	assert.False(t, named.IsHosting)
	assert.Equal(t, "host-user", named.OwningUserID)
}

func TestJoinSessionFullFails(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ref := seedRemoteSession(f, "remote-1")

	var done bool
	var code models.JoinResultCode
	f.ctrl.SetDelegates(Delegates{OnJoinSessionComplete: func(_ string, result models.JoinResultCode) { done, code = true, result }})
	settings := models.SessionSettings{NumPublicConnections: 1}
	require.NoError(t, f.ctrl.JoinSession("user-a", "Game", models.SessionSearchResult{Ref: ref, Settings: settings}))
	f.pumpUntil(t, func() bool { return done })

	assert.Equal(t, models.JoinSessionIsFull, code)
	assert.Nil(t, f.ctrl.GetNamedSession("Game"), "failed joins leave no registry entry")
}

func TestJoinSessionReservationAdmitsIntoFullSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ref := models.SessionReference{ServiceConfigID: "local", TemplateName: "default", SessionID: "remote-1"}
	doc := &models.SessionDocument{Ref: ref, HostDeviceToken: "device-host"}
	doc.AddOrActivateMember("host-user", "device-host", "addr-host")
	doc.Members = append(doc.Members, models.SessionMember{UserID: "user-a", IsActive: false})
	f.client.Seed(doc)

	var done bool
	var code models.JoinResultCode
	f.ctrl.SetDelegates(Delegates{OnJoinSessionComplete: func(_ string, result models.JoinResultCode) { done, code = true, result }})
	settings := models.SessionSettings{NumPublicConnections: 1}
	require.NoError(t, f.ctrl.JoinSession("user-a", "Game", models.SessionSearchResult{Ref: ref, Settings: settings}))
	f.pumpUntil(t, func() bool { return done })

	assert.Equal(t, models.JoinSuccess, code, "a reservation admits the user past the member cap")
}

func TestJoinSessionChannelFailureBacksOut(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ref := seedRemoteSession(f, "remote-1")
	f.channels.FailNextEstablish()

	var done bool
	var code models.JoinResultCode
	f.ctrl.SetDelegates(Delegates{OnJoinSessionComplete: func(_ string, result models.JoinResultCode) { done, code = true, result }})
	require.NoError(t, f.ctrl.JoinSession("user-a", "Game", models.SessionSearchResult{Ref: ref, Settings: models.SessionSettings{NumPublicConnections: 4}}))
	f.pumpUntil(t, func() bool { return done })

	assert.Equal(t, models.JoinCouldNotRetrieveAddress, code)
	assert.Nil(t, f.client.Stored(ref).MemberForUser("user-a"), "the half-joined member is backed out")
	assert.Nil(t, f.ctrl.GetNamedSession("Game"))
}

func TestJoinSessionWhileAlreadyInOneFails(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.createSession(t, "user-a", "Game", models.SessionSettings{})
	ref := seedRemoteSession(f, "remote-1")

	var done bool
	var code models.JoinResultCode
	f.ctrl.SetDelegates(Delegates{OnJoinSessionComplete: func(_ string, result models.JoinResultCode) { done, code = true, result }})
	assert.ErrorIs(t, f.ctrl.JoinSession("user-a", "Game", models.SessionSearchResult{Ref: ref}), ErrAlreadyInSession)
	f.pumpUntil(t, func() bool { return done })
	assert.Equal(t, models.JoinAlreadyInSession, code)
}

func TestStartAndEndSessionTransitions(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.createSession(t, "user-a", "Game", models.SessionSettings{})

	require.NoError(t, f.ctrl.StartSession("Game"))
	named := f.ctrl.GetNamedSession("Game")
	assert.Equal(t, models.SessionStateInProgress, named.State)
	firstRound := named.RoundID
	require.NotEmpty(t, firstRound)

	assert.ErrorIs(t, f.ctrl.StartSession("Game"), ErrInvalidSessionState, "starting an in-progress session")

	require.NoError(t, f.ctrl.EndSession("Game"))
	assert.Equal(t, models.SessionStateEnded, named.State)
	assert.ErrorIs(t, f.ctrl.EndSession("Game"), ErrInvalidSessionState)

	// Ended sessions may start a new round.
	require.NoError(t, f.ctrl.StartSession("Game"))
	assert.NotEqual(t, firstRound, named.RoundID, "every start mints a fresh round id")
}

func TestDestroySessionRemovesLocalMembersAndIsIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ref := f.createSession(t, "user-a", "Game", models.SessionSettings{})

	completions := 0
	lastResult := false
	f.ctrl.SetDelegates(Delegates{OnDestroySessionComplete: func(_ string, success bool) {
		completions++
		lastResult = success
	}})

	require.NoError(t, f.ctrl.DestroySession("Game"))
	assert.ErrorIs(t, f.ctrl.DestroySession("Game"), ErrAlreadyDestroying, "a second destroy while one is in flight")

	f.pumpUntil(t, func() bool { return completions >= 2 })
	assert.Equal(t, 2, completions)
	assert.True(t, lastResult, "the in-flight destroy reports success")
	assert.Nil(t, f.ctrl.GetNamedSession("Game"))
	assert.Nil(t, f.client.Stored(ref).MemberForUser("user-a"), "local member removed from the remote document")
}

func TestDestroyUnknownSessionFails(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var done, ok bool
	f.ctrl.SetDelegates(Delegates{OnDestroySessionComplete: func(_ string, success bool) { done, ok = true, success }})
	assert.ErrorIs(t, f.ctrl.DestroySession("Game"), ErrSessionDoesNotExist)
	f.pumpUntil(t, func() bool { return done })
	assert.False(t, ok)
}

func TestDestroySessionSucceedsWhenRemoteAlreadyGone(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.createSession(t, "user-a", "Game", models.SessionSettings{})
	f.client.InjectFault(document.OpFetch, document.OutcomeNotFound)
	f.client.InjectFault(document.OpFetch, document.OutcomeNotFound)

	var done, ok bool
	f.ctrl.SetDelegates(Delegates{OnDestroySessionComplete: func(_ string, success bool) { done, ok = true, success }})
	require.NoError(t, f.ctrl.DestroySession("Game"))
	f.pumpUntil(t, func() bool { return done })

	assert.True(t, ok, "racing the session disappearing remotely is success")
	assert.Nil(t, f.ctrl.GetNamedSession("Game"))
}

func TestUpdateSessionPushesSessionPropertiesAsOwner(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ref := f.createSession(t, "user-a", "Game", models.SessionSettings{})

	var done, ok bool
	f.ctrl.SetDelegates(Delegates{OnUpdateSessionComplete: func(_ string, success bool) { done, ok = true, success }})
	settings := models.SessionSettings{Settings: map[string]interface{}{"mode": "ranked"}}
	require.NoError(t, f.ctrl.UpdateSession("Game", settings, true))
	f.pumpUntil(t, func() bool { return done })

	require.True(t, ok)
	assert.Equal(t, "ranked", f.client.Stored(ref).Properties["mode"])
	got, found := f.ctrl.GetSessionSettings("Game")
	require.True(t, found)
	value, _ := got.GetString("mode")
	assert.Equal(t, "ranked", value, "local settings replaced as well")
}

func TestUpdateSessionFansOutPerLocalMember(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ref := f.createSession(t, "user-a", "Game", models.SessionSettings{})
	f.resolver.SignIn(identity.Credential{UserID: "user-b", Gamertag: "PlayerB", PlatformIndex: 1})

	// user-b joins on this console too.
	doc := f.client.Stored(ref)
	doc.AddOrActivateMember("user-b", f.channels.LocalDeviceToken(), f.channels.LocalAddressBase64())
	f.client.Seed(doc)
	f.ctrl.Registry().ApplyDocument("Game", doc)

	completions := 0
	var ok bool
	f.ctrl.SetDelegates(Delegates{OnUpdateSessionComplete: func(_ string, success bool) {
		completions++
		ok = success
	}})
	settings := models.SessionSettings{Settings: map[string]interface{}{"loadout": "sniper"}}
	require.NoError(t, f.ctrl.UpdateSession("Game", settings, false))
	f.pumpUntil(t, func() bool { return completions > 0 })

	require.True(t, ok)
	assert.Equal(t, 1, completions, "one aggregated completion for the whole fan-out")
	stored := f.client.Stored(ref)
	assert.Equal(t, "sniper", stored.MemberForUser("user-a").Properties["loadout"])
	assert.Equal(t, "sniper", stored.MemberForUser("user-b").Properties["loadout"])
}

func TestUpdateSessionFanOutSucceedsDespiteMemberWriteFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ref := f.createSession(t, "user-a", "Game", models.SessionSettings{})
	f.resolver.SignIn(identity.Credential{UserID: "user-b", Gamertag: "PlayerB", PlatformIndex: 1})

	doc := f.client.Stored(ref)
	doc.AddOrActivateMember("user-b", f.channels.LocalDeviceToken(), f.channels.LocalAddressBase64())
	f.client.Seed(doc)
	f.ctrl.Registry().ApplyDocument("Game", doc)

	// One of the two member writes dies on the wire; the operation still
	// reports success because it could initiate the fan-out.
	f.client.InjectFault(document.OpWrite, document.OutcomeFatal)

	completions := 0
	var ok bool
	f.ctrl.SetDelegates(Delegates{OnUpdateSessionComplete: func(_ string, success bool) {
		completions++
		ok = success
	}})
	settings := models.SessionSettings{Settings: map[string]interface{}{"loadout": "shotgun"}}
	require.NoError(t, f.ctrl.UpdateSession("Game", settings, false))
	f.pumpUntil(t, func() bool { return completions > 0 })

	assert.True(t, ok, "a partial fan-out failure does not fail the update")
	assert.Equal(t, 1, completions)
}

func TestUpdateSessionFanOutWithNoLocalMembersFails(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ref := f.createSession(t, "user-a", "Game", models.SessionSettings{})

	// The only local member drops off the document; nothing can be
	// initiated, which is the one failing shape of the fan-out.
	doc := f.client.Stored(ref)
	doc.RemoveMember("user-a")
	f.client.Seed(doc)
	f.ctrl.Registry().ApplyDocument("Game", doc)

	var done, ok bool
	f.ctrl.SetDelegates(Delegates{OnUpdateSessionComplete: func(_ string, success bool) { done, ok = true, success }})
	settings := models.SessionSettings{Settings: map[string]interface{}{"loadout": "smg"}}
	assert.ErrorIs(t, f.ctrl.UpdateSession("Game", settings, false), ErrNoWritableMembers)
	f.pumpUntil(t, func() bool { return done })
	assert.False(t, ok)
}

func TestHostMigrationUpdatesOwnership(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ref := f.createSession(t, "user-a", "Game", models.SessionSettings{})

	// Another console takes over the host token.
	doc := f.client.Stored(ref)
	doc.AddOrActivateMember("user-other", "device-other", "addr-other")
	doc.HostDeviceToken = "device-other"
	f.client.Seed(doc)
	f.router.PublishSessionChanged(ref, models.ChangeHostDeviceToken)

	f.pumpUntil(t, func() bool {
		named := f.ctrl.GetNamedSession("Game")

		return named != nil && named.OwningUserID == "user-other"
	})
	assert.False(t, f.ctrl.GetNamedSession("Game").IsHosting, "hosting flag drops after migration")
}

func TestFindSessionsReturnsAdvertisedMatches(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.client.Seed(&models.SessionDocument{
		Ref:        models.SessionReference{ServiceConfigID: "local", TemplateName: "default", SessionID: "adv"},
		Properties: map[string]interface{}{models.SettingKeywords: "ctf"},
	})
	f.client.Seed(&models.SessionDocument{
		Ref: models.SessionReference{ServiceConfigID: "local", TemplateName: "default", SessionID: "plain"},
	})

	var done, ok bool
	f.ctrl.SetDelegates(Delegates{OnFindSessionsComplete: func(success bool) { done, ok = true, success }})
	search := models.SessionSearch{MaxResults: 10, QuerySettings: map[string]interface{}{models.SettingKeywords: "ctf"}}
	require.NoError(t, f.ctrl.FindSessions(search))
	f.pumpUntil(t, func() bool { return done })

	require.True(t, ok)
	results := f.ctrl.LastSearchResults()
	require.Len(t, results, 1)
	assert.Equal(t, "adv", results[0].Ref.SessionID)
}

func TestFindSessionByIDResolvesHandle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ref := seedRemoteSession(f, "invited")
	f.client.SeedHandle("invite-1", ref)

	var done, found bool
	var result models.SessionSearchResult
	f.ctrl.FindSessionByID("invite-1", func(ok bool, r models.SessionSearchResult) {
		done, found, result = true, ok, r
	})
	f.pumpUntil(t, func() bool { return done })

	require.True(t, found)
	assert.Equal(t, ref, result.Ref)
}

func TestFindFriendSessionsReturnsActiveMemberships(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ref := seedRemoteSession(f, "friends-game")

	var done, ok bool
	var results []models.SessionSearchResult
	f.ctrl.SetDelegates(Delegates{OnFindFriendSessionComplete: func(_ int, success bool, r []models.SessionSearchResult) {
		done, ok, results = true, success, r
	}})
	require.NoError(t, f.ctrl.FindFriendSessions(0, []string{"host-user"}))
	f.pumpUntil(t, func() bool { return done })

	require.True(t, ok)
	require.Len(t, results, 1)
	assert.Equal(t, ref, results[0].Ref)
}

func TestRegisterPlayersReservesSlots(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ref := f.createSession(t, "user-a", "Game", models.SessionSettings{})

	var done, ok bool
	f.ctrl.SetDelegates(Delegates{OnRegisterPlayersComplete: func(_ string, _ []string, success bool) { done, ok = true, success }})
	require.NoError(t, f.ctrl.RegisterPlayers("Game", []string{"friend-1"}))
	f.pumpUntil(t, func() bool { return done })

	require.True(t, ok)
	assert.True(t, f.ctrl.GetNamedSession("Game").HasRegisteredPlayer("friend-1"))
	member := f.client.Stored(ref).MemberForUser("friend-1")
	require.NotNil(t, member)
	assert.False(t, member.IsActive, "registration reserves, it does not join")
}

func TestUnregisterPlayersDropsReservations(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ref := f.createSession(t, "user-a", "Game", models.SessionSettings{})

	var registered bool
	f.ctrl.SetDelegates(Delegates{
		OnRegisterPlayersComplete:   func(_ string, _ []string, success bool) { registered = success },
		OnUnregisterPlayersComplete: func(string, []string, bool) {},
	})
	require.NoError(t, f.ctrl.RegisterPlayers("Game", []string{"friend-1"}))
	f.pumpUntil(t, func() bool { return registered })

	var done, ok bool
	f.ctrl.delegates.OnUnregisterPlayersComplete = func(_ string, _ []string, success bool) { done, ok = true, success }
	require.NoError(t, f.ctrl.UnregisterPlayers("Game", []string{"friend-1"}))
	f.pumpUntil(t, func() bool { return done })

	require.True(t, ok)
	assert.False(t, f.ctrl.GetNamedSession("Game").HasRegisteredPlayer("friend-1"))
	assert.Nil(t, f.client.Stored(ref).MemberForUser("friend-1"))
}
