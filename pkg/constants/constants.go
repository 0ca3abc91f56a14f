// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package constants

import "time"

const (
	// SessionNameGame is the conventional name of the primary game session.
	SessionNameGame = "Game"
	// SessionNameParty is the conventional name of the persistent party session.
	SessionNameParty = "Party"
)

const (
	// NotFoundFetchRetryDelay spaces out refetches when a document 404s
	// because it was concurrently removed and recreated.
	NotFoundFetchRetryDelay = 250 * time.Millisecond

	// HostElectionPollDelay spaces out synchronized-write attempts while
	// several consoles race to claim the host device token.
	HostElectionPollDelay = 100 * time.Millisecond
)

const (
	// Session lifecycle task names, used for scope/span naming.
	TaskCreateSession   = "CreateSession"
	TaskJoinSession     = "JoinSession"
	TaskDestroySession  = "DestroySession"
	TaskUpdateSession   = "UpdateSession"
	TaskSafeWrite       = "SafeWriteSession"
	TaskFindSessions    = "FindSessions"
	TaskSubmitTicket    = "SubmitMatchTicket"
	TaskCancelTicket    = "CancelMatchmaking"
	TaskCreateMatch     = "CreateMatchSession"
	TaskMeasureQos      = "MeasureAndUploadQos"
	TaskRegisterPlayer  = "RegisterPlayer"
	TaskGameSessionName = "GameSessionReady"
	TaskRefreshSession  = "RefreshSession"
)

const (
	// Failure reason labels reported through metrics.
	FailReasonOutOfSyncExhausted = "out_of_sync_retries_exhausted"
	FailReasonNotFound           = "session_not_found"
	FailReasonRemoteFatal        = "remote_fatal"
	FailReasonNoLocalMembers     = "no_local_members"
	FailReasonNoSecureChannel    = "no_secure_channel_capability"
	FailReasonTicketCancelled    = "ticket_user_cancelled"
	FailReasonTicketExpired      = "ticket_expired"
)
