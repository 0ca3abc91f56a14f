// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package models

// JoinResultCode is the result surfaced through OnJoinSessionComplete.
type JoinResultCode int

const (
	JoinSuccess JoinResultCode = iota
	JoinSessionIsFull
	JoinSessionDoesNotExist
	JoinAlreadyInSession
	JoinCouldNotRetrieveAddress
	JoinUnknownError
)

func (r JoinResultCode) String() string {
	switch r {
	case JoinSuccess:
		return "Success"
	case JoinSessionIsFull:
		return "SessionIsFull"
	case JoinSessionDoesNotExist:
		return "SessionDoesNotExist"
	case JoinAlreadyInSession:
		return "AlreadyInSession"
	case JoinCouldNotRetrieveAddress:
		return "CouldNotRetrieveAddress"
	case JoinUnknownError:
		return "UnknownError"
	}

	return "Invalid"
}

// SessionSearch is a caller-supplied search request. Matchmaking keeps a
// copy of the original search so it can resubmit tickets after membership
// changes.
type SessionSearch struct {
	MaxResults     int
	TimeoutSeconds int
	QuerySettings  map[string]interface{}
}

// GetQueryString returns a query setting when it is a string.
func (s *SessionSearch) GetQueryString(key string) (string, bool) {
	if s.QuerySettings == nil {
		return "", false
	}
	v, ok := s.QuerySettings[key]
	if !ok {
		return "", false
	}
	str, ok := v.(string)

	return str, ok
}

// SessionSearchResult is one advertised session returned from a search or
// friend-activity query.
type SessionSearchResult struct {
	Ref      SessionReference
	Settings SessionSettings
	Document *SessionDocument
	PingInMs int
}
