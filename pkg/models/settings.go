// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package models

import (
	"github.com/mitchellh/copystructure"
)

// Well-known settings keys. Keys prefixed with "Setting" live on session
// settings; keys prefixed with "Search" live on search query settings.
const (
	SettingSessionTemplateName = "SESSION_TEMPLATE_NAME"
	SettingMatchingAttributes  = "MATCHING_ATTRIBUTES"
	SettingPreserveSession     = "MATCHING_PRESERVE_SESSION"
	SettingGameSessionURI      = "GAME_SESSION_URI"
	SettingKeywords            = "SEARCH_KEYWORDS"

	SearchHopperName = "MATCH_HOPPER_NAME"
)

// SessionSettings describes how a session is advertised and joined. The
// fixed flags mirror what the remote document constants carry; Settings is
// the free-form attribute bag advertised alongside them.
type SessionSettings struct {
	NumPublicConnections  int
	NumPrivateConnections int
	ShouldAdvertise       bool
	AllowJoinInProgress   bool
	IsDedicated           bool
	UsesPresence          bool
	AntiCheatProtected    bool
	Settings              map[string]interface{}
}

// Get returns the raw attribute value for key.
func (s *SessionSettings) Get(key string) (interface{}, bool) {
	if s.Settings == nil {
		return nil, false
	}
	v, ok := s.Settings[key]

	return v, ok
}

// GetString returns the attribute value for key when it is a string.
func (s *SessionSettings) GetString(key string) (string, bool) {
	v, ok := s.Get(key)
	if !ok {
		return "", false
	}
	str, ok := v.(string)

	return str, ok
}

// GetBool returns the attribute value for key when it is a bool.
func (s *SessionSettings) GetBool(key string) (bool, bool) {
	v, ok := s.Get(key)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)

	return b, ok
}

// Set stores an attribute value, allocating the bag on first use.
func (s *SessionSettings) Set(key string, value interface{}) {
	if s.Settings == nil {
		s.Settings = map[string]interface{}{}
	}
	s.Settings[key] = value
}

// Clone deep-copies the settings, including the attribute bag.
func (s SessionSettings) Clone() SessionSettings {
	copied, err := copystructure.Copy(s)
	if err != nil {
		panic(err)
	}

	return copied.(SessionSettings)
}

// MaxMembers is the total slot count advertised to the matchmaking service.
func (s *SessionSettings) MaxMembers() int {
	return s.NumPublicConnections + s.NumPrivateConnections
}
