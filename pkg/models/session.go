// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package models defines the session document data model shared by the
// orchestrator packages: references, documents, members, settings, and the
// enums that describe session and matchmaking state.
package models

import (
	"fmt"
	"strings"

	"github.com/mitchellh/copystructure"
)

// SessionReference identifies a session document on the remote service.
type SessionReference struct {
	ServiceConfigID string `json:"service_config_id"`
	TemplateName    string `json:"template_name"`
	SessionID       string `json:"session_id"`
}

// IsZero reports whether the reference does not point at any document.
func (r SessionReference) IsZero() bool {
	return r.ServiceConfigID == "" && r.TemplateName == "" && r.SessionID == ""
}

// URIPath renders the reference as the canonical service URI path. It is
// also used as the map key wherever sessions are indexed by reference.
func (r SessionReference) URIPath() string {
	return fmt.Sprintf("/serviceconfigs/%s/sessiontemplates/%s/sessions/%s", r.ServiceConfigID, r.TemplateName, r.SessionID)
}

// ParseSessionReferenceURI parses a canonical service URI path back into a
// reference. Used for join-in-progress, where the target game session is
// advertised through a URI setting on the party session.
func ParseSessionReferenceURI(path string) (SessionReference, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 6 || parts[0] != "serviceconfigs" || parts[2] != "sessiontemplates" || parts[4] != "sessions" {
		return SessionReference{}, fmt.Errorf("malformed session reference uri %q", path)
	}

	return SessionReference{
		ServiceConfigID: parts[1],
		TemplateName:    parts[3],
		SessionID:       parts[5],
	}, nil
}

// SessionState tracks the local lifecycle of a named session.
type SessionState int

const (
	SessionStateNoSession SessionState = iota
	SessionStateCreating
	SessionStatePending
	SessionStateStarting
	SessionStateInProgress
	SessionStateEnding
	SessionStateEnded
	SessionStateDestroying
)

func (s SessionState) String() string {
	switch s {
	case SessionStateNoSession:
		return "NoSession"
	case SessionStateCreating:
		return "Creating"
	case SessionStatePending:
		return "Pending"
	case SessionStateStarting:
		return "Starting"
	case SessionStateInProgress:
		return "InProgress"
	case SessionStateEnding:
		return "Ending"
	case SessionStateEnded:
		return "Ended"
	case SessionStateDestroying:
		return "Destroying"
	}

	return "Unknown"
}

// InitializationStage mirrors the per-member initialization stage reported
// by the remote document during QoS evaluation. StageDone is the terminal
// success stage the service reports as stage zero.
type InitializationStage int

const (
	StageDone InitializationStage = iota
	StageUnknown
	StageJoining
	StageMeasuring
	StageEvaluating
	StageFailed
)

func (s InitializationStage) String() string {
	switch s {
	case StageDone:
		return "Done"
	case StageUnknown:
		return "Unknown"
	case StageJoining:
		return "Joining"
	case StageMeasuring:
		return "Measuring"
	case StageEvaluating:
		return "Evaluating"
	case StageFailed:
		return "Failed"
	}

	return "Invalid"
}

// MatchmakingStatus is the remote matchmaking server status carried on a
// match session document.
type MatchmakingStatus int

const (
	MatchStatusUnknown MatchmakingStatus = iota
	MatchStatusNone
	MatchStatusSearching
	MatchStatusExpired
	MatchStatusFound
	MatchStatusCanceled
)

func (s MatchmakingStatus) String() string {
	switch s {
	case MatchStatusUnknown:
		return "Unknown"
	case MatchStatusNone:
		return "None"
	case MatchStatusSearching:
		return "Searching"
	case MatchStatusExpired:
		return "Expired"
	case MatchStatusFound:
		return "Found"
	case MatchStatusCanceled:
		return "Canceled"
	}

	return "Invalid"
}

// SessionChangeTypes is the change mask delivered with session-changed push
// notifications.
type SessionChangeTypes uint32

const (
	ChangeNone                SessionChangeTypes = 0
	ChangeMemberList          SessionChangeTypes = 1 << 0
	ChangeMatchmakingStatus   SessionChangeTypes = 1 << 1
	ChangeInitializationState SessionChangeTypes = 1 << 2
	ChangeHostDeviceToken     SessionChangeTypes = 1 << 3
	ChangeCustomProperty      SessionChangeTypes = 1 << 4
	ChangeJoinability         SessionChangeTypes = 1 << 5
	ChangeEverything          SessionChangeTypes = 0xffffffff
)

// Has reports whether the mask contains the given change.
func (c SessionChangeTypes) Has(change SessionChangeTypes) bool {
	return c&change != 0
}

// QosMeasurement is one aggregated latency/bandwidth measurement against a
// single peer, keyed externally by the peer's device token.
type QosMeasurement struct {
	LatencyAvgMs      int64  `json:"latency_avg_ms"`
	BandwidthDownKbps uint32 `json:"bandwidth_down_kbps"`
	BandwidthUpKbps   uint32 `json:"bandwidth_up_kbps"`
	CustomJSON        string `json:"custom_json"`
}

// SessionMember is one member entry on a session document.
type SessionMember struct {
	UserID              string                    `json:"user_id"`
	DeviceToken         string                    `json:"device_token"`
	SecureDeviceAddress string                    `json:"secure_device_address"`
	IsActive            bool                      `json:"is_active"`
	InitializationStage InitializationStage       `json:"initialization_stage"`
	Measurements        map[string]QosMeasurement `json:"measurements,omitempty"`
	Properties          map[string]interface{}    `json:"properties,omitempty"`
}

// MatchmakingServerInfo is the matchmaking block on a match session
// document, populated by the remote matchmaking service.
type MatchmakingServerInfo struct {
	Status           MatchmakingStatus `json:"status"`
	StatusDetails    string            `json:"status_details,omitempty"`
	TargetSessionRef SessionReference  `json:"target_session_ref"`
}

// SessionDocument is the local snapshot of one remote versioned session
// document. Snapshots have value semantics: every successful fetch or write
// replaces the previous snapshot wholesale, and ContractVersion only ever
// moves forward from the local client's perspective.
type SessionDocument struct {
	Ref               SessionReference       `json:"ref"`
	ContractVersion   int64                  `json:"contract_version"`
	HostDeviceToken   string                 `json:"host_device_token,omitempty"`
	Members           []SessionMember        `json:"members"`
	Properties        map[string]interface{} `json:"properties,omitempty"`
	Constants         map[string]interface{} `json:"constants,omitempty"`
	MatchmakingServer *MatchmakingServerInfo `json:"matchmaking_server,omitempty"`
	CorrelationID     string                 `json:"correlation_id,omitempty"`
}

// Clone deep-copies the document so mutators can work on an owned value.
func (d *SessionDocument) Clone() *SessionDocument {
	copied, err := copystructure.Copy(d)
	if err != nil {
		// The document graph is plain data; a copy failure is a
		// programming error, not a runtime condition.
		panic(err)
	}

	return copied.(*SessionDocument)
}

// MemberForUser returns the member entry for the given user id, or nil.
func (d *SessionDocument) MemberForUser(userID string) *SessionMember {
	for i := range d.Members {
		if d.Members[i].UserID == userID {
			return &d.Members[i]
		}
	}

	return nil
}

// MemberForDeviceToken returns the first member holding the given device
// token. Token comparison is case-insensitive, matching service behavior.
func (d *SessionDocument) MemberForDeviceToken(deviceToken string) *SessionMember {
	for i := range d.Members {
		if strings.EqualFold(d.Members[i].DeviceToken, deviceToken) {
			return &d.Members[i]
		}
	}

	return nil
}

// HostMember returns the member designated as host by the host device
// token, or nil when no host has been elected yet.
func (d *SessionDocument) HostMember() *SessionMember {
	if d.HostDeviceToken == "" {
		return nil
	}

	return d.MemberForDeviceToken(d.HostDeviceToken)
}

// ActiveMemberCount counts members that hold a real slot rather than a
// reservation.
func (d *SessionDocument) ActiveMemberCount() int {
	count := 0
	for i := range d.Members {
		if d.Members[i].IsActive {
			count++
		}
	}

	return count
}

// HasReservationFor reports whether the document carries an inactive member
// entry for the given user, i.e. a reservation that lets the user join a
// full session.
func (d *SessionDocument) HasReservationFor(userID string) bool {
	member := d.MemberForUser(userID)

	return member != nil && !member.IsActive
}

// AddOrActivateMember marks the given user active on the document, creating
// the member entry when none exists and claiming an existing reservation
// otherwise.
func (d *SessionDocument) AddOrActivateMember(userID, deviceToken, secureAddress string) *SessionMember {
	if member := d.MemberForUser(userID); member != nil {
		member.IsActive = true
		member.DeviceToken = deviceToken
		member.SecureDeviceAddress = secureAddress

		return member
	}

	d.Members = append(d.Members, SessionMember{
		UserID:              userID,
		DeviceToken:         deviceToken,
		SecureDeviceAddress: secureAddress,
		IsActive:            true,
		InitializationStage: StageUnknown,
	})

	return &d.Members[len(d.Members)-1]
}

// RemoveMember drops the member entry for the given user. It reports
// whether an entry was removed.
func (d *SessionDocument) RemoveMember(userID string) bool {
	for i := range d.Members {
		if d.Members[i].UserID == userID {
			d.Members = append(d.Members[:i], d.Members[i+1:]...)

			return true
		}
	}

	return false
}
