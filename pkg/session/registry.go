// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package session implements the named-session registry, the
// retry-on-conflict safe write primitive, and the session lifecycle
// controller that orchestrates create/join/update/destroy against the
// remote versioned document service.
package session

import (
	"sync"

	"github.com/elliotchance/pie/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/typ.v4/slices"

	"github.com/AccelByte/extend-session-orchestrator/pkg/models"
)

// NamedSession is the local bookkeeping for one logical session. All
// mutation happens on the consumer goroutine; background tasks may only
// read the document reference through the registry's guarded accessors.
type NamedSession struct {
	Name     string
	State    models.SessionState
	Settings models.SessionSettings

	// Document is the last-known snapshot of the remote document.
	// Replaced wholesale on every successful fetch or write; its
	// contract version never regresses.
	Document *models.SessionDocument
	// LastDiffed is the snapshot the last change notification was
	// diffed against.
	LastDiffed *models.SessionDocument

	RegisteredPlayers []string

	OwningUserID        string
	LocalOwnerID        string
	HostingPlayerIndex  int
	IsHosting           bool
	IsMatchmakingResult bool

	// RoundID is regenerated on every StartSession for event reporting.
	RoundID string
}

// HasRegisteredPlayer reports whether the user id is locally registered.
func (s *NamedSession) HasRegisteredPlayer(userID string) bool {
	return slices.Contains(s.RegisteredPlayers, userID)
}

// Registry is the in-memory table of locally-known named sessions, at most
// one per logical name.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*NamedSession
}

func NewRegistry() *Registry {
	return &Registry{sessions: map[string]*NamedSession{}}
}

// Add registers a new named session. It reports false without mutating the
// registry when a session of that name already exists.
func (r *Registry) Add(session *NamedSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.Name]; exists {
		logrus.WithField("session", session.Name).Warn("registry: session already exists")

		return false
	}
	r.sessions[session.Name] = session

	return true
}

// Get returns the named session, or nil. The returned pointer must only be
// dereferenced on the consumer goroutine.
func (r *Registry) Get(name string) *NamedSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.sessions[name]
}

// Remove drops the named session. Removing an unknown name is a no-op.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, name)
}

// Count returns the number of locally-known sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

// Names returns the session names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return pie.Sort(pie.Keys(r.sessions))
}

// RefForName returns the session's document reference under lock. This is
// the one accessor background tasks may use, because safe writes started
// off the consumer goroutine need a pre-resolved reference.
func (r *Registry) RefForName(name string) (models.SessionReference, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[name]
	if !ok || session.Document == nil {
		return models.SessionReference{}, false
	}

	return session.Document.Ref, true
}

// FindByRef returns the named session tracking the given reference, or nil.
func (r *Registry) FindByRef(ref models.SessionReference) *NamedSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, session := range r.sessions {
		if session.Document != nil && session.Document.Ref == ref {
			return session
		}
	}

	return nil
}

// ApplyDocument installs a new snapshot on the named session. Snapshots
// with a contract version behind the current one are dropped: a session's
// view of the remote document only ever moves forward.
func (r *Registry) ApplyDocument(name string, doc *models.SessionDocument) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[name]
	if !ok || doc == nil {
		return false
	}
	if session.Document != nil && doc.ContractVersion < session.Document.ContractVersion {
		logrus.WithFields(logrus.Fields{
			"session": name,
			"have":    session.Document.ContractVersion,
			"got":     doc.ContractVersion,
		}).Warn("registry: dropping stale document snapshot")

		return false
	}
	session.Document = doc

	return true
}
