// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package identity is the consumed identity collaborator: it maps net ids
// to locally signed-in users and their session-service credentials.
package identity

import "sync"

// Credential is a locally signed-in user able to talk to the session
// service.
type Credential struct {
	UserID        string
	Gamertag      string
	PlatformIndex int
}

// Resolver resolves net ids against the local sign-in state.
type Resolver interface {
	// ResolveLocalUser returns the credential for a locally signed-in
	// user, or false when the id does not belong to this console.
	ResolveLocalUser(userID string) (Credential, bool)
	// PlatformIndexForUser returns the local player index for a user id,
	// or -1 when the user is not local.
	PlatformIndexForUser(userID string) int
	// IsLocalPlayer reports whether the user is signed in locally.
	IsLocalPlayer(userID string) bool
	// LocalUsers lists every locally signed-in user.
	LocalUsers() []Credential
}

// StaticResolver is a Resolver over a fixed sign-in list. Production
// platforms wrap their account systems; tests construct one directly.
type StaticResolver struct {
	mu    sync.Mutex
	users []Credential
}

func NewStaticResolver(users ...Credential) *StaticResolver {
	return &StaticResolver{users: users}
}

// SignIn adds a user to the local sign-in list.
func (r *StaticResolver) SignIn(user Credential) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, user)
}

// SignOut removes a user from the local sign-in list.
func (r *StaticResolver) SignOut(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, user := range r.users {
		if user.UserID == userID {
			r.users = append(r.users[:i], r.users[i+1:]...)

			return
		}
	}
}

func (r *StaticResolver) ResolveLocalUser(userID string) (Credential, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.UserID == userID {
			return user, true
		}
	}

	return Credential{}, false
}

func (r *StaticResolver) PlatformIndexForUser(userID string) int {
	if user, ok := r.ResolveLocalUser(userID); ok {
		return user.PlatformIndex
	}

	return -1
}

func (r *StaticResolver) IsLocalPlayer(userID string) bool {
	_, ok := r.ResolveLocalUser(userID)

	return ok
}

func (r *StaticResolver) LocalUsers() []Credential {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]Credential, len(r.users))
	copy(users, r.users)

	return users
}
