// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package transport is the consumed secure-device-association collaborator:
// an opaque "establish a secure channel to peer X" capability plus the
// local console's published address and device token.
package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/AccelByte/extend-session-orchestrator/pkg/common"
)

// SecureChannels establishes encrypted peer-to-peer channels from published
// peer addresses.
type SecureChannels interface {
	// EstablishChannel connects to the peer published at the given
	// base64 address and returns an opaque transport handle. Blocking;
	// only called from task background goroutines.
	EstablishChannel(ctx context.Context, peerAddressBase64 string) (string, error)
	// LocalAddressBase64 is this console's published address.
	LocalAddressBase64() string
	// LocalDeviceToken is the opaque token identifying this console on
	// session documents.
	LocalDeviceToken() string
}

// Loopback is an in-process SecureChannels for tests and offline runs.
// Every address is reachable and channels resolve immediately.
type Loopback struct {
	mu       sync.Mutex
	address  string
	token    string
	channels []string
	fail     bool
}

func NewLoopback() *Loopback {
	return &Loopback{
		address: "addr-" + common.GenerateUUID(),
		token:   "device-" + common.GenerateUUID(),
	}
}

// FailNextEstablish makes the next EstablishChannel call fail.
func (l *Loopback) FailNextEstablish() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fail = true
}

// EstablishedChannels lists the peer addresses connected so far.
func (l *Loopback) EstablishedChannels() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	channels := make([]string, len(l.channels))
	copy(channels, l.channels)

	return channels
}

func (l *Loopback) EstablishChannel(_ context.Context, peerAddressBase64 string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fail {
		l.fail = false

		return "", fmt.Errorf("secure channel to %q refused", peerAddressBase64)
	}

	l.channels = append(l.channels, peerAddressBase64)

	return "channel-" + peerAddressBase64, nil
}

func (l *Loopback) LocalAddressBase64() string {
	return l.address
}

func (l *Loopback) LocalDeviceToken() string {
	return l.token
}
