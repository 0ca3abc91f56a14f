// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package testsetup

import (
	"time"

	"github.com/AccelByte/extend-session-orchestrator/pkg/asynctask"
	"github.com/AccelByte/extend-session-orchestrator/pkg/envelope"
)

const (
	pumpTimeout  = 5 * time.Second
	pumpInterval = 2 * time.Millisecond
)

// PumpUntil ticks the queue on the calling goroutine until the condition
// holds, mirroring a game loop. It reports false when the condition never
// held within the timeout.
func PumpUntil(scope *envelope.Scope, queue *asynctask.Queue, condition func() bool) bool {
	deadline := time.Now().Add(pumpTimeout)
	for time.Now().Before(deadline) {
		queue.Tick(scope)
		if condition() {
			return true
		}
		time.Sleep(pumpInterval)
	}

	return false
}

// Pump runs a fixed number of ticks for flows that complete synchronously
// on the queue.
func Pump(scope *envelope.Scope, queue *asynctask.Queue, ticks int) {
	for i := 0; i < ticks; i++ {
		queue.Tick(scope)
	}
}
