// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type SessionMetrics interface {
	AddSessionWriteAttempt(sessionName, operation string)
	AddSessionWriteConflict(sessionName, operation string)
	AddOperationFailure(sessionName, operation, reason string)
	SetTaskQueueDepth(lane string, depth int)
	AddTicketLifetimeMs(hopper string, lifetime time.Duration)
	AddQosMeasureElapsedMs(sessionName string, elapsedTime time.Duration)
}

func NewMetrics(registry *prometheus.Registry) SessionMetrics {
	return setupPrometheusMetrics(registry)
}
