package testsetup

import (
	"time"

	"github.com/AccelByte/extend-session-orchestrator/pkg/metrics"
)

type stubMetricsCollection struct{}

func (s stubMetricsCollection) AddSessionWriteAttempt(sessionName, operation string) {
}

func (s stubMetricsCollection) AddSessionWriteConflict(sessionName, operation string) {
}

func (s stubMetricsCollection) AddOperationFailure(sessionName, operation, reason string) {
}

func (s stubMetricsCollection) SetTaskQueueDepth(lane string, depth int) {
}

func (s stubMetricsCollection) AddTicketLifetimeMs(hopper string, lifetime time.Duration) {
}

func (s stubMetricsCollection) AddQosMeasureElapsedMs(sessionName string, elapsedTime time.Duration) {
}

func NewMetrics() metrics.SessionMetrics {
	return stubMetricsCollection{}
}
