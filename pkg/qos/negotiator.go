// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package qos

import (
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/AccelByte/extend-session-orchestrator/pkg/asynctask"
	"github.com/AccelByte/extend-session-orchestrator/pkg/config"
	"github.com/AccelByte/extend-session-orchestrator/pkg/constants"
	"github.com/AccelByte/extend-session-orchestrator/pkg/document"
	"github.com/AccelByte/extend-session-orchestrator/pkg/envelope"
	"github.com/AccelByte/extend-session-orchestrator/pkg/identity"
	"github.com/AccelByte/extend-session-orchestrator/pkg/metrics"
	"github.com/AccelByte/extend-session-orchestrator/pkg/models"
	"github.com/AccelByte/extend-session-orchestrator/pkg/session"
	"github.com/AccelByte/extend-session-orchestrator/pkg/transport"
)

// MatchmakingNotifier is the slice of the matchmaking controller the
// negotiator reports handshake outcomes to.
type MatchmakingNotifier interface {
	NotifyGameSessionReady(sessionName string)
	NotifyMatchmakingFailed(sessionName string)
}

// Negotiator implements the session controller's InitializationObserver:
// it watches initialization-stage transitions on session members and runs
// the measure-and-upload step when asked to.
type Negotiator struct {
	cfg       *config.Config
	client    document.Client
	identity  identity.Resolver
	transport transport.SecureChannels
	sessions  *session.Controller
	queue     *asynctask.Queue
	metrics   metrics.SessionMetrics
	prober    Prober

	matchmaking MatchmakingNotifier

	// measuring guards against overlapping measurement batches per
	// session; touched only on the consumer goroutine.
	measuring map[string]bool
}

func NewNegotiator(
	cfg *config.Config,
	client document.Client,
	resolver identity.Resolver,
	channels transport.SecureChannels,
	sessions *session.Controller,
	queue *asynctask.Queue,
	sessionMetrics metrics.SessionMetrics,
	prober Prober,
) *Negotiator {
	n := &Negotiator{
		cfg:       cfg,
		client:    client,
		identity:  resolver,
		transport: channels,
		sessions:  sessions,
		queue:     queue,
		metrics:   sessionMetrics,
		prober:    prober,
		measuring: map[string]bool{},
	}
	sessions.BindInitializationObserver(n)

	return n
}

// BindMatchmaking wires the matchmaking controller's outcome hooks.
func (n *Negotiator) BindMatchmaking(notifier MatchmakingNotifier) {
	n.matchmaking = notifier
}

// HandleInitializationStateChange inspects the locally-owned member's
// initialization stage after a refreshed snapshot was installed and reacts
// to it. Runs on the consumer goroutine.
func (n *Negotiator) HandleInitializationStateChange(scope *envelope.Scope, name string) {
	namedSession := n.sessions.GetNamedSession(name)
	if namedSession == nil || namedSession.Document == nil {
		return
	}
	member := namedSession.Document.MemberForUser(namedSession.LocalOwnerID)
	if member == nil {
		return
	}

	switch member.InitializationStage {
	case models.StageMeasuring:
		n.startMeasurement(scope, name, namedSession)

	case models.StageDone:
		if namedSession.IsMatchmakingResult && n.matchmaking != nil {
			n.matchmaking.NotifyGameSessionReady(name)
		}

	case models.StageFailed:
		scope.Log.WithField("session", name).Warn("initialization handshake failed")
		if namedSession.IsMatchmakingResult && n.matchmaking != nil {
			n.matchmaking.NotifyMatchmakingFailed(name)
		}

	default:
	}
}

// startMeasurement launches the measure-and-upload batch: establish a
// channel to every peer, probe them, aggregate, and write the results onto
// every locally-signed-in member of the document.
func (n *Negotiator) startMeasurement(scope *envelope.Scope, name string, namedSession *session.NamedSession) {
	if n.measuring[name] {
		return
	}

	doc := namedSession.Document
	localToken := n.transport.LocalDeviceToken()

	// Peer addresses keyed back to the owning device token.
	tokenByAddress := map[string]string{}
	for i := range doc.Members {
		member := &doc.Members[i]
		if !member.IsActive || member.SecureDeviceAddress == "" {
			continue
		}
		if strings.EqualFold(member.DeviceToken, localToken) {
			continue
		}
		tokenByAddress[member.SecureDeviceAddress] = member.DeviceToken
	}

	var localUsers []string
	for i := range doc.Members {
		if n.identity.IsLocalPlayer(doc.Members[i].UserID) {
			localUsers = append(localUsers, doc.Members[i].UserID)
		}
	}
	if len(localUsers) == 0 {
		n.metrics.AddOperationFailure(name, constants.TaskMeasureQos, constants.FailReasonNoLocalMembers)

		return
	}

	n.measuring[name] = true
	ref := doc.Ref
	isMatchmade := namedSession.IsMatchmakingResult

	task := newMeasureTask(measureTaskSpec{
		sessionName: name,
		run: func(mt *measureTask, scope *envelope.Scope) {
			n.runMeasureAndUpload(mt, scope, name, ref, tokenByAddress, localUsers)
		},
		finalize: func(mt *measureTask, scope *envelope.Scope) {
			n.measuring[name] = false
			if mt.doc != nil {
				n.sessions.Registry().ApplyDocument(name, mt.doc)
			}
		},
		delegates: func(mt *measureTask) {
			if !mt.WasSuccessful() && isMatchmade && n.matchmaking != nil {
				n.matchmaking.NotifyMatchmakingFailed(name)
			}
		},
	})
	n.queue.EnqueueParallel(task)
}

func (n *Negotiator) runMeasureAndUpload(
	mt *measureTask,
	scope *envelope.Scope,
	name string,
	ref models.SessionReference,
	tokenByAddress map[string]string,
	localUsers []string,
) {
	started := time.Now()
	defer func() {
		n.metrics.AddQosMeasureElapsedMs(name, time.Since(started))
	}()

	// The secure channels were deferred at join time; bring them up now so
	// the probes ride the same transport the game traffic will.
	var addresses []string
	for address := range tokenByAddress {
		if _, err := n.transport.EstablishChannel(scope.Ctx, address); err != nil {
			scope.Log.WithField("session", name).WithError(err).Warn("qos: secure channel to peer failed, skipping")

			continue
		}
		addresses = append(addresses, address)
	}

	measurements := map[string]models.QosMeasurement{}
	if len(addresses) > 0 {
		timeout := time.Duration(n.cfg.QosTimeoutMs) * time.Millisecond
		peerMetrics, err := n.prober.MeasurePeers(scope.Ctx, addresses, n.cfg.QosProbeCount, timeout)
		if err != nil {
			scope.Log.WithField("session", name).WithError(err).Warn("qos: probe batch failed")
			n.metrics.AddOperationFailure(name, constants.TaskMeasureQos, constants.FailReasonRemoteFatal)
			mt.MarkFailed()

			return
		}
		for _, metric := range peerMetrics {
			token, ok := tokenByAddress[metric.AddressBase64]
			if !ok || len(metric.LatenciesMs) == 0 {
				continue
			}
			measurements[token] = models.QosMeasurement{
				LatencyAvgMs:      int64(stat.Mean(metric.LatenciesMs, nil)),
				BandwidthDownKbps: metric.BandwidthDownKbps,
				BandwidthUpKbps:   metric.BandwidthUpKbps,
			}
		}
		if len(measurements) == 0 {
			// Every peer was unreachable; the handshake cannot succeed.
			n.metrics.AddOperationFailure(name, constants.TaskMeasureQos, constants.FailReasonNoSecureChannel)
			mt.MarkFailed()

			return
		}
	}

	// Upload the same result set once per locally-signed-in member.
	uploaded := 0
	var latest *models.SessionDocument
	for _, userID := range localUsers {
		if n.uploadForUser(scope, name, ref, userID, measurements, &latest) {
			uploaded++
		}
	}
	if uploaded == 0 {
		n.metrics.AddOperationFailure(name, constants.TaskMeasureQos, constants.FailReasonRemoteFatal)
		mt.MarkFailed()

		return
	}

	mt.doc = latest
	mt.MarkSucceeded()
}

// uploadForUser writes the measurement map onto one member entry with the
// usual synchronized-write retry loop. The latest document is threaded
// through so consecutive uploads do not refetch needlessly.
func (n *Negotiator) uploadForUser(
	scope *envelope.Scope,
	name string,
	ref models.SessionReference,
	userID string,
	measurements map[string]models.QosMeasurement,
	latest **models.SessionDocument,
) bool {
	for attempt := 0; attempt <= n.cfg.JoinSessionMaxRetry; attempt++ {
		doc := *latest
		if doc == nil {
			fetched := n.client.FetchByReference(scope.Ctx, ref)
			if fetched.Outcome != document.OutcomeSucceeded {
				return false
			}
			doc = fetched.Document
		}

		member := doc.MemberForUser(userID)
		if member == nil {
			// Removed while measuring; nothing to upload for this user.
			*latest = doc

			return false
		}
		member.Measurements = measurements

		n.metrics.AddSessionWriteAttempt(name, constants.TaskMeasureQos)
		result := n.client.TryWrite(scope.Ctx, doc, document.WriteModeSynchronizedUpdate)
		switch result.Outcome {
		case document.OutcomeSucceeded:
			*latest = result.Document

			return true
		case document.OutcomeOutOfSync:
			n.metrics.AddSessionWriteConflict(name, constants.TaskMeasureQos)
			*latest = result.Document
		default:
			*latest = nil

			return false
		}
	}

	return false
}
