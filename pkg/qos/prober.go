// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package qos drives the initialization handshake of matchmade sessions:
// when the service asks members to measure, it probes connection quality to
// every peer and uploads the aggregated results for each locally-signed-in
// member.
package qos

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// PeerMetric is the raw probe output for one peer address.
type PeerMetric struct {
	AddressBase64     string
	LatenciesMs       []float64
	BandwidthDownKbps uint32
	BandwidthUpKbps   uint32
}

// Prober measures connection quality against a set of peer addresses.
// Blocking; only called from task background goroutines. Peers that could
// not be measured are simply absent from the result.
type Prober interface {
	MeasurePeers(ctx context.Context, addresses []string, probeCount int, timeout time.Duration) ([]PeerMetric, error)
}

// StaticProber is an in-process Prober for tests: it answers from a fixed
// table and can be told to fail outright.
type StaticProber struct {
	mu      sync.Mutex
	metrics map[string]PeerMetric
	fail    bool
}

func NewStaticProber() *StaticProber {
	return &StaticProber{metrics: map[string]PeerMetric{}}
}

// SetPeerMetric installs the canned measurement for an address.
func (p *StaticProber) SetPeerMetric(address string, metric PeerMetric) {
	p.mu.Lock()
	defer p.mu.Unlock()
	metric.AddressBase64 = address
	p.metrics[address] = metric
}

// FailNextMeasure makes the next MeasurePeers call fail.
func (p *StaticProber) FailNextMeasure() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = true
}

func (p *StaticProber) MeasurePeers(_ context.Context, addresses []string, _ int, _ time.Duration) ([]PeerMetric, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fail {
		p.fail = false

		return nil, fmt.Errorf("probe batch failed")
	}

	var results []PeerMetric
	for _, address := range addresses {
		if metric, ok := p.metrics[address]; ok {
			results = append(results, metric)
		}
	}

	return results, nil
}
