// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package config

import (
	"github.com/caarlos0/env"
)

type Config struct {
	ServiceConfigID         string `env:"SERVICE_CONFIG_ID"           envDefault:"local" envDocs:"service configuration id new session references are minted under"`
	SessionWriteMaxRetry    int    `env:"SESSION_WRITE_MAX_RETRY"     envDefault:"5"     envDocs:"retry budget for member and session safe writes"`
	JoinSessionMaxRetry     int    `env:"JOIN_SESSION_MAX_RETRY"      envDefault:"20"    envDocs:"retry budget for join-session and QoS write flows"`
	MemberUpdateMaxRetry    int    `env:"MEMBER_UPDATE_MAX_RETRY"     envDefault:"10"    envDocs:"retry budget for member-scoped property writes"`
	HostElectionMaxAttempts int    `env:"HOST_ELECTION_MAX_ATTEMPTS"  envDefault:"30"    envDocs:"upper bound on synchronized-write attempts during greedy host election"`
	QosTimeoutMs            int    `env:"QOS_TIMEOUT_MS"              envDefault:"10000" envDocs:"timeout for a QoS measurement batch in milliseconds"`
	QosProbeCount           int    `env:"QOS_PROBE_COUNT"             envDefault:"8"     envDocs:"number of probes per peer in a QoS measurement batch"`
	MatchTicketTimeoutSec   int    `env:"MATCH_TICKET_TIMEOUT_SECOND" envDefault:"300"   envDocs:"default matchmaking ticket timeout in seconds when search settings carry none"`
	OnlyHostUpdateSession   bool   `env:"ONLY_HOST_UPDATE_SESSION"    envDefault:"true"  envDocs:"if true only the session's owning user may push settings to the remote document"`
}

// FromEnv builds a Config from process environment variables.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
