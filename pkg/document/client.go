// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package document defines the versioned-document-store capability the
// orchestrator consumes from the remote session service, together with the
// tagged result types every remote call resolves to. Remote failures are
// values, never errors thrown across the task boundary.
package document

import (
	"context"
	"time"

	"github.com/AccelByte/extend-session-orchestrator/pkg/models"
)

// Outcome classifies the result of a remote document-service call.
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeOutOfSync
	OutcomeNotFound
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "Succeeded"
	case OutcomeOutOfSync:
		return "OutOfSync"
	case OutcomeNotFound:
		return "NotFound"
	case OutcomeFatal:
		return "Fatal"
	}

	return "Invalid"
}

// WriteMode selects the write semantics for TryWrite.
type WriteMode int

const (
	// WriteModeCreateNew fails when a document already exists at the
	// reference.
	WriteModeCreateNew WriteMode = iota
	// WriteModeUpdateExisting writes unconditionally over the stored
	// document.
	WriteModeUpdateExisting
	// WriteModeSynchronizedUpdate writes only when the submitted
	// document's contract version matches the stored one, otherwise the
	// result is OutOfSync carrying the latest document.
	WriteModeSynchronizedUpdate
)

// PreserveSessionMode tells the matchmaking service whether the submitted
// session should survive as the match target or a fresh one be created.
type PreserveSessionMode int

const (
	PreserveSessionNever PreserveSessionMode = iota
	PreserveSessionAlways
)

// FetchResult is the outcome of a fetch. Document is set only on success.
type FetchResult struct {
	Outcome  Outcome
	Document *models.SessionDocument
}

// WriteResult is the outcome of a TryWrite. On OutcomeSucceeded, Document
// is the stored document as written (new contract version included). On
// OutcomeOutOfSync, Document is the latest server-side document, so the
// caller can retry without an extra fetch.
type WriteResult struct {
	Outcome  Outcome
	Document *models.SessionDocument
}

// TicketResult is the outcome of creating a matchmaking ticket.
type TicketResult struct {
	Outcome       Outcome
	TicketID      string
	EstimatedWait time.Duration
}

// SearchFilter narrows a GetSessionsMatching query.
type SearchFilter struct {
	Keyword    string
	MaxResults int
}

// Client is the remote session/matchmaking service capability the core
// consumes. All calls block until the remote operation resolves and are
// only ever invoked from task background goroutines, never from the
// consumer thread.
type Client interface {
	FetchByReference(ctx context.Context, ref models.SessionReference) FetchResult
	FetchByHandle(ctx context.Context, handle string) FetchResult
	TryWrite(ctx context.Context, doc *models.SessionDocument, mode WriteMode) WriteResult

	CreateTicket(ctx context.Context, ref models.SessionReference, hopper, attributes string, timeout time.Duration, preserve PreserveSessionMode) TicketResult
	DeleteTicket(ctx context.Context, hopper, ticketID string) Outcome

	GetSessionsMatching(ctx context.Context, filter SearchFilter) ([]models.SessionSearchResult, Outcome)
	GetActivityForUsers(ctx context.Context, serviceConfigID string, userIDs []string) ([]models.SessionSearchResult, Outcome)
}
