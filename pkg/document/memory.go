// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package document

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/AccelByte/extend-session-orchestrator/pkg/models"
)

// Fault operation labels for InjectFault.
const (
	OpFetch        = "fetch"
	OpWrite        = "write"
	OpCreateTicket = "create_ticket"
	OpDeleteTicket = "delete_ticket"
	OpSearch       = "search"
)

// MemoryClient is an in-process Client backed by a versioned map. It is the
// reference semantics for the remote collaborator: synchronized writes are
// compare-and-swap on the contract version, and conflicting writers get the
// latest document back with OutOfSync. Tests drive conflict and failure
// paths through InjectFault, which schedules outcomes consumed FIFO per
// operation before the real behavior applies.
type MemoryClient struct {
	mu      sync.Mutex
	docs    map[string]*models.SessionDocument
	handles map[string]models.SessionReference
	tickets map[string]string // ticketID -> hopper
	faults  map[string][]Outcome

	writeCount  map[string]int // ref URI -> TryWrite calls, for tests
	ticketCalls int
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		docs:       map[string]*models.SessionDocument{},
		handles:    map[string]models.SessionReference{},
		tickets:    map[string]string{},
		faults:     map[string][]Outcome{},
		writeCount: map[string]int{},
	}
}

// InjectFault schedules an outcome for the next call of the given
// operation. Scheduled outcomes are consumed in order.
func (c *MemoryClient) InjectFault(op string, outcome Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults[op] = append(c.faults[op], outcome)
}

func (c *MemoryClient) takeFault(op string) (Outcome, bool) {
	queued := c.faults[op]
	if len(queued) == 0 {
		return OutcomeSucceeded, false
	}
	c.faults[op] = queued[1:]

	return queued[0], true
}

// Seed stores a document directly, bypassing write semantics. Test setup
// helper.
func (c *MemoryClient) Seed(doc *models.SessionDocument) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[doc.Ref.URIPath()] = doc.Clone()
}

// SeedHandle maps an opaque handle (e.g. an invite handle) to a reference.
func (c *MemoryClient) SeedHandle(handle string, ref models.SessionReference) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handles[handle] = ref
}

// Stored returns a copy of the stored document at ref, or nil.
func (c *MemoryClient) Stored(ref models.SessionReference) *models.SessionDocument {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.docs[ref.URIPath()]
	if !ok {
		return nil
	}

	return doc.Clone()
}

// WriteCalls returns how many TryWrite calls were made against ref.
func (c *MemoryClient) WriteCalls(ref models.SessionReference) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.writeCount[ref.URIPath()]
}

// TicketCalls returns how many CreateTicket calls were made.
func (c *MemoryClient) TicketCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ticketCalls
}

// HasTicket reports whether a ticket id is live on the service.
func (c *MemoryClient) HasTicket(ticketID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.tickets[ticketID]

	return ok
}

func (c *MemoryClient) FetchByReference(_ context.Context, ref models.SessionReference) FetchResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if outcome, ok := c.takeFault(OpFetch); ok && outcome != OutcomeSucceeded {
		return FetchResult{Outcome: outcome}
	}

	doc, ok := c.docs[ref.URIPath()]
	if !ok {
		return FetchResult{Outcome: OutcomeNotFound}
	}

	return FetchResult{Outcome: OutcomeSucceeded, Document: doc.Clone()}
}

func (c *MemoryClient) FetchByHandle(ctx context.Context, handle string) FetchResult {
	c.mu.Lock()
	ref, ok := c.handles[handle]
	c.mu.Unlock()
	if !ok {
		return FetchResult{Outcome: OutcomeNotFound}
	}

	return c.FetchByReference(ctx, ref)
}

func (c *MemoryClient) TryWrite(_ context.Context, doc *models.SessionDocument, mode WriteMode) WriteResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := doc.Ref.URIPath()
	c.writeCount[key]++

	if outcome, ok := c.takeFault(OpWrite); ok && outcome != OutcomeSucceeded {
		if outcome == OutcomeOutOfSync {
			if stored, exists := c.docs[key]; exists {
				return WriteResult{Outcome: OutcomeOutOfSync, Document: stored.Clone()}
			}
		}

		return WriteResult{Outcome: outcome}
	}

	stored, exists := c.docs[key]

	switch mode {
	case WriteModeCreateNew:
		if exists {
			logrus.WithField("ref", key).Warn("memory client: create-new over existing document")

			return WriteResult{Outcome: OutcomeFatal}
		}
	case WriteModeUpdateExisting:
		if !exists {
			return WriteResult{Outcome: OutcomeNotFound}
		}
	case WriteModeSynchronizedUpdate:
		if !exists {
			return WriteResult{Outcome: OutcomeNotFound}
		}
		if stored.ContractVersion != doc.ContractVersion {
			return WriteResult{Outcome: OutcomeOutOfSync, Document: stored.Clone()}
		}
	}

	written := doc.Clone()
	written.ContractVersion++
	c.docs[key] = written

	return WriteResult{Outcome: OutcomeSucceeded, Document: written.Clone()}
}

func (c *MemoryClient) CreateTicket(_ context.Context, _ models.SessionReference, hopper, _ string, _ time.Duration, _ PreserveSessionMode) TicketResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ticketCalls++

	if outcome, ok := c.takeFault(OpCreateTicket); ok && outcome != OutcomeSucceeded {
		return TicketResult{Outcome: outcome}
	}

	ticketID := ulid.Make().String()
	c.tickets[ticketID] = hopper

	return TicketResult{Outcome: OutcomeSucceeded, TicketID: ticketID, EstimatedWait: 5 * time.Second}
}

func (c *MemoryClient) DeleteTicket(_ context.Context, hopper, ticketID string) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if outcome, ok := c.takeFault(OpDeleteTicket); ok && outcome != OutcomeSucceeded {
		return outcome
	}

	if owner, ok := c.tickets[ticketID]; !ok || owner != hopper {
		// Deleting an unknown ticket is the expected race with a match
		// completing; the service treats it as success.
		return OutcomeSucceeded
	}
	delete(c.tickets, ticketID)

	return OutcomeSucceeded
}

func (c *MemoryClient) GetSessionsMatching(_ context.Context, filter SearchFilter) ([]models.SessionSearchResult, Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if outcome, ok := c.takeFault(OpSearch); ok && outcome != OutcomeSucceeded {
		return nil, outcome
	}

	results := make([]models.SessionSearchResult, 0)
	for _, doc := range c.docs {
		if filter.Keyword != "" {
			keyword, _ := doc.Properties[models.SettingKeywords].(string)
			if !strings.EqualFold(keyword, filter.Keyword) {
				continue
			}
		}
		results = append(results, models.SessionSearchResult{Ref: doc.Ref, Document: doc.Clone()})
		if filter.MaxResults > 0 && len(results) >= filter.MaxResults {
			break
		}
	}

	return results, OutcomeSucceeded
}

func (c *MemoryClient) GetActivityForUsers(_ context.Context, serviceConfigID string, userIDs []string) ([]models.SessionSearchResult, Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if outcome, ok := c.takeFault(OpSearch); ok && outcome != OutcomeSucceeded {
		return nil, outcome
	}

	results := make([]models.SessionSearchResult, 0)
	for _, doc := range c.docs {
		if doc.Ref.ServiceConfigID != serviceConfigID {
			continue
		}
		for _, userID := range userIDs {
			if member := doc.MemberForUser(userID); member != nil && member.IsActive {
				results = append(results, models.SessionSearchResult{Ref: doc.Ref, Document: doc.Clone()})

				break
			}
		}
	}

	return results, OutcomeSucceeded
}
