package calls

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and local development.
// Units of work are serialized by a single mutex and applied to a private
// copy of the state, which replaces the shared state only on success.
type MemoryStore struct {
	mu     sync.Mutex
	state  memState
	faults map[string]error
}

type memState struct {
	nextID    int64
	calls     map[string]CallLog
	emails    []EmailEvent
	transfers []TransferEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: memState{calls: map[string]CallLog{}}, faults: map[string]error{}}
}

// FailOn makes the named Tx operation (e.g. "InsertTransferEvent") return err
// until cleared with a nil err.
func (s *MemoryStore) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(ctx, &memTx{st: &work, faults: s.faults}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// Calls returns every stored call ordered by id.
func (s *MemoryStore) Calls() []CallLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CallLog, 0, len(s.state.calls))
	for _, c := range s.state.calls {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) Call(callID string) (CallLog, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.state.calls[callID]
	return c, ok
}

func (s *MemoryStore) EmailEvents() []EmailEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]EmailEvent(nil), s.state.emails...)
}

func (s *MemoryStore) TransferEvents() []TransferEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TransferEvent(nil), s.state.transfers...)
}

func (st memState) clone() memState {
	out := memState{
		nextID:    st.nextID,
		calls:     make(map[string]CallLog, len(st.calls)),
		emails:    append([]EmailEvent(nil), st.emails...),
		transfers: append([]TransferEvent(nil), st.transfers...),
	}
	for k, v := range st.calls {
		out.calls[k] = v
	}
	return out
}

type memTx struct {
	st     *memState
	faults map[string]error
}

func (t *memTx) fault(op string) error {
	return t.faults[op]
}

// Locks are no-ops: the store mutex already serializes every unit of work.
func (t *memTx) LockCallKey(ctx context.Context, callID string) error {
	return t.fault("LockCallKey")
}

func (t *memTx) LockCallerKey(ctx context.Context, callerNumber string) error {
	return t.fault("LockCallerKey")
}

func (t *memTx) GetCall(ctx context.Context, callID string) (CallLog, error) {
	if err := t.fault("GetCall"); err != nil {
		return CallLog{}, err
	}
	c, ok := t.st.calls[callID]
	if !ok {
		return CallLog{}, ErrNotFound
	}
	return c, nil
}

func (t *memTx) FindCorrelationCandidate(ctx context.Context, q CandidateQuery) (CallLog, error) {
	if err := t.fault("FindCorrelationCandidate"); err != nil {
		return CallLog{}, err
	}
	var best CallLog
	found := false
	for _, c := range t.st.calls {
		if !q.Matches(c) {
			continue
		}
		if !found || c.CreatedAt.After(best.CreatedAt) || (c.CreatedAt.Equal(best.CreatedAt) && c.ID > best.ID) {
			best = c
			found = true
		}
	}
	if !found {
		return CallLog{}, ErrNotFound
	}
	return best, nil
}

func (t *memTx) InsertCall(ctx context.Context, c *CallLog) error {
	if err := t.fault("InsertCall"); err != nil {
		return err
	}
	if _, exists := t.st.calls[c.CallID]; exists {
		return fmt.Errorf("insert call %q: %w", c.CallID, ErrConflict)
	}
	t.st.nextID++
	c.ID = t.st.nextID
	t.st.calls[c.CallID] = *c
	return nil
}

func (t *memTx) UpdateCall(ctx context.Context, c CallLog) error {
	if err := t.fault("UpdateCall"); err != nil {
		return err
	}
	if _, ok := t.st.calls[c.CallID]; !ok {
		return ErrNotFound
	}
	t.st.calls[c.CallID] = c
	return nil
}

func (t *memTx) DeleteCall(ctx context.Context, callID string) error {
	if err := t.fault("DeleteCall"); err != nil {
		return err
	}
	if _, ok := t.st.calls[callID]; !ok {
		return ErrNotFound
	}
	delete(t.st.calls, callID)

	// Cascade, mirroring ON DELETE CASCADE.
	emails := t.st.emails[:0]
	for _, e := range t.st.emails {
		if e.CallID != callID {
			emails = append(emails, e)
		}
	}
	t.st.emails = emails
	transfers := t.st.transfers[:0]
	for _, e := range t.st.transfers {
		if e.CallID != callID {
			transfers = append(transfers, e)
		}
	}
	t.st.transfers = transfers
	return nil
}

func (t *memTx) InsertEmailEvent(ctx context.Context, e EmailEvent) error {
	if err := t.fault("InsertEmailEvent"); err != nil {
		return err
	}
	if _, ok := t.st.calls[e.CallID]; !ok {
		return fmt.Errorf("email event for unknown call %q: %w", e.CallID, ErrNotFound)
	}
	t.st.emails = append(t.st.emails, e)
	return nil
}

func (t *memTx) GetEmailEvent(ctx context.Context, id string) (EmailEvent, error) {
	if err := t.fault("GetEmailEvent"); err != nil {
		return EmailEvent{}, err
	}
	for _, e := range t.st.emails {
		if e.ID == id {
			return e, nil
		}
	}
	return EmailEvent{}, ErrNotFound
}

func (t *memTx) SetEmailDelivery(ctx context.Context, id string, status DeliveryStatus, deliveryErr string, at time.Time) error {
	if err := t.fault("SetEmailDelivery"); err != nil {
		return err
	}
	for i, e := range t.st.emails {
		if e.ID != id {
			continue
		}
		if e.DeliveryStatus != DeliveryPending {
			return nil
		}
		completed := at
		e.DeliveryStatus = status
		e.DeliveryError = deliveryErr
		e.CompletedAt = &completed
		t.st.emails[i] = e
		return nil
	}
	return ErrNotFound
}

func (t *memTx) InsertTransferEvent(ctx context.Context, e TransferEvent) error {
	if err := t.fault("InsertTransferEvent"); err != nil {
		return err
	}
	if _, ok := t.st.calls[e.CallID]; !ok {
		return fmt.Errorf("transfer event for unknown call %q: %w", e.CallID, ErrNotFound)
	}
	t.st.transfers = append(t.st.transfers, e)
	return nil
}

func (t *memTx) ReassignEvents(ctx context.Context, fromCallID, toCallID string) error {
	if err := t.fault("ReassignEvents"); err != nil {
		return err
	}
	for i := range t.st.emails {
		if t.st.emails[i].CallID == fromCallID {
			t.st.emails[i].CallID = toCallID
		}
	}
	for i := range t.st.transfers {
		if t.st.transfers[i].CallID == fromCallID {
			t.st.transfers[i].CallID = toCallID
		}
	}
	return nil
}

func (t *memTx) EventSummary(ctx context.Context, callID string) (EventSummary, error) {
	if err := t.fault("EventSummary"); err != nil {
		return EventSummary{}, err
	}
	var out EventSummary
	for _, e := range t.st.emails {
		if e.CallID != callID {
			continue
		}
		out.EmailsTotal++
		if e.DeliveryStatus.Delivered() {
			out.EmailsDelivered++
		}
	}
	for _, e := range t.st.transfers {
		if e.CallID == callID {
			out.Transfers++
		}
	}
	return out, nil
}
