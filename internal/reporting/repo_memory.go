package reporting

import (
	"context"
	"sort"
	"strings"

	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/calls"
)

// MemoryRepo is a simple in-memory repository useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	Calls     []calls.CallLog
	Emails    []calls.EmailEvent
	Transfers []calls.TransferEvent
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

// newestFirst returns a sorted copy of the calls.
func (r *MemoryRepo) newestFirst() []calls.CallLog {
	out := append([]calls.CallLog(nil), r.Calls...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r *MemoryRepo) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	out.TotalCalls = len(r.Calls)
	for _, e := range r.Emails {
		if e.DeliveryStatus.Delivered() {
			out.EmailsSent++
		}
	}
	out.TransfersLogged = len(r.Transfers)
	if rows := r.newestFirst(); len(rows) > 0 {
		last := rows[0].CreatedAt
		out.LastCallAt = &last
	}
	return out, nil
}

func (r *MemoryRepo) ListCalls(ctx context.Context, offset, limit int) ([]calls.CallLog, int, error) {
	rows := r.newestFirst()
	total := len(rows)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return rows[offset:end], total, nil
}

func (r *MemoryRepo) SearchCalls(ctx context.Context, callID, phone string, day *Range, limit int) ([]calls.CallLog, error) {
	var out []calls.CallLog
	for _, c := range r.newestFirst() {
		if callID != "" && !containsFold(c.CallID, callID) {
			continue
		}
		if phone != "" && !containsFold(c.CallerNumber, phone) {
			continue
		}
		if day != nil && (c.CreatedAt.Before(day.From) || !c.CreatedAt.Before(day.To)) {
			continue
		}
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryRepo) GetCall(ctx context.Context, callID string) (calls.CallLog, error) {
	for _, c := range r.Calls {
		if c.CallID == callID {
			return c, nil
		}
	}
	return calls.CallLog{}, calls.ErrNotFound
}

func (r *MemoryRepo) ListEmailEvents(ctx context.Context, callID string) ([]calls.EmailEvent, error) {
	var out []calls.EmailEvent
	for _, e := range r.Emails {
		if e.CallID == callID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *MemoryRepo) ListTransferEvents(ctx context.Context, callID string) ([]calls.TransferEvent, error) {
	var out []calls.TransferEvent
	for _, e := range r.Transfers {
		if e.CallID == callID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *MemoryRepo) EachCall(ctx context.Context, fn func(calls.CallLog) error) error {
	for _, c := range r.newestFirst() {
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
