package reporting

import (
	"time"

	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/calls"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
	SearchLimit     = 100
)

// Page is one page of the call listing, newest first.
type Page struct {
	Calls    []calls.CallLog `json:"calls"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	Total    int             `json:"total"`
}

// SearchFilter narrows the transcript search. Empty fields match everything.
type SearchFilter struct {
	CallID string
	Phone  string
	// Date is a calendar day in Eastern time, formatted YYYY-MM-DD.
	Date string
}

// Range is a half-open [From, To) interval used by repository queries.
type Range struct {
	From time.Time
	To   time.Time
}

// CallDetail is one call with every event attached to it.
type CallDetail struct {
	Call      calls.CallLog         `json:"call"`
	Emails    []calls.EmailEvent    `json:"email_events"`
	Transfers []calls.TransferEvent `json:"transfer_events"`
}

// Stats feeds the admin dashboard.
type Stats struct {
	TotalCalls      int        `json:"total_calls"`
	EmailsSent      int        `json:"emails_sent"`
	TransfersLogged int        `json:"transfers"`
	LastCallAt      *time.Time `json:"last_call_at,omitempty"`
}
