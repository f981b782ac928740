package reporting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts read-only access to call data.
type Repository interface {
	Stats(ctx context.Context) (Stats, error)
	ListCalls(ctx context.Context, offset, limit int) ([]calls.CallLog, int, error)
	SearchCalls(ctx context.Context, callID, phone string, day *Range, limit int) ([]calls.CallLog, error)
	GetCall(ctx context.Context, callID string) (calls.CallLog, error)
	ListEmailEvents(ctx context.Context, callID string) ([]calls.EmailEvent, error)
	ListTransferEvents(ctx context.Context, callID string) ([]calls.TransferEvent, error)
	// EachCall visits every call, newest first, until fn returns an error.
	EachCall(ctx context.Context, fn func(calls.CallLog) error) error
}

type Service struct {
	repo Repository
	loc  *time.Location
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, loc: Eastern()}
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	if s.repo == nil {
		return Stats{}, errors.New("reporting: repository not configured")
	}
	return s.repo.Stats(ctx)
}

// List returns page (1-based) of calls. pageSize is clamped to MaxPageSize.
func (s *Service) List(ctx context.Context, page, pageSize int) (Page, error) {
	if s.repo == nil {
		return Page{}, errors.New("reporting: repository not configured")
	}
	if page < 1 {
		page = 1
	}
	switch {
	case pageSize <= 0:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}

	rows, total, err := s.repo.ListCalls(ctx, (page-1)*pageSize, pageSize)
	if err != nil {
		return Page{}, err
	}
	if rows == nil {
		rows = []calls.CallLog{}
	}
	return Page{Calls: rows, Page: page, PageSize: pageSize, Total: total}, nil
}

// Search matches call_id and caller number case-insensitively by substring.
func (s *Service) Search(ctx context.Context, f SearchFilter) ([]calls.CallLog, error) {
	if s.repo == nil {
		return nil, errors.New("reporting: repository not configured")
	}
	var day *Range
	if d := strings.TrimSpace(f.Date); d != "" {
		start, err := time.ParseInLocation("2006-01-02", d, s.loc)
		if err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidRequest)
		}
		day = &Range{From: start.UTC(), To: start.AddDate(0, 0, 1).UTC()}
	}
	rows, err := s.repo.SearchCalls(ctx, strings.TrimSpace(f.CallID), strings.TrimSpace(f.Phone), day, SearchLimit)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []calls.CallLog{}
	}
	return rows, nil
}

func (s *Service) Detail(ctx context.Context, callID string) (CallDetail, error) {
	if s.repo == nil {
		return CallDetail{}, errors.New("reporting: repository not configured")
	}
	c, err := s.repo.GetCall(ctx, callID)
	if err != nil {
		return CallDetail{}, err
	}
	emails, err := s.repo.ListEmailEvents(ctx, callID)
	if err != nil {
		return CallDetail{}, fmt.Errorf("list email events: %w", err)
	}
	transfers, err := s.repo.ListTransferEvents(ctx, callID)
	if err != nil {
		return CallDetail{}, fmt.Errorf("list transfer events: %w", err)
	}
	if emails == nil {
		emails = []calls.EmailEvent{}
	}
	if transfers == nil {
		transfers = []calls.TransferEvent{}
	}
	return CallDetail{Call: c, Emails: emails, Transfers: transfers}, nil
}
