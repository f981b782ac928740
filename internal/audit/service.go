package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// There are no Update or Delete methods.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records admin configuration changes.
// Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Actor identifies who made a change.
type Actor struct {
	UserID   string
	Username string
	IP       string
}

// LogChange records one configuration change by actor.
func (s *Service) LogChange(ctx context.Context, actor Actor, typ EventType, target, message, metadata string) error {
	return s.Append(ctx, Event{
		Type:          typ,
		ActorUserID:   actor.UserID,
		ActorUsername: actor.Username,
		IPAddress:     actor.IP,
		Target:        target,
		Message:       message,
		Metadata:      metadata,
	})
}
