package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/rbac"
	"github.com/prestonbrown26/braselton-phone-water-sewage/pkg/logger"
)

const (
	minPasswordLen = 8
	// bcrypt ignores input past 72 bytes.
	maxPasswordLen = 72
)

// Repository is the persistence contract for admin accounts.
type Repository interface {
	GetByUsername(ctx context.Context, username string) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
	// Upsert inserts u, or on a username conflict replaces the password hash
	// and reactivates the existing row. created reports which happened.
	Upsert(ctx context.Context, u User) (stored User, created bool, err error)
	List(ctx context.Context) ([]User, error)
	Count(ctx context.Context) (int, error)
}

type Service struct {
	repo  Repository
	cost  int
	clock func() time.Time

	// dummyHash keeps Authenticate timing similar for unknown usernames.
	dummyHash []byte
}

func NewService(repo Repository) *Service {
	return newService(repo, bcrypt.DefaultCost)
}

func newService(repo Repository, cost int) *Service {
	dummy, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
	return &Service{repo: repo, cost: cost, clock: time.Now, dummyHash: dummy}
}

// SetPassword creates username with role, or resets its password if it exists.
// An existing account keeps its role.
func (s *Service) SetPassword(ctx context.Context, username, password, role string) (User, bool, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return User{}, false, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return User{}, false, fmt.Errorf("%w: password must be %d to %d characters", ErrInvalidInput, minPasswordLen, maxPasswordLen)
	}
	if role == "" {
		role = rbac.RoleStaff
	}
	if !rbac.IsKnownRole(role) {
		return User{}, false, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return User{}, false, fmt.Errorf("hash password: %w", err)
	}
	now := s.clock().UTC()
	u, created, err := s.repo.Upsert(ctx, User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return User{}, false, err
	}
	return u, created, nil
}

// Authenticate checks a username and password pair.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	u, err := s.repo.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	if !u.Active {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// Get returns an active user by id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !u.Active {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// EnsureBootstrapAdmin creates the first superuser when no accounts exist.
// It does nothing when username is empty or any user is present.
func (s *Service) EnsureBootstrapAdmin(ctx context.Context, username, password string) error {
	if strings.TrimSpace(username) == "" {
		return nil
	}
	n, err := s.repo.Count(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, _, err := s.SetPassword(ctx, username, password, rbac.RoleSuperuser); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	logger.From(ctx).Info("bootstrap superuser created", "username", username)
	return nil
}
