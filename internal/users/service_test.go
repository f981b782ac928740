package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"golang.org/x/crypto/bcrypt"

	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/rbac"
)

func newTestService() (*Service, *MemoryRepo) {
	repo := NewMemoryRepo()
	return newService(repo, bcrypt.MinCost), repo
}

func TestService_SetPasswordCreatesThenResets(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	u, created, err := svc.SetPassword(ctx, " clerk ", "first-password", "")
	if err != nil || !created {
		t.Fatalf("create: created=%v err=%v", created, err)
	}
	if u.Username != "clerk" || u.Role != rbac.RoleStaff {
		t.Fatalf("unexpected user %+v", u)
	}

	again, created, err := svc.SetPassword(ctx, "clerk", "second-password", rbac.RoleSuperuser)
	if err != nil || created {
		t.Fatalf("reset: created=%v err=%v", created, err)
	}
	if again.ID != u.ID || again.Role != rbac.RoleStaff {
		t.Fatalf("reset must keep id and role, got %+v", again)
	}

	if _, err := svc.Authenticate(ctx, "clerk", "first-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "clerk", "second-password"); err != nil {
		t.Fatalf("new password: %v", err)
	}
}

func TestService_SetPasswordValidates(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	for _, tc := range []struct{ user, pass, role string }{
		{"", "long-enough", ""},
		{"clerk", "", ""},
		{"clerk", "short", ""},
		{"clerk", "long-enough", "owner"},
	} {
		if _, _, err := svc.SetPassword(ctx, tc.user, tc.pass, tc.role); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%+v: expected ErrInvalidInput, got %v", tc, err)
		}
	}
}

func TestService_AuthenticateRejects(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	if _, err := svc.Authenticate(ctx, "nobody", "whatever-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: %v", err)
	}
	u, _, err := svc.SetPassword(ctx, "clerk", "correct-horse", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	repo.Deactivate(u.ID)
	if _, err := svc.Authenticate(ctx, "clerk", "correct-horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("inactive user: %v", err)
	}
	if _, err := svc.Get(ctx, u.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("inactive user lookup: %v", err)
	}
}

func TestService_EnsureBootstrapAdmin(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	if err := svc.EnsureBootstrapAdmin(ctx, "admin", "bootstrap-pass"); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	u, err := repo.GetByUsername(ctx, "admin")
	if err != nil || u.Role != rbac.RoleSuperuser {
		t.Fatalf("expected superuser, got %+v %v", u, err)
	}
	if err := svc.EnsureBootstrapAdmin(ctx, "second", "bootstrap-pass"); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	if n, _ := repo.Count(ctx); n != 1 {
		t.Fatalf("bootstrap must only run on an empty table, got %d users", n)
	}
}

func TestPostgresRepo_UpsertReportsInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery(`(?s)INSERT INTO users .* ON CONFLICT \(username\) DO UPDATE .* \(xmax = 0\) AS inserted`).
		WithArgs("id-1", "clerk", "hash", "staff", now, now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash", "role", "is_active", "created_at", "updated_at", "inserted"}).
			AddRow("id-0", "clerk", "hash", "staff", true, now.Add(-time.Hour), now, false))

	u, created, err := NewPostgresRepo(db).Upsert(context.Background(), User{
		ID: "id-1", Username: "clerk", PasswordHash: "hash", Role: "staff", CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if created || u.ID != "id-0" {
		t.Fatalf("expected existing row, got created=%v %+v", created, u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
