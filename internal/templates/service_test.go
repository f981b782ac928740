package templates

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestResolve_SeedsDefaultOnce(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Resolve(context.Background(), TypeAdjustmentForm); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("resolve: %v", err)
	}

	if repo.Inserts() != 1 {
		t.Fatalf("expected exactly one seeded row, got %d", repo.Inserts())
	}
	got, err := repo.Get(context.Background(), TypeAdjustmentForm)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	def, _ := Default(TypeAdjustmentForm)
	if got.Subject != def.Subject || got.Body != def.Body {
		t.Fatalf("expected default content, got %+v", got)
	}
}

func TestResolve_UnknownTypeFallsBack(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	got, err := svc.Resolve(context.Background(), "water_heater_rebate")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.TemplateType != TypeGeneralInfo {
		t.Fatalf("expected general_info fallback, got %q", got.TemplateType)
	}
}

func TestResolve_PrefersStoredRow(t *testing.T) {
	repo := NewMemoryRepo()
	_, _ = repo.Upsert(context.Background(), Template{TemplateType: TypePaymentLink, Subject: "Pay up", Body: "Link"})
	svc := NewService(repo)
	got, err := svc.Resolve(context.Background(), " Payment_Link ")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Subject != "Pay up" {
		t.Fatalf("expected stored subject, got %q", got.Subject)
	}
}

func TestRender_SubstitutesVariables(t *testing.T) {
	repo := NewMemoryRepo()
	_, _ = repo.Upsert(context.Background(), Template{
		TemplateType: TypePaymentLink,
		Subject:      "Payment link for call {{ call_id }}",
		Body:         "Hi {{ recipient }}",
	})
	svc := NewService(repo)
	out, err := svc.Render(context.Background(), TypePaymentLink, map[string]any{"call_id": "c1", "recipient": "a@b.com"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out.Subject != "Payment link for call c1" || out.Body != "Hi a@b.com" {
		t.Fatalf("unexpected render: %+v", out)
	}
}

func TestRender_BrokenStoredTemplateSentVerbatim(t *testing.T) {
	repo := NewMemoryRepo()
	_, _ = repo.Upsert(context.Background(), Template{TemplateType: TypeGeneralInfo, Subject: "Info", Body: "{% if x %}unterminated"})
	svc := NewService(repo)
	out, err := svc.Render(context.Background(), TypeGeneralInfo, nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out.Body != "{% if x %}unterminated" {
		t.Fatalf("expected raw body, got %q", out.Body)
	}
}

func TestUpdate_BlankResetsToDefault(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	got, err := svc.Update(context.Background(), TypeGeneralInfo, "Custom subject", "   ")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	def, _ := Default(TypeGeneralInfo)
	if got.Subject != "Custom subject" {
		t.Fatalf("expected custom subject, got %q", got.Subject)
	}
	if got.Body != def.Body {
		t.Fatalf("expected default body")
	}
}

func TestUpdate_RejectsUnknownAndInvalid(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	if _, err := svc.Update(context.Background(), "nope", "s", "b"); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	_, err := svc.Update(context.Background(), TypePaymentLink, "s", "{% if x %}no end")
	if !errors.Is(err, ErrInvalidTemplate) {
		t.Fatalf("expected ErrInvalidTemplate, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "body:") {
		t.Fatalf("expected field prefix, got %v", err)
	}
}

func TestList_SeedsAllKnownTypes(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	got, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != len(KnownTypes()) {
		t.Fatalf("expected %d templates, got %d", len(KnownTypes()), len(got))
	}
}
