package templates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/osteele/liquid"

	"github.com/prestonbrown26/braselton-phone-water-sewage/pkg/logger"
)

// Repository is the persistence contract for email templates.
type Repository interface {
	Get(ctx context.Context, templateType string) (Template, error)
	// InsertIfAbsent stores t unless a row for its type exists, and returns
	// whichever row is stored afterwards.
	InsertIfAbsent(ctx context.Context, t Template) (Template, error)
	Upsert(ctx context.Context, t Template) (Template, error)
	List(ctx context.Context) ([]Template, error)
}

// Service resolves, renders and edits email templates.
type Service struct {
	repo   Repository
	engine *liquid.Engine
	clock  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, engine: liquid.NewEngine(), clock: time.Now}
}

// Resolve returns the stored template for emailType, seeding the built-in
// default on first use. Unknown types resolve to the fallback template.
func (s *Service) Resolve(ctx context.Context, emailType string) (Template, error) {
	if s.repo == nil {
		return Template{}, errors.New("templates: repository not configured")
	}
	key := CanonicalType(emailType)

	t, err := s.repo.Get(ctx, key)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Template{}, fmt.Errorf("get template %s: %w", key, err)
	}

	def, _ := Default(key)
	def.UpdatedAt = s.clock().UTC()
	t, err = s.repo.InsertIfAbsent(ctx, def)
	if err != nil {
		return Template{}, fmt.Errorf("seed template %s: %w", key, err)
	}
	return t, nil
}

// Render resolves emailType and substitutes data into subject and body.
// A stored template that no longer parses is sent verbatim.
func (s *Service) Render(ctx context.Context, emailType string, data map[string]any) (Rendered, error) {
	t, err := s.Resolve(ctx, emailType)
	if err != nil {
		return Rendered{}, err
	}
	out := Rendered{TemplateType: t.TemplateType}
	out.Subject = s.renderOrRaw(ctx, t.TemplateType, "subject", t.Subject, data)
	out.Body = s.renderOrRaw(ctx, t.TemplateType, "body", t.Body, data)
	return out, nil
}

func (s *Service) renderOrRaw(ctx context.Context, templateType, field, src string, data map[string]any) string {
	rendered, err := s.engine.ParseAndRenderString(src, data)
	if err != nil {
		logger.From(ctx).Warn("template render failed; sending raw text",
			"template_type", templateType,
			"field", field,
			"err", err,
		)
		return src
	}
	return rendered
}

// List seeds every known type and returns all stored templates.
func (s *Service) List(ctx context.Context) ([]Template, error) {
	for _, key := range KnownTypes() {
		if _, err := s.Resolve(ctx, key); err != nil {
			return nil, err
		}
	}
	return s.repo.List(ctx)
}

// Update replaces a template. A blank subject or body resets that field to
// the built-in default.
func (s *Service) Update(ctx context.Context, templateType, subject, body string) (Template, error) {
	if s.repo == nil {
		return Template{}, errors.New("templates: repository not configured")
	}
	def, ok := Default(templateType)
	if !ok {
		return Template{}, ErrUnknownType
	}
	if strings.TrimSpace(subject) == "" {
		subject = def.Subject
	}
	if strings.TrimSpace(body) == "" {
		body = def.Body
	}
	if err := s.Validate(subject); err != nil {
		return Template{}, fmt.Errorf("subject: %w", err)
	}
	if err := s.Validate(body); err != nil {
		return Template{}, fmt.Errorf("body: %w", err)
	}
	return s.repo.Upsert(ctx, Template{
		TemplateType: templateType,
		Subject:      subject,
		Body:         body,
		UpdatedAt:    s.clock().UTC(),
	})
}

// Validate reports Liquid syntax errors.
func (s *Service) Validate(src string) error {
	if _, err := s.engine.ParseString(src); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	return nil
}
