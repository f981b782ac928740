package templates

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresRepo stores templates in email_template_configs (UNIQUE template_type).
// Concurrent first-use seeding relies on that constraint, not on an application lock.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Get(ctx context.Context, templateType string) (Template, error) {
	const q = `
SELECT template_type, subject, body, updated_at
FROM email_template_configs
WHERE template_type = $1
`
	var t Template
	if err := r.db.QueryRowContext(ctx, q, templateType).Scan(&t.TemplateType, &t.Subject, &t.Body, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Template{}, ErrNotFound
		}
		return Template{}, err
	}
	return t, nil
}

func (r *PostgresRepo) InsertIfAbsent(ctx context.Context, t Template) (Template, error) {
	const q = `
INSERT INTO email_template_configs (template_type, subject, body, updated_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (template_type) DO NOTHING
RETURNING template_type, subject, body, updated_at
`
	var out Template
	err := r.db.QueryRowContext(ctx, q, t.TemplateType, t.Subject, t.Body, t.UpdatedAt).Scan(
		&out.TemplateType, &out.Subject, &out.Body, &out.UpdatedAt,
	)
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Template{}, err
	}
	// Lost the race: the conflicting row is committed, read the winner.
	return r.Get(ctx, t.TemplateType)
}

func (r *PostgresRepo) Upsert(ctx context.Context, t Template) (Template, error) {
	const q = `
INSERT INTO email_template_configs (template_type, subject, body, updated_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (template_type)
DO UPDATE SET subject = EXCLUDED.subject,
              body = EXCLUDED.body,
              updated_at = EXCLUDED.updated_at
RETURNING template_type, subject, body, updated_at
`
	var out Template
	if err := r.db.QueryRowContext(ctx, q, t.TemplateType, t.Subject, t.Body, t.UpdatedAt).Scan(
		&out.TemplateType, &out.Subject, &out.Body, &out.UpdatedAt,
	); err != nil {
		return Template{}, err
	}
	return out, nil
}

func (r *PostgresRepo) List(ctx context.Context) ([]Template, error) {
	const q = `
SELECT template_type, subject, body, updated_at
FROM email_template_configs
ORDER BY template_type
`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Template
	for rows.Next() {
		var t Template
		if err := rows.Scan(&t.TemplateType, &t.Subject, &t.Body, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
