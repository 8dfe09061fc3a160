// Package template implements the Template/TemplateVersion projection
// (C3b): identity resolution by provider id or by name, then a status
// sync onto both the template row and its latest version under lock.
package template

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wpphooks/ingestcore/internal/model"
)

// ErrNotFound is the terminal outcome when no template resolves.
var ErrNotFound = errors.New("template not found")

// Projector applies TEMPLATE events onto template/template_version rows.
type Projector struct{}

// NewProjector constructs a Projector.
func NewProjector() *Projector {
	return &Projector{}
}

// Apply resolves the template row per §4.4 and syncs status onto it
// and its latest version.
func (p *Projector) Apply(ctx context.Context, tx *sql.Tx, integrationID int64, companyID int64, event model.NormalizedEvent) error {
	templateID, err := p.resolve(ctx, tx, integrationID, companyID, event)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	rejection := sql.NullString{}
	category := sql.NullString{}
	if event.TemplateStatus == model.TemplateRejected {
		rejection = sql.NullString{String: event.RejectionReason, Valid: event.RejectionReason != ""}
		category = sql.NullString{String: event.CorrectCategory, Valid: event.CorrectCategory != ""}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE template
		SET status = ?, rejection_reason = ?, correct_category = ?, last_synced_at = ?, updated_at = ?
		WHERE id = ?
	`, string(event.TemplateStatus), rejection, category, now, now, templateID)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}

	return p.syncLatestVersion(ctx, tx, templateID, event, now)
}

func (p *Projector) resolve(ctx context.Context, tx *sql.Tx, integrationID, companyID int64, event model.NormalizedEvent) (int64, error) {
	if event.TemplateProviderID != "" {
		var id int64
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM template WHERE integration_id = ? AND provider_template_id = ?
		`, integrationID, event.TemplateProviderID).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("resolve template by provider id: %w", err)
		}
	}

	query := `SELECT id FROM template WHERE company_id = ? AND name = ?`
	args := []interface{}{companyID, event.TemplateName}
	if event.TemplateLanguage != "" {
		query += ` AND language = ?`
		args = append(args, event.TemplateLanguage)
	}
	query += ` ORDER BY id DESC LIMIT 1`

	var id int64
	err := tx.QueryRowContext(ctx, query, args...).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("resolve template by name: %w", err)
	}
	return id, nil
}

func (p *Projector) syncLatestVersion(ctx context.Context, tx *sql.Tx, templateID int64, event model.NormalizedEvent, now time.Time) error {
	var versionID int64
	var submittedAt, approvedAt, rejectedAt sql.NullTime
	err := tx.QueryRowContext(ctx, `
		SELECT id, submitted_at, approved_at, rejected_at
		FROM template_version
		WHERE template_id = ?
		ORDER BY version_no DESC
		LIMIT 1
		FOR UPDATE
	`, templateID).Scan(&versionID, &submittedAt, &approvedAt, &rejectedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// A template with no version rows yet is unusual but not an
			// error the core should surface: nothing to sync.
			return nil
		}
		return fmt.Errorf("lock latest template version: %w", err)
	}

	type fieldUpdate struct {
		col string
		val interface{}
	}
	args := []fieldUpdate{{"status", string(event.TemplateStatus)}}

	switch event.TemplateStatus {
	case model.TemplateSubmitted:
		if !submittedAt.Valid {
			args = append(args, fieldUpdate{"submitted_at", now})
		}
	case model.TemplateApproved:
		if !approvedAt.Valid {
			args = append(args, fieldUpdate{"approved_at", now})
		}
	case model.TemplateRejected:
		if !rejectedAt.Valid {
			args = append(args, fieldUpdate{"rejected_at", now})
		}
		args = append(args, fieldUpdate{"rejection_reason", event.RejectionReason})
	}
	args = append(args, fieldUpdate{"updated_at", now})

	query := "UPDATE template_version SET "
	params := make([]interface{}, 0, len(args)+1)
	for i, a := range args {
		if i > 0 {
			query += ", "
		}
		query += a.col + " = ?"
		params = append(params, a.val)
	}
	query += " WHERE id = ?"
	params = append(params, versionID)

	if _, err := tx.ExecContext(ctx, query, params...); err != nil {
		return fmt.Errorf("update template version: %w", err)
	}
	return nil
}
