// Package rawstore implements the append-only raw event buffer (C2):
// an idempotent insert guarded by a UNIQUE dedupe key, and the
// skip-locked batch claim the worker uses to process rows without
// stepping on sibling worker processes.
package rawstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/wpphooks/ingestcore/internal/model"
)

// Store is the C2 collaborator the ingest handler and worker depend on.
type Store interface {
	InsertRawEvent(ctx context.Context, input InsertRawEventInput) (inserted bool, err error)
	LockNextBatch(ctx context.Context, tx *sql.Tx, batchSize int) ([]model.RawEvent, error)
	MarkProcessed(ctx context.Context, tx *sql.Tx, id int64, lastError *string) error
	MarkFailedAttempt(ctx context.Context, tx *sql.Tx, id int64, attempts int, lastError string, finalize bool) error
}

// InsertRawEventInput is the durable row written at ingest time.
type InsertRawEventInput struct {
	AppID              string
	EventKind          model.EventKind
	ProviderEventID    *string
	MessageID          *string
	WhatsAppMessageID  *string
	TemplateName       *string
	TemplateProviderID *string
	EventStatus        *string
	PayloadJSON        []byte
	DedupeKey          string
}

// MySQLStore implements Store against MySQL/MariaDB.
type MySQLStore struct {
	db *sql.DB

	// PreviewChars bounds the payload preview attached to a failed
	// attempt's last_error, configured via WEBHOOK_PAYLOAD_PREVIEW_CHARS.
	PreviewChars int
}

// NewMySQLStore constructs a MySQLStore. previewChars <= 0 disables the
// payload preview supplement on failed attempts.
func NewMySQLStore(db *sql.DB, previewChars int) *MySQLStore {
	return &MySQLStore{db: db, PreviewChars: previewChars}
}

// InsertRawEvent attempts the durable insert; a unique violation on
// dedupe_key is reported as inserted=false with no error, per §4.2.
func (s *MySQLStore) InsertRawEvent(ctx context.Context, input InsertRawEventInput) (bool, error) {
	const query = `
		INSERT INTO wpp_webhook_event_raw (
			app_id, event_kind, provider_event_id, message_id, whatsapp_message_id,
			template_name, template_provider_id, event_status, payload_json, dedupe_key
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		input.AppID, string(input.EventKind), input.ProviderEventID, input.MessageID, input.WhatsAppMessageID,
		input.TemplateName, input.TemplateProviderID, input.EventStatus, input.PayloadJSON, input.DedupeKey,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert raw event: %w", err)
	}
	return true, nil
}

// isDuplicateKey reports whether err is a MySQL unique-constraint
// violation (error number 1062).
func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// LockNextBatch claims up to batchSize unprocessed rows, oldest first,
// skipping rows already locked by a sibling worker's transaction. Must
// run inside tx so the lock is held for the caller's whole tick.
func (s *MySQLStore) LockNextBatch(ctx context.Context, tx *sql.Tx, batchSize int) ([]model.RawEvent, error) {
	const query = `
		SELECT id, app_id, event_kind, provider_event_id, message_id, whatsapp_message_id,
			template_name, template_provider_id, event_status, received_at, payload_json,
			dedupe_key, processed, attempts, last_error, processed_at
		FROM wpp_webhook_event_raw
		WHERE processed = 0
		ORDER BY received_at ASC
		LIMIT ?
		FOR UPDATE SKIP LOCKED
	`
	rows, err := tx.QueryContext(ctx, query, batchSize)
	if err != nil {
		return nil, fmt.Errorf("lock next batch: %w", err)
	}
	defer rows.Close()

	var batch []model.RawEvent
	for rows.Next() {
		var e model.RawEvent
		var kind string
		if err := rows.Scan(
			&e.ID, &e.AppID, &kind, &e.ProviderEventID, &e.MessageID, &e.WhatsAppMessageID,
			&e.TemplateName, &e.TemplateProviderID, &e.EventStatus, &e.ReceivedAt, &e.PayloadJSON,
			&e.DedupeKey, &e.Processed, &e.Attempts, &e.LastError, &e.ProcessedAt,
		); err != nil {
			return nil, fmt.Errorf("scan raw event: %w", err)
		}
		e.EventKind = model.EventKind(kind)
		batch = append(batch, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate raw event batch: %w", err)
	}
	return batch, nil
}

// MarkProcessed finalizes a row as terminal success, optionally
// annotating last_error for a benign terminal skip (e.g. "Template not
// found"). attempts is left untouched: terminal rows no longer retry.
func (s *MySQLStore) MarkProcessed(ctx context.Context, tx *sql.Tx, id int64, lastError *string) error {
	const query = `
		UPDATE wpp_webhook_event_raw
		SET processed = 1, last_error = ?, processed_at = ?
		WHERE id = ?
	`
	_, err := tx.ExecContext(ctx, query, lastError, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// MarkFailedAttempt records a retryable or finalized failure. When
// finalize is true the row becomes terminal (processed=1) with the
// given attempts/error captured; otherwise it remains pending for the
// next tick. When the store is configured with PreviewChars > 0 a raw
// payload preview is appended to the error, to make the stuck-row
// diagnosis possible without re-fetching payload_json; it is kept only
// if the combined text fits the column (see truncateLastError).
func (s *MySQLStore) MarkFailedAttempt(ctx context.Context, tx *sql.Tx, id int64, attempts int, lastError string, finalize bool) error {
	errText := lastError
	if s.PreviewChars > 0 {
		if preview, err := s.payloadPreview(ctx, tx, id); err == nil && preview != "" {
			errText = fmt.Sprintf("%s (payload preview: %s)", lastError, preview)
		}
	}
	errText = truncateLastError(errText, lastError)

	processed := 0
	var processedAt *time.Time
	if finalize {
		processed = 1
		now := time.Now().UTC()
		processedAt = &now
	}

	const query = `
		UPDATE wpp_webhook_event_raw
		SET attempts = ?, last_error = ?, processed = ?, processed_at = ?
		WHERE id = ?
	`
	_, err := tx.ExecContext(ctx, query, attempts, errText, processed, processedAt, id)
	if err != nil {
		return fmt.Errorf("mark failed attempt: %w", err)
	}
	return nil
}

// maxLastErrorLen matches the last_error VARCHAR(255) column.
const maxLastErrorLen = 255

// truncateLastError bounds errText (the failure reason, optionally with
// an appended payload preview) to the column width. It drops the
// preview suffix first by falling back to the bare reason, and only
// hard-truncates that if the reason alone still overflows.
func truncateLastError(errText, reason string) string {
	if len([]rune(errText)) <= maxLastErrorLen {
		return errText
	}
	if len([]rune(reason)) <= maxLastErrorLen {
		return reason
	}
	runes := []rune(reason)
	return string(runes[:maxLastErrorLen])
}

func (s *MySQLStore) payloadPreview(ctx context.Context, tx *sql.Tx, id int64) (string, error) {
	var payload []byte
	err := tx.QueryRowContext(ctx, `SELECT payload_json FROM wpp_webhook_event_raw WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		return "", err
	}
	if len(payload) > s.PreviewChars {
		payload = payload[:s.PreviewChars]
	}
	return string(payload), nil
}
