// Package recipient implements the Recipient projection (C3a): the
// monotonic status machine that maps a normalized MESSAGE event onto a
// campaign recipient row keyed by provider message id.
package recipient

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wpphooks/ingestcore/internal/model"
)

// Outcome reports what applyMessageEvent did, per §4.3.
type Outcome string

const (
	Updated  Outcome = "UPDATED"
	Noop     Outcome = "NOOP"
	NotFound Outcome = "NOT_FOUND"
)

// ErrNoLookupKey is returned when the event carries neither a message
// id nor a WhatsApp message id to key the lookup.
var ErrNoLookupKey = errors.New("recipient: event carries no lookup key")

type row struct {
	id                int64
	status            model.RecipientStatus
	whatsAppMessageID sql.NullString
	lastEventAt       sql.NullTime
	acceptedAt        sql.NullTime
	sentAt            sql.NullTime
	reachedAt         sql.NullTime
	failedAt          sql.NullTime
}

// Projector applies MESSAGE events onto the recipient table.
type Projector struct{}

// NewProjector constructs a Projector.
func NewProjector() *Projector {
	return &Projector{}
}

// ApplyMessageEvent implements §4.3's lookup, transition, and
// field-write rules inside the caller's transaction.
func (p *Projector) ApplyMessageEvent(ctx context.Context, tx *sql.Tx, event model.NormalizedEvent) (Outcome, error) {
	if event.MessageID == "" && event.WhatsAppMessageID == "" {
		return NotFound, ErrNoLookupKey
	}

	r, err := p.lookup(ctx, tx, event)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NotFound, nil
		}
		return NotFound, fmt.Errorf("lookup recipient: %w", err)
	}

	target := model.FromMessageStatus(event.MessageStatus)
	decision := decide(r.status, target, event.MessageStatus)
	if decision == ignoreHard {
		return Noop, nil
	}

	var args []fieldUpdate

	if decision == upgrade {
		args = append(args, fieldUpdate{"status", string(target)})
	}

	if event.WhatsAppMessageID != "" && !r.whatsAppMessageID.Valid {
		args = append(args, fieldUpdate{"whatsapp_message_id", event.WhatsAppMessageID})
	}

	if decision == upgrade && event.EventAt != nil {
		if !r.lastEventAt.Valid || event.EventAt.After(r.lastEventAt.Time) {
			args = append(args, fieldUpdate{"last_event_at", *event.EventAt})
		}
	}

	now := time.Now().UTC()
	switch event.MessageStatus {
	case model.StatusAccepted:
		if !r.acceptedAt.Valid {
			args = append(args, fieldUpdate{"accepted_at", now})
		}
	case model.StatusSent:
		if !r.sentAt.Valid {
			args = append(args, fieldUpdate{"sent_at", now})
		}
	case model.StatusDelivered, model.StatusRead:
		if !r.reachedAt.Valid {
			args = append(args, fieldUpdate{"reached_at", now})
		}
	case model.StatusFailed:
		if !r.failedAt.Valid {
			args = append(args, fieldUpdate{"failed_at", now})
		}
		if event.MessageError != nil {
			if event.MessageError.Code != "" {
				args = append(args, fieldUpdate{"last_error_code", event.MessageError.Code})
			}
			if event.MessageError.Message != "" {
				args = append(args, fieldUpdate{"last_error_reason", event.MessageError.Message})
			}
		}
	}

	if len(args) == 0 {
		return Noop, nil
	}

	args = append(args, fieldUpdate{"updated_at", now})
	if err := p.update(ctx, tx, r.id, args); err != nil {
		return Noop, fmt.Errorf("update recipient: %w", err)
	}
	return Updated, nil
}

type fieldUpdate struct {
	col string
	val interface{}
}

type transition int

const (
	// ignore means the status transition is rank-superseded (a
	// same-or-lower-rank status arrived out of order): the status
	// column stays put, but the field-write switch below still runs,
	// so a null timestamp (e.g. sent_at on a late "sent" after
	// "delivered") still backfills.
	ignore transition = iota
	same
	upgrade
	// ignoreHard means FAILED-is-terminal-except-READ applies: no
	// status change AND no field writes at all.
	ignoreHard
)

// decide implements the transition table from §4.3.
func decide(current, target model.RecipientStatus, incoming model.MessageStatus) transition {
	if incoming == model.StatusFailed {
		switch current {
		case model.RecipientRead:
			return ignoreHard
		case model.RecipientFailed:
			return same
		default:
			return upgrade
		}
	}
	if current == model.RecipientFailed {
		return ignoreHard
	}
	switch {
	case target.Rank() > current.Rank():
		return upgrade
	case target.Rank() == current.Rank() && target == current:
		return same
	default:
		return ignore
	}
}

func (p *Projector) lookup(ctx context.Context, tx *sql.Tx, event model.NormalizedEvent) (*row, error) {
	var r row
	if event.MessageID != "" {
		err := tx.QueryRowContext(ctx, `
			SELECT id, status, whatsapp_message_id, last_event_at, accepted_at, sent_at, reached_at, failed_at
			FROM recipient WHERE gupshup_message_id = ?
		`, event.MessageID).Scan(&r.id, &r.status, &r.whatsAppMessageID, &r.lastEventAt, &r.acceptedAt, &r.sentAt, &r.reachedAt, &r.failedAt)
		if err == nil {
			return &r, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}
	if event.WhatsAppMessageID == "" {
		return nil, sql.ErrNoRows
	}
	err := tx.QueryRowContext(ctx, `
		SELECT id, status, whatsapp_message_id, last_event_at, accepted_at, sent_at, reached_at, failed_at
		FROM recipient WHERE whatsapp_message_id = ?
	`, event.WhatsAppMessageID).Scan(&r.id, &r.status, &r.whatsAppMessageID, &r.lastEventAt, &r.acceptedAt, &r.sentAt, &r.reachedAt, &r.failedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (p *Projector) update(ctx context.Context, tx *sql.Tx, id int64, args []fieldUpdate) error {
	query := "UPDATE recipient SET "
	params := make([]interface{}, 0, len(args)+1)
	for i, a := range args {
		if i > 0 {
			query += ", "
		}
		query += a.col + " = ?"
		params = append(params, a.val)
	}
	query += " WHERE id = ?"
	params = append(params, id)

	_, err := tx.ExecContext(ctx, query, params...)
	return err
}
