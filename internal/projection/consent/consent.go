// Package consent implements the MarketingConsentEvent/MarketingCurrent
// projection (C3c): resolve the user by phone, append the consent
// event, and upsert the current aggregate under row lock.
package consent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/wpphooks/ingestcore/internal/model"
)

// ErrBlockedIgnored is the terminal outcome when a BLOCKED event is
// dropped per the blockedAsOptOut=false configuration.
var ErrBlockedIgnored = errors.New("consent: blocked event ignored by configuration")

// ErrUserNotFound is the terminal outcome when no user resolves by phone.
var ErrUserNotFound = errors.New("consent: user not found for phone")

// ErrInvalidPhoneColumn guards against SQL injection via a
// misconfigured USER_PHONE_COLUMN setting.
var ErrInvalidPhoneColumn = errors.New("consent: phone column name fails identifier validation")

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidatePhoneColumn checks the configured column name against the
// identifier allowlist before it is ever interpolated into SQL.
func ValidatePhoneColumn(column string) error {
	if !identifierPattern.MatchString(column) {
		return ErrInvalidPhoneColumn
	}
	return nil
}

// Projector applies USER/consent events.
type Projector struct {
	// PhoneColumn is the externally configured column name on the user
	// table; validated once at startup via ValidatePhoneColumn.
	PhoneColumn string
	// BlockedAsOptOut controls whether a BLOCKED token maps to OPT_OUT
	// or is dropped entirely.
	BlockedAsOptOut bool
}

// NewProjector constructs a Projector. Panics if phoneColumn fails
// identifier validation, since that check must happen at startup, not
// per-event.
func NewProjector(phoneColumn string, blockedAsOptOut bool) *Projector {
	if err := ValidatePhoneColumn(phoneColumn); err != nil {
		panic(err)
	}
	return &Projector{PhoneColumn: phoneColumn, BlockedAsOptOut: blockedAsOptOut}
}

// Apply resolves the effective event type, the user, and upserts the
// consent aggregate, all within the caller's transaction.
func (p *Projector) Apply(ctx context.Context, tx *sql.Tx, companyID int64, event model.NormalizedEvent) error {
	eventType, err := p.effectiveEventType(event.ConsentEvent)
	if err != nil {
		return err
	}

	userID, err := p.resolveUser(ctx, tx, event.Phone)
	if err != nil {
		return err
	}

	eventAt := time.Now().UTC()
	if event.EventAt != nil {
		eventAt = *event.EventAt
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO marketing_consent_event (user_id, company_id, event_type, event_at)
		VALUES (?, ?, ?, ?)
	`, userID, companyID, string(eventType), eventAt); err != nil {
		return fmt.Errorf("append consent event: %w", err)
	}

	return p.upsertCurrent(ctx, tx, userID, companyID, eventType, eventAt)
}

func (p *Projector) effectiveEventType(incoming model.ConsentEventType) (model.ConsentEventType, error) {
	switch incoming {
	case model.ConsentOptIn:
		return model.ConsentOptIn, nil
	case model.ConsentOptOut:
		return model.ConsentOptOut, nil
	case model.ConsentBlocked:
		if p.BlockedAsOptOut {
			return model.ConsentOptOut, nil
		}
		return "", ErrBlockedIgnored
	default:
		return "", ErrUserNotFound
	}
}

func (p *Projector) resolveUser(ctx context.Context, tx *sql.Tx, phone string) (int64, error) {
	query := fmt.Sprintf("SELECT id FROM user WHERE %s = ?", p.PhoneColumn)
	var userID int64
	err := tx.QueryRowContext(ctx, query, phone).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("resolve user by phone: %w", err)
	}
	return userID, nil
}

func (p *Projector) upsertCurrent(ctx context.Context, tx *sql.Tx, userID, companyID int64, eventType model.ConsentEventType, eventAt time.Time) error {
	var lastOptIn, lastOptOut sql.NullTime
	err := tx.QueryRowContext(ctx, `
		SELECT last_opt_in_at, last_opt_out_at
		FROM marketing_current
		WHERE user_id = ? AND company_id = ?
		FOR UPDATE
	`, userID, companyID).Scan(&lastOptIn, &lastOptOut)

	exists := true
	if errors.Is(err, sql.ErrNoRows) {
		exists = false
	} else if err != nil {
		return fmt.Errorf("lock marketing_current: %w", err)
	}

	nextOptIn := lastOptIn
	nextOptOut := lastOptOut
	if eventType == model.ConsentOptIn {
		nextOptIn = laterOf(lastOptIn, eventAt)
	} else {
		nextOptOut = laterOf(lastOptOut, eventAt)
	}

	status := deriveStatus(nextOptIn, nextOptOut)

	if !exists {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO marketing_current (user_id, company_id, status, last_opt_in_at, last_opt_out_at)
			VALUES (?, ?, ?, ?, ?)
		`, userID, companyID, string(status), nextOptIn, nextOptOut)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE marketing_current
			SET status = ?, last_opt_in_at = ?, last_opt_out_at = ?
			WHERE user_id = ? AND company_id = ?
		`, string(status), nextOptIn, nextOptOut, userID, companyID)
	}
	if err != nil {
		return fmt.Errorf("upsert marketing_current: %w", err)
	}
	return nil
}

func laterOf(existing sql.NullTime, candidate time.Time) sql.NullTime {
	if !existing.Valid || candidate.After(existing.Time) {
		return sql.NullTime{Time: candidate, Valid: true}
	}
	return existing
}

// deriveStatus implements the max(last_opt_in_at, last_opt_out_at)
// rule with ties resolving to OPT_IN.
func deriveStatus(optIn, optOut sql.NullTime) model.ConsentEventType {
	switch {
	case !optIn.Valid && !optOut.Valid:
		return "UNKNOWN"
	case optIn.Valid && !optOut.Valid:
		return model.ConsentOptIn
	case !optIn.Valid && optOut.Valid:
		return model.ConsentOptOut
	case optIn.Time.Before(optOut.Time):
		return model.ConsentOptOut
	default:
		return model.ConsentOptIn
	}
}
