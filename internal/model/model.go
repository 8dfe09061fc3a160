// Package model holds the entities shared by the ingest, normalizer,
// and projection packages.
package model

import "time"

// EventKind tags the variant a raw payload was normalized into.
type EventKind string

const (
	KindMessage  EventKind = "MESSAGE"
	KindTemplate EventKind = "TEMPLATE"
	KindUser     EventKind = "USER"
	KindUnknown  EventKind = "UNKNOWN"
)

// MessageStatus is the normalized delivery-receipt status.
type MessageStatus string

const (
	StatusAccepted  MessageStatus = "accepted"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// RecipientStatus is the projected status stored on the Recipient row.
type RecipientStatus string

const (
	RecipientPending    RecipientStatus = "PENDING"
	RecipientSkipped    RecipientStatus = "SKIPPED"
	RecipientSubmitted  RecipientStatus = "SUBMITTED"
	RecipientSent       RecipientStatus = "SENT"
	RecipientDelivered  RecipientStatus = "DELIVERED"
	RecipientRead       RecipientStatus = "READ"
	RecipientFailed     RecipientStatus = "FAILED"
	RecipientRetrying   RecipientStatus = "RETRYING"
)

// Rank implements the status ordinal from spec §3: PENDING/SKIPPED=0,
// RETRYING/SUBMITTED=1, SENT=2, DELIVERED=3, READ=4, FAILED=5.
func (s RecipientStatus) Rank() int {
	switch s {
	case RecipientPending, RecipientSkipped:
		return 0
	case RecipientSubmitted, RecipientRetrying:
		return 1
	case RecipientSent:
		return 2
	case RecipientDelivered:
		return 3
	case RecipientRead:
		return 4
	case RecipientFailed:
		return 5
	default:
		return -1
	}
}

// FromMessageStatus maps a normalized message status to a recipient
// status for rank comparison. "accepted" has no direct recipient
// status counterpart; callers treat it as SUBMITTED for ranking.
func FromMessageStatus(s MessageStatus) RecipientStatus {
	switch s {
	case StatusAccepted:
		return RecipientSubmitted
	case StatusSent:
		return RecipientSent
	case StatusDelivered:
		return RecipientDelivered
	case StatusRead:
		return RecipientRead
	case StatusFailed:
		return RecipientFailed
	default:
		return ""
	}
}

// TemplateStatus is the projected status on Template/TemplateVersion.
type TemplateStatus string

const (
	TemplateDraft     TemplateStatus = "DRAFT"
	TemplateSubmitted TemplateStatus = "SUBMITTED"
	TemplatePending   TemplateStatus = "PENDING"
	TemplateApproved  TemplateStatus = "APPROVED"
	TemplateRejected  TemplateStatus = "REJECTED"
)

// ConsentEventType is the normalized opt-in/opt-out signal.
type ConsentEventType string

const (
	ConsentOptIn  ConsentEventType = "OPT_IN"
	ConsentOptOut ConsentEventType = "OPT_OUT"
	ConsentBlocked ConsentEventType = "BLOCKED"
)

// MessageError carries the provider error code/message attached to a
// failed delivery-receipt event.
type MessageError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// NormalizedEvent is the tagged union produced by the normalizer (C1).
// Only the fields relevant to Kind are populated by any given call;
// the rest remain zero values.
type NormalizedEvent struct {
	Kind EventKind

	// MESSAGE fields
	MessageID         string
	WhatsAppMessageID string
	MessageStatus     MessageStatus
	MessageError      *MessageError
	EventAt           *time.Time

	// TEMPLATE fields
	TemplateName       string
	TemplateProviderID string
	TemplateLanguage   string
	TemplateStatus     TemplateStatus
	RejectionReason    string
	CorrectCategory    string

	// USER/consent fields
	ConsentEvent ConsentEventType
	Phone        string

	// Common hints carried for dedupe-key construction.
	ProviderEventID string
}

// RawEvent mirrors the wpp_webhook_event_raw row.
type RawEvent struct {
	ID                  int64
	AppID               string
	EventKind           EventKind
	ProviderEventID     *string
	MessageID           *string
	WhatsAppMessageID   *string
	TemplateName        *string
	TemplateProviderID  *string
	EventStatus         *string
	ReceivedAt          time.Time
	PayloadJSON         []byte
	DedupeKey           string
	Processed           bool
	Attempts            int
	LastError           *string
	ProcessedAt         *time.Time
}

// IntegrationMapping mirrors the read-only integration lookup table.
type IntegrationMapping struct {
	ID        int64
	AppID     string
	CompanyID int64
	IsActive  bool
}
