package normalizer

import (
	"strconv"
	"strings"
	"time"

	"github.com/wpphooks/ingestcore/internal/model"
)

// messageStatusTokens maps recognized message-status tokens to the
// normalized status, per spec §4.1's token mapping table.
var messageStatusTokens = map[string]model.MessageStatus{
	"accepted":    model.StatusAccepted,
	"sent":        model.StatusSent,
	"delivered":   model.StatusDelivered,
	"read":        model.StatusRead,
	"failed":      model.StatusFailed,
	"error":       model.StatusFailed,
	"undelivered": model.StatusFailed,
}

// templateStatusTokens maps recognized template-status tokens.
var templateStatusTokens = map[string]model.TemplateStatus{
	"approved":   model.TemplateApproved,
	"rejected":   model.TemplateRejected,
	"pending":    model.TemplatePending,
	"submitted":  model.TemplateSubmitted,
	"in_review":  model.TemplateSubmitted,
}

// consentTokens maps recognized consent tokens.
var consentTokens = map[string]model.ConsentEventType{
	"opt_in":           model.ConsentOptIn,
	"subscribe":        model.ConsentOptIn,
	"consent_granted":  model.ConsentOptIn,
	"opt_out":          model.ConsentOptOut,
	"unsubscribe":      model.ConsentOptOut,
	"consent_revoked":  model.ConsentOptOut,
	"blocked":          model.ConsentBlocked,
	"block":            model.ConsentBlocked,
	"user_blocked":     model.ConsentBlocked,
}

func messageStatusToken(s string) (model.MessageStatus, bool) {
	v, ok := messageStatusTokens[strings.ToLower(strings.TrimSpace(s))]
	return v, ok
}

func templateStatusToken(s string) (model.TemplateStatus, bool) {
	v, ok := templateStatusTokens[strings.ToLower(strings.TrimSpace(s))]
	return v, ok
}

func consentToken(s string) (model.ConsentEventType, bool) {
	v, ok := consentTokens[strings.ToLower(strings.TrimSpace(s))]
	return v, ok
}

// parseTimestamp accepts epoch seconds (<=10 digits, multiplied to
// milliseconds), epoch milliseconds, or ISO-8601 strings. Anything else
// returns nil.
func parseTimestamp(raw value) *time.Time {
	switch t := raw.(type) {
	case nil:
		return nil
	case float64:
		return epochToTime(int64(t))
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return epochToTime(n)
		}
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			ts = ts.UTC()
			return &ts
		}
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			ts = ts.UTC()
			return &ts
		}
		return nil
	default:
		return nil
	}
}

func epochToTime(n int64) *time.Time {
	// <= 10 digits is seconds-resolution; widen to milliseconds.
	if n != 0 && digitCount(n) <= 10 {
		n *= 1000
	}
	ts := time.UnixMilli(n).UTC()
	return &ts
}

func digitCount(n int64) int {
	if n < 0 {
		n = -n
	}
	if n == 0 {
		return 1
	}
	c := 0
	for n > 0 {
		c++
		n /= 10
	}
	return c
}

// normalizePhone strips whitespace; empty becomes "". Full E.164
// validation is intentionally not performed here (see spec §4.1).
func normalizePhone(s string) string {
	return strings.Join(strings.Fields(s), "")
}
