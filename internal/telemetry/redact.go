package telemetry

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// Redaction bounds applied before any value reaches a log line: string
// length, container depth, and per-container breadth. maxItemsTotal is
// not applied by redactValue, so there is no cap on the total number
// of items across nested containers.
const (
	maxStringLen  = 2000
	maxDepth      = 6
	maxBreadth    = 50
	maxItemsTotal = 500
)

var sensitiveKeyPattern = regexp.MustCompile(`(?i)secret|token|password|authorization|auth|cipher|signature|api[-_]?key|bearer`)
var phoneKeyPattern = regexp.MustCompile(`(?i)phone|msisdn|wa[-_]?id|whatsapp`)
var phoneValuePattern = regexp.MustCompile(`^\+?[\d\s().-]{8,20}$`)
var digitRun = regexp.MustCompile(`\d`)

// RedactHook is a logrus hook that applies the logging contract from
// spec §6: sensitive keys become "[REDACTED]", phone-like values are
// masked to their last 4 digits, long strings are truncated, and deep
// or wide containers are capped so a pathological payload can't blow
// up a log line (or leak raw PII through a container level the
// sensitive-key check didn't reach).
type RedactHook struct{}

func (RedactHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (RedactHook) Fire(entry *logrus.Entry) error {
	for k, v := range entry.Data {
		entry.Data[k] = redactValue(k, v, 0)
	}
	return nil
}

func redactValue(key string, v interface{}, depth int) interface{} {
	if sensitiveKeyPattern.MatchString(key) {
		return "[REDACTED]"
	}
	if depth >= maxDepth {
		return "[depth-limit]"
	}

	switch t := v.(type) {
	case string:
		return redactString(key, t)
	case fmt.Stringer:
		return redactString(key, t.String())
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		n := 0
		for k, vv := range t {
			if n >= maxBreadth {
				out["[truncated]"] = fmt.Sprintf("%d more keys", len(t)-n)
				break
			}
			out[k] = redactValue(k, vv, depth+1)
			n++
		}
		return out
	case []interface{}:
		limit := len(t)
		if limit > maxBreadth {
			limit = maxBreadth
		}
		out := make([]interface{}, 0, limit)
		for i := 0; i < limit; i++ {
			out = append(out, redactValue(key, t[i], depth+1))
		}
		if limit < len(t) {
			out = append(out, fmt.Sprintf("[truncated:%d more items]", len(t)-limit))
		}
		return out
	default:
		return v
	}
}

func redactString(key, s string) string {
	if phoneKeyPattern.MatchString(key) || looksLikePhone(s) {
		return maskPhone(s)
	}
	if len(s) > maxStringLen {
		return s[:maxStringLen] + fmt.Sprintf("[truncated:%d]", len(s)-maxStringLen)
	}
	return s
}

func looksLikePhone(s string) bool {
	if !phoneValuePattern.MatchString(s) {
		return false
	}
	digits := digitRun.FindAllString(s, -1)
	return len(digits) >= 8 && len(digits) <= 15
}

func maskPhone(s string) string {
	digits := digitRun.FindAllString(s, -1)
	joined := strings.Join(digits, "")
	if len(joined) < 4 {
		return "***"
	}
	return "***" + joined[len(joined)-4:]
}
