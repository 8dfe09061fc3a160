// Package normalizer extracts a typed event variant from arbitrary,
// schema-tolerant webhook payloads (component C1 of the ingest core).
package normalizer

import (
	"strings"

	"github.com/wpphooks/ingestcore/internal/model"
)

// allowlisted key names used by the BFS fallback search, grouped by
// the field they back.
var (
	keysMessageID    = []string{"messageId", "message_id", "id"}
	keysWAMessageID  = []string{"whatsappMessageId", "whatsapp_message_id", "waId", "wa_id"}
	keysStatusToken  = []string{"status", "eventStatus", "event_status"}
	keysProviderEvID = []string{"eventId", "event_id", "providerEventId", "provider_event_id"}
	keysTemplateName = []string{"templateName", "template_name", "name"}
	keysTemplateID   = []string{"templateProviderId", "template_provider_id", "templateId"}
	keysTemplateLang = []string{"language", "lang"}
	keysRejection    = []string{"rejectionReason", "rejection_reason", "reason"}
	keysCategory     = []string{"correctCategory", "correct_category", "category"}
	keysEventType    = []string{"event", "eventType", "event_type", "type"}
	keysPhone        = []string{"phone", "phoneNumber", "phone_number", "msisdn", "waId", "wa_id"}
	keysTimestamp    = []string{"timestamp", "eventAt", "event_at", "time"}
	keysErrorCode    = []string{"code", "errorCode", "error_code"}
	keysErrorMessage = []string{"message", "title", "errorMessage"}
)

// path probes, tried before the BFS fallback, ordered by how the
// provider's delivery-receipt and template-event shapes actually nest
// these fields.
var (
	pathsMessageID   = []string{"statuses[0].id", "messages[0].id", "messageId"}
	pathsWAMessageID = []string{"statuses[0].recipient_id", "whatsappMessageId"}
	pathsStatus      = []string{"statuses[0].status", "status"}
	pathsErrorCode   = []string{"statuses[0].errors[0].code", "messages[0].errors[0].code", "errors[0].code"}
	pathsErrorMsg    = []string{"statuses[0].errors[0].title", "statuses[0].errors[0].message", "errors[0].message"}
	pathsTimestamp   = []string{"statuses[0].timestamp", "messages[0].timestamp", "timestamp"}
	pathsTemplateID  = []string{"template.id", "templateProviderId"}
	pathsTemplateSt  = []string{"template.status", "status"}
	pathsTemplateNm  = []string{"template.name", "templateName"}
)

// Normalize implements C1: it classifies the payload and extracts the
// normalized fields for that variant. v must be the result of
// json.Unmarshal into interface{} (maps/slices/scalars/nil).
func Normalize(v interface{}) model.NormalizedEvent {
	templateName := extract(v, keysTemplateName, pathsTemplateNm...)
	templateProviderID := extract(v, keysTemplateID, pathsTemplateID...)
	templateStatusRaw := extract(v, keysStatusToken, pathsTemplateSt...)
	templateStatus, templateRecognized := templateStatusToken(templateStatusRaw)
	eventTypeHint := extract(v, keysEventType)

	hasTemplateSignal := templateStatusRaw != "" || templateName != "" || templateProviderID != ""
	if hasTemplateSignal && (templateRecognized || containsFold(eventTypeHint, "template")) {
		ev := model.NormalizedEvent{
			Kind:               model.KindTemplate,
			TemplateName:       templateName,
			TemplateProviderID: templateProviderID,
			TemplateLanguage:   extract(v, keysTemplateLang),
			TemplateStatus:     templateStatus,
			ProviderEventID:    extract(v, keysProviderEvID),
		}
		if templateStatus == model.TemplateRejected {
			ev.RejectionReason = extract(v, keysRejection)
			ev.CorrectCategory = extract(v, keysCategory)
		}
		return ev
	}

	messageID := extract(v, keysMessageID, pathsMessageID...)
	waMessageID := extract(v, keysWAMessageID, pathsWAMessageID...)
	statusRaw := extract(v, keysStatusToken, pathsStatus...)
	msgStatus, msgRecognized := messageStatusToken(statusRaw)

	// A pure-template signal (template name present without a message
	// id) dominates over a weak message match per spec §4.1.
	pureTemplateDominates := templateName != "" && messageID == "" && waMessageID == ""

	if (messageID != "" || waMessageID != "" || msgRecognized) && !pureTemplateDominates {
		ev := model.NormalizedEvent{
			Kind:              model.KindMessage,
			MessageID:         messageID,
			WhatsAppMessageID: waMessageID,
			MessageStatus:     msgStatus,
			ProviderEventID:   extract(v, keysProviderEvID),
			EventAt:           parseTimestamp(firstValue(v, pathsTimestamp, keysTimestamp)),
		}
		if msgStatus == model.StatusFailed {
			code := extract(v, keysErrorCode, pathsErrorCode...)
			msg := extract(v, keysErrorMessage, pathsErrorMsg...)
			if code != "" || msg != "" {
				ev.MessageError = &model.MessageError{Code: code, Message: msg}
			}
		}
		return ev
	}

	consentRaw := extract(v, keysEventType)
	if consentRaw == "" {
		consentRaw = extract(v, keysStatusToken)
	}
	consent, consentRecognized := consentToken(consentRaw)
	phone := normalizePhone(extract(v, keysPhone))

	if consentRecognized || phone != "" {
		return model.NormalizedEvent{
			Kind:         model.KindUser,
			ConsentEvent: consent,
			Phone:        phone,
			EventAt:      parseTimestamp(firstValue(v, pathsTimestamp, keysTimestamp)),
		}
	}

	return model.NormalizedEvent{Kind: model.KindUnknown}
}

// firstValue probes paths, then falls back to a BFS key search,
// returning the raw JSON value (not yet coerced to string) so the
// caller can parse it as a timestamp of any accepted shape.
func firstValue(v interface{}, paths []string, keys []string) interface{} {
	for _, p := range paths {
		if leaf, ok := probePath(v, p); ok {
			return leaf
		}
	}
	type node struct{ v interface{} }
	queue := []node{{v}}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		switch t := n.v.(type) {
		case map[string]interface{}:
			for _, k := range keys {
				if leaf, ok := lookupKeyCI(t, k); ok && !isEmpty(leaf) {
					return leaf
				}
			}
			for _, vv := range t {
				queue = append(queue, node{vv})
			}
		case []interface{}:
			for _, vv := range t {
				queue = append(queue, node{vv})
			}
		}
	}
	return nil
}

func containsFold(haystack, needle string) bool {
	if haystack == "" || needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
