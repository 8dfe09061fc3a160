package rawstore

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/wpphooks/ingestcore/internal/model"
)

// DedupeMaterial is the pre-image hashed into a dedupe key. Building it
// as a struct keeps the three-tier rule in §4.2 auditable: the ingest
// endpoint fills it from the normalized fields and the raw body.
type DedupeMaterial struct {
	AppID           string
	Kind            model.EventKind
	ProviderEventID string
	MessageID       string
	EventStatus     string
	ISOTimestamp    string
	RawBody         string
}

// BuildDedupeKey implements the deterministic three-tier rule: provider
// event id first, then a message/status/timestamp composite, then the
// full raw body as a last resort. Identical inputs always yield the
// same 64-hex SHA-256 digest.
func BuildDedupeKey(m DedupeMaterial) string {
	var material string
	switch {
	case m.ProviderEventID != "":
		material = m.AppID + "|" + string(m.Kind) + "|" + m.ProviderEventID
	case m.MessageID != "" || m.EventStatus != "" || m.ISOTimestamp != "":
		material = m.AppID + "|" + string(m.Kind) + "|" + m.MessageID + "|" + m.EventStatus + "|" + m.ISOTimestamp
	default:
		material = m.RawBody
	}
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}
