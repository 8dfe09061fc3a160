package rawstore

import "encoding/json"

// ParsePayloadJSON accepts a structured value, a string, or a raw byte
// buffer and returns the parsed JSON value. Input that fails to parse
// as JSON is wrapped as {"_raw": <string>, "_format": "text/plain"}
// (empty input as {"_raw": "", "_empty": true}) rather than dropped,
// since the caller (the worker's re-normalize step) must still be able
// to inspect the original text.
func ParsePayloadJSON(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return parseBytes(v)
	case string:
		return parseBytes([]byte(v))
	default:
		return v, nil
	}
}

func parseBytes(b []byte) (interface{}, error) {
	if len(b) == 0 {
		return map[string]interface{}{"_raw": "", "_empty": true}, nil
	}
	var parsed interface{}
	if err := json.Unmarshal(b, &parsed); err != nil {
		return map[string]interface{}{"_raw": string(b), "_format": "text/plain"}, nil
	}
	return parsed, nil
}
