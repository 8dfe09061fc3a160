package normalizer

import (
	"strconv"
	"strings"
)

// value is the uniform JSON representation the path probe and key
// search walk over: the result of json.Unmarshal into interface{}.
type value = interface{}

// probePath walks a dotted path with optional array-index segments
// (e.g. "statuses[0].id", "messages[0].errors[0].code") against v and
// returns the leaf if present and non-empty, along with true.
func probePath(v value, path string) (value, bool) {
	cur := v
	for _, seg := range strings.Split(path, ".") {
		name, idx, hasIdx := splitIndex(seg)
		if name != "" {
			m, ok := cur.(map[string]interface{})
			if !ok {
				return nil, false
			}
			cur, ok = lookupKeyCI(m, name)
			if !ok {
				return nil, false
			}
		}
		if hasIdx {
			arr, ok := cur.([]interface{})
			if !ok || idx < 0 || idx >= len(arr) {
				return nil, false
			}
			cur = arr[idx]
		}
	}
	if isEmpty(cur) {
		return nil, false
	}
	return cur, true
}

// splitIndex splits "messages[0]" into ("messages", 0, true), or
// "id" into ("id", 0, false).
func splitIndex(seg string) (name string, idx int, hasIdx bool) {
	open := strings.IndexByte(seg, '[')
	if open == -1 {
		return seg, 0, false
	}
	close := strings.IndexByte(seg, ']')
	if close == -1 || close < open {
		return seg, 0, false
	}
	name = seg[:open]
	n, err := strconv.Atoi(seg[open+1 : close])
	if err != nil {
		return name, 0, false
	}
	return name, n, true
}

// lookupKeyCI finds a map key case-insensitively.
func lookupKeyCI(m map[string]interface{}, key string) (value, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

// isEmpty implements spec §4.1's definition: null/undefined, empty
// string after trim, or empty array.
func isEmpty(v value) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []interface{}:
		return len(t) == 0
	default:
		return false
	}
}

// asString coerces a probed leaf to a trimmed string, or "" if it
// can't be represented as one.
func asString(v value) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// firstPath tries each path in order and returns the first non-empty
// string leaf.
func firstPath(v value, paths ...string) string {
	for _, p := range paths {
		if leaf, ok := probePath(v, p); ok {
			if s := asString(leaf); s != "" {
				return s
			}
		}
	}
	return ""
}

// bfsKeySearch walks the payload tree breadth-first looking for a key
// matching one of the allowlisted names (case-insensitive) and returns
// the first non-empty string value found.
func bfsKeySearch(root value, keys ...string) string {
	type node struct{ v value }
	queue := []node{{root}}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		switch t := n.v.(type) {
		case map[string]interface{}:
			for _, k := range keys {
				if leaf, ok := lookupKeyCI(t, k); ok {
					if s := asString(leaf); s != "" {
						return s
					}
				}
			}
			for _, v := range t {
				queue = append(queue, node{v})
			}
		case []interface{}:
			for _, v := range t {
				queue = append(queue, node{v})
			}
		}
	}
	return ""
}

// extract tries the path probe first, falling back to a BFS key
// search over the same allowlist of field names.
func extract(v value, keys []string, paths ...string) string {
	if s := firstPath(v, paths...); s != "" {
		return s
	}
	return bfsKeySearch(v, keys...)
}
