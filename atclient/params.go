package atclient

import (
	"fmt"
	"net/url"
)

// Converts a map of query parameters to URL values. Nil values and empty strings are dropped, so optional params can be passed unconditionally.
func ParseParams(raw map[string]any) (url.Values, error) {
	out := make(url.Values)
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			if val == "" {
				continue
			}
			out.Set(k, val)
		case bool, int, int64:
			out.Set(k, fmt.Sprint(val))
		case []string:
			for _, elem := range val {
				out.Add(k, elem)
			}
		default:
			return nil, fmt.Errorf("can't marshal query param '%s' with type: %T", k, v)
		}
	}
	return out, nil
}
