package opsgraph

// State is the accumulated key/value mapping for one graph run.
// It is created fresh per Run call and never shared between runs.
type State map[string]any

// Update is the partial result returned by a node. The engine merges it
// into the run's State; keys in the update overwrite existing keys.
type Update map[string]any

// ErrorKey is the state key the engine sets when routing a handler error
// to a declared failure edge.
const ErrorKey = "error"

// Clone returns a shallow copy of the state.
// Values are shared; nodes should treat nested values as read-only and
// return replacements through their Update.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// apply merges an update into the state in place.
func (s State) apply(u Update) {
	for k, v := range u {
		s[k] = v
	}
}

// Has returns true if the key is present.
func (s State) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// String returns the string value for key, or "" if missing or not a string.
func (s State) String(key string) string {
	if v, ok := s[key].(string); ok {
		return v
	}
	return ""
}

// Bool returns the boolean value for key, or false if missing or not a bool.
func (s State) Bool(key string) bool {
	if v, ok := s[key].(bool); ok {
		return v
	}
	return false
}

// Int returns the integer value for key, or 0 if missing or not convertible.
// float64 values without a fractional part convert; this matters for state
// that round-trips through JSON.
func (s State) Int(key string) int {
	switch v := s[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
	}
	return 0
}

// Float returns the float64 value for key, or 0 if missing or not convertible.
func (s State) Float(key string) float64 {
	switch v := s[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// Map returns the map value for key, or nil if missing or not a map.
func (s State) Map(key string) map[string]any {
	if v, ok := s[key].(map[string]any); ok {
		return v
	}
	return nil
}

// Slice returns the slice value for key, or nil if missing or not a slice.
func (s State) Slice(key string) []any {
	if v, ok := s[key].([]any); ok {
		return v
	}
	return nil
}
