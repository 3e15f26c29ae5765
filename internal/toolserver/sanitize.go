package toolserver

import "strings"

// Redaction marker written in place of sensitive argument values.
const Redacted = "***REDACTED***"

// maxArgLen caps string values in traced arguments.
const maxArgLen = 500

var sensitiveKeyParts = []string{"token", "password", "secret", "key"}

// sensitiveKey reports whether an argument key looks like it carries a
// credential.
func sensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}

// Sanitize returns a copy of tool arguments safe for the trace:
// sensitive-looking keys are redacted and long strings truncated.
// Nested maps are sanitized recursively.
func Sanitize(args map[string]interface{}) map[string]interface{} {
	if args == nil {
		return nil
	}
	out := make(map[string]interface{}, len(args))
	for key, value := range args {
		if sensitiveKey(key) {
			out[key] = Redacted
			continue
		}
		switch v := value.(type) {
		case string:
			out[key] = Truncate(v, maxArgLen)
		case map[string]interface{}:
			out[key] = Sanitize(v)
		default:
			out[key] = value
		}
	}
	return out
}

// Truncate shortens s to at most n runes, marking the cut.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "... (truncated)"
}
