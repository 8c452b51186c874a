// Package extract pulls string values out of loosely typed API
// response documents using an ordered list of path rules. Remote
// endpoints return several envelope shapes for the same logical
// resource, so callers describe every location a value may live in
// and take the first one that validates.
package extract

import "strings"

// Rule pairs a dot-separated document path with a validator. A rule
// matches when the path resolves to a string value and the validator
// accepts it. A nil validator accepts any string.
type Rule struct {
	// Path is a dot-separated traversal through nested objects,
	// e.g. "integration.webhookKey".
	Path string

	// Validate decides whether the resolved string is usable.
	Validate func(string) bool
}

// FirstMatch evaluates rules in order against doc and returns the
// first accepted value. Rule order encodes preference: callers list
// direct URL fields before opaque key fields. Returns false when no
// rule matches.
func FirstMatch(doc map[string]interface{}, rules []Rule) (string, bool) {
	for _, rule := range rules {
		value, ok := lookup(doc, rule.Path)
		if !ok {
			continue
		}
		if rule.Validate != nil && !rule.Validate(value) {
			continue
		}
		return value, true
	}
	return "", false
}

// lookup walks a dot-separated path through nested maps. It returns
// false when any intermediate step is not an object or the final
// value is not a string.
func lookup(doc map[string]interface{}, path string) (string, bool) {
	var current interface{} = doc
	for _, key := range strings.Split(path, ".") {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return "", false
		}
		current = obj[key]
	}
	value, ok := current.(string)
	return value, ok
}

// HasPrefix returns a validator accepting strings that start with
// prefix.
func HasPrefix(prefix string) func(string) bool {
	return func(s string) bool {
		return strings.HasPrefix(s, prefix)
	}
}

// Alphanumeric returns a validator accepting strings of at least
// minLen characters drawn from [0-9A-Za-z]. Opaque webhook keys are
// plain alphanumeric tokens; anything shorter or containing
// punctuation is some other field.
func Alphanumeric(minLen int) func(string) bool {
	return func(s string) bool {
		if len(s) < minLen {
			return false
		}
		for _, r := range s {
			if !isAlnum(r) {
				return false
			}
		}
		return true
	}
}

func isAlnum(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	default:
		return false
	}
}
