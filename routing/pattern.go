package routing

import (
	"fmt"
	"strings"
)

// Wildcard is the pattern token matching exactly one event-name segment
const Wildcard = "*"

const maxPatternSegments = 16

// ValidatePattern checks an event-name pattern against the allowed
// grammar: alphanumeric/underscore segments separated by single
// colons, with wildcard-only segments permitted. Empty segments
// (leading, trailing, or double separators) are rejected.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("pattern cannot be empty")
	}

	segments := strings.Split(pattern, ":")
	if len(segments) > maxPatternSegments {
		return fmt.Errorf("pattern has too many segments (max %d): %s", maxPatternSegments, pattern)
	}

	for _, segment := range segments {
		if segment == "" {
			return fmt.Errorf("pattern has empty segment: %q", pattern)
		}
		if segment == Wildcard {
			continue
		}
		for _, ch := range segment {
			if !isNameChar(ch) {
				return fmt.Errorf("pattern segment %q contains invalid character %q", segment, ch)
			}
		}
	}
	return nil
}

// ValidateEventName checks a concrete event name (no wildcards)
func ValidateEventName(name string) error {
	if strings.Contains(name, Wildcard) {
		return fmt.Errorf("event name cannot contain wildcards: %q", name)
	}
	return ValidatePattern(name)
}

func isNameChar(ch rune) bool {
	return ch >= 'a' && ch <= 'z' ||
		ch >= 'A' && ch <= 'Z' ||
		ch >= '0' && ch <= '9' ||
		ch == '_' || ch == '-'
}

// MatchPattern reports whether a concrete event name matches a
// pattern. A wildcard segment matches exactly one name segment, so
// segment counts must be equal.
func MatchPattern(pattern, name string) bool {
	patternSegs := strings.Split(pattern, ":")
	nameSegs := strings.Split(name, ":")

	if len(patternSegs) != len(nameSegs) {
		return false
	}
	for i, seg := range patternSegs {
		if seg == Wildcard {
			continue
		}
		if seg != nameSegs[i] {
			return false
		}
	}
	return true
}

// PatternsOverlap reports whether two patterns can match a common
// event name. Used for redundancy classification: two patterns overlap
// when they have equal segment counts and every segment pair is
// compatible (equal, or at least one side is a wildcard).
func PatternsOverlap(a, b string) bool {
	aSegs := strings.Split(a, ":")
	bSegs := strings.Split(b, ":")

	if len(aSegs) != len(bSegs) {
		return false
	}
	for i := range aSegs {
		if aSegs[i] == Wildcard || bSegs[i] == Wildcard {
			continue
		}
		if aSegs[i] != bSegs[i] {
			return false
		}
	}
	return true
}
