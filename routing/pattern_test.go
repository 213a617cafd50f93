package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePattern(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		wantErr bool
	}{
		{"single segment", "heartbeat", false},
		{"two segments", "navigation:goal_reached", false},
		{"wildcard segment", "navigation:*", false},
		{"leading wildcard", "*:created", false},
		{"all wildcards", "*:*", false},
		{"dashes and digits", "sensor-2:reading_1", false},
		{"empty", "", true},
		{"double separator", "a::b", true},
		{"trailing separator", "a:b:", true},
		{"leading separator", ":a", true},
		{"embedded wildcard", "nav*:done", true},
		{"space", "a b:c", true},
		{"dot", "a.b:c", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePattern(tt.pattern)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateEventName(t *testing.T) {
	assert.NoError(t, ValidateEventName("out:result"))
	assert.Error(t, ValidateEventName("out:*"))
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"test:event", "test:event", true},
		{"test:*", "test:event", true},
		{"test:*", "test:other", true},
		{"*:event", "test:event", true},
		{"test:event", "test:other", false},
		{"test:*", "other:event", false},
		{"test:*", "test:a:b", false}, // wildcard matches exactly one segment
		{"test", "test:event", false},
		{"*:*", "a:b", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchPattern(tt.pattern, tt.name))
		})
	}
}

func TestPatternsOverlap(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"test:*", "test:event", true},
		{"test:*", "*:event", true},
		{"test:a", "test:b", false},
		{"test:*", "other:x", false},
		{"a:b", "a:b:c", false},
		{"*:*", "x:y", true},
	}

	for _, tt := range tests {
		t.Run(tt.a+"~"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, PatternsOverlap(tt.a, tt.b))
			assert.Equal(t, tt.want, PatternsOverlap(tt.b, tt.a))
		})
	}
}

func TestNameSubjectRoundTrip(t *testing.T) {
	subject := NameToSubject("navigation:goal_reached")
	assert.Equal(t, "events.navigation.goal_reached", subject)

	name, ok := SubjectToName(subject)
	assert.True(t, ok)
	assert.Equal(t, "navigation:goal_reached", name)

	_, ok = SubjectToName("other.navigation.goal_reached")
	assert.False(t, ok)
}
