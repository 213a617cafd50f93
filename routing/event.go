package routing

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SubjectPrefix is the NATS subject namespace carrying routed events
const SubjectPrefix = "events"

// Event is the envelope flowing through the bus. Names use colon
// separated segments ("navigation:goal_reached"); on NATS they map to
// dot separated subjects under the events prefix
// ("events.navigation.goal_reached").
type Event struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Payload       map[string]any `json:"payload,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// NewEvent creates an event with a fresh ID and current timestamp
func NewEvent(name string, payload map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Name:      name,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// Marshal serializes the event for the wire
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEvent parses a wire event
func UnmarshalEvent(data []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return event, nil
}

// NameToSubject converts an event name to its NATS subject
func NameToSubject(name string) string {
	return SubjectPrefix + "." + strings.ReplaceAll(name, ":", ".")
}

// SubjectToName converts a NATS subject back to an event name. Subjects
// outside the events namespace return ok=false.
func SubjectToName(subject string) (string, bool) {
	rest, found := strings.CutPrefix(subject, SubjectPrefix+".")
	if !found || rest == "" {
		return "", false
	}
	return strings.ReplaceAll(rest, ".", ":"), true
}

// PatternToSubject converts an event-name pattern to a NATS subject
// filter. The segment wildcard is the same token in both grammars.
func PatternToSubject(pattern string) string {
	return SubjectPrefix + "." + strings.ReplaceAll(pattern, ":", ".")
}
