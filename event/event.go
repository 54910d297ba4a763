// Package event defines the analytics event record converted into BigQuery rows.
package event

import (
	"encoding/json"
	"strconv"

	"github.com/google/uuid"

	"github.com/rounds/go-bqdestination/lib/errors"
)

// An Event is a single normalized analytics event, as delivered by the
// hosting event processor.
type Event struct {
	UUID            uuid.UUID       `json:"uuid"`
	Type            EventType       `json:"event_type"`
	Timestamp       int64           `json:"timestamp"`
	TimestampMillis int64           `json:"timestamp_millis"`
	TimestampMicros int64           `json:"timestamp_micros"`
	Consent         Consent         `json:"consent"`
	Context         json.RawMessage `json:"context"`
	Data            json.RawMessage `json:"data"`
}

// EventType is the kind of an Event.
//
// The zero value is not a valid event type.
type EventType int

const (
	Page EventType = iota + 1
	Track
	User
)

// String returns the lowercase name of t, or an empty string if t is unknown.
func (t EventType) String() string {
	s, _ := t.name()
	return s
}

func (t EventType) name() (string, error) {
	switch t {
	case Page:
		return "page", nil
	case Track:
		return "track", nil
	case User:
		return "user", nil
	default:
		return "", errors.NewUnknownVariantError("event_type", strconv.Itoa(int(t)))
	}
}

func (t EventType) MarshalText() ([]byte, error) {
	s, err := t.name()
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

func (t *EventType) UnmarshalText(b []byte) error {
	switch s := string(b); s {
	case "page":
		*t = Page
	case "track":
		*t = Track
	case "user":
		*t = User
	default:
		return errors.NewUnknownVariantError("event_type", s)
	}
	return nil
}

// Consent is the user's tracking consent attached to an Event.
//
// The zero value, ConsentAbsent, means no consent information was given.
type Consent int

const (
	ConsentAbsent Consent = iota
	ConsentPending
	ConsentGranted
	ConsentDenied
)

// Value returns the lowercase name of c, and false if c is ConsentAbsent.
// Unknown values return an error.
func (c Consent) Value() (string, bool, error) {
	switch c {
	case ConsentAbsent:
		return "", false, nil
	case ConsentPending:
		return "pending", true, nil
	case ConsentGranted:
		return "granted", true, nil
	case ConsentDenied:
		return "denied", true, nil
	default:
		return "", false, errors.NewUnknownVariantError("consent", strconv.Itoa(int(c)))
	}
}

// String returns the lowercase name of c, or an empty string if c is absent
// or unknown.
func (c Consent) String() string {
	s, _, _ := c.Value()
	return s
}

// MarshalJSON encodes absent consent as null.
func (c Consent) MarshalJSON() ([]byte, error) {
	s, ok, err := c.Value()
	if err != nil {
		return nil, err
	}
	if !ok {
		return []byte("null"), nil
	}
	return json.Marshal(s)
}

// UnmarshalJSON decodes null as ConsentAbsent.
func (c *Consent) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*c = ConsentAbsent
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	switch s {
	case "pending":
		*c = ConsentPending
	case "granted":
		*c = ConsentGranted
	case "denied":
		*c = ConsentDenied
	default:
		return errors.NewUnknownVariantError("consent", s)
	}
	return nil
}
