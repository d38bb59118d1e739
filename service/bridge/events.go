package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformedEvent marks a stream payload that cannot be decoded into an
	// AssignmentEvent.
	ErrMalformedEvent = errors.New("malformed assignment event")
	// ErrInvalidEvent marks a decoded event with a missing identity or resource.
	ErrInvalidEvent = errors.New("invalid assignment event")
)

const (
	TypeWelcome      = "welcome"
	TypeSessionStart = "session-start"
)

// AssignmentEvent states that Identity is now associated with Resource.
type AssignmentEvent struct {
	Identity string `json:"userId"`
	Resource string `json:"game"`
}

// Validate reports ErrInvalidEvent when either field is empty.
func (e AssignmentEvent) Validate() error {
	if e.Identity == "" || e.Resource == "" {
		return fmt.Errorf("%w: userId=%q game=%q", ErrInvalidEvent, e.Identity, e.Resource)
	}
	return nil
}

// Encode renders the event in its wire form.
func (e AssignmentEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeAssignment parses a stream payload. Anything that is not a JSON object
// carrying both fields is reported as ErrMalformedEvent.
func DecodeAssignment(raw []byte) (AssignmentEvent, error) {
	var ev AssignmentEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return AssignmentEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := ev.Validate(); err != nil {
		return AssignmentEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return ev, nil
}

// Notification is a server-pushed frame.
type Notification struct {
	Type     string `json:"type"`
	Identity string `json:"userId"`
	Resource string `json:"game,omitempty"`
	ConnID   string `json:"connId,omitempty"`
}

// SessionStart builds the frame pushed when an identity is assigned.
func SessionStart(ev AssignmentEvent) Notification {
	return Notification{Type: TypeSessionStart, Identity: ev.Identity, Resource: ev.Resource}
}

// Welcome builds the acknowledgement sent right after the handshake.
func Welcome(identity, connID string) Notification {
	return Notification{Type: TypeWelcome, Identity: identity, ConnID: connID}
}

// Encode renders the frame as JSON. Notification only holds strings, so the
// marshal cannot fail.
func (n Notification) Encode() []byte {
	b, _ := json.Marshal(n)
	return b
}
