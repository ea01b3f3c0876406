// Package message defines the envelope exchanged between peers and the broker.
//
// A Message is the unit the codec layer serializes and the protocol layer frames.
// Requests and responses are correlated by ID only; the broker looks at Destination
// and nothing else when relaying.
//
//   - request:  Route is set, Payload carries the arguments.
//   - response: ID matches the request, Payload carries the handler result.
//   - error:    ID matches the request, Error says why it failed.
//   - info:     control traffic between a peer and the broker (handshake).
package message

import "github.com/google/uuid"

// Kind is the message category.
type Kind string

const (
	KindRequest  Kind = "request"
	KindResponse Kind = "response"
	KindError    Kind = "error"
	KindInfo     Kind = "info"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindRequest, KindResponse, KindError, KindInfo:
		return true
	}
	return false
}

// Payload is arbitrary JSON-compatible structured data.
type Payload map[string]any

// RouteIdentify is the route of the handshake info messages.
const RouteIdentify = "identify"

// Control routes answered by the broker itself (request with empty Destination).
const (
	RoutePeers = "peers"
	RoutePing  = "ping"
)

// Message carries a single request, response, error or info record.
type Message struct {
	ID          string       `json:"id,omitempty" msgpack:"id,omitempty"`
	Kind        Kind         `json:"kind" msgpack:"kind"`
	Source      string       `json:"source,omitempty" msgpack:"source,omitempty"`
	Destination string       `json:"destination,omitempty" msgpack:"destination,omitempty"`
	Route       string       `json:"route,omitempty" msgpack:"route,omitempty"`
	Payload     Payload      `json:"payload,omitempty" msgpack:"payload,omitempty"`
	Error       *ErrorDetail `json:"error_detail,omitempty" msgpack:"error_detail,omitempty"`
}

// NewID returns a fresh correlation id.
func NewID() string {
	return uuid.NewString()
}

// NewRequest builds a request with a fresh correlation id.
func NewRequest(source, destination, route string, payload Payload) *Message {
	return &Message{
		ID:          NewID(),
		Kind:        KindRequest,
		Source:      source,
		Destination: destination,
		Route:       route,
		Payload:     payload,
	}
}

// Reply builds the response to m. Source and Destination are swapped so the
// broker routes it back to the caller.
func (m *Message) Reply(payload Payload) *Message {
	return &Message{
		ID:          m.ID,
		Kind:        KindResponse,
		Source:      m.Destination,
		Destination: m.Source,
		Route:       m.Route,
		Payload:     payload,
	}
}

// Fail builds an error message correlated to m.
func (m *Message) Fail(code ErrorCode, msg string) *Message {
	return &Message{
		ID:          m.ID,
		Kind:        KindError,
		Source:      m.Destination,
		Destination: m.Source,
		Route:       m.Route,
		Error:       &ErrorDetail{Code: code, Message: msg},
	}
}

// IsReply reports whether m resolves a pending request.
func (m *Message) IsReply() bool {
	return m.Kind == KindResponse || m.Kind == KindError
}

// Err returns the error carried by an error message, or nil.
func (m *Message) Err() error {
	if m.Kind != KindError {
		return nil
	}
	if m.Error == nil {
		return &RemoteError{Code: CodeHandlerFailed, Message: "error message without detail"}
	}
	return &RemoteError{Code: m.Error.Code, Message: m.Error.Message}
}
