// Package protocol defines the WebSocket message types exchanged between chat
// clients and the gateway. Every frame is a JSON object carrying a "type"
// discriminator.
package protocol

import (
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Message type constants. The same "chat" type is used in both directions.
const (
	TypeChat  = "chat"
	TypeError = "error"
)

// BannedNotice is the text of the error frame sent to a refused connection.
const BannedNotice = "You are banned."

// Errors reported inside a Malformed result.
var (
	ErrMissingType   = errors.New("protocol: missing or empty \"type\" field")
	ErrEmptyUsername = errors.New("protocol: chat username is empty")
	ErrEmptyText     = errors.New("protocol: chat text is empty")
)

// ---------------------------------------------------------------------------
// Envelope: first-pass decode that extracts the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string              `json:"type"`
	Raw  jsoniter.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full raw bytes and extracts only the "type"
// field so that the rest of the payload can be decoded later.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(jsoniter.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return ErrMissingType
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server
// ---------------------------------------------------------------------------

// ChatMsg is a chat line sent by a client. Username and text are opaque.
type ChatMsg struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Text     string `json:"text"`
}

// Kind classifies the outcome of decoding one inbound frame.
type Kind int

const (
	// KindMalformed covers unparsable JSON, a missing type, or a chat event
	// whose fields are absent, empty or of the wrong JSON type.
	KindMalformed Kind = iota
	// KindIgnored is a well-formed frame whose type the gateway does not handle.
	KindIgnored
	// KindChat is a valid chat event.
	KindChat
)

func (k Kind) String() string {
	switch k {
	case KindChat:
		return "chat"
	case KindIgnored:
		return "ignored"
	default:
		return "malformed"
	}
}

// Inbound is the tagged result of ParseClientMessage. Chat is populated only
// for KindChat and Err only for KindMalformed.
type Inbound struct {
	Kind Kind
	Type string
	Chat ChatMsg
	Err  error
}

// ParseClientMessage decodes raw WebSocket bytes into a tagged result. It
// never fails outright: every problem is reported as KindMalformed so callers
// can drop the frame and keep the connection open.
func ParseClientMessage(data []byte) Inbound {
	var env Envelope
	if err := env.UnmarshalJSON(data); err != nil {
		return Inbound{Kind: KindMalformed, Err: err}
	}

	if env.Type != TypeChat {
		return Inbound{Kind: KindIgnored, Type: env.Type}
	}

	var m ChatMsg
	if err := json.Unmarshal(env.Raw, &m); err != nil {
		return Inbound{Kind: KindMalformed, Type: env.Type, Err: fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)}
	}
	if m.Username == "" {
		return Inbound{Kind: KindMalformed, Type: env.Type, Err: ErrEmptyUsername}
	}
	if m.Text == "" {
		return Inbound{Kind: KindMalformed, Type: env.Type, Err: ErrEmptyText}
	}
	return Inbound{Kind: KindChat, Type: env.Type, Chat: m}
}

// ---------------------------------------------------------------------------
// Server -> Client
// ---------------------------------------------------------------------------

// ServerChatMsg is the broadcast form of a persisted chat message.
type ServerChatMsg struct {
	Type      string    `json:"type"`
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorMsg is sent once to a connection right before the gateway closes it.
type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewServerMessage marshals a server payload after forcing its "type" field
// to msgType. Only the Server*Msg and ErrorMsg structs are accepted.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	switch p := payload.(type) {
	case ServerChatMsg:
		p.Type = msgType
		payload = p
	case ErrorMsg:
		p.Type = msgType
		payload = p
	default:
		return nil, fmt.Errorf("protocol: unsupported server payload %T", payload)
	}

	out, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
