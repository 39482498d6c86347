package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType discriminates the JSON envelope carried by each frame.
type MessageType string

const (
	// client -> server
	TypeRegister MessageType = "register"
	TypeLogin    MessageType = "login"
	TypeChat     MessageType = "chat"

	// server -> client
	TypeRegistered     MessageType = "registered"
	TypeRegisterFailed MessageType = "register_failed"
	TypeLoggedIn       MessageType = "logged_in"
	TypeLoginFailed    MessageType = "login_failed"
	TypeChatDelivery   MessageType = "chat_delivery"
	TypeSystemNotice   MessageType = "system_notice"
	TypeError          MessageType = "error"
)

// Error codes carried by TypeError envelopes.
const (
	CodeProtocolError = "protocol_error"
	CodeNotLoggedIn   = "not_logged_in"
)

// Envelope is the single wire message shape. Type decides which fields
// are meaningful; unused fields are omitted from the JSON.
type Envelope struct {
	Type     MessageType `json:"type"`
	Username string      `json:"username,omitempty"`
	Password string      `json:"password,omitempty"`
	Body     string      `json:"body,omitempty"`
	Sender   string      `json:"sender,omitempty"`
	SentAt   *time.Time  `json:"sent_at,omitempty"`
	Token    string      `json:"token,omitempty"`
	Text     string      `json:"text,omitempty"`
	Code     string      `json:"code,omitempty"`
	Reason   string      `json:"reason,omitempty"`
}

// Encode marshals the envelope to the UTF-8 payload of one frame.
func Encode(e Envelope) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("envelope marshal: %w", err)
	}
	return data, nil
}

// Decode parses a frame payload. A payload that is not a JSON envelope or
// carries no type is a protocol error for the caller to report.
func Decode(payload []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(payload, &e); err != nil {
		return Envelope{}, fmt.Errorf("envelope unmarshal: %w", err)
	}
	if e.Type == "" {
		return Envelope{}, fmt.Errorf("envelope has no type")
	}
	return e, nil
}

func NewChatDelivery(sender, body string, sentAt time.Time) Envelope {
	at := sentAt.UTC()
	return Envelope{Type: TypeChatDelivery, Sender: sender, Body: body, SentAt: &at}
}

func NewSystemNotice(text string) Envelope {
	return Envelope{Type: TypeSystemNotice, Text: text}
}

func NewError(code, reason string) Envelope {
	return Envelope{Type: TypeError, Code: code, Reason: reason}
}
