package relay

import (
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"
)

// MaxMessageLen bounds chat and broadcast text, in runes
const MaxMessageLen = 500

// Frame types
const (
	TypeHello  = "hello"
	TypeMove   = "move"
	TypeChat   = "chat"
	TypeError  = "error"
	TypeSystem = "system"
	TypeRaw    = "raw"
)

// System events
const (
	EventBanned     = "banned"
	EventRoomClosed = "room_closed"
)

// Error codes sent to a sender
const (
	ErrCodeNotAllowed   = "not_allowed"
	ErrCodeRoomFull     = "room_full"
	ErrCodeInvalidMove  = "invalid_move"
	ErrCodeEmptyMessage = "empty_message"
	ErrCodeTooLong      = "message_too_long"
	ErrCodeReserved     = "reserved_type"
	ErrCodeInvalidToken = "invalid_token"
)

// Frame is every server to client message
type Frame struct {
	Type     string `json:"type"`
	Room     string `json:"room,omitempty"`
	Role     Role   `json:"role,omitempty"`
	Token    string `json:"token,omitempty"`
	UCI      string `json:"uci,omitempty"`
	Message  string `json:"message,omitempty"`
	FromRole Role   `json:"from_role,omitempty"`
	Error    string `json:"error,omitempty"`
	Event    string `json:"event,omitempty"`
	Raw      string `json:"raw,omitempty"`
}

// Encode marshals f; a Frame of strings cannot fail to encode
func (f Frame) Encode() []byte {
	b, _ := json.Marshal(f)
	return b
}

func HelloFrame(room string, role Role, token string) Frame {
	return Frame{Type: TypeHello, Room: room, Role: role, Token: token}
}

func ErrorFrame(code string) Frame { return Frame{Type: TypeError, Error: code} }

func SystemFrame(event string) Frame { return Frame{Type: TypeSystem, Event: event} }

// RejectFrame is the admission refusal for err
func RejectFrame(err error) Frame {
	switch {
	case errors.Is(err, ErrBanned):
		return ErrorFrame("Banned")
	case errors.Is(err, ErrRoomLocked):
		return ErrorFrame("Room closed")
	default:
		return ErrorFrame(err.Error())
	}
}

// Inbound is a decoded client frame
type Inbound struct {
	Type string
	Move string // uci or move
	Text string // message, chat or text
	Raw  bool   // not a JSON object
}

// Decode never fails: anything that is not a JSON object comes back Raw
func Decode(data []byte) Inbound {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return Inbound{Raw: true}
	}
	return Inbound{
		Type: stringField(fields, "type"),
		Move: stringField(fields, "uci", "move"),
		Text: stringField(fields, "message", "chat", "text"),
	}
}

// stringField returns the first key holding a non-empty string
func stringField(fields map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(raw, &s) == nil && s != "" {
			return s
		}
	}
	return ""
}

// reserved frame types only the server may emit
func reserved(t string) bool {
	return t == TypeHello || t == TypeError || t == TypeSystem
}

// CheckMessage trims text and enforces the length bound
func CheckMessage(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxMessageLen {
		return "", ErrMessageTooLong
	}
	return text, nil
}

// Route decides what a sender's frame becomes. out is nil when nothing is
// relayed; reply is non-nil when the sender gets an error back.
func Route(data []byte, role Role) (out, reply []byte) {
	in := Decode(data)
	if in.Raw {
		return Frame{Type: TypeRaw, Raw: string(data)}.Encode(), nil
	}

	switch in.Type {
	case TypeMove:
		if !role.IsPlayer() {
			return nil, ErrorFrame(ErrCodeNotAllowed).Encode()
		}
		if in.Move == "" {
			return nil, ErrorFrame(ErrCodeInvalidMove).Encode()
		}
		return Frame{Type: TypeMove, UCI: in.Move, FromRole: role}.Encode(), nil

	case TypeChat:
		text, err := CheckMessage(in.Text)
		if errors.Is(err, ErrMessageTooLong) {
			return nil, ErrorFrame(ErrCodeTooLong).Encode()
		}
		if err != nil {
			return nil, ErrorFrame(ErrCodeEmptyMessage).Encode()
		}
		return Frame{Type: TypeChat, Message: text, FromRole: role}.Encode(), nil
	}

	if reserved(in.Type) {
		return nil, ErrorFrame(ErrCodeReserved).Encode()
	}
	return data, nil
}
