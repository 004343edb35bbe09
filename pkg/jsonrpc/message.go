// Package jsonrpc implements the line-delimited JSON-RPC 2.0 envelope that
// every endpoint connection speaks: parsing, shape validation, and a cheap
// gjson-based peek used by the router before paying for a full decode.
package jsonrpc

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Version is the only JSON-RPC version this proxy understands.
const Version = "2.0"

// Message is a JSON-RPC 2.0 request, notification, or response. ID is kept
// as json.RawMessage so it round-trips exactly (string, number, or absent)
// instead of being normalized through an any.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// ErrorObject is the JSON-RPC 2.0 error shape.
type ErrorObject struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Standard JSON-RPC / proxy-specific error codes (spec.md §4.6).
const (
	CodeInvalidRequest  = -32600
	CodeInvalidParams   = -32602
	CodeInternalError   = -32603
	CodeAccessDenied    = -32001
	CodeBackendFailure  = -32003
)

// IsNotification reports whether m carries no id and is therefore a
// notification: no response is ever sent for it.
func (m *Message) IsNotification() bool {
	return len(m.ID) == 0
}

// IsRequest reports whether m has a method, i.e. is a request or
// notification rather than a response.
func (m *Message) IsRequest() bool {
	return m.Method != ""
}

// IsResponse reports whether m carries exactly one of result/error and no
// method, i.e. is a response.
func (m *Message) IsResponse() bool {
	return m.Method == "" && (m.Result != nil) != (m.Error != nil)
}

// Peek cheaply extracts jsonrpc/method/id from a raw line without a full
// json.Unmarshal, so the router can reject obviously-non-object lines (a
// bare array, a scalar) before paying for a complete decode.
type Peek struct {
	IsObject bool
	JSONRPC  string
	Method   string
	HasID    bool
}

// PeekLine inspects raw for the fields the router needs to route on.
func PeekLine(raw []byte) Peek {
	trimmed := gjson.ParseBytes(raw)
	if !trimmed.IsObject() {
		return Peek{}
	}
	return Peek{
		IsObject: true,
		JSONRPC:  trimmed.Get("jsonrpc").String(),
		Method:   trimmed.Get("method").String(),
		HasID:    trimmed.Get("id").Exists(),
	}
}

// Parse fully decodes and validates raw as a JSON-RPC 2.0 message per
// spec.md §3: jsonrpc must equal "2.0", and the message must be either a
// request (method present) or a response (exactly one of result/error,
// method absent).
func Parse(raw []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if m.JSONRPC != Version {
		return nil, ErrInvalidShape
	}
	isRequest := m.Method != ""
	hasResult := m.Result != nil
	hasError := m.Error != nil
	switch {
	case isRequest && (hasResult || hasError):
		return nil, ErrInvalidShape
	case !isRequest && hasResult == hasError:
		// neither request nor a response with exactly one of result/error
		return nil, ErrInvalidShape
	}
	return &m, nil
}

// ErrInvalidShape is returned by Parse when the decoded JSON does not
// satisfy the JSON-RPC 2.0 request/response shape.
var ErrInvalidShape = shapeError{}

type shapeError struct{}

func (shapeError) Error() string { return "jsonrpc: message does not satisfy request/response shape" }

// NewError builds a response message carrying a JSON-RPC error for id.
func NewError(id json.RawMessage, code int, message string) *Message {
	return &Message{
		JSONRPC: Version,
		ID:      id,
		Error:   &ErrorObject{Code: code, Message: message},
	}
}

// NewResult builds a success response message for id.
func NewResult(id json.RawMessage, result json.RawMessage) *Message {
	return &Message{JSONRPC: Version, ID: id, Result: result}
}

// Marshal serializes m for the wire: one line, no trailing newline.
func Marshal(m *Message) ([]byte, error) {
	return json.Marshal(m)
}
