// Package protocol implements the JSON-RPC 2.0 envelope shapes used between
// the host and both its clients and its backends. It is a pure data module:
// no I/O, no goroutines, nothing but marshaling, parsing and the well-known
// error codes.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Version is the only JSON-RPC version this host understands.
const Version = "2.0"

// ID is a JSON-RPC request/response identifier: a string, a number, or null.
// A nil *ID marshals to the JSON `null`; a missing id field (as opposed to a
// null one) is represented by omitting the field entirely, which callers do
// by leaving the struct field's pointer nil in a context where omitempty
// applies (see Request.ID in raw parsing).
type ID struct {
	value any
}

// NewID wraps a string or number as a request ID.
func NewID(value any) *ID {
	switch value.(type) {
	case string, int, int32, int64, float64, nil:
		return &ID{value: value}
	default:
		return &ID{value: fmt.Sprintf("%v", value)}
	}
}

// Value returns the underlying string, number, or nil.
func (id *ID) Value() any {
	if id == nil {
		return nil
	}
	return id.value
}

// String renders the ID for logging.
func (id *ID) String() string {
	if id == nil || id.value == nil {
		return "null"
	}
	return fmt.Sprintf("%v", id.value)
}

// Equal reports whether two IDs carry the same value, including both nil.
func (id *ID) Equal(other *ID) bool {
	var a, b any
	if id != nil {
		a = id.value
	}
	if other != nil {
		b = other.value
	}
	return a == b
}

// MarshalJSON implements json.Marshaler.
func (id *ID) MarshalJSON() ([]byte, error) {
	if id == nil {
		return []byte("null"), nil
	}
	return json.Marshal(id.value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	// null is checked first: json.Unmarshal treats null as a no-op for a
	// float64 or string target, which would otherwise turn it into 0 or "".
	var null any
	if err := json.Unmarshal(data, &null); err == nil && null == nil {
		id.value = nil
		return nil
	}
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		id.value = num
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		id.value = str
		return nil
	}
	return fmt.Errorf("protocol: id must be a string, number, or null, got %s", string(data))
}

// Request is a JSON-RPC request or notification. It is a Request when ID is
// non-nil (the envelope carried an "id" key, even if that key's value is
// null); it is a Notification when ID is nil (the "id" key was absent).
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      *ID             `json:"id,omitempty"`
}

// IsNotification reports whether this envelope was sent without an "id" key.
func (r *Request) IsNotification() bool {
	return r.ID == nil
}

// Response is a JSON-RPC response: exactly one of Result or Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      *ID             `json:"id"`
}

// NewResult builds a successful response envelope.
func NewResult(id *ID, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal result: %w", err)
	}
	return &Response{JSONRPC: Version, Result: raw, ID: id}, nil
}

// NewError builds an error response envelope.
func NewError(id *ID, err *Error) *Response {
	return &Response{JSONRPC: Version, Error: err, ID: id}
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}
