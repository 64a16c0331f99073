package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind tags the shape a parsed envelope turned out to be.
type Kind int

const (
	// KindRequest is a Request envelope ("id" key present, any value).
	KindRequest Kind = iota
	// KindNotification is a Request envelope with the "id" key absent.
	KindNotification
	// KindResponse is a Response envelope (has "result" or "error").
	KindResponse
)

// Parsed is the tagged union returned by Parse.
type Parsed struct {
	Kind     Kind
	Request  *Request
	Response *Response
}

// SyntaxError marks bytes that could not be parsed as JSON at all, as
// opposed to well-formed JSON that violates the envelope shape. Callers use
// errors.As to tell the two apart and pick ParseError vs InvalidRequest.
type SyntaxError struct {
	Err error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("protocol: invalid json: %v", e.Err)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// rawEnvelope captures every field across all three shapes so we can inspect
// which keys were actually present before deciding what we parsed.
type rawEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  *string         `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error"`
	ID      json.RawMessage `json:"id"`
	hasID   bool
}

// Parse consumes a single raw JSON-RPC message and classifies it. It never
// itself returns a protocol *Error value; callers translate a non-nil err
// into the correct Error code by checking errors.As(err, *SyntaxError)
// (ParseError) versus any other error (InvalidRequest: well-formed JSON that
// violates the envelope shape).
func Parse(raw []byte) (*Parsed, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, &SyntaxError{Err: err}
	}

	var env rawEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &SyntaxError{Err: err}
	}
	_, env.hasID = probe["id"]

	if env.JSONRPC != Version {
		return nil, fmt.Errorf("protocol: jsonrpc must be %q, got %q", Version, env.JSONRPC)
	}

	hasMethod := env.Method != nil
	_, resultKey := probe["result"]
	hasError := env.Error != nil
	// A null result is a valid result, unless it sits beside an error object.
	hasResult := resultKey && !(hasError && string(env.Result) == "null")

	switch {
	case hasMethod:
		if *env.Method == "" {
			return nil, fmt.Errorf("protocol: method must be a non-empty string")
		}
		if len(env.Params) > 0 {
			trimmed := firstNonSpace(env.Params)
			if trimmed != '{' && trimmed != '[' {
				return nil, fmt.Errorf("protocol: params must be an object or array")
			}
		}
		req := &Request{JSONRPC: env.JSONRPC, Method: *env.Method, Params: env.Params}
		if env.hasID {
			id := &ID{}
			if err := id.UnmarshalJSON(env.ID); err != nil {
				return nil, err
			}
			req.ID = id
			return &Parsed{Kind: KindRequest, Request: req}, nil
		}
		return &Parsed{Kind: KindNotification, Request: req}, nil

	case hasResult || hasError:
		if hasResult && hasError {
			return nil, fmt.Errorf("protocol: response cannot carry both result and error")
		}
		if !env.hasID {
			return nil, fmt.Errorf("protocol: response must carry an id")
		}
		id := &ID{}
		if err := id.UnmarshalJSON(env.ID); err != nil {
			return nil, err
		}
		resp := &Response{JSONRPC: env.JSONRPC, Result: env.Result, Error: env.Error, ID: id}
		return &Parsed{Kind: KindResponse, Response: resp}, nil

	default:
		return nil, fmt.Errorf("protocol: envelope has neither method, result, nor error")
	}
}

func firstNonSpace(b []byte) byte {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return c
		}
	}
	return 0
}
