package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EncodeRequest renders a Request or Notification as a single JSON line
// (without the trailing newline; callers append it when framing stdio
// traffic). Key order is jsonrpc, method, id, params to aid snapshot tests.
func EncodeRequest(r *Request) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"jsonrpc":`)
	writeJSON(&buf, r.JSONRPC)
	buf.WriteString(`,"method":`)
	writeJSON(&buf, r.Method)
	if r.ID != nil {
		buf.WriteString(`,"id":`)
		idBytes, err := r.ID.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("protocol: encode id: %w", err)
		}
		buf.Write(idBytes)
	}
	if len(r.Params) > 0 {
		buf.WriteString(`,"params":`)
		buf.Write(r.Params)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// EncodeResponse renders a Response envelope with key order
// jsonrpc, result|error, id.
func EncodeResponse(r *Response) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"jsonrpc":`)
	writeJSON(&buf, r.JSONRPC)
	switch {
	case r.Error != nil:
		buf.WriteString(`,"error":`)
		errBytes, err := json.Marshal(r.Error)
		if err != nil {
			return nil, fmt.Errorf("protocol: encode error: %w", err)
		}
		buf.Write(errBytes)
	default:
		buf.WriteString(`,"result":`)
		if len(r.Result) == 0 {
			buf.WriteString("null")
		} else {
			buf.Write(r.Result)
		}
	}
	buf.WriteString(`,"id":`)
	if r.ID == nil {
		buf.WriteString("null")
	} else {
		idBytes, err := r.ID.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("protocol: encode id: %w", err)
		}
		buf.Write(idBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v any) {
	b, _ := json.Marshal(v)
	buf.Write(b)
}
