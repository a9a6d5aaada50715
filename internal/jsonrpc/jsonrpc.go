// ABOUTME: JSON-RPC 2.0 envelope types, id handling, and the standard error taxonomy
// ABOUTME: Parse classifies raw bytes into requests, notifications, or envelope errors

package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Version is the only protocol version accepted.
const Version = "2.0"

// Standard JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// ID is a request identifier: either an integer or a string.
type ID struct {
	num   int64
	str   string
	isStr bool
}

// NumberID returns a numeric id.
func NumberID(n int64) *ID { return &ID{num: n} }

// StringID returns a string id.
func StringID(s string) *ID { return &ID{str: s, isStr: true} }

// IsString reports whether the id was a JSON string.
func (id *ID) IsString() bool { return id.isStr }

func (id *ID) String() string {
	if id == nil {
		return "null"
	}
	if id.isStr {
		return id.str
	}
	return strconv.FormatInt(id.num, 10)
}

// MarshalJSON encodes the id in its original JSON type.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.isStr {
		return json.Marshal(id.str)
	}
	return []byte(strconv.FormatInt(id.num, 10)), nil
}

// UnmarshalJSON accepts a JSON string or integer.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID{str: s, isStr: true}
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("id must be an integer or string: %s", data)
	}
	*id = ID{num: n}
	return nil
}

// Request is a JSON-RPC request or, when ID is nil, a notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the sender expects no response.
func (r *Request) IsNotification() bool { return r.ID == nil }

// Response carries exactly one of Result or Error. A nil ID encodes as null.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// ParseError reports bytes that are not valid JSON.
func ParseError() *Error {
	return &Error{Code: CodeParseError, Message: "Parse error"}
}

// InvalidRequest reports JSON that is not a valid request envelope.
func InvalidRequest(msg string) *Error {
	return &Error{Code: CodeInvalidRequest, Message: "Invalid request: " + msg}
}

// MethodNotFound reports an unroutable method.
func MethodNotFound(method string) *Error {
	return &Error{Code: CodeMethodNotFound, Message: "Method not found: " + method}
}

// InvalidParams reports missing or malformed params.
func InvalidParams(msg string) *Error {
	return &Error{Code: CodeInvalidParams, Message: "Invalid params: " + msg}
}

// InternalError reports a fault while handling an otherwise valid request.
func InternalError(msg string) *Error {
	return &Error{Code: CodeInternalError, Message: "Internal error: " + msg}
}

// NewResult builds a success response. If v cannot be encoded the response
// carries an internal error instead.
func NewResult(id *ID, v any) *Response {
	data, err := json.Marshal(v)
	if err != nil {
		return NewError(id, InternalError(fmt.Sprintf("encoding result: %v", err)))
	}
	return &Response{JSONRPC: Version, ID: id, Result: data}
}

// NewError builds an error response.
func NewError(id *ID, e *Error) *Response {
	return &Response{JSONRPC: Version, ID: id, Error: e}
}

// envelope mirrors Request but keeps the id raw so that an absent id, a null
// id, and a malformed id can be told apart.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Parse decodes one JSON-RPC message. On failure it returns the error object
// to send back along with whatever id could be recovered. An explicit null
// id is treated the same as an absent one.
func Parse(raw []byte) (*Request, *ID, *Error) {
	trimmed := bytes.TrimSpace(raw)
	if !json.Valid(trimmed) {
		return nil, nil, ParseError()
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, nil, InvalidRequest("expected a JSON object")
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, nil, InvalidRequest(err.Error())
	}

	var id *ID
	if len(env.ID) > 0 && !bytes.Equal(env.ID, []byte("null")) {
		id = new(ID)
		if err := id.UnmarshalJSON(env.ID); err != nil {
			return nil, nil, InvalidRequest(err.Error())
		}
	}

	if env.JSONRPC != Version {
		return nil, id, InvalidRequest(fmt.Sprintf("jsonrpc must be %q", Version))
	}
	if env.Method == "" {
		return nil, id, InvalidRequest("method is required")
	}

	params := env.Params
	if bytes.Equal(bytes.TrimSpace(params), []byte("null")) {
		params = nil
	}

	return &Request{JSONRPC: env.JSONRPC, ID: id, Method: env.Method, Params: params}, id, nil
}
