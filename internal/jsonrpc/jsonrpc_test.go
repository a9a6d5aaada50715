// ABOUTME: Tests for JSON-RPC parsing, id round-trips, and response encoding
// ABOUTME: Checks the error taxonomy and the result-or-error exclusivity rule

package jsonrpc

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantCode   int // 0 means success
		wantNotify bool
		wantID     string
	}{
		{"numeric id", `{"jsonrpc":"2.0","id":1,"method":"ping"}`, 0, false, "1"},
		{"string id", `{"jsonrpc":"2.0","id":"abc","method":"ping"}`, 0, false, "abc"},
		{"notification", `{"jsonrpc":"2.0","method":"notifications/initialized"}`, 0, true, "null"},
		{"null id is a notification", `{"jsonrpc":"2.0","id":null,"method":"x"}`, 0, true, "null"},
		{"garbage", `{not json`, CodeParseError, false, "null"},
		{"empty", ``, CodeParseError, false, "null"},
		{"array", `[1,2]`, CodeInvalidRequest, false, "null"},
		{"wrong version", `{"jsonrpc":"1.0","id":3,"method":"ping"}`, CodeInvalidRequest, false, "3"},
		{"missing method", `{"jsonrpc":"2.0","id":4}`, CodeInvalidRequest, false, "4"},
		{"object id", `{"jsonrpc":"2.0","id":{},"method":"ping"}`, CodeInvalidRequest, false, "null"},
		{"fractional id", `{"jsonrpc":"2.0","id":1.5,"method":"ping"}`, CodeInvalidRequest, false, "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, id, rpcErr := Parse([]byte(tt.raw))
			assert.Equal(t, tt.wantID, id.String())
			if tt.wantCode != 0 {
				require.NotNil(t, rpcErr)
				assert.Equal(t, tt.wantCode, rpcErr.Code)
				assert.Nil(t, req)
				return
			}
			require.Nil(t, rpcErr)
			require.NotNil(t, req)
			assert.Equal(t, tt.wantNotify, req.IsNotification())
		})
	}
}

func TestParseNullParams(t *testing.T) {
	req, _, rpcErr := Parse([]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":null}`))
	require.Nil(t, rpcErr)
	assert.Nil(t, req.Params)
}

func TestIDRoundTrip(t *testing.T) {
	for _, id := range []*ID{NumberID(0), NumberID(math.MaxInt64), NumberID(-9), StringID(""), StringID("req-1")} {
		data, err := json.Marshal(id)
		require.NoError(t, err)

		var back ID
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, *id, back)
	}
	assert.True(t, StringID("7").IsString())
	assert.False(t, NumberID(7).IsString())
}

func TestResponseEncoding(t *testing.T) {
	t.Run("success has result and no error", func(t *testing.T) {
		data, err := json.Marshal(NewResult(NumberID(1), map[string]any{}))
		require.NoError(t, err)
		assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{}}`, string(data))
	})

	t.Run("error has error and no result", func(t *testing.T) {
		data, err := json.Marshal(NewError(nil, ParseError()))
		require.NoError(t, err)
		assert.JSONEq(t, `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error"}}`, string(data))
	})

	t.Run("unencodable result becomes internal error", func(t *testing.T) {
		resp := NewResult(StringID("x"), map[string]any{"ch": make(chan int)})
		assert.Nil(t, resp.Result)
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeInternalError, resp.Error.Code)
	})
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "Method not found: tools/foo", MethodNotFound("tools/foo").Message)
	assert.Equal(t, "Invalid params: missing params", InvalidParams("missing params").Message)
	assert.Equal(t, CodeInvalidParams, InvalidParams("x").Code)
	assert.Contains(t, InternalError("boom").Error(), "-32603")
}
