package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/kandev/oauthbridge/internal/common/logger"
	"github.com/kandev/oauthbridge/internal/wsframe/wsframetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeSendWrapsEnvelope(t *testing.T) {
	codec := wsframetest.New()
	b := NewBridge("access-token", logger.Nop())
	b.Attach(codec)

	b.Send(AuthReady, ReadyPayload{Port: 43210})

	written := codec.Written()
	require.Len(t, written, 1)
	assert.JSONEq(t,
		`{"method":"app.broadcast","accessToken":"access-token","data":{"event":"auth:ready","data":{"port":43210}}}`,
		written[0])
}

func TestBridgeErrorPayloadOmitsEmptyFields(t *testing.T) {
	codec := wsframetest.New()
	b := NewBridge("t", logger.Nop())
	b.Attach(codec)

	b.Send(AuthError, ErrorPayload{Error: "access_denied"})
	b.Send(AuthError, ErrorPayload{Message: "bind: permission denied"})

	written := codec.Written()
	require.Len(t, written, 2)

	var env struct {
		Data struct {
			Data map[string]string `json:"data"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(written[0]), &env))
	assert.Equal(t, map[string]string{"error": "access_denied"}, env.Data.Data)
	env.Data.Data = nil
	require.NoError(t, json.Unmarshal([]byte(written[1]), &env))
	assert.Equal(t, map[string]string{"message": "bind: permission denied"}, env.Data.Data)
}

func TestBridgeWithoutConnectionIsNoop(t *testing.T) {
	b := NewBridge("t", logger.Nop())
	assert.NotPanics(t, func() { b.Send(AuthCode, CodePayload{Code: "x"}) })

	codec := wsframetest.New()
	b.Attach(codec)
	b.Attach(nil)
	b.Send(AuthCode, CodePayload{Code: "x"})
	assert.Empty(t, codec.Written())
}

func TestBridgeSwallowsWriteFailures(t *testing.T) {
	codec := wsframetest.New()
	codec.FailWrites(errors.New("broken pipe"))
	b := NewBridge("t", logger.Nop())
	b.Attach(codec)

	assert.NotPanics(t, func() { b.Send(AuthCode, CodePayload{Code: "x"}) })

	b.Send(AuthCode, func() {})
	assert.Empty(t, codec.Written())
}

func TestParse(t *testing.T) {
	ev, err := Parse(`{"event":"auth:start","data":{"provider":"spotify"}}`)
	require.NoError(t, err)
	assert.Equal(t, AuthStart, ev.Name)
	assert.JSONEq(t, `{"provider":"spotify"}`, string(ev.Data))

	ev, err = Parse(`{"event":"windowClose"}`)
	require.NoError(t, err)
	assert.Equal(t, WindowClose, ev.Name)

	_, err = Parse(`{"event":`)
	assert.Error(t, err)
}

func TestParseRejectsMessagesWithoutEvent(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		missing bool
	}{
		{name: "null", input: `null`, missing: true},
		{name: "empty object", input: `{}`, missing: true},
		{name: "empty name", input: `{"event":""}`, missing: true},
		{name: "array", input: `[]`},
		{name: "string", input: `"auth:start"`},
		{name: "number", input: `42`},
		{name: "non-string event", input: `{"event":7}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "parse event")
			assert.Equal(t, tt.missing, errors.Is(err, ErrMissingEvent))
		})
	}
}
