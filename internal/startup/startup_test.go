package startup

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead(t *testing.T) {
	input := `{"nlToken":"tok","nlPort":51234,"nlExtensionId":"js.neutralino.auth","nlConnectToken":"ct"}` + "\n" + "ignored second line\n"

	cfg, err := Read(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, &BridgeConfig{
		Token:        "tok",
		Port:         51234,
		ExtensionID:  "js.neutralino.auth",
		ConnectToken: "ct",
	}, cfg)
}

func TestReadWithoutTrailingNewline(t *testing.T) {
	cfg, err := Read(strings.NewReader(`{"nlToken":"t","nlPort":"8080","nlExtensionId":"e","nlConnectToken":"c"}`))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: "empty input"},
		{name: "whitespace only", input: "  \n", want: "empty input"},
		{name: "not json", input: "nlPort=1", want: "invalid"},
		{name: "missing port", input: `{"nlToken":"t","nlExtensionId":"e","nlConnectToken":"c"}`, want: "nlPort"},
		{name: "port zero", input: `{"nlToken":"t","nlPort":0,"nlExtensionId":"e","nlConnectToken":"c"}`, want: "out of range"},
		{name: "port too large", input: `{"nlToken":"t","nlPort":70000,"nlExtensionId":"e","nlConnectToken":"c"}`, want: "out of range"},
		{name: "port garbage", input: `{"nlToken":"t","nlPort":"abc","nlExtensionId":"e","nlConnectToken":"c"}`, want: "not a number"},
		{name: "missing tokens", input: `{"nlPort":1}`, want: "nlToken, nlExtensionId, nlConnectToken"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrStartupConfig))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
