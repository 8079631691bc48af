// Package startup reads the one-line launch payload the parent writes to the
// bridge's standard input.
package startup

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrStartupConfig is wrapped by every error Read returns.
var ErrStartupConfig = errors.New("invalid startup config")

// BridgeConfig is the immutable per-launch configuration handed over by the parent.
type BridgeConfig struct {
	Token        string
	Port         int
	ExtensionID  string
	ConnectToken string
}

type payload struct {
	Token        string          `json:"nlToken"`
	Port         json.RawMessage `json:"nlPort"`
	ExtensionID  string          `json:"nlExtensionId"`
	ConnectToken string          `json:"nlConnectToken"`
}

// Read consumes a single line from r and decodes it.
func Read(r io.Reader) (*BridgeConfig, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrStartupConfig, err)
	}
	return Parse([]byte(line))
}

// Parse decodes one startup line.
func Parse(line []byte) (*BridgeConfig, error) {
	if strings.TrimSpace(string(line)) == "" {
		return nil, fmt.Errorf("%w: empty input", ErrStartupConfig)
	}

	var p payload
	if err := json.Unmarshal(line, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStartupConfig, err)
	}

	port, err := parsePort(p.Port)
	if err != nil {
		return nil, fmt.Errorf("%w: nlPort: %v", ErrStartupConfig, err)
	}

	var missing []string
	if p.Token == "" {
		missing = append(missing, "nlToken")
	}
	if p.ExtensionID == "" {
		missing = append(missing, "nlExtensionId")
	}
	if p.ConnectToken == "" {
		missing = append(missing, "nlConnectToken")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrStartupConfig, strings.Join(missing, ", "))
	}

	return &BridgeConfig{
		Token:        p.Token,
		Port:         port,
		ExtensionID:  p.ExtensionID,
		ConnectToken: p.ConnectToken,
	}, nil
}

// parsePort accepts the port as a JSON number or a numeric string.
func parsePort(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, errors.New("missing")
	}

	text := string(raw)
	var s string
	if json.Unmarshal(raw, &s) == nil {
		text = s
	}

	port, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, fmt.Errorf("not a number: %s", raw)
	}
	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("out of range: %d", port)
	}
	return port, nil
}
