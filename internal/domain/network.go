package domain

import (
	"errors"
	"fmt"
	"strings"
)

const LocalEndpoint = "ws://127.0.0.1:9944"

var ErrUnknownEndpoint = errors.New("unknown endpoint")

var namedEndpoints = map[string]string{
	"local":    LocalEndpoint,
	"goldberg": "wss://goldberg.avail.tools/ws",
	"couscous": "wss://couscous-devnet.avail.tools/ws",
	"turing":   "wss://turing-rpc.avail.so/ws",
}

// ResolveEndpoint maps a network name to its websocket endpoint. URLs pass through.
func ResolveEndpoint(nameOrURL string) (string, error) {
	value := strings.TrimSpace(nameOrURL)
	if value == "" {
		return LocalEndpoint, nil
	}
	if strings.Contains(value, "://") {
		return value, nil
	}
	if endpoint, ok := namedEndpoints[strings.ToLower(value)]; ok {
		return endpoint, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownEndpoint, value)
}

// HTTPEndpoint derives the plain JSON-RPC URL served next to a websocket endpoint.
func HTTPEndpoint(wsURL string) string {
	switch {
	case strings.HasPrefix(wsURL, "wss://"):
		return "https://" + strings.TrimPrefix(wsURL, "wss://")
	case strings.HasPrefix(wsURL, "ws://"):
		return "http://" + strings.TrimPrefix(wsURL, "ws://")
	default:
		return wsURL
	}
}
