package noderpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"availsdk/internal/domain"
)

var ErrKateUnsupported = errors.New("node does not serve kate rpc")

// Client calls node JSON-RPC methods over HTTP.
type Client struct {
	url        string
	httpClient *http.Client
	idCounter  uint64
}

type Config struct {
	URL     string
	Timeout time.Duration
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rpc url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Error is a JSON-RPC error object returned by the node.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// methodNotFound is the JSON-RPC code for an unknown method.
const methodNotFound = -32601

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params []any, result any) error {
	id := atomic.AddUint64(&c.idCounter, 1)
	if params == nil {
		params = []any{}
	}
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("rpc status %d", resp.StatusCode)
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return err
	}
	if decoded.Error != nil {
		if decoded.Error.Code == methodNotFound && strings.HasPrefix(method, "kate_") {
			return fmt.Errorf("%w: %s", ErrKateUnsupported, method)
		}
		return decoded.Error
	}
	if result == nil {
		return nil
	}
	if len(decoded.Result) == 0 {
		return errors.New("rpc result is empty")
	}
	return json.Unmarshal(decoded.Result, result)
}

func atParam(params []any, at *domain.Hash) []any {
	if at == nil {
		return params
	}
	return append(params, at.Hex())
}

// AccountNextIndex returns the next nonce for address, counting the transaction pool.
func (c *Client) AccountNextIndex(ctx context.Context, address string) (uint32, error) {
	var nonce uint32
	if err := c.call(ctx, "system_accountNextIndex", []any{address}, &nonce); err != nil {
		return 0, err
	}
	return nonce, nil
}

type Health struct {
	Peers           int  `json:"peers"`
	IsSyncing       bool `json:"isSyncing"`
	ShouldHavePeers bool `json:"shouldHavePeers"`
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var health Health
	err := c.call(ctx, "system_health", nil, &health)
	return health, err
}

func (c *Client) Chain(ctx context.Context) (string, error) {
	var name string
	err := c.call(ctx, "system_chain", nil, &name)
	return name, err
}

// RotateKeys generates new session keys on the node and returns their concatenation.
func (c *Client) RotateKeys(ctx context.Context) ([]byte, error) {
	var raw string
	if err := c.call(ctx, "author_rotateKeys", nil, &raw); err != nil {
		return nil, err
	}
	return domain.DecodeHexData(raw)
}
