package substrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"availsdk/internal/domain"

	gethrpc "github.com/centrifuge/go-substrate-rpc-client/v4/gethrpc"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
)

// Methods the node must expose for the full SDK surface.
var requiredMethods = []string{
	"author_submitAndWatchExtrinsic",
	"chain_getBlock",
	"chain_getFinalizedHead",
	"state_getStorage",
	"system_accountNextIndex",
}

// KateMethods are the data-availability RPCs served by Avail nodes.
var KateMethods = []string{
	"kate_blockLength",
	"kate_queryProof",
	"kate_queryDataProof",
	"kate_queryRows",
	"kate_queryAppData",
}

var ErrMissingMethod = errors.New("node does not expose required rpc method")

type Config struct {
	Endpoint    string
	DialTimeout time.Duration
}

// Client is a connection to one Avail node. Metadata, runtime version and genesis
// hash are fetched once at connect time.
type Client struct {
	rpc      *gethrpc.Client
	endpoint string

	mu          sync.RWMutex
	registry    *runtimeRegistry
	specVersion uint32
	txVersion   uint32
	genesis     domain.Hash
	methods     []string
}

func Connect(ctx context.Context, cfg Config) (*Client, error) {
	endpoint, err := domain.ResolveEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	slog.Info("connecting to avail node", "endpoint", endpoint)

	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	rpcClient, err := gethrpc.DialContext(dialCtx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	client := &Client{rpc: rpcClient, endpoint: endpoint}
	if err := client.Refresh(ctx); err != nil {
		rpcClient.Close()
		return nil, err
	}
	if err := client.loadMethods(ctx); err != nil {
		rpcClient.Close()
		return nil, err
	}
	return client, nil
}

func (c *Client) Close() {
	c.rpc.Close()
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

// Refresh reloads metadata and runtime version, for use after a runtime upgrade.
func (c *Client) Refresh(ctx context.Context) error {
	var metadataHex string
	if err := c.call(ctx, &metadataHex, "state_getMetadata"); err != nil {
		return fmt.Errorf("fetch metadata: %w", err)
	}
	var metadata types.Metadata
	if err := codec.DecodeFromHex(metadataHex, &metadata); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	registry, err := newRuntimeRegistry(&metadata)
	if err != nil {
		return err
	}

	var version types.RuntimeVersion
	if err := c.call(ctx, &version, "state_getRuntimeVersion"); err != nil {
		return fmt.Errorf("fetch runtime version: %w", err)
	}

	var genesisHex string
	if err := c.call(ctx, &genesisHex, "chain_getBlockHash", 0); err != nil {
		return fmt.Errorf("fetch genesis hash: %w", err)
	}
	genesis, err := domain.ParseHash(genesisHex)
	if err != nil {
		return fmt.Errorf("parse genesis hash: %w", err)
	}

	c.mu.Lock()
	c.registry = registry
	c.specVersion = uint32(version.SpecVersion)
	c.txVersion = uint32(version.TransactionVersion)
	c.genesis = genesis
	c.mu.Unlock()
	slog.Info("runtime loaded",
		"spec_version", uint32(version.SpecVersion),
		"transaction_version", uint32(version.TransactionVersion),
		"genesis", genesis.Hex(),
	)
	return nil
}

func (c *Client) loadMethods(ctx context.Context) error {
	var result struct {
		Methods []string `json:"methods"`
	}
	if err := c.call(ctx, &result, "rpc_methods"); err != nil {
		return fmt.Errorf("list rpc methods: %w", err)
	}
	for _, method := range requiredMethods {
		if !slices.Contains(result.Methods, method) {
			return fmt.Errorf("%w: %s", ErrMissingMethod, method)
		}
	}
	var missing []string
	for _, method := range KateMethods {
		if !slices.Contains(result.Methods, method) {
			missing = append(missing, method)
		}
	}
	if len(missing) > 0 {
		slog.Warn("node does not serve kate rpc", "missing", strings.Join(missing, ","))
	}
	c.mu.Lock()
	c.methods = result.Methods
	c.mu.Unlock()
	return nil
}

// HasMethod reports whether the node advertised method in rpc_methods.
func (c *Client) HasMethod(method string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Contains(c.methods, method)
}

func (c *Client) GenesisHash() domain.Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.genesis
}

func (c *Client) RuntimeVersion() (specVersion, txVersion uint32) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.specVersion, c.txVersion
}

func (c *Client) runtime() *runtimeRegistry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registry
}

func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	if err := c.rpc.CallContext(ctx, result, method, args...); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}
