package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"availsdk/internal/domain"
)

type Config struct {
	// Endpoint is the node websocket URL after resolving a network name.
	Endpoint string
	// Network names the chain in topics, ledger rows and metrics.
	Network    string
	HTTPRPCURL string
	Seed       string
	AppID      uint32
	WaitFor    domain.WaitFor
	NonceMode  domain.NonceMode
	// ManagedNonces hands nonce allocation to redis so several submitters can share a key.
	ManagedNonces bool
	TxTimeout     time.Duration

	HTTPAddr     string
	DBDriver     string
	DBDSN        string
	RedisAddr    string
	OtelEndpoint string

	KafkaBrokers     []string
	KafkaTopicPrefix string
	KafkaGroupID     string

	WatchStartBlock uint64
	WatchAppIDs     []uint32
	BatchSize       uint64
	PollInterval    time.Duration

	LogLevel      string
	LogFormat     string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
}

type EnvSource interface {
	Lookup(key string) (string, bool)
}

type EnvMap map[string]string

func (e EnvMap) Lookup(key string) (string, bool) {
	value, ok := e[key]
	return value, ok
}

func FromEnviron() EnvSource {
	env := make(EnvMap)
	for _, entry := range os.Environ() {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			continue
		}
		env[key] = value
	}
	return env
}

func Load(source EnvSource) (Config, error) {
	if source == nil {
		return Config{}, errors.New("env source is required")
	}
	get := func(key, defaultValue string) string {
		if raw, ok := source.Lookup(key); ok && strings.TrimSpace(raw) != "" {
			return strings.TrimSpace(raw)
		}
		return defaultValue
	}

	endpointName := get("AVAIL_ENDPOINT", "local")
	endpoint, err := domain.ResolveEndpoint(endpointName)
	if err != nil {
		return Config{}, fmt.Errorf("invalid AVAIL_ENDPOINT: %w", err)
	}
	network := get("AVAIL_NETWORK", networkName(endpointName))

	appID, err := parseUintEnv(source, "AVAIL_APP_ID", 0, 32)
	if err != nil {
		return Config{}, err
	}
	waitFor, err := domain.ParseWaitFor(get("AVAIL_WAIT_FOR", "inclusion"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid AVAIL_WAIT_FOR: %w", err)
	}
	nonceMode, err := domain.ParseNonceMode(get("AVAIL_NONCE_MODE", "node"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid AVAIL_NONCE_MODE: %w", err)
	}
	managedNonces, err := parseBoolEnv(source, "AVAIL_MANAGED_NONCES")
	if err != nil {
		return Config{}, err
	}
	txTimeout, err := parseDurationEnv(source, "AVAIL_TX_TIMEOUT", 2*time.Minute)
	if err != nil {
		return Config{}, err
	}

	dbDriver := strings.ToLower(get("DB_DRIVER", "sqlite"))
	dbDSN := get("DB_DSN", "")
	if dbDSN == "" {
		switch dbDriver {
		case "mysql":
			dbDSN = "root:@tcp(127.0.0.1:3306)/availsdk?parseTime=true"
		default:
			dbDSN = "data/ledger.db"
		}
	}

	redisAddr, _ := source.Lookup("REDIS_ADDR")
	redisAddr = strings.TrimSpace(redisAddr)
	if managedNonces && redisAddr == "" {
		return Config{}, errors.New("AVAIL_MANAGED_NONCES requires REDIS_ADDR")
	}

	kafkaBrokers, err := parseList(source, "KAFKA_BROKERS", "localhost:9092")
	if err != nil {
		return Config{}, err
	}
	// "none" turns the message bus off; availd then writes results to the ledger directly.
	if len(kafkaBrokers) == 1 && strings.EqualFold(kafkaBrokers[0], "none") {
		kafkaBrokers = nil
	}
	startBlock, err := parseUintEnv(source, "WATCH_START_BLOCK", 0, 64)
	if err != nil {
		return Config{}, err
	}
	appIDs, err := parseUint32List(source, "WATCH_APP_IDS")
	if err != nil {
		return Config{}, err
	}
	batchSize, err := parseUintEnv(source, "BATCH_SIZE", 20, 64)
	if err != nil {
		return Config{}, err
	}
	pollInterval, err := parseDurationEnv(source, "POLL_INTERVAL", 5*time.Second)
	if err != nil {
		return Config{}, err
	}
	logMaxSize, err := parseUintEnv(source, "LOG_MAX_SIZE_MB", 100, 31)
	if err != nil {
		return Config{}, err
	}
	logMaxBackups, err := parseUintEnv(source, "LOG_MAX_BACKUPS", 3, 31)
	if err != nil {
		return Config{}, err
	}

	return Config{
		Endpoint:         endpoint,
		Network:          network,
		HTTPRPCURL:       get("AVAIL_HTTP_RPC_URL", domain.HTTPEndpoint(endpoint)),
		Seed:             get("AVAIL_SEED", ""),
		AppID:            uint32(appID),
		WaitFor:          waitFor,
		NonceMode:        nonceMode,
		ManagedNonces:    managedNonces,
		TxTimeout:        txTimeout,
		HTTPAddr:         get("HTTP_ADDR", ":8080"),
		DBDriver:         dbDriver,
		DBDSN:            dbDSN,
		RedisAddr:        redisAddr,
		OtelEndpoint:     get("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		KafkaBrokers:     kafkaBrokers,
		KafkaTopicPrefix: get("KAFKA_TOPIC_PREFIX", "avail"),
		KafkaGroupID:     get("KAFKA_GROUP_ID", "availsdk-ledger"),
		WatchStartBlock:  startBlock,
		WatchAppIDs:      appIDs,
		BatchSize:        batchSize,
		PollInterval:     pollInterval,
		LogLevel:         get("LOG_LEVEL", "info"),
		LogFormat:        get("LOG_FORMAT", "text"),
		LogFile:          get("LOG_FILE", ""),
		LogMaxSizeMB:     int(logMaxSize),
		LogMaxBackups:    int(logMaxBackups),
	}, nil
}

// WithEndpoint points the configuration at another node, re-deriving the network
// label and HTTP RPC URL from it.
func (c Config) WithEndpoint(raw string) (Config, error) {
	endpoint, err := domain.ResolveEndpoint(raw)
	if err != nil {
		return c, err
	}
	c.Endpoint = endpoint
	c.Network = networkName(raw)
	c.HTTPRPCURL = domain.HTTPEndpoint(endpoint)
	return c, nil
}

// networkName is the label used for a configured endpoint: the network name itself,
// or the URL host for custom endpoints.
func networkName(endpoint string) string {
	if !strings.Contains(endpoint, "://") {
		return strings.ToLower(endpoint)
	}
	_, rest, _ := strings.Cut(endpoint, "://")
	host, _, _ := strings.Cut(rest, "/")
	host, _, _ = strings.Cut(host, ":")
	switch host {
	case "127.0.0.1", "localhost", "":
		return "local"
	}
	return host
}

func parseUintEnv(source EnvSource, key string, defaultValue uint64, bitSize int) (uint64, error) {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 10, bitSize)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func parseBoolEnv(source EnvSource, key string) (bool, error) {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return false, nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func parseDurationEnv(source EnvSource, key string, defaultValue time.Duration) (time.Duration, error) {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func parseList(source EnvSource, key string, defaultValue string) ([]string, error) {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		raw = defaultValue
	}
	var values []string
	for _, item := range strings.Split(raw, ",") {
		if value := strings.TrimSpace(item); value != "" {
			values = append(values, value)
		}
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s is required", key)
	}
	return values, nil
}

func parseUint32List(source EnvSource, key string) ([]uint32, error) {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var values []uint32
	for _, item := range strings.Split(raw, ",") {
		value := strings.TrimSpace(item)
		if value == "" {
			continue
		}
		parsed, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		values = append(values, uint32(parsed))
	}
	return values, nil
}
