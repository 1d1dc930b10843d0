package config

import (
	"testing"
	"time"

	"availsdk/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(EnvMap{})
	require.NoError(t, err)
	assert.Equal(t, domain.LocalEndpoint, cfg.Endpoint)
	assert.Equal(t, "local", cfg.Network)
	assert.Equal(t, "http://127.0.0.1:9944", cfg.HTTPRPCURL)
	assert.Equal(t, domain.WaitForInclusion, cfg.WaitFor)
	assert.Equal(t, domain.NonceBestBlockAndTxPool, cfg.NonceMode)
	assert.Equal(t, 2*time.Minute, cfg.TxTimeout)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "data/ledger.db", cfg.DBDSN)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "avail", cfg.KafkaTopicPrefix)
	assert.Equal(t, uint64(20), cfg.BatchSize)
	assert.Equal(t, 100, cfg.LogMaxSizeMB)
}

func TestLoadNamedNetwork(t *testing.T) {
	cfg, err := Load(EnvMap{
		"AVAIL_ENDPOINT":   "turing",
		"AVAIL_APP_ID":     "7",
		"AVAIL_WAIT_FOR":   "finalization",
		"AVAIL_NONCE_MODE": "state",
		"WATCH_APP_IDS":    "1, 7,,12",
		"DB_DRIVER":        "mysql",
		"KAFKA_BROKERS":    "k1:9092,k2:9092",
	})
	require.NoError(t, err)
	assert.Equal(t, "wss://turing-rpc.avail.so/ws", cfg.Endpoint)
	assert.Equal(t, "turing", cfg.Network)
	assert.Equal(t, "https://turing-rpc.avail.so/ws", cfg.HTTPRPCURL)
	assert.Equal(t, uint32(7), cfg.AppID)
	assert.Equal(t, domain.WaitForFinalization, cfg.WaitFor)
	assert.Equal(t, domain.NonceBestBlock, cfg.NonceMode)
	assert.Equal(t, []uint32{1, 7, 12}, cfg.WatchAppIDs)
	assert.Contains(t, cfg.DBDSN, "tcp(127.0.0.1:3306)")
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoadKafkaDisabled(t *testing.T) {
	cfg, err := Load(EnvMap{"KAFKA_BROKERS": "none"})
	require.NoError(t, err)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoadCustomEndpointNetwork(t *testing.T) {
	cfg, err := Load(EnvMap{"AVAIL_ENDPOINT": "wss://rpc.example.org:443/ws"})
	require.NoError(t, err)
	assert.Equal(t, "rpc.example.org", cfg.Network)

	cfg, err = Load(EnvMap{"AVAIL_ENDPOINT": "ws://localhost:9944", "AVAIL_NETWORK": "devnet"})
	require.NoError(t, err)
	assert.Equal(t, "devnet", cfg.Network)
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]EnvMap{
		"unknown endpoint":  {"AVAIL_ENDPOINT": "mainnet-x"},
		"app id overflow":   {"AVAIL_APP_ID": "4294967296"},
		"bad wait":          {"AVAIL_WAIT_FOR": "soon"},
		"bad nonce mode":    {"AVAIL_NONCE_MODE": "random"},
		"bad timeout":       {"AVAIL_TX_TIMEOUT": "forever"},
		"managed no redis":  {"AVAIL_MANAGED_NONCES": "true"},
		"bad managed flag":  {"AVAIL_MANAGED_NONCES": "sometimes"},
		"bad app id list":   {"WATCH_APP_IDS": "1,x"},
		"bad poll interval": {"POLL_INTERVAL": "5"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(env)
			assert.Error(t, err)
		})
	}
}

func TestLoadRequiresSource(t *testing.T) {
	_, err := Load(nil)
	assert.Error(t, err)
}

func TestWithEndpointRederivesNetwork(t *testing.T) {
	cfg, err := Load(EnvMap{"AVAIL_ENDPOINT": "local"})
	require.NoError(t, err)
	require.Equal(t, "local", cfg.Network)

	turing, err := cfg.WithEndpoint("turing")
	require.NoError(t, err)
	assert.Equal(t, "wss://turing-rpc.avail.so/ws", turing.Endpoint)
	assert.Equal(t, "turing", turing.Network)
	assert.Equal(t, domain.HTTPEndpoint(turing.Endpoint), turing.HTTPRPCURL)
	assert.Equal(t, "local", cfg.Network, "receiver must stay unchanged")

	custom, err := cfg.WithEndpoint("wss://rpc.example.org:443/ws")
	require.NoError(t, err)
	assert.Equal(t, "rpc.example.org", custom.Network)

	_, err = cfg.WithEndpoint("mainnet-x")
	assert.Error(t, err)
}
