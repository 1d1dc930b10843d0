package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLite(t *testing.T) {
	ledger, err := Open(Config{Driver: "SQLite", DSN: filepath.Join(t.TempDir(), "ledger.db")})
	require.NoError(t, err)
	defer ledger.Close()
	assert.NoError(t, ledger.Ping(context.Background()))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "postgres", DSN: "x"})
	assert.EqualError(t, err, `unsupported db driver "postgres"`)
}
