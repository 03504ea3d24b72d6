package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectToDB_CreatesSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "pangu.db")

	conn, err := ConnectToDB(ctx, path)
	require.NoError(t, err)
	defer conn.Close()

	for _, table := range []string{"conversation_turns", "forecast_statistics"} {
		var name string
		err := conn.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pangu.db")

	conn, err := ConnectToDB(ctx, path)
	require.NoError(t, err)
	defer conn.Close()

	// Second run has nothing left to apply
	assert.NoError(t, Migrate(ctx, conn))
}
