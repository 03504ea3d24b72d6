package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	_ "github.com/tursodatabase/go-libsql"
)

// LibSQLEmbeddedConfig holds configuration for embedded libsql connections
type LibSQLEmbeddedConfig struct {
	DatabasePath string // Path to .db file
}

// ConnectToDB opens the embedded database at path and applies migrations.
func ConnectToDB(ctx context.Context, path string) (*sql.DB, error) {
	cfg := &LibSQLEmbeddedConfig{DatabasePath: strings.TrimPrefix(path, "file:")}
	db, err := ConnectToDBWithConfig(cfg)
	if err != nil {
		return nil, err
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func ConnectToDBWithConfig(config *LibSQLEmbeddedConfig) (*sql.DB, error) {
	// Ensure database directory exists for embedded mode
	dir := filepath.Dir(config.DatabasePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create database directory %s: %v", dir, err)
	}

	if _, err := os.Stat(config.DatabasePath); os.IsNotExist(err) {
		log.Info().Str("path", config.DatabasePath).Msg("Database not found, creating a new one")
		file, err := os.Create(config.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("could not create db at path %s: %v", config.DatabasePath, err)
		}
		file.Close()
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL&_synchronous=NORMAL", config.DatabasePath)

	log.Debug().Str("dsn", dsn).Msg("Connecting to embedded libsql")

	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open libsql connection: %w", err)
	}

	if err := verifyEmbeddedLibSQL(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// verifyEmbeddedLibSQL checks connectivity and the JSON1 functions the store relies on
func verifyEmbeddedLibSQL(db *sql.DB) error {
	ctx := context.Background()

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("basic connectivity test failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("basic connectivity test failed: unexpected result %d", result)
	}

	var jsonResult string
	if err := db.QueryRowContext(ctx, "SELECT json_extract('{\"test\":\"value\"}', '$.test')").Scan(&jsonResult); err != nil {
		log.Warn().Err(err).Msg("JSON1 test failed")
	} else if jsonResult != "value" {
		log.Warn().Str("result", jsonResult).Msg("JSON1 test returned unexpected result")
	}

	return nil
}
