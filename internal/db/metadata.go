//-------------------------------------------------------------------------
//
// warehousectl - e-commerce warehouse builder
//
// Copyright (c) 2025 - 2026, Shopmetrics, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopmetrics/warehousectl/internal/logging"
	"github.com/shopmetrics/warehousectl/pkg/version"
)

const metadataTable = "warehouse_metadata"

// createMetadataTableSQL creates the metadata table if it doesn't exist.
const createMetadataTableSQL = `
CREATE TABLE IF NOT EXISTS warehouse_metadata (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
)`

// SaveInitMetadata records schema initialization details.
func SaveInitMetadata(ctx context.Context, pool *pgxpool.Pool) error {
	return saveMetadata(ctx, pool, map[string]string{
		"schema_version": version.Short(),
		"initialized_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// SaveLoadMetadata records details of the most recent load batch.
func SaveLoadMetadata(ctx context.Context, pool *pgxpool.Pool, batchID, file string, accepted, rejected int64, retention float64) error {
	return saveMetadata(ctx, pool, map[string]string{
		"last_load_id":        batchID,
		"last_load_file":      file,
		"last_load_accepted":  fmt.Sprintf("%d", accepted),
		"last_load_rejected":  fmt.Sprintf("%d", rejected),
		"last_load_retention": fmt.Sprintf("%.4f", retention),
		"last_load_at":        time.Now().UTC().Format(time.RFC3339),
	})
}

// SaveRefreshMetadata records when the monthly aggregates were last rebuilt.
func SaveRefreshMetadata(ctx context.Context, pool *pgxpool.Pool) error {
	return saveMetadata(ctx, pool, map[string]string{
		"last_refresh_at": time.Now().UTC().Format(time.RFC3339),
	})
}

func saveMetadata(ctx context.Context, pool *pgxpool.Pool, metadata map[string]string) error {
	if _, err := pool.Exec(ctx, createMetadataTableSQL); err != nil {
		return fmt.Errorf("failed to create metadata table: %w", err)
	}

	for key, value := range metadata {
		_, err := pool.Exec(ctx, `
            INSERT INTO warehouse_metadata (key, value) VALUES ($1, $2)
            ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
        `, key, value)
		if err != nil {
			return fmt.Errorf("failed to save metadata %s: %w", key, err)
		}
	}

	logging.Debug().
		Int("keys", len(metadata)).
		Msg("Saved metadata")

	return nil
}

// GetMetadataValue retrieves a single metadata value by key.
func GetMetadataValue(ctx context.Context, pool *pgxpool.Pool, key string) (string, error) {
	var value string
	err := pool.QueryRow(ctx, `
        SELECT value FROM warehouse_metadata WHERE key = $1
    `, key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

// GetAllMetadata retrieves all metadata as a map.
func GetAllMetadata(ctx context.Context, pool *pgxpool.Pool) (map[string]string, error) {
	rows, err := pool.Query(ctx, `SELECT key, value FROM warehouse_metadata`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metadata := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		metadata[key] = value
	}

	return metadata, rows.Err()
}

// DropMetadata drops the metadata table.
func DropMetadata(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", metadataTable))
	return err
}

// MetadataExists checks if the metadata table exists.
func MetadataExists(ctx context.Context, pool *pgxpool.Pool) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT FROM information_schema.tables
            WHERE table_name = $1
        )
    `, metadataTable).Scan(&exists)
	return exists, err
}
