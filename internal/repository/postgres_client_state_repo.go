package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresClientStateRepo はPostgreSQLを使用したクライアント状態リポジトリ。
type PostgresClientStateRepo struct {
	db *sql.DB
}

// NewPostgresClientStateRepo はPostgresClientStateRepoを生成する。
func NewPostgresClientStateRepo(db *sql.DB) *PostgresClientStateRepo {
	return &PostgresClientStateRepo{db: db}
}

// Get は指定キーの値を取得する。
func (r *PostgresClientStateRepo) Get(ctx context.Context, ownerID, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM client_state WHERE owner_id = $1 AND key = $2`,
		ownerID, key,
	).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get client state: %w", err)
	}

	return value, true, nil
}

// Set は指定キーの値をUPSERTする。
func (r *PostgresClientStateRepo) Set(ctx context.Context, ownerID, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO client_state (owner_id, key, value, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (owner_id, key)
		 DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		ownerID, key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set client state: %w", err)
	}
	return nil
}

// Delete は指定キーを削除する。
func (r *PostgresClientStateRepo) Delete(ctx context.Context, ownerID, key string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM client_state WHERE owner_id = $1 AND key = $2`,
		ownerID, key,
	)
	if err != nil {
		return fmt.Errorf("failed to delete client state: %w", err)
	}
	return nil
}

// DeleteOwner は指定オーナーの全キーを削除する。
func (r *PostgresClientStateRepo) DeleteOwner(ctx context.Context, ownerID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM client_state WHERE owner_id = $1`,
		ownerID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete owner client state: %w", err)
	}
	return nil
}

// DeleteStale は最後の書き込みがbeforeより古いオーナーの行をまとめて削除する。
// オーナー内に1行でも新しい行があれば、古い行も含めて残す。
func (r *PostgresClientStateRepo) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM client_state
		WHERE owner_id IN (
			SELECT owner_id FROM client_state
			GROUP BY owner_id
			HAVING MAX(updated_at) < $1
		)`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale client state: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ ClientStateRepository = (*PostgresClientStateRepo)(nil)
