package repo

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"escrowline/internal/domain"
)

const apiKeyPrefix = "elk_"

// HashAPIKey returns a stable SHA-256 hex digest for the provided key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// GenerateAPIKey returns a new plaintext key. Only its hash is ever stored.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(buf), nil
}

const apiKeyColumns = `id, actor_id, name, key_hash, created_at, last_used_at`

func scanAPIKey(s scanner) (domain.APIKey, error) {
	var key domain.APIKey
	var name, lastUsed sql.NullString
	if err := s.Scan(&key.ID, &key.ActorID, &name, &key.KeyHash, &key.CreatedAt, &lastUsed); err != nil {
		return domain.APIKey{}, err
	}
	key.Name = name.String
	key.LastUsedAt = stringPtr(lastUsed)
	return key, nil
}

// InsertAPIKey stores a hashed key for an actor. q may be a transaction.
func (r Repo) InsertAPIKey(ctx context.Context, q querier, key domain.APIKey) error {
	switch {
	case key.ID == "":
		return fmt.Errorf("%w: api key id required", domain.ErrInvalidInput)
	case key.ActorID == "":
		return fmt.Errorf("%w: api key actor required", domain.ErrInvalidInput)
	case key.KeyHash == "":
		return fmt.Errorf("%w: api key hash required", domain.ErrInvalidInput)
	case key.CreatedAt == "":
		return fmt.Errorf("%w: api key created_at required", domain.ErrInvalidInput)
	}
	if q == nil {
		q = r.DB
	}
	_, err := q.ExecContext(ctx, `INSERT INTO api_keys(`+apiKeyColumns+`) VALUES (?,?,?,?,?,?)`,
		key.ID, key.ActorID, nullable(key.Name), key.KeyHash, key.CreatedAt, nullableStringPtr(key.LastUsedAt))
	return err
}

func (r Repo) GetAPIKeyByHash(ctx context.Context, hash string) (domain.APIKey, error) {
	key, err := scanAPIKey(r.DB.QueryRowContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash=?`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.APIKey{}, ErrNotFound
	}
	return key, err
}

// TouchAPIKey records the last time a key authenticated a request.
func (r Repo) TouchAPIKey(ctx context.Context, id, ts string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE api_keys SET last_used_at=? WHERE id=?`, ts, id)
	return err
}

// ListAPIKeys returns keys newest first, optionally for a single actor.
func (r Repo) ListAPIKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys`
	var args []any
	if actorID != "" {
		query += ` WHERE actor_id=?`
		args = append(args, actorID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []domain.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// DeleteAPIKey revokes a key. A non-empty actorID restricts deletion to the
// key's owner.
func (r Repo) DeleteAPIKey(ctx context.Context, id, actorID string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: api key id required", domain.ErrInvalidInput)
	}
	query := `DELETE FROM api_keys WHERE id=?`
	args := []any{id}
	if actorID != "" {
		query += ` AND actor_id=?`
		args = append(args, actorID)
	}
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
