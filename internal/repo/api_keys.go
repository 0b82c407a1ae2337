package repo

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"creditline/internal/domain"
)

// HashAPIKey is the canonical hash of a raw key. Only the hash is stored.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// CreateAPIKey mints a key for an actor and returns the record plus the raw
// secret, which is never stored and cannot be recovered later.
func (r *Repo) CreateAPIKey(ctx context.Context, actorID, name string) (domain.APIKey, string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", fmt.Errorf("generate api key: %w", err)
	}
	raw := "clk_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   HashAPIKey(raw),
		CreatedAt: r.stamp(),
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO api_keys(id,actor_id,name,key_hash,created_at) VALUES (?,?,?,?,?)`,
		key.ID, key.ActorID, nullable(key.Name), key.KeyHash, key.CreatedAt)
	if err != nil {
		return domain.APIKey{}, "", fmt.Errorf("store api key: %w", err)
	}
	return key, raw, nil
}

// ActorByAPIKey resolves the actor id owning the raw key.
func (r *Repo) ActorByAPIKey(ctx context.Context, raw string) (string, error) {
	var actorID string
	err := r.DB.QueryRowContext(ctx, `SELECT actor_id FROM api_keys WHERE key_hash=?`, HashAPIKey(raw)).Scan(&actorID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup api key: %w", err)
	}
	return actorID, nil
}

// ListAPIKeys returns the key records for one actor. Hashes only.
func (r *Repo) ListAPIKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,actor_id,name,key_hash,created_at FROM api_keys WHERE actor_id=? ORDER BY created_at`, actorID)
	if err != nil {
		return nil, fmt.Errorf("list api keys for %s: %w", actorID, err)
	}
	defer rows.Close()
	var out []domain.APIKey
	for rows.Next() {
		var k domain.APIKey
		var name sql.NullString
		if err := rows.Scan(&k.ID, &k.ActorID, &name, &k.KeyHash, &k.CreatedAt); err != nil {
			return nil, err
		}
		k.Name = name.String
		out = append(out, k)
	}
	return out, rows.Err()
}

// DeleteAPIKey revokes a key by id.
func (r *Repo) DeleteAPIKey(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM api_keys WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete api key %s: %w", id, err)
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
