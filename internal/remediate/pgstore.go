package remediate

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgTokenStore is a pgxpool-backed TokenStore, offered alongside
// MemTokenStore the way storage/sql's imapsql.Backend is offered alongside
// an abstract module.StorageBackend: a concrete, production-shaped example
// of the interface rather than the only implementation.
type PgTokenStore struct {
	pool *pgxpool.Pool
}

func NewPgTokenStore(pool *pgxpool.Pool) *PgTokenStore {
	return &PgTokenStore{pool: pool}
}

// EnsureSchema creates the tables PgTokenStore/PgAuditStore expect. Safe to
// call on every startup.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS remediate_tokens (
			integration_id TEXT PRIMARY KEY,
			access_token   TEXT NOT NULL,
			refresh_token  TEXT NOT NULL,
			expires_at     TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS remediate_audit (
			id             TEXT PRIMARY KEY,
			message_id     TEXT NOT NULL,
			tenant_id      TEXT NOT NULL,
			integration_id TEXT NOT NULL,
			action         TEXT NOT NULL,
			provider       TEXT NOT NULL,
			at             TIMESTAMPTZ NOT NULL,
			success        BOOLEAN NOT NULL,
			error          TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS remediate_audit_message_idx ON remediate_audit (message_id);
	`)
	return err
}

func (s *PgTokenStore) Get(ctx context.Context, integrationID string) (*Token, error) {
	var tok Token
	err := s.pool.QueryRow(ctx,
		`SELECT access_token, refresh_token, expires_at FROM remediate_tokens WHERE integration_id = $1`,
		integrationID,
	).Scan(&tok.AccessToken, &tok.RefreshToken, &tok.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

func (s *PgTokenStore) Save(ctx context.Context, integrationID string, tok Token) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO remediate_tokens (integration_id, access_token, refresh_token, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (integration_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at
	`, integrationID, tok.AccessToken, tok.RefreshToken, tok.ExpiresAt)
	return err
}

// PgAuditStore is a pgxpool-backed AuditStore.
type PgAuditStore struct {
	pool *pgxpool.Pool
}

func NewPgAuditStore(pool *pgxpool.Pool) *PgAuditStore {
	return &PgAuditStore{pool: pool}
}

func (s *PgAuditStore) Append(ctx context.Context, entry AuditEntry) error {
	at := entry.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO remediate_audit (id, message_id, tenant_id, integration_id, action, provider, at, success, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entry.ID, entry.MessageID, entry.TenantID, entry.IntegrationID, string(entry.Action), entry.Provider, at, entry.Success, entry.Error)
	return err
}

func (s *PgAuditStore) ListByMessage(ctx context.Context, messageID string) ([]AuditEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, message_id, tenant_id, integration_id, action, provider, at, success, error
		FROM remediate_audit WHERE message_id = $1 ORDER BY at ASC
	`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var action string
		if err := rows.Scan(&e.ID, &e.MessageID, &e.TenantID, &e.IntegrationID, &action, &e.Provider, &e.At, &e.Success, &e.Error); err != nil {
			return nil, err
		}
		e.Action = Action(action)
		out = append(out, e)
	}
	return out, rows.Err()
}
