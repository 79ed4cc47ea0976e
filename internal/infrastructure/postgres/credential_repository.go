package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"balance/internal/domain/credential"
	"balance/internal/domain/institution"
)

// Cipher encrypts secret columns before they reach the database.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// CredentialRepository stores one credential per source with its secrets encrypted.
type CredentialRepository struct {
	db     *DB
	cipher Cipher
}

func NewCredentialRepository(db *DB, cipher Cipher) *CredentialRepository {
	return &CredentialRepository{db: db, cipher: cipher}
}

func (r *CredentialRepository) Get(ctx context.Context, source institution.Source) (*credential.Credential, error) {
	query := psql.Select(
		"source", "kind", "access_token", "refresh_token", "token_type", "scope",
		"expires_at", "api_key", "secret", "updated_at",
	).From("credentials").Where(sq.Eq{"source": source})

	var c credential.Credential
	var expiresAt sql.NullTime
	var sealed [4]string

	err := r.db.queryRow(ctx, query).Scan(
		&c.Source, &c.Kind, &sealed[0], &sealed[1], &c.TokenType, &c.Scope,
		&expiresAt, &sealed[2], &sealed[3], &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, credential.ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	plain, err := r.open(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt %s credential: %w", source, err)
	}
	c.AccessToken, c.RefreshToken, c.APIKey, c.Secret = plain[0], plain[1], plain[2], plain[3]
	if expiresAt.Valid {
		c.ExpiresAt = &expiresAt.Time
	}

	return &c, nil
}

func (r *CredentialRepository) Save(ctx context.Context, c *credential.Credential) error {
	if err := c.Validate(); err != nil {
		return err
	}

	sealed, err := r.seal([4]string{c.AccessToken, c.RefreshToken, c.APIKey, c.Secret})
	if err != nil {
		return fmt.Errorf("failed to encrypt %s credential: %w", c.Source, err)
	}

	var expiresAt sql.NullTime
	if c.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: *c.ExpiresAt, Valid: true}
	}

	query := psql.Insert("credentials").
		Columns(
			"source", "kind", "access_token", "refresh_token", "token_type", "scope",
			"expires_at", "api_key", "secret", "updated_at",
		).
		Values(
			c.Source, c.Kind, sealed[0], sealed[1], c.TokenType, c.Scope,
			expiresAt, sealed[2], sealed[3], sq.Expr("NOW()"),
		).
		Suffix(`ON CONFLICT (source) DO UPDATE SET
			kind = EXCLUDED.kind,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_type = EXCLUDED.token_type,
			scope = EXCLUDED.scope,
			expires_at = EXCLUDED.expires_at,
			api_key = EXCLUDED.api_key,
			secret = EXCLUDED.secret,
			updated_at = NOW()`)

	if _, err := r.db.exec(ctx, query); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

func (r *CredentialRepository) Delete(ctx context.Context, source institution.Source) error {
	result, err := r.db.exec(ctx, psql.Delete("credentials").Where(sq.Eq{"source": source}))
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return requireAffected(result, credential.ErrCredentialNotFound)
}

func (r *CredentialRepository) ListSources(ctx context.Context) ([]institution.Source, error) {
	rows, err := r.db.query(ctx, psql.Select("source").From("credentials").OrderBy("source"))
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var sources []institution.Source
	for rows.Next() {
		var s institution.Source
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan credential source: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

func (r *CredentialRepository) seal(fields [4]string) ([4]string, error) {
	var out [4]string
	for i, f := range fields {
		enc, err := r.cipher.Encrypt(f)
		if err != nil {
			return out, err
		}
		out[i] = enc
	}
	return out, nil
}

func (r *CredentialRepository) open(fields [4]string) ([4]string, error) {
	var out [4]string
	for i, f := range fields {
		dec, err := r.cipher.Decrypt(f)
		if err != nil {
			return out, err
		}
		out[i] = dec
	}
	return out, nil
}
