package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"balance/internal/domain/account"
)

const accountColumns = `id, institution_id, source, source_account_id, source_institution_id,
	account_type, name, currency, current_balance, available_balance,
	alt_currency, alt_current_balance, alt_available_balance, is_hidden, created_at, updated_at`

// AccountRepository implements the account.Repository interface for PostgreSQL
type AccountRepository struct {
	db *DB
}

// NewAccountRepository creates a new PostgreSQL account repository
func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// upsertAccountQuery leaves is_hidden alone on conflict so the flag survives re-syncs.
func upsertAccountQuery(p account.UpsertParams) sq.InsertBuilder {
	return psql.Insert("accounts").
		Columns(
			"institution_id", "source", "source_account_id", "source_institution_id",
			"account_type", "name", "currency", "current_balance", "available_balance",
			"alt_currency", "alt_current_balance", "alt_available_balance",
		).
		Values(
			p.InstitutionID, p.Source, p.SourceAccountID, p.SourceInstitutionID,
			p.AccountType, p.Name, p.Currency, p.CurrentBalance, p.AvailableBalance,
			nullString(p.AltCurrency), nullDecimal(p.AltCurrentBalance), nullDecimal(p.AltAvailableBalance),
		).
		Suffix(`ON CONFLICT (institution_id, source, source_account_id) DO UPDATE SET
			source_institution_id = EXCLUDED.source_institution_id,
			account_type = EXCLUDED.account_type,
			name = EXCLUDED.name,
			currency = EXCLUDED.currency,
			current_balance = EXCLUDED.current_balance,
			available_balance = EXCLUDED.available_balance,
			alt_currency = EXCLUDED.alt_currency,
			alt_current_balance = EXCLUDED.alt_current_balance,
			alt_available_balance = EXCLUDED.alt_available_balance,
			updated_at = NOW()
		RETURNING ` + accountColumns)
}

// FindOrCreate inserts or updates an account by its identity key
func (r *AccountRepository) FindOrCreate(ctx context.Context, params account.UpsertParams) (*account.Account, error) {
	acc, err := scanAccount(r.db.queryRow(ctx, upsertAccountQuery(params)))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert account: %w", err)
	}
	return acc, nil
}

// GetByID retrieves an account by its ID
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*account.Account, error) {
	query := psql.Select(accountColumns).From("accounts").Where(sq.Eq{"id": id})

	acc, err := scanAccount(r.db.queryRow(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, account.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acc, nil
}

// ListByInstitutionID retrieves all accounts of an institution
func (r *AccountRepository) ListByInstitutionID(ctx context.Context, institutionID int64) ([]*account.Account, error) {
	query := psql.Select(accountColumns).
		From("accounts").
		Where(sq.Eq{"institution_id": institutionID}).
		OrderBy("currency ASC", "id ASC")

	rows, err := r.db.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*account.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

func (r *AccountRepository) SetHidden(ctx context.Context, id int64, hidden bool) error {
	query := psql.Update("accounts").
		Set("is_hidden", hidden).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id})

	result, err := r.db.exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to update account visibility: %w", err)
	}
	return requireAffected(result, account.ErrAccountNotFound)
}

func (r *AccountRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.exec(ctx, psql.Delete("accounts").Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return requireAffected(result, account.ErrAccountNotFound)
}

func scanAccount(row rowScanner) (*account.Account, error) {
	var acc account.Account
	var altCurrency sql.NullString
	var altCurrent, altAvailable decimal.NullDecimal

	err := row.Scan(
		&acc.ID, &acc.InstitutionID, &acc.Source, &acc.SourceAccountID, &acc.SourceInstitutionID,
		&acc.AccountType, &acc.Name, &acc.Currency, &acc.CurrentBalance, &acc.AvailableBalance,
		&altCurrency, &altCurrent, &altAvailable, &acc.IsHidden, &acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if altCurrency.Valid {
		acc.AltCurrency = &altCurrency.String
	}
	if altCurrent.Valid {
		acc.AltCurrentBalance = &altCurrent.Decimal
	}
	if altAvailable.Valid {
		acc.AltAvailableBalance = &altAvailable.Decimal
	}

	return &acc, nil
}

// Helper functions for nullable types
func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func nullInt64(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

func requireAffected(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
