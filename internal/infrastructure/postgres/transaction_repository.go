package postgres

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"balance/internal/domain/transaction"
)

const transactionColumns = `id, institution_id, source, source_transaction_id, source_account_id,
	source_institution_id, name, currency, amount, date, category_id, created_at, updated_at`

type TransactionRepository struct {
	db *DB
}

func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// upsertTransactionQuery keeps a user-assigned category when the exchange sends none.
func upsertTransactionQuery(p transaction.UpsertParams) sq.InsertBuilder {
	return psql.Insert("transactions").
		Columns(
			"institution_id", "source", "source_transaction_id", "source_account_id",
			"source_institution_id", "name", "currency", "amount", "date", "category_id",
		).
		Values(
			p.InstitutionID, p.Source, p.SourceTransactionID, p.SourceAccountID,
			p.SourceInstitutionID, p.Name, p.Currency, p.Amount, p.Date, nullInt64(p.CategoryID),
		).
		Suffix(`ON CONFLICT (source, source_transaction_id) DO UPDATE SET
			institution_id = EXCLUDED.institution_id,
			source_account_id = EXCLUDED.source_account_id,
			source_institution_id = EXCLUDED.source_institution_id,
			name = EXCLUDED.name,
			currency = EXCLUDED.currency,
			amount = EXCLUDED.amount,
			date = EXCLUDED.date,
			category_id = COALESCE(EXCLUDED.category_id, transactions.category_id),
			updated_at = NOW()
		RETURNING ` + transactionColumns)
}

func (r *TransactionRepository) FindOrCreate(ctx context.Context, params transaction.UpsertParams) (*transaction.Transaction, error) {
	txn, err := scanTransaction(r.db.queryRow(ctx, upsertTransactionQuery(params)))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert transaction: %w", err)
	}
	return txn, nil
}

func listTransactionsQuery(institutionID int64, limit, offset int) sq.SelectBuilder {
	return psql.Select(transactionColumns).
		From("transactions").
		Where(sq.Eq{"institution_id": institutionID}).
		OrderBy("date DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset))
}

func (r *TransactionRepository) ListByInstitutionID(ctx context.Context, institutionID int64, limit, offset int) ([]*transaction.Transaction, error) {
	rows, err := r.db.query(ctx, listTransactionsQuery(institutionID, limit, offset))
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txns []*transaction.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return txns, nil
}

func (r *TransactionRepository) CountByInstitutionID(ctx context.Context, institutionID int64) (int64, error) {
	query := psql.Select("COUNT(*)").From("transactions").Where(sq.Eq{"institution_id": institutionID})

	var total int64
	if err := r.db.queryRow(ctx, query).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return total, nil
}

func scanTransaction(row rowScanner) (*transaction.Transaction, error) {
	var txn transaction.Transaction
	var categoryID sql.NullInt64

	err := row.Scan(
		&txn.ID, &txn.InstitutionID, &txn.Source, &txn.SourceTransactionID, &txn.SourceAccountID,
		&txn.SourceInstitutionID, &txn.Name, &txn.Currency, &txn.Amount, &txn.Date, &categoryID,
		&txn.CreatedAt, &txn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if categoryID.Valid {
		txn.CategoryID = &categoryID.Int64
	}
	return &txn, nil
}
