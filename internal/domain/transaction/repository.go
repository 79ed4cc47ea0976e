package transaction

import "context"

// Repository defines the interface for transaction data access
type Repository interface {
	// FindOrCreate inserts the transaction or updates the one stored under
	// (source, sourceTransactionID).
	FindOrCreate(ctx context.Context, params UpsertParams) (*Transaction, error)
	ListByInstitutionID(ctx context.Context, institutionID int64, limit, offset int) ([]*Transaction, error)
	CountByInstitutionID(ctx context.Context, institutionID int64) (int64, error)
}
