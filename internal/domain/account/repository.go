package account

import "context"

// Repository defines the interface for account data access
// This interface is defined in the domain layer, but implemented in the infrastructure layer
type Repository interface {
	// FindOrCreate creates the account keyed by (institution, source, source account id)
	// or updates the existing one in place.
	FindOrCreate(ctx context.Context, params UpsertParams) (*Account, error)

	// GetByID retrieves an account by its ID
	GetByID(ctx context.Context, id int64) (*Account, error)

	// ListByInstitutionID retrieves all accounts of an institution
	ListByInstitutionID(ctx context.Context, institutionID int64) ([]*Account, error)

	// SetHidden updates only the hidden flag of an account
	SetHidden(ctx context.Context, id int64, hidden bool) error

	// Delete removes an account
	Delete(ctx context.Context, id int64) error
}
