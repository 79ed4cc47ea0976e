package institution

import "context"

// Repository defines the interface for institution data access
type Repository interface {
	// FindOrCreate returns the institution keyed by (source, sourceInstitutionID),
	// creating it with the given name when missing.
	FindOrCreate(ctx context.Context, source Source, sourceInstitutionID, name string) (*Institution, error)

	// GetBySource returns the exchange institution of a source or ErrInstitutionNotFound.
	GetBySource(ctx context.Context, source Source) (*Institution, error)

	List(ctx context.Context) ([]*Institution, error)
}
