package credential

import (
	"context"

	"balance/internal/domain/institution"
)

// Repository persists one credential per source.
type Repository interface {
	// Get returns ErrCredentialNotFound when the source is not connected.
	Get(ctx context.Context, source institution.Source) (*Credential, error)
	Save(ctx context.Context, cred *Credential) error
	Delete(ctx context.Context, source institution.Source) error
	ListSources(ctx context.Context) ([]institution.Source, error)
}
