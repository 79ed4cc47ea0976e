package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"balance/internal/domain/institution"
)

const institutionColumns = "id, source, source_institution_id, name, created_at, updated_at"

// InstitutionRepository implements institution.Repository for PostgreSQL
type InstitutionRepository struct {
	db *DB
}

func NewInstitutionRepository(db *DB) *InstitutionRepository {
	return &InstitutionRepository{db: db}
}

func findOrCreateInstitutionQuery(source institution.Source, sourceInstitutionID, name string) sq.InsertBuilder {
	return psql.Insert("institutions").
		Columns("source", "source_institution_id", "name").
		Values(source, sourceInstitutionID, name).
		Suffix("ON CONFLICT (source, source_institution_id) DO UPDATE SET name = EXCLUDED.name, updated_at = NOW() RETURNING " + institutionColumns)
}

func (r *InstitutionRepository) FindOrCreate(ctx context.Context, source institution.Source, sourceInstitutionID, name string) (*institution.Institution, error) {
	inst, err := scanInstitution(r.db.queryRow(ctx, findOrCreateInstitutionQuery(source, sourceInstitutionID, name)))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert institution: %w", err)
	}
	return inst, nil
}

func (r *InstitutionRepository) GetBySource(ctx context.Context, source institution.Source) (*institution.Institution, error) {
	query := psql.Select(institutionColumns).
		From("institutions").
		Where(sq.Eq{"source": source}).
		OrderBy("id").
		Limit(1)

	inst, err := scanInstitution(r.db.queryRow(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, institution.ErrInstitutionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get institution: %w", err)
	}
	return inst, nil
}

func (r *InstitutionRepository) List(ctx context.Context) ([]*institution.Institution, error) {
	rows, err := r.db.query(ctx, psql.Select(institutionColumns).From("institutions").OrderBy("source", "id"))
	if err != nil {
		return nil, fmt.Errorf("failed to list institutions: %w", err)
	}
	defer rows.Close()

	var out []*institution.Institution
	for rows.Next() {
		inst, err := scanInstitution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan institution: %w", err)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func scanInstitution(row rowScanner) (*institution.Institution, error) {
	var inst institution.Institution
	if err := row.Scan(&inst.ID, &inst.Source, &inst.SourceInstitutionID, &inst.Name, &inst.CreatedAt, &inst.UpdatedAt); err != nil {
		return nil, err
	}
	return &inst, nil
}
