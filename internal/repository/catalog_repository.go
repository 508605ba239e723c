package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/unishare/unishare-api/internal/models"
)

// CatalogRepository reads the subject/year/offering/unit reference data.
// All lookups are single-key equality queries; the data is owned by the
// schema and never written by this service.
type CatalogRepository struct {
	q sqlx.ExtContext
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{q: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *CatalogRepository) WithTx(tx *sqlx.Tx) *CatalogRepository {
	return &CatalogRepository{q: tx}
}

// FindSubjectByCode returns the subject matching the code exactly.
func (r *CatalogRepository) FindSubjectByCode(ctx context.Context, code string) (*models.Subject, error) {
	const query = `SELECT id, code, name FROM subjects WHERE code = $1 LIMIT 1`
	var subject models.Subject
	if err := sqlx.GetContext(ctx, r.q, &subject, query, code); err != nil {
		return nil, err
	}
	return &subject, nil
}

// FindAcademicYear returns the year row matching both bounds exactly.
func (r *CatalogRepository) FindAcademicYear(ctx context.Context, startYear, endYear int) (*models.AcademicYear, error) {
	const query = `SELECT id, start_year, end_year FROM academic_years WHERE start_year = $1 AND end_year = $2 LIMIT 1`
	var year models.AcademicYear
	if err := sqlx.GetContext(ctx, r.q, &year, query, startYear, endYear); err != nil {
		return nil, err
	}
	return &year, nil
}

// FindOffering returns the offering for a (subject, academic year) pairing.
func (r *CatalogRepository) FindOffering(ctx context.Context, subjectID, academicYearID int64) (*models.SubjectOffering, error) {
	const query = `SELECT id, subject_id, academic_year_id, faculty_id FROM subject_offerings
	WHERE subject_id = $1 AND academic_year_id = $2 LIMIT 1`
	var offering models.SubjectOffering
	if err := sqlx.GetContext(ctx, r.q, &offering, query, subjectID, academicYearID); err != nil {
		return nil, err
	}
	return &offering, nil
}

// FindUnit returns the unit for an (offering, unit number) pairing.
func (r *CatalogRepository) FindUnit(ctx context.Context, offeringID int64, unitNumber int) (*models.Unit, error) {
	const query = `SELECT id, offering_id, unit_number, title FROM units
	WHERE offering_id = $1 AND unit_number = $2 LIMIT 1`
	var unit models.Unit
	if err := sqlx.GetContext(ctx, r.q, &unit, query, offeringID, unitNumber); err != nil {
		return nil, err
	}
	return &unit, nil
}

// ListSubjects returns all subjects ordered by code.
func (r *CatalogRepository) ListSubjects(ctx context.Context) ([]models.Subject, error) {
	const query = `SELECT id, code, name FROM subjects ORDER BY code ASC`
	var subjects []models.Subject
	if err := sqlx.SelectContext(ctx, r.q, &subjects, query); err != nil {
		return nil, err
	}
	return subjects, nil
}

// ListAcademicYears returns all academic years, most recent first.
func (r *CatalogRepository) ListAcademicYears(ctx context.Context) ([]models.AcademicYear, error) {
	const query = `SELECT id, start_year, end_year FROM academic_years ORDER BY start_year DESC`
	var years []models.AcademicYear
	if err := sqlx.SelectContext(ctx, r.q, &years, query); err != nil {
		return nil, err
	}
	return years, nil
}
