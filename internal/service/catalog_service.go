package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/unishare/unishare-api/internal/models"
	"github.com/unishare/unishare-api/internal/repository"
	appErrors "github.com/unishare/unishare-api/pkg/errors"
)

// ChainLookups is the reference-data surface the resolution chain needs.
type ChainLookups interface {
	FindSubjectByCode(ctx context.Context, code string) (*models.Subject, error)
	FindAcademicYear(ctx context.Context, startYear, endYear int) (*models.AcademicYear, error)
	FindOffering(ctx context.Context, subjectID, academicYearID int64) (*models.SubjectOffering, error)
	FindUnit(ctx context.Context, offeringID int64, unitNumber int) (*models.Unit, error)
}

// ResolveInput carries the human-readable identifiers submitted by clients.
type ResolveInput struct {
	SubjectCode string
	StartYear   int
	EndYear     int
	UnitNumber  *int
}

// ResolveChain turns human-readable identifiers into internal ids by
// strictly ordered lookups: subject, then academic year, then offering,
// then (only when a unit number was supplied) unit. Each step keys on the
// previous step's output, so the first miss aborts the chain. Misses are
// caller mistakes, never transient faults; there are no retries.
func ResolveChain(ctx context.Context, lookups ChainLookups, in ResolveInput) (*models.ResolvedChain, error) {
	subject, err := lookups.FindSubjectByCode(ctx, in.SubjectCode)
	if err != nil {
		return nil, chainErr(err, "subject")
	}

	year, err := lookups.FindAcademicYear(ctx, in.StartYear, in.EndYear)
	if err != nil {
		return nil, chainErr(err, "academic_year")
	}

	offering, err := lookups.FindOffering(ctx, subject.ID, year.ID)
	if err != nil {
		return nil, chainErr(err, "offering")
	}

	chain := &models.ResolvedChain{
		SubjectID:      subject.ID,
		AcademicYearID: year.ID,
		OfferingID:     offering.ID,
		FacultyID:      offering.FacultyID,
	}

	if in.UnitNumber != nil {
		unit, err := lookups.FindUnit(ctx, offering.ID, *in.UnitNumber)
		if err != nil {
			return nil, chainErr(err, "unit")
		}
		chain.UnitID = &unit.ID
	}

	return chain, nil
}

func chainErr(err error, entity string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.EntityNotFound(entity)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve "+entity)
}

// CatalogService exposes the reference data and the resolution chain.
type CatalogService struct {
	repo   *repository.CatalogRepository
	logger *zap.Logger
}

// NewCatalogService constructs the service.
func NewCatalogService(repo *repository.CatalogRepository, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{repo: repo, logger: logger}
}

// ResolveChainTx runs the resolution chain inside the given transaction.
// A nil tx resolves against the pooled connection.
func (s *CatalogService) ResolveChainTx(ctx context.Context, tx *sqlx.Tx, in ResolveInput) (*models.ResolvedChain, error) {
	lookups := ChainLookups(s.repo)
	if tx != nil {
		lookups = s.repo.WithTx(tx)
	}
	return ResolveChain(ctx, lookups, in)
}

// ListSubjects returns all subjects for form population.
func (s *CatalogService) ListSubjects(ctx context.Context) ([]models.Subject, error) {
	subjects, err := s.repo.ListSubjects(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	return subjects, nil
}

// ListAcademicYears returns all academic years, most recent first.
func (s *CatalogService) ListAcademicYears(ctx context.Context) ([]models.AcademicYear, error) {
	years, err := s.repo.ListAcademicYears(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list academic years")
	}
	return years, nil
}
