package service

import (
	"context"
	"database/sql"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unishare/unishare-api/internal/models"
	appErrors "github.com/unishare/unishare-api/pkg/errors"
)

type mockChainLookups struct {
	subject  *models.Subject
	year     *models.AcademicYear
	offering *models.SubjectOffering
	unit     *models.Unit

	subjectErr  error
	yearErr     error
	offeringErr error
	unitErr     error

	order []string
}

func (m *mockChainLookups) FindSubjectByCode(ctx context.Context, code string) (*models.Subject, error) {
	m.order = append(m.order, "subject")
	if m.subjectErr != nil {
		return nil, m.subjectErr
	}
	return m.subject, nil
}

func (m *mockChainLookups) FindAcademicYear(ctx context.Context, startYear, endYear int) (*models.AcademicYear, error) {
	m.order = append(m.order, "academic_year")
	if m.yearErr != nil {
		return nil, m.yearErr
	}
	return m.year, nil
}

func (m *mockChainLookups) FindOffering(ctx context.Context, subjectID, academicYearID int64) (*models.SubjectOffering, error) {
	m.order = append(m.order, "offering")
	if m.offeringErr != nil {
		return nil, m.offeringErr
	}
	return m.offering, nil
}

func (m *mockChainLookups) FindUnit(ctx context.Context, offeringID int64, unitNumber int) (*models.Unit, error) {
	m.order = append(m.order, "unit")
	if m.unitErr != nil {
		return nil, m.unitErr
	}
	return m.unit, nil
}

func populatedLookups() *mockChainLookups {
	return &mockChainLookups{
		subject:  &models.Subject{ID: 1, Code: "CS101", Name: "Computer Science"},
		year:     &models.AcademicYear{ID: 7, StartYear: 2024, EndYear: 2025},
		offering: &models.SubjectOffering{ID: 42, SubjectID: 1, AcademicYearID: 7, FacultyID: "fac-1"},
		unit:     &models.Unit{ID: 9, OfferingID: 42, UnitNumber: 3, Title: "Graphs"},
	}
}

func resolveInput(unitNumber *int) ResolveInput {
	return ResolveInput{SubjectCode: "CS101", StartYear: 2024, EndYear: 2025, UnitNumber: unitNumber}
}

func TestResolveChainFull(t *testing.T) {
	lookups := populatedLookups()
	unitNumber := 3

	chain, err := ResolveChain(context.Background(), lookups, resolveInput(&unitNumber))
	require.NoError(t, err)
	assert.Equal(t, int64(1), chain.SubjectID)
	assert.Equal(t, int64(7), chain.AcademicYearID)
	assert.Equal(t, int64(42), chain.OfferingID)
	assert.Equal(t, "fac-1", chain.FacultyID)
	require.NotNil(t, chain.UnitID)
	assert.Equal(t, int64(9), *chain.UnitID)
	assert.Equal(t, []string{"subject", "academic_year", "offering", "unit"}, lookups.order)
}

func TestResolveChainSkipsUnitWhenNotRequested(t *testing.T) {
	lookups := populatedLookups()

	chain, err := ResolveChain(context.Background(), lookups, resolveInput(nil))
	require.NoError(t, err)
	assert.Nil(t, chain.UnitID)
	assert.Equal(t, []string{"subject", "academic_year", "offering"}, lookups.order)
}

func TestResolveChainFailsFast(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*mockChainLookups)
		entity  string
		lookups []string
	}{
		{
			name:    "subject miss",
			mutate:  func(m *mockChainLookups) { m.subjectErr = sql.ErrNoRows },
			entity:  "subject",
			lookups: []string{"subject"},
		},
		{
			name:    "year miss",
			mutate:  func(m *mockChainLookups) { m.yearErr = sql.ErrNoRows },
			entity:  "academic_year",
			lookups: []string{"subject", "academic_year"},
		},
		{
			name:    "offering miss",
			mutate:  func(m *mockChainLookups) { m.offeringErr = sql.ErrNoRows },
			entity:  "offering",
			lookups: []string{"subject", "academic_year", "offering"},
		},
		{
			name:    "unit miss",
			mutate:  func(m *mockChainLookups) { m.unitErr = sql.ErrNoRows },
			entity:  "unit",
			lookups: []string{"subject", "academic_year", "offering", "unit"},
		},
	}

	unitNumber := 3
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lookups := populatedLookups()
			tc.mutate(lookups)

			_, err := ResolveChain(context.Background(), lookups, resolveInput(&unitNumber))
			require.Error(t, err)
			e := appErrors.FromError(err)
			assert.Equal(t, http.StatusBadRequest, e.Status)
			assert.Contains(t, e.Message, tc.entity+" not found")
			assert.Equal(t, tc.lookups, lookups.order, "later lookups must not run after a miss")
		})
	}
}

func TestResolveChainWrapsUnexpectedErrors(t *testing.T) {
	lookups := populatedLookups()
	lookups.offeringErr = assert.AnError

	_, err := ResolveChain(context.Background(), lookups, resolveInput(nil))
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, appErrors.FromError(err).Status)
}
