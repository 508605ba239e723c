package facet

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/unishare/unishare-api/internal/models"
)

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }
func strPtr(v string) *string { return &v }

func sampleRows() []models.ResourceView {
	return []models.ResourceView{
		{
			ID: "r1", SubjectName: "CS", ResourceType: "notes",
			StartYear: intPtr(2024), EndYear: intPtr(2025),
		},
		{
			ID: "r2", SubjectName: "CS", ResourceType: "notes",
			StartYear: intPtr(2023), EndYear: intPtr(2024),
		},
		{
			ID: "r3", SubjectName: "EE", ResourceType: "lab",
			StartYear: intPtr(2024), EndYear: intPtr(2025),
		},
	}
}

func TestApplyConjunction(t *testing.T) {
	rows := sampleRows()

	var sel Selection
	sel.SetCourse("CS")
	filtered := Apply(rows, sel)
	assert.Equal(t, []string{"r1", "r2"}, ids(filtered))

	sel.Year = "2024-2025"
	filtered = Apply(rows, sel)
	assert.Equal(t, []string{"r1"}, ids(filtered))
}

func TestApplyAllAndEmptyPassEverything(t *testing.T) {
	rows := sampleRows()

	assert.Len(t, Apply(rows, Selection{}), 3)
	assert.Len(t, Apply(rows, Selection{Course: All, Type: All, Year: All, UnitID: All}), 3)
}

func TestSetCourseClearsDownstream(t *testing.T) {
	sel := Selection{Course: "CS", UnitID: "9", Type: "notes", Year: "2024-2025"}
	sel.SetCourse("EE")
	assert.Equal(t, Selection{Course: "EE"}, sel)
}

func TestSetUnitClearsTypeAndYear(t *testing.T) {
	sel := Selection{Course: "CS", UnitID: "9", Type: "notes", Year: "2024-2025"}
	sel.SetUnit("12")
	assert.Equal(t, Selection{Course: "CS", UnitID: "12"}, sel)
}

func TestCoursesSortedDistinct(t *testing.T) {
	rows := []models.ResourceView{
		{SubjectName: "EE"}, {SubjectName: "CS"}, {SubjectName: "EE"}, {SubjectName: ""},
	}
	assert.Equal(t, []string{"CS", "EE"}, Courses(rows))
}

func TestUnitsDedupAndRequireNumberAndTitle(t *testing.T) {
	rows := []models.ResourceView{
		{SubjectName: "CS", UnitID: int64Ptr(2), UnitNumber: intPtr(2), UnitTitle: strPtr("Trees")},
		{SubjectName: "CS", UnitID: int64Ptr(1), UnitNumber: intPtr(1), UnitTitle: strPtr("Intro")},
		{SubjectName: "CS", UnitID: int64Ptr(2), UnitNumber: intPtr(2), UnitTitle: strPtr("Trees")},
		{SubjectName: "CS", UnitID: int64Ptr(3)}, // no number/title, skipped
		{SubjectName: "EE", UnitID: int64Ptr(4), UnitNumber: intPtr(1), UnitTitle: strPtr("Circuits")},
	}

	units := Units(rows, "CS")
	assert.Equal(t, []UnitOption{
		{ID: 1, Number: 1, Title: "Intro"},
		{ID: 2, Number: 2, Title: "Trees"},
	}, units)
}

func TestYearsMostRecentFirst(t *testing.T) {
	rows := sampleRows()
	assert.Equal(t, []string{"2024-2025", "2023-2024"}, Years(rows))
}

func TestYearsSkipUnscopedRows(t *testing.T) {
	rows := []models.ResourceView{{SubjectName: "CS"}}
	assert.Empty(t, Years(rows))
}

func TestTypesFirstSeenOrder(t *testing.T) {
	rows := []models.ResourceView{
		{ResourceType: "lab"}, {ResourceType: "notes"}, {ResourceType: "lab"},
	}
	assert.Equal(t, []string{"lab", "notes"}, Types(rows))
}

func TestMatchesUnitByID(t *testing.T) {
	row := models.ResourceView{SubjectName: "CS", UnitID: int64Ptr(9)}

	assert.True(t, Selection{UnitID: "9"}.Matches(row))
	assert.False(t, Selection{UnitID: "8"}.Matches(row))
	assert.False(t, Selection{UnitID: "9"}.Matches(models.ResourceView{SubjectName: "CS"}))
}

func ids(rows []models.ResourceView) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ID)
	}
	return out
}
