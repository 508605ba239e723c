// Package facet derives filter facets from a fetched resource list and
// applies cascading selections to it, mirroring what the list view does
// with its working set: no further queries, just slice derivation.
package facet

import (
	"sort"
	"strconv"

	"github.com/unishare/unishare-api/internal/models"
)

// All is the selection value that matches every row.
const All = "all"

// UnitOption is one entry of the units facet for a selected course.
type UnitOption struct {
	ID     int64  `json:"id"`
	Number int    `json:"number"`
	Title  string `json:"title"`
}

// Courses returns the distinct course (subject) names, sorted ascending.
func Courses(rows []models.ResourceView) []string {
	seen := make(map[string]struct{}, len(rows))
	var out []string
	for _, row := range rows {
		if row.SubjectName == "" {
			continue
		}
		if _, ok := seen[row.SubjectName]; ok {
			continue
		}
		seen[row.SubjectName] = struct{}{}
		out = append(out, row.SubjectName)
	}
	sort.Strings(out)
	return out
}

// Units returns the units available under the selected course,
// deduplicated by unit id, restricted to rows carrying both a unit number
// and a title, sorted ascending by unit number.
func Units(rows []models.ResourceView, course string) []UnitOption {
	seen := make(map[int64]struct{})
	var out []UnitOption
	for _, row := range rows {
		if row.SubjectName != course {
			continue
		}
		if row.UnitID == nil || row.UnitNumber == nil || row.UnitTitle == nil {
			continue
		}
		if _, ok := seen[*row.UnitID]; ok {
			continue
		}
		seen[*row.UnitID] = struct{}{}
		out = append(out, UnitOption{ID: *row.UnitID, Number: *row.UnitNumber, Title: *row.UnitTitle})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Years returns the distinct academic-year labels, most recent first.
func Years(rows []models.ResourceView) []string {
	seen := make(map[string]struct{}, len(rows))
	var out []string
	for _, row := range rows {
		label := row.YearLabel()
		if label == "" {
			continue
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out
}

// Types returns the distinct resource-type values in order of first
// occurrence; no order is imposed.
func Types(rows []models.ResourceView) []string {
	seen := make(map[string]struct{}, len(rows))
	var out []string
	for _, row := range rows {
		if row.ResourceType == "" {
			continue
		}
		if _, ok := seen[row.ResourceType]; ok {
			continue
		}
		seen[row.ResourceType] = struct{}{}
		out = append(out, row.ResourceType)
	}
	return out
}

// Selection holds the active cascading filters. Empty or "all" values
// match everything.
type Selection struct {
	Course string
	UnitID string
	Type   string
	Year   string
}

// SetCourse changes the course and clears every downstream selection.
func (s *Selection) SetCourse(course string) {
	s.Course = course
	s.UnitID = ""
	s.Type = ""
	s.Year = ""
}

// SetUnit changes the unit and clears the selections downstream of it.
func (s *Selection) SetUnit(unitID string) {
	s.UnitID = unitID
	s.Type = ""
	s.Year = ""
}

// Matches reports whether the row passes every active filter.
func (s Selection) Matches(row models.ResourceView) bool {
	if !passes(s.Course, row.SubjectName) {
		return false
	}
	if active(s.UnitID) {
		if row.UnitID == nil || strconv.FormatInt(*row.UnitID, 10) != s.UnitID {
			return false
		}
	}
	if !passes(s.Type, row.ResourceType) {
		return false
	}
	if !passes(s.Year, row.YearLabel()) {
		return false
	}
	return true
}

// Apply filters rows down to those matching the selection.
func Apply(rows []models.ResourceView, sel Selection) []models.ResourceView {
	out := make([]models.ResourceView, 0, len(rows))
	for _, row := range rows {
		if sel.Matches(row) {
			out = append(out, row)
		}
	}
	return out
}

func active(value string) bool {
	return value != "" && value != All
}

func passes(filter, value string) bool {
	return !active(filter) || filter == value
}
