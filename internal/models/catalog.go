package models

// Subject is static reference data identifying a taught subject.
type Subject struct {
	ID   int64  `db:"id" json:"id"`
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`
}

// AcademicYear is a (start, end) year pair, unique per pair.
type AcademicYear struct {
	ID        int64 `db:"id" json:"id"`
	StartYear int   `db:"start_year" json:"start_year"`
	EndYear   int   `db:"end_year" json:"end_year"`
}

// SubjectOffering links a subject to the academic year it is taught in
// and the faculty member responsible for it.
type SubjectOffering struct {
	ID             int64  `db:"id" json:"id"`
	SubjectID      int64  `db:"subject_id" json:"subject_id"`
	AcademicYearID int64  `db:"academic_year_id" json:"academic_year_id"`
	FacultyID      string `db:"faculty_id" json:"faculty_id"`
}

// Unit is a numbered subdivision of an offering's syllabus, unique per
// (offering, unit_number).
type Unit struct {
	ID         int64  `db:"id" json:"id"`
	OfferingID int64  `db:"offering_id" json:"offering_id"`
	UnitNumber int    `db:"unit_number" json:"unit_number"`
	Title      string `db:"title" json:"title"`
}

// ResolvedChain carries the internal identifiers produced by the entity
// resolution chain for one create request.
type ResolvedChain struct {
	SubjectID      int64
	AcademicYearID int64
	OfferingID     int64
	FacultyID      string
	UnitID         *int64
}
