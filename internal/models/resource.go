package models

import (
	"fmt"
	"time"
)

// ResourceKind distinguishes uploaded files from external links. It is
// independent of ResourceType, which classifies presentation.
type ResourceKind string

const (
	KindFile         ResourceKind = "file"
	KindExternalLink ResourceKind = "external_link"
)

// ResourceType is the presentation classification axis (lecture notes,
// question papers, ...). Free-form; these are the common values.
const (
	TypeLectureNotes  = "lecture_notes"
	TypeQuestionPaper = "question_paper"
	TypeOther         = "other"
)

// Resource represents one shared academic artifact.
type Resource struct {
	ID            string       `db:"id" json:"id"`
	Title         string       `db:"title" json:"title"`
	Description   string       `db:"description" json:"description"`
	Kind          ResourceKind `db:"kind" json:"kind"`
	ResourceType  string       `db:"resource_type" json:"resource_type"`
	SubjectID     int64        `db:"subject_id" json:"subject_id"`
	OfferingID    *int64       `db:"offering_id" json:"offering_id,omitempty"`
	UnitID        *int64       `db:"unit_id" json:"unit_id,omitempty"`
	StoragePath   *string      `db:"storage_path" json:"storage_path,omitempty"`
	ExternalURL   *string      `db:"external_url" json:"external_url,omitempty"`
	ContributorID string       `db:"contributor_id" json:"contributor_id"`
	IsDeleted     bool         `db:"is_deleted" json:"-"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
}

// ResourceView is the denormalized listing row joined with subject,
// offering year, unit and contributor display name.
type ResourceView struct {
	ID              string       `db:"id" json:"id"`
	Title           string       `db:"title" json:"title"`
	Description     string       `db:"description" json:"description"`
	Kind            ResourceKind `db:"kind" json:"kind"`
	ResourceType    string       `db:"resource_type" json:"resource_type"`
	SubjectCode     string       `db:"subject_code" json:"subject_code"`
	SubjectName     string       `db:"subject_name" json:"subject_name"`
	StartYear       *int         `db:"start_year" json:"start_year,omitempty"`
	EndYear         *int         `db:"end_year" json:"end_year,omitempty"`
	UnitID          *int64       `db:"unit_id" json:"unit_id,omitempty"`
	UnitNumber      *int         `db:"unit_number" json:"unit_number,omitempty"`
	UnitTitle       *string      `db:"unit_title" json:"unit_title,omitempty"`
	ExternalURL     *string      `db:"external_url" json:"external_url,omitempty"`
	ContributorID   string       `db:"contributor_id" json:"contributor_id"`
	ContributorName string       `db:"contributor_name" json:"contributor_name"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
}

// YearLabel renders the academic year as "2024-2025", or "" when the
// resource is not scoped to an offering.
func (v ResourceView) YearLabel() string {
	if v.StartYear == nil || v.EndYear == nil {
		return ""
	}
	return fmt.Sprintf("%d-%d", *v.StartYear, *v.EndYear)
}
