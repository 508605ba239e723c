package dto

// CreateLinkResourceRequest is the JSON body for creating a link resource.
type CreateLinkResourceRequest struct {
	Title        string `json:"title" validate:"required"`
	Description  string `json:"description" validate:"required"`
	SubjectCode  string `json:"subject_code" validate:"required"`
	StartYear    int    `json:"start_year" validate:"required"`
	EndYear      int    `json:"end_year" validate:"required"`
	UnitNumber   *int   `json:"unit_number"`
	ResourceType string `json:"resource_type"`
	ExternalURL  string `json:"external_url" validate:"required,url"`
}

// CreateFileResourceRequest carries the multipart form metadata for a file
// upload; the binary itself arrives as the "file" form field.
type CreateFileResourceRequest struct {
	Title        string `form:"title" validate:"required"`
	Description  string `form:"description" validate:"required"`
	SubjectCode  string `form:"subject_code" validate:"required"`
	StartYear    int    `form:"start_year" validate:"required"`
	EndYear      int    `form:"end_year" validate:"required"`
	UnitNumber   *int   `form:"unit_number"`
	ResourceType string `form:"resource_type"`
}

// UpdateResourceRequest is the limited PUT patch: only title and
// description may change after creation.
type UpdateResourceRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// SignedURLResponse is the signed-url endpoint contract.
type SignedURLResponse struct {
	Success   bool   `json:"success"`
	SignedURL string `json:"signedUrl"`
}
