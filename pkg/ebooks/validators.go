package ebooks

// CreateEbookPayload is the request body for creating an ebook. Author order
// is meaningful; the first author leads the derived names. Series id and
// index go together or not at all.
type CreateEbookPayload struct {
	Title       string  `json:"title" mod:"trim" validate:"required,max=255"`
	Description *string `json:"description" mod:"trim" validate:"omitempty,max=65535"`
	SeriesID    *int64  `json:"series_id" validate:"omitempty,min=1"`
	SeriesIndex *int64  `json:"series_index" validate:"omitempty,min=0"`
	LanguageID  int64   `json:"language_id" validate:"required,min=1"`
	AuthorIDs   []int64 `json:"author_ids" validate:"omitempty,max=20,dive,min=1"`
	GenreIDs    []int64 `json:"genre_ids" validate:"omitempty,max=50,dive,min=1"`
}

// UpdateEbookPayload is the request body for updating an ebook. Version must
// match the stored row for the update to apply; the credit lists replace the
// stored ones.
type UpdateEbookPayload struct {
	Version     int64   `json:"version" validate:"required,min=1"`
	Title       string  `json:"title" mod:"trim" validate:"required,max=255"`
	Description *string `json:"description" mod:"trim" validate:"omitempty,max=65535"`
	SeriesID    *int64  `json:"series_id" validate:"omitempty,min=1"`
	SeriesIndex *int64  `json:"series_index" validate:"omitempty,min=0"`
	LanguageID  int64   `json:"language_id" validate:"required,min=1"`
	AuthorIDs   []int64 `json:"author_ids" validate:"omitempty,max=20,dive,min=1"`
	GenreIDs    []int64 `json:"genre_ids" validate:"omitempty,max=50,dive,min=1"`
}

// AttachCoverPayload is the request body for attaching a cover image. The
// path must point at a previously uploaded file.
type AttachCoverPayload struct {
	FilePath string `json:"file_path" mod:"trim" validate:"required,max=4095"`
}
