package sources

// CreateSourcePayload is the request body for cataloguing a source. FilePath
// must point at a previously uploaded file.
type CreateSourcePayload struct {
	EbookID  int64  `json:"ebook_id" validate:"required,min=1"`
	FormatID int64  `json:"format_id" validate:"required,min=1"`
	FilePath string `json:"file_path" mod:"trim" validate:"required,max=4095"`
	Quality  *int64 `json:"quality" validate:"omitempty,min=0"`
}

// UpdateSourcePayload is the request body for updating a source. Version must
// match the stored row; only quality is mutable.
type UpdateSourcePayload struct {
	Version int64  `json:"version" validate:"required,min=1"`
	Quality *int64 `json:"quality" validate:"omitempty,min=0"`
}

// CreateConversionPayload is the request body for cataloguing a conversion.
type CreateConversionPayload struct {
	SourceID int64   `json:"source_id" validate:"required,min=1"`
	FormatID int64   `json:"format_id" validate:"required,min=1"`
	FilePath string  `json:"file_path" mod:"trim" validate:"required,max=4095"`
	BatchID  *string `json:"batch_id" mod:"trim" validate:"omitempty,max=64"`
}

// UpdateConversionPayload is the request body for updating a conversion.
type UpdateConversionPayload struct {
	Version int64   `json:"version" validate:"required,min=1"`
	BatchID *string `json:"batch_id" mod:"trim" validate:"omitempty,max=64"`
}
