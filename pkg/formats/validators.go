package formats

// CreateFormatPayload is the request body for creating a format.
type CreateFormatPayload struct {
	Name      string `json:"name" mod:"trim" validate:"required,max=255"`
	Extension string `json:"extension" mod:"trim,lcase" validate:"required,alphanum,max=16"`
	MimeType  string `json:"mime_type" mod:"trim,lcase" validate:"required,max=255"`
}

// UpdateFormatPayload is the request body for updating a format. Version must
// match the stored row for the update to apply.
type UpdateFormatPayload struct {
	Version   int64  `json:"version" validate:"required,min=1"`
	Name      string `json:"name" mod:"trim" validate:"required,max=255"`
	Extension string `json:"extension" mod:"trim,lcase" validate:"required,alphanum,max=16"`
	MimeType  string `json:"mime_type" mod:"trim,lcase" validate:"required,max=255"`
}
