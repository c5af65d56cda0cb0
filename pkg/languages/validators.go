package languages

// CreateLanguagePayload is the request body for creating a language. Codes
// are two-letter ISO 639-1 and normalize to lower case.
type CreateLanguagePayload struct {
	Name string `json:"name" mod:"trim" validate:"required,max=255"`
	Code string `json:"code" mod:"trim,lcase" validate:"required,alpha,len=2"`
}

// UpdateLanguagePayload is the request body for updating a language. Version
// must match the stored row for the update to apply.
type UpdateLanguagePayload struct {
	Version int64  `json:"version" validate:"required,min=1"`
	Name    string `json:"name" mod:"trim" validate:"required,max=255"`
	Code    string `json:"code" mod:"trim,lcase" validate:"required,alpha,len=2"`
}
