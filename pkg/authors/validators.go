package authors

// CreateAuthorPayload is the request body for creating an author. First name
// is optional; single-name authors carry only a last name.
type CreateAuthorPayload struct {
	LastName    string  `json:"last_name" mod:"trim" validate:"required,max=255"`
	FirstName   string  `json:"first_name" mod:"trim" validate:"max=255"`
	Description *string `json:"description" mod:"trim" validate:"omitempty,max=65535"`
}

// UpdateAuthorPayload is the request body for updating an author. Version
// must match the stored row for the update to apply; omitted optional fields
// clear the stored values.
type UpdateAuthorPayload struct {
	Version     int64   `json:"version" validate:"required,min=1"`
	LastName    string  `json:"last_name" mod:"trim" validate:"required,max=255"`
	FirstName   string  `json:"first_name" mod:"trim" validate:"max=255"`
	Description *string `json:"description" mod:"trim" validate:"omitempty,max=65535"`
}
