package series

// CreateSeriesPayload is the request body for creating a series.
type CreateSeriesPayload struct {
	Title       string  `json:"title" mod:"trim" validate:"required,max=255"`
	Description *string `json:"description" mod:"trim" validate:"omitempty,max=65535"`
}

// UpdateSeriesPayload is the request body for updating a series. Version must
// match the stored row for the update to apply; omitted optional fields clear
// the stored values.
type UpdateSeriesPayload struct {
	Version     int64   `json:"version" validate:"required,min=1"`
	Title       string  `json:"title" mod:"trim" validate:"required,max=255"`
	Description *string `json:"description" mod:"trim" validate:"omitempty,max=65535"`
}
