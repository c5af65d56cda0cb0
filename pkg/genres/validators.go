package genres

// CreateGenrePayload is the request body for creating a genre.
type CreateGenrePayload struct {
	Name string `json:"name" mod:"trim" validate:"required,max=255"`
}

// UpdateGenrePayload is the request body for updating a genre. Version must
// match the stored row for the update to apply.
type UpdateGenrePayload struct {
	Version int64  `json:"version" validate:"required,min=1"`
	Name    string `json:"name" mod:"trim" validate:"required,max=255"`
}
