package users

// CreateUserPayload is the request body for creating a user.
type CreateUserPayload struct {
	Email    string   `json:"email" mod:"trim" validate:"required,email,max=255"`
	Name     string   `json:"name" mod:"trim" validate:"required,max=255"`
	Roles    []string `json:"roles" validate:"dive,role"`
	Password *string  `json:"password" validate:"omitempty,min=8,max=255"`
}

// UpdateUserPayload is the request body for updating a user. Version must
// match the stored row for the update to apply.
type UpdateUserPayload struct {
	Version  int64     `json:"version" validate:"required,min=1"`
	Email    *string   `json:"email" mod:"trim" validate:"omitempty,email,max=255"`
	Name     *string   `json:"name" mod:"trim" validate:"omitempty,max=255"`
	Roles    *[]string `json:"roles" validate:"omitempty,dive,role"`
	Password *string   `json:"password" validate:"omitempty,min=8,max=255"`
}
