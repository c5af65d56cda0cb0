package binder

import (
	"github.com/go-playground/validator/v10"
	"github.com/mbs4/mbs4/pkg/models"
)

// roleValidator accepts any known role name, case-insensitively. The empty
// string passes so that optional fields stay optional; combine with
// `required` when a value must be present.
func roleValidator(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, err := models.ParseRole(value)
	return err == nil
}
