package binder

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
	"github.com/segmentio/encoding/json"
)

const (
	alpha    = "alpha"
	alphanum = "alphanum"
	email    = "email"
	ln       = "len"
	mx       = "max"
	mn       = "min"
	required = "required"
	role     = "role"
)

func formatUnmarshalTypeError(err *json.UnmarshalTypeError) string {
	// FIXME: this doesn't work well for incorrect map values, e.g. it will say
	// `"metadata" should be a string instead of a object` if you pass in
	// `{"metadata":{"foo":{"bar":"baz"}}}`.
	return fmt.Sprintf("%q should be of type %s", strings.Trim(err.Field, "."), err.Type)
}

func formatSchemaConversionError(err schema.ConversionError) string {
	return fmt.Sprintf("%q should be of type %s", err.Key, err.Type)
}

func formatValidationError(err validator.FieldError) string {
	field := err.Field()

	switch err.Tag() {
	case alpha:
		return fmt.Sprintf("%q must contain only letters", field)
	case alphanum:
		return fmt.Sprintf("%q must contain only letters and numbers", field)
	case email:
		return fmt.Sprintf("%q is not a valid email", field)
	case ln:
		return sizeMessage(err, "exactly")
	case mx:
		return sizeMessage(err, "less than or equal to")
	case mn:
		return sizeMessage(err, "greater than or equal to")
	case required:
		return fmt.Sprintf("%q is required", field)
	case role:
		return fmt.Sprintf("%q must be a known role", field)
	default:
		// A tag landing here means a validation was added without extending
		// this switch.
		return fmt.Sprintf("%q is invalid", field)
	}
}

// sizeMessage phrases len/min/max errors by the field's kind: a plain
// comparison for numbers, a length in characters or elements otherwise.
func sizeMessage(err validator.FieldError, comparison string) string {
	field := err.Field()
	param := err.Param()

	//exhaustive:ignore
	switch err.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return fmt.Sprintf("%q must be %s %s", field, comparison, param)
	case reflect.Slice, reflect.Array, reflect.Map:
		return fmt.Sprintf("%q length must be %s %s %s", field, comparison, param, pluralize("element", param))
	default:
		return fmt.Sprintf("%q length must be %s %s %s", field, comparison, param, pluralize("character", param))
	}
}

func pluralize(noun, count string) string {
	if count == "1" {
		return noun
	}
	return noun + "s"
}
