package binder

import (
	"encoding/json"
	"net/http"
	"net/url"
	"reflect"
	"regexp"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/mold/v4"
	"github.com/go-playground/mold/v4/modifiers"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
	"github.com/labstack/echo/v4"
	"github.com/mbs4/mbs4/pkg/errcodes"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
)

var unknownFieldsRE = regexp.MustCompile(`^json: unknown field "(.*)"$`)

// Binder implements the Echo Binder interface. It decodes into a struct,
// runs mold modifiers and creasty defaults over it, and validates the
// result, turning failures into presentable errcodes errors.
type Binder struct {
	queryDecoder *schema.Decoder
	formDecoder  *schema.Decoder
	conform      *mold.Transformer
	validate     *validator.Validate
}

// New initializes a Binder with the custom validations registered.
func New() (*Binder, error) {
	queryDecoder := schema.NewDecoder()
	queryDecoder.SetAliasTag("query")
	formDecoder := schema.NewDecoder()
	formDecoder.SetAliasTag("form")
	conform := modifiers.New()
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = validate.RegisterValidation("role", roleValidator)

	return &Binder{queryDecoder, formDecoder, conform, validate}, nil
}

// Bind decodes, modifies, and validates the request into i. Requests with a
// body go through the content-type specific decoders; bodyless GET and
// DELETE requests bind their query params instead.
func (b *Binder) Bind(i interface{}, c echo.Context) error {
	req := c.Request()

	if req.ContentLength > 0 {
		if err := b.bindBody(i, c); err != nil {
			return err
		}
	} else if req.Method == http.MethodGet || req.Method == http.MethodDelete {
		if err := b.decodeQuery(i, c.QueryParams(), b.queryDecoder); err != nil {
			return errors.WithStack(err)
		}
	} else if disallowEmptyBody(c) {
		return errcodes.EmptyRequestBody()
	}

	if err := b.conform.Struct(req.Context(), i); err != nil {
		return errors.WithStack(err)
	}

	if err := defaults.Set(i); err != nil {
		return errors.WithStack(err)
	}

	if err := b.validate.Struct(i); err != nil {
		errs := err.(validator.ValidationErrors)
		return errcodes.ValidationError(formatValidationError(errs[0]))
	}
	return nil
}

func (b *Binder) bindBody(i interface{}, c echo.Context) error {
	ctype := c.Request().Header.Get(echo.HeaderContentType)
	switch {
	case strings.HasPrefix(ctype, echo.MIMEApplicationJSON):
		return b.bindJSON(i, c)
	case strings.HasPrefix(ctype, echo.MIMEApplicationForm), strings.HasPrefix(ctype, echo.MIMEMultipartForm):
		return b.bindForm(i, c, strings.HasPrefix(ctype, echo.MIMEMultipartForm))
	default:
		return errcodes.UnsupportedMediaType()
	}
}

func (b *Binder) bindJSON(i interface{}, c echo.Context) error {
	req := c.Request()
	defer req.Body.Close()

	dec := json.NewDecoder(req.Body)
	if disallowUnknownFields(c) {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(i); err != nil {
		if matches := unknownFieldsRE.FindStringSubmatch(err.Error()); len(matches) > 1 {
			return errcodes.UnknownParameter(matches[1])
		}
		if err, ok := err.(*json.UnmarshalTypeError); ok {
			return errcodes.ValidationTypeError(formatUnmarshalTypeError(err))
		}

		logger.FromEchoContext(c).Err(err).Error("unknown json decode error")

		return errcodes.MalformedPayload()
	}
	return nil
}

func (b *Binder) bindForm(i interface{}, c echo.Context, multipart bool) error {
	params, err := c.FormParams()
	if err != nil {
		return errcodes.MalformedPayload()
	}
	if err := b.decodeQuery(i, params, b.formDecoder); err != nil {
		return errors.WithStack(err)
	}
	if !multipart {
		return nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return errors.WithStack(err)
	}
	// Uploaded files land in a FormFiles map field when the target struct
	// declares one. Only the first file per key is kept.
	field := reflect.ValueOf(i).Elem().FieldByName("FormFiles")
	if !field.IsValid() || !field.CanSet() {
		return nil
	}
	mapMade := false
	for key, headers := range form.File {
		if len(headers) == 0 {
			continue
		}
		if !mapMade {
			field.Set(reflect.MakeMap(field.Type()))
			mapMade = true
		}
		field.SetMapIndex(reflect.ValueOf(key), reflect.ValueOf(headers[0]))
	}
	return nil
}

func (b *Binder) decodeQuery(i interface{}, params url.Values, decoder *schema.Decoder) error {
	if err := decoder.Decode(i, params); err != nil {
		if errs, ok := err.(schema.MultiError); ok {
			var err error
			for _, err = range errs {
				break
			}

			if err, ok := err.(schema.ConversionError); ok {
				return errcodes.ValidationTypeError(formatSchemaConversionError(err))
			}
			if err, ok := err.(schema.UnknownKeyError); ok {
				return errcodes.UnknownParameter(err.Key)
			}

			return errors.WithStack(err)
		}
		return errors.WithStack(err)
	}
	return nil
}

func disallowEmptyBody(c echo.Context) bool {
	if disallow, ok := c.Get("disallow_empty_body").(bool); ok {
		return disallow
	}
	return true
}

func disallowUnknownFields(c echo.Context) bool {
	if disallow, ok := c.Get("disallow_unknown_fields").(bool); ok {
		return disallow
	}
	return true
}
