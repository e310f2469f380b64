// Package validation adapts go-playground/validator to echo.
package validation

import (
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/clinic/scheduler/internal/domain/pesel"
)

// Validator implements echo.Validator.
type Validator struct {
	v *validator.Validate
}

// New returns a Validator that reports fields by their json names and
// knows the "pesel" tag.
func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("pesel", func(fl validator.FieldLevel) bool {
		return pesel.ValidateFormat(fl.Field().String()) == nil
	})
	return &Validator{v: v}
}

// Validate returns a 400 *echo.HTTPError describing every failed field.
func (cv *Validator) Validate(i interface{}) error {
	if err := cv.v.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, Format(err))
	}
	return nil
}

// Format turns validator errors into one readable line.
func Format(err error) string {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, message(e))
	}
	return strings.Join(msgs, ", ")
}

func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", e.Field())
	case "uuid":
		return fmt.Sprintf("%s must be a UUID", e.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", e.Field(), e.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", e.Field(), e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", e.Field(), e.Param())
	case "datetime":
		return fmt.Sprintf("%s must match %s", e.Field(), e.Param())
	case "email":
		return fmt.Sprintf("%s must be an email address", e.Field())
	case "pesel":
		return fmt.Sprintf("%s must consist of 11 digits", e.Field())
	}
	return fmt.Sprintf("%s failed %s", e.Field(), e.Tag())
}
