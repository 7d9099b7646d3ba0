package model

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

// Validate checks the validate tags of a draft or patch struct and reports
// failures as a *ValidationError keyed by JSON field name.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err
	}
	ve := &ValidationError{}
	for _, fe := range errs {
		if fe.Param() != "" {
			ve.Add(fe.Field(), "failed %s=%s", fe.Tag(), fe.Param())
		} else {
			ve.Add(fe.Field(), "failed %s", fe.Tag())
		}
	}
	return ve
}
