// Package validation wraps go-playground/validator with the project's
// custom tags and maps failures onto the standard validation AppError.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/BytebleCode/Investment-Platform/pkg/errors"
)

var (
	once     sync.Once
	validate *validator.Validate

	symbolRegex = regexp.MustCompile(`^[A-Z]{1,5}$`)
)

// Validator returns the shared validator instance. Field names in errors use
// the json tag.
func Validator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = validate.RegisterValidation("symbol", func(fl validator.FieldLevel) bool {
			return symbolRegex.MatchString(fl.Field().String())
		})
	})
	return validate
}

// Struct validates s and returns ErrValidation with one detail per failing
// field, or nil.
func Struct(s any) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.ErrValidation.WithError(err)
	}

	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, describe(fe))
	}
	return apperrors.ErrValidation.WithDetails(details)
}

// ParseBody decodes the request body into out and validates it.
func ParseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.ErrBadRequest.WithDetails("request body is not valid JSON").WithError(err)
	}
	return Struct(out)
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "symbol":
		return fmt.Sprintf("%s must be 1-5 uppercase letters", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
