package validation

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"opinecli/pkg/contracts/domain"
)

// NewValidator returns a validator with the survey rules registered and
// JSON tag names used in field errors.
func NewValidator() *validator.Validate {
	v := validator.New()

	v.RegisterValidation("isodate", isISODate)
	v.RegisterValidation("level", isLevel)
	v.RegisterValidation("period", isPeriod)
	v.RegisterValidation("filename", isValidFilename)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// FormatFieldError renders one field error as a sentence.
func FormatFieldError(err validator.FieldError) string {
	field := err.Field()
	param := err.Param()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "isodate":
		return fmt.Sprintf("%s must be a date in YYYY-MM-DD form", field)
	case "level":
		return fmt.Sprintf("%s must be one of: Region, District, AC", field)
	case "period":
		return fmt.Sprintf("%s must be one of: Overall, L7D, L15D", field)
	case "filename":
		return fmt.Sprintf("%s must be a valid filename", field)
	case "required_if":
		return fmt.Sprintf("%s is required when %s", field, param)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	case "unique":
		return fmt.Sprintf("%s must not contain duplicates", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}

// isISODate validates a YYYY-MM-DD calendar date
func isISODate(fl validator.FieldLevel) bool {
	_, err := time.Parse(time.DateOnly, fl.Field().String())
	return err == nil
}

func isLevel(fl validator.FieldLevel) bool {
	return domain.Level(fl.Field().String()).Valid()
}

func isPeriod(fl validator.FieldLevel) bool {
	return domain.Period(fl.Field().String()).Valid()
}

// isValidFilename validates filename format
func isValidFilename(fl validator.FieldLevel) bool {
	filename := fl.Field().String()
	if filename == "" {
		return false
	}
	if strings.Contains(filename, "..") || strings.ContainsAny(filename, `/\`) {
		return false
	}
	return len(filename) <= 255
}
