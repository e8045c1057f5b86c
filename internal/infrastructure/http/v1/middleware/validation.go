package middleware

import (
	"errors"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"pharmledger/internal/core/apperror"
	"pharmledger/internal/domain/inventory"
)

// SetupValidator configures gin's validator: JSON field names in errors and
// the ledger's custom tags.
//
//	unit_type  piece, pack or box
//	location   shelf or backroom
func SetupValidator() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin validator engine is not go-playground/validator")
	}
	return registerRules(v)
}

func registerRules(v *validator.Validate) error {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		}
		return name
	})

	if err := v.RegisterValidation("unit_type", func(fl validator.FieldLevel) bool {
		return inventory.UnitType(fl.Field().String()).Valid()
	}); err != nil {
		return err
	}
	return v.RegisterValidation("location", func(fl validator.FieldLevel) bool {
		return inventory.Location(fl.Field().String()).Internal()
	})
}

// ValidationError converts a binding error into a validation AppError with
// one detail per failing field.
func ValidationError(message string, err error) *apperror.AppError {
	appErr := apperror.NewValidation(message)

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return appErr.WithDetail("error", err.Error())
	}
	for _, fe := range fieldErrs {
		appErr.WithDetail(fe.Field(), validationMessage(fe))
	}
	return appErr
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "uuid":
		return "must be a UUID"
	case "unit_type":
		return "must be piece, pack or box"
	case "location":
		return "must be shelf or backroom"
	case "dive":
		return "has invalid items"
	default:
		return "is invalid"
	}
}
