package call

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"webconf-backend/pkg/constants"
	apperrors "webconf-backend/pkg/errors"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateInput reports the first invalid field in declaration order
func (s *Service) validateInput(input *AddCallInput) error {
	if input == nil {
		return apperrors.ArgumentError("id", "must not be empty")
	}
	err := s.validate.Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperrors.ValidationError(err.Error())
	}
	fe := fieldErrs[0]
	return apperrors.ArgumentError(fe.Field(), describe(fe))
}

func (s *Service) validateID(id string) error {
	if id == "" {
		return apperrors.ArgumentError("id", "must not be empty")
	}
	if err := s.validate.Var(id, fmt.Sprintf("max=%d", constants.MaxIDLength)); err != nil {
		return apperrors.ArgumentError("id", fmt.Sprintf("must not exceed %d characters", constants.MaxIDLength))
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must not be empty"
	case "max":
		return fmt.Sprintf("must not exceed %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("unsupported value %q", fe.Value())
	default:
		return fmt.Sprintf("failed %s check", fe.Tag())
	}
}
