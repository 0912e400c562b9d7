package profile

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// PasswordInput is the change-password payload. NewPassword and its
// confirmation must match; the minimum length mirrors the backend policy.
type PasswordInput struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=NewPassword"`
}

var passwordValidator = newPasswordValidator()

func newPasswordValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		tag := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if tag == "-" || tag == "" {
			return field.Name
		}
		return tag
	})
	return v
}

// ValidatePassword returns a field-keyed error map; empty means acceptable.
func ValidatePassword(input PasswordInput) map[string]string {
	fields := map[string]string{}

	if err := passwordValidator.Struct(input); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			for _, fe := range invalid {
				fields[fe.Field()] = passwordMessageFor(fe)
			}
		} else {
			fields["input"] = "invalid password input"
		}
	}

	return fields
}

func passwordMessageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "eqfield":
		return "passwords do not match"
	default:
		return "invalid value"
	}
}
