package addresses

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/harborline/storefront/pkg/enums"
)

// AddressInput is the create/update payload for an address form.
type AddressInput struct {
	Type         enums.AddressType `json:"type" validate:"required"`
	Label        string            `json:"label,omitempty"`
	FirstName    string            `json:"first_name" validate:"required"`
	LastName     string            `json:"last_name" validate:"required"`
	Company      string            `json:"company,omitempty"`
	AddressLine1 string            `json:"address_line_1" validate:"required"`
	AddressLine2 string            `json:"address_line_2,omitempty"`
	City         string            `json:"city" validate:"required"`
	State        string            `json:"state" validate:"required"`
	PostalCode   string            `json:"postal_code" validate:"required"`
	Country      string            `json:"country" validate:"required"`
	Phone        string            `json:"phone,omitempty" validate:"omitempty,min=10"`
	IsDefault    bool              `json:"is_default"`
}

var inputValidator = newInputValidator()

func newInputValidator() *validator.Validate {
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

// Validate returns a field-keyed error map; an empty map means the input is
// acceptable. Phone, when present, must be at least 10 characters; it is not
// checked for digits.
func (s *service) Validate(input AddressInput) map[string]string {
	fields := map[string]string{}

	if err := inputValidator.Struct(input); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			for _, fe := range invalid {
				fields[fe.Field()] = messageFor(fe)
			}
		} else {
			fields["input"] = "invalid address input"
		}
	}

	if input.Type != "" && !input.Type.IsValid() {
		fields["type"] = "unknown address type"
	}

	return fields
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	default:
		return "invalid value"
	}
}
