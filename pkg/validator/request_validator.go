package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"bank_ledger/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var ErrValidation = errors.New("validation failed")

// RequestValidator checks decoded API payloads. Money fields are
// decimal.Decimal and use the "money" (positive, whole cents) and
// "money_nonneg" tags; account types use "account_type".
type RequestValidator struct {
	validate *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("money", func(fl validator.FieldLevel) bool {
		d, ok := fieldDecimal(fl)
		return ok && domain.ValidateAmount(d) == nil
	})
	_ = v.RegisterValidation("money_nonneg", func(fl validator.FieldLevel) bool {
		d, ok := fieldDecimal(fl)
		return ok && !d.IsNegative() && d.Equal(d.Round(2))
	})
	_ = v.RegisterValidation("account_type", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseAccountType(fl.Field().String())
		return err == nil
	})

	return &RequestValidator{validate: v}
}

func (v *RequestValidator) Validate(request interface{}) error {
	err := v.validate.Struct(request)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	problems := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		problems = append(problems, describe(fe))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "money":
		return fmt.Sprintf("%s must be a positive amount with at most two decimal places", fe.Field())
	case "money_nonneg":
		return fmt.Sprintf("%s must not be negative and have at most two decimal places", fe.Field())
	case "account_type":
		return fmt.Sprintf("%s must be CHECKING or SAVINGS", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "nefield":
		return fmt.Sprintf("%s must differ from %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

func fieldDecimal(fl validator.FieldLevel) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
