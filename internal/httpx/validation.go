package httpx

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/apperr"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
	errValidate  error
)

func initValidator() (*validator.Validate, error) {
	vld := validator.New(validator.WithRequiredStructEnabled())

	vld.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}

		return name
	})

	if err := vld.RegisterValidation("positive_decimal", func(fl validator.FieldLevel) bool {
		value, ok := fl.Field().Interface().(decimal.Decimal)

		return ok && value.IsPositive()
	}); err != nil {
		return nil, fmt.Errorf("register positive_decimal: %w", err)
	}

	if err := vld.RegisterValidation("nonnegative_decimal", func(fl validator.FieldLevel) bool {
		value, ok := fl.Field().Interface().(decimal.Decimal)

		return ok && !value.IsNegative()
	}); err != nil {
		return nil, fmt.Errorf("register nonnegative_decimal: %w", err)
	}

	return vld, nil
}

// Validator returns the shared validator instance.
func Validator() (*validator.Validate, error) {
	validateOnce.Do(func() {
		validate, errValidate = initValidator()
	})

	return validate, errValidate
}

var messages = map[string]func(param string) string{
	"required":            func(string) string { return "is required" },
	"uuid":                func(string) string { return "must be a valid UUID" },
	"oneof":               func(p string) string { return "must be one of [" + p + "]" },
	"max":                 func(p string) string { return "must be at most " + p },
	"min":                 func(p string) string { return "must be at least " + p },
	"gt":                  func(p string) string { return "must be greater than " + p },
	"gte":                 func(p string) string { return "must be at least " + p },
	"lte":                 func(p string) string { return "must be at most " + p },
	"positive_decimal":    func(string) string { return "must be greater than zero" },
	"nonnegative_decimal": func(string) string { return "must not be negative" },
}

// ValidateStruct checks payload's validate tags and returns the first failure
// as an apperr.DomainError.
func ValidateStruct(payload any) error {
	vld, err := Validator()
	if err != nil {
		return err
	}

	if err := vld.Struct(payload); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]

			msg := "failed '" + fe.Tag() + "' check"
			if format, ok := messages[fe.Tag()]; ok {
				msg = format(fe.Param())
			}

			return apperr.Validation(fe.Field(), fe.Field()+" "+msg)
		}

		return apperr.Validation("", err.Error())
	}

	return nil
}

// ParseBodyAndValidate decodes the JSON body into payload and validates it.
func ParseBodyAndValidate(c *fiber.Ctx, payload any) error {
	ct := c.Get(fiber.HeaderContentType)
	if ct != "" && !strings.HasPrefix(ct, fiber.MIMEApplicationJSON) {
		return apperr.Validation("", "Content-Type must be application/json")
	}

	if err := c.BodyParser(payload); err != nil {
		return apperr.Validation("", "malformed request body: "+err.Error())
	}

	return ValidateStruct(payload)
}
