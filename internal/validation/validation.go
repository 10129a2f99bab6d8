// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mmeshcher/kundali-system/internal/model"
)

// MinOrderAmount задаёт минимальную сумму заказа в пайсах.
const MinOrderAmount = 100

// DefaultCurrency используется, если валюта в запросе не указана.
const DefaultCurrency = "INR"

const (
	timeLayout        = "15:04"
	timeSecondsLayout = "15:04:05"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// В ошибках поля называются так же, как в JSON.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.RegisterValidation("timeofday", func(fl validator.FieldLevel) bool {
		_, ok := parseTimeOfDay(fl.Field().String())
		return ok
	}); err != nil {
		panic(err)
	}

	return v
}

// Errors содержит ошибки валидации по полям запроса.
type Errors map[string]string

func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, e[f]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e Errors) orNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// validateStruct проверяет структуру по тегам validate и переводит ошибки в Errors.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate: %w", err)
	}

	errs := Errors{}
	for _, fe := range fieldErrs {
		errs[fe.Field()] = message(fe)
	}
	return errs
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "datetime":
		return "must be in YYYY-MM-DD format"
	case "timeofday":
		return "must be in HH:MM format"
	case "latitude":
		return "must be between -90 and 90"
	case "longitude":
		return "must be between -180 and 180"
	case "min":
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "is invalid"
	}
}

// ValidateOrder проверяет сумму и валюту заказа и возвращает нормализованную валюту.
func ValidateOrder(amount int64, currency string) (string, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = DefaultCurrency
	}

	return currency, validateStruct(model.OrderRequest{Amount: amount, Currency: currency})
}

// ValidateVerification проверяет наличие всех полей подтверждения оплаты.
func ValidateVerification(v model.PaymentVerification) error {
	v.PaymentID = strings.TrimSpace(v.PaymentID)
	v.OrderID = strings.TrimSpace(v.OrderID)
	v.Signature = strings.TrimSpace(v.Signature)
	return validateStruct(v)
}

// NormalizeBirthInput проверяет данные о рождении и приводит их к каноническому виду.
// Если время неизвестно или не указано, оно заменяется на полдень.
func NormalizeBirthInput(in model.BirthInput) (model.BirthInput, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.PlaceOfBirth = strings.TrimSpace(in.PlaceOfBirth)
	in.DateOfBirth = strings.TrimSpace(in.DateOfBirth)
	in.TimeOfBirth = strings.TrimSpace(in.TimeOfBirth)
	in.PaymentID = strings.TrimSpace(in.PaymentID)

	if in.TimeUnknown || in.TimeOfBirth == "" {
		in.TimeOfBirth = model.DefaultTimeOfBirth
	}

	if err := validateStruct(in); err != nil {
		return in, err
	}

	in.TimeOfBirth, _ = parseTimeOfDay(in.TimeOfBirth)
	return in, nil
}

// NormalizeKundaliRequest дополняет NormalizeBirthInput обязательным идентификатором платежа.
func NormalizeKundaliRequest(in model.BirthInput) (model.BirthInput, error) {
	out, err := NormalizeBirthInput(in)

	errs := Errors{}
	var fieldErrs Errors
	if errors.As(err, &fieldErrs) {
		for k, v := range fieldErrs {
			errs[k] = v
		}
	} else if err != nil {
		return out, err
	}

	if verr := validate.Var(out.PaymentID, "required"); verr != nil {
		errs["paymentId"] = "is required"
	}

	return out, errs.orNil()
}

func parseTimeOfDay(s string) (string, bool) {
	for _, layout := range []string{timeLayout, timeSecondsLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(timeLayout), true
		}
	}
	return "", false
}
