package payment

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/payflow/server/internal/module/payment/domain"
	"github.com/shopspring/decimal"
)

var registerOnce sync.Once

// RegisterValidators installs the payment binding rules on gin's validator.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		registerRules(v)
	})
}

func registerRules(v *validator.Validate) {
	// Decimal fields are validated through their string form.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	_ = v.RegisterValidation("positive_amount", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && domain.ValidateAmount(d) == nil
	})
	_ = v.RegisterValidation("payment_method", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseMethod(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("payment_status", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseStatus(fl.Field().String())
		return err == nil
	})
}

// bindingMessage renders binding errors as a single client-facing message.
func bindingMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, &validationError{domain.ErrInvalidAmount}
	}
	if err := domain.ValidateAmount(amount); err != nil {
		return decimal.Decimal{}, &validationError{err}
	}
	return amount, nil
}
