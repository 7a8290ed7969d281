package dto

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var Validate = validator.New()

type VerifyPaymentRequest struct {
	PaymentID string `json:"paymentId" validate:"required,uuid"`
	// пустой txHash = перепроверка по сохраненному txHashSubmitted
	TxHash string `json:"txHash" validate:"omitempty,max=128"`
}

type CreateIntentRequest struct {
	Chain string `json:"chain" validate:"required,oneof=BTC SOL"`
	Plan  string `json:"plan" validate:"required,alphanum,max=32"`
}

// ValidationMessage собирает ошибки валидатора в одну строку для ответа
func ValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		if fe.Tag() == "required" {
			msgs = append(msgs, field+" is required")
		} else {
			msgs = append(msgs, field+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}
