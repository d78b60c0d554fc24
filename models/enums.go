package models

import (
	"encoding/json"
	"errors"
)

type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "Cash"
	PaymentMethodCard     PaymentMethod = "Card"
	PaymentMethodTransfer PaymentMethod = "Transfer"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodTransfer:
		return true
	}
	return false
}

// convert input to enum type
func (m *PaymentMethod) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("payment method must be string")
	}
	switch str {
	case "Cash":
		*m = PaymentMethodCash
	case "Card":
		*m = PaymentMethodCard
	case "Transfer":
		*m = PaymentMethodTransfer
	default:
		return errors.New("invalid payment method")
	}
	return nil
}

type CounterType string

const (
	CounterTypeSale     CounterType = "sale"
	CounterTypePurchase CounterType = "purchase"
)

// Prefix returns the human-readable invoice prefix for the counter type.
func (t CounterType) Prefix() string {
	if t == CounterTypePurchase {
		return "P"
	}
	return "S"
}

func (t CounterType) Valid() bool {
	return t == CounterTypeSale || t == CounterTypePurchase
}

// SubmissionStatus is the explicit sale-submission state machine:
// Idle -> Submitting -> Succeeded | Failed. A tagged status makes
// "success and error at once" unrepresentable.
type SubmissionStatus string

const (
	SubmissionStatusIdle       SubmissionStatus = "Idle"
	SubmissionStatusSubmitting SubmissionStatus = "Submitting"
	SubmissionStatusSucceeded  SubmissionStatus = "Succeeded"
	SubmissionStatusFailed     SubmissionStatus = "Failed"
)
