package model

import "errors"

// Domain errors raised by the billing core. Reconciliation handlers map
// these to HTTP 400 at the webhook boundary; subscriber operations map
// them to short reason strings.
var (
	ErrTenantNotFound         = errors.New("tenant not found")
	ErrPlanNotFound           = errors.New("plan not found")
	ErrProcessorNotFound      = errors.New("processor not found")
	ErrSubscriptionNotFound   = errors.New("subscription not found")
	ErrInvoiceNotFound        = errors.New("invoice not found")
	ErrPaymentWrongStatus     = errors.New("payment has wrong status")
	ErrDuplicateEvent         = errors.New("webhook event already processed")
	ErrMalformedCorrelationID = errors.New("malformed correlation id")
	ErrValidation             = errors.New("validation failed")
)
