package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus is the state of one monetary attempt.
type InvoiceStatus string

const (
	InvoiceStatusPending  InvoiceStatus = "pending"
	InvoiceStatusSuccess  InvoiceStatus = "success"
	InvoiceStatusFailure  InvoiceStatus = "failure"
	InvoiceStatusCanceled InvoiceStatus = "canceled"
	InvoiceStatusExpired  InvoiceStatus = "expired"
	InvoiceStatusRefunded InvoiceStatus = "refunded"
)

// Invoice records one monetary attempt against a subscription. The latest
// invoice for a subscription is the reconciliation anchor, and its
// external id is the lookup path from the provider's opaque id back to
// the subscription.
type Invoice struct {
	ID             uuid.UUID
	SubscriptionID uuid.UUID
	UserID         uuid.UUID
	ProcessorID    uuid.UUID
	ExternalID     *string
	Amount         decimal.Decimal
	Currency       string
	Status         InvoiceStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewInvoice creates a pending invoice for a subscription.
func NewInvoice(subscriptionID, userID, processorID uuid.UUID, amount decimal.Decimal, currency string) *Invoice {
	now := time.Now()
	return &Invoice{
		ID:             uuid.New(),
		SubscriptionID: subscriptionID,
		UserID:         userID,
		ProcessorID:    processorID,
		Amount:         amount,
		Currency:       currency,
		Status:         InvoiceStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// MarkPaid promotes the invoice to SUCCESS with the settled amount the
// provider reported.
func (i *Invoice) MarkPaid(amount decimal.Decimal, currency string) {
	i.Status = InvoiceStatusSuccess
	i.Amount = amount
	if currency != "" {
		i.Currency = currency
	}
	i.UpdatedAt = time.Now()
}

// MarkRefunded flags the invoice as refunded.
func (i *Invoice) MarkRefunded() {
	i.Status = InvoiceStatusRefunded
	i.UpdatedAt = time.Now()
}

// SetExternalID stores the provider's charge/order reference.
func (i *Invoice) SetExternalID(externalID string) {
	i.ExternalID = &externalID
	i.UpdatedAt = time.Now()
}

// ExpiredAt is the deadline after which a still-pending invoice is
// considered abandoned.
func (i *Invoice) ExpiredAt() time.Time {
	return i.CreatedAt.Add(3 * 24 * time.Hour)
}

// ParseAmount parses a provider-reported decimal string exactly, without
// passing through floating point.
func ParseAmount(value string) (decimal.Decimal, error) {
	return decimal.NewFromString(value)
}
