package paypal

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/subpay-io/subpay/internal/billing/domain/provider"
)

// Event types PayPal delivers that the reconciliation engine understands.
// Anything else is recognized-but-ignored downstream.
const (
	EventPaymentSaleCompleted   = "PAYMENT.SALE.COMPLETED"
	EventSubscriptionActivated  = "BILLING.SUBSCRIPTION.ACTIVATED"
	EventSubscriptionSuspended  = "BILLING.SUBSCRIPTION.SUSPENDED"
	EventSubscriptionUpdated    = "BILLING.SUBSCRIPTION.UPDATED"
	EventCheckoutOrderApproved  = "CHECKOUT.ORDER.APPROVED"
	EventCheckoutOrderCompleted = "CHECKOUT.ORDER.COMPLETED"
	EventPaymentCaptureRefunded = "PAYMENT.CAPTURE.REFUNDED"
)

type webhookEnvelope struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Resource  json.RawMessage `json:"resource"`
}

type subscriptionResource struct {
	ID               string     `json:"id"`
	PlanID           string     `json:"plan_id"`
	CustomID         string     `json:"custom_id"`
	StartTime        *time.Time `json:"start_time"`
	StatusUpdateTime *time.Time `json:"status_update_time"`
	BillingInfo      struct {
		NextBillingTime *time.Time `json:"next_billing_time"`
	} `json:"billing_info"`
}

type saleResource struct {
	ID                 string     `json:"id"`
	BillingAgreementID string     `json:"billing_agreement_id"`
	CustomID           string     `json:"custom"`
	CreateTime         *time.Time `json:"create_time"`
	Amount             struct {
		Total    string `json:"total"`
		Currency string `json:"currency"`
	} `json:"amount"`
}

type orderResource struct {
	ID            string `json:"id"`
	PurchaseUnits []struct {
		CustomID string `json:"custom_id"`
		Amount   struct {
			Value        string `json:"value"`
			CurrencyCode string `json:"currency_code"`
		} `json:"amount"`
	} `json:"purchase_units"`
	CreateTime *time.Time `json:"create_time"`
}

type captureResource struct {
	ID       string `json:"id"`
	CustomID string `json:"custom_id"`
	Amount   struct {
		Value        string `json:"value"`
		CurrencyCode string `json:"currency_code"`
	} `json:"amount"`
}

// ParseEvent maps a raw PayPal webhook envelope to the normalized event
// the reconciliation engine consumes.
func (c *Client) ParseEvent(rawPayload []byte) (*provider.Event, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(rawPayload, &env); err != nil {
		return nil, fmt.Errorf("paypal webhook envelope: %w", err)
	}
	if env.EventType == "" {
		return nil, fmt.Errorf("paypal webhook envelope: missing event_type")
	}

	ev := &provider.Event{
		EventID: env.ID,
		Type:    env.EventType,
	}

	switch env.EventType {
	case EventSubscriptionActivated, EventSubscriptionSuspended, EventSubscriptionUpdated:
		var res subscriptionResource
		if err := json.Unmarshal(env.Resource, &res); err != nil {
			return nil, fmt.Errorf("paypal subscription resource: %w", err)
		}
		ev.ExternalID = res.ID
		ev.CorrelationID = res.CustomID
		ev.PlanRemoteID = res.PlanID
		ev.StartAt = res.StartTime
		ev.NextBillingAt = res.BillingInfo.NextBillingTime
		ev.SuspendedAt = res.StatusUpdateTime

	case EventPaymentSaleCompleted:
		var res saleResource
		if err := json.Unmarshal(env.Resource, &res); err != nil {
			return nil, fmt.Errorf("paypal sale resource: %w", err)
		}
		// for recurring charges the billing agreement id is the
		// subscription's external id
		ev.ExternalID = res.BillingAgreementID
		ev.CorrelationID = res.CustomID
		ev.Amount = res.Amount.Total
		ev.Currency = res.Amount.Currency
		ev.StartAt = res.CreateTime

	case EventCheckoutOrderApproved, EventCheckoutOrderCompleted:
		var res orderResource
		if err := json.Unmarshal(env.Resource, &res); err != nil {
			return nil, fmt.Errorf("paypal order resource: %w", err)
		}
		ev.ExternalID = res.ID
		ev.StartAt = res.CreateTime
		if len(res.PurchaseUnits) > 0 {
			ev.CorrelationID = res.PurchaseUnits[0].CustomID
			ev.Amount = res.PurchaseUnits[0].Amount.Value
			ev.Currency = res.PurchaseUnits[0].Amount.CurrencyCode
		}

	case EventPaymentCaptureRefunded:
		var res captureResource
		if err := json.Unmarshal(env.Resource, &res); err != nil {
			return nil, fmt.Errorf("paypal capture resource: %w", err)
		}
		ev.ExternalID = res.ID
		ev.CorrelationID = res.CustomID
		ev.Amount = res.Amount.Value
		ev.Currency = res.Amount.CurrencyCode
	}

	return ev, nil
}
