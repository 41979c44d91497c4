// Package provider defines the payment-provider port of the billing
// context. Adapters translate provider wire formats into these types so
// nothing provider-specific leaks past this boundary.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Error carries a non-2xx provider response.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.StatusCode, e.Message)
}

// Soft reports whether the error is a 422-class response. For activate,
// deactivate and revise calls this usually means the remote object
// already reflects the desired state, so callers log and move on.
func (e *Error) Soft() bool {
	return e.StatusCode == 422
}

// PaymentLink is a minted checkout or approval redirect.
type PaymentLink struct {
	ID  string
	URL string
}

// StatusSnapshot is the provider's current view of a subscription.
type StatusSnapshot struct {
	Status        string
	PlanRemoteID  string
	NextBillingAt *time.Time
}

// WebhookHeaders are the signature headers forwarded verbatim from the
// webhook request.
type WebhookHeaders struct {
	AuthAlgo         string
	CertURL          string
	TransmissionID   string
	TransmissionSig  string
	TransmissionTime string
}

// Event is a provider notification normalized to the fields the
// reconciliation engine needs. Not every field is set for every type.
type Event struct {
	// EventID is the provider-assigned delivery id used for dedup.
	EventID string
	// Type is the provider's event type string, e.g.
	// "BILLING.SUBSCRIPTION.ACTIVATED".
	Type string
	// CorrelationID is the custom id echoed back from creation time.
	CorrelationID string
	// ExternalID is the provider's subscription/order/capture id.
	ExternalID string
	// PlanRemoteID is the provider-side plan id, when present.
	PlanRemoteID string

	Amount   string
	Currency string

	StartAt       *time.Time
	NextBillingAt *time.Time
	SuspendedAt   *time.Time
}

// Client is the capability interface one concrete adapter implements per
// provider. Parameters and returns are primitive so no SDK types leak.
type Client interface {
	GenerateCheckout(ctx context.Context, correlationID string, amount decimal.Decimal, currency, returnURL, cancelURL string) (*PaymentLink, error)
	// GenerateSubscription creates a remote billing subscription. A nil
	// startTime means the subscription starts on buyer approval.
	GenerateSubscription(ctx context.Context, correlationID, remotePlanID, returnURL, cancelURL string, startTime *time.Time) (*PaymentLink, error)
	ChangeSubscription(ctx context.Context, externalID, newRemotePlanID, returnURL, cancelURL string) (*PaymentLink, error)
	Activate(ctx context.Context, externalID, reason string) error
	Deactivate(ctx context.Context, externalID, reason string, suspend bool) error
	ApproveOrder(ctx context.Context, externalID string) error
	Refund(ctx context.Context, externalPaymentID string) error
	FetchStatus(ctx context.Context, externalID string) (*StatusSnapshot, error)
	VerifyWebhookSignature(ctx context.Context, headers WebhookHeaders, endpointSecret string, rawPayload []byte) (bool, error)
	ParseEvent(rawPayload []byte) (*Event, error)
}

// RemoteProduct is one catalog product at the provider.
type RemoteProduct struct {
	ID   string
	Name string
}

// RemotePlan is one billing plan at the provider.
type RemotePlan struct {
	ID     string
	Name   string
	Status string
}

// CatalogClient covers the provider's product/plan catalog, used by the
// sync job rather than by reconciliation.
type CatalogClient interface {
	ListProducts(ctx context.Context) ([]RemoteProduct, error)
	CreateProduct(ctx context.Context, id, name string) error
	ListPlans(ctx context.Context, productID string) ([]RemotePlan, error)
	CreatePlan(ctx context.Context, productID, name, description, intervalUnit string, intervalCount int, price, currency string) (string, error)
	UpdatePlan(ctx context.Context, planID, name, description string) error
	UpdatePlanPricing(ctx context.Context, planID, price, currency string) error
}
