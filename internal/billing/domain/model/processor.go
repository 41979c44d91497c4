package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// ProcessorType identifies a payment provider implementation.
type ProcessorType string

const (
	ProcessorPayPal ProcessorType = "paypal"
)

// Processor is one configured payment-provider credential set for a
// tenant/provider pair. Unique on (type, secret).
type Processor struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Type     ProcessorType
	ClientID string
	Secret   string
	// EndpointSecret verifies webhook payloads at the provider
	// (PayPal's webhook id).
	EndpointSecret string
	// WebhookSecret is the unguessable path segment of the callback URL.
	WebhookSecret string
	IsSandbox     bool
	IsEnabled     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewProcessor creates a processor credential set with a fresh webhook
// path secret.
func NewProcessor(tenantID uuid.UUID, typ ProcessorType, clientID, secret string) (*Processor, error) {
	if typ == ProcessorPayPal && clientID == "" {
		return nil, fmt.Errorf("%w: paypal requires a client id", ErrValidation)
	}
	if secret == "" {
		return nil, fmt.Errorf("%w: secret is required", ErrValidation)
	}
	now := time.Now()
	return &Processor{
		ID:            uuid.New(),
		TenantID:      tenantID,
		Type:          typ,
		ClientID:      clientID,
		Secret:        secret,
		WebhookSecret: generateWebhookSecret(),
		IsSandbox:     true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// WebhookPath returns the provider callback path for this processor.
func (p *Processor) WebhookPath() string {
	return fmt.Sprintf("/webhooks/%s/%s", p.WebhookSecret, p.Type)
}

// WebhookURL builds the absolute callback URL from the configured public
// base URL. The base URL is explicit configuration, not ambient request
// state.
func (p *Processor) WebhookURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	return u.JoinPath(p.WebhookPath()).String(), nil
}

func generateWebhookSecret() string {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
