// Package repository defines the persistence ports of the billing
// context.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/subpay-io/subpay/internal/billing/domain/model"
)

// PlanRepository defines plan persistence.
type PlanRepository interface {
	Create(ctx context.Context, plan *model.Plan) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Plan, error)
	// FindEnabled returns an enabled plan scoped to a tenant.
	FindEnabled(ctx context.Context, id, tenantID uuid.UUID) (*model.Plan, error)
	// FindByRemoteID resolves a local plan through its processor link.
	FindByRemoteID(ctx context.Context, remotePlanID string) (*model.Plan, error)
	// FindDefault returns the tenant's default plan, if any.
	FindDefault(ctx context.Context, tenantID uuid.UUID) (*model.Plan, error)
	ListEnabledRecurring(ctx context.Context, tenantID uuid.UUID) ([]*model.Plan, error)
	Update(ctx context.Context, plan *model.Plan) error
}

// TenantRepository exposes the tenant reference data billing reads.
type TenantRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Tenant, error)
	ListEnabled(ctx context.Context) ([]*model.Tenant, error)
}

// ProcessorRepository defines processor credential persistence.
type ProcessorRepository interface {
	Create(ctx context.Context, processor *model.Processor) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Processor, error)
	FindByWebhookSecret(ctx context.Context, webhookSecret string) (*model.Processor, error)
	ListEnabled(ctx context.Context, tenantID uuid.UUID) ([]*model.Processor, error)
}

// PlanLinkRepository defines plan↔processor link persistence.
type PlanLinkRepository interface {
	Create(ctx context.Context, link *model.PlanProcessorLink) error
	Find(ctx context.Context, planID, processorID uuid.UUID) (*model.PlanProcessorLink, error)
	Update(ctx context.Context, link *model.PlanProcessorLink) error
}

// SubscriptionRepository defines subscription persistence.
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *model.Subscription) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Subscription, error)
	FindByExternalID(ctx context.Context, externalID string) (*model.Subscription, error)
	// LatestForUserAndTenant returns the most recent non-terminal
	// subscription for (user, tenant). Uninitialized (null-state) rows are
	// included only when includeUninitialized is set.
	LatestForUserAndTenant(ctx context.Context, userID, tenantID uuid.UUID, includeUninitialized bool) (*model.Subscription, error)
	// ListForUser returns the user's current subscriptions across tenants.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*model.Subscription, error)
	Update(ctx context.Context, sub *model.Subscription) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// InvoiceRepository defines invoice persistence.
type InvoiceRepository interface {
	Create(ctx context.Context, invoice *model.Invoice) error
	// LatestForSubscription is the reconciliation anchor.
	LatestForSubscription(ctx context.Context, subscriptionID uuid.UUID) (*model.Invoice, error)
	// LatestByExternalID resolves the provider's opaque external id back
	// to a local invoice.
	LatestByExternalID(ctx context.Context, externalID string) (*model.Invoice, error)
	Update(ctx context.Context, invoice *model.Invoice) error
}

// WebhookEventRepository is the dedup store. Insert must return
// model.ErrDuplicateEvent when (processor, event type, event id) was seen
// before; records are write-once.
type WebhookEventRepository interface {
	Insert(ctx context.Context, event *model.WebhookEvent) error
	MarkProcessed(ctx context.Context, id uuid.UUID) error
}

// URLCacheRepository defines payment URL cache persistence.
type URLCacheRepository interface {
	// FindFresh returns the cached URL only if an entry exists and is not
	// past its expiry at now.
	FindFresh(ctx context.Context, typ model.URLCacheType, keyHash string, processorID uuid.UUID, now time.Time) (*model.PaymentURLCache, error)
	Create(ctx context.Context, entry *model.PaymentURLCache) error
	Invalidate(ctx context.Context, typ model.URLCacheType, keyHash string) error
	// PurgeExpiring deletes every entry expiring before the threshold and
	// returns the number of rows removed.
	PurgeExpiring(ctx context.Context, threshold time.Time) (int64, error)
}
