// Package postgres provides PostgreSQL repository implementations for
// billing.
package postgres

import (
	"github.com/subpay-io/subpay/internal/billing/app/service"
	"github.com/subpay-io/subpay/internal/platform/database"
)

// NewRepositories binds every billing repository to the given querier.
// Passed a *sql.Tx it becomes the bundle a reconciliation transaction
// works through; passed the pooled DB it serves plain reads.
func NewRepositories(q database.Querier) *service.Repositories {
	return &service.Repositories{
		Tenants:       NewTenantRepository(q),
		Plans:         NewPlanRepository(q),
		PlanLinks:     NewPlanLinkRepository(q),
		Processors:    NewProcessorRepository(q),
		Subscriptions: NewSubscriptionRepository(q),
		Invoices:      NewInvoiceRepository(q),
		WebhookEvents: NewWebhookEventRepository(q),
		URLCache:      NewURLCacheRepository(q),
	}
}
