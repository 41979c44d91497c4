package service

import (
	"context"

	"github.com/subpay-io/subpay/internal/billing/domain/repository"
	"github.com/subpay-io/subpay/internal/platform/database"
)

// Repositories bundles the persistence ports a service call needs. The
// factory binds them either to the pooled connection or, inside a
// reconciliation transaction, to one *sql.Tx.
type Repositories struct {
	Tenants       repository.TenantRepository
	Plans         repository.PlanRepository
	PlanLinks     repository.PlanLinkRepository
	Processors    repository.ProcessorRepository
	Subscriptions repository.SubscriptionRepository
	Invoices      repository.InvoiceRepository
	WebhookEvents repository.WebhookEventRepository
	URLCache      repository.URLCacheRepository
}

// RepoFactory binds the repository bundle to a querier.
type RepoFactory func(q database.Querier) *Repositories

// TxRunner executes fn atomically, handing it a querier scoped to the
// transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(q database.Querier) error) error
}
