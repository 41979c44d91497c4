package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/subpay-io/subpay/internal/billing/domain/model"
	"github.com/subpay-io/subpay/internal/billing/domain/provider"
	"github.com/subpay-io/subpay/internal/platform/database"
)

// memStore is an in-memory backing store shared by the fake
// repositories, so handlers see their own writes inside one "tx".
type memStore struct {
	mu sync.Mutex

	tenants    []*model.Tenant
	plans      []*model.Plan
	links      []*model.PlanProcessorLink
	processors []*model.Processor
	subs       []*model.Subscription
	invoices   []*model.Invoice
	events     []*model.WebhookEvent
	urlEntries []*model.PaymentURLCache

	deletedSubs []uuid.UUID
	processed   []uuid.UUID
}

func newMemStore() *memStore {
	return &memStore{}
}

func (s *memStore) repositories() *Repositories {
	return &Repositories{
		Tenants:       &fakeTenants{s},
		Plans:         &fakePlans{s},
		PlanLinks:     &fakePlanLinks{s},
		Processors:    &fakeProcessors{s},
		Subscriptions: &fakeSubscriptions{s},
		Invoices:      &fakeInvoices{s},
		WebhookEvents: &fakeWebhookEvents{s},
		URLCache:      &fakeURLCache{s},
	}
}

// runner executes the fn directly; rollback-on-error semantics are not
// simulated, tests assert on the error instead. failTimes aborts that
// many transactions before any writes happen, simulating a commit
// failure.
type fakeRunner struct {
	store     *memStore
	failTimes int
}

func (r *fakeRunner) RunInTx(_ context.Context, fn func(q database.Querier) error) error {
	if r.failTimes > 0 {
		r.failTimes--
		return fmt.Errorf("tx aborted")
	}
	return fn(nil)
}

func (s *memStore) factory() RepoFactory {
	return func(database.Querier) *Repositories { return s.repositories() }
}

type fakeTenants struct{ s *memStore }

func (f *fakeTenants) FindByID(_ context.Context, id uuid.UUID) (*model.Tenant, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, t := range f.s.tenants {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, model.ErrTenantNotFound
}

func (f *fakeTenants) ListEnabled(_ context.Context) ([]*model.Tenant, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []*model.Tenant
	for _, t := range f.s.tenants {
		if t.IsEnabled {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakePlans struct{ s *memStore }

func (f *fakePlans) Create(_ context.Context, plan *model.Plan) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.plans = append(f.s.plans, plan)
	return nil
}

func (f *fakePlans) FindByID(_ context.Context, id uuid.UUID) (*model.Plan, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, p := range f.s.plans {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, model.ErrPlanNotFound
}

func (f *fakePlans) FindEnabled(_ context.Context, id, tenantID uuid.UUID) (*model.Plan, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, p := range f.s.plans {
		if p.ID == id && p.TenantID == tenantID && p.IsEnabled {
			return p, nil
		}
	}
	return nil, model.ErrPlanNotFound
}

func (f *fakePlans) FindByRemoteID(_ context.Context, remotePlanID string) (*model.Plan, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, l := range f.s.links {
		if l.ExternalID == remotePlanID {
			for _, p := range f.s.plans {
				if p.ID == l.PlanID {
					return p, nil
				}
			}
		}
	}
	return nil, model.ErrPlanNotFound
}

func (f *fakePlans) FindDefault(_ context.Context, tenantID uuid.UUID) (*model.Plan, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, p := range f.s.plans {
		if p.TenantID == tenantID && p.IsDefault {
			return p, nil
		}
	}
	return nil, model.ErrPlanNotFound
}

func (f *fakePlans) ListEnabledRecurring(_ context.Context, tenantID uuid.UUID) ([]*model.Plan, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []*model.Plan
	for _, p := range f.s.plans {
		if p.TenantID == tenantID && p.IsEnabled && p.IsRecurring {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePlans) Update(_ context.Context, plan *model.Plan) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for i, p := range f.s.plans {
		if p.ID == plan.ID {
			f.s.plans[i] = plan
			return nil
		}
	}
	return model.ErrPlanNotFound
}

type fakePlanLinks struct{ s *memStore }

func (f *fakePlanLinks) Create(_ context.Context, link *model.PlanProcessorLink) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.links = append(f.s.links, link)
	return nil
}

func (f *fakePlanLinks) Find(_ context.Context, planID, processorID uuid.UUID) (*model.PlanProcessorLink, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, l := range f.s.links {
		if l.PlanID == planID && l.ProcessorID == processorID {
			return l, nil
		}
	}
	return nil, model.ErrPlanNotFound
}

func (f *fakePlanLinks) Update(_ context.Context, link *model.PlanProcessorLink) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for i, l := range f.s.links {
		if l.ID == link.ID {
			f.s.links[i] = link
			return nil
		}
	}
	return model.ErrPlanNotFound
}

type fakeProcessors struct{ s *memStore }

func (f *fakeProcessors) Create(_ context.Context, processor *model.Processor) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.processors = append(f.s.processors, processor)
	return nil
}

func (f *fakeProcessors) FindByID(_ context.Context, id uuid.UUID) (*model.Processor, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, p := range f.s.processors {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, model.ErrProcessorNotFound
}

func (f *fakeProcessors) FindByWebhookSecret(_ context.Context, secret string) (*model.Processor, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, p := range f.s.processors {
		if p.WebhookSecret == secret {
			return p, nil
		}
	}
	return nil, model.ErrProcessorNotFound
}

func (f *fakeProcessors) ListEnabled(_ context.Context, tenantID uuid.UUID) ([]*model.Processor, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []*model.Processor
	for _, p := range f.s.processors {
		if p.TenantID == tenantID && p.IsEnabled {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeSubscriptions struct{ s *memStore }

func (f *fakeSubscriptions) Create(_ context.Context, sub *model.Subscription) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.subs = append(f.s.subs, sub)
	return nil
}

func (f *fakeSubscriptions) FindByID(_ context.Context, id uuid.UUID) (*model.Subscription, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, sub := range f.s.subs {
		if sub.ID == id {
			return sub, nil
		}
	}
	return nil, model.ErrSubscriptionNotFound
}

func (f *fakeSubscriptions) FindByExternalID(_ context.Context, externalID string) (*model.Subscription, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	// latest-row convention, newest append wins
	for i := len(f.s.subs) - 1; i >= 0; i-- {
		if f.s.subs[i].ExternalID != nil && *f.s.subs[i].ExternalID == externalID {
			return f.s.subs[i], nil
		}
	}
	return nil, model.ErrSubscriptionNotFound
}

func (f *fakeSubscriptions) LatestForUserAndTenant(_ context.Context, userID, tenantID uuid.UUID, includeUninitialized bool) (*model.Subscription, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for i := len(f.s.subs) - 1; i >= 0; i-- {
		sub := f.s.subs[i]
		if sub.UserID != userID || sub.TenantID != tenantID {
			continue
		}
		if sub.StartAt == nil && !includeUninitialized {
			continue
		}
		return sub, nil
	}
	return nil, model.ErrSubscriptionNotFound
}

func (f *fakeSubscriptions) ListForUser(_ context.Context, userID uuid.UUID) ([]*model.Subscription, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []*model.Subscription
	for _, sub := range f.s.subs {
		if sub.UserID == userID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (f *fakeSubscriptions) Update(_ context.Context, sub *model.Subscription) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for i, existing := range f.s.subs {
		if existing.ID == sub.ID {
			f.s.subs[i] = sub
			return nil
		}
	}
	return model.ErrSubscriptionNotFound
}

func (f *fakeSubscriptions) Delete(_ context.Context, id uuid.UUID) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for i, sub := range f.s.subs {
		if sub.ID == id {
			f.s.subs = append(f.s.subs[:i], f.s.subs[i+1:]...)
			f.s.deletedSubs = append(f.s.deletedSubs, id)
			return nil
		}
	}
	return model.ErrSubscriptionNotFound
}

type fakeInvoices struct{ s *memStore }

func (f *fakeInvoices) Create(_ context.Context, invoice *model.Invoice) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.invoices = append(f.s.invoices, invoice)
	return nil
}

func (f *fakeInvoices) LatestForSubscription(_ context.Context, subscriptionID uuid.UUID) (*model.Invoice, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for i := len(f.s.invoices) - 1; i >= 0; i-- {
		if f.s.invoices[i].SubscriptionID == subscriptionID {
			return f.s.invoices[i], nil
		}
	}
	return nil, model.ErrInvoiceNotFound
}

func (f *fakeInvoices) LatestByExternalID(_ context.Context, externalID string) (*model.Invoice, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for i := len(f.s.invoices) - 1; i >= 0; i-- {
		if f.s.invoices[i].ExternalID != nil && *f.s.invoices[i].ExternalID == externalID {
			return f.s.invoices[i], nil
		}
	}
	return nil, model.ErrInvoiceNotFound
}

func (f *fakeInvoices) Update(_ context.Context, invoice *model.Invoice) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for i, existing := range f.s.invoices {
		if existing.ID == invoice.ID {
			f.s.invoices[i] = invoice
			return nil
		}
	}
	return model.ErrInvoiceNotFound
}

type fakeWebhookEvents struct{ s *memStore }

func (f *fakeWebhookEvents) Insert(_ context.Context, event *model.WebhookEvent) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, existing := range f.s.events {
		if existing.ProcessorID == event.ProcessorID &&
			existing.EventType == event.EventType &&
			existing.EventID == event.EventID {
			return fmt.Errorf("%w: %s/%s", model.ErrDuplicateEvent, event.EventType, event.EventID)
		}
	}
	f.s.events = append(f.s.events, event)
	return nil
}

func (f *fakeWebhookEvents) MarkProcessed(_ context.Context, id uuid.UUID) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, event := range f.s.events {
		if event.ID == id {
			event.Processed = true
			f.s.processed = append(f.s.processed, id)
			return nil
		}
	}
	return model.ErrDuplicateEvent
}

type fakeURLCache struct{ s *memStore }

func (f *fakeURLCache) FindFresh(_ context.Context, typ model.URLCacheType, keyHash string, processorID uuid.UUID, now time.Time) (*model.PaymentURLCache, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, e := range f.s.urlEntries {
		if e.Type == typ && e.KeyHash == keyHash && e.ProcessorID == processorID && e.Fresh(now) {
			return e, nil
		}
	}
	return nil, nil
}

func (f *fakeURLCache) Create(_ context.Context, entry *model.PaymentURLCache) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.urlEntries = append(f.s.urlEntries, entry)
	return nil
}

func (f *fakeURLCache) Invalidate(_ context.Context, typ model.URLCacheType, keyHash string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	kept := f.s.urlEntries[:0]
	for _, e := range f.s.urlEntries {
		if !(e.Type == typ && e.KeyHash == keyHash) {
			kept = append(kept, e)
		}
	}
	f.s.urlEntries = kept
	return nil
}

func (f *fakeURLCache) PurgeExpiring(_ context.Context, threshold time.Time) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var purged int64
	kept := f.s.urlEntries[:0]
	for _, e := range f.s.urlEntries {
		if e.ExpiredAt.Before(threshold) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	f.s.urlEntries = kept
	return purged, nil
}

// fakeNotifier records notifications instead of publishing them.
type fakeNotifier struct {
	mu        sync.Mutex
	payments  []uuid.UUID
	cancels   []uuid.UUID
	alerts    []string
}

func (n *fakeNotifier) PaymentSucceeded(_ context.Context, sub *model.Subscription, _ *model.Invoice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payments = append(n.payments, sub.ID)
	return nil
}

func (n *fakeNotifier) SubscriptionCanceled(_ context.Context, sub *model.Subscription, _ *model.Invoice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancels = append(n.cancels, sub.ID)
	return nil
}

func (n *fakeNotifier) AlertOperators(_ context.Context, _, message string, _ map[string]interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, message)
	return nil
}

// fakeProviderClient counts calls and returns canned links.
type fakeProviderClient struct {
	mu sync.Mutex

	checkoutLink     *provider.PaymentLink
	subscriptionLink *provider.PaymentLink
	changeLink       *provider.PaymentLink
	mintErr          error
	activateErr      error
	deactivateErr    error

	checkoutCalls     int
	subscriptionCalls int
	subscriptionStart *time.Time
	changeCalls       int
	activateCalls     int
	deactivateCalls   int
	approvedOrders    []string
}

func (c *fakeProviderClient) GenerateCheckout(_ context.Context, _ string, _ decimal.Decimal, _, _, _ string) (*provider.PaymentLink, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkoutCalls++
	return c.checkoutLink, c.mintErr
}

func (c *fakeProviderClient) GenerateSubscription(_ context.Context, _, _, _, _ string, startTime *time.Time) (*provider.PaymentLink, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptionCalls++
	c.subscriptionStart = startTime
	return c.subscriptionLink, c.mintErr
}

func (c *fakeProviderClient) ChangeSubscription(_ context.Context, _, _, _, _ string) (*provider.PaymentLink, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changeCalls++
	return c.changeLink, c.mintErr
}

func (c *fakeProviderClient) Activate(_ context.Context, _, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activateCalls++
	return c.activateErr
}

func (c *fakeProviderClient) Deactivate(_ context.Context, _, _ string, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deactivateCalls++
	return c.deactivateErr
}

func (c *fakeProviderClient) ApproveOrder(_ context.Context, externalID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.approvedOrders = append(c.approvedOrders, externalID)
	return nil
}

func (c *fakeProviderClient) Refund(_ context.Context, _ string) error { return nil }

func (c *fakeProviderClient) FetchStatus(_ context.Context, _ string) (*provider.StatusSnapshot, error) {
	return nil, nil
}

func (c *fakeProviderClient) VerifyWebhookSignature(_ context.Context, _ provider.WebhookHeaders, _ string, _ []byte) (bool, error) {
	return true, nil
}

func (c *fakeProviderClient) ParseEvent(_ []byte) (*provider.Event, error) {
	return nil, nil
}
