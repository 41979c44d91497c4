package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/subpay-io/subpay/internal/billing/domain/correlation"
	"github.com/subpay-io/subpay/internal/billing/domain/model"
	"github.com/subpay-io/subpay/internal/billing/domain/provider"
	"github.com/subpay-io/subpay/internal/platform/cache"
	"github.com/subpay-io/subpay/internal/platform/config"
	"github.com/subpay-io/subpay/internal/platform/database"
	"github.com/subpay-io/subpay/internal/platform/logger"
	"github.com/subpay-io/subpay/internal/platform/metrics"
	"github.com/subpay-io/subpay/pkg/validators"
)

// Rejection is a precondition failure on a subscriber operation. Only the
// short human-readable reason crosses the API boundary; internal detail
// stays in logs.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string {
	return r.Reason
}

func reject(reason string) error {
	return &Rejection{Reason: reason}
}

// SubscriptionService exposes the subscriber-facing operations consumed
// by the routing layer.
type SubscriptionService struct {
	repos     *Repositories
	runner    TxRunner
	factory   RepoFactory
	providers ProviderFactory
	locker    cache.KeyLocker
	metrics   *metrics.Metrics
	logger    logger.Logger
	cfg       config.BillingConfig
}

// NewSubscriptionService creates the subscriber operations service.
func NewSubscriptionService(
	repos *Repositories,
	runner TxRunner,
	factory RepoFactory,
	providers ProviderFactory,
	locker cache.KeyLocker,
	m *metrics.Metrics,
	log logger.Logger,
	cfg config.BillingConfig,
) *SubscriptionService {
	return &SubscriptionService{
		repos:     repos,
		runner:    runner,
		factory:   factory,
		providers: providers,
		locker:    locker,
		metrics:   m,
		logger:    log,
		cfg:       cfg,
	}
}

// Profile is the subscriber's current view across tenants.
type Profile struct {
	Subscriptions []*model.Subscription
}

// GetProfile returns the user's subscriptions.
func (s *SubscriptionService) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	subs, err := s.repos.Subscriptions.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return &Profile{Subscriptions: subs}, nil
}

// SubscribeCommand requests a new subscription checkout.
type SubscribeCommand struct {
	UserID          uuid.UUID
	TenantID        uuid.UUID
	PlanID          uuid.UUID
	PaymentMethodID uuid.UUID
	ReturnURL       string
	CancelURL       string
}

func (s *SubscriptionService) checkRedirects(urls ...string) error {
	for _, u := range urls {
		if u == "" {
			continue
		}
		if !validators.AllowedRedirect(u, s.cfg.AllowedRedirectHosts) {
			return reject("Redirect URL not allowed")
		}
	}
	return nil
}

// getOrCreateURL runs the check-cache, call-provider, populate-cache
// sequence under a per-key lock so two concurrent requests produce one
// provider-side object. The mint callback must complete every side
// effect the cached URL depends on (provider call and local rows): the
// entry is written only after mint succeeds, so a failed attempt leaves
// nothing for a retry to hit.
func (s *SubscriptionService) getOrCreateURL(ctx context.Context, typ model.URLCacheType, key string, processorID uuid.UUID, mint func() (string, error)) (string, bool, error) {
	unlock, err := s.locker.Lock(ctx, model.HashCacheKey(key))
	if err != nil {
		return "", false, fmt.Errorf("acquire url lock: %w", err)
	}
	defer unlock()

	now := time.Now()
	entry, err := s.repos.URLCache.FindFresh(ctx, typ, model.HashCacheKey(key), processorID, now)
	if err == nil && entry != nil {
		if s.metrics != nil {
			s.metrics.URLCacheHits.WithLabelValues(string(typ)).Inc()
		}
		return entry.URL, true, nil
	}
	if s.metrics != nil {
		s.metrics.URLCacheMisses.WithLabelValues(string(typ)).Inc()
	}

	url, err := mint()
	if err != nil {
		return "", false, err
	}

	cacheEntry := model.NewPaymentURLCache(typ, key, processorID, url, now.Add(s.cfg.PaymentURLTTL))
	if err := s.repos.URLCache.Create(ctx, cacheEntry); err != nil {
		s.logger.Warn("Failed to cache payment url", "type", typ, "error", err)
	}
	return url, false, nil
}

// softProviderError logs a 422-class provider response and swallows it;
// the remote object usually already reflects the desired state.
func (s *SubscriptionService) softProviderError(err error, op string, externalID string) error {
	var pErr *provider.Error
	if errors.As(err, &pErr) && pErr.Soft() {
		s.logger.Warn("Provider reported conflicting state, treating as applied",
			"operation", op, "external_id", externalID, "status", pErr.StatusCode)
		return nil
	}
	return err
}

// InitiateSubscription starts a checkout or billing-subscription flow and
// returns the provider approval URL. A retried request inside the cache
// TTL receives the same URL without a second provider call.
func (s *SubscriptionService) InitiateSubscription(ctx context.Context, cmd SubscribeCommand) (string, error) {
	if err := s.checkRedirects(cmd.ReturnURL, cmd.CancelURL); err != nil {
		return "", err
	}
	cancelURL := cmd.CancelURL
	if cancelURL == "" {
		cancelURL = cmd.ReturnURL
	}

	plan, err := s.repos.Plans.FindEnabled(ctx, cmd.PlanID, cmd.TenantID)
	if err != nil {
		return "", reject("Plan not found")
	}

	existing, err := s.repos.Subscriptions.LatestForUserAndTenant(ctx, cmd.UserID, cmd.TenantID, true)
	if err != nil && !errors.Is(err, model.ErrSubscriptionNotFound) {
		return "", fmt.Errorf("lookup subscription: %w", err)
	}
	if existing != nil {
		switch {
		case existing.IsActive(time.Now()):
			return "", reject("User has active subscription")
		case existing.IsSuspended():
			return "", reject("Suspended subscription could be only re-subscribed")
		}
	}

	link, err := s.repos.PlanLinks.Find(ctx, plan.ID, cmd.PaymentMethodID)
	if err != nil {
		return "", reject("Payment method not found")
	}
	if plan.IsRecurring && link.ExternalID == "" {
		return "", reject("Payment method not found")
	}

	processor, err := s.repos.Processors.FindByID(ctx, link.ProcessorID)
	if err != nil || !processor.IsEnabled {
		return "", reject("Payment method not found")
	}

	client, err := s.providers(processor)
	if err != nil {
		return "", reject("Payment method not found")
	}

	token, subscriptionID := correlation.Encode(correlation.KindSubscription)

	cacheKey := model.CacheKey("subscribe",
		plan.ID.String(), processor.ID.String(), cmd.UserID.String())
	url, cached, err := s.getOrCreateURL(ctx, model.URLCacheSubscribe, cacheKey, processor.ID, func() (string, error) {
		var paymentLink *provider.PaymentLink
		var mintErr error
		if plan.IsRecurring {
			paymentLink, mintErr = client.GenerateSubscription(ctx, token, link.ExternalID, cmd.ReturnURL, cancelURL, nil)
		} else {
			paymentLink, mintErr = client.GenerateCheckout(ctx, token, plan.Price, s.cfg.DefaultCurrency, cmd.ReturnURL, cancelURL)
		}
		if mintErr != nil {
			s.logger.Error("Provider refused to mint payment link",
				"plan_id", plan.ID, "processor_id", processor.ID, "error", mintErr)
			return "", reject("No payment link")
		}
		if paymentLink == nil || paymentLink.URL == "" {
			return "", reject("No payment link")
		}

		// the pending rows must exist before the URL becomes cacheable;
		// otherwise a failed commit would leave a retried request holding
		// an approval link whose correlation token resolves to nothing
		txErr := s.runner.RunInTx(ctx, func(q database.Querier) error {
			repos := s.factory(q)
			if existing != nil && existing.IsNull() {
				// the stale unconfirmed row would shadow the new one in
				// latest-row lookups
				if err := repos.Subscriptions.Delete(ctx, existing.ID); err != nil {
					return err
				}
			}
			sub := model.NewSubscription(subscriptionID, cmd.UserID, cmd.TenantID, plan.ID, processor.ID)
			if err := repos.Subscriptions.Create(ctx, sub); err != nil {
				return err
			}
			inv := model.NewInvoice(sub.ID, cmd.UserID, processor.ID, plan.Price, s.cfg.DefaultCurrency)
			return repos.Invoices.Create(ctx, inv)
		})
		if txErr != nil {
			return "", fmt.Errorf("create pending subscription: %w", txErr)
		}
		return paymentLink.URL, nil
	})
	if err != nil {
		return "", err
	}
	if cached {
		// a previous request already created the local rows for this URL
		return url, nil
	}

	s.logger.Info("Subscription checkout initiated",
		"subscription_id", subscriptionID, "plan_id", plan.ID, "user_id", cmd.UserID)
	return url, nil
}

// loadCurrent fetches the user's latest confirmed subscription and
// applies the shared preconditions of resubscribe/unsubscribe/changeplan.
func (s *SubscriptionService) loadCurrent(ctx context.Context, userID, tenantID uuid.UUID) (*model.Subscription, *model.Plan, *model.Processor, error) {
	sub, err := s.repos.Subscriptions.LatestForUserAndTenant(ctx, userID, tenantID, false)
	if err != nil || sub == nil {
		return nil, nil, nil, reject("Subscription not found")
	}

	plan, err := s.repos.Plans.FindByID(ctx, sub.PlanID)
	if err != nil {
		return nil, nil, nil, reject("Subscription not found")
	}
	if !plan.IsRecurring {
		return nil, nil, nil, reject("Subscription on non recurring plan")
	}
	if sub.ExternalID == nil {
		return nil, nil, nil, reject("Subscription without payment could not be changed, canceled or re-subscribed")
	}

	processor, err := s.repos.Processors.FindByID(ctx, sub.ProcessorID)
	if err != nil {
		return nil, nil, nil, reject("Payment method not found")
	}
	return sub, plan, processor, nil
}

// Resubscribe resumes a suspended recurring subscription at the provider.
// The local state changes only when the provider's activation notice
// arrives.
func (s *SubscriptionService) Resubscribe(ctx context.Context, userID, tenantID uuid.UUID, reason string) error {
	sub, _, processor, err := s.loadCurrent(ctx, userID, tenantID)
	if err != nil {
		return err
	}
	if !sub.IsSuspended() {
		return reject("Subscription is active")
	}

	client, err := s.providers(processor)
	if err != nil {
		return reject("Payment method not found")
	}
	if err := client.Activate(ctx, *sub.ExternalID, reason); err != nil {
		if err := s.softProviderError(err, "activate", *sub.ExternalID); err != nil {
			s.logger.Error("Provider activation failed",
				"subscription_id", sub.ID, "error", err)
			return reject("Subscription could not be re-subscribed")
		}
	}
	return nil
}

// Unsubscribe suspends the user's recurring subscription at the provider.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, userID, tenantID uuid.UUID, reason string) error {
	sub, _, processor, err := s.loadCurrent(ctx, userID, tenantID)
	if err != nil {
		return err
	}
	if !sub.IsActive(time.Now()) || sub.NextBillingAt == nil {
		return reject("Subscription has been unsubscribed")
	}

	client, err := s.providers(processor)
	if err != nil {
		return reject("Payment method not found")
	}
	if err := client.Deactivate(ctx, *sub.ExternalID, reason, true); err != nil {
		if err := s.softProviderError(err, "deactivate", *sub.ExternalID); err != nil {
			s.logger.Error("Provider deactivation failed",
				"subscription_id", sub.ID, "error", err)
			return reject("Subscription could not be unsubscribed")
		}
	}
	return nil
}

// ChangePlanCommand requests a plan switch effective at next renewal.
type ChangePlanCommand struct {
	UserID    uuid.UUID
	TenantID  uuid.UUID
	ToPlanID  uuid.UUID
	ReturnURL string
	CancelURL string
}

// ChangePlan revises the remote subscription onto a different plan and
// returns the provider approval URL for the price change.
func (s *SubscriptionService) ChangePlan(ctx context.Context, cmd ChangePlanCommand) (string, error) {
	if err := s.checkRedirects(cmd.ReturnURL, cmd.CancelURL); err != nil {
		return "", err
	}
	cancelURL := cmd.CancelURL
	if cancelURL == "" {
		cancelURL = cmd.ReturnURL
	}

	sub, _, processor, err := s.loadCurrent(ctx, cmd.UserID, cmd.TenantID)
	if err != nil {
		return "", err
	}
	if !sub.IsActive(time.Now()) || sub.NextBillingAt == nil {
		return "", reject("Subscription has been unsubscribed")
	}

	nextPlan, err := s.repos.Plans.FindByID(ctx, cmd.ToPlanID)
	if err != nil {
		return "", reject("Plan not found")
	}
	if nextPlan.ID == sub.PlanID ||
		(sub.NextBillingPlanID != nil && nextPlan.ID == *sub.NextBillingPlanID) {
		return "", reject("Switch could be only on a different plan")
	}

	link, err := s.repos.PlanLinks.Find(ctx, nextPlan.ID, processor.ID)
	if err != nil || link.ExternalID == "" {
		return "", reject("Payment method for new plan not found")
	}

	client, err := s.providers(processor)
	if err != nil {
		return "", reject("Payment method not found")
	}

	cacheKey := model.CacheKey("changeplan",
		nextPlan.ID.String(), processor.ID.String(), cmd.UserID.String())
	url, _, err := s.getOrCreateURL(ctx, model.URLCacheChangePlan, cacheKey, processor.ID, func() (string, error) {
		paymentLink, mintErr := client.ChangeSubscription(ctx, *sub.ExternalID, link.ExternalID, cmd.ReturnURL, cancelURL)
		if mintErr != nil {
			s.logger.Error("Provider refused to revise subscription",
				"subscription_id", sub.ID, "to_plan_id", nextPlan.ID, "error", mintErr)
			return "", reject("Subscription could not be changed")
		}
		if paymentLink == nil || paymentLink.URL == "" {
			return "", reject("Subscription could not be changed")
		}
		return paymentLink.URL, nil
	})
	if err != nil {
		return "", err
	}
	return url, nil
}
