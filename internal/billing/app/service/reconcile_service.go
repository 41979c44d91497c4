package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/subpay-io/subpay/internal/billing/domain/correlation"
	"github.com/subpay-io/subpay/internal/billing/domain/model"
	"github.com/subpay-io/subpay/internal/billing/domain/provider"
	"github.com/subpay-io/subpay/internal/platform/database"
	"github.com/subpay-io/subpay/internal/platform/logger"
	"github.com/subpay-io/subpay/internal/platform/metrics"
)

// reconcileHandler turns one normalized provider event into local state
// change, inside the delivery's transaction.
type reconcileHandler func(ctx context.Context, repos *Repositories, p *model.Processor, client provider.Client, ev *provider.Event) error

// ReconcileService applies provider webhook deliveries. Each delivery
// runs in one database transaction: the dedup record, invoice mutation
// and subscription mutation all commit together or not at all. The
// provider delivers at least once and possibly out of order; handlers
// branch on persisted status rather than assuming a strict sequence.
type ReconcileService struct {
	runner   TxRunner
	repos    RepoFactory
	notifier Notifier
	metrics  *metrics.Metrics
	logger   logger.Logger

	handlers map[string]reconcileHandler
}

// NewReconcileService creates the reconciliation engine with its
// event-type dispatch table. An explicit finite map, not a bus: exactly
// one consumer per event type.
func NewReconcileService(
	runner TxRunner,
	repos RepoFactory,
	notifier Notifier,
	m *metrics.Metrics,
	log logger.Logger,
) *ReconcileService {
	s := &ReconcileService{
		runner:   runner,
		repos:    repos,
		notifier: notifier,
		metrics:  m,
		logger:   log,
	}
	s.handlers = map[string]reconcileHandler{
		"PAYMENT.SALE.COMPLETED":         s.handlePaymentCompleted,
		"BILLING.SUBSCRIPTION.ACTIVATED": s.handleSubscriptionActivated,
		"BILLING.SUBSCRIPTION.SUSPENDED": s.handleSubscriptionSuspended,
		"BILLING.SUBSCRIPTION.UPDATED":   s.handleSubscriptionUpdated,
		"CHECKOUT.ORDER.APPROVED":        s.handleCheckoutApproved,
		"CHECKOUT.ORDER.COMPLETED":       s.handleCheckoutCompleted,
		"PAYMENT.CAPTURE.REFUNDED":       s.handlePaymentRefunded,
	}
	return s
}

// Apply dispatches one webhook delivery. A duplicate delivery or an
// unrecognized event type is a success no-op; domain errors abort the
// transaction and surface to the HTTP boundary.
func (s *ReconcileService) Apply(ctx context.Context, processor *model.Processor, client provider.Client, ev *provider.Event, rawPayload []byte) error {
	handler, ok := s.handlers[ev.Type]
	if !ok {
		s.logger.Debug("Ignoring unsupported webhook event",
			"event_type", ev.Type, "event_id", ev.EventID)
		s.observe(processor, ev, "ignored", time.Now())
		return nil
	}

	start := time.Now()
	err := s.runner.RunInTx(ctx, func(q database.Querier) error {
		repos := s.repos(q)

		// the dedup insert must commit with the business mutations; a
		// unique violation here is the replay signal
		record := model.NewWebhookEvent(processor.ID, ev.Type, ev.EventID, rawPayload)
		if err := repos.WebhookEvents.Insert(ctx, record); err != nil {
			return err
		}

		if err := handler(ctx, repos, processor, client, ev); err != nil {
			return err
		}

		return repos.WebhookEvents.MarkProcessed(ctx, record.ID)
	})

	switch {
	case err == nil:
		s.observe(processor, ev, "applied", start)
		return nil
	case errors.Is(err, model.ErrDuplicateEvent):
		s.logger.Info("Duplicate webhook delivery, skipping",
			"event_type", ev.Type, "event_id", ev.EventID)
		s.metrics.WebhookDuplicateTotal.WithLabelValues(string(processor.Type), ev.Type).Inc()
		s.observe(processor, ev, "duplicate", start)
		return nil
	default:
		s.observe(processor, ev, "error", start)
		return err
	}
}

func (s *ReconcileService) observe(p *model.Processor, ev *provider.Event, result string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.WebhookEventsTotal.WithLabelValues(string(p.Type), ev.Type, result).Inc()
	s.metrics.WebhookEventDuration.WithLabelValues(string(p.Type), ev.Type).Observe(time.Since(start).Seconds())
}

// resolveSubscription finds the local subscription a delivery refers to,
// via the correlation token when present, otherwise via the provider's
// external id.
func resolveSubscription(ctx context.Context, repos *Repositories, ev *provider.Event) (*model.Subscription, error) {
	if ev.CorrelationID != "" {
		_, id, err := correlation.Decode(ev.CorrelationID)
		if err != nil {
			return nil, err
		}
		return repos.Subscriptions.FindByID(ctx, id)
	}
	if ev.ExternalID != "" {
		return repos.Subscriptions.FindByExternalID(ctx, ev.ExternalID)
	}
	return nil, fmt.Errorf("%w: event carries neither correlation nor external id", model.ErrSubscriptionNotFound)
}

func eventTime(t *time.Time) time.Time {
	if t != nil {
		return *t
	}
	return time.Now()
}

func eventAmount(ev *provider.Event, fallback decimal.Decimal) (decimal.Decimal, error) {
	if ev.Amount == "" {
		return fallback, nil
	}
	return model.ParseAmount(ev.Amount)
}

// handlePaymentCompleted applies a successful recurring charge: the
// current subscription row is finished at the charge timestamp and a new
// invoice plus a new subscription row continue the chain, honoring any
// scheduled plan switch. Idempotency comes from the dedup store, not
// from re-checking inside.
func (s *ReconcileService) handlePaymentCompleted(ctx context.Context, repos *Repositories, p *model.Processor, _ provider.Client, ev *provider.Event) error {
	inv, err := repos.Invoices.LatestByExternalID(ctx, ev.ExternalID)
	if err != nil {
		return fmt.Errorf("%w: no invoice for external id %q", model.ErrInvoiceNotFound, ev.ExternalID)
	}

	sub, err := repos.Subscriptions.FindByID(ctx, inv.SubscriptionID)
	if err != nil {
		return err
	}

	// apply a pending plan switch at the renewal boundary
	nextPlanID := sub.PlanID
	if sub.NextBillingPlanID != nil {
		nextPlanID = *sub.NextBillingPlanID
	}
	plan, err := repos.Plans.FindByID(ctx, nextPlanID)
	if err != nil {
		return err
	}

	chargedAt := eventTime(ev.StartAt)
	if err := sub.Finish(chargedAt); err != nil {
		return err
	}
	if err := repos.Subscriptions.Update(ctx, sub); err != nil {
		return err
	}

	newSub := model.NewSubscription(uuid.New(), sub.UserID, sub.TenantID, plan.ID, sub.ProcessorID)
	if sub.ExternalID != nil {
		if err := newSub.SetExternalID(*sub.ExternalID); err != nil {
			return err
		}
	}
	nextBilling := chargedAt.Add(plan.TermDuration())
	if err := newSub.Activate(chargedAt, &nextBilling); err != nil {
		return err
	}
	if err := repos.Subscriptions.Create(ctx, newSub); err != nil {
		return err
	}

	amount, err := eventAmount(ev, plan.Price)
	if err != nil {
		return fmt.Errorf("%w: bad amount %q", model.ErrValidation, ev.Amount)
	}
	newInv := model.NewInvoice(newSub.ID, newSub.UserID, p.ID, amount, ev.Currency)
	newInv.MarkPaid(amount, ev.Currency)
	newInv.SetExternalID(ev.ExternalID)
	if err := repos.Invoices.Create(ctx, newInv); err != nil {
		return err
	}

	s.logger.Info("Subscription renewed",
		"subscription_id", sub.ID, "new_subscription_id", newSub.ID,
		"plan_id", plan.ID, "amount", amount.StringFixed(2))
	return nil
}

// handleSubscriptionActivated covers the two legitimate causes of an
// activation notice: first activation of a pending purchase, or the
// resumption of a suspended subscription. Anything else means the event
// arrived against a state that makes it invalid.
func (s *ReconcileService) handleSubscriptionActivated(ctx context.Context, repos *Repositories, p *model.Processor, _ provider.Client, ev *provider.Event) error {
	sub, err := resolveSubscription(ctx, repos, ev)
	if err != nil {
		return err
	}
	inv, err := repos.Invoices.LatestForSubscription(ctx, sub.ID)
	if err != nil {
		return err
	}

	switch {
	case inv.Status == model.InvoiceStatusPending:
		amount, err := eventAmount(ev, inv.Amount)
		if err != nil {
			return fmt.Errorf("%w: bad amount %q", model.ErrValidation, ev.Amount)
		}
		inv.MarkPaid(amount, ev.Currency)
		inv.SetExternalID(ev.ExternalID)
		if err := repos.Invoices.Update(ctx, inv); err != nil {
			return err
		}

		if err := sub.SetExternalID(ev.ExternalID); err != nil {
			return err
		}
		if err := sub.Activate(eventTime(ev.StartAt), ev.NextBillingAt); err != nil {
			return err
		}
		if err := repos.Subscriptions.Update(ctx, sub); err != nil {
			return err
		}

		// the approval URL is spent once the purchase confirms; a later
		// subscribe attempt must mint a fresh one
		subscribeKey := model.CacheKey("subscribe",
			sub.PlanID.String(), sub.ProcessorID.String(), sub.UserID.String())
		if err := repos.URLCache.Invalidate(ctx, model.URLCacheSubscribe, model.HashCacheKey(subscribeKey)); err != nil {
			return err
		}

		if err := s.notifier.PaymentSucceeded(ctx, sub, inv); err != nil {
			s.logger.Warn("Failed to queue payment notification",
				"subscription_id", sub.ID, "error", err)
		}
		return nil

	case inv.Status == model.InvoiceStatusSuccess && sub.IsSuspended():
		sub.Unsuspend()
		return repos.Subscriptions.Update(ctx, sub)

	default:
		return fmt.Errorf("%w: activation against invoice status %q", model.ErrPaymentWrongStatus, inv.Status)
	}
}

// handleSubscriptionSuspended marks the subscription suspended and queues
// a cancellation notification, with a best-effort invoice for context.
func (s *ReconcileService) handleSubscriptionSuspended(ctx context.Context, repos *Repositories, _ *model.Processor, _ provider.Client, ev *provider.Event) error {
	sub, err := resolveSubscription(ctx, repos, ev)
	if err != nil {
		return err
	}

	sub.Suspend(eventTime(ev.SuspendedAt))
	if err := repos.Subscriptions.Update(ctx, sub); err != nil {
		return err
	}

	inv, err := repos.Invoices.LatestForSubscription(ctx, sub.ID)
	if err != nil {
		// no invoice yet, notify with subscription context alone
		inv = nil
	}
	if err := s.notifier.SubscriptionCanceled(ctx, sub, inv); err != nil {
		s.logger.Warn("Failed to queue cancellation notification",
			"subscription_id", sub.ID, "error", err)
	}
	return nil
}

// handleSubscriptionUpdated schedules a plan switch when the remote plan
// id changed. The switch takes effect at the next renewal.
func (s *ReconcileService) handleSubscriptionUpdated(ctx context.Context, repos *Repositories, _ *model.Processor, _ provider.Client, ev *provider.Event) error {
	sub, err := resolveSubscription(ctx, repos, ev)
	if err != nil {
		return err
	}
	if ev.PlanRemoteID == "" {
		return nil
	}

	plan, err := repos.Plans.FindByRemoteID(ctx, ev.PlanRemoteID)
	if err != nil {
		return fmt.Errorf("%w: remote plan %q is not mapped", model.ErrPlanNotFound, ev.PlanRemoteID)
	}

	if plan.ID == sub.PlanID {
		return nil
	}
	sub.ScheduleNextBillingPlan(plan.ID)
	if err := repos.Subscriptions.Update(ctx, sub); err != nil {
		return err
	}

	// the revise link for this switch is consumed; invalidate so a
	// different switch later does not replay it
	changeKey := model.CacheKey("changeplan",
		plan.ID.String(), sub.ProcessorID.String(), sub.UserID.String())
	return repos.URLCache.Invalidate(ctx, model.URLCacheChangePlan, model.HashCacheKey(changeKey))
}

// handleCheckoutApproved runs when the buyer approved a one-time order
// but capture has not happened. The paid amount is checked against the
// plan price before the capture is triggered; a short payment is dropped
// with a warning rather than captured.
func (s *ReconcileService) handleCheckoutApproved(ctx context.Context, repos *Repositories, _ *model.Processor, client provider.Client, ev *provider.Event) error {
	sub, err := resolveSubscription(ctx, repos, ev)
	if err != nil {
		return err
	}
	plan, err := repos.Plans.FindByID(ctx, sub.PlanID)
	if err != nil {
		return err
	}

	amount, err := eventAmount(ev, decimal.Zero)
	if err != nil {
		return fmt.Errorf("%w: bad amount %q", model.ErrValidation, ev.Amount)
	}
	if amount.LessThan(plan.Price) {
		s.logger.Warn("Approved order amount is below plan price, not capturing",
			"subscription_id", sub.ID, "amount", amount.StringFixed(2),
			"plan_price", plan.Price.StringFixed(2))
		return nil
	}

	if err := sub.SetExternalID(ev.ExternalID); err != nil {
		return err
	}
	if err := repos.Subscriptions.Update(ctx, sub); err != nil {
		return err
	}

	if err := client.ApproveOrder(ctx, ev.ExternalID); err != nil {
		return err
	}
	return nil
}

// handleCheckoutCompleted finalizes a captured one-time purchase: any
// prior subscription for the same user and tenant is finished and this
// one gets a fixed term from the plan's period arithmetic.
func (s *ReconcileService) handleCheckoutCompleted(ctx context.Context, repos *Repositories, _ *model.Processor, _ provider.Client, ev *provider.Event) error {
	sub, err := resolveSubscription(ctx, repos, ev)
	if err != nil {
		return err
	}
	inv, err := repos.Invoices.LatestForSubscription(ctx, sub.ID)
	if err != nil {
		return err
	}

	// replay guard for captures delivered more than once
	if inv.Status != model.InvoiceStatusPending {
		s.logger.Info("Checkout completion replayed, skipping",
			"subscription_id", sub.ID, "invoice_status", inv.Status)
		return nil
	}

	plan, err := repos.Plans.FindByID(ctx, sub.PlanID)
	if err != nil {
		return err
	}
	startAt := eventTime(ev.StartAt)

	prior, err := repos.Subscriptions.LatestForUserAndTenant(ctx, sub.UserID, sub.TenantID, false)
	if err == nil && prior != nil && prior.ID != sub.ID {
		if err := prior.Finish(startAt); err != nil {
			return err
		}
		if err := repos.Subscriptions.Update(ctx, prior); err != nil {
			return err
		}
	}

	if err := sub.SetExternalID(ev.ExternalID); err != nil {
		return err
	}
	if err := sub.Activate(startAt, nil); err != nil {
		return err
	}
	endAt := startAt.Add(plan.TermDuration())
	sub.EndAt = &endAt
	if err := repos.Subscriptions.Update(ctx, sub); err != nil {
		return err
	}

	amount, err := eventAmount(ev, plan.Price)
	if err != nil {
		return fmt.Errorf("%w: bad amount %q", model.ErrValidation, ev.Amount)
	}
	inv.MarkPaid(amount, ev.Currency)
	inv.SetExternalID(ev.ExternalID)
	if err := repos.Invoices.Update(ctx, inv); err != nil {
		return err
	}

	if err := s.notifier.PaymentSucceeded(ctx, sub, inv); err != nil {
		s.logger.Warn("Failed to queue payment notification",
			"subscription_id", sub.ID, "error", err)
	}
	return nil
}

// handlePaymentRefunded terminates the subscription immediately, flags
// the invoice and pages operators. Refunds are rare enough that a human
// should look at every one.
func (s *ReconcileService) handlePaymentRefunded(ctx context.Context, repos *Repositories, _ *model.Processor, _ provider.Client, ev *provider.Event) error {
	var (
		sub *model.Subscription
		inv *model.Invoice
		err error
	)
	if ev.CorrelationID != "" {
		sub, err = resolveSubscription(ctx, repos, ev)
		if err != nil {
			return err
		}
		inv, err = repos.Invoices.LatestForSubscription(ctx, sub.ID)
		if err != nil {
			return err
		}
	} else {
		inv, err = repos.Invoices.LatestByExternalID(ctx, ev.ExternalID)
		if err != nil {
			return err
		}
		sub, err = repos.Subscriptions.FindByID(ctx, inv.SubscriptionID)
		if err != nil {
			return err
		}
	}

	if err := sub.Finish(time.Now()); err != nil {
		return err
	}
	if err := repos.Subscriptions.Update(ctx, sub); err != nil {
		return err
	}

	inv.MarkRefunded()
	if err := repos.Invoices.Update(ctx, inv); err != nil {
		return err
	}

	if err := s.notifier.AlertOperators(ctx, sub.UserID.String(),
		"payment refunded, subscription terminated", map[string]interface{}{
			"subscription_id": sub.ID.String(),
			"invoice_id":      inv.ID.String(),
			"amount":          inv.Amount.StringFixed(2),
			"currency":        inv.Currency,
		}); err != nil {
		s.logger.Warn("Failed to queue operator alert",
			"subscription_id", sub.ID, "error", err)
	}
	return nil
}
