package service

import (
	"context"

	"github.com/subpay-io/subpay/internal/billing/domain/model"
	"github.com/subpay-io/subpay/internal/platform/logger"
	"github.com/subpay-io/subpay/internal/platform/messaging/kafka"
)

// Notification message types carried on the billing topics.
const (
	NotificationPaymentSucceeded     = "billing.payment.succeeded"
	NotificationSubscriptionCanceled = "billing.subscription.canceled"
	NotificationOperatorAlert        = "billing.operator.alert"
)

// Notifier queues user notifications and operator alerts. Reconciliation
// handlers only enqueue; delivery is someone else's job.
type Notifier interface {
	PaymentSucceeded(ctx context.Context, sub *model.Subscription, inv *model.Invoice) error
	SubscriptionCanceled(ctx context.Context, sub *model.Subscription, inv *model.Invoice) error
	AlertOperators(ctx context.Context, subject, message string, fields map[string]interface{}) error
}

// KafkaNotifier publishes notifications to the billing Kafka topics.
type KafkaNotifier struct {
	publisher         *kafka.Publisher
	notificationTopic string
	alertTopic        string
	logger            logger.Logger
}

// NewKafkaNotifier creates a notifier over an async producer.
func NewKafkaNotifier(publisher *kafka.Publisher, notificationTopic, alertTopic string, log logger.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		publisher:         publisher,
		notificationTopic: notificationTopic,
		alertTopic:        alertTopic,
		logger:            log,
	}
}

func subscriptionPayload(sub *model.Subscription, inv *model.Invoice) map[string]interface{} {
	payload := map[string]interface{}{
		"subscription_id": sub.ID.String(),
		"user_id":         sub.UserID.String(),
		"tenant_id":       sub.TenantID.String(),
		"plan_id":         sub.PlanID.String(),
	}
	if inv != nil {
		payload["invoice_id"] = inv.ID.String()
		payload["amount"] = inv.Amount.StringFixed(2)
		payload["currency"] = inv.Currency
		payload["invoice_status"] = string(inv.Status)
	}
	return payload
}

// PaymentSucceeded queues a payment-success notification for the user.
func (n *KafkaNotifier) PaymentSucceeded(ctx context.Context, sub *model.Subscription, inv *model.Invoice) error {
	return n.publisher.Publish(ctx, n.notificationTopic, &kafka.Message{
		Type:    NotificationPaymentSucceeded,
		Subject: sub.UserID.String(),
		Payload: subscriptionPayload(sub, inv),
	})
}

// SubscriptionCanceled queues a cancellation notification for the user.
func (n *KafkaNotifier) SubscriptionCanceled(ctx context.Context, sub *model.Subscription, inv *model.Invoice) error {
	return n.publisher.Publish(ctx, n.notificationTopic, &kafka.Message{
		Type:    NotificationSubscriptionCanceled,
		Subject: sub.UserID.String(),
		Payload: subscriptionPayload(sub, inv),
	})
}

// AlertOperators queues an alert on the operator topic. This is the one
// path that pages a human rather than the end user.
func (n *KafkaNotifier) AlertOperators(ctx context.Context, subject, message string, fields map[string]interface{}) error {
	payload := map[string]interface{}{"message": message}
	for k, v := range fields {
		payload[k] = v
	}
	return n.publisher.Publish(ctx, n.alertTopic, &kafka.Message{
		Type:    NotificationOperatorAlert,
		Subject: subject,
		Payload: payload,
	})
}
