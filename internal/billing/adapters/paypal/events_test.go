package paypal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subpay-io/subpay/internal/platform/logger"
)

func testClient() *Client {
	return New("client-id", "secret", true, logger.NewNop())
}

func TestParseEventSubscriptionActivated(t *testing.T) {
	payload := []byte(`{
		"id": "WH-1",
		"event_type": "BILLING.SUBSCRIPTION.ACTIVATED",
		"resource": {
			"id": "I-SUB1",
			"plan_id": "P-PLAN1",
			"custom_id": "sub:da8517a177134aeb8f3f4ef5e2ed44bc",
			"start_time": "2026-08-01T10:00:00Z",
			"billing_info": {
				"next_billing_time": "2026-08-31T10:00:00Z"
			}
		}
	}`)

	ev, err := testClient().ParseEvent(payload)
	require.NoError(t, err)

	assert.Equal(t, "WH-1", ev.EventID)
	assert.Equal(t, EventSubscriptionActivated, ev.Type)
	assert.Equal(t, "I-SUB1", ev.ExternalID)
	assert.Equal(t, "P-PLAN1", ev.PlanRemoteID)
	assert.Equal(t, "sub:da8517a177134aeb8f3f4ef5e2ed44bc", ev.CorrelationID)
	require.NotNil(t, ev.StartAt)
	require.NotNil(t, ev.NextBillingAt)
	assert.Equal(t, 30*24.0, ev.NextBillingAt.Sub(*ev.StartAt).Hours())
}

func TestParseEventPaymentSaleCompleted(t *testing.T) {
	payload := []byte(`{
		"id": "WH-2",
		"event_type": "PAYMENT.SALE.COMPLETED",
		"resource": {
			"id": "SALE-1",
			"billing_agreement_id": "I-SUB1",
			"create_time": "2026-08-31T10:00:05Z",
			"amount": {"total": "9.99", "currency": "USD"}
		}
	}`)

	ev, err := testClient().ParseEvent(payload)
	require.NoError(t, err)

	assert.Equal(t, EventPaymentSaleCompleted, ev.Type)
	assert.Equal(t, "I-SUB1", ev.ExternalID)
	assert.Equal(t, "9.99", ev.Amount)
	assert.Equal(t, "USD", ev.Currency)
}

func TestParseEventCheckoutOrderApproved(t *testing.T) {
	payload := []byte(`{
		"id": "WH-3",
		"event_type": "CHECKOUT.ORDER.APPROVED",
		"resource": {
			"id": "ORDER-1",
			"purchase_units": [{
				"custom_id": "planup:da8517a177134aeb8f3f4ef5e2ed44bc",
				"amount": {"value": "19.99", "currency_code": "EUR"}
			}]
		}
	}`)

	ev, err := testClient().ParseEvent(payload)
	require.NoError(t, err)

	assert.Equal(t, "ORDER-1", ev.ExternalID)
	assert.Equal(t, "planup:da8517a177134aeb8f3f4ef5e2ed44bc", ev.CorrelationID)
	assert.Equal(t, "19.99", ev.Amount)
	assert.Equal(t, "EUR", ev.Currency)
}

func TestParseEventUnknownTypePassesThrough(t *testing.T) {
	payload := []byte(`{
		"id": "WH-4",
		"event_type": "CUSTOMER.DISPUTE.CREATED",
		"resource": {"id": "D-1"}
	}`)

	ev, err := testClient().ParseEvent(payload)
	require.NoError(t, err)

	assert.Equal(t, "CUSTOMER.DISPUTE.CREATED", ev.Type)
	assert.Empty(t, ev.ExternalID)
}

func TestParseEventMalformed(t *testing.T) {
	_, err := testClient().ParseEvent([]byte(`not json`))
	assert.Error(t, err)

	_, err = testClient().ParseEvent([]byte(`{"id": "WH-5", "resource": {}}`))
	assert.Error(t, err)
}
