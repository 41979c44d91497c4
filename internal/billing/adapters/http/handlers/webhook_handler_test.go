package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subpay-io/subpay/internal/billing/app/service"
	"github.com/subpay-io/subpay/internal/billing/domain/model"
	"github.com/subpay-io/subpay/internal/billing/domain/provider"
	"github.com/subpay-io/subpay/internal/platform/logger"
	"github.com/subpay-io/subpay/internal/platform/metrics"
)

type stubProcessors struct {
	processor *model.Processor
}

func (s *stubProcessors) Create(context.Context, *model.Processor) error { return nil }

func (s *stubProcessors) FindByID(_ context.Context, id uuid.UUID) (*model.Processor, error) {
	if s.processor != nil && s.processor.ID == id {
		return s.processor, nil
	}
	return nil, model.ErrProcessorNotFound
}

func (s *stubProcessors) FindByWebhookSecret(_ context.Context, secret string) (*model.Processor, error) {
	if s.processor != nil && s.processor.WebhookSecret == secret {
		return s.processor, nil
	}
	return nil, model.ErrProcessorNotFound
}

func (s *stubProcessors) ListEnabled(_ context.Context, tenantID uuid.UUID) ([]*model.Processor, error) {
	if s.processor != nil && s.processor.IsEnabled && s.processor.TenantID == tenantID {
		return []*model.Processor{s.processor}, nil
	}
	return nil, nil
}

// stubClient answers signature checks and parsing with canned values.
type stubClient struct {
	verified  bool
	verifyErr error
	event     *provider.Event
	parseErr  error
}

func (c *stubClient) GenerateCheckout(context.Context, string, decimal.Decimal, string, string, string) (*provider.PaymentLink, error) {
	return nil, nil
}

func (c *stubClient) GenerateSubscription(context.Context, string, string, string, string, *time.Time) (*provider.PaymentLink, error) {
	return nil, nil
}

func (c *stubClient) ChangeSubscription(context.Context, string, string, string, string) (*provider.PaymentLink, error) {
	return nil, nil
}

func (c *stubClient) Activate(context.Context, string, string) error         { return nil }
func (c *stubClient) Deactivate(context.Context, string, string, bool) error { return nil }
func (c *stubClient) ApproveOrder(context.Context, string) error             { return nil }
func (c *stubClient) Refund(context.Context, string) error                   { return nil }

func (c *stubClient) FetchStatus(context.Context, string) (*provider.StatusSnapshot, error) {
	return nil, nil
}

func (c *stubClient) VerifyWebhookSignature(context.Context, provider.WebhookHeaders, string, []byte) (bool, error) {
	return c.verified, c.verifyErr
}

func (c *stubClient) ParseEvent([]byte) (*provider.Event, error) {
	return c.event, c.parseErr
}

func newWebhookRouter(t *testing.T, processor *model.Processor, client *stubClient) *mux.Router {
	t.Helper()

	repos := &service.Repositories{Processors: &stubProcessors{processor: processor}}
	providers := func(*model.Processor) (provider.Client, error) { return client, nil }
	reconcile := service.NewReconcileService(nil, nil, nil, metrics.New("test"), logger.NewNop())

	router := mux.NewRouter()
	NewWebhookHandler(repos, providers, reconcile, logger.NewNop()).RegisterRoutes(router)
	return router
}

func testProcessor(t *testing.T) *model.Processor {
	t.Helper()
	processor, err := model.NewProcessor(uuid.New(), model.ProcessorPayPal, "client-id", "secret")
	require.NoError(t, err)
	processor.IsEnabled = true
	return processor
}

func postWebhook(router *mux.Router, secret string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/"+secret+"/paypal", strings.NewReader(`{}`))
	req.Header.Set("PAYPAL-TRANSMISSION-ID", "t-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestWebhookUnknownSecretRejected(t *testing.T) {
	processor := testProcessor(t)
	router := newWebhookRouter(t, processor, &stubClient{verified: true})

	rec := postWebhook(router, "guessed-secret")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"message":"Processor not set"}`, rec.Body.String())
}

func TestWebhookDisabledProcessorRejected(t *testing.T) {
	processor := testProcessor(t)
	processor.IsEnabled = false
	router := newWebhookRouter(t, processor, &stubClient{verified: true})

	rec := postWebhook(router, processor.WebhookSecret)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookBadSignatureRejected(t *testing.T) {
	processor := testProcessor(t)
	router := newWebhookRouter(t, processor, &stubClient{verified: false})

	rec := postWebhook(router, processor.WebhookSecret)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"message":"Verification failed"}`, rec.Body.String())
}

func TestWebhookUnsupportedEventAccepted(t *testing.T) {
	processor := testProcessor(t)
	client := &stubClient{
		verified: true,
		event:    &provider.Event{EventID: "WH-1", Type: "CUSTOMER.DISPUTE.CREATED"},
	}
	router := newWebhookRouter(t, processor, client)

	rec := postWebhook(router, processor.WebhookSecret)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}
