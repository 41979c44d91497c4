package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/subpay-io/subpay/internal/billing/app/service"
	"github.com/subpay-io/subpay/internal/billing/domain/model"
	"github.com/subpay-io/subpay/internal/billing/domain/provider"
	"github.com/subpay-io/subpay/internal/platform/logger"
	"github.com/subpay-io/subpay/internal/platform/response"
)

// maxWebhookBody caps the payload we are willing to read from a
// provider callback.
const maxWebhookBody = 1 << 20

// WebhookHandler receives provider callbacks on the unguessable
// per-processor path and feeds them to the reconciliation service.
type WebhookHandler struct {
	repos     *service.Repositories
	providers service.ProviderFactory
	reconcile *service.ReconcileService
	logger    logger.Logger
}

func NewWebhookHandler(repos *service.Repositories, providers service.ProviderFactory, reconcile *service.ReconcileService, log logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		repos:     repos,
		providers: providers,
		reconcile: reconcile,
		logger:    log,
	}
}

func (h *WebhookHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/webhooks/{webhook_secret}/{provider}", h.Receive).Methods("POST")
}

// Receive verifies and applies one provider notification. The provider
// retries on 5xx, so only unexpected failures return one; everything
// the caller can do nothing about is a 400 with a short message.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)

	processor, err := h.repos.Processors.FindByWebhookSecret(ctx, vars["webhook_secret"])
	if err != nil {
		response.Message(w, http.StatusBadRequest, "Processor not set")
		return
	}
	if string(processor.Type) != vars["provider"] || !processor.IsEnabled {
		response.Message(w, http.StatusBadRequest, "Processor not set")
		return
	}

	client, err := h.providers(processor)
	if err != nil {
		response.Message(w, http.StatusBadRequest, "Processor not set")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		response.Message(w, http.StatusBadRequest, "Malformed payload")
		return
	}

	headers := provider.WebhookHeaders{
		AuthAlgo:         r.Header.Get("PAYPAL-AUTH-ALGO"),
		CertURL:          r.Header.Get("PAYPAL-CERT-URL"),
		TransmissionID:   r.Header.Get("PAYPAL-TRANSMISSION-ID"),
		TransmissionSig:  r.Header.Get("PAYPAL-TRANSMISSION-SIG"),
		TransmissionTime: r.Header.Get("PAYPAL-TRANSMISSION-TIME"),
	}

	verified, err := client.VerifyWebhookSignature(ctx, headers, processor.EndpointSecret, payload)
	if err != nil {
		h.logger.Error("Webhook signature verification errored",
			"processor_id", processor.ID, "error", err)
		response.Message(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if !verified {
		h.logger.Warn("Webhook signature rejected", "processor_id", processor.ID)
		response.Message(w, http.StatusBadRequest, "Verification failed")
		return
	}

	ev, err := client.ParseEvent(payload)
	if err != nil {
		h.logger.Warn("Webhook payload not parseable",
			"processor_id", processor.ID, "error", err)
		response.Message(w, http.StatusBadRequest, "Malformed payload")
		return
	}

	if err := h.reconcile.Apply(ctx, processor, client, ev, payload); err != nil {
		if isDomainError(err) {
			h.logger.Warn("Webhook event rejected",
				"processor_id", processor.ID, "event_type", ev.Type,
				"event_id", ev.EventID, "error", err)
			response.Message(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("Webhook event failed",
			"processor_id", processor.ID, "event_type", ev.Type,
			"event_id", ev.EventID, "error", err)
		response.Message(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	response.NoContent(w)
}

// isDomainError reports whether the reconciliation failure is a business
// rejection the provider should not retry.
func isDomainError(err error) bool {
	return errors.Is(err, model.ErrPlanNotFound) ||
		errors.Is(err, model.ErrSubscriptionNotFound) ||
		errors.Is(err, model.ErrInvoiceNotFound) ||
		errors.Is(err, model.ErrPaymentWrongStatus) ||
		errors.Is(err, model.ErrMalformedCorrelationID) ||
		errors.Is(err, model.ErrValidation)
}
