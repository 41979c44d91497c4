package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/subpay-io/subpay/internal/billing/app/service"
	"github.com/subpay-io/subpay/internal/billing/domain/model"
	"github.com/subpay-io/subpay/internal/platform/logger"
	"github.com/subpay-io/subpay/internal/platform/response"
	"github.com/subpay-io/subpay/pkg/middleware"
)

// SubscriptionHandler exposes the subscriber-facing billing routes.
type SubscriptionHandler struct {
	service *service.SubscriptionService
	logger  logger.Logger
}

func NewSubscriptionHandler(service *service.SubscriptionService, log logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		service: service,
		logger:  log,
	}
}

func (h *SubscriptionHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/me", h.GetProfile).Methods("GET")
	router.HandleFunc("/me/subscribe", h.Subscribe).Methods("POST")
	router.HandleFunc("/me/resubscribe", h.Resubscribe).Methods("POST")
	router.HandleFunc("/me/unsubscribe", h.Unsubscribe).Methods("POST")
	router.HandleFunc("/me/changeplan", h.ChangePlan).Methods("POST")
}

type subscribeRequest struct {
	PlanID          uuid.UUID `json:"plan_id"`
	PaymentMethodID uuid.UUID `json:"payment_method_id"`
	ReturnURL       string    `json:"return_url"`
	CancelURL       string    `json:"cancel_url"`
}

type changePlanRequest struct {
	PlanID    uuid.UUID `json:"plan_id"`
	ReturnURL string    `json:"return_url"`
	CancelURL string    `json:"cancel_url"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type redirectResponse struct {
	RedirectURL string `json:"redirect_url"`
}

type subscriptionView struct {
	ID            uuid.UUID  `json:"id"`
	TenantID      uuid.UUID  `json:"tenant_id"`
	PlanID        uuid.UUID  `json:"plan_id"`
	Status        string     `json:"status"`
	StartAt       *time.Time `json:"start_at,omitempty"`
	EndAt         *time.Time `json:"end_at,omitempty"`
	NextBillingAt *time.Time `json:"next_billing_at,omitempty"`
}

type profileResponse struct {
	Subscriptions []subscriptionView `json:"subscriptions"`
}

func (h *SubscriptionHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		response.Message(w, http.StatusUnauthorized, "User not set")
		return
	}

	profile, err := h.service.GetProfile(ctx, userID)
	if err != nil {
		h.logger.Error("Failed to load billing profile", "user_id", userID, "error", err)
		response.Message(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	now := time.Now()
	views := make([]subscriptionView, 0, len(profile.Subscriptions))
	for _, sub := range profile.Subscriptions {
		views = append(views, subscriptionView{
			ID:            sub.ID,
			TenantID:      sub.TenantID,
			PlanID:        sub.PlanID,
			Status:        string(sub.Status(now)),
			StartAt:       sub.StartAt,
			EndAt:         sub.EndAt,
			NextBillingAt: sub.NextBillingAt,
		})
	}

	response.OK(w, profileResponse{Subscriptions: views})
}

func (h *SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, tenantID, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Message(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	url, err := h.service.InitiateSubscription(ctx, service.SubscribeCommand{
		UserID:          userID,
		TenantID:        tenantID,
		PlanID:          req.PlanID,
		PaymentMethodID: req.PaymentMethodID,
		ReturnURL:       req.ReturnURL,
		CancelURL:       req.CancelURL,
	})
	if err != nil {
		h.respondOperationError(w, "subscribe", userID, err)
		return
	}

	response.OK(w, redirectResponse{RedirectURL: url})
}

func (h *SubscriptionHandler) Resubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, tenantID, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req reasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Message(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.Resubscribe(ctx, userID, tenantID, req.Reason); err != nil {
		h.respondOperationError(w, "resubscribe", userID, err)
		return
	}

	response.NoContent(w)
}

func (h *SubscriptionHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, tenantID, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req reasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Message(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.Unsubscribe(ctx, userID, tenantID, req.Reason); err != nil {
		h.respondOperationError(w, "unsubscribe", userID, err)
		return
	}

	response.NoContent(w)
}

func (h *SubscriptionHandler) ChangePlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, tenantID, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req changePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Message(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	url, err := h.service.ChangePlan(ctx, service.ChangePlanCommand{
		UserID:    userID,
		TenantID:  tenantID,
		ToPlanID:  req.PlanID,
		ReturnURL: req.ReturnURL,
		CancelURL: req.CancelURL,
	})
	if err != nil {
		h.respondOperationError(w, "changeplan", userID, err)
		return
	}

	response.OK(w, redirectResponse{RedirectURL: url})
}

func (h *SubscriptionHandler) identity(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Message(w, http.StatusUnauthorized, "User not set")
		return uuid.Nil, uuid.Nil, false
	}
	tenantID, ok := middleware.GetTenantID(r.Context())
	if !ok {
		response.Message(w, http.StatusBadRequest, "Tenant not set")
		return uuid.Nil, uuid.Nil, false
	}
	return userID, tenantID, true
}

// respondOperationError maps a precondition rejection to a 400 with its
// reason; anything else is logged and reported as a 500.
func (h *SubscriptionHandler) respondOperationError(w http.ResponseWriter, op string, userID uuid.UUID, err error) {
	var rejection *service.Rejection
	if errors.As(err, &rejection) {
		response.Message(w, http.StatusBadRequest, rejection.Reason)
		return
	}
	if errors.Is(err, model.ErrSubscriptionNotFound) {
		response.Message(w, http.StatusBadRequest, "Subscription not found")
		return
	}
	h.logger.Error("Subscriber operation failed", "operation", op, "user_id", userID, "error", err)
	response.Message(w, http.StatusInternalServerError, "Internal server error")
}
