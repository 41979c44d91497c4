package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/subpay-io/subpay/internal/billing/app/service"
	"github.com/subpay-io/subpay/internal/billing/domain/model"
	"github.com/subpay-io/subpay/internal/platform/logger"
	"github.com/subpay-io/subpay/internal/platform/response"
)

// PlanHandler exposes the operator-facing plan and catalog routes.
// These sit behind the internal listener, not the subscriber API.
type PlanHandler struct {
	plans         *service.PlanService
	repos         *service.Repositories
	catalog       *service.CatalogService
	publicBaseURL string
	logger        logger.Logger
}

func NewPlanHandler(plans *service.PlanService, repos *service.Repositories, catalog *service.CatalogService, publicBaseURL string, log logger.Logger) *PlanHandler {
	return &PlanHandler{
		plans:         plans,
		repos:         repos,
		catalog:       catalog,
		publicBaseURL: publicBaseURL,
		logger:        log,
	}
}

func (h *PlanHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/plans", h.CreatePlan).Methods("POST")
	router.HandleFunc("/plans/{id}", h.UpdatePlan).Methods("PUT")
	router.HandleFunc("/plans/{id}/sync", h.SyncPlan).Methods("POST")
	router.HandleFunc("/catalog/sync", h.SyncCatalog).Methods("POST")
	router.HandleFunc("/tenants/{tenant_id}/processors", h.ListProcessors).Methods("GET")
}

type planRequest struct {
	TenantID    uuid.UUID       `json:"tenant_id"`
	Name        string          `json:"name"`
	Code        string          `json:"code"`
	Description string          `json:"description"`
	Period      string          `json:"period"`
	Term        int             `json:"term"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	IsRecurring bool            `json:"is_recurring"`
	IsEnabled   bool            `json:"is_enabled"`
	IsDefault   bool            `json:"is_default"`
}

func (h *PlanHandler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Message(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	plan, err := model.NewPlan(req.TenantID, req.Name, model.PlanPeriod(req.Period), req.Term, req.Price)
	if err != nil {
		response.Message(w, http.StatusBadRequest, err.Error())
		return
	}
	plan.Code = req.Code
	plan.Description = req.Description
	plan.Currency = req.Currency
	plan.IsRecurring = req.IsRecurring
	plan.IsEnabled = req.IsEnabled
	plan.IsDefault = req.IsDefault

	if err := h.plans.CreatePlan(ctx, plan); err != nil {
		h.respondPlanError(w, "create plan", err)
		return
	}

	response.Created(w, plan)
}

func (h *PlanHandler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	planID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		response.Message(w, http.StatusBadRequest, "Invalid plan id")
		return
	}

	plan, err := h.repos.Plans.FindByID(ctx, planID)
	if err != nil {
		response.Message(w, http.StatusNotFound, "Plan not found")
		return
	}

	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Message(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	plan.Name = req.Name
	plan.Code = req.Code
	plan.Description = req.Description
	plan.Period = model.PlanPeriod(req.Period)
	plan.Term = req.Term
	plan.Price = req.Price
	plan.Currency = req.Currency
	plan.IsRecurring = req.IsRecurring
	plan.IsEnabled = req.IsEnabled
	plan.IsDefault = req.IsDefault

	if err := h.plans.UpdatePlan(ctx, plan); err != nil {
		h.respondPlanError(w, "update plan", err)
		return
	}

	response.OK(w, plan)
}

func (h *PlanHandler) SyncPlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	planID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		response.Message(w, http.StatusBadRequest, "Invalid plan id")
		return
	}

	if err := h.catalog.SyncPlan(ctx, planID); err != nil {
		if errors.Is(err, model.ErrPlanNotFound) {
			response.Message(w, http.StatusNotFound, "Plan not found")
			return
		}
		h.logger.Error("Plan sync failed", "plan_id", planID, "error", err)
		response.Message(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	response.NoContent(w)
}

func (h *PlanHandler) SyncCatalog(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.SyncAll(r.Context()); err != nil {
		h.logger.Error("Catalog sync failed", "error", err)
		response.Message(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	response.NoContent(w)
}

type processorView struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	IsSandbox bool      `json:"is_sandbox"`
	// WebhookURL is the callback endpoint the operator registers at the
	// provider for this credential set.
	WebhookURL string `json:"webhook_url"`
}

// ListProcessors returns the tenant's enabled processors with the
// callback URL each one must have registered provider-side.
func (h *PlanHandler) ListProcessors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, err := uuid.Parse(mux.Vars(r)["tenant_id"])
	if err != nil {
		response.Message(w, http.StatusBadRequest, "Invalid tenant id")
		return
	}

	processors, err := h.repos.Processors.ListEnabled(ctx, tenantID)
	if err != nil {
		h.logger.Error("Processor listing failed", "tenant_id", tenantID, "error", err)
		response.Message(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	views := make([]processorView, 0, len(processors))
	for _, p := range processors {
		webhookURL, err := p.WebhookURL(h.publicBaseURL)
		if err != nil {
			h.logger.Error("Webhook URL construction failed",
				"processor_id", p.ID, "error", err)
			response.Message(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		views = append(views, processorView{
			ID:         p.ID,
			Type:       string(p.Type),
			IsSandbox:  p.IsSandbox,
			WebhookURL: webhookURL,
		})
	}

	response.OK(w, views)
}

func (h *PlanHandler) respondPlanError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, model.ErrValidation) {
		response.Message(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Error("Plan write failed", "operation", op, "error", err)
	response.Message(w, http.StatusInternalServerError, "Internal server error")
}
