package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/subpay-io/subpay/internal/billing/domain/model"
	"github.com/subpay-io/subpay/internal/billing/domain/provider"
	"github.com/subpay-io/subpay/internal/platform/logger"
)

const maxPlanDescriptionLen = 127

// CatalogService pushes tenant products and recurring plans to the
// provider catalog so checkout flows can reference them by remote id.
// It runs from cron and can be invoked directly.
type CatalogService struct {
	repos    *Repositories
	catalogs CatalogFactory
	logger   logger.Logger
	currency string
}

// NewCatalogService creates the catalog sync service.
func NewCatalogService(repos *Repositories, catalogs CatalogFactory, log logger.Logger, currency string) *CatalogService {
	return &CatalogService{
		repos:    repos,
		catalogs: catalogs,
		logger:   log,
		currency: currency,
	}
}

// SyncProducts ensures every enabled tenant's product exists at each of
// its enabled providers.
func (s *CatalogService) SyncProducts(ctx context.Context) error {
	tenants, err := s.repos.Tenants.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}

	for _, tenant := range tenants {
		processors, err := s.repos.Processors.ListEnabled(ctx, tenant.ID)
		if err != nil {
			s.logger.Error("Failed to list processors for tenant",
				"tenant_id", tenant.ID, "error", err)
			continue
		}
		for _, processor := range processors {
			if err := s.syncProduct(ctx, tenant, processor); err != nil {
				s.logger.Error("Product sync failed",
					"tenant_id", tenant.ID, "processor_id", processor.ID, "error", err)
			}
		}
	}
	return nil
}

func (s *CatalogService) syncProduct(ctx context.Context, tenant *model.Tenant, processor *model.Processor) error {
	catalog, err := s.catalogs(processor)
	if err != nil {
		return err
	}

	products, err := catalog.ListProducts(ctx)
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}
	for _, p := range products {
		if p.ID == tenant.ProductID {
			return nil
		}
	}

	s.logger.Info("Creating provider product",
		"tenant_id", tenant.ID, "product_id", tenant.ProductID)
	if err := catalog.CreateProduct(ctx, tenant.ProductID, tenant.ProductName); err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

// SyncPlan pushes one plan to every linked enabled processor: created
// remotely when unlinked, updated in place when the remote plan is
// active. 422 responses on update are warn-only.
func (s *CatalogService) SyncPlan(ctx context.Context, planID uuid.UUID) error {
	plan, err := s.repos.Plans.FindByID(ctx, planID)
	if err != nil {
		return err
	}
	// default and non-recurring plans have no provider-side counterpart
	if plan.IsDefault || !plan.IsRecurring || !plan.IsEnabled {
		s.logger.Warn("Plan is not eligible for provider sync", "plan_id", planID)
		return nil
	}

	tenant, err := s.repos.Tenants.FindByID(ctx, plan.TenantID)
	if err != nil || !tenant.IsEnabled {
		return fmt.Errorf("%w: tenant for plan %s", model.ErrTenantNotFound, planID)
	}

	processors, err := s.repos.Processors.ListEnabled(ctx, plan.TenantID)
	if err != nil {
		return fmt.Errorf("list processors: %w", err)
	}

	for _, processor := range processors {
		if err := s.syncPlanToProcessor(ctx, tenant, plan, processor); err != nil {
			s.logger.Error("Plan sync failed",
				"plan_id", plan.ID, "processor_id", processor.ID, "error", err)
		}
	}
	return nil
}

func planDescription(plan *model.Plan) string {
	description := plan.Description
	if description == "" {
		description = fmt.Sprintf("Description for the plan: %s", plan.Name)
	}
	if len(description) > maxPlanDescriptionLen {
		description = description[:maxPlanDescriptionLen-3] + "..."
	}
	return description
}

// intervalUnit maps the plan period onto the provider's frequency unit.
func intervalUnit(period model.PlanPeriod) string {
	switch period {
	case model.PeriodDay:
		return "DAY"
	case model.PeriodWeek:
		return "WEEK"
	case model.PeriodMonth:
		return "MONTH"
	case model.PeriodYear:
		return "YEAR"
	}
	return "MONTH"
}

func (s *CatalogService) syncPlanToProcessor(ctx context.Context, tenant *model.Tenant, plan *model.Plan, processor *model.Processor) error {
	catalog, err := s.catalogs(processor)
	if err != nil {
		return err
	}

	link, err := s.repos.PlanLinks.Find(ctx, plan.ID, processor.ID)
	if err != nil {
		if !errors.Is(err, model.ErrPlanNotFound) {
			return err
		}
		link = &model.PlanProcessorLink{
			ID:          uuid.New(),
			PlanID:      plan.ID,
			ProcessorID: processor.ID,
			CreatedAt:   time.Now(),
		}
		if err := s.repos.PlanLinks.Create(ctx, link); err != nil {
			return err
		}
	}

	description := planDescription(plan)
	price := plan.Price.StringFixed(2)

	if link.ExternalID == "" {
		remoteID, err := catalog.CreatePlan(ctx, tenant.ProductID, plan.Name, description,
			intervalUnit(plan.Period), plan.Term, price, s.currency)
		if err != nil {
			return fmt.Errorf("create remote plan: %w", err)
		}
		s.logger.Info("Provider plan created", "plan_id", plan.ID, "remote_id", remoteID)

		now := time.Now()
		link.ExternalID = remoteID
		link.SyncedAt = &now
		return s.repos.PlanLinks.Update(ctx, link)
	}

	remotePlans, err := catalog.ListPlans(ctx, tenant.ProductID)
	if err != nil {
		return fmt.Errorf("list remote plans: %w", err)
	}
	var remote *provider.RemotePlan
	for i := range remotePlans {
		if remotePlans[i].ID == link.ExternalID {
			remote = &remotePlans[i]
			break
		}
	}
	if remote == nil {
		s.logger.Info("Linked plan not found at provider", "remote_id", link.ExternalID)
		return nil
	}
	if remote.Status != "ACTIVE" {
		s.logger.Info("Provider plan not active, skipping update", "remote_id", link.ExternalID)
		return nil
	}

	if err := catalog.UpdatePlan(ctx, link.ExternalID, plan.Name, description); err != nil {
		if err := s.softUpdateError(err, link.ExternalID); err != nil {
			return err
		}
	}
	if err := catalog.UpdatePlanPricing(ctx, link.ExternalID, price, s.currency); err != nil {
		if err := s.softUpdateError(err, link.ExternalID); err != nil {
			return err
		}
	}

	now := time.Now()
	link.SyncedAt = &now
	return s.repos.PlanLinks.Update(ctx, link)
}

func (s *CatalogService) softUpdateError(err error, remoteID string) error {
	var pErr *provider.Error
	if errors.As(err, &pErr) && pErr.Soft() {
		s.logger.Warn("Provider rejected plan update, remote state likely current",
			"remote_id", remoteID, "details", pErr.Message)
		return nil
	}
	return err
}

// SyncAll syncs products and every enabled recurring plan. Wired to cron.
func (s *CatalogService) SyncAll(ctx context.Context) error {
	if err := s.SyncProducts(ctx); err != nil {
		return err
	}

	tenants, err := s.repos.Tenants.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}
	for _, tenant := range tenants {
		plans, err := s.repos.Plans.ListEnabledRecurring(ctx, tenant.ID)
		if err != nil {
			s.logger.Error("Failed to list plans for tenant",
				"tenant_id", tenant.ID, "error", err)
			continue
		}
		for _, plan := range plans {
			if err := s.SyncPlan(ctx, plan.ID); err != nil {
				s.logger.Error("Plan sync failed", "plan_id", plan.ID, "error", err)
			}
		}
	}
	return nil
}
