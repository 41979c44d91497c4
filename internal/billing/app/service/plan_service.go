package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/subpay-io/subpay/internal/billing/domain/model"
	"github.com/subpay-io/subpay/internal/platform/logger"
)

// PlanService owns plan writes and enforces the tenant-level rules the
// entity alone cannot see: at most one default plan per tenant, and the
// zero-price gate.
type PlanService struct {
	repos                 *Repositories
	logger                logger.Logger
	allowZeroPriceDefault bool
}

// NewPlanService creates the plan write service.
func NewPlanService(repos *Repositories, log logger.Logger, allowZeroPriceDefault bool) *PlanService {
	return &PlanService{
		repos:                 repos,
		logger:                log,
		allowZeroPriceDefault: allowZeroPriceDefault,
	}
}

func (s *PlanService) checkDefaultRule(ctx context.Context, plan *model.Plan) error {
	if !plan.IsDefault {
		return nil
	}
	current, err := s.repos.Plans.FindDefault(ctx, plan.TenantID)
	if err != nil {
		if errors.Is(err, model.ErrPlanNotFound) {
			return nil
		}
		return err
	}
	if current.ID != plan.ID {
		return fmt.Errorf("%w: tenant already has default plan %s", model.ErrValidation, current.ID)
	}
	return nil
}

// CreatePlan validates and persists a new plan.
func (s *PlanService) CreatePlan(ctx context.Context, plan *model.Plan) error {
	if err := plan.Validate(s.allowZeroPriceDefault); err != nil {
		return err
	}
	if err := s.checkDefaultRule(ctx, plan); err != nil {
		return err
	}
	if err := s.repos.Plans.Create(ctx, plan); err != nil {
		return fmt.Errorf("create plan: %w", err)
	}
	s.logger.Info("Plan created", "plan_id", plan.ID, "tenant_id", plan.TenantID)
	return nil
}

// UpdatePlan validates and persists changes to an existing plan.
func (s *PlanService) UpdatePlan(ctx context.Context, plan *model.Plan) error {
	if err := plan.Validate(s.allowZeroPriceDefault); err != nil {
		return err
	}
	if err := s.checkDefaultRule(ctx, plan); err != nil {
		return err
	}
	if err := s.repos.Plans.Update(ctx, plan); err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	return nil
}
