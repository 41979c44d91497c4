package service

import (
	"fmt"

	"github.com/subpay-io/subpay/internal/billing/adapters/paypal"
	"github.com/subpay-io/subpay/internal/billing/domain/model"
	"github.com/subpay-io/subpay/internal/billing/domain/provider"
	"github.com/subpay-io/subpay/internal/platform/logger"
)

// ProviderFactory resolves a processor credential set to its concrete
// provider client. A closed switch, not reflection: one adapter per
// processor type.
type ProviderFactory func(p *model.Processor) (provider.Client, error)

// CatalogFactory resolves a processor to its catalog client for the sync
// job.
type CatalogFactory func(p *model.Processor) (provider.CatalogClient, error)

// NewProviderFactory builds the default factory over the real adapters.
func NewProviderFactory(log logger.Logger) ProviderFactory {
	return func(p *model.Processor) (provider.Client, error) {
		switch p.Type {
		case model.ProcessorPayPal:
			return paypal.New(p.ClientID, p.Secret, p.IsSandbox, log), nil
		}
		return nil, fmt.Errorf("%w: no adapter for processor type %q", model.ErrProcessorNotFound, p.Type)
	}
}

// NewCatalogFactory builds the default catalog factory.
func NewCatalogFactory(log logger.Logger) CatalogFactory {
	return func(p *model.Processor) (provider.CatalogClient, error) {
		switch p.Type {
		case model.ProcessorPayPal:
			return paypal.New(p.ClientID, p.Secret, p.IsSandbox, log), nil
		}
		return nil, fmt.Errorf("%w: no adapter for processor type %q", model.ErrProcessorNotFound, p.Type)
	}
}
