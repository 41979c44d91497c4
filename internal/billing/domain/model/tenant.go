package model

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is the owning client of plans and processors. Billing only needs
// the catalog identity it presents to the provider; everything else about
// a tenant lives outside this context.
type Tenant struct {
	ID          uuid.UUID
	Name        string
	ProductID   string
	ProductName string
	IsEnabled   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
