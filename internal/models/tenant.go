// Package models defines the core data types for Backhaul.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is an isolated customer account. All other records belong to
// exactly one tenant.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// NewTenant creates a tenant with a generated ID.
func NewTenant(name, slug string) *Tenant {
	return &Tenant{
		ID:        uuid.New(),
		Name:      name,
		Slug:      slug,
		CreatedAt: time.Now().UTC(),
	}
}
