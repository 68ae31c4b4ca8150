package models

import "github.com/google/uuid"

// TenantScope identifies the tenant a data access operates on.
// Every store method takes a scope explicitly; there is no ambient tenant.
type TenantScope struct {
	TenantID uuid.UUID
}

// Scope returns a TenantScope for the given tenant ID.
func Scope(tenantID uuid.UUID) TenantScope {
	return TenantScope{TenantID: tenantID}
}

// Valid reports whether the scope names a real tenant.
func (s TenantScope) Valid() bool {
	return s.TenantID != uuid.Nil
}
