package models

import (
	"time"

	"github.com/google/uuid"
)

// Repository is a named remote storage target registered on one server's
// agent. RepositoryID is the external identifier shared with the agent;
// it is globally unique and immutable after creation. If the local record
// and the agent disagree on this ID, downstream operations silently fail
// to match, so it is never updatable.
type Repository struct {
	ID                uuid.UUID `json:"id"`
	TenantID          uuid.UUID `json:"tenant_id"`
	ServerID          uuid.UUID `json:"server_id"`
	Name              string    `json:"name"`
	RepositoryID      string    `json:"repository_id"`
	URI               string    `json:"uri"`
	PasswordEncrypted string    `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
}

// NewRepository creates a repository record bound to a server.
func NewRepository(scope TenantScope, serverID uuid.UUID, name, repositoryID, uri, encryptedPassword string) *Repository {
	return &Repository{
		ID:                uuid.New(),
		TenantID:          scope.TenantID,
		ServerID:          serverID,
		Name:              name,
		RepositoryID:      repositoryID,
		URI:               uri,
		PasswordEncrypted: encryptedPassword,
		CreatedAt:         time.Now().UTC(),
	}
}
