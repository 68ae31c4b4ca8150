package models

import (
	"time"

	"github.com/google/uuid"
)

// Credential holds an SSH private key for reaching a customer server.
// PrivateKeyEncrypted is ciphertext; plaintext key material only ever
// exists in memory or in an ephemeral key file during an SSH session.
type Credential struct {
	ID                  uuid.UUID `json:"id"`
	TenantID            uuid.UUID `json:"tenant_id"`
	Name                string    `json:"name"`
	SSHUser             string    `json:"ssh_user"`
	PrivateKeyEncrypted string    `json:"-"`
	CreatedAt           time.Time `json:"created_at"`
}

// NewCredential creates a credential record. The caller encrypts the key
// material before constructing it.
func NewCredential(scope TenantScope, name, sshUser, encryptedKey string) *Credential {
	return &Credential{
		ID:                  uuid.New(),
		TenantID:            scope.TenantID,
		Name:                name,
		SSHUser:             sshUser,
		PrivateKeyEncrypted: encryptedKey,
		CreatedAt:           time.Now().UTC(),
	}
}
