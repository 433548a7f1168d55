package models

import (
	"time"

	"github.com/google/uuid"
)

// Connection represents an external warehouse registered for monitoring.
// The URI field holds the decrypted DSN and is only populated when a
// connector is about to be instantiated; at rest the store keeps ciphertext.
type Connection struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Dialect   string    `json:"dialect"` // "postgres", "mssql", ...
	URI       string    `json:"-"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
