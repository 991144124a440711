package models

import (
	"time"

	"github.com/google/uuid"
)

// Actor types
const (
	ActorTypeUser   = "user"
	ActorTypeSystem = "system"
	ActorTypeAdmin  = "admin"
)

type AuditLog struct {
	ID         uuid.UUID `json:"id"`
	Actor      string    `json:"actor,omitempty"`
	ActorType  string    `json:"actor_type"` // user/admin/system
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Meta       any       `json:"meta,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
