package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditLog records a change to access-control or scheduling configuration.
// Medication administrations have their own log, see MedicationAdministrationLog.
type AuditLog struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	UserID     uuid.UUID       `json:"user_id" db:"user_id"`
	Action     string          `json:"action" db:"action"`
	EntityType string          `json:"entity_type" db:"entity_type"`
	EntityID   string          `json:"entity_id" db:"entity_id"`
	Changes    json.RawMessage `json:"changes,omitempty" db:"changes"`
	Metadata   json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	IPAddress  string          `json:"ip_address" db:"ip_address"`
	UserAgent  string          `json:"user_agent" db:"user_agent"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

const (
	// Action types
	AuditActionCreate     = "create"
	AuditActionUpdate     = "update"
	AuditActionDelete     = "delete"
	AuditActionLogin      = "login"
	AuditActionAssignRole = "assign_role"
	AuditActionRemoveRole = "remove_role"
	AuditActionGenerate   = "generate"
	AuditActionCancel     = "cancel"
	AuditActionSkip       = "skip"

	// Entity types
	AuditEntityUser           = "user"
	AuditEntityRolePermission = "role_permission"
	AuditEntityScheduledDose  = "scheduled_dose"
	AuditEntityPrescription   = "prescription_item"
)

type AuditFilters struct {
	UserID     *uuid.UUID `form:"-"`
	EntityType string     `form:"entity_type"`
	Action     string     `form:"action"`
	From       *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To         *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Pagination
}
