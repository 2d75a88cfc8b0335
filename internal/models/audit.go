package models

import (
	"time"
)

// Audit action kinds.
const (
	AuditApprove        = "APPROVE_TRANSACTION"
	AuditReject         = "REJECT_TRANSACTION"
	AuditBulkApprove    = "BULK_APPROVE"
	AuditBulkReject     = "BULK_REJECT"
	AuditDistribute     = "DISTRIBUTE_DIVIDENDS"
	AuditAdjustBalance  = "ADJUST_BALANCE"
	AuditUpdateSettings = "UPDATE_SETTINGS"
)

// AuditEntry is an append-only record of an admin-performed mutating action.
// Writes are best effort and never block or roll back the primary operation.
type AuditEntry struct {
	ID         int       `json:"id" db:"id"`
	Action     string    `json:"action" db:"action"`
	Detail     string    `json:"detail" db:"detail"`
	TargetID   string    `json:"target_id,omitempty" db:"target_id"`
	ActorID    string    `json:"actor_id" db:"actor_id"`
	ActorEmail string    `json:"actor_email" db:"actor_email"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
