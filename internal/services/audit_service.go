package services

import (
	"database/sql"
	"encoding/json"
	"log"
	"time"
)

// AuditService appends admin actions to the audit_log table and emits a
// structured log line for each event. Both writes are best effort: a failed
// audit write is logged and swallowed, never propagated to the caller.
type AuditService struct {
	db *sql.DB
}

type auditEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	Action     string    `json:"action"`
	Detail     string    `json:"detail"`
	TargetID   string    `json:"target_id,omitempty"`
	ActorID    string    `json:"actor_id"`
	ActorEmail string    `json:"actor_email,omitempty"`
}

func NewAuditService(db *sql.DB) *AuditService {
	return &AuditService{db: db}
}

// Record persists one audit entry. targetID may be empty for batch actions.
func (s *AuditService) Record(action, detail, targetID, actorID, actorEmail string) {
	event := auditEvent{
		Timestamp:  time.Now(),
		Action:     action,
		Detail:     detail,
		TargetID:   targetID,
		ActorID:    actorID,
		ActorEmail: actorEmail,
	}

	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))

	_, err := s.db.Exec(`
		INSERT INTO audit_log (action, detail, target_id, actor_id, actor_email, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, action, detail, targetID, actorID, actorEmail)
	if err != nil {
		log.Printf("[AUDIT] Failed to persist audit entry (%s): %v", action, err)
	}
}
