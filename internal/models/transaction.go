package models

import (
	"time"
)

// Transaction types.
const (
	TypeDeposit  = "deposit"
	TypeWithdraw = "withdraw"
)

// Transaction statuses. A transaction leaves pending exactly once, to either
// approved or rejected, and is never mutated afterwards.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Transaction represents a member's deposit or withdrawal request awaiting
// admin disposition. Amount is immutable after creation.
type Transaction struct {
	ID         string     `json:"id" db:"id"`
	MemberID   string     `json:"member_id" db:"member_id"`
	Type       string     `json:"type" db:"type"`
	Amount     int64      `json:"amount" db:"amount"`
	Status     string     `json:"status" db:"status"`
	Note       string     `json:"note,omitempty" db:"note"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	ApprovedBy *string    `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt *time.Time `json:"approved_at,omitempty" db:"approved_at"`
	RejectedBy *string    `json:"rejected_by,omitempty" db:"rejected_by"`
	RejectedAt *time.Time `json:"rejected_at,omitempty" db:"rejected_at"`
}

// PendingTransaction is a pending-list row joined with the owning member's
// name for the admin review table.
type PendingTransaction struct {
	Transaction
	MemberName string `json:"member_name" db:"member_name"`
}
