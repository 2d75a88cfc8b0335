package models

import (
	"time"
)

// Member statuses for the role field.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// Member represents a cooperative member account. Balance is mutated only by
// the approval engine, the dividend distributor and the audited manual
// adjustment path; version is bumped on every balance write for optimistic
// locking.
type Member struct {
	ID           string    `json:"id" db:"id"`
	MemberCode   string    `json:"member_code" db:"member_code"`
	FullName     string    `json:"full_name" db:"full_name"`
	IDCard       string    `json:"id_card,omitempty" db:"id_card"`
	Phone        string    `json:"phone" db:"phone"`
	Address      string    `json:"address" db:"address"`
	Email        string    `json:"email" db:"email"`
	Balance      int64     `json:"balance" db:"balance"`
	Role         string    `json:"role" db:"role"`
	Version      int       `json:"-" db:"version"`
	RegisteredAt time.Time `json:"registered_at" db:"registered_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// MembershipDays returns how long the member has been registered, in whole
// days, as of now.
func (m *Member) MembershipDays(now time.Time) int {
	return int(now.Sub(m.RegisteredAt).Hours() / 24)
}
