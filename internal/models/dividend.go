package models

import (
	"time"
)

// Dividend is an append-only record of one payout to one member for one
// fiscal year. TotalSaving captures the balance the payout was computed on.
type Dividend struct {
	ID            int       `json:"id" db:"id"`
	MemberID      string    `json:"member_id" db:"member_id"`
	Year          int       `json:"year" db:"year"`
	Amount        int64     `json:"amount" db:"amount"`
	TotalSaving   int64     `json:"total_saving" db:"total_saving"`
	DistributedAt time.Time `json:"distributed_at" db:"distributed_at"`
	DistributedBy string    `json:"distributed_by" db:"distributed_by"`
}

// FundSettings is the singleton configuration read by the eligibility
// evaluator and the distribution engine. Rate is a percentage.
type FundSettings struct {
	FiscalYear int       `json:"fiscal_year" db:"fiscal_year" validate:"required,gte=2000"`
	Rate       float64   `json:"rate" db:"rate" validate:"gte=0,lte=100"`
	NetProfit  int64     `json:"net_profit" db:"net_profit" validate:"gte=0"`
	MinBalance int64     `json:"min_balance" db:"min_balance" validate:"gte=0"`
	MinMonths  int       `json:"min_months" db:"min_months" validate:"gte=0"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
	UpdatedBy  string    `json:"updated_by,omitempty" db:"updated_by"`
}
