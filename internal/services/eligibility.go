package services

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/villagefund/backend/internal/models"
)

// EligibilityCriterion is one line of the eligibility breakdown shown to a
// member or previewed by an admin.
type EligibilityCriterion struct {
	Label   string `json:"label"`
	Pass    bool   `json:"pass"`
	Current string `json:"current"`
}

// EligibilityResult is the structured outcome of the eligibility check.
type EligibilityResult struct {
	Eligible bool                   `json:"eligible"`
	Criteria []EligibilityCriterion `json:"criteria"`
}

// EvaluateEligibility applies the fund's dividend criteria to one member.
// The member-facing "am I eligible" view and the admin distribution preview
// both call this function, so the two can never disagree.
func EvaluateEligibility(member *models.Member, settings *models.FundSettings, now time.Time) EligibilityResult {
	days := member.MembershipDays(now)
	// Months are converted at 30 days apiece, matching the distribution run.
	requiredDays := settings.MinMonths * 30

	criteria := []EligibilityCriterion{
		{
			Label:   fmt.Sprintf("Membership >= %d months", settings.MinMonths),
			Pass:    days >= requiredDays,
			Current: fmt.Sprintf("%d days", days),
		},
		{
			Label:   fmt.Sprintf("Minimum balance %d", settings.MinBalance),
			Pass:    member.Balance >= settings.MinBalance,
			Current: fmt.Sprintf("%d", member.Balance),
		},
	}

	eligible := true
	for _, c := range criteria {
		if !c.Pass {
			eligible = false
		}
	}

	return EligibilityResult{Eligible: eligible, Criteria: criteria}
}

// DividendAmount computes floor(balance * rate / 100). Truncation, not
// rounding: the remainder stays with the fund.
func DividendAmount(balance int64, rate float64) int64 {
	return decimal.NewFromInt(balance).
		Mul(decimal.NewFromFloat(rate)).
		Div(decimal.NewFromInt(100)).
		Floor().
		IntPart()
}
