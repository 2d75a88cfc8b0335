package services

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"

	"github.com/villagefund/backend/internal/models"
)

type StatsService struct {
	db *sql.DB
}

// OverviewStats represents the admin dashboard statistics
// @Description Fund overview statistics structure
type OverviewStats struct {
	MemberCount       int   `json:"memberCount"`
	TotalBalance      int64 `json:"totalBalance"`
	PendingCount      int   `json:"pendingCount"`
	DividendsThisYear int64 `json:"dividendsThisYear"`
	MonthDeposits     int64 `json:"monthDeposits"`
	MonthWithdrawals  int64 `json:"monthWithdrawals"`
	MonthNet          int64 `json:"monthNet"`
}

func NewStatsService(db *sql.DB) *StatsService {
	return &StatsService{db: db}
}

// Overview returns fund-wide statistics
// @Summary Get fund overview
// @Description Member count, total fund balance, pending queue size, dividends paid this fiscal year and current-month flows
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} OverviewStats
// @Router /admin/stats [get]
func (s *StatsService) Overview(w http.ResponseWriter, r *http.Request) {
	var stats OverviewStats

	err := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(balance), 0) FROM members
	`).Scan(&stats.MemberCount, &stats.TotalBalance)
	if err != nil {
		log.Printf("[STATS] Member aggregate failed: %v", err)
		SendErrorResponse(w, "Failed to compute statistics", http.StatusInternalServerError, nil)
		return
	}

	err = s.db.QueryRow(`
		SELECT COUNT(*) FROM transactions WHERE status = $1
	`, models.StatusPending).Scan(&stats.PendingCount)
	if err != nil {
		log.Printf("[STATS] Pending count failed: %v", err)
		SendErrorResponse(w, "Failed to compute statistics", http.StatusInternalServerError, nil)
		return
	}

	// Dividends paid in the configured fiscal year; falls back to the
	// calendar year when settings have never been saved.
	err = s.db.QueryRow(`
		SELECT COALESCE(SUM(amount), 0) FROM dividends
		WHERE year = COALESCE(
			(SELECT fiscal_year FROM fund_settings WHERE id = 1),
			EXTRACT(YEAR FROM NOW())::int
		)
	`).Scan(&stats.DividendsThisYear)
	if err != nil {
		log.Printf("[STATS] Dividend aggregate failed: %v", err)
		SendErrorResponse(w, "Failed to compute statistics", http.StatusInternalServerError, nil)
		return
	}

	err = s.db.QueryRow(`
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE type = $1), 0),
			COALESCE(SUM(amount) FILTER (WHERE type = $2), 0)
		FROM transactions
		WHERE status = $3 AND approved_at >= date_trunc('month', NOW())
	`, models.TypeDeposit, models.TypeWithdraw, models.StatusApproved).
		Scan(&stats.MonthDeposits, &stats.MonthWithdrawals)
	if err != nil {
		log.Printf("[STATS] Monthly flow aggregate failed: %v", err)
		SendErrorResponse(w, "Failed to compute statistics", http.StatusInternalServerError, nil)
		return
	}
	stats.MonthNet = stats.MonthDeposits - stats.MonthWithdrawals

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
