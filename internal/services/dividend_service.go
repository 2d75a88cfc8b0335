package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/villagefund/backend/internal/models"
)

// DividendService computes eligibility, previews payouts, and distributes
// dividends. Distribution is a fan-out of independent per-member database
// transactions, unlike approval which is one atomic unit per transaction.
type DividendService struct {
	db        *sql.DB
	validator *validator.Validate
	audit     *AuditService
}

// DividendCandidate is one member's computed payout in a preview or run.
type DividendCandidate struct {
	MemberID   string `json:"memberId"`
	MemberName string `json:"memberName"`
	Balance    int64  `json:"balance"`
	Amount     int64  `json:"amount"`
	NewBalance int64  `json:"newBalance"`
}

// DistributeRequest represents a distribution run request
// @Description Dividend distribution request structure
type DistributeRequest struct {
	Year int `json:"year" validate:"required,min=2000,max=2200" example:"2026"`
}

// DistributeResponse represents the distribution run summary
// @Description Dividend distribution response structure
type DistributeResponse struct {
	Year        int   `json:"year"`
	Distributed int   `json:"distributed"`
	Failed      int   `json:"failed"`
	TotalAmount int64 `json:"totalAmount"`
}

// SettingsRequest represents a fund settings update
// @Description Fund settings update structure
type SettingsRequest struct {
	FiscalYear int     `json:"fiscalYear" validate:"required,min=2000,max=2200" example:"2026"`
	Rate       float64 `json:"rate" validate:"required,gt=0,max=100" example:"4.5"`
	NetProfit  int64   `json:"netProfit" validate:"min=0" example:"120000"`
	MinBalance int64   `json:"minBalance" validate:"min=0" example:"1000"`
	MinMonths  int     `json:"minMonths" validate:"min=0,max=120" example:"12"`
}

func NewDividendService(db *sql.DB, audit *AuditService) *DividendService {
	return &DividendService{
		db:        db,
		validator: validator.New(),
		audit:     audit,
	}
}

// ComputeEligible applies the fund rules to a member snapshot and returns the
// payout candidates. Pure over its inputs: no store reads or writes. A rate
// of zero or less rejects the whole computation upfront.
func ComputeEligible(members []models.Member, settings *models.FundSettings, now time.Time) ([]DividendCandidate, error) {
	if settings.Rate <= 0 {
		return nil, ErrInvalidRate
	}

	candidates := make([]DividendCandidate, 0)
	for _, m := range members {
		result := EvaluateEligibility(&m, settings, now)
		if !result.Eligible {
			continue
		}
		amount := DividendAmount(m.Balance, settings.Rate)
		candidates = append(candidates, DividendCandidate{
			MemberID:   m.ID,
			MemberName: m.FullName,
			Balance:    m.Balance,
			Amount:     amount,
			NewBalance: m.Balance + amount,
		})
	}
	return candidates, nil
}

// Preview computes the eligible set without mutating anything
// @Summary Preview a dividend run
// @Description List eligible members and their computed payouts under current settings
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {array} DividendCandidate
// @Failure 422 {object} ErrorResponse "Dividend rate not configured"
// @Router /admin/dividends/preview [post]
func (s *DividendService) Preview(w http.ResponseWriter, r *http.Request) {
	settings, err := s.loadSettings()
	if err != nil {
		log.Printf("[DIVIDEND] Failed to load settings: %v", err)
		SendErrorResponse(w, "Failed to load fund settings", http.StatusInternalServerError, nil)
		return
	}

	members, err := s.loadMembers()
	if err != nil {
		log.Printf("[DIVIDEND] Failed to load members: %v", err)
		SendErrorResponse(w, "Failed to load members", http.StatusInternalServerError, nil)
		return
	}

	candidates, err := ComputeEligible(members, settings, time.Now())
	if err != nil {
		SendErrorResponse(w, "Dividend rate must be greater than zero", http.StatusUnprocessableEntity, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(candidates)
}

// Distribute runs a dividend distribution
// @Summary Distribute dividends
// @Description Credit each eligible member and append a dividend record; failures are isolated per member
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body DistributeRequest true "Distribution request"
// @Success 200 {object} DistributeResponse "Run summary"
// @Failure 422 {object} ErrorResponse "Dividend rate not configured"
// @Router /admin/dividends/distribute [post]
func (s *DividendService) Distribute(w http.ResponseWriter, r *http.Request) {
	adminID, _ := r.Context().Value("userID").(string)
	adminEmail, _ := r.Context().Value("userEmail").(string)

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req DistributeRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	settings, err := s.loadSettings()
	if err != nil {
		log.Printf("[DIVIDEND] Failed to load settings: %v", err)
		SendErrorResponse(w, "Failed to load fund settings", http.StatusInternalServerError, nil)
		return
	}

	members, err := s.loadMembers()
	if err != nil {
		log.Printf("[DIVIDEND] Failed to load members: %v", err)
		SendErrorResponse(w, "Failed to load members", http.StatusInternalServerError, nil)
		return
	}

	candidates, err := ComputeEligible(members, settings, time.Now())
	if err != nil {
		SendErrorResponse(w, "Dividend rate must be greater than zero", http.StatusUnprocessableEntity, nil)
		return
	}

	distributed, failed := 0, 0
	var totalAmount int64
	for _, c := range candidates {
		if err := s.distributeOne(r.Context(), c, req.Year, adminID); err != nil {
			log.Printf("[DIVIDEND] Distribution failed for member %s: %v", c.MemberID, err)
			failed++
			continue
		}
		distributed++
		totalAmount += c.Amount
	}

	log.Printf("[DIVIDEND] Distribution complete - Year: %d, Distributed: %d, Failed: %d, Total: %d",
		req.Year, distributed, failed, totalAmount)
	s.audit.Record(models.AuditDistribute,
		fmt.Sprintf("year %d: %d members, total %d, %d failed", req.Year, distributed, totalAmount, failed),
		"", adminID, adminEmail)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(DistributeResponse{
		Year:        req.Year,
		Distributed: distributed,
		Failed:      failed,
		TotalAmount: totalAmount,
	})
}

// distributeOne credits one member and appends the dividend row in a single
// database transaction. The version check re-validates the balance snapshot
// the amount was computed from; a concurrent approval aborts this member
// without touching the rest of the batch.
func (s *DividendService) distributeOne(ctx context.Context, c DividendCandidate, year int, adminID string) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	result, err := dbTx.Exec(`
		UPDATE members SET balance = balance + $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND balance = $3
	`, c.Amount, c.MemberID, c.Balance)
	if err != nil {
		return fmt.Errorf("failed to credit member: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrStoreConflict
	}

	_, err = dbTx.Exec(`
		INSERT INTO dividends (member_id, year, amount, total_saving, distributed_at, distributed_by)
		VALUES ($1, $2, $3, $4, NOW(), $5)
	`, c.MemberID, year, c.Amount, c.Balance, adminID)
	if err != nil {
		return fmt.Errorf("failed to record dividend: %w", err)
	}

	return dbTx.Commit()
}

// GetSettings returns the fund settings
// @Summary Get fund settings
// @Description Read the singleton fund settings record
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.FundSettings
// @Router /admin/settings [get]
func (s *DividendService) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.loadSettings()
	if err != nil {
		log.Printf("[DIVIDEND] Failed to load settings: %v", err)
		SendErrorResponse(w, "Failed to load fund settings", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(settings)
}

// SaveSettings updates the fund settings
// @Summary Save fund settings
// @Description Upsert the singleton fund settings record
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body SettingsRequest true "Settings"
// @Success 200 {object} models.FundSettings
// @Failure 400 {object} ErrorResponse
// @Router /admin/settings [put]
func (s *DividendService) SaveSettings(w http.ResponseWriter, r *http.Request) {
	adminID, _ := r.Context().Value("userID").(string)
	adminEmail, _ := r.Context().Value("userEmail").(string)

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req SettingsRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	_, err := s.db.Exec(`
		INSERT INTO fund_settings (id, fiscal_year, rate, net_profit, min_balance, min_months, updated_at, updated_by)
		VALUES (1, $1, $2, $3, $4, $5, NOW(), $6)
		ON CONFLICT (id) DO UPDATE SET
			fiscal_year = EXCLUDED.fiscal_year,
			rate = EXCLUDED.rate,
			net_profit = EXCLUDED.net_profit,
			min_balance = EXCLUDED.min_balance,
			min_months = EXCLUDED.min_months,
			updated_at = NOW(),
			updated_by = EXCLUDED.updated_by
	`, req.FiscalYear, req.Rate, req.NetProfit, req.MinBalance, req.MinMonths, adminID)
	if err != nil {
		log.Printf("[DIVIDEND] Failed to save settings: %v", err)
		SendErrorResponse(w, "Failed to save fund settings", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[DIVIDEND] Settings updated by admin %s - Year: %d, Rate: %.2f", adminID, req.FiscalYear, req.Rate)
	s.audit.Record(models.AuditUpdateSettings,
		fmt.Sprintf("year %d, rate %.2f, minBalance %d, minMonths %d", req.FiscalYear, req.Rate, req.MinBalance, req.MinMonths),
		"", adminID, adminEmail)

	settings, err := s.loadSettings()
	if err != nil {
		log.Printf("[DIVIDEND] Failed to reload settings: %v", err)
		SendErrorResponse(w, "Failed to load fund settings", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(settings)
}

// MemberDividends returns the authenticated member's dividend history
// @Summary Get my dividends
// @Description List the member's own dividend records, newest first
// @Tags members
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Dividend
// @Router /members/me/dividends [get]
func (s *DividendService) MemberDividends(w http.ResponseWriter, r *http.Request) {
	memberID, ok := r.Context().Value("userID").(string)
	if !ok || memberID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := s.db.Query(`
		SELECT id, member_id, year, amount, total_saving, distributed_at, distributed_by
		FROM dividends WHERE member_id = $1
		ORDER BY distributed_at DESC
	`, memberID)
	if err != nil {
		log.Printf("[DIVIDEND] Failed to fetch dividends for member %s: %v", memberID, err)
		SendErrorResponse(w, "Failed to fetch dividends", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	dividends := make([]models.Dividend, 0)
	for rows.Next() {
		var d models.Dividend
		if err := rows.Scan(&d.ID, &d.MemberID, &d.Year, &d.Amount, &d.TotalSaving,
			&d.DistributedAt, &d.DistributedBy); err != nil {
			log.Printf("[DIVIDEND] Row scan failed: %v", err)
			continue
		}
		dividends = append(dividends, d)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dividends)
}

// MemberEligibility returns the authenticated member's eligibility breakdown
// @Summary Get my dividend eligibility
// @Description Evaluate the member against current fund rules with a per-criterion breakdown
// @Tags members
// @Produce json
// @Security BearerAuth
// @Success 200 {object} EligibilityResult
// @Router /members/me/eligibility [get]
func (s *DividendService) MemberEligibility(w http.ResponseWriter, r *http.Request) {
	memberID, ok := r.Context().Value("userID").(string)
	if !ok || memberID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var member models.Member
	err := s.db.QueryRow(`
		SELECT id, full_name, balance, registered_at FROM members WHERE id = $1
	`, memberID).Scan(&member.ID, &member.FullName, &member.Balance, &member.RegisteredAt)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Member not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[DIVIDEND] Failed to load member %s: %v", memberID, err)
		SendErrorResponse(w, "Failed to evaluate eligibility", http.StatusInternalServerError, nil)
		return
	}

	settings, err := s.loadSettings()
	if err != nil {
		log.Printf("[DIVIDEND] Failed to load settings: %v", err)
		SendErrorResponse(w, "Failed to evaluate eligibility", http.StatusInternalServerError, nil)
		return
	}

	result := EvaluateEligibility(&member, settings, time.Now())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (s *DividendService) loadSettings() (*models.FundSettings, error) {
	var settings models.FundSettings
	var updatedBy sql.NullString
	err := s.db.QueryRow(`
		SELECT fiscal_year, rate, net_profit, min_balance, min_months, updated_at, updated_by
		FROM fund_settings WHERE id = 1
	`).Scan(&settings.FiscalYear, &settings.Rate, &settings.NetProfit,
		&settings.MinBalance, &settings.MinMonths, &settings.UpdatedAt, &updatedBy)
	if err == sql.ErrNoRows {
		// Defaults until an admin saves settings for the first time.
		return &models.FundSettings{
			FiscalYear: time.Now().Year(),
			MinBalance: 1000,
			MinMonths:  12,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	settings.UpdatedBy = updatedBy.String
	return &settings, nil
}

func (s *DividendService) loadMembers() ([]models.Member, error) {
	rows, err := s.db.Query(`
		SELECT id, full_name, balance, registered_at FROM members ORDER BY registered_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]models.Member, 0)
	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.ID, &m.FullName, &m.Balance, &m.RegisteredAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
