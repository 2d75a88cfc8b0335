package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/villagefund/backend/internal/models"
)

type MemberService struct {
	db        *sql.DB
	validator *validator.Validate
	audit     *AuditService
}

// UpdateProfileRequest represents a member profile update
// @Description Profile update request structure
type UpdateProfileRequest struct {
	FullName string `json:"fullName" validate:"required,min=2" example:"Somchai Jaidee"`
	Phone    string `json:"phone" validate:"required" example:"+66812345678"`
	Address  string `json:"address" validate:"max=300" example:"12 Moo 4, Ban Nong Khai"`
}

// AdjustBalanceRequest represents a manual balance override
// @Description Balance adjustment request structure
type AdjustBalanceRequest struct {
	NewBalance int64  `json:"newBalance" validate:"min=0" example:"2500"`
	Reason     string `json:"reason" validate:"required,min=3,max=200" example:"Correcting ledger entry from paper records"`
}

// MemberDetail represents the admin view of one member
// @Description Member detail structure
type MemberDetail struct {
	Member         models.Member     `json:"member"`
	Dividends      []models.Dividend `json:"dividends"`
	TotalDividends int64             `json:"totalDividends"`
	PendingCount   int               `json:"pendingCount"`
}

func NewMemberService(db *sql.DB, audit *AuditService) *MemberService {
	return &MemberService{
		db:        db,
		validator: validator.New(),
		audit:     audit,
	}
}

// GetProfile returns the authenticated member's profile
// @Summary Get my profile
// @Description Fetch the authenticated member's record including current balance
// @Tags members
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Member
// @Failure 404 {object} ErrorResponse
// @Router /members/me [get]
func (s *MemberService) GetProfile(w http.ResponseWriter, r *http.Request) {
	memberID, ok := r.Context().Value("userID").(string)
	if !ok || memberID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	member, err := s.fetchMember(memberID)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Member not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[MEMBER] Failed to fetch profile %s: %v", memberID, err)
		SendErrorResponse(w, "Failed to fetch profile", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(member)
}

// UpdateProfile updates the authenticated member's contact details
// @Summary Update my profile
// @Description Update name, phone and address. Balance and role are not editable here.
// @Tags members
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body UpdateProfileRequest true "Profile update"
// @Success 200 {object} models.Member
// @Failure 400 {object} ErrorResponse
// @Router /members/me [put]
func (s *MemberService) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	memberID, ok := r.Context().Value("userID").(string)
	if !ok || memberID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req UpdateProfileRequest
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
		UPDATE members SET full_name = $1, phone = $2, address = $3, updated_at = NOW()
		WHERE id = $4
	`, req.FullName, req.Phone, req.Address, memberID)
	if err != nil {
		log.Printf("[MEMBER] Failed to update profile %s: %v", memberID, err)
		SendErrorResponse(w, "Failed to update profile", http.StatusInternalServerError, nil)
		return
	}

	member, err := s.fetchMember(memberID)
	if err != nil {
		log.Printf("[MEMBER] Failed to reload profile %s: %v", memberID, err)
		SendErrorResponse(w, "Failed to fetch profile", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[MEMBER] Profile updated for member %s", memberID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(member)
}

// List returns the member directory for admins
// @Summary List members
// @Description List all members, optionally filtered by a name, code or email search term
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param search query string false "Search by name, member code or email"
// @Success 200 {array} models.Member
// @Router /admin/members [get]
func (s *MemberService) List(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("search")

	query := `
		SELECT id, member_code, full_name, phone, address, email, balance, role, registered_at
		FROM members`
	args := []any{}
	if search != "" {
		query += ` WHERE full_name ILIKE $1 OR member_code ILIKE $1 OR email ILIKE $1`
		args = append(args, "%"+search+"%")
	}
	query += ` ORDER BY registered_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		log.Printf("[MEMBER] Failed to list members: %v", err)
		SendErrorResponse(w, "Failed to fetch members", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	members := make([]models.Member, 0)
	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.ID, &m.MemberCode, &m.FullName, &m.Phone, &m.Address,
			&m.Email, &m.Balance, &m.Role, &m.RegisteredAt); err != nil {
			log.Printf("[MEMBER] Row scan failed: %v", err)
			continue
		}
		members = append(members, m)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(members)
}

// Get returns one member with dividend history for admins
// @Summary Get member detail
// @Description Fetch one member with dividend history, totals and pending transaction count
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Member ID"
// @Success 200 {object} MemberDetail
// @Failure 404 {object} ErrorResponse
// @Router /admin/members/{id} [get]
func (s *MemberService) Get(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "id")

	member, err := s.fetchMember(memberID)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Member not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[MEMBER] Failed to fetch member %s: %v", memberID, err)
		SendErrorResponse(w, "Failed to fetch member", http.StatusInternalServerError, nil)
		return
	}

	detail := MemberDetail{Member: *member, Dividends: make([]models.Dividend, 0)}

	rows, err := s.db.Query(`
		SELECT id, member_id, year, amount, total_saving, distributed_at, distributed_by
		FROM dividends WHERE member_id = $1
		ORDER BY distributed_at DESC
	`, memberID)
	if err != nil {
		log.Printf("[MEMBER] Failed to fetch dividends for %s: %v", memberID, err)
		SendErrorResponse(w, "Failed to fetch member", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	for rows.Next() {
		var d models.Dividend
		if err := rows.Scan(&d.ID, &d.MemberID, &d.Year, &d.Amount, &d.TotalSaving,
			&d.DistributedAt, &d.DistributedBy); err != nil {
			log.Printf("[MEMBER] Row scan failed: %v", err)
			continue
		}
		detail.Dividends = append(detail.Dividends, d)
		detail.TotalDividends += d.Amount
	}

	if err := s.db.QueryRow(`
		SELECT COUNT(*) FROM transactions WHERE member_id = $1 AND status = $2
	`, memberID, models.StatusPending).Scan(&detail.PendingCount); err != nil {
		log.Printf("[MEMBER] Failed to count pending for %s: %v", memberID, err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(detail)
}

// AdjustBalance sets a member's balance directly
// @Summary Adjust member balance
// @Description Serialized, audited balance override. Requires a reason; goes through the same row lock as approvals.
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Member ID"
// @Param request body AdjustBalanceRequest true "Adjustment request"
// @Success 200 {object} models.Member
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /admin/members/{id}/balance [post]
func (s *MemberService) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	adminID, _ := r.Context().Value("userID").(string)
	adminEmail, _ := r.Context().Value("userEmail").(string)
	memberID := chi.URLParam(r, "id")

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req AdjustBalanceRequest
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

	dbTx, err := s.db.BeginTx(r.Context(), nil)
	if err != nil {
		log.Printf("[MEMBER] Failed to begin adjustment for %s: %v", memberID, err)
		SendErrorResponse(w, "Failed to adjust balance", http.StatusInternalServerError, nil)
		return
	}
	defer dbTx.Rollback()

	var oldBalance int64
	err = dbTx.QueryRow(`
		SELECT balance FROM members WHERE id = $1 FOR UPDATE
	`, memberID).Scan(&oldBalance)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Member not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[MEMBER] Failed to lock member %s: %v", memberID, err)
		SendErrorResponse(w, "Failed to adjust balance", http.StatusInternalServerError, nil)
		return
	}

	_, err = dbTx.Exec(`
		UPDATE members SET balance = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2
	`, req.NewBalance, memberID)
	if err != nil {
		log.Printf("[MEMBER] Failed to adjust balance for %s: %v", memberID, err)
		SendErrorResponse(w, "Failed to adjust balance", http.StatusInternalServerError, nil)
		return
	}

	if err := dbTx.Commit(); err != nil {
		log.Printf("[MEMBER] Failed to commit adjustment for %s: %v", memberID, err)
		SendErrorResponse(w, "Failed to adjust balance", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[MEMBER] Balance adjusted for %s by admin %s: %d -> %d", memberID, adminID, oldBalance, req.NewBalance)
	s.audit.Record(models.AuditAdjustBalance,
		fmt.Sprintf("%d -> %d: %s", oldBalance, req.NewBalance, req.Reason),
		memberID, adminID, adminEmail)

	member, err := s.fetchMember(memberID)
	if err != nil {
		log.Printf("[MEMBER] Failed to reload member %s: %v", memberID, err)
		SendErrorResponse(w, "Failed to fetch member", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(member)
}

func (s *MemberService) fetchMember(memberID string) (*models.Member, error) {
	var m models.Member
	err := s.db.QueryRow(`
		SELECT id, member_code, full_name, phone, address, email, balance, role, registered_at
		FROM members WHERE id = $1
	`, memberID).Scan(&m.ID, &m.MemberCode, &m.FullName, &m.Phone, &m.Address,
		&m.Email, &m.Balance, &m.Role, &m.RegisteredAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
