package services

import (
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/villagefund/backend/internal/models"
)

// MinSubmissionAmount is the smallest deposit or withdrawal a member may
// submit. Withdrawals are not checked against the balance here; the balance
// check happens once, at approval time, under a row lock.
const MinSubmissionAmount = 50

type TransactionService struct {
	db        *sql.DB
	redis     *redis.Client
	validator *validator.Validate
	watch     *WatchService
}

// SubmitRequest represents a deposit or withdrawal submission
// @Description Transaction submission request structure
type SubmitRequest struct {
	Type   string `json:"type" validate:"required,oneof=deposit withdraw" example:"deposit"`
	Amount int64  `json:"amount" validate:"required,min=50" example:"500"`
	Note   string `json:"note" validate:"max=200" example:"Monthly saving"`
}

// SubmitResponse represents the submission result
// @Description Transaction submission response structure
type SubmitResponse struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}

// HistoryResponse represents a page of a member's transaction history
// @Description Transaction history response structure
type HistoryResponse struct {
	Transactions []models.Transaction `json:"transactions"`
	Total        int                  `json:"total"`
	Page         int                  `json:"page"`
	PageSize     int                  `json:"pageSize"`
}

func NewTransactionService(db *sql.DB, redisClient *redis.Client, watch *WatchService) *TransactionService {
	return &TransactionService{
		db:        db,
		redis:     redisClient,
		validator: validator.New(),
		watch:     watch,
	}
}

// Submit handles a new deposit or withdrawal request
// @Summary Submit a transaction
// @Description Create a pending deposit or withdrawal awaiting admin approval
// @Tags transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body SubmitRequest true "Submission request"
// @Success 201 {object} SubmitResponse "Transaction created"
// @Failure 400 {object} ErrorResponse
// @Router /transactions [post]
func (s *TransactionService) Submit(w http.ResponseWriter, r *http.Request) {
	memberID, ok := r.Context().Value("userID").(string)
	if !ok || memberID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req SubmitRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		log.Printf("[TRANSACTION] Submission validation failed for member %s: %v", memberID, err)
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	txID := uuid.NewString()
	var createdAt time.Time
	err := s.db.QueryRow(`
		INSERT INTO transactions (id, member_id, type, amount, status, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING created_at
	`, txID, memberID, req.Type, req.Amount, models.StatusPending, req.Note).Scan(&createdAt)
	if err != nil {
		log.Printf("[TRANSACTION] Failed to create transaction for member %s: %v", memberID, err)
		SendErrorResponse(w, "Failed to create transaction", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[TRANSACTION] Submitted - ID: %s, Member: %s, Type: %s, Amount: %d",
		txID, memberID, req.Type, req.Amount)

	if s.watch != nil {
		s.watch.PublishPendingEvent(r.Context(), PendingEvent{
			Event:         "submitted",
			TransactionID: txID,
			MemberID:      memberID,
			Type:          req.Type,
			Amount:        req.Amount,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(SubmitResponse{
		TransactionID: txID,
		Status:        models.StatusPending,
		Message:       "Transaction submitted for approval",
	})
}

// History returns the authenticated member's transaction history
// @Summary Get transaction history
// @Description List the member's own transactions, newest first, with optional status and type filters
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Param status query string false "Filter by status (pending, approved, rejected)"
// @Param type query string false "Filter by type (deposit, withdraw)"
// @Param page query int false "Page number (default 1)"
// @Param pageSize query int false "Page size (default 20, max 100)"
// @Success 200 {object} HistoryResponse
// @Router /transactions [get]
func (s *TransactionService) History(w http.ResponseWriter, r *http.Request) {
	memberID, ok := r.Context().Value("userID").(string)
	if !ok || memberID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	status := r.URL.Query().Get("status")
	txType := r.URL.Query().Get("type")
	page, pageSize := parsePagination(r)

	query := `
		SELECT id, member_id, type, amount, status, note, created_at, approved_by, approved_at, rejected_by, rejected_at
		FROM transactions WHERE member_id = $1`
	countQuery := `SELECT COUNT(*) FROM transactions WHERE member_id = $1`
	args := []any{memberID}

	if status != "" {
		args = append(args, status)
		cond := " AND status = $" + strconv.Itoa(len(args))
		query += cond
		countQuery += cond
	}
	if txType != "" {
		args = append(args, txType)
		cond := " AND type = $" + strconv.Itoa(len(args))
		query += cond
		countQuery += cond
	}

	var total int
	if err := s.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		log.Printf("[TRANSACTION] History count failed for member %s: %v", memberID, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	query += " ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args)+1) + " OFFSET $" + strconv.Itoa(len(args)+2)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		log.Printf("[TRANSACTION] History query failed for member %s: %v", memberID, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	transactions := make([]models.Transaction, 0)
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.MemberID, &t.Type, &t.Amount, &t.Status, &t.Note,
			&t.CreatedAt, &t.ApprovedBy, &t.ApprovedAt, &t.RejectedBy, &t.RejectedAt); err != nil {
			log.Printf("[TRANSACTION] Row scan failed: %v", err)
			continue
		}
		transactions = append(transactions, t)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HistoryResponse{
		Transactions: transactions,
		Total:        total,
		Page:         page,
		PageSize:     pageSize,
	})
}

// Recent returns the member's latest transactions for the dashboard
// @Summary Get recent transactions
// @Description List the member's five most recent transactions of any status
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Transaction
// @Router /transactions/recent [get]
func (s *TransactionService) Recent(w http.ResponseWriter, r *http.Request) {
	memberID, ok := r.Context().Value("userID").(string)
	if !ok || memberID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := s.db.Query(`
		SELECT id, member_id, type, amount, status, note, created_at, approved_by, approved_at, rejected_by, rejected_at
		FROM transactions WHERE member_id = $1
		ORDER BY created_at DESC LIMIT 5
	`, memberID)
	if err != nil {
		log.Printf("[TRANSACTION] Recent query failed for member %s: %v", memberID, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	transactions := make([]models.Transaction, 0, 5)
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.MemberID, &t.Type, &t.Amount, &t.Status, &t.Note,
			&t.CreatedAt, &t.ApprovedBy, &t.ApprovedAt, &t.RejectedBy, &t.RejectedAt); err != nil {
			log.Printf("[TRANSACTION] Row scan failed: %v", err)
			continue
		}
		transactions = append(transactions, t)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transactions)
}

// Get returns a single transaction owned by the authenticated member
// @Summary Get a transaction
// @Description Fetch one of the member's own transactions by ID
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Success 200 {object} models.Transaction
// @Failure 404 {object} ErrorResponse
// @Router /transactions/{id} [get]
func (s *TransactionService) Get(w http.ResponseWriter, r *http.Request) {
	memberID, ok := r.Context().Value("userID").(string)
	if !ok || memberID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	txID := chi.URLParam(r, "id")

	var t models.Transaction
	err := s.db.QueryRow(`
		SELECT id, member_id, type, amount, status, note, created_at, approved_by, approved_at, rejected_by, rejected_at
		FROM transactions WHERE id = $1 AND member_id = $2
	`, txID, memberID).Scan(&t.ID, &t.MemberID, &t.Type, &t.Amount, &t.Status, &t.Note,
		&t.CreatedAt, &t.ApprovedBy, &t.ApprovedAt, &t.RejectedBy, &t.RejectedAt)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Transaction not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[TRANSACTION] Fetch failed for %s: %v", txID, err)
		SendErrorResponse(w, "Failed to fetch transaction", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(t)
}

func parsePagination(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("pageSize"))
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
