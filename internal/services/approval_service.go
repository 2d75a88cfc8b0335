package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"

	"github.com/villagefund/backend/internal/models"
)

// maxConflictRetries bounds how many times an approval is replayed after an
// optimistic version conflict before the error surfaces to the admin.
const maxConflictRetries = 3

// ApprovalService reviews pending transactions. Approving a withdrawal or
// deposit mutates the member balance and the transaction status inside one
// database transaction, so no observer can see one without the other.
type ApprovalService struct {
	db        *sql.DB
	redis     *redis.Client
	validator *validator.Validate
	audit     *AuditService
	watch     *WatchService
}

// BulkRequest represents a batch approve or reject payload
// @Description Bulk review request structure
type BulkRequest struct {
	TransactionIDs []string `json:"transactionIds" validate:"required,min=1,max=100,dive,uuid4"`
}

// BulkItemResult represents one item's outcome in a bulk review
type BulkItemResult struct {
	TransactionID string `json:"transactionId"`
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
}

// BulkResponse represents the batch review summary
// @Description Bulk review response structure
type BulkResponse struct {
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Results   []BulkItemResult `json:"results"`
}

// ReviewResponse represents a single approve or reject result
// @Description Review response structure
type ReviewResponse struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	NewBalance    *int64 `json:"newBalance,omitempty"`
}

func NewApprovalService(db *sql.DB, redisClient *redis.Client, audit *AuditService, watch *WatchService) *ApprovalService {
	return &ApprovalService{
		db:        db,
		redis:     redisClient,
		validator: validator.New(),
		audit:     audit,
		watch:     watch,
	}
}

// approveTx applies one approval atomically. On approval the member balance
// moves by the transaction amount and the status flips to approved in the
// same database transaction. Returns the member's new balance.
func (s *ApprovalService) approveTx(ctx context.Context, txID, adminID string) (int64, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	var t models.Transaction
	err = dbTx.QueryRow(`
		SELECT id, member_id, type, amount, status
		FROM transactions WHERE id = $1 FOR UPDATE
	`, txID).Scan(&t.ID, &t.MemberID, &t.Type, &t.Amount, &t.Status)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to lock transaction: %w", err)
	}

	if t.Status != models.StatusPending {
		return 0, ErrNotPending
	}

	var balance int64
	var version int
	err = dbTx.QueryRow(`
		SELECT balance, version FROM members WHERE id = $1 FOR UPDATE
	`, t.MemberID).Scan(&balance, &version)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to lock member: %w", err)
	}

	var newBalance int64
	switch t.Type {
	case models.TypeDeposit:
		newBalance = balance + t.Amount
	case models.TypeWithdraw:
		if balance < t.Amount {
			return 0, ErrInsufficientFunds
		}
		newBalance = balance - t.Amount
	default:
		return 0, fmt.Errorf("unknown transaction type: %s", t.Type)
	}

	result, err := dbTx.Exec(`
		UPDATE members SET balance = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3
	`, newBalance, t.MemberID, version)
	if err != nil {
		return 0, fmt.Errorf("failed to update balance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return 0, ErrStoreConflict
	}

	_, err = dbTx.Exec(`
		UPDATE transactions SET status = $1, approved_by = $2, approved_at = NOW()
		WHERE id = $3
	`, models.StatusApproved, adminID, txID)
	if err != nil {
		return 0, fmt.Errorf("failed to update transaction status: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit approval: %w", err)
	}

	return newBalance, nil
}

// rejectTx marks one pending transaction rejected. Rejection never touches
// the member balance.
func (s *ApprovalService) rejectTx(ctx context.Context, txID, adminID, reason string) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	var status string
	err = dbTx.QueryRow(`
		SELECT status FROM transactions WHERE id = $1 FOR UPDATE
	`, txID).Scan(&status)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock transaction: %w", err)
	}

	if status != models.StatusPending {
		return ErrNotPending
	}

	if reason != "" {
		_, err = dbTx.Exec(`
			UPDATE transactions SET status = $1, rejected_by = $2, rejected_at = NOW(), note = $3
			WHERE id = $4
		`, models.StatusRejected, adminID, reason, txID)
	} else {
		_, err = dbTx.Exec(`
			UPDATE transactions SET status = $1, rejected_by = $2, rejected_at = NOW()
			WHERE id = $3
		`, models.StatusRejected, adminID, txID)
	}
	if err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rejection: %w", err)
	}

	return nil
}

// ApproveWithRetry replays an approval after optimistic version conflicts.
// All other errors surface immediately.
func (s *ApprovalService) ApproveWithRetry(ctx context.Context, txID, adminID string) (int64, error) {
	var newBalance int64
	var err error
	for attempt := 1; attempt <= maxConflictRetries; attempt++ {
		newBalance, err = s.approveTx(ctx, txID, adminID)
		if !errors.Is(err, ErrStoreConflict) {
			return newBalance, err
		}
		log.Printf("[APPROVAL] Version conflict on transaction %s (attempt %d/%d)", txID, attempt, maxConflictRetries)
	}
	return 0, err
}

// Approve handles a single transaction approval
// @Summary Approve a transaction
// @Description Approve one pending transaction, atomically updating the member balance
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Success 200 {object} ReviewResponse "Transaction approved"
// @Failure 404 {object} ErrorResponse "Transaction not found"
// @Failure 409 {object} ErrorResponse "Transaction not pending"
// @Failure 422 {object} ErrorResponse "Insufficient balance"
// @Router /admin/transactions/{id}/approve [post]
func (s *ApprovalService) Approve(w http.ResponseWriter, r *http.Request) {
	adminID, _ := r.Context().Value("userID").(string)
	adminEmail, _ := r.Context().Value("userEmail").(string)
	txID := chi.URLParam(r, "id")

	newBalance, err := s.ApproveWithRetry(r.Context(), txID, adminID)
	if err != nil {
		s.sendReviewError(w, txID, err)
		return
	}

	log.Printf("[APPROVAL] Approved transaction %s by admin %s, new balance %d", txID, adminID, newBalance)
	s.audit.Record(models.AuditApprove, fmt.Sprintf("new balance %d", newBalance), txID, adminID, adminEmail)
	if s.watch != nil {
		s.watch.PublishPendingEvent(r.Context(), PendingEvent{
			Event:         "approved",
			TransactionID: txID,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ReviewResponse{
		TransactionID: txID,
		Status:        models.StatusApproved,
		NewBalance:    &newBalance,
	})
}

// RejectRequest represents an optional rejection reason
// @Description Rejection request structure
type RejectRequest struct {
	Reason string `json:"reason" validate:"max=200" example:"Amount mismatch with slip"`
}

// Reject handles a single transaction rejection
// @Summary Reject a transaction
// @Description Reject one pending transaction, leaving the member balance untouched
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Param request body RejectRequest false "Rejection reason"
// @Success 200 {object} ReviewResponse "Transaction rejected"
// @Failure 404 {object} ErrorResponse "Transaction not found"
// @Failure 409 {object} ErrorResponse "Transaction not pending"
// @Router /admin/transactions/{id}/reject [post]
func (s *ApprovalService) Reject(w http.ResponseWriter, r *http.Request) {
	adminID, _ := r.Context().Value("userID").(string)
	adminEmail, _ := r.Context().Value("userEmail").(string)
	txID := chi.URLParam(r, "id")

	var req RejectRequest
	if r.Body != nil && r.ContentLength > 0 {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1_048_576))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
			return
		}
		if err := s.validator.Struct(&req); err != nil {
			SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
			return
		}
	}

	if err := s.rejectTx(r.Context(), txID, adminID, req.Reason); err != nil {
		s.sendReviewError(w, txID, err)
		return
	}

	log.Printf("[APPROVAL] Rejected transaction %s by admin %s", txID, adminID)
	s.audit.Record(models.AuditReject, req.Reason, txID, adminID, adminEmail)
	if s.watch != nil {
		s.watch.PublishPendingEvent(r.Context(), PendingEvent{
			Event:         "rejected",
			TransactionID: txID,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ReviewResponse{
		TransactionID: txID,
		Status:        models.StatusRejected,
	})
}

// BulkApprove handles batch approval
// @Summary Bulk approve transactions
// @Description Approve many pending transactions; each item succeeds or fails independently
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body BulkRequest true "Bulk request"
// @Success 200 {object} BulkResponse "Batch summary"
// @Failure 400 {object} ErrorResponse
// @Router /admin/transactions/bulk-approve [post]
func (s *ApprovalService) BulkApprove(w http.ResponseWriter, r *http.Request) {
	s.bulkReview(w, r, true)
}

// BulkReject handles batch rejection
// @Summary Bulk reject transactions
// @Description Reject many pending transactions; each item succeeds or fails independently
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body BulkRequest true "Bulk request"
// @Success 200 {object} BulkResponse "Batch summary"
// @Failure 400 {object} ErrorResponse
// @Router /admin/transactions/bulk-reject [post]
func (s *ApprovalService) BulkReject(w http.ResponseWriter, r *http.Request) {
	s.bulkReview(w, r, false)
}

// bulkReview processes each ID in its own database transaction. One bad item
// never rolls back the rest of the batch.
func (s *ApprovalService) bulkReview(w http.ResponseWriter, r *http.Request, approve bool) {
	adminID, _ := r.Context().Value("userID").(string)
	adminEmail, _ := r.Context().Value("userEmail").(string)

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req BulkRequest
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

	results := make([]BulkItemResult, 0, len(req.TransactionIDs))
	succeeded, failed := 0, 0

	for _, txID := range req.TransactionIDs {
		var err error
		if approve {
			_, err = s.ApproveWithRetry(r.Context(), txID, adminID)
		} else {
			err = s.rejectTx(r.Context(), txID, adminID, "")
		}

		item := BulkItemResult{TransactionID: txID, Success: err == nil}
		if err != nil {
			item.Error = err.Error()
			failed++
			log.Printf("[APPROVAL] Bulk item failed - ID: %s, Error: %v", txID, err)
		} else {
			succeeded++
		}
		results = append(results, item)
	}

	action := models.AuditBulkApprove
	event := "approved"
	if !approve {
		action = models.AuditBulkReject
		event = "rejected"
	}
	s.audit.Record(action, fmt.Sprintf("%d succeeded, %d failed", succeeded, failed), "", adminID, adminEmail)
	if s.watch != nil && succeeded > 0 {
		s.watch.PublishPendingEvent(r.Context(), PendingEvent{Event: event})
	}

	log.Printf("[APPROVAL] Bulk %s complete - Succeeded: %d, Failed: %d", event, succeeded, failed)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(BulkResponse{
		Succeeded: succeeded,
		Failed:    failed,
		Results:   results,
	})
}

// ListPending returns all pending transactions for review
// @Summary List pending transactions
// @Description List pending transactions with member names, newest first
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.PendingTransaction
// @Router /admin/pending [get]
func (s *ApprovalService) ListPending(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.Query(`
		SELECT t.id, t.member_id, t.type, t.amount, t.status, t.note, t.created_at, m.full_name
		FROM transactions t
		JOIN members m ON m.id = t.member_id
		WHERE t.status = $1
		ORDER BY t.created_at DESC
	`, models.StatusPending)
	if err != nil {
		log.Printf("[APPROVAL] Failed to list pending transactions: %v", err)
		SendErrorResponse(w, "Failed to fetch pending transactions", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	pending := make([]models.PendingTransaction, 0)
	for rows.Next() {
		var p models.PendingTransaction
		if err := rows.Scan(&p.ID, &p.MemberID, &p.Type, &p.Amount, &p.Status, &p.Note,
			&p.CreatedAt, &p.MemberName); err != nil {
			log.Printf("[APPROVAL] Row scan failed: %v", err)
			continue
		}
		pending = append(pending, p)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pending)
}

func (s *ApprovalService) sendReviewError(w http.ResponseWriter, txID string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		SendErrorResponse(w, "Transaction not found", http.StatusNotFound, nil)
	case errors.Is(err, ErrNotPending):
		SendErrorResponse(w, "Transaction has already been reviewed", http.StatusConflict, nil)
	case errors.Is(err, ErrInsufficientFunds):
		SendErrorResponse(w, "Member balance is insufficient for this withdrawal", http.StatusUnprocessableEntity, nil)
	case errors.Is(err, ErrStoreConflict):
		SendErrorResponse(w, "Concurrent modification, please retry", http.StatusConflict, nil)
	default:
		log.Printf("[APPROVAL] Review failed for transaction %s: %v", txID, err)
		SendErrorResponse(w, "Failed to review transaction", http.StatusInternalServerError, nil)
	}
}
