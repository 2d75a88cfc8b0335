package services

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"
)

// ReportService exports ledger data for offline bookkeeping.
type ReportService struct {
	db *sql.DB
}

func NewReportService(db *sql.DB) *ReportService {
	return &ReportService{db: db}
}

// ExportTransactionsCSV streams the transaction ledger as CSV
// @Summary Export transactions
// @Description Download the transaction ledger as a CSV file, optionally filtered by status
// @Tags admin
// @Produce text/csv
// @Security BearerAuth
// @Param status query string false "Filter by status (pending, approved, rejected)"
// @Success 200 {string} string "CSV file"
// @Router /admin/reports/transactions.csv [get]
func (s *ReportService) ExportTransactionsCSV(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")

	query := `
		SELECT t.id, m.member_code, m.full_name, t.type, t.amount, t.status, t.note, t.created_at, t.approved_at, t.rejected_at
		FROM transactions t
		JOIN members m ON m.id = t.member_id`
	args := []any{}
	if status != "" {
		query += ` WHERE t.status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY t.created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		log.Printf("[REPORT] Export query failed: %v", err)
		SendErrorResponse(w, "Failed to export transactions", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	filename := fmt.Sprintf("transactions-%s.csv", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	cw := csv.NewWriter(w)
	defer cw.Flush()

	cw.Write([]string{"transaction_id", "member_code", "member_name", "type", "amount", "status", "note", "submitted_at", "approved_at", "rejected_at"})

	count := 0
	for rows.Next() {
		var (
			id, memberCode, memberName, txType, txStatus, note string
			amount                                             int64
			createdAt                                          time.Time
			approvedAt, rejectedAt                             sql.NullTime
		)
		if err := rows.Scan(&id, &memberCode, &memberName, &txType, &amount, &txStatus, &note,
			&createdAt, &approvedAt, &rejectedAt); err != nil {
			log.Printf("[REPORT] Row scan failed: %v", err)
			continue
		}

		record := []string{
			id, memberCode, memberName, txType,
			strconv.FormatInt(amount, 10), txStatus, note,
			createdAt.Format(time.RFC3339),
			formatNullTime(approvedAt),
			formatNullTime(rejectedAt),
		}
		if err := cw.Write(record); err != nil {
			log.Printf("[REPORT] CSV write failed: %v", err)
			return
		}
		count++
	}

	log.Printf("[REPORT] Exported %d transactions", count)
}

func formatNullTime(t sql.NullTime) string {
	if !t.Valid {
		return ""
	}
	return t.Time.Format(time.RFC3339)
}
