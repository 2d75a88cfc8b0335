package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
)

func newTransactionServiceForTest(t *testing.T) (*TransactionService, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	redisClient, _ := redismock.NewClientMock()
	service := NewTransactionService(db, redisClient, nil)
	return service, mock, func() { db.Close() }
}

func submitReq(t *testing.T, req SubmitRequest, memberID string) *http.Request {
	body, err := json.Marshal(req)
	assert.NoError(t, err)
	r := httptest.NewRequest("POST", "/transactions", bytes.NewBuffer(body))
	if memberID != "" {
		r = r.WithContext(context.WithValue(r.Context(), "userID", memberID))
	}
	return r
}

func TestTransactionService_Submit(t *testing.T) {
	service, mock, cleanup := newTransactionServiceForTest(t)
	defer cleanup()

	t.Run("deposit creates a pending record", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO transactions").
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

		w := httptest.NewRecorder()
		service.Submit(w, submitReq(t, SubmitRequest{Type: "deposit", Amount: 500, Note: "Monthly saving"}, testMemberID))

		assert.Equal(t, http.StatusCreated, w.Code)
		var resp SubmitResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "pending", resp.Status)
		assert.NotEmpty(t, resp.TransactionID)
	})

	t.Run("withdrawal above current balance still submits", func(t *testing.T) {
		// The balance is only checked at approval time, under a row lock.
		mock.ExpectQuery("INSERT INTO transactions").
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

		w := httptest.NewRecorder()
		service.Submit(w, submitReq(t, SubmitRequest{Type: "withdraw", Amount: 600}, testMemberID))

		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("amount below the minimum is rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		service.Submit(w, submitReq(t, SubmitRequest{Type: "deposit", Amount: 49}, testMemberID))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown type is rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		service.Submit(w, submitReq(t, SubmitRequest{Type: "transfer", Amount: 500}, testMemberID))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing auth context", func(t *testing.T) {
		w := httptest.NewRecorder()
		service.Submit(w, submitReq(t, SubmitRequest{Type: "deposit", Amount: 500}, ""))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("invalid request body", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/transactions", bytes.NewBuffer([]byte("invalid")))
		r = r.WithContext(context.WithValue(r.Context(), "userID", testMemberID))
		w := httptest.NewRecorder()

		service.Submit(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestTransactionService_History(t *testing.T) {
	service, mock, cleanup := newTransactionServiceForTest(t)
	defer cleanup()

	t.Run("returns newest first with total count", func(t *testing.T) {
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM transactions").
			WithArgs(testMemberID).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectQuery("SELECT id, member_id, type, amount, status, note").
			WithArgs(testMemberID, 20, 0).
			WillReturnRows(sqlmock.NewRows(
				[]string{"id", "member_id", "type", "amount", "status", "note", "created_at", "approved_by", "approved_at", "rejected_by", "rejected_at"}).
				AddRow("t2", testMemberID, "withdraw", 200, "pending", "", time.Now(), nil, nil, nil, nil).
				AddRow("t1", testMemberID, "deposit", 500, "approved", "", time.Now().Add(-time.Hour), testAdminID, time.Now(), nil, nil))

		r := httptest.NewRequest("GET", "/transactions", nil)
		r = r.WithContext(context.WithValue(r.Context(), "userID", testMemberID))
		w := httptest.NewRecorder()

		service.History(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp HistoryResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Total)
		assert.Len(t, resp.Transactions, 2)
		assert.Equal(t, "t2", resp.Transactions[0].ID)
	})

	t.Run("status filter is applied", func(t *testing.T) {
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM transactions").
			WithArgs(testMemberID, "pending").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectQuery("SELECT id, member_id, type, amount, status, note").
			WithArgs(testMemberID, "pending", 20, 0).
			WillReturnRows(sqlmock.NewRows(
				[]string{"id", "member_id", "type", "amount", "status", "note", "created_at", "approved_by", "approved_at", "rejected_by", "rejected_at"}).
				AddRow("t2", testMemberID, "withdraw", 200, "pending", "", time.Now(), nil, nil, nil, nil))

		r := httptest.NewRequest("GET", "/transactions?status=pending", nil)
		r = r.WithContext(context.WithValue(r.Context(), "userID", testMemberID))
		w := httptest.NewRecorder()

		service.History(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp HistoryResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Total)
	})

	t.Run("page size is capped", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/transactions?page=2&pageSize=500", nil)
		page, pageSize := parsePagination(r)
		assert.Equal(t, 2, page)
		assert.Equal(t, 100, pageSize)
	})
}
