package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/villagefund/backend/internal/services"
)

func TestQRHandler_TransactionQR(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	handler := NewQRHandler(services.NewQRService(db))

	router := chi.NewRouter()
	router.Get("/transactions/{id}/qr", handler.TransactionQR)

	txID := "7d444840-9dc0-11d1-b245-5ffdce74fad2"
	memberID := "6ba7b810-9dad-11d1-80b4-00c04fd430c8"

	t.Run("owner gets a base64 image", func(t *testing.T) {
		mock.ExpectQuery("SELECT member_id FROM transactions").
			WithArgs(txID).
			WillReturnRows(sqlmock.NewRows([]string{"member_id"}).AddRow(memberID))

		r := httptest.NewRequest("GET", "/transactions/"+txID+"/qr", nil)
		r = r.WithContext(context.WithValue(r.Context(), "userID", memberID))
		w := httptest.NewRecorder()

		router.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp map[string]string
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, txID, resp["transactionId"])
		assert.NotEmpty(t, resp["qrImage"])
	})

	t.Run("someone else's transaction is not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT member_id FROM transactions").
			WithArgs(txID).
			WillReturnRows(sqlmock.NewRows([]string{"member_id"}).AddRow("other-member"))

		r := httptest.NewRequest("GET", "/transactions/"+txID+"/qr", nil)
		r = r.WithContext(context.WithValue(r.Context(), "userID", memberID))
		w := httptest.NewRecorder()

		router.ServeHTTP(w, r)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
