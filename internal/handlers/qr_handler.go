package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/villagefund/backend/internal/services"
)

type QRHandler struct {
	service *services.QRService
}

func NewQRHandler(service *services.QRService) *QRHandler {
	return &QRHandler{service: service}
}

// TransactionQR returns a QR receipt for one of the member's transactions
// @Summary Get transaction QR receipt
// @Description Render the transaction id as a base64 PNG QR code
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Success 200 {object} object{transactionId=string,qrImage=string}
// @Failure 404 {object} services.ErrorResponse
// @Router /transactions/{id}/qr [get]
func (h *QRHandler) TransactionQR(w http.ResponseWriter, r *http.Request) {
	memberID, ok := r.Context().Value("userID").(string)
	if !ok || memberID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	txID := chi.URLParam(r, "id")

	qrImage, err := h.service.ReceiptImage(r.Context(), txID, memberID)
	if errors.Is(err, services.ErrNotFound) {
		services.SendErrorResponse(w, "Transaction not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		services.SendErrorResponse(w, "Failed to generate QR code", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"transactionId": txID,
		"qrImage":       qrImage,
	})
}
