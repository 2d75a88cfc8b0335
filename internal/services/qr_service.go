package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"image/png"

	"github.com/skip2/go-qrcode"
)

// QRService renders submission receipts. The QR payload is just the
// transaction id, a presentation aid for the admin to locate the record.
type QRService struct {
	db *sql.DB
}

func NewQRService(db *sql.DB) *QRService {
	return &QRService{db: db}
}

// ReceiptImage returns a base64 PNG encoding the transaction id, after
// verifying the transaction belongs to the requesting member.
func (s *QRService) ReceiptImage(ctx context.Context, txID, memberID string) (string, error) {
	var owner string
	err := s.db.QueryRowContext(ctx, `
		SELECT member_id FROM transactions WHERE id = $1
	`, txID).Scan(&owner)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if owner != memberID {
		return "", ErrNotFound
	}

	qr, err := qrcode.New(txID, qrcode.Medium)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
