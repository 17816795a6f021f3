package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/Dan9191/advance-service/internal/models"
)

// GenerateHMAC signs the concatenated fields with the given secret
func GenerateHMAC(secret string, fields ...string) string {
	h := hmac.New(sha256.New, []byte(secret))
	for _, f := range fields {
		h.Write([]byte(f))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SignLedgerEntry signs the money-bearing fields of a ledger entry
func SignLedgerEntry(e *models.LedgerEntry, secret string) string {
	return GenerateHMAC(secret,
		strconv.FormatInt(e.LoanID, 10),
		e.Reference,
		string(e.Source),
		e.Amount.StringFixed(2),
		e.BalanceBefore.StringFixed(2),
		e.BalanceAfter.StringFixed(2),
	)
}

// VerifyLedgerEntry reports whether the stored signature still matches the entry
func VerifyLedgerEntry(e *models.LedgerEntry, secret string) bool {
	return hmac.Equal([]byte(e.Signature), []byte(SignLedgerEntry(e, secret)))
}
