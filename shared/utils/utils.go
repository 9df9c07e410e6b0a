package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// GenerateID generates a unique ID with the given prefix
func GenerateID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

// GenerateAccountNumber generates an IBAN-prefixed 16 digit account number
func GenerateAccountNumber() string {
	const lowest = 1000000000000000
	num, _ := rand.Int(rand.Reader, big.NewInt(9000000000000000))
	return fmt.Sprintf("IBAN%d", lowest+num.Int64())
}

// ValidateAccountNumber validates the account number format
func ValidateAccountNumber(accountNumber string) bool {
	return len(accountNumber) == 20 && strings.HasPrefix(accountNumber, "IBAN")
}

// ValidateTransactionID validates the transaction ID format
func ValidateTransactionID(transactionID string) bool {
	return strings.HasPrefix(transactionID, "tan-")
}
