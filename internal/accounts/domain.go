package accounts

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountStatus enumerates the lifecycle states of an account. Only ACTIVE
// accounts may be debited or credited.
type AccountStatus string

const (
	StatusActive   AccountStatus = "ACTIVE"
	StatusInactive AccountStatus = "INACTIVE"
	StatusLocked   AccountStatus = "LOCKED"
	StatusPending  AccountStatus = "PENDING"
)

// Account is the canonical balance record. The transaction engine is the
// only writer of Balance; accounts are deactivated, never deleted.
type Account struct {
	ID         uuid.UUID       `json:"id"`
	Number     string          `json:"number"`
	HolderName string          `json:"holder_name"`
	Currency   string          `json:"currency"`
	Balance    decimal.Decimal `json:"balance"`
	Status     AccountStatus   `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

var (
	// ErrNotFound indicates the account does not exist.
	ErrNotFound = errors.New("accounts: account not found")
	// ErrInvalidTransition indicates a status change the lifecycle forbids.
	ErrInvalidTransition = errors.New("accounts: invalid status transition")
	// ErrDuplicateNumber indicates an account number collision.
	ErrDuplicateNumber = errors.New("accounts: account number already exists")
)

var currencyCodes = map[string]string{
	"USD": "10",
	"EUR": "20",
	"GBP": "30",
	"JPY": "40",
	"TWD": "50",
}

// accountNumberLength is the full length including the check digit.
const accountNumberLength = 20

// GenerateAccountNumber builds a 20-digit account number:
// [bank code][branch code][currency code][random digits][Luhn check digit].
func GenerateAccountNumber(bankCode, branchCode, currency string) (string, error) {
	currencyCode, ok := currencyCodes[currency]
	if !ok {
		return "", fmt.Errorf("accounts: unsupported currency %q", currency)
	}
	prefix := bankCode + branchCode + currencyCode
	remaining := accountNumberLength - len(prefix) - 1
	if remaining <= 0 {
		return "", fmt.Errorf("accounts: bank/branch prefix too long: %q", prefix)
	}
	digits := make([]byte, remaining)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("accounts: generate account number: %w", err)
		}
		digits[i] = byte('0' + n.Int64())
	}
	partial := prefix + string(digits)
	return partial + string(byte('0'+luhnCheckDigit(partial))), nil
}

// ValidateAccountNumber reports whether the number has the expected length
// and a correct Luhn check digit.
func ValidateAccountNumber(number string) bool {
	if len(number) != accountNumberLength {
		return false
	}
	for _, r := range number {
		if r < '0' || r > '9' {
			return false
		}
	}
	body := number[:len(number)-1]
	check := int(number[len(number)-1] - '0')
	return luhnCheckDigit(body) == check
}

func luhnCheckDigit(number string) int {
	total := 0
	double := true
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		total += d
		double = !double
	}
	return (10 - total%10) % 10
}
