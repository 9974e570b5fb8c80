// Package calculator implements the pure balance math: ledger aggregation,
// debt simplification and pairwise resolution. Functions here take plain
// records and return plain values; all I/O and locking lives in the service
// layer.
//
// Amounts are float64 at the API boundary (two-decimal currency) and integer
// cents internally to keep sums exact.
package calculator

import (
	"errors"
	"fmt"
	"math"

	"github.com/mmynk/splitledger/internal/models"
)

// Validation errors. These are raised before any ledger mutation is
// attempted; callers must reject the write entirely.
var (
	ErrNonPositiveAmount = errors.New("amount must be positive")
	ErrShareMismatch     = errors.New("split shares do not sum to the expense amount")
	ErrPaidMismatch      = errors.New("split payments do not sum to the expense amount")
)

// Cents converts a two-decimal amount to integer cents.
func Cents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// Round2 rounds an amount to two decimal places.
func Round2(amount float64) float64 {
	return math.Round(amount*100) / 100
}

// EqualShares splits amount into n shares that sum exactly to amount.
// Any remainder from integer-cent division goes to the first share.
func EqualShares(amount float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	total := Cents(amount)
	base := total / int64(n)
	rem := total - base*int64(n)

	shares := make([]float64, n)
	for i := range shares {
		c := base
		if i == 0 {
			c += rem
		}
		shares[i] = float64(c) / 100
	}
	return shares
}

// ValidateExpense checks the invariants every expense must satisfy before
// it may touch the ledger: a positive amount, split shares that sum to the
// amount within one cent, and, when the splits record individual payments,
// payments that also sum to the amount.
func ValidateExpense(e *models.Expense) error {
	if Cents(e.Amount) <= 0 {
		return fmt.Errorf("%w: got %.2f", ErrNonPositiveAmount, e.Amount)
	}

	var owed, paid int64
	for _, s := range e.Splits {
		owed += Cents(s.Amount)
		paid += Cents(s.Paid)
	}
	total := Cents(e.Amount)
	if abs64(owed-total) > 1 {
		return fmt.Errorf("%w: shares %.2f, amount %.2f", ErrShareMismatch, float64(owed)/100, e.Amount)
	}
	// A ledger with no recorded payments means the payer fronted everything.
	if paid != 0 && abs64(paid-total) > 1 {
		return fmt.Errorf("%w: payments %.2f, amount %.2f", ErrPaidMismatch, float64(paid)/100, e.Amount)
	}
	return nil
}

// ValidateTransaction checks that a settlement amount is positive.
func ValidateTransaction(t *models.Transaction) error {
	if Cents(t.Amount) <= 0 {
		return fmt.Errorf("%w: got %.2f", ErrNonPositiveAmount, t.Amount)
	}
	return nil
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
