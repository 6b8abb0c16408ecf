package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// The amount guards reject non-positive debits before any statement runs, so
// a nil connection pool proves no row was touched.

func TestDebitPayout_NonPositiveAmount(t *testing.T) {
	repo := NewPoolRepo(nil)

	for _, amount := range []string{"0", "-100.00"} {
		t.Run(amount, func(t *testing.T) {
			d := decimal.RequireFromString(amount)
			_, err := repo.DebitPayout(context.Background(), uuid.New(), d, uuid.New(), uuid.New(), "0xrecipient")
			if err == nil {
				t.Fatalf("DebitPayout(%s) succeeded, want amount error", amount)
			}
		})
	}
}

func TestExecutePayout_NonPositiveAmount(t *testing.T) {
	repo := NewClaimRepo(nil)

	for _, amount := range []string{"0", "-500.00"} {
		t.Run(amount, func(t *testing.T) {
			_, err := repo.ExecutePayout(context.Background(), ExecutePayoutParams{
				ClaimID:  uuid.New(),
				PolicyID: uuid.New(),
				PoolID:   uuid.New(),
				UserID:   uuid.New(),
				Amount:   decimal.RequireFromString(amount),
				Currency: "USDT",
			})
			if err == nil {
				t.Fatalf("ExecutePayout(%s) succeeded, want amount error", amount)
			}
		})
	}
}
