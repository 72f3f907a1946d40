package model

import "time"

// LedgerEntry records one credit movement against a user's balance.
// Debits carry a negative delta; Balance is the post-entry snapshot.
type LedgerEntry struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	InvestigationID string    `json:"investigation_id,omitempty"`
	DeltaUSD        float64   `json:"delta_usd"`
	BalanceUSD      float64   `json:"balance_usd"`
	Reason          string    `json:"reason"`
	CreatedAt       time.Time `json:"created_at"`
}
