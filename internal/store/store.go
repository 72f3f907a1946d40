// Package store persists finished investigations and the credit ledger.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/scamlens/scamlens/internal/model"
)

// ErrNotFound is returned when a persisted record does not exist.
var ErrNotFound = eris.New("store: not found")

// ListFilter specifies criteria for listing investigations.
type ListFilter struct {
	UserID       string            `json:"user_id,omitempty"`
	ThreatLevel  model.ThreatLevel `json:"threat_level,omitempty"`
	CreatedAfter time.Time         `json:"created_after,omitempty"`
	Limit        int               `json:"limit,omitempty"`
	Offset       int               `json:"offset,omitempty"`
}

// Store defines persistence for investigation reports and credit movements.
type Store interface {
	// Investigations
	SaveInvestigation(ctx context.Context, req model.InvestigationRequest, result *model.InvestigationResult) error
	GetInvestigation(ctx context.Context, id string) (*model.InvestigationResult, error)
	ListInvestigations(ctx context.Context, filter ListFilter) ([]model.InvestigationResult, error)

	// Ledger
	RecordDebit(ctx context.Context, entry model.LedgerEntry) error
	Balance(ctx context.Context, userID string) (float64, error)
	ListLedger(ctx context.Context, userID string, limit int) ([]model.LedgerEntry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
