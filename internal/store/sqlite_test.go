package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scamlens/scamlens/internal/model"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func sampleInvestigation(id, userID string, level model.ThreatLevel, createdAt time.Time) (model.InvestigationRequest, *model.InvestigationResult) {
	req := model.InvestigationRequest{
		ID:     id,
		UserID: userID,
		Tier:   model.TierBasic,
		Type:   model.TypeQuickScan,
		Artifacts: []model.Artifact{
			{Type: model.ArtifactURL, Content: "https://sketchy.example"},
		},
		CreatedAt: createdAt,
	}
	result := &model.InvestigationResult{
		ID:          id,
		UserID:      userID,
		ThreatLevel: level,
		Confidence:  0.7,
		Summary:     "test summary",
		ModelsUsed:  []string{"cheap-model"},
		CostUSD:     0.002,
		CompletedAt: createdAt.Add(time.Second),
	}
	return req, result
}

func TestSQLite_SaveAndGet(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	req, result := sampleInvestigation("inv-1", "user-1", model.ThreatHigh, time.Now().UTC())
	require.NoError(t, s.SaveInvestigation(ctx, req, result))

	got, err := s.GetInvestigation(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, result.ID, got.ID)
	assert.Equal(t, result.ThreatLevel, got.ThreatLevel)
	assert.Equal(t, result.Summary, got.Summary)
	assert.InDelta(t, result.CostUSD, got.CostUSD, 1e-12)
}

func TestSQLite_Get_NotFound(t *testing.T) {
	s := newSQLiteStore(t)

	_, err := s.GetInvestigation(context.Background(), "missing")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_List_Filters(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		level := model.ThreatLow
		user := "user-a"
		if i%2 == 1 {
			level = model.ThreatCritical
			user = "user-b"
		}
		req, result := sampleInvestigation(fmt.Sprintf("inv-%d", i), user, level, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, s.SaveInvestigation(ctx, req, result))
	}

	all, err := s.ListInvestigations(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 5)
	// Newest first.
	assert.Equal(t, "inv-4", all[0].ID)

	byUser, err := s.ListInvestigations(ctx, ListFilter{UserID: "user-b"})
	require.NoError(t, err)
	assert.Len(t, byUser, 2)

	byLevel, err := s.ListInvestigations(ctx, ListFilter{ThreatLevel: model.ThreatCritical})
	require.NoError(t, err)
	assert.Len(t, byLevel, 2)

	recent, err := s.ListInvestigations(ctx, ListFilter{CreatedAfter: base.Add(2*time.Minute + time.Second)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	limited, err := s.ListInvestigations(ctx, ListFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "inv-3", limited[0].ID)
}

func TestSQLite_Ledger(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// An empty ledger reads as a zero balance.
	balance, err := s.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, balance)

	require.NoError(t, s.RecordDebit(ctx, model.LedgerEntry{
		ID: "led-1", UserID: "user-1", DeltaUSD: 10, Reason: "top-up", CreatedAt: now,
	}))
	require.NoError(t, s.RecordDebit(ctx, model.LedgerEntry{
		ID: "led-2", UserID: "user-1", InvestigationID: "inv-1",
		DeltaUSD: -0.25, Reason: "investigation quick-scan", CreatedAt: now.Add(time.Second),
	}))

	balance, err = s.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.InDelta(t, 9.75, balance, 1e-9)

	// Another user's ledger is untouched.
	other, err := s.Balance(ctx, "user-2")
	require.NoError(t, err)
	assert.Zero(t, other)

	entries, err := s.ListLedger(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "led-2", entries[0].ID)
	assert.InDelta(t, 9.75, entries[0].BalanceUSD, 1e-9)
	assert.Equal(t, "inv-1", entries[0].InvestigationID)
}

func TestSQLite_Ledger_ConcurrentDebits(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.RecordDebit(ctx, model.LedgerEntry{
		ID: "led-topup", UserID: "user-1", DeltaUSD: 100, Reason: "top-up", CreatedAt: now,
	}))

	// Each entry's snapshot must extend the previous one even when debits
	// land at the same instant from separate goroutines.
	const debits = 25
	var wg sync.WaitGroup
	errs := make([]error, debits)
	for i := 0; i < debits; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.RecordDebit(ctx, model.LedgerEntry{
				ID:        fmt.Sprintf("led-%d", i),
				UserID:    "user-1",
				DeltaUSD:  -1,
				Reason:    "investigation quick-scan",
				CreatedAt: now,
			})
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "debit %d", i)
	}

	balance, err := s.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.InDelta(t, 75.0, balance, 1e-9)

	// The snapshot chain holds every intermediate balance exactly once.
	entries, err := s.ListLedger(ctx, "user-1", debits+1)
	require.NoError(t, err)
	require.Len(t, entries, debits+1)
	seen := make(map[int]bool, debits)
	for _, e := range entries[:debits] {
		seen[int(e.BalanceUSD)] = true
	}
	for want := 75; want < 100; want++ {
		assert.True(t, seen[want], "missing balance snapshot %d", want)
	}
}

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	s := newSQLiteStore(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Migrate(context.Background()))
}
