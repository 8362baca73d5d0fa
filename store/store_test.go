package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polymarket-maker-go/inventory"
	"polymarket-maker-go/market"
	"polymarket-maker-go/order"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "quoter.db"), "0xcond")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadLatestSnapshotEmpty(t *testing.T) {
	s := openTestStore(t)
	_, err := s.LoadLatestSnapshot(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ledger := inventory.NewLedger()
	ledger.RecordFill(market.OutcomeYes, market.SideBuy, 0.40, 10)
	ledger.RecordFill(market.OutcomeNo, market.SideBuy, 0.55, 10)

	require.NoError(t, s.SaveSnapshot(ctx, ledger.Snapshot()))

	snap, err := s.LoadLatestSnapshot(ctx)
	require.NoError(t, err)

	restored := inventory.NewLedger()
	restored.Restore(snap)

	assert.Equal(t, 10.0, restored.Quantity(market.OutcomeYes))
	assert.Equal(t, 10.0, restored.Quantity(market.OutcomeNo))
	assert.InDelta(t, ledger.LockedProfit(), restored.LockedProfit(), 1e-9)
	assert.Equal(t, int64(2), restored.TotalTrades())
}

func TestSnapshotUpsertKeepsSingleRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ledger := inventory.NewLedger()
	for i := 0; i < 5; i++ {
		ledger.RecordFill(market.OutcomeYes, market.SideBuy, 0.50, 10)
		require.NoError(t, s.SaveSnapshot(ctx, ledger.Snapshot()))
	}

	snap, err := s.LoadLatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50.0, snap.QYes, "latest write wins")
}

func TestFillJournalAndSummary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	fills := []order.FillRecord{
		{OrderID: "a", Outcome: market.OutcomeYes, Side: market.SideBuy, Price: 0.40, Size: 10, Timestamp: now},
		{OrderID: "b", Outcome: market.OutcomeYes, Side: market.SideBuy, Price: 0.42, Size: 10, Timestamp: now.Add(time.Second)},
		{OrderID: "c", Outcome: market.OutcomeNo, Side: market.SideBuy, Price: 0.55, Size: 5, Timestamp: now.Add(2 * time.Second)},
	}
	for _, f := range fills {
		require.NoError(t, s.AppendFill(ctx, f))
	}

	summary, err := s.SummarizeFills(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 2)

	// ordered by outcome: NO before YES
	assert.Equal(t, string(market.OutcomeNo), summary[0].Outcome)
	assert.Equal(t, 5.0, summary[0].Volume)
	assert.Equal(t, int64(2), summary[1].Count)
	assert.Equal(t, 20.0, summary[1].Volume)

	recent, err := s.RecentFills(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].OrderID, "newest first")
	assert.Equal(t, market.OutcomeNo, recent[0].Outcome)
	assert.Equal(t, market.SideBuy, recent[0].Side)
}
