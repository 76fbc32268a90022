package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-backtest-lab/internal/domain"
	"call-backtest-lab/internal/storage"
)

func createTestTradeResult(tradeID, callID, strategyID string, entryTime int64) *domain.TradeResult {
	return &domain.TradeResult{
		TradeID:             tradeID,
		CallID:              callID,
		StrategyID:          strategyID,
		EntryPrice:          0.0042,
		EntryTime:           entryTime,
		ExitTime:            entryTime + 3600,
		ExitReason:          domain.ExitReasonTrailingStop,
		TargetsHit:          2,
		PnLMultiplier:       1.85,
		MaxReached:          2.4,
		HoldDurationMinutes: 60,
		PassedFilters:       true,
		Status:              domain.TradeStatusSimulated,
	}
}

func TestTradeResultStore_InsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeResultStore(pool)

	trade := createTestTradeResult("trade-001", "call-001", "strat-a", 1000)
	require.NoError(t, store.Insert(ctx, trade))

	retrieved, err := store.GetByID(ctx, "trade-001")
	require.NoError(t, err)

	assert.Equal(t, trade.TradeID, retrieved.TradeID)
	assert.Equal(t, trade.CallID, retrieved.CallID)
	assert.Equal(t, trade.StrategyID, retrieved.StrategyID)
	assert.Equal(t, trade.EntryTime, retrieved.EntryTime)
	assert.Equal(t, trade.ExitTime, retrieved.ExitTime)
	assert.Equal(t, trade.ExitReason, retrieved.ExitReason)
	assert.Equal(t, trade.TargetsHit, retrieved.TargetsHit)
	assert.InDelta(t, trade.EntryPrice, retrieved.EntryPrice, 1e-12)
	assert.InDelta(t, trade.PnLMultiplier, retrieved.PnLMultiplier, 1e-12)
	assert.InDelta(t, trade.MaxReached, retrieved.MaxReached, 1e-12)
	assert.True(t, retrieved.PassedFilters)
	assert.Equal(t, domain.TradeStatusSimulated, retrieved.Status)
}

func TestTradeResultStore_DuplicateKey(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeResultStore(pool)

	trade := createTestTradeResult("trade-dup", "call-001", "strat-a", 1000)
	require.NoError(t, store.Insert(ctx, trade))
	assert.ErrorIs(t, store.Insert(ctx, trade), storage.ErrDuplicateKey)
}

func TestTradeResultStore_InsertBulkAtomic(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeResultStore(pool)

	require.NoError(t, store.Insert(ctx, createTestTradeResult("trade-2", "call-2", "strat-a", 2000)))

	err := store.InsertBulk(ctx, []*domain.TradeResult{
		createTestTradeResult("trade-1", "call-1", "strat-a", 1000),
		createTestTradeResult("trade-2", "call-2", "strat-a", 2000),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	_, err = store.GetByID(ctx, "trade-1")
	assert.ErrorIs(t, err, storage.ErrNotFound, "failed batch must roll back")
}

func TestTradeResultStore_GetByStrategyOrdering(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeResultStore(pool)

	require.NoError(t, store.InsertBulk(ctx, []*domain.TradeResult{
		createTestTradeResult("trade-c", "call-3", "strat-a", 3000),
		createTestTradeResult("trade-b", "call-1", "strat-a", 1000),
		createTestTradeResult("trade-a", "call-2", "strat-a", 1000),
		createTestTradeResult("trade-x", "call-1", "strat-b", 500),
	}))

	trades, err := store.GetByStrategy(ctx, "strat-a")
	require.NoError(t, err)
	require.Len(t, trades, 3)
	assert.Equal(t, "trade-a", trades[0].TradeID)
	assert.Equal(t, "trade-b", trades[1].TradeID)
	assert.Equal(t, "trade-c", trades[2].TradeID)

	byCall, err := store.GetByCallID(ctx, "call-1")
	require.NoError(t, err)
	require.Len(t, byCall, 2)
	assert.Equal(t, "strat-a", byCall[0].StrategyID)
	assert.Equal(t, "strat-b", byCall[1].StrategyID)
}
