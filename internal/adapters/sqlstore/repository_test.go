package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mexcGuardBot/internal/domain"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) *Repository {
	t.Helper()

	repo, err := NewRepository(Config{
		DBPath: filepath.Join(t.TempDir(), "journal", "test.db"),
		Logger: &mockLogger{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestNewRepository_Validation(t *testing.T) {
	_, err := NewRepository(Config{})
	assert.Error(t, err, "logger required")

	_, err = NewRepository(Config{Driver: "mysql", Logger: &mockLogger{}})
	assert.Error(t, err)

	_, err = NewRepository(Config{Driver: DriverPostgres, Logger: &mockLogger{}})
	assert.Error(t, err, "postgres needs a DSN")
}

func TestRebind(t *testing.T) {
	q := "SELECT a FROM t WHERE x = ? AND y = ? LIMIT ?"
	assert.Equal(t, q, rebind(DriverSQLite, q))
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2 LIMIT $3", rebind(DriverPostgres, q))
}

func TestRepository_RecordAndListOrders(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	records := []*domain.OrderRecord{
		{UserID: 1, Symbol: "BTCUSDT", Side: domain.Buy, OrderID: "b1", Status: "FILLED", QuoteAmount: "20.00000000",
			Entry: 65000, TakeProfit: 67000, StopLoss: 64000, Source: "signal", CreatedAt: base},
		{UserID: 2, Symbol: "ETHUSDT", Side: domain.Buy, OrderID: "e1", Status: "FILLED", QuoteAmount: "20.00000000",
			Source: "signal", CreatedAt: base.Add(time.Minute)},
		{UserID: 1, Symbol: "BTCUSDT", Side: domain.Sell, OrderID: "s1", Status: "FILLED", Quantity: "0.00030000",
			Source: "guard", CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, rec := range records {
		id, err := repo.RecordOrder(ctx, rec)
		require.NoError(t, err)
		assert.Greater(t, id, int64(0))
	}

	got, err := repo.RecentOrders(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "s1", got[0].OrderID, "newest first")
	assert.Equal(t, domain.Sell, got[0].Side)
	assert.Equal(t, "0.00030000", got[0].Quantity)
	assert.Equal(t, "b1", got[1].OrderID)
	assert.Equal(t, 65000.0, got[1].Entry)
	assert.Equal(t, "20.00000000", got[1].QuoteAmount)
	assert.True(t, base.Equal(got[1].CreatedAt))

	limited, err := repo.RecentOrders(ctx, 1, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := repo.RecentOrders(ctx, 99, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRepository_RecordAndListGuards(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	key := domain.GuardKey{UserID: 1, Symbol: "BTCUSDT"}

	triggered := &domain.GuardReport{
		GuardID: "g1", Key: key, TakeProfit: 110, StopLoss: 90, State: domain.GuardTriggered,
		Reason: domain.CloseReasonTakeProfit, TriggerPrice: 111, Polls: 4,
		Order:     &domain.OrderResult{OrderID: "s1"},
		StartedAt: start, EndedAt: start.Add(8 * time.Second),
	}
	cancelled := &domain.GuardReport{
		GuardID: "g2", Key: key, TakeProfit: 120, State: domain.GuardCancelled, Polls: 1,
		StartedAt: start.Add(time.Minute), EndedAt: start.Add(2 * time.Minute),
	}
	other := &domain.GuardReport{
		GuardID: "g3", Key: domain.GuardKey{UserID: 1, Symbol: "ETHUSDT"}, StopLoss: 10, State: domain.GuardTimedOut,
		StartedAt: start, EndedAt: start.Add(2 * time.Hour),
	}
	for _, rep := range []*domain.GuardReport{triggered, cancelled, other} {
		require.NoError(t, repo.RecordGuard(ctx, rep))
	}

	got, err := repo.GuardsBySymbol(ctx, 1, "BTCUSDT", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "g2", got[0].GuardID)
	assert.Equal(t, domain.GuardCancelled, got[0].State)
	assert.Nil(t, got[0].Order)
	assert.Zero(t, got[0].StopLoss)

	assert.Equal(t, "g1", got[1].GuardID)
	assert.Equal(t, domain.GuardTriggered, got[1].State)
	assert.Equal(t, domain.CloseReasonTakeProfit, got[1].Reason)
	assert.Equal(t, 111.0, got[1].TriggerPrice)
	assert.Equal(t, 4, got[1].Polls)
	require.NotNil(t, got[1].Order)
	assert.Equal(t, "s1", got[1].Order.OrderID)
	assert.True(t, start.Equal(got[1].StartedAt))
}
