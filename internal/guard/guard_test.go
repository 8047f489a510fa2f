package guard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mexcGuardBot/internal/adapters/logger"
	"mexcGuardBot/internal/domain"
	"mexcGuardBot/internal/ports"
)

// fakeExchange replays a scripted price series and records sell calls.
type fakeExchange struct {
	mu        sync.Mutex
	prices    []float64
	priceErrs map[int]error // poll index -> error
	sellErrs  []error       // consumed one per sell call
	polls     int
	sells     int
}

func (f *fakeExchange) GetPrice(ctx context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.polls
	f.polls++
	if err, ok := f.priceErrs[i]; ok {
		return 0, err
	}
	if i >= len(f.prices) {
		return f.prices[len(f.prices)-1], nil
	}
	return f.prices[i], nil
}

func (f *fakeExchange) GetBalances(ctx context.Context, creds domain.Credentials) (map[string]float64, error) {
	return nil, errors.New("not used")
}

func (f *fakeExchange) MarketBuyByQuote(ctx context.Context, creds domain.Credentials, symbol string, quoteAmount float64) (*domain.OrderResult, error) {
	return nil, errors.New("not used")
}

func (f *fakeExchange) MarketSellAll(ctx context.Context, creds domain.Credentials, symbol string) (*domain.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sells++
	if len(f.sellErrs) > 0 {
		err := f.sellErrs[0]
		f.sellErrs = f.sellErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &domain.OrderResult{OrderID: "sell-1", Symbol: symbol, Side: domain.Sell}, nil
}

func (f *fakeExchange) counts() (polls, sells int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls, f.sells
}

func quietLogger() ports.Logger {
	return logger.NewWriterLogger(io.Discard, logger.LevelError)
}

func newTestMonitor(t *testing.T, ex *fakeExchange, tp, sl float64, maxRuntime time.Duration) *Monitor {
	t.Helper()
	m, err := NewMonitor(Config{
		Exchange:     ex,
		Logger:       quietLogger(),
		Key:          domain.GuardKey{UserID: 1, Symbol: "BTCUSDT"},
		GuardID:      "g-1",
		Creds:        domain.Credentials{APIKey: "k", APISecret: "s"},
		TakeProfit:   tp,
		StopLoss:     sl,
		MaxRuntime:   maxRuntime,
		PollInterval: time.Millisecond,
	})
	require.NoError(t, err)
	return m
}

func TestNewMonitor_Validation(t *testing.T) {
	ex := &fakeExchange{prices: []float64{1}}
	key := domain.GuardKey{UserID: 1, Symbol: "BTCUSDT"}

	_, err := NewMonitor(Config{Logger: quietLogger(), Key: key, TakeProfit: 1})
	assert.Error(t, err, "exchange required")
	_, err = NewMonitor(Config{Exchange: ex, Logger: quietLogger(), Key: key})
	assert.Error(t, err, "at least one leg required")
	_, err = NewMonitor(Config{Exchange: ex, Logger: quietLogger(), Key: key, StopLoss: -1, TakeProfit: 2})
	assert.Error(t, err, "negative level")

	m, err := NewMonitor(Config{Exchange: ex, Logger: quietLogger(), Key: key, TakeProfit: 2})
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxRuntime, m.cfg.MaxRuntime)
	assert.Equal(t, DefaultPollInterval, m.cfg.PollInterval)
}

func TestMonitor_Check(t *testing.T) {
	m := newTestMonitor(t, &fakeExchange{prices: []float64{1}}, 110, 90, time.Second)

	tests := []struct {
		price  float64
		reason domain.CloseReason
		hit    bool
	}{
		{100, "", false},
		{110, domain.CloseReasonTakeProfit, true},
		{125, domain.CloseReasonTakeProfit, true},
		{90, domain.CloseReasonStopLoss, true},
		{89.99, domain.CloseReasonStopLoss, true},
		{90.01, "", false},
	}
	for _, tt := range tests {
		reason, hit := m.Check(tt.price)
		assert.Equal(t, tt.hit, hit, "price %v", tt.price)
		assert.Equal(t, tt.reason, reason, "price %v", tt.price)
	}
}

func TestMonitor_Check_DisabledLegNeverTriggers(t *testing.T) {
	tpOnly := newTestMonitor(t, &fakeExchange{prices: []float64{1}}, 110, 0, time.Second)
	_, hit := tpOnly.Check(0.0001)
	assert.False(t, hit, "stop-loss leg is off")

	slOnly := newTestMonitor(t, &fakeExchange{prices: []float64{1}}, 0, 90, time.Second)
	_, hit = slOnly.Check(1e9)
	assert.False(t, hit, "take-profit leg is off")
}

func TestMonitor_Run_TriggersOnThirdPoll(t *testing.T) {
	ex := &fakeExchange{prices: []float64{95, 105, 112}}
	m := newTestMonitor(t, ex, 110, 90, time.Minute)

	report := m.Run(context.Background())

	assert.Equal(t, domain.GuardTriggered, report.State)
	assert.Equal(t, domain.CloseReasonTakeProfit, report.Reason)
	assert.Equal(t, 112.0, report.TriggerPrice)
	assert.Equal(t, 3, report.Polls)
	require.NotNil(t, report.Order)
	assert.Equal(t, "sell-1", report.Order.OrderID)
	polls, sells := ex.counts()
	assert.Equal(t, 3, polls)
	assert.Equal(t, 1, sells)
	assert.False(t, report.EndedAt.Before(report.StartedAt))
}

func TestMonitor_Run_StopLoss(t *testing.T) {
	ex := &fakeExchange{prices: []float64{100, 89}}
	report := newTestMonitor(t, ex, 110, 90, time.Minute).Run(context.Background())

	assert.Equal(t, domain.GuardTriggered, report.State)
	assert.Equal(t, domain.CloseReasonStopLoss, report.Reason)
}

func TestMonitor_Run_TimesOutWithoutSelling(t *testing.T) {
	ex := &fakeExchange{prices: []float64{100}}
	report := newTestMonitor(t, ex, 110, 90, 20*time.Millisecond).Run(context.Background())

	assert.Equal(t, domain.GuardTimedOut, report.State)
	_, sells := ex.counts()
	assert.Zero(t, sells)
	assert.Nil(t, report.Order)
}

func TestMonitor_Run_Cancelled(t *testing.T) {
	ex := &fakeExchange{prices: []float64{100}}
	m := newTestMonitor(t, ex, 110, 90, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan domain.GuardReport, 1)
	go func() { done <- m.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case report := <-done:
		assert.Equal(t, domain.GuardCancelled, report.State)
	case <-time.After(time.Second):
		t.Fatal("guard did not stop after cancellation")
	}
	_, sells := ex.counts()
	assert.Zero(t, sells)
}

func TestMonitor_Run_ContinuesAfterSellFailure(t *testing.T) {
	ex := &fakeExchange{
		prices:   []float64{120},
		sellErrs: []error{ports.ErrNetwork, &ports.ExchangeError{HTTPStatus: 500}},
	}
	report := newTestMonitor(t, ex, 110, 90, time.Minute).Run(context.Background())

	assert.Equal(t, domain.GuardTriggered, report.State)
	polls, sells := ex.counts()
	assert.Equal(t, 3, sells)
	assert.Equal(t, 3, polls)
}

func TestMonitor_Run_ContinuesAfterInsufficientBalance(t *testing.T) {
	ex := &fakeExchange{
		prices:   []float64{95, 120, 121},
		sellErrs: []error{fmt.Errorf("MarketSellAll failed: %w", &ports.InsufficientBalanceError{Asset: "BTC", Free: "0"})},
	}
	report := newTestMonitor(t, ex, 110, 90, time.Minute).Run(context.Background())

	assert.Equal(t, domain.GuardTriggered, report.State)
	assert.Equal(t, domain.CloseReasonTakeProfit, report.Reason)
	assert.Equal(t, 121.0, report.TriggerPrice, "the exit is retried on the next poll")
	require.NotNil(t, report.Order)
	polls, sells := ex.counts()
	assert.Equal(t, 3, polls)
	assert.Equal(t, 2, sells)
}

func TestMonitor_Run_ContinuesAfterPriceError(t *testing.T) {
	ex := &fakeExchange{
		prices:    []float64{0, 0, 111},
		priceErrs: map[int]error{0: ports.ErrNetwork, 1: ports.ErrExchange},
	}
	report := newTestMonitor(t, ex, 110, 90, time.Minute).Run(context.Background())

	assert.Equal(t, domain.GuardTriggered, report.State)
	assert.Equal(t, 3, report.Polls)
}

func TestRegistry_StartRunsAndReleases(t *testing.T) {
	r := NewRegistry(quietLogger())
	key := domain.GuardKey{UserID: 1, Symbol: "BTCUSDT"}

	release := make(chan struct{})
	var gotID string
	h, err := r.Start(context.Background(), key, func(ctx context.Context, guardID string) {
		gotID = guardID
		<-release
	})
	require.NoError(t, err)
	assert.True(t, r.Active(key))
	assert.Equal(t, 1, r.Len())

	close(release)
	require.NoError(t, h.Wait(context.Background()))
	assert.Equal(t, h.ID, gotID)
	assert.False(t, r.Active(key))
	assert.Zero(t, r.Len())
}

func TestRegistry_SupersedesSameKey(t *testing.T) {
	r := NewRegistry(quietLogger())
	key := domain.GuardKey{UserID: 1, Symbol: "BTCUSDT"}
	block := func(ctx context.Context, _ string) { <-ctx.Done() }

	first, err := r.Start(context.Background(), key, block)
	require.NoError(t, err)
	second, err := r.Start(context.Background(), key, block)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, first.Wait(waitCtx), "old guard must be cancelled")

	assert.Equal(t, 1, r.Len())
	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, second.ID, snap[0].GuardID)
	assert.NotEqual(t, first.ID, second.ID)

	select {
	case <-second.Done():
		t.Fatal("new guard must keep running")
	default:
	}
	second.Cancel()
}

func TestRegistry_FinishedOldTaskDoesNotEvictSuccessor(t *testing.T) {
	r := NewRegistry(quietLogger())
	key := domain.GuardKey{UserID: 7, Symbol: "ETHUSDT"}

	// The first task ignores cancellation until told to return.
	release := make(chan struct{})
	first, err := r.Start(context.Background(), key, func(ctx context.Context, _ string) { <-release })
	require.NoError(t, err)
	second, err := r.Start(context.Background(), key, func(ctx context.Context, _ string) { <-ctx.Done() })
	require.NoError(t, err)

	close(release)
	require.NoError(t, first.Wait(context.Background()))

	assert.True(t, r.Active(key))
	assert.Equal(t, second.ID, r.Snapshot()[0].GuardID)
	second.Cancel()
}

func TestRegistry_DifferentKeysCoexist(t *testing.T) {
	r := NewRegistry(quietLogger())
	block := func(ctx context.Context, _ string) { <-ctx.Done() }

	_, err := r.Start(context.Background(), domain.GuardKey{UserID: 1, Symbol: "BTCUSDT"}, block)
	require.NoError(t, err)
	_, err = r.Start(context.Background(), domain.GuardKey{UserID: 2, Symbol: "BTCUSDT"}, block)
	require.NoError(t, err)
	_, err = r.Start(context.Background(), domain.GuardKey{UserID: 1, Symbol: "ETHUSDT"}, block)
	require.NoError(t, err)

	assert.Equal(t, 3, r.Len())
	require.NoError(t, r.Shutdown(context.Background()))
	assert.Zero(t, r.Len())
}

func TestRegistry_Cancel(t *testing.T) {
	r := NewRegistry(quietLogger())
	key := domain.GuardKey{UserID: 1, Symbol: "BTCUSDT"}

	assert.False(t, r.Cancel(key))

	h, err := r.Start(context.Background(), key, func(ctx context.Context, _ string) { <-ctx.Done() })
	require.NoError(t, err)
	assert.True(t, r.Cancel(key))
	assert.False(t, r.Active(key))
	require.NoError(t, h.Wait(context.Background()))
}

func TestRegistry_StartAfterShutdown(t *testing.T) {
	r := NewRegistry(quietLogger())
	require.NoError(t, r.Shutdown(context.Background()))

	_, err := r.Start(context.Background(), domain.GuardKey{UserID: 1, Symbol: "BTCUSDT"}, func(context.Context, string) {})
	assert.ErrorIs(t, err, ErrRegistryClosed)
}

func TestRegistry_ShutdownTimesOut(t *testing.T) {
	r := NewRegistry(quietLogger())
	release := make(chan struct{})
	defer close(release)
	_, err := r.Start(context.Background(), domain.GuardKey{UserID: 1, Symbol: "BTCUSDT"}, func(context.Context, string) { <-release })
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Shutdown(ctx), context.DeadlineExceeded)
}
