package ports

import (
	"context"

	"mexcGuardBot/internal/domain"
)

// JournalRepository records what the bot did. It is an audit trail only; guards are
// never restored from it.
type JournalRepository interface {
	// RecordOrder saves an order record and returns its assigned ID.
	RecordOrder(ctx context.Context, rec *domain.OrderRecord) (int64, error)
	// RecordGuard saves the final report of a guard.
	RecordGuard(ctx context.Context, rep *domain.GuardReport) error
	// RecentOrders returns the latest orders of a user, newest first.
	RecentOrders(ctx context.Context, userID int64, limit int) ([]*domain.OrderRecord, error)
	// GuardsBySymbol returns finished guards for a user and symbol, newest first.
	GuardsBySymbol(ctx context.Context, userID int64, symbol string, limit int) ([]*domain.GuardReport, error)
}
