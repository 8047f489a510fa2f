package domain

import (
	"fmt"
	"time"
)

// GuardKey identifies at most one active guard.
type GuardKey struct {
	UserID int64
	Symbol string
}

// String renders the key as "user:symbol".
func (k GuardKey) String() string {
	return fmt.Sprintf("%d:%s", k.UserID, k.Symbol)
}

// GuardState is the lifecycle state of a guard.
type GuardState string

const (
	GuardRunning   GuardState = "running"
	GuardTriggered GuardState = "triggered"
	GuardCancelled GuardState = "cancelled"
	GuardTimedOut  GuardState = "timed_out"
)

// GuardReport describes how a guard ended.
type GuardReport struct {
	GuardID      string
	Key          GuardKey
	TakeProfit   float64 // 0 when the leg is not guarded
	StopLoss     float64 // 0 when the leg is not guarded
	State        GuardState
	Reason       CloseReason // Set when State is GuardTriggered
	TriggerPrice float64
	Polls        int
	Order        *OrderResult
	StartedAt    time.Time
	EndedAt      time.Time
}

// GuardInfo is a read-only view of an active guard.
type GuardInfo struct {
	GuardID   string
	Key       GuardKey
	StartedAt time.Time
}
