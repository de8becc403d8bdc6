package model

import "time"

// SubscriptionStatus は購読の更新状態を表す。
type SubscriptionStatus string

const (
	// StatusNew は一度も更新されていない購読。
	StatusNew SubscriptionStatus = "NEW"
	// StatusInProgress は更新処理中の購読。
	StatusInProgress SubscriptionStatus = "IN_PROGRESS"
	// StatusReady は次回の更新を待っている購読。
	StatusReady SubscriptionStatus = "READY"
)

// Valid はステータスが既知の値かを返す。
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusReady:
		return true
	}
	return false
}

// Subscription はユーザーが購読したフィードURLと、その更新状態を表す。
// (OwnerID, URL) の組は一意。
type Subscription struct {
	ID        string
	OwnerID   string
	URL       string
	Status    SubscriptionStatus
	Retries   int
	IsStopped bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
