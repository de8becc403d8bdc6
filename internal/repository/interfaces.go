// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/feedsync/internal/model"
)

// SubscriptionRepository は購読データの永続化インターフェース。
// 状態遷移はすべて即時に永続化される。
type SubscriptionRepository interface {
	// FindByID は指定IDの購読を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Subscription, error)

	// Create は購読を作成する。
	Create(ctx context.Context, sub *model.Subscription) error

	// UpdateStatus はステータスのみを更新する。
	// 対象が存在しない場合はmodel.NotFoundErrorを返す。
	UpdateStatus(ctx context.Context, id string, status model.SubscriptionStatus) error

	// MarkSucceeded はステータスをREADY、retriesを0、is_stoppedをfalseにする。
	MarkSucceeded(ctx context.Context, id string) error

	// IncrementRetries はステータスをREADYにし、retriesを原子的に1増やして増加後の値を返す。
	IncrementRetries(ctx context.Context, id string) (int, error)

	// MarkStopped はis_stoppedをtrueにする。
	MarkStopped(ctx context.Context, id string) error

	// ResetIfStopped は停止中の購読に限りMarkSucceededと同じ更新を行う。
	// 条件判定と更新は単一の文で行われる。
	// 購読が存在しないか停止中でない場合はfalseを返す。
	ResetIfStopped(ctx context.Context, id string) (bool, error)

	// ListRunnableIDs はis_stopped = false かつ status = READY の購読IDを返す。
	ListRunnableIDs(ctx context.Context) ([]string, error)
}

// FeedRepository はフィードデータの永続化インターフェース。
type FeedRepository interface {
	// FindBySubscriptionID は購読に紐づくフィードを取得する。見つからない場合はnilを返す。
	FindBySubscriptionID(ctx context.Context, subscriptionID string) (*model.Feed, error)

	// Create はフィードを作成する。
	Create(ctx context.Context, feed *model.Feed) error

	// Update はフィードの全項目を上書きする。
	Update(ctx context.Context, feed *model.Feed) error
}

// ItemRepository は記事データの永続化インターフェース。
type ItemRepository interface {
	// FindByFeedAndTitle は(feed_id, title)で記事を検索する。見つからない場合はnilを返す。
	FindByFeedAndTitle(ctx context.Context, feedID, title string) (*model.FeedItem, error)

	// ListByFeedID はフィードの記事を作成順に返す。
	ListByFeedID(ctx context.Context, feedID string) ([]*model.FeedItem, error)

	// Create は新規記事を作成する。
	Create(ctx context.Context, item *model.FeedItem) error

	// Update は既存記事の全項目を上書きする。is_readは変更しない。
	Update(ctx context.Context, item *model.FeedItem) error
}

// CategoryRepository はフィードと記事のカテゴリの永続化インターフェース。
type CategoryRepository interface {
	ListByFeedID(ctx context.Context, feedID string) ([]*model.Category, error)
	DeleteByFeedID(ctx context.Context, feedID string) error
	CreateForFeed(ctx context.Context, c *model.Category) error

	ListByItemID(ctx context.Context, itemID string) ([]*model.Category, error)
	DeleteByItemID(ctx context.Context, itemID string) error
	CreateForItem(ctx context.Context, c *model.Category) error
}

// Queries はひとつの接続またはトランザクションに束縛されたリポジトリ群。
type Queries interface {
	Subscriptions() SubscriptionRepository
	Feeds() FeedRepository
	Items() ItemRepository
	Categories() CategoryRepository
}

// Store はQueriesに加えてトランザクション境界を提供する。
// WithTxのfnがエラーを返した場合、fn内の変更はすべて破棄される。
type Store interface {
	Queries
	WithTx(ctx context.Context, fn func(q Queries) error) error
}

// DBTX は*sql.DBと*sql.Txの共通部分。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
