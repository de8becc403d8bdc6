// Package update は購読ごとの更新処理と、その並列実行・定期起動を提供する。
// 取得、フィードの反映、記事の反映を順に行い、結果を購読の状態遷移として記録する。
package update

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/feedsync/internal/item"
	"github.com/hitoshi/feedsync/internal/metrics"
	"github.com/hitoshi/feedsync/internal/model"
	"github.com/hitoshi/feedsync/internal/parser"
	"github.com/hitoshi/feedsync/internal/repository"
)

// FeedParser はURLからフィードを取得して解析するインターフェース。
type FeedParser interface {
	Parse(ctx context.Context, url string) (*parser.ParsedFeed, error)
}

// FeedReconciler はチャンネル情報を購読のフィードへ反映するインターフェース。
type FeedReconciler interface {
	Reconcile(ctx context.Context, sub *model.Subscription, parsed *parser.ParsedFeed) (*model.Feed, error)
}

// ItemReconciler は記事をフィードへ反映するインターフェース。
type ItemReconciler interface {
	Reconcile(ctx context.Context, f *model.Feed, entries []parser.Entry) (item.Result, error)
}

// Transitions は購読の状態遷移のインターフェース。
type Transitions interface {
	Begin(ctx context.Context, id string) error
	Succeed(ctx context.Context, id string) error
	Fail(ctx context.Context, id string) (stopped bool, err error)
}

// 失敗理由のメトリクスラベル
const (
	reasonParse      = "parse"
	reasonValidation = "validation"
	reasonStorage    = "storage"
)

// Updater は1件の購読の更新サイクルを実行する。
// 購読の状態遷移はUpdaterだけが起こし、下位の処理はエラーを返すのみ。
type Updater struct {
	subRepo repository.SubscriptionRepository
	parser  FeedParser
	feeds   FeedReconciler
	items   ItemReconciler
	machine Transitions
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewUpdater はUpdaterの新しいインスタンスを生成する。
func NewUpdater(
	subRepo repository.SubscriptionRepository,
	p FeedParser,
	feeds FeedReconciler,
	items ItemReconciler,
	machine Transitions,
	m metrics.MetricsCollector,
	logger *slog.Logger,
) *Updater {
	return &Updater{
		subRepo: subRepo,
		parser:  p,
		feeds:   feeds,
		items:   items,
		machine: machine,
		metrics: m,
		logger:  logger,
	}
}

// Run は購読idの更新を1回実行する。
// 購読が存在しない場合は*model.NotFoundErrorを返し、状態は変更しない。
// Begin以降に発生したエラーとパニックはすべてFailとして記録してから返す。
func (u *Updater) Run(ctx context.Context, id string) (err error) {
	start := time.Now()
	logger := u.logger.With(
		slog.String("run_id", uuid.NewString()),
		slog.String("subscription_id", id),
	)

	sub, err := u.subRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("購読の取得に失敗しました: %w", err)
	}
	if sub == nil {
		return &model.NotFoundError{Resource: "subscription", ID: id}
	}

	if err := u.machine.Begin(ctx, id); err != nil {
		return err
	}

	// 呼び出し元のキャンセル後も状態遷移は必ず記録する
	bookkeeping := context.WithoutCancel(ctx)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("更新処理でパニックが発生しました: %v", r)
		}
		u.finish(bookkeeping, logger, id, start, err)
	}()

	return u.update(ctx, logger, sub)
}

func (u *Updater) update(ctx context.Context, logger *slog.Logger, sub *model.Subscription) error {
	parsed, err := u.parser.Parse(ctx, sub.URL)
	if err != nil {
		return err
	}

	f, err := u.feeds.Reconcile(ctx, sub, parsed)
	if err != nil {
		return fmt.Errorf("フィードの反映に失敗しました: %w", err)
	}

	res, err := u.items.Reconcile(ctx, f, parsed.Entries)
	u.metrics.RecordItems(res.Created, res.Updated, res.Skipped)
	if err != nil {
		return fmt.Errorf("記事の反映に失敗しました: %w", err)
	}

	logger.Debug("フィードと記事を反映しました",
		slog.String("feed_id", f.ID),
		slog.Int("entries", len(parsed.Entries)),
	)
	return nil
}

// finish は更新結果を購読の状態に記録する。
func (u *Updater) finish(ctx context.Context, logger *slog.Logger, id string, start time.Time, runErr error) {
	duration := float64(time.Since(start).Milliseconds())

	if runErr == nil {
		if err := u.machine.Succeed(ctx, id); err != nil {
			logger.Error("更新の成功を記録できませんでした", slog.String("error", err.Error()))
			return
		}
		u.metrics.RecordRunSuccess(id)
		logger.Info("購読を更新しました", slog.Float64("duration_ms", duration))
		return
	}

	reason := failureReason(runErr)
	u.metrics.RecordRunFailure(id, reason)

	stopped, err := u.machine.Fail(ctx, id)
	if err != nil {
		logger.Error("更新の失敗を記録できませんでした",
			slog.String("error", err.Error()),
			slog.String("cause", runErr.Error()),
		)
		return
	}
	logger.Warn("購読の更新に失敗しました",
		slog.String("reason", reason),
		slog.Bool("stopped", stopped),
		slog.Float64("duration_ms", duration),
		slog.String("error", runErr.Error()),
	)
}

func failureReason(err error) string {
	var invalid *model.InvalidFeedError
	switch {
	case errors.As(err, &invalid):
		return reasonParse
	case model.IsValidation(err):
		return reasonValidation
	default:
		return reasonStorage
	}
}
