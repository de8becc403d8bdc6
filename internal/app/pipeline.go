package app

import (
	"context"
	"log/slog"

	"github.com/hitoshi/feedsync/internal/config"
	"github.com/hitoshi/feedsync/internal/feed"
	"github.com/hitoshi/feedsync/internal/item"
	"github.com/hitoshi/feedsync/internal/metrics"
	"github.com/hitoshi/feedsync/internal/parser"
	"github.com/hitoshi/feedsync/internal/repository"
	"github.com/hitoshi/feedsync/internal/security"
	"github.com/hitoshi/feedsync/internal/subscription"
	"github.com/hitoshi/feedsync/internal/worker/update"
)

// pipeline は更新処理に必要な依存関係をワイヤリングした結果。
// serve、worker、update、run-allの各コマンドで共有する。
type pipeline struct {
	updater    *update.Updater
	dispatcher *update.Dispatcher
	scheduler  *update.Scheduler
	service    *subscription.Service
}

// newPipeline はストアと設定から更新パイプラインを組み立てる。
// ctxはDispatcherが起動する更新処理に引き継がれる。
func newPipeline(ctx context.Context, cfg *config.Config, store repository.Store, m metrics.MetricsCollector, logger *slog.Logger) *pipeline {
	// 1. 取得と解析
	guard := security.NewGuard(cfg.AllowPrivateNetworks)
	feedParser := parser.NewParser(guard, m, logger, parser.Options{
		Timeout:     cfg.FetchTimeout,
		MaxBodySize: cfg.FetchMaxSize,
		UserAgent:   cfg.FetchUserAgent,
	})

	// 2. 照合
	feeds := feed.NewReconciler(store, logger)
	items := item.NewReconciler(store, security.NewContentSanitizer(), logger)

	// 3. 状態遷移と更新
	machine := subscription.NewStateMachine(store.Subscriptions(), cfg.MaxRetries, m, logger)
	updater := update.NewUpdater(store.Subscriptions(), feedParser, feeds, items, machine, m, logger)

	// 4. 起動
	dispatcher := update.NewDispatcher(ctx, updater, cfg.FetchMaxConcurrent, cfg.FetchRatePerSecond, logger)
	scheduler := update.NewScheduler(store.Subscriptions(), dispatcher, logger)

	return &pipeline{
		updater:    updater,
		dispatcher: dispatcher,
		scheduler:  scheduler,
		service:    subscription.NewService(store.Subscriptions(), machine, dispatcher, logger),
	}
}
