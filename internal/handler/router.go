// Package handler は運用APIのHTTPハンドラーとルーティングを提供する。
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/feedsync/internal/metrics"
	"github.com/hitoshi/feedsync/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger        *slog.Logger
	HealthChecker HealthChecker
	Gatherer      prometheus.Gatherer

	SubscriptionService SubscriptionServiceInterface
}

// NewRouter は運用APIのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RecoveryMiddleware → LoggingMiddleware
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	subHandler := NewSubscriptionHandler(deps.SubscriptionService)

	mountOps(r, deps.HealthChecker, deps.Gatherer)

	r.Route("/api/subscriptions/{id}", func(r chi.Router) {
		r.Get("/", subHandler.GetSubscription)
		r.Post("/retry", subHandler.Retry)
		r.Post("/force_update", subHandler.ForceUpdate)
	})

	return r
}

// NewOpsRouter は/healthと/metricsのみを公開するルーターを返す。
// 運用APIを持たないworkerプロセスで使用する。
func NewOpsRouter(logger *slog.Logger, checker HealthChecker, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))
	mountOps(r, checker, gatherer)
	return r
}

func mountOps(r chi.Router, checker HealthChecker, gatherer prometheus.Gatherer) {
	r.Get("/health", NewHealthHandler(checker))
	r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))
}
