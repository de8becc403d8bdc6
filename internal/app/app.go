// Package app はサブコマンドごとの依存関係のワイヤリングと起動を行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/feedsync/internal/config"
	"github.com/hitoshi/feedsync/internal/database"
	"github.com/hitoshi/feedsync/internal/handler"
	"github.com/hitoshi/feedsync/internal/logger"
	"github.com/hitoshi/feedsync/internal/metrics"
	"github.com/hitoshi/feedsync/internal/repository"
	"github.com/hitoshi/feedsync/internal/worker"
	"github.com/hitoshi/feedsync/internal/worker/cleanup"
	"github.com/hitoshi/feedsync/internal/worker/update"
)

// shutdownTimeout はHTTPサーバーと実行中の更新処理の終了を待つ最大時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再セットアップ
	l := logger.SetupDefault(w, cfg.LogLevel)

	return cfg, l, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, l, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	l.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	// SIGINTまたはSIGTERMでキャンセルされるコンテキスト
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg, l)
	case CommandMigrate:
		return runMigrate(cfg, l)
	case CommandUpdate:
		if len(args) < 2 || args[1] == "" {
			return errors.New("update requires a subscription id: update <id>")
		}
		return runUpdate(ctx, cfg, l, args[1])
	case CommandRunAll:
		return runRunAll(ctx, cfg, l)
	default:
		return runServe(ctx, cfg, l)
	}
}

// resources はDB接続とメトリクスレジストリをまとめたもの。
type resources struct {
	db        *sql.DB
	store     repository.Store
	registry  *prometheus.Registry
	collector *metrics.Collector
}

// openResources はDBへ接続し、メトリクスレジストリを初期化する。
// DBが起動途中の場合はDBConnectTimeoutまで再接続を試みる。
func openResources(ctx context.Context, cfg *config.Config, l *slog.Logger) (*resources, error) {
	db, err := database.Connect(ctx, cfg.DatabaseURL, cfg.DBConnectTimeout, l)
	if err != nil {
		return nil, err
	}
	l.Info("database connection established")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &resources{
		db:        db,
		store:     repository.NewPostgresStore(db),
		registry:  reg,
		collector: metrics.NewCollector(reg),
	}, nil
}

func (rt *resources) Close() error {
	return rt.db.Close()
}

// newPipelineContext は更新処理用のコンテキストを返す。
// シグナルを受けても実行中の更新は継続させ、drainの猶予を過ぎたらcancelで打ち切る。
func newPipelineContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithCancel(context.WithoutCancel(ctx))
}

// runServe は運用APIサーバーモードで起動する。
// retryとforce_updateで起動された更新はこのプロセス内で実行する。
// シグナルを受信するとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config, l *slog.Logger) error {
	rt, err := openResources(ctx, cfg, l)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer rt.Close()

	runCtx, cancelRuns := newPipelineContext(ctx)
	defer cancelRuns()
	p := newPipeline(runCtx, cfg, rt.store, rt.collector, l)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:              l,
		HealthChecker:       rt.db,
		Gatherer:            rt.registry,
		SubscriptionService: p.service,
	})

	server := newHTTPServer(cfg.ServerPort, router)
	errCh := startHTTPServer(server, l)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	}
	l.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	drain(shutdownCtx, p.dispatcher, cancelRuns, l)

	l.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// FETCH_SCHEDULEで全購読の更新を、CLEANUP_SCHEDULEで放置された購読の回収を実行する。
// /healthと/metricsはSERVER_PORTで公開する。
func runWorker(ctx context.Context, cfg *config.Config, l *slog.Logger) error {
	rt, err := openResources(ctx, cfg, l)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer rt.Close()

	runCtx, cancelRuns := newPipelineContext(ctx)
	defer cancelRuns()
	p := newPipeline(runCtx, cfg, rt.store, rt.collector, l)

	staleJob := cleanup.NewStaleRunJob(rt.db, rt.collector, l, cfg.MaxRetries)
	staleJob.Timeout = cfg.StaleRunTimeout

	c := worker.NewCron(l)
	if err := worker.Schedule(ctx, c, cfg.FetchSchedule, "run-all", func(ctx context.Context) error {
		_, err := p.scheduler.RunAll(ctx)
		return err
	}, l); err != nil {
		return err
	}
	if err := worker.Schedule(ctx, c, cfg.CleanupSchedule, "stale-run-cleanup", staleJob.Run, l); err != nil {
		return err
	}

	// 前回のワーカーが残した購読を起動直後に1回回収する
	if err := staleJob.Run(ctx); err != nil {
		l.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	server := newHTTPServer(cfg.ServerPort, handler.NewOpsRouter(l, rt.db, rt.registry))
	errCh := startHTTPServer(server, l)

	l.Info("worker starting",
		slog.String("fetch_schedule", cfg.FetchSchedule),
		slog.String("cleanup_schedule", cfg.CleanupSchedule),
		slog.Int("max_concurrent", cfg.FetchMaxConcurrent),
		slog.Float64("rate_per_second", cfg.FetchRatePerSecond),
	)
	c.Start()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		<-c.Stop().Done()
		return fmt.Errorf("server listen error: %w", err)
	}
	l.Info("shutting down worker...")

	// 実行中のジョブの終了を待つ
	<-c.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Error("server shutdown failed", slog.String("error", err.Error()))
	}
	drain(shutdownCtx, p.dispatcher, cancelRuns, l)

	l.Info("worker stopped gracefully")
	return nil
}

// runUpdate は購読idの更新を同期的に1回実行する。
func runUpdate(ctx context.Context, cfg *config.Config, l *slog.Logger, id string) error {
	rt, err := openResources(ctx, cfg, l)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer rt.Close()

	p := newPipeline(ctx, cfg, rt.store, rt.collector, l)
	if err := p.updater.Run(ctx, id); err != nil {
		return fmt.Errorf("update failed: %w", err)
	}
	return nil
}

// runRunAll は更新対象の全購読を1回更新し、すべての完了を待って終了する。
func runRunAll(ctx context.Context, cfg *config.Config, l *slog.Logger) error {
	rt, err := openResources(ctx, cfg, l)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer rt.Close()

	p := newPipeline(ctx, cfg, rt.store, rt.collector, l)
	n, err := p.scheduler.RunAll(ctx)
	if err != nil {
		return fmt.Errorf("run-all failed: %w", err)
	}
	p.dispatcher.Wait()

	l.Info("run-all completed", slog.Int("dispatched", n))
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config, l *slog.Logger) error {
	l.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.MigrateUp(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	l.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

func newHTTPServer(port string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// startHTTPServer はサーバーをバックグラウンドで起動する。
// 起動に失敗した場合はエラーをチャネルへ送る。
func startHTTPServer(server *http.Server, l *slog.Logger) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		l.Info("HTTP server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	return errCh
}

// drain は実行中の更新の完了をctxの期限まで待つ。
// 期限を過ぎた場合はcancelで打ち切り、失敗の記録が終わるまで待つ。
func drain(ctx context.Context, d *update.Dispatcher, cancel context.CancelFunc, l *slog.Logger) {
	done := make(chan struct{})
	go func() {
		d.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-ctx.Done():
	}

	l.Warn("in-flight updates did not finish before shutdown timeout, canceling",
		slog.Int("in_flight", d.InFlight()),
	)
	cancel()
	<-done
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
