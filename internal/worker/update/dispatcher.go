package update

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"
)

// Runner は1件の購読の更新を実行するインターフェース。
type Runner interface {
	Run(ctx context.Context, id string) error
}

// Dispatcher は購読の更新を非同期に起動するワーカープール。
// semaphoreで同時実行数を、rate.Limiterで取得の開始ペースを制限する。
// 同じ購読IDが待機中または実行中の間は再度起動しない。
type Dispatcher struct {
	ctx     context.Context
	runner  Runner
	sem     chan struct{}
	limiter *rate.Limiter
	logger  *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

// NewDispatcher はDispatcherの新しいインスタンスを生成する。
// ctxは起動した更新処理すべてに引き継がれ、キャンセルすると待機中の処理は開始されない。
// maxConcurrentが0以下の場合はデフォルト値10を使用する。
// ratePerSecondが0以下の場合は開始ペースを制限しない。
func NewDispatcher(ctx context.Context, runner Runner, maxConcurrent int, ratePerSecond float64, logger *slog.Logger) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	return &Dispatcher{
		ctx:      ctx,
		runner:   runner,
		sem:      make(chan struct{}, maxConcurrent),
		limiter:  rate.NewLimiter(limit, maxConcurrent),
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

// Dispatch は購読idの更新をバックグラウンドで起動する。
// 同じidが待機中または実行中の場合は何もせずfalseを返す。
// 更新処理のエラーはログに記録し、呼び出し元には返さない。
func (d *Dispatcher) Dispatch(id string) bool {
	d.mu.Lock()
	if _, ok := d.inflight[id]; ok {
		d.mu.Unlock()
		d.logger.Debug("更新が実行中のため起動をスキップしました", slog.String("subscription_id", id))
		return false
	}
	d.inflight[id] = struct{}{}
	d.wg.Add(1)
	d.mu.Unlock()

	go d.run(id)
	return true
}

func (d *Dispatcher) run(id string) {
	defer d.wg.Done()
	defer d.release(id)

	select {
	case d.sem <- struct{}{}:
	case <-d.ctx.Done():
		return
	}
	defer func() { <-d.sem }()

	if err := d.limiter.Wait(d.ctx); err != nil {
		return
	}

	if err := d.runner.Run(d.ctx, id); err != nil {
		d.logger.Error("購読の更新に失敗しました",
			slog.String("subscription_id", id),
			slog.String("error", err.Error()),
		)
	}
}

func (d *Dispatcher) release(id string) {
	d.mu.Lock()
	delete(d.inflight, id)
	d.mu.Unlock()
}

// InFlight は待機中または実行中の購読数を返す。
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}

// Wait は起動済みの更新処理がすべて終了するまで待つ。
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
