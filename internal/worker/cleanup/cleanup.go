// Package cleanup は更新途中で放置された購読を回収するジョブを提供する。
// ワーカーが更新中に停止すると購読はIN_PROGRESSのまま残り、自動更新の対象から外れる。
// 一定時間を超えたものを失敗として記録し、READYへ戻す。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// ResetRecorder は回収件数のメトリクスを記録するインターフェース。
type ResetRecorder interface {
	RecordStaleRunsReset(count int)
}

// staleRunQuery はretriesを原子的に増やし、しきい値に達したものは停止する。
// SET句の右辺は更新前の値を参照する。
const staleRunQuery = `UPDATE subscriptions
SET status = 'READY',
    retries = retries + 1,
    is_stopped = is_stopped OR retries + 1 >= $2,
    updated_at = now()
WHERE status = 'IN_PROGRESS'
  AND updated_at < now() - $1::interval`

// StaleRunJob はIN_PROGRESSのまま放置された購読の回収ジョブ。
// 冪等で、対象がない場合もエラーにならない。
type StaleRunJob struct {
	db         Executor
	metrics    ResetRecorder
	logger     *slog.Logger
	Timeout    time.Duration // IN_PROGRESSとみなせる最大時間（デフォルト: 30分）
	MaxRetries int           // 停止のしきい値
}

// NewStaleRunJob は新しいStaleRunJobを生成する。
func NewStaleRunJob(db Executor, metrics ResetRecorder, logger *slog.Logger, maxRetries int) *StaleRunJob {
	return &StaleRunJob{
		db:         db,
		metrics:    metrics,
		logger:     logger,
		Timeout:    30 * time.Minute,
		MaxRetries: maxRetries,
	}
}

// Run はupdated_atがTimeoutより古いIN_PROGRESSの購読をREADYへ戻す。
func (j *StaleRunJob) Run(ctx context.Context) error {
	start := time.Now()

	interval := fmt.Sprintf("%d seconds", int64(j.Timeout.Seconds()))

	result, err := j.db.ExecContext(ctx, staleRunQuery, interval, j.MaxRetries)
	if err != nil {
		j.logger.Error("放置された更新の回収に失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("timeout", j.Timeout),
		)
		return fmt.Errorf("放置された更新の回収に失敗: %w", err)
	}

	resetCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("回収件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("回収件数の取得に失敗: %w", err)
	}

	j.metrics.RecordStaleRunsReset(int(resetCount))

	duration := time.Since(start)
	level := slog.LevelInfo
	if resetCount > 0 {
		level = slog.LevelWarn
	}
	j.logger.Log(ctx, level, "放置された更新の回収が完了しました",
		slog.Int64("reset_count", resetCount),
		slog.Duration("timeout", j.Timeout),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
