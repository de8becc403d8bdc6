// Package worker はバックグラウンドジョブの定期起動を提供する。
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job は定期実行する処理。
type Job func(ctx context.Context) error

// NewCron はログをslogへ出力するcronスケジューラを生成する。
// 前回の実行が終わっていないジョブはスキップし、パニックは回復してログに記録する。
func NewCron(logger *slog.Logger) *cron.Cron {
	l := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	return cron.New(
		cron.WithLogger(l),
		cron.WithChain(cron.SkipIfStillRunning(l), cron.Recover(l)),
	)
}

// ValidateSchedule はcronの書式（5フィールドまたは@every等の記述子）を検証する。
func ValidateSchedule(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("スケジュール %q が不正です: %w", spec, err)
	}
	return nil
}

// Schedule はjobをspecのスケジュールで登録する。
// jobにはctxが渡され、エラーはログに記録する。
func Schedule(ctx context.Context, c *cron.Cron, spec, name string, job Job, logger *slog.Logger) error {
	_, err := c.AddFunc(spec, func() {
		start := time.Now()
		if err := job(ctx); err != nil {
			logger.Error("定期ジョブの実行に失敗しました",
				slog.String("job", name),
				slog.String("error", err.Error()),
			)
			return
		}
		logger.Debug("定期ジョブが完了しました",
			slog.String("job", name),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
	})
	if err != nil {
		return fmt.Errorf("ジョブ %s の登録に失敗しました: %w", name, err)
	}
	return nil
}
