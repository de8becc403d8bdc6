package update

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/feedsync/internal/repository"
)

// dispatcher はDispatcherの抽象。テストで差し替えられるようにする。
type dispatcher interface {
	Dispatch(id string) bool
}

// Scheduler は自動更新の対象となる購読を選び、更新を起動する。
type Scheduler struct {
	subRepo    repository.SubscriptionRepository
	dispatcher dispatcher
	logger     *slog.Logger
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(subRepo repository.SubscriptionRepository, d dispatcher, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		subRepo:    subRepo,
		dispatcher: d,
		logger:     logger,
	}
}

// RunAll は停止しておらずREADYの購読すべてについて更新を起動し、起動した件数を返す。
// 起動は非同期で、更新の完了は待たない。
func (s *Scheduler) RunAll(ctx context.Context) (int, error) {
	start := time.Now()

	ids, err := s.subRepo.ListRunnableIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("更新対象の購読の取得に失敗しました: %w", err)
	}

	if len(ids) == 0 {
		s.logger.Info("更新対象の購読はありません")
		return 0, nil
	}

	dispatched := 0
	for _, id := range ids {
		if s.dispatcher.Dispatch(id) {
			dispatched++
		}
	}

	s.logger.Info("更新を起動しました",
		slog.Int("subscription_count", len(ids)),
		slog.Int("dispatched", dispatched),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return dispatched, nil
}
