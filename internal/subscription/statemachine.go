// Package subscription は購読の状態遷移と運用操作を提供する。
package subscription

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/feedsync/internal/model"
	"github.com/hitoshi/feedsync/internal/repository"
)

// StopRecorder は購読停止のメトリクスを記録するインターフェース。
type StopRecorder interface {
	RecordSubscriptionStopped(subscriptionID string)
}

// StateMachine は購読のstatus/retries/is_stoppedを遷移させる。
// 各遷移は即座に永続化され、他のワーカーからも次の読み取りで観測できる。
type StateMachine struct {
	subRepo    repository.SubscriptionRepository
	maxRetries int
	metrics    StopRecorder
	logger     *slog.Logger
}

// NewStateMachine はStateMachineの新しいインスタンスを生成する。
// maxRetriesは連続失敗で購読を停止するしきい値で、1以上であること。
func NewStateMachine(subRepo repository.SubscriptionRepository, maxRetries int, metrics StopRecorder, logger *slog.Logger) *StateMachine {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &StateMachine{
		subRepo:    subRepo,
		maxRetries: maxRetries,
		metrics:    metrics,
		logger:     logger,
	}
}

// MaxRetries は停止のしきい値を返す。
func (m *StateMachine) MaxRetries() int {
	return m.maxRetries
}

// Begin はステータスをIN_PROGRESSにする。
func (m *StateMachine) Begin(ctx context.Context, id string) error {
	if err := m.subRepo.UpdateStatus(ctx, id, model.StatusInProgress); err != nil {
		return fmt.Errorf("購読を処理中にできませんでした: %w", err)
	}
	return nil
}

// Succeed はステータスをREADYにし、retriesを0、is_stoppedをfalseに戻す。
func (m *StateMachine) Succeed(ctx context.Context, id string) error {
	if err := m.subRepo.MarkSucceeded(ctx, id); err != nil {
		return fmt.Errorf("購読の成功を記録できませんでした: %w", err)
	}
	return nil
}

// Fail はステータスをREADYにしてretriesを1増やす。
// 増加後の値がしきい値以上なら購読を停止し、stoppedにtrueを返す。
//
// 増加はストレージ側で原子的に行う。しきい値の判定に使う値は
// 同時に失敗を報告した別のワーカーの分だけ古い可能性があるが、許容する。
func (m *StateMachine) Fail(ctx context.Context, id string) (stopped bool, err error) {
	retries, err := m.subRepo.IncrementRetries(ctx, id)
	if err != nil {
		return false, fmt.Errorf("購読の失敗を記録できませんでした: %w", err)
	}
	if retries < m.maxRetries {
		return false, nil
	}

	if err := m.subRepo.MarkStopped(ctx, id); err != nil {
		return false, fmt.Errorf("購読を停止できませんでした: %w", err)
	}
	m.metrics.RecordSubscriptionStopped(id)
	m.logger.Warn("リトライ上限に達したため購読を停止しました",
		slog.String("subscription_id", id),
		slog.Int("retries", retries),
		slog.Int("max_retries", m.maxRetries),
	)
	return true, nil
}

// Retry は停止中の購読を自動更新の対象に戻す。
// 購読が存在しない場合は*model.NotFoundError、停止中でない場合はmodel.ErrNotStoppedを返し、状態は変更しない。
func (m *StateMachine) Retry(ctx context.Context, id string) error {
	reset, err := m.subRepo.ResetIfStopped(ctx, id)
	if err != nil {
		return fmt.Errorf("購読の再開に失敗しました: %w", err)
	}
	if reset {
		return nil
	}

	sub, err := m.subRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("購読の取得に失敗しました: %w", err)
	}
	if sub == nil {
		return &model.NotFoundError{Resource: "subscription", ID: id}
	}
	return model.ErrNotStopped
}
