package subscription

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/feedsync/internal/model"
	"github.com/hitoshi/feedsync/internal/repository"
)

// Dispatcher は購読の更新を非同期に起動するインターフェース。
// 同じ購読の更新がすでに実行中の場合はfalseを返す。
type Dispatcher interface {
	Dispatch(subscriptionID string) bool
}

// Service は運用APIから呼ばれる購読操作のサービス層。
// 参照、停止中購読のリトライ、即時更新を提供する。
type Service struct {
	subRepo    repository.SubscriptionRepository
	machine    *StateMachine
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	subRepo repository.SubscriptionRepository,
	machine *StateMachine,
	dispatcher Dispatcher,
	logger *slog.Logger,
) *Service {
	return &Service{
		subRepo:    subRepo,
		machine:    machine,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Get は購読を取得する。
func (s *Service) Get(ctx context.Context, id string) (*model.Subscription, error) {
	sub, err := s.subRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("購読の取得に失敗しました: %w", err)
	}
	if sub == nil {
		return nil, &model.NotFoundError{Resource: "subscription", ID: id}
	}
	return sub, nil
}

// Retry は停止中の購読を再開し、即座に更新を起動する。
// 停止中でない購読はmodel.ErrNotStoppedで拒否する。
func (s *Service) Retry(ctx context.Context, id string) (*model.Subscription, error) {
	if err := s.machine.Retry(ctx, id); err != nil {
		return nil, err
	}

	s.logger.Info("停止中の購読を再開しました", slog.String("subscription_id", id))
	s.dispatcher.Dispatch(id)

	return s.Get(ctx, id)
}

// ForceUpdate はスケジュールを待たずに購読の更新を起動する。
// 停止中の購読はmodel.ErrStopped、処理中の購読はmodel.ErrInProgressで拒否する。
func (s *Service) ForceUpdate(ctx context.Context, id string) error {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if sub.IsStopped {
		return model.ErrStopped
	}
	if sub.Status == model.StatusInProgress {
		return model.ErrInProgress
	}

	if !s.dispatcher.Dispatch(id) {
		return model.ErrInProgress
	}
	s.logger.Info("購読の即時更新を受け付けました", slog.String("subscription_id", id))
	return nil
}
