package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/feedsync/internal/model"
)

// PostgresSubscriptionRepo はPostgreSQLを使用した購読リポジトリ。
type PostgresSubscriptionRepo struct {
	db DBTX
}

// NewPostgresSubscriptionRepo はPostgresSubscriptionRepoを生成する。
func NewPostgresSubscriptionRepo(db DBTX) *PostgresSubscriptionRepo {
	return &PostgresSubscriptionRepo{db: db}
}

const subscriptionColumns = `id, owner_id, url, status, retries, is_stopped, created_at, updated_at`

// FindByID は指定IDの購読を取得する。見つからない場合はnilを返す。
func (r *PostgresSubscriptionRepo) FindByID(ctx context.Context, id string) (*model.Subscription, error) {
	sub := &model.Subscription{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`,
		id,
	).Scan(&sub.ID, &sub.OwnerID, &sub.URL, &sub.Status, &sub.Retries, &sub.IsStopped, &sub.CreatedAt, &sub.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) || isInvalidUUID(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("購読の取得に失敗しました: %w", err)
	}

	return sub, nil
}

// Create は購読を作成する。
func (r *PostgresSubscriptionRepo) Create(ctx context.Context, sub *model.Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.Status == "" {
		sub.Status = model.StatusNew
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO subscriptions (id, owner_id, url, status, retries, is_stopped)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at, updated_at`,
		sub.ID, sub.OwnerID, sub.URL, sub.Status, sub.Retries, sub.IsStopped,
	).Scan(&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return translateError("subscription", "購読の作成に失敗しました", err)
	}
	return nil
}

// UpdateStatus はステータスのみを更新する。
func (r *PostgresSubscriptionRepo) UpdateStatus(ctx context.Context, id string, status model.SubscriptionStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE subscriptions SET status = $2, updated_at = now() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return translateError("subscription", "購読ステータスの更新に失敗しました", err)
	}
	return requireAffected(result, id)
}

// MarkSucceeded はステータスをREADY、retriesを0、is_stoppedをfalseにする。
func (r *PostgresSubscriptionRepo) MarkSucceeded(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE subscriptions
		 SET status = 'READY', retries = 0, is_stopped = false, updated_at = now()
		 WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("購読の成功状態への更新に失敗しました: %w", err)
	}
	return requireAffected(result, id)
}

// IncrementRetries はretriesを原子的にインクリメントし、増加後の値を返す。
// 読み取りと書き込みを分けないため、並行する失敗が互いの増分を失うことはない。
func (r *PostgresSubscriptionRepo) IncrementRetries(ctx context.Context, id string) (int, error) {
	var retries int
	err := r.db.QueryRowContext(ctx,
		`UPDATE subscriptions
		 SET status = 'READY', retries = retries + 1, updated_at = now()
		 WHERE id = $1
		 RETURNING retries`,
		id,
	).Scan(&retries)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &model.NotFoundError{Resource: "subscription", ID: id}
	}
	if err != nil {
		return 0, fmt.Errorf("リトライ回数の更新に失敗しました: %w", err)
	}
	return retries, nil
}

// MarkStopped はis_stoppedをtrueにする。
func (r *PostgresSubscriptionRepo) MarkStopped(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE subscriptions SET is_stopped = true, updated_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("購読の停止に失敗しました: %w", err)
	}
	return requireAffected(result, id)
}

// ResetIfStopped は停止中の購読に限り成功状態へ戻す。
func (r *PostgresSubscriptionRepo) ResetIfStopped(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE subscriptions
		 SET status = 'READY', retries = 0, is_stopped = false, updated_at = now()
		 WHERE id = $1 AND is_stopped = true`,
		id,
	)
	if isInvalidUUID(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("停止中購読のリセットに失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	return n > 0, nil
}

// ListRunnableIDs はis_stopped = false かつ status = READY の購読IDを返す。
func (r *PostgresSubscriptionRepo) ListRunnableIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM subscriptions
		 WHERE is_stopped = false AND status = 'READY'
		 ORDER BY updated_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("更新対象購読の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("購読IDの読み取りに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("購読一覧の走査に失敗しました: %w", err)
	}
	return ids, nil
}

// requireAffected は更新件数が0の場合にNotFoundErrorを返す。
func requireAffected(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if n == 0 {
		return &model.NotFoundError{Resource: "subscription", ID: id}
	}
	return nil
}

// compile-time interface check
var _ SubscriptionRepository = (*PostgresSubscriptionRepo)(nil)
