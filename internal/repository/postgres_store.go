package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// postgresQueries はDBTXに束縛されたリポジトリ群。
type postgresQueries struct {
	subs  *PostgresSubscriptionRepo
	feeds *PostgresFeedRepo
	items *PostgresItemRepo
	cats  *PostgresCategoryRepo
}

func newPostgresQueries(db DBTX) *postgresQueries {
	return &postgresQueries{
		subs:  NewPostgresSubscriptionRepo(db),
		feeds: NewPostgresFeedRepo(db),
		items: NewPostgresItemRepo(db),
		cats:  NewPostgresCategoryRepo(db),
	}
}

func (q *postgresQueries) Subscriptions() SubscriptionRepository { return q.subs }
func (q *postgresQueries) Feeds() FeedRepository                 { return q.feeds }
func (q *postgresQueries) Items() ItemRepository                 { return q.items }
func (q *postgresQueries) Categories() CategoryRepository        { return q.cats }

// PostgresStore はPostgreSQLを使用したStore実装。
type PostgresStore struct {
	*postgresQueries
	db *sql.DB
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		postgresQueries: newPostgresQueries(db),
		db:              db,
	}
}

// WithTx はトランザクション内でfnを実行する。
// fnがエラーを返すかpanicした場合はロールバックする。
func (s *PostgresStore) WithTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(newPostgresQueries(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// PingContext はDB接続を確認する。ヘルスチェックで使用する。
func (s *PostgresStore) PingContext(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// compile-time interface check
var _ Store = (*PostgresStore)(nil)
