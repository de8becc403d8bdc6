package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/feedsync/internal/model"
)

// PostgresCategoryRepo はfeed_categoriesとfeed_item_categoriesを扱うリポジトリ。
// 2つのテーブルは同じ列構成で、所有者の列名だけが異なる。
type PostgresCategoryRepo struct {
	db DBTX
}

// NewPostgresCategoryRepo はPostgresCategoryRepoを生成する。
func NewPostgresCategoryRepo(db DBTX) *PostgresCategoryRepo {
	return &PostgresCategoryRepo{db: db}
}

// categoryTable はカテゴリテーブルと所有者列の組。
type categoryTable struct {
	name     string
	ownerCol string
}

var (
	feedCategoryTable = categoryTable{name: "feed_categories", ownerCol: "feed_id"}
	itemCategoryTable = categoryTable{name: "feed_item_categories", ownerCol: "item_id"}
)

func (r *PostgresCategoryRepo) list(ctx context.Context, t categoryTable, ownerID string) ([]*model.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, %s, domain, keyword, label FROM %s WHERE %s = $1 ORDER BY keyword ASC`,
			t.ownerCol, t.name, t.ownerCol),
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("カテゴリ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var cats []*model.Category
	for rows.Next() {
		c := &model.Category{}
		var domain, label sql.NullString
		if err := rows.Scan(&c.ID, &c.OwnerID, &domain, &c.Keyword, &label); err != nil {
			return nil, fmt.Errorf("カテゴリ行の読み取りに失敗しました: %w", err)
		}
		c.Domain = nullStringValue(domain)
		c.Label = nullStringValue(label)
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("カテゴリ一覧の走査に失敗しました: %w", err)
	}
	return cats, nil
}

func (r *PostgresCategoryRepo) deleteAll(ctx context.Context, t categoryTable, ownerID string) error {
	_, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, t.name, t.ownerCol),
		ownerID,
	)
	if err != nil {
		return fmt.Errorf("カテゴリの削除に失敗しました: %w", err)
	}
	return nil
}

func (r *PostgresCategoryRepo) create(ctx context.Context, t categoryTable, c *model.Category) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, %s, domain, keyword, label) VALUES ($1, $2, $3, $4, $5)`,
			t.name, t.ownerCol),
		c.ID, c.OwnerID, nullString(c.Domain), c.Keyword, nullString(c.Label),
	)
	if err != nil {
		return translateError(t.name, "カテゴリの作成に失敗しました", err)
	}
	return nil
}

// ListByFeedID はフィードのカテゴリを返す。
func (r *PostgresCategoryRepo) ListByFeedID(ctx context.Context, feedID string) ([]*model.Category, error) {
	return r.list(ctx, feedCategoryTable, feedID)
}

// DeleteByFeedID はフィードのカテゴリをすべて削除する。
func (r *PostgresCategoryRepo) DeleteByFeedID(ctx context.Context, feedID string) error {
	return r.deleteAll(ctx, feedCategoryTable, feedID)
}

// CreateForFeed はフィードのカテゴリを作成する。c.OwnerIDにはfeed_idを設定する。
func (r *PostgresCategoryRepo) CreateForFeed(ctx context.Context, c *model.Category) error {
	return r.create(ctx, feedCategoryTable, c)
}

// ListByItemID は記事のカテゴリを返す。
func (r *PostgresCategoryRepo) ListByItemID(ctx context.Context, itemID string) ([]*model.Category, error) {
	return r.list(ctx, itemCategoryTable, itemID)
}

// DeleteByItemID は記事のカテゴリをすべて削除する。
func (r *PostgresCategoryRepo) DeleteByItemID(ctx context.Context, itemID string) error {
	return r.deleteAll(ctx, itemCategoryTable, itemID)
}

// CreateForItem は記事のカテゴリを作成する。c.OwnerIDにはitem_idを設定する。
func (r *PostgresCategoryRepo) CreateForItem(ctx context.Context, c *model.Category) error {
	return r.create(ctx, itemCategoryTable, c)
}

// compile-time interface check
var _ CategoryRepository = (*PostgresCategoryRepo)(nil)
