package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/feedsync/internal/model"
)

// PostgresItemRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresItemRepo struct {
	db DBTX
}

// NewPostgresItemRepo はPostgresItemRepoを生成する。
func NewPostgresItemRepo(db DBTX) *PostgresItemRepo {
	return &PostgresItemRepo{db: db}
}

const itemColumns = `id, feed_id, title, author, link, guid, description, comments,
	enclosure_url, enclosure_type, enclosure_length, pub_date, is_read, created_at, updated_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通部分。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanItem は1行分の記事を読み取る。
func scanItem(row rowScanner) (*model.FeedItem, error) {
	item := &model.FeedItem{}
	var author, link, guid, description, comments, encURL, encType, encLength sql.NullString
	var pubDate sql.NullTime

	err := row.Scan(
		&item.ID, &item.FeedID, &item.Title, &author, &link, &guid, &description, &comments,
		&encURL, &encType, &encLength, &pubDate, &item.IsRead, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Author = nullStringValue(author)
	item.Link = nullStringValue(link)
	item.GUID = nullStringValue(guid)
	item.Description = nullStringValue(description)
	item.Comments = nullStringValue(comments)
	item.Enclosure = model.Enclosure{
		URL:    nullStringValue(encURL),
		Type:   nullStringValue(encType),
		Length: nullStringValue(encLength),
	}
	if pubDate.Valid {
		t := pubDate.Time
		item.PubDate = &t
	}
	return item, nil
}

// FindByFeedAndTitle は(feed_id, title)で記事を検索する。見つからない場合はnilを返す。
func (r *PostgresItemRepo) FindByFeedAndTitle(ctx context.Context, feedID, title string) (*model.FeedItem, error) {
	item, err := scanItem(r.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM feed_items WHERE feed_id = $1 AND title = $2`,
		feedID, title,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		// NULバイトを含むタイトルは検索の時点で拒否される
		return nil, translateError("feed_item", "タイトルによる記事の検索に失敗しました", err)
	}
	return item, nil
}

// ListByFeedID はフィードの記事を作成順に返す。
func (r *PostgresItemRepo) ListByFeedID(ctx context.Context, feedID string) ([]*model.FeedItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM feed_items WHERE feed_id = $1 ORDER BY created_at ASC, title ASC`,
		feedID,
	)
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var items []*model.FeedItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("記事行の読み取りに失敗しました: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記事一覧の走査に失敗しました: %w", err)
	}
	return items, nil
}

// Create は新規記事を作成する。
func (r *PostgresItemRepo) Create(ctx context.Context, item *model.FeedItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO feed_items (id, feed_id, title, author, link, guid, description, comments,
		    enclosure_url, enclosure_type, enclosure_length, pub_date, is_read)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING created_at, updated_at`,
		item.ID, item.FeedID, item.Title,
		nullString(item.Author), nullString(item.Link), nullString(item.GUID),
		nullString(item.Description), nullString(item.Comments),
		nullString(item.Enclosure.URL), nullString(item.Enclosure.Type), nullString(item.Enclosure.Length),
		item.PubDate, item.IsRead,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return translateError("feed_item", "記事の作成に失敗しました", err)
	}
	return nil
}

// Update は既存記事の全項目を上書きする。is_readは更新対象に含めない。
func (r *PostgresItemRepo) Update(ctx context.Context, item *model.FeedItem) error {
	err := r.db.QueryRowContext(ctx,
		`UPDATE feed_items SET
		    title = $2, author = $3, link = $4, guid = $5, description = $6, comments = $7,
		    enclosure_url = $8, enclosure_type = $9, enclosure_length = $10, pub_date = $11,
		    updated_at = now()
		 WHERE id = $1
		 RETURNING is_read, updated_at`,
		item.ID, item.Title,
		nullString(item.Author), nullString(item.Link), nullString(item.GUID),
		nullString(item.Description), nullString(item.Comments),
		nullString(item.Enclosure.URL), nullString(item.Enclosure.Type), nullString(item.Enclosure.Length),
		item.PubDate,
	).Scan(&item.IsRead, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &model.NotFoundError{Resource: "feed_item", ID: item.ID}
	}
	if err != nil {
		return translateError("feed_item", "記事の更新に失敗しました", err)
	}
	return nil
}

// compile-time interface check
var _ ItemRepository = (*PostgresItemRepo)(nil)
