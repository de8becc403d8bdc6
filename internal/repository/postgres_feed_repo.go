package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/feedsync/internal/model"
)

// PostgresFeedRepo はPostgreSQLを使用したフィードリポジトリ。
type PostgresFeedRepo struct {
	db DBTX
}

// NewPostgresFeedRepo はPostgresFeedRepoを生成する。
func NewPostgresFeedRepo(db DBTX) *PostgresFeedRepo {
	return &PostgresFeedRepo{db: db}
}

const feedColumns = `id, subscription_id, title, description, link, language, copyright,
	docs, encoding, generator, managing_editor, web_master, ttl, version, pub_date,
	image_url, image_title, image_link, image_width, image_height, image_description,
	cloud_domain, cloud_port, cloud_path, cloud_protocol, cloud_register_procedure,
	text_input_title, text_input_description, text_input_name, text_input_link,
	created_at, updated_at`

// FindBySubscriptionID は購読に紐づくフィードを取得する。見つからない場合はnilを返す。
func (r *PostgresFeedRepo) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*model.Feed, error) {
	feed := &model.Feed{}
	var (
		description, link, language, copyright, docs, encoding, generator  sql.NullString
		managingEditor, webMaster, ttl, version                            sql.NullString
		imageURL, imageTitle, imageLink, imageWidth, imageHeight, imageDesc sql.NullString
		cloudDomain, cloudPort, cloudPath, cloudProtocol, cloudProcedure   sql.NullString
		tiTitle, tiDescription, tiName, tiLink                             sql.NullString
		pubDate                                                            sql.NullTime
	)

	err := r.db.QueryRowContext(ctx,
		`SELECT `+feedColumns+` FROM feeds WHERE subscription_id = $1`,
		subscriptionID,
	).Scan(
		&feed.ID, &feed.SubscriptionID, &feed.Title, &description, &link, &language, &copyright,
		&docs, &encoding, &generator, &managingEditor, &webMaster, &ttl, &version, &pubDate,
		&imageURL, &imageTitle, &imageLink, &imageWidth, &imageHeight, &imageDesc,
		&cloudDomain, &cloudPort, &cloudPath, &cloudProtocol, &cloudProcedure,
		&tiTitle, &tiDescription, &tiName, &tiLink,
		&feed.CreatedAt, &feed.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) || isInvalidUUID(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}

	feed.Description = nullStringValue(description)
	feed.Link = nullStringValue(link)
	feed.Language = nullStringValue(language)
	feed.Copyright = nullStringValue(copyright)
	feed.Docs = nullStringValue(docs)
	feed.Encoding = nullStringValue(encoding)
	feed.Generator = nullStringValue(generator)
	feed.ManagingEditor = nullStringValue(managingEditor)
	feed.WebMaster = nullStringValue(webMaster)
	feed.TTL = nullStringValue(ttl)
	feed.Version = nullStringValue(version)
	if pubDate.Valid {
		t := pubDate.Time
		feed.PubDate = &t
	}
	feed.Image = model.FeedImage{
		URL:         nullStringValue(imageURL),
		Title:       nullStringValue(imageTitle),
		Link:        nullStringValue(imageLink),
		Width:       nullStringValue(imageWidth),
		Height:      nullStringValue(imageHeight),
		Description: nullStringValue(imageDesc),
	}
	feed.Cloud = model.FeedCloud{
		Domain:            nullStringValue(cloudDomain),
		Port:              nullStringValue(cloudPort),
		Path:              nullStringValue(cloudPath),
		Protocol:          nullStringValue(cloudProtocol),
		RegisterProcedure: nullStringValue(cloudProcedure),
	}
	feed.TextInput = model.FeedTextInput{
		Title:       nullStringValue(tiTitle),
		Description: nullStringValue(tiDescription),
		Name:        nullStringValue(tiName),
		Link:        nullStringValue(tiLink),
	}

	return feed, nil
}

// feedArgs はsubscription_id以降の書き込み対象列の値を列順に返す。
func feedArgs(feed *model.Feed) []any {
	return []any{
		feed.Title, nullString(feed.Description), nullString(feed.Link), nullString(feed.Language),
		nullString(feed.Copyright), nullString(feed.Docs), nullString(feed.Encoding),
		nullString(feed.Generator), nullString(feed.ManagingEditor), nullString(feed.WebMaster),
		nullString(feed.TTL), nullString(feed.Version), feed.PubDate,
		nullString(feed.Image.URL), nullString(feed.Image.Title), nullString(feed.Image.Link),
		nullString(feed.Image.Width), nullString(feed.Image.Height), nullString(feed.Image.Description),
		nullString(feed.Cloud.Domain), nullString(feed.Cloud.Port), nullString(feed.Cloud.Path),
		nullString(feed.Cloud.Protocol), nullString(feed.Cloud.RegisterProcedure),
		nullString(feed.TextInput.Title), nullString(feed.TextInput.Description),
		nullString(feed.TextInput.Name), nullString(feed.TextInput.Link),
	}
}

// Create はフィードを作成する。
func (r *PostgresFeedRepo) Create(ctx context.Context, feed *model.Feed) error {
	if feed.ID == "" {
		feed.ID = uuid.NewString()
	}
	args := append([]any{feed.ID, feed.SubscriptionID}, feedArgs(feed)...)
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO feeds (id, subscription_id, title, description, link, language, copyright,
		    docs, encoding, generator, managing_editor, web_master, ttl, version, pub_date,
		    image_url, image_title, image_link, image_width, image_height, image_description,
		    cloud_domain, cloud_port, cloud_path, cloud_protocol, cloud_register_procedure,
		    text_input_title, text_input_description, text_input_name, text_input_link)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		         $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30)
		 RETURNING created_at, updated_at`,
		args...,
	).Scan(&feed.CreatedAt, &feed.UpdatedAt)
	if err != nil {
		return translateError("feed", "フィードの作成に失敗しました", err)
	}
	return nil
}

// Update はフィードの全項目を上書きする。
// 取得結果に含まれない項目はNULLになる。
func (r *PostgresFeedRepo) Update(ctx context.Context, feed *model.Feed) error {
	args := append([]any{feed.ID}, feedArgs(feed)...)
	err := r.db.QueryRowContext(ctx,
		`UPDATE feeds SET
		    title = $2, description = $3, link = $4, language = $5, copyright = $6,
		    docs = $7, encoding = $8, generator = $9, managing_editor = $10, web_master = $11,
		    ttl = $12, version = $13, pub_date = $14,
		    image_url = $15, image_title = $16, image_link = $17,
		    image_width = $18, image_height = $19, image_description = $20,
		    cloud_domain = $21, cloud_port = $22, cloud_path = $23,
		    cloud_protocol = $24, cloud_register_procedure = $25,
		    text_input_title = $26, text_input_description = $27,
		    text_input_name = $28, text_input_link = $29,
		    updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		args...,
	).Scan(&feed.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &model.NotFoundError{Resource: "feed", ID: feed.ID}
	}
	if err != nil {
		return translateError("feed", "フィードの更新に失敗しました", err)
	}
	return nil
}

// compile-time interface check
var _ FeedRepository = (*PostgresFeedRepo)(nil)
