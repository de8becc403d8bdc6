package model

import "time"

// Feed は購読から取得したチャンネルのメタデータを表す。
// 購読と1対1で、取得に成功するたびに全項目が上書きされる。
type Feed struct {
	ID             string
	SubscriptionID string

	Title          string // 必須
	Description    string
	Link           string
	Language       string
	Copyright      string
	Docs           string
	Encoding       string
	Generator      string
	ManagingEditor string
	WebMaster      string
	TTL            string
	Version        string
	PubDate        *time.Time

	Image     FeedImage
	Cloud     FeedCloud
	TextInput FeedTextInput

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FeedImage はチャンネル画像の情報。
type FeedImage struct {
	URL         string
	Title       string
	Link        string
	Width       string
	Height      string
	Description string
}

// FeedCloud はRSS cloud要素の情報。
type FeedCloud struct {
	Domain            string
	Port              string
	Path              string
	Protocol          string
	RegisterProcedure string
}

// FeedTextInput はRSS textInput要素の情報。
type FeedTextInput struct {
	Title       string
	Description string
	Name        string
	Link        string
}

// Category はフィードまたは記事に付与されたカテゴリ。
// 所有者の再同期のたびに全件置き換えられる。
type Category struct {
	ID      string
	OwnerID string // feed_id または item_id
	Domain  string
	Keyword string // 必須
	Label   string
}
