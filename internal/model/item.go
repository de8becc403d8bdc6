package model

import "time"

// FeedItem はフィードから取得した記事を表す。
// (FeedID, Title) の組で同一性を判定する。
type FeedItem struct {
	ID          string
	FeedID      string
	Title       string // 必須
	Author      string
	Link        string
	GUID        string
	Description string // サニタイズ済みHTML
	Comments    string
	Enclosure   Enclosure
	PubDate     *time.Time
	IsRead      bool // ユーザーが設定した値は同期で上書きしない
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Enclosure は記事の添付メディア。
type Enclosure struct {
	URL    string
	Type   string
	Length string
}
