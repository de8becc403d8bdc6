package parser

import "time"

// ParsedFeed はフィード文書を形式に依存しない形に正規化した結果。
// 文書に存在しない項目はゼロ値（空文字列、nil）になる。
type ParsedFeed struct {
	Channel Channel
	Tags    []Tag
	Entries []Entry
}

// Channel はチャンネル（フィード全体）のメタデータ。
type Channel struct {
	Title     string
	Subtitle  string
	Link      string
	Language  string
	Rights    string
	Docs      string
	Encoding  string
	Generator string
	Author    string // RSS managingEditor / Atom author
	Publisher string // RSS webMaster
	TTL       string
	Version   string // rss20, rss091, rss10, atom10, json11 など
	Published *time.Time

	Image     *Image
	Cloud     *Cloud
	TextInput *TextInput
}

// Image はチャンネル画像。
type Image struct {
	Href        string
	Title       string
	Link        string
	Width       string
	Height      string
	Description string
}

// Cloud はRSS cloud要素。
type Cloud struct {
	Domain            string
	Port              string
	Path              string
	Protocol          string
	RegisterProcedure string
}

// TextInput はRSS textInput要素。
type TextInput struct {
	Title       string
	Description string
	Name        string
	Link        string
}

// Tag はカテゴリ。RSSではdomainがScheme、本文がTermになる。
type Tag struct {
	Scheme string
	Term   string
	Label  string
}

// Entry はフィード内の1記事。
type Entry struct {
	Title      string
	Author     string
	Link       string
	ID         string
	Summary    string
	Comments   string
	Enclosures []Enclosure
	Tags       []Tag
	Published  *time.Time
}

// Enclosure は記事の添付メディア。
type Enclosure struct {
	Href   string
	Type   string
	Length string
}
