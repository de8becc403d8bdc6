package parser

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"regexp"
	"strings"

	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/atom"
	"github.com/mmcdole/gofeed/rss"
	"github.com/samber/lo"
)

// errUnknownFormat は本文がRSS/Atom/JSON Feedのいずれとしても判別できない場合のエラー。
var errUnknownFormat = errors.New("unknown feed format")

// Decode はフィード文書を解析してParsedFeedを返す。
// contentTypeはエンコーディングの判定にのみ使用する。
func Decode(body []byte, contentType string) (*ParsedFeed, error) {
	var (
		parsed *ParsedFeed
		err    error
	)

	switch gofeed.DetectFeedType(bytes.NewReader(body)) {
	case gofeed.FeedTypeRSS:
		parsed, err = decodeRSS(body)
	case gofeed.FeedTypeAtom:
		parsed, err = decodeAtom(body)
	case gofeed.FeedTypeJSON:
		parsed, err = decodeJSON(body)
	default:
		return nil, errUnknownFormat
	}
	if err != nil {
		return nil, err
	}

	parsed.Channel.Encoding = detectEncoding(contentType, body)
	return parsed, nil
}

// decodeRSS はRSS 0.9x/1.0/2.0を解析する。
// cloud、textInput、ttl、docsなどRSS固有の要素はRSSパーサーからのみ取得できる。
func decodeRSS(body []byte) (*ParsedFeed, error) {
	fp := &rss.Parser{}
	f, err := fp.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("RSSの解析に失敗: %w", err)
	}

	ch := Channel{
		Title:     strings.TrimSpace(f.Title),
		Subtitle:  f.Description,
		Link:      f.Link,
		Language:  f.Language,
		Rights:    f.Copyright,
		Docs:      f.Docs,
		Generator: f.Generator,
		Author:    f.ManagingEditor,
		Publisher: f.WebMaster,
		TTL:       f.TTL,
		Version:   versionString("rss", f.Version),
		Published: PubDate(f.PubDateParsed),
	}
	if f.Image != nil {
		ch.Image = &Image{
			Href:        f.Image.URL,
			Title:       f.Image.Title,
			Link:        f.Image.Link,
			Width:       f.Image.Width,
			Height:      f.Image.Height,
			Description: f.Image.Description,
		}
	}
	if f.Cloud != nil {
		ch.Cloud = &Cloud{
			Domain:            f.Cloud.Domain,
			Port:              f.Cloud.Port,
			Path:              f.Cloud.Path,
			Protocol:          f.Cloud.Protocol,
			RegisterProcedure: f.Cloud.RegisterProcedure,
		}
	}
	if f.TextInput != nil {
		ch.TextInput = &TextInput{
			Title:       f.TextInput.Title,
			Description: f.TextInput.Description,
			Name:        f.TextInput.Name,
			Link:        f.TextInput.Link,
		}
	}

	entries := lo.FilterMap(f.Items, func(item *rss.Item, _ int) (Entry, bool) {
		if item == nil {
			return Entry{}, false
		}
		e := Entry{
			Title:     strings.TrimSpace(item.Title),
			Author:    item.Author,
			Link:      item.Link,
			Summary:   item.Description,
			Comments:  item.Comments,
			Tags:      rssTags(item.Categories),
			Published: PubDate(item.PubDateParsed),
		}
		if e.Author == "" && item.DublinCoreExt != nil && len(item.DublinCoreExt.Creator) > 0 {
			e.Author = item.DublinCoreExt.Creator[0]
		}
		if e.Summary == "" {
			e.Summary = item.Content
		}
		if item.GUID != nil {
			e.ID = item.GUID.Value
		}
		if item.Enclosure != nil {
			e.Enclosures = []Enclosure{{
				Href:   item.Enclosure.URL,
				Type:   item.Enclosure.Type,
				Length: item.Enclosure.Length,
			}}
		}
		return e, true
	})

	return &ParsedFeed{
		Channel: ch,
		Tags:    rssTags(f.Categories),
		Entries: entries,
	}, nil
}

func rssTags(cats []*rss.Category) []Tag {
	return lo.FilterMap(cats, func(c *rss.Category, _ int) (Tag, bool) {
		if c == nil {
			return Tag{}, false
		}
		return Tag{Scheme: c.Domain, Term: strings.TrimSpace(c.Value)}, true
	})
}

// decodeAtom はAtom 0.3/1.0を解析する。
func decodeAtom(body []byte) (*ParsedFeed, error) {
	fp := &atom.Parser{}
	f, err := fp.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("Atomの解析に失敗: %w", err)
	}

	ch := Channel{
		Title:     strings.TrimSpace(f.Title),
		Subtitle:  f.Subtitle,
		Link:      alternateLink(f.Links),
		Language:  f.Language,
		Rights:    f.Rights,
		Author:    firstPerson(f.Authors),
		Version:   versionString("atom", f.Version),
		Published: PubDate(f.UpdatedParsed),
	}
	if f.Generator != nil {
		ch.Generator = f.Generator.Value
	}
	if f.Logo != "" {
		ch.Image = &Image{Href: f.Logo}
	}

	entries := lo.FilterMap(f.Entries, func(entry *atom.Entry, _ int) (Entry, bool) {
		if entry == nil {
			return Entry{}, false
		}
		e := Entry{
			Title:   strings.TrimSpace(entry.Title),
			Author:  firstPerson(entry.Authors),
			Link:    alternateLink(entry.Links),
			ID:      entry.ID,
			Summary: entry.Summary,
			Tags:    atomTags(entry.Categories),
		}
		if e.Summary == "" && entry.Content != nil {
			e.Summary = entry.Content.Value
		}
		e.Published = PubDate(entry.PublishedParsed)
		if e.Published == nil {
			e.Published = PubDate(entry.UpdatedParsed)
		}
		for _, l := range entry.Links {
			if l != nil && l.Rel == "enclosure" {
				e.Enclosures = append(e.Enclosures, Enclosure{Href: l.Href, Type: l.Type, Length: l.Length})
			}
		}
		return e, true
	})

	return &ParsedFeed{
		Channel: ch,
		Tags:    atomTags(f.Categories),
		Entries: entries,
	}, nil
}

func atomTags(cats []*atom.Category) []Tag {
	return lo.FilterMap(cats, func(c *atom.Category, _ int) (Tag, bool) {
		if c == nil {
			return Tag{}, false
		}
		return Tag{Scheme: c.Scheme, Term: strings.TrimSpace(c.Term), Label: c.Label}, true
	})
}

// alternateLink はrel="alternate"（省略時を含む）の最初のリンクを返す。
func alternateLink(links []*atom.Link) string {
	for _, l := range links {
		if l != nil && (l.Rel == "" || l.Rel == "alternate") {
			return l.Href
		}
	}
	return ""
}

func firstPerson(people []*atom.Person) string {
	for _, p := range people {
		if p != nil && p.Name != "" {
			return p.Name
		}
	}
	return ""
}

// decodeJSON はJSON Feedをgofeedの汎用パーサーで解析する。
func decodeJSON(body []byte) (*ParsedFeed, error) {
	f, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("JSON Feedの解析に失敗: %w", err)
	}

	ch := Channel{
		Title:     strings.TrimSpace(f.Title),
		Subtitle:  f.Description,
		Link:      f.Link,
		Language:  f.Language,
		Rights:    f.Copyright,
		Generator: f.Generator,
		Version:   versionString(f.FeedType, f.FeedVersion),
		Published: PubDate(f.PublishedParsed),
	}
	if len(f.Authors) > 0 && f.Authors[0] != nil {
		ch.Author = f.Authors[0].Name
	}
	if f.Image != nil {
		ch.Image = &Image{Href: f.Image.URL, Title: f.Image.Title}
	}

	entries := lo.FilterMap(f.Items, func(item *gofeed.Item, _ int) (Entry, bool) {
		if item == nil {
			return Entry{}, false
		}
		e := Entry{
			Title:   strings.TrimSpace(item.Title),
			Link:    item.Link,
			ID:      item.GUID,
			Summary: item.Description,
			Tags: lo.Map(item.Categories, func(c string, _ int) Tag {
				return Tag{Term: c}
			}),
			Published: PubDate(item.PublishedParsed),
			Enclosures: lo.FilterMap(item.Enclosures, func(enc *gofeed.Enclosure, _ int) (Enclosure, bool) {
				if enc == nil {
					return Enclosure{}, false
				}
				return Enclosure{Href: enc.URL, Type: enc.Type, Length: enc.Length}, true
			}),
		}
		if e.Summary == "" {
			e.Summary = item.Content
		}
		if len(item.Authors) > 0 && item.Authors[0] != nil {
			e.Author = item.Authors[0].Name
		}
		return e, true
	})

	return &ParsedFeed{
		Channel: ch,
		Tags: lo.Map(f.Categories, func(c string, _ int) Tag {
			return Tag{Term: c}
		}),
		Entries: entries,
	}, nil
}

// versionString は形式名とバージョン番号から "rss20" のような識別子を作る。
func versionString(kind, version string) string {
	if version == "" {
		return kind
	}
	return kind + strings.ReplaceAll(version, ".", "")
}

var xmlEncodingPattern = regexp.MustCompile(`^\s*<\?xml[^>]*encoding=["']([A-Za-z0-9._-]+)["']`)

// detectEncoding はContent-Typeのcharset、XML宣言、既定値utf-8の順で文字コードを決める。
func detectEncoding(contentType string, body []byte) string {
	if contentType != "" {
		if _, params, err := mime.ParseMediaType(contentType); err == nil {
			if cs := params["charset"]; cs != "" {
				return strings.ToLower(cs)
			}
		}
	}
	head := body
	if len(head) > 256 {
		head = head[:256]
	}
	if m := xmlEncodingPattern.FindSubmatch(head); m != nil {
		return strings.ToLower(string(m[1]))
	}
	return "utf-8"
}
