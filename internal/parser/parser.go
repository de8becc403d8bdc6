// Package parser はフィードURLを取得し、RSS/Atom/JSON Feedを形式に依存しない構造へ変換する。
package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/hitoshi/feedsync/internal/model"
)

// SSRFValidator はSSRF検証のインターフェース。
// security.Guardを抽象化してテストで差し替えられるようにする。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// FetchRecorder は取得結果のメトリクスを記録するインターフェース。
type FetchRecorder interface {
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordParseFailure(url string)
}

// Options はParserの取得設定。
type Options struct {
	Timeout     time.Duration
	MaxBodySize int64
	UserAgent   string
}

// DefaultOptions は環境変数の既定値と同じ取得設定を返す。
func DefaultOptions() Options {
	return Options{
		Timeout:     10 * time.Second,
		MaxBodySize: 5 * 1024 * 1024,
		UserAgent:   "Feedsync/1.0 RSS Reader",
	}
}

// Parser はURLからフィードを取得して解析する。
// 失敗はすべて*model.InvalidFeedErrorとして返す。
type Parser struct {
	guard   SSRFValidator
	metrics FetchRecorder
	logger  *slog.Logger
	opts    Options
}

// NewParser はParserの新しいインスタンスを生成する。
func NewParser(guard SSRFValidator, metrics FetchRecorder, logger *slog.Logger, opts Options) *Parser {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = def.MaxBodySize
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	return &Parser{
		guard:   guard,
		metrics: metrics,
		logger:  logger,
		opts:    opts,
	}
}

// Parse はurlのフィードを取得して解析する。
func (p *Parser) Parse(ctx context.Context, url string) (*ParsedFeed, error) {
	body, contentType, err := p.fetch(ctx, url)
	if err != nil {
		p.metrics.RecordParseFailure(url)
		return nil, err
	}

	parsed, err := Decode(body, contentType)
	if err == nil {
		p.logger.Debug("フィードを解析しました",
			slog.String("url", url),
			slog.String("version", parsed.Channel.Version),
			slog.Int("entries", len(parsed.Entries)),
		)
		return parsed, nil
	}

	p.metrics.RecordParseFailure(url)

	// フィードではなくHTMLページを購読している場合は、ページが宣言しているフィードを案内する
	if isHTML(contentType, body) {
		links := FindFeedLinks(body, url)
		reason := "HTMLページはフィードではありません"
		if len(links) > 0 {
			urls := lo.Map(links, func(l FeedLink, _ int) string { return l.URL })
			reason = fmt.Sprintf("%s（候補: %s）", reason, strings.Join(urls, ", "))
		}
		return nil, &model.InvalidFeedError{URL: url, Reason: reason}
	}

	if errors.Is(err, errUnknownFormat) {
		return nil, &model.InvalidFeedError{URL: url, Reason: "フィード形式を判別できません"}
	}
	return nil, &model.InvalidFeedError{URL: url, Reason: "フィードの解析に失敗しました", Err: err}
}

// fetch はSSRF検証済みのクライアントで本文を取得する。
func (p *Parser) fetch(ctx context.Context, url string) ([]byte, string, error) {
	if err := p.guard.ValidateURL(url); err != nil {
		return nil, "", &model.InvalidFeedError{URL: url, Reason: "URLが許可されていません", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", &model.InvalidFeedError{URL: url, Reason: "リクエストの作成に失敗しました", Err: err}
	}
	req.Header.Set("User-Agent", p.opts.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/feed+json, application/xml, text/xml, */*")

	start := time.Now()
	client := p.guard.NewSafeClient(p.opts.Timeout, p.opts.MaxBodySize)
	resp, err := client.Do(req)
	if err != nil {
		p.logger.Warn("HTTPリクエストに失敗しました",
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
		return nil, "", &model.InvalidFeedError{URL: url, Reason: "HTTPリクエストに失敗しました", Err: err}
	}
	defer resp.Body.Close()

	p.metrics.RecordHTTPStatus(resp.StatusCode)
	p.metrics.RecordFetchLatency(time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &model.InvalidFeedError{
			URL:    url,
			Reason: fmt.Sprintf("HTTPステータス %d", resp.StatusCode),
		}
	}

	// 上限+1バイトまで読み、超過していれば切り詰めずにエラーにする
	body, err := io.ReadAll(io.LimitReader(resp.Body, p.opts.MaxBodySize+1))
	if err != nil {
		return nil, "", &model.InvalidFeedError{URL: url, Reason: "レスポンスの読み取りに失敗しました", Err: err}
	}
	if int64(len(body)) > p.opts.MaxBodySize {
		return nil, "", &model.InvalidFeedError{
			URL:    url,
			Reason: fmt.Sprintf("レスポンスが上限 %d バイトを超えています", p.opts.MaxBodySize),
		}
	}

	return body, resp.Header.Get("Content-Type"), nil
}
