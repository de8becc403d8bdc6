package parser

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/feedsync/internal/model"
)

// mockSSRFGuard はテスト用のSSRFガード。
// httptestサーバーはループバックで起動するため、通常のクライアントを返す。
type mockSSRFGuard struct {
	validateErr error
}

func (m *mockSSRFGuard) ValidateURL(rawURL string) error {
	return m.validateErr
}

func (m *mockSSRFGuard) NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client {
	return &http.Client{Timeout: timeout}
}

// mockRecorder は記録された値を保持する。
type mockRecorder struct {
	mu            sync.Mutex
	statuses      []int
	latencies     int
	parseFailures int
}

func (m *mockRecorder) RecordHTTPStatus(statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, statusCode)
}

func (m *mockRecorder) RecordFetchLatency(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies++
}

func (m *mockRecorder) RecordParseFailure(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parseFailures++
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestParser(guard SSRFValidator, rec FetchRecorder, opts Options) *Parser {
	var buf bytes.Buffer
	return NewParser(guard, rec, newTestLogger(&buf), opts)
}

func serve(t *testing.T, status int, contentType, body string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func assertInvalidFeed(t *testing.T, err error) *model.InvalidFeedError {
	t.Helper()
	var invalid *model.InvalidFeedError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v (%T), want *model.InvalidFeedError", err, err)
	}
	return invalid
}

func TestParser_Parse_Success(t *testing.T) {
	var gotUA, gotAccept string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rss20Fixture))
	}))
	defer ts.Close()

	rec := &mockRecorder{}
	p := newTestParser(&mockSSRFGuard{}, rec, Options{UserAgent: "test-agent/1.0"})

	feed, err := p.Parse(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if feed.Channel.Title != "テストブログ" || len(feed.Entries) != 2 {
		t.Errorf("feed = %+v", feed.Channel)
	}
	if gotUA != "test-agent/1.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if !strings.Contains(gotAccept, "application/rss+xml") {
		t.Errorf("Accept = %q", gotAccept)
	}
	if len(rec.statuses) != 1 || rec.statuses[0] != http.StatusOK || rec.latencies != 1 {
		t.Errorf("metrics = %+v", rec)
	}
	if rec.parseFailures != 0 {
		t.Errorf("parseFailures = %d, want 0", rec.parseFailures)
	}
}

func TestParser_Parse_Non2xx(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusInternalServerError, http.StatusNotModified} {
		ts := serve(t, status, "text/plain", "")
		rec := &mockRecorder{}
		p := newTestParser(&mockSSRFGuard{}, rec, Options{})

		_, err := p.Parse(context.Background(), ts.URL)
		invalid := assertInvalidFeed(t, err)
		if invalid.URL != ts.URL {
			t.Errorf("URL = %q, want %q", invalid.URL, ts.URL)
		}
		if rec.parseFailures != 1 {
			t.Errorf("status %d: parseFailures = %d, want 1", status, rec.parseFailures)
		}
	}
}

func TestParser_Parse_SSRFBlocked(t *testing.T) {
	rec := &mockRecorder{}
	p := newTestParser(&mockSSRFGuard{validateErr: errors.New("blocked")}, rec, Options{})

	_, err := p.Parse(context.Background(), "http://127.0.0.1/feed")
	assertInvalidFeed(t, err)
	if len(rec.statuses) != 0 {
		t.Error("SSRF検証で拒否された場合はリクエストを送信しないべき")
	}
}

func TestParser_Parse_TooLarge(t *testing.T) {
	ts := serve(t, http.StatusOK, "application/rss+xml", rss20Fixture)
	p := newTestParser(&mockSSRFGuard{}, &mockRecorder{}, Options{MaxBodySize: 64})

	_, err := p.Parse(context.Background(), ts.URL)
	invalid := assertInvalidFeed(t, err)
	if !strings.Contains(invalid.Reason, "上限") {
		t.Errorf("Reason = %q", invalid.Reason)
	}
}

func TestParser_Parse_Garbage(t *testing.T) {
	ts := serve(t, http.StatusOK, "text/plain", "not a feed at all")
	p := newTestParser(&mockSSRFGuard{}, &mockRecorder{}, Options{})

	_, err := p.Parse(context.Background(), ts.URL)
	assertInvalidFeed(t, err)
}

func TestParser_Parse_BrokenXML(t *testing.T) {
	ts := serve(t, http.StatusOK, "application/rss+xml", `<rss version="2.0"><channel><title>壊れた`)
	p := newTestParser(&mockSSRFGuard{}, &mockRecorder{}, Options{})

	_, err := p.Parse(context.Background(), ts.URL)
	assertInvalidFeed(t, err)
}

func TestParser_Parse_HTMLListsFeedLinks(t *testing.T) {
	page := `<html><head><link rel="alternate" type="application/rss+xml" href="/feed.xml"></head><body></body></html>`
	ts := serve(t, http.StatusOK, "text/html; charset=utf-8", page)
	p := newTestParser(&mockSSRFGuard{}, &mockRecorder{}, Options{})

	_, err := p.Parse(context.Background(), ts.URL)
	invalid := assertInvalidFeed(t, err)
	if !strings.Contains(invalid.Reason, ts.URL+"/feed.xml") {
		t.Errorf("Reason should list discovered feed: %q", invalid.Reason)
	}
}

func TestParser_Parse_ContextCanceled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestParser(&mockSSRFGuard{}, &mockRecorder{}, Options{})
	_, err := p.Parse(ctx, ts.URL)
	invalid := assertInvalidFeed(t, err)
	if !errors.Is(invalid, context.Canceled) {
		t.Errorf("err should wrap context.Canceled: %v", err)
	}
}

func TestNewParser_Defaults(t *testing.T) {
	p := newTestParser(&mockSSRFGuard{}, &mockRecorder{}, Options{})
	if p.opts != DefaultOptions() {
		t.Errorf("opts = %+v, want %+v", p.opts, DefaultOptions())
	}
}
