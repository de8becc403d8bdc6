// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// パーサー、状態遷移、更新ワーカーから利用する。
type MetricsCollector interface {
	RecordRunSuccess(subscriptionID string)
	RecordRunFailure(subscriptionID string, reason string)
	RecordParseFailure(url string)
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordItems(created, updated, skipped int)
	RecordSubscriptionStopped(subscriptionID string)
	RecordStaleRunsReset(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	runSuccess   prometheus.Counter
	runFail      *prometheus.CounterVec
	parseFail    prometheus.Counter
	httpStatus   *prometheus.CounterVec
	fetchLatency prometheus.Histogram
	items        *prometheus.CounterVec
	stopped      prometheus.Counter
	staleReset   prometheus.Counter
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		runSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedsync_update_success_total",
			Help: "購読更新成功の合計数",
		}),
		runFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedsync_update_fail_total",
			Help: "購読更新失敗の合計数（原因別）",
		}, []string{"reason"}),
		parseFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedsync_parse_fail_total",
			Help: "フィード取得・解析失敗の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedsync_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "feedsync_fetch_latency_seconds",
			Help:    "フィード取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedsync_items_total",
			Help: "照合された記事数（結果別）",
		}, []string{"result"}),
		stopped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedsync_subscriptions_stopped_total",
			Help: "リトライ上限に達して停止した購読の合計数",
		}),
		staleReset: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedsync_stale_runs_reset_total",
			Help: "IN_PROGRESSのまま放置され回収された購読の合計数",
		}),
	}

	reg.MustRegister(
		c.runSuccess,
		c.runFail,
		c.parseFail,
		c.httpStatus,
		c.fetchLatency,
		c.items,
		c.stopped,
		c.staleReset,
	)

	return c
}

// RecordRunSuccess は更新成功を記録する。
func (c *Collector) RecordRunSuccess(subscriptionID string) {
	c.runSuccess.Inc()
}

// RecordRunFailure は更新失敗を記録する。
// reasonはラベル値になるため、少数の固定文字列を渡すこと。
func (c *Collector) RecordRunFailure(subscriptionID string, reason string) {
	c.runFail.WithLabelValues(reason).Inc()
}

// RecordParseFailure はフィード取得・解析失敗を記録する。
func (c *Collector) RecordParseFailure(url string) {
	c.parseFail.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency は取得のレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordItems は記事照合の結果件数を記録する。
func (c *Collector) RecordItems(created, updated, skipped int) {
	c.items.WithLabelValues("created").Add(float64(created))
	c.items.WithLabelValues("updated").Add(float64(updated))
	c.items.WithLabelValues("skipped").Add(float64(skipped))
}

// RecordSubscriptionStopped は購読の停止を記録する。
func (c *Collector) RecordSubscriptionStopped(subscriptionID string) {
	c.stopped.Inc()
}

// RecordStaleRunsReset は回収した購読数を記録する。
func (c *Collector) RecordStaleRunsReset(count int) {
	c.staleReset.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。テストやCLIの単発実行で使う。
type Nop struct{}

var _ MetricsCollector = Nop{}

func (Nop) RecordRunSuccess(string)            {}
func (Nop) RecordRunFailure(string, string)    {}
func (Nop) RecordParseFailure(string)          {}
func (Nop) RecordHTTPStatus(int)               {}
func (Nop) RecordFetchLatency(time.Duration)   {}
func (Nop) RecordItems(int, int, int)          {}
func (Nop) RecordSubscriptionStopped(string)   {}
func (Nop) RecordStaleRunsReset(int)           {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
