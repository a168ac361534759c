// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/socialauth/internal/event"
	"github.com/hitoshi/socialauth/internal/notify"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラー、通知、バックグラウンドタスクから利用する。
type MetricsCollector interface {
	ObserveEvent(ev event.Event)
	RecordAuthFailure(reason string)
	RecordHTTPStatus(statusCode int)
	RecordDelivery(channel string, outcome notify.Outcome)
	RecordTokensDeactivated(count int)
	ObserveTask(name string, err error, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authEvents        *prometheus.CounterVec
	authFailures      *prometheus.CounterVec
	httpStatus        *prometheus.CounterVec
	deliveries        *prometheus.CounterVec
	tokensDeactivated prometheus.Counter
	taskDuration      *prometheus.HistogramVec
	taskFailures      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialauth_auth_events_total",
			Help: "認証イベント（登録・ログイン・エクスポート）の合計数",
		}, []string{"type"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialauth_auth_failures_total",
			Help: "認証失敗の理由別の合計数",
		}, []string{"reason"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialauth_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialauth_notification_deliveries_total",
			Help: "通知チャネル別・結果別の配送数",
		}, []string{"channel", "outcome"}),
		tokensDeactivated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "socialauth_push_tokens_deactivated_total",
			Help: "無効化されたプッシュトークンの合計数",
		}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "socialauth_task_duration_seconds",
			Help:    "バックグラウンドタスクの実行時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"task"}),
		taskFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialauth_task_failures_total",
			Help: "失敗したバックグラウンドタスクの数",
		}, []string{"task"}),
	}

	reg.MustRegister(
		c.authEvents,
		c.authFailures,
		c.httpStatus,
		c.deliveries,
		c.tokensDeactivated,
		c.taskDuration,
		c.taskFailures,
	)

	return c
}

// ObserveEvent はドメインイベントを記録する。イベントバスの購読者として使う。
func (c *Collector) ObserveEvent(ev event.Event) {
	c.authEvents.WithLabelValues(string(ev.Type)).Inc()
}

// RecordAuthFailure は認証失敗を記録する。
func (c *Collector) RecordAuthFailure(reason string) {
	c.authFailures.WithLabelValues(reason).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordDelivery は通知の配送結果を記録する。
func (c *Collector) RecordDelivery(channel string, outcome notify.Outcome) {
	c.deliveries.WithLabelValues(channel, string(outcome)).Inc()
}

// RecordTokensDeactivated は無効化したプッシュトークン数を記録する。
func (c *Collector) RecordTokensDeactivated(count int) {
	c.tokensDeactivated.Add(float64(count))
}

// ObserveTask はバックグラウンドタスクの実行時間と失敗を記録する。
// タスク名の":"以降（イベント種別）はラベルに含めない。
func (c *Collector) ObserveTask(name string, err error, duration time.Duration) {
	label, _, _ := strings.Cut(name, ":")
	c.taskDuration.WithLabelValues(label).Observe(duration.Seconds())
	if err != nil {
		c.taskFailures.WithLabelValues(label).Inc()
	}
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ notify.Recorder  = (*Collector)(nil)
)
