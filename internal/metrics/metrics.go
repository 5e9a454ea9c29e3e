// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 登録・ログインの結果ラベル
const (
	ResultSuccess  = "success"
	ResultConflict = "conflict"
	ResultRejected = "rejected"
	ResultInvalid  = "invalid"
	ResultError    = "error"
)

// Recorder はメトリクス記録のインターフェース。
// ハンドラーとクリーンアップワーカーから利用する。
type Recorder interface {
	RecordRegistration(result string)
	RecordLogin(result string)
	RecordLogout()
	RecordSessionsSwept(count int64, duration time.Duration)
	RecordHTTPStatus(method string, statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	registrations *prometheus.CounterVec
	logins        *prometheus.CounterVec
	logouts       prometheus.Counter
	sessionsSwept prometheus.Counter
	sweepLatency  prometheus.Histogram
	httpStatus    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "passgate_registrations_total",
			Help: "結果別のユーザー登録リクエスト数",
		}, []string{"result"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "passgate_logins_total",
			Help: "結果別のログインリクエスト数",
		}, []string{"result"}),
		logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "passgate_logouts_total",
			Help: "ログアウトの合計数",
		}),
		sessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "passgate_sessions_swept_total",
			Help: "クリーンアップで削除された期限切れセッションの合計数",
		}),
		sweepLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "passgate_session_sweep_duration_seconds",
			Help:    "期限切れセッション削除の所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "passgate_http_responses_total",
			Help: "メソッド・ステータスコード別のレスポンス数",
		}, []string{"method", "status_code"}),
	}

	reg.MustRegister(
		c.registrations,
		c.logins,
		c.logouts,
		c.sessionsSwept,
		c.sweepLatency,
		c.httpStatus,
	)

	return c
}

// RecordRegistration は登録結果を記録する。
func (c *Collector) RecordRegistration(result string) {
	c.registrations.WithLabelValues(result).Inc()
}

// RecordLogin はログイン結果を記録する。
// ユーザー未登録とパスワード不一致はどちらもrejectedとして記録する。
func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

// RecordLogout はログアウトを記録する。
func (c *Collector) RecordLogout() {
	c.logouts.Inc()
}

// RecordSessionsSwept は削除件数と所要時間を記録する。
func (c *Collector) RecordSessionsSwept(count int64, duration time.Duration) {
	c.sessionsSwept.Add(float64(count))
	c.sweepLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPレスポンスのステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(method string, statusCode int) {
	c.httpStatus.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NopRecorder は何も記録しないRecorder。テストやメトリクス無効時に使用する。
type NopRecorder struct{}

func (NopRecorder) RecordRegistration(string)                {}
func (NopRecorder) RecordLogin(string)                       {}
func (NopRecorder) RecordLogout()                            {}
func (NopRecorder) RecordSessionsSwept(int64, time.Duration) {}
func (NopRecorder) RecordHTTPStatus(string, int)             {}

// compile-time interface check
var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = NopRecorder{}
)
