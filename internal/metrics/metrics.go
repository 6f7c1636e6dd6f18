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
// バックエンドクライアントやサービス層から利用する。
type MetricsCollector interface {
	RecordBackendRequest(operation string, statusCode int)
	RecordBackendLatency(operation string, duration time.Duration)
	RecordReissue(result string)
	RecordFeastCreated()
	RecordPrefetchFailure()
	RecordGuestAuth(result string)
	RecordCardSubmitted()
	RecordQuizSubmitted()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	backendRequests *prometheus.CounterVec
	backendLatency  *prometheus.HistogramVec
	reissue         *prometheus.CounterVec
	feastCreated    prometheus.Counter
	prefetchFail    prometheus.Counter
	guestAuth       *prometheus.CounterVec
	cardSubmitted   prometheus.Counter
	quizSubmitted   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		backendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hansang_backend_requests_total",
			Help: "バックエンドAPI呼び出しの操作・ステータスコード別の合計数",
		}, []string{"operation", "status_code"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hansang_backend_latency_seconds",
			Help:    "バックエンドAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		reissue: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hansang_token_reissue_total",
			Help: "ホストトークン再発行の結果別の合計数",
		}, []string{"result"}),
		feastCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hansang_feast_created_total",
			Help: "今年の생일한상を新規作成した合計数",
		}),
		prefetchFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hansang_prefetch_fail_total",
			Help: "ベストエフォートのプリフェッチが失敗した合計数",
		}),
		guestAuth: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hansang_guest_auth_total",
			Help: "ゲスト認証の結果別の合計数",
		}, []string{"result"}),
		cardSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hansang_card_submitted_total",
			Help: "ゲストがカードを投稿した合計数",
		}),
		quizSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hansang_quiz_submitted_total",
			Help: "ゲストがクイズに回答した合計数",
		}),
	}

	reg.MustRegister(
		c.backendRequests,
		c.backendLatency,
		c.reissue,
		c.feastCreated,
		c.prefetchFail,
		c.guestAuth,
		c.cardSubmitted,
		c.quizSubmitted,
	)

	return c
}

// RecordBackendRequest はバックエンド呼び出しのステータスコードを記録する。
// 通信エラーはステータス0として記録する。
func (c *Collector) RecordBackendRequest(operation string, statusCode int) {
	c.backendRequests.WithLabelValues(operation, strconv.Itoa(statusCode)).Inc()
}

// RecordBackendLatency はバックエンド呼び出しのレイテンシを記録する。
func (c *Collector) RecordBackendLatency(operation string, duration time.Duration) {
	c.backendLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordReissue はトークン再発行の結果（success / failure）を記録する。
func (c *Collector) RecordReissue(result string) {
	c.reissue.WithLabelValues(result).Inc()
}

// RecordFeastCreated は생일한상の作成を記録する。
func (c *Collector) RecordFeastCreated() {
	c.feastCreated.Inc()
}

// RecordPrefetchFailure はプリフェッチ失敗を記録する。
func (c *Collector) RecordPrefetchFailure() {
	c.prefetchFail.Inc()
}

// RecordGuestAuth はゲスト認証の結果を記録する。
func (c *Collector) RecordGuestAuth(result string) {
	c.guestAuth.WithLabelValues(result).Inc()
}

// RecordCardSubmitted はカード投稿を記録する。
func (c *Collector) RecordCardSubmitted() {
	c.cardSubmitted.Inc()
}

// RecordQuizSubmitted はクイズ回答を記録する。
func (c *Collector) RecordQuizSubmitted() {
	c.quizSubmitted.Inc()
}

// Nop は何も記録しないMetricsCollector。テストや未設定時に使用する。
type Nop struct{}

func (Nop) RecordBackendRequest(string, int)           {}
func (Nop) RecordBackendLatency(string, time.Duration) {}
func (Nop) RecordReissue(string)                       {}
func (Nop) RecordFeastCreated()                        {}
func (Nop) RecordPrefetchFailure()                     {}
func (Nop) RecordGuestAuth(string)                     {}
func (Nop) RecordCardSubmitted()                       {}
func (Nop) RecordQuizSubmitted()                       {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
