// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、ハブ、ハンドラーから利用する。
type MetricsCollector interface {
	RecordMessageAppended()
	RecordBroadcastDrop(roomID string)
	RecordHandshakeFailure(providerID string)
	RecordHTTPStatus(statusCode int)
	RecordResyncSent()
	IncLiveConnections()
	DecLiveConnections()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	messagesAppended  prometheus.Counter
	broadcastDrops    prometheus.Counter
	handshakeFailures prometheus.Counter
	httpStatus        *prometheus.CounterVec
	resyncsSent       prometheus.Counter
	liveConnections   prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		messagesAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "murmur_messages_appended_total",
			Help: "永続化されたメッセージの合計数",
		}),
		broadcastDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "murmur_broadcast_drops_total",
			Help: "購読者バッファ溢れで破棄されたイベントの合計数",
		}),
		handshakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "murmur_handshake_failures_total",
			Help: "失敗したOAuth認証フローの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "murmur_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		resyncsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "murmur_resyncs_sent_total",
			Help: "遅延した購読者に送信したresyncフレームの合計数",
		}),
		liveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "murmur_live_connections",
			Help: "現在のWebSocket接続数",
		}),
	}

	reg.MustRegister(
		c.messagesAppended,
		c.broadcastDrops,
		c.handshakeFailures,
		c.httpStatus,
		c.resyncsSent,
		c.liveConnections,
	)

	return c
}

// RecordMessageAppended はメッセージの永続化を記録する。
func (c *Collector) RecordMessageAppended() {
	c.messagesAppended.Inc()
}

// RecordBroadcastDrop は配信イベントの破棄を記録する。
func (c *Collector) RecordBroadcastDrop(roomID string) {
	c.broadcastDrops.Inc()
}

// RecordHandshakeFailure は認証フローの失敗を記録する。
func (c *Collector) RecordHandshakeFailure(providerID string) {
	c.handshakeFailures.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordResyncSent はresyncフレームの送信を記録する。
func (c *Collector) RecordResyncSent() {
	c.resyncsSent.Inc()
}

// IncLiveConnections はWebSocket接続の確立を記録する。
func (c *Collector) IncLiveConnections() {
	c.liveConnections.Inc()
}

// DecLiveConnections はWebSocket接続の切断を記録する。
func (c *Collector) DecLiveConnections() {
	c.liveConnections.Dec()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
