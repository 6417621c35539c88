// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 入金サービスとゲートウェイクライアントから利用する。
type MetricsCollector interface {
	RecordDepositCreated()
	RecordDepositCompleted()
	RecordDepositFailed(reason string)
	RecordLedgerCredited()
	RecordGatewayCall(operation, outcome string)
	RecordGatewayLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	depositCreated   prometheus.Counter
	depositCompleted prometheus.Counter
	depositFailed    *prometheus.CounterVec
	ledgerCredited   prometheus.Counter
	gatewayCall      *prometheus.CounterVec
	gatewayLatency   prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		depositCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "minipay_deposit_created_total",
			Help: "作成された入金セッションの合計数",
		}),
		depositCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "minipay_deposit_completed_total",
			Help: "完了した入金の合計数",
		}),
		depositFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "minipay_deposit_failed_total",
			Help: "失敗した入金の理由別合計数",
		}, []string{"reason"}),
		ledgerCredited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "minipay_ledger_credited_total",
			Help: "台帳に記帳された入金の合計数",
		}),
		gatewayCall: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "minipay_gateway_call_total",
			Help: "ゲートウェイAPI呼び出しの操作・結果別合計数",
		}, []string{"operation", "outcome"}),
		gatewayLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "minipay_gateway_latency_seconds",
			Help:    "ゲートウェイAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.depositCreated,
		c.depositCompleted,
		c.depositFailed,
		c.ledgerCredited,
		c.gatewayCall,
		c.gatewayLatency,
	)

	return c
}

// RecordDepositCreated は入金セッションの作成を記録する。
func (c *Collector) RecordDepositCreated() {
	c.depositCreated.Inc()
}

// RecordDepositCompleted は入金完了を記録する。
func (c *Collector) RecordDepositCompleted() {
	c.depositCompleted.Inc()
}

// RecordDepositFailed は入金失敗を理由付きで記録する。
func (c *Collector) RecordDepositFailed(reason string) {
	c.depositFailed.WithLabelValues(reason).Inc()
}

// RecordLedgerCredited は台帳への記帳を記録する。
func (c *Collector) RecordLedgerCredited() {
	c.ledgerCredited.Inc()
}

// RecordGatewayCall はゲートウェイAPI呼び出しの結果を記録する。
func (c *Collector) RecordGatewayCall(operation, outcome string) {
	c.gatewayCall.WithLabelValues(operation, outcome).Inc()
}

// RecordGatewayLatency はゲートウェイAPI呼び出しのレイテンシを記録する。
func (c *Collector) RecordGatewayLatency(duration time.Duration) {
	c.gatewayLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
