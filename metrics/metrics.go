// Package metrics provides Prometheus metrics for the quoting engine
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Position = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mm_position",
		Help: "当前权威仓位",
	}, []string{"symbol"})

	OpenVolume = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mm_open_order_volume",
		Help: "未成交挂单总量",
	}, []string{"symbol"})

	NetExposure = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mm_net_exposure",
		Help: "组合净仓",
	})

	GrossExposure = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mm_gross_exposure",
		Help: "组合总仓",
	})

	PNL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mm_pnl",
		Help: "已实现+未实现盈亏",
	})

	EngineState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mm_engine_state",
		Help: "引擎状态（0=idle 1=running 2=trimming 3=stopped）",
	})

	TierEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_tier_evaluations_total",
		Help: "各风险档位的评估次数",
	}, []string{"symbol", "tier"})

	OrdersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_orders_placed_total",
		Help: "成功提交的订单块数",
	}, []string{"symbol", "tag"})

	OrdersRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_orders_rejected_total",
		Help: "被交易所拒绝的订单块数",
	}, []string{"symbol"})

	RestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_rest_errors_total",
		Help: "REST 调用失败次数",
	}, []string{"op"})

	CrushEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_crush_events_total",
		Help: "强平触发次数",
	}, []string{"symbol"})

	TrimCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mm_trim_cycles_total",
		Help: "trim 轮询周期数",
	})

	QuoteNoops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mm_quote_noops_total",
		Help: "报价在容差内未重挂的次数",
	})
)

// UpdateInstrument 更新单品种仓位与挂单量指标。
func UpdateInstrument(symbol string, position, openVolume int) {
	Position.WithLabelValues(symbol).Set(float64(position))
	OpenVolume.WithLabelValues(symbol).Set(float64(openVolume))
}

// UpdatePortfolio 更新组合级指标。
func UpdatePortfolio(net, gross int, pnl float64) {
	NetExposure.Set(float64(net))
	GrossExposure.Set(float64(gross))
	PNL.Set(pnl)
}

// StartMetricsServer 启动Prometheus指标服务器
func StartMetricsServer(addr string) {
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		_ = http.ListenAndServe(addr, nil)
	}()
}
