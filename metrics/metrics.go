// Package metrics exposes Prometheus collectors for the quoter.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QuotesComputed 按 outcome 统计目标报价次数
	QuotesComputed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quoter_quotes_computed_total",
		Help: "目标报价计算次数",
	}, []string{"outcome"})

	QuotesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quoter_quotes_skipped_total",
		Help: "放弃报价次数（按原因）",
	}, []string{"outcome", "reason"})

	OrdersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quoter_orders_placed_total",
		Help: "成功下单数量",
	}, []string{"outcome"})

	OrdersCancelled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quoter_orders_cancelled_total",
		Help: "成功撤单数量",
	}, []string{"outcome"})

	OrderFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quoter_order_failures_total",
		Help: "下单/撤单失败数量",
	}, []string{"outcome", "action"})

	ReconcileBusy = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quoter_reconcile_busy_total",
		Help: "因槽位忙而跳过的 reconcile 次数",
	}, []string{"outcome"})

	PendingCancels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quoter_pending_cancels",
		Help: "未确认撤单数量",
	})

	FillsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quoter_fills_total",
		Help: "已入账成交数量",
	}, []string{"outcome"})

	UnknownFills = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quoter_unknown_fills_total",
		Help: "未知订单的成交事件（忽略）",
	})

	LoopErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quoter_loop_errors_total",
		Help: "主循环错误次数",
	})

	DeltaQ = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quoter_delta_q",
		Help: "净库存失衡 (q_yes - q_no)",
	})

	LockedProfit = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quoter_locked_profit",
		Help: "配对仓位锁定利润",
	})

	RealizedPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quoter_realized_pnl",
		Help: "已实现盈亏",
	})
)

// UpdateInventoryMetrics refreshes the inventory gauges after a fill or at
// status time.
func UpdateInventoryMetrics(deltaQ, lockedProfit, realizedPnL float64) {
	DeltaQ.Set(deltaQ)
	LockedProfit.Set(lockedProfit)
	RealizedPnL.Set(realizedPnL)
}

// StartMetricsServer 启动Prometheus指标服务器
func StartMetricsServer(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		_ = http.ListenAndServe(addr, mux)
	}()
}
