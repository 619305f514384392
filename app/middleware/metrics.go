package middleware

import (
	"strconv"
	"time"

	"github.com/beego/beego/v2/server/web/context"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by method and route",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
	}, []string{"method", "route"})
)

const metricsStartKey = "metrics_start_time"

// MetricsBefore 记录请求开始时间
func MetricsBefore(ctx *context.Context) {
	ctx.Input.SetData(metricsStartKey, time.Now())
}

// MetricsAfter 上报请求计数与耗时。
// 使用路由模板而非原始路径,避免doc_id等参数造成标签基数爆炸。
func MetricsAfter(ctx *context.Context) {
	start, ok := ctx.Input.GetData(metricsStartKey).(time.Time)
	if !ok {
		return
	}

	route := ctx.Input.URL()
	if pattern, ok := ctx.Input.GetData("RouterPattern").(string); ok && pattern != "" {
		route = pattern
	}

	method := ctx.Input.Method()
	status := strconv.Itoa(ctx.ResponseWriter.Status)

	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
}
