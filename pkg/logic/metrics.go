// Copyright 2023, Chef.  All rights reserved.
// https://github.com/q191201771/lalrelay
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package logic

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/q191201771/lalrelay/pkg/rtmp"
)

// Metrics prometheus指标
//
// 事件类指标由 rtmp.EventBus 驱动，gauge类指标在每次抓取前从 rtmp.Registry 刷新
type Metrics struct {
	registry *prometheus.Registry
	source   *rtmp.Registry

	eventsTotal   *prometheus.CounterVec
	apiRequests   *prometheus.CounterVec
	sessions      prometheus.Gauge
	publishers    prometheus.Gauge
	inBytesTotal  prometheus.Gauge
	outBytesTotal prometheus.Gauge
	accepted      prometheus.Gauge
}

var _ rtmp.IEventObserver = &Metrics{}

func NewMetrics(source *rtmp.Registry) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		source:   source,
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lalrelay_events_total",
			Help: "Total number of session lifecycle events",
		}, []string{"event"}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lalrelay_http_api_requests_total",
			Help: "Total number of http api requests by status code class",
		}, []string{"code"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lalrelay_sessions",
			Help: "Number of live rtmp sessions",
		}),
		publishers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lalrelay_publishers",
			Help: "Number of publishing stream paths",
		}),
		inBytesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lalrelay_closed_sessions_read_bytes",
			Help: "Bytes read by sessions that have been closed",
		}),
		outBytesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lalrelay_closed_sessions_wrote_bytes",
			Help: "Bytes wrote by sessions that have been closed",
		}),
		accepted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lalrelay_accepted_streams",
			Help: "Number of successful publish and play requests",
		}),
	}
	m.registry.MustRegister(
		m.eventsTotal,
		m.apiRequests,
		m.sessions,
		m.publishers,
		m.inBytesTotal,
		m.outBytesTotal,
		m.accepted,
	)
	return m
}

func (m *Metrics) OnEvent(event rtmp.Event) error {
	m.eventsTotal.WithLabelValues(event.Type.String()).Inc()
	return nil
}

// Handler 每次抓取前刷新gauge
func (m *Metrics) Handler() http.Handler {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.refresh()
		h.ServeHTTP(w, r)
	})
}

// RequestMiddleware 按状态码分类统计http api请求
func (m *Metrics) RequestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		m.apiRequests.WithLabelValues(statusClass(sw.status)).Inc()
	})
}

func (m *Metrics) refresh() {
	if m.source == nil {
		return
	}
	stats := m.source.Stats()
	m.sessions.Set(float64(m.source.SessionCount()))
	m.publishers.Set(float64(m.source.PublisherCount()))
	m.inBytesTotal.Set(float64(stats.InBytes))
	m.outBytesTotal.Set(float64(stats.OutBytes))
	m.accepted.Set(float64(stats.Accepted))
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	}
	return "2xx"
}
