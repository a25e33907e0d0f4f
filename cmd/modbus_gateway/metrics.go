package main

/*
See:
https://prometheus.io/docs/guides/go-application/
https://github.com/prometheus/client_golang
*/

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type MetricsConfig struct {
	Listen           string `yaml:"listen"`
	GoCollector      bool   `yaml:"go_collector"`
	ProcessCollector bool   `yaml:"process_collector"`
}

type GatewayMetrics struct {
	config          *MetricsConfig
	reg             *prometheus.Registry
	transactions    *prometheus.CounterVec
	responseTime    prometheus.Histogram
	linkOverflows   prometheus.Counter
	lastTransaction prometheus.Gauge
}

// config may be nil, in which case the metrics are still kept but not
// served
func NewGatewayMetrics(config *MetricsConfig) *GatewayMetrics {
	if config == nil {
		config = &MetricsConfig{}
	}
	if config.Listen == "" {
		config.Listen = ":3105"
	}
	m := &GatewayMetrics{
		config: config,
		reg:    prometheus.NewRegistry(),
		transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modbus_gateway_transactions_total",
				Help: "TCP requests handled, by outcome",
			},
			[]string{"result"}),
		responseTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "modbus_gateway_rtu_response_seconds",
			Help:    "Time from end of RTU request to a valid RTU response",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		linkOverflows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "modbus_gateway_link_overflows_total",
			Help: "Serial frames discarded because they exceeded the receive buffer",
		}),
		lastTransaction: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "modbus_gateway_last_transaction_time_seconds",
			Help: "Time of the last successful transaction, in unixtime",
		}),
	}
	m.reg.MustRegister(m.transactions)
	m.reg.MustRegister(m.responseTime)
	m.reg.MustRegister(m.linkOverflows)
	m.reg.MustRegister(m.lastTransaction)
	// Instantiate the counters to zero
	for _, label := range []string{LABEL_OK, LABEL_BROADCAST, LABEL_IO_ERROR} {
		m.transactions.WithLabelValues(label)
	}
	for _, label := range gatewayErrorToLabel {
		m.transactions.WithLabelValues(label)
	}

	// Register system metrics
	m.reg.MustRegister(collectors.NewBuildInfoCollector())
	if config.GoCollector {
		m.reg.MustRegister(collectors.NewGoCollector())
	}
	if config.ProcessCollector {
		m.reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return m
}

func resultLabel(err error) string {
	if err == nil {
		return LABEL_OK
	}
	if label, ok := gatewayErrorToLabel[err]; ok {
		return label
	}
	return LABEL_IO_ERROR
}

// Count the outcome of one TCP request
func (m *GatewayMetrics) Transaction(err error) {
	m.transactions.With(prometheus.Labels{"result": resultLabel(err)}).Inc()
	if err == nil {
		m.lastTransaction.SetToCurrentTime()
	}
}

func (m *GatewayMetrics) Broadcast() {
	m.transactions.WithLabelValues(LABEL_BROADCAST).Inc()
}

func (m *GatewayMetrics) ResponseTime(d time.Duration) {
	m.responseTime.Observe(d.Seconds())
}

func (m *GatewayMetrics) LinkOverflow() {
	m.linkOverflows.Inc()
}

func (m *GatewayMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Serve /metrics until ctx is cancelled
func (m *GatewayMetrics) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              m.config.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	log.Printf("Starting metrics listener on %s", m.config.Listen)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
