// Package metrics provides Prometheus metrics collection for GalleryFS
// storage operations, cache behavior, and errors.
package metrics

import (
	"context"
	stderr "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/galleryfs/galleryfs/pkg/errors"
	"github.com/galleryfs/galleryfs/pkg/types"
)

// Config represents metrics configuration.
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	Port      int               `yaml:"port"`
	Path      string            `yaml:"path"`
	Namespace string            `yaml:"namespace"`
	Labels    map[string]string `yaml:"labels"`
}

// Collector implements types.MetricsCollector over a private Prometheus
// registry. A disabled collector is a no-op and safe to use.
type Collector struct {
	config   *Config
	registry *prometheus.Registry
	logger   *slog.Logger

	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	operationSize     *prometheus.HistogramVec
	cacheHitCounter   *prometheus.CounterVec
	cacheSizeGauge    *prometheus.GaugeVec
	errorCounter      *prometheus.CounterVec

	mu         sync.Mutex
	server     *http.Server
	operations map[string]*OperationStats
	started    time.Time
}

// OperationStats tracks aggregate statistics for one operation type.
type OperationStats struct {
	Count         int64         `json:"count"`
	Errors        int64         `json:"errors"`
	TotalDuration time.Duration `json:"total_duration"`
	TotalSize     int64         `json:"total_size"`
	LastOperation time.Time     `json:"last_operation"`
}

var _ types.MetricsCollector = (*Collector)(nil)

// NewCollector creates a metrics collector. A nil config yields an enabled
// collector with defaults.
func NewCollector(config *Config, logger *slog.Logger) (*Collector, error) {
	if config == nil {
		config = &Config{Enabled: true}
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}
	if config.Port == 0 {
		config.Port = 9090
	}
	if config.Namespace == "" {
		config.Namespace = "galleryfs"
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Collector{
		config:     config,
		logger:     logger,
		operations: make(map[string]*OperationStats),
		started:    time.Now(),
	}
	if !config.Enabled {
		return c, nil
	}

	c.registry = prometheus.NewRegistry()
	c.initMetrics()
	if err := c.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return c, nil
}

func (c *Collector) initMetrics() {
	c.operationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Name:        "operations_total",
			Help:        "Total number of storage operations",
			ConstLabels: prometheus.Labels(c.config.Labels),
		},
		[]string{"operation", "status"},
	)

	c.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   c.config.Namespace,
			Name:        "operation_duration_seconds",
			Help:        "Duration of storage operations in seconds",
			Buckets:     prometheus.ExponentialBuckets(0.001, 2, 15),
			ConstLabels: prometheus.Labels(c.config.Labels),
		},
		[]string{"operation"},
	)

	c.operationSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   c.config.Namespace,
			Name:        "operation_size_bytes",
			Help:        "Payload size of storage operations in bytes",
			Buckets:     prometheus.ExponentialBuckets(1024, 2, 20),
			ConstLabels: prometheus.Labels(c.config.Labels),
		},
		[]string{"operation"},
	)

	c.cacheHitCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Name:        "cache_requests_total",
			Help:        "Total number of cache lookups",
			ConstLabels: prometheus.Labels(c.config.Labels),
		},
		[]string{"type", "source"},
	)

	c.cacheSizeGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   c.config.Namespace,
			Name:        "cache_size_bytes",
			Help:        "Current cache size in bytes",
			ConstLabels: prometheus.Labels(c.config.Labels),
		},
		[]string{"tier"},
	)

	c.errorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Name:        "errors_total",
			Help:        "Total number of errors by category",
			ConstLabels: prometheus.Labels(c.config.Labels),
		},
		[]string{"operation", "category"},
	)
}

func (c *Collector) registerMetrics() error {
	for _, metric := range []prometheus.Collector{
		c.operationCounter,
		c.operationDuration,
		c.operationSize,
		c.cacheHitCounter,
		c.cacheSizeGauge,
		c.errorCounter,
	} {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}
	return nil
}

// Start serves the metrics endpoint in the background.
func (c *Collector) Start() error {
	if !c.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	c.mu.Lock()
	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
	}
	server := c.server
	c.mu.Unlock()

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.logger.Error("metrics server failed", "error", err)
		}
	}()
	return nil
}

// Stop shuts the metrics endpoint down.
func (c *Collector) Stop(ctx context.Context) error {
	c.mu.Lock()
	server := c.server
	c.mu.Unlock()

	if server != nil {
		return server.Shutdown(ctx)
	}
	return nil
}

// RecordOperation records one storage operation's outcome, duration, and
// payload size.
func (c *Collector) RecordOperation(operation string, duration time.Duration, size int64, success bool) {
	c.mu.Lock()
	stats, ok := c.operations[operation]
	if !ok {
		stats = &OperationStats{}
		c.operations[operation] = stats
	}
	stats.Count++
	stats.TotalDuration += duration
	stats.TotalSize += size
	if !success {
		stats.Errors++
	}
	stats.LastOperation = time.Now()
	c.mu.Unlock()

	if !c.config.Enabled {
		return
	}

	status := "success"
	if !success {
		status = "error"
	}
	c.operationCounter.WithLabelValues(operation, status).Inc()
	c.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if size > 0 {
		c.operationSize.WithLabelValues(operation).Observe(float64(size))
	}
}

// RecordCacheHit records a cache hit for the provider the key belongs to.
func (c *Collector) RecordCacheHit(key string, size int64) {
	if !c.config.Enabled {
		return
	}
	c.cacheHitCounter.WithLabelValues("hit", cacheSource(key)).Inc()
}

// RecordCacheMiss records a cache miss.
func (c *Collector) RecordCacheMiss(key string, size int64) {
	if !c.config.Enabled {
		return
	}
	c.cacheHitCounter.WithLabelValues("miss", cacheSource(key)).Inc()
}

// RecordError records an error by category.
func (c *Collector) RecordError(operation string, err error) {
	if !c.config.Enabled || err == nil {
		return
	}
	c.errorCounter.WithLabelValues(operation, classifyError(err)).Inc()
}

// UpdateCacheSize records the current size of one cache tier.
func (c *Collector) UpdateCacheSize(tier string, size int64) {
	if !c.config.Enabled {
		return
	}
	c.cacheSizeGauge.WithLabelValues(tier).Set(float64(size))
}

// Snapshot returns a copy of the per-operation statistics.
func (c *Collector) Snapshot() map[string]OperationStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]OperationStats, len(c.operations))
	for op, stats := range c.operations {
		out[op] = *stats
	}
	return out
}

// cacheSource maps a cache key to the adapter that owns it. Keys are
// namespaced "provider:kind:..." by convention.
func cacheSource(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return "unknown"
}

func classifyError(err error) string {
	var gerr *errors.GalleryError
	if stderr.As(err, &gerr) {
		return string(gerr.Category)
	}
	return "unknown"
}
