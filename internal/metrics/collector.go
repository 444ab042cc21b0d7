// Package metrics provides Prometheus metrics for ceci-shell.
//
// Every Collector owns its metric vectors, so several collectors can live
// in one process as long as each registers into its own registry.
package metrics

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names shared with the status scraper.
const (
	namespace = "ceci_shell"

	MetricInfo            = "ceci_shell_info"
	MetricWorkerRunning   = "ceci_shell_worker_running"
	MetricWorkerPID       = "ceci_shell_worker_pid"
	MetricWorkerStarted   = "ceci_shell_worker_start_time_seconds"
	MetricWorkerStarts    = "ceci_shell_worker_starts_total"
	MetricWorkerExits     = "ceci_shell_worker_exits_total"
	MetricSpawnFailures   = "ceci_shell_worker_spawn_failures_total"
	MetricOutputChunks    = "ceci_shell_worker_output_chunks_total"
	MetricOutputBytes     = "ceci_shell_worker_output_bytes_total"
	MetricWorkerUptime    = "ceci_shell_worker_uptime_seconds"
	MetricUptimeP50       = "ceci_shell_worker_uptime_p50_seconds"
	MetricUptimeP95       = "ceci_shell_worker_uptime_p95_seconds"
	MetricUptimeP99       = "ceci_shell_worker_uptime_p99_seconds"
	MetricRelayEvents     = "ceci_shell_relay_events_total"
	MetricRelayDropped    = "ceci_shell_relay_deliveries_dropped_total"
	MetricRelayEndpoints  = "ceci_shell_relay_endpoints"
	MetricCommandsHandled = "ceci_shell_commands_total"
)

// Exit categories used as the "category" label of MetricWorkerExits.
const (
	ExitSuccess = "success"
	ExitError   = "error"
	ExitSignal  = "signal"
)

// =============================================================================
// Collector
// =============================================================================

// Collector manages all Prometheus metrics for the shell.
type Collector struct {
	info          *prometheus.GaugeVec
	running       prometheus.Gauge
	pid           prometheus.Gauge
	startedAt     prometheus.Gauge
	starts        prometheus.Counter
	exits         *prometheus.CounterVec
	spawnFailures *prometheus.CounterVec
	outputChunks  *prometheus.CounterVec
	outputBytes   *prometheus.CounterVec
	uptime        prometheus.Histogram
	uptimeP50     prometheus.Gauge
	uptimeP95     prometheus.Gauge
	uptimeP99     prometheus.Gauge
	relayEvents   *prometheus.CounterVec
	relayDropped  prometheus.Counter
	endpoints     prometheus.Gauge
	commands      *prometheus.CounterVec

	// Timing
	startTime time.Time

	// For summary generation
	mu              sync.Mutex
	totalStarts     int64
	spawnFailed     int64
	exitCodes       map[int]int64
	bytesByStream   map[string]int64
	chunksByStream  map[string]int64
	eventsPublished int64
	eventsDropped   int64
	peakEndpoints   int

	// T-Digests for percentiles (~10KB each at compression 100)
	uptimeDigest  *tdigest.TDigest
	chunkDigest   *tdigest.TDigest
	uptimeSamples int64
	chunkSamples  int64
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version  string
	Platform string
}

// NewCollector creates a new metrics collector on the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "info",
				Help:      "Information about the shell (value always 1)",
			},
			[]string{"version", "platform"},
		),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_running",
			Help:      "1 while the openceci worker is running",
		}),
		pid: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_pid",
			Help:      "PID of the running worker (0 when idle)",
		}),
		startedAt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_start_time_seconds",
			Help:      "Unix time the running worker was started (0 when idle)",
		}),
		starts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_starts_total",
			Help:      "Total worker processes spawned",
		}),
		exits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_exits_total",
				Help:      "Worker exits by category (success, error, signal)",
			},
			[]string{"category"},
		),
		spawnFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_spawn_failures_total",
				Help:      "Worker launches that never produced a process",
			},
			[]string{"reason"},
		),
		outputChunks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_output_chunks_total",
				Help:      "Output chunks forwarded from the worker",
			},
			[]string{"stream"},
		),
		outputBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_output_bytes_total",
				Help:      "Output bytes forwarded from the worker",
			},
			[]string{"stream"},
		),
		uptime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "worker_uptime_seconds",
			Help:      "Worker lifetime distribution",
			Buckets:   []float64{1, 5, 30, 60, 300, 900, 1800, 3600, 7200},
		}),
		uptimeP50: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_uptime_p50_seconds",
			Help:      "50th percentile worker uptime",
		}),
		uptimeP95: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_uptime_p95_seconds",
			Help:      "95th percentile worker uptime",
		}),
		uptimeP99: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_uptime_p99_seconds",
			Help:      "99th percentile worker uptime",
		}),
		relayEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relay_events_total",
				Help:      "Events published to UI endpoints",
			},
			[]string{"type"},
		),
		relayDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_deliveries_dropped_total",
			Help:      "Deliveries skipped by slow endpoints",
		}),
		endpoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_endpoints",
			Help:      "Currently subscribed UI endpoints",
		}),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Commands handled by kind and result",
			},
			[]string{"kind", "result"},
		),

		startTime:      time.Now(),
		exitCodes:      make(map[int]int64),
		bytesByStream:  make(map[string]int64),
		chunksByStream: make(map[string]int64),
		uptimeDigest:   tdigest.NewWithCompression(100),
		chunkDigest:    tdigest.NewWithCompression(100),
	}

	registry.MustRegister(
		// Worker lifecycle
		c.info,
		c.running,
		c.pid,
		c.startedAt,
		c.starts,
		c.exits,
		c.spawnFailures,

		// Output
		c.outputChunks,
		c.outputBytes,

		// Uptime
		c.uptime,
		c.uptimeP50,
		c.uptimeP95,
		c.uptimeP99,

		// Relay
		c.relayEvents,
		c.relayDropped,
		c.endpoints,
		c.commands,
	)

	c.info.WithLabelValues(cfg.Version, cfg.Platform).Set(1)

	return c
}

// =============================================================================
// Worker Methods
// =============================================================================

// WorkerStarted records a successful spawn.
func (c *Collector) WorkerStarted(pid int) {
	c.starts.Inc()
	c.running.Set(1)
	c.pid.Set(float64(pid))
	c.startedAt.Set(float64(time.Now().Unix()))

	c.mu.Lock()
	c.totalStarts++
	c.mu.Unlock()
}

// SetRunning mirrors the supervisor state.
func (c *Collector) SetRunning(running bool) {
	if running {
		c.running.Set(1)
		return
	}
	c.running.Set(0)
	c.pid.Set(0)
	c.startedAt.Set(0)
}

// RecordExit records a worker exit, including stopped workers.
func (c *Collector) RecordExit(exitCode int, uptime time.Duration) {
	c.exits.WithLabelValues(ExitCategory(exitCode)).Inc()
	c.uptime.Observe(uptime.Seconds())

	c.mu.Lock()
	c.exitCodes[exitCode]++
	c.uptimeDigest.Add(uptime.Seconds(), 1)
	c.uptimeSamples++
	p50 := c.uptimeDigest.Quantile(0.50)
	p95 := c.uptimeDigest.Quantile(0.95)
	p99 := c.uptimeDigest.Quantile(0.99)
	c.mu.Unlock()

	c.uptimeP50.Set(p50)
	c.uptimeP95.Set(p95)
	c.uptimeP99.Set(p99)
}

// SpawnFailed records a launch that produced no process.
func (c *Collector) SpawnFailed(reason string) {
	c.spawnFailures.WithLabelValues(reason).Inc()

	c.mu.Lock()
	c.spawnFailed++
	c.mu.Unlock()
}

// RecordOutput records one forwarded output chunk.
func (c *Collector) RecordOutput(stream string, n int) {
	c.outputChunks.WithLabelValues(stream).Inc()
	c.outputBytes.WithLabelValues(stream).Add(float64(n))

	c.mu.Lock()
	c.chunksByStream[stream]++
	c.bytesByStream[stream] += int64(n)
	c.chunkDigest.Add(float64(n), 1)
	c.chunkSamples++
	c.mu.Unlock()
}

// =============================================================================
// Relay Methods
// =============================================================================

// EventPublished records an event handed to the relay.
func (c *Collector) EventPublished(eventType string) {
	c.relayEvents.WithLabelValues(eventType).Inc()

	c.mu.Lock()
	c.eventsPublished++
	c.mu.Unlock()
}

// DeliveryDropped records an event skipped by one endpoint.
func (c *Collector) DeliveryDropped() {
	c.relayDropped.Inc()

	c.mu.Lock()
	c.eventsDropped++
	c.mu.Unlock()
}

// SetEndpoints updates the subscribed endpoint count.
func (c *Collector) SetEndpoints(count int) {
	c.endpoints.Set(float64(count))

	c.mu.Lock()
	if count > c.peakEndpoints {
		c.peakEndpoints = count
	}
	c.mu.Unlock()
}

// CommandHandled records a dispatched command and its result
// ("ok", "noop" or "failed").
func (c *Collector) CommandHandled(kind, result string) {
	c.commands.WithLabelValues(kind, result).Inc()
}

// =============================================================================
// Summary Generation
// =============================================================================

// Summary holds the data for generating an exit summary.
type Summary struct {
	Duration        time.Duration
	TotalStarts     int64
	SpawnFailures   int64
	ExitCodes       map[int]int64
	BytesByStream   map[string]int64
	ChunksByStream  map[string]int64
	EventsPublished int64
	EventsDropped   int64
	PeakEndpoints   int

	UptimeP50 time.Duration
	UptimeP95 time.Duration
	UptimeP99 time.Duration

	// Chunk sizes in bytes
	ChunkP50 float64
	ChunkP95 float64
	ChunkP99 float64
}

// GenerateSummary creates a summary of the session.
func (c *Collector) GenerateSummary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Summary{
		Duration:        time.Since(c.startTime),
		TotalStarts:     c.totalStarts,
		SpawnFailures:   c.spawnFailed,
		ExitCodes:       make(map[int]int64, len(c.exitCodes)),
		BytesByStream:   make(map[string]int64, len(c.bytesByStream)),
		ChunksByStream:  make(map[string]int64, len(c.chunksByStream)),
		EventsPublished: c.eventsPublished,
		EventsDropped:   c.eventsDropped,
		PeakEndpoints:   c.peakEndpoints,
	}

	for code, count := range c.exitCodes {
		s.ExitCodes[code] = count
	}
	for stream, n := range c.bytesByStream {
		s.BytesByStream[stream] = n
	}
	for stream, n := range c.chunksByStream {
		s.ChunksByStream[stream] = n
	}

	if c.uptimeSamples > 0 {
		s.UptimeP50 = secondsToDuration(c.uptimeDigest.Quantile(0.50))
		s.UptimeP95 = secondsToDuration(c.uptimeDigest.Quantile(0.95))
		s.UptimeP99 = secondsToDuration(c.uptimeDigest.Quantile(0.99))
	}
	if c.chunkSamples > 0 {
		s.ChunkP50 = c.chunkDigest.Quantile(0.50)
		s.ChunkP95 = c.chunkDigest.Quantile(0.95)
		s.ChunkP99 = c.chunkDigest.Quantile(0.99)
	}

	return s
}

// TotalStarts returns the total number of worker starts.
func (c *Collector) TotalStarts() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalStarts
}

// =============================================================================
// Helper Functions
// =============================================================================

// ExitCategory classifies an exit code for the exits counter.
func ExitCategory(exitCode int) string {
	switch {
	case exitCode == 0:
		return ExitSuccess
	case exitCode > 128:
		return ExitSignal
	default:
		return ExitError
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
