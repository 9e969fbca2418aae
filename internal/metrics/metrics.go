package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/go-lin-monitor/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus collectors
var (
	LINFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lin_frames_total",
		Help: "LIN frames handled by the monitor loop, by checksum result.",
	}, []string{"result"})
	LINErrorFlags = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lin_error_flags_total",
		Help: "Bus error flags observed by the monitor loop, by flag.",
	}, []string{"flag"})
	IdleReports = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lin_idle_reports_total",
		Help: "Number of 'waiting' lines emitted because the bus was idle.",
	})
	ErrorReports = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lin_error_reports_total",
		Help: "Number of throttled error-flag report lines emitted.",
	})
	SignalState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lin_signal_state",
		Help: "Last value extracted for each signal rule (1 = on).",
	}, []string{"signal"})
	OutputState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "output_state",
		Help: "Current state of LED/buzzer outputs (1 = on).",
	}, []string{"output"})
	LoopRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "loop_iterations_per_second",
		Help: "Dispatch loop iterations completed during the last second.",
	})
	SerialRxBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_rx_bytes_total",
		Help: "Total bytes read from the LIN receive port.",
	})
	DiagWrittenBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "diag_written_bytes_total",
		Help: "Total diagnostic text bytes written to the console.",
	})
	DiagDroppedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "diag_dropped_bytes_total",
		Help: "Diagnostic text bytes dropped because the output buffer was full.",
	})
	TCPTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_tx_frames_total",
		Help: "Total LIN frames exported to TCP clients.",
	})
	TCPRxIgnored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_rx_ignored_frames_total",
		Help: "Frames received from TCP clients and ignored (the monitor never transmits).",
	})
	HubDroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_dropped_frames_total",
		Help: "Total exported frames dropped by hub due to slow clients.",
	})
	HubKickedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_kicked_clients_total",
		Help: "Total clients disconnected due to backpressure kick policy.",
	})
	HubRejectedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_rejected_clients_total",
		Help: "Total client connection attempts rejected (e.g., max-clients).",
	})
	HubActiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_active_clients",
		Help: "Current number of connected export clients.",
	})
	EventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signal_events_published_total",
		Help: "Signal transition events delivered to MQTT/state store.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrPortRead     = "port_read"
	ErrSLLINRead    = "sllin_read"
	ErrDiagWrite    = "diag_write"
	ErrDiagOverflow = "diag_overflow"
	ErrOutput       = "output"
	ErrTCPRead      = "tcp_read"
	ErrTCPWrite     = "tcp_write"
	ErrHandshake    = "handshake"
	ErrEventPublish = "event_publish"
	ErrEventDrop    = "event_drop"
	ErrStore        = "store"
)

var errorLabels = []string{
	ErrPortRead, ErrSLLINRead, ErrDiagWrite, ErrDiagOverflow, ErrOutput,
	ErrTCPRead, ErrTCPWrite, ErrHandshake, ErrEventPublish, ErrEventDrop, ErrStore,
}

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for logging and tests without scraping.
var (
	localValid       uint64
	localInvalid     uint64
	localFlags       uint64
	localIdle        uint64
	localErrReports  uint64
	localSerialRx    uint64
	localDiagWritten uint64
	localDiagDropped uint64
	localTCPTx       uint64
	localTCPRxIgn    uint64
	localHubDrop     uint64
	localHubKick     uint64
	localHubReject   uint64
	localHubClients  uint64
	localEvents      uint64
	localErrors      uint64
	localLoopRate    uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	ValidFrames   uint64
	InvalidFrames uint64
	ErrorFlags    uint64 // individual flag bits observed
	IdleReports   uint64
	ErrorReports  uint64
	SerialRxBytes uint64
	DiagWritten   uint64
	DiagDropped   uint64
	TCPTx         uint64
	TCPRxIgnored  uint64
	HubDrops      uint64
	HubKicks      uint64
	HubRejects    uint64
	HubClients    uint64
	Events        uint64
	Errors        uint64 // sum across error labels
	LoopRate      uint64
}

func Snap() Snapshot {
	return Snapshot{
		ValidFrames:   atomic.LoadUint64(&localValid),
		InvalidFrames: atomic.LoadUint64(&localInvalid),
		ErrorFlags:    atomic.LoadUint64(&localFlags),
		IdleReports:   atomic.LoadUint64(&localIdle),
		ErrorReports:  atomic.LoadUint64(&localErrReports),
		SerialRxBytes: atomic.LoadUint64(&localSerialRx),
		DiagWritten:   atomic.LoadUint64(&localDiagWritten),
		DiagDropped:   atomic.LoadUint64(&localDiagDropped),
		TCPTx:         atomic.LoadUint64(&localTCPTx),
		TCPRxIgnored:  atomic.LoadUint64(&localTCPRxIgn),
		HubDrops:      atomic.LoadUint64(&localHubDrop),
		HubKicks:      atomic.LoadUint64(&localHubKick),
		HubRejects:    atomic.LoadUint64(&localHubReject),
		HubClients:    atomic.LoadUint64(&localHubClients),
		Events:        atomic.LoadUint64(&localEvents),
		Errors:        atomic.LoadUint64(&localErrors),
		LoopRate:      atomic.LoadUint64(&localLoopRate),
	}
}

// Pre-resolved children so the loop's hot path does not hash label values.
var (
	framesValid   = LINFrames.WithLabelValues("valid")
	framesInvalid = LINFrames.WithLabelValues("invalid")
)

// IncFrame counts one frame handled by the loop.
func IncFrame(valid bool) {
	if valid {
		framesValid.Inc()
		atomic.AddUint64(&localValid, 1)
		return
	}
	framesInvalid.Inc()
	atomic.AddUint64(&localInvalid, 1)
}

// IncErrorFlag counts one observed error flag bit by its label.
func IncErrorFlag(label string) {
	LINErrorFlags.WithLabelValues(label).Inc()
	atomic.AddUint64(&localFlags, 1)
}

func IncIdleReport() {
	IdleReports.Inc()
	atomic.AddUint64(&localIdle, 1)
}

func IncErrorReport() {
	ErrorReports.Inc()
	atomic.AddUint64(&localErrReports, 1)
}

func SetSignal(name string, on bool) { SignalState.WithLabelValues(name).Set(b2f(on)) }

func SetOutput(name string, on bool) { OutputState.WithLabelValues(name).Set(b2f(on)) }

func SetLoopRate(n uint64) {
	LoopRate.Set(float64(n))
	atomic.StoreUint64(&localLoopRate, n)
}

func AddSerialRx(n int) {
	SerialRxBytes.Add(float64(n))
	atomic.AddUint64(&localSerialRx, uint64(n))
}

func AddDiagWritten(n int) {
	DiagWrittenBytes.Add(float64(n))
	atomic.AddUint64(&localDiagWritten, uint64(n))
}

func AddDiagDropped(n int) {
	DiagDroppedBytes.Add(float64(n))
	atomic.AddUint64(&localDiagDropped, uint64(n))
}

func AddTCPTx(n int) {
	TCPTxFrames.Add(float64(n))
	atomic.AddUint64(&localTCPTx, uint64(n))
}

func IncTCPRxIgnored() {
	TCPRxIgnored.Inc()
	atomic.AddUint64(&localTCPRxIgn, 1)
}

func IncHubDrop() {
	HubDroppedFrames.Inc()
	atomic.AddUint64(&localHubDrop, 1)
}

func IncHubKick() {
	HubKickedClients.Inc()
	atomic.AddUint64(&localHubKick, 1)
}

func IncHubReject() {
	HubRejectedClients.Inc()
	atomic.AddUint64(&localHubReject, 1)
}

func SetHubClients(n int) {
	HubActiveClients.Set(float64(n))
	atomic.StoreUint64(&localHubClients, uint64(n))
}

func IncEvent() {
	EventsPublished.Inc()
	atomic.AddUint64(&localEvents, 1)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register error series so dashboards see zeros before the first error.
	for _, lbl := range errorLabels {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // not registered yet: report ready so probes don't flap
		return true
	}
	return fn()
}

func b2f(on bool) float64 {
	if on {
		return 1
	}
	return 0
}
