// Package daemon provides the long-running budget and cache monitor service.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/theirongolddev/tokenwise/internal/engine"
	"github.com/theirongolddev/tokenwise/internal/logging"
)

// Config controls the daemon runtime behavior.
type Config struct {
	StateDir     string
	Interval     time.Duration
	Addr         string
	EventsBuffer int
	// Watch polls on state directory changes in addition to the interval.
	Watch bool
}

// Snapshot is a compact budget and cache state for status/event payloads.
type Snapshot struct {
	At             time.Time `json:"at"`
	Status         string    `json:"status"`
	MonthSpend     float64   `json:"month_spend"`
	DaySpend       float64   `json:"day_spend"`
	MonthlyTarget  float64   `json:"monthly_target"`
	DailyTarget    float64   `json:"daily_target"`
	MonthlyPercent float64   `json:"monthly_percent"`
	Entries        int       `json:"entries"`
	Sessions       int       `json:"sessions"`
	CachedFiles    int       `json:"cached_files"`
	UniqueBlobs    int       `json:"unique_blobs"`
}

// Delta captures snapshot deltas between polls.
type Delta struct {
	MonthSpend  float64 `json:"month_spend"`
	Entries     int     `json:"entries"`
	Sessions    int     `json:"sessions"`
	CachedFiles int     `json:"cached_files"`
	StatusFrom  string  `json:"status_from,omitempty"`
}

func (d Delta) isZero() bool {
	return d.MonthSpend == 0 &&
		d.Entries == 0 &&
		d.Sessions == 0 &&
		d.CachedFiles == 0 &&
		d.StatusFrom == ""
}

// Event is emitted whenever the snapshot changes.
type Event struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Snapshot  Snapshot  `json:"snapshot"`
	Delta     Delta     `json:"delta"`
}

// Status is served at /v1/status.
type Status struct {
	StartedAt       time.Time `json:"started_at"`
	LastPollAt      time.Time `json:"last_poll_at"`
	PollIntervalSec int       `json:"poll_interval_sec"`
	PollCount       int64     `json:"poll_count"`
	StateDir        string    `json:"state_dir"`
	Watching        bool      `json:"watching"`
	Summary         Snapshot  `json:"summary"`
	LastError       string    `json:"last_error,omitempty"`
	EventCount      int       `json:"event_count"`
	SubscriberCount int       `json:"subscriber_count"`
}

// SnapshotFunc reads the current state.
type SnapshotFunc func(ctx context.Context) (Snapshot, error)

// EngineSnapshot reads budget and cache state through e.
func EngineSnapshot(e *engine.Engine) SnapshotFunc {
	return func(ctx context.Context) (Snapshot, error) {
		st, err := e.BudgetState(ctx)
		if err != nil {
			return Snapshot{}, err
		}
		cache, err := e.ReportCache(ctx)
		if err != nil {
			return Snapshot{}, err
		}
		return Snapshot{
			At:             st.At,
			Status:         engine.StatusOf(st),
			MonthSpend:     st.MonthSpend,
			DaySpend:       st.DaySpend,
			MonthlyTarget:  st.MonthlyTarget,
			DailyTarget:    st.DailyTarget,
			MonthlyPercent: st.MonthlyPercent(),
			Entries:        st.Entries,
			Sessions:       cache.Stats.Sessions,
			CachedFiles:    cache.Stats.TotalFiles,
			UniqueBlobs:    cache.Stats.UniqueBlobs,
		}, nil
	}
}

// Service provides the daemon runtime and HTTP API.
type Service struct {
	cfg     Config
	read    SnapshotFunc
	log     *zap.Logger
	metrics *metrics

	mu          sync.RWMutex
	startedAt   time.Time
	lastPollAt  time.Time
	pollCount   int64
	lastError   string
	hasSnapshot bool
	snapshot    Snapshot
	nextEventID int64
	events      []Event
	watching    bool

	nextSubID int
	subs      map[int]chan Event
}

// New returns a daemon service reading state through read.
func New(cfg Config, read SnapshotFunc, log *zap.Logger) *Service {
	if cfg.Interval < 2*time.Second {
		cfg.Interval = 10 * time.Second
	}
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 200
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8787"
	}

	return &Service{
		cfg:       cfg,
		read:      read,
		log:       logging.OrNop(log).Named("daemon"),
		metrics:   newMetrics(),
		startedAt: time.Now(),
		subs:      make(map[int]chan Event),
	}
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/status", s.handleStatus)
	mux.HandleFunc("/v1/events", s.handleEvents)
	mux.HandleFunc("/v1/stream", s.handleStream)
	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))
	return mux
}

// Run starts HTTP endpoints and polling until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var changes <-chan struct{}
	if s.cfg.Watch {
		w, err := watchState(s.cfg.StateDir, s.log)
		if err != nil {
			s.log.Warn("state watch unavailable, polling only", zap.Error(err))
		} else {
			defer w.Close()
			changes = w.Changes()
			s.mu.Lock()
			s.watching = true
			s.mu.Unlock()
		}
	}

	// Seed initial snapshot so status is useful immediately.
	s.pollOnce(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		case <-ticker.C:
			s.pollOnce(ctx)
		case <-changes:
			s.pollOnce(ctx)
		case err := <-errCh:
			return fmt.Errorf("daemon http server: %w", err)
		}
	}
}

func (s *Service) pollOnce(ctx context.Context) {
	s.metrics.polls.Inc()
	snap, err := s.read(ctx)
	if err != nil {
		s.metrics.pollErrors.Inc()
		s.mu.Lock()
		s.lastError = err.Error()
		s.lastPollAt = time.Now()
		s.pollCount++
		s.mu.Unlock()
		s.log.Warn("poll failed", zap.Error(err))
		return
	}
	now := time.Now()
	if snap.At.IsZero() {
		snap.At = now
	}
	s.metrics.observe(snap)

	var (
		ev      Event
		publish bool
	)

	s.mu.Lock()
	prev := s.snapshot
	prevExists := s.hasSnapshot

	s.hasSnapshot = true
	s.snapshot = snap
	s.lastPollAt = now
	s.pollCount++
	s.lastError = ""

	if !prevExists {
		s.nextEventID++
		ev = Event{
			ID:        s.nextEventID,
			Type:      "snapshot",
			Timestamp: now,
			Snapshot:  snap,
		}
		publish = true
	} else {
		delta := diffSnapshots(prev, snap)
		if !delta.isZero() {
			s.nextEventID++
			ev = Event{
				ID:        s.nextEventID,
				Type:      eventType(delta),
				Timestamp: now,
				Snapshot:  snap,
				Delta:     delta,
			}
			publish = true
		}
	}
	s.mu.Unlock()

	if publish {
		s.publishEvent(ev)
	}
}

func eventType(d Delta) string {
	switch {
	case d.StatusFrom != "":
		return "budget_status"
	case d.Entries != 0 || d.MonthSpend != 0:
		return "spend_delta"
	}
	return "cache_delta"
}

func diffSnapshots(prev, curr Snapshot) Delta {
	d := Delta{
		MonthSpend:  curr.MonthSpend - prev.MonthSpend,
		Entries:     curr.Entries - prev.Entries,
		Sessions:    curr.Sessions - prev.Sessions,
		CachedFiles: curr.CachedFiles - prev.CachedFiles,
	}
	if prev.Status != curr.Status {
		d.StatusFrom = prev.Status
	}
	return d
}

func (s *Service) publishEvent(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	if len(s.events) > s.cfg.EventsBuffer {
		s.events = s.events[len(s.events)-s.cfg.EventsBuffer:]
	}

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Service) snapshotStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		StartedAt:       s.startedAt,
		LastPollAt:      s.lastPollAt,
		PollIntervalSec: int(s.cfg.Interval.Seconds()),
		PollCount:       s.pollCount,
		StateDir:        s.cfg.StateDir,
		Watching:        s.watching,
		Summary:         s.snapshot,
		LastError:       s.lastError,
		EventCount:      len(s.events),
		SubscriberCount: len(s.subs),
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.snapshotStatus())
}

func (s *Service) handleEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(events)
}

func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan Event, 16)
	id := s.addSubscriber(ch)
	defer s.removeSubscriber(id)

	// Send current snapshot immediately.
	writeSSE(w, Event{
		Type:      "snapshot",
		Timestamp: time.Now(),
		Snapshot:  s.snapshotStatus().Summary,
	})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", ev.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}

func (s *Service) addSubscriber(ch chan Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = ch
	return id
}

func (s *Service) removeSubscriber(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

type metrics struct {
	registry      *prometheus.Registry
	monthSpend    prometheus.Gauge
	daySpend      prometheus.Gauge
	monthlyTarget prometheus.Gauge
	utilization   prometheus.Gauge
	entries       prometheus.Gauge
	sessions      prometheus.Gauge
	cachedFiles   prometheus.Gauge
	polls         prometheus.Counter
	pollErrors    prometheus.Counter
}

func newMetrics() *metrics {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "tokenwise", Name: name, Help: help})
	}
	m := &metrics{
		registry:      prometheus.NewRegistry(),
		monthSpend:    gauge("month_spend", "Spend recorded in the current month."),
		daySpend:      gauge("day_spend", "Spend recorded today."),
		monthlyTarget: gauge("monthly_target", "Configured monthly budget target."),
		utilization:   gauge("budget_utilization_percent", "Month spend as a percentage of the monthly target."),
		entries:       gauge("ledger_entries", "Cost entries recorded in the current month."),
		sessions:      gauge("cache_sessions", "Live context cache sessions."),
		cachedFiles:   gauge("cache_files", "Files held across all cache sessions."),
		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tokenwise", Subsystem: "daemon", Name: "polls_total", Help: "State polls performed.",
		}),
		pollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tokenwise", Subsystem: "daemon", Name: "poll_errors_total", Help: "State polls that failed.",
		}),
	}
	m.registry.MustRegister(m.monthSpend, m.daySpend, m.monthlyTarget, m.utilization,
		m.entries, m.sessions, m.cachedFiles, m.polls, m.pollErrors)
	return m
}

func (m *metrics) observe(s Snapshot) {
	m.monthSpend.Set(s.MonthSpend)
	m.daySpend.Set(s.DaySpend)
	m.monthlyTarget.Set(s.MonthlyTarget)
	m.utilization.Set(s.MonthlyPercent)
	m.entries.Set(float64(s.Entries))
	m.sessions.Set(float64(s.Sessions))
	m.cachedFiles.Set(float64(s.CachedFiles))
}
