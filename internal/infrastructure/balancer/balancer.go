package balancer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"time"

	"github.com/hilthontt/quadchat/internal/infrastructure/logging"
)

const healthCheckTimeout = 2 * time.Second

type Config struct {
	Backends            []string
	Strategy            Strategy
	HealthCheckInterval time.Duration
	// HealthCheckPath is probed with GET on every backend; a 2xx marks it up.
	HealthCheckPath string
	MaxFailCount    int
}

// LoadBalancer spreads quadchat traffic over several processes that share one
// room store. WebSocket upgrades are proxied like any other request.
type LoadBalancer struct {
	backends []*Backend
	current  int
	mu       sync.Mutex

	cfg     Config
	client  *http.Client
	logger  logging.Logger
	metrics *Metrics
}

func New(cfg Config, logger logging.Logger, metrics *Metrics) (*LoadBalancer, error) {
	if len(cfg.Backends) == 0 {
		return nil, errors.New("balancer: at least one backend is required")
	}
	if cfg.MaxFailCount < 1 {
		cfg.MaxFailCount = 1
	}
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = 10 * time.Second
	}
	if cfg.HealthCheckPath == "" {
		cfg.HealthCheckPath = "/live"
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	lb := &LoadBalancer{
		cfg:     cfg,
		client:  &http.Client{Timeout: healthCheckTimeout},
		logger:  logger,
		metrics: metrics,
	}

	for _, raw := range cfg.Backends {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("balancer: invalid backend url %q", raw)
		}

		b := &Backend{URL: u, alive: true}
		b.proxy = lb.newReverseProxy(b)
		lb.backends = append(lb.backends, b)
		metrics.setBackendUp(u.Host, true)
	}

	return lb, nil
}

func (lb *LoadBalancer) newReverseProxy(b *Backend) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(b.URL)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		lb.metrics.incBackendError(b.URL.Host)
		if b.recordFailure(lb.cfg.MaxFailCount) {
			lb.metrics.setBackendUp(b.URL.Host, false)
			lb.logger.Warn(logging.Balancer, logging.Health, "backend marked down", map[logging.ExtraKey]any{
				logging.Backend:      b.URL.Host,
				logging.ErrorMessage: err.Error(),
			})
		}
		lb.logger.Error(logging.Balancer, logging.Forward, "proxy error", map[logging.ExtraKey]any{
			logging.Backend:      b.URL.Host,
			logging.Path:         r.URL.Path,
			logging.ErrorMessage: err.Error(),
		})
		http.Error(w, "Bad gateway", http.StatusBadGateway)
	}
	return proxy
}

// Backends returns the configured backends in order.
func (lb *LoadBalancer) Backends() []*Backend {
	return lb.backends
}

func (lb *LoadBalancer) chooseBackend(r *http.Request) *Backend {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	switch lb.cfg.Strategy {
	case LeastConnections:
		return lb.leastConnectionsSelect()
	case RoomHash:
		return lb.roomHashSelect(r)
	case Random:
		return lb.randomSelect()
	default:
		return lb.roundRobinSelect()
	}
}

func (lb *LoadBalancer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	backend := lb.chooseBackend(r)
	if backend == nil {
		lb.logger.Warn(logging.Balancer, logging.Forward, "no available backends", map[logging.ExtraKey]any{
			logging.Path: r.URL.Path,
		})
		http.Error(w, "No available backends", http.StatusServiceUnavailable)
		return
	}

	backend.addConnection(1)
	defer backend.addConnection(-1)

	lb.logger.Debug(logging.Balancer, logging.Forward, "forwarding request", map[logging.ExtraKey]any{
		logging.Backend: backend.URL.Host,
		logging.Method:  r.Method,
		logging.Path:    r.URL.Path,
	})

	start := time.Now()
	wrapped := &responseWriterInterceptor{ResponseWriter: w, statusCode: http.StatusOK}
	backend.proxy.ServeHTTP(wrapped, r)

	lb.metrics.observeRequest(backend.URL.Host, wrapped.statusCode, time.Since(start))
	if wrapped.statusCode < http.StatusInternalServerError {
		backend.resetFailCount()
	}
}

// Run probes every backend on each tick until ctx is cancelled.
func (lb *LoadBalancer) Run(ctx context.Context) {
	ticker := time.NewTicker(lb.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lb.CheckBackends(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// CheckBackends runs one round of health checks.
func (lb *LoadBalancer) CheckBackends(ctx context.Context) {
	for _, b := range lb.backends {
		alive := lb.probe(ctx, b.URL)
		if alive != b.IsAlive() {
			status := "down"
			if alive {
				status = "up"
			}
			lb.logger.Info(logging.Balancer, logging.Health, "backend status changed", map[logging.ExtraKey]any{
				logging.Backend: b.URL.Host,
				logging.Status:  status,
			})
		}
		b.SetAlive(alive)
		lb.metrics.setBackendUp(b.URL.Host, alive)
	}
}

func (lb *LoadBalancer) probe(ctx context.Context, u *url.URL) bool {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.JoinPath(lb.cfg.HealthCheckPath).String(), nil)
	if err != nil {
		return false
	}
	resp, err := lb.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

type responseWriterInterceptor struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterInterceptor) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Hijack lets the reverse proxy take over upgraded WebSocket connections.
func (w *responseWriterInterceptor) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("balancer: response writer does not support hijacking")
	}
	w.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *responseWriterInterceptor) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
