package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/traffic-allocator/pkg/allocation"
	"github.com/traffic-allocator/pkg/api"
	"github.com/traffic-allocator/pkg/breaker"
	"github.com/traffic-allocator/pkg/cache"
	"github.com/traffic-allocator/pkg/catalog"
	"github.com/traffic-allocator/pkg/compare"
	"github.com/traffic-allocator/pkg/events"
	"github.com/traffic-allocator/pkg/observability"
	"github.com/traffic-allocator/pkg/ratelimit"
	"github.com/traffic-allocator/pkg/retry"
	"github.com/traffic-allocator/pkg/strategy"
	"github.com/traffic-allocator/pkg/telemetry"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocator_requests_total",
			Help: "Total number of allocation requests",
		},
		[]string{"endpoint", "status"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "allocator_request_duration_seconds",
			Help:    "Allocation request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)
	cacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocator_cache_events_total",
			Help: "Result cache hits, misses and failures",
		},
		[]string{"event"},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal)
	prometheus.MustRegister(requestDuration)
	prometheus.MustRegister(cacheEvents)
}

type server struct {
	registry    *strategy.Registry
	engine      *allocation.Engine
	comparator  *compare.Comparator
	resultCache *cache.Cache
	cacheGuard  *breaker.Breaker
	limiter     *ratelimit.Limiter
	publisher   *events.Publisher
	collector   *telemetry.Collector
}

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("no .env file found, using environment variables")
	}

	if level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		logrus.SetLevel(level)
	}

	shutdownTracing := observability.Init("allocator")
	defer shutdownTracing()

	registry := strategy.NewRegistry()
	if path := os.Getenv("STRATEGY_FILE"); path != "" {
		if err := registry.LoadFile(path); err != nil {
			logrus.WithError(err).Fatal("failed to load strategy file")
		}
		logrus.WithField("path", path).Info("merged strategy file")
	}

	engine := allocation.NewEngine()
	srv := &server{
		registry:   registry,
		engine:     engine,
		comparator: compare.New(engine),
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		ttl, err := time.ParseDuration(getEnv("CACHE_TTL", "5m"))
		if err != nil {
			logrus.WithError(err).Fatal("invalid CACHE_TTL")
		}
		srv.resultCache = cache.New(rdb, ttl)
		srv.cacheGuard = breaker.New(5, 2, 30*time.Second)

		limit, err := strconv.Atoi(getEnv("RATE_LIMIT_PER_MINUTE", "120"))
		if err != nil {
			logrus.WithError(err).Fatal("invalid RATE_LIMIT_PER_MINUTE")
		}
		srv.limiter = ratelimit.New(rdb, limit, time.Minute)
		logrus.WithField("addr", addr).Info("redis cache and rate limiter enabled")
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		var pub *events.Publisher
		err := retry.Do(retry.DefaultConfig(), func() error {
			var err error
			pub, err = events.NewPublisher(natsURL)
			return err
		})
		if err != nil {
			logrus.WithError(err).Warn("NATS unavailable, allocation events disabled")
		} else {
			srv.publisher = pub
			defer pub.Close()
			logrus.WithField("url", natsURL).Info("allocation events enabled")
		}
	}

	if promURL := os.Getenv("TELEMETRY_PROMETHEUS_URL"); promURL != "" {
		srv.collector = telemetry.NewCollector(promURL)
		logrus.WithField("url", promURL).Info("telemetry overlay enabled")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/v1/allocate", srv.handleAllocate)
	mux.HandleFunc("/v1/compare", srv.handleCompare)
	mux.HandleFunc("/v1/strategies", srv.handleStrategies)

	port := getEnv("PORT", "8080")
	logrus.WithField("port", port).Info("allocator listening")
	logrus.Fatal(http.ListenAndServe(":"+port, mux))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok", Service: "allocator"})
}

func (s *server) handleAllocate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req, ok := s.decodePlanRequest(w, r, "allocate")
	if !ok {
		return
	}

	ctx, span := startSpan(r.Context(), "allocate")
	defer span()

	key, cached := s.cachedResult(ctx, req)
	if cached != nil {
		requestsTotal.WithLabelValues("allocate", "success").Inc()
		requestDuration.WithLabelValues(req.StrategyID).Observe(time.Since(start).Seconds())
		s.publish(ctx, req, *cached, true)
		writeJSON(w, http.StatusOK, cached.Rounded())
		return
	}

	selected, ok := s.registry.Get(req.StrategyID)
	if !ok {
		requestsTotal.WithLabelValues("allocate", "unknown_strategy").Inc()
		writeError(w, http.StatusBadRequest, "unknown strategy: "+req.StrategyID)
		return
	}

	res, err := s.engine.Allocate(allocation.Request{
		Routes:          s.routes(ctx, req.ProviderIDs),
		Strategy:        selected,
		VolumeMillions:  req.VolumeMillions,
		ExcludedRouteID: req.FailoverProviderID,
	})
	if err != nil {
		s.writeEngineError(w, "allocate", err)
		return
	}

	s.storeResult(ctx, key, res)
	s.publish(ctx, req, res, false)

	requestsTotal.WithLabelValues("allocate", "success").Inc()
	requestDuration.WithLabelValues(req.StrategyID).Observe(time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, res.Rounded())
}

func (s *server) handleCompare(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req, ok := s.decodePlanRequest(w, r, "compare")
	if !ok {
		return
	}

	ctx, span := startSpan(r.Context(), "compare")
	defer span()

	selected, found := s.registry.Get(req.StrategyID)
	if !found {
		requestsTotal.WithLabelValues("compare", "unknown_strategy").Inc()
		writeError(w, http.StatusBadRequest, "unknown strategy: "+req.StrategyID)
		return
	}

	report, err := s.comparator.Run(
		s.routes(ctx, req.ProviderIDs),
		s.registry.Baseline(),
		selected,
		req.VolumeMillions,
		req.FailoverProviderID,
	)
	if err != nil {
		s.writeEngineError(w, "compare", err)
		return
	}

	requestsTotal.WithLabelValues("compare", "success").Inc()
	requestDuration.WithLabelValues(req.StrategyID).Observe(time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, report.Rounded())
}

func (s *server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.registry.List())
}

// decodePlanRequest parses the body and applies rate limiting. A false return
// means the response has already been written.
func (s *server) decodePlanRequest(w http.ResponseWriter, r *http.Request, endpoint string) (api.PlanRequest, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return api.PlanRequest{}, false
	}

	var req api.PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		requestsTotal.WithLabelValues(endpoint, "bad_request").Inc()
		writeError(w, http.StatusBadRequest, "invalid json")
		return api.PlanRequest{}, false
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(r.Context(), clientID(r))
		if err != nil {
			// Rate limiting is best effort: a broken Redis must not take
			// allocation down with it.
			logrus.WithError(err).Warn("rate limiter unavailable")
		} else if !allowed {
			requestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return api.PlanRequest{}, false
		}
	}
	return req, true
}

// routes builds the deterministic catalog and, when a telemetry collector is
// configured, overlays observed latency and reliability.
func (s *server) routes(ctx context.Context, providerIDs []string) []catalog.RouteProfile {
	routes := catalog.Build(providerIDs)
	if s.collector != nil {
		routes = s.collector.Overlay(ctx, routes)
	}
	return routes
}

func (s *server) cachedResult(ctx context.Context, req api.PlanRequest) (string, *allocation.Result) {
	if s.resultCache == nil {
		return "", nil
	}

	key, err := cache.Key(req.StrategyID, req.ProviderIDs, req.FailoverProviderID, req.VolumeMillions)
	if err != nil {
		return "", nil
	}

	var (
		res allocation.Result
		hit bool
	)
	err = s.cacheGuard.Do(func() error {
		cached, getErr := s.resultCache.Get(ctx, key)
		if errors.Is(getErr, cache.ErrCacheMiss) {
			// A miss is a normal outcome, not a cache failure.
			cacheEvents.WithLabelValues("miss").Inc()
			return nil
		}
		if getErr != nil {
			return getErr
		}
		res, hit = cached, true
		return nil
	})
	if err != nil {
		if errors.Is(err, breaker.ErrOpen) {
			cacheEvents.WithLabelValues("bypass").Inc()
		} else {
			cacheEvents.WithLabelValues("error").Inc()
		}
		return key, nil
	}
	if !hit {
		return key, nil
	}
	cacheEvents.WithLabelValues("hit").Inc()
	return key, &res
}

func (s *server) storeResult(ctx context.Context, key string, res allocation.Result) {
	if s.resultCache == nil || key == "" {
		return
	}
	err := s.cacheGuard.Do(func() error {
		return s.resultCache.Set(ctx, key, res)
	})
	if err != nil && !errors.Is(err, breaker.ErrOpen) {
		cacheEvents.WithLabelValues("error").Inc()
		logrus.WithError(err).Debug("failed to store result in cache")
	}
}

func (s *server) publish(ctx context.Context, req api.PlanRequest, res allocation.Result, cacheHit bool) {
	if s.publisher == nil {
		return
	}
	excluded := ""
	if res.ExcludedRoute != nil {
		excluded = res.ExcludedRoute.ID
	}
	event := events.AllocationEvent{
		StrategyID:     req.StrategyID,
		RouteCount:     len(res.Distribution),
		ExcludedRoute:  excluded,
		VolumeMillions: req.VolumeMillions,
		TotalCost:      res.TotalCost,
		AvgLatencyMS:   res.AvgLatencyMS,
		CacheHit:       cacheHit,
	}
	if err := s.publisher.PublishAllocation(ctx, event); err != nil {
		logrus.WithError(err).Debug("allocation event not published")
	}
}

func (s *server) writeEngineError(w http.ResponseWriter, endpoint string, err error) {
	var verr *allocation.ValidationError
	if errors.As(err, &verr) {
		requestsTotal.WithLabelValues(endpoint, "bad_request").Inc()
		writeError(w, http.StatusBadRequest, verr.Message)
		return
	}
	requestsTotal.WithLabelValues(endpoint, "error").Inc()
	writeError(w, http.StatusInternalServerError, "allocation failed")
}

func clientID(r *http.Request) string {
	if id := r.Header.Get("X-Client-ID"); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func startSpan(ctx context.Context, name string) (context.Context, func()) {
	if observability.Tracer == nil {
		return ctx, func() {}
	}
	ctx, span := observability.Tracer.Start(ctx, name)
	return ctx, func() { span.End() }
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, api.ErrorResponse{Error: message})
}
