package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"stockboard/internal/config"
	"stockboard/internal/dashboard"
	"stockboard/internal/dataset"
	"stockboard/internal/domain"
	"stockboard/internal/store"
	"stockboard/internal/util"
)

// Report history paging.
const (
	DefaultReportLimit = 20
	MaxReportLimit     = store.MaxReportLimit
)

// maxRecorded bounds the set of views remembered as already recorded.
const maxRecorded = 4096

// DashboardServer serves the dashboard HTTP API.
type DashboardServer struct {
	cfg     *config.Config
	cache   *dataset.Cache
	reports store.ReportStore
	ws      http.Handler
	limiter *util.RateLimiter
	log     *slog.Logger
	now     func() time.Time

	// Views already recorded in the report store.
	// Key: "TICKER|kind|range|version".
	recorded *lru.Cache[string, struct{}]
}

// NewDashboardServer creates a new dashboard HTTP server. reports may be a
// no-op store; ws, when non-nil, is mounted at /api/ws.
func NewDashboardServer(
	cfg *config.Config,
	cache *dataset.Cache,
	reports store.ReportStore,
	ws http.Handler,
	log *slog.Logger,
) *DashboardServer {
	if log == nil {
		log = slog.Default()
	}
	if reports == nil {
		reports = store.NewNoopReportStore()
	}
	s := &DashboardServer{
		cfg:     cfg,
		cache:   cache,
		reports: reports,
		ws:      ws,
		log:     log,
		now:     time.Now,
	}
	s.recorded, _ = lru.New[string, struct{}](maxRecorded)
	if n := cfg.Server.RateLimitPerMin; n > 0 {
		s.limiter = util.NewRateLimiter(n, max(n/10, 1))
	}
	return s
}

// RegisterRoutes registers all API routes on the given mux.
func (s *DashboardServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/tickers", s.handleTickers)
	mux.HandleFunc("GET /api/prices/{ticker}", s.handlePrices)
	mux.HandleFunc("GET /api/predictions/{ticker}", s.handlePredictions)
	mux.HandleFunc("GET /api/reports/{ticker}", s.handleReports)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.ws != nil {
		mux.Handle("GET /api/ws", s.ws)
	}
}

// Handler returns an http.Handler with CORS, request logging and
// throttling middleware.
func (s *DashboardServer) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(s.cfg.Server.AllowOrigin, s.logRequests(s.throttle(mux)))
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

func corsMiddleware(origin string, next http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *DashboardServer) throttle(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" && !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for request logging. It
// passes hijacking through so WebSocket upgrades keep working.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	rec.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *DashboardServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"elapsed", time.Since(start).Round(time.Microsecond),
		)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *DashboardServer) handleTickers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, TickersResponse{Tickers: s.cfg.Tickers})
}

// ticker resolves the {ticker} path value against the universe, writing a
// 404 when it is unknown.
func (s *DashboardServer) ticker(w http.ResponseWriter, r *http.Request) (string, bool) {
	ticker := domain.NormalizeTicker(r.PathValue("ticker"))
	if !s.cfg.HasTicker(ticker) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown ticker %q", ticker))
		return "", false
	}
	return ticker, true
}

func (s *DashboardServer) handlePrices(w http.ResponseWriter, r *http.Request) {
	ticker, ok := s.ticker(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	rng, err := dashboard.PriceRange(q.Get("start"), q.Get("end"), s.cfg.Defaults.StartDate, s.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, version, err := s.cache.Prices(r.Context(), ticker, rng)
	if err != nil {
		s.log.Error("loading prices", "ticker", ticker, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load price data")
		return
	}
	view, err := dashboard.BuildPriceView(ticker, rng, rows, version)
	if err != nil {
		s.log.Error("building price view", "ticker", ticker, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute price summary")
		return
	}
	if view.Summary != nil {
		s.record(r.Context(), store.NewPriceReport(ticker, rng, version, *view.Summary))
	}
	writeJSON(w, view)
}

func (s *DashboardServer) handlePredictions(w http.ResponseWriter, r *http.Request) {
	ticker, ok := s.ticker(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	rng, err := domain.ParseDateRange(q.Get("start"), q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, version, err := s.cache.Predictions(r.Context(), ticker, rng)
	if err != nil {
		s.log.Error("loading predictions", "ticker", ticker, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load prediction data")
		return
	}
	view, err := dashboard.BuildPredictionView(ticker, rng, rows, version)
	if err != nil {
		s.log.Error("building prediction view", "ticker", ticker, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute prediction metrics")
		return
	}
	if view.Report != nil {
		s.record(r.Context(), store.NewPredictionReport(ticker, rng, version, *view.Report))
	}
	writeJSON(w, view)
}

func (s *DashboardServer) handleReports(w http.ResponseWriter, r *http.Request) {
	ticker, ok := s.ticker(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	kind := store.ReportKind(q.Get("kind"))
	if kind != "" && !kind.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid kind %q", kind))
		return
	}
	limit := DefaultReportLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = min(n, MaxReportLimit)
	}

	reports, err := s.reports.ListReports(r.Context(), ticker, kind, limit)
	if err != nil {
		s.log.Error("listing reports", "ticker", ticker, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}
	out := make([]ReportJSON, 0, len(reports))
	for _, rep := range reports {
		out = append(out, NewReportJSON(rep))
	}
	writeJSON(w, ReportsResponse{Ticker: ticker, Kind: string(kind), Reports: out})
}

func (s *DashboardServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.cache.Stats()
	resp := HealthResponse{
		Status:             "ok",
		Source:             st.Source,
		Loaded:             st.Loaded,
		PriceRows:          st.PriceRows,
		PredictionRows:     st.PredictionRows,
		PricesVersion:      st.PricesVersion,
		PredictionsVersion: st.PredictionsVersion,
	}
	if st.Loaded {
		resp.LoadedAt = st.LoadedAt.UTC().Format(time.RFC3339)
	}
	writeJSON(w, resp)
}

// record saves rep once per distinct view. Failures are logged and do not
// affect the response.
func (s *DashboardServer) record(ctx context.Context, rep *store.Report) {
	key := fmt.Sprintf("%s|%s|%s|%d", rep.Ticker, rep.Kind, rep.Range, rep.DataVersion)
	if seen, _ := s.recorded.ContainsOrAdd(key, struct{}{}); seen {
		return
	}
	if err := s.reports.SaveReport(ctx, rep); err != nil {
		s.recorded.Remove(key)
		s.log.Warn("recording report", "ticker", rep.Ticker, "kind", rep.Kind, "error", err)
	}
}
