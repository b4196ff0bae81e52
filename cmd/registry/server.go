package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/dreamware/bazar/internal/aggregate"
	"github.com/dreamware/bazar/internal/cachetoken"
	"github.com/dreamware/bazar/internal/config"
	"github.com/dreamware/bazar/internal/federation"
	"github.com/dreamware/bazar/internal/metrics"
	"github.com/dreamware/bazar/internal/registry"
	"github.com/dreamware/bazar/internal/slugdir"
)

// actionFunc handles one named action. GET actions read their parameters
// from the query string; POST actions from the request envelope's data.
type actionFunc func(w http.ResponseWriter, r *http.Request, req federation.Request)

type server struct {
	cfg     config.Registry
	log     *zap.Logger
	dir     *registry.Directory
	agg     *aggregate.Aggregator
	slugs   *slugdir.Directory
	token   cachetoken.State
	monitor *registry.HealthMonitor

	// proxyClient forwards single-target actions to the owning store.
	proxyClient *http.Client

	getActions  map[string]actionFunc
	postActions map[string]actionFunc
}

func newServer(cfg config.Registry, log *zap.Logger, dir *registry.Directory, agg *aggregate.Aggregator, slugs *slugdir.Directory, token cachetoken.State, monitor *registry.HealthMonitor) *server {
	s := &server{
		cfg:         cfg,
		log:         log,
		dir:         dir,
		agg:         agg,
		slugs:       slugs,
		token:       token,
		monitor:     monitor,
		proxyClient: &http.Client{Timeout: cfg.FanoutTimeout + time.Second},
	}

	s.getActions = map[string]actionFunc{
		// Aggregated reads fan out to every registered endpoint.
		"getCategories":   s.handleFanoutList,
		"getPublicData":   s.handleFanoutList,
		"getProductCount": s.handleFanoutScalar,

		// Single-target reads are proxied to the owning store.
		"getBusinessItems": s.handleProxy,
		"getProducts":      s.handleProxy,
		"getOrders":        s.handleProxy,

		"resolveSlug":       s.handleResolveSlug,
		"getSlug":           s.handleGetSlug,
		"getVisitStats":     s.handleVisitStats,
		"getCacheToken":     s.handleGetCacheToken,
		"listEndpoints":     s.handleListEndpoints,
		"getEndpointHealth": s.handleEndpointHealth,
	}

	s.postActions = map[string]actionFunc{
		"registerEndpoint": s.handleRegisterEndpoint,
		"updateEndpoint":   s.handleRegisterEndpoint,
		"setSlug":          s.handleSetSlug,
		"invalidateCache":  s.handleInvalidateCache,

		// Single-target mutations are proxied to the owning store.
		"addItem":           s.handleProxy,
		"updateItem":        s.handleProxy,
		"deleteItem":        s.handleProxy,
		"addProduct":        s.handleProxy,
		"updateProduct":     s.handleProxy,
		"deleteProduct":     s.handleProxy,
		"submitOrder":       s.handleProxy,
		"updateOrderStatus": s.handleProxy,
	}
	return s
}

func (s *server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api", s.handleAPI).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/register", s.handleStoreRegister).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return r
}

// handleAPI is the action dispatcher. GET carries ?action=...; POST
// carries the {action, data} envelope.
func (s *server) handleAPI(w http.ResponseWriter, r *http.Request) {
	var req federation.Request
	table := s.getActions
	if r.Method == http.MethodPost {
		table = s.postActions
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.fail(w, "", federation.Errf(federation.KindValidation, "malformed request body: %v", err))
			return
		}
	} else {
		req.Action = r.URL.Query().Get("action")
	}

	if req.Action == "" {
		s.fail(w, "", federation.Errf(federation.KindValidation, "action parameter is required"))
		return
	}
	handler, ok := table[req.Action]
	if !ok {
		s.fail(w, req.Action, federation.Errf(federation.KindValidation, "unknown action %q", req.Action))
		return
	}

	start := time.Now()
	handler(w, r, req)
	metrics.RequestDuration.WithLabelValues(req.Action).Observe(time.Since(start).Seconds())
}

func (s *server) ok(w http.ResponseWriter, action string, data any) {
	metrics.RequestsTotal.WithLabelValues(action, "success").Inc()
	federation.WriteData(w, data)
}

func (s *server) fail(w http.ResponseWriter, action string, err error) {
	if action == "" {
		action = "unknown"
	}
	metrics.RequestsTotal.WithLabelValues(action, "error").Inc()
	federation.WriteError(w, err)
}

// handleFanoutList asks every registered endpoint for the action and
// returns the order-preserving concatenation plus per-endpoint statuses.
func (s *server) handleFanoutList(w http.ResponseWriter, r *http.Request, req federation.Request) {
	endpoints := s.dir.List()
	merged, statuses := s.agg.List(r.Context(), endpoints, req.Action, fanoutParams(r))
	s.countFanoutFailures(statuses)

	token, err := s.token.Current(r.Context())
	if err != nil {
		s.log.Warn("cache token read failed", zap.Error(err))
	}
	s.ok(w, req.Action, map[string]any{
		"items":      merged,
		"endpoints":  statuses,
		"cacheToken": token,
	})
}

func (s *server) handleFanoutScalar(w http.ResponseWriter, r *http.Request, req federation.Request) {
	endpoints := s.dir.List()
	results, statuses := s.agg.Scalar(r.Context(), endpoints, req.Action, fanoutParams(r))
	s.countFanoutFailures(statuses)

	token, err := s.token.Current(r.Context())
	if err != nil {
		s.log.Warn("cache token read failed", zap.Error(err))
	}
	s.ok(w, req.Action, map[string]any{
		"counts":     results,
		"endpoints":  statuses,
		"cacheToken": token,
	})
}

func (s *server) countFanoutFailures(statuses []aggregate.EndpointStatus) {
	for _, st := range statuses {
		if !st.OK {
			metrics.FanoutFailures.WithLabelValues(st.TenantID).Inc()
		}
	}
}

// fanoutParams forwards the caller's query parameters to the stores,
// minus the action itself which the aggregator sets per call.
func fanoutParams(r *http.Request) url.Values {
	params := url.Values{}
	for k, vs := range r.URL.Query() {
		if k != "action" {
			params[k] = vs
		}
	}
	return params
}

// handleProxy forwards a single-target action to the tenant's own store
// and relays the store's envelope verbatim, status code included.
func (s *server) handleProxy(w http.ResponseWriter, r *http.Request, req federation.Request) {
	tenantID := r.URL.Query().Get("businessId")
	if tenantID == "" && len(req.Data) > 0 {
		var peek struct {
			BusinessID string `json:"businessId"`
		}
		if err := json.Unmarshal(req.Data, &peek); err == nil {
			tenantID = peek.BusinessID
		}
	}
	if tenantID == "" {
		s.fail(w, req.Action, federation.Errf(federation.KindValidation,
			"action %q requires a businessId", req.Action))
		return
	}

	endpoint, err := s.dir.Resolve(tenantID)
	if err != nil {
		s.fail(w, req.Action, err)
		return
	}

	resp, err := s.forward(r, req, endpoint)
	if err != nil {
		s.fail(w, req.Action, err)
		return
	}
	defer resp.Body.Close()

	metrics.RequestsTotal.WithLabelValues(req.Action, proxyOutcome(resp.StatusCode)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		s.log.Warn("proxy relay interrupted",
			zap.String("tenant", tenantID),
			zap.String("action", req.Action),
			zap.Error(err))
	}
}

func (s *server) forward(r *http.Request, req federation.Request, endpoint federation.EndpointDescriptor) (*http.Response, error) {
	base := strings.TrimRight(endpoint.EndpointURL, "/") + "/api"

	var out *http.Request
	var err error
	if r.Method == http.MethodPost {
		body, merr := json.Marshal(req)
		if merr != nil {
			return nil, federation.Errf(federation.KindInternal, "encode proxy body: %v", merr)
		}
		out, err = http.NewRequestWithContext(r.Context(), http.MethodPost, base, strings.NewReader(string(body)))
		if out != nil {
			out.Header.Set("Content-Type", "application/json")
		}
	} else {
		out, err = http.NewRequestWithContext(r.Context(), http.MethodGet, base+"?"+r.URL.RawQuery, nil)
	}
	if err != nil {
		return nil, federation.Errf(federation.KindInternal, "build proxy request: %v", err)
	}

	resp, err := s.proxyClient.Do(out)
	if err != nil {
		return nil, federation.Errf(federation.KindUpstream,
			"store %s unreachable: %v", endpoint.TenantID, err)
	}
	return resp, nil
}

func proxyOutcome(status int) string {
	if status < 300 {
		return "success"
	}
	return "error"
}

func (s *server) handleResolveSlug(w http.ResponseWriter, r *http.Request, req federation.Request) {
	alias := r.URL.Query().Get("slug")
	if alias == "" {
		s.fail(w, req.Action, federation.Errf(federation.KindValidation, "slug parameter is required"))
		return
	}
	tenantID, err := s.slugs.Resolve(alias)
	if err != nil {
		s.fail(w, req.Action, err)
		return
	}
	s.ok(w, req.Action, map[string]string{"businessId": tenantID})
}

func (s *server) handleGetSlug(w http.ResponseWriter, r *http.Request, req federation.Request) {
	tenantID := r.URL.Query().Get("businessId")
	binding, err := s.slugs.GetSlug(tenantID)
	if err != nil {
		s.fail(w, req.Action, err)
		return
	}
	s.ok(w, req.Action, binding)
}

func (s *server) handleVisitStats(w http.ResponseWriter, r *http.Request, req federation.Request) {
	tenantID := r.URL.Query().Get("businessId")
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	stats, err := s.slugs.VisitStats(tenantID, days)
	if err != nil {
		s.fail(w, req.Action, err)
		return
	}
	s.ok(w, req.Action, stats)
}

func (s *server) handleSetSlug(w http.ResponseWriter, r *http.Request, req federation.Request) {
	var payload struct {
		BusinessID string `json:"businessId"`
		Slug       string `json:"slug"`
	}
	if err := req.DecodeInto(&payload); err != nil {
		s.fail(w, req.Action, err)
		return
	}
	clean, err := s.slugs.SetSlug(payload.BusinessID, payload.Slug)
	if err != nil {
		s.fail(w, req.Action, err)
		return
	}
	s.ok(w, req.Action, map[string]string{"slug": clean})
}

func (s *server) handleGetCacheToken(w http.ResponseWriter, r *http.Request, req federation.Request) {
	token, err := s.token.Current(r.Context())
	if err != nil {
		s.fail(w, req.Action, federation.Errf(federation.KindInternal, "cache token: %v", err))
		return
	}
	s.ok(w, req.Action, map[string]string{"cacheToken": token})
}

func (s *server) handleInvalidateCache(w http.ResponseWriter, r *http.Request, req federation.Request) {
	token, err := s.token.Invalidate(r.Context())
	if err != nil {
		s.fail(w, req.Action, federation.Errf(federation.KindInternal, "cache token: %v", err))
		return
	}
	metrics.CacheInvalidations.Inc()
	s.ok(w, req.Action, map[string]string{"cacheToken": token})
}

func (s *server) handleListEndpoints(w http.ResponseWriter, _ *http.Request, req federation.Request) {
	s.ok(w, req.Action, s.dir.List())
}

func (s *server) handleEndpointHealth(w http.ResponseWriter, _ *http.Request, req federation.Request) {
	if s.monitor == nil {
		s.ok(w, req.Action, map[string]registry.EndpointHealth{})
		return
	}
	s.ok(w, req.Action, s.monitor.Snapshot())
}

func (s *server) handleRegisterEndpoint(w http.ResponseWriter, _ *http.Request, req federation.Request) {
	var desc federation.EndpointDescriptor
	if err := req.DecodeInto(&desc); err != nil {
		s.fail(w, req.Action, err)
		return
	}
	if err := s.dir.Register(desc); err != nil {
		s.fail(w, req.Action, err)
		return
	}
	s.ok(w, req.Action, desc)
}

// handleStoreRegister accepts a store service announcing itself on boot.
func (s *server) handleStoreRegister(w http.ResponseWriter, r *http.Request) {
	var req federation.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		federation.WriteError(w, federation.Errf(federation.KindValidation, "malformed register body: %v", err))
		return
	}
	if err := s.dir.Register(req.Endpoint); err != nil {
		federation.WriteError(w, err)
		return
	}
	federation.WriteData(w, req.Endpoint)
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	federation.WriteData(w, map[string]any{
		"status":    "healthy",
		"endpoints": len(s.dir.List()),
	})
}

// shutdown releases resources that outlive the HTTP server.
func (s *server) shutdown() {
	if s.monitor != nil {
		s.monitor.Stop()
	}
	if closer, ok := s.token.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			s.log.Warn("cache token close failed", zap.Error(err))
		}
	}
}
