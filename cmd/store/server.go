package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/dreamware/bazar/internal/cachetoken"
	"github.com/dreamware/bazar/internal/config"
	"github.com/dreamware/bazar/internal/federation"
	"github.com/dreamware/bazar/internal/metrics"
	"github.com/dreamware/bazar/internal/rowstore"
)

// ItemSchema is the tenant catalog header.
var ItemSchema = rowstore.MustSchema("itemId",
	rowstore.FieldDef{Name: "itemId", Default: ""},
	rowstore.FieldDef{Name: "businessId", Default: ""},
	rowstore.FieldDef{Name: "itemName", Default: ""},
	rowstore.FieldDef{Name: "category", Default: ""},
	rowstore.FieldDef{Name: "price", Default: 0.0},
	rowstore.FieldDef{Name: "inStock", Default: false},
	rowstore.FieldDef{Name: "imageURL", Default: ""},
	rowstore.FieldDef{Name: "description", Default: ""},
)

// OrderSchema is the order book header. Order identifiers derive from
// the row count at append time, so the store runs with sequential ids.
var OrderSchema = rowstore.MustSchema("orderId",
	rowstore.FieldDef{Name: "orderId", Default: ""},
	rowstore.FieldDef{Name: "clientId", Default: ""},
	rowstore.FieldDef{Name: "lineItems", Default: nil},
	rowstore.FieldDef{Name: "total", Default: 0.0},
	rowstore.FieldDef{Name: "status", Default: "pending"},
	rowstore.FieldDef{Name: "deliveryAddress", Default: ""},
	rowstore.FieldDef{Name: "paymentMethod", Default: ""},
	rowstore.FieldDef{Name: "createdAt", Default: ""},
)

type actionFunc func(w http.ResponseWriter, r *http.Request, req federation.Request)

type server struct {
	cfg    config.Store
	log    *zap.Logger
	items  *rowstore.Store
	orders *rowstore.Store

	// invalidator fires the cache coherence notice after every
	// successful mutation. Never blocks the mutation's response.
	invalidator *cachetoken.Invalidator

	now func() time.Time

	getActions  map[string]actionFunc
	postActions map[string]actionFunc
}

func newServer(cfg config.Store, log *zap.Logger, items, orders *rowstore.Store, invalidator *cachetoken.Invalidator) *server {
	s := &server{
		cfg:         cfg,
		log:         log,
		items:       items,
		orders:      orders,
		invalidator: invalidator,
		now:         time.Now,
	}

	s.getActions = map[string]actionFunc{
		"getBusinessItems": s.handleListItems,
		"getProducts":      s.handleListItems,
		"getPublicData":    s.handleListItems,
		"getCategories":    s.handleCategories,
		"getProductCount":  s.handleProductCount,
		"getOrders":        s.handleListOrders,
	}
	s.postActions = map[string]actionFunc{
		"addItem":           s.handleAddItem,
		"addProduct":        s.handleAddItem,
		"updateItem":        s.handleUpdateItem,
		"updateProduct":     s.handleUpdateItem,
		"deleteItem":        s.handleDeleteItem,
		"deleteProduct":     s.handleDeleteItem,
		"submitOrder":       s.handleSubmitOrder,
		"updateOrderStatus": s.handleUpdateOrderStatus,
	}
	return s
}

func (s *server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api", s.handleAPI).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return r
}

func (s *server) handleAPI(w http.ResponseWriter, r *http.Request) {
	var req federation.Request
	table := s.getActions
	if r.Method == http.MethodPost {
		table = s.postActions
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			federation.WriteError(w, federation.Errf(federation.KindValidation, "malformed request body: %v", err))
			return
		}
	} else {
		req.Action = r.URL.Query().Get("action")
	}

	if req.Action == "" {
		federation.WriteError(w, federation.Errf(federation.KindValidation, "action parameter is required"))
		return
	}
	handler, ok := table[req.Action]
	if !ok {
		federation.WriteError(w, federation.Errf(federation.KindValidation, "unknown action %q", req.Action))
		return
	}
	handler(w, r, req)
}

func (s *server) ok(w http.ResponseWriter, action string, data any) {
	metrics.RequestsTotal.WithLabelValues(action, "success").Inc()
	federation.WriteData(w, data)
}

func (s *server) fail(w http.ResponseWriter, action string, err error) {
	metrics.RequestsTotal.WithLabelValues(action, "error").Inc()
	federation.WriteError(w, err)
}

// mutated records the outcome of a successful mutation: operation
// counter plus the fire-and-forget cache invalidation notice.
func (s *server) mutated(store, op string) {
	metrics.StoreOperations.WithLabelValues(store, op).Inc()
	s.invalidator.Notify()
}

func (s *server) handleListItems(w http.ResponseWriter, r *http.Request, req federation.Request) {
	// The optional owner filter matches the shared list(tenantFilter?)
	// shape; a single-tenant store usually returns everything.
	if tenant := r.URL.Query().Get("businessId"); tenant != "" {
		s.ok(w, req.Action, s.items.List("businessId", tenant))
		return
	}
	s.ok(w, req.Action, s.items.List("", ""))
}

// handleCategories returns the distinct item categories in first-seen
// order, one row per category.
func (s *server) handleCategories(w http.ResponseWriter, _ *http.Request, req federation.Request) {
	seen := map[string]bool{}
	out := make([]map[string]any, 0)
	for _, rec := range s.items.List("", "") {
		c, _ := rec["category"].(string)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, map[string]any{"category": c, "businessId": s.cfg.TenantID})
	}
	s.ok(w, req.Action, out)
}

func (s *server) handleProductCount(w http.ResponseWriter, _ *http.Request, req federation.Request) {
	s.ok(w, req.Action, s.items.Count())
}

func (s *server) handleListOrders(w http.ResponseWriter, r *http.Request, req federation.Request) {
	if client := r.URL.Query().Get("clientId"); client != "" {
		s.ok(w, req.Action, s.orders.List("clientId", client))
		return
	}
	s.ok(w, req.Action, s.orders.List("", ""))
}

func (s *server) handleAddItem(w http.ResponseWriter, _ *http.Request, req federation.Request) {
	var rec rowstore.Record
	if err := req.DecodeInto(&rec); err != nil {
		s.fail(w, req.Action, err)
		return
	}
	if name, _ := rec["itemName"].(string); name == "" {
		s.fail(w, req.Action, federation.Errf(federation.KindValidation, "itemName is required"))
		return
	}
	rec["businessId"] = s.cfg.TenantID

	id, err := s.items.Append(rec)
	if err != nil {
		s.fail(w, req.Action, err)
		return
	}
	s.mutated("items", "append")
	s.ok(w, req.Action, map[string]string{"itemId": id})
}

func (s *server) handleUpdateItem(w http.ResponseWriter, _ *http.Request, req federation.Request) {
	var partial rowstore.Record
	if err := req.DecodeInto(&partial); err != nil {
		s.fail(w, req.Action, err)
		return
	}
	id, _ := partial["itemId"].(string)
	if id == "" {
		s.fail(w, req.Action, federation.Errf(federation.KindValidation, "itemId is required"))
		return
	}
	delete(partial, "businessId")

	if err := s.items.Update(id, partial); err != nil {
		s.fail(w, req.Action, err)
		return
	}
	s.mutated("items", "update")
	s.ok(w, req.Action, map[string]string{"itemId": id})
}

func (s *server) handleDeleteItem(w http.ResponseWriter, _ *http.Request, req federation.Request) {
	var payload struct {
		ItemID string `json:"itemId"`
	}
	if err := req.DecodeInto(&payload); err != nil {
		s.fail(w, req.Action, err)
		return
	}
	if payload.ItemID == "" {
		s.fail(w, req.Action, federation.Errf(federation.KindValidation, "itemId is required"))
		return
	}
	if err := s.items.Delete(payload.ItemID); err != nil {
		s.fail(w, req.Action, err)
		return
	}
	s.mutated("items", "delete")
	s.ok(w, req.Action, map[string]string{"itemId": payload.ItemID})
}

func (s *server) handleSubmitOrder(w http.ResponseWriter, _ *http.Request, req federation.Request) {
	var rec rowstore.Record
	if err := req.DecodeInto(&rec); err != nil {
		s.fail(w, req.Action, err)
		return
	}
	if items, ok := rec["lineItems"].([]any); !ok || len(items) == 0 {
		s.fail(w, req.Action, federation.Errf(federation.KindValidation, "lineItems must be a non-empty list"))
		return
	}
	delete(rec, "orderId") // ids are always generated here
	rec["createdAt"] = s.now().UTC().Format(time.RFC3339)

	id, err := s.orders.Append(rec)
	if err != nil {
		s.fail(w, req.Action, err)
		return
	}
	s.mutated("orders", "append")
	s.ok(w, req.Action, map[string]string{"orderId": id})
}

func (s *server) handleUpdateOrderStatus(w http.ResponseWriter, _ *http.Request, req federation.Request) {
	var payload struct {
		OrderID string `json:"orderId"`
		Status  string `json:"status"`
	}
	if err := req.DecodeInto(&payload); err != nil {
		s.fail(w, req.Action, err)
		return
	}
	if payload.OrderID == "" || payload.Status == "" {
		s.fail(w, req.Action, federation.Errf(federation.KindValidation, "orderId and status are required"))
		return
	}
	if err := s.orders.Update(payload.OrderID, rowstore.Record{"status": payload.Status}); err != nil {
		s.fail(w, req.Action, err)
		return
	}
	s.mutated("orders", "update")
	s.ok(w, req.Action, map[string]string{"orderId": payload.OrderID, "status": payload.Status})
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	federation.WriteData(w, map[string]any{
		"status":   "healthy",
		"tenantId": s.cfg.TenantID,
	})
}

// handleInfo reports store shapes and operation counters for debugging
// and monitoring.
func (s *server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	federation.WriteData(w, map[string]any{
		"tenantId": s.cfg.TenantID,
		"stores":   []rowstore.Info{s.items.Info(), s.orders.Info()},
	})
}
