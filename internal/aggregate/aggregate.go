package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/bazar/internal/federation"
)

// DefaultCallTimeout bounds each individual fan-out sub-request.
const DefaultCallTimeout = 4 * time.Second

// EndpointStatus reports the outcome of one sub-request. Failures are
// absorbed per endpoint and surfaced here; they never abort the overall
// aggregation.
type EndpointStatus struct {
	TenantID string `json:"tenantId"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
}

// ScalarResult is one endpoint's contribution to a scalar aggregation.
// Available distinguishes "endpoint answered zero" from "endpoint
// failed"; callers render the latter as unavailable, never as empty.
type ScalarResult struct {
	TenantID  string `json:"tenantId"`
	Value     any    `json:"value,omitempty"`
	Available bool   `json:"available"`
}

// nameFields is the precedence list folded into the canonical "name"
// field when merging records from endpoints whose schemas spell the
// display-name column differently. First non-empty wins.
var nameFields = []string{"name", "itemName", "productName", "title"}

// Aggregator issues one request per endpoint concurrently and merges the
// results, tolerant of partial failure. It owns no persistent state.
type Aggregator struct {
	client      *http.Client
	callTimeout time.Duration
	log         *zap.Logger
}

// New creates an aggregator with the given per-endpoint timeout.
// Zero means DefaultCallTimeout.
func New(callTimeout time.Duration, log *zap.Logger) *Aggregator {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Aggregator{
		// The transport-level timeout backstops the per-call context.
		client:      &http.Client{Timeout: callTimeout + time.Second},
		callTimeout: callTimeout,
		log:         log,
	}
}

// List performs a list aggregation: every endpoint is asked for the same
// action, and the merged result is the order-preserving concatenation of
// the successful partial results, following the endpoints' order. Not
// sorted, not deduplicated. A failed endpoint contributes nothing to the
// merge and is marked failed in the returned statuses.
//
// The call completes once every sub-request has returned or timed out;
// total latency is bounded by the per-endpoint timeout, not the sum.
// Cancelling ctx abandons all in-flight sub-requests.
func (a *Aggregator) List(ctx context.Context, endpoints []federation.EndpointDescriptor, action string, params url.Values) ([]map[string]any, []EndpointStatus) {
	partials := make([][]map[string]any, len(endpoints))
	statuses := a.dispatch(ctx, endpoints, action, params, func(i int, raw json.RawMessage) error {
		var rows []map[string]any
		if err := json.Unmarshal(raw, &rows); err != nil {
			return fmt.Errorf("malformed payload: %w", err)
		}
		for _, row := range rows {
			foldName(row)
			row["businessId"] = endpoints[i].TenantID
		}
		partials[i] = rows
		return nil
	})

	merged := make([]map[string]any, 0)
	for _, part := range partials {
		merged = append(merged, part...)
	}
	return merged, statuses
}

// Scalar performs a scalar aggregation: one value per endpoint, with a
// distinguishable failure marker instead of a silently coerced zero.
func (a *Aggregator) Scalar(ctx context.Context, endpoints []federation.EndpointDescriptor, action string, params url.Values) ([]ScalarResult, []EndpointStatus) {
	results := make([]ScalarResult, len(endpoints))
	statuses := a.dispatch(ctx, endpoints, action, params, func(i int, raw json.RawMessage) error {
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return fmt.Errorf("malformed payload: %w", err)
		}
		results[i] = ScalarResult{TenantID: endpoints[i].TenantID, Value: value, Available: true}
		return nil
	})

	for i, st := range statuses {
		if !st.OK {
			results[i] = ScalarResult{TenantID: endpoints[i].TenantID, Available: false}
		}
	}
	return results, statuses
}

// dispatch runs one sub-request per endpoint concurrently. Each carries
// its own timeout derived from ctx, so caller cancellation propagates to
// the whole in-flight set. The accept callback parses a successful
// payload into the caller's slot; its error marks the endpoint failed.
func (a *Aggregator) dispatch(ctx context.Context, endpoints []federation.EndpointDescriptor, action string, params url.Values, accept func(i int, raw json.RawMessage) error) []EndpointStatus {
	statuses := make([]EndpointStatus, len(endpoints))

	var wg sync.WaitGroup
	for i, e := range endpoints {
		wg.Add(1)
		go func(i int, e federation.EndpointDescriptor) {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
			defer cancel()

			raw, err := a.call(callCtx, e, action, params)
			if err == nil {
				err = accept(i, raw)
			}
			if err != nil {
				a.log.Warn("fan-out sub-request failed",
					zap.String("tenant", e.TenantID),
					zap.String("action", action),
					zap.Error(err))
				statuses[i] = EndpointStatus{TenantID: e.TenantID, OK: false, Error: err.Error()}
				return
			}
			statuses[i] = EndpointStatus{TenantID: e.TenantID, OK: true}
		}(i, e)
	}
	wg.Wait()

	return statuses
}

// call issues GET {endpoint}/api?action=...&params and unwraps the
// response envelope. Every failure mode (transport error, non-success
// envelope, unparseable body) comes back as an Upstream-tagged error.
func (a *Aggregator) call(ctx context.Context, e federation.EndpointDescriptor, action string, params url.Values) (json.RawMessage, error) {
	q := url.Values{}
	for k, vs := range params {
		q[k] = vs
	}
	q.Set("action", action)
	target := strings.TrimRight(e.EndpointURL, "/") + "/api?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, federation.Errf(federation.KindUpstream, "%s: %v", e.TenantID, err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, federation.Errf(federation.KindUpstream, "%s: %v", e.TenantID, err)
	}
	defer resp.Body.Close()

	var envelope federation.Response
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, federation.Errf(federation.KindUpstream,
			"%s: unparseable response: %v", e.TenantID, err)
	}
	if !envelope.OK() {
		return nil, federation.Errf(federation.KindUpstream,
			"%s: %s", e.TenantID, envelope.Error)
	}
	return envelope.Data, nil
}

// foldName copies the first non-empty of the known display-name fields
// into the canonical "name" key so merged records present uniformly.
func foldName(row map[string]any) {
	for _, field := range nameFields {
		if v, ok := row[field].(string); ok && v != "" {
			row["name"] = v
			return
		}
	}
}
