package federation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// EndpointDescriptor identifies one tenant store service in the federation.
// Registered by an operator at onboarding and read by the registry and the
// fan-out aggregator. Registration order is significant: it is the merge
// order for aggregated results.
type EndpointDescriptor struct {
	TenantID    string `json:"id"`
	DisplayName string `json:"name"`
	StoreRef    string `json:"storeRef"`
	EndpointURL string `json:"endpointURL"`
	ImageURL    string `json:"imageURL"`
}

type RegisterRequest struct {
	Endpoint EndpointDescriptor `json:"endpoint"`
}

// Request is the body of every mutating or complex-read POST:
// {"action": "...", "data": {...}}.
type Request struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Response is the uniform JSON envelope every handler returns.
// Status is "success" or "error"; exactly one of Data/Error is set.
type Response struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func (r Response) OK() bool { return r.Status == "success" }

var httpClient = &http.Client{Timeout: 10 * time.Second}

func PostJSON(ctx context.Context, url string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
