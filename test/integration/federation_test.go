package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

// TestFederation runs the registry and two store services as real
// processes and exercises the federation surface end to end.
type TestFederation struct {
	t            *testing.T
	registry     *exec.Cmd
	stores       []*exec.Cmd
	registryAddr string
	storeAddrs   []string
	httpClient   *http.Client
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error"`
}

func NewTestFederation(t *testing.T) *TestFederation {
	return &TestFederation{
		t:            t,
		registryAddr: "http://127.0.0.1:18080", // high ports to avoid conflicts
		storeAddrs: []string{
			"http://127.0.0.1:18081",
			"http://127.0.0.1:18082",
		},
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Start builds the binaries if needed, then launches the registry and
// both stores, waiting for each to answer its health check.
func (tf *TestFederation) Start() error {
	for _, target := range []string{"registry", "store"} {
		bin := filepath.Join("bin", target)
		if _, err := os.Stat(bin); os.IsNotExist(err) {
			tf.t.Logf("Building %s binary...", target)
			if err := exec.Command("go", "build", "-o", bin, "../../cmd/"+target).Run(); err != nil {
				return fmt.Errorf("failed to build %s: %w", target, err)
			}
		}
	}

	tf.t.Log("Starting registry...")
	tf.registry = exec.Command("./bin/registry")
	tf.registry.Env = append(os.Environ(),
		"REGISTRY_ADDR=:18080",
		"REGISTRY_DATA_DIR="+tf.t.TempDir(),
		"REGISTRY_FANOUT_TIMEOUT=2s",
		"REGISTRY_HEALTH_INTERVAL=0s",
	)
	tf.registry.Stdout = os.Stdout
	tf.registry.Stderr = os.Stderr
	if err := tf.registry.Start(); err != nil {
		return fmt.Errorf("failed to start registry: %w", err)
	}
	if err := tf.waitForService(tf.registryAddr + "/health"); err != nil {
		return fmt.Errorf("registry failed to start: %w", err)
	}

	for i, addr := range tf.storeAddrs {
		tf.t.Logf("Starting store %d...", i+1)
		store := exec.Command("./bin/store")
		store.Env = append(os.Environ(),
			fmt.Sprintf("STORE_TENANT_ID=T%d", i+1),
			fmt.Sprintf("STORE_DISPLAY_NAME=Shop %d", i+1),
			fmt.Sprintf("STORE_ADDR=:1808%d", i+1),
			fmt.Sprintf("STORE_PUBLIC_URL=%s", addr),
			fmt.Sprintf("STORE_REGISTRY_URL=%s", tf.registryAddr),
			"STORE_DATA_DIR="+tf.t.TempDir(),
		)
		store.Stdout = os.Stdout
		store.Stderr = os.Stderr
		if err := store.Start(); err != nil {
			return fmt.Errorf("failed to start store %d: %w", i+1, err)
		}
		tf.stores = append(tf.stores, store)

		if err := tf.waitForService(addr + "/health"); err != nil {
			return fmt.Errorf("store %d failed to start: %w", i+1, err)
		}
	}

	// Give stores time to register with the registry
	time.Sleep(500 * time.Millisecond)
	return nil
}

func (tf *TestFederation) Stop() {
	for i, store := range tf.stores {
		if store != nil && store.Process != nil {
			tf.t.Logf("Stopping store %d...", i+1)
			store.Process.Kill()
			store.Wait()
		}
	}
	if tf.registry != nil && tf.registry.Process != nil {
		tf.t.Log("Stopping registry...")
		tf.registry.Process.Kill()
		tf.registry.Wait()
	}
}

func (tf *TestFederation) waitForService(url string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for %s", url)
		default:
			resp, err := tf.httpClient.Get(url)
			if err == nil && resp.StatusCode == http.StatusOK {
				resp.Body.Close()
				return nil
			}
			if resp != nil {
				resp.Body.Close()
			}
			time.Sleep(100 * time.Millisecond)
		}
	}
}

// GET issues a read action against the registry's API.
func (tf *TestFederation) GET(query string) (envelope, error) {
	resp, err := tf.httpClient.Get(tf.registryAddr + "/api?" + query)
	if err != nil {
		return envelope{}, err
	}
	defer resp.Body.Close()
	var env envelope
	return env, json.NewDecoder(resp.Body).Decode(&env)
}

// POST issues a mutating action against the registry's API.
func (tf *TestFederation) POST(action string, data any) (envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return envelope{}, err
	}
	body, err := json.Marshal(map[string]any{"action": action, "data": json.RawMessage(raw)})
	if err != nil {
		return envelope{}, err
	}
	resp, err := tf.httpClient.Post(tf.registryAddr+"/api", "application/json", bytes.NewReader(body))
	if err != nil {
		return envelope{}, err
	}
	defer resp.Body.Close()
	var env envelope
	return env, json.NewDecoder(resp.Body).Decode(&env)
}

func (tf *TestFederation) cacheToken(t *testing.T) string {
	env, err := tf.GET("action=getCacheToken")
	if err != nil || env.Status != "success" {
		t.Fatalf("getCacheToken failed: %v / %s", err, env.Error)
	}
	var payload map[string]string
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("getCacheToken payload: %v", err)
	}
	return payload["cacheToken"]
}

func TestFederationEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tf := NewTestFederation(t)
	if err := tf.Start(); err != nil {
		t.Fatalf("Failed to start federation: %v", err)
	}
	defer tf.Stop()

	t.Run("StoresRegisterOnBoot", func(t *testing.T) {
		env, err := tf.GET("action=listEndpoints")
		if err != nil || env.Status != "success" {
			t.Fatalf("listEndpoints failed: %v / %s", err, env.Error)
		}
		var endpoints []map[string]any
		if err := json.Unmarshal(env.Data, &endpoints); err != nil {
			t.Fatalf("decode endpoints: %v", err)
		}
		if len(endpoints) != 2 {
			t.Fatalf("expected 2 endpoints, got %d", len(endpoints))
		}
		// Registration order is the merge order.
		if endpoints[0]["id"] != "T1" || endpoints[1]["id"] != "T2" {
			t.Fatalf("unexpected endpoint order: %v", endpoints)
		}
	})

	t.Run("MutationsProxyAndInvalidate", func(t *testing.T) {
		before := tf.cacheToken(t)

		for i, tenant := range []string{"T1", "T2"} {
			env, err := tf.POST("addItem", map[string]any{
				"businessId": tenant,
				"itemName":   fmt.Sprintf("Item %d", i+1),
				"category":   "general",
				"price":      float64(i + 1),
			})
			if err != nil || env.Status != "success" {
				t.Fatalf("addItem via proxy failed for %s: %v / %s", tenant, err, env.Error)
			}
		}

		// The fire-and-forget invalidation should land shortly.
		deadline := time.Now().Add(3 * time.Second)
		for tf.cacheToken(t) == before {
			if time.Now().After(deadline) {
				t.Fatal("cache token did not change after mutations")
			}
			time.Sleep(100 * time.Millisecond)
		}
	})

	t.Run("FanoutMergesInRegistrationOrder", func(t *testing.T) {
		env, err := tf.GET("action=getPublicData")
		if err != nil || env.Status != "success" {
			t.Fatalf("getPublicData failed: %v / %s", err, env.Error)
		}
		var payload struct {
			Items []map[string]any `json:"items"`
		}
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if len(payload.Items) != 2 {
			t.Fatalf("expected 2 merged items, got %d", len(payload.Items))
		}
		if payload.Items[0]["businessId"] != "T1" || payload.Items[1]["businessId"] != "T2" {
			t.Fatalf("merge order does not follow registration order: %v", payload.Items)
		}
	})

	t.Run("SlugLifecycle", func(t *testing.T) {
		env, err := tf.POST("setSlug", map[string]string{"businessId": "T1", "slug": "Shop One!"})
		if err != nil || env.Status != "success" {
			t.Fatalf("setSlug failed: %v / %s", err, env.Error)
		}

		env, err = tf.GET("action=resolveSlug&slug=shop-one")
		if err != nil || env.Status != "success" {
			t.Fatalf("resolveSlug failed: %v / %s", err, env.Error)
		}
		var resolved map[string]string
		if err := json.Unmarshal(env.Data, &resolved); err != nil {
			t.Fatalf("decode resolve payload: %v", err)
		}
		if resolved["businessId"] != "T1" {
			t.Fatalf("expected T1, got %q", resolved["businessId"])
		}
	})

	t.Run("FanoutToleratesDeadStore", func(t *testing.T) {
		// Kill store 2 and aggregate again: T1's data still comes back.
		tf.stores[1].Process.Kill()
		tf.stores[1].Wait()
		tf.stores[1] = nil

		env, err := tf.GET("action=getPublicData")
		if err != nil || env.Status != "success" {
			t.Fatalf("getPublicData with dead store failed: %v / %s", err, env.Error)
		}
		var payload struct {
			Items     []map[string]any `json:"items"`
			Endpoints []struct {
				TenantID string `json:"tenantId"`
				OK       bool   `json:"ok"`
			} `json:"endpoints"`
		}
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if len(payload.Items) != 1 || payload.Items[0]["businessId"] != "T1" {
			t.Fatalf("expected only T1's item, got %v", payload.Items)
		}
		for _, st := range payload.Endpoints {
			if st.TenantID == "T2" && st.OK {
				t.Fatal("dead store reported healthy in fan-out statuses")
			}
		}
	})
}
