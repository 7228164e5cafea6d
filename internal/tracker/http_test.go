package tracker_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"PricePulse/internal/scrape"
	"PricePulse/internal/tracker"
)

func newTestServer(t *testing.T, store tracker.Store, spaIndex string) *httptest.Server {
	t.Helper()

	s := &tracker.Server{
		Store:   store,
		Scraper: scrape.Simulator{}, // no artificial delay in tests
		Log:     zap.NewNop(),
	}
	h := tracker.NewHandler(s, tracker.HTTPDeps{
		Log:      zap.NewNop(),
		App:      "test",
		SPAIndex: spaIndex,
	})

	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, raw
}

func errorMessage(t *testing.T, raw []byte) string {
	t.Helper()
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode error body: %v body=%s", err, raw)
	}
	return body.Message
}

func TestAPI_ProductLifecycle(t *testing.T) {
	ts := newTestServer(t, tracker.NewMemStore(), "")

	var created tracker.Product
	{
		resp, raw := doJSON(t, http.MethodPost, ts.URL+"/api/products", map[string]any{
			"name":          "Mechanical Keyboard",
			"url":           "https://www.amazon.com/mechanical-keyboard",
			"store":         "Amazon",
			"currentPrice":  89.99,
			"targetPrice":   69.99,
			"originalPrice": 119.99,
			"userId":        1,
		})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create status=%d body=%s", resp.StatusCode, raw)
		}
		if err := json.Unmarshal(raw, &created); err != nil {
			t.Fatalf("decode: %v body=%s", err, raw)
		}
		if created.ID == 0 || created.IsBestDeal {
			t.Fatalf("created = %+v", created)
		}
	}

	{
		resp, raw := doJSON(t, http.MethodGet, ts.URL+"/api/products/1", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("get status=%d body=%s", resp.StatusCode, raw)
		}
	}

	{
		resp, raw := doJSON(t, http.MethodPatch, ts.URL+"/api/products/1", map[string]any{
			"currentPrice": 79.99,
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("patch status=%d body=%s", resp.StatusCode, raw)
		}
		var patched tracker.Product
		if err := json.Unmarshal(raw, &patched); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if patched.CurrentPrice != 79.99 {
			t.Fatalf("currentPrice = %v; want 79.99", patched.CurrentPrice)
		}
		if patched.Name != "Mechanical Keyboard" {
			t.Fatalf("patch clobbered unrelated field: %+v", patched)
		}
	}

	{
		resp, _ := doJSON(t, http.MethodDelete, ts.URL+"/api/products/1", nil)
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("delete status=%d", resp.StatusCode)
		}
	}

	{
		resp, _ := doJSON(t, http.MethodGet, ts.URL+"/api/products/1", nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("get after delete status=%d", resp.StatusCode)
		}
	}
}

func TestAPI_CreateProductMissingName(t *testing.T) {
	ts := newTestServer(t, tracker.NewMemStore(), "")

	resp, raw := doJSON(t, http.MethodPost, ts.URL+"/api/products", map[string]any{
		"url":          "https://www.amazon.com/x",
		"store":        "Amazon",
		"currentPrice": 10,
		"targetPrice":  5,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", resp.StatusCode, raw)
	}
	if msg := errorMessage(t, raw); !strings.Contains(msg, "name") {
		t.Fatalf("message %q does not reference the missing field", msg)
	}
}

func TestAPI_PatchMissingProduct(t *testing.T) {
	ts := newTestServer(t, tracker.NewMemStore(), "")

	resp, raw := doJSON(t, http.MethodPatch, ts.URL+"/api/products/9999", map[string]any{
		"currentPrice": 1,
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d body=%s", resp.StatusCode, raw)
	}
}

func TestAPI_DeleteMissingProduct(t *testing.T) {
	ts := newTestServer(t, tracker.NewMemStore(), "")

	resp, _ := doJSON(t, http.MethodDelete, ts.URL+"/api/products/9999", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

func TestAPI_BestDealAcrossStores(t *testing.T) {
	ts := newTestServer(t, tracker.NewMemStore(), "")

	for _, p := range []map[string]any{
		{"name": "Wireless Earbuds", "url": "https://www.amazon.com/earbuds", "store": "Amazon", "currentPrice": 79.99, "targetPrice": 69.99},
		{"name": "Wireless Earbuds", "url": "https://www.flipkart.com/earbuds", "store": "Flipkart", "currentPrice": 69.99, "targetPrice": 69.99},
	} {
		resp, raw := doJSON(t, http.MethodPost, ts.URL+"/api/products", p)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create status=%d body=%s", resp.StatusCode, raw)
		}
	}

	_, raw := doJSON(t, http.MethodGet, ts.URL+"/api/products", nil)
	var products []tracker.Product
	if err := json.Unmarshal(raw, &products); err != nil {
		t.Fatalf("decode: %v body=%s", err, raw)
	}

	var flagged []float64
	for _, p := range products {
		if p.IsBestDeal {
			flagged = append(flagged, p.CurrentPrice)
		}
	}
	if len(flagged) != 1 || flagged[0] != 69.99 {
		t.Fatalf("best deal prices = %v; want exactly [69.99]", flagged)
	}
}

func TestAPI_FeaturedDefaultLimit(t *testing.T) {
	store := tracker.NewMemStore()
	if err := tracker.SeedDemo(context.Background(), store); err != nil {
		t.Fatalf("SeedDemo: %v", err)
	}
	ts := newTestServer(t, store, "")

	_, raw := doJSON(t, http.MethodGet, ts.URL+"/api/featured-products", nil)
	var products []tracker.Product
	if err := json.Unmarshal(raw, &products); err != nil {
		t.Fatalf("decode: %v body=%s", err, raw)
	}
	if len(products) != 3 {
		t.Fatalf("len = %d; featured endpoint defaults to 3", len(products))
	}
	// Highest discount fraction in the demo data.
	if products[0].Name != "Premium Wireless Headphones" {
		t.Fatalf("first featured = %q", products[0].Name)
	}
}

func TestAPI_RecentlyTrackedLimit(t *testing.T) {
	store := tracker.NewMemStore()
	if err := tracker.SeedDemo(context.Background(), store); err != nil {
		t.Fatalf("SeedDemo: %v", err)
	}
	ts := newTestServer(t, store, "")

	_, raw := doJSON(t, http.MethodGet, ts.URL+"/api/recently-tracked?limit=2", nil)
	var products []tracker.Product
	if err := json.Unmarshal(raw, &products); err != nil {
		t.Fatalf("decode: %v body=%s", err, raw)
	}
	if len(products) != 2 {
		t.Fatalf("len = %d; want 2", len(products))
	}
	if products[0].CreatedAt.Before(products[1].CreatedAt) {
		t.Fatalf("createdAt not non-increasing: %v then %v", products[0].CreatedAt, products[1].CreatedAt)
	}
	if products[0].ID != 6 || products[1].ID != 5 {
		t.Fatalf("ids = %d, %d; want newest first (6, 5)", products[0].ID, products[1].ID)
	}
}

func TestAPI_ScrapeUnsupportedStore(t *testing.T) {
	ts := newTestServer(t, tracker.NewMemStore(), "")

	resp, raw := doJSON(t, http.MethodPost, ts.URL+"/api/scrape-url", map[string]any{
		"url": "https://www.ebay.com/x",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", resp.StatusCode, raw)
	}
	if msg := errorMessage(t, raw); !strings.Contains(msg, "supported store") {
		t.Fatalf("message = %q", msg)
	}
}

func TestAPI_ScrapeAmazonShape(t *testing.T) {
	ts := newTestServer(t, tracker.NewMemStore(), "")

	resp, raw := doJSON(t, http.MethodPost, ts.URL+"/api/scrape-url", map[string]any{
		"url": "https://www.amazon.com/deals/wireless-earbuds-pro",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, raw)
	}

	var result scrape.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("decode: %v body=%s", err, raw)
	}
	if result.Name != "Wireless Earbuds Pro" {
		t.Fatalf("name = %q", result.Name)
	}
	if result.Store != "Amazon" {
		t.Fatalf("store = %q", result.Store)
	}
	if result.CurrentPrice < 100 || result.CurrentPrice > 599 {
		t.Fatalf("currentPrice = %v out of range", result.CurrentPrice)
	}
	if result.OriginalPrice < result.CurrentPrice {
		t.Fatalf("originalPrice %v < currentPrice %v", result.OriginalPrice, result.CurrentPrice)
	}
}

func TestAPI_ScrapeMissingURL(t *testing.T) {
	ts := newTestServer(t, tracker.NewMemStore(), "")

	resp, raw := doJSON(t, http.MethodPost, ts.URL+"/api/scrape-url", map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", resp.StatusCode, raw)
	}
	if msg := errorMessage(t, raw); !strings.Contains(msg, "valid URL") {
		t.Fatalf("message = %q", msg)
	}
}

func TestAPI_NotificationPreferences(t *testing.T) {
	store := tracker.NewMemStore()
	ts := newTestServer(t, store, "")

	{
		resp, raw := doJSON(t, http.MethodPost, ts.URL+"/api/notification-preferences", map[string]any{
			"receiveInstantAlerts": true,
		})
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("status=%d body=%s", resp.StatusCode, raw)
		}
		if msg := errorMessage(t, raw); !strings.Contains(msg, "Email") {
			t.Fatalf("message = %q", msg)
		}
	}

	// Works for addresses with no account.
	{
		resp, raw := doJSON(t, http.MethodPost, ts.URL+"/api/notification-preferences", map[string]any{
			"email": "nobody@example.com",
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status=%d body=%s", resp.StatusCode, raw)
		}
	}

	// Persists onto a matching account.
	u, err := store.CreateUser(context.Background(), tracker.UserInput{
		Username: "alice", Password: "hunter2hunter2", Email: "alice@example.com",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	resp, raw := doJSON(t, http.MethodPost, ts.URL+"/api/notification-preferences", map[string]any{
		"email":              "alice@example.com",
		"receiveDailyDigest": true,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, raw)
	}
	got, found, _ := store.GetUserByEmail(context.Background(), u.Email)
	if !found || !got.ReceiveDailyDigest {
		t.Fatalf("preferences not persisted: found=%v user=%+v", found, got)
	}
}

func TestAPI_SignupAndDuplicate(t *testing.T) {
	ts := newTestServer(t, tracker.NewMemStore(), "")

	body := map[string]any{
		"username": "alice",
		"password": "hunter2hunter2",
		"email":    "alice@example.com",
	}

	resp, raw := doJSON(t, http.MethodPost, ts.URL+"/api/users", body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup status=%d body=%s", resp.StatusCode, raw)
	}
	if strings.Contains(string(raw), "password") {
		t.Fatalf("password material leaked in response: %s", raw)
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/users", body)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate signup status=%d", resp.StatusCode)
	}

	resp, raw = doJSON(t, http.MethodPost, ts.URL+"/api/users", map[string]any{
		"username": "bob",
		"password": "short",
		"email":    "bob@example.com",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("short password status=%d", resp.StatusCode)
	}
	if msg := errorMessage(t, raw); !strings.Contains(msg, "password") {
		t.Fatalf("message = %q", msg)
	}
}

func TestAPI_SPAFallback(t *testing.T) {
	dir := t.TempDir()
	index := filepath.Join(dir, "index.html")
	if err := os.WriteFile(index, []byte("<!DOCTYPE html><div id=\"root\"></div>"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}

	ts := newTestServer(t, tracker.NewMemStore(), index)

	resp, raw := doJSON(t, http.MethodGet, ts.URL+"/dashboard", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("spa status=%d", resp.StatusCode)
	}
	if !strings.Contains(string(raw), "root") {
		t.Fatalf("spa body = %s", raw)
	}

	resp, raw = doJSON(t, http.MethodGet, ts.URL+"/api/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("api miss status=%d", resp.StatusCode)
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		t.Fatalf("api miss not JSON: %s", raw)
	}
}
