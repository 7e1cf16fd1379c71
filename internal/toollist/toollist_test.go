package toollist

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchFiltersWebhookNodes(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/workflows" {
			t.Errorf("path = %q, want /api/v1/workflows", r.URL.Path)
		}
		if r.URL.Query().Get("active") != "true" {
			t.Errorf("active query = %q, want true", r.URL.Query().Get("active"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"data": [
				{
					"id": "1", "name": "Invoice Lookup", "active": true,
					"nodes": [
						{"type": "n8n-nodes-base.webhook", "parameters": {"httpMethod": "POST", "path": "invoice-lookup"}},
						{"type": "n8n-nodes-base.set", "parameters": {}}
					]
				},
				{
					"id": "2", "name": "No Webhook", "active": true,
					"nodes": [{"type": "n8n-nodes-base.webhook", "parameters": {"path": "missing-method"}}]
				}
			],
			"nextCursor": null
		}`))
	}))
	defer srv.Close()

	client := NewClient(srv.Client(), srv.URL)
	tools, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(tools) != 1 {
		t.Fatalf("len(tools) = %d, want 1", len(tools))
	}
	if tools[0].Name != "Invoice Lookup" || tools[0].WebhookPath != "invoice-lookup" {
		t.Fatalf("tool = %+v", tools[0])
	}
}

func TestFetchPropagatesHTTPErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.Client(), srv.URL)
	if _, err := client.Fetch(context.Background()); err == nil {
		t.Fatalf("Fetch() error = nil, want http error")
	}
}

func TestFetchUnconfigured(t *testing.T) {
	t.Parallel()

	client := NewClient(nil, "")
	if _, err := client.Fetch(context.Background()); err == nil {
		t.Fatalf("Fetch() error = nil, want unconfigured error")
	}
}
