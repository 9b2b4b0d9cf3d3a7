package httpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchDecodesJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	p := New("")
	status, body, err := p.Fetch(context.Background(), http.MethodGet, srv.URL+"/ping", nil, nil, nil, 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("status = %d, want 200", status)
	}
	m, ok := body.(map[string]any)
	if !ok {
		t.Fatalf("body type = %T, want map[string]any", body)
	}
	if m["status"] != "ok" {
		t.Errorf("body[status] = %v, want ok", m["status"])
	}
}

func TestFetchFallsBackToRawTextOnDecodeFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	p := New("")
	status, body, err := p.Fetch(context.Background(), http.MethodGet, srv.URL+"/ping", nil, nil, nil, 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("status = %d, want 200", status)
	}
	if body != "not json" {
		t.Errorf("body = %v, want raw text", body)
	}
}

func TestFetchNonOKStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	p := New("")
	status, body, err := p.Fetch(context.Background(), http.MethodGet, srv.URL+"/fail", nil, nil, nil, 0)
	if err == nil {
		t.Fatal("expected error for non-OK status")
	}
	if status != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", status)
	}
	if body != nil {
		t.Errorf("body = %v, want nil", body)
	}
}

func TestFetchReusesClientPerHost(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	p := New("")
	if _, _, err := p.Fetch(context.Background(), http.MethodGet, srv.URL+"/a", nil, nil, nil, 0); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if _, _, err := p.Fetch(context.Background(), http.MethodGet, srv.URL+"/b", nil, nil, nil, 0); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if len(p.clients) != 1 {
		t.Errorf("clients cached = %d, want 1", len(p.clients))
	}
}
