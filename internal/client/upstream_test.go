package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"model-proxy-go/internal/config"
	"model-proxy-go/internal/metrics"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestUpstreamClient_DoStream(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := NewUpstreamClientWith(srv.Client(), discardLogger(), nil)

	resp, err := c.DoStream(context.Background(), http.MethodGet, srv.URL+"/test", http.Header{}, nil, 0)
	if err != nil {
		t.Fatalf("DoStream() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if resp.Status != "200 OK" {
		t.Errorf("Status = %q, want %q", resp.Status, "200 OK")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(body) != `{"status":"ok"}` {
		t.Errorf("body = %q, want %q", string(body), `{"status":"ok"}`)
	}
}

func TestUpstreamClient_DoStream_HostHeader(t *testing.T) {
	var gotHost, gotHeaderHost string
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Host
		gotHeaderHost = r.Header.Get("Host")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewUpstreamClientWith(srv.Client(), discardLogger(), nil)
	header := http.Header{"Host": {"api.example.test"}, "Accept": {"*/*"}}

	resp, err := c.DoStream(context.Background(), http.MethodGet, srv.URL+"/", header, nil, 0)
	if err != nil {
		t.Fatalf("DoStream() error = %v", err)
	}
	_ = resp.Body.Close()

	if gotHost != "api.example.test" {
		t.Errorf("upstream r.Host = %q, want %q", gotHost, "api.example.test")
	}
	if gotHeaderHost != "" {
		t.Errorf("Host should not appear as a regular header, got %q", gotHeaderHost)
	}
	if header.Get("Host") != "api.example.test" {
		t.Error("DoStream must not mutate the caller's header map")
	}
}

func TestUpstreamClient_DoStream_StreamsBody(t *testing.T) {
	var gotBody string
	var gotLength int64
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotLength = r.ContentLength
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewUpstreamClientWith(srv.Client(), discardLogger(), nil)
	payload := `{"model":"claude"}`

	// io.NopCloser hides the concrete type so NewRequest cannot infer the length.
	body := io.NopCloser(strings.NewReader(payload))
	resp, err := c.DoStream(context.Background(), http.MethodPost, srv.URL+"/v1/messages", http.Header{}, body, int64(len(payload)))
	if err != nil {
		t.Fatalf("DoStream() error = %v", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	if gotBody != payload {
		t.Errorf("upstream body = %q, want %q", gotBody, payload)
	}
	if gotLength != int64(len(payload)) {
		t.Errorf("upstream ContentLength = %d, want %d", gotLength, len(payload))
	}
}

func TestUpstreamClient_DoStream_Error(t *testing.T) {
	cfg := &config.Config{
		Upstream: config.UpstreamConfig{
			TimeoutSeconds:  1,
			IdleConnections: 10,
		},
	}
	c := NewUpstreamClient(cfg, discardLogger(), nil)

	_, err := c.DoStream(context.Background(), http.MethodGet, "https://127.0.0.1:1/nonexistent", http.Header{}, nil, 0)
	if err == nil {
		t.Fatal("DoStream() expected error for unreachable host, got nil")
	}
}

func TestUpstreamClient_DoStream_InvalidURL(t *testing.T) {
	c := NewUpstreamClientWith(http.DefaultClient, discardLogger(), nil)

	_, err := c.DoStream(context.Background(), http.MethodGet, "https://bad host/", http.Header{}, nil, 0)
	if err == nil {
		t.Fatal("DoStream() expected error for invalid URL, got nil")
	}
	if !strings.Contains(err.Error(), "build upstream request") {
		t.Errorf("error = %q, want build error", err)
	}
}

func TestUpstreamClient_DoStream_CanceledContext(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Simulate a slow upstream; the request should be canceled before this completes.
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewUpstreamClientWith(srv.Client(), discardLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	_, err := c.DoStream(ctx, http.MethodGet, srv.URL+"/slow", http.Header{}, nil, 0)
	if err == nil {
		t.Fatal("DoStream() expected error for canceled context, got nil")
	}
}

func TestUpstreamClient_RecordsMetrics(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	m := metrics.New()
	c := NewUpstreamClientWith(srv.Client(), discardLogger(), m)

	resp, err := c.DoStream(context.Background(), http.MethodGet, srv.URL+"/", http.Header{}, nil, 0)
	if err != nil {
		t.Fatalf("DoStream() error = %v", err)
	}
	_ = resp.Body.Close()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	for _, f := range families {
		if f.GetName() != "model_proxy_upstream_responses_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "status_code" && lp.GetValue() == "418" {
					return
				}
			}
		}
	}
	t.Error("expected model_proxy_upstream_responses_total with status_code=418")
}
