package api

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/clearclaim/claim-agent/agent"
	"github.com/clearclaim/claim-agent/config"
	"github.com/clearclaim/claim-agent/search"
)

type stubSearcher struct {
	results []search.Result
}

func (s *stubSearcher) Search(_ context.Context, _ string, _ int) ([]search.Result, error) {
	return s.results, nil
}

var _ agent.Searcher = (*stubSearcher)(nil)

func testServer(searcher agent.Searcher) *Server {
	logger := log.New(io.Discard, "", 0)
	cfg := config.Config{MaxChunks: 10}
	cfg.Embeddings.Provider = config.ProviderMock
	orch := agent.New(searcher, logger)
	return New(cfg, logger, orch, nil, nil, nil, nil)
}

func TestQueryEndpoint(t *testing.T) {
	server := testServer(&stubSearcher{results: []search.Result{
		{Text: "Knee surgery is covered and eligible for reimbursement.", Document: "policy.pdf", Score: 0.9},
	}})

	body := `{"query": "46-year-old male, knee surgery in Pune, 3-month-old insurance policy"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(body))
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var result agent.Result
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.FinalResponse.Decision == "" {
		t.Fatal("expected a decision in the response")
	}
	if len(result.Steps) == 0 {
		t.Fatal("expected trace steps in the response")
	}
	if result.Metadata == nil {
		t.Fatal("expected metadata by default")
	}
}

func TestQueryEndpointRejectsEmptyQuery(t *testing.T) {
	server := testServer(&stubSearcher{})

	req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"query": "  "}`))
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.Error == "" {
		t.Fatal("expected an error message")
	}
}

func TestQueryEndpointRejectsUnknownFields(t *testing.T) {
	server := testServer(&stubSearcher{})

	req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"question": "covered?"}`))
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestQueryEndpointCanOmitMetadata(t *testing.T) {
	server := testServer(&stubSearcher{})

	body := `{"query": "knee surgery claim", "include_metadata": false}`
	req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(body))
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, ok := raw["metadata"]; ok {
		t.Fatal("expected metadata to be omitted")
	}
}

func TestPipelineStatusEndpoint(t *testing.T) {
	server := testServer(&stubSearcher{})

	req := httptest.NewRequest(http.MethodGet, "/v1/pipeline/status", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var status agent.PipelineStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if status.StageCount != 4 {
		t.Fatalf("expected 4 stages, got %d", status.StageCount)
	}
}

func TestHealthWithoutDatabase(t *testing.T) {
	server := testServer(&stubSearcher{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Fatalf("expected healthy status, got %q", resp.Status)
	}
	if resp.Services["database"] != "not_configured" {
		t.Fatalf("expected not_configured database, got %q", resp.Services["database"])
	}
}

func TestSessionEndpointsWithoutHistory(t *testing.T) {
	server := testServer(&stubSearcher{})

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(`{"session_name": "claims"}`))
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 without history store, got %d", w.Code)
	}
}

func TestClearRequiresConfirmation(t *testing.T) {
	server := testServer(&stubSearcher{})
	server.store = &clearTracker{}

	req := httptest.NewRequest(http.MethodPost, "/v1/clear", strings.NewReader(`{"confirm": false}`))
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without confirmation, got %d", w.Code)
	}
}

type clearTracker struct {
	cleared bool
}

func (c *clearTracker) Search(context.Context, string, int) ([]search.Result, error) {
	return nil, nil
}

func (c *clearTracker) Index(context.Context, search.Document) error { return nil }

func (c *clearTracker) Clear(context.Context) error {
	c.cleared = true
	return nil
}

var _ search.Store = (*clearTracker)(nil)

func TestClearEndpoint(t *testing.T) {
	server := testServer(&stubSearcher{})
	tracker := &clearTracker{}
	server.store = tracker

	req := httptest.NewRequest(http.MethodPost, "/v1/clear", strings.NewReader(`{"confirm": true}`))
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !tracker.cleared {
		t.Fatal("expected the store to be cleared")
	}
}
