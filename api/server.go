// Package api exposes HTTP handlers for the claim query pipeline and
// its peripheral operations: chat sessions, ingestion, and pipeline
// introspection.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clearclaim/claim-agent/agent"
	"github.com/clearclaim/claim-agent/config"
	"github.com/clearclaim/claim-agent/history"
	"github.com/clearclaim/claim-agent/ingestion"
	"github.com/clearclaim/claim-agent/search"
)

type Server struct {
	cfg      config.Config
	logger   *log.Logger
	orch     *agent.Orchestrator
	history  *history.Store
	ingestor *ingestion.Service
	store    search.Store
	pool     *pgxpool.Pool
	handler  http.Handler
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type queryRequest struct {
	Query           string `json:"query"`
	SessionID       string `json:"session_id"`
	MaxChunks       int    `json:"max_chunks"`
	IncludeMetadata *bool  `json:"include_metadata"`
}

type sessionRequest struct {
	Name string `json:"session_name"`
}

type ingestRequest struct {
	Dir string `json:"dir"`
}

type clearRequest struct {
	Confirm bool `json:"confirm"`
}

type healthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// New constructs a Server over explicitly injected collaborators. The
// history store, ingestor, and pool may be nil in reduced deployments;
// the matching endpoints then report failure without crashing.
func New(cfg config.Config, logger *log.Logger, orch *agent.Orchestrator, historyStore *history.Store, ingestor *ingestion.Service, store search.Store, pool *pgxpool.Pool) *Server {
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		orch:     orch,
		history:  historyStore,
		ingestor: ingestor,
		store:    store,
		pool:     pool,
	}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /v1/query", s.handleQuery)
	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("GET /v1/sessions/{id}/messages", s.handleSessionMessages)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /v1/pipeline/status", s.handlePipelineStatus)
	mux.HandleFunc("GET /v1/pipeline/validate", s.handlePipelineValidate)
	mux.HandleFunc("POST /v1/ingest", s.handleIngest)
	mux.HandleFunc("POST /v1/clear", s.handleClear)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	services := map[string]string{}

	database := "not_configured"
	if s.pool != nil {
		if err := s.pool.Ping(r.Context()); err != nil {
			database = "unhealthy"
		} else {
			database = "healthy"
		}
	}
	services["database"] = database

	if s.store != nil {
		services["search"] = "configured"
	} else {
		services["search"] = "not_configured"
	}
	services["embeddings"] = s.cfg.Embeddings.Provider

	status := "healthy"
	if database == "unhealthy" {
		status = "unhealthy"
	}

	s.writeJSON(w, http.StatusOK, healthResponse{Status: status, Services: services})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("query is required"))
		return
	}

	maxChunks := req.MaxChunks
	if maxChunks <= 0 {
		maxChunks = s.cfg.MaxChunks
	}
	includeMetadata := true
	if req.IncludeMetadata != nil {
		includeMetadata = *req.IncludeMetadata
	}

	var sessionID uuid.UUID
	if req.SessionID != "" {
		parsed, err := uuid.Parse(req.SessionID)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid session id: %w", err))
			return
		}
		if s.history == nil {
			s.writeError(w, http.StatusInternalServerError, fmt.Errorf("chat history is not configured"))
			return
		}
		if _, err := s.history.GetSession(r.Context(), parsed); err != nil {
			s.writeSessionError(w, err)
			return
		}
		sessionID = parsed
	}

	result := s.orch.Run(r.Context(), req.Query, maxChunks, includeMetadata)

	if sessionID != uuid.Nil {
		meta := history.ExchangeMetadata{
			Decision:         string(result.FinalResponse.Decision),
			ConfidenceScore:  result.FinalResponse.ConfidenceScore,
			ProcessingTimeMs: result.TotalTimeMs,
			SourcesCount:     len(result.FinalResponse.Sources),
			AgentStepsCount:  len(result.Steps),
		}
		if err := s.history.SaveExchange(r.Context(), sessionID, req.Query, result.FinalResponse.Justification, meta); err != nil {
			// The pipeline result is already computed; history is a
			// side effect and its failure must not lose the answer.
			s.logger.Printf("save exchange: %v", err)
		}
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("chat history is not configured"))
		return
	}

	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("session_name is required"))
		return
	}

	session, err := s.history.CreateSession(r.Context(), req.Name)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("create session: %w", err))
		return
	}
	s.writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("chat history is not configured"))
		return
	}

	sessions, err := s.history.ListSessions(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("list sessions: %w", err))
		return
	}
	s.writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionID(w, r)
	if !ok {
		return
	}

	session, err := s.history.GetSession(r.Context(), sessionID)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleSessionMessages(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionID(w, r)
	if !ok {
		return
	}

	messages, err := s.history.Messages(r.Context(), sessionID)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionID(w, r)
	if !ok {
		return
	}

	if err := s.history.DeleteSession(r.Context(), sessionID); err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "chat session deleted"})
}

func (s *Server) handlePipelineStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.orch.Status())
}

func (s *Server) handlePipelineValidate(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.orch.Validate(r.Context()))
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.ingestor == nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("ingestion is not configured"))
		return
	}

	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	dir := strings.TrimSpace(req.Dir)
	if dir == "" {
		dir = s.cfg.DataDir
	}

	if err := s.ingestor.IngestDirectory(r.Context(), dir); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("ingestion failed: %w", err))
		return
	}
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ingestion complete"})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("search store is not configured"))
		return
	}

	var req clearRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if !req.Confirm {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("confirm must be true to clear data"))
		return
	}

	if err := s.store.Clear(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("clear indexed documents: %w", err))
		return
	}
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "indexed policy documents cleared"})
}

func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	if s.history == nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("chat history is not configured"))
		return uuid.Nil, false
	}

	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid session id: %w", err))
		return uuid.Nil, false
	}
	return sessionID, true
}

func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, history.ErrSessionNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.writeError(w, http.StatusInternalServerError, err)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Printf("api error (%d): %v", status, err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}
