// Package api exposes the vault over HTTP for the UI layer. Authentication
// happens upstream; every API request must carry an identity.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/TheEntropyCollective/mediavault/pkg/common/vaulterr"
	"github.com/TheEntropyCollective/mediavault/pkg/infrastructure/logging"
	"github.com/TheEntropyCollective/mediavault/pkg/metadata"
	"github.com/TheEntropyCollective/mediavault/pkg/vault"
)

// DefaultMaxUploadBytes bounds a single upload body when none is configured.
const DefaultMaxUploadBytes = 256 << 20

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Identity       IdentityProvider
	MaxUploadBytes int64
	RateLimit      *RateLimitConfig
	Logger         *logging.Logger
}

// Server serves the vault API.
type Server struct {
	vault     *vault.Vault
	identity  IdentityProvider
	limiter   *RateLimiter
	maxUpload int64
	logger    *logging.Logger
	router    *mux.Router
}

// NewServer builds the router for v.
func NewServer(v *vault.Vault, config ServerConfig) (*Server, error) {
	if v == nil {
		return nil, fmt.Errorf("vault is required")
	}
	if config.Identity == nil {
		return nil, fmt.Errorf("identity provider is required")
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if config.Logger == nil {
		config.Logger = logging.GetGlobalLogger()
	}

	s := &Server{
		vault:     v,
		identity:  config.Identity,
		maxUpload: config.MaxUploadBytes,
		logger:    config.Logger.WithComponent("api"),
	}
	if config.RateLimit != nil {
		s.limiter = NewRateLimiter(*config.RateLimit)
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.logRequests)

	router.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	// Unidentified callers are limited by address before they are rejected.
	api.Use(s.identify)
	if s.limiter != nil {
		api.Use(s.limiter.Middleware)
	}
	api.Use(s.requireIdentity)

	api.HandleFunc("/resources", s.handleListResources).Methods("GET")
	api.HandleFunc("/resources", s.handleCreateResource).Methods("POST")
	api.HandleFunc("/resources/search", s.handleSearchResources).Methods("GET")
	api.HandleFunc("/resources/{id}", s.handleGetResource).Methods("GET")
	api.HandleFunc("/resources/{id}", s.handleDeleteResource).Methods("DELETE")
	api.HandleFunc("/resources/{id}/media", s.handleFetchMedia).Methods("GET")
	api.HandleFunc("/resources/{id}/media", s.handleUploadMedia).Methods("POST")
	api.HandleFunc("/media/{recordID}", s.handleDeleteMedia).Methods("DELETE")
	api.HandleFunc("/resources/{id}/grants", s.handleListGrants).Methods("GET")
	api.HandleFunc("/resources/{id}/grants/{userID}", s.handleGrantAccess).Methods("PUT")
	api.HandleFunc("/resources/{id}/grants/{userID}", s.handleRevokeAccess).Methods("DELETE")

	return router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close releases background resources.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Shutdown()
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("MediaVault API listening on %s", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.WithFields(map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("request served")
	})
}

// identify attaches the caller's identity, when there is one, to the request
// context.
func (s *Server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identity, ok := s.identity.Identify(r); ok {
			r = r.WithContext(withIdentity(r.Context(), identity))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFrom(r.Context()); !ok {
			sendJSON(w, http.StatusUnauthorized, APIResponse{Success: false, Error: "authentication required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// mediaRecordView is what clients see of a stored record: no object key and
// no key material.
type mediaRecordView struct {
	ID          string    `json:"id"`
	ResourceID  string    `json:"resource_id"`
	ContentType string    `json:"content_type"`
	ByteLength  int64     `json:"byte_length"`
	Order       int       `json:"order"`
	CreatedAt   time.Time `json:"created_at"`
}

func recordView(record *metadata.ObjectRecord) mediaRecordView {
	return mediaRecordView{
		ID:          record.ID,
		ResourceID:  record.ResourceID,
		ContentType: record.Metadata.OriginalContentType,
		ByteLength:  record.Metadata.OriginalByteLength,
		Order:       record.Order,
		CreatedAt:   record.CreatedAt,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.vault.Health(r.Context()); err != nil {
		s.logger.WithError(err).Warn("health check failed")
		sendJSON(w, http.StatusServiceUnavailable, APIResponse{Success: false, Error: "unhealthy"})
		return
	}
	sendData(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListResources(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())
	resources, err := s.vault.ListAccessibleResources(r.Context(), identity)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	sendData(w, http.StatusOK, resources)
}

func (s *Server) handleCreateResource(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	var params vault.NewResource
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&params); err != nil {
		s.sendError(w, r, fmt.Errorf("invalid resource body: %w", vaulterr.ErrInvalidInput))
		return
	}

	resource, err := s.vault.CreateResource(r.Context(), identity, params)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	sendData(w, http.StatusCreated, resource)
}

func (s *Server) handleSearchResources(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())
	query := r.URL.Query().Get("q")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.sendError(w, r, fmt.Errorf("invalid limit: %w", vaulterr.ErrInvalidInput))
			return
		}
		limit = n
	}

	resources, err := s.vault.SearchResources(r.Context(), identity, query, limit)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	sendData(w, http.StatusOK, resources)
}

func (s *Server) handleGetResource(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())
	resource, err := s.vault.GetResource(r.Context(), identity, mux.Vars(r)["id"])
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	sendData(w, http.StatusOK, resource)
}

func (s *Server) handleDeleteResource(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())
	if err := s.vault.DeleteResource(r.Context(), identity, mux.Vars(r)["id"]); err != nil {
		s.sendError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFetchMedia(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())
	set, err := s.vault.FetchMedia(r.Context(), identity, mux.Vars(r)["id"])
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	sendData(w, http.StatusOK, set)
}

func (s *Server) handleUploadMedia(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	body := http.MaxBytesReader(w, r.Body, s.maxUpload)
	data, err := io.ReadAll(body)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	record, err := s.vault.UploadMedia(r.Context(), identity, mux.Vars(r)["id"], data, r.Header.Get("Content-Type"))
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	sendData(w, http.StatusCreated, recordView(record))
}

func (s *Server) handleDeleteMedia(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())
	if err := s.vault.DeleteMedia(r.Context(), identity, mux.Vars(r)["recordID"]); err != nil {
		s.sendError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListGrants(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())
	grants, err := s.vault.ListGrants(r.Context(), identity, mux.Vars(r)["id"])
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	sendData(w, http.StatusOK, grants)
}

// grantRequest is the body of PUT /resources/{id}/grants/{userID}
type grantRequest struct {
	CanView   bool `json:"can_view"`
	CanUpload bool `json:"can_upload"`
}

func (s *Server) handleGrantAccess(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())
	vars := mux.Vars(r)

	var req grantRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4<<10)).Decode(&req); err != nil {
		s.sendError(w, r, fmt.Errorf("invalid grant body: %w", vaulterr.ErrInvalidInput))
		return
	}

	grant, err := s.vault.GrantAccess(r.Context(), identity, vars["id"], vars["userID"], req.CanView, req.CanUpload)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	if grant == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	sendData(w, http.StatusOK, grant)
}

func (s *Server) handleRevokeAccess(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())
	vars := mux.Vars(r)
	if err := s.vault.RevokeAccess(r.Context(), identity, vars["id"], vars["userID"]); err != nil {
		s.sendError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
