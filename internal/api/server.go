package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/headwalluk/vulnz-agent/internal/api/middleware"
	"github.com/headwalluk/vulnz-agent/internal/application/sitesync"
	"github.com/headwalluk/vulnz-agent/internal/domain/website"
	"github.com/headwalluk/vulnz-agent/internal/runs"
	"github.com/headwalluk/vulnz-agent/internal/settings"
	"github.com/headwalluk/vulnz-agent/internal/shared/constants"
	sharedErrors "github.com/headwalluk/vulnz-agent/internal/shared/errors"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type WebsiteService interface {
	Overview(ctx context.Context) (sitesync.Overview, error)
}

type SyncService interface {
	SyncNow(ctx context.Context) (runs.Run, error)
}

type SettingsService interface {
	Views() ([]settings.View, error)
	AnyOverridden() bool
	Set(name, value string) error
}

type RunService interface {
	Get(id string) (runs.Run, bool)
	List(limit int) []runs.Run
	Subscribe() (<-chan runs.Run, func())
}

type HealthService interface {
	Check(ctx context.Context) error
	Ready(ctx context.Context) error
}

type Config struct {
	Website     WebsiteService
	Sync        SyncService
	Settings    SettingsService
	Runs        RunService
	Health      HealthService
	Nonces      *NonceManager
	AuthToken   string
	RunsLimit   int
	Logger      *zap.Logger
	CORSOrigins []string // Allowed CORS origins (empty = allow all)
	RateLimit   int      // Requests per second per IP (0 = disabled)
	RateBurst   int      // Burst size for rate limiter
}

type Server struct {
	cfg      Config
	mux      *http.ServeMux
	limiters *rateLimiterMap
}

func NewServer(cfg Config) *Server {
	srv := &Server{
		cfg:      cfg,
		mux:      http.NewServeMux(),
		limiters: newRateLimiterMap(),
	}
	srv.routes()
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// RequestID -> Logging -> RateLimit -> CORS -> Auth -> Handler
	handler := middleware.RequestID(s.withLogging(s.withRateLimit(s.withCORS(s.mux))))
	handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.Handle("/api/v1/health", s.withAuth(http.HandlerFunc(s.handleHealth)))
	s.mux.Handle("/api/v1/ready", s.withAuth(http.HandlerFunc(s.handleReady)))
	s.mux.Handle("/api/v1/website", s.withAuth(http.HandlerFunc(s.handleWebsite)))
	s.mux.Handle("/api/v1/nonce", s.withAuth(http.HandlerFunc(s.handleNonce)))
	s.mux.Handle("/api/v1/sync", s.withAuth(http.HandlerFunc(s.handleSync)))
	s.mux.Handle("/api/v1/settings", s.withAuth(http.HandlerFunc(s.handleSettings)))
	s.mux.Handle("/api/v1/runs", s.withAuth(http.HandlerFunc(s.handleRuns)))
	s.mux.Handle("/api/v1/runs/", s.withAuth(http.HandlerFunc(s.handleRunByID)))
	s.mux.Handle("/api/v1/runs-stream", s.withAuth(http.HandlerFunc(s.handleRunStream)))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	if s.cfg.Health != nil {
		if err := s.cfg.Health.Check(r.Context()); err != nil {
			s.writeError(w, r, http.StatusInternalServerError, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	if s.cfg.Health != nil {
		if err := s.cfg.Health.Ready(r.Context()); err != nil {
			s.writeError(w, r, http.StatusServiceUnavailable, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// WebsiteResponse is the summary screen as JSON.
type WebsiteResponse struct {
	Enabled bool            `json:"enabled"`
	Domain  string          `json:"domain"`
	SiteURL string          `json:"site_url"`
	LastRun *time.Time      `json:"last_run,omitempty"`
	Notice  string          `json:"notice,omitempty"`
	Message string          `json:"message,omitempty"`
	Website *website.Record `json:"website"`
}

func (s *Server) handleWebsite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	if s.cfg.Website == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("website service not available"))
		return
	}

	ov, err := s.cfg.Website.Overview(r.Context())
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	resp := WebsiteResponse{
		Enabled: ov.Enabled,
		Domain:  ov.Site.Domain,
		SiteURL: ov.Site.URL,
		Website: ov.Record,
	}
	if ov.HasLastRun {
		lastRun := ov.LastRun
		resp.LastRun = &lastRun
	}
	if !ov.Enabled {
		resp.Notice = constants.MessageNotEnabled
	}
	switch {
	case ov.Record == nil:
		resp.Message = constants.MessageNoWebsiteData
	case !ov.Record.HasExtensions():
		resp.Message = constants.MessageNoPluginData
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	if s.cfg.Nonces == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("nonces not available"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"nonce": s.cfg.Nonces.Create(constants.SyncNowAction)})
}

// SyncRequest carries the nonce guarding an interactive sync.
type SyncRequest struct {
	Nonce string `json:"nonce"`
}

// SyncResponse mirrors the admin AJAX envelope.
type SyncResponse struct {
	Success bool     `json:"success"`
	Data    SyncData `json:"data"`
}

type SyncData struct {
	Message string `json:"message"`
	RunID   string `json:"run_id,omitempty"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, r)
		return
	}
	if s.cfg.Sync == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("sync service not available"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req SyncRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, r, http.StatusBadRequest, err)
			return
		}
	} else {
		req.Nonce = r.PostFormValue("nonce")
	}

	if !s.cfg.Nonces.Verify(strings.TrimSpace(req.Nonce), constants.SyncNowAction) {
		s.requestLogger(r).Warn("sync_nonce_rejected", zap.Error(sharedErrors.ErrInvalidNonce))
		writeJSON(w, http.StatusForbidden, SyncResponse{Data: SyncData{Message: constants.MessageNonceFailed}})
		return
	}

	run, err := s.cfg.Sync.SyncNow(r.Context())
	if err != nil {
		s.requestLogger(r).Error("sync_failed", zap.String("run_id", run.ID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, SyncResponse{Data: SyncData{Message: constants.MessageSyncFailed, RunID: run.ID}})
		return
	}
	writeJSON(w, http.StatusOK, SyncResponse{Success: true, Data: SyncData{Message: constants.MessageSyncSuccessful, RunID: run.ID}})
}

// SettingsResponse is the settings screen as JSON.
type SettingsResponse struct {
	Settings []settings.View `json:"settings"`
	Notice   string          `json:"notice,omitempty"`
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Settings == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("settings service not available"))
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.writeSettings(w, r)
	case http.MethodPut:
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, r, http.StatusBadRequest, err)
			return
		}

		names := make([]string, 0, len(req))
		for name := range req {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			if err := s.cfg.Settings.Set(name, req[name]); err != nil {
				s.writeError(w, r, settingsErrorStatus(err), err)
				return
			}
		}
		s.writeSettings(w, r)
	default:
		s.methodNotAllowed(w, r)
	}
}

func (s *Server) writeSettings(w http.ResponseWriter, r *http.Request) {
	views, err := s.cfg.Settings.Views()
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	resp := SettingsResponse{Settings: views}
	if s.cfg.Settings.AnyOverridden() {
		resp.Notice = constants.MessageOverridden
	}
	writeJSON(w, http.StatusOK, resp)
}

func settingsErrorStatus(err error) int {
	switch {
	case errors.Is(err, sharedErrors.ErrSettingOverridden):
		return http.StatusConflict
	case errors.Is(err, sharedErrors.ErrUnknownSetting), errors.Is(err, sharedErrors.ErrInvalidSetting):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Runs == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("run history not available"))
		return
	}
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	limit := s.cfg.RunsLimit
	if limit <= 0 {
		limit = 25
	}
	if q := r.URL.Query().Get("limit"); q != "" {
		if parsed, err := strconv.Atoi(q); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	writeJSON(w, http.StatusOK, s.cfg.Runs.List(limit))
}

func (s *Server) handleRunByID(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Runs == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("run history not available"))
		return
	}
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/runs/")
	if id == "" {
		s.writeError(w, r, http.StatusNotFound, errors.New("run ID required"))
		return
	}
	run, ok := s.cfg.Runs.Get(id)
	if !ok {
		s.writeError(w, r, http.StatusNotFound, errors.New("run not found"))
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Runs == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("run history not available"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, r, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}
	updates, unsubscribe := s.cfg.Runs.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	ctx := r.Context()
	for {
		select {
		case run, ok := <-updates:
			if !ok {
				return
			}
			payload, err := json.Marshal(run)
			if err != nil {
				s.requestLogger(r).Error("failed to marshal run", zap.Error(err))
				continue
			}
			if !s.writeStreamChunk(w, []byte("event: run\ndata: ")) {
				return
			}
			if !s.writeStreamChunk(w, payload) {
				return
			}
			if !s.writeStreamChunk(w, []byte("\n\n")) {
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	msg := err.Error()

	// 5xx details stay in the server log.
	if status >= 500 {
		s.requestLogger(r).Error("internal_server_error",
			zap.Error(err),
			zap.Int("status", status),
		)
		msg = "internal server error"
	}

	writeJSON(w, status, map[string]string{"error": msg})
}

// requestLogger creates a logger with request context (request ID, method, path)
func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	if s.cfg.Logger == nil {
		return zap.NewNop()
	}

	requestID := middleware.GetRequestID(r.Context())
	return s.cfg.Logger.With(
		zap.String("request_id", requestID),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func (s *Server) writeStreamChunk(w http.ResponseWriter, data []byte) bool {
	if _, err := w.Write(data); err != nil {
		if s.cfg.Logger != nil {
			s.cfg.Logger.Error("failed to write stream chunk", zap.Error(err))
		}
		return false
	}
	return true
}
