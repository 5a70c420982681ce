package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/config"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/service"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/store"
)

const shutdownTimeout = 10 * time.Second

// Server is the HTTP control surface of a passive data service.
type Server struct {
	service    service.Service
	hub        *Hub
	configFile string
	addr       string
	logger     *slog.Logger

	profileMu     sync.RWMutex
	activeProfile string
}

// StatusResponse represents the JSON response for status endpoint
type StatusResponse struct {
	Status        string               `json:"status"`
	Message       string               `json:"message,omitempty"`
	Session       *service.SessionInfo `json:"session,omitempty"`
	Config        *ResolvedConfigInfo  `json:"resolved_config"`
	ActiveProfile string               `json:"active_profile"`
}

// ResolvedConfigInfo describes a resolved profile for clients
type ResolvedConfigInfo struct {
	Profile   string         `json:"profile"`
	Section   string         `json:"section"`
	Steps     []string       `json:"steps"`
	OutputDir string         `json:"output_dir"`
	Archive   bool           `json:"archive"`
	Recorders []RecorderInfo `json:"recorders"`
	Inherited []string       `json:"inherited,omitempty"`
}

// RecorderInfo describes one recorder of a profile
type RecorderInfo struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	StartStep string `json:"start_step,omitempty"`
	StopStep  string `json:"stop_step,omitempty"`
}

// GenericResponse represents a generic API response
type GenericResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// New creates a server for svc. hub may be nil, which disables /ws.
func New(svc service.Service, hub *Hub, configFile, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		service:       svc,
		hub:           hub,
		configFile:    configFile,
		addr:          addr,
		logger:        logger,
		activeProfile: svc.GetConfig().Name,
	}
}

// Handler returns the routes, instrumented with otelhttp.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /session/start", s.handleStartSession)
	mux.HandleFunc("POST /session/step", s.handleStep)
	mux.HandleFunc("POST /session/stop", s.handleStopSession)
	mux.HandleFunc("POST /session/cancel", s.handleCancelSession)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /config/profiles", s.handleProfiles)
	mux.HandleFunc("POST /config/select", s.handleSelectProfile)
	mux.HandleFunc("GET /config/details/{profile}", s.handleProfileDetails)
	mux.HandleFunc("GET /api/sessions", s.handleSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSession)
	mux.HandleFunc("GET /api/sessions/{id}/results", s.handleResults)
	mux.HandleFunc("GET /api/sessions/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /api/archives", s.handleArchives)
	mux.HandleFunc("GET /api/archives/{id}", s.handleArchiveDownload)
	if s.hub != nil {
		mux.Handle("GET /ws", s.hub.Handler())
	}
	return otelhttp.NewHandler(mux, "mpd-server")
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if s.hub != nil {
		go s.hub.Run(ctx)
	}

	_, port, _ := net.SplitHostPort(s.addr)
	s.logger.Info("Starting MobilePassiveData server",
		"addr", s.addr,
		"local_url", fmt.Sprintf("http://%s:%s", getLocalIP(), port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", port))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if status, _ := s.service.GetSessionStatus(); status == service.StatusRunning {
		s.logger.Info("Cancelling active session before shutdown")
		_ = s.service.CancelSession()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write([]byte(indexHTML))
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>MobilePassiveData</title>
</head>
<body>
    <h1>MobilePassiveData</h1>
    <h2>API Endpoints:</h2>
    <ul>
        <li>POST /session/start - Start a session (form: profile)</li>
        <li>POST /session/step - Move to a step (form: step, empty for next)</li>
        <li>POST /session/stop - Stop the session</li>
        <li>POST /session/cancel - Cancel the session</li>
        <li>GET /status - Session status</li>
        <li>GET /api/sessions - Recorded sessions</li>
        <li>GET /ws - Live events</li>
    </ul>
</body>
</html>`

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Failed to parse form", "operation", "start_session")
		return
	}
	profile := r.FormValue("profile")

	if profile != "" && profile != s.getActiveProfile() {
		if err := s.service.LoadProfile(profile); err != nil {
			code := statusFor(err)
			if code == http.StatusInternalServerError {
				code = http.StatusBadRequest
			}
			s.sendErrorResponse(w, code, err.Error(), "profile", profile, "operation", "profile_load_for_start")
			return
		}
		s.setActiveProfile(profile)
	}

	info, err := s.service.StartSession(r.Context())
	if info == nil {
		s.sendErrorResponse(w, statusFor(err), fmt.Sprintf("Failed to start session: %v", err),
			"profile", profile, "operation", "start_session")
		return
	}

	response := map[string]any{
		"success": true,
		"message": "Session started",
		"session": info,
	}
	if err != nil {
		// some recorders are running, the others failed
		response["warning"] = err.Error()
	}
	if info.State == service.SessionFailed {
		response["success"] = false
		response["error"] = info.LastError
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(response)
		return
	}
	writeJSON(w, response)
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Failed to parse form", "operation", "step")
		return
	}
	step := r.FormValue("step")

	var err error
	if step == "" {
		step, err = s.service.Next(r.Context())
	} else {
		err = s.service.MoveTo(r.Context(), step)
	}
	if err != nil {
		s.sendErrorResponse(w, statusFor(err), err.Error(), "step", step, "operation", "step")
		return
	}
	writeJSON(w, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Moved to %s", step),
		"step":    step,
	})
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	results, err := s.service.StopSession(r.Context())
	if results == nil {
		s.sendErrorResponse(w, statusFor(err), fmt.Sprintf("Failed to stop session: %v", err), "operation", "stop_session")
		return
	}
	response := map[string]any{
		"success": true,
		"message": "Session stopped",
		"results": results,
	}
	if err != nil {
		response["warning"] = err.Error()
	}
	if _, info := s.service.GetSessionStatus(); info != nil && info.ArchivePath != "" {
		response["archive"] = info.ArchivePath
	}
	writeJSON(w, response)
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CancelSession(); err != nil {
		s.sendErrorResponse(w, statusFor(err), err.Error(), "operation", "cancel_session")
		return
	}
	writeJSON(w, GenericResponse{Success: true, Message: "Session cancelled"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, session := s.service.GetSessionStatus()
	writeJSON(w, StatusResponse{
		Status:        string(status),
		Message:       s.generateStatusMessage(status, session),
		Session:       session,
		Config:        resolvedConfigInfo(s.service.GetConfig()),
		ActiveProfile: s.getActiveProfile(),
	})
}

func resolvedConfigInfo(cfg *config.Config) *ResolvedConfigInfo {
	if cfg == nil {
		return nil
	}
	info := &ResolvedConfigInfo{
		Profile:   cfg.Name,
		Section:   cfg.Section,
		Steps:     cfg.Steps,
		OutputDir: cfg.Output.Directory,
		Archive:   cfg.Output.Archive,
		Recorders: make([]RecorderInfo, 0, len(cfg.Recorders)),
	}
	for _, rec := range cfg.Recorders {
		info.Recorders = append(info.Recorders, RecorderInfo{
			ID:        rec.ID,
			Type:      rec.Type,
			StartStep: rec.StartStepIdentifier,
			StopStep:  rec.StopStepIdentifier,
		})
	}
	if inh := cfg.Inheritance; inh != nil {
		for name, source := range map[string]string{
			"section":          inh.Section,
			"steps":            inh.Steps,
			"output.directory": inh.Output.Directory,
			"output.store":     inh.Output.Store,
			"sources.audio":    inh.Sources.Audio,
			"sources.motion":   inh.Sources.Motion,
			"sources.location": inh.Sources.Location,
		} {
			if source == "inherited" {
				info.Inherited = append(info.Inherited, name)
			}
		}
		sort.Strings(info.Inherited)
	}
	return info
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"profiles": s.getAvailableProfiles(),
		"active":   s.getActiveProfile(),
	})
}

// getAvailableProfiles returns the profile names of the config file
func (s *Server) getAvailableProfiles() []string {
	profiles := []string{}
	if s.configFile == "" {
		return profiles
	}
	if _, err := os.Stat(s.configFile); err != nil {
		return profiles
	}

	v := viper.New()
	v.SetConfigFile(s.configFile)
	if err := v.ReadInConfig(); err != nil {
		slog.Debug("Failed to read config file for profiles", "error", err)
		return profiles
	}
	var rootConfig config.RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		slog.Debug("Failed to unmarshal config for profiles", "error", err)
		return profiles
	}
	for name := range rootConfig.Configs {
		profiles = append(profiles, name)
	}
	sort.Strings(profiles)
	return profiles
}

func (s *Server) handleSelectProfile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Failed to parse form", "operation", "profile_selection")
		return
	}
	profile := r.FormValue("profile")
	if profile == "" {
		s.sendErrorResponse(w, http.StatusBadRequest, "Profile name is required", "operation", "profile_selection")
		return
	}

	if err := s.service.LoadProfile(profile); err != nil {
		s.sendErrorResponse(w, statusFor(err), err.Error(), "profile", profile, "operation", "profile_selection")
		return
	}
	s.setActiveProfile(profile)

	if s.configFile != "" {
		if err := config.UpdateActiveConfig(s.configFile, profile); err != nil {
			s.sendErrorResponse(w, http.StatusInternalServerError,
				fmt.Sprintf("Failed to save profile selection to config file: %v", err),
				"profile", profile, "operation", "profile_selection")
			return
		}
	}

	s.logger.Info("Profile changed", "profile", profile)
	writeJSON(w, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Profile changed to %s", profile),
		"profile": profile,
	})
}

func (s *Server) handleProfileDetails(w http.ResponseWriter, r *http.Request) {
	profile := r.PathValue("profile")
	cfg, err := config.LoadWithProfile(s.configFile, profile)
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest,
			fmt.Sprintf("Failed to load profile '%s': %v", profile, err),
			"profile", profile, "operation", "profile_details")
		return
	}
	writeJSON(w, map[string]any{
		"success": true,
		"profile": profile,
		"config":  resolvedConfigInfo(cfg),
	})
}

func listQuery(r *http.Request) store.ListQuery {
	q := store.ListQuery{}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		q.Limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil {
		q.Offset = v
	}
	return q
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.service.ListSessions(r.Context(), listQuery(r))
	if err != nil {
		s.sendErrorResponse(w, statusFor(err), err.Error(), "operation", "list_sessions")
		return
	}
	if sessions == nil {
		sessions = []store.Session{}
	}
	writeJSON(w, map[string]any{"sessions": sessions, "total_count": len(sessions)})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.service.GetSession(r.Context(), id)
	if err != nil {
		s.sendErrorResponse(w, statusFor(err), err.Error(), "session", id, "operation", "get_session")
		return
	}
	writeJSON(w, sess)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	results, err := s.service.ListResults(r.Context(), id)
	if err != nil {
		s.sendErrorResponse(w, statusFor(err), err.Error(), "session", id, "operation", "list_results")
		return
	}
	if results == nil {
		results = []store.Result{}
	}
	writeJSON(w, map[string]any{"session_id": id, "results": results})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	events, err := s.service.ListEvents(r.Context(), id, listQuery(r))
	if err != nil {
		s.sendErrorResponse(w, statusFor(err), err.Error(), "session", id, "operation", "list_events")
		return
	}
	writeJSON(w, map[string]any{"session_id": id, "events": events})
}

func (s *Server) handleArchives(w http.ResponseWriter, r *http.Request) {
	archives, err := s.service.ListArchives()
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, err.Error(), "operation", "list_archives")
		return
	}
	if archives == nil {
		archives = []service.ArchiveInfo{}
	}
	writeJSON(w, map[string]any{"archives": archives, "total_count": len(archives)})
}

func (s *Server) handleArchiveDownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	// prevent path traversal
	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		http.Error(w, "Invalid archive id", http.StatusBadRequest)
		return
	}

	archives, err := s.service.ListArchives()
	if err != nil {
		http.Error(w, "Error listing archives", http.StatusInternalServerError)
		return
	}
	for _, a := range archives {
		if a.SessionID != id {
			continue
		}
		file, err := os.Open(a.Path)
		if err != nil {
			http.Error(w, "Error opening file", http.StatusInternalServerError)
			return
		}
		defer file.Close()
		w.Header().Set("Content-Type", "application/zstd")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", a.Name))
		http.ServeContent(w, r, a.Name, a.ModTime, file)
		return
	}
	http.Error(w, "Archive not found", http.StatusNotFound)
}

func (s *Server) getActiveProfile() string {
	s.profileMu.RLock()
	defer s.profileMu.RUnlock()
	return s.activeProfile
}

func (s *Server) setActiveProfile(profile string) {
	s.profileMu.Lock()
	defer s.profileMu.Unlock()
	s.activeProfile = profile
}

// generateStatusMessage creates appropriate status messages based on current state
func (s *Server) generateStatusMessage(status service.SessionStatus, session *service.SessionInfo) string {
	switch status {
	case service.StatusRunning:
		if session != nil && session.Step != "" {
			return fmt.Sprintf("Session running - %s", session.Step)
		}
		return "Session running"
	case service.StatusError:
		if errorDetails := s.service.GetLastError(); errorDetails != "" {
			return errorDetails
		}
		if session != nil && session.LastError != "" {
			return session.LastError
		}
		return "An error occurred during the operation"
	}
	return ""
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrSessionActive):
		return http.StatusConflict
	case errors.Is(err, service.ErrNoSession), errors.Is(err, service.ErrSessionFinished):
		return http.StatusConflict
	case errors.Is(err, service.ErrNoMoreSteps), errors.Is(err, service.ErrUnknownStep):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNoStore):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...any) {
	logFields := []any{"error_message", errorMsg, "status_code", statusCode}
	logFields = append(logFields, logContext...)
	s.logger.Error("Sending error response to client", logFields...)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(GenericResponse{Success: false, Error: errorMsg})
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
