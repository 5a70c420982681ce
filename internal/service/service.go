package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/archive"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/audiosession"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/config"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/observe"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/permission"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/result"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/store"
)

// ErrNoStore is returned by the history operations when no session store
// is configured.
var ErrNoStore = errors.New("session store is disabled")

// Service drives passive data sessions for the active profile.
type Service interface {
	// Session operations
	StartSession(ctx context.Context) (*SessionInfo, error)
	MoveTo(ctx context.Context, step string) error
	Next(ctx context.Context) (string, error)
	StopSession(ctx context.Context) (*result.Collection, error)
	CancelSession() error
	GetSessionStatus() (SessionStatus, *SessionInfo)

	// Configuration operations
	LoadProfile(profile string) error
	GetConfig() *config.Config

	// History operations
	ListSessions(ctx context.Context, query store.ListQuery) ([]store.Session, error)
	GetSession(ctx context.Context, id string) (store.Session, error)
	ListResults(ctx context.Context, sessionID string) ([]store.Result, error)
	ListEvents(ctx context.Context, sessionID string, query store.ListQuery) ([]observe.Event, error)
	ListArchives() ([]ArchiveInfo, error)

	GetLastError() string
}

// SessionStatus is the coarse state reported to clients.
type SessionStatus string

const (
	StatusStandby SessionStatus = "STANDBY"
	StatusRunning SessionStatus = "RUNNING"
	StatusError   SessionStatus = "ERROR"
)

// ArchiveInfo describes a bundled session on disk.
type ArchiveInfo struct {
	Name         string    `json:"name"`
	SessionID    string    `json:"session_id"`
	Section      string    `json:"section"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	SizeHuman    string    `json:"size_human"`
	ModTime      time.Time `json:"mod_time"`
	ModTimeHuman string    `json:"mod_time_human"`
	DownloadURL  string    `json:"download_url"`
}

type Options struct {
	Store *store.Store
	Sink  observe.Sink

	Factory Factory
	// Sources defaults to NewSources over the profile's sources.
	Sources func(cfg *config.Config) Sources

	Permissions  *permission.Registry
	AudioSession *audiosession.Controller
	Logger       *slog.Logger
}

// PassiveDataService runs one session at a time.
type PassiveDataService struct {
	cfg        *config.Config
	configFile string
	opts       Options
	logger     *slog.Logger

	mu      sync.Mutex
	session *Session

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New creates a service for cfg. configFile is used to reload profiles.
func New(cfg *config.Config, configFile string, opts Options) *PassiveDataService {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Sources == nil {
		opts.Sources = func(cfg *config.Config) Sources { return NewSources(cfg.Sources) }
	}
	if opts.AudioSession == nil {
		opts.AudioSession = audiosession.NewController(audiosession.LogSession{Logger: opts.Logger}, opts.Logger)
	}
	return &PassiveDataService{
		cfg:        cfg,
		configFile: configFile,
		opts:       opts,
		logger:     opts.Logger,
	}
}

func (s *PassiveDataService) sink() observe.Sink {
	var sinks []observe.Sink
	if s.opts.Store != nil {
		sinks = append(sinks, s.opts.Store)
	}
	if s.opts.Sink != nil {
		sinks = append(sinks, s.opts.Sink)
	}
	return observe.NewMultiSink(sinks...)
}

// StartSession creates a session for the active profile and starts the
// recorders due at its first step.
func (s *PassiveDataService) StartSession(ctx context.Context) (*SessionInfo, error) {
	s.mu.Lock()
	if s.session != nil && isActive(s.session.State()) {
		s.mu.Unlock()
		return nil, ErrSessionActive
	}
	cfg := s.cfg
	s.clearLastError()

	sess, err := NewSession(cfg, SessionOptions{
		Factory:      s.opts.Factory,
		Sources:      s.opts.Sources(cfg),
		Permissions:  s.opts.Permissions,
		AudioSession: s.opts.AudioSession,
		Sink:         s.sink(),
		Store:        s.opts.Store,
		Logger:       s.logger,
	})
	if err != nil {
		s.mu.Unlock()
		s.setLastError(fmt.Sprintf("Failed to create session: %v", err))
		return nil, err
	}
	s.session = sess
	s.mu.Unlock()

	slog.Debug("Service.StartSession called", "profile", cfg.Name, "session", sess.ID())
	if err := sess.Start(ctx); err != nil {
		s.setLastError(fmt.Sprintf("Failed to start session: %v", err))
		return sess.Info(), err
	}
	return sess.Info(), nil
}

func isActive(state SessionState) bool {
	return state == SessionCreated || state == SessionRunning || state == SessionStopping
}

func (s *PassiveDataService) current() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil || !isActive(s.session.State()) {
		return nil, ErrNoSession
	}
	return s.session, nil
}

// MoveTo moves the active session to step.
func (s *PassiveDataService) MoveTo(ctx context.Context, step string) error {
	sess, err := s.current()
	if err != nil {
		return err
	}
	if err := sess.MoveTo(ctx, step); err != nil {
		s.setLastError(fmt.Sprintf("Failed to move to step '%s': %v", step, err))
		return err
	}
	return nil
}

// Next moves the active session to the following step and returns it.
func (s *PassiveDataService) Next(ctx context.Context) (string, error) {
	sess, err := s.current()
	if err != nil {
		return "", err
	}
	step, err := sess.Next(ctx)
	if err != nil && !errors.Is(err, ErrNoMoreSteps) {
		s.setLastError(fmt.Sprintf("Failed to move to step '%s': %v", step, err))
	}
	return step, err
}

// StopSession stops the active session and returns its results.
func (s *PassiveDataService) StopSession(ctx context.Context) (*result.Collection, error) {
	sess, err := s.current()
	if err != nil {
		return nil, err
	}
	res, err := sess.Stop(ctx)
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to stop session: %v", err))
	} else {
		s.clearLastError()
	}
	return res, err
}

// CancelSession cancels the active session and discards its results.
func (s *PassiveDataService) CancelSession() error {
	sess, err := s.current()
	if err != nil {
		return err
	}
	sess.Cancel()
	return nil
}

// GetSessionStatus returns the coarse status and a snapshot of the latest
// session, if any.
func (s *PassiveDataService) GetSessionStatus() (SessionStatus, *SessionInfo) {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if sess == nil {
		return StatusStandby, nil
	}

	info := sess.Info()
	switch info.State {
	case SessionCreated, SessionRunning, SessionStopping:
		return StatusRunning, info
	case SessionFailed:
		return StatusError, info
	}
	return StatusStandby, info
}

// LoadProfile switches to another configuration profile. It fails while a
// session is active.
func (s *PassiveDataService) LoadProfile(profile string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil && isActive(s.session.State()) {
		return ErrSessionActive
	}

	newCfg, err := config.LoadWithProfile(s.configFile, profile)
	if err != nil {
		return fmt.Errorf("failed to load profile '%s': %w", profile, err)
	}
	s.cfg = newCfg
	s.logger.Info("Profile loaded", "profile", newCfg.Name, "recorders", len(newCfg.Configurations))
	return nil
}

func (s *PassiveDataService) GetConfig() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *PassiveDataService) ListSessions(ctx context.Context, query store.ListQuery) ([]store.Session, error) {
	if s.opts.Store == nil {
		return nil, ErrNoStore
	}
	return s.opts.Store.ListSessions(ctx, query)
}

func (s *PassiveDataService) GetSession(ctx context.Context, id string) (store.Session, error) {
	if s.opts.Store == nil {
		return store.Session{}, ErrNoStore
	}
	return s.opts.Store.GetSession(ctx, id)
}

func (s *PassiveDataService) ListResults(ctx context.Context, sessionID string) ([]store.Result, error) {
	if s.opts.Store == nil {
		return nil, ErrNoStore
	}
	return s.opts.Store.ListResults(ctx, sessionID)
}

func (s *PassiveDataService) ListEvents(ctx context.Context, sessionID string, query store.ListQuery) ([]observe.Event, error) {
	if s.opts.Store == nil {
		return nil, ErrNoStore
	}
	return s.opts.Store.ListEvents(ctx, sessionID, query)
}

// ListArchives returns the session bundles below the output directory,
// newest first.
func (s *PassiveDataService) ListArchives() ([]ArchiveInfo, error) {
	root := s.GetConfig().Output.Directory
	sections, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	var archives []ArchiveInfo
	for _, section := range sections {
		if !section.IsDir() {
			continue
		}
		dir := filepath.Join(root, section.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			slog.Warn("Failed to read section directory", "dir", dir, "error", err)
			continue
		}
		for _, file := range files {
			if file.IsDir() || !strings.HasSuffix(file.Name(), archive.Extension) {
				continue
			}
			info, err := file.Info()
			if err != nil {
				slog.Warn("Failed to get file info", "file", file.Name(), "error", err)
				continue
			}
			id := strings.TrimSuffix(file.Name(), archive.Extension)
			archives = append(archives, ArchiveInfo{
				Name:         file.Name(),
				SessionID:    id,
				Section:      section.Name(),
				Path:         filepath.Join(dir, file.Name()),
				Size:         info.Size(),
				SizeHuman:    FormatBytes(info.Size()),
				ModTime:      info.ModTime(),
				ModTimeHuman: info.ModTime().Format("2006-01-02 15:04:05"),
				DownloadURL:  fmt.Sprintf("/api/archives/%s", id),
			})
		}
	}

	sort.Slice(archives, func(i, j int) bool {
		return archives[i].ModTime.After(archives[j].ModTime)
	})
	return archives, nil
}

// GetLastError returns the last error message (thread-safe)
func (s *PassiveDataService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

func (s *PassiveDataService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err
	slog.Error("Service error occurred", "error_message", err)
}

func (s *PassiveDataService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}

// FormatBytes formats a byte count in human readable form.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
