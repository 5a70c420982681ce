package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/action"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/archive"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/audiosession"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/config"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/observe"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/permission"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/result"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/store"
)

// ResultsFileName is written into the session directory when it finishes.
const ResultsFileName = "taskResult.json"

var (
	ErrSessionActive   = errors.New("a session is already active")
	ErrNoSession       = errors.New("no active session")
	ErrNoMoreSteps     = errors.New("no more steps")
	ErrUnknownStep     = errors.New("unknown step")
	ErrSessionFinished = errors.New("session already finished")
)

// SessionState is the lifecycle of a task session.
type SessionState string

const (
	SessionCreated   SessionState = "created"
	SessionRunning   SessionState = "running"
	SessionStopping  SessionState = "stopping"
	SessionFinished  SessionState = "finished"
	SessionCancelled SessionState = "cancelled"
	SessionFailed    SessionState = "failed"
)

type SessionOptions struct {
	// Factory defaults to DefaultFactory.
	Factory Factory
	Sources Sources

	Permissions  *permission.Registry
	AudioSession *audiosession.Controller

	// Sink receives every session and recorder event.
	Sink   observe.Sink
	Store  *store.Store
	Logger *slog.Logger
}

// RecorderInfo is a snapshot of one recorder of a session.
type RecorderInfo struct {
	Identifier string `json:"identifier"`
	Type       string `json:"type"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// SessionInfo is a snapshot of a session.
type SessionInfo struct {
	ID              string         `json:"id"`
	Profile         string         `json:"profile"`
	Section         string         `json:"section"`
	State           SessionState   `json:"state"`
	Step            string         `json:"step,omitempty"`
	Steps           []string       `json:"steps,omitempty"`
	OutputDirectory string         `json:"outputDirectory"`
	StartTime       time.Time      `json:"startTime"`
	EndTime         *time.Time     `json:"endTime,omitempty"`
	Recorders       []RecorderInfo `json:"recorders"`
	ArchivePath     string         `json:"archivePath,omitempty"`
	LastError       string         `json:"lastError,omitempty"`
}

type sessionRecorder struct {
	ctrl        action.Controller
	started     bool
	stopped     bool
	unsubscribe func()
}

// Session runs the recorders of one profile over a sequence of steps.
// Recorders without a start step start with the session; the others start
// when their start step is reached. A recorder stops at its stop step or
// when the session stops.
type Session struct {
	id        string
	profile   string
	section   string
	steps     []string
	outputDir string
	archive   bool

	sink   observe.Sink
	store  *store.Store
	logger *slog.Logger

	recorders []*sessionRecorder
	results   *result.Collection

	mu          sync.Mutex
	state       SessionState
	step        string
	stepIndex   int
	startTime   time.Time
	endTime     time.Time
	archivePath string
	lastErr     error
}

// NewSession creates the session directory <output>/<section>/<id> and one
// recorder per configuration.
func NewSession(cfg *config.Config, opts SessionOptions) (*Session, error) {
	if cfg == nil {
		return nil, errors.New("session needs a configuration")
	}
	if len(cfg.Configurations) == 0 {
		return nil, fmt.Errorf("profile '%s' has no recorders", cfg.Name)
	}
	factory := opts.Factory
	if factory == nil {
		factory = DefaultFactory
	}
	sink := opts.Sink
	if sink == nil {
		sink = observe.NoopSink{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.NewString()
	s := &Session{
		id:        id,
		profile:   cfg.Name,
		section:   cfg.Section,
		steps:     slices.Clone(cfg.Steps),
		outputDir: filepath.Join(cfg.Output.Directory, cfg.Section, id),
		archive:   cfg.Output.Archive,
		sink:      sink,
		store:     opts.Store,
		logger:    logger.With("session", id),
		results:   result.NewCollection(cfg.Section),
		state:     SessionCreated,
	}
	if len(s.steps) > 0 {
		s.step = s.steps[0]
	}

	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	env := Environment{
		SectionIdentifier: s.section,
		OutputDirectory:   s.outputDir,
		InitialStepPath:   s.stepPath(s.step),
		Permissions:       opts.Permissions,
		AudioSession:      opts.AudioSession,
		Delegate:          action.DelegateFunc(s.recorderFailed),
		Logger:            s.logger,
		Sources:           opts.Sources,
	}

	bridge := observe.Bridge(id, sink)
	for _, c := range cfg.Configurations {
		ctrl, err := factory(c, env)
		if err != nil {
			s.release()
			_ = os.RemoveAll(s.outputDir)
			return nil, err
		}
		s.recorders = append(s.recorders, &sessionRecorder{
			ctrl:        ctrl,
			unsubscribe: ctrl.Subscribe(bridge),
		})
	}
	return s, nil
}

func (s *Session) ID() string              { return s.id }
func (s *Session) OutputDirectory() string { return s.outputDir }

// Results is the collection handed back by the stopped recorders.
func (s *Session) Results() *result.Collection { return s.results }

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the last recorder or session error.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Controllers returns the session recorders in configuration order.
func (s *Session) Controllers() []action.Controller {
	out := make([]action.Controller, 0, len(s.recorders))
	for _, r := range s.recorders {
		out = append(out, r.ctrl)
	}
	return out
}

func (s *Session) stepPath(step string) string {
	if step == "" {
		return ""
	}
	if s.section == "" {
		return step
	}
	return path.Join(s.section, step)
}

func (s *Session) recorderFailed(c action.Controller, err error) {
	s.logger.Error("Recorder failed", "recorder", c.Identifier(), "error", err)
	s.recordError(fmt.Errorf("recorder '%s': %w", c.Identifier(), err))
}

func (s *Session) recordError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

func (s *Session) emit(e observe.Event) {
	e.SessionID = s.id
	e.Normalize()
	if err := s.sink.Emit(context.Background(), e); err != nil {
		s.logger.Warn("Failed to emit event", "kind", e.Kind, "error", err)
	}
}

func (s *Session) sessionEvent(message string) observe.Event {
	return observe.Event{
		Kind:    observe.KindSession,
		Message: message,
		Attributes: map[string]any{
			"section": s.section,
			"profile": s.profile,
		},
	}
}

// Start requests permissions for every recorder, then starts the recorders
// due at the first step. A denied permission fails the session. Recorders
// that fail to start are reported in the returned error while the others
// keep running.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != SessionCreated {
		s.mu.Unlock()
		return ErrSessionActive
	}
	s.state = SessionRunning
	s.startTime = time.Now()
	step := s.step
	s.mu.Unlock()

	if s.store != nil {
		err := s.store.SaveSession(ctx, store.Session{
			ID:        s.id,
			Section:   s.section,
			Profile:   s.profile,
			OutputDir: s.outputDir,
			Status:    string(SessionRunning),
			StartedAt: s.startTime,
		})
		if err != nil {
			s.logger.Warn("Failed to index session", "error", err)
		}
	}
	s.logger.Info("Session started", "section", s.section, "directory", s.outputDir, "recorders", len(s.recorders))
	s.emit(s.sessionEvent("started"))

	for _, r := range s.recorders {
		if err := r.ctrl.RequestPermissions(ctx); err != nil {
			err = fmt.Errorf("recorder '%s': %w", r.ctrl.Identifier(), err)
			s.fail(err)
			return err
		}
	}

	return s.startRecorders(ctx, s.due(func(r *sessionRecorder) bool {
		start := r.ctrl.Configuration().StartStepIdentifier()
		return start == "" || start == step
	}), "")
}

// due marks and returns the recorders matching pred that have not started.
func (s *Session) due(pred func(*sessionRecorder) bool) []*sessionRecorder {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*sessionRecorder
	for _, r := range s.recorders {
		if !r.started && pred(r) {
			r.started = true
			out = append(out, r)
		}
	}
	return out
}

func (s *Session) startRecorders(ctx context.Context, recorders []*sessionRecorder, stepPath string) error {
	errs := make([]error, len(recorders))
	var g errgroup.Group
	for i, r := range recorders {
		g.Go(func() error {
			if stepPath != "" {
				r.ctrl.MoveTo(stepPath)
			}
			if err := r.ctrl.Start(ctx); err != nil {
				errs[i] = fmt.Errorf("recorder '%s' failed to start: %w", r.ctrl.Identifier(), err)
				s.logger.Error("Recorder failed to start", "recorder", r.ctrl.Identifier(), "error", err)
				return errs[i]
			}
			s.logger.Debug("Recorder started", "recorder", r.ctrl.Identifier())
			return nil
		})
	}
	_ = g.Wait()
	err := errors.Join(errs...)
	s.recordError(err)
	return err
}

// MoveTo advances the session to step: recorders whose stop step it is
// stop, running recorders mark the step, and recorders whose start step
// it is start.
func (s *Session) MoveTo(ctx context.Context, step string) error {
	s.mu.Lock()
	if s.state != SessionRunning {
		s.mu.Unlock()
		return ErrNoSession
	}
	index := slices.Index(s.steps, step)
	if len(s.steps) > 0 && index < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: '%s'", ErrUnknownStep, step)
	}
	s.step, s.stepIndex = step, index

	var toStop, toMove []*sessionRecorder
	for _, r := range s.recorders {
		if !r.started || r.stopped {
			continue
		}
		if stop := r.ctrl.Configuration().StopStepIdentifier(); stop != "" && stop == step {
			r.stopped = true
			toStop = append(toStop, r)
		} else {
			toMove = append(toMove, r)
		}
	}
	s.mu.Unlock()

	stepPath := s.stepPath(step)
	s.emit(observe.Event{Kind: observe.KindStep, StepPath: stepPath, Message: "session moved"})

	var errs []error
	if len(toStop) > 0 {
		errs = append(errs, s.stopRecorders(ctx, toStop))
	}
	for _, r := range toMove {
		r.ctrl.MoveTo(stepPath)
	}
	toStart := s.due(func(r *sessionRecorder) bool {
		return r.ctrl.Configuration().StartStepIdentifier() == step
	})
	if len(toStart) > 0 {
		errs = append(errs, s.startRecorders(ctx, toStart, stepPath))
	}
	return errors.Join(errs...)
}

// Next moves to the step after the current one.
func (s *Session) Next(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.state != SessionRunning {
		s.mu.Unlock()
		return "", ErrNoSession
	}
	next := s.stepIndex + 1
	if next >= len(s.steps) {
		s.mu.Unlock()
		return "", ErrNoMoreSteps
	}
	step := s.steps[next]
	s.mu.Unlock()
	return step, s.MoveTo(ctx, step)
}

func (s *Session) stopRecorders(ctx context.Context, recorders []*sessionRecorder) error {
	type outcome struct {
		data result.Data
		err  error
	}
	outcomes := make([]outcome, len(recorders))
	var g errgroup.Group
	for i, r := range recorders {
		g.Go(func() error {
			data, err := r.ctrl.Stop(ctx)
			outcomes[i] = outcome{data, err}
			return err
		})
	}
	_ = g.Wait()

	var errs []error
	for i, r := range recorders {
		id := r.ctrl.Identifier()
		o := outcomes[i]
		if o.err != nil {
			s.logger.Error("Recorder stopped with error", "recorder", id, "error", o.err)
			errs = append(errs, fmt.Errorf("recorder '%s': %w", id, o.err))
			continue
		}
		if o.data == nil {
			continue
		}
		s.mu.Lock()
		s.results.Append(o.data)
		s.mu.Unlock()
		s.emit(observe.FromResult(s.id, id, o.data))
		if s.store != nil {
			if err := s.store.SaveResult(ctx, s.id, id, o.data); err != nil {
				s.logger.Warn("Failed to index result", "recorder", id, "error", err)
			}
		}
		s.logger.Debug("Recorder stopped", "recorder", id)
	}
	err := errors.Join(errs...)
	s.recordError(err)
	return err
}

// Stop stops every running recorder, writes the collected results next to
// the recordings, indexes the session and, when enabled, bundles the
// session directory.
func (s *Session) Stop(ctx context.Context) (*result.Collection, error) {
	s.mu.Lock()
	if s.state != SessionRunning {
		state := s.state
		s.mu.Unlock()
		if state == SessionCreated {
			return nil, ErrNoSession
		}
		return nil, ErrSessionFinished
	}
	s.state = SessionStopping
	var toStop []*sessionRecorder
	for _, r := range s.recorders {
		if r.started && !r.stopped {
			r.stopped = true
			toStop = append(toStop, r)
		}
	}
	s.mu.Unlock()

	stopErr := s.stopRecorders(ctx, toStop)
	s.release()

	s.mu.Lock()
	s.endTime = time.Now()
	s.results.End = s.endTime
	s.results.Start = s.startTime
	s.mu.Unlock()

	if err := s.writeResults(); err != nil {
		s.logger.Error("Failed to write results", "error", err)
		s.recordError(err)
	}
	if s.archive {
		if err := s.bundle(ctx); err != nil {
			s.logger.Error("Failed to archive session", "error", err)
			s.recordError(err)
		}
	}

	state := SessionFinished
	if len(s.results.Children) == 0 && stopErr != nil {
		state = SessionFailed
	}
	s.finish(ctx, state)
	return s.results, stopErr
}

func (s *Session) writeResults() error {
	data, err := json.MarshalIndent(s.results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	return os.WriteFile(filepath.Join(s.outputDir, ResultsFileName), data, 0o644)
}

func (s *Session) bundle(ctx context.Context) error {
	dst := s.outputDir + archive.Extension
	manifest, err := archive.Bundle(s.outputDir, dst, s.results)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.archivePath = dst
	s.mu.Unlock()
	s.logger.Info("Session archived", "path", dst, "files", len(manifest.Files))
	if s.store != nil {
		return s.store.SetArchivePath(ctx, s.id, dst)
	}
	return nil
}

// Cancel cancels every recorder and discards their results.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.state != SessionRunning && s.state != SessionCreated {
		s.mu.Unlock()
		return
	}
	s.state = SessionStopping
	s.mu.Unlock()

	for _, r := range s.recorders {
		r.ctrl.Cancel()
	}
	s.release()
	s.mu.Lock()
	s.endTime = time.Now()
	s.mu.Unlock()
	s.finish(context.Background(), SessionCancelled)
}

func (s *Session) fail(err error) {
	s.recordError(err)
	for _, r := range s.recorders {
		r.ctrl.Cancel()
	}
	s.release()
	s.mu.Lock()
	s.endTime = time.Now()
	s.mu.Unlock()
	s.finish(context.Background(), SessionFailed)
}

// release detaches the event bridge from every recorder.
func (s *Session) release() {
	for _, r := range s.recorders {
		if r.unsubscribe != nil {
			r.unsubscribe()
			r.unsubscribe = nil
		}
	}
}

func (s *Session) finish(ctx context.Context, state SessionState) {
	s.mu.Lock()
	s.state = state
	end := s.endTime
	var errMsg string
	if s.lastErr != nil {
		errMsg = s.lastErr.Error()
	}
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.FinishSession(ctx, s.id, string(state), errMsg, end); err != nil {
			s.logger.Warn("Failed to index session end", "error", err)
		}
	}
	e := s.sessionEvent(string(state))
	e.Error = errMsg
	s.emit(e)
	s.logger.Info("Session ended", "state", state, "results", len(s.results.Children))
}

// Info returns a snapshot of the session.
func (s *Session) Info() *SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := &SessionInfo{
		ID:              s.id,
		Profile:         s.profile,
		Section:         s.section,
		State:           s.state,
		Step:            s.step,
		Steps:           slices.Clone(s.steps),
		OutputDirectory: s.outputDir,
		StartTime:       s.startTime,
		ArchivePath:     s.archivePath,
	}
	if !s.endTime.IsZero() {
		end := s.endTime
		info.EndTime = &end
	}
	if s.lastErr != nil {
		info.LastError = s.lastErr.Error()
	}
	for _, r := range s.recorders {
		ri := RecorderInfo{
			Identifier: r.ctrl.Identifier(),
			Type:       r.ctrl.Configuration().Type(),
			Status:     r.ctrl.Status().String(),
		}
		if err := r.ctrl.Err(); err != nil {
			ri.Error = err.Error()
		}
		info.Recorders = append(info.Recorders, ri)
	}
	return info
}
