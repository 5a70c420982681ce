// Package recorder implements the sample recorder every concrete recorder is
// built on. A Recorder owns one or more data loggers, a clock and a marker
// tracker, and walks the action status machine from idle to a terminal
// status exactly once.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/action"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/clock"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/datalogger"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/markers"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/permission"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/records"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/result"
)

var (
	ErrAlreadyRunning = errors.New("recorder is already running")
	ErrFinished       = errors.New("recorder has already finished")
	ErrInterrupted    = errors.New("recorder was interrupted")
)

// Driver starts and stops the hardware behind a recorder. Each hook must
// call done exactly once, from any goroutine. StartRecorder must return
// once the start is under way; StopRecorder is not called before it has
// returned.
type Driver interface {
	StartRecorder(ctx context.Context, r *Recorder, done func(action.Status, error))
	StopRecorder(ctx context.Context, r *Recorder, done func(action.Status))
}

// StepListener is implemented by drivers that react to step changes.
type StepListener interface {
	DidMoveTo(r *Recorder, stepPath string, uptime float64)
}

// MarkerFactory is implemented by drivers whose log files use their own
// record type for step markers.
type MarkerFactory interface {
	Marker(uptime, timestamp float64, date time.Time, stepPath, loggerID string) records.SampleRecord
}

// NopDriver has no hardware. Start goes straight to running and stop to
// finished.
type NopDriver struct{}

func (NopDriver) StartRecorder(_ context.Context, _ *Recorder, done func(action.Status, error)) {
	done(action.Running, nil)
}

func (NopDriver) StopRecorder(_ context.Context, _ *Recorder, done func(action.Status)) {
	done(action.Finished)
}

// Options configures a Recorder. Configuration is required.
type Options struct {
	Configuration     action.Configuration
	OutputDirectory   string
	InitialStepPath   string
	SectionIdentifier string

	// Clock defaults to a SimpleClock, or a SystemClock when the
	// configuration requires background audio.
	Clock      clock.Clock
	TimeSource clock.TimeSource

	Driver      Driver
	Permissions *permission.Registry
	Delegate    action.Delegate
	Logger      *slog.Logger

	// LoggerIdentifiers defaults to DefaultLoggerIdentifier.
	LoggerIdentifiers []string
	Format            *datalogger.Format
	CodingKeys        []string
	RootObject        bool
	JSONSchema        string
	KeepPrevious      bool

	// NoLoggers runs the lifecycle without log files. The driver hands its
	// results over with AppendResults.
	NoLoggers bool

	DisableMarkers     bool
	DisableStartMarker bool
}

// Recorder is safe for concurrent use. Observer events and completions are
// delivered on a single goroutine in order; they must not block on calls
// back into the same recorder that wait for completion.
type Recorder struct {
	opts       Options
	config     action.Configuration
	clock      clock.Clock
	source     clock.TimeSource
	tracker    *markers.Tracker
	driver     Driver
	logger     *slog.Logger
	filePrefix string

	runCtx    context.Context
	runCancel context.CancelFunc

	coord serialQueue
	io    serialQueue

	mu            sync.Mutex
	status        action.Status
	err           error
	results       *result.Collection
	observers     map[int]action.Observer
	nextObserver  int
	stopRequested bool
	stopFinished  bool
	stopWaiters   []func(result.Data, error)

	// startGate is closed once the start hook has returned or was skipped.
	startGate chan struct{}

	// loggers is only touched from the io queue.
	loggers map[string]*datalogger.SampleLogger
}

var _ action.Controller = (*Recorder)(nil)

// New creates an idle recorder.
func New(opts Options) *Recorder {
	if opts.TimeSource == nil {
		opts.TimeSource = clock.SystemTimeSource()
	}
	if opts.Driver == nil {
		opts.Driver = NopDriver{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	c := opts.Clock
	if c == nil {
		if opts.Configuration.RequiresBackgroundAudio() {
			c = clock.NewSystemClock(clock.WithTimeSource(opts.TimeSource))
		} else {
			c = clock.NewSimpleClock(clock.WithTimeSource(opts.TimeSource))
		}
	}

	r := &Recorder{
		opts:      opts,
		config:    opts.Configuration,
		clock:     c,
		source:    opts.TimeSource,
		tracker:   markers.NewTracker(opts.InitialStepPath),
		driver:    opts.Driver,
		logger:    opts.Logger.With("recorder", opts.Configuration.Identifier()),
		results:   result.NewCollection(opts.Configuration.Identifier()),
		observers: make(map[int]action.Observer),
		loggers:   make(map[string]*datalogger.SampleLogger),
	}
	if opts.SectionIdentifier != "" {
		r.filePrefix = opts.SectionIdentifier + "_"
	}
	r.runCtx, r.runCancel = context.WithCancel(context.Background())
	return r
}

func (r *Recorder) Identifier() string                  { return r.config.Identifier() }
func (r *Recorder) Configuration() action.Configuration { return r.config }
func (r *Recorder) Clock() clock.Clock                  { return r.clock }
func (r *Recorder) TimeSource() clock.TimeSource        { return r.source }
func (r *Recorder) Logger() *slog.Logger                { return r.logger }
func (r *Recorder) OutputDirectory() string             { return r.opts.OutputDirectory }
func (r *Recorder) FilePrefix() string                  { return r.filePrefix }

// DefaultLoggerIdentifier is the section prefix followed by the
// configuration identifier.
func (r *Recorder) DefaultLoggerIdentifier() string {
	return r.filePrefix + r.config.Identifier()
}

func (r *Recorder) LoggerIdentifiers() []string {
	if r.opts.NoLoggers {
		return nil
	}
	if len(r.opts.LoggerIdentifiers) > 0 {
		return r.opts.LoggerIdentifiers
	}
	return []string{r.DefaultLoggerIdentifier()}
}

func (r *Recorder) Status() action.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Result returns nil, the single child result, or the whole collection.
func (r *Recorder) Result() result.Data {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results.Collapse()
}

func (r *Recorder) CurrentStepPath() string { return r.tracker.Current() }

func (r *Recorder) Pause()         { r.clock.Pause() }
func (r *Recorder) Resume()        { r.clock.Resume() }
func (r *Recorder) IsPaused() bool { return r.clock.IsPaused() }

func (r *Recorder) Subscribe(o action.Observer) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextObserver
	r.nextObserver++
	r.observers[id] = o
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.observers, id)
	}
}

// observerList returns the observers in subscription order. Callers hold r.mu.
func (r *Recorder) observerList() []action.Observer {
	ids := make([]int, 0, len(r.observers))
	for id := range r.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]action.Observer, len(ids))
	for i, id := range ids {
		out[i] = r.observers[id]
	}
	return out
}

// UpdateStatus moves the recorder forward to s. Lower or equal statuses are
// ignored, as are cancelled and failed once the recorder is past running.
func (r *Recorder) UpdateStatus(s action.Status, err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateLocked(s, err)
}

func (r *Recorder) updateLocked(s action.Status, err error) bool {
	from := r.status
	if s <= from {
		return false
	}
	if (s == action.Cancelled || s == action.Failed) && from > action.Running {
		return false
	}
	r.status = s
	if err != nil {
		r.err = err
	}
	r.logger.Debug("Recorder status changed", "from", from, "to", s)

	event := action.StatusEvent{Identifier: r.Identifier(), From: from, To: s, Err: err, Time: r.source.Now()}
	observers := r.observerList()
	r.coord.Async(func() {
		for _, o := range observers {
			o.StatusChanged(event)
		}
	})
	return true
}

// RecordError keeps err as the most recent error without changing status.
// A stop that has not finished yet reports it.
func (r *Recorder) RecordError(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// RequestPermissions asks the registry for every permission the
// configuration needs. A denied permission leaves the recorder waiting
// for permission.
func (r *Recorder) RequestPermissions(ctx context.Context) error {
	r.UpdateStatus(action.RequestingPermission, nil)
	if reg := r.opts.Permissions; reg != nil {
		for _, t := range r.config.Permissions() {
			if err := requestPermission(ctx, reg, permission.NewStandardPermission(t)); err != nil {
				r.logger.Warn("Permission not granted", "permission", t, "error", err)
				return err
			}
		}
	}
	r.UpdateStatus(action.PermissionGranted, nil)
	return nil
}

func requestPermission(ctx context.Context, reg *permission.Registry, p permission.StandardPermission) error {
	status := reg.AuthorizationStatus(p.Identifier())
	if status == permission.NotDetermined && p.RequestIfNeeded() {
		var err error
		status, err = reg.RequestAuthorization(ctx, p)
		if err != nil && !p.IsOptional() {
			return err
		}
	}
	if status != permission.Authorized && !p.IsOptional() {
		return permission.NotAuthorizedError(p, status)
	}
	return nil
}

// StartAsync starts the recorder and calls completion exactly once, on the
// event goroutine. completion may be nil. If a log file cannot be opened
// the loggers opened so far are closed, completion gets the error and the
// recorder stays starting until it is stopped or cancelled.
func (r *Recorder) StartAsync(completion func(error)) {
	var once sync.Once
	finish := func(err error) {
		once.Do(func() {
			if completion != nil {
				r.coord.Async(func() { completion(err) })
			}
		})
	}

	r.mu.Lock()
	switch {
	case r.status >= action.Finished:
		r.mu.Unlock()
		finish(ErrFinished)
		return
	case r.status > action.PermissionGranted:
		r.mu.Unlock()
		finish(ErrAlreadyRunning)
		return
	}
	r.updateLocked(action.Starting, nil)
	r.clock.Reset()
	step := r.tracker.Current()
	gate := make(chan struct{})
	r.startGate = gate

	// Queued before the lock is released so a stop always finds the
	// loggers this start opens.
	r.io.Async(func() {
		if err := r.startLoggers(step); err != nil {
			r.logger.Error("Failed to open data loggers", "error", err)
			r.closeLoggers()
			close(gate)
			finish(err)
			return
		}
		go r.startDriver(gate, finish)
	})
	r.mu.Unlock()
}

func (r *Recorder) startDriver(gate chan struct{}, finish func(error)) {
	defer close(gate)

	r.mu.Lock()
	status, lastErr := r.status, r.err
	r.mu.Unlock()
	if status > action.Running {
		r.logger.Debug("Skipping driver start, recorder is stopping", "status", status)
		finish(r.interruption(status, lastErr))
		return
	}

	var once sync.Once
	r.driver.StartRecorder(r.runCtx, r, func(s action.Status, err error) {
		once.Do(func() {
			r.mu.Lock()
			r.updateLocked(s, err)
			if err == nil {
				err = r.err
			}
			status := r.status
			r.mu.Unlock()

			switch {
			case status == action.Cancelled || status == action.Failed:
				// Release the loggers of a driver that failed to start.
				r.StopAsync(nil)
				if err == nil {
					err = r.interruption(status, nil)
				}
			case err == nil && status > action.Running:
				err = r.interruption(status, nil)
			case err == nil:
				r.logger.Info("Recorder started", "status", status)
			}
			finish(err)
		})
	})
}

func (r *Recorder) interruption(status action.Status, err error) error {
	if status != action.Cancelled && status != action.Failed {
		return ErrFinished
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	return ErrInterrupted
}

// Start blocks until the recorder is running. If ctx ends first the
// recorder is cancelled.
func (r *Recorder) Start(ctx context.Context) error {
	done := make(chan error, 1)
	r.StartAsync(func(err error) { done <- err })
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

func (r *Recorder) startLoggers(step string) error {
	startDate := r.clock.StartDate()
	logOpts := datalogger.Options{
		Format:     r.opts.Format,
		CodingKeys: r.opts.CodingKeys,
		RootObject: r.opts.RootObject,
		StartDate:  startDate,
	}
	for _, id := range r.LoggerIdentifiers() {
		if _, open := r.loggers[id]; open {
			continue
		}
		path, err := datalogger.PrepareFile(r.opts.OutputDirectory, id, logOpts.Extension(), !r.opts.KeepPrevious)
		if err != nil {
			return err
		}
		l, err := datalogger.NewSampleLogger(id, path, logOpts)
		if err != nil {
			return err
		}
		r.loggers[id] = l
		if r.opts.DisableMarkers || r.opts.DisableStartMarker {
			continue
		}
		if err := l.WriteSample(r.marker(r.clock.StartTime(), 0, startDate, step, id)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Recorder) marker(uptime, timestamp float64, date time.Time, stepPath, loggerID string) records.SampleRecord {
	if f, ok := r.driver.(MarkerFactory); ok {
		return f.Marker(uptime, timestamp, date, stepPath, loggerID)
	}
	return records.NewMarker(uptime, timestamp, date, stepPath)
}

// writable reports whether samples are accepted. Only called from the io
// queue.
func (r *Recorder) writable() bool {
	s := r.Status()
	return s >= action.Starting && s <= action.Running
}

// MoveTo marks the start of a new step in every open log.
func (r *Recorder) MoveTo(stepPath string) {
	date := r.source.Now()
	systemUptime := r.source.SystemUptime()
	uptime := r.clock.RelativeUptime(systemUptime)
	timestamp := r.clock.ZeroRelativeTime(systemUptime)

	r.tracker.Append(uptime, stepPath)

	if !r.opts.DisableMarkers {
		r.io.Async(func() {
			if !r.writable() {
				return
			}
			for _, id := range r.openLoggerIDs() {
				if err := r.loggers[id].WriteSample(r.marker(uptime, timestamp, date, stepPath, id)); err != nil {
					go r.DidFail(err)
					return
				}
			}
		})
	}

	if l, ok := r.driver.(StepListener); ok {
		l.DidMoveTo(r, stepPath, uptime)
	}

	r.mu.Lock()
	event := action.StepEvent{Identifier: r.Identifier(), StepPath: stepPath, Time: date}
	observers := r.observerList()
	r.coord.Async(func() {
		for _, o := range observers {
			o.StepChanged(event)
		}
	})
	r.mu.Unlock()
}

func (r *Recorder) openLoggerIDs() []string {
	ids := make([]string, 0, len(r.loggers))
	for id := range r.loggers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StepPath returns the step that was active at systemUptime.
func (r *Recorder) StepPath(systemUptime float64) string {
	return r.tracker.Lookup(r.clock.RelativeUptime(systemUptime))
}

func (r *Recorder) WriteSample(sample records.SampleRecord) {
	r.WriteSamplesTo("", []records.SampleRecord{sample})
}

func (r *Recorder) WriteSampleTo(loggerID string, sample records.SampleRecord) {
	r.WriteSamplesTo(loggerID, []records.SampleRecord{sample})
}

func (r *Recorder) WriteSamples(batch []records.SampleRecord) {
	r.WriteSamplesTo("", batch)
}

// WriteSamplesTo queues batch for the named logger. Samples arriving
// outside of starting and running are dropped. A write failure fails the
// recorder.
func (r *Recorder) WriteSamplesTo(loggerID string, batch []records.SampleRecord) {
	if len(batch) == 0 {
		return
	}
	if loggerID == "" {
		loggerID = r.DefaultLoggerIdentifier()
	}
	r.io.Async(func() {
		if !r.writable() {
			return
		}
		l, ok := r.loggers[loggerID]
		if !ok {
			r.logger.Warn("Dropping samples for unknown logger", "logger", loggerID, "count", len(batch))
			return
		}
		if err := l.WriteSamples(batch); err != nil {
			go r.DidFail(err)
		}
	})
}

// StopAsync finalizes every log and calls completion exactly once with a
// result or an error. Stopping an already stopping recorder attaches
// completion to the running stop.
func (r *Recorder) StopAsync(completion func(result.Data, error)) {
	r.mu.Lock()
	if r.stopFinished {
		res, err := r.stopOutcomeLocked()
		r.mu.Unlock()
		if completion != nil {
			r.coord.Async(func() { completion(res, err) })
		}
		return
	}
	if completion != nil {
		r.stopWaiters = append(r.stopWaiters, completion)
	}
	if r.stopRequested {
		r.mu.Unlock()
		return
	}
	r.stopRequested = true
	r.updateLocked(action.WaitingToStop, nil)
	r.mu.Unlock()

	r.io.Async(func() {
		r.UpdateStatus(action.ProcessingResults, nil)
		if err := r.stopLoggers(); err != nil {
			r.mu.Lock()
			r.err = err
			r.mu.Unlock()
		}
		go r.stopDriver()
	})
}

func (r *Recorder) stopDriver() {
	r.mu.Lock()
	gate := r.startGate
	r.mu.Unlock()
	if gate != nil {
		<-gate
	}

	var once sync.Once
	r.driver.StopRecorder(r.runCtx, r, func(s action.Status) {
		once.Do(func() {
			r.mu.Lock()
			if !r.updateLocked(s, nil) {
				r.updateLocked(action.Finished, nil)
			}
			r.stopFinished = true
			res, err := r.stopOutcomeLocked()
			waiters := r.stopWaiters
			r.stopWaiters = nil
			status := r.status
			r.mu.Unlock()

			r.runCancel()
			r.logger.Info("Recorder stopped", "status", status, "error", err)
			r.coord.Async(func() {
				for _, w := range waiters {
					w(res, err)
				}
			})
		})
	})
}

// stopOutcomeLocked never returns two nil values. Callers hold r.mu.
func (r *Recorder) stopOutcomeLocked() (result.Data, error) {
	switch r.status {
	case action.Cancelled, action.Failed:
		return nil, r.interruption(r.status, r.err)
	}
	res := r.results.Collapse()
	if r.err != nil {
		return res, r.err
	}
	if res == nil {
		return nil, action.NewValidationError(action.UnexpectedNullObject, "Both result and error are null.")
	}
	return res, nil
}

// Stop blocks until every log is finalized. If ctx ends first the recorder
// is cancelled.
func (r *Recorder) Stop(ctx context.Context) (result.Data, error) {
	type outcome struct {
		res result.Data
		err error
	}
	done := make(chan outcome, 1)
	r.StopAsync(func(res result.Data, err error) { done <- outcome{res, err} })
	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		r.Cancel()
		return nil, ctx.Err()
	}
}

func (r *Recorder) stopLoggers() error {
	var lastErr error
	for _, id := range r.openLoggerIDs() {
		l := r.loggers[id]
		delete(r.loggers, id)
		if err := l.Close(); err != nil {
			r.logger.Error("Failed to close data logger", "logger", id, "error", err)
			lastErr = err
			continue
		}
		r.AppendResults(r.fileResult(l))
	}
	return lastErr
}

// closeLoggers closes every open logger without keeping a result.
func (r *Recorder) closeLoggers() {
	for _, id := range r.openLoggerIDs() {
		if err := r.loggers[id].Close(); err != nil {
			r.logger.Warn("Failed to close data logger", "logger", id, "error", err)
		}
		delete(r.loggers, id)
	}
}

func (r *Recorder) fileResult(l *datalogger.SampleLogger) result.File {
	return result.File{
		Base: result.Base{
			ID:    strings.TrimPrefix(l.Identifier(), r.filePrefix),
			Start: r.clock.StartDate(),
			End:   r.source.Now(),
		},
		RelativePath: filepath.Base(l.Path()),
		URL:          l.Path(),
		ContentType:  l.ContentType(),
		StartUptime:  r.clock.StartTime(),
		JSONSchema:   r.opts.JSONSchema,
		SampleCount:  l.SampleCount(),
	}
}

// Cancel stops the recorder and discards its result. It is safe to call at
// any time.
func (r *Recorder) Cancel() {
	r.UpdateStatus(action.Cancelled, nil)
	r.StopAsync(nil)
}

// DidFail fails the recorder with err. Only the first failure while the
// recorder is running or earlier has any effect.
func (r *Recorder) DidFail(err error) {
	if !r.UpdateStatus(action.Failed, err) {
		return
	}
	r.logger.Error("Recorder failed", "error", err)
	if d := r.opts.Delegate; d != nil {
		go d.DidFail(r, err)
	}
	r.Cancel()
}

// AppendResults adds data to the result collection, replacing a result
// with the same identifier. It has no effect once results are processed.
func (r *Recorder) AppendResults(data result.Data) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status > action.ProcessingResults {
		r.logger.Warn("Ignoring result appended after processing", "result", data.Identifier())
		return
	}
	r.results.Append(data)
}
