package audiosession

import (
	"log/slog"
	"sync"
)

// Session is the platform audio session the controller drives.
type Session interface {
	Apply(Settings) error
	Deactivate() error
	PlaySilence() error
	StopSilence() error
}

// Controller reference counts audio session requests from concurrently
// running recorders and applies the merged settings. Create one per
// process and pass it to the recorders that need it.
type Controller struct {
	mu      sync.Mutex
	session Session
	logger  *slog.Logger

	activityMapping map[string]Settings
	orderedIDs      []string
	backgroundIDs   map[string]bool

	active         bool
	current        *Settings
	silencePlaying bool
}

func NewController(session Session, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		session:         session,
		logger:          logger,
		activityMapping: make(map[string]Settings),
		backgroundIDs:   make(map[string]bool),
	}
}

// Current returns the applied settings, or nil when inactive.
func (c *Controller) Current() *Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	s := *c.current
	return &s
}

// IsSilencePlaying reports whether background silence is running.
func (c *Controller) IsSilencePlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.silencePlaying
}

// Start registers a foreground request. A second request with the same id
// is ignored.
func (c *Controller) Start(id string, settings Settings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.activityMapping[id]; exists {
		return
	}
	c.activityMapping[id] = settings
	c.orderedIDs = append(c.orderedIDs, id)
	c.apply(settings)
}

// StartBackgroundAudioIfNeeded registers a request to keep running in the
// background.
func (c *Controller) StartBackgroundAudioIfNeeded(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backgroundIDs[id] = true
	c.apply(BackgroundSilence)
	c.startSilenceIfNeeded()
}

// Stop drops every request registered under id.
func (c *Controller) Stop(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, foreground := c.activityMapping[id]
	if !foreground && !c.backgroundIDs[id] {
		return
	}
	delete(c.backgroundIDs, id)
	delete(c.activityMapping, id)
	for i, existing := range c.orderedIDs {
		if existing == id {
			c.orderedIDs = append(c.orderedIDs[:i], c.orderedIDs[i+1:]...)
			break
		}
	}

	priority, ok := c.prioritySettings()
	if !ok {
		c.stopSilence()
		c.current = nil
		if c.active {
			c.active = false
			if err := c.session.Deactivate(); err != nil {
				c.logger.Warn("Failed to deactivate audio session", "error", err)
			}
		}
		c.logger.Debug("Audio session deactivated")
		return
	}

	c.apply(priority)
	if len(c.backgroundIDs) > 0 {
		c.startSilenceIfNeeded()
	} else {
		c.stopSilence()
	}
}

func (c *Controller) prioritySettings() (Settings, bool) {
	if n := len(c.orderedIDs); n > 0 {
		return c.activityMapping[c.orderedIDs[n-1]], true
	}
	if len(c.backgroundIDs) > 0 {
		return BackgroundSilence, true
	}
	return Settings{}, false
}

func (c *Controller) consolidated(priority Settings) Settings {
	out := priority
	for _, id := range c.orderedIDs {
		out = out.Merge(c.activityMapping[id])
	}
	if len(c.backgroundIDs) > 0 {
		out = out.Merge(BackgroundSilence)
	}
	return out
}

func (c *Controller) apply(priority Settings) {
	next := c.consolidated(priority)
	if c.active && c.current != nil && *c.current == next {
		return
	}
	if err := c.session.Apply(next); err != nil {
		c.logger.Warn("Failed to apply audio session settings", "category", next.Category, "error", err)
		return
	}
	c.current = &next
	c.active = true
	c.logger.Debug("Audio session updated", "category", next.Category, "mode", next.Mode, "mixing", next.MixingOptions)
	if next.Category.IsRecording() {
		c.stopSilence()
	}
}

func (c *Controller) startSilenceIfNeeded() {
	if c.silencePlaying || c.current == nil || c.current.Category.IsRecording() {
		return
	}
	if err := c.session.PlaySilence(); err != nil {
		c.logger.Warn("Failed to play background silence", "error", err)
		return
	}
	c.silencePlaying = true
}

func (c *Controller) stopSilence() {
	if !c.silencePlaying {
		return
	}
	if err := c.session.StopSilence(); err != nil {
		c.logger.Warn("Failed to stop background silence", "error", err)
	}
	c.silencePlaying = false
}

// LogSession is a Session for hosts without a platform audio session. It
// only records what would have been applied.
type LogSession struct {
	Logger *slog.Logger
}

func (s LogSession) log() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s LogSession) Apply(settings Settings) error {
	s.log().Info("Audio session settings", "category", settings.Category, "mode", settings.Mode, "mixing", settings.MixingOptions)
	return nil
}

func (s LogSession) Deactivate() error {
	s.log().Info("Audio session deactivated")
	return nil
}

func (s LogSession) PlaySilence() error {
	s.log().Debug("Background silence started")
	return nil
}

func (s LogSession) StopSilence() error {
	s.log().Debug("Background silence stopped")
	return nil
}
