// Package simlogger implements a simulator plugin that samples scene telemetry every few
// simulation ticks and appends it to a semicolon separated CSV file.
//
// The host drives the plugin through three notifications:
//   - simulation about to start: close any previous file, open a new one and write the header.
//   - simulation sensing (primary pass only): count the tick and, every SampleEvery ticks,
//     append one row with clocks, FPS, object poses and the collision count.
//   - script state destroyed: close the file and zero the counters.
//
// Failing to open the file is logged and the session then produces no output. Nothing is retried.
package simlogger

import (
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/simlogger/config"
	"go.viam.com/simlogger/host"
	"go.viam.com/simlogger/logging"
)

// PluginVersion is returned to the host on a successful Init.
const PluginVersion = 13

// MinHostVersion is the oldest host the plugin agrees to run in.
const MinHostVersion = ">= 4.0.0"

var (
	// ErrHostUnavailable is returned by Init when no host binding was provided.
	ErrHostUnavailable = errors.New("could not find all required functions in the host library")
	// ErrHostVersion is returned by Init when the host is too old or reports an unparsable version.
	ErrHostVersion = errors.New("host version is not supported")
)

// Plugin is the process wide logger state owned by the host callback dispatcher.
type Plugin struct {
	mu      sync.Mutex
	cfg     config.Config
	logger  logging.Logger
	clk     clock.Clock
	host    host.Host
	session *session

	logFile *logging.FileAppender
}

// Option configures a Plugin.
type Option func(*Plugin)

// WithClock sets the wall clock used for the session time and FPS columns.
func WithClock(clk clock.Clock) Option {
	return func(p *Plugin) { p.clk = clk }
}

// New returns a plugin that is not yet attached to a host.
func New(cfg config.Config, logger logging.Logger, opts ...Option) *Plugin {
	p := &Plugin{
		cfg:    cfg,
		logger: logger,
		clk:    clock.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Init attaches the plugin to h. It returns PluginVersion, or an error if the plugin must not
// start; in that case the host should unload it.
func (p *Plugin) Init(h host.Host, info host.InitInfo) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if h == nil {
		p.logger.Errorw("cannot start the plugin", "plugin", info.PluginName, "error", ErrHostUnavailable)
		return 0, ErrHostUnavailable
	}
	if err := checkHostVersion(h.Version()); err != nil {
		p.logger.Errorw("cannot start the plugin", "plugin", info.PluginName, "error", err)
		return 0, err
	}
	if err := p.cfg.Validate(); err != nil {
		p.logger.Errorw("invalid configuration", "plugin", info.PluginName, "error", err)
		return 0, err
	}
	p.logger.SetLevel(p.cfg.LogLevel)
	if p.cfg.LogFile != "" && p.logFile == nil {
		p.logFile = logging.NewFileAppender(logging.FileAppenderConfig{
			Filename:   p.cfg.LogFile,
			MaxBackups: 3,
		})
		p.logger.AddAppender(p.logFile)
	}

	p.host = h
	p.logger.Infow("plugin started",
		"plugin", info.PluginName,
		"version", PluginVersion,
		"host_version", h.Version(),
		"sample_every", p.cfg.SampleEvery,
		"log_level", p.cfg.LogLevel,
		"collision_target", p.cfg.CollisionTarget)
	return PluginVersion, nil
}

func checkHostVersion(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return errors.Wrapf(ErrHostVersion, "parsing %q: %v", version, err)
	}
	constraint, err := semver.NewConstraint(MinHostVersion)
	if err != nil {
		return err
	}
	if !constraint.Check(v) {
		return errors.Wrapf(ErrHostVersion, "%s does not satisfy %s", v, MinHostVersion)
	}
	return nil
}

// Cleanup closes any open telemetry file and detaches the plugin from its host. Messages
// received afterwards are ignored.
func (p *Plugin) Cleanup() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.endSession()
	p.host = nil
	if p.logFile != nil {
		p.logger.RemoveAppender(p.logFile)
		err = multierr.Combine(err, p.logFile.Close())
		p.logFile = nil
	}
	return err
}

// HandleMessage dispatches a host notification.
func (p *Plugin) HandleMessage(msg host.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.host == nil {
		p.logger.Debugw("ignoring message, plugin is not initialized", "message", msg.ID)
		return
	}

	switch msg.ID {
	case host.MsgSimulationAboutToStart:
		p.startSession()
	case host.MsgSimulationSensing:
		if msg.IsPrimaryPass() {
			p.tick()
		}
	case host.MsgScriptStateDestroyed:
		if err := p.endSession(); err != nil {
			p.logger.Errorw("error closing CSV file", "error", err)
		}
	}
}

// Stats is a snapshot of the plugin's session state.
type Stats struct {
	Active      bool
	SessionID   string
	Path        string
	Open        bool
	Frames      int
	TotalFrames int
	FPS         float64
	Rows        int
}

// Stats returns the current session state. The zero value means no session.
func (p *Plugin) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.session
	if s == nil {
		return Stats{}
	}
	return Stats{
		Active:      true,
		SessionID:   s.id,
		Path:        s.path,
		Open:        s.out != nil,
		Frames:      s.frames,
		TotalFrames: s.totalFrames,
		FPS:         s.fps,
		Rows:        s.rows,
	}
}

func (p *Plugin) startSession() {
	if err := p.endSession(); err != nil {
		p.logger.Warnw("error closing previous CSV file", "error", err)
	}

	now := p.clk.Now()
	s := newSession(uuid.NewString(), now)
	p.session = s

	path, err := ResolveOutputPath(p.cfg, now)
	if err != nil {
		p.logger.Errorw("unable to resolve CSV file path, not logging this simulation",
			"session", s.id, "error", err)
		return
	}
	s.path = path

	out, err := createRowWriter(path)
	if err != nil {
		p.logger.Errorw("unable to open CSV file, not logging this simulation",
			"session", s.id, "path", path, "error", err)
		return
	}
	s.out = out
	p.logger.Infow("logging simulation telemetry", "session", s.id, "path", path)
}

func (p *Plugin) endSession() error {
	s := p.session
	if s == nil {
		return nil
	}
	p.session = nil
	rows := s.rows
	err := s.close()
	p.logger.Debugw("simulation telemetry session ended", "session", s.id, "rows", rows)
	return err
}

func (p *Plugin) tick() {
	s := p.session
	if s == nil || !s.tick(p.cfg.SampleEvery) || s.out == nil {
		return
	}

	row := p.sample(s)
	if err := s.out.Write(row); err != nil {
		p.logger.Errorw("error writing CSV row", "session", s.id, "path", s.path, "error", err)
		return
	}
	s.rows++
}
