// Package detector polls process snapshots for known games and toggles the
// session when the first game starts and the last one exits.
package detector

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/phuslu/log"
	"vawter.tech/stopper"

	"gameboost/internal/logger"
	"gameboost/internal/primitive"
	"gameboost/internal/session"
)

// Toggler is the part of session.Manager the detector drives. The detector
// only ever ends the session it started, by id.
type Toggler interface {
	Activate(cfg session.Config) (session.ActivationResult, error)
	DeactivateSession(id string) (session.DeactivationResult, error)
	Status() session.Status
}

// Options configures a Detector.
type Options struct {
	// Interval between polls. Defaults to 5s.
	Interval time.Duration

	// AutoDeactivate ends a session the detector started once no catalog
	// game is running any more.
	AutoDeactivate bool

	Catalog *Catalog
	Metrics *Metrics
}

// Detector is the auto-detect trigger. It only uses the session's public
// operations and never ends a session it did not start.
type Detector struct {
	snapshots primitive.SnapshotProvider
	toggler   Toggler
	config    func() session.Config
	opts      Options
	log       *log.Logger

	mu    sync.Mutex
	games []string
	owned string // id of the session this detector started
}

// New returns a detector. config is called at each activation so reloaded
// settings apply to the next session.
func New(snapshots primitive.SnapshotProvider, toggler Toggler, config func() session.Config, opts Options) *Detector {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Catalog == nil {
		opts.Catalog = DefaultCatalog()
	}
	return &Detector{
		snapshots: snapshots,
		toggler:   toggler,
		config:    config,
		opts:      opts,
		log:       logger.NewLoggerWithContext("detector"),
	}
}

// Run polls until ctx starts stopping. It is meant for stopper.Context.Go.
func (d *Detector) Run(ctx *stopper.Context) error {
	d.log.Info().Dur("interval", d.opts.Interval).Int("games", len(d.opts.Catalog.Games())).
		Msg("Game detector started")

	ticker := time.NewTicker(d.opts.Interval)
	defer ticker.Stop()

	d.Poll()
	for {
		select {
		case <-ctx.Stopping():
			d.log.Info().Msg("Game detector stopped")
			return nil
		case <-ticker.C:
			d.Poll()
		}
	}
}

// Poll takes one snapshot and toggles the session on transitions between
// "no game running" and "some game running".
func (d *Detector) Poll() {
	snapshot, err := d.snapshots.Snapshot()
	if err != nil {
		d.opts.Metrics.poll("error", 0)
		d.log.Error().Err(err).Msg("Process snapshot failed")
		return
	}
	running := d.opts.Catalog.Running(snapshot)
	d.opts.Metrics.poll("ok", len(running))

	d.mu.Lock()
	defer d.mu.Unlock()

	previous := d.games
	d.games = running
	for _, g := range running {
		if !slices.Contains(previous, g) {
			d.log.Info().Str("game", g).Msg("Game detected")
		}
	}
	for _, g := range previous {
		if !slices.Contains(running, g) {
			d.log.Info().Str("game", g).Msg("Game closed")
		}
	}

	switch {
	case len(previous) == 0 && len(running) > 0:
		d.activate(running)
	case len(previous) > 0 && len(running) == 0 && d.owned != "" && d.opts.AutoDeactivate:
		d.deactivate()
	}
}

func (d *Detector) activate(games []string) {
	res, err := d.toggler.Activate(d.config())
	switch {
	case errors.Is(err, session.ErrAlreadyActive):
		// Someone else started it; leave it to them.
		d.owned = ""
		d.log.Debug().Strs("games", games).Msg("Session already active")
	case err != nil:
		d.log.Error().Err(err).Msg("Activation failed")
	default:
		d.owned = res.SessionID
		d.opts.Metrics.toggle("activate")
		d.log.Info().Strs("games", games).Str("session_id", res.SessionID).
			Int("suspended", res.SuspendedCount).Msg("Session activated for game")
	}
}

func (d *Detector) deactivate() {
	id := d.owned
	d.owned = ""
	res, err := d.toggler.DeactivateSession(id)
	switch {
	case errors.Is(err, session.ErrNotActive):
		d.log.Debug().Str("session_id", id).Msg("Session already ended")
	case errors.Is(err, session.ErrOtherSession):
		d.log.Info().Str("session_id", id).Msg("Session was replaced, leaving the new one active")
	case err != nil:
		d.log.Error().Err(err).Msg("Deactivation failed")
	default:
		d.opts.Metrics.toggle("deactivate")
		d.log.Info().Str("session_id", res.SessionID).Int("resumed", res.ResumedCount).
			Msg("Session deactivated, no game running")
	}
}

// Games returns the catalog games seen in the last poll.
func (d *Detector) Games() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.games)
}

// Owns reports whether the current session was started by the detector.
func (d *Detector) Owns() bool {
	d.mu.Lock()
	owned := d.owned
	d.mu.Unlock()
	return owned != "" && d.toggler.Status().SessionID == owned
}
