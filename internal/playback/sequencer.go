// Package playback plays a chapter's artifacts back to back as one logical
// track.
package playback

import (
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/narrator/internal/artifact"
)

var (
	// ErrMediaMissing is returned when the first artifact is not on disk.
	ErrMediaMissing = errors.New("media missing")
	// ErrNothingToPlay is returned when starting with no artifacts.
	ErrNothingToPlay = errors.New("nothing to play")
	// ErrInvalidTransition is returned for a control not valid in the
	// current state.
	ErrInvalidTransition = errors.New("invalid playback transition")
)

// State is the sequencer's transport state.
type State int

const (
	// StateIdle means no session has started.
	StateIdle State = iota
	// StatePlaying means the current item is audible.
	StatePlaying
	// StatePaused means playback is suspended on the current item.
	StatePaused
	// StateStopped is terminal for a session.
	StateStopped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Track is one opened artifact.
type Track interface {
	// Play starts playback and calls done once, from any goroutine, when
	// the track ends naturally or fails. done is not called after Close.
	Play(done func(error))
	Pause()
	Resume()
	Close() error
}

// Device opens artifacts for playback.
type Device interface {
	Open(path string) (Track, error)
}

// Status is a snapshot for display.
type Status struct {
	Index int // equals Total once the session finished naturally
	Total int
	State State
	Path  string
}

// Sequencer plays an ordered artifact list, advancing automatically and
// skipping items that fail. At most one session is active.
type Sequencer struct {
	device Device
	log    *log.Logger
	exists func(string) bool

	mu       sync.Mutex
	paths    []string
	index    int
	state    State
	session  uint64
	track    Track
	loading  bool
	done     chan struct{}
	onChange func(Status)
	lastErr  error
	version  uint64

	// notifyMu orders OnChange deliveries; stale snapshots are dropped.
	notifyMu  sync.Mutex
	delivered uint64
}

// change is a snapshot waiting to be published.
type change struct {
	version uint64
	status  Status
	fn      func(Status)
}

// NewSequencer creates an idle Sequencer.
func NewSequencer(device Device, logger *log.Logger) *Sequencer {
	if logger == nil {
		logger = log.Default()
	}
	done := make(chan struct{})
	close(done)
	return &Sequencer{
		device: device,
		log:    logger.WithPrefix("playback"),
		exists: artifact.Exists,
		done:   done,
	}
}

// OnChange registers fn to receive a snapshot after every transition. It is
// called without the sequencer's lock held, and never with a snapshot older
// than one it already received.
func (s *Sequencer) OnChange(fn func(Status)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Status returns the current snapshot.
func (s *Sequencer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

// LastError returns the most recent item error absorbed by the sequencer.
func (s *Sequencer) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Done is closed when the current session reaches Stopped.
func (s *Sequencer) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Start begins a new session over paths, stopping any active one first.
func (s *Sequencer) Start(paths []string) error {
	if len(paths) == 0 {
		return ErrNothingToPlay
	}
	s.stop(false)
	if !s.exists(paths[0]) {
		return fmt.Errorf("%w: %s", ErrMediaMissing, paths[0])
	}

	s.mu.Lock()
	s.session++
	s.paths = append([]string(nil), paths...)
	s.index = 0
	s.state = StatePlaying
	s.lastErr = nil
	s.done = make(chan struct{})
	load := s.loadLocked()
	c := s.changeLocked()
	s.mu.Unlock()

	s.log.Debug("session started", "parts", len(paths))
	load()
	s.publish(c)
	return nil
}

// Pause suspends the current item. Valid only while playing.
func (s *Sequencer) Pause() error {
	return s.transition(StatePlaying, StatePaused, func() {
		if s.track != nil {
			s.track.Pause()
		}
	})
}

// Resume continues after Pause. If the paused item finished in the
// meantime, the next item starts.
func (s *Sequencer) Resume() error {
	var load func()
	err := s.transition(StatePaused, StatePlaying, func() {
		switch {
		case s.track != nil:
			s.track.Resume()
		case !s.loading:
			load = s.loadLocked()
		}
	})
	if load != nil {
		load()
	}
	return err
}

// TogglePlayPause pauses or resumes; it does nothing when idle or stopped.
func (s *Sequencer) TogglePlayPause() error {
	switch s.Status().State {
	case StatePlaying:
		return s.Pause()
	case StatePaused:
		return s.Resume()
	default:
		return nil
	}
}

// Stop halts playback immediately and ends the session. An idle sequencer
// moves straight to Stopped; stopping again does nothing.
func (s *Sequencer) Stop() error {
	s.stop(true)
	return nil
}

// stop ends the active session. Start uses it with fromIdle false so a
// fresh sequencer never reports Stopped before its first session.
func (s *Sequencer) stop(fromIdle bool) {
	s.mu.Lock()
	switch {
	case s.state == StatePlaying, s.state == StatePaused:
		s.endSessionLocked()
	case s.state == StateIdle && fromIdle:
		s.state = StateStopped
	default:
		s.mu.Unlock()
		return
	}
	c := s.changeLocked()
	s.mu.Unlock()

	s.log.Debug("session stopped", "index", c.status.Index)
	s.publish(c)
}

func (s *Sequencer) transition(from, to State, apply func()) error {
	s.mu.Lock()
	if s.state != from {
		cur := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, to, cur)
	}
	s.state = to
	apply()
	c := s.changeLocked()
	s.mu.Unlock()

	s.publish(c)
	return nil
}

// loadLocked claims paths[index] for opening. The returned func opens and
// plays it and must run without the lock, so reading the file or bringing
// up the audio output never holds up Stop, Pause or Status.
func (s *Sequencer) loadLocked() func() {
	s.loading = true
	session, index, path := s.session, s.index, s.paths[s.index]
	return func() { s.load(session, index, path) }
}

// load opens and plays item index of session. A failure to open is
// reported like a playback error so the session advances. A track that
// opens after the session moved on or paused is closed again; Resume
// reopens it.
func (s *Sequencer) load(session uint64, index int, path string) {
	track, err := s.device.Open(path)

	s.mu.Lock()
	current := session == s.session && index == s.index
	if current {
		s.loading = false
	}
	if err != nil {
		s.mu.Unlock()
		s.finished(session, index, fmt.Errorf("open %s: %w", path, err))
		return
	}
	if !current || s.state != StatePlaying {
		s.mu.Unlock()
		if err := track.Close(); err != nil {
			s.log.Debug("closing track", "err", err)
		}
		return
	}
	s.track = track
	// done may fire synchronously from Play; hop goroutines so it never
	// runs under this lock.
	track.Play(func(err error) {
		go s.finished(session, index, err)
	})
	s.mu.Unlock()
}

// finished handles the end of item index in session.
func (s *Sequencer) finished(session uint64, index int, err error) {
	s.mu.Lock()
	if session != s.session || index != s.index || (s.state != StatePlaying && s.state != StatePaused) {
		s.mu.Unlock()
		return
	}

	if err != nil {
		s.lastErr = err
		s.log.Warn("skipping part after playback error", "part", index+1, "path", s.paths[index], "err", err)
	}
	s.closeTrackLocked()
	s.index++

	var load func()
	switch {
	case s.index >= len(s.paths):
		s.endSessionLocked()
		s.log.Debug("session finished", "parts", len(s.paths))
	case s.state == StatePlaying:
		load = s.loadLocked()
	}
	c := s.changeLocked()
	s.mu.Unlock()

	if load != nil {
		load()
	}
	s.publish(c)
}

func (s *Sequencer) endSessionLocked() {
	s.closeTrackLocked()
	s.loading = false
	s.state = StateStopped
	s.session++
	close(s.done)
}

func (s *Sequencer) closeTrackLocked() {
	if s.track == nil {
		return
	}
	if err := s.track.Close(); err != nil {
		s.log.Debug("closing track", "err", err)
	}
	s.track = nil
}

func (s *Sequencer) changeLocked() change {
	s.version++
	return change{version: s.version, status: s.statusLocked(), fn: s.onChange}
}

// publish delivers c unless a newer snapshot was already delivered.
func (s *Sequencer) publish(c change) {
	if c.fn == nil {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if c.version <= s.delivered {
		return
	}
	s.delivered = c.version
	c.fn(c.status)
}

func (s *Sequencer) statusLocked() Status {
	st := Status{Index: s.index, Total: len(s.paths), State: s.state}
	if s.index < len(s.paths) {
		st.Path = s.paths[s.index]
	}
	return st
}
