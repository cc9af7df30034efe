package playback

import (
	"sync"
)

// MockDevice is a Device that plays nothing. In automatic mode every track
// ends as soon as it starts; in manual mode the test ends it with Finish.
type MockDevice struct {
	// Manual holds tracks until Finish is called.
	Manual bool
	// OpenErr and PlayErr script failures per path.
	OpenErr map[string]error
	PlayErr map[string]error

	mu      sync.Mutex
	opened  []string
	tracks  []*MockTrack
	pending map[string]func(error)
}

// NewMockDevice returns an automatic MockDevice.
func NewMockDevice() *MockDevice {
	return &MockDevice{}
}

// Open implements Device.
func (d *MockDevice) Open(path string) (Track, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.opened = append(d.opened, path)
	if err := d.OpenErr[path]; err != nil {
		return nil, err
	}
	t := &MockTrack{dev: d, path: path}
	d.tracks = append(d.tracks, t)
	return t, nil
}

// Opened returns the paths opened so far, in order.
func (d *MockDevice) Opened() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.opened...)
}

// Tracks returns every track handed out, in order.
func (d *MockDevice) Tracks() []*MockTrack {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*MockTrack(nil), d.tracks...)
}

// Finish ends the most recent track for path with err. It fires even for a
// closed track, to simulate a late event. It reports whether a track was
// waiting.
func (d *MockDevice) Finish(path string, err error) bool {
	d.mu.Lock()
	done, ok := d.pending[path]
	delete(d.pending, path)
	d.mu.Unlock()

	if ok {
		done(err)
	}
	return ok
}

// Waiting reports whether a playing track for path awaits Finish.
func (d *MockDevice) Waiting(path string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[path]
	return ok
}

// MockTrack records the controls applied to it.
type MockTrack struct {
	dev  *MockDevice
	path string

	mu     sync.Mutex
	paused bool
	closed bool
	plays  int
}

// Play implements Track.
func (t *MockTrack) Play(done func(error)) {
	t.mu.Lock()
	t.plays++
	t.mu.Unlock()

	d := t.dev
	d.mu.Lock()
	if d.Manual {
		if d.pending == nil {
			d.pending = make(map[string]func(error))
		}
		d.pending[t.path] = done
		d.mu.Unlock()
		return
	}
	err := d.PlayErr[t.path]
	d.mu.Unlock()

	done(err)
}

// Pause implements Track.
func (t *MockTrack) Pause() {
	t.mu.Lock()
	t.paused = true
	t.mu.Unlock()
}

// Resume implements Track.
func (t *MockTrack) Resume() {
	t.mu.Lock()
	t.paused = false
	t.mu.Unlock()
}

// Close implements Track.
func (t *MockTrack) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

// Path returns the artifact this track plays.
func (t *MockTrack) Path() string { return t.path }

// Paused reports whether the track is paused.
func (t *MockTrack) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// Closed reports whether Close was called.
func (t *MockTrack) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
