package audio

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/go-mp3"

	"github.com/dgnsrekt/narrator/internal/playback"
)

// go-mp3 always yields 16-bit little endian stereo.
const (
	channelCount   = 2
	bytesPerSample = 2
)

// ErrSampleRateMismatch is returned for an artifact whose sample rate
// differs from the one the output was opened with. oto allows a single
// context per process.
var ErrSampleRateMismatch = errors.New("sample rate differs from the open audio output")

// Config configures a Device.
type Config struct {
	Volume       float64       // 0.0 to 1.0
	BufferSize   time.Duration // oto buffer; 0 uses oto's default
	PollInterval time.Duration // how often track completion is checked
}

// DefaultConfig returns the default device configuration.
func DefaultConfig() Config {
	return Config{
		Volume:       1.0,
		PollInterval: 50 * time.Millisecond,
	}
}

// Device is a playback.Device backed by the system audio output. The oto
// context is created on the first Open, at that artifact's sample rate.
type Device struct {
	cfg Config

	mu         sync.Mutex
	ctx        *oto.Context
	sampleRate int

	newContext func(sampleRate int) (*oto.Context, error)
}

// NewDevice creates a Device. No audio resources are acquired until Open.
func NewDevice(cfg Config) (*Device, error) {
	if cfg.Volume < 0.0 || cfg.Volume > 1.0 {
		return nil, fmt.Errorf("volume must be between 0.0 and 1.0, got %f", cfg.Volume)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	d := &Device{cfg: cfg}
	d.newContext = d.openContext
	return d, nil
}

func (d *Device) openContext(sampleRate int) (*oto.Context, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channelCount,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   d.cfg.BufferSize,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready
	return ctx, nil
}

// ensureContext returns the shared context, creating it at sampleRate.
func (d *Device) ensureContext(sampleRate int) (*oto.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sampleRate != 0 {
		if sampleRate != d.sampleRate {
			return nil, fmt.Errorf("%w: %d Hz, output is %d Hz", ErrSampleRateMismatch, sampleRate, d.sampleRate)
		}
		return d.ctx, nil
	}

	ctx, err := d.newContext(sampleRate)
	if err != nil {
		return nil, err
	}
	d.ctx = ctx
	d.sampleRate = sampleRate
	return ctx, nil
}

// Open decodes the artifact at path and prepares it for playback.
func (d *Device) Open(path string) (playback.Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("audio data is empty")
	}

	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	ctx, err := d.ensureContext(dec.SampleRate())
	if err != nil {
		return nil, err
	}

	p := ctx.NewPlayer(dec)
	p.SetVolume(d.cfg.Volume)

	return &track{
		player:   p,
		data:     data,
		duration: Duration(dec.Length(), dec.SampleRate()),
		poll:     d.cfg.PollInterval,
		stop:     make(chan struct{}),
	}, nil
}

// Duration converts a decoded PCM byte length to playing time.
func Duration(pcmBytes int64, sampleRate int) time.Duration {
	if sampleRate <= 0 || pcmBytes <= 0 {
		return 0
	}
	frames := pcmBytes / (channelCount * bytesPerSample)
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}

// track is one decoded artifact bound to an oto player.
type track struct {
	player *oto.Player
	// data backs the decoder and must stay reachable while playing.
	data     []byte
	duration time.Duration
	poll     time.Duration

	paused    atomic.Bool
	stop      chan struct{}
	closeOnce sync.Once
}

// Play starts the player and watches for it to drain.
func (t *track) Play(done func(error)) {
	t.player.Play()
	go t.watch(done)
}

func (t *track) watch(done func(error)) {
	ticker := time.NewTicker(t.poll)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			if t.paused.Load() || t.player.IsPlaying() {
				continue
			}
			select {
			case <-t.stop:
				return
			default:
			}
			done(t.player.Err())
			return
		}
	}
}

func (t *track) Pause() {
	t.paused.Store(true)
	t.player.Pause()
}

func (t *track) Resume() {
	t.player.Play()
	t.paused.Store(false)
}

// Close stops the player and releases it.
func (t *track) Close() error {
	t.closeOnce.Do(func() {
		close(t.stop)
		t.player.Pause()
		t.player.Close() //nolint:errcheck
	})
	return nil
}
