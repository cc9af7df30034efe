package audio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDeviceValidatesVolume(t *testing.T) {
	tests := []struct {
		name    string
		volume  float64
		wantErr bool
	}{
		{"silent", 0, false},
		{"full", 1, false},
		{"negative", -0.1, true},
		{"too loud", 1.5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDevice(Config{Volume: tt.volume})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestEnsureContextIsCreatedOnce(t *testing.T) {
	d, err := NewDevice(DefaultConfig())
	require.NoError(t, err)

	calls := 0
	d.newContext = func(int) (*oto.Context, error) {
		calls++
		return nil, nil
	}

	_, err = d.ensureContext(24000)
	require.NoError(t, err)
	_, err = d.ensureContext(24000)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	_, err = d.ensureContext(44100)
	assert.ErrorIs(t, err, ErrSampleRateMismatch)
}

func TestEnsureContextRetriesAfterFailure(t *testing.T) {
	d, err := NewDevice(DefaultConfig())
	require.NoError(t, err)

	fail := true
	d.newContext = func(int) (*oto.Context, error) {
		if fail {
			return nil, errors.New("no audio device")
		}
		return nil, nil
	}

	_, err = d.ensureContext(24000)
	require.Error(t, err)

	fail = false
	_, err = d.ensureContext(44100)
	assert.NoError(t, err, "a failed attempt does not pin the sample rate")
}

func TestOpenRejectsBadInput(t *testing.T) {
	d, err := NewDevice(DefaultConfig())
	require.NoError(t, err)
	d.newContext = func(int) (*oto.Context, error) {
		t.Fatal("context must not be created for undecodable input")
		return nil, nil
	}

	dir := t.TempDir()

	_, err = d.Open(filepath.Join(dir, "missing.mp3"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	empty := filepath.Join(dir, "empty.mp3")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = d.Open(empty)
	assert.Error(t, err)

	junk := filepath.Join(dir, "junk.mp3")
	require.NoError(t, os.WriteFile(junk, []byte("ID3 fake audio #1: hello"), 0o644))
	_, err = d.Open(junk)
	assert.Error(t, err)
}

func TestDuration(t *testing.T) {
	assert.Equal(t, time.Second, Duration(24000*4, 24000))
	assert.Equal(t, 500*time.Millisecond, Duration(44100*2, 44100))
	assert.Zero(t, Duration(100, 0))
	assert.Zero(t, Duration(-1, 44100))
}
