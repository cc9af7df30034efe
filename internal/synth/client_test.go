package synth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAudio = "ID3-fake-mp3-bytes"

func TestHTTPClient_Synthesize_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, apiSpeech, r.URL.Path)
		assert.Equal(t, contentTypeJSON, r.Header.Get(headerContentType))
		assert.Equal(t, "Bearer sk-test", r.Header.Get(headerAuthorization))

		var req speechRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Hello, world!", req.Input)
		assert.Equal(t, "nova", req.Voice)
		assert.Equal(t, "tts-1-hd", req.Model)
		assert.Equal(t, DefaultFormat, req.ResponseFormat)

		w.Header().Set(headerContentType, "audio/mpeg")
		_, _ = w.Write([]byte(testAudio))
	}))
	defer server.Close()

	client := NewHTTPClient(Config{BaseURL: server.URL + "/", Model: "tts-1-hd"})

	audio, err := client.Synthesize(context.Background(), "Hello, world!", "nova", "sk-test")
	require.NoError(t, err)
	assert.Equal(t, testAudio, string(audio))
}

func TestHTTPClient_Synthesize_DefaultVoice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req speechRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultVoice, req.Voice)
		_, _ = w.Write([]byte(testAudio))
	}))
	defer server.Close()

	_, err := NewHTTPClient(Config{BaseURL: server.URL}).Synthesize(context.Background(), "Hi.", "", "key")
	require.NoError(t, err)
}

func TestHTTPClient_Synthesize_Validation(t *testing.T) {
	client := NewHTTPClient(Config{BaseURL: "http://127.0.0.1:1"})

	_, err := client.Synthesize(context.Background(), "  ", "alloy", "key")
	assert.ErrorIs(t, err, ErrEmptyText)

	_, err = client.Synthesize(context.Background(), "Hello.", "alloy", "")
	assert.ErrorIs(t, err, ErrMissingCredential)
}

func TestHTTPClient_Synthesize_ProviderError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
		wantType    string
		wantCode    string
	}{
		{
			name:        "structured error",
			status:      http.StatusTooManyRequests,
			body:        `{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`,
			wantMessage: "You exceeded your current quota",
			wantType:    "insufficient_quota",
			wantCode:    "insufficient_quota",
		},
		{
			name:        "raw body",
			status:      http.StatusBadGateway,
			body:        "upstream connect error",
			wantMessage: "upstream connect error",
		},
		{
			name:        "empty body",
			status:      http.StatusUnauthorized,
			body:        "",
			wantMessage: "401 Unauthorized",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewHTTPClient(Config{BaseURL: server.URL}).Synthesize(context.Background(), "Hello.", "alloy", "key")
			require.Error(t, err)

			var perr *ProviderError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.status, perr.StatusCode)
			assert.Equal(t, tt.wantMessage, perr.Message)
			assert.Equal(t, tt.wantType, perr.Type)
			assert.Equal(t, tt.wantCode, perr.Code)
			assert.Contains(t, err.Error(), tt.wantMessage)
		})
	}
}

func TestHTTPClient_Synthesize_EmptyAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, err := NewHTTPClient(Config{BaseURL: server.URL}).Synthesize(context.Background(), "Hello.", "alloy", "key")
	assert.ErrorIs(t, err, ErrEmptyAudio)
}

func TestHTTPClient_Synthesize_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewHTTPClient(Config{BaseURL: server.URL}).Synthesize(ctx, "Hello.", "alloy", "key")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPClient_RequestPacing(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		_, _ = w.Write([]byte(testAudio))
	}))
	defer server.Close()

	// One request per minute: the first call uses the burst token, the
	// second must wait and therefore hits the deadline.
	client := NewHTTPClient(Config{BaseURL: server.URL, RequestsPerMinute: 1})

	_, err := client.Synthesize(context.Background(), "One.", "alloy", "key")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = client.Synthesize(ctx, "Two.", "alloy", "key")
	require.Error(t, err)
	assert.Equal(t, 1, hits)
}

func TestMock(t *testing.T) {
	boom := errors.New("boom")
	m := FailOn(boom, 2)

	_, err := m.Synthesize(context.Background(), "a", "v", "c")
	require.NoError(t, err)
	_, err = m.Synthesize(context.Background(), "b", "v", "c")
	assert.ErrorIs(t, err, boom)
	_, err = m.Synthesize(context.Background(), "c", "v", "c")
	require.NoError(t, err)

	assert.Equal(t, 3, m.CallCount())
	assert.Equal(t, "b", m.Calls()[1].Text)
}
