package synth

import (
	"context"
	"fmt"
	"sync"
)

// Call records one request made to a Mock.
type Call struct {
	Text       string
	Voice      string
	Credential string
}

// Mock is a scripted Client for tests. Each call is numbered from 1.
type Mock struct {
	// Hook, when set, decides the outcome of call n. Returning nil audio
	// and nil error yields the default fake audio.
	Hook func(n int, call Call) ([]byte, error)

	mu    sync.Mutex
	calls []Call
}

// NewMock creates a mock that succeeds on every call.
func NewMock() *Mock {
	return &Mock{}
}

// FailOn returns a mock whose calls listed in failures return err.
func FailOn(err error, failures ...int) *Mock {
	set := make(map[int]bool, len(failures))
	for _, n := range failures {
		set[n] = true
	}
	return &Mock{
		Hook: func(n int, _ Call) ([]byte, error) {
			if set[n] {
				return nil, err
			}
			return nil, nil
		},
	}
}

// Synthesize implements Client.
func (m *Mock) Synthesize(ctx context.Context, text, voice, credential string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, ErrEmptyText
	}

	call := Call{Text: text, Voice: voice, Credential: credential}

	m.mu.Lock()
	m.calls = append(m.calls, call)
	n := len(m.calls)
	hook := m.Hook
	m.mu.Unlock()

	if hook != nil {
		audio, err := hook(n, call)
		if err != nil {
			return nil, err
		}
		if audio != nil {
			return audio, nil
		}
	}

	return []byte(fmt.Sprintf("ID3 fake audio #%d: %s", n, text)), nil
}

// Calls returns a copy of the recorded calls.
func (m *Mock) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many requests were made.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
