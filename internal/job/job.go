// Package job drives text-to-speech recording runs: one chapter, or every
// chapter of a book, segment by segment and strictly in order.
package job

import (
	"errors"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dgnsrekt/narrator/internal/navigation"
)

var (
	// ErrCancelled marks a run that stopped early on request. It is a
	// terminal outcome, not a failure.
	ErrCancelled = errors.New("job cancelled")
	// ErrJobActive is returned when a job is started while another runs.
	ErrJobActive = errors.New("another job is already running")
	// ErrNoSegments is returned when chapter text yields nothing to speak.
	ErrNoSegments = errors.New("no text to synthesize")
)

// Mode selects what a job records.
type Mode int

const (
	// ModeSingleChapter records the current chapter only.
	ModeSingleChapter Mode = iota
	// ModeAllChapters records every chapter in navigation order.
	ModeAllChapters
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeSingleChapter:
		return "single-chapter"
	case ModeAllChapters:
		return "all-chapters"
	default:
		return "unknown"
	}
}

// Status is a job's lifecycle state.
type Status int32

const (
	StatusRunning Status = iota
	StatusCompleted
	StatusCancelled
	StatusFailed
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Job is one recording run. It lives only as long as the run.
type Job struct {
	ID       string
	Mode     Mode
	Book     string
	Voice    string
	Chapters []navigation.ChapterRef

	credential string
	cancel     atomic.Bool
	status     atomic.Int32
	done       chan struct{}
}

func newJob(mode Mode, book, voice, credential string, chapters []navigation.ChapterRef) *Job {
	return &Job{
		ID:         uuid.NewString(),
		Mode:       mode,
		Book:       book,
		Voice:      voice,
		Chapters:   chapters,
		credential: credential,
		done:       make(chan struct{}),
	}
}

// Cancel requests a cooperative stop. It is observed before the next
// chapter or segment; an in-flight synthesis call is not interrupted.
func (j *Job) Cancel() {
	j.cancel.Store(true)
}

// CancelRequested reports whether Cancel was called.
func (j *Job) CancelRequested() bool {
	return j.cancel.Load()
}

// Status returns the job's current status.
func (j *Job) Status() Status {
	return Status(j.status.Load())
}

// Done is closed when the job reaches a terminal status.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

func (j *Job) finish(s Status) {
	j.status.Store(int32(s))
	close(j.done)
}
