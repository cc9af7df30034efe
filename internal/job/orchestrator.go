package job

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/narrator/internal/artifact"
	"github.com/dgnsrekt/narrator/internal/library"
	"github.com/dgnsrekt/narrator/internal/navigation"
	"github.com/dgnsrekt/narrator/internal/segment"
	"github.com/dgnsrekt/narrator/internal/synth"
)

// DefaultMinChapterChars is the shortest chapter text worth recording.
const DefaultMinChapterChars = 10

// Progress is emitted on every meaningful change of a running job.
type Progress struct {
	JobID   string
	Label   string
	Percent float64 // 0..100, never decreases within a job
	Detail  string

	Completed    bool
	Cancelled    bool
	ChapterCount int
}

// Summary describes a finished all-chapters run.
type Summary struct {
	JobID        string
	Chapters     int
	Recorded     int
	Skipped      int
	PartsWritten int
	PartsFailed  int
	Bytes        int64
	Cancelled    bool

	// RecordedHrefs lists the chapters registered, in order.
	RecordedHrefs []string
}

// ChapterLoader resolves a chapter to its plain text.
type ChapterLoader interface {
	ChapterText(ctx context.Context, href string) (string, error)
}

// Options configures an Orchestrator.
type Options struct {
	Client    synth.Client
	Artifacts *artifact.Store
	// Books receives the chapter audio index; nil keeps it in memory.
	Books           library.Store
	Segment         segment.Options
	MinChapterChars int
	Logger          *log.Logger
	OnProgress      func(Progress)
}

// SingleChapterRequest records one chapter.
type SingleChapterRequest struct {
	BookPath   string
	BookTitle  string
	Chapter    navigation.ChapterRef
	Text       string
	Voice      string
	Credential string
	// Folder replaces the book folder; parts still go to its <NN>_<label>
	// subfolder so chapters recorded one at a time never overwrite each other.
	Folder string
}

// BatchRequest records a list of chapters.
type BatchRequest struct {
	BookPath   string
	BookTitle  string
	Chapters   []navigation.ChapterRef
	Loader     ChapterLoader
	Voice      string
	Credential string
	// Folder overrides the default per-book destination.
	Folder string
}

// Orchestrator runs at most one job at a time.
type Orchestrator struct {
	opts Options
	log  *log.Logger

	mu     sync.Mutex
	active *Job
}

// New creates an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Client == nil {
		return nil, errors.New("job: synthesis client is required")
	}
	if opts.Artifacts == nil {
		return nil, errors.New("job: artifact store is required")
	}
	if opts.Books == nil {
		opts.Books = library.NewMemoryStore()
	}
	if opts.MinChapterChars <= 0 {
		opts.MinChapterChars = DefaultMinChapterChars
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{opts: opts, log: logger.WithPrefix("job")}, nil
}

// Active returns the running job, or nil.
func (o *Orchestrator) Active() *Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// Cancel requests cancellation of the running job. It reports whether a
// job was running.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return false
	}
	o.active.Cancel()
	return true
}

func (o *Orchestrator) begin(j *Job) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != nil {
		return fmt.Errorf("%w (%s)", ErrJobActive, o.active.ID)
	}
	o.active = j
	return nil
}

func (o *Orchestrator) end(j *Job, s Status) {
	o.mu.Lock()
	if o.active == j {
		o.active = nil
	}
	o.mu.Unlock()
	j.finish(s)
}

// RunSingleChapter synthesizes one chapter. Any failure aborts the run and
// is returned; artifacts already written stay on disk but the chapter is
// not registered. Cancellation removes the artifacts this run wrote.
func (o *Orchestrator) RunSingleChapter(ctx context.Context, req SingleChapterRequest) ([]string, error) {
	j := newJob(ModeSingleChapter, req.BookPath, req.Voice, req.Credential, []navigation.ChapterRef{req.Chapter})
	if err := o.begin(j); err != nil {
		return nil, err
	}
	status := StatusFailed
	defer func() { o.end(j, status) }()

	p := o.newReporter(j)
	logger := o.log.With("job", j.ID, "chapter", req.Chapter.Href)

	segments := o.opts.Segment.Split(req.Text)
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSegments, req.Chapter.Href)
	}

	folder, err := o.chapterFolder(req.BookTitle, req.Folder, req.Chapter)
	if err != nil {
		return nil, err
	}

	logger.Info("recording chapter", "label", req.Chapter.Label, "parts", len(segments), "folder", folder)

	var written []string
	cancel := func() ([]string, error) {
		if err := o.opts.Artifacts.Remove(written); err != nil {
			logger.Warn("failed to remove partial artifacts", "err", err)
		}
		logger.Info("recording cancelled", "written", len(written))
		status = StatusCancelled
		p.cancelled()
		return nil, ErrCancelled
	}

	for i, seg := range segments {
		if stopRequested(ctx, j) {
			return cancel()
		}

		p.report(float64(i)/float64(len(segments)), "Recording "+labelOf(req.Chapter),
			fmt.Sprintf("part %d of %d", i+1, len(segments)))

		audio, err := o.opts.Client.Synthesize(ctx, seg.Text, req.Voice, req.Credential)
		if err != nil && ctx.Err() != nil {
			return cancel()
		}
		if err != nil {
			logger.Error("synthesis failed", "part", i+1, "err", err)
			return nil, fmt.Errorf("synthesize part %d of %s: %w", i+1, req.Chapter.Href, err)
		}

		path, err := o.opts.Artifacts.Save(folder, artifact.CurrentChapterFileName(i), audio)
		if err != nil {
			logger.Error("save failed", "part", i+1, "err", err)
			return nil, fmt.Errorf("save part %d of %s: %w", i+1, req.Chapter.Href, err)
		}
		logger.Debug("part saved", "part", i+1, "path", path, "bytes", len(audio))
		written = append(written, path)
	}

	if err := o.register(ctx, req.BookPath, req.BookTitle, req.Chapter.Href, written); err != nil {
		return nil, err
	}

	status = StatusCompleted
	p.completed(1)
	logger.Info("chapter recorded", "parts", len(written))
	return written, nil
}

// RunAllChapters synthesizes every chapter in order. Failed parts and
// unloadable or near-empty chapters are logged and skipped. A chapter is
// registered once at least one of its parts succeeded. Cancellation keeps
// everything already written and registered and returns ErrCancelled
// alongside the summary so far.
func (o *Orchestrator) RunAllChapters(ctx context.Context, req BatchRequest) (Summary, error) {
	j := newJob(ModeAllChapters, req.BookPath, req.Voice, req.Credential, req.Chapters)
	if err := o.begin(j); err != nil {
		return Summary{}, err
	}
	status := StatusFailed
	defer func() { o.end(j, status) }()

	summary := Summary{JobID: j.ID, Chapters: len(req.Chapters)}
	if req.Loader == nil {
		return summary, errors.New("job: chapter loader is required")
	}

	folder := req.Folder
	if folder == "" {
		var err error
		if folder, err = o.opts.Artifacts.EnsureFolder(req.BookTitle); err != nil {
			return summary, err
		}
	}

	p := o.newReporter(j)
	logger := o.log.With("job", j.ID)
	logger.Info("recording book", "title", req.BookTitle, "chapters", len(req.Chapters), "folder", folder)

	total := float64(len(req.Chapters))
	cancel := func() (Summary, error) {
		status = StatusCancelled
		summary.Cancelled = true
		p.cancelled()
		logger.Info("recording cancelled", "recorded", summary.Recorded)
		return summary, ErrCancelled
	}

	for ci, ch := range req.Chapters {
		if stopRequested(ctx, j) {
			return cancel()
		}

		label := labelOf(ch)
		p.report(float64(ci)/total, "Loading "+label, fmt.Sprintf("chapter %d of %d", ci+1, len(req.Chapters)))

		text, err := req.Loader.ChapterText(ctx, ch.Href)
		if err != nil {
			logger.Warn("skipping chapter: cannot load text", "chapter", ch.Href, "err", err)
			summary.Skipped++
			continue
		}
		if len(strings.TrimSpace(text)) < o.opts.MinChapterChars {
			logger.Warn("skipping chapter: no meaningful text", "chapter", ch.Href)
			summary.Skipped++
			continue
		}

		segments := o.opts.Segment.Split(text)
		var paths []string
		for si, seg := range segments {
			if stopRequested(ctx, j) {
				return cancel()
			}

			p.report((float64(ci)+float64(si)/float64(len(segments)))/total,
				"Recording "+label,
				fmt.Sprintf("chapter %d of %d, part %d of %d", ci+1, len(req.Chapters), si+1, len(segments)))

			audio, err := o.opts.Client.Synthesize(ctx, seg.Text, req.Voice, req.Credential)
			if err != nil {
				logger.Warn("skipping part: synthesis failed", "chapter", ch.Href, "part", si+1, "err", err)
				summary.PartsFailed++
				continue
			}

			path, err := o.opts.Artifacts.Save(folder, artifact.ChapterFileName(ch.Order, ch.Label, si), audio)
			if err != nil {
				logger.Warn("skipping part: save failed", "chapter", ch.Href, "part", si+1, "err", err)
				summary.PartsFailed++
				continue
			}
			paths = append(paths, path)
			summary.PartsWritten++
			summary.Bytes += int64(len(audio))
		}

		if len(paths) == 0 {
			logger.Warn("skipping chapter: no parts succeeded", "chapter", ch.Href)
			summary.Skipped++
			continue
		}
		if err := o.register(ctx, req.BookPath, req.BookTitle, ch.Href, paths); err != nil {
			logger.Error("failed to register chapter audio", "chapter", ch.Href, "err", err)
			summary.Skipped++
			continue
		}
		summary.Recorded++
		summary.RecordedHrefs = append(summary.RecordedHrefs, ch.Href)
		logger.Info("chapter recorded", "chapter", ch.Href, "parts", len(paths), "of", len(segments))
	}

	status = StatusCompleted
	p.completed(summary.Recorded)
	logger.Info("recording finished", "recorded", summary.Recorded, "skipped", summary.Skipped,
		"parts", summary.PartsWritten, "failed", summary.PartsFailed)
	return summary, nil
}

// register writes the chapter's artifacts into the book's audio index.
func (o *Orchestrator) register(ctx context.Context, bookPath, title, href string, paths []string) error {
	rec, err := library.LoadOrNew(ctx, o.opts.Books, bookPath, title)
	if err != nil {
		return fmt.Errorf("load book record: %w", err)
	}
	idx := rec.Index()
	if err := idx.Record(href, paths); err != nil {
		return err
	}
	rec.SetIndex(idx)
	if err := o.opts.Books.UpsertBook(ctx, rec); err != nil {
		return fmt.Errorf("save book record: %w", err)
	}
	return nil
}

// chapterFolder returns the single-chapter destination below base, or
// below the book's folder when base is empty.
func (o *Orchestrator) chapterFolder(title, base string, ch navigation.ChapterRef) (string, error) {
	book := base
	if book == "" {
		var err error
		if book, err = o.opts.Artifacts.EnsureFolder(title); err != nil {
			return "", err
		}
	}
	return o.opts.Artifacts.EnsureSubfolder(book, artifact.ChapterFolderName(ch.Order, ch.Label))
}

// stopRequested is the cooperative cancellation checkpoint.
func stopRequested(ctx context.Context, j *Job) bool {
	return j.CancelRequested() || ctx.Err() != nil
}

func labelOf(ch navigation.ChapterRef) string {
	if ch.Label != "" {
		return ch.Label
	}
	return ch.Href
}

// reporter emits Progress with a percent that never goes backwards.
type reporter struct {
	jobID string
	emit  func(Progress)
	last  float64
}

func (o *Orchestrator) newReporter(j *Job) *reporter {
	emit := o.opts.OnProgress
	if emit == nil {
		emit = func(Progress) {}
	}
	return &reporter{jobID: j.ID, emit: emit}
}

func (r *reporter) report(fraction float64, label, detail string) {
	pct := fraction * 100
	if pct > 100 {
		pct = 100
	}
	if pct < r.last {
		pct = r.last
	}
	r.last = pct
	r.emit(Progress{JobID: r.jobID, Label: label, Percent: pct, Detail: detail})
}

func (r *reporter) completed(chapters int) {
	r.last = 100
	r.emit(Progress{JobID: r.jobID, Label: "Done", Percent: 100, Completed: true, ChapterCount: chapters})
}

func (r *reporter) cancelled() {
	r.emit(Progress{JobID: r.jobID, Label: "Cancelled", Percent: r.last, Cancelled: true})
}
