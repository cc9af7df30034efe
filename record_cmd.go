package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/narrator/internal/artifact"
	"github.com/dgnsrekt/narrator/internal/cache"
	"github.com/dgnsrekt/narrator/internal/config"
	"github.com/dgnsrekt/narrator/internal/job"
	"github.com/dgnsrekt/narrator/internal/synth"
	"github.com/dgnsrekt/narrator/ui"
)

var errMissingKey = errors.New("no API key: set OPENAI_API_KEY, synthesis.api_key or --api-key")

var recordFlags struct {
	chapter string
	all     bool
	voice   string
	folder  string
	apiKey  string
	noTUI   bool
}

var recordCmd = &cobra.Command{
	Use:   "record BOOK",
	Short: "Synthesize chapter audio",
	Long: paragraph(fmt.Sprintf("\n%s one chapter, or every chapter with --all. Text is split into requests that fit the speech service, and each part is saved as an MP3 file.",
		keyword("Record"))),
	Example:           paragraph("narrator record moby-dick.epub\nnarrator record moby-dick.epub --chapter 3\nnarrator record moby-dick.epub --chapter loomings\nnarrator record moby-dick.epub --all --voice nova"),
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: bookCompletion,
	RunE:              runRecord,
}

func init() {
	f := recordCmd.Flags()
	f.StringVarP(&recordFlags.chapter, "chapter", "c", "", "chapter number, href or title (default: current chapter)")
	f.BoolVarP(&recordFlags.all, "all", "a", false, "record every chapter")
	f.StringVar(&recordFlags.voice, "voice", "", "voice to synthesize with (default from config)")
	f.StringVar(&recordFlags.folder, "folder", "", "write audio here instead of the book's folder")
	f.StringVar(&recordFlags.apiKey, "api-key", "", "speech service API key")
	f.BoolVar(&recordFlags.noTUI, "no-tui", false, "print plain progress lines")
	recordCmd.MarkFlagsMutuallyExclusive("chapter", "all")

	_ = recordCmd.RegisterFlagCompletionFunc("voice", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return synth.KnownVoices, cobra.ShellCompDirectiveNoFileComp
	})
}

// recording is one configured record invocation.
type recording struct {
	book       *book
	orch       *job.Orchestrator
	voice      string
	credential string
	folder     string
}

func runRecord(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	credential := cfg.Credential(recordFlags.apiKey, environ)
	if credential == "" {
		return errMissingKey
	}

	b, err := openBook(ctx, args[0])
	if err != nil {
		return err
	}
	defer b.Close() //nolint:errcheck

	artifacts, err := artifact.NewStore(cfg.Artifacts.Dir)
	if err != nil {
		return err
	}

	r := &recording{
		book:       b,
		voice:      recordFlags.voice,
		credential: credential,
		folder:     config.ExpandPath(recordFlags.folder),
	}
	if r.voice == "" {
		r.voice = cfg.Synthesis.Voice
	}

	tui := useTUI(recordFlags.noTUI)
	var feed *ui.Feed
	onProgress := printProgress(cmd.ErrOrStderr())
	if tui {
		feed = ui.NewFeed()
		onProgress = feed.Progress
	}

	var client synth.Client = synth.NewHTTPClient(cfg.Synthesis.ClientConfig())
	if cfg.Cache.Enabled {
		c, err := cache.New(cfg.Cache.CacheOptions())
		if err != nil {
			return err
		}
		defer c.Close() //nolint:errcheck
		client = cache.NewClient(client, c, cfg.Synthesis.Model, cfg.Synthesis.Format, log.Default())
	}

	r.orch, err = job.New(job.Options{
		Client:          client,
		Artifacts:       artifacts,
		Books:           b.store,
		Segment:         cfg.Segment.Options(),
		MinChapterChars: cfg.Job.MinChapterChars,
		Logger:          log.Default(),
		OnProgress:      onProgress,
	})
	if err != nil {
		return err
	}

	if !tui {
		report, err := r.run(ctx)
		return finishRecord(cmd.OutOrStdout(), report, err)
	}
	return r.runTUI(ctx, cmd.OutOrStdout(), feed)
}

// run executes the requested job and renders its report.
func (r *recording) run(ctx context.Context) (string, error) {
	if recordFlags.all {
		chapters, err := r.book.chapters(ctx)
		if err != nil {
			return "", err
		}
		sum, err := r.orch.RunAllChapters(ctx, job.BatchRequest{
			BookPath:   r.book.path,
			BookTitle:  r.book.title(),
			Chapters:   chapters,
			Loader:     r.book.provider,
			Voice:      r.voice,
			Credential: r.credential,
			Folder:     r.folder,
		})
		return batchReport(sum), err
	}

	ch, err := r.book.chapter(ctx, recordFlags.chapter)
	if err != nil {
		return "", err
	}
	text, err := r.book.provider.ChapterText(ctx, ch.Href)
	if err != nil {
		return "", err
	}

	paths, err := r.orch.RunSingleChapter(ctx, job.SingleChapterRequest{
		BookPath:   r.book.path,
		BookTitle:  r.book.title(),
		Chapter:    ch,
		Text:       text,
		Voice:      r.voice,
		Credential: r.credential,
		Folder:     r.folder,
	})
	if err != nil {
		return "", err
	}
	if err := r.book.markCurrent(ctx, ch.Href); err != nil {
		log.Warn("could not update current chapter", "err", err)
	}
	return singleReport(ch.Label, paths), nil
}

func (r *recording) runTUI(ctx context.Context, out io.Writer, feed *ui.Feed) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		report string
		err    error
	}
	result := make(chan outcome, 1)
	go func() {
		report, err := r.run(ctx)
		feed.Finish(report, err)
		result <- outcome{report, err}
	}()

	model := ui.NewRecordModel(r.book.title(), feed, func() { r.orch.Cancel() })
	final, err := tea.NewProgram(model, tea.WithOutput(out)).Run()
	if err != nil {
		cancel()
		<-result
		return fmt.Errorf("unable to run tui program: %w", err)
	}

	// A forced quit leaves the job running; stop it before returning.
	cancel()
	res := <-result

	if m, ok := final.(ui.RecordModel); ok && m.Report() == "" && res.report != "" {
		fmt.Fprintln(out, res.report)
	}
	if errors.Is(res.err, job.ErrCancelled) {
		return nil
	}
	return res.err
}

func finishRecord(w io.Writer, report string, err error) error {
	if report != "" {
		fmt.Fprintln(w, report)
	}
	if errors.Is(err, job.ErrCancelled) {
		fmt.Fprintln(w, "Cancelled.")
		return nil
	}
	return err
}

func printProgress(w io.Writer) func(job.Progress) {
	return func(p job.Progress) {
		switch {
		case p.Completed:
			return
		case p.Cancelled:
			fmt.Fprintf(w, "[%3.0f%%] cancelled\n", p.Percent)
		case p.Detail != "":
			fmt.Fprintf(w, "[%3.0f%%] %s: %s\n", p.Percent, p.Label, p.Detail)
		default:
			fmt.Fprintf(w, "[%3.0f%%] %s\n", p.Percent, p.Label)
		}
	}
}

func singleReport(label string, paths []string) string {
	var size int64
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil {
			size += info.Size()
		}
	}
	folder := ""
	if len(paths) > 0 {
		folder = filepath.Dir(paths[0])
	}
	return fmt.Sprintf("Recorded %s: %s, %s\n%s",
		label,
		humanize.Plural(len(paths), "part", "parts"),
		humanize.Bytes(uint64(size)), //nolint:gosec
		faint(folder))
}

func batchReport(s job.Summary) string {
	if s.JobID == "" {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Recorded %d of %s", s.Recorded, humanize.Plural(s.Chapters, "chapter", "chapters"))
	if s.Skipped > 0 {
		fmt.Fprintf(&b, " (%s skipped)", humanize.Comma(int64(s.Skipped)))
	}
	fmt.Fprintf(&b, ": %s, %s",
		humanize.Plural(s.PartsWritten, "part", "parts"),
		humanize.Bytes(uint64(s.Bytes))) //nolint:gosec
	if s.PartsFailed > 0 {
		fmt.Fprintf(&b, ", %s failed", humanize.Plural(s.PartsFailed, "part", "parts"))
	}
	if s.Cancelled {
		b.WriteString(", stopped early")
	}
	return b.String()
}
