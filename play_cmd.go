package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/narrator/internal/audio"
	"github.com/dgnsrekt/narrator/internal/library"
	"github.com/dgnsrekt/narrator/internal/navigation"
	"github.com/dgnsrekt/narrator/internal/playback"
	"github.com/dgnsrekt/narrator/ui"
)

var playFlags struct {
	chapter string
	noTUI   bool
}

var playCmd = &cobra.Command{
	Use:               "play BOOK",
	Short:             "Play a recorded chapter",
	Long:              paragraph(fmt.Sprintf("\n%s a chapter's recorded parts in order. Parts that cannot be played are skipped.", keyword("Play"))),
	Example:           paragraph("narrator play moby-dick.epub\nnarrator play moby-dick.epub --chapter 3"),
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: bookCompletion,
	RunE:              runPlay,
}

func init() {
	playCmd.Flags().StringVarP(&playFlags.chapter, "chapter", "c", "", "chapter number, href or title (default: current chapter)")
	playCmd.Flags().BoolVar(&playFlags.noTUI, "no-tui", false, "play without the interactive view")
}

func runPlay(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	b, err := openBook(ctx, args[0])
	if err != nil {
		return err
	}
	defer b.Close() //nolint:errcheck

	ch, err := b.chapter(ctx, playFlags.chapter)
	if err != nil {
		return err
	}

	lookup := library.ChapterAudio
	if navigation.ExactHrefs(b.provider) {
		lookup = library.ExactChapterAudio
	}
	paths, err := lookup(ctx, b.store, b.path, ch.Href)
	if errors.Is(err, library.ErrNoAudio) {
		return fmt.Errorf("%w: record it first with `narrator record %s --chapter %d`", err, args[0], ch.Order+1)
	}
	if err != nil {
		return err
	}

	dev, err := audio.NewDevice(audio.Config{Volume: cfg.Playback.Volume})
	if err != nil {
		return err
	}

	seq := playback.NewSequencer(dev, log.Default())
	tui := useTUI(playFlags.noTUI)
	out := cmd.OutOrStdout()

	updates := make(chan playback.Status, 16)
	seq.OnChange(func(st playback.Status) {
		if !tui {
			if st.State == playback.StatePlaying && st.Path != "" {
				fmt.Fprintf(out, "%s %s\n", ui.StatusLine(st), faint(filepath.Base(st.Path)))
			}
			return
		}
		select {
		case updates <- st:
		default:
		}
	})

	if !tui {
		fmt.Fprintf(out, "Playing %s (%d parts)\n", ch.Label, len(paths))
	}
	if err := seq.Start(paths); err != nil {
		return err
	}
	if err := b.markCurrent(ctx, ch.Href); err != nil {
		log.Warn("could not update current chapter", "err", err)
	}

	if tui {
		title := fmt.Sprintf("%s · %s", b.title(), ch.Label)
		if _, err := tea.NewProgram(ui.NewPlayerModel(title, seq, updates, seq.Done()), tea.WithOutput(out)).Run(); err != nil {
			_ = seq.Stop()
			return fmt.Errorf("unable to run tui program: %w", err)
		}
	} else {
		select {
		case <-seq.Done():
		case <-ctx.Done():
		}
	}
	_ = seq.Stop()

	if err := seq.LastError(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Some parts were skipped:", err)
	}
	return nil
}
