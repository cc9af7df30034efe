package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/narrator/internal/index"
	"github.com/dgnsrekt/narrator/internal/navigation"
)

const maxLabelWidth = 48

var chaptersCmd = &cobra.Command{
	Use:               "chapters BOOK",
	Aliases:           []string{"ls"},
	Short:             "List a book's chapters",
	Long:              paragraph(fmt.Sprintf("\nList the chapters of an EPUB, Markdown or text book, marking the ones %s.", keyword("with recorded audio"))),
	Example:           paragraph("narrator chapters moby-dick.epub"),
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: bookCompletion,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBook(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer b.Close() //nolint:errcheck

		chapters, err := b.chapters(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), keyword(b.title()))
		writeChapterTable(cmd.OutOrStdout(), chapters, b.record.Index(), b.record.CurrentHref)
		return nil
	},
}

// writeChapterTable prints one row per chapter: current marker, number,
// label, audio marker and href.
func writeChapterTable(w io.Writer, chapters []navigation.ChapterRef, audio *index.Index, current string) {
	numWidth := len(strconv.Itoa(len(chapters)))

	if audio == nil {
		audio = index.New()
	}

	labelWidth := 0
	for _, ch := range chapters {
		labelWidth = max(labelWidth, runewidth.StringWidth(ch.Label))
	}
	labelWidth = min(labelWidth, maxLabelWidth)

	for i, ch := range chapters {
		marker := " "
		if ch.Href == current {
			marker = "›"
		}
		recorded := " "
		// Exact keys only: Resolve's loose matching would flag every
		// section sharing a file with a recorded one.
		if _, ok := audio.Lookup(ch.Href); ok {
			recorded = "♪"
		}

		label := runewidth.Truncate(ch.Label, labelWidth, "…")
		label = runewidth.FillRight(label, labelWidth)

		line := fmt.Sprintf("%s %*d  %s  %s  %s", marker, numWidth, i+1, label, recorded, faint(ch.Href))
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
}
