package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/dgallion1/pagechat/internal/document"
	"github.com/dgallion1/pagechat/internal/pipeline"
)

// styles renders headings and statuses; color is dropped when w is not a terminal.
type styles struct {
	heading lipgloss.Style
	muted   lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	fail    lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		heading: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("#6C7086")),
		ok:      r.NewStyle().Foreground(lipgloss.Color("#A6E3A1")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("#F9E2AF")),
		fail:    r.NewStyle().Foreground(lipgloss.Color("#F38BA8")),
	}
}

func (s styles) status(st pipeline.URLStatus) string {
	label := fmt.Sprintf("%-8s", st)
	switch st {
	case pipeline.StatusIndexed:
		return s.ok.Render(label)
	case pipeline.StatusPartial:
		return s.warn.Render(label)
	case pipeline.StatusFailed:
		return s.fail.Render(label)
	default:
		return label
	}
}

func printReport(w io.Writer, s styles, rep pipeline.Report) {
	fmt.Fprintln(w, s.heading.Render("Indexed pages:"))
	for _, res := range rep.Results {
		title := res.Title
		if title == "" {
			title = "-"
		}
		fmt.Fprintf(w, "  %s %4d/%-4d %s %s\n",
			s.status(res.Status), res.Inserted, res.Chunks, res.URL, s.muted.Render(title))
		for _, err := range res.Errors {
			fmt.Fprintf(w, "      %s\n", s.fail.Render(err.Error()))
		}
	}
	fmt.Fprintf(w, "%s\n", s.muted.Render(fmt.Sprintf(
		"%d indexed, %d partial, %d failed, %d chunks in %s",
		rep.Succeeded(), rep.Partial(), rep.Failed(), rep.ChunksIndexed(),
		rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond))))
}

func printSources(w io.Writer, s styles, sources []string) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(w, s.heading.Render("Sources:"))
	for _, src := range sources {
		fmt.Fprintf(w, "- %s\n", src)
	}
}

func printAnswer(w io.Writer, s styles, text string, sources []string) {
	fmt.Fprintln(w, s.heading.Render("Answer:"))
	fmt.Fprintln(w, strings.TrimSpace(text))
	if len(sources) > 0 {
		fmt.Fprintln(w)
	}
	printSources(w, s, sources)
}

func printChunks(w io.Writer, s styles, hits []document.ScoredChunk) {
	fmt.Fprintln(w, s.heading.Render("Retrieved chunks:"))
	for i, h := range hits {
		src := h.Source()
		if src == "" {
			src = "Unknown"
		}
		fmt.Fprintf(w, "[%d] %s %s\n", i+1, src, s.muted.Render(fmt.Sprintf("(%.3f)", h.Score)))
		fmt.Fprintf(w, "    %s\n", strings.ReplaceAll(truncate(h.Text, 240), "\n", " "))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
