package ui

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	apperrors "github.com/M6saw0/local-file-search-and-monitoring/internal/errors"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/search"
)

// previewWidth is how many runes of a preview the console shows.
const previewWidth = 100

var modeTitles = map[search.Mode]string{
	search.ModeHybrid:  "Hybrid",
	search.ModeLexical: "BM25",
	search.ModeVector:  "Vector",
	search.ModeCompare: "Compare",
}

// ResultFormatter renders engine responses as text.
type ResultFormatter struct {
	styles Styles
}

// NewResultFormatter creates a formatter; noColor drops ANSI styling.
func NewResultFormatter(noColor bool) *ResultFormatter {
	return &ResultFormatter{styles: GetStyles(noColor)}
}

// Response writes a search response. Compare responses are delegated to
// Comparison.
func (f *ResultFormatter) Response(w io.Writer, resp *search.Response) {
	if resp.Comparison != nil {
		f.Comparison(w, resp)
		return
	}
	st := f.styles

	header := fmt.Sprintf("%s results for %q (%d, %s)",
		modeTitles[resp.Mode], resp.Query, len(resp.Results), formatSeconds(resp.Took))
	if resp.Cached {
		header += " [cached]"
	}
	_, _ = fmt.Fprintln(w, st.Header.Render(header))
	if resp.Degraded {
		_, _ = fmt.Fprintln(w, st.Warning.Render(
			"degraded: "+strings.Join(resp.FailedRetrievers, ", ")+" unavailable"))
	}
	if len(resp.Results) == 0 {
		_, _ = fmt.Fprintln(w, st.Dim.Render("No matching documents."))
		return
	}

	rule := st.Border.Render(strings.Repeat("-", 60))
	_, _ = fmt.Fprintln(w, rule)
	for _, r := range resp.Results {
		f.result(w, r, resp.Mode)
	}
	_, _ = fmt.Fprintln(w, rule)

	if resp.Mode == search.ModeHybrid {
		lo, hi, avg := scoreStats(resp.Results)
		_, _ = fmt.Fprintln(w, st.Label.Render(
			fmt.Sprintf("scores: min=%.4f max=%.4f avg=%.4f", lo, hi, avg)))
	}
	for _, e := range resp.Explanations {
		parts := make([]string, 0, len(e.Contributions)+1)
		for _, c := range e.Contributions {
			parts = append(parts, fmt.Sprintf("%s #%d %.2f/(k+%d)=%.4f", c.Retriever, c.Rank, c.Weight, c.Rank, c.Score))
		}
		if len(e.MissingFrom) > 0 {
			parts = append(parts, "missing from "+strings.Join(e.MissingFrom, ", "))
		}
		_, _ = fmt.Fprintln(w, st.Dim.Render(fmt.Sprintf("  %s = %.4f: %s", e.Key, e.Score, strings.Join(parts, "; "))))
	}
}

func (f *ResultFormatter) result(w io.Writer, r search.Result, mode search.Mode) {
	st := f.styles
	line := fmt.Sprintf("%s %s %s",
		st.Rank.Render(fmt.Sprintf("%2d.", r.Rank)),
		st.Key.Render(r.Key),
		st.Score.Render(fmt.Sprintf("(score %.4f)", r.Score)))
	if mode == search.ModeHybrid {
		line += st.Dim.Render(fmt.Sprintf(" lexical #%s vector #%s", rankLabel(r.LexicalRank), rankLabel(r.VectorRank)))
	}
	_, _ = fmt.Fprintln(w, line)
	if r.Preview != "" {
		_, _ = fmt.Fprintln(w, "    "+st.Preview.Render(Truncate(oneLine(r.Preview), previewWidth)))
	}
}

// Comparison writes the three modes side by side with their overlap.
func (f *ResultFormatter) Comparison(w io.Writer, resp *search.Response) {
	st := f.styles
	c := resp.Comparison
	_, _ = fmt.Fprintln(w, st.Header.Render(fmt.Sprintf("Method comparison for %q", resp.Query)))
	_, _ = fmt.Fprintln(w, st.Border.Render(strings.Repeat("=", 60)))

	sides := []struct {
		name string
		m    search.ModeResult
	}{
		{"BM25", c.Lexical},
		{"VECTOR", c.Vector},
		{"HYBRID", c.Hybrid},
	}
	for _, side := range sides {
		_, _ = fmt.Fprintln(w, st.Active.Render(side.name+":"))
		if side.m.Error != "" {
			_, _ = fmt.Fprintln(w, "  "+st.Error.Render("error: "+side.m.Error))
			_, _ = fmt.Fprintln(w)
			continue
		}
		_, _ = fmt.Fprintf(w, "  %s %d\n", st.Label.Render("results:      "), len(side.m.Results))
		_, _ = fmt.Fprintf(w, "  %s %s\n", st.Label.Render("response time:"), formatSeconds(side.m.Took))
		_, _ = fmt.Fprintf(w, "  %s %.4f\n", st.Label.Render("average score:"), side.m.AverageScore)
		_, _ = fmt.Fprintf(w, "  %s %s\n", st.Label.Render("top files:    "), strings.Join(topFiles(side.m.Results, 3), ", "))
		_, _ = fmt.Fprintln(w)
	}

	_, _ = fmt.Fprintln(w, st.Active.Render("Overlap:"))
	_, _ = fmt.Fprintf(w, "  BM25 & Vector:   %d\n", c.Overlap.LexicalVector)
	_, _ = fmt.Fprintf(w, "  BM25 & Hybrid:   %d\n", c.Overlap.LexicalHybrid)
	_, _ = fmt.Fprintf(w, "  Vector & Hybrid: %d\n", c.Overlap.VectorHybrid)
	_, _ = fmt.Fprintf(w, "  All three:       %d\n", c.Overlap.All)
}

// Stats writes the engine counters.
func (f *ResultFormatter) Stats(w io.Writer, s search.Stats) {
	st := f.styles
	_, _ = fmt.Fprintln(w, st.Header.Render("Search statistics"))
	_, _ = fmt.Fprintf(w, "  %s %d\n", st.Label.Render("Total searches:"), s.TotalSearches)

	modes := make([]search.Mode, 0, len(s.ByMode))
	for m := range s.ByMode {
		modes = append(modes, m)
	}
	slices.Sort(modes)
	for _, m := range modes {
		_, _ = fmt.Fprintf(w, "    %-8s %d\n", string(m)+":", s.ByMode[m])
	}

	_, _ = fmt.Fprintf(w, "  %s %d hits, %d misses (%d entries)\n",
		st.Label.Render("Cache:         "), s.CacheHits, s.CacheMisses, s.CachedEntries)
	_, _ = fmt.Fprintf(w, "  %s %d degraded, %d timeouts, %d failures\n",
		st.Label.Render("Problems:      "), s.Degraded, s.Timeouts, s.Failures)
	_, _ = fmt.Fprintf(w, "  %s %s\n", st.Label.Render("Avg response:  "), formatSeconds(s.AvgResponseTime))
}

// Error writes err with its hint and code.
func (f *ResultFormatter) Error(w io.Writer, err error) {
	_, _ = fmt.Fprintln(w, f.styles.Error.Render(strings.TrimRight(apperrors.FormatForCLI(err), "\n")))
}

func scoreStats(results []search.Result) (lo, hi, avg float64) {
	if len(results) == 0 {
		return 0, 0, 0
	}
	lo, hi = results[0].Score, results[0].Score
	var sum float64
	for _, r := range results {
		lo = min(lo, r.Score)
		hi = max(hi, r.Score)
		sum += r.Score
	}
	return lo, hi, sum / float64(len(results))
}

func topFiles(results []search.Result, n int) []string {
	out := make([]string, 0, n)
	for _, r := range results[:min(n, len(results))] {
		out = append(out, r.FileName)
	}
	return out
}

func rankLabel(rank int) string {
	if rank == 0 {
		return "-"
	}
	return fmt.Sprint(rank)
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.3fs", d.Seconds())
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate shortens s to at most n runes, ending in "..." when cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
