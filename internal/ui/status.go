package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/M6saw0/local-file-search-and-monitoring/internal/index"
)

// StatusRenderer displays index status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render writes st. dataSize is the on-disk size of the data directory, or
// 0 to omit it.
func (r *StatusRenderer) Render(st index.Status, dataSize int64) error {
	p := func(format string, args ...any) { _, _ = fmt.Fprintf(r.out, format, args...) }

	p("%s\n\n", r.styles.Header.Render("Index Status: "+st.Root))

	ready := "ready"
	if !st.Ready {
		ready = "not ready"
	}
	p("  State:        %s\n", r.renderState(ready))
	p("  Documents:    %d\n", st.Documents)
	p("  Chunks:       %d\n", st.Chunks)
	p("  Terms:        %d\n", st.Terms)
	p("  Snapshot:     v%d\n", st.SnapshotVersion)
	if !st.LastUpdate.IsZero() {
		p("  Last update:  %s\n", formatAgo(st.LastUpdate))
	}
	if st.PendingEvents > 0 {
		p("  Pending:      %d events\n", st.PendingEvents)
	}
	p("\n")

	p("  Changes:      %d added, %d updated, %d removed, %d failed\n",
		st.FilesAdded, st.FilesUpdated, st.FilesRemoved, st.FilesFailed)
	p("\n")

	p("  Persistence:\n")
	p("    Data dir:   %s\n", st.DataDir)
	if dataSize > 0 {
		p("    Size:       %s\n", FormatBytes(dataSize))
	}
	p("    Persisted:  v%d", st.PersistedSnapshot)
	if st.Dirty {
		p(" %s", r.styles.Warning.Render("(unsaved changes)"))
	}
	p("\n")
	if !st.LastPersist.IsZero() {
		p("    Last save:  %s\n", formatAgo(st.LastPersist))
	}
	if st.Degraded {
		p("    %s\n", r.styles.Error.Render("degraded: "+st.LastPersistError))
	}
	p("\n")

	p("  Embeddings:\n")
	p("    Model:      %s (%d dims)\n", st.EmbeddingModel, st.Dimensions)
	p("    Backend:    %s\n", st.VectorBackend)
	if st.Watcher != "" {
		p("  Watcher:      %s\n", r.renderState(st.Watcher))
	}
	return nil
}

// RenderJSON writes v as indented JSON.
func (r *StatusRenderer) RenderJSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (r *StatusRenderer) renderState(state string) string {
	switch state {
	case "ready", "running", "fsnotify", "polling":
		return r.styles.Success.Render(state)
	case "not ready", "stopped":
		return r.styles.Warning.Render(state)
	case "error":
		return r.styles.Error.Render(state)
	default:
		return state
	}
}

// formatAgo renders t relative to now.
func formatAgo(t time.Time) string {
	diff := time.Since(t)
	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats a byte count.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
