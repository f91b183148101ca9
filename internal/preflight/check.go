package preflight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/M6saw0/local-file-search-and-monitoring/internal/config"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/embed"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/extract"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/store"
)

// CheckStatus is the outcome of one check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

// String returns PASS, WARN or FAIL.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText makes the status readable in JSON output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// UnmarshalText parses pass, warn or fail.
func (s *CheckStatus) UnmarshalText(text []byte) error {
	switch strings.ToUpper(string(text)) {
	case "PASS":
		*s = StatusPass
	case "WARN":
		*s = StatusWarn
	case "FAIL":
		*s = StatusFail
	default:
		return fmt.Errorf("unknown check status %q", text)
	}
	return nil
}

// CheckResult holds the result of a single check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical reports a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker runs the checks for one configuration.
type Checker struct {
	cfg      *config.Config
	embedder embed.Embedder
	verbose  bool
	output   io.Writer

	// Overridable for tests.
	minDiskBytes uint64
	minFDs       uint64
	watchLimit   func() (int, error)
	pdfTool      func() error
}

// Option configures a Checker.
type Option func(*Checker)

// WithEmbedder enables the embedder check.
func WithEmbedder(e embed.Embedder) Option {
	return func(c *Checker) { c.embedder = e }
}

// WithVerbose prints check details.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) { c.verbose = verbose }
}

// WithOutput sets where PrintResults writes.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) { c.output = w }
}

// New creates a Checker for cfg.
func New(cfg *config.Config, opts ...Option) *Checker {
	c := &Checker{
		cfg:          cfg,
		output:       os.Stdout,
		minDiskBytes: MinDiskSpaceBytes,
		minFDs:       MinFileDescriptors,
		watchLimit:   inotifyWatchLimit,
		pdfTool:      extract.CheckAvailable,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check in a fixed order.
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	results := []CheckResult{
		c.CheckWatchRoot(),
		c.CheckDataDir(),
		c.CheckDiskSpace(),
		c.CheckFileDescriptors(),
		c.CheckWatchLimit(),
		c.CheckPDFTool(),
	}
	if c.embedder != nil {
		results = append(results, c.CheckEmbedder(ctx))
	}
	return append(results, c.CheckIndex())
}

// HasCriticalFailures reports whether any required check failed.
func HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus is "failed", "ready_with_warnings" or "ready".
func SummaryStatus(results []CheckResult) string {
	warned := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status != StatusPass {
			warned = true
		}
	}
	if warned {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults writes one line per check and a summary.
func (c *Checker) PrintResults(results []CheckResult) {
	w := c.output
	_, _ = fmt.Fprintln(w, "lfsearch System Check")
	_, _ = fmt.Fprintln(w, "=====================")
	_, _ = fmt.Fprintln(w)

	var problems []string
	for _, r := range results {
		_, _ = fmt.Fprintf(w, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			_, _ = fmt.Fprintf(w, "       %s\n", r.Details)
		}
		if r.Status != StatusPass {
			line := r.Name + ": " + r.Message
			if r.Details != "" {
				line += " (" + r.Details + ")"
			}
			problems = append(problems, line)
		}
	}

	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "Status: %s\n", strings.ToUpper(SummaryStatus(results)))
	if len(problems) > 0 {
		_, _ = fmt.Fprintln(w)
		for _, p := range problems {
			_, _ = fmt.Fprintf(w, "  - %s\n", p)
		}
	}
}

// CheckWatchRoot requires the watch root to be an existing directory.
func (c *Checker) CheckWatchRoot() CheckResult {
	r := CheckResult{Name: "watch_root", Required: true}
	info, err := os.Stat(c.cfg.Watch.Root)
	switch {
	case err != nil:
		r.Status, r.Message = StatusFail, fmt.Sprintf("%s: %v", c.cfg.Watch.Root, err)
	case !info.IsDir():
		r.Status, r.Message = StatusFail, c.cfg.Watch.Root+" is not a directory"
	default:
		r.Status, r.Message = StatusPass, c.cfg.Watch.Root
	}
	return r
}

// CheckDataDir requires the data directory to be writable. It creates the
// directory when its parent exists.
func (c *Checker) CheckDataDir() CheckResult {
	r := CheckResult{Name: "data_dir", Required: true}
	dir := c.cfg.Persist.DataDir

	if _, err := os.Stat(filepath.Dir(dir)); err != nil {
		r.Status, r.Message = StatusFail, fmt.Sprintf("parent of %s is missing", dir)
		return r
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		r.Status, r.Message = StatusFail, fmt.Sprintf("cannot create %s: %v", dir, err)
		return r
	}
	probe := filepath.Join(dir, ".preflight-probe")
	f, err := os.Create(probe)
	if err != nil {
		r.Status, r.Message = StatusFail, fmt.Sprintf("not writable: %v", err)
		return r
	}
	_ = f.Close()
	_ = os.Remove(probe)

	r.Status, r.Message = StatusPass, dir
	return r
}

// CheckPDFTool warns when .pdf files are watched but pdftotext is missing.
// Such files are then skipped.
func (c *Checker) CheckPDFTool() CheckResult {
	r := CheckResult{Name: "pdf_extractor"}
	if !slices.Contains(c.cfg.Watch.Extensions, ".pdf") {
		r.Status, r.Message = StatusPass, "PDF files not watched"
		return r
	}
	if err := c.pdfTool(); err != nil {
		r.Status, r.Message = StatusWarn, "pdftotext not found, PDF files will be skipped"
		r.Details = "Install poppler-utils"
		return r
	}
	r.Status, r.Message = StatusPass, "pdftotext available"
	return r
}

// CheckEmbedder requires the embedder to answer with the configured
// dimensions.
func (c *Checker) CheckEmbedder(ctx context.Context) CheckResult {
	r := CheckResult{Name: "embedder", Required: true}
	if err := embed.Verify(ctx, c.embedder, c.cfg.Vector.Dimensions); err != nil {
		r.Status, r.Message = StatusFail, err.Error()
		r.Details = "Check vector.provider and vector.dimensions"
		return r
	}
	r.Status = StatusPass
	r.Message = fmt.Sprintf("%s (%d dimensions)", c.embedder.ModelName(), c.embedder.Dimensions())
	return r
}

// CheckIndex inspects the saved index. A missing index only warns; an
// unreadable one or a dimension change fails.
func (c *Checker) CheckIndex() CheckResult {
	r := CheckResult{Name: "saved_index", Required: true}
	lex, vec, err := store.LoadPair(c.cfg.Persist.DataDir)
	switch {
	case errors.Is(err, store.ErrArtifactMissing):
		r.Status, r.Message = StatusWarn, "no saved index"
		r.Details = "Run 'lfsearch index' to build one"
		return r
	case err != nil:
		r.Status, r.Message = StatusFail, err.Error()
		r.Details = "Run 'lfsearch index --force' to rebuild"
		return r
	}

	if vec.Header.Dimensions != c.cfg.Vector.Dimensions {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("saved with %d dimensions, configured for %d",
			vec.Header.Dimensions, c.cfg.Vector.Dimensions)
		r.Details = "Run 'lfsearch index --force' to rebuild"
		return r
	}

	r.Status = StatusPass
	r.Message = fmt.Sprintf("%d documents, snapshot %d, saved %s",
		len(lex.Documents), lex.Header.SnapshotID, lex.Header.CreatedAt.Format("2006-01-02 15:04"))
	if lock := store.NewDirLock(c.cfg.Persist.DataDir); lock.TryLock() != nil {
		r.Details = "in use by a running lfsearch process"
	} else {
		_ = lock.Unlock()
	}
	return r
}
