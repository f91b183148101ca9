package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/M6saw0/local-file-search-and-monitoring/internal/index"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/search"
)

// CommandKind classifies a console line.
type CommandKind int

const (
	CommandEmpty CommandKind = iota
	CommandSearch
	CommandStats
	CommandStatus
	CommandHelp
	CommandExit
)

// Command is one parsed console line.
type Command struct {
	Kind  CommandKind
	Mode  search.Mode
	Query string
}

var modePrefixes = []struct {
	prefix string
	mode   search.Mode
}{
	{"lexical:", search.ModeLexical},
	{"bm25:", search.ModeLexical},
	{"vector:", search.ModeVector},
	{"compare:", search.ModeCompare},
}

// ParseCommand interprets a console line. Keywords and mode prefixes are
// case-insensitive; any other text is a hybrid query.
func ParseCommand(line string) Command {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{Kind: CommandEmpty}
	}
	switch strings.ToLower(line) {
	case "exit", "quit":
		return Command{Kind: CommandExit}
	case "stats":
		return Command{Kind: CommandStats}
	case "status":
		return Command{Kind: CommandStatus}
	case "help", "?":
		return Command{Kind: CommandHelp}
	}
	lower := strings.ToLower(line)
	for _, p := range modePrefixes {
		if strings.HasPrefix(lower, p.prefix) {
			return Command{Kind: CommandSearch, Mode: p.mode, Query: strings.TrimSpace(line[len(p.prefix):])}
		}
	}
	return Command{Kind: CommandSearch, Mode: search.ModeHybrid, Query: line}
}

// HelpText lists the console commands.
const HelpText = `Commands:
  <query>           hybrid search
  lexical:<query>   BM25 only (alias bm25:)
  vector:<query>    vector similarity only
  compare:<query>   all three methods side by side
  stats             search statistics
  status            index status
  help              this text
  exit, quit        leave the console`

// Searcher is what the console queries. *search.Engine implements it.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
	Stats() search.Stats
}

// StatusSource reports index state. *index.Manager implements it.
type StatusSource interface {
	GetStatus() index.Status
}

// Console is the interactive search loop.
type Console struct {
	searcher Searcher
	status   StatusSource
	cfg      Config
	k        int
	results  *ResultFormatter

	mu      sync.Mutex
	latency *Sparkline
}

// NewConsole creates a console returning k results per query; k <= 0 uses
// the engine default.
func NewConsole(searcher Searcher, status StatusSource, cfg Config, k int) *Console {
	return &Console{
		searcher: searcher,
		status:   status,
		cfg:      cfg,
		k:        k,
		results:  NewResultFormatter(cfg.NoColor),
		latency:  NewSparkline(40),
	}
}

// Run reads commands from in until exit, EOF or ctx ends. Interactive
// terminals get the bubbletea console.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	if c.cfg.Interactive() {
		return c.runTUI(ctx)
	}
	return c.RunPlain(ctx, in)
}

// RunPlain is the line-oriented console.
func (c *Console) RunPlain(ctx context.Context, in io.Reader) error {
	out := c.cfg.Output
	_, _ = fmt.Fprintln(out, "Hybrid search ready.")
	_, _ = fmt.Fprintln(out, HelpText)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		_, _ = fmt.Fprint(out, "\nsearch> ")
		select {
		case <-ctx.Done():
			_, _ = fmt.Fprintln(out)
			return nil
		case line, ok := <-lines:
			if !ok {
				_, _ = fmt.Fprintln(out)
				return nil
			}
			if c.Execute(ctx, ParseCommand(line), out) {
				return nil
			}
		}
	}
}

// Execute runs one command and writes its output to w. It reports whether
// the console should exit.
func (c *Console) Execute(ctx context.Context, cmd Command, w io.Writer) bool {
	switch cmd.Kind {
	case CommandEmpty:
	case CommandExit:
		return true
	case CommandHelp:
		_, _ = fmt.Fprintln(w, HelpText)
	case CommandStats:
		c.results.Stats(w, c.searcher.Stats())
		if spark := c.latencySparkline(); spark != "" {
			_, _ = fmt.Fprintf(w, "  Latency trend:  %s\n", spark)
		}
	case CommandStatus:
		if c.status == nil {
			_, _ = fmt.Fprintln(w, "index status unavailable")
			break
		}
		_ = NewStatusRenderer(w, c.cfg.NoColor).Render(c.status.GetStatus(), 0)
	case CommandSearch:
		start := time.Now()
		resp, err := c.searcher.Search(ctx, search.Request{Query: cmd.Query, Mode: cmd.Mode, K: c.k})
		if err != nil {
			c.results.Error(w, err)
			break
		}
		c.mu.Lock()
		c.latency.Add(float64(time.Since(start).Microseconds()))
		c.mu.Unlock()
		c.results.Response(w, resp)
	}
	return false
}

func (c *Console) latencySparkline() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latency.Count() == 0 {
		return ""
	}
	return c.results.styles.Sparkline.Render(c.latency.Render(0))
}
