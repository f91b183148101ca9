package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/M6saw0/local-file-search-and-monitoring/internal/errors"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/index"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/retrieve"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/telemetry"
)

// previewLength is the preview size in runes.
const previewLength = 200

// emaAlpha weighs the latest response time in the moving average.
const emaAlpha = 0.1

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("required dependency is nil")

// SnapshotSource hands out the active index snapshot. *index.Manager
// implements it.
type SnapshotSource interface {
	Current() *index.Snapshot
}

// EngineOption configures optional Engine dependencies.
type EngineOption func(*Engine)

// WithMetrics records every query in m.
func WithMetrics(m *telemetry.QueryMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// Engine answers queries against the active snapshot.
//
// Each query loads the snapshot once and passes it to both retrievers, so
// the two rankings always describe the same index state.
type Engine struct {
	source  SnapshotSource
	lexical retrieve.Retriever
	vector  retrieve.Retriever
	fusion  *RRFFusion
	cache   *ResultCache
	metrics *telemetry.QueryMetrics
	cfg     EngineConfig

	statsMu sync.Mutex
	stats   Stats
}

// NewEngine creates an engine. Returns an error if any required dependency
// is nil.
func NewEngine(source SnapshotSource, lexical, vector retrieve.Retriever, cfg EngineConfig, opts ...EngineOption) (*Engine, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: snapshot source is required", ErrNilDependency)
	}
	if lexical == nil {
		return nil, fmt.Errorf("%w: lexical retriever is required", ErrNilDependency)
	}
	if vector == nil {
		return nil, fmt.Errorf("%w: vector retriever is required", ErrNilDependency)
	}
	cfg = cfg.withDefaults()

	e := &Engine{
		source:  source,
		lexical: lexical,
		vector:  vector,
		fusion:  NewRRFFusionWithK(cfg.RRFK),
		cfg:     cfg,
		stats:   Stats{ByMode: make(map[Mode]int64)},
	}
	if cfg.CacheEnabled {
		e.cache = NewResultCache(cfg.CacheSize, cfg.CacheTTL)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() EngineConfig { return e.cfg }

// SearchHybrid fuses both retrievers with the given weights.
func (e *Engine) SearchHybrid(ctx context.Context, query string, k int, w Weights) (*Response, error) {
	return e.Search(ctx, Request{Query: query, Mode: ModeHybrid, K: k, Weights: &w})
}

// SearchLexicalOnly returns the BM25 ranking.
func (e *Engine) SearchLexicalOnly(ctx context.Context, query string, k int) (*Response, error) {
	return e.Search(ctx, Request{Query: query, Mode: ModeLexical, K: k})
}

// SearchVectorOnly returns the vector ranking.
func (e *Engine) SearchVectorOnly(ctx context.Context, query string, k int) (*Response, error) {
	return e.Search(ctx, Request{Query: query, Mode: ModeVector, K: k})
}

// CompareMethods runs all three modes side by side. It is never cached.
func (e *Engine) CompareMethods(ctx context.Context, query string, k int) (*Response, error) {
	return e.Search(ctx, Request{Query: query, Mode: ModeCompare, K: k})
}

// Search validates req and dispatches it by mode.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, apperrors.ValidationError(apperrors.ErrCodeInvalidQuery, "query is empty")
	}

	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return nil, err
	}

	k := req.K
	if k == 0 {
		k = e.cfg.FinalResults
	}
	if k < 1 || k > e.cfg.MaxK {
		return nil, apperrors.ValidationError(apperrors.ErrCodeInvalidK,
			fmt.Sprintf("k must be between 1 and %d, got %d", e.cfg.MaxK, req.K))
	}

	w := e.cfg.DefaultWeights
	if req.Weights != nil {
		w = *req.Weights
	}
	if err := validateWeights(w); err != nil {
		return nil, err
	}

	return e.execute(ctx, query, mode, k, w, req.Explain)
}

func validateWeights(w Weights) error {
	for _, v := range []float64{w.Lexical, w.Vector} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return apperrors.ValidationError(apperrors.ErrCodeInvalidWeight,
				fmt.Sprintf("weights must be finite and non-negative, got lexical=%g vector=%g", w.Lexical, w.Vector))
		}
	}
	if w.Lexical == 0 && w.Vector == 0 {
		return apperrors.ValidationError(apperrors.ErrCodeInvalidWeight, "at least one weight must be positive")
	}
	return nil
}

func (e *Engine) execute(ctx context.Context, query string, mode Mode, k int, w Weights, explain bool) (*Response, error) {
	start := time.Now()
	requestID := uuid.NewString()

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	snap := e.source.Current()
	if mode != ModeHybrid {
		// Weights only shape hybrid rankings.
		w = Weights{}
	}
	key := CacheKey(query, mode, w, k)
	useCache := e.cache != nil && mode != ModeCompare && !explain

	if useCache {
		if cached, ok := e.cache.Get(key, snap.Version); ok {
			resp := cached
			resp.RequestID = requestID
			resp.Results = slices.Clone(cached.Results)
			resp.Cached = true
			resp.Took = time.Since(start)
			e.record(query, mode, &resp, nil)
			return &resp, nil
		}
	}

	var (
		resp *Response
		err  error
	)
	switch mode {
	case ModeHybrid:
		resp, err = e.hybrid(ctx, snap, query, k, w, explain)
	case ModeLexical:
		resp, err = e.single(ctx, snap, e.lexical, query, k)
	case ModeVector:
		resp, err = e.single(ctx, snap, e.vector, query, k)
	case ModeCompare:
		resp, err = e.compare(ctx, snap, query, k)
	}
	if err != nil {
		err = e.classify(ctx, err)
		e.record(query, mode, nil, err)
		return nil, err
	}

	resp.RequestID = requestID
	resp.Query = query
	resp.Mode = mode
	resp.K = k
	resp.SnapshotVersion = snap.Version
	resp.Took = time.Since(start)

	if useCache && !resp.Degraded {
		stored := *resp
		stored.Results = slices.Clone(resp.Results)
		e.cache.Put(key, snap.Version, stored)
	}
	e.record(query, mode, resp, nil)
	return resp, nil
}

// classify maps context errors to the timeout error. A caller cancellation
// passes through unchanged.
func (e *Engine) classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.New(apperrors.ErrCodeSearchTimeout,
			fmt.Sprintf("search exceeded %s", e.cfg.Timeout), context.DeadlineExceeded).
			WithSuggestion("Retry with a smaller k or raise search.timeout")
	}
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	return err
}

// retrieval is one retriever's outcome within a query.
type retrieval struct {
	name   string
	weight float64
	cands  []retrieve.Candidate
	took   time.Duration
	err    error
}

// retrieveAll runs the retrievers with a positive weight concurrently. A
// failing retriever does not cancel the others.
func (e *Engine) retrieveAll(ctx context.Context, snap *index.Snapshot, query string, limit int, w Weights) ([]*retrieval, error) {
	var runs []*retrieval
	var retrievers []retrieve.Retriever
	if w.Lexical > 0 {
		runs = append(runs, &retrieval{name: e.lexical.Name(), weight: w.Lexical})
		retrievers = append(retrievers, e.lexical)
	}
	if w.Vector > 0 {
		runs = append(runs, &retrieval{name: e.vector.Name(), weight: w.Vector})
		retrievers = append(retrievers, e.vector)
	}

	var g errgroup.Group
	for i, r := range retrievers {
		run := runs[i]
		g.Go(func() error {
			start := time.Now()
			run.cands, run.err = r.Search(ctx, snap, query, limit)
			run.took = time.Since(start)
			return nil
		})
	}

	// A retriever that ignores ctx finishes in the background; its result
	// is never read once the deadline has passed.
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var errs []error
	for _, run := range runs {
		if run.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", run.name, run.err))
		}
	}
	if len(errs) == len(runs) {
		return nil, apperrors.New(apperrors.ErrCodeRetrievalUnavailable,
			"all retrievers failed", errors.Join(errs...))
	}
	return runs, nil
}

func (e *Engine) candidateLimit(k int) int {
	return max(e.cfg.MaxCandidates, k)
}

func (e *Engine) hybrid(ctx context.Context, snap *index.Snapshot, query string, k int, w Weights, explain bool) (*Response, error) {
	runs, err := e.retrieveAll(ctx, snap, query, e.candidateLimit(k), w)
	if err != nil {
		return nil, err
	}

	resp := &Response{}
	lists := make([]RankedList, 0, len(runs))
	for _, run := range runs {
		if run.err != nil {
			resp.Degraded = true
			resp.FailedRetrievers = append(resp.FailedRetrievers, run.name)
			slog.Warn("retriever_failed",
				slog.String("retriever", run.name),
				slog.String("error", run.err.Error()))
			continue
		}
		lists = append(lists, RankedList{Name: run.name, Weight: run.weight, Candidates: run.cands})
	}

	fused := e.fusion.Fuse(lists, k)
	resp.Results = e.fusedResults(snap, fused, lists)
	if explain {
		resp.Explanations = make([]Explanation, len(fused))
		for i, f := range fused {
			resp.Explanations[i] = e.fusion.Explain(lists, f.Key)
			resp.Explanations[i].MissingFrom = append(resp.Explanations[i].MissingFrom, resp.FailedRetrievers...)
		}
	}
	return resp, nil
}

func (e *Engine) single(ctx context.Context, snap *index.Snapshot, r retrieve.Retriever, query string, k int) (*Response, error) {
	type outcome struct {
		cands []retrieve.Candidate
		err   error
	}
	ch := make(chan outcome, 1)
	go func() {
		cands, err := r.Search(ctx, snap, query, k)
		ch <- outcome{cands, err}
	}()

	var cands []retrieve.Candidate
	var err error
	select {
	case out := <-ch:
		cands, err = out.cands, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.New(apperrors.ErrCodeRetrievalUnavailable,
			r.Name()+" retriever failed", err)
	}
	return &Response{Results: candidateResults(snap, cands)}, nil
}

func (e *Engine) compare(ctx context.Context, snap *index.Snapshot, query string, k int) (*Response, error) {
	w := e.cfg.DefaultWeights
	if w.Lexical <= 0 || w.Vector <= 0 {
		w = DefaultWeights()
	}
	runs, err := e.retrieveAll(ctx, snap, query, e.candidateLimit(k), w)
	if err != nil {
		return nil, err
	}

	cmp := &Comparison{}
	resp := &Response{Comparison: cmp}
	lists := make([]RankedList, 0, len(runs))
	var slowest time.Duration
	for _, run := range runs {
		side := &cmp.Lexical
		if run.name == e.vector.Name() {
			side = &cmp.Vector
		}
		side.Took = run.took
		slowest = max(slowest, run.took)
		if run.err != nil {
			side.Error = run.err.Error()
			resp.Degraded = true
			resp.FailedRetrievers = append(resp.FailedRetrievers, run.name)
			continue
		}
		top := run.cands
		if len(top) > k {
			top = top[:k]
		}
		side.Results = candidateResults(snap, top)
		side.AverageScore = averageScore(side.Results)
		lists = append(lists, RankedList{Name: run.name, Weight: run.weight, Candidates: run.cands})
	}

	fuseStart := time.Now()
	fused := e.fusion.Fuse(lists, k)
	cmp.Hybrid.Results = e.fusedResults(snap, fused, lists)
	cmp.Hybrid.Took = slowest + time.Since(fuseStart)
	cmp.Hybrid.AverageScore = averageScore(cmp.Hybrid.Results)
	cmp.Overlap = overlap(cmp.Lexical.Results, cmp.Vector.Results, cmp.Hybrid.Results)

	resp.Results = cmp.Hybrid.Results
	return resp, nil
}

func (e *Engine) fusedResults(snap *index.Snapshot, fused []FusedResult, lists []RankedList) []Result {
	ordinals := make(map[string]int)
	for _, l := range lists {
		for _, c := range l.Candidates {
			if c.ChunkOrdinal >= 0 {
				if _, ok := ordinals[c.Key]; !ok {
					ordinals[c.Key] = c.ChunkOrdinal
				}
			}
		}
	}

	results := make([]Result, len(fused))
	for i, f := range fused {
		ord, ok := ordinals[f.Key]
		if !ok {
			ord = -1
		}
		results[i] = Result{
			Rank:        f.Rank,
			Key:         f.Key,
			FileName:    path.Base(f.Key),
			Score:       f.Score,
			Preview:     preview(snap, f.Key, ord),
			LexicalRank: f.Ranks[retrieve.NameLexical],
			VectorRank:  f.Ranks[retrieve.NameVector],
		}
	}
	return results
}

func candidateResults(snap *index.Snapshot, cands []retrieve.Candidate) []Result {
	results := make([]Result, len(cands))
	for i, c := range cands {
		results[i] = Result{
			Rank:     c.Rank,
			Key:      c.Key,
			FileName: path.Base(c.Key),
			Score:    c.Score,
			Preview:  preview(snap, c.Key, c.ChunkOrdinal),
		}
	}
	return results
}

// preview returns the matching chunk, or the document start, with
// whitespace collapsed and cut to previewLength runes.
func preview(snap *index.Snapshot, key string, ordinal int) string {
	var text string
	if ordinal >= 0 {
		text = snap.ChunkText(key, ordinal)
	}
	if text == "" {
		if d, ok := snap.Docs[key]; ok {
			text = d.Text
		}
	}
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= previewLength {
		return text
	}
	return string([]rune(text)[:previewLength])
}

func averageScore(results []Result) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += r.Score
	}
	return sum / float64(len(results))
}

func overlap(lexical, vector, hybrid []Result) Overlap {
	in := func(results []Result) map[string]bool {
		set := make(map[string]bool, len(results))
		for _, r := range results {
			set[r.Key] = true
		}
		return set
	}
	l, v, h := in(lexical), in(vector), in(hybrid)

	var o Overlap
	for key := range l {
		if v[key] {
			o.LexicalVector++
		}
		if h[key] {
			o.LexicalHybrid++
		}
		if v[key] && h[key] {
			o.All++
		}
	}
	for key := range v {
		if h[key] {
			o.VectorHybrid++
		}
	}
	return o
}

// record updates stats and telemetry. resp is nil for failed queries.
func (e *Engine) record(query string, mode Mode, resp *Response, err error) {
	e.statsMu.Lock()
	e.stats.TotalSearches++
	e.stats.ByMode[mode]++
	switch {
	case err != nil && errors.Is(err, apperrors.ErrSearchTimeout):
		e.stats.Timeouts++
	case err != nil:
		e.stats.Failures++
	case resp.Cached:
		e.stats.CacheHits++
	case e.cache != nil && mode != ModeCompare:
		e.stats.CacheMisses++
	}
	if resp != nil {
		if resp.Degraded {
			e.stats.Degraded++
		}
		if e.stats.AvgResponseTime == 0 {
			e.stats.AvgResponseTime = resp.Took
		} else {
			e.stats.AvgResponseTime = time.Duration(emaAlpha*float64(resp.Took) + (1-emaAlpha)*float64(e.stats.AvgResponseTime))
		}
	}
	e.statsMu.Unlock()

	if err != nil {
		slog.Warn("search_failed",
			slog.String("mode", string(mode)),
			slog.String("error", err.Error()))
		return
	}

	slog.Debug("search_completed",
		slog.String("request_id", resp.RequestID),
		slog.String("mode", string(mode)),
		slog.Int("results", len(resp.Results)),
		slog.Bool("cached", resp.Cached),
		slog.Bool("degraded", resp.Degraded),
		slog.Duration("took", resp.Took))

	if e.metrics != nil {
		e.metrics.Record(telemetry.QueryEvent{
			Query:       query,
			Mode:        telemetry.SearchMode(mode),
			ResultCount: len(resp.Results),
			Latency:     resp.Took,
			Degraded:    resp.Degraded,
			Cached:      resp.Cached,
			Timestamp:   time.Now(),
		})
	}
}

// Stats returns a copy of the engine counters.
func (e *Engine) Stats() Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()

	st := e.stats
	st.ByMode = make(map[Mode]int64, len(e.stats.ByMode))
	for m, n := range e.stats.ByMode {
		st.ByMode[m] = n
	}
	if e.cache != nil {
		st.CachedEntries = e.cache.Len()
	}
	return st
}
