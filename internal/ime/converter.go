package ime

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/text/unicode/norm"

	"kanaime/internal/logging"
)

// LearningMode controls whether selections feed the learning memory and
// whether the memory re-orders candidates.
type LearningMode int

const (
	// LearnInputOutput ranks with memory and records selections.
	LearnInputOutput LearningMode = iota
	// LearnOutputOnly ranks with memory but records nothing.
	LearnOutputOnly
	// LearnNone ignores memory entirely.
	LearnNone
)

func (m LearningMode) String() string {
	switch m {
	case LearnInputOutput:
		return "input_output"
	case LearnOutputOnly:
		return "output_only"
	case LearnNone:
		return "none"
	default:
		return "unknown"
	}
}

// ParseLearningMode parses the names returned by LearningMode.String.
func ParseLearningMode(s string) (LearningMode, error) {
	switch strings.ToLower(s) {
	case "input_output", "inputandoutput":
		return LearnInputOutput, nil
	case "output_only", "onlyoutput":
		return LearnOutputOnly, nil
	case "none", "nothing", "":
		return LearnNone, nil
	default:
		return LearnNone, fmt.Errorf("unknown learning mode: %q", s)
	}
}

// RequestContext accompanies every candidate request.
type RequestContext struct {
	// PrecedingText is the text left of the caret, most recent last.
	PrecedingText string `json:"preceding_text,omitempty"`
	// Language is the keyboard language tag, e.g. "ja_JP".
	Language string `json:"language,omitempty"`
	// Learning is the learning mode in effect.
	Learning LearningMode `json:"learning"`
}

// EngineSettings configure a conversion engine.
type EngineSettings struct {
	DictionaryPath         string `json:"dictionary_path"`
	MemoryPath             string `json:"memory_path,omitempty"`
	AIAssistEnabled        bool   `json:"ai_assist_enabled"`
	AIAssistInferenceLimit int    `json:"ai_assist_inference_limit"`
	AIAssistWeightPath     string `json:"ai_assist_weight_path,omitempty"`
}

// AIAssistActive reports whether neural re-ranking can run: it needs both
// the enable flag and a weight file.
func (s EngineSettings) AIAssistActive() bool {
	return s.AIAssistEnabled && s.AIAssistWeightPath != ""
}

// ConversionEngine is the external romaji/kana to kanji converter.
// ComposedText renders input as kana without kanji conversion; it is what
// the user sees while composing. Candidates returns the ranked conversions.
type ConversionEngine interface {
	Init(ctx context.Context, settings EngineSettings) error
	ComposedText(ctx context.Context, input string, rc RequestContext) (string, error)
	Candidates(ctx context.Context, input string, rc RequestContext) ([]string, error)
	Learn(ctx context.Context, candidate string) error
	Shutdown(ctx context.Context) error
}

// Ranker re-orders candidates from selection history.
type Ranker interface {
	Rank(ctx context.Context, reading string, candidates []string) ([]string, error)
	Record(ctx context.Context, reading, candidate string) error
}

type clientState int

const (
	stateUnconfigured clientState = iota
	stateConfigured
	stateReady
	stateFailed
	stateShutdown
)

const (
	defaultCacheTTL      = 2 * time.Minute
	defaultCacheCapacity = 512
	initRetryInterval    = 5 * time.Second

	// maxConsecutiveFailures failed requests in a row mark a ready engine as
	// failed, so the next request after initRetryInterval initialises it
	// again.
	maxConsecutiveFailures = 3
)

// ConverterClient owns the conversion engine lifecycle and post-processes
// its results. It is safe for use by several sessions.
type ConverterClient struct {
	engine ConversionEngine
	ranker Ranker
	logger *logging.Logger
	now    func() time.Time

	mu         sync.Mutex
	settings   EngineSettings
	state      clientState
	generation uint64
	failedAt   time.Time
	failures   int

	cache     *ttlcache.Cache[string, []string]
	closeOnce sync.Once
}

// ConverterOption configures a ConverterClient.
type ConverterOption func(*converterOptions)

type converterOptions struct {
	ranker   Ranker
	logger   *logging.Logger
	ttl      time.Duration
	capacity uint64
	noCache  bool
	now      func() time.Time
}

// WithRanker enables learning-memory ranking and recording.
func WithRanker(r Ranker) ConverterOption {
	return func(o *converterOptions) { o.ranker = r }
}

// WithConverterLogger sets the logger.
func WithConverterLogger(l *logging.Logger) ConverterOption {
	return func(o *converterOptions) { o.logger = l }
}

// WithCache sets the result cache TTL and capacity. A zero TTL disables
// caching.
func WithCache(ttl time.Duration, capacity uint64) ConverterOption {
	return func(o *converterOptions) {
		o.ttl = ttl
		o.capacity = capacity
		o.noCache = ttl <= 0
	}
}

func withClock(now func() time.Time) ConverterOption {
	return func(o *converterOptions) { o.now = now }
}

// NewConverterClient wraps engine. Call Configure and Init before use.
func NewConverterClient(engine ConversionEngine, opts ...ConverterOption) *ConverterClient {
	o := converterOptions{
		ttl:      defaultCacheTTL,
		capacity: defaultCacheCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.Discard()
	}

	c := &ConverterClient{
		engine: engine,
		ranker: o.ranker,
		logger: o.logger.WithComponent("converter"),
		now:    o.now,
	}
	if !o.noCache {
		c.cache = ttlcache.New[string, []string](
			ttlcache.WithTTL[string, []string](o.ttl),
			ttlcache.WithCapacity[string, []string](o.capacity),
			ttlcache.WithDisableTouchOnHit[string, []string](),
		)
		go c.cache.Start()
	}
	return c
}

// Configure stores settings for the next Init. Reconfiguring a running
// engine shuts it down; the next request initialises it again.
func (c *ConverterClient) Configure(ctx context.Context, settings EngineSettings) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateReady {
		if err := c.engine.Shutdown(ctx); err != nil {
			c.logger.Warn("engine shutdown on reconfigure failed", "err", err)
		}
	}
	c.settings = settings
	c.state = stateConfigured
	c.generation++
	c.failedAt = time.Time{}
	c.failures = 0
	if c.cache != nil {
		c.cache.DeleteAll()
	}
	c.logger.Debug("engine configured",
		"generation", c.generation,
		"ai_assist", settings.AIAssistActive(),
		"inference_limit", settings.AIAssistInferenceLimit)
}

// Init initialises the engine with the configured settings.
func (c *ConverterClient) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initLocked(ctx)
}

func (c *ConverterClient) initLocked(ctx context.Context) error {
	switch c.state {
	case stateReady:
		return nil
	case stateUnconfigured:
		return fmt.Errorf("%w: not configured", ErrEngineUnavailable)
	case stateShutdown:
		return fmt.Errorf("%w: shut down", ErrEngineUnavailable)
	}

	if err := c.engine.Init(ctx, c.settings); err != nil {
		c.state = stateFailed
		c.failedAt = c.now()
		c.logger.Warn("engine init failed", "err", err)
		return fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
	}
	c.state = stateReady
	c.failures = 0
	c.logger.Info("engine ready", "generation", c.generation)
	return nil
}

// ensureReadyLocked initialises a configured engine on first use and retries
// a failed one at most every initRetryInterval.
func (c *ConverterClient) ensureReadyLocked(ctx context.Context) error {
	switch c.state {
	case stateReady:
		return nil
	case stateFailed:
		if c.now().Sub(c.failedAt) < initRetryInterval {
			return fmt.Errorf("%w: failed recently", ErrEngineUnavailable)
		}
	}
	return c.initLocked(ctx)
}

// Ready reports whether the engine is initialised.
func (c *ConverterClient) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateReady
}

// Settings returns the current engine settings.
func (c *ConverterClient) Settings() EngineSettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Candidates returns the ranked candidates for buffer. An empty buffer
// yields an empty list without consulting the engine.
func (c *ConverterClient) Candidates(ctx context.Context, buffer []rune, rc RequestContext) ([]string, error) {
	if len(buffer) == 0 {
		return nil, nil
	}
	input := string(buffer)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureReadyLocked(ctx); err != nil {
		return nil, err
	}

	key := c.cacheKey(input, rc)
	if c.cache != nil {
		if item := c.cache.Get(key); item != nil {
			return cloneStrings(item.Value()), nil
		}
	}

	raw, err := c.engine.Candidates(ctx, input, rc)
	if err != nil {
		return nil, c.requestFailedLocked("candidates", err)
	}
	c.failures = 0
	cands := normalizeCandidates(raw)

	if c.ranker != nil && rc.Learning != LearnNone && len(cands) > 1 {
		ranked, err := c.ranker.Rank(ctx, input, cands)
		if err != nil {
			c.logger.Warn("learning memory rank failed", "err", err)
		} else {
			cands = ranked
		}
	}

	if c.cache != nil {
		c.cache.Set(key, cands, ttlcache.DefaultTTL)
	}
	return cloneStrings(cands), nil
}

// ComposedText returns the kana rendering of buffer. An empty buffer yields
// "" without consulting the engine. Composed text is not cached: it changes
// with every key.
func (c *ConverterClient) ComposedText(ctx context.Context, buffer []rune, rc RequestContext) (string, error) {
	if len(buffer) == 0 {
		return "", nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureReadyLocked(ctx); err != nil {
		return "", err
	}
	text, err := c.engine.ComposedText(ctx, string(buffer), rc)
	if err != nil {
		return "", c.requestFailedLocked("composed text", err)
	}
	c.failures = 0
	return norm.NFC.String(text), nil
}

// requestFailedLocked classifies a failed engine request. A lost engine, or
// one that keeps failing, is marked failed so ensureReadyLocked initialises
// it again once initRetryInterval has passed.
func (c *ConverterClient) requestFailedLocked(op string, err error) error {
	c.failures++
	lost := errors.Is(err, ErrEngineLost)
	if !lost && c.failures < maxConsecutiveFailures {
		c.logger.Debug("engine request failed", "op", op, "err", err)
		return fmt.Errorf("%w: %w", ErrEngineTransient, err)
	}

	c.state = stateFailed
	c.failedAt = c.now()
	c.failures = 0
	if c.cache != nil {
		c.cache.DeleteAll()
	}
	c.logger.Warn("engine lost, will re-initialise",
		"op", op,
		"lost", lost,
		"retry_in", initRetryInterval.String(),
		"err", err)
	return fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
}

// Best returns the top candidate for buffer, or "" when there is none.
func (c *ConverterClient) Best(ctx context.Context, buffer []rune, rc RequestContext) (string, error) {
	cands, err := c.Candidates(ctx, buffer, rc)
	if err != nil || len(cands) == 0 {
		return "", err
	}
	return cands[0], nil
}

// NotifySelected reports that candidate was chosen for reading.
func (c *ConverterClient) NotifySelected(ctx context.Context, reading, candidate string, mode LearningMode) error {
	if mode != LearnInputOutput || candidate == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if c.ranker != nil {
		if err := c.ranker.Record(ctx, reading, candidate); err != nil {
			errs = append(errs, fmt.Errorf("record selection: %w", err))
		}
	}
	if c.state == stateReady {
		if err := c.engine.Learn(ctx, candidate); err != nil {
			errs = append(errs, fmt.Errorf("%w: %w", ErrEngineTransient, err))
		}
	}
	if c.cache != nil {
		c.cache.DeleteAll()
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Shutdown stops the engine. Calling it again is a no-op.
func (c *ConverterClient) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateShutdown {
		return nil
	}
	wasReady := c.state == stateReady
	c.state = stateShutdown
	if c.cache != nil {
		c.cache.DeleteAll()
	}
	if wasReady {
		if err := c.engine.Shutdown(ctx); err != nil {
			return fmt.Errorf("engine shutdown: %w", err)
		}
	}
	return nil
}

// Close shuts the engine down and stops the cache expiry loop.
func (c *ConverterClient) Close(ctx context.Context) error {
	err := c.Shutdown(ctx)
	c.closeOnce.Do(func() {
		if c.cache != nil {
			c.cache.Stop()
		}
	})
	return err
}

func (c *ConverterClient) cacheKey(input string, rc RequestContext) string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(c.generation, 10))
	for _, part := range []string{input, rc.Language, rc.PrecedingText, rc.Learning.String()} {
		b.WriteByte(0)
		b.WriteString(part)
	}
	return b.String()
}

// normalizeCandidates NFC-normalises candidates, dropping empty strings and
// later duplicates.
func normalizeCandidates(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, s := range raw {
		s = norm.NFC.String(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
