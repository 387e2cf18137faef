package ime

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

// fakeEngine is a scripted ConversionEngine.
type fakeEngine struct {
	mu sync.Mutex

	results  map[string][]string
	composed map[string]string
	initErr  error
	candErr  error
	learnErr error

	inits     int
	shutdowns int
	calls     int
	composes  int
	learned   []string
	lastRC    RequestContext
	settings  EngineSettings
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		results: map[string][]string{
			"ka":   {"か", "カ"},
			"kana": {"かな", "カナ", "仮名"},
			"ki":   {"き", "木", "気"},
			"kami": {"紙", "神", "かみ"},
		},
		composed: map[string]string{
			"ka":   "か",
			"kana": "かな",
			"ki":   "き",
			"kami": "かみ",
		},
	}
}

func (f *fakeEngine) Init(ctx context.Context, s EngineSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	f.settings = s
	return f.initErr
}

// ComposedText returns the scripted kana, or input itself when the romaji
// does not form a full syllable yet.
func (f *fakeEngine) ComposedText(ctx context.Context, input string, rc RequestContext) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.composes++
	f.lastRC = rc
	if f.candErr != nil {
		return "", f.candErr
	}
	if text, ok := f.composed[input]; ok {
		return text, nil
	}
	return input, nil
}

func (f *fakeEngine) Candidates(ctx context.Context, input string, rc RequestContext) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastRC = rc
	if f.candErr != nil {
		return nil, f.candErr
	}
	return append([]string(nil), f.results[input]...), nil
}

func (f *fakeEngine) Learn(ctx context.Context, candidate string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.learned = append(f.learned, candidate)
	return f.learnErr
}

func (f *fakeEngine) Shutdown(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdowns++
	return nil
}

func (f *fakeEngine) setCandErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candErr = err
}

func (f *fakeEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeEngine) initCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inits
}

func (f *fakeEngine) requestContext() RequestContext {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastRC
}

// reverseRanker reverses candidate order and records selections.
type reverseRanker struct {
	ranked   int
	recorded [][2]string
}

func (r *reverseRanker) Rank(ctx context.Context, reading string, c []string) ([]string, error) {
	r.ranked++
	out := make([]string, len(c))
	for i := range c {
		out[len(c)-1-i] = c[i]
	}
	return out, nil
}

func (r *reverseRanker) Record(ctx context.Context, reading, candidate string) error {
	r.recorded = append(r.recorded, [2]string{reading, candidate})
	return nil
}

// newReadyClient returns an initialised client without a result cache, so
// every request reaches the engine.
func newReadyClient(t *testing.T, eng *fakeEngine, opts ...ConverterOption) *ConverterClient {
	t.Helper()
	opts = append([]ConverterOption{WithCache(0, 0)}, opts...)
	c := NewConverterClient(eng, opts...)
	c.Configure(context.Background(), EngineSettings{DictionaryPath: "/dict", AIAssistInferenceLimit: 10})
	require.NoError(t, c.Init(context.Background()))
	t.Cleanup(func() { c.Close(context.Background()) })
	return c
}

// keyOf returns the key producing r, failing the test when there is none.
func keyOf(t *testing.T, r rune) Key {
	t.Helper()
	vk, mods, ok := KeyForRune(r)
	require.True(t, ok, "no key for %q", r)
	return Key{Code: vk, Modifiers: mods}
}

var (
	keyEnter     = Key{Code: VKReturn}
	keyEscape    = Key{Code: VKEscape}
	keyBackspace = Key{Code: VKBack}
	keySpace     = Key{Code: VKSpace}
	keyUp        = Key{Code: VKUp}
	keyDown      = Key{Code: VKDown}
	keyLeft      = Key{Code: VKLeft}
)

// typeString feeds each rune of s through the session.
func typeString(t *testing.T, s *Session, text string) {
	t.Helper()
	for _, r := range text {
		require.True(t, s.OnKeyDown(context.Background(), keyOf(t, r)), "key %q not eaten", r)
	}
}
