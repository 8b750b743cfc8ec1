package resolver

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/weathercache/internal/cache"
	"github.com/mohammed-shakir/weathercache/internal/cache/redisstore"
	"github.com/mohammed-shakir/weathercache/internal/store"
	"github.com/mohammed-shakir/weathercache/internal/store/memory"
	"github.com/mohammed-shakir/weathercache/internal/weather"
)

const testDebounce = 40 * time.Millisecond

var errUpstream = errors.New("upstream down")

type fakeProvider struct {
	name  string
	temp  float64
	err   error
	panic bool
	gate  chan struct{} // when set, Fetch blocks until it is closed
	began chan struct{} // when set, receives once per Fetch start
	calls atomic.Int32
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Fetch(ctx context.Context, _ string) (weather.Reading, error) {
	p.calls.Add(1)
	if p.began != nil {
		p.began <- struct{}{}
	}
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return weather.Reading{}, ctx.Err()
		}
	}
	if p.panic {
		panic("provider exploded")
	}
	if p.err != nil {
		return weather.Reading{}, p.err
	}
	return weather.Reading{Temperature: p.temp, Provider: p.name}, nil
}

func healthy(name string, t float64) *fakeProvider { return &fakeProvider{name: name, temp: t} }

func failing(name string) *fakeProvider { return &fakeProvider{name: name, err: errUpstream} }

// countingStore wraps the in-memory store and counts calls per method.
type countingStore struct {
	*memory.Store
	latest       atomic.Int32
	appends      atomic.Int32
	appendErr    error
	appendPanics bool
}

func (s *countingStore) Latest(ctx context.Context, loc string) (store.Record, error) {
	s.latest.Add(1)
	return s.Store.Latest(ctx, loc)
}

func (s *countingStore) Append(ctx context.Context, rec store.Record) error {
	s.appends.Add(1)
	if s.appendPanics {
		panic("store exploded")
	}
	if s.appendErr != nil {
		return s.appendErr
	}
	return s.Store.Append(ctx, rec)
}

// brokenCache fails every read and counts writes.
type brokenCache struct {
	cache.Interface
	sets atomic.Int32
}

func (c *brokenCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("cache unavailable")
}

func (c *brokenCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	c.sets.Add(1)
	return c.Interface.Set(ctx, key, val, ttl)
}

type recordingPublisher struct {
	mu   sync.Mutex
	seen []weather.Resolution
}

func (p *recordingPublisher) Publish(r weather.Resolution) {
	p.mu.Lock()
	p.seen = append(p.seen, r)
	p.mu.Unlock()
}

func (p *recordingPublisher) all() []weather.Resolution {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]weather.Resolution(nil), p.seen...)
}

// logCapture is a slog.Handler keeping every record, with the attributes
// added through With, for assertions on level and message.
type logCapture struct {
	mu      *sync.Mutex
	entries *[]logEntry
	attrs   []slog.Attr
}

type logEntry struct {
	level slog.Level
	msg   string
	attrs map[string]slog.Value
}

func newLogCapture() *logCapture {
	return &logCapture{mu: &sync.Mutex{}, entries: &[]logEntry{}}
}

func (h *logCapture) Enabled(context.Context, slog.Level) bool { return true }

func (h *logCapture) Handle(_ context.Context, r slog.Record) error {
	e := logEntry{level: r.Level, msg: r.Message, attrs: make(map[string]slog.Value)}
	for _, a := range h.attrs {
		e.attrs[a.Key] = a.Value
	}
	r.Attrs(func(a slog.Attr) bool {
		e.attrs[a.Key] = a.Value
		return true
	})
	h.mu.Lock()
	*h.entries = append(*h.entries, e)
	h.mu.Unlock()
	return nil
}

func (h *logCapture) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &next
}

func (h *logCapture) WithGroup(string) slog.Handler { return h }

// find returns every record logged with msg.
func (h *logCapture) find(msg string) []logEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []logEntry
	for _, e := range *h.entries {
		if e.msg == msg {
			out = append(out, e)
		}
	}
	return out
}

// requireLogged fails unless msg was logged exactly n times, all at level.
func (h *logCapture) requireLogged(t *testing.T, level slog.Level, msg string, n int) []logEntry {
	t.Helper()
	got := h.find(msg)
	if len(got) != n {
		t.Fatalf("%q logged %d times want %d", msg, len(got), n)
	}
	for _, e := range got {
		if e.level != level {
			t.Fatalf("%q logged at %v want %v", msg, e.level, level)
		}
	}
	return got
}

type fixture struct {
	r     *Resolver
	mr    *miniredis.Miniredis
	cache cache.Interface
	store *countingStore
	logs  *logCapture
}

func newFixture(t *testing.T, providers ...weather.Provider) *fixture {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rc, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("redisstore: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })

	f := &fixture{mr: mr, cache: rc, store: &countingStore{Store: memory.New(0)}, logs: newLogCapture()}
	f.r = f.build(t, rc, providers...)
	return f
}

func (f *fixture) build(t *testing.T, c cache.Interface, providers ...weather.Provider) *Resolver {
	t.Helper()
	r, err := New(Options{
		Cache:        c,
		Store:        f.store,
		Providers:    providers,
		Logger:       slog.New(f.logs),
		Debounce:     testDebounce,
		FetchTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(r.Wait)
	return r
}

func (f *fixture) seedStore(t *testing.T, loc string, temp float64, at time.Time) {
	t.Helper()
	if err := f.store.Store.Append(context.Background(), store.Record{Location: loc, Temperature: temp, Timestamp: at}); err != nil {
		t.Fatalf("seed store: %v", err)
	}
}

func resolveCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func providersOf(ps []*fakeProvider) []weather.Provider {
	out := make([]weather.Provider, 0, len(ps))
	for _, p := range ps {
		out = append(out, p)
	}
	return out
}
