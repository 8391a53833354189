package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"habitTrackerAPI/internal/cache"
	"habitTrackerAPI/internal/logger"
)

// Decision is the outcome of ShouldFetch.
type Decision int

const (
	CacheHit Decision = iota
	CooldownBlock
	MustFetch
)

func (d Decision) String() string {
	switch d {
	case CacheHit:
		return "cache_hit"
	case CooldownBlock:
		return "cooldown_block"
	case MustFetch:
		return "must_fetch"
	}
	return fmt.Sprintf("decision(%d)", int(d))
}

const (
	DefaultTTL      = 30 * time.Minute
	DefaultCooldown = 5 * time.Minute
)

var errNotModifiedWithoutPayload = errors.New("not modified response without a cached payload")

// Response is what a FetchFunc returns. NotModified means the validator
// matched and Payload is unset.
type Response struct {
	Payload     any
	ETag        string
	NotModified bool
}

// FetchFunc performs the network call. etag is the cached validator, empty
// when the fetch must be unconditional.
type FetchFunc func(ctx context.Context, etag string) (Response, error)

// Result describes what a read produced.
type Result struct {
	Payload  any
	Found    bool
	Decision Decision
	// NotModified is set when the server confirmed the cached payload.
	NotModified bool
	// Superseded is set when an invalidation or a newer fetch for the same
	// key landed first. The payload is not written to the cache and callers
	// should not apply it.
	Superseded bool
	Seq        uint64
}

type keyState struct {
	lastAttempt time.Time
	generation  uint64
	issued      uint64
	applied     uint64
}

// Coordinator decides between cache, cooldown and network for each read.
type Coordinator struct {
	store    *cache.Store
	ttl      time.Duration
	cooldown time.Duration
	now      func() time.Time

	group singleflight.Group

	mu   sync.Mutex
	keys map[cache.Key]*keyState

	decisions *prometheus.CounterVec
	outcomes  *prometheus.CounterVec
}

type Option func(*Coordinator)

func WithTTL(ttl time.Duration) Option {
	return func(c *Coordinator) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCooldown sets the minimum interval between fetch attempts per key.
// Zero disables the cooldown.
func WithCooldown(d time.Duration) Option {
	return func(c *Coordinator) {
		if d >= 0 {
			c.cooldown = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithRegisterer registers the coordinator's counters on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Coordinator) {
		if reg == nil {
			return
		}
		reg.MustRegister(c.decisions, c.outcomes)
	}
}

func New(store *cache.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		ttl:      DefaultTTL,
		cooldown: DefaultCooldown,
		now:      time.Now,
		keys:     make(map[cache.Key]*keyState),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "habit_cache_decisions_total",
				Help: "Read decisions taken by the request coordinator",
			},
			[]string{"resource", "decision"},
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "habit_cache_fetch_outcomes_total",
				Help: "Outcomes of network fetches issued by the request coordinator",
			},
			[]string{"resource", "outcome"},
		),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) TTL() time.Duration { return c.ttl }

func (c *Coordinator) Store() *cache.Store { return c.store }

// ShouldFetch never performs I/O.
func (c *Coordinator) ShouldFetch(key cache.Key) Decision {
	if _, ok := c.store.Get(key); ok {
		return CacheHit
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if st, ok := c.keys[key]; ok && c.cooldown > 0 && !st.lastAttempt.IsZero() {
		if c.now().Sub(st.lastAttempt) < c.cooldown {
			return CooldownBlock
		}
	}
	return MustFetch
}

// Fetch serves key from cache, from the stale payload during cooldown, or
// from the network. On a failed fetch the last known payload is returned
// along with the error.
func (c *Coordinator) Fetch(ctx context.Context, key cache.Key, fn FetchFunc) (Result, error) {
	decision := c.ShouldFetch(key)
	c.decisions.WithLabelValues(string(key.Resource), decision.String()).Inc()

	switch decision {
	case CacheHit:
		payload, ok := c.store.Get(key)
		if ok {
			logger.Debug("Coordinator: cache hit", "key", key.String())
			return Result{Payload: payload, Found: true, Decision: CacheHit}, nil
		}
		// expired between the decision and the read
		return c.fetch(ctx, key, fn)
	case CooldownBlock:
		e, ok := c.store.Peek(key)
		logger.Debug("Coordinator: cooldown active, serving last known payload", "key", key.String(), "found", ok)
		return Result{Payload: e.Payload, Found: ok, Decision: CooldownBlock}, nil
	default:
		return c.fetch(ctx, key, fn)
	}
}

// Revalidate skips the freshness and cooldown checks and always asks the
// network, conditionally when a validator is cached.
func (c *Coordinator) Revalidate(ctx context.Context, key cache.Key, fn FetchFunc) (Result, error) {
	c.decisions.WithLabelValues(string(key.Resource), "forced").Inc()
	return c.fetch(ctx, key, fn)
}

type flightResult struct {
	resp       Response
	generation uint64
	seq        uint64
}

func (c *Coordinator) fetch(ctx context.Context, key cache.Key, fn FetchFunc) (Result, error) {
	c.mu.Lock()
	st := c.state(key)
	generation := st.generation
	c.mu.Unlock()

	flightKey := fmt.Sprintf("%s#%d", key.String(), generation)
	v, err, shared := c.group.Do(flightKey, func() (any, error) {
		c.mu.Lock()
		st := c.state(key)
		st.lastAttempt = c.now()
		st.issued++
		seq := st.issued
		gen := st.generation
		c.mu.Unlock()

		etag := ""
		if e, ok := c.store.Peek(key); ok {
			etag = e.ETag
		}

		resp, err := fn(ctx, etag)
		return flightResult{resp: resp, generation: gen, seq: seq}, err
	})
	if shared {
		logger.Debug("Coordinator: joined in-flight fetch", "key", key.String())
	}

	fr, _ := v.(flightResult)
	if err != nil {
		c.outcomes.WithLabelValues(string(key.Resource), "error").Inc()
		e, ok := c.store.Peek(key)
		logger.Warn("Coordinator: fetch failed", "key", key.String(), "fallback", ok, "error", err)
		return Result{Payload: e.Payload, Found: ok, Decision: MustFetch, Seq: fr.seq}, err
	}

	c.mu.Lock()
	st = c.state(key)
	superseded := st.generation != fr.generation || fr.seq < st.applied
	if !superseded {
		st.applied = fr.seq
	}
	c.mu.Unlock()

	if superseded {
		c.outcomes.WithLabelValues(string(key.Resource), "superseded").Inc()
		logger.Debug("Coordinator: discarding superseded fetch", "key", key.String(), "seq", fr.seq)
		return Result{Payload: fr.resp.Payload, Found: fr.resp.Payload != nil, Decision: MustFetch, Superseded: true, Seq: fr.seq}, nil
	}

	if fr.resp.NotModified {
		if !c.store.Touch(key) {
			c.outcomes.WithLabelValues(string(key.Resource), "error").Inc()
			return Result{Decision: MustFetch, Seq: fr.seq}, errNotModifiedWithoutPayload
		}
		c.outcomes.WithLabelValues(string(key.Resource), "not_modified").Inc()
		e, _ := c.store.Peek(key)
		return Result{Payload: e.Payload, Found: true, Decision: MustFetch, NotModified: true, Seq: fr.seq}, nil
	}

	// Every joined caller sees the same flight; only the first write matters.
	c.store.Set(key, fr.resp.Payload, c.ttl, fr.resp.ETag)
	c.outcomes.WithLabelValues(string(key.Resource), "ok").Inc()
	return Result{Payload: fr.resp.Payload, Found: true, Decision: MustFetch, Seq: fr.seq}, nil
}

// Invalidate marks every key of the given resource families stale, resets
// their cooldown and supersedes fetches already in flight.
func (c *Coordinator) Invalidate(resources ...cache.Resource) {
	c.mu.Lock()
	for key, st := range c.keys {
		for _, r := range resources {
			if key.Resource == r {
				st.generation++
				st.lastAttempt = time.Time{}
				break
			}
		}
	}
	c.mu.Unlock()

	n := c.store.InvalidateResource(resources...)
	logger.Debug("Coordinator: invalidated", "resources", resources, "entries", n)
}

// Reset forgets all per-key state and clears the store.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	for _, st := range c.keys {
		st.generation++
		st.lastAttempt = time.Time{}
	}
	c.mu.Unlock()
	c.store.Clear()
}

func (c *Coordinator) state(key cache.Key) *keyState {
	st, ok := c.keys[key]
	if !ok {
		st = &keyState{}
		c.keys[key] = st
	}
	return st
}

// Typed adapts a typed fetch into a FetchFunc.
func Typed[T any](fn func(ctx context.Context, etag string) (T, string, bool, error)) FetchFunc {
	return func(ctx context.Context, etag string) (Response, error) {
		v, newETag, notModified, err := fn(ctx, etag)
		if err != nil {
			return Response{}, err
		}
		if notModified {
			return Response{NotModified: true}, nil
		}
		return Response{Payload: v, ETag: newETag}, nil
	}
}

// Payload extracts a typed payload from r.
func Payload[T any](r Result) (T, bool) {
	var zero T
	if !r.Found || r.Payload == nil {
		return zero, false
	}
	v, ok := r.Payload.(T)
	return v, ok
}
