// Package digest holds the short-lived "open message" per channel and
// repository that incoming events are folded into.
//
// An entry moves Absent -> Pending -> Live -> Absent. It is Pending from the
// first event until the caller reports the handle of the posted message,
// Live afterwards, and it is dropped once TTL elapses without a new event.
package digest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/jmehdipour/repo-digest/internal/model"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const DefaultTTL = 30 * time.Second

type Kind int

const (
	// Create means no message is open for the key: post a new one.
	Create Kind = iota + 1
	// Append means the event was folded into an open message: edit it.
	Append
)

func (k Kind) String() string {
	switch k {
	case Create:
		return "create"
	case Append:
		return "append"
	default:
		return "unknown"
	}
}

type State int

const (
	Absent State = iota
	Pending
	Live
)

// Decision tells the caller what to do with an event. A Create decision
// must be resolved with Finalize or Abandon.
type Decision struct {
	Kind      Kind
	Key       model.DigestKey
	Event     model.Event
	Handle    string   // Append only
	Summaries []string // Append only, arrival order

	e *entry
}

type entry struct {
	handle    string
	summaries []string
	inflight  bool
	ready     chan struct{} // closed when the in-flight create resolves
	timer     clockwork.Timer
	gen       uint64
}

type Cache struct {
	mu      sync.Mutex
	entries map[model.DigestKey]*entry
	ttl     time.Duration
	clock   clockwork.Clock
	gauge   prometheus.Gauge
	log     *zap.Logger
}

type Option func(*Cache)

func WithClock(c clockwork.Clock) Option { return func(x *Cache) { x.clock = c } }

func WithLogger(l *zap.Logger) Option { return func(x *Cache) { x.log = l } }

// WithGauge tracks the number of open entries.
func WithGauge(g prometheus.Gauge) Option { return func(x *Cache) { x.gauge = g } }

func New(ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		entries: make(map[model.DigestKey]*entry),
		ttl:     ttl,
		clock:   clockwork.NewRealClock(),
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Cache) TTL() time.Duration { return c.ttl }

// Upsert folds ev into the entry for key. While another caller's create is
// in flight for the same key, Upsert queues the summary and waits for the
// create to resolve instead of returning a second Create.
func (c *Cache) Upsert(ctx context.Context, key model.DigestKey, ev model.Event) (Decision, error) {
	var mine *entry

	c.mu.Lock()
	for {
		e, ok := c.entries[key]
		if !ok {
			e = &entry{summaries: []string{ev.Short}, inflight: true, ready: make(chan struct{})}
			c.entries[key] = e
			c.touch(key, e)
			if c.gauge != nil {
				c.gauge.Inc()
			}
			c.mu.Unlock()
			return Decision{Kind: Create, Key: key, Event: ev, e: e}, nil
		}

		if e != mine {
			e.summaries = append(e.summaries, ev.Short)
			mine = e
		}
		c.touch(key, e)

		if e.handle != "" {
			d := Decision{Kind: Append, Key: key, Event: ev, Handle: e.handle, Summaries: slices.Clone(e.summaries), e: e}
			c.mu.Unlock()
			return d, nil
		}

		if !e.inflight {
			// the earlier create failed, this event retries it
			e.inflight = true
			e.ready = make(chan struct{})
			c.mu.Unlock()
			return Decision{Kind: Create, Key: key, Event: ev, e: e}, nil
		}

		ready := e.ready
		c.mu.Unlock()
		select {
		case <-ready:
		case <-ctx.Done():
			return Decision{}, ctx.Err()
		}
		c.mu.Lock()
	}
}

// Finalize records the handle of the message posted for a Create decision.
func (c *Cache) Finalize(d Decision, handle string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := d.e
	if d.Kind != Create || e == nil || !e.inflight {
		return
	}
	e.handle = handle
	e.inflight = false
	close(e.ready)
}

// Abandon reports that the post for a Create decision failed. The entry
// stays Pending until it expires or the next event retries the post.
func (c *Cache) Abandon(d Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := d.e
	if d.Kind != Create || e == nil || !e.inflight {
		return
	}
	e.inflight = false
	close(e.ready)
}

// touch (re)starts the expiry timer. Callers hold c.mu.
func (c *Cache) touch(key model.DigestKey, e *entry) {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.gen++
	gen := e.gen
	e.timer = c.clock.AfterFunc(c.ttl, func() { c.expire(key, e, gen) })
}

func (c *Cache) expire(key model.DigestKey, e *entry, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// a stale timer that lost the race against touch
	if cur, ok := c.entries[key]; !ok || cur != e || e.gen != gen {
		return
	}
	delete(c.entries, key)
	if c.gauge != nil {
		c.gauge.Dec()
	}
	c.log.Debug("digest expired",
		zap.String("key", key.String()),
		zap.Int("events", len(e.summaries)),
		zap.Bool("finalized", e.handle != ""))
}

func (c *Cache) State(key model.DigestKey) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	switch {
	case !ok:
		return Absent
	case e.handle == "":
		return Pending
	default:
		return Live
	}
}

// Summaries returns a copy of the summaries accumulated for key.
func (c *Cache) Summaries(key model.DigestKey) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		return slices.Clone(e.summaries)
	}
	return nil
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops every pending timer and forgets all entries.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, e := range c.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(c.entries, k)
		if c.gauge != nil {
			c.gauge.Dec()
		}
	}
}
