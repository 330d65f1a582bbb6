package digest

import (
	"context"
	"testing"
	"time"

	"github.com/jmehdipour/repo-digest/internal/model"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var key = model.DigestKey{TeamID: "T1", ChannelID: "C1", Repository: "octo/repo"}

func ev(short string) model.Event {
	return model.Event{Repository: "octo/repo", Short: short, Long: model.Body{Text: short + " long"}}
}

func newCache(t *testing.T) (*Cache, *clockwork.FakeClock) {
	t.Helper()
	clk := clockwork.NewFakeClock()
	c := New(30*time.Second, WithClock(clk))
	t.Cleanup(c.Close)
	return c, clk
}

func eventuallyState(t *testing.T, c *Cache, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State(key) == want }, time.Second, 5*time.Millisecond)
}

func TestCreateFinalizeAppend(t *testing.T) {
	ctx := context.Background()
	c, _ := newCache(t)
	assert.Equal(t, Absent, c.State(key))

	d1, err := c.Upsert(ctx, key, ev("e1"))
	require.NoError(t, err)
	assert.Equal(t, Create, d1.Kind)
	assert.Equal(t, "e1", d1.Event.Short)
	assert.Equal(t, Pending, c.State(key))

	c.Finalize(d1, "ts-1")
	assert.Equal(t, Live, c.State(key))

	d2, err := c.Upsert(ctx, key, ev("e2"))
	require.NoError(t, err)
	assert.Equal(t, Append, d2.Kind)
	assert.Equal(t, "ts-1", d2.Handle)
	assert.Equal(t, []string{"e1", "e2"}, d2.Summaries)

	d3, err := c.Upsert(ctx, key, ev("e3"))
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e2", "e3"}, d3.Summaries)
	// earlier snapshots are not aliased
	assert.Equal(t, []string{"e1", "e2"}, d2.Summaries)
}

func TestKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	c, _ := newCache(t)
	other := model.DigestKey{TeamID: "T1", ChannelID: "C2", Repository: "octo/repo"}

	d1, _ := c.Upsert(ctx, key, ev("a"))
	d2, _ := c.Upsert(ctx, other, ev("b"))
	assert.Equal(t, Create, d1.Kind)
	assert.Equal(t, Create, d2.Kind)
	assert.Equal(t, 2, c.Len())
}

func TestUpsertWaitsForPendingCreate(t *testing.T) {
	ctx := context.Background()
	c, _ := newCache(t)

	d1, err := c.Upsert(ctx, key, ev("e1"))
	require.NoError(t, err)

	got := make(chan Decision, 1)
	go func() {
		d, err := c.Upsert(ctx, key, ev("e2"))
		assert.NoError(t, err)
		got <- d
	}()

	// queued into the pending entry, no decision yet
	require.Eventually(t, func() bool { return len(c.Summaries(key)) == 2 }, time.Second, 5*time.Millisecond)
	select {
	case d := <-got:
		t.Fatalf("decision %v returned before the create resolved", d.Kind)
	case <-time.After(20 * time.Millisecond):
	}

	c.Finalize(d1, "ts-1")

	select {
	case d := <-got:
		assert.Equal(t, Append, d.Kind)
		assert.Equal(t, "ts-1", d.Handle)
		assert.Equal(t, []string{"e1", "e2"}, d.Summaries)
	case <-time.After(time.Second):
		t.Fatal("waiter never woke up")
	}
}

func TestWaiterTakesOverAbandonedCreate(t *testing.T) {
	ctx := context.Background()
	c, _ := newCache(t)

	d1, _ := c.Upsert(ctx, key, ev("e1"))

	got := make(chan Decision, 1)
	go func() {
		d, _ := c.Upsert(ctx, key, ev("e2"))
		got <- d
	}()
	require.Eventually(t, func() bool { return len(c.Summaries(key)) == 2 }, time.Second, 5*time.Millisecond)

	c.Abandon(d1)

	d2 := <-got
	assert.Equal(t, Create, d2.Kind)
	assert.Equal(t, "e2", d2.Event.Short)
	assert.Equal(t, Pending, c.State(key))

	c.Finalize(d2, "ts-2")
	d3, _ := c.Upsert(ctx, key, ev("e3"))
	assert.Equal(t, Append, d3.Kind)
	assert.Equal(t, []string{"e1", "e2", "e3"}, d3.Summaries)
}

func TestAbandonedEntryRetriesCreate(t *testing.T) {
	ctx := context.Background()
	c, _ := newCache(t)

	d1, _ := c.Upsert(ctx, key, ev("e1"))
	c.Abandon(d1)
	assert.Equal(t, Pending, c.State(key))

	d2, _ := c.Upsert(ctx, key, ev("e2"))
	assert.Equal(t, Create, d2.Kind)
}

func TestUpsertHonoursContextWhileWaiting(t *testing.T) {
	c, _ := newCache(t)
	_, _ = c.Upsert(context.Background(), key, ev("e1"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.Upsert(ctx, key, ev("e2"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExpiryResetsOnEveryEvent(t *testing.T) {
	ctx := context.Background()
	c, clk := newCache(t)

	d1, _ := c.Upsert(ctx, key, ev("e1"))
	c.Finalize(d1, "ts-1")

	clk.Advance(29 * time.Second)
	d2, _ := c.Upsert(ctx, key, ev("e2"))
	assert.Equal(t, Append, d2.Kind)

	// t=40s: 11s after the last event
	clk.Advance(11 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, Live, c.State(key))

	// t=59s: 30s idle
	clk.Advance(19 * time.Second)
	eventuallyState(t, c, Absent)

	d3, _ := c.Upsert(ctx, key, ev("e3"))
	assert.Equal(t, Create, d3.Kind)
}

func TestFinalizeAfterExpiryDoesNotResurrect(t *testing.T) {
	ctx := context.Background()
	c, clk := newCache(t)

	d1, _ := c.Upsert(ctx, key, ev("e1"))
	clk.Advance(30 * time.Second)
	eventuallyState(t, c, Absent)

	c.Finalize(d1, "ts-late")
	assert.Equal(t, Absent, c.State(key))

	d2, _ := c.Upsert(ctx, key, ev("e2"))
	assert.Equal(t, Create, d2.Kind)
	assert.Equal(t, []string{"e2"}, c.Summaries(key))
}

func TestGaugeTracksOpenEntries(t *testing.T) {
	ctx := context.Background()
	clk := clockwork.NewFakeClock()
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_open"})
	c := New(time.Second, WithClock(clk), WithGauge(g))

	d, _ := c.Upsert(ctx, key, ev("e1"))
	c.Finalize(d, "ts")
	_, _ = c.Upsert(ctx, key, ev("e2"))
	assert.Equal(t, 1.0, testutil.ToFloat64(g))

	clk.Advance(time.Second)
	require.Eventually(t, func() bool { return testutil.ToFloat64(g) == 0 }, time.Second, 5*time.Millisecond)
}

func TestDefaultTTL(t *testing.T) {
	assert.Equal(t, DefaultTTL, New(0).TTL())
}
