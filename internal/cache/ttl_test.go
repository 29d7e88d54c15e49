package cache_test

import (
	"testing"
	"time"

	"github.com/leoygitty/GSR-App/internal/cache"
	"github.com/stretchr/testify/assert"
)

// fakeClock - часы, которые двигаются только вручную.
type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func TestTTL_GetSet(t *testing.T) {
	clk := &fakeClock{now: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)}
	c := cache.NewTTL[int](30*time.Second, clk.Now)

	_, ok := c.Get("k")
	assert.False(t, ok, "пустой кэш")

	c.Set("k", 42)
	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	clk.Advance(29 * time.Second)
	_, ok = c.Get("k")
	assert.True(t, ok, "запись еще жива")

	clk.Advance(time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok, "запись просрочена ровно на границе TTL")
}

func TestTTL_Invalidate(t *testing.T) {
	c := cache.NewTTL[string](time.Minute, nil)
	c.Set("a", "x")
	c.Invalidate("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestTTL_Defaults(t *testing.T) {
	c := cache.NewTTL[string](0, nil)
	assert.Equal(t, 30*time.Second, c.TTL())
}
