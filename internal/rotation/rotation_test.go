package rotation

import (
	"strconv"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promo-gate/internal/promotion"
)

func inline(n int) []promotion.Item {
	out := make([]promotion.Item, n)
	for i := range out {
		out[i] = promotion.Item{ID: strconv.Itoa(i), Display: promotion.Inline{}, Status: promotion.StatusActive}
	}
	return out
}

func TestScheduler_Wraparound(t *testing.T) {
	var s Scheduler
	s.SetItems(inline(3))
	s.Tick()
	s.Tick()
	require.Equal(t, 2, s.Index())

	assert.True(t, s.Tick())
	assert.Equal(t, 0, s.Index())
}

func TestScheduler_Dormant(t *testing.T) {
	for _, n := range []int{0, 1} {
		t.Run(strconv.Itoa(n), func(t *testing.T) {
			var s Scheduler
			s.SetItems(inline(n))
			for i := 0; i < 5; i++ {
				assert.False(t, s.Tick())
				assert.Equal(t, 0, s.Index())
			}
			assert.False(t, s.NeedsTicking())

			_, ok := s.Current()
			assert.Equal(t, n == 1, ok)
		})
	}
}

func TestScheduler_IndexWrapsOnShrink(t *testing.T) {
	var s Scheduler
	s.SetItems(inline(5))
	for i := 0; i < 4; i++ {
		s.Tick()
	}
	require.Equal(t, 4, s.Index())

	s.SetItems(inline(3))
	assert.Equal(t, 1, s.Index())
	cur, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, "1", cur.ID)
}

func TestScheduler_OnlyInlineRotates(t *testing.T) {
	var s Scheduler
	s.SetItems([]promotion.Item{
		{ID: "pop", Display: promotion.Popup{}},
		{ID: "in", Display: promotion.Inline{}},
		{ID: "link", Display: promotion.Link{URL: "https://x.test"}},
		{ID: "unset"},
	})
	assert.Equal(t, 2, s.Len())
	cur, _ := s.Current()
	assert.Equal(t, "in", cur.ID)
	s.Tick()
	cur, _ = s.Current()
	assert.Equal(t, "unset", cur.ID)
}

func TestDriver_TicksOnInterval(t *testing.T) {
	clk := clock.NewMock()
	d := NewDriver(clk, 5*time.Second)
	defer d.Stop()

	d.Update(inline(3))
	require.True(t, d.Running())

	clk.Add(5 * time.Second)
	assert.Eventually(t, func() bool { return d.Index() == 1 }, time.Second, 5*time.Millisecond)

	clk.Add(5 * time.Second)
	assert.Eventually(t, func() bool { return d.Index() == 2 }, time.Second, 5*time.Millisecond)

	clk.Add(5 * time.Second)
	assert.Eventually(t, func() bool { return d.Index() == 0 }, time.Second, 5*time.Millisecond)
}

func TestDriver_ReleasesTickerWhenDormant(t *testing.T) {
	clk := clock.NewMock()
	d := NewDriver(clk, 5*time.Second)
	defer d.Stop()

	d.Update(inline(1))
	assert.False(t, d.Running())

	d.Update(inline(2))
	assert.True(t, d.Running())

	d.Update(inline(1))
	assert.False(t, d.Running())
	clk.Add(time.Minute)
	assert.Equal(t, 0, d.Index())

	d.Update(nil)
	assert.False(t, d.Running())
	_, ok := d.Current()
	assert.False(t, ok)

	d.Update(inline(3))
	assert.True(t, d.Running(), "ticker restarts when the rotation grows")
}

func TestDriver_StopIsFinal(t *testing.T) {
	clk := clock.NewMock()
	d := NewDriver(clk, 5*time.Second)

	d.Update(inline(3))
	d.Stop()
	assert.False(t, d.Running())

	d.Update(inline(4))
	assert.False(t, d.Running())

	clk.Add(time.Minute)
	assert.Equal(t, 0, d.Index())
	d.Stop()
}
