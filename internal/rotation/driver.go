package rotation

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"promo-gate/internal/promotion"
)

// DefaultInterval between banner transitions.
const DefaultInterval = 5 * time.Second

// Driver ties a Scheduler to a ticker. The ticker only exists while the
// rotation has more than one banner; Stop releases it for good.
type Driver struct {
	clk      clock.Clock
	interval time.Duration

	mu      sync.Mutex
	sched   Scheduler
	ticker  *clock.Ticker
	quit    chan struct{}
	stopped bool
}

func NewDriver(clk clock.Clock, interval time.Duration) *Driver {
	if clk == nil {
		clk = clock.New()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Driver{clk: clk, interval: interval}
}

// Update publishes a new eligible set and starts or stops the ticker to match.
func (d *Driver) Update(eligible []promotion.Item) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.sched.SetItems(eligible)
	d.syncLocked()
}

func (d *Driver) Current() (promotion.Item, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sched.Current()
}

func (d *Driver) Index() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sched.Index()
}

// Running reports whether a ticker is currently held.
func (d *Driver) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ticker != nil
}

// Stop releases the ticker. Later updates are ignored.
func (d *Driver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.releaseLocked()
}

func (d *Driver) syncLocked() {
	switch {
	case d.sched.NeedsTicking() && d.ticker == nil:
		d.ticker = d.clk.Ticker(d.interval)
		d.quit = make(chan struct{})
		go d.run(d.ticker, d.quit)
	case !d.sched.NeedsTicking() && d.ticker != nil:
		d.releaseLocked()
	}
}

func (d *Driver) releaseLocked() {
	if d.ticker == nil {
		return
	}
	d.ticker.Stop()
	close(d.quit)
	d.ticker = nil
	d.quit = nil
}

func (d *Driver) run(t *clock.Ticker, quit chan struct{}) {
	for {
		select {
		case <-quit:
			return
		case <-t.C:
			d.mu.Lock()
			// a tick may race with release; only the live ticker advances
			if d.quit == quit {
				d.sched.Tick()
			}
			d.mu.Unlock()
		}
	}
}
