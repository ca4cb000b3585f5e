// Package retention runs a background sweep that deletes closed segments
// once they breach an age or total-size budget, across every segstream.Log
// registered with it.
package retention

import (
	"sync"
	"time"

	"github.com/backtrace-labs/stuffed-record-stream/internal/segstream"
)

// Config controls how often the cleaner sweeps and what breaches a
// segment's retention.
type Config struct {
	CheckInterval time.Duration
	MaxAge        time.Duration
	MaxTotalBytes int64
}

// DefaultConfig sweeps every 5 minutes with no age or size limit; callers
// set MaxAge and/or MaxTotalBytes to enable enforcement.
func DefaultConfig() Config {
	return Config{CheckInterval: 5 * time.Minute}
}

// Cleaner periodically calls DeleteOldSegments on every registered Log.
type Cleaner struct {
	mu     sync.Mutex
	logs   []*segstream.Log
	cfg    Config
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New returns a Cleaner that has not yet been started.
func New(cfg Config) *Cleaner {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 5 * time.Minute
	}
	return &Cleaner{
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}
}

// Register adds l to the set of logs swept on each tick.
func (c *Cleaner) Register(l *segstream.Log) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = append(c.logs, l)
}

// Start launches the background sweep goroutine.
func (c *Cleaner) Start() {
	c.wg.Add(1)
	go c.run()
}

func (c *Cleaner) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopCh:
			return
		}
	}
}

// sweep runs one retention pass over every registered log and returns the
// total number of segments removed. Errors from individual logs are
// swallowed so that one misbehaving log doesn't block cleanup of the
// others; the next tick will retry.
func (c *Cleaner) sweep() int {
	c.mu.Lock()
	logs := append([]*segstream.Log(nil), c.logs...)
	c.mu.Unlock()

	total := 0
	for _, l := range logs {
		n, err := l.DeleteOldSegments(c.cfg.MaxAge, c.cfg.MaxTotalBytes)
		if err != nil {
			continue
		}
		total += n
	}
	return total
}

// Stop halts the background sweep and waits for it to exit.
func (c *Cleaner) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}
