package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/yourusername/minecraft-server-manager/internal/instance"
)

// Snapshot is one sampled view of the fleet.
type Snapshot struct {
	Timestamp      time.Time      `json:"timestamp"`
	Instances      int            `json:"instances"`
	ByState        map[string]int `json:"by_state"`
	PlayersOnline  int            `json:"players_online"`
	Goroutines     int            `json:"goroutines"`
	HeapAllocBytes uint64         `json:"heap_alloc_bytes"`
}

// Collector periodically samples the instance fleet and keeps the latest
// snapshot in memory for the metrics endpoint.
type Collector struct {
	manager  *instance.Manager
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup

	mu   sync.RWMutex
	last Snapshot
}

// NewCollector builds a collector over the instance manager. A non-positive
// interval selects the 15 second default.
func NewCollector(manager *instance.Manager, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		manager:  manager,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the sampling loop. An initial sample is taken immediately so
// the endpoint never serves a zero snapshot.
func (c *Collector) Start() {
	c.sample()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.sample()
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop terminates the sampling loop and waits for it to exit.
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

// Latest returns the most recent snapshot.
func (c *Collector) Latest() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

func (c *Collector) sample() {
	snap := Snapshot{
		Timestamp: time.Now().UTC(),
		ByState:   make(map[string]int),
	}

	for _, in := range c.manager.List() {
		snap.Instances++
		snap.ByState[string(in.Status())]++
		snap.PlayersOnline += in.PlayerCount()
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	snap.Goroutines = runtime.NumGoroutine()
	snap.HeapAllocBytes = mem.HeapAlloc

	c.mu.Lock()
	c.last = snap
	c.mu.Unlock()
}
