package metrics

import (
	"sort"
	"sync"
	"time"
)

// Transport names used as registry keys.
const (
	TransportHTTP      = "http"
	TransportWebSocket = "websocket"
	TransportQUIC      = "quic"
)

// TransportStats counts traffic of one transport.
type TransportStats struct {
	Requests  *ShardedCounter
	IDsIssued *ShardedCounter
	Rejected  *ShardedCounter
}

// Registry tracks per transport counters for the id service.
type Registry struct {
	started    time.Time
	shardCount int

	mu         sync.RWMutex
	transports map[string]*TransportStats
}

func NewRegistry(shardCount int) *Registry {
	return &Registry{
		started:    time.Now(),
		shardCount: shardCount,
		transports: make(map[string]*TransportStats),
	}
}

// Transport returns the stats of name, creating them on first use.
func (r *Registry) Transport(name string) *TransportStats {
	r.mu.RLock()
	s, ok := r.transports[name]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok = r.transports[name]; ok {
		return s
	}
	s = &TransportStats{
		Requests:  NewShardedCounter(r.shardCount),
		IDsIssued: NewShardedCounter(r.shardCount),
		Rejected:  NewShardedCounter(r.shardCount),
	}
	r.transports[name] = s
	return s
}

// Record accounts one request from client that produced issued ids, or was rejected.
func (r *Registry) Record(transport, client string, issued int, rejected bool) {
	s := r.Transport(transport)
	s.Requests.Inc(client)
	if rejected {
		s.Rejected.Inc(client)
		return
	}
	if issued > 0 {
		s.IDsIssued.Add(client, uint64(issued))
	}
}

type TransportSnapshot struct {
	Name      string `json:"name"`
	Requests  uint64 `json:"requests"`
	IDsIssued uint64 `json:"ids_issued"`
	Rejected  uint64 `json:"rejected"`
}

type Snapshot struct {
	Uptime     time.Duration       `json:"uptime_ns"`
	Transports []TransportSnapshot `json:"transports"`
}

// Snapshot returns current totals ordered by transport name.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		Uptime:     time.Since(r.started),
		Transports: make([]TransportSnapshot, 0, len(r.transports)),
	}
	for name, s := range r.transports {
		snap.Transports = append(snap.Transports, TransportSnapshot{
			Name:      name,
			Requests:  s.Requests.Load(),
			IDsIssued: s.IDsIssued.Load(),
			Rejected:  s.Rejected.Load(),
		})
	}
	sort.Slice(snap.Transports, func(i, j int) bool {
		return snap.Transports[i].Name < snap.Transports[j].Name
	})
	return snap
}
