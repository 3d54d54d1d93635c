package gateway

import "sync"

// QueryPoller round-robins a fixed set of query operations on an
// external timer. Every second tick it fires the front operation and
// rotates it to the back, so exactly one query type goes out per two
// ticks regardless of the host timer's native frequency.
type QueryPoller struct {
	mu      sync.Mutex
	count   int
	queries []func()
}

// NewQueryPoller builds a poller over the given operations, polled in
// the given order.
func NewQueryPoller(queries ...func()) *QueryPoller {
	return &QueryPoller{queries: queries}
}

// OnTimer advances the tick counter and, on every second call, invokes
// and rotates the front operation.
func (p *QueryPoller) OnTimer() {
	p.mu.Lock()
	p.count++
	if p.count < 2 || len(p.queries) == 0 {
		p.mu.Unlock()
		return
	}
	p.count = 0
	next := p.queries[0]
	p.queries = append(p.queries[1:], next)
	p.mu.Unlock()

	next()
}
