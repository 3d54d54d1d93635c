// Package metrics keeps in-process counters for the gateway's event
// flow and optionally mirrors them to CloudWatch.
package metrics

import (
	"sync"
)

type counterKey struct {
	name  string
	label string
}

var (
	mu        sync.Mutex
	counters  = make(map[counterKey]int64)
	published = make(map[counterKey]int64)
)

// Counter updates only touch the local table; the CloudWatch reporter
// picks up the increases from its own goroutine so callback threads
// never wait on the network.
func increment(name, label string) {
	mu.Lock()
	counters[counterKey{name, label}]++
	mu.Unlock()
}

// pendingDeltas returns the counter increases since the previous call
// and marks them as published.
func pendingDeltas() map[counterKey]int64 {
	mu.Lock()
	defer mu.Unlock()
	deltas := make(map[counterKey]int64)
	for k, v := range counters {
		if d := v - published[k]; d > 0 {
			deltas[k] = d
			published[k] = v
		}
	}
	return deltas
}

// IncrementTick counts one published tick, labelled by exchange.
func IncrementTick(exchange string) {
	increment("ticks_total", exchange)
}

// IncrementOrder counts one order state update, labelled by exchange.
func IncrementOrder(exchange string) {
	increment("orders_total", exchange)
}

// IncrementTrade counts one published fill, labelled by exchange.
func IncrementTrade(exchange string) {
	increment("trades_total", exchange)
}

// IncrementDropped counts one dropped message, labelled by reason.
func IncrementDropped(reason string) {
	increment("dropped_total", reason)
}

// Count returns the current value of a counter for tests and status
// reporting. Unknown counters read as zero.
func Count(name, label string) int64 {
	mu.Lock()
	defer mu.Unlock()
	return counters[counterKey{name, label}]
}

// Reset clears all counters. Test helper.
func Reset() {
	mu.Lock()
	counters = make(map[counterKey]int64)
	published = make(map[counterKey]int64)
	mu.Unlock()
}

// Snapshot copies the current counter table, keyed "name{label}".
func Snapshot() map[string]int64 {
	mu.Lock()
	defer mu.Unlock()
	out := make(map[string]int64, len(counters))
	for k, v := range counters {
		out[k.name+"{"+k.label+"}"] = v
	}
	return out
}
