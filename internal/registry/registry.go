package registry

import (
	"sync"

	"femasflow/internal/models"
)

// ContractRegistry caches instrument metadata by symbol. It is shared
// between the trade session (writer, once per connect cycle) and the
// market-data session (reader, on every tick), hence the RW lock.
type ContractRegistry struct {
	mu        sync.RWMutex
	contracts map[string]models.ContractData
}

// NewContractRegistry returns an empty registry.
func NewContractRegistry() *ContractRegistry {
	return &ContractRegistry{contracts: make(map[string]models.ContractData)}
}

// Put registers a contract, replacing any previous entry for the symbol.
// Identical symbols carry identical static metadata, so last write wins.
func (r *ContractRegistry) Put(c models.ContractData) {
	r.mu.Lock()
	r.contracts[c.Symbol] = c
	r.mu.Unlock()
}

// Get looks up a contract by symbol.
func (r *ContractRegistry) Get(symbol string) (models.ContractData, bool) {
	r.mu.RLock()
	c, ok := r.contracts[symbol]
	r.mu.RUnlock()
	return c, ok
}

// Contains reports whether the symbol is registered.
func (r *ContractRegistry) Contains(symbol string) bool {
	r.mu.RLock()
	_, ok := r.contracts[symbol]
	r.mu.RUnlock()
	return ok
}

// Len returns the number of registered contracts.
func (r *ContractRegistry) Len() int {
	r.mu.RLock()
	n := len(r.contracts)
	r.mu.RUnlock()
	return n
}

// Symbols returns a snapshot of all registered symbols.
func (r *ContractRegistry) Symbols() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.contracts))
	for s := range r.contracts {
		out = append(out, s)
	}
	r.mu.RUnlock()
	return out
}
