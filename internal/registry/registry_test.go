package registry

import (
	"testing"

	"femasflow/internal/models"
)

func TestPutGet(t *testing.T) {
	r := NewContractRegistry()

	if _, ok := r.Get("IF2309"); ok {
		t.Fatalf("empty registry should not resolve symbols")
	}

	r.Put(models.ContractData{Symbol: "IF2309", Exchange: models.ExchangeCFFEX, PriceTick: 0.2})

	c, ok := r.Get("IF2309")
	if !ok {
		t.Fatalf("contract not found after Put")
	}
	if c.Exchange != models.ExchangeCFFEX || c.PriceTick != 0.2 {
		t.Errorf("unexpected contract: %+v", c)
	}
	if !r.Contains("IF2309") {
		t.Errorf("Contains should report the stored symbol")
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestPutLastWriteWins(t *testing.T) {
	r := NewContractRegistry()

	r.Put(models.ContractData{Symbol: "cu2310", Name: "old"})
	r.Put(models.ContractData{Symbol: "cu2310", Name: "new"})

	c, _ := r.Get("cu2310")
	if c.Name != "new" {
		t.Errorf("Name = %q, want new", c.Name)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestSymbols(t *testing.T) {
	r := NewContractRegistry()
	r.Put(models.ContractData{Symbol: "a"})
	r.Put(models.ContractData{Symbol: "b"})

	syms := r.Symbols()
	if len(syms) != 2 {
		t.Fatalf("Symbols = %v, want 2 entries", syms)
	}
	seen := map[string]bool{}
	for _, s := range syms {
		seen[s] = true
	}
	if !seen["a"] || !seen["b"] {
		t.Errorf("Symbols = %v", syms)
	}
}
