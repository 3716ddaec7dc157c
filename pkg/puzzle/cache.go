package puzzle

import (
	"sync"

	"github.com/fystack/spendkit/pkg/bls"
	"github.com/fystack/spendkit/pkg/ledger"
	"golang.org/x/crypto/sha3"
)

// Cache interns program templates by structural hash so repeated
// orchestration sessions reuse one backing slice per template. It is a pure
// memoization layer: safe to share read-mostly across sessions, guarded for
// callers that build templates from multiple goroutines.
type Cache struct {
	mu      sync.RWMutex
	entries map[[32]byte]ledger.Program
}

func NewCache() *Cache {
	return &Cache{entries: make(map[[32]byte]ledger.Program)}
}

func structuralKey(p ledger.Program) [32]byte {
	return sha3.Sum256(p)
}

// Intern returns the cached copy of p, storing it on first sight.
func (c *Cache) Intern(p ledger.Program) ledger.Program {
	key := structuralKey(p)
	c.mu.RLock()
	cached, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return cached
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.entries[key]; ok {
		return cached
	}
	c.entries[key] = p
	return p
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) Standard(owner bls.PublicKey) ledger.Program {
	return c.Intern(StandardPuzzle(owner))
}

func (c *Cache) Settlement(version uint8) ledger.Program {
	return c.Intern(SettlementPuzzle(version))
}

func (c *Cache) Cat(assetID ledger.Hash256, inner ledger.Program) ledger.Program {
	return c.Intern(CatPuzzle(assetID, inner))
}

func (c *Cache) Singleton(launcherID ledger.Hash256, inner ledger.Program) ledger.Program {
	return c.Intern(SingletonPuzzle(launcherID, inner))
}
