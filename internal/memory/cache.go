package memory

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/orbvoice/orb/domain/entities"
	"github.com/orbvoice/orb/domain/repositories"
)

// FactCache is a read-through cache over the persisted personality
// facts. The engine reads it on every prompt assembly; it is refreshed
// after each extraction pass.
type FactCache struct {
	store  repositories.Store
	logger *zap.Logger

	mu    sync.RWMutex
	facts []entities.PersonalityFact
}

func NewFactCache(store repositories.Store, logger *zap.Logger) *FactCache {
	return &FactCache{store: store, logger: logger}
}

// Facts returns the cached snapshot. Callers must not mutate it.
func (c *FactCache) Facts() []entities.PersonalityFact {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.facts
}

// Refresh reloads the cache from the store.
func (c *FactCache) Refresh(ctx context.Context) error {
	facts, err := c.store.GetPersonality(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.facts = facts
	c.mu.Unlock()

	c.logger.Debug("Fact cache refreshed", zap.Int("count", len(facts)))
	return nil
}
