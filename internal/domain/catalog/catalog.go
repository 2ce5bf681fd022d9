// Package catalog keeps the registry of analysis engines, ranks them for a
// caller's data and budget, and tracks per-engine usage.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/pkg/logger"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/pkg/metrics"
)

type entry struct {
	desc     model.EngineDescriptor
	version  *semver.Version
	executor Executor
	usage    model.EngineUsage
}

// Catalog is the engine registry. Descriptors are read-mostly; usage
// counters are the only state mutated after bootstrap.
type Catalog struct {
	mu      sync.RWMutex
	engines map[string]*entry
	log     logger.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the catalog logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates an empty catalog.
func New(opts ...Option) *Catalog {
	c := &Catalog{
		engines: make(map[string]*entry),
		log:     logger.Named("catalog"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds or replaces an engine. A re-registration must carry an
// equal or newer version; usage history is preserved across replacements.
func (c *Catalog) Register(desc model.EngineDescriptor, executor Executor) error {
	desc.ID = strings.TrimSpace(desc.ID)
	if desc.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidDescriptor)
	}
	if desc.CostPerAnalysis < 0 {
		return fmt.Errorf("%w: negative cost for %s", ErrInvalidDescriptor, desc.ID)
	}
	if executor == nil {
		return fmt.Errorf("%w: %s", ErrNilExecutor, desc.ID)
	}
	switch desc.Status {
	case "":
		desc.Status = model.EngineActive
	case model.EngineActive, model.EngineInactive:
	default:
		return fmt.Errorf("%w: unknown status %q for %s", ErrInvalidDescriptor, desc.Status, desc.ID)
	}
	v, err := semver.NewVersion(desc.Version)
	if err != nil {
		return fmt.Errorf("%w: %s %q: %v", ErrInvalidVersion, desc.ID, desc.Version, err)
	}
	desc.RequiredMetrics = append([]string(nil), desc.RequiredMetrics...)
	desc.Capabilities.Languages = append([]string(nil), desc.Capabilities.Languages...)

	c.mu.Lock()
	defer c.mu.Unlock()

	var usage model.EngineUsage
	if existing, ok := c.engines[desc.ID]; ok {
		if v.LessThan(existing.version) {
			return fmt.Errorf("%w: %s %s < %s", ErrStaleVersion, desc.ID, v, existing.version)
		}
		usage = existing.usage
	}
	c.engines[desc.ID] = &entry{desc: desc, version: v, executor: executor, usage: usage}
	metrics.UpdateRegisteredEngines(len(c.engines))
	c.log.Info(context.Background(), "engine registered",
		logger.String("engineId", desc.ID),
		logger.String("version", v.String()),
		logger.Int("cost", desc.CostPerAnalysis))
	return nil
}

// List returns all descriptors ordered by ID.
func (c *Catalog) List() []model.EngineDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.EngineDescriptor, 0, len(c.engines))
	for _, e := range c.engines {
		out = append(out, e.desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns the descriptor and executor for id.
func (c *Catalog) Get(id string) (model.EngineDescriptor, Executor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.engines[id]
	if !ok {
		return model.EngineDescriptor{}, nil, false
	}
	return e.desc, e.executor, true
}

// Len returns the number of registered engines.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.engines)
}

// RecordUsage counts one completed analysis and folds rating into the
// running average. Ratings <= 0 mean "unrated". Unknown IDs are ignored.
func (c *Catalog) RecordUsage(id string, rating float64) {
	c.mu.Lock()
	e, ok := c.engines[id]
	if ok {
		e.usage.Count++
		foldRating(&e.usage, rating)
	}
	c.mu.Unlock()
	if ok {
		metrics.RecordEngineUsage(id)
	}
}

// Rate folds a rating without counting a usage.
func (c *Catalog) Rate(id string, rating float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.engines[id]
	if !ok {
		return false
	}
	foldRating(&e.usage, rating)
	return true
}

// Usage returns the usage history for id (zero value when unknown).
func (c *Catalog) Usage(id string) model.EngineUsage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.engines[id]; ok {
		return e.usage
	}
	return model.EngineUsage{}
}

func foldRating(u *model.EngineUsage, rating float64) {
	if rating <= 0 || rating != rating {
		return
	}
	u.RatingCount++
	u.AverageRating += (rating - u.AverageRating) / float64(u.RatingCount)
}
