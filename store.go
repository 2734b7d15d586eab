package xlpivot

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// PivotStore owns the pivot definitions of a document and exactly one cache
// per pivot. Builds for the same pivot and fetch token are shared; a build
// that finishes after its token was bumped is discarded.
type PivotStore struct {
	exec    QueryExecutor
	logger  *zap.Logger
	clock   func() time.Time
	metrics *storeMetrics

	mu      sync.Mutex
	entries map[int]*pivotEntry

	group singleflight.Group

	names        *lru.Cache[string, string]
	labelMu      sync.Mutex
	labelWaiters map[string][]labelWaiter
	labelWG      sync.WaitGroup
}

type pivotEntry struct {
	def            *PivotDefinition
	computedDomain Domain
	hasComputed    bool
	cache          *PivotCache
	token          uint64
	lastUpdate     time.Time
}

type labelWaiter struct {
	cache   *PivotCache
	groupBy string
}

// NewPivotStore creates an empty store reading data from exec.
func NewPivotStore(exec QueryExecutor, opts ...Option) (*PivotStore, error) {
	o := buildOptions(opts)
	names, err := lru.New[string, string](o.labelCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create label cache: %w", err)
	}
	return &PivotStore{
		exec:         exec,
		logger:       o.logger,
		clock:        o.clock,
		metrics:      newStoreMetrics(o.registerer),
		entries:      make(map[int]*pivotEntry),
		names:        names,
		labelWaiters: make(map[string][]labelWaiter),
	}, nil
}

// Register adds a pivot definition. The store keeps its own copy.
func (s *PivotStore) Register(def *PivotDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[def.ID]; ok {
		return fmt.Errorf("pivot %d: already registered", def.ID)
	}
	s.entries[def.ID] = &pivotEntry{def: def.Clone()}
	return nil
}

// Remove forgets a pivot and its cache.
func (s *PivotStore) Remove(id int) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}

// Definition returns the registered definition of a pivot.
func (s *PivotStore) Definition(id int) (*PivotDefinition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	return e.def, true
}

// Definitions returns every definition ordered by id.
func (s *PivotStore) Definitions() []*PivotDefinition {
	s.mu.Lock()
	defer s.mu.Unlock()
	defs := make([]*PivotDefinition, 0, len(s.entries))
	for _, e := range s.entries {
		defs = append(defs, e.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs
}

// IDs returns the registered pivot ids in ascending order.
func (s *PivotStore) IDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Domain returns the effective domain of a pivot: the computed domain when
// one was set, otherwise the definition's base domain.
func (s *PivotStore) Domain(id int) (Domain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("pivot %d: %w", id, ErrUnknownPivot)
	}
	return e.domain(), nil
}

func (e *pivotEntry) domain() Domain {
	if e.hasComputed {
		return e.computedDomain
	}
	return e.def.Domain
}

// SetComputedDomain replaces the effective domain of a pivot. A different
// domain drops the cache and supersedes any build in flight.
func (s *PivotStore) SetComputedDomain(id int, d Domain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("pivot %d: %w", id, ErrUnknownPivot)
	}
	if e.hasComputed && reflect.DeepEqual(e.computedDomain, d) {
		return nil
	}
	e.computedDomain = d
	e.hasComputed = true
	e.invalidate()
	return nil
}

// Invalidate drops the cache of a pivot so the next access rebuilds it.
func (s *PivotStore) Invalidate(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		e.invalidate()
	}
}

// InvalidateAll drops every cache.
func (s *PivotStore) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		e.invalidate()
	}
}

func (e *pivotEntry) invalidate() {
	e.cache = nil
	e.token++
}

// IsLoaded reports whether the pivot has a cache.
func (s *PivotStore) IsLoaded(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	return ok && e.cache != nil
}

// LastUpdate returns when the current cache of a pivot was installed.
func (s *PivotStore) LastUpdate(id int) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.cache == nil {
		return time.Time{}, false
	}
	return e.lastUpdate, true
}

// Caches returns the caches loaded so far, keyed by pivot id.
func (s *PivotStore) Caches() Caches {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(Caches, len(s.entries))
	for id, e := range s.entries {
		if e.cache != nil {
			out[id] = e.cache
		}
	}
	return out
}

// LoadAll builds the cache of every registered pivot.
func (s *PivotStore) LoadAll(ctx context.Context) (Caches, error) {
	for _, id := range s.IDs() {
		if _, err := s.Cache(ctx, id); err != nil {
			return nil, err
		}
	}
	return s.Caches(), nil
}

// Cache returns the cache of a pivot, building it when needed. Concurrent
// callers share one build. A build superseded while in flight is dropped and
// the call retries with the current token.
func (s *PivotStore) Cache(ctx context.Context, id int) (*PivotCache, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.mu.Lock()
		e, ok := s.entries[id]
		if !ok {
			s.mu.Unlock()
			return nil, fmt.Errorf("pivot %d: %w", id, ErrUnknownPivot)
		}
		if e.cache != nil {
			c := e.cache
			s.mu.Unlock()
			return c, nil
		}
		token := e.token
		s.mu.Unlock()

		key := fmt.Sprintf("%d:%d", id, token)
		v, err, _ := s.group.Do(key, func() (any, error) {
			return s.build(context.WithoutCancel(ctx), id, token)
		})
		if errors.Is(err, errStaleFetch) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return v.(*PivotCache), nil
	}
}

func (s *PivotStore) build(ctx context.Context, id int, token uint64) (*PivotCache, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("pivot %d: %w", id, ErrUnknownPivot)
	}
	def := e.def
	domain := e.domain()
	s.mu.Unlock()

	c, err := s.fetch(ctx, def, domain)
	if err != nil {
		s.metrics.buildErrors.Inc()
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok = s.entries[id]
	if !ok || e.token != token {
		s.metrics.staleFetches.Inc()
		s.logger.Debug("discarding stale pivot cache", zap.Int("pivot", id), zap.Uint64("token", token))
		return nil, errStaleFetch
	}
	e.cache = c
	e.lastUpdate = s.clock()
	s.metrics.builds.Inc()
	return c, nil
}

func (s *PivotStore) fetch(ctx context.Context, def *PivotDefinition, domain Domain) (*PivotCache, error) {
	fields, err := s.exec.FieldMetadata(ctx, def.Model)
	if err != nil {
		return nil, fmt.Errorf("pivot %d: fetch fields of %q: %w", def.ID, def.Model, err)
	}
	modelLabel, err := s.exec.DisplayName(ctx, def.Model)
	if err != nil {
		return nil, fmt.Errorf("pivot %d: fetch name of %q: %w", def.ID, def.Model, err)
	}
	measures := make([]string, 0, len(def.Measures))
	for _, m := range def.Measures {
		if m.Field == CountMeasure {
			continue
		}
		measures = append(measures, m.Field+":"+operatorFor(m, fields))
	}
	groupBys := make([]string, 0, len(def.RowGroupBys)+len(def.ColGroupBys))
	for _, gb := range def.GroupBys() {
		gb = normalizeGroupBy(fields, gb)
		if !slices.Contains(groupBys, gb) {
			groupBys = append(groupBys, gb)
		}
	}
	rows, err := s.exec.ReadGroup(ctx, ReadGroupRequest{
		Model:    def.Model,
		Domain:   domain,
		Context:  def.Context,
		Measures: measures,
		GroupBys: groupBys,
	})
	if err != nil {
		return nil, fmt.Errorf("pivot %d: read group: %w", def.ID, err)
	}
	c, err := BuildCache(ctx, rows, fields, modelLabel, def, s.exec)
	if err != nil {
		return nil, err
	}
	s.applyKnownNames(c)
	return c, nil
}

// applyKnownNames fills in relational labels resolved for earlier caches.
func (s *PivotStore) applyKnownNames(c *PivotCache) {
	for _, gb := range append(slices.Clone(c.RowGroupBys()), c.ColGroupBys()...) {
		field, ok := c.Field(gb)
		if !ok || !field.IsRelational() {
			continue
		}
		for _, v := range c.GetFieldValues(gb) {
			if c.HasLabel(gb, v) {
				continue
			}
			if name, ok := s.names.Get(nameKey(field.Relation, v)); ok {
				c.SetLabel(gb, v, name)
			}
		}
	}
}

func nameKey(model, id string) string {
	return model + "\x00" + id
}

// RequestLabel starts a background lookup of the display name of a
// relational group value and returns immediately. The name is written into
// c once resolved. Lookups are shared per (model, id).
func (s *PivotStore) RequestLabel(ctx context.Context, c *PivotCache, groupBy, value string) {
	field, ok := c.Field(groupBy)
	if !ok || !field.IsRelational() || value == UndefinedValue {
		return
	}
	key := nameKey(field.Relation, value)
	if name, ok := s.names.Get(key); ok {
		c.SetLabel(groupBy, value, name)
		return
	}
	resolver, ok := s.exec.(LabelResolver)
	if !ok {
		return
	}

	s.labelMu.Lock()
	waiters, pending := s.labelWaiters[key]
	s.labelWaiters[key] = append(waiters, labelWaiter{cache: c, groupBy: groupBy})
	s.labelMu.Unlock()
	if pending {
		return
	}

	s.labelWG.Add(1)
	go func() {
		defer s.labelWG.Done()
		names, err := resolver.DisplayNames(context.WithoutCancel(ctx), field.Relation, []string{value})

		s.labelMu.Lock()
		waiters := s.labelWaiters[key]
		delete(s.labelWaiters, key)
		s.labelMu.Unlock()

		name, found := names[value]
		switch {
		case err != nil:
			s.metrics.labelLookups.WithLabelValues("error").Inc()
			s.logger.Warn("display name lookup failed",
				zap.String("model", field.Relation), zap.String("id", value), zap.Error(err))
			return
		case !found:
			s.metrics.labelLookups.WithLabelValues("missing").Inc()
			return
		}
		s.metrics.labelLookups.WithLabelValues("resolved").Inc()
		s.names.Add(key, name)
		for _, w := range waiters {
			w.cache.SetLabel(w.groupBy, value, name)
		}
	}()
}

// WaitLabels blocks until every background label lookup has finished.
func (s *PivotStore) WaitLabels() {
	s.labelWG.Wait()
}
