package table

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"

	"github.com/coreybb/qcdash/models"
	"github.com/coreybb/qcdash/qcclient"
)

// DefaultMaxTables bounds how many distinct queries are held at once.
const DefaultMaxTables = 32

// Registry holds one Table per distinct query, so pages showing different
// pages, sorts or searches never replace each other's dataset. The
// reconciler and the command service work across every held table.
type Registry struct {
	source Lister
	caps   models.Capabilities
	max    int

	mu     sync.Mutex
	tables map[qcclient.ListParams]*entry
	clock  uint64
}

type entry struct {
	table *Table
	used  uint64
}

// NewRegistry creates an empty registry. A non-positive max selects
// DefaultMaxTables.
func NewRegistry(source Lister, caps models.Capabilities, max int) *Registry {
	if max <= 0 {
		max = DefaultMaxTables
	}
	return &Registry{
		source: source,
		caps:   caps,
		max:    max,
		tables: map[qcclient.ListParams]*entry{},
	}
}

// Table returns the table for p, creating it when needed. When the registry
// is full the least recently used table is dropped.
func (r *Registry) Table(p qcclient.ListParams) *Table {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock++
	if e, ok := r.tables[p]; ok {
		e.used = r.clock
		return e.table
	}
	if len(r.tables) >= r.max {
		r.evictLocked()
	}
	t := New(r.source, r.caps)
	r.tables[p] = &entry{table: t, used: r.clock}
	return t
}

func (r *Registry) evictLocked() {
	var (
		oldest qcclient.ListParams
		used   uint64
		found  bool
	)
	for p, e := range r.tables {
		if !found || e.used < used {
			oldest, used, found = p, e.used, true
		}
	}
	if found {
		delete(r.tables, oldest)
		log.Printf("INFO (Table): Dropped least recently used table %+v", oldest)
	}
}

// Load returns the page for p from its own table. The QC server is asked
// only when that table has no data for p yet, was invalidated, or refresh
// is set.
func (r *Registry) Load(ctx context.Context, p qcclient.ListParams, refresh bool) (Snapshot, error) {
	t := r.Table(p)
	if refresh {
		t.Invalidate()
	}
	snap, _, err := t.Load(ctx, p)
	return snap, err
}

// held returns the held tables, most recently used first.
func (r *Registry) held() []*Table {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make([]*entry, 0, len(r.tables))
	for _, e := range r.tables {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].used > entries[j].used })
	out := make([]*Table, len(entries))
	for i, e := range entries {
		out[i] = e.table
	}
	return out
}

// Find returns the row with id from the most recently used table that
// holds it.
func (r *Registry) Find(id models.DeliveryID) (Row, bool) {
	for _, t := range r.held() {
		if row, ok := t.Get(id); ok {
			return row, true
		}
	}
	return Row{}, false
}

// Polling returns the records still waiting or running across all tables,
// one per delivery.
func (r *Registry) Polling() []models.DeliveryRecord {
	seen := map[models.DeliveryID]bool{}
	var out []models.DeliveryRecord
	for _, t := range r.held() {
		for _, rec := range t.Polling() {
			if seen[rec.ID] {
				continue
			}
			seen[rec.ID] = true
			out = append(out, rec)
		}
	}
	return out
}

// Apply applies u to every table holding its delivery. It returns false
// when no table does.
func (r *Registry) Apply(u *models.JobUpdate) bool {
	applied := false
	for _, t := range r.held() {
		if t.Apply(u) {
			applied = true
		}
	}
	return applied
}

// RefreshHolding re-fetches the tables that hold any of ids and invalidates
// the rest, whose pages may have shifted. With no ids every table is
// invalidated.
func (r *Registry) RefreshHolding(ctx context.Context, ids []models.DeliveryID) error {
	var errs []error
	for _, t := range r.held() {
		if len(ids) > 0 && t.Holds(ids) {
			if _, err := t.Refresh(ctx); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		t.Invalidate()
	}
	return errors.Join(errs...)
}

// Capabilities returns the site-level capabilities rows are presented with.
func (r *Registry) Capabilities() models.Capabilities {
	return r.caps
}
