// Package table holds the delivery table a dashboard page is showing.
package table

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/coreybb/qcdash/models"
	"github.com/coreybb/qcdash/presenter"
	"github.com/coreybb/qcdash/qcclient"
)

// Lister fetches one page of deliveries.
type Lister interface {
	ListDeliveries(ctx context.Context, p qcclient.ListParams) (*models.DeliveryPage, error)
}

// Row is a record together with its presented view.
type Row struct {
	Record models.DeliveryRecord `json:"record"`
	View   presenter.RowView     `json:"view"`
}

// Snapshot is a consistent copy of a table's dataset: the rows, total and
// skipped count all belong to Query.
type Snapshot struct {
	Query   qcclient.ListParams
	Rows    []Row
	Total   int
	Skipped int
}

// Table owns the current dataset and the query that produced it.
type Table struct {
	source Lister
	caps   models.Capabilities

	mu      sync.RWMutex
	rows    []Row
	index   map[models.DeliveryID]int
	total   int
	skipped int
	last    *qcclient.ListParams
	stale   bool
}

// New creates an empty table backed by source.
func New(source Lister, caps models.Capabilities) *Table {
	return &Table{
		source: source,
		caps:   caps,
		index:  map[models.DeliveryID]int{},
	}
}

// Load fetches the page described by p and returns it. When p equals the
// query of the current dataset and the table was not invalidated nothing
// is fetched, the held dataset is returned and fetched is false.
func (t *Table) Load(ctx context.Context, p qcclient.ListParams) (snap Snapshot, fetched bool, err error) {
	t.mu.RLock()
	if t.last != nil && *t.last == p && !t.stale {
		snap = t.snapshotLocked()
		t.mu.RUnlock()
		return snap, false, nil
	}
	t.mu.RUnlock()

	snap, err = t.fetch(ctx, p)
	if err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

// Refresh re-fetches the current query regardless of whether it changed.
func (t *Table) Refresh(ctx context.Context) (Snapshot, error) {
	t.mu.RLock()
	var p qcclient.ListParams
	if t.last != nil {
		p = *t.last
	}
	t.mu.RUnlock()
	return t.fetch(ctx, p)
}

// Invalidate makes the next Load fetch even when its query is unchanged.
func (t *Table) Invalidate() {
	t.mu.Lock()
	t.stale = true
	t.mu.Unlock()
}

// fetch builds the new dataset outside the lock and swaps it in. The
// returned snapshot is the one built here, so two overlapping fetches each
// hand their caller their own consistent page.
func (t *Table) fetch(ctx context.Context, p qcclient.ListParams) (Snapshot, error) {
	page, err := t.source.ListDeliveries(ctx, p)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load deliveries: %w", err)
	}

	rows := make([]Row, 0, len(page.Rows))
	index := make(map[models.DeliveryID]int, len(page.Rows))
	skipped := 0
	for i := range page.Rows {
		rec := page.Rows[i]
		view, err := presenter.Present(&rec, t.caps)
		if err != nil {
			log.Printf("WARN (Table): Skipping delivery row: %v", err)
			skipped++
			continue
		}
		if _, dup := index[rec.ID]; dup {
			log.Printf("WARN (Table): Duplicate delivery id %s in page, keeping first", rec.ID)
			skipped++
			continue
		}
		index[rec.ID] = len(rows)
		rows = append(rows, Row{Record: rec, View: view})
	}

	snap := Snapshot{Query: p, Rows: make([]Row, len(rows)), Total: page.Total, Skipped: skipped}
	copy(snap.Rows, rows)

	t.mu.Lock()
	t.rows = rows
	t.index = index
	t.total = page.Total
	t.skipped = skipped
	t.last = &p
	t.stale = false
	t.mu.Unlock()
	return snap, nil
}

// Apply replaces the job fields of the row with the update's id and
// re-presents it. It returns false, changing nothing, when the row is not
// in the current dataset or the updated record cannot be presented.
func (t *Table) Apply(u *models.JobUpdate) bool {
	if u == nil || u.ID == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.index[u.ID]
	if !ok {
		return false
	}
	rec := u.ApplyTo(t.rows[i].Record)
	view, err := presenter.Present(&rec, t.caps)
	if err != nil {
		log.Printf("WARN (Table): Ignoring update for delivery %s: %v", u.ID, err)
		return false
	}
	t.rows[i] = Row{Record: rec, View: view}
	return true
}

// Snapshot returns the current dataset. ok is false before the first
// successful load.
func (t *Table) Snapshot() (snap Snapshot, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.last == nil {
		return Snapshot{}, false
	}
	return t.snapshotLocked(), true
}

func (t *Table) snapshotLocked() Snapshot {
	snap := Snapshot{Rows: make([]Row, len(t.rows)), Total: t.total, Skipped: t.skipped}
	copy(snap.Rows, t.rows)
	if t.last != nil {
		snap.Query = *t.last
	}
	return snap
}

// Rows returns a copy of the current rows in server order.
func (t *Table) Rows() []Row {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Row, len(t.rows))
	copy(out, t.rows)
	return out
}

// Get returns the row with id.
func (t *Table) Get(id models.DeliveryID) (Row, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.index[id]
	if !ok {
		return Row{}, false
	}
	return t.rows[i], true
}

// Polling returns the records whose job is still waiting or running.
func (t *Table) Polling() []models.DeliveryRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []models.DeliveryRecord
	for _, r := range t.rows {
		if r.View.IsPolling {
			out = append(out, r.Record)
		}
	}
	return out
}

// Query returns the parameters of the current dataset.
func (t *Table) Query() (qcclient.ListParams, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.last == nil {
		return qcclient.ListParams{}, false
	}
	return *t.last, true
}

// Holds reports whether any of ids is in the current dataset.
func (t *Table) Holds(ids []models.DeliveryID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, id := range ids {
		if _, ok := t.index[id]; ok {
			return true
		}
	}
	return false
}

// Capabilities returns the site-level capabilities rows are presented with.
func (t *Table) Capabilities() models.Capabilities {
	return t.caps
}
