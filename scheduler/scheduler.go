package scheduler

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coreybb/qcdash/models"
)

const (
	DefaultInterval    = 5 * time.Second
	defaultConcurrency = 4
)

// UpdateFetcher fetches the current job state of one delivery.
type UpdateFetcher interface {
	FetchUpdate(ctx context.Context, d *models.DeliveryRecord) (*models.JobUpdate, error)
}

// Rows is the set of table rows the scheduler keeps current. Both
// *table.Table and *table.Registry implement it.
type Rows interface {
	Polling() []models.DeliveryRecord
	Apply(u *models.JobUpdate) bool
}

// Scheduler periodically refreshes table rows whose QC job is still
// waiting or running.
type Scheduler struct {
	rows        Rows
	fetcher     UpdateFetcher
	interval    time.Duration
	concurrency int

	mu       sync.Mutex
	inFlight map[models.DeliveryID]struct{}
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a Scheduler. A non-positive interval or concurrency selects
// the default.
func New(rows Rows, fetcher UpdateFetcher, interval time.Duration, concurrency int) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Scheduler{
		rows:        rows,
		fetcher:     fetcher,
		interval:    interval,
		concurrency: concurrency,
		inFlight:    map[models.DeliveryID]struct{}{},
	}
}

// Start begins the polling loop. Calling Start on a running scheduler is a
// no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	log.Printf("INFO (Scheduler): Polling running jobs every %s", s.interval)
}

// Stop ends the polling loop and waits for the current tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Println("INFO (Scheduler): Polling stopped")
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
				log.Printf("ERROR (Scheduler): Tick failed: %v", err)
			}
		}
	}
}

// HandleTick is an HTTP handler that triggers a scheduler tick.
// Used for manual curl requests and by pages that want an immediate refresh.
func (s *Scheduler) HandleTick(w http.ResponseWriter, r *http.Request) {
	log.Println("INFO (Scheduler): Tick triggered via HTTP")

	applied, err := s.Tick(r.Context())
	if err != nil {
		log.Printf("ERROR (Scheduler): Tick failed: %v", err)
		http.Error(w, "scheduler tick failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK: refreshed %d deliveries", applied)
}

// Tick runs a single polling cycle over the rows that are currently
// polling and returns how many rows were updated. Fetch failures are
// logged and leave the row as it was; a response for a row that has left
// the table is dropped.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	targets := s.rows.Polling()
	if len(targets) == 0 {
		return 0, nil
	}

	var (
		mu      sync.Mutex
		applied int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range targets {
		rec := targets[i]
		if !s.acquire(rec.ID) {
			continue
		}
		g.Go(func() error {
			defer s.release(rec.ID)
			if s.refresh(gctx, &rec) {
				mu.Lock()
				applied++
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return applied, err
	}
	return applied, ctx.Err()
}

func (s *Scheduler) refresh(ctx context.Context, rec *models.DeliveryRecord) bool {
	upd, err := s.fetcher.FetchUpdate(ctx, rec)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("WARN (Scheduler): Status poll for delivery %s failed: %v", rec.ID, err)
		}
		return false
	}
	if upd.ID == "" {
		upd.ID = rec.ID
	}
	if !s.rows.Apply(upd) {
		log.Printf("INFO (Scheduler): Delivery %s no longer in table, dropping update", upd.ID)
		return false
	}
	return true
}

// acquire marks id as having a request in flight. It returns false if one
// already is.
func (s *Scheduler) acquire(id models.DeliveryID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *Scheduler) release(id models.DeliveryID) {
	s.mu.Lock()
	delete(s.inFlight, id)
	s.mu.Unlock()
}
