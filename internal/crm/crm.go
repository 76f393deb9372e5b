// Package crm pushes captured leads to the organization's CRM. Sync runs in
// the background: the dispatcher enqueues lead ids after persisting, and a
// periodic sweep retries anything that never made it across.
package crm

import (
	"context"
	"log/slog"
	"time"

	"github.com/voxbridge/voxbridge/internal/database"
	"github.com/voxbridge/voxbridge/internal/database/models"
)

// Client delivers one lead to the external CRM.
type Client interface {
	SyncLead(ctx context.Context, lead models.Lead) error
}

// Worker owns the background sync loop.
type Worker struct {
	leads    database.LeadRepository
	client   Client
	logger   *slog.Logger
	interval time.Duration
	queue    chan int64
}

// NewWorker creates a sync worker. interval controls the retry sweep; zero
// means every minute.
func NewWorker(leads database.LeadRepository, client Client, interval time.Duration, logger *slog.Logger) *Worker {
	if interval == 0 {
		interval = time.Minute
	}
	return &Worker{
		leads:    leads,
		client:   client,
		logger:   logger.With("subsystem", "crm"),
		interval: interval,
		queue:    make(chan int64, 256),
	}
}

// EnqueueLeadSync schedules a prompt sync attempt for a persisted lead.
// Never blocks; a full queue falls back to the periodic sweep.
func (w *Worker) EnqueueLeadSync(leadID int64) {
	select {
	case w.queue <- leadID:
	default:
		w.logger.Warn("sync queue full, lead deferred to sweep", "lead_id", leadID)
	}
}

// Run processes the queue and sweeps for unsynced leads until ctx is
// canceled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("crm sync worker started", "sweep_interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("crm sync worker stopped")
			return
		case id := <-w.queue:
			w.syncOne(ctx, id)
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Worker) syncOne(ctx context.Context, id int64) {
	lead, err := w.leads.GetByID(ctx, id)
	if err != nil {
		w.logger.Error("loading lead for sync", "lead_id", id, "error", err)
		return
	}
	if lead == nil || lead.CRMSynced {
		return
	}
	w.deliver(ctx, *lead)
}

// sweep retries every unsynced lead, oldest first. Failures stay unsynced
// and are retried on the next sweep.
func (w *Worker) sweep(ctx context.Context) {
	leads, err := w.leads.ListUnsynced(ctx, 100)
	if err != nil {
		w.logger.Error("listing unsynced leads", "error", err)
		return
	}
	for _, lead := range leads {
		if ctx.Err() != nil {
			return
		}
		w.deliver(ctx, lead)
	}
}

func (w *Worker) deliver(ctx context.Context, lead models.Lead) {
	cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := w.client.SyncLead(cctx, lead); err != nil {
		w.logger.Warn("lead sync failed", "lead_id", lead.ID, "error", err)
		return
	}
	if err := w.leads.MarkSynced(ctx, lead.ID); err != nil {
		w.logger.Error("marking lead synced", "lead_id", lead.ID, "error", err)
		return
	}
	w.logger.Info("lead synced", "lead_id", lead.ID, "org_id", lead.OrgID)
}
