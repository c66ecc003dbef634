package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"iptvprofit/internal/amqp"
	"iptvprofit/internal/log"
	"iptvprofit/internal/services"
	"iptvprofit/internal/sheets"
)

// Snapshotter is the read side the worker needs.
type Snapshotter interface {
	Snapshot(ctx context.Context) (services.Snapshot, error)
}

// SyncRecorder observes mirror syncs.
type SyncRecorder interface {
	RecordMirrorSync(outcome string, d time.Duration)
}

// MirrorWorker keeps the spreadsheet mirror in step with the ledger.
// Change messages only mark the mirror dirty; every sync rewrites the tabs
// from a full snapshot, so lost or reordered messages do no harm.
type MirrorWorker struct {
	reports  Snapshotter
	mirror   sheets.MirrorWriter
	names    sheets.Names
	loc      *time.Location
	recorder SyncRecorder
	logger   *log.Logger

	dirty    atomic.Bool
	mu       sync.Mutex // serialises syncs
	lastSync time.Time
	now      func() time.Time
}

type Option func(*MirrorWorker)

func WithSheetNames(n sheets.Names) Option {
	return func(w *MirrorWorker) { w.names = n }
}

func WithRecorder(r SyncRecorder) Option {
	return func(w *MirrorWorker) { w.recorder = r }
}

func WithLogger(l *log.Logger) Option {
	return func(w *MirrorWorker) { w.logger = l }
}

// NewMirrorWorker starts dirty so the first scheduled run writes the mirror.
func NewMirrorWorker(reports Snapshotter, mirror sheets.MirrorWriter, loc *time.Location, opts ...Option) *MirrorWorker {
	if loc == nil {
		loc = time.Local
	}
	w := &MirrorWorker{
		reports: reports,
		mirror:  mirror,
		loc:     loc,
		logger:  log.New(log.DefaultConfig()),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.WithComponent(log.ComponentWorker)
	w.dirty.Store(true)
	return w
}

// HandleChange is the AMQP handler. It never fails for a valid message.
func (w *MirrorWorker) HandleChange(ctx context.Context, msg *amqp.RecordChangeMessage) error {
	w.dirty.Store(true)
	w.logger.DebugContext(ctx, "Ledger change received",
		"kind", msg.Kind,
		"action", msg.Action,
		"id", msg.ID,
		"timestamp", msg.Timestamp)
	return nil
}

func (w *MirrorWorker) Dirty() bool {
	return w.dirty.Load()
}

func (w *MirrorWorker) LastSync() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSync
}

// SyncIfDirty runs Sync only when a change arrived since the last
// successful sync. It reports whether a sync was attempted.
func (w *MirrorWorker) SyncIfDirty(ctx context.Context) (bool, error) {
	if !w.dirty.Swap(false) {
		return false, nil
	}
	if err := w.Sync(ctx); err != nil {
		w.dirty.Store(true)
		return true, err
	}
	return true, nil
}

// Sync rewrites every mirror tab from a fresh snapshot.
func (w *MirrorWorker) Sync(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	start := w.now()
	err := w.sync(ctx)
	elapsed := w.now().Sub(start)

	outcome := services.Outcome(err)
	if w.recorder != nil {
		w.recorder.RecordMirrorSync(outcome, elapsed)
	}
	if err != nil {
		w.logger.ErrorContext(ctx, "Mirror sync failed",
			log.FieldOperation, log.OpSync,
			log.FieldError, err,
			log.FieldDuration, elapsed.Milliseconds())
		return err
	}

	w.lastSync = start
	w.logger.InfoContext(ctx, "Mirror synced",
		log.FieldOperation, log.OpSync,
		log.FieldDuration, elapsed.Milliseconds())
	return nil
}

func (w *MirrorWorker) sync(ctx context.Context) error {
	snap, err := w.reports.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	tables := sheets.BuildTables(w.names, snap.Sales, snap.AdSpends, snap.Report, w.loc)
	if err := w.mirror.ReplaceTables(ctx, tables); err != nil {
		return fmt.Errorf("replace mirror tables: %w", err)
	}
	return nil
}
