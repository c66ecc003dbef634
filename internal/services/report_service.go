package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"iptvprofit/internal/core"
	"iptvprofit/internal/ledger"
	"iptvprofit/internal/log"
)

// Snapshot is one consistent read of the ledger plus everything derived
// from it.
type Snapshot struct {
	Sales    []core.Sale
	AdSpends []core.AdSpend
	Report   core.Report
	TakenAt  time.Time
}

// ReportService recomputes totals and daily summaries from a fresh read of
// the store on every call.
type ReportService struct {
	store ledger.Snapshotter
	loc   *time.Location
	now   func() time.Time
}

func NewReportService(store ledger.Snapshotter, loc *time.Location) *ReportService {
	if loc == nil {
		loc = time.Local
	}
	return &ReportService{store: store, loc: loc, now: time.Now}
}

func (s *ReportService) Location() *time.Location {
	return s.loc
}

// Snapshot lists sales and ad spends concurrently and aggregates them.
func (s *ReportService) Snapshot(ctx context.Context) (Snapshot, error) {
	var (
		sales []core.Sale
		ads   []core.AdSpend
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sales, err = s.store.ListSales(gctx)
		if err != nil {
			return fmt.Errorf("list sales: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		ads, err = s.store.ListAdSpends(gctx)
		if err != nil {
			return fmt.Errorf("list ad spends: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	report := core.BuildReport(sales, ads, s.loc)
	logger := log.FromContext(ctx).WithComponent(log.ComponentReport)
	if report.Undated > 0 {
		logger.WarnContext(ctx, "Records without a usable date left out of daily summaries",
			log.FieldUndated, report.Undated)
	}
	logger.DebugContext(ctx, "Report computed",
		log.FieldOperation, log.OpReport,
		log.FieldSales, len(sales),
		log.FieldAdSpends, len(ads),
		log.FieldDays, len(report.Days))

	return Snapshot{
		Sales:    sales,
		AdSpends: ads,
		Report:   report,
		TakenAt:  s.now(),
	}, nil
}
