package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"iptvprofit/internal/amqp"
	"iptvprofit/internal/core"
	"iptvprofit/internal/ledger"
	"iptvprofit/internal/log"
)

// ChangePublisher announces ledger mutations to other processes.
type ChangePublisher interface {
	PublishChange(ctx context.Context, msg *amqp.RecordChangeMessage) error
}

// MutationRecorder counts mutations by kind, action and outcome.
type MutationRecorder interface {
	RecordMutation(kind, action, outcome string)
}

// LedgerService is the write boundary of the record store: it normalises
// and validates input, stamps creation dates and announces changes.
type LedgerService struct {
	store     ledger.Store
	publisher ChangePublisher
	recorder  MutationRecorder
	now       func() time.Time
}

type LedgerOption func(*LedgerService)

// WithPublisher enables change notifications. A nil publisher is ignored.
func WithPublisher(p ChangePublisher) LedgerOption {
	return func(s *LedgerService) { s.publisher = p }
}

func WithRecorder(r MutationRecorder) LedgerOption {
	return func(s *LedgerService) { s.recorder = r }
}

func WithClock(now func() time.Time) LedgerOption {
	return func(s *LedgerService) { s.now = now }
}

func NewLedgerService(store ledger.Store, opts ...LedgerOption) *LedgerService {
	s := &LedgerService{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LedgerService) ListSales(ctx context.Context) ([]core.Sale, error) {
	return s.store.ListSales(ctx)
}

func (s *LedgerService) ListAdSpends(ctx context.Context) ([]core.AdSpend, error) {
	return s.store.ListAdSpends(ctx)
}

// CreateSale records a sale. A zero Date means now.
func (s *LedgerService) CreateSale(ctx context.Context, in core.SaleInput) (core.Sale, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		s.record(amqp.KindSale, amqp.ActionCreate, err)
		return core.Sale{}, err
	}
	if in.Date.IsZero() {
		in.Date = s.now()
	}

	sale, err := s.store.CreateSale(ctx, in)
	s.record(amqp.KindSale, amqp.ActionCreate, err)
	if err != nil {
		return core.Sale{}, fmt.Errorf("create sale: %w", err)
	}

	log.NewStructuredLogger(log.FromContext(ctx)).LogSaleRecorded(ctx, log.OpCreate, sale)
	s.publish(ctx, amqp.KindSale, amqp.ActionCreate, sale.ID)
	return sale, nil
}

// UpdateSale overwrites customer, panel, prices and agent. The sale keeps
// its original date.
func (s *LedgerService) UpdateSale(ctx context.Context, id int64, in core.SaleInput) (core.Sale, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		s.record(amqp.KindSale, amqp.ActionUpdate, err)
		return core.Sale{}, err
	}

	sale, err := s.store.UpdateSale(ctx, id, in)
	s.record(amqp.KindSale, amqp.ActionUpdate, err)
	if err != nil {
		return core.Sale{}, fmt.Errorf("update sale %d: %w", id, err)
	}

	log.NewStructuredLogger(log.FromContext(ctx)).LogSaleRecorded(ctx, log.OpUpdate, sale)
	s.publish(ctx, amqp.KindSale, amqp.ActionUpdate, sale.ID)
	return sale, nil
}

func (s *LedgerService) DeleteSale(ctx context.Context, id int64) error {
	err := s.store.DeleteSale(ctx, id)
	s.record(amqp.KindSale, amqp.ActionDelete, err)
	if err != nil {
		return fmt.Errorf("delete sale %d: %w", id, err)
	}

	log.FromContext(ctx).WithComponent(log.ComponentLedger).InfoContext(ctx, "Sale deleted",
		log.FieldSaleID, id,
		log.FieldOperation, log.OpDelete)
	s.publish(ctx, amqp.KindSale, amqp.ActionDelete, id)
	return nil
}

// CreateAdSpend records an ad spend. A zero Date means now.
func (s *LedgerService) CreateAdSpend(ctx context.Context, in core.AdSpendInput) (core.AdSpend, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		s.record(amqp.KindAdSpend, amqp.ActionCreate, err)
		return core.AdSpend{}, err
	}
	if in.Date.IsZero() {
		in.Date = s.now()
	}

	ad, err := s.store.CreateAdSpend(ctx, in)
	s.record(amqp.KindAdSpend, amqp.ActionCreate, err)
	if err != nil {
		return core.AdSpend{}, fmt.Errorf("create ad spend: %w", err)
	}

	log.NewStructuredLogger(log.FromContext(ctx)).LogAdSpendRecorded(ctx, ad)
	s.publish(ctx, amqp.KindAdSpend, amqp.ActionCreate, ad.ID)
	return ad, nil
}

// publish never fails the caller: the record is already stored.
func (s *LedgerService) publish(ctx context.Context, kind amqp.RecordKind, action amqp.Action, id int64) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishChange(ctx, amqp.NewRecordChangeMessage(kind, action, id)); err != nil {
		log.FromContext(ctx).WithComponent(log.ComponentAMQP).WarnContext(ctx, "Failed to publish ledger change",
			log.FieldOperation, log.OpPublish,
			log.FieldError, err,
			"kind", kind,
			"action", action,
			"id", id)
	}
}

func (s *LedgerService) record(kind amqp.RecordKind, action amqp.Action, err error) {
	if s.recorder == nil {
		return
	}
	s.recorder.RecordMutation(string(kind), string(action), Outcome(err))
}

// Outcome classifies err for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case core.IsValidation(err):
		return log.ErrorTypeValidation
	case errors.Is(err, core.ErrNotFound):
		return log.ErrorTypeNotFound
	case errors.Is(err, core.ErrStoreUnavailable):
		return log.ErrorTypeDatabase
	case errors.Is(err, context.DeadlineExceeded):
		return log.ErrorTypeTimeout
	default:
		return log.ErrorTypeInternal
	}
}
