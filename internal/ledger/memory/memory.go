package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"iptvprofit/internal/core"
)

// Store keeps sales and ad spends in process memory. Data is lost on
// restart.
type Store struct {
	mu         sync.Mutex
	now        func() time.Time
	sales      []core.Sale
	ads        []core.AdSpend
	nextSaleID int64
	nextAdID   int64
}

func New() *Store {
	return &Store{now: time.Now, nextSaleID: 1, nextAdID: 1}
}

func (s *Store) ListSales(_ context.Context) ([]core.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]core.Sale(nil), s.sales...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) CreateSale(_ context.Context, in core.SaleInput) (core.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sale := core.Sale{
		ID:        s.nextSaleID,
		Date:      in.Date,
		CreatedAt: s.now().UTC(),
	}.Apply(in)
	s.nextSaleID++
	s.sales = append(s.sales, sale)
	return sale, nil
}

func (s *Store) UpdateSale(_ context.Context, id int64, in core.SaleInput) (core.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sales {
		if s.sales[i].ID == id {
			s.sales[i] = s.sales[i].Apply(in)
			return s.sales[i], nil
		}
	}
	return core.Sale{}, core.ErrNotFound
}

func (s *Store) DeleteSale(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sales {
		if s.sales[i].ID == id {
			s.sales = append(s.sales[:i], s.sales[i+1:]...)
			return nil
		}
	}
	return core.ErrNotFound
}

func (s *Store) ListAdSpends(_ context.Context) ([]core.AdSpend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]core.AdSpend(nil), s.ads...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) CreateAdSpend(_ context.Context, in core.AdSpendInput) (core.AdSpend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ad := core.AdSpend{
		ID:        s.nextAdID,
		Date:      in.Date,
		Platform:  in.Platform,
		Amount:    in.Amount,
		CreatedAt: s.now().UTC(),
	}
	s.nextAdID++
	s.ads = append(s.ads, ad)
	return ad, nil
}

// Close is a no-op; it lets Store satisfy the backend interface.
func (s *Store) Close() error { return nil }
