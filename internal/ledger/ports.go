// Package ledger defines the ports of the record store. Implementations
// live in ledger/memory and storage.
package ledger

import (
	"context"

	"iptvprofit/internal/core"
)

// Ports for the record store.
type (
	// SaleLister returns every sale, most recent date first.
	SaleLister interface {
		ListSales(ctx context.Context) ([]core.Sale, error)
	}

	// SaleWriter mutates sales. Update and Delete return core.ErrNotFound
	// when the id does not exist.
	SaleWriter interface {
		CreateSale(ctx context.Context, in core.SaleInput) (core.Sale, error)
		UpdateSale(ctx context.Context, id int64, in core.SaleInput) (core.Sale, error)
		DeleteSale(ctx context.Context, id int64) error
	}

	AdSpendLister interface {
		ListAdSpends(ctx context.Context) ([]core.AdSpend, error)
	}

	// AdSpendWriter only creates; ad spends are never edited or removed.
	AdSpendWriter interface {
		CreateAdSpend(ctx context.Context, in core.AdSpendInput) (core.AdSpend, error)
	}

	// Snapshotter is what the aggregation side needs.
	Snapshotter interface {
		SaleLister
		AdSpendLister
	}

	Store interface {
		Snapshotter
		SaleWriter
		AdSpendWriter
	}
)
