package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"iptvprofit/internal/core"
)

// SQLiteRepository implements ledger.Store on a SQLite file.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("Ledger schema ready", "component", "storage", "path", dbPath, "version", version)

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database answers.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, core.ErrStoreUnavailable, err)
}

// realAmount converts d for a REAL column. Amounts a float64 cannot hold
// exactly are refused rather than rounded.
func realAmount(field string, d decimal.Decimal) (float64, error) {
	f := d.InexactFloat64()
	if math.IsInf(f, 0) || math.IsNaN(f) || !decimal.NewFromFloat(f).Equal(d) {
		return 0, core.NewValidationError(field, "cannot be stored exactly")
	}
	return f, nil
}

func (r *SQLiteRepository) ListSales(ctx context.Context) ([]core.Sale, error) {
	rows, err := r.queries.ListTransactions(ctx)
	if err != nil {
		return nil, unavailable("list sales", err)
	}
	out := make([]core.Sale, 0, len(rows))
	for _, row := range rows {
		out = append(out, r.toSale(ctx, row))
	}
	return out, nil
}

func (r *SQLiteRepository) CreateSale(ctx context.Context, in core.SaleInput) (core.Sale, error) {
	sub, panel, err := saleAmounts(in)
	if err != nil {
		return core.Sale{}, err
	}
	date := in.Date
	if date.IsZero() {
		date = r.now()
	}
	row, err := r.queries.CreateTransaction(ctx, CreateTransactionParams{
		Date:       core.FormatDate(date),
		CustomerID: in.CustomerID,
		Panel:      in.Panel,
		SubPrice:   sub,
		PanelPrice: panel,
		Agent:      in.Agent,
	})
	if err != nil {
		return core.Sale{}, unavailable("create sale", err)
	}

	slog.InfoContext(ctx, "Sale saved to SQLite",
		"component", "storage",
		"id", row.ID,
		"panel", in.Panel,
		"agent", in.Agent)

	return r.toSale(ctx, row), nil
}

func (r *SQLiteRepository) UpdateSale(ctx context.Context, id int64, in core.SaleInput) (core.Sale, error) {
	sub, panel, err := saleAmounts(in)
	if err != nil {
		return core.Sale{}, err
	}
	row, err := r.queries.UpdateTransaction(ctx, UpdateTransactionParams{
		CustomerID: in.CustomerID,
		Panel:      in.Panel,
		SubPrice:   sub,
		PanelPrice: panel,
		Agent:      in.Agent,
		ID:         id,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return core.Sale{}, fmt.Errorf("update sale %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Sale{}, unavailable("update sale", err)
	}
	return r.toSale(ctx, row), nil
}

func saleAmounts(in core.SaleInput) (sub, panel float64, err error) {
	if sub, err = realAmount("subPrice", in.SubPrice); err != nil {
		return 0, 0, err
	}
	if panel, err = realAmount("panelPrice", in.PanelPrice); err != nil {
		return 0, 0, err
	}
	return sub, panel, nil
}

func (r *SQLiteRepository) DeleteSale(ctx context.Context, id int64) error {
	n, err := r.queries.DeleteTransaction(ctx, id)
	if err != nil {
		return unavailable("delete sale", err)
	}
	if n == 0 {
		return fmt.Errorf("delete sale %d: %w", id, core.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) ListAdSpends(ctx context.Context) ([]core.AdSpend, error) {
	rows, err := r.queries.ListAdSpends(ctx)
	if err != nil {
		return nil, unavailable("list ad spends", err)
	}
	out := make([]core.AdSpend, 0, len(rows))
	for _, row := range rows {
		out = append(out, r.toAdSpend(ctx, row))
	}
	return out, nil
}

func (r *SQLiteRepository) CreateAdSpend(ctx context.Context, in core.AdSpendInput) (core.AdSpend, error) {
	amount, err := realAmount("amount", in.Amount)
	if err != nil {
		return core.AdSpend{}, err
	}
	date := in.Date
	if date.IsZero() {
		date = r.now()
	}
	row, err := r.queries.CreateAdSpend(ctx, CreateAdSpendParams{
		Date:     core.FormatDate(date),
		Platform: in.Platform,
		Amount:   amount,
	})
	if err != nil {
		return core.AdSpend{}, unavailable("create ad spend", err)
	}

	slog.InfoContext(ctx, "Ad spend saved to SQLite",
		"component", "storage",
		"id", row.ID,
		"platform", in.Platform)

	return r.toAdSpend(ctx, row), nil
}

func (r *SQLiteRepository) toSale(ctx context.Context, row TransactionRow) core.Sale {
	return core.Sale{
		ID:         row.ID,
		Date:       r.parseTime(ctx, "transactions", row.ID, row.Date),
		CustomerID: row.CustomerID.String,
		Panel:      row.Panel.String,
		SubPrice:   core.AmountOrZero(row.SubPrice),
		PanelPrice: core.AmountOrZero(row.PanelPrice),
		Agent:      row.Agent.String,
		CreatedAt:  timeOrZero(row.CreatedAt),
	}
}

func (r *SQLiteRepository) toAdSpend(ctx context.Context, row AdSpendRow) core.AdSpend {
	return core.AdSpend{
		ID:        row.ID,
		Date:      r.parseTime(ctx, "ad_spends", row.ID, row.Date),
		Platform:  row.Platform.String,
		Amount:    core.AmountOrZero(row.Amount),
		CreatedAt: timeOrZero(row.CreatedAt),
	}
}

func (r *SQLiteRepository) parseTime(ctx context.Context, table string, id int64, v any) time.Time {
	t := timeOrZero(v)
	if t.IsZero() {
		slog.WarnContext(ctx, "Stored record has no usable date",
			"component", "storage",
			"table", table,
			"id", id,
			"raw", v)
	}
	return t
}

func timeOrZero(v any) time.Time {
	switch x := v.(type) {
	case time.Time:
		return x
	case string:
		t, _ := core.ParseDate(x)
		return t
	case []byte:
		t, _ := core.ParseDate(string(x))
		return t
	case int64:
		// unix milliseconds, as written by Date.now()
		return time.UnixMilli(x).UTC()
	default:
		return time.Time{}
	}
}
