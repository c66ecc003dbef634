package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"iptvprofit/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func saleInput(date time.Time, customer string, sub, panel string) core.SaleInput {
	return core.SaleInput{
		Date:       date,
		CustomerID: customer,
		Panel:      "Gold",
		SubPrice:   decimal.RequireFromString(sub),
		PanelPrice: decimal.RequireFromString(panel),
		Agent:      "Hamza",
	}
}

func TestSQLiteRepository_SaleLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	d1 := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)

	a, err := repo.CreateSale(ctx, saleInput(d1, "0600000001", "100", "40"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.ID == 0 || !a.Date.Equal(d1) {
		t.Fatalf("unexpected created sale: %+v", a)
	}
	if !a.SubPrice.Equal(decimal.NewFromInt(100)) || !a.PanelPrice.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("amounts not round-tripped: %s %s", a.SubPrice, a.PanelPrice)
	}
	b, _ := repo.CreateSale(ctx, saleInput(d2, "0600000002", "80", "30.5"))

	list, err := repo.ListSales(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != b.ID || list[1].ID != a.ID {
		t.Fatalf("expected newest first, got %+v", list)
	}
	if !list[0].PanelPrice.Equal(decimal.RequireFromString("30.5")) {
		t.Fatalf("expected 30.5, got %s", list[0].PanelPrice)
	}

	updated, err := repo.UpdateSale(ctx, a.ID, saleInput(d2, "edited", "120", "50"))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.CustomerID != "edited" || !updated.SubPrice.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("update not applied: %+v", updated)
	}
	if !updated.Date.Equal(d1) {
		t.Fatalf("update must not move the sale date, got %v", updated.Date)
	}

	if err := repo.DeleteSale(ctx, b.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	list, _ = repo.ListSales(ctx)
	if len(list) != 1 || list[0].ID != a.ID {
		t.Fatalf("unexpected list after delete: %+v", list)
	}
}

func TestSQLiteRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	if _, err := repo.UpdateSale(ctx, 999, saleInput(time.Now(), "x", "1", "1")); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}
	if err := repo.DeleteSale(ctx, 999); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on delete, got %v", err)
	}
}

func TestSQLiteRepository_AdSpends(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	d := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)

	if _, err := repo.CreateAdSpend(ctx, core.AdSpendInput{Date: d, Platform: "Facebook", Amount: decimal.RequireFromString("25")}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.CreateAdSpend(ctx, core.AdSpendInput{Date: d.Add(time.Hour), Platform: "Instagram", Amount: decimal.RequireFromString("12.75")}); err != nil {
		t.Fatalf("create: %v", err)
	}
	list, err := repo.ListAdSpends(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Platform != "Instagram" {
		t.Fatalf("unexpected order: %+v", list)
	}
	if !list[0].Amount.Equal(decimal.RequireFromString("12.75")) {
		t.Fatalf("expected 12.75, got %s", list[0].Amount)
	}
	if list[0].CreatedAt.IsZero() {
		t.Fatal("expected createdAt to be set by the database")
	}
}

func TestSQLiteRepository_ZeroDateUsesClock(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	s, err := repo.CreateSale(ctx, saleInput(time.Time{}, "c", "10", "5"))
	if err != nil {
		t.Fatal(err)
	}
	if !s.Date.Equal(fixed) {
		t.Fatalf("expected %v, got %v", fixed, s.Date)
	}
}

func TestSQLiteRepository_LenientRows(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO transactions (date, customerId, panel, subPrice, panelPrice, agent) VALUES
		 ('not a date', 'c1', 'P', 'abc', NULL, 'A'),
		 ('2024-01-05T10:00:00.000Z', 'c2', 'P', '15', 4, 'A')`)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	list, err := repo.ListSales(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(list))
	}

	var bad, good core.Sale
	for _, s := range list {
		if s.CustomerID == "c1" {
			bad = s
		} else {
			good = s
		}
	}
	if !bad.Date.IsZero() || !bad.SubPrice.IsZero() || !bad.PanelPrice.IsZero() {
		t.Fatalf("malformed row should decode to zero values: %+v", bad)
	}
	if !good.SubPrice.Equal(decimal.NewFromInt(15)) || !good.PanelPrice.Equal(decimal.NewFromInt(4)) {
		t.Fatalf("unexpected amounts: %s %s", good.SubPrice, good.PanelPrice)
	}
}

func TestTimeOrZero(t *testing.T) {
	cases := []struct {
		in   any
		zero bool
	}{
		{nil, true},
		{"garbage", true},
		{"2024-01-01 10:00:00", false},
		{[]byte("2024-01-01"), false},
		{int64(1704103200000), false},
		{time.Now(), false},
		{3.14, true},
	}
	for _, tc := range cases {
		if got := timeOrZero(tc.in); got.IsZero() != tc.zero {
			t.Fatalf("%v: expected zero=%v, got %v", tc.in, tc.zero, got)
		}
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	for run := 1; run <= 2; run++ {
		version, err := RunMigrations(path)
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if version != 2 {
			t.Fatalf("run %d: schema version = %d, want 2", run, version)
		}
	}
}

func TestSQLiteRepository_AmountsRoundTripExactly(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	date := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, amount := range []string{"0.1", "0.0001", "12.34", "99999999999.9999", "4321.0987"} {
		if _, err := repo.CreateSale(ctx, saleInput(date, "c-"+amount, amount, amount)); err != nil {
			t.Fatalf("create %s: %v", amount, err)
		}
	}
	sales, err := repo.ListSales(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range sales {
		want := decimal.RequireFromString(s.CustomerID[2:])
		if !s.SubPrice.Equal(want) || !s.PanelPrice.Equal(want) {
			t.Fatalf("%s came back as %s / %s", want, s.SubPrice, s.PanelPrice)
		}
	}
}

func TestSQLiteRepository_RefusesLossyAmounts(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	date := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		in    core.SaleInput
		field string
	}{
		{"rounded by float64", saleInput(date, "c1", "12345678901234567.89", "1"), "subPrice"},
		{"too many digits", saleInput(date, "c2", "1", "0.123456789012345678"), "panelPrice"},
		{"infinite as float64", core.SaleInput{Date: date, CustomerID: "c3", Panel: "Gold", Agent: "Hamza",
			SubPrice: decimal.New(1, 999), PanelPrice: decimal.NewFromInt(1)}, "subPrice"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := repo.CreateSale(ctx, tc.in)
			var ve *core.ValidationError
			if !errors.As(err, &ve) || ve.Field != tc.field {
				t.Fatalf("expected %s ValidationError, got %v", tc.field, err)
			}
		})
	}

	_, err := repo.CreateAdSpend(ctx, core.AdSpendInput{Date: date, Platform: "Meta", Amount: decimal.New(1, 999)})
	if !core.IsValidation(err) {
		t.Fatalf("expected ad spend ValidationError, got %v", err)
	}

	sales, err := repo.ListSales(ctx)
	if err != nil || len(sales) != 0 {
		t.Fatalf("nothing should have been written: %v, %v", sales, err)
	}
}

func TestSQLiteRepository_InfiniteStoredAmountReadsAsZero(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO transactions (date, customerId, panel, subPrice, panelPrice, agent) VALUES
		 ('2024-01-05T10:00:00.000Z', 'c1', 'P', 9e999, -9e999, 'A')`)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err = repo.db.ExecContext(ctx,
		`INSERT INTO ad_spends (date, platform, amount) VALUES ('2024-01-05T10:00:00.000Z', 'Meta', 9e999)`)
	if err != nil {
		t.Fatalf("seed ad spend: %v", err)
	}

	sales, err := repo.ListSales(ctx)
	if err != nil || len(sales) != 1 {
		t.Fatalf("list: %v, %v", sales, err)
	}
	if !sales[0].SubPrice.IsZero() || !sales[0].PanelPrice.IsZero() {
		t.Fatalf("infinite amounts should read as zero: %+v", sales[0])
	}
	ads, err := repo.ListAdSpends(ctx)
	if err != nil || len(ads) != 1 || !ads[0].Amount.IsZero() {
		t.Fatalf("ad spends: %v, %v", ads, err)
	}
}
