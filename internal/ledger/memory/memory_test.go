package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"iptvprofit/internal/core"
)

func saleOn(date time.Time, customer string) core.SaleInput {
	return core.SaleInput{
		Date:       date,
		CustomerID: customer,
		Panel:      "P1",
		SubPrice:   decimal.NewFromInt(100),
		PanelPrice: decimal.NewFromInt(40),
		Agent:      "A",
	}
}

func TestSalesCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()
	d1 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	d2 := d1.Add(24 * time.Hour)

	first, err := s.CreateSale(ctx, saleOn(d1, "c1"))
	if err != nil || first.ID != 1 {
		t.Fatalf("unexpected create: %+v err=%v", first, err)
	}
	second, _ := s.CreateSale(ctx, saleOn(d2, "c2"))
	third, _ := s.CreateSale(ctx, saleOn(d1, "c3"))

	list, _ := s.ListSales(ctx)
	if len(list) != 3 {
		t.Fatalf("expected 3 sales, got %d", len(list))
	}
	// date desc, then id desc for equal dates
	if list[0].ID != second.ID || list[1].ID != third.ID || list[2].ID != first.ID {
		t.Fatalf("unexpected order: %d %d %d", list[0].ID, list[1].ID, list[2].ID)
	}

	edit := saleOn(d2.Add(48*time.Hour), "edited")
	edit.SubPrice = decimal.NewFromInt(10)
	updated, err := s.UpdateSale(ctx, first.ID, edit)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.CustomerID != "edited" || !updated.SubPrice.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("update did not overwrite fields: %+v", updated)
	}
	if !updated.Date.Equal(d1) {
		t.Fatalf("update must keep the original date, got %v", updated.Date)
	}

	if err := s.DeleteSale(ctx, second.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	list, _ = s.ListSales(ctx)
	if len(list) != 2 {
		t.Fatalf("expected 2 sales after delete, got %d", len(list))
	}
}

func TestSalesNotFound(t *testing.T) {
	ctx := context.Background()
	s := New()
	if _, err := s.UpdateSale(ctx, 42, saleOn(time.Now(), "x")); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}
	if err := s.DeleteSale(ctx, 42); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on delete, got %v", err)
	}
}

func TestAdSpends(t *testing.T) {
	ctx := context.Background()
	s := New()
	d := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if _, err := s.CreateAdSpend(ctx, core.AdSpendInput{Date: d, Platform: "Meta", Amount: decimal.NewFromInt(5)}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateAdSpend(ctx, core.AdSpendInput{Date: d.AddDate(0, 0, 1), Platform: "TikTok", Amount: decimal.NewFromInt(7)}); err != nil {
		t.Fatal(err)
	}
	list, _ := s.ListAdSpends(ctx)
	if len(list) != 2 || list[0].Platform != "TikTok" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestListReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, _ = s.CreateSale(ctx, saleOn(time.Now(), "c"))
	list, _ := s.ListSales(ctx)
	list[0].CustomerID = "mutated"
	again, _ := s.ListSales(ctx)
	if again[0].CustomerID != "c" {
		t.Fatal("list must not expose internal storage")
	}
}
