package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type (
	// Sale is a single subscription sold to a customer.
	Sale struct {
		ID         int64
		Date       time.Time // zero when the stored date could not be parsed
		CustomerID string
		Panel      string
		SubPrice   decimal.Decimal
		PanelPrice decimal.Decimal
		Agent      string
		CreatedAt  time.Time
	}

	// AdSpend is an advertising expenditure, not tied to any sale.
	AdSpend struct {
		ID        int64
		Date      time.Time
		Platform  string
		Amount    decimal.Decimal
		CreatedAt time.Time
	}

	// SaleInput carries the mutable fields of a Sale. Date is only used on
	// create; edits never move a sale to another day.
	SaleInput struct {
		Date       time.Time
		CustomerID string          `json:"customerId" validate:"required,max=120"`
		Panel      string          `json:"panel" validate:"required,max=120"`
		SubPrice   decimal.Decimal `json:"subPrice" validate:"amount,positive"`
		PanelPrice decimal.Decimal `json:"panelPrice" validate:"amount,positive"`
		Agent      string          `json:"agent" validate:"required,max=80"`
	}

	AdSpendInput struct {
		Date     time.Time
		Platform string          `json:"platform" validate:"required,max=80"`
		Amount   decimal.Decimal `json:"amount" validate:"amount,positive"`
	}
)

// Profit is subPrice minus panelPrice. Losses stay negative.
func (s Sale) Profit() decimal.Decimal {
	return s.SubPrice.Sub(s.PanelPrice)
}

// Normalize trims the free-text fields.
func (in SaleInput) Normalize() SaleInput {
	in.CustomerID = strings.TrimSpace(in.CustomerID)
	in.Panel = strings.TrimSpace(in.Panel)
	in.Agent = strings.TrimSpace(in.Agent)
	return in
}

func (in SaleInput) Validate() error {
	return validateStruct(in)
}

func (in AdSpendInput) Normalize() AdSpendInput {
	in.Platform = strings.TrimSpace(in.Platform)
	return in
}

func (in AdSpendInput) Validate() error {
	return validateStruct(in)
}

// Apply overwrites the mutable fields of s with in. ID, Date and CreatedAt
// are left untouched.
func (s Sale) Apply(in SaleInput) Sale {
	s.CustomerID = in.CustomerID
	s.Panel = in.Panel
	s.SubPrice = in.SubPrice
	s.PanelPrice = in.PanelPrice
	s.Agent = in.Agent
	return s
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDate accepts the timestamp shapes found in stored rows: RFC 3339
// with or without fractional seconds, SQLite's CURRENT_TIMESTAMP format and
// plain calendar dates. Values without a zone are read as UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidDate
}

// FormatDate is the storage form of a timestamp: UTC with millisecond
// precision, so that lexical order matches chronological order.
func FormatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
