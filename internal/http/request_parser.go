package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"iptvprofit/internal/core"
)

const maxBodyBytes = 1 << 20

// RequestBodyParser reads a JSON or form-encoded body once and exposes its
// fields by name. JSON numbers are kept as json.Number so amounts are never
// rounded through float64.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]any
	formData url.Values
	parsed   bool
	err      error
}

func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return p
}

func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true
	if p.err != nil {
		return p.err
	}

	trimmed := bytes.TrimSpace(p.body)
	if len(trimmed) == 0 {
		p.formData = url.Values{}
		return nil
	}
	if trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		p.jsonData = make(map[string]any)
		p.err = dec.Decode(&p.jsonData)
		return p.err
	}
	p.formData, p.err = url.ParseQuery(string(trimmed))
	return p.err
}

// Value returns the raw field: json.Number, string, bool or nil for JSON
// bodies, string or nil for forms.
func (p *RequestBodyParser) Value(key string) any {
	if p.jsonData != nil {
		return p.jsonData[key]
	}
	if p.formData != nil && p.formData.Has(key) {
		return p.formData.Get(key)
	}
	return nil
}

// Get returns the field as sanitized text.
func (p *RequestBodyParser) Get(key string) string {
	switch v := p.Value(key).(type) {
	case string:
		return sanitizeInput(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// ParseSaleInput reads a sale from p. fallbackAgent is used when the body
// does not name an agent.
func ParseSaleInput(p *RequestBodyParser, fallbackAgent string) (core.SaleInput, error) {
	in := core.SaleInput{
		CustomerID: p.Get("customerId"),
		Panel:      p.Get("panel"),
		Agent:      p.Get("agent"),
	}
	if in.Agent == "" {
		in.Agent = fallbackAgent
	}

	var err error
	if in.Date, err = optionalDate(p); err != nil {
		return core.SaleInput{}, err
	}
	if in.SubPrice, err = amountField(p, "subPrice"); err != nil {
		return core.SaleInput{}, err
	}
	if in.PanelPrice, err = amountField(p, "panelPrice"); err != nil {
		return core.SaleInput{}, err
	}
	return in, nil
}

func ParseAdSpendInput(p *RequestBodyParser) (core.AdSpendInput, error) {
	in := core.AdSpendInput{Platform: p.Get("platform")}

	var err error
	if in.Date, err = optionalDate(p); err != nil {
		return core.AdSpendInput{}, err
	}
	if in.Amount, err = amountField(p, "amount"); err != nil {
		return core.AdSpendInput{}, err
	}
	return in, nil
}

func amountField(p *RequestBodyParser, key string) (d decimal.Decimal, err error) {
	v := p.Value(key)
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		v = nil
	}
	d, err = core.ParseAmountValue(v)
	if err != nil {
		return d, core.NewValidationError(key, "must be a number")
	}
	return d, nil
}

func optionalDate(p *RequestBodyParser) (time.Time, error) {
	raw := p.Get("date")
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := core.ParseDate(raw)
	if err != nil {
		return time.Time{}, core.NewValidationError("date", "must be an ISO-8601 timestamp")
	}
	return t, nil
}

var errInvalidID = errors.New("invalid id")

// pathID reads the {id} wildcard as a positive integer.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}
