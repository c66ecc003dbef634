package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"iptvprofit/internal/log"
	"iptvprofit/internal/sheets"
)

// Mirror rewrites whole tabs of one spreadsheet.
type Mirror struct {
	svc           *gsheet.Service
	spreadsheetID string
}

var _ sheets.MirrorWriter = (*Mirror)(nil)

type Config struct {
	SpreadsheetID      string
	ServiceAccountFile string
	ServiceAccountJSON string
}

// NewMirror creates a Sheets client authenticated with a service account.
// Inline JSON wins over the file; GOOGLE_APPLICATION_CREDENTIALS is the
// last fallback.
func NewMirror(ctx context.Context, cfg Config) (*Mirror, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	creds, err := readCredentials(cfg)
	if err != nil {
		return nil, err
	}

	log.FromContext(ctx).WithComponent(log.ComponentSheets).InfoContext(ctx, "Creating Google Sheets service",
		"credentials_size", len(creds),
		"scope", gsheet.SpreadsheetsScope)

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return newMirror(svc, cfg.SpreadsheetID), nil
}

func newMirror(svc *gsheet.Service, spreadsheetID string) *Mirror {
	return &Mirror{svc: svc, spreadsheetID: strings.TrimSpace(spreadsheetID)}
}

func readCredentials(cfg Config) ([]byte, error) {
	if js := strings.TrimSpace(cfg.ServiceAccountJSON); js != "" {
		return []byte(js), nil
	}
	path := strings.TrimSpace(cfg.ServiceAccountFile)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return data, nil
}

// ReplaceTables clears each tab and writes its rows from A1. Values are
// sent as USER_ENTERED so amounts and dates become real numbers and dates.
func (m *Mirror) ReplaceTables(ctx context.Context, tables []sheets.Table) error {
	if m.svc == nil {
		return errors.New("sheets service not initialized")
	}
	if len(tables) == 0 {
		return nil
	}

	clearReq := &gsheet.BatchClearValuesRequest{}
	updateReq := &gsheet.BatchUpdateValuesRequest{ValueInputOption: "USER_ENTERED"}
	for _, t := range tables {
		clearReq.Ranges = append(clearReq.Ranges, quoteSheet(t.Sheet))
		updateReq.Data = append(updateReq.Data, &gsheet.ValueRange{
			Range:  quoteSheet(t.Sheet) + "!A1",
			Values: t.Rows,
		})
	}

	if _, err := m.svc.Spreadsheets.Values.BatchClear(m.spreadsheetID, clearReq).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", strings.Join(clearReq.Ranges, ", "), err)
	}
	resp, err := m.svc.Spreadsheets.Values.BatchUpdate(m.spreadsheetID, updateReq).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write mirror tables: %w", err)
	}

	log.FromContext(ctx).WithComponent(log.ComponentSheets).DebugContext(ctx, "Mirror tables written",
		log.FieldOperation, log.OpSync,
		"tables", len(tables),
		"updated_cells", resp.TotalUpdatedCells)
	return nil
}

// quoteSheet makes a tab name safe for A1 notation.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
