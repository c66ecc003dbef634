package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Columns are scanned as any: rows written by older clients may hold NULL,
// text or integers where numbers or timestamps are expected.
type TransactionRow struct {
	ID         int64
	Date       any
	CustomerID sql.NullString
	Panel      sql.NullString
	SubPrice   any
	PanelPrice any
	Agent      sql.NullString
	CreatedAt  any
}

type AdSpendRow struct {
	ID        int64
	Date      any
	Platform  sql.NullString
	Amount    any
	CreatedAt any
}

const transactionColumns = `id, date, customerId, panel, subPrice, panelPrice, agent, createdAt`

func scanTransaction(sc interface{ Scan(...any) error }) (TransactionRow, error) {
	var r TransactionRow
	err := sc.Scan(&r.ID, &r.Date, &r.CustomerID, &r.Panel, &r.SubPrice, &r.PanelPrice, &r.Agent, &r.CreatedAt)
	return r, err
}

const listTransactions = `SELECT ` + transactionColumns + `
FROM transactions
ORDER BY date DESC, id DESC`

func (q *Queries) ListTransactions(ctx context.Context) ([]TransactionRow, error) {
	rows, err := q.db.QueryContext(ctx, listTransactions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TransactionRow
	for rows.Next() {
		r, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}

const createTransaction = `INSERT INTO transactions (date, customerId, panel, subPrice, panelPrice, agent)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING ` + transactionColumns

type CreateTransactionParams struct {
	Date       string
	CustomerID string
	Panel      string
	SubPrice   float64
	PanelPrice float64
	Agent      string
}

func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) (TransactionRow, error) {
	row := q.db.QueryRowContext(ctx, createTransaction,
		arg.Date, arg.CustomerID, arg.Panel, arg.SubPrice, arg.PanelPrice, arg.Agent)
	return scanTransaction(row)
}

const updateTransaction = `UPDATE transactions
SET customerId = ?, panel = ?, subPrice = ?, panelPrice = ?, agent = ?
WHERE id = ?
RETURNING ` + transactionColumns

type UpdateTransactionParams struct {
	CustomerID string
	Panel      string
	SubPrice   float64
	PanelPrice float64
	Agent      string
	ID         int64
}

func (q *Queries) UpdateTransaction(ctx context.Context, arg UpdateTransactionParams) (TransactionRow, error) {
	row := q.db.QueryRowContext(ctx, updateTransaction,
		arg.CustomerID, arg.Panel, arg.SubPrice, arg.PanelPrice, arg.Agent, arg.ID)
	return scanTransaction(row)
}

const deleteTransaction = `DELETE FROM transactions WHERE id = ?`

func (q *Queries) DeleteTransaction(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteTransaction, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const adSpendColumns = `id, date, platform, amount, createdAt`

func scanAdSpend(sc interface{ Scan(...any) error }) (AdSpendRow, error) {
	var r AdSpendRow
	err := sc.Scan(&r.ID, &r.Date, &r.Platform, &r.Amount, &r.CreatedAt)
	return r, err
}

const listAdSpends = `SELECT ` + adSpendColumns + `
FROM ad_spends
ORDER BY date DESC, id DESC`

func (q *Queries) ListAdSpends(ctx context.Context) ([]AdSpendRow, error) {
	rows, err := q.db.QueryContext(ctx, listAdSpends)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AdSpendRow
	for rows.Next() {
		r, err := scanAdSpend(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}

const createAdSpend = `INSERT INTO ad_spends (date, platform, amount)
VALUES (?, ?, ?)
RETURNING ` + adSpendColumns

type CreateAdSpendParams struct {
	Date     string
	Platform string
	Amount   float64
}

func (q *Queries) CreateAdSpend(ctx context.Context, arg CreateAdSpendParams) (AdSpendRow, error) {
	row := q.db.QueryRowContext(ctx, createAdSpend, arg.Date, arg.Platform, arg.Amount)
	return scanAdSpend(row)
}
