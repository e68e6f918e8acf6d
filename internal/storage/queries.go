package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"sitefin/internal/core"
)

const (
	timeLayout = time.RFC3339Nano
	dateLayout = "2006-01-02"
)

// kindTables maps each transaction kind to its append-only table.
var kindTables = map[core.Kind]string{
	core.KindExpense:       "expenses",
	core.KindAdvance:       "advances",
	core.KindFundsReceived: "funds_received",
	core.KindInvoice:       "invoices",
}

func tableFor(kind core.Kind) (string, error) {
	table, ok := kindTables[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", core.ErrUnknownKind, kind)
	}
	return table, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func formatDate(t time.Time) string { return t.UTC().Format(dateLayout) }

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// Sites

const createSite = `INSERT INTO sites (id, name, supervisor_id, completed, created_at) VALUES (?, ?, ?, ?, ?)`

func (q *Queries) CreateSite(ctx context.Context, s core.Site) error {
	_, err := q.db.ExecContext(ctx, createSite, s.ID, s.Name, s.SupervisorID, boolToInt(s.Completed), formatTime(s.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert site: %w", err)
	}
	return nil
}

const selectSite = `SELECT id, name, supervisor_id, completed, created_at FROM sites`

func scanSite(row interface{ Scan(...any) error }) (core.Site, error) {
	var (
		s         core.Site
		completed int64
		createdAt string
	)
	if err := row.Scan(&s.ID, &s.Name, &s.SupervisorID, &completed, &createdAt); err != nil {
		return core.Site{}, err
	}
	s.Completed = completed != 0
	t, err := parseTime(createdAt)
	if err != nil {
		return core.Site{}, err
	}
	s.CreatedAt = t
	return s, nil
}

func (q *Queries) GetSite(ctx context.Context, id string) (core.Site, error) {
	s, err := scanSite(q.db.QueryRowContext(ctx, selectSite+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Site{}, core.ErrSiteNotFound
	}
	if err != nil {
		return core.Site{}, fmt.Errorf("get site: %w", err)
	}
	return s, nil
}

func (q *Queries) ListSites(ctx context.Context) ([]core.Site, error) {
	rows, err := q.db.QueryContext(ctx, selectSite+` ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var out []core.Site
	for rows.Next() {
		s, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (q *Queries) ListSiteIDs(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id FROM sites ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list site ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan site id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (q *Queries) SetSiteCompleted(ctx context.Context, id string, completed bool) error {
	res, err := q.db.ExecContext(ctx, `UPDATE sites SET completed = ? WHERE id = ?`, boolToInt(completed), id)
	if err != nil {
		return fmt.Errorf("update site: %w", err)
	}
	return expectOne(res, core.ErrSiteNotFound)
}

func (q *Queries) DeleteSite(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM sites WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete site: %w", err)
	}
	return expectOne(res, core.ErrSiteNotFound)
}

func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// Transactions

func (q *Queries) CreateTransaction(ctx context.Context, t core.Transaction) error {
	table, err := tableFor(t.Kind)
	if err != nil {
		return err
	}
	meta := t.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, site_id, amount_cents, status, created_by, txn_date, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, table)
	_, err = q.db.ExecContext(ctx, query,
		t.ID, t.SiteID, t.Amount.Cents, string(t.Status), t.CreatedBy,
		formatDate(t.Date), string(metaJSON), formatTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert %s: %w", t.Kind, err)
	}
	return nil
}

// activeTransactionsUnion selects every active transaction across kind tables
// with the kind as the first column.
func activeTransactionsUnion(where string) string {
	parts := make([]string, 0, len(kindTables))
	for _, kind := range core.Kinds() {
		parts = append(parts, fmt.Sprintf(
			`SELECT '%s' AS kind, id, site_id, amount_cents, status, created_by, txn_date, metadata, created_at FROM %s WHERE deleted_at IS NULL AND %s`,
			kind, kindTables[kind], where))
	}
	return strings.Join(parts, " UNION ALL ")
}

func scanTransaction(row interface{ Scan(...any) error }) (core.Transaction, error) {
	var (
		t                         core.Transaction
		kind, status              string
		date, metaJSON, createdAt string
	)
	if err := row.Scan(&kind, &t.ID, &t.SiteID, &t.Amount.Cents, &status, &t.CreatedBy, &date, &metaJSON, &createdAt); err != nil {
		return core.Transaction{}, err
	}
	t.Kind = core.Kind(kind)
	t.Status = core.Status(status)
	var err error
	if t.Date, err = parseDate(date); err != nil {
		return core.Transaction{}, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Transaction{}, err
	}
	if err := json.Unmarshal([]byte(metaJSON), &t.Metadata); err != nil {
		return core.Transaction{}, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return t, nil
}

func (q *Queries) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	args := make([]any, 0, len(kindTables))
	for range kindTables {
		args = append(args, id)
	}
	t, err := scanTransaction(q.db.QueryRowContext(ctx, activeTransactionsUnion("id = ?"), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (q *Queries) ListActiveTransactions(ctx context.Context, siteID string) ([]core.Transaction, error) {
	args := make([]any, 0, len(kindTables))
	for range kindTables {
		args = append(args, siteID)
	}
	rows, err := q.db.QueryContext(ctx, activeTransactionsUnion("site_id = ?")+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (q *Queries) SoftDeleteTransaction(ctx context.Context, kind core.Kind, id string, at time.Time) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	res, err := q.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, table),
		formatTime(at), id)
	if err != nil {
		return fmt.Errorf("soft delete %s: %w", kind, err)
	}
	return expectOne(res, core.ErrNotFound)
}

func (q *Queries) SetTransactionStatus(ctx context.Context, kind core.Kind, id string, status core.Status) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	res, err := q.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET status = ? WHERE id = ? AND deleted_at IS NULL`, table),
		string(status), id)
	if err != nil {
		return fmt.Errorf("update %s status: %w", kind, err)
	}
	return expectOne(res, core.ErrNotFound)
}

// SumActiveTransactions sums active transactions per kind, counting only the
// given statuses.
func (q *Queries) SumActiveTransactions(ctx context.Context, siteID string, counted []core.Status) (core.Totals, error) {
	var totals core.Totals
	if len(counted) == 0 {
		return totals, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(counted)), ",")
	for _, kind := range core.Kinds() {
		args := make([]any, 0, len(counted)+1)
		args = append(args, siteID)
		for _, s := range counted {
			args = append(args, string(s))
		}
		query := fmt.Sprintf(
			`SELECT COALESCE(SUM(amount_cents), 0) FROM %s WHERE site_id = ? AND deleted_at IS NULL AND status IN (%s)`,
			kindTables[kind], placeholders)
		var sum int64
		if err := q.db.QueryRowContext(ctx, query, args...).Scan(&sum); err != nil {
			return core.Totals{}, fmt.Errorf("sum %s: %w", kind, err)
		}
		totals.Add(kind, sum)
	}
	return totals, nil
}

// Transfers

const createTransfer = `INSERT INTO supervisor_transfers (
	id, payer_supervisor_id, receiver_supervisor_id, payer_site_id, receiver_site_id,
	amount_cents, transfer_kind, transfer_date, created_by, note, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateTransfer(ctx context.Context, t core.SupervisorTransfer) error {
	_, err := q.db.ExecContext(ctx, createTransfer,
		t.ID, t.PayerSupervisorID, t.ReceiverSupervisorID, t.PayerSiteID, t.ReceiverSiteID,
		t.Amount.Cents, string(t.Kind), formatDate(t.Date), t.CreatedBy, t.Note, formatTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

const selectTransfer = `SELECT id, payer_supervisor_id, receiver_supervisor_id, payer_site_id, receiver_site_id,
	amount_cents, transfer_kind, transfer_date, created_by, note, created_at
FROM supervisor_transfers`

func scanTransfer(row interface{ Scan(...any) error }) (core.SupervisorTransfer, error) {
	var (
		t               core.SupervisorTransfer
		kind            string
		date, createdAt string
	)
	if err := row.Scan(&t.ID, &t.PayerSupervisorID, &t.ReceiverSupervisorID, &t.PayerSiteID, &t.ReceiverSiteID,
		&t.Amount.Cents, &kind, &date, &t.CreatedBy, &t.Note, &createdAt); err != nil {
		return core.SupervisorTransfer{}, err
	}
	t.Kind = core.TransferKind(kind)
	var err error
	if t.Date, err = parseDate(date); err != nil {
		return core.SupervisorTransfer{}, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.SupervisorTransfer{}, err
	}
	return t, nil
}

func (q *Queries) GetTransfer(ctx context.Context, id string) (core.SupervisorTransfer, error) {
	t, err := scanTransfer(q.db.QueryRowContext(ctx, selectTransfer+` WHERE id = ? AND deleted_at IS NULL`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.SupervisorTransfer{}, core.ErrNotFound
	}
	if err != nil {
		return core.SupervisorTransfer{}, fmt.Errorf("get transfer: %w", err)
	}
	return t, nil
}

func (q *Queries) ListActiveTransfers(ctx context.Context, siteID string) ([]core.SupervisorTransfer, error) {
	rows, err := q.db.QueryContext(ctx,
		selectTransfer+` WHERE deleted_at IS NULL AND (payer_site_id = ? OR receiver_site_id = ?) ORDER BY created_at, id`,
		siteID, siteID)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	var out []core.SupervisorTransfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (q *Queries) SoftDeleteTransfer(ctx context.Context, id string, at time.Time) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE supervisor_transfers SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		formatTime(at), id)
	if err != nil {
		return fmt.Errorf("soft delete transfer: %w", err)
	}
	return expectOne(res, core.ErrNotFound)
}

const sumTransfers = `SELECT
	COALESCE(SUM(CASE WHEN payer_site_id = ? THEN amount_cents ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN receiver_site_id = ? THEN amount_cents ELSE 0 END), 0)
FROM supervisor_transfers
WHERE deleted_at IS NULL AND (payer_site_id = ? OR receiver_site_id = ?)`

// SumActiveTransfers returns the outgoing (payer) and incoming (receiver)
// transfer postings of a site.
func (q *Queries) SumActiveTransfers(ctx context.Context, siteID string) (int64, int64, error) {
	var out, in int64
	if err := q.db.QueryRowContext(ctx, sumTransfers, siteID, siteID, siteID, siteID).Scan(&out, &in); err != nil {
		return 0, 0, fmt.Errorf("sum transfers: %w", err)
	}
	return out, in, nil
}

// CounterpartSites lists the other side of every active transfer touching
// siteID.
func (q *Queries) CounterpartSites(ctx context.Context, siteID string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT receiver_site_id FROM supervisor_transfers WHERE payer_site_id = ? AND deleted_at IS NULL
		UNION
		SELECT payer_site_id FROM supervisor_transfers WHERE receiver_site_id = ? AND deleted_at IS NULL`,
		siteID, siteID)
	if err != nil {
		return nil, fmt.Errorf("list counterpart sites: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan counterpart site: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Summaries

func (q *Queries) InsertZeroSummary(ctx context.Context, siteID string, at time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO site_summaries (site_id, revision, updated_at) VALUES (?, 0, ?)`,
		siteID, formatTime(at))
	if err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}
	return nil
}

const upsertSummary = `INSERT INTO site_summaries (
	site_id, funds_received_cents, funds_received_from_supervisor_cents, total_expenses_cents,
	total_advances_cents, total_invoices_cents, advance_paid_to_supervisor_cents, balance_cents,
	revision, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
ON CONFLICT(site_id) DO UPDATE SET
	funds_received_cents = excluded.funds_received_cents,
	funds_received_from_supervisor_cents = excluded.funds_received_from_supervisor_cents,
	total_expenses_cents = excluded.total_expenses_cents,
	total_advances_cents = excluded.total_advances_cents,
	total_invoices_cents = excluded.total_invoices_cents,
	advance_paid_to_supervisor_cents = excluded.advance_paid_to_supervisor_cents,
	balance_cents = excluded.balance_cents,
	revision = site_summaries.revision + 1,
	updated_at = excluded.updated_at
RETURNING revision`

// UpsertSummary writes the full summary row and bumps its revision.
func (q *Queries) UpsertSummary(ctx context.Context, s core.Summary) (core.Summary, error) {
	err := q.db.QueryRowContext(ctx, upsertSummary,
		s.SiteID, s.FundsReceived.Cents, s.FundsReceivedFromSupervisor.Cents, s.TotalExpenses.Cents,
		s.TotalAdvances.Cents, s.TotalInvoices.Cents, s.AdvancePaidToSupervisor.Cents, s.Balance.Cents,
		formatTime(s.UpdatedAt),
	).Scan(&s.Revision)
	if err != nil {
		return core.Summary{}, fmt.Errorf("upsert summary: %w", err)
	}
	return s, nil
}

const selectSummary = `SELECT site_id, funds_received_cents, funds_received_from_supervisor_cents,
	total_expenses_cents, total_advances_cents, total_invoices_cents,
	advance_paid_to_supervisor_cents, balance_cents, revision, updated_at
FROM site_summaries WHERE site_id = ?`

func (q *Queries) GetSummary(ctx context.Context, siteID string) (core.Summary, error) {
	var (
		s         core.Summary
		updatedAt string
	)
	err := q.db.QueryRowContext(ctx, selectSummary, siteID).Scan(
		&s.SiteID, &s.FundsReceived.Cents, &s.FundsReceivedFromSupervisor.Cents,
		&s.TotalExpenses.Cents, &s.TotalAdvances.Cents, &s.TotalInvoices.Cents,
		&s.AdvancePaidToSupervisor.Cents, &s.Balance.Cents, &s.Revision, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Summary{}, core.ErrSiteNotFound
	}
	if err != nil {
		return core.Summary{}, fmt.Errorf("get summary: %w", err)
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return core.Summary{}, err
	}
	return s, nil
}

const selectSummaryRevision = `SELECT revision FROM site_summaries WHERE site_id = ?`

// SummaryRevision returns the committed revision of a site summary.
func (q *Queries) SummaryRevision(ctx context.Context, siteID string) (int64, error) {
	var rev int64
	err := q.db.QueryRowContext(ctx, selectSummaryRevision, siteID).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, core.ErrSiteNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get summary revision: %w", err)
	}
	return rev, nil
}
