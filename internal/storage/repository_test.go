package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitefin/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func seedSite(t *testing.T, repo *SQLiteRepository, id string) {
	t.Helper()
	now := time.Now()
	err := repo.WithinTx(context.Background(), func(tx Tx) error {
		if err := tx.CreateSite(context.Background(), core.Site{ID: id, Name: "Site " + id, SupervisorID: "sup-" + id, CreatedAt: now}); err != nil {
			return err
		}
		return tx.InsertZeroSummary(context.Background(), id, now)
	})
	require.NoError(t, err)
}

func TestRepository_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, RunMigrations(path))
	require.NoError(t, RunMigrations(path))
}

func TestRepository_SiteAndZeroSummary(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedSite(t, repo, "a")

	site, err := repo.Reader().GetSite(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "sup-a", site.SupervisorID)
	assert.False(t, site.Completed)

	sum, err := repo.Reader().GetSummary(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum.Revision)
	assert.Equal(t, int64(0), sum.Balance.Cents)

	_, err = repo.Reader().GetSite(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrSiteNotFound)
}

func TestRepository_TransactionLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedSite(t, repo, "a")
	q := repo.Reader()

	now := time.Now()
	tx := core.Transaction{
		ID: "t1", SiteID: "a", Kind: core.KindInvoice, Amount: core.Money{Cents: 1500},
		Status: core.StatusPending, CreatedBy: "admin", Date: now, CreatedAt: now,
		Metadata: map[string]string{"invoice_number": "F-12"},
	}
	require.NoError(t, q.CreateTransaction(ctx, tx))

	got, err := q.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, core.KindInvoice, got.Kind)
	assert.Equal(t, "F-12", got.Metadata["invoice_number"])

	totals, err := q.SumActiveTransactions(ctx, "a", []core.Status{core.StatusPending, core.StatusApproved})
	require.NoError(t, err)
	assert.Equal(t, int64(1500), totals.Invoices)

	totals, err = q.SumActiveTransactions(ctx, "a", []core.Status{core.StatusApproved})
	require.NoError(t, err)
	assert.Equal(t, int64(0), totals.Invoices)

	require.NoError(t, q.SoftDeleteTransaction(ctx, core.KindInvoice, "t1", now))
	_, err = q.GetTransaction(ctx, "t1")
	assert.ErrorIs(t, err, core.ErrNotFound)
	err = q.SoftDeleteTransaction(ctx, core.KindInvoice, "t1", now)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRepository_UnknownSiteRejectedByForeignKey(t *testing.T) {
	repo := newTestRepo(t)
	now := time.Now()
	err := repo.Reader().CreateTransaction(context.Background(), core.Transaction{
		ID: "t1", SiteID: "ghost", Kind: core.KindExpense, Amount: core.Money{Cents: 1},
		Status: core.StatusPending, Date: now, CreatedAt: now,
	})
	assert.Error(t, err)
}

func TestRepository_UpsertSummaryBumpsRevision(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedSite(t, repo, "a")

	s := core.Totals{FundsReceived: 1000}.Summary("a")
	s.UpdatedAt = time.Now()
	first, err := repo.Reader().UpsertSummary(ctx, s)
	require.NoError(t, err)
	second, err := repo.Reader().UpsertSummary(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, first.Revision+1, second.Revision)

	stored, err := repo.Reader().GetSummary(ctx, "a")
	require.NoError(t, err)
	assert.True(t, stored.SameTotals(s))
}

func TestRepository_WithinTxRollsBack(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	boom := errors.New("boom")

	err := repo.WithinTx(ctx, func(tx Tx) error {
		if err := tx.CreateSite(ctx, core.Site{ID: "x", Name: "X", SupervisorID: "s", CreatedAt: time.Now()}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = repo.Reader().GetSite(ctx, "x")
	assert.ErrorIs(t, err, core.ErrSiteNotFound)
}

func TestRepository_TransferSumsAndCascade(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedSite(t, repo, "a")
	seedSite(t, repo, "b")
	q := repo.Reader()

	now := time.Now()
	require.NoError(t, q.CreateTransfer(ctx, core.SupervisorTransfer{
		ID: "tr1", PayerSupervisorID: "sup-a", ReceiverSupervisorID: "sup-b",
		PayerSiteID: "a", ReceiverSiteID: "b", Amount: core.Money{Cents: 700},
		Kind: core.TransferAdvancePaid, Date: now, CreatedAt: now,
	}))

	out, in, err := q.SumActiveTransfers(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(700), out)
	assert.Equal(t, int64(0), in)

	out, in, err = q.SumActiveTransfers(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(0), out)
	assert.Equal(t, int64(700), in)

	counterparts, err := q.CounterpartSites(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, counterparts)

	require.NoError(t, q.DeleteSite(ctx, "a"))
	_, err = q.GetTransfer(ctx, "tr1")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = q.GetSummary(ctx, "a")
	assert.ErrorIs(t, err, core.ErrSiteNotFound)
}
