package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitefin/internal/cache"
	"sitefin/internal/core"
	"sitefin/internal/services"
	"sitefin/internal/storage"
)

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	s := core.Totals{FundsReceived: 100000, Invoices: 25000}.Summary("site-1")

	require.NoError(t, printSummary(&buf, s))
	out := buf.String()
	assert.Contains(t, out, "site-1")
	assert.Contains(t, out, "1000.00")
	assert.Contains(t, out, "750.00")
	assert.NotContains(t, out, "updated_at")
}

func TestOpenLedger(t *testing.T) {
	flagDBPath = filepath.Join(t.TempDir(), "cli.db")
	flagPolicy = "approved"

	ledger, cleanup, err := openLedger(context.Background())
	require.NoError(t, err)
	defer cleanup()
	assert.Equal(t, core.CountApproved, ledger.Policy())

	site, err := ledger.CreateSite(context.Background(), "North", "sup-1")
	require.NoError(t, err)
	sum, err := ledger.GetSummary(context.Background(), site.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum.Revision)
}

func TestOpenLedger_RejectsUnknownPolicy(t *testing.T) {
	flagDBPath = filepath.Join(t.TempDir(), "cli.db")
	flagPolicy = "everything"

	_, _, err := openLedger(context.Background())
	assert.Error(t, err)
}

func TestOpenLedger_ServerSeesCLIWrites(t *testing.T) {
	ctx := context.Background()
	flagDBPath = filepath.Join(t.TempDir(), "shared.db")
	flagPolicy = "all"

	serverRepo, err := storage.NewSQLiteRepository(flagDBPath)
	require.NoError(t, err)
	defer serverRepo.Close()
	server := services.NewLedgerService(serverRepo, cache.NewSummaryLRU(100, time.Hour), nil, services.DefaultLedgerConfig())

	site, err := server.CreateSite(ctx, "North", "sup-1")
	require.NoError(t, err)
	_, err = server.GetSummary(ctx, site.ID)
	require.NoError(t, err)

	ledger, cleanup, err := openLedger(ctx)
	require.NoError(t, err)
	defer cleanup()

	_, _, err = ledger.CreateTransaction(ctx, core.Transaction{
		SiteID: site.ID, Kind: core.KindFundsReceived, Amount: core.Money{Cents: 5000}, CreatedBy: "cli",
	})
	require.NoError(t, err)

	sum, err := server.GetSummary(ctx, site.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Revision)
	assert.Equal(t, "50.00", sum.Balance.String())

	require.NoError(t, ledger.DeleteSite(ctx, site.ID))
	_, err = server.GetSummary(ctx, site.ID)
	assert.ErrorIs(t, err, core.ErrSiteNotFound)
}
