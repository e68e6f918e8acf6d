package storage

import (
	"context"
	"time"

	"sitefin/internal/core"
)

// Tx is the set of queries available inside one unit of work. *Queries
// implements it against either the pool or a *sql.Tx.
type Tx interface {
	CreateSite(ctx context.Context, s core.Site) error
	GetSite(ctx context.Context, id string) (core.Site, error)
	ListSites(ctx context.Context) ([]core.Site, error)
	ListSiteIDs(ctx context.Context) ([]string, error)
	SetSiteCompleted(ctx context.Context, id string, completed bool) error
	DeleteSite(ctx context.Context, id string) error

	CreateTransaction(ctx context.Context, t core.Transaction) error
	GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	ListActiveTransactions(ctx context.Context, siteID string) ([]core.Transaction, error)
	SoftDeleteTransaction(ctx context.Context, kind core.Kind, id string, at time.Time) error
	SetTransactionStatus(ctx context.Context, kind core.Kind, id string, status core.Status) error
	SumActiveTransactions(ctx context.Context, siteID string, counted []core.Status) (core.Totals, error)

	CreateTransfer(ctx context.Context, t core.SupervisorTransfer) error
	GetTransfer(ctx context.Context, id string) (core.SupervisorTransfer, error)
	ListActiveTransfers(ctx context.Context, siteID string) ([]core.SupervisorTransfer, error)
	SoftDeleteTransfer(ctx context.Context, id string, at time.Time) error
	SumActiveTransfers(ctx context.Context, siteID string) (out int64, in int64, err error)
	CounterpartSites(ctx context.Context, siteID string) ([]string, error)

	InsertZeroSummary(ctx context.Context, siteID string, at time.Time) error
	UpsertSummary(ctx context.Context, s core.Summary) (core.Summary, error)
	GetSummary(ctx context.Context, siteID string) (core.Summary, error)
	SummaryRevision(ctx context.Context, siteID string) (int64, error)
}

// Store owns the database and hands out units of work.
type Store interface {
	// WithinTx runs fn inside one database transaction. A non-nil error from
	// fn rolls everything back.
	WithinTx(ctx context.Context, fn func(Tx) error) error
	// Reader returns queries bound to the pool for committed reads.
	Reader() Tx
	Close() error
}

var (
	_ Tx    = (*Queries)(nil)
	_ Store = (*SQLiteRepository)(nil)
)
