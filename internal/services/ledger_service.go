package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"sitefin/internal/core"
	"sitefin/internal/storage"
)

// ChangeNotifier receives committed summary writes.
type ChangeNotifier interface {
	SummaryChanged(ctx context.Context, summaries ...core.Summary)
	Subscribe(siteID string) (<-chan core.SummaryChanged, func())
	SiteDeleted(ctx context.Context, siteID string)
}

type noopNotifier struct{}

func (noopNotifier) SummaryChanged(context.Context, ...core.Summary) {}
func (noopNotifier) SiteDeleted(context.Context, string) {}
func (noopNotifier) Subscribe(string) (<-chan core.SummaryChanged, func()) {
	ch := make(chan core.SummaryChanged)
	close(ch)
	return ch, func() {}
}

// LedgerConfig holds the tunables of the ledger service
type LedgerConfig struct {
	// Policy selects which transaction statuses count (default: all)
	Policy core.CountPolicy

	// RepairConcurrency bounds parallel recomputes in RecomputeAll (default: 4)
	RepairConcurrency int

	// Now and NewID are overridable for tests
	Now   func() time.Time
	NewID func() string
}

// DefaultLedgerConfig returns sensible defaults
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		Policy:            core.CountAll,
		RepairConcurrency: 4,
	}
}

// maxDeleteSiteAttempts bounds retries when the counterpart set of a site
// changes between reading it and locking it.
const maxDeleteSiteAttempts = 5

// ErrCounterpartsChanged is returned by DeleteSite when transfers touching
// the site kept changing across every attempt.
var ErrCounterpartsChanged = errors.New("counterpart sites changed")

// LedgerService exposes the ledger operations. Every write follows the same
// order: lock the touched sites ascending, run the mutation and the
// recompute in one database transaction, refresh the cache, unlock, then
// notify.
type LedgerService struct {
	store     storage.Store
	locks     *SiteLocker
	agg       *Aggregator
	transfers *TransferHandler
	view      *BalanceView
	notifier  ChangeNotifier
	config    LedgerConfig
}

func NewLedgerService(store storage.Store, cache SummaryCache, notifier ChangeNotifier, config LedgerConfig) *LedgerService {
	defaults := DefaultLedgerConfig()
	if !config.Policy.IsValid() {
		config.Policy = defaults.Policy
	}
	if config.RepairConcurrency <= 0 {
		config.RepairConcurrency = defaults.RepairConcurrency
	}
	if config.Now == nil {
		config.Now = func() time.Time { return time.Now().UTC() }
	}
	if config.NewID == nil {
		config.NewID = uuid.NewString
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}

	locks := NewSiteLocker()
	agg := NewAggregator(config.Policy, config.Now)
	return &LedgerService{
		store:     store,
		locks:     locks,
		agg:       agg,
		transfers: NewTransferHandler(agg),
		view:      NewBalanceView(store, locks, cache),
		notifier:  notifier,
		config:    config,
	}
}

// Policy returns the counting policy the aggregator applies.
func (s *LedgerService) Policy() core.CountPolicy {
	return s.agg.Policy()
}

// commit runs fn under the write locks of siteIDs and publishes whatever
// summaries it wrote once the locks are released.
func (s *LedgerService) commit(ctx context.Context, siteIDs []string, fn func(tx storage.Tx) ([]core.Summary, error)) ([]core.Summary, error) {
	written, err := func() ([]core.Summary, error) {
		unlock := s.locks.Lock(siteIDs...)
		defer unlock()

		var written []core.Summary
		err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
			var err error
			written, err = fn(tx)
			return err
		})
		if err != nil {
			return nil, err
		}
		s.view.remember(ctx, written...)
		return written, nil
	}()
	if err != nil {
		return nil, err
	}

	s.notifier.SummaryChanged(ctx, written...)
	return written, nil
}

// Sites

func (s *LedgerService) CreateSite(ctx context.Context, name, supervisorID string) (core.Site, error) {
	site := core.Site{
		ID:           s.config.NewID(),
		Name:         strings.TrimSpace(name),
		SupervisorID: strings.TrimSpace(supervisorID),
		CreatedAt:    s.config.Now(),
	}
	if err := site.Validate(); err != nil {
		return core.Site{}, err
	}

	_, err := s.commit(ctx, []string{site.ID}, func(tx storage.Tx) ([]core.Summary, error) {
		if err := tx.CreateSite(ctx, site); err != nil {
			return nil, err
		}
		sum, err := s.agg.Init(ctx, tx, site.ID)
		if err != nil {
			return nil, err
		}
		return []core.Summary{sum}, nil
	})
	if err != nil {
		return core.Site{}, fmt.Errorf("create site: %w", err)
	}

	slog.InfoContext(ctx, "Site created", "component", "ledger", "site_id", site.ID, "supervisor_id", site.SupervisorID)
	return site, nil
}

func (s *LedgerService) GetSite(ctx context.Context, id string) (core.Site, error) {
	return s.store.Reader().GetSite(ctx, id)
}

func (s *LedgerService) ListSites(ctx context.Context) ([]core.Site, error) {
	return s.store.Reader().ListSites(ctx)
}

func (s *LedgerService) SetSiteCompleted(ctx context.Context, id string, completed bool) (core.Site, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	var site core.Site
	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		if err := tx.SetSiteCompleted(ctx, id, completed); err != nil {
			return err
		}
		var err error
		site, err = tx.GetSite(ctx, id)
		return err
	})
	if err != nil {
		return core.Site{}, fmt.Errorf("set site completed: %w", err)
	}
	return site, nil
}

// DeleteSite removes a site with its records and summary. Sites on the other
// side of its active transfers are recomputed in the same unit of work.
func (s *LedgerService) DeleteSite(ctx context.Context, id string) error {
	for attempt := 1; ; attempt++ {
		counterparts, err := s.deleteSiteOnce(ctx, id)
		if errors.Is(err, ErrCounterpartsChanged) && attempt < maxDeleteSiteAttempts {
			slog.DebugContext(ctx, "Counterparts changed during site delete, retrying",
				"component", "ledger", "site_id", id, "attempt", attempt)
			continue
		}
		if err != nil {
			return fmt.Errorf("delete site: %w", err)
		}
		slog.InfoContext(ctx, "Site deleted", "component", "ledger", "site_id", id, "recomputed", len(counterparts))
		return nil
	}
}

func (s *LedgerService) deleteSiteOnce(ctx context.Context, id string) ([]core.Summary, error) {
	reader := s.store.Reader()
	if _, err := reader.GetSite(ctx, id); err != nil {
		return nil, err
	}
	counterparts, err := reader.CounterpartSites(ctx, id)
	if err != nil {
		return nil, err
	}

	written, err := func() ([]core.Summary, error) {
		unlock := s.locks.Lock(append([]string{id}, counterparts...)...)
		defer unlock()

		var written []core.Summary
		err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
			if _, err := tx.GetSite(ctx, id); err != nil {
				return err
			}
			current, err := tx.CounterpartSites(ctx, id)
			if err != nil {
				return err
			}
			if !sameSet(current, counterparts) {
				return ErrCounterpartsChanged
			}
			if err := tx.DeleteSite(ctx, id); err != nil {
				return err
			}
			for _, other := range counterparts {
				sum, err := s.agg.Recompute(ctx, tx, other)
				if err != nil {
					return err
				}
				written = append(written, sum)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		s.view.forget(ctx, id)
		s.view.remember(ctx, written...)
		return written, nil
	}()
	if err != nil {
		return nil, err
	}

	s.notifier.SiteDeleted(ctx, id)
	s.notifier.SummaryChanged(ctx, written...)
	return written, nil
}

// Transactions

// CreateTransaction records a transaction and returns it with the refreshed
// site summary.
func (s *LedgerService) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, core.Summary, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, core.Summary{}, err
	}

	now := s.config.Now()
	t.ID = s.config.NewID()
	t.CreatedAt = now
	if t.Status == "" {
		t.Status = core.StatusPending
	}
	if t.Date.IsZero() {
		t.Date = now
	}

	written, err := s.commit(ctx, []string{t.SiteID}, func(tx storage.Tx) ([]core.Summary, error) {
		if _, err := lookupSite(ctx, tx, "site_id", t.SiteID); err != nil {
			return nil, err
		}
		if err := tx.CreateTransaction(ctx, t); err != nil {
			return nil, err
		}
		sum, err := s.agg.Recompute(ctx, tx, t.SiteID)
		if err != nil {
			return nil, err
		}
		return []core.Summary{sum}, nil
	})
	if err != nil {
		return core.Transaction{}, core.Summary{}, fmt.Errorf("create transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction created", "component", "ledger",
		"id", t.ID, "site_id", t.SiteID, "kind", t.Kind, "amount_cents", t.Amount.Cents)
	return t, written[0], nil
}

func (s *LedgerService) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	return s.store.Reader().GetTransaction(ctx, id)
}

// ListTransactions returns the active transactions of an existing site.
func (s *LedgerService) ListTransactions(ctx context.Context, siteID string) ([]core.Transaction, error) {
	reader := s.store.Reader()
	if _, err := reader.GetSite(ctx, siteID); err != nil {
		return nil, err
	}
	return reader.ListActiveTransactions(ctx, siteID)
}

// DeleteTransaction soft deletes a transaction and recomputes its site.
func (s *LedgerService) DeleteTransaction(ctx context.Context, id string) (core.Summary, error) {
	t, err := s.store.Reader().GetTransaction(ctx, id)
	if err != nil {
		return core.Summary{}, fmt.Errorf("delete transaction: %w", err)
	}

	written, err := s.commit(ctx, []string{t.SiteID}, func(tx storage.Tx) ([]core.Summary, error) {
		// the record may have been removed while we waited for the lock
		current, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := tx.SoftDeleteTransaction(ctx, current.Kind, id, s.config.Now()); err != nil {
			return nil, err
		}
		sum, err := s.agg.Recompute(ctx, tx, current.SiteID)
		if err != nil {
			return nil, err
		}
		return []core.Summary{sum}, nil
	})
	if err != nil {
		return core.Summary{}, fmt.Errorf("delete transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction deleted", "component", "ledger", "id", id, "site_id", t.SiteID)
	return written[0], nil
}

// SetTransactionStatus changes the approval state and recomputes the site,
// since the status decides whether the amount counts. Approval is final: an
// approved transaction can only be deleted.
func (s *LedgerService) SetTransactionStatus(ctx context.Context, id string, status core.Status) (core.Transaction, core.Summary, error) {
	if !status.IsValid() {
		return core.Transaction{}, core.Summary{}, &core.ValidationError{Field: "status", Err: core.ErrUnknownStatus}
	}
	t, err := s.store.Reader().GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, core.Summary{}, fmt.Errorf("set transaction status: %w", err)
	}

	var updated core.Transaction
	written, err := s.commit(ctx, []string{t.SiteID}, func(tx storage.Tx) ([]core.Summary, error) {
		current, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Status == core.StatusApproved {
			return nil, core.ErrTransactionApproved
		}
		if err := tx.SetTransactionStatus(ctx, current.Kind, id, status); err != nil {
			return nil, err
		}
		current.Status = status
		updated = current
		sum, err := s.agg.Recompute(ctx, tx, current.SiteID)
		if err != nil {
			return nil, err
		}
		return []core.Summary{sum}, nil
	})
	if err != nil {
		return core.Transaction{}, core.Summary{}, fmt.Errorf("set transaction status: %w", err)
	}
	return updated, written[0], nil
}

// Transfers

// PostTransfer records a supervisor transfer as two postings and returns the
// payer and receiver summaries, in that order.
func (s *LedgerService) PostTransfer(ctx context.Context, t core.SupervisorTransfer) (core.SupervisorTransfer, []core.Summary, error) {
	if err := t.Validate(); err != nil {
		return core.SupervisorTransfer{}, nil, err
	}

	now := s.config.Now()
	t.ID = s.config.NewID()
	t.CreatedAt = now
	if t.Date.IsZero() {
		t.Date = now
	}

	var stored core.SupervisorTransfer
	written, err := s.commit(ctx, t.Sites(), func(tx storage.Tx) ([]core.Summary, error) {
		var (
			summaries []core.Summary
			err       error
		)
		stored, summaries, err = s.transfers.Post(ctx, tx, t)
		return summaries, err
	})
	if err != nil {
		return core.SupervisorTransfer{}, nil, fmt.Errorf("post transfer: %w", err)
	}

	slog.InfoContext(ctx, "Transfer posted", "component", "ledger", "id", stored.ID,
		"payer_site_id", stored.PayerSiteID, "receiver_site_id", stored.ReceiverSiteID,
		"amount_cents", stored.Amount.Cents)
	return stored, written, nil
}

func (s *LedgerService) GetTransfer(ctx context.Context, id string) (core.SupervisorTransfer, error) {
	return s.store.Reader().GetTransfer(ctx, id)
}

// ListTransfers returns the active transfers where the site pays or receives.
func (s *LedgerService) ListTransfers(ctx context.Context, siteID string) ([]core.SupervisorTransfer, error) {
	reader := s.store.Reader()
	if _, err := reader.GetSite(ctx, siteID); err != nil {
		return nil, err
	}
	return reader.ListActiveTransfers(ctx, siteID)
}

// DeleteTransfer removes a transfer and recomputes both of its sites.
func (s *LedgerService) DeleteTransfer(ctx context.Context, id string) ([]core.Summary, error) {
	t, err := s.store.Reader().GetTransfer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("delete transfer: %w", err)
	}

	written, err := s.commit(ctx, t.Sites(), func(tx storage.Tx) ([]core.Summary, error) {
		_, summaries, err := s.transfers.Delete(ctx, tx, id)
		return summaries, err
	})
	if err != nil {
		return nil, fmt.Errorf("delete transfer: %w", err)
	}

	slog.InfoContext(ctx, "Transfer deleted", "component", "ledger", "id", id)
	return written, nil
}

// Summaries

func (s *LedgerService) GetSummary(ctx context.Context, siteID string) (core.Summary, error) {
	return s.view.Get(ctx, siteID)
}

// RecomputeSite rebuilds one site summary from its records.
func (s *LedgerService) RecomputeSite(ctx context.Context, siteID string) (core.Summary, error) {
	written, err := s.commit(ctx, []string{siteID}, func(tx storage.Tx) ([]core.Summary, error) {
		sum, err := s.agg.Recompute(ctx, tx, siteID)
		if err != nil {
			return nil, err
		}
		return []core.Summary{sum}, nil
	})
	if err != nil {
		return core.Summary{}, err
	}
	return written[0], nil
}

// Subscribe streams change events for an existing site. Receivers re-read
// the summary with GetSummary.
func (s *LedgerService) Subscribe(ctx context.Context, siteID string) (<-chan core.SummaryChanged, func(), error) {
	if _, err := s.store.Reader().GetSite(ctx, siteID); err != nil {
		return nil, nil, err
	}
	ch, cancel := s.notifier.Subscribe(siteID)
	return ch, cancel, nil
}

// sameSet compares two id lists ignoring order.
func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := slices.Clone(a)
	y := slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}
