// Package seed loads sites, transactions and transfers from a YAML file and
// replays them through the ledger so every summary is derived the normal way.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sitefin/internal/core"
)

const dateLayout = "2006-01-02"

// Ledger is the subset of the ledger service a seed run needs.
type Ledger interface {
	CreateSite(ctx context.Context, name, supervisorID string) (core.Site, error)
	SetSiteCompleted(ctx context.Context, id string, completed bool) (core.Site, error)
	CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, core.Summary, error)
	PostTransfer(ctx context.Context, t core.SupervisorTransfer) (core.SupervisorTransfer, []core.Summary, error)
}

// File is the parsed seed document.
type File struct {
	Sites     []Site     `yaml:"sites"`
	Transfers []Transfer `yaml:"transfers"`
}

type Site struct {
	Key          string        `yaml:"key"`
	Name         string        `yaml:"name"`
	SupervisorID string        `yaml:"supervisor_id"`
	Completed    bool          `yaml:"completed"`
	Transactions []Transaction `yaml:"transactions"`
}

type Transaction struct {
	Kind      string            `yaml:"kind"`
	Amount    string            `yaml:"amount"`
	Status    string            `yaml:"status"`
	Date      string            `yaml:"date"`
	CreatedBy string            `yaml:"created_by"`
	Metadata  map[string]string `yaml:"metadata"`
}

// Transfer references sites by their seed key.
type Transfer struct {
	Payer     string `yaml:"payer"`
	Receiver  string `yaml:"receiver"`
	Amount    string `yaml:"amount"`
	Kind      string `yaml:"kind"`
	Date      string `yaml:"date"`
	CreatedBy string `yaml:"created_by"`
	Note      string `yaml:"note"`
}

// Report counts what a seed run created.
type Report struct {
	Sites        int
	Transactions int
	Transfers    int
	SiteIDs      map[string]string
}

// LoadFile reads and parses a seed file.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a seed document. Unknown keys are rejected so typos surface
// before anything is written.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks references and amounts without touching the ledger.
func (f *File) Validate() error {
	var problems []string
	keys := make(map[string]struct{}, len(f.Sites))

	for i, s := range f.Sites {
		key := s.key()
		if key == "" {
			problems = append(problems, fmt.Sprintf("sites[%d]: name is required", i))
			continue
		}
		if _, dup := keys[key]; dup {
			problems = append(problems, fmt.Sprintf("sites[%d]: duplicate key %q", i, key))
		}
		keys[key] = struct{}{}

		for j, t := range s.Transactions {
			if _, err := t.toCore(""); err != nil {
				problems = append(problems, fmt.Sprintf("sites[%d].transactions[%d]: %v", i, j, err))
			}
		}
	}

	for i, t := range f.Transfers {
		if _, ok := keys[t.Payer]; !ok {
			problems = append(problems, fmt.Sprintf("transfers[%d]: unknown payer %q", i, t.Payer))
		}
		if _, ok := keys[t.Receiver]; !ok {
			problems = append(problems, fmt.Sprintf("transfers[%d]: unknown receiver %q", i, t.Receiver))
		}
		if _, err := t.toCore("", ""); err != nil {
			problems = append(problems, fmt.Sprintf("transfers[%d]: %v", i, err))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid seed file:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

// Apply creates every site, then its transactions, then the transfers. It
// stops at the first ledger error; what was written before stays written.
func Apply(ctx context.Context, ledger Ledger, f *File) (Report, error) {
	report := Report{SiteIDs: make(map[string]string, len(f.Sites))}

	for _, s := range f.Sites {
		site, err := ledger.CreateSite(ctx, s.Name, s.SupervisorID)
		if err != nil {
			return report, fmt.Errorf("create site %q: %w", s.key(), err)
		}
		report.Sites++
		report.SiteIDs[s.key()] = site.ID

		for _, t := range s.Transactions {
			tx, err := t.toCore(site.ID)
			if err != nil {
				return report, fmt.Errorf("site %q: %w", s.key(), err)
			}
			if _, _, err := ledger.CreateTransaction(ctx, tx); err != nil {
				return report, fmt.Errorf("site %q: create %s: %w", s.key(), tx.Kind, err)
			}
			report.Transactions++
		}
	}

	for i, t := range f.Transfers {
		tr, err := t.toCore(report.SiteIDs[t.Payer], report.SiteIDs[t.Receiver])
		if err != nil {
			return report, fmt.Errorf("transfer %d: %w", i, err)
		}
		if _, _, err := ledger.PostTransfer(ctx, tr); err != nil {
			return report, fmt.Errorf("transfer %d: %w", i, err)
		}
		report.Transfers++
	}

	// Completion is applied last so a completed site can still receive its
	// seeded history.
	for _, s := range f.Sites {
		if !s.Completed {
			continue
		}
		if _, err := ledger.SetSiteCompleted(ctx, report.SiteIDs[s.key()], true); err != nil {
			return report, fmt.Errorf("complete site %q: %w", s.key(), err)
		}
	}

	return report, nil
}

func (s Site) key() string {
	if s.Key != "" {
		return s.Key
	}
	return strings.TrimSpace(s.Name)
}

func (t Transaction) toCore(siteID string) (core.Transaction, error) {
	amount, err := core.ParseMoney(t.Amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("amount %q: %w", t.Amount, err)
	}
	kind := core.Kind(t.Kind)
	if !kind.IsValid() {
		return core.Transaction{}, fmt.Errorf("kind %q: %w", t.Kind, core.ErrUnknownKind)
	}
	status := core.Status(t.Status)
	if t.Status != "" && !status.IsValid() {
		return core.Transaction{}, fmt.Errorf("status %q: %w", t.Status, core.ErrUnknownStatus)
	}
	date, err := parseDate(t.Date)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		SiteID:    siteID,
		Kind:      kind,
		Amount:    amount,
		Status:    status,
		CreatedBy: t.CreatedBy,
		Date:      date,
		Metadata:  t.Metadata,
	}, nil
}

func (t Transfer) toCore(payerID, receiverID string) (core.SupervisorTransfer, error) {
	amount, err := core.ParseMoney(t.Amount)
	if err != nil {
		return core.SupervisorTransfer{}, fmt.Errorf("amount %q: %w", t.Amount, err)
	}
	kind := core.TransferKind(t.Kind)
	if t.Kind == "" {
		kind = core.TransferAdvancePaid
	}
	if !kind.IsValid() {
		return core.SupervisorTransfer{}, fmt.Errorf("kind %q: %w", t.Kind, core.ErrUnknownTransferKind)
	}
	date, err := parseDate(t.Date)
	if err != nil {
		return core.SupervisorTransfer{}, err
	}
	return core.SupervisorTransfer{
		PayerSiteID:    payerID,
		ReceiverSiteID: receiverID,
		Amount:         amount,
		Kind:           kind,
		Date:           date,
		CreatedBy:      t.CreatedBy,
		Note:           t.Note,
	}, nil
}

// parseDate accepts YYYY-MM-DD; empty means "let the ledger default it".
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: expected YYYY-MM-DD", s)
	}
	return d, nil
}
