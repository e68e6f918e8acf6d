package core

import (
	"math"
	"time"
)

// Summary is the aggregate row of a site. Every field except Balance is a sum
// over the active records of one kind.
type Summary struct {
	SiteID                      string
	FundsReceived               Money
	FundsReceivedFromSupervisor Money
	TotalExpenses               Money
	TotalAdvances               Money
	TotalInvoices               Money
	AdvancePaidToSupervisor     Money
	Balance                     Money
	Revision                    int64
	UpdatedAt                   time.Time
}

// Totals holds the raw per-kind sums a Summary is derived from.
type Totals struct {
	FundsReceived               int64
	FundsReceivedFromSupervisor int64
	Expenses                    int64
	Advances                    int64
	Invoices                    int64
	AdvancePaidToSupervisor     int64
}

// Add accumulates a transaction amount into the matching kind bucket.
func (t *Totals) Add(kind Kind, cents int64) {
	switch kind {
	case KindFundsReceived:
		t.FundsReceived += cents
	case KindExpense:
		t.Expenses += cents
	case KindAdvance:
		t.Advances += cents
	case KindInvoice:
		t.Invoices += cents
	}
}

// Balance applies the ledger equation.
func (t Totals) Balance() int64 {
	return t.FundsReceived + t.FundsReceivedFromSupervisor -
		t.Expenses - t.Advances - t.Invoices -
		t.AdvancePaidToSupervisor
}

// Validate reports ErrTotalsOverflow when a total is negative or the
// incoming or outgoing side does not fit in int64 cents. When both sides fit,
// Balance cannot wrap.
func (t Totals) Validate() error {
	if err := checkSum(t.FundsReceived, t.FundsReceivedFromSupervisor); err != nil {
		return err
	}
	return checkSum(t.Expenses, t.Advances, t.Invoices, t.AdvancePaidToSupervisor)
}

func checkSum(values ...int64) error {
	var sum int64
	for _, v := range values {
		if v < 0 || sum > math.MaxInt64-v {
			return ErrTotalsOverflow
		}
		sum += v
	}
	return nil
}

// Summary builds the site summary for the given totals. Revision and
// UpdatedAt are assigned by the writer.
func (t Totals) Summary(siteID string) Summary {
	return Summary{
		SiteID:                      siteID,
		FundsReceived:               Money{Cents: t.FundsReceived},
		FundsReceivedFromSupervisor: Money{Cents: t.FundsReceivedFromSupervisor},
		TotalExpenses:               Money{Cents: t.Expenses},
		TotalAdvances:               Money{Cents: t.Advances},
		TotalInvoices:               Money{Cents: t.Invoices},
		AdvancePaidToSupervisor:     Money{Cents: t.AdvancePaidToSupervisor},
		Balance:                     Money{Cents: t.Balance()},
	}
}

// Consistent reports whether Balance matches the ledger equation.
func (s Summary) Consistent() bool {
	want := s.FundsReceived.Cents + s.FundsReceivedFromSupervisor.Cents -
		s.TotalExpenses.Cents - s.TotalAdvances.Cents - s.TotalInvoices.Cents -
		s.AdvancePaidToSupervisor.Cents
	return s.Balance.Cents == want
}

// SameTotals compares the money fields, ignoring revision bookkeeping.
func (s Summary) SameTotals(o Summary) bool {
	return s.SiteID == o.SiteID &&
		s.FundsReceived == o.FundsReceived &&
		s.FundsReceivedFromSupervisor == o.FundsReceivedFromSupervisor &&
		s.TotalExpenses == o.TotalExpenses &&
		s.TotalAdvances == o.TotalAdvances &&
		s.TotalInvoices == o.TotalInvoices &&
		s.AdvancePaidToSupervisor == o.AdvancePaidToSupervisor &&
		s.Balance == o.Balance
}
