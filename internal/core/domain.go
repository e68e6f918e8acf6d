package core

import (
	"errors"
	"strings"
	"time"
)

const (
	KindExpense       Kind = "expense"
	KindAdvance       Kind = "advance"
	KindFundsReceived Kind = "funds_received"
	KindInvoice       Kind = "invoice"
)

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

const (
	TransferAdvancePaid   TransferKind = "advance_paid"
	TransferFundsReceived TransferKind = "funds_received"
)

type (
	// Kind is the closed set of per-site transaction kinds.
	Kind string

	// Status is the approval state of a transaction.
	Status string

	// TransferKind records which side entered a supervisor transfer.
	TransferKind string

	Money struct {
		Cents int64
	}

	Site struct {
		ID           string
		Name         string
		SupervisorID string
		Completed    bool
		CreatedAt    time.Time
	}

	Transaction struct {
		ID        string
		SiteID    string
		Kind      Kind
		Amount    Money
		Status    Status
		CreatedBy string
		Date      time.Time
		Metadata  map[string]string
		CreatedAt time.Time
	}

	SupervisorTransfer struct {
		ID                   string
		PayerSupervisorID    string
		ReceiverSupervisorID string
		PayerSiteID          string
		ReceiverSiteID       string
		Amount               Money
		Kind                 TransferKind
		Date                 time.Time
		CreatedBy            string
		Note                 string
		CreatedAt            time.Time
	}
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrUnknownKind         = errors.New("unknown transaction kind")
	ErrUnknownStatus       = errors.New("unknown transaction status")
	ErrUnknownTransferKind = errors.New("unknown transfer kind")
	ErrEmptySiteID         = errors.New("empty site id")
	ErrEmptyName           = errors.New("empty site name")
	ErrEmptySupervisor     = errors.New("empty supervisor id")
	ErrSameSite            = errors.New("transfer must name two distinct sites")
	ErrSupervisorMismatch  = errors.New("supervisor does not own site")
	ErrSiteNotFound        = errors.New("site not found")
	ErrNotFound            = errors.New("not found")
	ErrTransactionApproved = errors.New("approved transactions cannot change status")
	ErrTotalsOverflow      = errors.New("site totals overflow")
)

// Kinds returns every transaction kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindExpense, KindAdvance, KindFundsReceived, KindInvoice}
}

func (k Kind) IsValid() bool {
	switch k {
	case KindExpense, KindAdvance, KindFundsReceived, KindInvoice:
		return true
	default:
		return false
	}
}

func (k Kind) String() string { return string(k) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

func (s Status) String() string { return string(s) }

func (k TransferKind) IsValid() bool {
	return k == TransferAdvancePaid || k == TransferFundsReceived
}

func (k TransferKind) String() string { return string(k) }

func (m Money) Validate() error {
	if m.Cents <= 0 || m.Cents > MaxAmountCents {
		return ErrInvalidAmount
	}
	return nil
}

func (s Site) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return &ValidationError{Field: "name", Err: ErrEmptyName}
	}
	if len(s.Name) > 200 {
		return &ValidationError{Field: "name", Err: errors.New("name too long (max 200 characters)")}
	}
	if strings.TrimSpace(s.SupervisorID) == "" {
		return &ValidationError{Field: "supervisor_id", Err: ErrEmptySupervisor}
	}
	return nil
}

// Validate checks the request-level fields of a transaction. Site existence is
// checked by the store inside the write transaction.
func (t Transaction) Validate() error {
	if !t.Kind.IsValid() {
		return &ValidationError{Field: "kind", Err: ErrUnknownKind}
	}
	if strings.TrimSpace(t.SiteID) == "" {
		return &ValidationError{Field: "site_id", Err: ErrEmptySiteID}
	}
	if err := t.Amount.Validate(); err != nil {
		return &ValidationError{Field: "amount", Err: err}
	}
	if t.Status != "" && !t.Status.IsValid() {
		return &ValidationError{Field: "status", Err: ErrUnknownStatus}
	}
	return nil
}

func (t SupervisorTransfer) Validate() error {
	if !t.Kind.IsValid() {
		return &ValidationError{Field: "transfer_kind", Err: ErrUnknownTransferKind}
	}
	if strings.TrimSpace(t.PayerSiteID) == "" {
		return &ValidationError{Field: "payer_site_id", Err: ErrEmptySiteID}
	}
	if strings.TrimSpace(t.ReceiverSiteID) == "" {
		return &ValidationError{Field: "receiver_site_id", Err: ErrEmptySiteID}
	}
	if t.PayerSiteID == t.ReceiverSiteID {
		return &ValidationError{Field: "receiver_site_id", Err: ErrSameSite}
	}
	if err := t.Amount.Validate(); err != nil {
		return &ValidationError{Field: "amount", Err: err}
	}
	return nil
}

// Sites returns the two site ids touched by the transfer.
func (t SupervisorTransfer) Sites() []string {
	return []string{t.PayerSiteID, t.ReceiverSiteID}
}
