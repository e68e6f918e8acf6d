package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sitefin/internal/core"
)

const (
	dateLayout   = "2006-01-02"
	maxBodyBytes = 1 << 20
)

// decimalAmount accepts an amount as a JSON string ("12,34") or number (12.34).
// Parsing into cents happens later so both go through the same rules.
type decimalAmount string

func (a *decimalAmount) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = decimalAmount(s)
		return nil
	}
	if string(b) == "null" {
		*a = ""
		return nil
	}
	*a = decimalAmount(b)
	return nil
}

func (a decimalAmount) money() (core.Money, error) {
	m, err := core.ParseMoney(string(a))
	if err != nil {
		return core.Money{}, &core.ValidationError{Field: "amount", Err: err}
	}
	return m, nil
}

type createSiteRequest struct {
	Name         string `json:"name"`
	SupervisorID string `json:"supervisor_id"`
}

type updateSiteRequest struct {
	Completed *bool `json:"completed"`
}

type createTransactionRequest struct {
	Kind      string            `json:"kind"`
	SiteID    string            `json:"site_id"`
	Amount    decimalAmount     `json:"amount"`
	Status    string            `json:"status"`
	CreatedBy string            `json:"created_by"`
	Date      string            `json:"date"`
	Metadata  map[string]string `json:"metadata"`
}

type updateTransactionRequest struct {
	Status string `json:"status"`
}

type createTransferRequest struct {
	PayerSupervisorID    string        `json:"payer_supervisor_id"`
	ReceiverSupervisorID string        `json:"receiver_supervisor_id"`
	PayerSiteID          string        `json:"payer_site_id"`
	ReceiverSiteID       string        `json:"receiver_site_id"`
	Amount               decimalAmount `json:"amount"`
	TransferKind         string        `json:"transfer_kind"`
	Date                 string        `json:"date"`
	CreatedBy            string        `json:"created_by"`
	Note                 string        `json:"note"`
}

// decodeBody decodes exactly one JSON object, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("malformed request body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON value")
	}
	return nil
}

// parseDate parses YYYY-MM-DD or RFC 3339. Empty yields the zero time so the
// ledger applies its default.
func parseDate(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.Parse(dateLayout, s); err == nil {
		return d, nil
	}
	if d, err := time.Parse(time.RFC3339, s); err == nil {
		return d.UTC(), nil
	}
	return time.Time{}, &core.ValidationError{Field: field, Err: errors.New("expected YYYY-MM-DD")}
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func (req createTransactionRequest) toCore() (core.Transaction, error) {
	amount, err := req.Amount.money()
	if err != nil {
		return core.Transaction{}, err
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		return core.Transaction{}, err
	}
	var metadata map[string]string
	if len(req.Metadata) > 0 {
		metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			metadata[sanitizeInput(k)] = sanitizeInput(v)
		}
	}
	return core.Transaction{
		SiteID:    strings.TrimSpace(req.SiteID),
		Kind:      core.Kind(strings.TrimSpace(req.Kind)),
		Amount:    amount,
		Status:    core.Status(strings.TrimSpace(req.Status)),
		CreatedBy: sanitizeInput(req.CreatedBy),
		Date:      date,
		Metadata:  metadata,
	}, nil
}

func (req createTransferRequest) toCore() (core.SupervisorTransfer, error) {
	amount, err := req.Amount.money()
	if err != nil {
		return core.SupervisorTransfer{}, err
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		return core.SupervisorTransfer{}, err
	}
	return core.SupervisorTransfer{
		PayerSupervisorID:    strings.TrimSpace(req.PayerSupervisorID),
		ReceiverSupervisorID: strings.TrimSpace(req.ReceiverSupervisorID),
		PayerSiteID:          strings.TrimSpace(req.PayerSiteID),
		ReceiverSiteID:       strings.TrimSpace(req.ReceiverSiteID),
		Amount:               amount,
		Kind:                 core.TransferKind(strings.TrimSpace(req.TransferKind)),
		Date:                 date,
		CreatedBy:            sanitizeInput(req.CreatedBy),
		Note:                 sanitizeInput(req.Note),
	}, nil
}
