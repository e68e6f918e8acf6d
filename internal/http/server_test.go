package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitefin/internal/cache"
	"sitefin/internal/core"
	"sitefin/internal/notify"
	"sitefin/internal/services"
	"sitefin/internal/storage"
)

type apiResponse struct {
	Status  string          `json:"status"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, opts Options) (*Server, *services.LedgerService) {
	t.Helper()
	return newTestServerAt(t, filepath.Join(t.TempDir(), "api.db"), opts)
}

func newTestServerAt(t *testing.T, dbPath string, opts Options) (*Server, *services.LedgerService) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	ledger := services.NewLedgerService(repo, cache.NewSummaryLRU(100, time.Minute),
		notify.NewNotifier(notify.NewHub(16)), services.DefaultLedgerConfig())
	if opts.Ready == nil {
		opts.Ready = repo.Ping
	}
	srv := NewServer(":0", ledger, opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, ledger
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp apiResponse
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec, resp
}

func createSite(t *testing.T, h http.Handler, name, supervisor string) siteResponse {
	t.Helper()
	rec, resp := do(t, h, http.MethodPost, "/v1/sites", `{"name":"`+name+`","supervisor_id":"`+supervisor+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var site siteResponse
	require.NoError(t, json.Unmarshal(resp.Data, &site))
	return site
}

func postTransaction(t *testing.T, h http.Handler, siteID, kind, amount string) transactionResult {
	t.Helper()
	rec, resp := do(t, h, http.MethodPost, "/v1/transactions",
		`{"site_id":"`+siteID+`","kind":"`+kind+`","amount":"`+amount+`","created_by":"admin"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out transactionResult
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	return out
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rec, resp := do(t, srv.Handler, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", resp.Message)

	rec, resp = do(t, srv.Handler, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", resp.Message)

	down, _ := newTestServer(t, Options{Ready: func(context.Context) error { return errors.New("db down") }})
	rec, resp = do(t, down.Handler, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, CodeUnavailable, resp.Code)
}

func TestSecurityAndTraceHeaders(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, int64(1), srv.Metrics().TotalRequests)
}

func TestLedgerFlow(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	h := srv.Handler

	site := createSite(t, h, "North yard", "sup-1")
	assert.NotEmpty(t, site.ID)
	assert.Equal(t, "sup-1", site.SupervisorID)

	postTransaction(t, h, site.ID, "funds_received", "1000")
	postTransaction(t, h, site.ID, "expense", "200,00")
	res := postTransaction(t, h, site.ID, "advance", "50")
	assert.Equal(t, "750.00", res.Summary.Balance)
	assert.Equal(t, "pending", res.Transaction.Status)

	invoice := postTransaction(t, h, site.ID, "invoice", "100.00")
	assert.Equal(t, "650.00", invoice.Summary.Balance)

	rec, resp := do(t, h, http.MethodGet, "/v1/sites/"+site.ID+"/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary summaryResponse
	require.NoError(t, json.Unmarshal(resp.Data, &summary))
	assert.Equal(t, "650.00", summary.Balance)
	assert.Equal(t, "100.00", summary.TotalInvoices)
	assert.Equal(t, invoice.Summary.Revision, summary.Revision)

	rec, resp = do(t, h, http.MethodGet, "/v1/sites/"+site.ID+"/transactions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var txs []transactionResponse
	require.NoError(t, json.Unmarshal(resp.Data, &txs))
	assert.Len(t, txs, 4)

	rec, resp = do(t, h, http.MethodDelete, "/v1/transactions/"+invoice.Transaction.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(resp.Data, &summary))
	assert.Equal(t, "750.00", summary.Balance)

	rec, resp = do(t, h, http.MethodGet, "/v1/transactions/"+invoice.Transaction.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, resp.Code)

	rec, resp = do(t, h, http.MethodPost, "/v1/sites/"+site.ID+"/recompute", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(resp.Data, &summary))
	assert.Equal(t, "750.00", summary.Balance)
}

func TestTransactionStatusChange(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	h := srv.Handler

	site := createSite(t, h, "Yard", "sup-1")
	res := postTransaction(t, h, site.ID, "funds_received", "10")

	rec, resp := do(t, h, http.MethodPatch, "/v1/transactions/"+res.Transaction.ID, `{"status":"rejected"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out transactionResult
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	assert.Equal(t, "rejected", out.Transaction.Status)
	assert.Equal(t, "0.00", out.Summary.Balance)

	rec, resp = do(t, h, http.MethodPatch, "/v1/transactions/"+res.Transaction.ID, `{"status":"lost"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeValidation, resp.Code)

	rec, _ = do(t, h, http.MethodPatch, "/v1/transactions/"+res.Transaction.ID, `{"status":"approved"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, resp = do(t, h, http.MethodPatch, "/v1/transactions/"+res.Transaction.ID, `{"status":"pending"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeConflict, resp.Code)
}

func TestTransfers(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	h := srv.Handler

	a := createSite(t, h, "A", "sup-a")
	b := createSite(t, h, "B", "sup-b")
	postTransaction(t, h, a.ID, "funds_received", "650")

	body := `{"payer_site_id":"` + a.ID + `","receiver_site_id":"` + b.ID + `","amount":100,"transfer_kind":"advance_paid","date":"2025-03-01"}`
	rec, resp := do(t, h, http.MethodPost, "/v1/transfers", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var out transferResult
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	assert.Equal(t, "sup-a", out.Transfer.PayerSupervisorID)
	assert.Equal(t, "sup-b", out.Transfer.ReceiverSupervisorID)
	assert.Equal(t, "2025-03-01", out.Transfer.Date)
	require.Len(t, out.Summaries, 2)
	assert.Equal(t, "550.00", out.Summaries[0].Balance)
	assert.Equal(t, "100.00", out.Summaries[1].Balance)

	rec, resp = do(t, h, http.MethodGet, "/v1/sites/"+b.ID+"/transfers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []transferResponse
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	require.Len(t, list, 1)

	rec, _ = do(t, h, http.MethodGet, "/v1/transfers/"+out.Transfer.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, resp = do(t, h, http.MethodDelete, "/v1/transfers/"+out.Transfer.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var after []summaryResponse
	require.NoError(t, json.Unmarshal(resp.Data, &after))
	assert.Equal(t, "650.00", after[0].Balance)
	assert.Equal(t, "0.00", after[1].Balance)
}

func TestValidationErrors(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	h := srv.Handler
	a := createSite(t, h, "A", "sup-a")

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"empty body", http.MethodPost, "/v1/sites", "", http.StatusBadRequest, CodeValidation},
		{"unknown field", http.MethodPost, "/v1/sites", `{"name":"x","supervisor_id":"s","boss":"y"}`, http.StatusBadRequest, CodeValidation},
		{"missing supervisor", http.MethodPost, "/v1/sites", `{"name":"x"}`, http.StatusBadRequest, CodeValidation},
		{"bad amount", http.MethodPost, "/v1/transactions", `{"site_id":"` + a.ID + `","kind":"expense","amount":"-5"}`, http.StatusBadRequest, CodeValidation},
		{"amount above cap", http.MethodPost, "/v1/transactions", `{"site_id":"` + a.ID + `","kind":"funds_received","amount":"100000000000.01"}`, http.StatusBadRequest, CodeValidation},
		{"bad kind", http.MethodPost, "/v1/transactions", `{"site_id":"` + a.ID + `","kind":"refund","amount":"5"}`, http.StatusBadRequest, CodeValidation},
		{"bad date", http.MethodPost, "/v1/transactions", `{"site_id":"` + a.ID + `","kind":"expense","amount":"5","date":"tomorrow"}`, http.StatusBadRequest, CodeValidation},
		{"unknown site in body", http.MethodPost, "/v1/transactions", `{"site_id":"ghost","kind":"expense","amount":"5"}`, http.StatusBadRequest, CodeValidation},
		{"same site transfer", http.MethodPost, "/v1/transfers", `{"payer_site_id":"` + a.ID + `","receiver_site_id":"` + a.ID + `","amount":"5","transfer_kind":"advance_paid"}`, http.StatusBadRequest, CodeValidation},
		{"unknown site in path", http.MethodGet, "/v1/sites/ghost/summary", "", http.StatusNotFound, CodeSiteNotFound},
		{"unknown transfer", http.MethodDelete, "/v1/transfers/ghost", "", http.StatusNotFound, CodeNotFound},
		{"patch without completed", http.MethodPatch, "/v1/sites/" + a.ID, `{}`, http.StatusBadRequest, CodeValidation},
		{"unknown route", http.MethodGet, "/v2/nothing", "", http.StatusNotFound, CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, "error", resp.Status)
			assert.Equal(t, tt.wantErr, resp.Code)
		})
	}
}

func TestSiteLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	h := srv.Handler
	site := createSite(t, h, "A", "sup-a")

	rec, resp := do(t, h, http.MethodPatch, "/v1/sites/"+site.ID, `{"completed":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated siteResponse
	require.NoError(t, json.Unmarshal(resp.Data, &updated))
	assert.True(t, updated.Completed)

	rec, resp = do(t, h, http.MethodGet, "/v1/sites", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sites []siteResponse
	require.NoError(t, json.Unmarshal(resp.Data, &sites))
	assert.Len(t, sites, 1)

	rec, _ = do(t, h, http.MethodDelete, "/v1/sites/"+site.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, resp = do(t, h, http.MethodGet, "/v1/sites/"+site.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeSiteNotFound, resp.Code)
}

func TestRecomputeAll(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	h := srv.Handler
	createSite(t, h, "A", "sup-a")
	createSite(t, h, "B", "sup-b")

	rec, resp := do(t, h, http.MethodPost, "/v1/recompute", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var report repairResponse
	require.NoError(t, json.Unmarshal(resp.Data, &report))
	assert.Equal(t, 2, report.Sites)
	assert.Equal(t, 2, report.Recomputed)
	assert.Zero(t, report.Failed)
}

func TestRateLimitAppliesToWritesOnly(t *testing.T) {
	srv, _ := newTestServer(t, Options{RateLimitPerMinute: 2})
	h := srv.Handler

	createSite(t, h, "A", "s")
	createSite(t, h, "B", "s")

	rec, resp := do(t, h, http.MethodPost, "/v1/sites", `{"name":"C","supervisor_id":"s"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, CodeRateLimited, resp.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	rec, _ = do(t, h, http.MethodGet, "/v1/sites", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEventsStream(t *testing.T) {
	srv, ledger := newTestServer(t, Options{HeartbeatInterval: time.Hour})
	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	site := createSite(t, srv.Handler, "A", "sup-a")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/sites/"+site.ID+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	readEvent := eventReader(t, resp)

	event, data := readEvent()
	assert.Equal(t, "summary", event)
	assert.Contains(t, data, `"revision":0`)

	postTransaction(t, srv.Handler, site.ID, "funds_received", "5")

	event, data = readEvent()
	assert.Equal(t, "summary_changed", event)
	var ev eventResponse
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, site.ID, ev.SiteID)
	assert.Equal(t, int64(1), ev.Revision)

	require.NoError(t, ledger.DeleteSite(context.Background(), site.ID))
	event, _ = readEvent()
	assert.Equal(t, "site_deleted", event)
}

func TestEventsPickUpWritesFromAnotherProcess(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "shared.db")
	srv, _ := newTestServerAt(t, dbPath, Options{HeartbeatInterval: 20 * time.Millisecond})
	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	otherRepo, err := storage.NewSQLiteRepository(dbPath)
	require.NoError(t, err)
	defer otherRepo.Close()
	other := services.NewLedgerService(otherRepo, nil, nil, services.DefaultLedgerConfig())

	site := createSite(t, srv.Handler, "A", "sup-a")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/sites/"+site.ID+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	readEvent := eventReader(t, resp)

	event, _ := readEvent()
	assert.Equal(t, "summary", event)

	_, _, err = other.CreateTransaction(context.Background(), core.Transaction{
		SiteID: site.ID, Kind: core.KindFundsReceived, Amount: core.Money{Cents: 1000}, CreatedBy: "cli",
	})
	require.NoError(t, err)

	event, data := readEvent()
	assert.Equal(t, "summary_changed", event)
	assert.Contains(t, data, `"revision":1`)

	rec, body := do(t, srv.Handler, http.MethodGet, "/v1/sites/"+site.ID+"/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sum summaryResponse
	require.NoError(t, json.Unmarshal(body.Data, &sum))
	assert.Equal(t, "10.00", sum.Balance)

	require.NoError(t, other.DeleteSite(context.Background(), site.ID))
	event, _ = readEvent()
	assert.Equal(t, "site_deleted", event)

	rec, body = do(t, srv.Handler, http.MethodGet, "/v1/sites/"+site.ID+"/summary", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeSiteNotFound, body.Code)
}

// eventReader returns a func reading the next named server-sent event.
func eventReader(t *testing.T, resp *http.Response) func() (string, string) {
	reader := bufio.NewReader(resp.Body)
	return func() (string, string) {
		t.Helper()
		var event, data string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && event != "":
				return event, data
			}
		}
	}
}

func TestEventsUnknownSite(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	rec, resp := do(t, srv.Handler, http.MethodGet, "/v1/sites/ghost/events", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeSiteNotFound, resp.Code)
}

func TestDecimalAmount(t *testing.T) {
	tests := []struct {
		in    string
		cents int64
		ok    bool
	}{
		{`"12,34"`, 1234, true},
		{`"12.345"`, 1235, true},
		{`12.5`, 1250, true},
		{`0`, 0, false},
		{`"abc"`, 0, false},
		{`null`, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var a decimalAmount
			require.NoError(t, json.Unmarshal([]byte(tt.in), &a))
			m, err := a.money()
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.cents, m.Cents)
		})
	}
}
