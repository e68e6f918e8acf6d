package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"sitefin/internal/core"
	ports "sitefin/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const (
	defaultSheetName     = "Summaries"
	defaultIndexValidity = 5 * time.Minute
	revisionColumn       = ports.RevisionColumn
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string

	// row index of column A, refreshed when stale or after a miss
	mu                 sync.Mutex
	rows               map[string]rowLocation
	rowCount           int
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
}

// Ensure interface conformance
var _ ports.SummaryWriter = (*Client)(nil)

// New creates a Sheets client for the mirror sheet using Service Account
// credentials from the environment.
func New(ctx context.Context, spreadsheetID, sheetName string) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	sheetName = strings.TrimSpace(sheetName)
	if sheetName == "" {
		sheetName = defaultSheetName
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:                svc,
		spreadsheetID:      spreadsheetID,
		sheetName:          sheetName,
		cacheValidDuration: defaultIndexValidity,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	credentialsJSON, err := loadCredentials()
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func loadCredentials() ([]byte, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case serviceAccountJSON != "":
		return []byte(serviceAccountJSON), nil
	case serviceAccountFile != "":
		data, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// WriteSummary implements ports.SummaryWriter. The site row is updated in
// place, or appended when the site is new to the sheet.
func (c *Client) WriteSummary(ctx context.Context, site core.Site, s core.Summary) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	loc, found, err := c.locate(ctx, site.ID)
	if err != nil {
		return err
	}
	if found && loc.revision >= s.Revision {
		slog.DebugContext(ctx, "Mirror already at or past revision",
			"site_id", site.ID, "mirrored", loc.revision, "revision", s.Revision)
		return nil
	}

	row := loc.row
	if !found {
		row = c.rowCount + 1
		if row == 1 {
			if err := c.writeRow(ctx, 1, toAny(ports.Header)); err != nil {
				return fmt.Errorf("write header: %w", err)
			}
			row = 2
		}
	}

	if err := c.writeRow(ctx, row, ports.Row(site, s)); err != nil {
		c.invalidateLocked()
		return err
	}

	c.rows[site.ID] = rowLocation{row: row, revision: s.Revision}
	if row > c.rowCount {
		c.rowCount = row
	}
	return nil
}

// RemoveSite implements ports.SummaryWriter by clearing the site row.
func (c *Client) RemoveSite(ctx context.Context, siteID string) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	loc, found, err := c.locate(ctx, siteID)
	if err != nil || !found {
		return err
	}

	rng := c.rowRange(loc.row)
	_, err = c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		c.invalidateLocked()
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	delete(c.rows, siteID)
	return nil
}

// MirroredSiteIDs implements ports.SummaryWriter from a fresh read of the
// site id column.
func (c *Client) MirroredSiteIDs(ctx context.Context) ([]string, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refreshIndex(ctx); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(c.rows))
	for id := range c.rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// InvalidateRowCache forces the next write to re-read the sheet.
func (c *Client) InvalidateRowCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked()
}

func (c *Client) invalidateLocked() {
	c.cacheExpiresAt = time.Time{}
}

// locate finds the site row, refreshing the index when it is stale or when
// the site is missing from it. Callers hold c.mu.
func (c *Client) locate(ctx context.Context, siteID string) (rowLocation, bool, error) {
	if time.Now().Before(c.cacheExpiresAt) {
		if loc, ok := c.rows[siteID]; ok {
			return loc, true, nil
		}
	}
	if err := c.refreshIndex(ctx); err != nil {
		return rowLocation{}, false, err
	}
	loc, ok := c.rows[siteID]
	return loc, ok, nil
}

func (c *Client) refreshIndex(ctx context.Context) error {
	rng := fmt.Sprintf("%s!A:%s", c.sheetName, columnLetter(revisionColumn))
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read %s: %w", rng, err)
	}
	c.rows = indexRows(resp.Values)
	c.rowCount = len(resp.Values)
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	return nil
}

func (c *Client) writeRow(ctx context.Context, row int, values []any) error {
	rng := c.rowRange(row)
	vr := &gsheet.ValueRange{Values: [][]any{values}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

func (c *Client) rowRange(row int) string {
	return fmt.Sprintf("%s!A%d:%s%d", c.sheetName, row, columnLetter(len(ports.Header)-1), row)
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
