// Package sheets mirrors candle series into a Google spreadsheet, one
// worksheet per timeframe.
package sheets

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsv4 "google.golang.org/api/sheets/v4"
)

// API is the slice of the Sheets API the uploader needs. The narrow
// surface keeps tests off the network.
type API interface {
	// WorksheetTitles lists the tab titles of the spreadsheet.
	WorksheetTitles(ctx context.Context, spreadsheetID string) ([]string, error)
	// AddWorksheet creates a new empty tab.
	AddWorksheet(ctx context.Context, spreadsheetID, title string) error
	// ReadColumn returns the string values of one A1 range, row by row.
	ReadColumn(ctx context.Context, spreadsheetID, rangeA1 string) ([]string, error)
	// AppendRows appends raw rows after the last non-empty row of the range.
	AppendRows(ctx context.Context, spreadsheetID, rangeA1 string, rows [][]any) error
}

type googleAPI struct {
	svc *sheetsv4.Service
}

// NewAPI builds a Sheets API client from a service-account credentials
// file.
func NewAPI(ctx context.Context, fs afero.Fs, credentialsPath string) (API, error) {
	data, err := afero.ReadFile(fs, credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}
	conf, err := google.JWTConfigFromJSON(data, sheetsv4.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parsing credentials file: %w", err)
	}
	svc, err := sheetsv4.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}
	return &googleAPI{svc: svc}, nil
}

func (g *googleAPI) WorksheetTitles(ctx context.Context, spreadsheetID string) ([]string, error) {
	resp, err := g.svc.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(resp.Sheets))
	for _, s := range resp.Sheets {
		if s.Properties != nil {
			titles = append(titles, s.Properties.Title)
		}
	}
	return titles, nil
}

func (g *googleAPI) AddWorksheet(ctx context.Context, spreadsheetID, title string) error {
	req := &sheetsv4.BatchUpdateSpreadsheetRequest{
		Requests: []*sheetsv4.Request{{
			AddSheet: &sheetsv4.AddSheetRequest{
				Properties: &sheetsv4.SheetProperties{Title: title},
			},
		}},
	}
	_, err := g.svc.Spreadsheets.BatchUpdate(spreadsheetID, req).Context(ctx).Do()
	return err
}

func (g *googleAPI) ReadColumn(ctx context.Context, spreadsheetID, rangeA1 string) ([]string, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(spreadsheetID, rangeA1).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		values = append(values, fmt.Sprint(row[0]))
	}
	return values, nil
}

func (g *googleAPI) AppendRows(ctx context.Context, spreadsheetID, rangeA1 string, rows [][]any) error {
	body := &sheetsv4.ValueRange{Values: rows}
	_, err := g.svc.Spreadsheets.Values.Append(spreadsheetID, rangeA1, body).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

// retryable reports whether an API error is worth retrying. Rate limits
// and server-side failures are transient; everything else is not.
func retryable(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		// Network-level failures have no status code; retry those too.
		return true
	}
	return apiErr.Code == 429 || apiErr.Code >= 500
}
