package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/oauth2/google"
	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	sheetsv4 "google.golang.org/api/sheets/v4"
)

const spreadsheetMimeType = "application/vnd.google-apps.spreadsheet"

// Drive is the slice of the Drive API the locator needs.
type Drive interface {
	// FindSpreadsheet returns the file ID of a spreadsheet with the given
	// name inside the folder, or "" when none exists.
	FindSpreadsheet(ctx context.Context, folderID, name string) (string, error)
	// CreateSpreadsheet creates an empty spreadsheet in the folder and
	// returns its file ID.
	CreateSpreadsheet(ctx context.Context, folderID, name string) (string, error)
}

type googleDrive struct {
	svc *drivev3.Service
}

// NewDrive builds a Drive client from the same service-account
// credentials file the Sheets client uses.
func NewDrive(ctx context.Context, fs afero.Fs, credentialsPath string) (Drive, error) {
	data, err := afero.ReadFile(fs, credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}
	conf, err := google.JWTConfigFromJSON(data, drivev3.DriveScope, sheetsv4.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parsing credentials file: %w", err)
	}
	svc, err := drivev3.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("creating drive service: %w", err)
	}
	return &googleDrive{svc: svc}, nil
}

func (g *googleDrive) FindSpreadsheet(ctx context.Context, folderID, name string) (string, error) {
	query := fmt.Sprintf("name = '%s' and '%s' in parents and mimeType = '%s' and trashed = false",
		escapeQuery(name), folderID, spreadsheetMimeType)
	list, err := g.svc.Files.List().Q(query).Fields("files(id)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].Id, nil
}

func (g *googleDrive) CreateSpreadsheet(ctx context.Context, folderID, name string) (string, error) {
	file, err := g.svc.Files.Create(&drivev3.File{
		Name:     name,
		MimeType: spreadsheetMimeType,
		Parents:  []string{folderID},
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return file.Id, nil
}

func escapeQuery(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}

// SpreadsheetName is the fixed naming scheme for per-pair spreadsheets,
// e.g. "COINBASE(BTC-USD)".
func SpreadsheetName(exchangeName, pair string) string {
	return fmt.Sprintf("%s(%s)", strings.ToUpper(exchangeName), strings.ToUpper(pair))
}

// Locate resolves the spreadsheet for a pair inside the configured Drive
// folder, creating it on first use.
func Locate(ctx context.Context, drive Drive, folderID, exchangeName, pair string, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	name := SpreadsheetName(exchangeName, pair)

	id, err := drive.FindSpreadsheet(ctx, folderID, name)
	if err != nil {
		return "", fmt.Errorf("searching for spreadsheet %s: %w", name, err)
	}
	if id != "" {
		logger.Debug("found spreadsheet", "name", name, "id", id)
		return id, nil
	}

	id, err = drive.CreateSpreadsheet(ctx, folderID, name)
	if err != nil {
		return "", fmt.Errorf("creating spreadsheet %s: %w", name, err)
	}
	logger.Info("created spreadsheet", "name", name, "id", id)
	return id, nil
}
