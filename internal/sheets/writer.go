package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/Veraticus/collectorstream/internal/common"
	"github.com/Veraticus/collectorstream/internal/model"
	"github.com/Veraticus/collectorstream/internal/service"
)

// sheetTitle is the tab the collection is written to.
const sheetTitle = "Collection"

// headerRow is the zero-based index of the column header row.
const headerRow = 3

var columns = []string{
	"ID", "Player", "Year", "Set", "Number", "Manufacturer", "Team", "Sport",
	"Condition", "Grading", "Market Value", "Low", "High", "Purchase Price",
	"Estimated Value", "Comps", "Identified By", "Confidence", "Added",
}

// Currency columns, zero-based and end-exclusive.
const (
	firstCurrencyColumn = 10
	endCurrencyColumn   = 15
)

// Writer exports the card collection to a spreadsheet.
type Writer struct {
	service *sheets.Service
	logger  *slog.Logger
	now     func() time.Time
	config  Config
}

// NewWriter creates a new Google Sheets collection writer.
func NewWriter(ctx context.Context, config Config, logger *slog.Logger) (*Writer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	service, err := createSheetsService(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return newWriter(service, config, logger), nil
}

func newWriter(service *sheets.Service, config Config, logger *slog.Logger) *Writer {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if config.SpreadsheetName == "" {
		config.SpreadsheetName = DefaultSpreadsheetName
	}
	return &Writer{
		config:  config,
		service: service,
		logger:  common.ComponentLogger(logger, "sheets"),
		now:     time.Now,
	}
}

// WriteCollection replaces the sheet contents with cards and returns the
// spreadsheet ID.
func (w *Writer) WriteCollection(ctx context.Context, cards []model.Card) (string, error) {
	w.logger.Info("starting collection export", "cards", len(cards))

	spreadsheetID, err := w.getOrCreateSpreadsheet(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get spreadsheet: %w", err)
	}

	if clearErr := w.clearSheet(ctx, spreadsheetID); clearErr != nil {
		return "", fmt.Errorf("failed to clear sheet: %w", clearErr)
	}

	values := w.prepareCollectionData(cards)

	retryOpts := service.RetryOptions{
		MaxAttempts:  w.config.RetryAttempts,
		InitialDelay: w.config.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}

	err = common.WithRetry(ctx, func() error {
		return w.writeData(ctx, spreadsheetID, values)
	}, retryOpts)
	if err != nil {
		return "", fmt.Errorf("failed to write data: %w", err)
	}

	if w.config.EnableFormatting {
		err = common.WithRetry(ctx, func() error {
			return w.applyFormatting(ctx, spreadsheetID, len(values))
		}, retryOpts)
		if err != nil {
			// Formatting is cosmetic; the data is already written.
			w.logger.Warn("failed to apply formatting", "error", err)
		}
	}

	w.logger.Info("collection export completed",
		"spreadsheet_id", spreadsheetID,
		"rows_written", len(values))

	return spreadsheetID, nil
}

// createSheetsService creates a Google Sheets API service.
func createSheetsService(ctx context.Context, config Config) (*sheets.Service, error) {
	var tokenSource oauth2.TokenSource

	method, err := config.Auth()
	if err != nil {
		return nil, err
	}
	if method == AuthServiceAccount {
		jsonKey, err := os.ReadFile(config.ServiceAccountPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key file: %w", err)
		}

		jwtConfig, err := google.JWTConfigFromJSON(jsonKey, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}

		tokenSource = jwtConfig.TokenSource(ctx)
	} else {
		client := &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{sheets.SpreadsheetsScope},
		}

		token := &oauth2.Token{
			RefreshToken: config.RefreshToken,
			TokenType:    "Bearer",
		}

		tokenSource = client.TokenSource(ctx, token)
	}

	httpClient := oauth2.NewClient(ctx, tokenSource)
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}

	return srv, nil
}

// getOrCreateSpreadsheet gets an existing spreadsheet or creates a new one.
func (w *Writer) getOrCreateSpreadsheet(ctx context.Context) (string, error) {
	if w.config.SpreadsheetID != "" {
		_, err := w.service.Spreadsheets.Get(w.config.SpreadsheetID).Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("unable to access spreadsheet %s: %w", w.config.SpreadsheetID, err)
		}
		return w.config.SpreadsheetID, nil
	}

	spreadsheet := &sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{
			Title:    w.config.SpreadsheetName,
			TimeZone: w.config.TimeZone,
		},
		Sheets: []*sheets.Sheet{
			{
				Properties: &sheets.SheetProperties{
					Title: sheetTitle,
				},
			},
		},
	}

	created, err := w.service.Spreadsheets.Create(spreadsheet).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to create spreadsheet: %w", err)
	}

	w.logger.Info("created new spreadsheet",
		"id", created.SpreadsheetId,
		"url", created.SpreadsheetUrl)

	return created.SpreadsheetId, nil
}

// clearSheet clears all data from the sheet.
func (w *Writer) clearSheet(ctx context.Context, spreadsheetID string) error {
	_, err := w.service.Spreadsheets.Values.Clear(spreadsheetID, "A:Z", &sheets.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

// prepareCollectionData lays out a title block, a header row, one row per
// card and a totals row.
func (w *Writer) prepareCollectionData(cards []model.Card) [][]any {
	values := make([][]any, 0, len(cards)+6)

	values = append(values,
		[]any{"Card Collection"},
		[]any{fmt.Sprintf("Exported %s", w.now().Format("January 2, 2006"))},
		[]any{},
	)

	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	values = append(values, header)

	var marketTotal, purchaseTotal float64
	valued := 0
	for i := range cards {
		card := &cards[i]
		values = append(values, cardRow(card))
		if card.Market != nil {
			if p, ok := card.Market.Price.Get(); ok {
				marketTotal += p
				valued++
			}
		}
		purchaseTotal += card.PurchasePrice.OrElse(0)
	}

	values = append(values,
		[]any{},
		[]any{
			"TOTAL", fmt.Sprintf("%d cards", len(cards)), "", "", "", "", "", "", "",
			fmt.Sprintf("%d valued", valued), marketTotal, "", "", purchaseTotal,
		},
	)
	return values
}

func cardRow(card *model.Card) []any {
	row := []any{
		card.ID,
		text(card.PlayerName),
		text(card.Year),
		text(card.Set),
		text(card.CardNumber),
		text(card.Manufacturer),
		text(card.Team),
		text(card.Sport),
		text(card.Condition),
		gradingLabel(card.Grading),
	}

	comps := any("")
	if m := card.Market; m != nil {
		row = append(row, amount(m.Price), amount(m.Low), amount(m.High))
		comps = m.SampleSize
	} else {
		row = append(row, "", "", "")
	}

	row = append(row,
		amount(card.PurchasePrice),
		amount(card.EstimatedValue),
		comps,
		text(card.Provider),
		fmt.Sprintf("%.0f%%", card.Confidence*100),
		card.CreatedAt.Format("2006-01-02"),
	)
	return row
}

func text[T ~string](o model.Optional[T]) string {
	v, _ := o.Get()
	return string(v)
}

// amount leaves unknown values blank rather than writing 0.
func amount(o model.Optional[float64]) any {
	if v, ok := o.Get(); ok {
		return v
	}
	return ""
}

func gradingLabel(g *model.Grading) string {
	if g.Empty() {
		return ""
	}
	label := text(g.Company)
	if grade, ok := g.Grade.Get(); ok {
		if label != "" {
			label += " "
		}
		label += grade
	}
	if cert, ok := g.CertNumber.Get(); ok {
		label += " (#" + cert + ")"
	}
	return label
}

// writeData writes the data to the spreadsheet.
func (w *Writer) writeData(ctx context.Context, spreadsheetID string, values [][]any) error {
	// Write in batches to avoid API limits
	for i := 0; i < len(values); i += w.config.BatchSize {
		end := min(i+w.config.BatchSize, len(values))

		batch := values[i:end]
		valueRange := &sheets.ValueRange{
			Values: batch,
		}

		rangeStr := fmt.Sprintf("A%d", i+1)
		_, err := w.service.Spreadsheets.Values.Update(spreadsheetID, rangeStr, valueRange).
			ValueInputOption("USER_ENTERED").
			Context(ctx).
			Do()

		if err != nil {
			return fmt.Errorf("failed to write batch starting at row %d: %w", i+1, err)
		}

		w.logger.Debug("wrote batch", "start_row", i+1, "rows", len(batch))
	}

	return nil
}

// applyFormatting applies formatting to the spreadsheet.
func (w *Writer) applyFormatting(ctx context.Context, spreadsheetID string, totalRows int) error {
	requests := []*sheets.Request{
		// Title
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          0,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   1,
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat: &sheets.TextFormat{
							Bold:     true,
							FontSize: 16,
						},
					},
				},
				Fields: "userEnteredFormat.textFormat",
			},
		},
		// Column headers
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          0,
					StartRowIndex:    headerRow,
					EndRowIndex:      headerRow + 1,
					StartColumnIndex: 0,
					EndColumnIndex:   int64(len(columns)),
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat: &sheets.TextFormat{
							Bold: true,
						},
					},
				},
				Fields: "userEnteredFormat.textFormat",
			},
		},
		// Currency columns
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          0,
					StartRowIndex:    headerRow + 1,
					EndRowIndex:      int64(totalRows),
					StartColumnIndex: firstCurrencyColumn,
					EndColumnIndex:   endCurrencyColumn,
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						NumberFormat: &sheets.NumberFormat{
							Type:    "CURRENCY",
							Pattern: "$#,##0.00",
						},
					},
				},
				Fields: "userEnteredFormat.numberFormat",
			},
		},
		{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{
					SheetId:    0,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   int64(len(columns)),
				},
			},
		},
		// Freeze through the header row
		{
			UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
				Properties: &sheets.SheetProperties{
					SheetId: 0,
					GridProperties: &sheets.GridProperties{
						FrozenRowCount: headerRow + 1,
					},
				},
				Fields: "gridProperties.frozenRowCount",
			},
		},
	}

	batchUpdate := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}

	_, err := w.service.Spreadsheets.BatchUpdate(spreadsheetID, batchUpdate).Context(ctx).Do()
	return err
}
