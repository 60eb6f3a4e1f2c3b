package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Veraticus/collectorstream/internal/cli"
	"github.com/Veraticus/collectorstream/internal/service"
	"github.com/Veraticus/collectorstream/internal/sheets"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the collection",
	}

	sheetsCmd := &cobra.Command{
		Use:   "sheets",
		Short: "Write the collection to Google Sheets",
		Long: `Write every card, with its latest market value, to a Google Sheets
spreadsheet. The spreadsheet is created on first export unless
sheets.spreadsheet_id names an existing one.

Authenticate with a service account (sheets.service_account_path) or an OAuth
refresh token (sheets.client_id, sheets.client_secret, sheets.refresh_token).`,
		RunE: runExportSheets,
	}
	sheetsCmd.Flags().String("spreadsheet-id", "", "existing spreadsheet to overwrite")

	cmd.AddCommand(sheetsCmd)
	return cmd
}

func runExportSheets(cmd *cobra.Command, _ []string) error {
	handler := cli.NewInterruptHandler(os.Stderr)
	ctx, stop := handler.HandleInterrupts(cmd.Context(), "Export", "")
	defer stop()

	cfg := appConfig.SheetsConfig()
	if id, _ := cmd.Flags().GetString("spreadsheet-id"); id != "" {
		cfg.SpreadsheetID = id
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	cards, err := store.ListCards(ctx, service.CardFilter{})
	if err != nil {
		return err
	}

	writer, err := sheets.NewWriter(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}

	id, err := writer.WriteCollection(ctx, cards)
	if err != nil {
		return err
	}

	slog.Info(cli.FormatSuccess("Collection exported"), "cards", len(cards), "spreadsheet_id", id)
	return nil
}
