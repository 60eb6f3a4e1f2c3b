package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/collectorstream/internal/cli"
	"github.com/Veraticus/collectorstream/internal/market"
	"github.com/Veraticus/collectorstream/internal/model"
	"github.com/Veraticus/collectorstream/internal/service"
)

func valuesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "values",
		Short: "Track market values",
	}

	refresh := &cobra.Command{
		Use:   "refresh [ID...]",
		Short: "Estimate card values from eBay sold listings",
		Long: `Search recent eBay sold listings for each card, drop lots, reprints and
outliers, and store the median price with its interquartile range.

Without IDs only cards never valued or valued longer ago than
market.stale_after are refreshed; use --all to refresh everything.`,
		RunE: runValuesRefresh,
	}
	refresh.Flags().Bool("all", false, "refresh every card, not just stale ones")
	refresh.Flags().Int("workers", 0, "concurrent searches (default: market.workers)")

	cmd.AddCommand(refresh)
	return cmd
}

func runValuesRefresh(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	handler := cli.NewInterruptHandler(os.Stderr)
	ctx, stop := handler.HandleInterrupts(cmd.Context(), "Market refresh", "cardscan values refresh")
	defer stop()

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	all, _ := cmd.Flags().GetBool("all")
	cards, err := cardsToValue(cmd, store, args, all)
	if err != nil {
		return err
	}
	if len(cards) == 0 {
		slog.Info(cli.FormatSuccess("All card values are current"))
		return nil
	}

	client, err := market.NewEbayClient(appConfig.EbayConfig(), logger)
	if err != nil {
		return err
	}

	workers, _ := cmd.Flags().GetInt("workers")
	if workers <= 0 {
		workers = appConfig.Market.Workers
	}
	refresher := market.NewRefresher(client, store, workers, logger)

	bar := cli.NewProgressBar(os.Stderr, len(cards), "Refreshing values...")
	results := refresher.RefreshAll(ctx, cards, func(market.RefreshResult) {
		_ = bar.Add(1)
	})

	valued, failed := 0, 0
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
		case r.Valuation.Price.IsSome():
			valued++
		}
	}
	slog.Info(cli.FormatInfo("Market refresh finished"),
		"cards", len(cards), "valued", valued, "no_comps", len(cards)-valued-failed, "failed", failed)

	if handler.WasInterrupted() {
		return ctx.Err()
	}
	return nil
}

// cardsToValue picks the cards named by ID, or all or only stale cards.
func cardsToValue(cmd *cobra.Command, store service.CardStore, args []string, all bool) ([]model.Card, error) {
	ctx := cmd.Context()
	if len(args) > 0 {
		cards := make([]model.Card, 0, len(args))
		for _, arg := range args {
			id, err := parseCardID(arg)
			if err != nil {
				return nil, err
			}
			card, err := store.GetCard(ctx, id)
			if err != nil {
				return nil, err
			}
			cards = append(cards, *card)
		}
		return cards, nil
	}

	filter := service.CardFilter{}
	if !all {
		staleBefore := time.Now().Add(-appConfig.Market.StaleAfter)
		filter.StaleBefore = &staleBefore
	}
	return store.ListCards(ctx, filter)
}
