package main

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Veraticus/collectorstream/internal/cli"
	"github.com/Veraticus/collectorstream/internal/model"
	"github.com/Veraticus/collectorstream/internal/service"
)

func cardsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cards",
		Short: "Browse the collection",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored cards, newest first",
		RunE:  runCardsList,
	}
	list.Flags().String("sport", "", "only cards of this sport")
	list.Flags().Int("limit", 50, "maximum cards to show (0 for all)")

	show := &cobra.Command{
		Use:   "show ID",
		Short: "Show one card in detail",
		Args:  cobra.ExactArgs(1),
		RunE:  runCardsShow,
	}

	cmd.AddCommand(list, show)
	return cmd
}

func runCardsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	filter := service.CardFilter{}
	filter.Limit, _ = cmd.Flags().GetInt("limit")
	if raw, _ := cmd.Flags().GetString("sport"); raw != "" {
		sport, ok := model.ParseSport(raw)
		if !ok {
			return fmt.Errorf("unknown sport %q", raw)
		}
		filter.Sport = &sport
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	cards, err := store.ListCards(ctx, filter)
	if err != nil {
		return err
	}
	if len(cards) == 0 {
		slog.Info(cli.FormatInfo("No cards yet. Run 'cardscan scan' to add some."))
		return nil
	}

	total, err := store.CountCards(ctx)
	if err != nil {
		return err
	}

	fmt.Println(cli.FormatTitle(fmt.Sprintf("%d of %d cards", len(cards), total)))
	fmt.Println(cli.RenderTable([]string{"ID", "Card", "Sport", "Condition", "Market"}, cardRows(cards)))
	return nil
}

func cardRows(cards []model.Card) [][]string {
	rows := make([][]string, 0, len(cards))
	for i := range cards {
		card := &cards[i]
		market := cli.SubtleStyle.Render("not valued")
		if card.Market != nil {
			price, ok := card.Market.Price.Get()
			market = cli.FormatMoney(price, ok)
		}
		rows = append(rows, []string{
			strconv.FormatInt(card.ID, 10),
			card.Title(),
			string(card.Sport.OrElse("-")),
			string(card.Condition.OrElse("-")),
			market,
		})
	}
	return rows
}

func runCardsShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := parseCardID(args[0])
	if err != nil {
		return err
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	card, err := store.GetCard(ctx, id)
	if err != nil {
		return err
	}

	fmt.Println(cli.RenderBox(card.Title(), cli.RenderTable([]string{"Field", "Value"}, cardDetail(card))))
	return nil
}

func cardDetail(card *model.Card) [][]string {
	rows := [][]string{
		{"Player", card.PlayerName.OrElse("-")},
		{"Team", card.Team.OrElse("-")},
		{"Year", card.Year.OrElse("-")},
		{"Set", card.Set.OrElse("-")},
		{"Number", card.CardNumber.OrElse("-")},
		{"Manufacturer", card.Manufacturer.OrElse("-")},
		{"Sport", string(card.Sport.OrElse("-"))},
		{"Condition", string(card.Condition.OrElse("-"))},
	}
	if !card.Grading.Empty() {
		rows = append(rows, []string{"Grading", fmt.Sprintf("%s %s", card.Grading.Company.OrElse("?"), card.Grading.Grade.OrElse("?"))})
	}
	if v, ok := card.PurchasePrice.Get(); ok {
		rows = append(rows, []string{"Paid", cli.FormatMoney(v, true)})
	}
	if m := card.Market; m != nil {
		price, ok := m.Price.Get()
		rows = append(rows,
			[]string{"Market", cli.FormatMoney(price, ok)},
			[]string{"Comps", strconv.Itoa(m.SampleSize)},
			[]string{"Valued", m.FetchedAt.Local().Format("2006-01-02")},
		)
	}
	rows = append(rows,
		[]string{"Identified by", card.Provider.OrElse("manual")},
		[]string{"Front image", card.FrontImageRef},
		[]string{"Added", card.CreatedAt.Local().Format("2006-01-02 15:04")},
	)
	return rows
}
