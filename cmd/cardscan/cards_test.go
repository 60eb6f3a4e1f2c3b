package main

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/collectorstream/internal/common"
	"github.com/Veraticus/collectorstream/internal/model"
	"github.com/Veraticus/collectorstream/internal/testutil"
)

func TestCardRows(t *testing.T) {
	cards := []model.Card{
		{
			ID: 7,
			CardUpload: model.CardUpload{
				Year:       model.Some("1989"),
				Set:        model.Some("Upper Deck"),
				PlayerName: model.Some("Ken Griffey Jr."),
				CardNumber: model.Some("1"),
				Sport:      model.Some(model.SportBaseball),
			},
			Market: &model.Valuation{Price: model.Some(412.5)},
		},
		{ID: 8},
	}

	rows := cardRows(cards)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"7", "1989 Upper Deck Ken Griffey Jr. #1", "baseball", "-"}, rows[0][:4])
	assert.Contains(t, rows[0][4], "412.50")
	assert.Equal(t, "card 8", rows[1][1])
	assert.Contains(t, rows[1][4], "not valued")
}

func TestCardDetail(t *testing.T) {
	card := &model.Card{
		ID: 3,
		CardUpload: model.CardUpload{
			PlayerName:    model.Some("Wayne Gretzky"),
			Sport:         model.Some(model.SportHockey),
			Grading:       &model.Grading{Company: model.Some("PSA"), Grade: model.Some("9")},
			PurchasePrice: model.Some(100.0),
			FrontImageRef: "cards/front.jpg",
		},
		CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}

	detail := map[string]string{}
	for _, row := range cardDetail(card) {
		detail[row[0]] = row[1]
	}

	assert.Equal(t, "Wayne Gretzky", detail["Player"])
	assert.Equal(t, "-", detail["Team"])
	assert.Equal(t, "hockey", detail["Sport"])
	assert.Equal(t, "PSA 9", detail["Grading"])
	assert.Contains(t, detail["Paid"], "100.00")
	assert.Equal(t, "manual", detail["Identified by"])
	assert.Equal(t, "cards/front.jpg", detail["Front image"])
	assert.NotContains(t, detail, "Market")
}

func TestCardsToValue(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t, testutil.GriffeyRookie(), testutil.GradedGretzky(), testutil.BlankCard())
	store := db.Storage
	fresh, stale, never := db.IDs[0], db.IDs[1], db.IDs[2]

	db.MustValue(0, 120, time.Now())
	db.MustValue(1, 800, time.Now().Add(-30*24*time.Hour))

	saved := appConfig
	defer func() { appConfig = saved }()
	appConfig.Market.StaleAfter = 7 * 24 * time.Hour

	cmd := &cobra.Command{}
	cmd.SetContext(ctx)

	ids := func(cards []model.Card) []int64 {
		out := make([]int64, 0, len(cards))
		for _, c := range cards {
			out = append(out, c.ID)
		}
		return out
	}

	t.Run("stale only", func(t *testing.T) {
		cards, err := cardsToValue(cmd, store, nil, false)
		require.NoError(t, err)
		assert.ElementsMatch(t, []int64{stale, never}, ids(cards))
	})

	t.Run("all", func(t *testing.T) {
		cards, err := cardsToValue(cmd, store, nil, true)
		require.NoError(t, err)
		assert.ElementsMatch(t, []int64{fresh, stale, never}, ids(cards))
	})

	t.Run("by id", func(t *testing.T) {
		cards, err := cardsToValue(cmd, store, []string{strconv.FormatInt(fresh, 10)}, false)
		require.NoError(t, err)
		assert.Equal(t, []int64{fresh}, ids(cards))
	})

	t.Run("bad id", func(t *testing.T) {
		_, err := cardsToValue(cmd, store, []string{"abc"}, false)
		assert.EqualError(t, err, `invalid card ID "abc"`)
		var userErr *common.UserError
		assert.ErrorAs(t, err, &userErr)
	})

	t.Run("missing card", func(t *testing.T) {
		_, err := cardsToValue(cmd, store, []string{"99"}, false)
		assert.ErrorIs(t, err, common.ErrNotFound)
	})
}
