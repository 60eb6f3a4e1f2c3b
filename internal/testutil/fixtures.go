package testutil

import "github.com/Veraticus/collectorstream/internal/model"

// GriffeyRookie is a raw baseball card with every field identified.
func GriffeyRookie() model.CardUpload {
	return model.CardUpload{
		PlayerName:      model.Some("Ken Griffey Jr."),
		Team:            model.Some("Seattle Mariners"),
		Year:            model.Some("1989"),
		Set:             model.Some("Upper Deck"),
		CardNumber:      model.Some("1"),
		Manufacturer:    model.Some("Upper Deck"),
		Sport:           model.Some(model.SportBaseball),
		SportProvenance: model.Some("mlb"),
		Condition:       model.Some(model.ConditionNearMint),
		FrontImageRef:   "cards/griffey_front.jpg",
		BackImageRef:    model.Some("cards/griffey_back.jpg"),
		Provider:        model.Some("cardsight"),
		Confidence:      0.94,
	}
}

// GradedGretzky is a slabbed hockey card.
func GradedGretzky() model.CardUpload {
	return model.CardUpload{
		PlayerName:    model.Some("Wayne Gretzky"),
		Year:          model.Some("1979"),
		Set:           model.Some("O-Pee-Chee"),
		CardNumber:    model.Some("18"),
		Sport:         model.Some(model.SportHockey),
		Grading:       &model.Grading{Company: model.Some("PSA"), Grade: model.Some("8"), CertNumber: model.Some("12345678")},
		FrontImageRef: "cards/gretzky_front.jpg",
		Provider:      model.Some("openai"),
		Confidence:    0.81,
	}
}

// BlankCard has only a front image, as saved when no provider matched.
func BlankCard() model.CardUpload {
	return model.CardUpload{FrontImageRef: "cards/unknown_front.jpg"}
}
