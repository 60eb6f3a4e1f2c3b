package capture

import "github.com/Veraticus/collectorstream/internal/model"

// Edits are user corrections applied over the identified fields. Set values
// win; None keeps the identified value. Fields listed in Clear are reset to
// unknown before set values are applied.
type Edits struct {
	Grading        *model.Grading
	Clear          []model.Field
	PlayerName     model.Optional[string]
	Team           model.Optional[string]
	Year           model.Optional[string]
	Set            model.Optional[string]
	CardNumber     model.Optional[string]
	Manufacturer   model.Optional[string]
	Sport          model.Optional[model.Sport]
	Condition      model.Optional[model.Condition]
	EstimatedValue model.Optional[float64]
	PurchasePrice  model.Optional[float64]
	Notes          model.Optional[string]
}

// BuildUpload merges an identification result and user edits into the
// record handed to the card store. Image references are filled by the
// caller.
func BuildUpload(result *model.IdentificationResult, edits Edits) model.CardUpload {
	var upload model.CardUpload
	if result != nil {
		upload = model.CardUploadFromFields(result.Fields())
		if result.Chosen != nil {
			upload.Provider = model.Some(result.Chosen.Provider)
			upload.Confidence = result.Chosen.Confidence
		}
	}

	for _, f := range edits.Clear {
		clearField(&upload, f)
	}

	override(&upload.PlayerName, edits.PlayerName)
	override(&upload.Team, edits.Team)
	override(&upload.Year, edits.Year)
	override(&upload.Set, edits.Set)
	override(&upload.CardNumber, edits.CardNumber)
	override(&upload.Manufacturer, edits.Manufacturer)
	override(&upload.Condition, edits.Condition)
	override(&upload.EstimatedValue, edits.EstimatedValue)
	override(&upload.PurchasePrice, edits.PurchasePrice)
	override(&upload.Notes, edits.Notes)
	if edits.Sport.IsSome() {
		// A sport picked by hand has no detected provenance.
		upload.Sport = edits.Sport
		upload.SportProvenance = model.None[string]()
	}
	if !edits.Grading.Empty() {
		upload.Grading = edits.Grading
	}
	return upload
}

func override[T any](dst *model.Optional[T], edit model.Optional[T]) {
	if edit.IsSome() {
		*dst = edit
	}
}

func clearField(upload *model.CardUpload, f model.Field) {
	switch f {
	case model.FieldPlayerName:
		upload.PlayerName = model.None[string]()
	case model.FieldTeam:
		upload.Team = model.None[string]()
	case model.FieldYear:
		upload.Year = model.None[string]()
	case model.FieldSet:
		upload.Set = model.None[string]()
	case model.FieldCardNumber:
		upload.CardNumber = model.None[string]()
	case model.FieldManufacturer:
		upload.Manufacturer = model.None[string]()
	case model.FieldSport:
		upload.Sport = model.None[model.Sport]()
		upload.SportProvenance = model.None[string]()
	case model.FieldGrading:
		upload.Grading = nil
	case model.FieldEstimatedValue:
		upload.EstimatedValue = model.None[float64]()
	}
}
