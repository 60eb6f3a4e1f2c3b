package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/collectorstream/internal/capture"
	"github.com/Veraticus/collectorstream/internal/cli"
	"github.com/Veraticus/collectorstream/internal/model"
	"github.com/Veraticus/collectorstream/internal/storage"
)

func identifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identify FRONT [BACK]",
		Short: "Identify a card from photos",
		Long: `Run the identification chain on a front photo and an optional back photo
and print every provider attempt. With --save the card is added to the
collection.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runIdentify,
	}

	cmd.Flags().Bool("save", false, "save the identified card to the collection")
	cmd.Flags().Bool("json", false, "print the result as JSON")
	cmd.Flags().String("sport", "", "sport hint for identification")

	return cmd
}

func runIdentify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := slog.Default()

	if sport, _ := cmd.Flags().GetString("sport"); sport != "" {
		appConfig.Capture.SportHint = sport
	}
	hint, err := appConfig.SportHint()
	if err != nil {
		return err
	}

	p, err := newPipeline(logger)
	if err != nil {
		return err
	}
	front, err := p.side(ctx, args[0], model.SideFront)
	if err != nil {
		return err
	}
	var back *model.CapturedSide
	if len(args) == 2 {
		side, err := p.side(ctx, args[1], model.SideBack)
		if err != nil {
			return err
		}
		back = &side
	}

	req := model.IdentificationRequest{SportHint: hint}
	if req.Front, err = p.extractor.Payload(front); err != nil {
		return err
	}
	if back != nil {
		if req.Back, err = p.extractor.Payload(*back); err != nil {
			return err
		}
	}

	chain, err := newChain(nil, logger)
	if err != nil {
		return err
	}
	defer func() { _ = chain.Close() }()

	result := chain.Identify(ctx, req)
	if err := ctx.Err(); err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resultJSONOf(&result)); err != nil {
			return err
		}
	} else {
		fmt.Println(renderResult(&result))
	}

	if save, _ := cmd.Flags().GetBool("save"); !save {
		return nil
	}
	return saveIdentified(cmd, &result, req)
}

func saveIdentified(cmd *cobra.Command, result *model.IdentificationResult, req model.IdentificationRequest) error {
	ctx := cmd.Context()
	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	images, err := storage.NewImageStore(appConfig.Storage.ImageDir)
	if err != nil {
		return err
	}

	upload := capture.BuildUpload(result, capture.Edits{})
	if upload.FrontImageRef, err = images.SaveImage(ctx, model.SideFront, req.Front); err != nil {
		return err
	}
	if req.HasBack() {
		ref, err := images.SaveImage(ctx, model.SideBack, req.Back)
		if err != nil {
			return err
		}
		upload.BackImageRef = model.Some(ref)
	}

	id, err := store.SaveCard(ctx, upload)
	if err != nil {
		return err
	}
	slog.Info(cli.FormatSuccess("Card saved"), "id", id)
	return nil
}

// renderResult prints the chosen fields and the attempt log.
func renderResult(result *model.IdentificationResult) string {
	var b strings.Builder

	if result.Chosen == nil {
		b.WriteString(cli.FormatWarning("No provider identified this card") + "\n")
	} else {
		chosen := result.Chosen
		title := fmt.Sprintf("Identified by %s (%.0f%%)", chosen.Provider, chosen.Confidence*100)
		low := map[model.Field]bool{}
		for _, f := range result.LowConfidenceFields {
			low[f] = true
		}

		var rows [][]string
		for _, f := range model.AllFields {
			if !chosen.Fields.Has(f) {
				continue
			}
			mark := ""
			if low[f] {
				mark = cli.StyleWarning("check")
			}
			rows = append(rows, []string{string(f), fieldText(chosen.Fields, f), mark})
		}
		b.WriteString(cli.RenderBox(title, cli.RenderTable([]string{"Field", "Value", ""}, rows)) + "\n")
		if result.NeedsVerification {
			b.WriteString(cli.FormatWarning("Some fields are below the confidence threshold") + "\n")
		}
	}

	var rows [][]string
	for _, a := range result.Attempts {
		outcome := cli.StyleSuccess("ok")
		if a.Err != nil {
			outcome = cli.StyleError(a.Err.Error())
		}
		rows = append(rows, []string{
			a.Provider,
			fmt.Sprintf("%.2f", a.Confidence),
			a.Duration.Round(time.Millisecond).String(),
			outcome,
		})
	}
	b.WriteString(cli.RenderTable([]string{"Provider", "Confidence", "Time", "Outcome"}, rows))
	return b.String()
}

func fieldText(c *model.CardFields, f model.Field) string {
	switch f {
	case model.FieldPlayerName:
		return c.PlayerName.String()
	case model.FieldTeam:
		return c.Team.String()
	case model.FieldYear:
		return c.Year.String()
	case model.FieldSet:
		return c.Set.String()
	case model.FieldCardNumber:
		return c.CardNumber.String()
	case model.FieldManufacturer:
		return c.Manufacturer.String()
	case model.FieldSport:
		if p, ok := c.SportProvenance.Get(); ok {
			return fmt.Sprintf("%s (%s)", c.Sport, p)
		}
		return c.Sport.String()
	case model.FieldGrading:
		return fmt.Sprintf("%s %s", c.Grading.Company.OrElse("?"), c.Grading.Grade.OrElse("?"))
	case model.FieldEstimatedValue:
		v, _ := c.EstimatedValue.Get()
		return fmt.Sprintf("$%.2f", v)
	}
	return ""
}

type attemptJSON struct {
	Fields     *model.CardFields `json:"fields,omitempty"`
	Provider   string            `json:"provider"`
	Error      string            `json:"error,omitempty"`
	Confidence float64           `json:"confidence"`
	DurationMS int64             `json:"durationMs"`
}

type resultJSON struct {
	Chosen              *attemptJSON  `json:"chosen,omitempty"`
	Attempts            []attemptJSON `json:"attempts"`
	LowConfidenceFields []model.Field `json:"lowConfidenceFields"`
	NeedsVerification   bool          `json:"needsVerification"`
	Exhausted           bool          `json:"exhausted"`
}

func newAttemptJSON(a *model.ProviderAttempt) attemptJSON {
	out := attemptJSON{
		Fields:     a.Fields,
		Provider:   a.Provider,
		Confidence: a.Confidence,
		DurationMS: a.Duration.Milliseconds(),
	}
	if a.Err != nil {
		out.Error = a.Err.Error()
	}
	return out
}

func resultJSONOf(r *model.IdentificationResult) resultJSON {
	out := resultJSON{
		Attempts:            make([]attemptJSON, 0, len(r.Attempts)),
		LowConfidenceFields: r.LowConfidenceFields,
		NeedsVerification:   r.NeedsVerification,
		Exhausted:           r.Exhausted,
	}
	for i := range r.Attempts {
		out.Attempts = append(out.Attempts, newAttemptJSON(&r.Attempts[i]))
	}
	if r.Chosen != nil {
		chosen := newAttemptJSON(r.Chosen)
		out.Chosen = &chosen
	}
	return out
}
