package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/collectorstream/internal/capture"
	"github.com/Veraticus/collectorstream/internal/model"
)

// View renders the UI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	sections := []string{
		m.renderHeader(),
		m.renderStep(),
	}
	if body := m.renderBody(); body != "" {
		sections = append(sections, m.theme.RoundedBox.Width(min(m.width-2, 72)).Render(body))
	}
	if status := m.renderStatus(); status != "" {
		sections = append(sections, status)
	}
	sections = append(sections, m.help.View(m.keymap.forState(m.snapshot.State)))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader() string {
	title := m.theme.Title.Render("Card Scanner")
	if n := len(m.saved); n > 0 {
		title += m.theme.Subtitle.Render(fmt.Sprintf("  %d saved this session", n))
	}
	return title
}

// renderStep describes what the user should do next.
func (m Model) renderStep() string {
	switch m.snapshot.State {
	case capture.StateReady:
		return m.theme.Normal.Render("Press Enter to scan a card.")
	case capture.StateScanningFront:
		return m.theme.Normal.Render("Frame the FRONT of the card and press Space.")
	case capture.StateReviewFront:
		return m.theme.Normal.Render("Front captured. Use it (y) or retake (r)?")
	case capture.StateScanningBack:
		return m.theme.Normal.Render("Flip the card. Frame the BACK and press Space.")
	case capture.StateReviewBack:
		return m.theme.Normal.Render("Back captured. Use it (y) or retake (r)?")
	case capture.StateProcessing:
		return m.spinner.View() + m.theme.StatusPending.Render(" Identifying card...")
	case capture.StateIdentified:
		return m.theme.StatusSuccess.Render("Identified. Press s to save.")
	case capture.StateError:
		return m.theme.StatusError.Render("Scan failed. Press Esc to start over.")
	default:
		return ""
	}
}

func (m Model) renderBody() string {
	switch s := m.snapshot; s.State {
	case capture.StateScanningFront, capture.StateScanningBack:
		return m.renderPreview()
	case capture.StateReviewFront:
		return m.renderSide(s.Front)
	case capture.StateReviewBack:
		return m.renderSide(s.Back)
	case capture.StateIdentified:
		return m.renderResult(s.Result)
	case capture.StateError:
		if s.Err != nil {
			return m.theme.StatusError.Render(s.Err.Error())
		}
	}
	return ""
}

func (m Model) renderPreview() string {
	if m.preview == nil {
		return m.theme.StatusPending.Render("waiting for preview")
	}
	return m.renderQuality("Focus", *m.preview)
}

func (m Model) renderQuality(label string, q model.QualityScore) string {
	style := m.theme.StatusWarning
	if q.Accepted {
		style = m.theme.StatusSuccess
	}
	return m.theme.Label.Render(label) + style.Render(fmt.Sprintf("%s (%.0f)", q.Rating, q.Variance))
}

func (m Model) renderSide(side *model.CapturedSide) string {
	if side == nil {
		return ""
	}
	lines := []string{m.renderQuality("Sharpness", side.Quality)}

	bounds := side.Image.Bounds()
	crop := "guide box"
	if side.Cropped && side.Boundary != nil {
		crop = fmt.Sprintf("detected (%.0f%%)", side.Boundary.Confidence*100)
	} else if !side.Cropped {
		crop = "full frame"
	}
	lines = append(lines,
		m.theme.Label.Render("Crop")+m.theme.Normal.Render(crop),
		m.theme.Label.Render("Size")+m.theme.Normal.Render(fmt.Sprintf("%dx%d", bounds.Dx(), bounds.Dy())),
	)
	return strings.Join(lines, "\n")
}

func (m Model) renderResult(result *model.IdentificationResult) string {
	if result == nil || result.Chosen == nil {
		return m.theme.StatusWarning.Render("No provider identified this card. Saving keeps the photos for manual entry.")
	}

	chosen := result.Chosen
	low := make(map[model.Field]bool, len(result.LowConfidenceFields))
	for _, f := range result.LowConfidenceFields {
		low[f] = true
	}

	lines := []string{
		m.theme.Label.Render("Provider") + m.theme.Bold.Render(chosen.Provider) +
			m.theme.Subtitle.Render(fmt.Sprintf("  %.0f%% confident", chosen.Confidence*100)),
	}
	fields := chosen.Fields
	for _, f := range model.AllFields {
		value := fieldValue(fields, f)
		style := m.theme.Normal
		if low[f] {
			style = m.theme.StatusWarning
			value += "  ?"
		}
		lines = append(lines, m.theme.Label.Render(fieldLabel(f))+style.Render(value))
	}
	if result.NeedsVerification {
		lines = append(lines, "", m.theme.StatusWarning.Render("Some fields need a second look before saving."))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderStatus() string {
	switch {
	case m.lastError != nil:
		return m.theme.StatusError.Render(errorText(m.lastError))
	case m.snapshot.Message != "":
		return m.theme.StatusWarning.Render(m.snapshot.Message)
	}
	return ""
}

func fieldLabel(f model.Field) string {
	switch f {
	case model.FieldPlayerName:
		return "Player"
	case model.FieldCardNumber:
		return "Number"
	case model.FieldEstimatedValue:
		return "Est. value"
	default:
		s := string(f)
		return strings.ToUpper(s[:1]) + s[1:]
	}
}

func fieldValue(c *model.CardFields, f model.Field) string {
	if c == nil || !c.Has(f) {
		return "-"
	}
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
		return "#" + strings.TrimPrefix(c.CardNumber.String(), "#")
	case model.FieldManufacturer:
		return c.Manufacturer.String()
	case model.FieldSport:
		return c.Sport.String()
	case model.FieldGrading:
		parts := []string{c.Grading.Company.OrElse("?"), c.Grading.Grade.OrElse("?")}
		return strings.Join(parts, " ")
	case model.FieldEstimatedValue:
		v, _ := c.EstimatedValue.Get()
		return fmt.Sprintf("$%.2f", v)
	}
	return "-"
}
