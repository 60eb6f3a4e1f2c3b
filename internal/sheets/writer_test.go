package sheets

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/Veraticus/collectorstream/internal/common"
	"github.com/Veraticus/collectorstream/internal/model"
)

var exportTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testCards() []model.Card {
	return []model.Card{
		{
			ID:        1,
			CreatedAt: exportTime,
			Market: &model.Valuation{
				Price:      model.Some(42.5),
				Low:        model.Some(35.0),
				High:       model.Some(50.0),
				SampleSize: 12,
			},
			CardUpload: model.CardUpload{
				PlayerName:    model.Some("Mike Trout"),
				Year:          model.Some("2011"),
				Set:           model.Some("Topps Update"),
				CardNumber:    model.Some("US175"),
				Sport:         model.Some(model.SportBaseball),
				Grading:       &model.Grading{Company: model.Some("PSA"), Grade: model.Some("10"), CertNumber: model.Some("123")},
				PurchasePrice: model.Some(20.0),
				Provider:      model.Some("openai"),
				Confidence:    0.92,
			},
		},
		{
			ID:        2,
			CreatedAt: exportTime,
			CardUpload: model.CardUpload{
				PlayerName: model.Some("Unknown Prospect"),
				Confidence: 0.4,
			},
		},
	}
}

func TestPrepareCollectionData(t *testing.T) {
	w := newWriter(nil, DefaultConfig(), nil)
	w.now = func() time.Time { return exportTime }

	values := w.prepareCollectionData(testCards())
	require.Len(t, values, 8)

	assert.Equal(t, "Card Collection", values[0][0])
	assert.Equal(t, "Exported May 1, 2024", values[1][0])
	assert.Len(t, values[headerRow], len(columns))
	assert.Equal(t, "Market Value", values[headerRow][firstCurrencyColumn])

	trout := values[headerRow+1]
	assert.Len(t, trout, len(columns))
	assert.Equal(t, int64(1), trout[0])
	assert.Equal(t, "Mike Trout", trout[1])
	assert.Equal(t, "baseball", trout[7])
	assert.Equal(t, "PSA 10 (#123)", trout[9])
	assert.Equal(t, 42.5, trout[10])
	assert.Equal(t, 20.0, trout[13])
	assert.Equal(t, "", trout[14], "unknown values stay blank")
	assert.Equal(t, 12, trout[15])
	assert.Equal(t, "92%", trout[17])
	assert.Equal(t, "2024-05-01", trout[18])

	prospect := values[headerRow+2]
	assert.Len(t, prospect, len(columns))
	assert.Equal(t, "", prospect[10])
	assert.Equal(t, "", prospect[15])

	totals := values[len(values)-1]
	assert.Equal(t, "TOTAL", totals[0])
	assert.Equal(t, "2 cards", totals[1])
	assert.Equal(t, "1 valued", totals[9])
	assert.Equal(t, 42.5, totals[10])
	assert.Equal(t, 20.0, totals[13])
}

func TestGradingLabel(t *testing.T) {
	assert.Empty(t, gradingLabel(nil))
	assert.Empty(t, gradingLabel(&model.Grading{}))
	assert.Equal(t, "BGS 9.5", gradingLabel(&model.Grading{Company: model.Some("BGS"), Grade: model.Some("9.5")}))
	assert.Equal(t, "8", gradingLabel(&model.Grading{Grade: model.Some("8")}))
}

// sheetsAPI is a tiny fake of the endpoints the writer calls.
type sheetsAPI struct {
	written [][]any
	calls   []string
	mu      sync.Mutex
}

func (a *sheetsAPI) respond(req *http.Request) (*http.Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	path := req.URL.Path
	switch {
	case req.Method == http.MethodPost && strings.HasSuffix(path, "/v4/spreadsheets"):
		a.calls = append(a.calls, "create")
		return httpmock.NewJsonResponse(http.StatusOK, map[string]any{"spreadsheetId": "new-sheet"})
	case req.Method == http.MethodGet:
		a.calls = append(a.calls, "get")
		return httpmock.NewJsonResponse(http.StatusOK, map[string]any{"spreadsheetId": "sheet-1"})
	case strings.HasSuffix(path, ":clear"):
		a.calls = append(a.calls, "clear")
		return httpmock.NewJsonResponse(http.StatusOK, map[string]any{})
	case strings.HasSuffix(path, ":batchUpdate"):
		a.calls = append(a.calls, "format")
		return httpmock.NewJsonResponse(http.StatusOK, map[string]any{})
	case req.Method == http.MethodPut:
		a.calls = append(a.calls, "update")
		body, _ := io.ReadAll(req.Body)
		var vr sheets.ValueRange
		if err := json.Unmarshal(body, &vr); err != nil {
			return httpmock.NewStringResponse(http.StatusBadRequest, err.Error()), nil
		}
		for _, row := range vr.Values {
			a.written = append(a.written, row)
		}
		return httpmock.NewJsonResponse(http.StatusOK, map[string]any{"updatedRows": len(vr.Values)})
	}
	return httpmock.NewStringResponse(http.StatusNotFound, "unexpected "+req.Method+" "+path), nil
}

func newTestWriter(t *testing.T, cfg Config) (*Writer, *sheetsAPI) {
	t.Helper()
	api := &sheetsAPI{}
	mock := httpmock.NewMockTransport()
	mock.RegisterNoResponder(api.respond)

	svc, err := sheets.NewService(context.Background(),
		option.WithHTTPClient(&http.Client{Transport: mock}),
		option.WithEndpoint("https://sheets.test/"))
	require.NoError(t, err)

	w := newWriter(svc, cfg, nil)
	w.now = func() time.Time { return exportTime }
	return w, api
}

func TestWriter_WriteCollection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SpreadsheetID = "sheet-1"
	cfg.BatchSize = 3
	w, api := newTestWriter(t, cfg)

	id, err := w.WriteCollection(context.Background(), testCards())
	require.NoError(t, err)
	assert.Equal(t, "sheet-1", id)

	assert.Equal(t, []string{"get", "clear", "update", "update", "update", "format"}, api.calls)
	assert.Len(t, api.written, 8)
}

func TestWriter_CreatesSpreadsheet(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableFormatting = false
	w, api := newTestWriter(t, cfg)

	id, err := w.WriteCollection(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "new-sheet", id)
	assert.Equal(t, []string{"create", "clear", "update"}, api.calls)
}

func TestNewWriter_InvalidConfig(t *testing.T) {
	_, err := NewWriter(context.Background(), Config{BatchSize: 10}, nil)
	assert.ErrorIs(t, err, common.ErrMissingConfig)
}
