package market

import (
	"math"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/Veraticus/collectorstream/internal/model"
)

// Source is recorded on every valuation.
const Source = "ebay_sold"

// outlierMinSamples is the smallest comp set outlier removal runs on.
const outlierMinSamples = 5

var (
	lotMarkers     = []string{"lot", "bundle", "set of"}
	reprintMarkers = []string{"reprint", "reproduction", "tribute"}
	gradedMarkers  = []string{"psa", "bgs", "beckett", "cgc", "sgc"}
)

// FilterComps extracts usable sold prices. Lots and reprints are always
// dropped; slabbed listings are dropped unless graded is set. With at least
// five prices, anything more than two standard deviations from the median is
// removed unless that would remove everything.
func FilterComps(items []ItemSummary, graded bool) []float64 {
	prices := make([]float64, 0, len(items))
	for _, item := range items {
		title := strings.ToLower(item.Title)
		if containsAny(title, lotMarkers) || containsAny(title, reprintMarkers) {
			continue
		}
		if !graded && containsAny(title, gradedMarkers) {
			continue
		}
		if price, ok := item.Price.Amount(); ok && price > 0 {
			prices = append(prices, price)
		}
	}

	if len(prices) < outlierMinSamples {
		return prices
	}

	median := Median(prices)
	stdDev := stat.StdDev(prices, nil)
	kept := make([]float64, 0, len(prices))
	for _, p := range prices {
		if math.Abs(p-median) <= 2*stdDev {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return prices
	}
	return kept
}

// Estimate turns filtered prices into a valuation. The price is the median;
// the range is the 25th to 75th percentile.
func Estimate(prices []float64, now time.Time) model.Valuation {
	v := model.Valuation{
		FetchedAt:  now,
		Source:     Source,
		SampleSize: len(prices),
	}
	if len(prices) == 0 {
		return v
	}

	sorted := append([]float64(nil), prices...)
	sort.Float64s(sorted)

	v.Price = model.Some(roundCents(Median(sorted)))
	v.Low = model.Some(roundCents(stat.Quantile(0.25, stat.Empirical, sorted, nil)))
	v.High = model.Some(roundCents(stat.Quantile(0.75, stat.Empirical, sorted, nil)))
	v.Confidence = sampleConfidence(len(prices))
	return v
}

// Median returns the middle value, averaging the two middle values of an
// even-length sample. It returns 0 for an empty slice.
func Median(prices []float64) float64 {
	n := len(prices)
	if n == 0 {
		return 0
	}
	sorted := prices
	if !sort.Float64sAreSorted(sorted) {
		sorted = append([]float64(nil), prices...)
		sort.Float64s(sorted)
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return stat.Mean(sorted[n/2-1:n/2+1], nil)
}

func sampleConfidence(n int) float64 {
	switch {
	case n >= 20:
		return 0.9
	case n >= 10:
		return 0.75
	case n >= 5:
		return 0.6
	default:
		return 0.4
	}
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
