// Package history orders, summarises and exports prediction records.
package history

import (
	"sort"

	"github.com/montanaflynn/stats"

	"pubdetect/internal/models"
)

// Order returns the records newest first. When every record carries a
// timestamp they are sorted by it; otherwise the backend's order is
// assumed to be oldest first and simply reversed.
func Order(records []models.Prediction) []models.Prediction {
	out := make([]models.Prediction, len(records))
	copy(out, records)

	for _, r := range out {
		if r.Timestamp == nil {
			reverse(out)
			return out
		}
	}

	// Reversing first keeps later entries ahead on equal timestamps.
	reverse(out)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp.Time)
	})
	return out
}

func reverse(records []models.Prediction) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
}

type Summary struct {
	Total            int     `json:"total"`
	Pub              int     `json:"pub"`
	NoPub            int     `json:"no_pub"`
	MeanConfidence   float64 `json:"mean_confidence"`
	MedianConfidence float64 `json:"median_confidence"`
}

// PubShare is the percentage of PUB records, 0 for an empty history.
func (s Summary) PubShare() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Pub) * 100 / float64(s.Total)
}

func Summarize(records []models.Prediction) Summary {
	summary := Summary{Total: len(records)}
	if len(records) == 0 {
		return summary
	}

	confidences := make(stats.Float64Data, 0, len(records))
	for _, r := range records {
		switch r.Label {
		case models.LabelPub:
			summary.Pub++
		case models.LabelNoPub:
			summary.NoPub++
		}
		confidences = append(confidences, r.Confidence)
	}

	if mean, err := confidences.Mean(); err == nil {
		summary.MeanConfidence, _ = stats.Round(mean, 1)
	}
	if median, err := confidences.Median(); err == nil {
		summary.MedianConfidence, _ = stats.Round(median, 1)
	}
	return summary
}
