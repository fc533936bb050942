package stats

import "math"

// FeatureFields lists the audio feature names the aggregator knows about.
// Requests naming anything else have those names silently dropped.
var FeatureFields = []string{
	"acousticness",
	"danceability",
	"energy",
	"instrumentalness",
	"key",
	"liveness",
	"loudness",
	"mode",
	"speechiness",
	"tempo",
	"time_signature",
	"valence",
}

var knownFields = func() map[string]bool {
	m := make(map[string]bool, len(FeatureFields))
	for _, f := range FeatureFields {
		m[f] = true
	}
	return m
}()

// Record is one track's feature values, keyed by field name. A field a
// track has no value for is simply absent from the map.
type Record struct {
	TrackID string             `json:"track_id"`
	Values  map[string]float64 `json:"features"`
}

// Report is the aggregate over a playlist's feature records.
//
// Means holds the arithmetic mean per field, over only the tracks that
// carry that field. Stdevs holds the sample standard deviation, present
// only for fields with at least two samples. A field no track carries
// appears in neither map.
type Report struct {
	Playlist string             `json:"playlist"`
	Tracks   int                `json:"tracks"`
	Means    map[string]float64 `json:"means"`
	Stdevs   map[string]float64 `json:"stdevs,omitempty"`
	Records  []Record           `json:"records,omitempty"`
}

// Aggregate computes per-field mean and sample standard deviation over
// the given records. fields selects which feature fields to report; nil
// or empty means all known fields. Unknown field names are ignored.
func Aggregate(playlist string, records []Record, fields []string) *Report {
	if len(fields) == 0 {
		fields = FeatureFields
	}

	report := &Report{
		Playlist: playlist,
		Tracks:   len(records),
		Means:    make(map[string]float64),
		Records:  records,
	}

	for _, field := range fields {
		if !knownFields[field] {
			continue
		}

		var sum float64
		var n int
		for _, rec := range records {
			if v, ok := rec.Values[field]; ok {
				sum += v
				n++
			}
		}
		if n == 0 {
			continue
		}
		mean := sum / float64(n)
		report.Means[field] = mean

		if n < 2 {
			continue
		}
		var sq float64
		for _, rec := range records {
			if v, ok := rec.Values[field]; ok {
				d := v - mean
				sq += d * d
			}
		}
		if report.Stdevs == nil {
			report.Stdevs = make(map[string]float64)
		}
		report.Stdevs[field] = math.Sqrt(sq / float64(n-1))
	}

	return report
}
