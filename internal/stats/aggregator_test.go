package stats

import (
	"context"
	"math"
	"testing"

	"github.com/soundmirror/soundmirror/internal/db"
)

const tolerance = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < tolerance
}

func TestAggregateMeansOverAvailableData(t *testing.T) {
	records := []Record{
		{TrackID: "a", Values: map[string]float64{"danceability": 0.2, "tempo": 100}},
		{TrackID: "b", Values: map[string]float64{"danceability": 0.8}},
	}

	report := Aggregate("Mixed", records, []string{"danceability", "tempo"})

	if !almostEqual(report.Means["danceability"], 0.5) {
		t.Errorf("danceability mean = %v, want 0.5", report.Means["danceability"])
	}
	// Only one track carries tempo; the mean covers available data, the
	// missing value is not padded with zero.
	if !almostEqual(report.Means["tempo"], 100) {
		t.Errorf("tempo mean = %v, want 100", report.Means["tempo"])
	}
	if report.Tracks != 2 {
		t.Errorf("Tracks = %d, want 2", report.Tracks)
	}
}

func TestAggregateOmitsFieldsWithoutSamples(t *testing.T) {
	records := []Record{
		{TrackID: "a", Values: map[string]float64{"energy": 0.9}},
	}

	report := Aggregate("Sparse", records, []string{"energy", "valence"})

	if _, ok := report.Means["valence"]; ok {
		t.Error("valence reported despite no track carrying it")
	}
	if _, ok := report.Means["energy"]; !ok {
		t.Error("energy missing from means")
	}
}

func TestAggregateDropsUnknownFields(t *testing.T) {
	records := []Record{
		{TrackID: "a", Values: map[string]float64{"tempo": 120}},
	}

	report := Aggregate("Strict", records, []string{"tempo", "popularity", "vibes"})

	if len(report.Means) != 1 {
		t.Errorf("means = %v, want only tempo", report.Means)
	}
}

func TestAggregateStdevNeedsTwoSamples(t *testing.T) {
	records := []Record{
		{TrackID: "a", Values: map[string]float64{"tempo": 100, "energy": 0.4}},
		{TrackID: "b", Values: map[string]float64{"energy": 0.6}},
	}

	report := Aggregate("Spread", records, []string{"tempo", "energy"})

	if _, ok := report.Stdevs["tempo"]; ok {
		t.Error("stdev reported for a single-sample field")
	}
	// Sample stdev of {0.4, 0.6} is sqrt(0.02).
	want := math.Sqrt(0.02)
	if got := report.Stdevs["energy"]; !almostEqual(got, want) {
		t.Errorf("energy stdev = %v, want %v", got, want)
	}
}

func TestAggregateDefaultsToAllFields(t *testing.T) {
	records := []Record{
		{TrackID: "a", Values: map[string]float64{"tempo": 100, "key": 5}},
	}

	report := Aggregate("Everything", records, nil)

	if !almostEqual(report.Means["key"], 5) {
		t.Errorf("key mean = %v, want 5", report.Means["key"])
	}
	if len(report.Means) != 2 {
		t.Errorf("means = %v, want tempo and key only", report.Means)
	}
}

func TestAggregateEmptyPlaylist(t *testing.T) {
	report := Aggregate("Empty", nil, nil)

	if report.Tracks != 0 {
		t.Errorf("Tracks = %d, want 0", report.Tracks)
	}
	if len(report.Means) != 0 {
		t.Errorf("means = %v, want empty", report.Means)
	}
	if report.Stdevs != nil {
		t.Errorf("stdevs = %v, want nil", report.Stdevs)
	}
}

type fakeStatsStore struct {
	playlist *db.Playlist
	rows     []db.TrackFeatures
}

func (f *fakeStatsStore) GetPlaylist(context.Context, string) (*db.Playlist, error) {
	return f.playlist, nil
}

func (f *fakeStatsStore) FeaturesForPlaylist(context.Context, string) ([]db.TrackFeatures, error) {
	return f.rows, nil
}

func TestPlaylistReport(t *testing.T) {
	store := &fakeStatsStore{
		playlist: &db.Playlist{SpotifyID: "p1", Name: "Morning Run"},
		rows: []db.TrackFeatures{
			{TrackID: "a", Tempo: 160, Energy: 0.8, Key: 4},
			{TrackID: "b", Tempo: 170, Energy: 0.9, Key: 9},
		},
	}

	report, err := New(store).PlaylistReport(context.Background(), "p1", []string{"tempo", "energy"})
	if err != nil {
		t.Fatalf("PlaylistReport() error = %v", err)
	}

	if report.Playlist != "Morning Run" {
		t.Errorf("Playlist = %q, want %q", report.Playlist, "Morning Run")
	}
	if !almostEqual(report.Means["tempo"], 165) {
		t.Errorf("tempo mean = %v, want 165", report.Means["tempo"])
	}
	if _, ok := report.Means["key"]; ok {
		t.Error("key reported despite not being requested")
	}
	if len(report.Records) != 2 {
		t.Errorf("records = %d, want 2", len(report.Records))
	}
	if report.Records[0].TrackID != "a" {
		t.Errorf("first record = %s, playlist order must be preserved", report.Records[0].TrackID)
	}
}
