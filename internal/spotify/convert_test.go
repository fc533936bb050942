package spotify

import (
	"reflect"
	"testing"

	"github.com/zmb3/spotify/v2"
)

func TestConvertPlaylist(t *testing.T) {
	tests := []struct {
		name     string
		playlist spotify.SimplePlaylist
		expected PlaylistEntry
	}{
		{
			name: "public playlist",
			playlist: spotify.SimplePlaylist{
				ID:       "pl1",
				Name:     "Morning Mix",
				Owner:    spotify.User{ID: "alice"},
				IsPublic: true,
			},
			expected: PlaylistEntry{ID: "pl1", Name: "Morning Mix", Owner: "alice", Public: true},
		},
		{
			name: "collaborative playlist",
			playlist: spotify.SimplePlaylist{
				ID:            "pl2",
				Name:          "Road Trip",
				Owner:         spotify.User{ID: "bob"},
				Collaborative: true,
			},
			expected: PlaylistEntry{ID: "pl2", Name: "Road Trip", Owner: "bob", Collaborative: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := convertPlaylist(tt.playlist)
			if got != tt.expected {
				t.Errorf("convertPlaylist() = %+v, want %+v", got, tt.expected)
			}
		})
	}
}

func TestAppendTracks(t *testing.T) {
	playlistTrack := func(id, name string, isLocal bool, artists ...string) spotify.PlaylistTrack {
		simpleArtists := make([]spotify.SimpleArtist, len(artists))
		for i, a := range artists {
			simpleArtists[i] = spotify.SimpleArtist{Name: a}
		}
		return spotify.PlaylistTrack{
			IsLocal: isLocal,
			Track: spotify.FullTrack{
				SimpleTrack: spotify.SimpleTrack{
					ID:      spotify.ID(id),
					Name:    name,
					Artists: simpleArtists,
				},
				Album: spotify.SimpleAlbum{Name: "Album"},
			},
		}
	}

	items := []spotify.PlaylistTrack{
		playlistTrack("t1", "First", false, "Artist A", "Artist B"),
		playlistTrack("", "Home Recording", true),
		playlistTrack("t2", "Second", false, "Artist C"),
	}

	got := appendTracks(nil, items)

	want := []TrackEntry{
		{ID: "t1", Name: "First", Artists: []string{"Artist A", "Artist B"}, Album: "Album"},
		{ID: "t2", Name: "Second", Artists: []string{"Artist C"}, Album: "Album"},
	}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("appendTracks() = %+v, want %+v", got, want)
	}
}

func TestAppendTracksPreservesArtistOrder(t *testing.T) {
	items := []spotify.PlaylistTrack{
		{
			Track: spotify.FullTrack{
				SimpleTrack: spotify.SimpleTrack{
					ID:   "t1",
					Name: "Collab",
					Artists: []spotify.SimpleArtist{
						{Name: "Zeta"},
						{Name: "Alpha"},
						{Name: "Mid"},
					},
				},
			},
		},
	}

	got := appendTracks(nil, items)
	want := []string{"Zeta", "Alpha", "Mid"}
	if !reflect.DeepEqual(got[0].Artists, want) {
		t.Errorf("Artists = %v, want %v (credit order, not sorted)", got[0].Artists, want)
	}
}

func TestConvertFeatures(t *testing.T) {
	if convertFeatures(nil) != nil {
		t.Fatal("convertFeatures(nil) should stay nil")
	}

	got := convertFeatures(&spotify.AudioFeatures{
		ID:               "t1",
		Acousticness:     0.5,
		Danceability:     0.7,
		Energy:           0.8,
		Instrumentalness: 0.1,
		Key:              9,
		Liveness:         0.2,
		Loudness:         -5.5,
		Mode:             1,
		Speechiness:      0.05,
		Tempo:            120.5,
		TimeSignature:    4,
		Valence:          0.6,
	})

	if got.ID != "t1" {
		t.Errorf("ID = %q, want %q", got.ID, "t1")
	}
	if got.Key != 9 || got.Mode != 1 || got.TimeSignature != 4 {
		t.Errorf("integer fields = (%d, %d, %d), want (9, 1, 4)", got.Key, got.Mode, got.TimeSignature)
	}
	if got.Tempo != float64(float32(120.5)) {
		t.Errorf("Tempo = %v, want %v", got.Tempo, float64(float32(120.5)))
	}
	if got.Loudness >= 0 {
		t.Errorf("Loudness = %v, want negative", got.Loudness)
	}
}
