package spotify

import "github.com/zmb3/spotify/v2"

// convertPlaylist converts one playlist listing entry.
func convertPlaylist(pl spotify.SimplePlaylist) PlaylistEntry {
	return PlaylistEntry{
		ID:            pl.ID.String(),
		Name:          pl.Name,
		Owner:         pl.Owner.ID,
		Public:        pl.IsPublic,
		Collaborative: pl.Collaborative,
	}
}

// appendTracks converts one page of playlist tracks onto dst, skipping
// local files. Local uploads have no stable catalog ID and are never
// represented as rows.
func appendTracks(dst []TrackEntry, items []spotify.PlaylistTrack) []TrackEntry {
	for _, item := range items {
		if item.IsLocal || item.Track.ID == "" {
			continue
		}

		artists := make([]string, len(item.Track.Artists))
		for i, a := range item.Track.Artists {
			artists[i] = a.Name
		}

		dst = append(dst, TrackEntry{
			ID:      item.Track.ID.String(),
			Name:    item.Track.Name,
			Artists: artists,
			Album:   item.Track.Album.Name,
		})
	}
	return dst
}

// convertFeatures converts one audio-feature entry; nil stays nil.
func convertFeatures(f *spotify.AudioFeatures) *AudioFeatures {
	if f == nil {
		return nil
	}
	return &AudioFeatures{
		ID:               f.ID.String(),
		Acousticness:     float64(f.Acousticness),
		Danceability:     float64(f.Danceability),
		Energy:           float64(f.Energy),
		Instrumentalness: float64(f.Instrumentalness),
		Key:              int(f.Key),
		Liveness:         float64(f.Liveness),
		Loudness:         float64(f.Loudness),
		Mode:             int(f.Mode),
		Speechiness:      float64(f.Speechiness),
		Tempo:            float64(f.Tempo),
		TimeSignature:    int(f.TimeSignature),
		Valence:          float64(f.Valence),
	}
}
