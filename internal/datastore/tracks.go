// tracks.go: track queries shared by both database backends
package datastore

import (
	"github.com/soundprint/soundprint/internal/errors"
	"gorm.io/gorm"
)

// InsertTrack stores a new track row.
func (ds *DataStore) InsertTrack(track *Track) error {
	if err := ds.DB.Create(track).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "insert-track").
			Context("track_id", track.ID).
			Build()
	}
	return nil
}

// GetTrack retrieves a track by its ID. A missing row is reported with
// CategoryNotFound so callers can map it to a 404.
func (ds *DataStore) GetTrack(id string) (Track, error) {
	var track Track
	if err := ds.DB.Where("id = ?", id).First(&track).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Track{}, errors.Newf("track %s not found", id).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Context("track_id", id).
				Build()
		}
		return Track{}, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get-track").
			Context("track_id", id).
			Build()
	}
	return track, nil
}

// GetTrackIDByHash returns the ID of the track with the given SHA-256 file
// hash, or an empty string when no such track exists.
func (ds *DataStore) GetTrackIDByHash(hash string) (string, error) {
	var track Track
	err := ds.DB.Select("id").Where("file_hash_sha256 = ?", hash).First(&track).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get-track-by-hash").
			Build()
	}
	return track.ID, nil
}

// TracksByIDs fetches the given tracks in one query and returns them keyed
// by ID. IDs without a row are simply absent from the map, deleted tracks
// drop out of search results this way.
func (ds *DataStore) TracksByIDs(ids []string) (map[string]Track, error) {
	result := make(map[string]Track, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var tracks []Track
	if err := ds.DB.Where("id IN ?", ids).Find(&tracks).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "tracks-by-ids").
			Context("id_count", len(ids)).
			Build()
	}

	for i := range tracks {
		result[tracks[i].ID] = tracks[i]
	}
	return result, nil
}

// ChromaprintCandidates returns tracks with a stored fingerprint whose
// fingerprinted duration is within tolerance of durationSec. Tolerance is
// a fraction, 0.10 selects tracks within ten percent of the given duration.
func (ds *DataStore) ChromaprintCandidates(durationSec, tolerance float64) ([]Track, error) {
	var tracks []Track
	minDur := durationSec * (1 - tolerance)
	maxDur := durationSec * (1 + tolerance)

	err := ds.DB.
		Where("chromaprint IS NOT NULL AND chromaprint_duration IS NOT NULL").
		Where("chromaprint_duration BETWEEN ? AND ?", minDur, maxDur).
		Find(&tracks).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "chromaprint-candidates").
			Build()
	}
	return tracks, nil
}

// SearchTracks returns a page of tracks ordered by most recently ingested,
// together with the total number of rows matching the query. An empty query
// lists everything.
func (ds *DataStore) SearchTracks(query string, limit, offset int) ([]Track, int64, error) {
	base := ds.DB.Model(&Track{})
	if query != "" {
		like := "%" + query + "%"
		base = base.Where("title LIKE ? OR artist LIKE ? OR album LIKE ?", like, like, like)
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "count-tracks").
			Build()
	}

	var tracks []Track
	err := base.
		Order("ingested_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&tracks).Error
	if err != nil {
		return nil, 0, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "search-tracks").
			Build()
	}

	return tracks, total, nil
}

// DeleteTrack removes a track row. A missing row is reported with
// CategoryNotFound.
func (ds *DataStore) DeleteTrack(id string) error {
	result := ds.DB.Where("id = ?", id).Delete(&Track{})
	if result.Error != nil {
		return errors.New(result.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "delete-track").
			Context("track_id", id).
			Build()
	}
	if result.RowsAffected == 0 {
		return errors.Newf("track %s not found", id).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Context("track_id", id).
			Build()
	}
	return nil
}

// CountTracks returns the total number of tracks in the store.
func (ds *DataStore) CountTracks() (int64, error) {
	var count int64
	if err := ds.DB.Model(&Track{}).Count(&count).Error; err != nil {
		return 0, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "count-tracks").
			Build()
	}
	return count, nil
}
