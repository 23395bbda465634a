// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"time"

	"github.com/mockloc/mockloc/internal/geo"
	"github.com/mockloc/mockloc/internal/model"
	"github.com/mockloc/mockloc/pkg/core"
	"gorm.io/datatypes"
)

// mapToJSON converts a string map to datatypes.JSON for DB storage.
func mapToJSON(m map[string]string) datatypes.JSON {
	if len(m) == 0 {
		return datatypes.JSON("{}")
	}
	data, _ := json.Marshal(m)
	return datatypes.JSON(data)
}

func jsonToMap(j datatypes.JSON) map[string]string {
	if len(j) == 0 {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(j, &m); err != nil || len(m) == 0 {
		return nil
	}
	return m
}

// CoreToFavorite converts a core.Favorite to a GORM model.Favorite.
func CoreToFavorite(f core.Favorite) (model.Favorite, error) {
	pos, err := geo.Point3857From4326(f.Latitude, f.Longitude)
	if err != nil {
		return model.Favorite{}, err
	}
	fav := model.Favorite{
		Name:     f.Name,
		Address:  f.Address,
		Position: pos,
		UseCount: f.UseCount,
	}
	fav.ID = f.ID
	if !f.LastUsed.IsZero() {
		t := f.LastUsed
		fav.LastUsed = &t
	}
	return fav, nil
}

// FavoriteToCore converts a GORM Favorite to a core.Favorite.
func FavoriteToCore(f model.Favorite) core.Favorite {
	lat, lng, _ := geo.LatLngFrom3857(f.Position)
	fav := core.Favorite{
		ID:        f.ID,
		Name:      f.Name,
		Address:   f.Address,
		Latitude:  lat,
		Longitude: lng,
		UseCount:  f.UseCount,
		CreatedAt: f.CreatedAt,
	}
	if f.LastUsed != nil {
		fav.LastUsed = *f.LastUsed
	}
	return fav
}

// CoreToSessionEvent converts a core.Event to a GORM SessionEvent. The session
// record id is stamped by the writer.
func CoreToSessionEvent(e core.Event) model.SessionEvent {
	return model.SessionEvent{
		Time:     e.Time,
		Kind:     string(e.Kind),
		Strategy: e.Strategy,
		Provider: e.Provider,
		Detail:   e.Detail,
		Fields:   mapToJSON(e.Fields),
	}
}

// NewSessionRecord creates the record for a session's first event.
func NewSessionRecord(sessionID string, started time.Time) model.SessionRecord {
	return model.SessionRecord{
		SessionID: sessionID,
		StartedAt: started,
		Failures:  datatypes.JSON("{}"),
	}
}

// FailuresToMap returns the failure reasons of a session record, never nil.
func FailuresToMap(r model.SessionRecord) map[string]string {
	if m := jsonToMap(r.Failures); m != nil {
		return m
	}
	return make(map[string]string)
}

// SetFailures replaces the failure reasons of a session record.
func SetFailures(r *model.SessionRecord, failures map[string]string) {
	r.Failures = mapToJSON(failures)
}

// SessionRecordToCore converts a GORM SessionRecord to a core.SessionSummary.
func SessionRecordToCore(r model.SessionRecord) core.SessionSummary {
	s := core.SessionSummary{
		SessionID: r.SessionID,
		AppID:     r.AppID,
		Strategy:  r.Strategy,
		StartedAt: r.StartedAt,
		Resets:    r.Resets,
		Failures:  jsonToMap(r.Failures),
		Events:    len(r.Events),
	}
	if lat, lng, ok := geo.LatLngFrom3857(r.Target); ok {
		s.Latitude, s.Longitude = lat, lng
	}
	if r.EndedAt != nil {
		s.EndedAt = *r.EndedAt
	}
	return s
}
