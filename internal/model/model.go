package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Favorite{},
	&SessionRecord{},
	&SessionEvent{},
}

// Favorite is a saved target location
type Favorite struct {
	gorm.Model
	Name     string     `json:"name" gorm:"size:127;uniqueIndex"`
	Address  string     `json:"address" gorm:"size:255"`
	Position geom.Point `json:"position"` // EPSG:3857
	UseCount uint       `json:"useCount" gorm:"default:0"`
	LastUsed *time.Time `json:"lastUsed"`
}

func (*Favorite) TableName() string {
	return "favorites"
}

// SessionRecord is one spoofing session
type SessionRecord struct {
	ID        uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID string         `json:"sessionId" gorm:"size:36;uniqueIndex"`
	AppID     string         `json:"appId" gorm:"size:255;index"`
	Strategy  string         `json:"strategy" gorm:"size:32"`
	Target    geom.Point     `json:"target"` // EPSG:3857, last target of the session
	StartedAt time.Time      `json:"startedAt" gorm:"index"`
	EndedAt   *time.Time     `json:"endedAt"`
	Resets    int            `json:"resets" gorm:"default:0"`
	Failures  datatypes.JSON `json:"failures" gorm:"default:'{}'"` // strategy -> reason
	Events    []SessionEvent `gorm:"foreignkey:SessionRecordID;"`
}

func (*SessionRecord) TableName() string {
	return "sessions"
}

// SessionEvent is a session lifecycle event
type SessionEvent struct {
	ID              uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionRecordID uint           `json:"sessionRecordId" gorm:"index:idx_sessionevent_session_id"`
	Time            time.Time      `json:"time" gorm:"index:idx_sessionevent_time"`
	Kind            string         `json:"kind" gorm:"size:32"`
	Strategy        string         `json:"strategy" gorm:"size:32"`
	Provider        string         `json:"provider" gorm:"size:32"`
	Detail          string         `json:"detail" gorm:"size:1024"`
	Fields          datatypes.JSON `json:"fields" gorm:"default:'{}'"`
}

func (*SessionEvent) TableName() string {
	return "session_events"
}
