package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableNames(t *testing.T) {
	tests := []struct {
		name     string
		model    interface{ TableName() string }
		expected string
	}{
		{"Favorite", &Favorite{}, "favorites"},
		{"SessionRecord", &SessionRecord{}, "sessions"},
		{"SessionEvent", &SessionEvent{}, "session_events"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.model.TableName())
		})
	}
}

func TestDatabaseModelsListsEveryTable(t *testing.T) {
	assert.Len(t, DatabaseModels, 3)
}
