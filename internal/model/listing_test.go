package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListingScore(t *testing.T) {
	l := Listing{}
	assert.Equal(t, -1, l.Score())

	score := 42
	l.MatchScore = &score
	assert.Equal(t, 42, l.Score())
}

func TestListingJSON_OmitsUnscored(t *testing.T) {
	data, err := json.Marshal(Listing{ID: "l1", URL: "https://www.apartments.com/x/"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "match_score")
	assert.Contains(t, string(data), `"is_subject_property":false`)
}

func TestUnitAvailable(t *testing.T) {
	assert.True(t, Unit{Status: UnitStatusAvailable}.Available())
	assert.False(t, Unit{Status: UnitStatusOccupied}.Available())
	assert.False(t, Unit{}.Available())
}
