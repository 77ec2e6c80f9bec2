package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservationRecord_Unmarshal(t *testing.T) {
	line := `{"geometry":{"coordinates":[10.3316,55.4747],"type":"Point"},"properties":{"created":"2024-01-01T00:10:00Z","observed":"2024-01-01T00:00:00Z","parameterId":"temp_dry","stationId":"06120","value":2.5,"from":"2024-01-01T00:00:00+00:00"},"type":"Feature","id":"00a1"}`

	var rec ObservationRecord
	require.NoError(t, json.Unmarshal([]byte(line), &rec))

	assert.Equal(t, "06120", rec.Properties.StationID)
	assert.Equal(t, "temp_dry", rec.Properties.ParameterID)
	require.NotNil(t, rec.Properties.Value)
	assert.Equal(t, 2.5, *rec.Properties.Value)
	assert.True(t, rec.Properties.Valid())

	lon, ok := rec.Geometry.Longitude()
	require.True(t, ok)
	assert.Equal(t, 10.3316, lon)
}

func TestObservationProperties_Valid(t *testing.T) {
	v := 1.0
	base := ObservationProperties{StationID: "06120", ParameterID: "temp_dry", Value: &v, From: "2024-01-01T00:00:00Z"}
	assert.True(t, base.Valid())

	t.Run("null value", func(t *testing.T) {
		p := base
		p.Value = nil
		assert.False(t, p.Valid())
	})
	t.Run("missing station", func(t *testing.T) {
		p := base
		p.StationID = ""
		assert.False(t, p.Valid())
	})
	t.Run("missing parameter", func(t *testing.T) {
		p := base
		p.ParameterID = ""
		assert.False(t, p.Valid())
	})
	t.Run("missing time", func(t *testing.T) {
		p := base
		p.From = ""
		assert.False(t, p.Valid())
	})
}
