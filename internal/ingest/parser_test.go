package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGPS(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		event, err := ParseGPS([]byte(`{"dID":"device_001","dTS":1701266400,"lat":12.9352,"lon":77.6245}`))
		require.NoError(t, err)
		assert.Equal(t, "device_001", event.DeviceID)
		assert.InDelta(t, 12.9352, event.Latitude, 1e-9)
		assert.InDelta(t, 77.6245, event.Longitude, 1e-9)
		assert.Equal(t, int64(1701266400), event.Timestamp)
	})

	t.Run("timestamp defaults to server time", func(t *testing.T) {
		restore := nowFunc
		nowFunc = func() time.Time { return time.Unix(1701266499, 0) }
		defer func() { nowFunc = restore }()

		event, err := ParseGPS([]byte(`{"dID":"device_001","lat":1,"lon":2}`))
		require.NoError(t, err)
		assert.Equal(t, int64(1701266499), event.Timestamp)
	})

	t.Run("zero coordinates are valid", func(t *testing.T) {
		event, err := ParseGPS([]byte(`{"dID":"device_001","lat":0,"lon":0}`))
		require.NoError(t, err)
		assert.Zero(t, event.Latitude)
		assert.Zero(t, event.Longitude)
	})

	rejections := []struct {
		name    string
		payload string
		wantErr error
	}{
		{"missing device id", `{"lat":1,"lon":2}`, ErrMissingDeviceID},
		{"empty device id", `{"dID":"","lat":1,"lon":2}`, ErrMissingDeviceID},
		{"missing latitude", `{"dID":"device_001","lon":2}`, ErrMissingCoordinates},
		{"missing longitude", `{"dID":"device_001","lat":1}`, ErrMissingCoordinates},
		{"latitude out of range", `{"dID":"device_001","lat":91,"lon":2}`, ErrCoordinatesOutOfRange},
		{"longitude out of range", `{"dID":"device_001","lat":1,"lon":-181}`, ErrCoordinatesOutOfRange},
	}

	for _, tc := range rejections {
		t.Run("rejects "+tc.name, func(t *testing.T) {
			_, err := ParseGPS([]byte(tc.payload))
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	t.Run("rejects non-numeric coordinate", func(t *testing.T) {
		_, err := ParseGPS([]byte(`{"dID":"device_001","lat":"north","lon":2}`))
		assert.Error(t, err)
	})

	t.Run("rejects bad json", func(t *testing.T) {
		_, err := ParseGPS([]byte(`not json`))
		assert.Error(t, err)
	})
}

func TestParseRFID(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		event, err := ParseRFID([]byte(`{"dID":"device_001","uID":"04:A3:22:B1","msg":"pallet 7","lat":12.9352,"lon":77.6245,"dTS":1701266400}`))
		require.NoError(t, err)
		assert.Equal(t, "device_001", event.DeviceID)
		assert.Equal(t, "04:A3:22:B1", event.TagUID)
		assert.Equal(t, "pallet 7", event.Message)
		assert.Equal(t, int64(1701266400), event.Timestamp)
	})

	t.Run("message defaults when absent", func(t *testing.T) {
		event, err := ParseRFID([]byte(`{"dID":"device_001","uID":"tag_1","lat":1,"lon":2}`))
		require.NoError(t, err)
		assert.Equal(t, DefaultMessage, event.Message)
	})

	t.Run("message defaults when empty", func(t *testing.T) {
		event, err := ParseRFID([]byte(`{"dID":"device_001","uID":"tag_1","msg":"","lat":1,"lon":2}`))
		require.NoError(t, err)
		assert.Equal(t, DefaultMessage, event.Message)
	})

	t.Run("rejects missing tag uid", func(t *testing.T) {
		_, err := ParseRFID([]byte(`{"dID":"device_001","lat":1,"lon":2}`))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingTagUID)
	})

	t.Run("rejects missing device id", func(t *testing.T) {
		_, err := ParseRFID([]byte(`{"uID":"tag_1","lat":1,"lon":2}`))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingDeviceID)
	})

	t.Run("rejects missing coordinates", func(t *testing.T) {
		_, err := ParseRFID([]byte(`{"dID":"device_001","uID":"tag_1"}`))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingCoordinates)
	})
}
