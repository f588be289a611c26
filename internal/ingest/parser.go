package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"iot-relay/internal/models"
)

// DefaultMessage is recorded when a scan payload carries no message.
const DefaultMessage = "N/A"

var (
	ErrMissingDeviceID       = errors.New("missing device id")
	ErrMissingTagUID         = errors.New("missing tag uid")
	ErrMissingCoordinates    = errors.New("missing coordinates")
	ErrCoordinatesOutOfRange = errors.New("coordinates out of range")
)

// nowFunc supplies the fallback timestamp for payloads without one.
var nowFunc = time.Now

// Pointer fields distinguish an absent coordinate from a literal zero.
type gpsPayload struct {
	DeviceID  string   `json:"dID"`
	Timestamp *int64   `json:"dTS"`
	Latitude  *float64 `json:"lat"`
	Longitude *float64 `json:"lon"`
}

type rfidPayload struct {
	DeviceID  string   `json:"dID"`
	TagUID    string   `json:"uID"`
	Message   string   `json:"msg"`
	Timestamp *int64   `json:"dTS"`
	Latitude  *float64 `json:"lat"`
	Longitude *float64 `json:"lon"`
}

// ParseGPS validates a raw GPS topic payload. This is the trust boundary for
// external producers: anything downstream receives only validated events.
func ParseGPS(payload []byte) (models.GPSEvent, error) {
	var raw gpsPayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		return models.GPSEvent{}, fmt.Errorf("decode gps payload: %w", err)
	}

	if raw.DeviceID == "" {
		return models.GPSEvent{}, ErrMissingDeviceID
	}
	if err := checkCoordinates(raw.Latitude, raw.Longitude); err != nil {
		return models.GPSEvent{}, err
	}

	return models.GPSEvent{
		DeviceID:  raw.DeviceID,
		Latitude:  *raw.Latitude,
		Longitude: *raw.Longitude,
		Timestamp: timestampOrNow(raw.Timestamp),
	}, nil
}

// ParseRFID validates a raw RFID topic payload.
func ParseRFID(payload []byte) (models.ScanEvent, error) {
	var raw rfidPayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		return models.ScanEvent{}, fmt.Errorf("decode rfid payload: %w", err)
	}

	if raw.DeviceID == "" {
		return models.ScanEvent{}, ErrMissingDeviceID
	}
	if raw.TagUID == "" {
		return models.ScanEvent{}, ErrMissingTagUID
	}
	if err := checkCoordinates(raw.Latitude, raw.Longitude); err != nil {
		return models.ScanEvent{}, err
	}

	message := raw.Message
	if message == "" {
		message = DefaultMessage
	}

	return models.ScanEvent{
		DeviceID:  raw.DeviceID,
		TagUID:    raw.TagUID,
		Message:   message,
		Latitude:  *raw.Latitude,
		Longitude: *raw.Longitude,
		Timestamp: timestampOrNow(raw.Timestamp),
	}, nil
}

func checkCoordinates(latitude, longitude *float64) error {
	if latitude == nil || longitude == nil {
		return ErrMissingCoordinates
	}
	if *latitude < -90 || *latitude > 90 || *longitude < -180 || *longitude > 180 {
		return ErrCoordinatesOutOfRange
	}
	return nil
}

func timestampOrNow(timestamp *int64) int64 {
	if timestamp != nil {
		return *timestamp
	}
	return nowFunc().Unix()
}
