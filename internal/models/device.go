package models

// Device is the latest known state for one tracked device, keyed by DeviceID.
// Each valid GPS event fully overwrites the position and timestamp fields.
type Device struct {
	DeviceID   string  `json:"deviceId"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Timestamp  int64   `json:"timestamp"`
	LastUpdate string  `json:"lastUpdate"`
}

// ScanEvent is one RFID tag read. Entries are immutable once recorded and
// live in the registry's bounded newest-first log.
type ScanEvent struct {
	DeviceID  string  `json:"deviceId"`
	TagUID    string  `json:"tagUID"`
	Message   string  `json:"message"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp"`
	ScannedAt string  `json:"scannedAt"`
}

type Stats struct {
	ActiveDevices int       `json:"activeDevices"`
	TotalScans    int       `json:"totalScans"`
	BusStatus     BusStatus `json:"busStatus"`
	ServerTime    string    `json:"serverTime"`
}
