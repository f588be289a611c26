package models

// MessageKind identifies which subscription an inbound bus message arrived on.
type MessageKind string

const (
	KindGPS     MessageKind = "gps"
	KindRFID    MessageKind = "rfid"
	KindUnknown MessageKind = "unknown"
)

// RawMessage is an unparsed payload handed from the bus connection to the
// relay pipeline. The kind is assigned at subscription time.
type RawMessage struct {
	Kind    MessageKind
	Topic   string
	Payload []byte
}

// GPSEvent is a validated position update produced by the ingest parser.
type GPSEvent struct {
	DeviceID  string
	Latitude  float64
	Longitude float64
	Timestamp int64
}

type BusStatus string

const (
	BusDisconnected BusStatus = "disconnected"
	BusConnecting   BusStatus = "connecting"
	BusConnected    BusStatus = "connected"
	BusError        BusStatus = "error"
)

const (
	EventInitialState = "initial_state"
	EventGPSUpdate    = "gps_update"
	EventRFIDScan     = "rfid_scan"
	EventBusStatus    = "bus_status"
	EventBusError     = "mqtt_error"
)

// PushEvent is a single framed message on the viewer push channel.
type PushEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type StatusUpdate struct {
	Status BusStatus `json:"status"`
	Error  string    `json:"error,omitempty"`
}

type InitialState struct {
	Devices   []Device    `json:"devices"`
	Scans     []ScanEvent `json:"scans"`
	BusStatus BusStatus   `json:"busStatus"`
}
