package registry

import (
	"sort"
	"sync"
	"time"

	"iot-relay/internal/models"
)

const DefaultMaxScans = 100

const displayTimeFormat = "2006-01-02 15:04:05"

// Registry is the authoritative in-memory state: the latest position per
// device and a bounded newest-first log of scan events. The scan log is a
// fixed-capacity ring; inserting past capacity overwrites the oldest entry.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]models.Device
	scans   []models.ScanEvent
	head    int
	count   int
}

type Snapshot struct {
	Devices []models.Device
	Scans   []models.ScanEvent
}

func New(maxScans int) *Registry {
	if maxScans <= 0 {
		maxScans = DefaultMaxScans
	}
	return &Registry{
		devices: make(map[string]models.Device),
		scans:   make([]models.ScanEvent, maxScans),
	}
}

// ApplyGPS overwrites or inserts the device record for the event's device ID.
// Last write wins by arrival order, regardless of the source timestamp.
func (r *Registry) ApplyGPS(event models.GPSEvent) models.Device {
	device := models.Device{
		DeviceID:   event.DeviceID,
		Latitude:   event.Latitude,
		Longitude:  event.Longitude,
		Timestamp:  event.Timestamp,
		LastUpdate: displayTime(event.Timestamp),
	}

	r.mu.Lock()
	r.devices[event.DeviceID] = device
	r.mu.Unlock()

	return device
}

// ApplyScan prepends the scan to the log, evicting the oldest entry when the
// log is at capacity. Returns the stored record with its display time set.
func (r *Registry) ApplyScan(event models.ScanEvent) models.ScanEvent {
	event.ScannedAt = displayTime(event.Timestamp)

	r.mu.Lock()
	capacity := len(r.scans)
	r.head = (r.head - 1 + capacity) % capacity
	r.scans[r.head] = event
	if r.count < capacity {
		r.count++
	}
	r.mu.Unlock()

	return event
}

// Snapshot returns a consistent point-in-time copy of all registry state.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Snapshot{
		Devices: r.devicesLocked(),
		Scans:   r.scansLocked(),
	}
}

// Devices returns all known devices, ordered by device ID.
func (r *Registry) Devices() []models.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.devicesLocked()
}

// Scans returns the scan log, newest first.
func (r *Registry) Scans() []models.ScanEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scansLocked()
}

func (r *Registry) DeviceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

func (r *Registry) ScanCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

func (r *Registry) devicesLocked() []models.Device {
	devices := make([]models.Device, 0, len(r.devices))
	for _, device := range r.devices {
		devices = append(devices, device)
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].DeviceID < devices[j].DeviceID
	})
	return devices
}

func (r *Registry) scansLocked() []models.ScanEvent {
	scans := make([]models.ScanEvent, r.count)
	for i := 0; i < r.count; i++ {
		scans[i] = r.scans[(r.head+i)%len(r.scans)]
	}
	return scans
}

func displayTime(timestamp int64) string {
	return time.Unix(timestamp, 0).Format(displayTimeFormat)
}
