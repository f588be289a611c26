package relay

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"iot-relay/internal/hub"
	"iot-relay/internal/ingest"
	"iot-relay/internal/models"
	"iot-relay/internal/registry"
)

// Service is the pipeline between the bus connection and the viewers: it
// drains the inbound channel serially, validates each payload, applies it to
// the registry and broadcasts the delta.
//
// The mutex serializes apply+broadcast against viewer attach, which is what
// guarantees a new viewer sees a snapshot of everything applied so far and
// then exactly the events applied afterwards.
type Service struct {
	registry  *registry.Registry
	hub       *hub.Hub
	logger    zerolog.Logger
	busStatus func() models.BusStatus

	mu sync.Mutex
}

func New(reg *registry.Registry, h *hub.Hub, logger zerolog.Logger) *Service {
	return &Service{
		registry:  reg,
		hub:       h,
		logger:    logger,
		busStatus: func() models.BusStatus { return models.BusDisconnected },
	}
}

// SetStatusSource wires the bus manager's current status into stats and
// initial-state payloads.
func (s *Service) SetStatusSource(source func() models.BusStatus) {
	if source != nil {
		s.busStatus = source
	}
}

// Run consumes inbound messages until the context is cancelled or the
// channel is closed. Data errors never end the loop.
func (s *Service) Run(ctx context.Context, inbound <-chan models.RawMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-inbound:
			if !ok {
				return
			}
			s.Dispatch(msg)
		}
	}
}

// Dispatch routes one raw message by the topic kind it was received on.
// Messages on unrecognized topics are ignored.
func (s *Service) Dispatch(msg models.RawMessage) {
	switch msg.Kind {
	case models.KindGPS:
		s.handleGPS(msg)
	case models.KindRFID:
		s.handleRFID(msg)
	default:
		s.logger.Debug().Str("topic", msg.Topic).Msg("Ignoring message on unrecognized topic")
	}
}

func (s *Service) handleGPS(msg models.RawMessage) {
	event, err := ingest.ParseGPS(msg.Payload)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("topic", msg.Topic).
			Int("payload_size", len(msg.Payload)).
			Msg("Dropping invalid gps payload")
		return
	}

	s.mu.Lock()
	device := s.registry.ApplyGPS(event)
	s.hub.Broadcast(models.PushEvent{Event: models.EventGPSUpdate, Data: device})
	s.mu.Unlock()

	s.logger.Debug().
		Str("device_id", device.DeviceID).
		Float64("lat", device.Latitude).
		Float64("lon", device.Longitude).
		Msg("Applied gps update")
}

func (s *Service) handleRFID(msg models.RawMessage) {
	event, err := ingest.ParseRFID(msg.Payload)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("topic", msg.Topic).
			Int("payload_size", len(msg.Payload)).
			Msg("Dropping invalid rfid payload")
		return
	}

	s.mu.Lock()
	scan := s.registry.ApplyScan(event)
	s.hub.Broadcast(models.PushEvent{Event: models.EventRFIDScan, Data: scan})
	s.mu.Unlock()

	s.logger.Debug().
		Str("device_id", scan.DeviceID).
		Str("tag_uid", scan.TagUID).
		Msg("Recorded rfid scan")
}

// AttachViewer registers the session and queues the full-state snapshot as
// its first event.
func (s *Service) AttachViewer(session *hub.Session) {
	s.mu.Lock()
	snapshot := s.registry.Snapshot()
	session.TrySend(models.PushEvent{
		Event: models.EventInitialState,
		Data: models.InitialState{
			Devices:   snapshot.Devices,
			Scans:     snapshot.Scans,
			BusStatus: s.busStatus(),
		},
	})
	s.hub.Register(session)
	s.mu.Unlock()
}

func (s *Service) DetachViewer(session *hub.Session) {
	s.hub.Unregister(session)
}

// OnBusStatus relays connection status transitions to all viewers.
func (s *Service) OnBusStatus(status models.BusStatus, detail string) {
	s.mu.Lock()
	s.hub.Broadcast(models.PushEvent{
		Event: models.EventBusStatus,
		Data:  models.StatusUpdate{Status: status, Error: detail},
	})
	s.mu.Unlock()

	s.logger.Info().Str("status", string(status)).Str("detail", detail).Msg("Bus status changed")
}

func (s *Service) Devices() []models.Device {
	return s.registry.Devices()
}

func (s *Service) Scans() []models.ScanEvent {
	return s.registry.Scans()
}

func (s *Service) Stats() models.Stats {
	return models.Stats{
		ActiveDevices: s.registry.DeviceCount(),
		TotalScans:    s.registry.ScanCount(),
		BusStatus:     s.busStatus(),
		ServerTime:    time.Now().Format(time.RFC3339),
	}
}
