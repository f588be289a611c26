package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iot-relay/internal/bus"
	"iot-relay/internal/models"
)

type wireFrame struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data"`
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wireFrame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var frame wireFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestWebSocketInitialState(t *testing.T) {
	srv, service := newTestServer(t, &stubBusController{})

	service.Dispatch(models.RawMessage{
		Kind:    models.KindGPS,
		Topic:   "devices/gps",
		Payload: []byte(`{"dID":"device_001","lat":12.9352,"lon":77.6245,"dTS":1701266400}`),
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	conn := dialWS(t, ts)

	frame := readFrame(t, conn)
	assert.Equal(t, models.EventInitialState, frame.Event)

	devices, ok := frame.Data["devices"].([]interface{})
	require.True(t, ok)
	assert.Len(t, devices, 1)
	assert.Equal(t, string(models.BusDisconnected), frame.Data["busStatus"])
}

func TestWebSocketReceivesDeltas(t *testing.T) {
	srv, service := newTestServer(t, &stubBusController{})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	conn := dialWS(t, ts)
	require.Equal(t, models.EventInitialState, readFrame(t, conn).Event)

	service.Dispatch(models.RawMessage{
		Kind:    models.KindRFID,
		Topic:   "devices/rfid",
		Payload: []byte(`{"dID":"device_001","uID":"tag_1","lat":1,"lon":2,"dTS":1701266400}`),
	})

	frame := readFrame(t, conn)
	assert.Equal(t, models.EventRFIDScan, frame.Event)
	assert.Equal(t, "tag_1", frame.Data["tagUID"])
	assert.Equal(t, "N/A", frame.Data["message"])
}

func TestWebSocketControlFrames(t *testing.T) {
	t.Run("connect_mqtt reaches the controller", func(t *testing.T) {
		ctl := &stubBusController{}
		srv, _ := newTestServer(t, ctl)

		ts := httptest.NewServer(srv.Router())
		defer ts.Close()

		conn := dialWS(t, ts)
		require.Equal(t, models.EventInitialState, readFrame(t, conn).Event)

		require.NoError(t, conn.WriteJSON(map[string]interface{}{
			"event": "connect_mqtt",
			"data": map[string]string{
				"broker":    "localhost:1883",
				"gpsTopic":  "devices/gps",
				"rfidTopic": "devices/rfid",
			},
		}))

		require.Eventually(t, func() bool {
			return ctl.LastRequest().BrokerURL == "localhost:1883"
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("failed connect reports back to the requester", func(t *testing.T) {
		ctl := &stubBusController{connectErr: bus.ErrInvalidBroker}
		srv, _ := newTestServer(t, ctl)

		ts := httptest.NewServer(srv.Router())
		defer ts.Close()

		conn := dialWS(t, ts)
		require.Equal(t, models.EventInitialState, readFrame(t, conn).Event)

		require.NoError(t, conn.WriteJSON(map[string]interface{}{
			"event": "connect_mqtt",
			"data":  map[string]string{"broker": "http://nope"},
		}))

		frame := readFrame(t, conn)
		assert.Equal(t, models.EventBusError, frame.Event)
		assert.NotEmpty(t, frame.Data["error"])
	})

	t.Run("disconnect_mqtt reaches the controller", func(t *testing.T) {
		ctl := &stubBusController{}
		srv, _ := newTestServer(t, ctl)

		ts := httptest.NewServer(srv.Router())
		defer ts.Close()

		conn := dialWS(t, ts)
		require.Equal(t, models.EventInitialState, readFrame(t, conn).Event)

		require.NoError(t, conn.WriteJSON(map[string]string{"event": "disconnect_mqtt"}))

		require.Eventually(t, func() bool {
			return ctl.Disconnects() == 1
		}, 2*time.Second, 10*time.Millisecond)
	})
}

func TestWebSocketViewerChurn(t *testing.T) {
	srv, service := newTestServer(t, &stubBusController{})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	conn := dialWS(t, ts)
	require.Equal(t, models.EventInitialState, readFrame(t, conn).Event)
	require.NoError(t, conn.Close())

	// the registry must be unaffected by viewer churn
	service.Dispatch(models.RawMessage{
		Kind:    models.KindGPS,
		Topic:   "devices/gps",
		Payload: []byte(`{"dID":"device_001","lat":1,"lon":2,"dTS":10}`),
	})
	assert.Len(t, service.Devices(), 1)
}
